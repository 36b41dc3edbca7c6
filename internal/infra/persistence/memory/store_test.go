package memory

import (
	"context"
	"reflect"
	"testing"
	"time"

	"qubecore/internal/core"
	"qubecore/internal/core/coretest"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	settings := coretest.NewAllocatedSystem(t).Settings()
	settings.SavedAt = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.LoadSettings(ctx, settings.ChipID); !core.IsNotFound(err, core.EntitySettings) {
		t.Fatalf("expected settings not found, got %v", err)
	}
	if err := s.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadSettings(ctx, settings.ChipID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, settings) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, settings)
	}

	// Mutating the loaded copy must not leak back into the store.
	got.Targets[0].Frequency = -1
	again, _ := s.LoadSettings(ctx, settings.ChipID)
	if again.Targets[0].Frequency == -1 {
		t.Fatalf("store shares state with callers")
	}
}

func TestStoreOverwriteAndList(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, id := range []string{"64Q", "8Q"} {
		if err := s.SaveSettings(ctx, core.SystemSettings{ChipID: id, ClockMaster: "10.0.0.1"}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if err := s.SaveSettings(ctx, core.SystemSettings{ChipID: "8Q", ClockMaster: "10.0.0.2"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	ids, err := s.ListSettings(ctx)
	if err != nil || !reflect.DeepEqual(ids, []string{"64Q", "8Q"}) {
		t.Fatalf("unexpected ids %v %v", ids, err)
	}
	got, _ := s.LoadSettings(ctx, "8Q")
	if got.ClockMaster != "10.0.0.2" {
		t.Fatalf("overwrite not applied: %+v", got)
	}
	if err := s.SaveSettings(ctx, core.SystemSettings{}); err == nil {
		t.Fatalf("expected empty chip id to be rejected")
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewStore().SaveSettings(ctx, core.SystemSettings{ChipID: "8Q"}); err == nil {
		t.Fatalf("expected context error")
	}
}
