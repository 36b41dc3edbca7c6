package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"qubecore/internal/core"
	"qubecore/internal/core/coretest"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if s.Path() != path {
		t.Fatalf("unexpected path %s", s.Path())
	}
	settings := coretest.NewAllocatedSystem(t).Settings()
	settings.SavedAt = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.LoadSettings(ctx, settings.ChipID); !core.IsNotFound(err, core.EntitySettings) {
		t.Fatalf("expected settings not found, got %v", err)
	}
	if err := s.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("save: %v", err)
	}
	settings.ClockMaster = "10.3.0.255"
	if err := s.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	got, err := reopened.LoadSettings(ctx, settings.ChipID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, settings) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, settings)
	}
	ids, err := reopened.ListSettings(ctx)
	if err != nil || !reflect.DeepEqual(ids, []string{settings.ChipID}) {
		t.Fatalf("unexpected ids %v %v", ids, err)
	}
}

func TestStoreRejectsEmptyChipID(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = s.Close() }()
	if err := s.SaveSettings(context.Background(), core.SystemSettings{}); err == nil {
		t.Fatalf("expected error for empty chip id")
	}
}

func TestStoreReportsCorruptPayload(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = s.Close() }()
	if _, err := s.DB().Exec(`INSERT INTO system_settings(chip_id,payload) VALUES(?,?)`, "8Q", []byte("{")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.LoadSettings(context.Background(), "8Q"); err == nil || core.IsNotFound(err, core.EntitySettings) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
