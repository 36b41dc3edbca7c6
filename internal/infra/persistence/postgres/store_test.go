package postgres

import (
	"context"
	"database/sql"
	"reflect"
	"strings"
	"testing"
	"time"

	"qubecore/internal/core"
	"qubecore/internal/core/coretest"
	"qubecore/internal/infra/persistence/postgres/testutil"
)

func newStubStore(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dsn
		return db, nil
	})
	t.Cleanup(restore)
	s, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if gotDriver != "pgx" || gotDSN != DefaultDSN {
		t.Fatalf("unexpected open %s %s", gotDriver, gotDSN)
	}
	return s, conn
}

func TestNewStoreCreatesSettingsTable(t *testing.T) {
	_, conn := newStubStore(t)
	if len(conn.Execs) != 1 || !strings.Contains(conn.Execs[0], "CREATE TABLE IF NOT EXISTS system_settings") {
		t.Fatalf("unexpected statements %v", conn.Execs)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, conn := newStubStore(t)
	settings := coretest.NewAllocatedSystem(t).Settings()
	settings.SavedAt = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.LoadSettings(ctx, settings.ChipID); !core.IsNotFound(err, core.EntitySettings) {
		t.Fatalf("expected settings not found, got %v", err)
	}
	if err := s.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveSettings(ctx, core.SystemSettings{ChipID: "64Q"}); err != nil {
		t.Fatalf("save second chip: %v", err)
	}
	if err := s.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if n := len(conn.Tables["system_settings"]); n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
	got, err := s.LoadSettings(ctx, settings.ChipID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, settings) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, settings)
	}
	ids, err := s.ListSettings(ctx)
	if err != nil || !reflect.DeepEqual(ids, []string{"64Q", settings.ChipID}) {
		t.Fatalf("unexpected ids %v %v", ids, err)
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailExec = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://x"); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestSaveSettingsFailures(t *testing.T) {
	ctx := context.Background()
	settings := core.SystemSettings{ChipID: "8Q"}

	s, conn := newStubStore(t)
	conn.FailBegin = true
	if err := s.SaveSettings(ctx, settings); err == nil || !strings.Contains(err.Error(), "begin tx") {
		t.Fatalf("expected begin error, got %v", err)
	}
	conn.FailBegin = false
	conn.FailCommit = true
	if err := s.SaveSettings(ctx, settings); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
	conn.FailCommit = false
	conn.FailTables = map[string]bool{"system_settings": true}
	if err := s.SaveSettings(ctx, settings); err == nil || !strings.Contains(err.Error(), "upsert settings 8Q") {
		t.Fatalf("expected upsert error, got %v", err)
	}
	if _, err := s.ListSettings(ctx); err == nil {
		t.Fatalf("expected list error")
	}
	if err := s.SaveSettings(ctx, core.SystemSettings{}); err == nil {
		t.Fatalf("expected empty chip id error")
	}
}
