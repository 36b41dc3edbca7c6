package testutil

import (
	"context"
	"database/sql/driver"
	"io"
	"testing"
)

func TestStubDBStoresAndQueriesRows(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	insert := "INSERT INTO system_settings(chip_id,payload) VALUES($1,$2) ON CONFLICT(chip_id) DO UPDATE SET payload=EXCLUDED.payload"
	for _, args := range [][]driver.NamedValue{
		{{Value: "8Q"}, {Value: []byte("a")}},
		{{Value: "64Q"}, {Value: []byte("b")}},
		{{Value: "8Q"}, {Value: []byte("c")}},
	} {
		if _, err := conn.ExecContext(ctx, insert, args); err != nil {
			t.Fatalf("ExecContext insert: %v", err)
		}
	}
	if len(conn.Tables["system_settings"]) != 2 {
		t.Fatalf("expected upsert to keep two rows, got %v", conn.Tables["system_settings"])
	}

	rows, err := conn.QueryContext(ctx, "SELECT payload FROM system_settings WHERE chip_id = $1", []driver.NamedValue{{Value: "8Q"}})
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	dest := make([]driver.Value, 1)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(dest[0].([]byte)) != "c" {
		t.Fatalf("unexpected payload %v", dest[0])
	}
	if err := rows.Next(dest); err != io.EOF {
		t.Fatalf("expected a single row, got %v", err)
	}

	rows, err = conn.QueryContext(ctx, "SELECT chip_id FROM system_settings ORDER BY chip_id", nil)
	if err != nil {
		t.Fatalf("QueryContext ordered: %v", err)
	}
	var ids []string
	for rows.Next(dest) == nil {
		ids = append(ids, dest[0].(string))
	}
	if len(ids) != 2 || ids[0] != "64Q" || ids[1] != "8Q" {
		t.Fatalf("unexpected order %v", ids)
	}
}

func TestParseSelectRejectsGarbage(t *testing.T) {
	if _, err := parseSelect("UPDATE x SET y = 1"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := parseSelect("SELECT a FROM "); err == nil {
		t.Fatalf("expected parse error for missing table")
	}
}
