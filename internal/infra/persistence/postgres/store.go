// Package postgres persists system-settings snapshots in a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"qubecore/internal/core"
)

var _ core.SettingsStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when NewStore receives an empty DSN.
	DefaultDSN = "postgres://localhost/qubecore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store keeps one JSONB payload per chip id.
type Store struct {
	db *sql.DB
}

// NewStore connects using dsn (DefaultDSN when empty) and ensures the
// settings table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSettingsTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSettingsTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS system_settings (
		chip_id TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure settings table: %w", err)
	}
	return nil
}

func (s *Store) LoadSettings(ctx context.Context, chipID string) (core.SystemSettings, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM system_settings WHERE chip_id = $1`, chipID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SystemSettings{}, core.ErrNotFound{Entity: core.EntitySettings, ID: chipID}
	}
	if err != nil {
		return core.SystemSettings{}, fmt.Errorf("select settings %s: %w", chipID, err)
	}
	var out core.SystemSettings
	if err := json.Unmarshal(payload, &out); err != nil {
		return core.SystemSettings{}, fmt.Errorf("decode settings %s: %w", chipID, err)
	}
	return out, nil
}

// SaveSettings upserts the snapshot inside a transaction.
func (s *Store) SaveSettings(ctx context.Context, settings core.SystemSettings) error {
	if settings.ChipID == "" {
		return fmt.Errorf("settings chip id required")
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings %s: %w", settings.ChipID, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO system_settings(chip_id,payload) VALUES($1,$2) ON CONFLICT(chip_id) DO UPDATE SET payload=EXCLUDED.payload`, settings.ChipID, data); err != nil {
		return fmt.Errorf("upsert settings %s: %w", settings.ChipID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func (s *Store) ListSettings(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chip_id FROM system_settings ORDER BY chip_id`)
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan settings: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return ids, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
