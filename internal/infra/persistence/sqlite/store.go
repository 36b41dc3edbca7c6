// Package sqlite persists system-settings snapshots in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"qubecore/internal/core"
)

// DefaultPath is used when NewStore receives an empty path.
const DefaultPath = "qubecore.db"

var _ core.SettingsStore = (*Store)(nil)

// Store keeps one JSON payload per chip id.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (and if needed creates) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS system_settings (
		chip_id TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create settings table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) LoadSettings(ctx context.Context, chipID string) (core.SystemSettings, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM system_settings WHERE chip_id = ?`, chipID).Scan(&payload)
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

func (s *Store) SaveSettings(ctx context.Context, settings core.SystemSettings) error {
	if settings.ChipID == "" {
		return fmt.Errorf("settings chip id required")
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings %s: %w", settings.ChipID, err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO system_settings(chip_id,payload) VALUES(?,?) ON CONFLICT(chip_id) DO UPDATE SET payload=excluded.payload`, settings.ChipID, data); err != nil {
		return fmt.Errorf("upsert settings %s: %w", settings.ChipID, err)
	}
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
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
