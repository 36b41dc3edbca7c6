// Package settings selects where system-settings snapshots are persisted.
package settings

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"qubecore/internal/blob"
	"qubecore/internal/core"
	"qubecore/internal/infra/persistence/memory"
	"qubecore/internal/infra/persistence/postgres"
	"qubecore/internal/infra/persistence/sqlite"
)

// Driver names a snapshot backend.
type Driver string

const (
	DriverBlob     Driver = "blob"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverMemory   Driver = "memory"
)

// Store is a SettingsStore that may hold resources released by Close.
type Store interface {
	core.SettingsStore
	Close() error
}

type memoryStore struct{ *memory.Store }

func (memoryStore) Close() error { return nil }

// Option configures Open.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used to report the selected backend.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open builds the snapshot store selected by the environment.
//
//	QUBECORE_SETTINGS_DRIVER: blob|sqlite|postgres|memory (default blob)
//	QUBECORE_SQLITE_PATH: database file when driver=sqlite (default qubecore.db)
//	QUBECORE_POSTGRES_DSN: connection string when driver=postgres
//	QUBECORE_BLOB_*: see internal/blob when driver=blob
func Open(ctx context.Context, opts ...Option) (Store, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	driver := Driver(os.Getenv("QUBECORE_SETTINGS_DRIVER"))
	if driver == "" {
		driver = DriverBlob
	}
	var (
		store Store
		err   error
	)
	switch driver {
	case DriverBlob:
		var blobs blob.Store
		if blobs, err = blob.Open(ctx); err == nil {
			store = NewBlobStore(blobs)
			o.logger.Debug("blob driver selected", zap.String("blob_driver", string(blobs.Driver())))
		}
	case DriverSQLite:
		store, err = openSQLite(os.Getenv("QUBECORE_SQLITE_PATH"))
	case DriverPostgres:
		store, err = openPostgres(ctx, os.Getenv("QUBECORE_POSTGRES_DSN"))
	case DriverMemory:
		store = memoryStore{memory.NewStore()}
	default:
		return nil, fmt.Errorf("unknown settings driver %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s settings store: %w", driver, err)
	}
	o.logger.Info("settings store opened", zap.String("driver", string(driver)))
	return store, nil
}

func openSQLite(path string) (Store, error) {
	s, err := sqlite.NewStore(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openPostgres(ctx context.Context, dsn string) (Store, error) {
	s, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return s, nil
}
