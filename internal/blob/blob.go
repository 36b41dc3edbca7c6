// Package blob is the entry point to blob storage. Callers depend on Store and
// the constructors here; the drivers live under internal/infra/blob.
package blob

import (
	"context"

	"qubecore/internal/blob/core"
	"qubecore/internal/infra/blob/fs"
	memorystore "qubecore/internal/infra/blob/memory"
	infraS3 "qubecore/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 driver.
	S3Config = infraS3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	// ErrExists is returned by Put for a taken key.
	ErrExists = core.ErrExists
	// ErrNotExist matches reads of missing keys.
	ErrNotExist = core.ErrNotExist
)

// NewFilesystem returns a store rooted at root.
func NewFilesystem(root string) (Store, error) {
	s, err := fs.New(root)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns a store on the configured bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	s, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMockS3 returns an S3 store backed by an in-process fake bucket.
func NewMockS3() Store { return infraS3.NewMock() }
