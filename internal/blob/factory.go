package blob

import (
	"context"
	"fmt"
	"os"

	infraS3 "qubecore/internal/infra/blob/s3"
)

// Open selects a Store from the environment.
//
//	QUBECORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	QUBECORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	QUBECORE_BLOB_S3_*: see internal/infra/blob/s3
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("QUBECORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("QUBECORE_BLOB_FS_ROOT"))
	case DriverS3:
		cfg, err := infraS3.ConfigFromEnv()
		if err != nil {
			return nil, err
		}
		return NewS3(ctx, cfg)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
