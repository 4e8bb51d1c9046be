package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// StoreType represents the object storage backend.
type StoreType string

const (
	StoreTypeFS  StoreType = "fs"
	StoreTypeS3  StoreType = "s3"
	StoreTypeGCS StoreType = "gcs"
)

// NewStoreFromEnv creates an object store based on environment variables.
//
// Environment variables:
//   - OBJECT_STORAGE_TYPE: "fs" (default), "s3", or "gcs"
//   - DATA_DIR: Base directory for filesystem store (default: "data")
//
// For S3:
//   - AWS_REGION or OBJECT_S3_REGION
//   - OBJECT_S3_BUCKET (required)
//   - OBJECT_S3_ENDPOINT (optional, for MinIO/LocalStack)
//   - OBJECT_S3_PREFIX (optional)
//
// For GCS:
//   - OBJECT_GCS_BUCKET (required)
//   - OBJECT_GCS_PREFIX (optional)
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	storeType := StoreType(os.Getenv("OBJECT_STORAGE_TYPE"))
	if storeType == "" {
		storeType = StoreTypeFS
	}

	switch storeType {
	case StoreTypeFS:
		return newFileStoreFromEnv()
	case StoreTypeS3:
		return newS3StoreFromEnv(ctx)
	case StoreTypeGCS:
		return newGCSStoreFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unsupported object storage type: %s", storeType)
	}
}

func newFileStoreFromEnv() (Store, error) {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	return NewFileStore(filepath.Join(dataDir, "objects"))
}

func newS3StoreFromEnv(ctx context.Context) (Store, error) {
	bucket := os.Getenv("OBJECT_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("OBJECT_S3_BUCKET is required for S3 storage")
	}

	region := os.Getenv("OBJECT_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	cfg := S3StoreConfig{
		Bucket:   bucket,
		Region:   region,
		Endpoint: os.Getenv("OBJECT_S3_ENDPOINT"),
		Prefix:   os.Getenv("OBJECT_S3_PREFIX"),
	}
	return NewS3Store(ctx, cfg)
}
