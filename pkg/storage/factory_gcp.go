//go:build gcp

package storage

import (
	"context"
	"fmt"
	"os"
)

func newGCSStoreFromEnv(ctx context.Context) (Store, error) {
	bucket := os.Getenv("OBJECT_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("OBJECT_GCS_BUCKET is required for GCS storage")
	}

	cfg := GCSStoreConfig{
		Bucket: bucket,
		Prefix: os.Getenv("OBJECT_GCS_PREFIX"),
	}
	return NewGCSStore(ctx, cfg)
}
