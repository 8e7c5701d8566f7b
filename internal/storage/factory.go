package storage

import (
	"context"
	"strings"

	"github.com/timmy/pagepipe/internal/config"
)

// StorageTypeLocal stores objects on the local filesystem.
const StorageTypeLocal StorageType = "local"

// NewStorage creates an ObjectStorage instance based on the configuration.
// A "local" type (or no type and no credentials) keeps objects under
// cfg.LocalRoot; anything else goes through the S3 client.
func NewStorage(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	storeType := StorageType(cfg.Type)
	if storeType == StorageTypeLocal || (storeType == "" && cfg.AccessKey == "" && cfg.SecretKey == "") {
		return NewLocalStorage(cfg.LocalRoot)
	}

	// Auto-detect storage type if not specified
	if storeType == "" {
		storeType = detectStorageType(cfg.Endpoint)
	}

	s3Storage, err := NewS3Storage(ctx, cfg, storeType)
	if err != nil {
		return nil, err
	}
	if err := s3Storage.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s3Storage, nil
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
