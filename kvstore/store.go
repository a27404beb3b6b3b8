// Package kvstore persists the collections as string values under string keys
package kvstore

import (
	"context"
	"fmt"

	"github.com/giygas/pharmaprice-api/config"
)

// Store is a string key value store. Get reports found=false for a key that
// was never written.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Ping(ctx context.Context) error
	Backend() string
	Close() error
}

// Open builds the store selected by STORAGE_BACKEND
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		return NewMemoryStore(), nil
	case config.StorageFile:
		return NewFileStore(cfg.StoragePath)
	case config.StoragePostgres:
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	case config.StorageR2:
		return NewObjectStore(ctx, ObjectStoreConfig{
			Endpoint:  cfg.R2Endpoint,
			AccessKey: cfg.R2AccessKey,
			SecretKey: cfg.R2SecretKey,
			Bucket:    cfg.R2Bucket,
			Prefix:    cfg.R2Prefix,
		})
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}
