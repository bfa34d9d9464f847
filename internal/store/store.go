// Package store keeps the SDK's small persistent state: the cached version
// payload, usage time, crash preferences, feedback tokens and unsent telemetry.
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"hockeysdk-go/configs/config"
	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/dbclient"
	"hockeysdk-go/internal/logging"
)

const (
	BackendMemory   = "memory"
	BackendLevelDB  = "leveldb"
	BackendPostgres = "postgres"

	defaultMemorySize = 512
)

// Store is a string key/value store. Get reports a missing key as
// *cstmerr.DBNotFoundError; use cstmerr.IsNotFound to test for it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// List returns every entry whose key starts with prefix.
	List(ctx context.Context, prefix string) (map[string]string, error)
	// PutBounded stores key unless prefix already holds limit entries.
	// Counting and writing happen atomically. It reports whether key was stored.
	PutBounded(ctx context.Context, prefix, key, value string, limit int) (bool, error)
	Close() error
}

// Key joins key segments with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

func notFound(key string) error {
	return cstmerr.NewDBNotFoundError(fmt.Sprintf("key %q not found", key), nil)
}

// Open creates the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	log := logging.Logger().WithField("backend", cfg.Backend)

	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		size := cfg.MemorySize
		if size <= 0 {
			size = defaultMemorySize
		}
		log.Debugf("Using in-memory store with %d entries", size)
		return NewMemoryStore(size)
	case BackendLevelDB:
		path := cfg.Path
		if path == "" {
			path = filepath.Join(".hockey", "store")
		}
		log.Debugf("Using leveldb store at %s", path)
		return OpenLevelDBStore(path)
	case BackendPostgres:
		client, err := dbclient.NewDBClient(ctx, &cfg.Database, "gorm")
		if err != nil {
			return nil, cstmerr.NewStoreError("failed to open postgres store", err)
		}
		return NewGormStore(client), nil
	default:
		return nil, cstmerr.NewStoreError(fmt.Sprintf(cstmerr.STORE_BACKEND_ERROR, cfg.Backend), nil)
	}
}
