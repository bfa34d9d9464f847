package dbclient

import (
	"context"
	"fmt"
	"time"

	"hockeysdk-go/configs/config"
	"hockeysdk-go/internal/cstmerr"
)

// DBClient defines the ORM-like operations the relational store backend needs.
type DBClient interface {
	Connect(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error

	// Save updates an existing record or creates it when its primary key is unknown.
	// 'model' is a pointer to the struct to be saved.
	Save(ctx context.Context, model interface{}) error

	// Delete deletes a record.
	// 'model' is a pointer to the struct with its primary key set, or a struct defining conditions.
	Delete(ctx context.Context, model interface{}, conditions ...interface{}) error

	// First retrieves the first record matching the given conditions.
	// A missing record is reported as *cstmerr.DBNotFoundError.
	First(ctx context.Context, model interface{}, conditions ...interface{}) error

	// Find retrieves a collection of models matching the given conditions.
	// 'collection' is a pointer to a slice of structs.
	Find(ctx context.Context, collection interface{}, conditions ...interface{}) error

	// RunInTransaction executes a function within a database transaction.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, txClient DBClient) error) error
}

// NewDBClient is a factory function that returns a connected DBClient implementation.
func NewDBClient(ctx context.Context, dbConfig *config.DatabaseConfig, dbType string) (DBClient, error) {
	if dbConfig == nil {
		return nil, cstmerr.NewConfigError("database configuration is nil", nil)
	}

	var adapter DBClient
	switch dbType {
	case "gorm", "postgres":
		adapter = NewGORMAdapter(dbConfig)
	default:
		return nil, cstmerr.NewDBConnectionError(fmt.Sprintf("failed to find db type %s", dbType), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second) // Connection timeout
	defer cancel()

	if err := adapter.Connect(ctx); err != nil {
		return nil, cstmerr.NewDBConnectionError("failed to connect with gorm adapter", err)
	}
	return adapter, nil
}
