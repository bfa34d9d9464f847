package store

import (
	"context"
	"strings"

	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/dbclient"
	"hockeysdk-go/internal/shared"
)

// GormStore keeps entries in the store_entry table through a DBClient.
type GormStore struct {
	client dbclient.DBClient
}

func NewGormStore(client dbclient.DBClient) *GormStore {
	return &GormStore{client: client}
}

func (g *GormStore) Get(ctx context.Context, key string) (string, error) {
	var entry shared.StoreEntry
	if err := g.client.First(ctx, &entry, "key = ?", key); err != nil {
		if cstmerr.IsNotFound(err) {
			return "", notFound(key)
		}
		return "", err
	}
	return entry.Value, nil
}

func (g *GormStore) Put(ctx context.Context, key, value string) error {
	return g.client.Save(ctx, &shared.StoreEntry{Key: key, Value: value})
}

func (g *GormStore) Delete(ctx context.Context, key string) error {
	return g.client.Delete(ctx, &shared.StoreEntry{}, "key = ?", key)
}

func (g *GormStore) List(ctx context.Context, prefix string) (map[string]string, error) {
	entries, err := listWith(ctx, g.client, prefix)
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, len(entries))
	for _, e := range entries {
		result[e.Key] = e.Value
	}
	return result, nil
}

// PutBounded counts and inserts in one database transaction.
func (g *GormStore) PutBounded(ctx context.Context, prefix, key, value string, limit int) (bool, error) {
	stored := false
	err := g.client.RunInTransaction(ctx, func(ctx context.Context, tx dbclient.DBClient) error {
		entries, err := listWith(ctx, tx, prefix)
		if err != nil {
			return err
		}
		if len(entries) >= limit {
			return nil
		}
		if err := tx.Save(ctx, &shared.StoreEntry{Key: key, Value: value}); err != nil {
			return err
		}
		stored = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return stored, nil
}

func listWith(ctx context.Context, client dbclient.DBClient, prefix string) ([]shared.StoreEntry, error) {
	var entries []shared.StoreEntry
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix)
	if err := client.Find(ctx, &entries, "key LIKE ?", escaped+"%"); err != nil {
		return nil, err
	}
	return entries, nil
}

func (g *GormStore) Close() error {
	return g.client.Close()
}
