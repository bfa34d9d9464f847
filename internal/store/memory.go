package store

import (
	"context"
	"strings"
	"sync"

	"hockeysdk-go/internal/cstmerr"

	lru "github.com/hashicorp/golang-lru"
)

// MemoryStore is a bounded in-process store. The least recently used entry
// is evicted once size entries are held.
type MemoryStore struct {
	mu    sync.Mutex // guards PutBounded against concurrent writers
	cache *lru.Cache
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, cstmerr.NewStoreError("failed to create memory store", err)
	}
	return &MemoryStore{cache: cache}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return "", notFound(key)
	}
	return v.(string), nil
}

func (m *MemoryStore) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.cache.Add(key, value)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) PutBounded(ctx context.Context, prefix, key, value string, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, _ := m.List(ctx, prefix)
	if len(existing) >= limit {
		return false, nil
	}
	m.cache.Add(key, value)
	return true, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) (map[string]string, error) {
	result := make(map[string]string)
	for _, k := range m.cache.Keys() {
		key := k.(string)
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if v, ok := m.cache.Peek(key); ok {
			result[key] = v.(string)
		}
	}
	return result, nil
}

func (m *MemoryStore) Close() error {
	m.cache.Purge()
	return nil
}
