package update

import (
	"context"

	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/store"
)

// EmptyPayload is the cache marker written once the user accepted an update.
const EmptyPayload = "[]"

// VersionCache remembers the last version payload shown to the user.
type VersionCache struct {
	store store.Store
	key   string
}

func NewVersionCache(s store.Store, appIdentifier string) *VersionCache {
	return &VersionCache{store: s, key: store.Key("update", appIdentifier, "versions")}
}

// Get returns the cached payload, or EmptyPayload when nothing is cached.
func (c *VersionCache) Get(ctx context.Context) (string, error) {
	v, err := c.store.Get(ctx, c.key)
	if err != nil {
		if cstmerr.IsNotFound(err) {
			return EmptyPayload, nil
		}
		return EmptyPayload, err
	}
	return v, nil
}

func (c *VersionCache) Set(ctx context.Context, payload string) error {
	return c.store.Put(ctx, c.key, payload)
}

// Clear overwrites the cache with EmptyPayload.
func (c *VersionCache) Clear(ctx context.Context) error {
	return c.store.Put(ctx, c.key, EmptyPayload)
}
