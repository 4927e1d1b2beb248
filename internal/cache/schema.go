// Package cache provides the in-process schema cache that fronts the schema store.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/arkilian/streamcatalog/pkg/types"
)

// SchemaStore is the persistent schema store being fronted.
type SchemaStore interface {
	Get(ctx context.Context, org, name string, streamType types.StreamType) (types.Schema, error)
	GetVersions(ctx context.Context, org, name string, streamType types.StreamType) ([]types.Schema, error)
	Set(ctx context.Context, org, name string, streamType types.StreamType, schema types.Schema) error
	Delete(ctx context.Context, org, name string, streamType types.StreamType) error
	List(ctx context.Context, org string, streamType *types.StreamType, withSchema bool) ([]types.StreamLocation, error)
}

// Metrics holds cache counters for observability.
type Metrics struct {
	Hits   int64
	Misses int64
}

// SchemaCache is a read-through cache of latest schemas keyed by "org/type/name".
// Only the latest-version lookup is cached; version listings, writes and
// listings go to the store. Deleting from the store does not invalidate the
// cache; callers remove the entry explicitly with Remove.
//
// Every key carries a generation bumped by Set and Remove. A load only fills
// the cache if the generation it started under is still current, so a read
// racing a delete cannot bring the removed schema back.
type SchemaCache struct {
	store SchemaStore
	items *ttlcache.Cache[string, types.Schema]

	mu   sync.Mutex
	gens map[string]uint64
}

// NewSchemaCache creates a schema cache in front of store. A non-positive ttl
// keeps entries until they are removed.
func NewSchemaCache(store SchemaStore, ttl time.Duration) *SchemaCache {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	items := ttlcache.New[string, types.Schema](
		ttlcache.WithTTL[string, types.Schema](ttl),
		ttlcache.WithDisableTouchOnHit[string, types.Schema](),
	)
	go items.Start()

	return &SchemaCache{store: store, items: items, gens: make(map[string]uint64)}
}

// Close stops the expiry loop.
func (c *SchemaCache) Close() error {
	c.items.Stop()
	return nil
}

// Get returns the latest schema, loading it from the store on a miss.
// Empty schemas are not cached so that newly created streams are visible at once.
func (c *SchemaCache) Get(ctx context.Context, org, name string, streamType types.StreamType) (types.Schema, error) {
	key := types.NewStreamKey(org, name, streamType).String()
	if item := c.items.Get(key); item != nil {
		return item.Value(), nil
	}

	c.mu.Lock()
	gen := c.gens[key]
	c.mu.Unlock()

	schema, err := c.store.Get(ctx, org, name, streamType)
	if err != nil {
		return types.Schema{}, err
	}
	if !schema.IsEmpty() {
		c.mu.Lock()
		if c.gens[key] == gen {
			c.items.Set(key, schema, ttlcache.DefaultTTL)
		}
		c.mu.Unlock()
	}
	return schema, nil
}

// invalidate drops the cached entry and moves key to a new generation.
func (c *SchemaCache) invalidate(key string) {
	c.mu.Lock()
	c.gens[key]++
	c.items.Delete(key)
	c.mu.Unlock()
}

// GetVersions passes through to the store.
func (c *SchemaCache) GetVersions(ctx context.Context, org, name string, streamType types.StreamType) ([]types.Schema, error) {
	return c.store.GetVersions(ctx, org, name, streamType)
}

// Set writes through to the store and drops the cached entry.
func (c *SchemaCache) Set(ctx context.Context, org, name string, streamType types.StreamType, schema types.Schema) error {
	if err := c.store.Set(ctx, org, name, streamType, schema); err != nil {
		return err
	}
	c.invalidate(types.NewStreamKey(org, name, streamType).String())
	return nil
}

// Delete passes through to the store.
func (c *SchemaCache) Delete(ctx context.Context, org, name string, streamType types.StreamType) error {
	return c.store.Delete(ctx, org, name, streamType)
}

// List passes through to the store.
func (c *SchemaCache) List(ctx context.Context, org string, streamType *types.StreamType, withSchema bool) ([]types.StreamLocation, error) {
	return c.store.List(ctx, org, streamType, withSchema)
}

// Remove drops the cached schema for key. Removing a missing entry is a no-op.
func (c *SchemaCache) Remove(key types.StreamKey) error {
	c.invalidate(key.String())
	return nil
}

// Contains reports whether a schema for key is cached.
func (c *SchemaCache) Contains(key types.StreamKey) bool {
	return c.items.Has(key.String())
}

// Metrics returns hit/miss counters.
func (c *SchemaCache) Metrics() Metrics {
	m := c.items.Metrics()
	return Metrics{Hits: int64(m.Hits), Misses: int64(m.Misses)}
}
