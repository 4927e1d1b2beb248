package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/arkilian/streamcatalog/pkg/types"
)

// Source supplies the authoritative raw counters the cache is refreshed from.
type Source interface {
	ListStats(ctx context.Context) ([]types.StatsRecord, error)
}

// Cache holds raw per-stream statistics keyed by "org/type/name".
// Entries never expire; they are replaced by Refresh or removed explicitly.
type Cache struct {
	items *ttlcache.Cache[string, types.StreamStats]
}

// NewCache creates an empty stats cache.
func NewCache() *Cache {
	return &Cache{
		items: ttlcache.New[string, types.StreamStats](
			ttlcache.WithTTL[string, types.StreamStats](ttlcache.NoTTL),
			ttlcache.WithDisableTouchOnHit[string, types.StreamStats](),
		),
	}
}

// Get returns the raw stats for a stream, or the default value when none are cached.
func (c *Cache) Get(key types.StreamKey) types.StreamStats {
	item := c.items.Get(key.String())
	if item == nil {
		return types.StreamStats{}
	}
	return item.Value()
}

// Set stores raw stats for a stream.
func (c *Cache) Set(key types.StreamKey, s types.StreamStats) {
	c.items.Set(key.String(), s, ttlcache.NoTTL)
}

// Remove drops the cached stats for a stream. Removing a missing entry is a no-op.
func (c *Cache) Remove(key types.StreamKey) error {
	c.items.Delete(key.String())
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.items.Len()
}

// Refresh replaces the cache contents with the records from src.
func (c *Cache) Refresh(ctx context.Context, src Source) error {
	records, err := src.ListStats(ctx)
	if err != nil {
		return fmt.Errorf("stats: failed to list stats: %w", err)
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		k := r.Key.String()
		seen[k] = struct{}{}
		c.items.Set(k, r.Stats, ttlcache.NoTTL)
	}
	for _, k := range c.items.Keys() {
		if _, ok := seen[k]; !ok {
			c.items.Delete(k)
		}
	}
	return nil
}

// Refresher periodically reloads a Cache from a Source.
type Refresher struct {
	cache    *Cache
	source   Source
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRefresher creates a refresher. A non-positive interval defaults to 30s.
func NewRefresher(cache *Cache, source Source, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Refresher{
		cache:    cache,
		source:   source,
		interval: interval,
		logger:   logger.With("component", "stats_refresher"),
	}
}

// Start begins the refresh loop. The cache is loaded once before Start returns.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("stats: refresher is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.done = make(chan struct{})
	r.mu.Unlock()

	r.refreshOnce(ctx)
	go r.run(ctx)
	return nil
}

// Stop stops the refresh loop and waits for it to exit.
func (r *Refresher) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.cancel()
	<-r.done
	r.running = false
	return nil
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshOnce(ctx)
		}
	}
}

func (r *Refresher) refreshOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := r.cache.Refresh(ctx, r.source); err != nil {
		r.logger.Warn("stats refresh failed", "err", err)
		return
	}
	r.logger.Debug("stats refreshed", "entries", r.cache.Len())
}
