package compaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arkilian/streamcatalog/internal/manifest"
	"github.com/arkilian/streamcatalog/internal/metrics"
	"github.com/arkilian/streamcatalog/internal/storage"
	"github.com/arkilian/streamcatalog/pkg/types"
)

// Store is the compaction bookkeeping the purger drains.
type Store interface {
	MarkPendingDelete(ctx context.Context, org, name string, streamType types.StreamType) error
	IsDeleting(ctx context.Context, org, name string, streamType types.StreamType) (bool, error)
	ListPendingDeletes(ctx context.Context) ([]manifest.PendingDelete, error)
	ClearPendingDelete(ctx context.Context, org, name string, streamType types.StreamType) error
	DeleteOffset(ctx context.Context, org, name string, streamType types.StreamType) error
}

// StatsRemover drops the raw statistics row of a purged stream.
type StatsRemover interface {
	DeleteStats(ctx context.Context, key types.StreamKey) error
}

// dirPruner is implemented by filesystem backends that leave empty directories behind.
type dirPruner interface {
	PruneEmptyDirs(prefix string) error
}

// Purger removes the data of streams marked for deletion. Each step is
// idempotent so a stream whose purge fails is simply retried next cycle.
type Purger struct {
	store   Store
	stats   StatsRemover
	storage storage.ObjectStorage
	logger  *slog.Logger
}

// NewPurger creates a new purger.
func NewPurger(store Store, stats StatsRemover, objects storage.ObjectStorage, logger *slog.Logger) *Purger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Purger{
		store:   store,
		stats:   stats,
		storage: objects,
		logger:  logger.With("component", "compaction_purger"),
	}
}

// PurgeResult holds the outcome of a purge run.
type PurgeResult struct {
	PurgedStreams  []types.StreamKey
	DeletedObjects int
	Errors         []string
}

// PurgeAll purges every stream currently marked for deletion.
func (p *Purger) PurgeAll(ctx context.Context) (*PurgeResult, error) {
	pending, err := p.store.ListPendingDeletes(ctx)
	if err != nil {
		return nil, fmt.Errorf("compaction/purge: failed to list pending deletes: %w", err)
	}

	result := &PurgeResult{}
	for _, pd := range pending {
		if ctx.Err() != nil {
			break
		}
		n, err := p.Purge(ctx, pd.Key)
		result.DeletedObjects += n
		if err != nil {
			// Continue with other streams; this one is retried next cycle
			p.logger.Warn("stream purge failed", "stream", pd.Key.String(), "err", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", pd.Key, err))
			continue
		}
		result.PurgedStreams = append(result.PurgedStreams, pd.Key)
	}
	return result, nil
}

// Purge removes the stream's objects, statistics row and compaction offset,
// then clears its deletion mark. It returns the number of objects removed.
func (p *Purger) Purge(ctx context.Context, key types.StreamKey) (int, error) {
	prefix := storage.StreamPrefix(key)
	n, err := storage.DeletePrefix(ctx, p.storage, prefix)
	if err != nil {
		return n, fmt.Errorf("delete objects: %w", err)
	}
	if pr, ok := p.storage.(dirPruner); ok {
		if err := pr.PruneEmptyDirs(prefix); err != nil {
			p.logger.Debug("prune empty dirs failed", "prefix", prefix, "err", err)
		}
	}

	if err := p.stats.DeleteStats(ctx, key); err != nil {
		return n, fmt.Errorf("delete stats: %w", err)
	}
	if err := p.store.DeleteOffset(ctx, key.Org, key.Name, key.Type); err != nil {
		return n, fmt.Errorf("delete offset: %w", err)
	}
	if err := p.store.ClearPendingDelete(ctx, key.Org, key.Name, key.Type); err != nil {
		return n, fmt.Errorf("clear mark: %w", err)
	}

	metrics.ObservePurge(n)
	p.logger.Info("stream purged", "stream", key.String(), "objects", n)
	return n, nil
}
