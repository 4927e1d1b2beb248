// Package compaction owns the compactor's side of stream deletion: the
// pending-deletion marks the delete workflow sets, and the background purge
// that removes a marked stream's data.
package compaction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arkilian/streamcatalog/pkg/types"
)

// Config holds configuration for the purge daemon.
type Config struct {
	// CheckInterval is how often the daemon looks for streams marked for deletion.
	CheckInterval time.Duration
}

// DefaultConfig returns the default compaction configuration.
func DefaultConfig() Config {
	return Config{CheckInterval: time.Minute}
}

// Daemon runs the purger on a timer and on demand.
type Daemon struct {
	config Config
	store  Store
	purger *Purger
	logger *slog.Logger

	// wake is buffered so Trigger never blocks
	wake chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDaemon creates a new purge daemon.
func NewDaemon(config Config, store Store, purger *Purger, logger *slog.Logger) *Daemon {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		config: config,
		store:  store,
		purger: purger,
		logger: logger.With("component", "compaction_daemon"),
		wake:   make(chan struct{}, 1),
	}
}

// Start begins the purge loop. It runs until the context is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("compaction: daemon is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.run(ctx)
	return nil
}

// Stop gracefully stops the purge daemon.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	d.cancel()
	<-d.done
	d.running = false
	return nil
}

// Trigger asks the daemon to run a purge cycle as soon as possible.
func (d *Daemon) Trigger() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Daemon) run(ctx context.Context) {
	defer close(d.done)

	// Run immediately on start
	d.runOnce(ctx)

	ticker := time.NewTicker(d.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runOnce(ctx)
		case <-d.wake:
			d.runOnce(ctx)
		}
	}
}

func (d *Daemon) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	result, err := d.purger.PurgeAll(ctx)
	if err != nil {
		d.logger.Error("purge cycle failed", "err", err)
		return
	}
	if len(result.PurgedStreams) > 0 || len(result.Errors) > 0 {
		d.logger.Info("purge cycle complete",
			"purged", len(result.PurgedStreams),
			"objects", result.DeletedObjects,
			"errors", len(result.Errors))
	}
}

// MarkPendingDelete records the deletion intent. Marked streams are skipped
// by compaction and purged by the daemon.
func (d *Daemon) MarkPendingDelete(ctx context.Context, org, name string, streamType types.StreamType) error {
	return d.store.MarkPendingDelete(ctx, org, name, streamType)
}

// IsDeleting reports whether the stream is marked for deletion.
func (d *Daemon) IsDeleting(ctx context.Context, org, name string, streamType types.StreamType) (bool, error) {
	return d.store.IsDeleting(ctx, org, name, streamType)
}

// DeleteOffset removes the stream's compaction checkpoint. It is the last
// step of a stream delete, so it also wakes the daemon to purge the data.
func (d *Daemon) DeleteOffset(ctx context.Context, org, name string, streamType types.StreamType) error {
	if err := d.store.DeleteOffset(ctx, org, name, streamType); err != nil {
		return err
	}
	d.Trigger()
	return nil
}
