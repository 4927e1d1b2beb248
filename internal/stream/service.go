package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	errs "github.com/arkilian/streamcatalog/internal/errors"
	"github.com/arkilian/streamcatalog/internal/metrics"
	"github.com/arkilian/streamcatalog/internal/settings"
	"github.com/arkilian/streamcatalog/internal/stats"
	"github.com/arkilian/streamcatalog/pkg/types"
)

// SchemaStore is the versioned schema persistence the service reads and tears down.
type SchemaStore interface {
	Get(ctx context.Context, org, name string, streamType types.StreamType) (types.Schema, error)
	GetVersions(ctx context.Context, org, name string, streamType types.StreamType) ([]types.Schema, error)
	Set(ctx context.Context, org, name string, streamType types.StreamType, schema types.Schema) error
	Delete(ctx context.Context, org, name string, streamType types.StreamType) error
	List(ctx context.Context, org string, streamType *types.StreamType, withSchema bool) ([]types.StreamLocation, error)
}

// StatsCache holds raw usage counters maintained by ingestion.
type StatsCache interface {
	Get(key types.StreamKey) types.StreamStats
	Remove(key types.StreamKey) error
}

// SchemaCache is the in-process cache of latest schemas.
type SchemaCache interface {
	Remove(key types.StreamKey) error
}

// Compactor is the compaction subsystem's deletion and checkpoint surface.
type Compactor interface {
	MarkPendingDelete(ctx context.Context, org, name string, streamType types.StreamType) error
	IsDeleting(ctx context.Context, org, name string, streamType types.StreamType) (bool, error)
	DeleteOffset(ctx context.Context, org, name string, streamType types.StreamType) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Schemas     SchemaStore
	SchemaCache SchemaCache
	Stats       StatsCache
	Compactor   Compactor
	Backend     Backend
	Logger      *slog.Logger

	// Now stamps created_at on first settings write. Defaults to time.Now.
	Now func() time.Time
}

// Service is the stream metadata service. It holds no mutable state of its
// own; every call is request scoped.
type Service struct {
	schemas     SchemaStore
	schemaCache SchemaCache
	stats       StatsCache
	compactor   Compactor
	builder     *Builder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a stream metadata service.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		schemas:     d.Schemas,
		schemaCache: d.SchemaCache,
		stats:       d.Stats,
		compactor:   d.Compactor,
		builder:     NewBuilder(d.Backend),
		logger:      logger.With("component", "stream_service"),
		now:         now,
	}
}

// GetStream returns the descriptor of a single stream.
// A stream whose latest schema has no fields does not exist.
func (s *Service) GetStream(ctx context.Context, org, name string, streamType types.StreamType) (types.StreamDescriptor, error) {
	schema, err := s.schemas.Get(ctx, org, name, streamType)
	if err != nil {
		metrics.ObserveRead("get", metrics.ResultFailed)
		return types.StreamDescriptor{}, errs.NewInternalError(fmt.Sprintf("failed to load schema for stream [%s]", name), err)
	}
	if schema.IsEmpty() {
		metrics.ObserveRead("get", metrics.ResultNotFound)
		return types.StreamDescriptor{}, errs.NewNotFound(name)
	}

	normalized := stats.Normalize(s.stats.Get(types.NewStreamKey(org, name, streamType)))
	desc, err := s.builder.Build(name, streamType, schema, &normalized)
	if err != nil {
		metrics.ObserveRead("get", metrics.ResultMalformed)
		return types.StreamDescriptor{}, err
	}

	metrics.ObserveRead("get", metrics.ResultOK)
	return desc, nil
}

// ListStreams returns descriptors for every stream of org, optionally limited
// to one stream type, in the order the schema store lists them. Streams with
// no recorded usage carry the default stats.
func (s *Service) ListStreams(ctx context.Context, org string, streamType *types.StreamType, fetchSchema bool) ([]types.StreamDescriptor, error) {
	locations, err := s.schemas.List(ctx, org, streamType, fetchSchema)
	if err != nil {
		metrics.ObserveRead("list", metrics.ResultFailed)
		return nil, errs.NewInternalError("failed to list streams", err)
	}

	out := make([]types.StreamDescriptor, 0, len(locations))
	for _, loc := range locations {
		var st *types.StreamStats
		if raw := s.stats.Get(loc.Key()); !raw.IsZero() {
			normalized := stats.Normalize(raw)
			st = &normalized
		}

		desc, err := s.builder.Build(loc.Name, loc.Type, loc.Schema, st)
		if err != nil {
			metrics.ObserveRead("list", metrics.ResultMalformed)
			return nil, fmt.Errorf("stream [%s]: %w", loc.Name, err)
		}
		out = append(out, desc)
	}

	metrics.ObserveRead("list", metrics.ResultOK)
	return out, nil
}

// SaveSettings writes settings into the stream's schema metadata as a new
// schema version. Streams pending deletion reject the write.
func (s *Service) SaveSettings(ctx context.Context, org, name string, streamType types.StreamType, st types.StreamSettings) error {
	deleting, err := s.compactor.IsDeleting(ctx, org, name, streamType)
	if err != nil {
		metrics.ObserveSettingsWrite(metrics.ResultFailed)
		return errs.NewInternalError(fmt.Sprintf("failed to check deletion state of stream [%s]", name), err)
	}
	if deleting {
		metrics.ObserveSettingsWrite(metrics.ResultConflict)
		return errs.NewConflict(name)
	}

	schema, err := s.schemas.Get(ctx, org, name, streamType)
	if err != nil {
		metrics.ObserveSettingsWrite(metrics.ResultFailed)
		return errs.NewInternalError(fmt.Sprintf("failed to load schema for stream [%s]", name), err)
	}
	if schema.IsEmpty() {
		metrics.ObserveSettingsWrite(metrics.ResultNotFound)
		return errs.NewNotFound(name)
	}

	meta, err := settings.Encode(schema.Metadata, st, s.now())
	if err != nil {
		metrics.ObserveSettingsWrite(metrics.ResultFailed)
		return errs.NewInternalError("failed to encode settings", err)
	}

	s.logger.Info("saving stream settings", "org", org, "stream_type", streamType, "stream", name)
	if err := s.schemas.Set(ctx, org, name, streamType, schema.WithMetadata(meta)); err != nil {
		metrics.ObserveSettingsWrite(metrics.ResultFailed)
		return errs.NewInternalError(fmt.Sprintf("failed to save settings for stream [%s]", name), err)
	}

	metrics.ObserveSettingsWrite(metrics.ResultOK)
	return nil
}
