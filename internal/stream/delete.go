package stream

import (
	"context"
	"fmt"
	"log/slog"

	errs "github.com/arkilian/streamcatalog/internal/errors"
	"github.com/arkilian/streamcatalog/internal/metrics"
	"github.com/arkilian/streamcatalog/pkg/types"
)

// DeleteStage names a state of the delete workflow.
//
// State machine:
//
//	START -> SCHEMA_CHECKED -> COMPACTION_MARKED -> SCHEMA_DELETED -> CACHE_CLEARED -> OFFSET_DELETED -> DONE
//
// A failure moves the workflow to a terminal failed state that records the
// stage being entered. Completed stages are never rolled back: each stage is
// idempotent, so re-running the whole workflow is the recovery path.
type DeleteStage string

const (
	StageStart            DeleteStage = "start"
	StageSchemaChecked    DeleteStage = "schema_checked"
	StageCompactionMarked DeleteStage = "compaction_marked"
	StageSchemaDeleted    DeleteStage = "schema_deleted"
	StageCacheCleared     DeleteStage = "cache_cleared"
	StageOffsetDeleted    DeleteStage = "offset_deleted"
	StageDone             DeleteStage = "done"
)

// deleteStep is one gated transition of the workflow.
type deleteStep struct {
	stage DeleteStage
	run   func(ctx context.Context) error
}

// DeleteStream removes a stream's schema versions, cached schema, cached
// stats and compaction checkpoint, in that order, stopping at the first
// failure. A stream with no schema versions yields NotFound and nothing is
// mutated.
func (s *Service) DeleteStream(ctx context.Context, org, name string, streamType types.StreamType) error {
	key := types.NewStreamKey(org, name, streamType)
	log := s.logger.With("org", org, "stream_type", streamType, "stream", name)

	versions, err := s.schemas.GetVersions(ctx, org, name, streamType)
	if err != nil {
		return s.failDelete(log, StageSchemaChecked, name, err)
	}
	if len(versions) == 0 {
		metrics.ObserveDelete(metrics.ResultNotFound)
		return errs.NewNotFound(name)
	}

	steps := []deleteStep{
		{StageCompactionMarked, func(ctx context.Context) error {
			return s.compactor.MarkPendingDelete(ctx, org, name, streamType)
		}},
		{StageSchemaDeleted, func(ctx context.Context) error {
			return s.schemas.Delete(ctx, org, name, streamType)
		}},
		{StageCacheCleared, func(ctx context.Context) error {
			if err := s.schemaCache.Remove(key); err != nil {
				return fmt.Errorf("schema cache: %w", err)
			}
			if err := s.stats.Remove(key); err != nil {
				return fmt.Errorf("stats cache: %w", err)
			}
			return nil
		}},
		{StageOffsetDeleted, func(ctx context.Context) error {
			return s.compactor.DeleteOffset(ctx, org, name, streamType)
		}},
	}

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			return s.failDelete(log, step.stage, name, err)
		}
		log.Debug("delete stage complete", "stage", step.stage)
	}

	metrics.ObserveDelete(metrics.ResultOK)
	log.Info("stream deleted", "versions", len(versions))
	return nil
}

func (s *Service) failDelete(log *slog.Logger, stage DeleteStage, name string, cause error) error {
	metrics.ObserveDelete(metrics.ResultFailed)
	metrics.ObserveStageFailure(string(stage))
	log.Error("stream delete failed", "stage", stage, "err", cause)
	return errs.NewSubsystemFailure(string(stage), name, cause)
}
