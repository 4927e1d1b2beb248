package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/arkilian/streamcatalog/pkg/types"
)

// PendingDelete is a stream the compactor must stop working on and purge.
type PendingDelete struct {
	Key      types.StreamKey
	MarkedAt time.Time
}

// CompactionStore holds the compactor's bookkeeping: pending-deletion marks
// and per-stream checkpoints. Every mutation is idempotent.
type CompactionStore struct {
	c *Catalog
}

// NewCompactionStore creates a compaction store using the catalog's database.
func NewCompactionStore(c *Catalog) *CompactionStore {
	return &CompactionStore{c: c}
}

// MarkPendingDelete records that the stream is being deleted. Marking an
// already-marked stream keeps the original mark.
func (s *CompactionStore) MarkPendingDelete(ctx context.Context, org, name string, streamType types.StreamType) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	_, err := s.c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO compaction_pending_deletes (org_id, stream_type, stream_name, created_at)
		 VALUES (?, ?, ?, ?)`,
		org, string(streamType), name, time.Now().UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to mark %s/%s/%s for deletion: %w", org, streamType, name, err)
	}
	return nil
}

// IsDeleting reports whether the stream carries a pending-deletion mark.
func (s *CompactionStore) IsDeleting(ctx context.Context, org, name string, streamType types.StreamType) (bool, error) {
	var one int
	err := s.c.readDB.QueryRowContext(ctx,
		`SELECT 1 FROM compaction_pending_deletes
		 WHERE org_id = ? AND stream_type = ? AND stream_name = ?`,
		org, string(streamType), name,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("manifest: failed to check deletion mark: %w", err)
	}
	return true, nil
}

// ListPendingDeletes returns every marked stream, oldest mark first.
func (s *CompactionStore) ListPendingDeletes(ctx context.Context) ([]PendingDelete, error) {
	rows, err := s.c.readDB.QueryContext(ctx,
		`SELECT org_id, stream_type, stream_name, created_at
		 FROM compaction_pending_deletes ORDER BY created_at, org_id, stream_type, stream_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to list pending deletes: %w", err)
	}
	defer rows.Close()

	var out []PendingDelete
	for rows.Next() {
		var (
			org, st, name string
			markedAt      int64
		)
		if err := rows.Scan(&org, &st, &name, &markedAt); err != nil {
			return nil, fmt.Errorf("manifest: failed to scan pending delete: %w", err)
		}
		out = append(out, PendingDelete{
			Key:      types.NewStreamKey(org, name, types.StreamType(st)),
			MarkedAt: time.UnixMicro(markedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: error iterating pending deletes: %w", err)
	}
	return out, nil
}

// ClearPendingDelete removes the stream's deletion mark.
func (s *CompactionStore) ClearPendingDelete(ctx context.Context, org, name string, streamType types.StreamType) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	_, err := s.c.db.ExecContext(ctx,
		"DELETE FROM compaction_pending_deletes WHERE org_id = ? AND stream_type = ? AND stream_name = ?",
		org, string(streamType), name,
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to clear deletion mark: %w", err)
	}
	return nil
}

// SetOffset stores the compactor checkpoint for the stream.
func (s *CompactionStore) SetOffset(ctx context.Context, org, name string, streamType types.StreamType, offset int64) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	_, err := s.c.db.ExecContext(ctx,
		`INSERT INTO compaction_offsets (org_id, stream_type, stream_name, checkpoint, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (org_id, stream_type, stream_name)
		 DO UPDATE SET checkpoint = excluded.checkpoint, updated_at = excluded.updated_at`,
		org, string(streamType), name, offset, time.Now().UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to set compaction offset: %w", err)
	}
	return nil
}

// GetOffset returns the checkpoint and whether one exists.
func (s *CompactionStore) GetOffset(ctx context.Context, org, name string, streamType types.StreamType) (int64, bool, error) {
	var offset int64
	err := s.c.readDB.QueryRowContext(ctx,
		`SELECT checkpoint FROM compaction_offsets
		 WHERE org_id = ? AND stream_type = ? AND stream_name = ?`,
		org, string(streamType), name,
	).Scan(&offset)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("manifest: failed to get compaction offset: %w", err)
	}
	return offset, true, nil
}

// DeleteOffset removes the checkpoint. Deleting a missing offset is a no-op.
func (s *CompactionStore) DeleteOffset(ctx context.Context, org, name string, streamType types.StreamType) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	_, err := s.c.db.ExecContext(ctx,
		"DELETE FROM compaction_offsets WHERE org_id = ? AND stream_type = ? AND stream_name = ?",
		org, string(streamType), name,
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to delete compaction offset: %w", err)
	}
	return nil
}
