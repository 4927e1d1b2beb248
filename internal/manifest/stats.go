package manifest

import (
	"context"
	"fmt"

	"github.com/arkilian/streamcatalog/pkg/types"
)

// StatsStore holds raw per-stream statistics. Ingestion owns the writes; the
// catalog only reads them and removes them once a stream is purged.
type StatsStore struct {
	c *Catalog
}

// NewStatsStore creates a stats store using the catalog's database.
func NewStatsStore(c *Catalog) *StatsStore {
	return &StatsStore{c: c}
}

// UpsertStats replaces the stream's statistics row.
func (s *StatsStore) UpsertStats(ctx context.Context, key types.StreamKey, st types.StreamStats) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	_, err := s.c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO stream_stats (
			org_id, stream_type, stream_name, created_at, doc_time_min, doc_time_max,
			doc_num, file_num, storage_size, compressed_size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.Org, string(key.Type), key.Name, st.CreatedAt, st.DocTimeMin, st.DocTimeMax,
		st.DocNum, st.FileNum, st.StorageSize, st.CompressedSize,
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to upsert stats for %s: %w", key, err)
	}
	return nil
}

// ListStats returns every statistics row.
func (s *StatsStore) ListStats(ctx context.Context) ([]types.StatsRecord, error) {
	rows, err := s.c.readDB.QueryContext(ctx,
		`SELECT org_id, stream_type, stream_name, created_at, doc_time_min, doc_time_max,
			doc_num, file_num, storage_size, compressed_size
		 FROM stream_stats ORDER BY org_id, stream_type, stream_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to list stats: %w", err)
	}
	defer rows.Close()

	var out []types.StatsRecord
	for rows.Next() {
		var (
			org, st, name string
			rec           types.StatsRecord
		)
		if err := rows.Scan(&org, &st, &name,
			&rec.Stats.CreatedAt, &rec.Stats.DocTimeMin, &rec.Stats.DocTimeMax,
			&rec.Stats.DocNum, &rec.Stats.FileNum, &rec.Stats.StorageSize, &rec.Stats.CompressedSize,
		); err != nil {
			return nil, fmt.Errorf("manifest: failed to scan stats: %w", err)
		}
		rec.Key = types.NewStreamKey(org, name, types.StreamType(st))
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: error iterating stats: %w", err)
	}
	return out, nil
}

// DeleteStats removes the stream's statistics row if present.
func (s *StatsStore) DeleteStats(ctx context.Context, key types.StreamKey) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	_, err := s.c.db.ExecContext(ctx,
		"DELETE FROM stream_stats WHERE org_id = ? AND stream_type = ? AND stream_name = ?",
		key.Org, string(key.Type), key.Name,
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to delete stats for %s: %w", key, err)
	}
	return nil
}
