package manifest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"

	"github.com/arkilian/streamcatalog/pkg/types"
)

// SchemaStore persists versioned stream schemas in the manifest catalog.
// A stream with no stored versions reads back as the empty schema.
type SchemaStore struct {
	c *Catalog
}

// NewSchemaStore creates a schema store using the catalog's database.
func NewSchemaStore(c *Catalog) *SchemaStore {
	return &SchemaStore{c: c}
}

// Get returns the latest schema version, or an empty schema if the stream does not exist.
func (s *SchemaStore) Get(ctx context.Context, org, name string, streamType types.StreamType) (types.Schema, error) {
	var blob []byte
	err := s.c.readDB.QueryRowContext(ctx,
		`SELECT schema_blob FROM stream_schemas
		 WHERE org_id = ? AND stream_type = ? AND stream_name = ?
		 ORDER BY version DESC LIMIT 1`,
		org, string(streamType), name,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return types.Schema{}, nil
	}
	if err != nil {
		return types.Schema{}, fmt.Errorf("manifest: failed to get schema %s/%s/%s: %w", org, streamType, name, err)
	}
	return decodeSchema(blob)
}

// GetVersions returns every stored version in ascending version order.
func (s *SchemaStore) GetVersions(ctx context.Context, org, name string, streamType types.StreamType) ([]types.Schema, error) {
	rows, err := s.c.readDB.QueryContext(ctx,
		`SELECT schema_blob FROM stream_schemas
		 WHERE org_id = ? AND stream_type = ? AND stream_name = ?
		 ORDER BY version ASC`,
		org, string(streamType), name,
	)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to list schema versions: %w", err)
	}
	defer rows.Close()

	var out []types.Schema
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("manifest: failed to scan schema version: %w", err)
		}
		schema, err := decodeSchema(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, schema)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: error iterating schema versions: %w", err)
	}
	return out, nil
}

// Set stores schema as a new version. Writing a schema identical to the
// latest version is a no-op.
func (s *SchemaStore) Set(ctx context.Context, org, name string, streamType types.StreamType, schema types.Schema) error {
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("manifest: failed to marshal schema: %w", err)
	}
	fingerprint := int64(murmur3.Sum64(raw))

	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	tx, err := s.c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var version, latestFingerprint int64
	err = tx.QueryRowContext(ctx,
		`SELECT version, fingerprint FROM stream_schemas
		 WHERE org_id = ? AND stream_type = ? AND stream_name = ?
		 ORDER BY version DESC LIMIT 1`,
		org, string(streamType), name,
	).Scan(&version, &latestFingerprint)
	switch {
	case err == sql.ErrNoRows:
		version = 0
	case err != nil:
		return fmt.Errorf("manifest: failed to read latest schema version: %w", err)
	case latestFingerprint == fingerprint:
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO stream_schemas (org_id, stream_type, stream_name, version, fingerprint, schema_blob, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		org, string(streamType), name, version+1, fingerprint, snappy.Encode(nil, raw), time.Now().UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to insert schema version %d: %w", version+1, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("manifest: failed to commit schema version: %w", err)
	}
	return nil
}

// Delete removes every version of the stream's schema. Deleting a missing stream is a no-op.
func (s *SchemaStore) Delete(ctx context.Context, org, name string, streamType types.StreamType) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	_, err := s.c.db.ExecContext(ctx,
		"DELETE FROM stream_schemas WHERE org_id = ? AND stream_type = ? AND stream_name = ?",
		org, string(streamType), name,
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to delete schema %s/%s/%s: %w", org, streamType, name, err)
	}
	return nil
}

// List returns the streams of org ordered by type then name. When streamType
// is non-nil only that type is listed; withSchema loads each latest schema.
func (s *SchemaStore) List(ctx context.Context, org string, streamType *types.StreamType, withSchema bool) ([]types.StreamLocation, error) {
	var (
		where strings.Builder
		args  = []interface{}{org}
	)
	where.WriteString("org_id = ?")
	if streamType != nil {
		where.WriteString(" AND stream_type = ?")
		args = append(args, string(*streamType))
	}

	var query string
	if withSchema {
		query = `SELECT s.stream_type, s.stream_name, s.schema_blob
			FROM stream_schemas s
			JOIN (
				SELECT org_id, stream_type, stream_name, MAX(version) AS version
				FROM stream_schemas WHERE ` + where.String() + `
				GROUP BY org_id, stream_type, stream_name
			) latest
			ON s.org_id = latest.org_id AND s.stream_type = latest.stream_type
			AND s.stream_name = latest.stream_name AND s.version = latest.version
			ORDER BY s.stream_type, s.stream_name`
	} else {
		query = `SELECT DISTINCT stream_type, stream_name, NULL
			FROM stream_schemas WHERE ` + where.String() + `
			ORDER BY stream_type, stream_name`
	}

	rows, err := s.c.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to list streams: %w", err)
	}
	defer rows.Close()

	var out []types.StreamLocation
	for rows.Next() {
		var (
			st, name string
			blob     []byte
		)
		if err := rows.Scan(&st, &name, &blob); err != nil {
			return nil, fmt.Errorf("manifest: failed to scan stream: %w", err)
		}
		loc := types.StreamLocation{Org: org, Name: name, Type: types.StreamType(st)}
		if withSchema {
			if loc.Schema, err = decodeSchema(blob); err != nil {
				return nil, err
			}
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: error iterating streams: %w", err)
	}
	return out, nil
}

func decodeSchema(blob []byte) (types.Schema, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return types.Schema{}, fmt.Errorf("manifest: snappy decompress failed: %w", err)
	}
	var schema types.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return types.Schema{}, fmt.Errorf("manifest: failed to unmarshal schema: %w", err)
	}
	return schema, nil
}
