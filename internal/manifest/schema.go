// Package manifest provides the SQLite-backed manifest catalog that persists
// stream schemas, compaction bookkeeping and raw stream statistics.
package manifest

// Schema contains the SQL schema definitions for the manifest catalog (manifest.db).
// Every table is keyed by (org_id, stream_type, stream_name).

// CreateStreamSchemasTableSQL creates the versioned schema table.
// schema_blob holds snappy-compressed JSON; fingerprint is the murmur3 hash of
// the uncompressed JSON and lets identical writes skip a new version.
const CreateStreamSchemasTableSQL = `
CREATE TABLE IF NOT EXISTS stream_schemas (
    org_id TEXT NOT NULL,
    stream_type TEXT NOT NULL,
    stream_name TEXT NOT NULL,
    version INTEGER NOT NULL,
    fingerprint INTEGER NOT NULL,
    schema_blob BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (org_id, stream_type, stream_name, version)
)`

// CreateStreamSchemasIndexSQL speeds up per-org listings.
const CreateStreamSchemasIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_stream_schemas_org ON stream_schemas(org_id, stream_type, stream_name)`

// CreatePendingDeletesTableSQL creates the compaction pending-deletion marks.
// A row tells the compactor to abandon work on the stream and purge its data.
const CreatePendingDeletesTableSQL = `
CREATE TABLE IF NOT EXISTS compaction_pending_deletes (
    org_id TEXT NOT NULL,
    stream_type TEXT NOT NULL,
    stream_name TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (org_id, stream_type, stream_name)
)`

// CreateCompactionOffsetsTableSQL creates the compaction checkpoint table.
const CreateCompactionOffsetsTableSQL = `
CREATE TABLE IF NOT EXISTS compaction_offsets (
    org_id TEXT NOT NULL,
    stream_type TEXT NOT NULL,
    stream_name TEXT NOT NULL,
    checkpoint INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (org_id, stream_type, stream_name)
)`

// CreateStreamStatsTableSQL creates the raw statistics table written by ingestion.
const CreateStreamStatsTableSQL = `
CREATE TABLE IF NOT EXISTS stream_stats (
    org_id TEXT NOT NULL,
    stream_type TEXT NOT NULL,
    stream_name TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT 0,
    doc_time_min INTEGER NOT NULL DEFAULT 0,
    doc_time_max INTEGER NOT NULL DEFAULT 0,
    doc_num INTEGER NOT NULL DEFAULT 0,
    file_num INTEGER NOT NULL DEFAULT 0,
    storage_size REAL NOT NULL DEFAULT 0,
    compressed_size REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (org_id, stream_type, stream_name)
)`

// AllSchemaSQL returns all SQL statements needed to initialize the manifest catalog.
func AllSchemaSQL() []string {
	return []string{
		CreateStreamSchemasTableSQL,
		CreateStreamSchemasIndexSQL,
		CreatePendingDeletesTableSQL,
		CreateCompactionOffsetsTableSQL,
		CreateStreamStatsTableSQL,
	}
}
