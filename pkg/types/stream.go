package types

import (
	"fmt"
	"strings"
)

// StreamType is the kind of records a stream carries.
type StreamType string

const (
	StreamTypeLogs    StreamType = "logs"
	StreamTypeMetrics StreamType = "metrics"
	StreamTypeTraces  StreamType = "traces"
)

// ParseStreamType parses a stream type name. An empty string defaults to logs.
func ParseStreamType(s string) (StreamType, error) {
	switch StreamType(strings.ToLower(strings.TrimSpace(s))) {
	case "", StreamTypeLogs:
		return StreamTypeLogs, nil
	case StreamTypeMetrics:
		return StreamTypeMetrics, nil
	case StreamTypeTraces:
		return StreamTypeTraces, nil
	default:
		return "", fmt.Errorf("unknown stream type %q", s)
	}
}

// String returns the stream type name.
func (t StreamType) String() string {
	return string(t)
}

// StreamKey identifies a stream within the whole system.
type StreamKey struct {
	Org  string
	Type StreamType
	Name string
}

// NewStreamKey builds a StreamKey.
func NewStreamKey(org, name string, streamType StreamType) StreamKey {
	return StreamKey{Org: org, Type: streamType, Name: name}
}

// String returns the cache key form "org/type/name".
func (k StreamKey) String() string {
	return k.Org + "/" + string(k.Type) + "/" + k.Name
}

// StreamSettings is the structured configuration decoded from schema metadata.
type StreamSettings struct {
	PartitionKeys        []string `json:"partition_keys"`
	FullTextSearchKeys   []string `json:"full_text_search_keys"`
	SkipSchemaValidation bool     `json:"skip_schema_validation"`
	DataRetention        int64    `json:"data_retention"`
}

// StreamStats holds usage counters for a stream.
// Sizes are in bytes when raw and in MiB once normalized.
type StreamStats struct {
	CreatedAt      int64   `json:"created_at"`
	DocTimeMin     int64   `json:"doc_time_min"`
	DocTimeMax     int64   `json:"doc_time_max"`
	DocNum         int64   `json:"doc_num"`
	FileNum        int64   `json:"file_num"`
	StorageSize    float64 `json:"storage_size"`
	CompressedSize float64 `json:"compressed_size"`
}

// IsZero reports whether the stats equal the default value.
func (s StreamStats) IsZero() bool {
	return s == StreamStats{}
}

// StreamProperty is a (name, type) pair derived from a schema field.
type StreamProperty struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// StreamDescriptor is the public representation of a stream.
type StreamDescriptor struct {
	Name        string           `json:"name"`
	StreamType  StreamType       `json:"stream_type"`
	StorageType string           `json:"storage_type"`
	Schema      []StreamProperty `json:"schema"`
	Stats       StreamStats      `json:"stats"`
	Settings    StreamSettings   `json:"settings"`
}

// StreamLocation is one entry of a schema store listing.
// Schema is only populated when the listing was asked to preload schemas.
type StreamLocation struct {
	Org    string     `json:"org"`
	Name   string     `json:"name"`
	Type   StreamType `json:"stream_type"`
	Schema Schema     `json:"schema"`
}

// Key returns the StreamKey of the location.
func (l StreamLocation) Key() StreamKey {
	return NewStreamKey(l.Org, l.Name, l.Type)
}

// StatsRecord pairs raw stats with the stream they belong to.
type StatsRecord struct {
	Key   StreamKey
	Stats StreamStats
}
