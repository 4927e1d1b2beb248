package types

// Metadata keys with reserved meaning inside a schema's metadata map.
const (
	// MetadataSettingsKey holds the serialized StreamSettings blob.
	MetadataSettingsKey = "settings"

	// MetadataCreatedAtKey holds the first-write timestamp (unix microseconds).
	MetadataCreatedAtKey = "created_at"
)

// Schema defines the structure of a stream's records.
// A schema with no fields is the store convention for "stream does not exist".
type Schema struct {
	// Fields are the declared fields, in declaration order
	Fields []Field `json:"fields"`

	// Metadata is an opaque string map attached to the schema
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Field defines a single field in the schema.
type Field struct {
	// Name is the field name
	Name string `json:"name"`

	// Type is the declared primitive type, e.g. Utf8, Int64, Float64, Boolean
	Type string `json:"type"`
}

// IsEmpty reports whether the schema has no fields.
func (s Schema) IsEmpty() bool {
	return len(s.Fields) == 0
}

// CloneMetadata returns a copy of the schema metadata that is safe to mutate.
func (s Schema) CloneMetadata() map[string]string {
	out := make(map[string]string, len(s.Metadata)+2)
	for k, v := range s.Metadata {
		out[k] = v
	}
	return out
}

// WithMetadata returns a copy of the schema carrying the given metadata.
func (s Schema) WithMetadata(metadata map[string]string) Schema {
	fields := make([]Field, len(s.Fields))
	copy(fields, s.Fields)
	return Schema{Fields: fields, Metadata: metadata}
}
