// Package settings encodes and decodes the structured stream configuration
// carried in a schema's metadata map under the "settings" key.
//
// Decoding is lenient field by field: a missing key, a type mismatch or a bad
// element yields that field's default. A JSON null blob also decodes to the
// defaults. Any other blob that is not a JSON object (unparseable text, an
// array, a string, a number) is reported as malformed, so a stream's
// configuration is never lost silently.
package settings

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	errs "github.com/arkilian/streamcatalog/internal/errors"
	"github.com/arkilian/streamcatalog/pkg/types"
)

// Keys inside the settings blob.
const (
	keyPartitionKeys        = "partition_keys"
	keyFullTextSearchKeys   = "full_text_search_keys"
	keySkipSchemaValidation = "skip_schema_validation"
	keyDataRetention        = "data_retention"
)

// partitionLabelPrefix is the label prefix used when encoding partition keys.
// Decoding orders partition keys by label, so "L10" sorts before "L2".
const partitionLabelPrefix = "L"

// wireSettings is the serialized form written into metadata.
type wireSettings struct {
	PartitionKeys        map[string]string `json:"partition_keys"`
	FullTextSearchKeys   []string          `json:"full_text_search_keys"`
	SkipSchemaValidation bool              `json:"skip_schema_validation"`
	DataRetention        int64             `json:"data_retention"`
}

// Default returns the all-default settings value.
func Default() types.StreamSettings {
	return types.StreamSettings{
		PartitionKeys:      []string{},
		FullTextSearchKeys: []string{},
	}
}

// Decode extracts StreamSettings from schema metadata.
func Decode(metadata map[string]string) (types.StreamSettings, error) {
	out := Default()

	raw, ok := metadata[types.MetadataSettingsKey]
	if !ok {
		return out, nil
	}

	var blob map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		return Default(), errs.NewMalformedSettings(err)
	}

	if v, ok := blob[keyPartitionKeys]; ok {
		out.PartitionKeys = decodePartitionKeys(v)
	}
	if v, ok := blob[keyFullTextSearchKeys]; ok {
		out.FullTextSearchKeys = decodeStringArray(v)
	}
	if v, ok := blob[keySkipSchemaValidation]; ok {
		var b bool
		if json.Unmarshal(v, &b) == nil {
			out.SkipSchemaValidation = b
		}
	}
	if v, ok := blob[keyDataRetention]; ok {
		var n int64
		if json.Unmarshal(v, &n) == nil {
			out.DataRetention = n
		}
	}

	return out, nil
}

// decodePartitionKeys reads an object of label → field name and returns the
// field names ordered by label. Stored blobs depend on this ordering.
func decodePartitionKeys(raw json.RawMessage) []string {
	var labelled map[string]json.RawMessage
	if err := json.Unmarshal(raw, &labelled); err != nil || labelled == nil {
		return []string{}
	}

	labels := make([]string, 0, len(labelled))
	for label := range labelled {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	keys := make([]string, 0, len(labels))
	for _, label := range labels {
		var name string
		if json.Unmarshal(labelled[label], &name) == nil {
			keys = append(keys, name)
		}
	}
	return keys
}

func decodeStringArray(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

// Encode returns a copy of metadata with the settings blob inserted or
// overwritten. created_at is stamped with now (unix microseconds) only when
// the metadata does not already carry it.
func Encode(metadata map[string]string, s types.StreamSettings, now time.Time) (map[string]string, error) {
	wire := wireSettings{
		PartitionKeys:        make(map[string]string, len(s.PartitionKeys)),
		FullTextSearchKeys:   s.FullTextSearchKeys,
		SkipSchemaValidation: s.SkipSchemaValidation,
		DataRetention:        s.DataRetention,
	}
	for i, key := range s.PartitionKeys {
		wire.PartitionKeys[partitionLabelPrefix+strconv.Itoa(i)] = key
	}
	if wire.FullTextSearchKeys == nil {
		wire.FullTextSearchKeys = []string{}
	}

	blob, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("settings: failed to marshal settings: %w", err)
	}

	out := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		out[k] = v
	}
	out[types.MetadataSettingsKey] = string(blob)
	if _, ok := out[types.MetadataCreatedAtKey]; !ok {
		out[types.MetadataCreatedAtKey] = strconv.FormatInt(now.UnixMicro(), 10)
	}
	return out, nil
}

// FullTextSearchKeys returns only the full-text-search fields configured on a schema.
func FullTextSearchKeys(schema types.Schema) ([]string, error) {
	s, err := Decode(schema.Metadata)
	if err != nil {
		return nil, err
	}
	return s.FullTextSearchKeys, nil
}
