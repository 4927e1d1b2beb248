package stream

import (
	"github.com/arkilian/streamcatalog/internal/settings"
	"github.com/arkilian/streamcatalog/pkg/types"
)

// Storage backend labels reported on every descriptor.
const (
	StorageLocal = "disk"
	StorageS3    = "s3"
)

// Backend reports whether the deployment stores data on local disk.
type Backend interface {
	IsLocalDisk() bool
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func() bool

// IsLocalDisk calls f.
func (f BackendFunc) IsLocalDisk() bool { return f() }

// Builder composes the public StreamDescriptor.
type Builder struct {
	backend Backend
}

// NewBuilder creates a descriptor builder.
func NewBuilder(backend Backend) *Builder {
	return &Builder{backend: backend}
}

// Build derives a descriptor from a schema and optional raw-or-normalized stats.
// A nil stats pointer means "no usage yet" and yields the default stats.
func (b *Builder) Build(name string, streamType types.StreamType, schema types.Schema, stats *types.StreamStats) (types.StreamDescriptor, error) {
	props := make([]types.StreamProperty, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		props = append(props, types.StreamProperty{Name: f.Name, Type: f.Type})
	}

	meta := schema.CloneMetadata()
	delete(meta, types.MetadataCreatedAtKey)
	decoded, err := settings.Decode(meta)
	if err != nil {
		return types.StreamDescriptor{}, err
	}

	var st types.StreamStats
	if stats != nil {
		st = *stats
	}

	return types.StreamDescriptor{
		Name:        name,
		StreamType:  streamType,
		StorageType: b.storageLabel(),
		Schema:      props,
		Stats:       st,
		Settings:    decoded,
	}, nil
}

func (b *Builder) storageLabel() string {
	if b.backend != nil && b.backend.IsLocalDisk() {
		return StorageLocal
	}
	return StorageS3
}
