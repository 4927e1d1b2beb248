// Package stream implements the stream metadata service: the read path that
// composes schema, settings and normalized statistics into descriptors, the
// settings write path, and the sequenced delete workflow that tears a stream
// down across the schema store, the local caches and the compaction subsystem.
package stream
