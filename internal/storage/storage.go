// Package storage provides the object storage backends that hold stream data.
// The catalog never reads stream data; it only enumerates and purges the
// objects of deleted streams.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/arkilian/streamcatalog/pkg/types"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts the object storage a deployment writes stream data to.
// Implementations are the local filesystem and S3.
type ObjectStorage interface {
	// Put writes data to objectPath, replacing any existing object.
	Put(ctx context.Context, objectPath string, data []byte) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// BatchDeleter is implemented by backends that can remove many objects per call.
type BatchDeleter interface {
	DeleteObjects(ctx context.Context, objectPaths []string) error
}

// StreamPrefix returns the object prefix holding all data of a stream.
func StreamPrefix(key types.StreamKey) string {
	return fmt.Sprintf("streams/%s/%s/%s/", key.Org, key.Type, key.Name)
}

// DeletePrefix removes every object under prefix and returns how many were
// listed for removal. It is safe to repeat after a partial failure.
func DeletePrefix(ctx context.Context, store ObjectStorage, prefix string) (int, error) {
	objects, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	if len(objects) == 0 {
		return 0, nil
	}

	if bd, ok := store.(BatchDeleter); ok {
		if err := bd.DeleteObjects(ctx, objects); err != nil {
			return 0, err
		}
		return len(objects), nil
	}

	for i, obj := range objects {
		if err := store.Delete(ctx, obj); err != nil {
			return i, err
		}
	}
	return len(objects), nil
}
