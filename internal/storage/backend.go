// Package storage defines the read-only Backend interface for blob stores
// and builds the configured backend.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned (possibly wrapped) by every backend when the
// named object does not exist in the named container.
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidName is returned (wrapped) when a container or object name is
// malformed or would resolve outside its container.
var ErrInvalidName = errors.New("invalid object name")

// ObjectInfo is the metadata a backend reports for an object.
// ContentType is empty when the store does not know it.
type ObjectInfo struct {
	ContentType string
	Size        int64
}

// Backend is the interface for blob storage backends.
// Implementations handle raw object reads (S3, local filesystem, objstore buckets).
type Backend interface {
	// StatObject returns metadata for an object without downloading it.
	StatObject(ctx context.Context, container, name string) (ObjectInfo, error)

	// OpenObject opens a read stream for an object. The caller must close it.
	OpenObject(ctx context.Context, container, name string) (io.ReadCloser, ObjectInfo, error)

	// Type returns the backend type identifier ("s3", "local", "memory").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
