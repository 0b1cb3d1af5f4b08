// Package bucket adapts a thanos objstore.Bucket to storage.Backend.
// Containers become key prefixes, so container "docs" and name "a/b.txt"
// read the object "docs/a/b.txt".
package bucket

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/thanos-io/objstore"

	"github.com/promptfunc/promptfunc/internal/metrics"
	"github.com/promptfunc/promptfunc/internal/storage"
)

// Backend implements storage.Backend over an objstore.Bucket.
type Backend struct {
	bucket   objstore.Bucket
	typeName string
}

// New wraps bkt. typeName is reported by Type and used as the metrics label.
func New(bkt objstore.Bucket, typeName string) *Backend {
	return &Backend{bucket: bkt, typeName: typeName}
}

// NewInMemory returns a backend over an empty in-memory bucket.
func NewInMemory() *Backend {
	return New(objstore.NewInMemBucket(), "memory")
}

// Bucket exposes the wrapped bucket, mainly for seeding in tests and tools.
func (b *Backend) Bucket() objstore.Bucket {
	return b.bucket
}

// objectKey joins container and name, refusing names that resolve outside
// the container prefix.
func objectKey(container, name string) (string, error) {
	if container == "" || strings.ContainsAny(container, `/\`) || container == "." || container == ".." {
		return "", fmt.Errorf("container %q: %w", container, storage.ErrInvalidName)
	}
	key := path.Join(container, name)
	if !strings.HasPrefix(key, container+"/") {
		return "", fmt.Errorf("object name %q escapes container %q: %w", name, container, storage.ErrInvalidName)
	}
	return key, nil
}

func (b *Backend) wrapErr(op, container, name string, err error) error {
	if b.bucket.IsObjNotFoundErr(err) {
		return fmt.Errorf("%s/%s: %w", container, name, storage.ErrObjectNotFound)
	}
	return fmt.Errorf("%s %s/%s: %w", op, container, name, err)
}

// StatObject reads the object attributes from the bucket.
func (b *Backend) StatObject(ctx context.Context, container, name string) (storage.ObjectInfo, error) {
	key, err := objectKey(container, name)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	start := time.Now()
	attrs, err := b.bucket.Attributes(ctx, key)
	metrics.RecordStorageOperation(b.typeName, "attributes", time.Since(start), err == nil)
	if err != nil {
		return storage.ObjectInfo{}, b.wrapErr("attributes", container, name, err)
	}
	return storage.ObjectInfo{
		ContentType: mime.TypeByExtension(path.Ext(name)),
		Size:        attrs.Size,
	}, nil
}

// OpenObject opens the object for reading. objstore does not report a
// content type, so it is derived from the name's extension.
func (b *Backend) OpenObject(ctx context.Context, container, name string) (io.ReadCloser, storage.ObjectInfo, error) {
	key, err := objectKey(container, name)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	start := time.Now()
	rc, err := b.bucket.Get(ctx, key)
	metrics.RecordStorageOperation(b.typeName, "get", time.Since(start), err == nil)
	if err != nil {
		return nil, storage.ObjectInfo{}, b.wrapErr("get", container, name, err)
	}
	return rc, storage.ObjectInfo{ContentType: mime.TypeByExtension(path.Ext(name)), Size: -1}, nil
}

// Type returns the configured type name.
func (b *Backend) Type() string { return b.typeName }

// Close closes the wrapped bucket.
func (b *Backend) Close() error { return b.bucket.Close() }
