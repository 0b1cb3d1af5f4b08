// Package blobreader reads whole blobs from a store into memory under a hard
// size ceiling, and decodes text-like blobs using their byte-order mark.
package blobreader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"strings"

	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/promptfunc/promptfunc/internal/logging"
	"github.com/promptfunc/promptfunc/internal/metrics"
	"github.com/promptfunc/promptfunc/internal/storage"
)

const (
	// DefaultMaxBytes is used when a SizePolicy has no positive ceiling.
	DefaultMaxBytes int64 = 1_000_000

	// DefaultContentType is reported when the store does not know the type.
	DefaultContentType = "application/octet-stream"
)

// Store is the blob store capability the reader needs. storage.Backend satisfies it.
type Store interface {
	StatObject(ctx context.Context, container, name string) (storage.ObjectInfo, error)
	OpenObject(ctx context.Context, container, name string) (io.ReadCloser, storage.ObjectInfo, error)
}

// SizePolicy bounds how many bytes a single read may buffer.
type SizePolicy struct {
	MaxBytes int64
}

// Metadata describes a retrieved blob.
type Metadata struct {
	ContentType string
	// Length is the size the store reported before the download started.
	Length     int64
	ObjectName string
}

// DisplayName is the last non-empty path segment of the object name.
func (m Metadata) DisplayName() string {
	name := strings.TrimRight(m.ObjectName, "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return m.ObjectName
	}
	return name
}

// RawResult is the outcome of OpenRaw.
type RawResult struct {
	Content []byte
	Metadata
}

// TextResult is the outcome of OpenText. Text is None when the content type
// is not text-like; Some("") is an empty text blob. Encoding is only
// meaningful when Text is present.
type TextResult struct {
	Text     mo.Option[string]
	Encoding Encoding
	Metadata
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger makes the reader log to l instead of the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// Reader retrieves blobs under a fixed SizePolicy. It holds no per-call
// state and is safe for concurrent use.
type Reader struct {
	store  Store
	policy SizePolicy
	logger *zap.Logger
}

// New creates a Reader over store. A non-positive policy.MaxBytes falls back to DefaultMaxBytes.
func New(store Store, policy SizePolicy, opts ...Option) *Reader {
	if policy.MaxBytes <= 0 {
		policy.MaxBytes = DefaultMaxBytes
	}
	r := &Reader{store: store, policy: policy}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the reader's size policy.
func (r *Reader) Policy() SizePolicy {
	return r.policy
}

func (r *Reader) log(ctx context.Context) *zap.Logger {
	if r.logger != nil {
		return r.logger
	}
	return logging.WithContext(ctx)
}

// OpenRaw downloads the whole object into memory.
//
// A reported length above the ceiling only produces a warning: the store's
// metadata is not trusted, so the limit is enforced on the bytes actually
// received, and the read stops one byte past the ceiling.
func (r *Reader) OpenRaw(ctx context.Context, container, objectName string) (*RawResult, error) {
	res, err := r.openRaw(ctx, container, objectName)
	if err != nil {
		metrics.RecordBlobRead("raw", errorKind(err), 0)
		return nil, err
	}
	metrics.RecordBlobRead("raw", "ok", int64(len(res.Content)))
	return res, nil
}

func (r *Reader) openRaw(ctx context.Context, container, objectName string) (*RawResult, error) {
	if container == "" {
		return nil, &InvalidArgumentError{Field: "container"}
	}
	if objectName == "" {
		return nil, &InvalidArgumentError{Field: "object name"}
	}

	stat, err := r.store.StatObject(ctx, container, objectName)
	if err != nil {
		return nil, r.storeError("stat blob", container, objectName, err)
	}

	if stat.Size > r.policy.MaxBytes {
		metrics.RecordOversizeWarning()
		r.log(ctx).Warn("blob reported length exceeds size ceiling",
			zap.String("container", container),
			zap.String("blob", objectName),
			zap.Int64("length", stat.Size),
			zap.Int64("max_bytes", r.policy.MaxBytes))
	}

	stream, info, err := r.store.OpenObject(ctx, container, objectName)
	if err != nil {
		return nil, r.storeError("open blob", container, objectName, err)
	}
	defer stream.Close()

	// Read one byte past the ceiling to detect oversize content.
	limit := r.policy.MaxBytes
	if limit < math.MaxInt64 {
		limit++
	}
	var buf bytes.Buffer
	limited := io.LimitReader(&contextReader{ctx: ctx, r: stream}, limit)
	n, err := io.Copy(&buf, limited)
	if err != nil {
		return nil, &TransportError{Op: "read blob " + container + "/" + objectName, Err: err}
	}
	if n > r.policy.MaxBytes {
		return nil, &TooLargeError{Actual: n, Max: r.policy.MaxBytes}
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = stat.ContentType
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	return &RawResult{
		Content: buf.Bytes(),
		Metadata: Metadata{
			ContentType: contentType,
			Length:      stat.Size,
			ObjectName:  objectName,
		},
	}, nil
}

// OpenText downloads the object like OpenRaw and, when its content type is
// text-like, decodes it using the encoding named by its byte-order mark.
// Non-text content returns a result with Text set to None and is never decoded.
func (r *Reader) OpenText(ctx context.Context, container, objectName string) (*TextResult, error) {
	raw, err := r.openRaw(ctx, container, objectName)
	if err != nil {
		metrics.RecordBlobRead("text", errorKind(err), 0)
		return nil, err
	}
	metrics.RecordBlobRead("text", "ok", int64(len(raw.Content)))

	if !IsTextLike(raw.ContentType) {
		return &TextResult{Text: mo.None[string](), Metadata: raw.Metadata}, nil
	}

	enc := DetectEncoding(raw.Content)
	text, err := Decode(raw.Content, enc)
	if err != nil {
		return nil, err
	}
	return &TextResult{Text: mo.Some(text), Encoding: enc, Metadata: raw.Metadata}, nil
}

func (r *Reader) storeError(op, container, name string, err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return &NotFoundError{Container: container, Name: name}
	}
	if errors.Is(err, storage.ErrInvalidName) {
		return &InvalidArgumentError{Field: "container or object name", Err: err}
	}
	return &TransportError{Op: op + " " + container + "/" + name, Err: err}
}

// errorKind labels err for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "error"
	}
}

// contextReader stops a copy between reads once ctx is done. It cannot
// interrupt a Read already in progress, so store bodies are expected to
// honor the context they were opened with (S3 and objstore bodies do).
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
