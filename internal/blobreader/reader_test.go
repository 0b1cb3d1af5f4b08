package blobreader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/promptfunc/promptfunc/internal/storage"
	"github.com/promptfunc/promptfunc/internal/storage/bucket"
)

type fakeObject struct {
	data        []byte
	contentType string
	// reported is the size StatObject claims; -1 means len(data).
	reported int64
}

// fakeStore serves fakeObjects and counts stream opens and closes.
type fakeStore struct {
	objects map[string]fakeObject
	statErr error
	openErr error
	readErr error

	opens  atomic.Int32
	closes atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]fakeObject{}}
}

func (s *fakeStore) put(container, name string, obj fakeObject) {
	if obj.reported == 0 && len(obj.data) != 0 {
		obj.reported = -1
	}
	s.objects[container+"/"+name] = obj
}

func (s *fakeStore) StatObject(_ context.Context, container, name string) (storage.ObjectInfo, error) {
	if s.statErr != nil {
		return storage.ObjectInfo{}, s.statErr
	}
	obj, ok := s.objects[container+"/"+name]
	if !ok {
		return storage.ObjectInfo{}, fmt.Errorf("%s/%s: %w", container, name, storage.ErrObjectNotFound)
	}
	size := obj.reported
	if size < 0 {
		size = int64(len(obj.data))
	}
	return storage.ObjectInfo{ContentType: obj.contentType, Size: size}, nil
}

func (s *fakeStore) OpenObject(_ context.Context, container, name string) (io.ReadCloser, storage.ObjectInfo, error) {
	if s.openErr != nil {
		return nil, storage.ObjectInfo{}, s.openErr
	}
	obj, ok := s.objects[container+"/"+name]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	s.opens.Add(1)
	var r io.Reader = bytes.NewReader(obj.data)
	if s.readErr != nil {
		r = io.MultiReader(r, &failingReader{err: s.readErr})
	}
	return &trackedStream{Reader: r, closes: &s.closes}, storage.ObjectInfo{ContentType: obj.contentType}, nil
}

type trackedStream struct {
	io.Reader
	closes *atomic.Int32
}

func (t *trackedStream) Close() error {
	t.closes.Add(1)
	return nil
}

type failingReader struct{ err error }

func (f *failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestOpenRawReturnsExactBytes(t *testing.T) {
	store := newFakeStore()
	payload := []byte{0x00, 0xFF, 0x10, 'a', 'b'}
	store.put("c", "dir/blob.bin", fakeObject{data: payload, contentType: "application/octet-stream"})

	r := New(store, SizePolicy{MaxBytes: 16})
	res, err := r.OpenRaw(context.Background(), "c", "dir/blob.bin")
	require.NoError(t, err)

	assert.Equal(t, payload, res.Content)
	assert.Equal(t, int64(len(payload)), res.Length)
	assert.Equal(t, "application/octet-stream", res.ContentType)
	assert.Equal(t, "blob.bin", res.DisplayName())
	assert.Equal(t, int32(1), store.closes.Load())
}

func TestOpenRawDefaultsContentType(t *testing.T) {
	store := newFakeStore()
	store.put("c", "blob", fakeObject{data: []byte("x")})

	res, err := New(store, SizePolicy{MaxBytes: 16}).OpenRaw(context.Background(), "c", "blob")
	require.NoError(t, err)
	assert.Equal(t, DefaultContentType, res.ContentType)
}

func TestOpenRawAtCeilingSucceeds(t *testing.T) {
	store := newFakeStore()
	store.put("c", "exact", fakeObject{data: bytes.Repeat([]byte("a"), 8)})

	res, err := New(store, SizePolicy{MaxBytes: 8}).OpenRaw(context.Background(), "c", "exact")
	require.NoError(t, err)
	assert.Len(t, res.Content, 8)
}

// The store's reported length is untrusted: a small claim does not let an
// oversized stream through, and the reader stops one byte past the ceiling.
func TestOpenRawEnforcesActualSizeNotReportedLength(t *testing.T) {
	store := newFakeStore()
	store.put("c", "liar", fakeObject{data: bytes.Repeat([]byte("a"), 100), reported: 4, contentType: "text/plain"})

	r := New(store, SizePolicy{MaxBytes: 10})
	_, err := r.OpenRaw(context.Background(), "c", "liar")

	require.ErrorIs(t, err, ErrTooLarge)
	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(11), tooLarge.Actual)
	assert.Equal(t, int64(10), tooLarge.Max)
	assert.Equal(t, int32(1), store.closes.Load(), "stream must be closed on the size-limit path")

	_, err = r.OpenText(context.Background(), "c", "liar")
	assert.ErrorIs(t, err, ErrTooLarge)
}

// A reported length over the ceiling only warns; the download proceeds and
// succeeds when the real content fits. Collapsing this into a single
// pre-check on the reported length would wrongly fail here.
func TestOpenRawWarnsOnReportedLengthButReadsSmallContent(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := newFakeStore()
	store.put("c", "big-claim.txt", fakeObject{data: []byte("tiny"), reported: 1 << 20, contentType: "text/plain"})

	r := New(store, SizePolicy{MaxBytes: 10}, WithLogger(zap.New(core)))
	res, err := r.OpenRaw(context.Background(), "c", "big-claim.txt")
	require.NoError(t, err)

	assert.Equal(t, []byte("tiny"), res.Content)
	assert.Equal(t, int64(1<<20), res.Length, "length reports what the store claimed")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "big-claim.txt", fields["blob"])
	assert.Equal(t, int64(1<<20), fields["length"])
	assert.Equal(t, int64(10), fields["max_bytes"])
}

func TestOpenRawNoWarningUnderCeiling(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := newFakeStore()
	store.put("c", "ok", fakeObject{data: []byte("fine")})

	_, err := New(store, SizePolicy{MaxBytes: 10}, WithLogger(zap.New(core))).OpenRaw(context.Background(), "c", "ok")
	require.NoError(t, err)
	assert.Zero(t, logs.Len())
}

func TestNotFoundFailsBeforeBuffering(t *testing.T) {
	store := newFakeStore()
	r := New(store, SizePolicy{MaxBytes: 10})

	_, err := r.OpenRaw(context.Background(), "c", "missing")
	require.ErrorIs(t, err, ErrNotFound)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "c", nf.Container)
	assert.Equal(t, "missing", nf.Name)

	_, err = r.OpenText(context.Background(), "c", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Zero(t, store.opens.Load(), "no stream should be opened for a missing blob")
}

func TestInvalidArguments(t *testing.T) {
	r := New(newFakeStore(), SizePolicy{MaxBytes: 10})

	_, err := r.OpenRaw(context.Background(), "", "name")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = r.OpenText(context.Background(), "c", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTransportFailures(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("stat", func(t *testing.T) {
		store := newFakeStore()
		store.statErr = boom
		_, err := New(store, SizePolicy{MaxBytes: 10}).OpenRaw(context.Background(), "c", "x")
		assert.ErrorIs(t, err, ErrTransport)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("open", func(t *testing.T) {
		store := newFakeStore()
		store.put("c", "x", fakeObject{data: []byte("data")})
		store.openErr = boom
		_, err := New(store, SizePolicy{MaxBytes: 10}).OpenRaw(context.Background(), "c", "x")
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("mid-stream", func(t *testing.T) {
		store := newFakeStore()
		store.put("c", "x", fakeObject{data: []byte("data")})
		store.readErr = boom
		_, err := New(store, SizePolicy{MaxBytes: 10}).OpenText(context.Background(), "c", "x")
		assert.ErrorIs(t, err, ErrTransport)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int32(1), store.closes.Load(), "stream must be closed on the error path")
	})
}

func TestOpenRawHonorsCancellation(t *testing.T) {
	store := newFakeStore()
	store.put("c", "x", fakeObject{data: []byte("data")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(store, SizePolicy{MaxBytes: 10}).OpenRaw(ctx, "c", "x")
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), store.closes.Load())
}

func TestOpenText(t *testing.T) {
	cases := []struct {
		name        string
		data        []byte
		contentType string
		want        string
		enc         Encoding
	}{
		{"utf-8 bom", []byte{0xEF, 0xBB, 0xBF, 0x48, 0x65, 0x6C, 0x6C, 0x6F}, "text/plain", "Hello", UTF8},
		{"utf-16 le", []byte{0xFF, 0xFE, 0x48, 0x00, 0x69, 0x00}, "text/plain", "Hi", UTF16LE},
		{"no bom", []byte("just text"), "text/plain", "just text", UTF8},
		{"json", []byte(`{"a":1}`), "application/json", `{"a":1}`, UTF8},
		{"empty", []byte{}, "text/csv", "", UTF8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			store.put("c", "f", fakeObject{data: tc.data, contentType: tc.contentType})

			res, err := New(store, SizePolicy{MaxBytes: 64}).OpenText(context.Background(), "c", "f")
			require.NoError(t, err)
			text, ok := res.Text.Get()
			require.True(t, ok, "text should be present")
			assert.Equal(t, tc.want, text)
			assert.Equal(t, tc.enc, res.Encoding)
			assert.Equal(t, tc.contentType, res.ContentType)
		})
	}
}

func TestOpenTextBinaryHasNoText(t *testing.T) {
	store := newFakeStore()
	// Valid UTF-8 that would decode fine: text is still absent for a binary type.
	store.put("c", "a/b/c.bin", fakeObject{data: []byte("hello"), contentType: "application/octet-stream"})
	store.put("c", "img.png", fakeObject{data: []byte{0x89, 'P', 'N', 'G'}, contentType: "image/png"})
	store.put("c", "untyped", fakeObject{data: []byte{0xFF, 0xFE, 0x00}})

	r := New(store, SizePolicy{MaxBytes: 64})
	for _, name := range []string{"a/b/c.bin", "img.png", "untyped"} {
		res, err := r.OpenText(context.Background(), "c", name)
		require.NoError(t, err, name)
		assert.True(t, res.Text.IsAbsent(), "%s should have no text", name)
	}

	res, err := r.OpenText(context.Background(), "c", "a/b/c.bin")
	require.NoError(t, err)
	assert.Equal(t, "c.bin", res.DisplayName())
	assert.Equal(t, int64(5), res.Length)
}

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"a/b/c.txt": "c.txt",
		"c.txt":     "c.txt",
		"a/b/":      "b",
		"/lead.txt": "lead.txt",
	}
	for name, want := range cases {
		assert.Equal(t, want, Metadata{ObjectName: name}.DisplayName(), name)
	}
}

func TestNewDefaultsPolicy(t *testing.T) {
	r := New(newFakeStore(), SizePolicy{})
	assert.Equal(t, DefaultMaxBytes, r.Policy().MaxBytes)
}

func TestMaxInt64CeilingReadsWholeBlob(t *testing.T) {
	store := newFakeStore()
	store.put("c", "hello.txt", fakeObject{data: []byte("hello"), contentType: "text/plain"})

	r := New(store, SizePolicy{MaxBytes: math.MaxInt64})
	res, err := r.OpenRaw(context.Background(), "c", "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(res.Content))
	assert.Equal(t, int64(5), res.Length)
}

func TestStoreRejectedNameIsInvalidArgument(t *testing.T) {
	store := newFakeStore()
	store.statErr = fmt.Errorf("object name %q escapes container: %w", "../x", storage.ErrInvalidName)

	_, err := New(store, SizePolicy{MaxBytes: 10}).OpenRaw(context.Background(), "c", "../x")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, err, storage.ErrInvalidName)
	assert.NotErrorIs(t, err, ErrTransport)

	var argErr *InvalidArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Contains(t, argErr.Error(), "invalid")
}

func TestConcurrentReadsAreIndependent(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 20; i++ {
		store.put("c", fmt.Sprintf("f%d.txt", i), fakeObject{
			data:        []byte(strings.Repeat(fmt.Sprint(i%10), i+1)),
			contentType: "text/plain",
		})
	}
	r := New(store, SizePolicy{MaxBytes: 64})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.OpenText(context.Background(), "c", fmt.Sprintf("f%d.txt", i))
			if err != nil {
				errs <- err
				return
			}
			want := strings.Repeat(fmt.Sprint(i%10), i+1)
			if got := res.Text.OrEmpty(); got != want {
				errs <- fmt.Errorf("f%d: got %q, want %q", i, got, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, store.opens.Load(), store.closes.Load())
}

func TestReaderOverObjstoreBucket(t *testing.T) {
	backend := bucket.NewInMemory()
	ctx := context.Background()
	require.NoError(t, backend.Bucket().Upload(ctx, "docs/notes/data.json",
		bytes.NewReader([]byte{0xEF, 0xBB, 0xBF, '[', '1', ']'})))

	res, err := New(backend, SizePolicy{MaxBytes: 1024}).OpenText(ctx, "docs", "notes/data.json")
	require.NoError(t, err)
	assert.Equal(t, "[1]", res.Text.OrEmpty())
	assert.Equal(t, "data.json", res.DisplayName())
	assert.Equal(t, int64(6), res.Length)

	_, err = New(backend, SizePolicy{MaxBytes: 1024}).OpenRaw(ctx, "docs", "nope.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, backend.Bucket().Upload(ctx, "private/secret.json", bytes.NewReader([]byte("{}"))))
	_, err = New(backend, SizePolicy{MaxBytes: 1024}).OpenRaw(ctx, "docs", "../private/secret.json")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
