package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/promptfunc/promptfunc/internal/blobreader"
	"github.com/promptfunc/promptfunc/internal/logging"
	"github.com/promptfunc/promptfunc/internal/storage/bucket"
)

func newStore(t *testing.T) *bucket.Backend {
	t.Helper()
	store := bucket.NewInMemory()
	ctx := context.Background()
	require.NoError(t, store.Bucket().Upload(ctx, "docs/page.html", bytes.NewReader([]byte("\xEF\xBB\xBF<p>hi</p>"))))
	require.NoError(t, store.Bucket().Upload(ctx, "docs/blob", bytes.NewReader([]byte{0, 1, 2})))
	return store
}

func TestRunText(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), newStore(t), options{container: "docs", name: "page.html", maxBytes: 100}, &out)
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", out.String())
}

func TestRunRaw(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), newStore(t), options{container: "docs", name: "page.html", raw: true, maxBytes: 100}, &out)
	require.NoError(t, err)
	assert.Equal(t, "\xEF\xBB\xBF<p>hi</p>", out.String())
}

func TestRunBinaryNeedsRaw(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), newStore(t), options{container: "docs", name: "blob", maxBytes: 100}, &out)
	assert.ErrorIs(t, err, errNotText)
	assert.Empty(t, out.String())
}

func TestRunErrors(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), newStore(t), options{container: "docs", name: "page.html", maxBytes: 4}, &out)
	assert.ErrorIs(t, err, blobreader.ErrTooLarge)

	err = run(context.Background(), newStore(t), options{container: "docs", name: "missing", maxBytes: 100}, &out)
	assert.ErrorIs(t, err, blobreader.ErrNotFound)
}

func TestRootCommandRequiresName(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestLogLevelFlag(t *testing.T) {
	require.NoError(t, logging.Init(logging.Config{Level: "warn", Format: "console", OutputPath: "stderr"}))
	t.Cleanup(func() { logging.SetLevel("info") })

	cmd := newRootCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--name", "page.html", "--log-level", "debug"}))
	require.NoError(t, cmd.PersistentPreRunE(cmd, nil))
	assert.True(t, logging.L().Core().Enabled(zapcore.DebugLevel))
}

func TestLogLevelFlagRejectsUnknownLevel(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--name", "page.html", "--log-level", "loud"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `log level "loud"`)
}
