// blobcat reads one blob through the configured storage backend and writes
// it to stdout.
//
// By default text-like blobs are decoded using their byte-order mark and
// printed as UTF-8; --raw writes the stored bytes unchanged. Storage settings
// come from the same environment variables as the server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/promptfunc/promptfunc/internal/blobreader"
	"github.com/promptfunc/promptfunc/internal/config"
	"github.com/promptfunc/promptfunc/internal/logging"
	"github.com/promptfunc/promptfunc/internal/storage/backends"
)

// errNotText signals that the blob exists but has no text rendition.
var errNotText = errors.New("blob is not text; use --raw")

type options struct {
	container string
	name      string
	raw       bool
	maxBytes  int64
	logLevel  string
}

func main() {
	if err := logging.Init(logging.Config{Level: "warn", Format: "console", OutputPath: "stderr"}); err != nil {
		panic("logging init: " + err.Error())
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logging.Sync()
		if errors.Is(err, errNotText) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "blobcat --name <blob> [--container <c>] [--raw]",
		Short:         "Print a blob from the configured storage backend",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.SetLevel(opts.logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if opts.container == "" {
				opts.container = cfg.BlobDefaultContainer
			}
			if opts.maxBytes <= 0 {
				opts.maxBytes = cfg.BlobMaxBytes
			}

			store, err := backends.FromConfig(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("storage backend: %w", err)
			}
			defer store.Close()

			return run(cmd.Context(), store, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.container, "container", "", "container holding the blob (default BLOB_DEFAULT_CONTAINER)")
	cmd.Flags().StringVar(&opts.name, "name", "", "blob name within the container")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "write the stored bytes without decoding")
	cmd.Flags().Int64Var(&opts.maxBytes, "max-bytes", 0, "size ceiling in bytes (default BLOB_MAX_BYTES)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "stderr log level (debug, info, warn, error)")
	cmd.MarkFlagRequired("name")
	return cmd
}

func run(ctx context.Context, store blobreader.Store, opts options, out io.Writer) error {
	reader := blobreader.New(store, blobreader.SizePolicy{MaxBytes: opts.maxBytes})

	if opts.raw {
		res, err := reader.OpenRaw(ctx, opts.container, opts.name)
		if err != nil {
			return err
		}
		_, err = out.Write(res.Content)
		return err
	}

	res, err := reader.OpenText(ctx, opts.container, opts.name)
	if err != nil {
		return err
	}
	text, ok := res.Text.Get()
	if !ok {
		logging.Warn("blob has no text rendition",
			zap.String("blob", res.DisplayName()),
			zap.String("content_type", res.ContentType),
			zap.Int64("length", res.Length))
		return errNotText
	}
	_, err = io.WriteString(out, text)
	return err
}
