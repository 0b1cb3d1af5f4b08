// promptfunc server
//
// Features:
// - Bounded whole-blob reads with BOM-aware text decoding
// - Prompt forwarding to OpenAI and DIAL with results queued on NATS or Redis
// - Prometheus metrics & structured logging (zap)
// - Multi-backend storage (S3, local, in-memory)
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/promptfunc/promptfunc/internal/api"
	"github.com/promptfunc/promptfunc/internal/auth"
	"github.com/promptfunc/promptfunc/internal/blobreader"
	"github.com/promptfunc/promptfunc/internal/completion"
	"github.com/promptfunc/promptfunc/internal/config"
	"github.com/promptfunc/promptfunc/internal/logging"
	"github.com/promptfunc/promptfunc/internal/metrics"
	"github.com/promptfunc/promptfunc/internal/queue"
	"github.com/promptfunc/promptfunc/internal/retry"
	"github.com/promptfunc/promptfunc/internal/storage/backends"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}

	if err := run(cfg); err != nil {
		logging.Error("server stopped with error", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
	logging.Info("server stopped")
	logging.Sync()
}

// run returns only after every resource it opened has been closed.
func run(cfg *config.Config) error {
	logging.Info("promptfunc server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("storage", cfg.StorageBackend),
		zap.String("queue", cfg.QueueBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := backends.FromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage backend init: %w", err)
	}
	defer store.Close()

	reader := blobreader.New(store, blobreader.SizePolicy{MaxBytes: cfg.BlobMaxBytes})
	logging.Info("blob reader initialized",
		zap.String("backend", store.Type()),
		zap.Int64("max_bytes", reader.Policy().MaxBytes),
		zap.String("default_container", cfg.BlobDefaultContainer))

	completers := map[string]api.Completer{}
	if cfg.OpenAIAPIKey != "" {
		completers["openai"] = completion.New(
			completion.OpenAI(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel),
			cfg.CompletionTimeout)
		logging.Info("OpenAI completion enabled", zap.String("model", cfg.OpenAIModel))
	}
	if cfg.DialAPIKey != "" && cfg.DialModel != "" {
		completers["dial"] = completion.New(
			completion.Dial(cfg.DialBaseURL, cfg.DialAPIKey, cfg.DialModel, cfg.DialAPIVersion),
			cfg.CompletionTimeout)
		logging.Info("DIAL completion enabled", zap.String("model", cfg.DialModel))
	}

	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.QueueConnectAttempts
	rc.InitialWait = time.Second
	rc.MaxWait = 30 * time.Second
	publisher, err := queue.Connect(ctx, cfg, rc)
	if err != nil {
		return fmt.Errorf("results queue init: %w", err)
	}
	defer publisher.Close()
	logging.Info("results queue connected",
		zap.String("backend", cfg.QueueBackend),
		zap.String("queue", cfg.ResultsQueue))

	authHandler := auth.New(cfg.FunctionKey, cfg.JWTSecret)
	if !authHandler.Enabled() {
		logging.Warn("FUNCTION_KEY and JWT_SECRET unset; function endpoints are open")
	}

	srv := api.NewServer(api.Options{
		Reader:           reader,
		Completers:       completers,
		Publisher:        publisher,
		Auth:             authHandler,
		DefaultContainer: cfg.BlobDefaultContainer,
	})

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := cfg.TLSEnabled()
	if useTLS {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		if useTLS {
			logging.Info("server listening (TLS 1.3)",
				zap.String("addr", cfg.ListenAddr),
				zap.String("cert", cfg.TLSCertFile))
			err = httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
			err = httpServer.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Graceful shutdown on signal or when either listener fails.
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("shutting down...")

		shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("http shutdown error", zap.Error(err))
		}
		return metricsServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
