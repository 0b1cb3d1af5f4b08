// Package backends builds a storage.Backend from configuration.
package backends

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/promptfunc/promptfunc/internal/config"
	"github.com/promptfunc/promptfunc/internal/storage"
	"github.com/promptfunc/promptfunc/internal/storage/bucket"
	"github.com/promptfunc/promptfunc/internal/storage/local"
	s3backend "github.com/promptfunc/promptfunc/internal/storage/s3"
)

// NewBackendFromConfig creates a Backend from a backend type string and JSON config.
func NewBackendFromConfig(ctx context.Context, backendType string, raw json.RawMessage) (storage.Backend, error) {
	switch backendType {
	case "s3":
		return s3backend.NewBackendFromJSON(ctx, raw)
	case "local":
		return local.NewFromJSON(raw)
	case "memory":
		return bucket.NewInMemory(), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}

// FromConfig creates the backend selected by STORAGE_BACKEND.
func FromConfig(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	var (
		raw json.RawMessage
		err error
	)
	switch cfg.StorageBackend {
	case "s3":
		raw, err = json.Marshal(s3backend.BackendConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
	case "local":
		raw, err = json.Marshal(local.Config{
			RootPath:   cfg.LocalStoragePath,
			CreateDirs: true,
		})
	default:
		raw = json.RawMessage("{}")
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s backend config: %w", cfg.StorageBackend, err)
	}
	return NewBackendFromConfig(ctx, cfg.StorageBackend, raw)
}
