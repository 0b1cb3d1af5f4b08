// Package local provides a local filesystem blob backend.
// Containers are directories directly under the root path.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/promptfunc/promptfunc/internal/storage"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string `json:"root_path"`
	CreateDirs bool   `json:"create_dirs"`
}

// LocalBackend implements storage.Backend using the local filesystem.
type LocalBackend struct {
	rootPath string
}

// New creates a new local filesystem backend.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(cfg.RootPath, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path %s: %w", cfg.RootPath, err)
	}
	return &LocalBackend{rootPath: root}, nil
}

// NewFromJSON creates a LocalBackend from raw JSON config.
func NewFromJSON(raw json.RawMessage) (*LocalBackend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse local config: %w", err)
	}
	return New(cfg)
}

// fullPath maps container/name onto the root, refusing anything that
// resolves outside the container directory.
func (b *LocalBackend) fullPath(container, name string) (string, error) {
	if strings.ContainsAny(container, `/\`) || container == "." || container == ".." {
		return "", fmt.Errorf("container %q: %w", container, storage.ErrInvalidName)
	}
	dir := filepath.Join(b.rootPath, container)
	path := filepath.Join(dir, filepath.FromSlash(name))
	if !strings.HasPrefix(path, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("object name %q escapes container %q: %w", name, container, storage.ErrInvalidName)
	}
	return path, nil
}

func (b *LocalBackend) stat(container, name string) (string, storage.ObjectInfo, error) {
	path, err := b.fullPath(container, name)
	if err != nil {
		return "", storage.ObjectInfo{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", storage.ObjectInfo{}, fmt.Errorf("%s/%s: %w", container, name, storage.ErrObjectNotFound)
		}
		return "", storage.ObjectInfo{}, fmt.Errorf("stat %s/%s: %w", container, name, err)
	}
	if info.IsDir() {
		return "", storage.ObjectInfo{}, fmt.Errorf("%s/%s is a directory: %w", container, name, storage.ErrObjectNotFound)
	}

	return path, storage.ObjectInfo{
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Size:        info.Size(),
	}, nil
}

// StatObject reports the file size and an extension-derived content type.
func (b *LocalBackend) StatObject(_ context.Context, container, name string) (storage.ObjectInfo, error) {
	_, info, err := b.stat(container, name)
	return info, err
}

// OpenObject opens a file for reading.
func (b *LocalBackend) OpenObject(_ context.Context, container, name string) (io.ReadCloser, storage.ObjectInfo, error) {
	path, info, err := b.stat(container, name)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ObjectInfo{}, fmt.Errorf("%s/%s: %w", container, name, storage.ErrObjectNotFound)
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("open %s/%s: %w", container, name, err)
	}
	return f, info, nil
}

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *LocalBackend) Close() error { return nil }
