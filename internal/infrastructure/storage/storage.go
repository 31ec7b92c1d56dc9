// Package storage provides object storage for logo assets and bulk artifacts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/techpack/backend/internal/infrastructure/config"
)

// ErrObjectNotFound is returned when a key has no stored object
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidKey is returned for empty keys or keys that escape the store root
var ErrInvalidKey = errors.New("invalid storage key")

// Object is a stored blob
type Object struct {
	Key         string
	URL         string
	Size        int64
	ContentType string
	ModifiedAt  time.Time
	Data        []byte
}

// ObjectStore is a keyed blob store
type ObjectStore interface {
	// Put stores data under key, replacing any previous object
	Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error)
	// Get loads the object stored under key
	Get(ctx context.Context, key string) (*Object, error)
	// URL returns an address a client can download the object from
	URL(ctx context.Context, key string) (string, error)
	// Delete removes the object; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

// New builds the object store selected by cfg.Backend
func New(ctx context.Context, cfg *config.StorageConfig, logger *zap.Logger) (ObjectStore, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Backend {
	case "", "local":
		return NewFileSystemStorage(&FileSystemStorageConfig{
			BasePath: cfg.BasePath,
			BaseURL:  cfg.BaseURL,
			Logger:   logger,
		})
	case "s3":
		s, err := NewS3ObjectStorage(cfg, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// validateKey rejects empty, absolute and parent-relative keys
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: storage key is required", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, `\`) {
		return fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' })
	if slices.Contains(parts, "..") {
		return fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return nil
}

// detectContentType guesses a MIME type from the key extension, then the bytes
func detectContentType(key string, data []byte) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(data)
}
