package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

var _ ObjectStore = (*FileSystemStorage)(nil)

// FileSystemStorageConfig contains configuration for file system storage
type FileSystemStorageConfig struct {
	// BasePath is the root directory for stored objects
	BasePath string
	// BaseURL is the URL prefix the HTTP layer serves BasePath under
	BaseURL string
	Logger  *zap.Logger
}

// FileSystemStorage stores objects as files below a base directory.
// Keys map to relative paths: bulk/{run}/{doc}-{version}.pdf becomes BasePath/bulk/{run}/...
type FileSystemStorage struct {
	basePath string
	baseURL  string
	logger   *zap.Logger
}

// NewFileSystemStorage creates the base directory and returns the store
func NewFileSystemStorage(config *FileSystemStorageConfig) (*FileSystemStorage, error) {
	if config == nil {
		config = &FileSystemStorageConfig{}
	}
	basePath := config.BasePath
	if basePath == "" {
		basePath = "./data/artifacts"
	}
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "/files"
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	if err := os.MkdirAll(absBase, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", absBase, err)
	}

	return &FileSystemStorage{
		basePath: absBase,
		baseURL:  baseURL,
		logger:   logger,
	}, nil
}

// BasePath returns the absolute storage root
func (s *FileSystemStorage) BasePath() string {
	return s.basePath
}

// Put writes data to the file for key, creating parent directories
func (s *FileSystemStorage) Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// write-then-rename so readers never see a partial file
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to store object: %w", err)
	}

	if contentType == "" {
		contentType = detectContentType(key, data)
	}

	s.logger.Debug("Object stored",
		zap.String("path", fullPath),
		zap.Int("size", len(data)))

	return &Object{
		Key:         key,
		URL:         s.urlFor(key),
		Size:        int64(len(data)),
		ContentType: contentType,
		ModifiedAt:  time.Now(),
	}, nil
}

// Get reads the file for key
func (s *FileSystemStorage) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	return &Object{
		Key:         key,
		URL:         s.urlFor(key),
		Size:        int64(len(data)),
		ContentType: detectContentType(key, data),
		ModifiedAt:  info.ModTime(),
		Data:        data,
	}, nil
}

// URL returns BaseURL/key
func (s *FileSystemStorage) URL(_ context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return s.urlFor(key), nil
}

// Delete removes the file for key
func (s *FileSystemStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// CleanupOlderThan removes files whose modification time is older than age
// and returns how many were deleted
func (s *FileSystemStorage) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)
	deleted := 0

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				deleted++
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return deleted, fmt.Errorf("cleanup walk failed: %w", err)
	}

	s.logger.Info("Storage cleanup completed",
		zap.Int("deleted", deleted),
		zap.Duration("age", age))
	return deleted, nil
}

func (s *FileSystemStorage) urlFor(key string) string {
	return s.baseURL + "/" + filepath.ToSlash(filepath.Clean(key))
}

// resolve maps key to an absolute path that must stay under basePath
func (s *FileSystemStorage) resolve(key string) (string, error) {
	if err := validateKey(key); err != nil {
		s.logger.Warn("Blocked storage key", zap.String("key", key))
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	if !strings.HasPrefix(fullPath, s.basePath+string(filepath.Separator)) {
		s.logger.Warn("Path escape attempt blocked",
			zap.String("key", key),
			zap.String("path", fullPath))
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return fullPath, nil
}
