package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ ObjectStore = (*MemoryStorage)(nil)

// MemoryStorage keeps objects in process memory.
// Use this for tests and single-instance development.
type MemoryStorage struct {
	// BaseURL prefixes generated download URLs
	BaseURL string

	mu      sync.RWMutex
	objects map[string]Object
}

// NewMemoryStorage creates an empty MemoryStorage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		BaseURL: "memory://objects",
		objects: make(map[string]Object),
	}
}

// Put stores a copy of data
func (s *MemoryStorage) Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = detectContentType(key, data)
	}

	obj := Object{
		Key:         key,
		URL:         s.BaseURL + "/" + key,
		Size:        int64(len(data)),
		ContentType: contentType,
		ModifiedAt:  time.Now(),
		Data:        append([]byte(nil), data...),
	}

	s.mu.Lock()
	s.objects[key] = obj
	s.mu.Unlock()

	meta := obj
	meta.Data = nil
	return &meta, nil
}

// Get returns a copy of the stored object
func (s *MemoryStorage) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return &obj, nil
}

// URL returns BaseURL/key
func (s *MemoryStorage) URL(_ context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return s.BaseURL + "/" + key, nil
}

// Delete removes key
func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// Keys lists stored keys with the given prefix in sorted order
func (s *MemoryStorage) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
