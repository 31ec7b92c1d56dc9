package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/techpack/backend/internal/domain/techpack"
)

const (
	defaultCleanupInterval = time.Minute
	defaultFenceTTL        = 7 * 24 * time.Hour
)

// memEntry is one stored artifact with its expiry and write fence
type memEntry struct {
	artifact  *techpack.Artifact
	expiresAt time.Time
	fence     int64
}

// fenceMark is the last invalidation of one document
type fenceMark struct {
	value     int64
	expiresAt time.Time
}

// InMemoryArtifactCache implements ArtifactCache with a mutex-guarded map.
// It is suitable for single-instance deployments and tests, and serves as
// the L1 tier of TieredArtifactCache.
//
// Fence values come from one sequence shared by document invalidations and
// the epoch, so a value is never issued twice. A document fence is the
// larger of its mark and the epoch. Marks expire fenceTTL after the last
// invalidation; entry TTLs are clamped to fenceTTL so every entry written
// before that invalidation is gone by then.
type InMemoryArtifactCache struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	fences  map[string]fenceMark
	seq     int64
	epoch   int64

	now      func() time.Time
	interval time.Duration
	fenceTTL time.Duration
	stats    counters

	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// InMemoryOption configures an InMemoryArtifactCache
type InMemoryOption func(*InMemoryArtifactCache)

// WithClock overrides the time source used for expiry
func WithClock(now func() time.Time) InMemoryOption {
	return func(c *InMemoryArtifactCache) {
		c.now = now
	}
}

// WithCleanupInterval sets how often expired entries are swept.
// A negative interval disables the sweeper.
func WithCleanupInterval(interval time.Duration) InMemoryOption {
	return func(c *InMemoryArtifactCache) {
		if interval != 0 {
			c.interval = interval
		}
	}
}

// WithFenceTTL sets how long a document fence outlives its last invalidation
func WithFenceTTL(ttl time.Duration) InMemoryOption {
	return func(c *InMemoryArtifactCache) {
		if ttl > 0 {
			c.fenceTTL = ttl
		}
	}
}

// NewInMemoryArtifactCache creates an in-memory cache and starts its sweeper
func NewInMemoryArtifactCache(opts ...InMemoryOption) *InMemoryArtifactCache {
	c := &InMemoryArtifactCache{
		entries:  make(map[string]*memEntry),
		fences:   make(map[string]fenceMark),
		now:      time.Now,
		interval: defaultCleanupInterval,
		fenceTTL: defaultFenceTTL,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.interval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop()
	}
	return c
}

// Get returns a copy of a live entry written under the current fence
func (c *InMemoryArtifactCache) Get(ctx context.Context, key Key) (*techpack.Artifact, error) {
	c.mu.RLock()
	e, ok := c.entries[key.String()]
	valid := ok && c.now().Before(e.expiresAt) && e.fence == c.fenceLocked(key.DocumentID)
	var out *techpack.Artifact
	if valid {
		out = clone(e.artifact)
	}
	c.mu.RUnlock()

	if !valid {
		c.stats.misses.Add(1)
		return nil, nil
	}
	c.stats.hits.Add(1)
	out.CacheHit = true
	return out, nil
}

// Put stores the artifact under the current fence
func (c *InMemoryArtifactCache) Put(ctx context.Context, key Key, artifact *techpack.Artifact, ttl time.Duration) error {
	_, err := c.PutFenced(ctx, key, artifact, ttl, NoFence)
	return err
}

// Fence returns the document fence. Pattern invalidations and flushes
// advance every document's fence through the shared epoch.
func (c *InMemoryArtifactCache) Fence(ctx context.Context, documentID string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fenceLocked(documentID), nil
}

func (c *InMemoryArtifactCache) fenceLocked(documentID string) int64 {
	if m, ok := c.fences[documentID]; ok && m.value > c.epoch && c.now().Before(m.expiresAt) {
		return m.value
	}
	return c.epoch
}

// PutFenced stores the artifact if the document fence still equals fence
func (c *InMemoryArtifactCache) PutFenced(ctx context.Context, key Key, artifact *techpack.Artifact, ttl time.Duration, fence int64) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	if artifact == nil {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.fenceLocked(key.DocumentID)
	if fence != NoFence && fence != current {
		c.stats.staleDrops.Add(1)
		return false, nil
	}
	c.storeLocked(key, artifact, ttl, current)
	c.stats.puts.Add(1)
	return true, nil
}

func (c *InMemoryArtifactCache) storeLocked(key Key, artifact *techpack.Artifact, ttl time.Duration, fence int64) {
	stored := clone(artifact)
	stored.CacheHit = false
	c.entries[key.String()] = &memEntry{
		artifact:  stored,
		expiresAt: c.now().Add(min(normalizeTTL(ttl), c.fenceTTL)),
		fence:     fence,
	}
}

// Invalidate advances the document fence and removes all its entries
func (c *InMemoryArtifactCache) Invalidate(ctx context.Context, documentID string) error {
	return c.InvalidateMany(ctx, []string{documentID})
}

// InvalidateMany invalidates several documents under one lock
func (c *InMemoryArtifactCache) InvalidateMany(ctx context.Context, documentIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.fenceTTL)
	for _, id := range documentIDs {
		c.seq++
		c.fences[id] = fenceMark{value: c.seq, expiresAt: expiresAt}
		c.deletePrefixLocked(DocumentPrefix(id))
	}
	c.stats.invalidations.Add(int64(len(documentIDs)))
	return nil
}

// InvalidatePattern removes every entry whose key starts with prefix.
// The epoch advances so in-flight fenced puts of any document are dropped.
func (c *InMemoryArtifactCache) InvalidatePattern(ctx context.Context, prefix string) error {
	if prefix == "" {
		return ErrEmptyPrefix
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.advanceEpochLocked()
	c.deletePrefixLocked(prefix)
	c.stats.invalidations.Add(1)
	return nil
}

// FlushAll removes every entry
func (c *InMemoryArtifactCache) FlushAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.advanceEpochLocked()
	c.entries = make(map[string]*memEntry)
	c.stats.invalidations.Add(1)
	return nil
}

// advanceEpochLocked moves every document fence at once. Marks at or
// below the new epoch no longer matter.
func (c *InMemoryArtifactCache) advanceEpochLocked() {
	c.seq++
	c.epoch = c.seq
	clear(c.fences)
}

func (c *InMemoryArtifactCache) deletePrefixLocked(prefix string) int {
	removed := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Stats returns the cache counters
func (c *InMemoryArtifactCache) Stats() Stats {
	s := c.stats.snapshot(BackendMemory)
	s.Entries = int64(c.Len())
	return s
}

// Len returns the number of stored entries, expired ones included
func (c *InMemoryArtifactCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the sweeper. Safe to call multiple times.
func (c *InMemoryArtifactCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

// =============================================================================
// L1 access for the tiered cache
// =============================================================================

// getWithFence returns a live entry only if it was written under fence
func (c *InMemoryArtifactCache) getWithFence(key Key, fence int64) *techpack.Artifact {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key.String()]
	if !ok || !c.now().Before(e.expiresAt) || e.fence != fence {
		return nil
	}
	return clone(e.artifact)
}

// setWithFence stores an entry tagged with an externally owned fence
func (c *InMemoryArtifactCache) setWithFence(key Key, artifact *techpack.Artifact, ttl time.Duration, fence int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(key, artifact, ttl, fence)
}

// deletePrefix removes entries by prefix without touching fences
func (c *InMemoryArtifactCache) deletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deletePrefixLocked(prefix)
}

// clear removes all entries without touching fences
func (c *InMemoryArtifactCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*memEntry)
}

func (c *InMemoryArtifactCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired entries and fence marks
func (c *InMemoryArtifactCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	for id, m := range c.fences {
		if !now.Before(m.expiresAt) {
			delete(c.fences, id)
		}
	}
}

// FenceCount returns the number of tracked document fences
func (c *InMemoryArtifactCache) FenceCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fences)
}

var _ ArtifactCache = (*InMemoryArtifactCache)(nil)
