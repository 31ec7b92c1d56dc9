package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/techpack/backend/internal/domain/techpack"
)

const defaultL1TTL = 5 * time.Minute

// InvalidationBus fans invalidations out to sibling instances
type InvalidationBus interface {
	Publish(ctx context.Context, msg InvalidationMessage) error
	Subscribe(ctx context.Context, callback func(InvalidationMessage)) error
	Close() error
}

// TieredArtifactCache implements a two-tier caching strategy
// L1: local in-memory cache (fast, local to the instance)
// L2: Redis cache (shared across instances, owns the fences)
// L1 entries are tagged with the L2 fence they were read under and are only
// served while that fence is current. Pub/Sub messages drop L1 entries on
// sibling instances.
type TieredArtifactCache struct {
	l1     *InMemoryArtifactCache
	l2     ArtifactCache
	bus    InvalidationBus
	l1TTL  time.Duration
	logger *zap.Logger

	l1Hits atomic.Int64
}

// TieredOption is a functional option for configuring the cache
type TieredOption func(*TieredArtifactCache)

// WithL1TTL sets how long entries stay in the local tier
func WithL1TTL(ttl time.Duration) TieredOption {
	return func(c *TieredArtifactCache) {
		if ttl > 0 {
			c.l1TTL = ttl
		}
	}
}

// WithTieredLogger sets the logger for the cache
func WithTieredLogger(logger *zap.Logger) TieredOption {
	return func(c *TieredArtifactCache) {
		c.logger = logger
	}
}

// NewTieredArtifactCache creates a tiered cache. bus may be nil.
func NewTieredArtifactCache(l1 *InMemoryArtifactCache, l2 ArtifactCache, bus InvalidationBus, opts ...TieredOption) *TieredArtifactCache {
	c := &TieredArtifactCache{
		l1:     l1,
		l2:     l2,
		bus:    bus,
		l1TTL:  defaultL1TTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartInvalidationSubscription listens for peer invalidations until ctx is done.
// Run it in a goroutine.
func (c *TieredArtifactCache) StartInvalidationSubscription(ctx context.Context) error {
	if c.bus == nil {
		return nil
	}
	return c.bus.Subscribe(ctx, c.handleInvalidationMessage)
}

func (c *TieredArtifactCache) handleInvalidationMessage(msg InvalidationMessage) {
	switch msg.Action {
	case ActionDocuments:
		for _, id := range msg.DocumentIDs {
			c.l1.deletePrefix(DocumentPrefix(id))
		}
		c.logger.Debug("Invalidated L1 documents", zap.Strings("document_ids", msg.DocumentIDs))
	case ActionPattern:
		if msg.Prefix != "" {
			c.l1.deletePrefix(msg.Prefix)
		}
		c.logger.Debug("Invalidated L1 prefix", zap.String("prefix", msg.Prefix))
	case ActionFlush:
		c.l1.clear()
		c.logger.Info("Flushed L1 cache")
	default:
		c.logger.Warn("Unknown invalidation action", zap.String("action", string(msg.Action)))
	}
}

// Get reads the fence from L2, then tries L1 and falls back to L2
func (c *TieredArtifactCache) Get(ctx context.Context, key Key) (*techpack.Artifact, error) {
	fence, err := c.l2.Fence(ctx, key.DocumentID)
	if err != nil {
		return nil, err
	}

	if a := c.l1.getWithFence(key, fence); a != nil {
		c.l1Hits.Add(1)
		a.CacheHit = true
		return a, nil
	}

	a, err := c.l2.Get(ctx, key)
	if err != nil || a == nil {
		return a, err
	}
	// Tagged with the fence read before L2, so a concurrent invalidation
	// leaves this L1 copy unreachable
	c.l1.setWithFence(key, a, c.l1TTL, fence)
	return a, nil
}

// Put stores into L2 only; the L1 copy is populated on the next read
func (c *TieredArtifactCache) Put(ctx context.Context, key Key, artifact *techpack.Artifact, ttl time.Duration) error {
	return c.l2.Put(ctx, key, artifact, ttl)
}

// Fence returns the L2 fence
func (c *TieredArtifactCache) Fence(ctx context.Context, documentID string) (int64, error) {
	return c.l2.Fence(ctx, documentID)
}

// PutFenced stores into L2 and, when accepted, into L1 under the same fence
func (c *TieredArtifactCache) PutFenced(ctx context.Context, key Key, artifact *techpack.Artifact, ttl time.Duration, fence int64) (bool, error) {
	stored, err := c.l2.PutFenced(ctx, key, artifact, ttl, fence)
	if err != nil || !stored {
		return stored, err
	}
	if fence != NoFence {
		c.l1.setWithFence(key, artifact, min(c.l1TTL, normalizeTTL(ttl)), fence)
	}
	return true, nil
}

// Invalidate clears the document in L2, then L1, then tells peers
func (c *TieredArtifactCache) Invalidate(ctx context.Context, documentID string) error {
	return c.InvalidateMany(ctx, []string{documentID})
}

// InvalidateMany clears several documents in both tiers
func (c *TieredArtifactCache) InvalidateMany(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	if err := c.l2.InvalidateMany(ctx, documentIDs); err != nil {
		return err
	}
	for _, id := range documentIDs {
		c.l1.deletePrefix(DocumentPrefix(id))
	}
	c.publish(ctx, InvalidationMessage{Action: ActionDocuments, DocumentIDs: documentIDs})
	return nil
}

// InvalidatePattern clears keys by prefix in both tiers
func (c *TieredArtifactCache) InvalidatePattern(ctx context.Context, prefix string) error {
	if err := c.l2.InvalidatePattern(ctx, prefix); err != nil {
		return err
	}
	c.l1.deletePrefix(prefix)
	c.publish(ctx, InvalidationMessage{Action: ActionPattern, Prefix: prefix})
	return nil
}

// FlushAll clears both tiers
func (c *TieredArtifactCache) FlushAll(ctx context.Context) error {
	if err := c.l2.FlushAll(ctx); err != nil {
		return err
	}
	c.l1.clear()
	c.publish(ctx, InvalidationMessage{Action: ActionFlush})
	return nil
}

// publish is best effort; L1 reads are fence-checked against L2 regardless
func (c *TieredArtifactCache) publish(ctx context.Context, msg InvalidationMessage) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, msg); err != nil {
		c.logger.Warn("Failed to publish cache invalidation",
			zap.String("action", string(msg.Action)),
			zap.Error(err))
	}
}

// Stats combines the L2 counters with L1 hits
func (c *TieredArtifactCache) Stats() Stats {
	s := c.l2.Stats()
	s.Backend = BackendTiered
	s.L1Hits = c.l1Hits.Load()
	s.Hits += s.L1Hits
	s.Entries = int64(c.l1.Len())
	return s
}

// Close releases the bus and both tiers
func (c *TieredArtifactCache) Close() error {
	var lastErr error
	if c.bus != nil {
		if err := c.bus.Close(); err != nil {
			lastErr = err
		}
	}
	if err := c.l2.Close(); err != nil {
		lastErr = err
	}
	if err := c.l1.Close(); err != nil {
		lastErr = err
	}
	return lastErr
}

var _ ArtifactCache = (*TieredArtifactCache)(nil)
