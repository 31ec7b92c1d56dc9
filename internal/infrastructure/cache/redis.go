package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/techpack/backend/internal/domain/techpack"
	"github.com/techpack/backend/internal/infrastructure/config"
)

const (
	defaultKeyPrefix     = "techpack:"
	defaultScanBatchSize = 200
	connectTimeout       = 5 * time.Second
)

// Fence values are drawn from one sequence key shared by document fences and
// the epoch, so no value is issued twice. A document's current fence is the
// larger of its fence key and the epoch. Document fence keys expire fenceTTL
// after their last bump and entry TTLs are clamped to fenceTTL, so entries
// written before an invalidation are gone before its fence key is.

// readScript returns the entry only if it was written under the current fence.
// KEYS: entry, document fence, epoch.
var readScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'data', 'meta', 'fence')
if not v[1] then return false end
local cur = math.max(tonumber(redis.call('GET', KEYS[2]) or '0'), tonumber(redis.call('GET', KEYS[3]) or '0'))
if tonumber(v[3]) ~= cur then return false end
return {v[1], v[2]}
`)

// writeScript stores the entry when ARGV[1] is negative or equals the current fence.
// KEYS: entry, document fence, epoch. ARGV: fence, data, meta, ttl ms.
var writeScript = redis.NewScript(`
local cur = math.max(tonumber(redis.call('GET', KEYS[2]) or '0'), tonumber(redis.call('GET', KEYS[3]) or '0'))
local want = tonumber(ARGV[1])
if want >= 0 and want ~= cur then return 0 end
redis.call('HSET', KEYS[1], 'data', ARGV[2], 'meta', ARGV[3], 'fence', tostring(cur))
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// advanceScript takes the next sequence value and sets it on every target.
// KEYS: sequence, targets. ARGV: expiry ms, 0 keeps the targets forever.
var advanceScript = redis.NewScript(`
local v = redis.call('INCR', KEYS[1])
local ttl = tonumber(ARGV[1])
for i = 2, #KEYS do
  if ttl > 0 then
    redis.call('SET', KEYS[i], v, 'PX', ttl)
  else
    redis.call('SET', KEYS[i], v)
  end
end
return v
`)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisArtifactCache implements ArtifactCache on Redis.
// Each entry is a hash with the payload, its metadata and the write fence.
type RedisArtifactCache struct {
	client     *redis.Client
	ownsClient bool
	prefix     string
	fenceTTL   time.Duration
	logger     *zap.Logger
	stats      counters
}

// RedisArtifactCacheOption is a functional option for configuring the cache
type RedisArtifactCacheOption func(*RedisArtifactCache)

// WithKeyPrefix sets the namespace prepended to every key
func WithKeyPrefix(prefix string) RedisArtifactCacheOption {
	return func(c *RedisArtifactCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithRedisFenceTTL sets how long a document fence outlives its last invalidation
func WithRedisFenceTTL(ttl time.Duration) RedisArtifactCacheOption {
	return func(c *RedisArtifactCache) {
		if ttl > 0 {
			c.fenceTTL = ttl
		}
	}
}

// WithCacheLogger sets the logger for the cache
func WithCacheLogger(logger *zap.Logger) RedisArtifactCacheOption {
	return func(c *RedisArtifactCache) {
		c.logger = logger
	}
}

// WithOwnedClient makes Close also close the Redis client
func WithOwnedClient() RedisArtifactCacheOption {
	return func(c *RedisArtifactCache) {
		c.ownsClient = true
	}
}

// NewRedisArtifactCache creates a cache over an existing client.
// The caller retains ownership of the client unless WithOwnedClient is given.
func NewRedisArtifactCache(client *redis.Client, opts ...RedisArtifactCacheOption) *RedisArtifactCache {
	c := &RedisArtifactCache{
		client: client,
		prefix:   defaultKeyPrefix,
		fenceTTL: defaultFenceTTL,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisArtifactCache) entryKey(key string) string {
	return c.prefix + key
}

// entryPattern is the SCAN glob for entries whose key starts with prefix
func (c *RedisArtifactCache) entryPattern(prefix string) string {
	return escapeGlob(c.prefix+prefix) + "*"
}

func (c *RedisArtifactCache) fenceKey(documentID string) string {
	return c.prefix + "fence:" + documentID
}

func (c *RedisArtifactCache) epochKey() string {
	return c.prefix + "epoch"
}

func (c *RedisArtifactCache) sequenceKey() string {
	return c.prefix + "fence-seq"
}

// advanceFences moves the given document fences past every issued value
func (c *RedisArtifactCache) advanceFences(ctx context.Context, documentIDs []string) error {
	keys := make([]string, 0, len(documentIDs)+1)
	keys = append(keys, c.sequenceKey())
	for _, id := range documentIDs {
		keys = append(keys, c.fenceKey(id))
	}
	return advanceScript.Run(ctx, c.client, keys, c.fenceTTL.Milliseconds()).Err()
}

func (c *RedisArtifactCache) advanceEpoch(ctx context.Context) error {
	return advanceScript.Run(ctx, c.client, []string{c.sequenceKey(), c.epochKey()}, 0).Err()
}

// Get retrieves an artifact written under the current fence
func (c *RedisArtifactCache) Get(ctx context.Context, key Key) (*techpack.Artifact, error) {
	res, err := readScript.Run(ctx, c.client,
		[]string{c.entryKey(key.String()), c.fenceKey(key.DocumentID), c.epochKey()}).StringSlice()
	if errors.Is(err, redis.Nil) {
		c.stats.misses.Add(1)
		return nil, nil
	}
	if err != nil {
		c.stats.errors.Add(1)
		return nil, unavailable("get", err)
	}
	if len(res) != 2 {
		c.stats.errors.Add(1)
		return nil, unavailable("get", fmt.Errorf("unexpected reply length %d", len(res)))
	}

	var artifact techpack.Artifact
	if err := json.Unmarshal([]byte(res[1]), &artifact); err != nil {
		c.logger.Warn("Dropping undecodable cache entry",
			zap.String("key", key.String()),
			zap.Error(err))
		c.client.Unlink(ctx, c.entryKey(key.String()))
		c.stats.misses.Add(1)
		return nil, nil
	}
	artifact.Data = []byte(res[0])
	artifact.CacheHit = true

	c.stats.hits.Add(1)
	return &artifact, nil
}

// Put stores the artifact under the current fence
func (c *RedisArtifactCache) Put(ctx context.Context, key Key, artifact *techpack.Artifact, ttl time.Duration) error {
	_, err := c.PutFenced(ctx, key, artifact, ttl, NoFence)
	return err
}

// Fence returns the larger of the document fence and the namespace epoch
func (c *RedisArtifactCache) Fence(ctx context.Context, documentID string) (int64, error) {
	vals, err := c.client.MGet(ctx, c.fenceKey(documentID), c.epochKey()).Result()
	if err != nil {
		c.stats.errors.Add(1)
		return 0, unavailable("fence", err)
	}

	var fence int64
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, unavailable("fence", fmt.Errorf("malformed fence %q: %w", s, err))
		}
		fence = max(fence, n)
	}
	return fence, nil
}

// PutFenced stores the artifact atomically with the fence check
func (c *RedisArtifactCache) PutFenced(ctx context.Context, key Key, artifact *techpack.Artifact, ttl time.Duration, fence int64) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	if artifact == nil {
		return false, nil
	}

	stored := *artifact
	stored.CacheHit = false
	meta, err := json.Marshal(&stored)
	if err != nil {
		return false, fmt.Errorf("failed to marshal artifact metadata: %w", err)
	}

	n, err := writeScript.Run(ctx, c.client,
		[]string{c.entryKey(key.String()), c.fenceKey(key.DocumentID), c.epochKey()},
		fence, artifact.Data, meta, min(normalizeTTL(ttl), c.fenceTTL).Milliseconds(),
	).Int()
	if err != nil {
		c.stats.errors.Add(1)
		return false, unavailable("put", err)
	}
	if n == 0 {
		c.stats.staleDrops.Add(1)
		c.logger.Debug("Dropped stale cache write",
			zap.String("key", key.String()),
			zap.Int64("fence", fence))
		return false, nil
	}
	c.stats.puts.Add(1)
	return true, nil
}

// Invalidate advances the document fence, then deletes its entries.
// Entries that survive a failed delete are unreachable once the fence moved.
func (c *RedisArtifactCache) Invalidate(ctx context.Context, documentID string) error {
	if err := c.advanceFences(ctx, []string{documentID}); err != nil {
		c.stats.errors.Add(1)
		return unavailable("invalidate", err)
	}
	c.stats.invalidations.Add(1)

	if _, err := c.deleteMatching(ctx, c.entryPattern(DocumentPrefix(documentID))); err != nil {
		c.stats.errors.Add(1)
		return unavailable("invalidate", err)
	}
	return nil
}

// InvalidateMany advances all fences in one script call, then deletes entries
func (c *RedisArtifactCache) InvalidateMany(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	if err := c.advanceFences(ctx, documentIDs); err != nil {
		c.stats.errors.Add(1)
		return unavailable("invalidate_many", err)
	}
	c.stats.invalidations.Add(int64(len(documentIDs)))

	for _, id := range documentIDs {
		if _, err := c.deleteMatching(ctx, c.entryPattern(DocumentPrefix(id))); err != nil {
			c.stats.errors.Add(1)
			return unavailable("invalidate_many", err)
		}
	}
	return nil
}

// InvalidatePattern advances the epoch and deletes entries by key prefix
func (c *RedisArtifactCache) InvalidatePattern(ctx context.Context, prefix string) error {
	if prefix == "" {
		return ErrEmptyPrefix
	}
	if err := c.advanceEpoch(ctx); err != nil {
		c.stats.errors.Add(1)
		return unavailable("invalidate_pattern", err)
	}
	c.stats.invalidations.Add(1)

	if _, err := c.deleteMatching(ctx, c.entryPattern(prefix)); err != nil {
		c.stats.errors.Add(1)
		return unavailable("invalidate_pattern", err)
	}
	return nil
}

// FlushAll advances the epoch and deletes every entry in the namespace.
// Fence keys are left to expire.
func (c *RedisArtifactCache) FlushAll(ctx context.Context) error {
	if err := c.advanceEpoch(ctx); err != nil {
		c.stats.errors.Add(1)
		return unavailable("flush", err)
	}
	c.stats.invalidations.Add(1)

	removed, err := c.deleteMatching(ctx, c.entryPattern("doc:"))
	if err != nil {
		c.stats.errors.Add(1)
		return unavailable("flush", err)
	}
	c.logger.Info("Flushed artifact cache", zap.Int("removed", removed))
	return nil
}

// deleteMatching scans for keys matching a glob and unlinks them in batches
func (c *RedisArtifactCache) deleteMatching(ctx context.Context, match string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, defaultScanBatchSize).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			if err := c.client.Unlink(ctx, keys...).Err(); err != nil {
				return removed, err
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Stats returns the cache counters
func (c *RedisArtifactCache) Stats() Stats {
	return c.stats.snapshot(BackendRedis)
}

// Ping checks the Redis connection
func (c *RedisArtifactCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client if the cache owns it
func (c *RedisArtifactCache) Close() error {
	if c.ownsClient {
		return c.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (c *RedisArtifactCache) Client() *redis.Client {
	return c.client
}

// escapeGlob quotes the Redis glob metacharacters in s
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ ArtifactCache = (*RedisArtifactCache)(nil)
