// Package cache stores completed render artifacts keyed by document, content
// version, artifact kind and option variant.
//
// Every document carries an invalidation fence. Invalidate advances the fence
// before it deletes entries, entries remember the fence they were written
// under, and a read of an entry written under an older fence is a miss. A
// render that read the fence before loading its snapshot stores with
// PutFenced, which is dropped when an invalidation happened in between.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/techpack/backend/internal/domain/techpack"
)

// Backend names accepted by the factory
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendTiered = "tiered"
)

// NoFence makes a put unconditional
const NoFence int64 = -1

const defaultTTL = 24 * time.Hour

// ErrEmptyPrefix is returned by InvalidatePattern for an empty prefix,
// use FlushAll to clear everything
var ErrEmptyPrefix = errors.New("invalidation prefix must not be empty")

// ArtifactCache is the artifact store shared by all requests.
// Get returns (nil, nil) on a miss.
type ArtifactCache interface {
	Get(ctx context.Context, key Key) (*techpack.Artifact, error)
	Put(ctx context.Context, key Key, artifact *techpack.Artifact, ttl time.Duration) error

	// Fence returns the current invalidation fence of a document
	Fence(ctx context.Context, documentID string) (int64, error)
	// PutFenced stores the artifact only if the document fence still equals
	// fence. It reports whether the entry was stored.
	PutFenced(ctx context.Context, key Key, artifact *techpack.Artifact, ttl time.Duration, fence int64) (bool, error)

	Invalidate(ctx context.Context, documentID string) error
	InvalidatePattern(ctx context.Context, prefix string) error
	InvalidateMany(ctx context.Context, documentIDs []string) error
	FlushAll(ctx context.Context) error

	Stats() Stats
	Close() error
}

// =============================================================================
// Keys
// =============================================================================

// Key identifies one cached artifact
type Key struct {
	DocumentID     string
	ContentVersion string
	Kind           techpack.ArtifactKind
	Variant        string
	PageIndex      int // -1 unless Kind is preview
}

// DocumentKey is the key of a fully assembled document
func DocumentKey(documentID, contentVersion, variant string) Key {
	return Key{DocumentID: documentID, ContentVersion: contentVersion, Kind: techpack.ArtifactDocument, Variant: variant, PageIndex: -1}
}

// PreviewKey is the key of a single page preview
func PreviewKey(documentID, contentVersion, variant string, pageIndex int) Key {
	return Key{DocumentID: documentID, ContentVersion: contentVersion, Kind: techpack.ArtifactPreview, Variant: variant, PageIndex: pageIndex}
}

// MetaKey is the key of cached describe metadata
func MetaKey(documentID, contentVersion string) Key {
	return Key{DocumentID: documentID, ContentVersion: contentVersion, Kind: techpack.ArtifactMeta, Variant: "-", PageIndex: -1}
}

// String renders doc:{id}:v:{version}:{kind}:{variant}[:p{page}]
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(DocumentPrefix(k.DocumentID))
	b.WriteString("v:")
	b.WriteString(k.ContentVersion)
	b.WriteByte(':')
	b.WriteString(string(k.Kind))
	b.WriteByte(':')
	b.WriteString(k.Variant)
	if k.Kind == techpack.ArtifactPreview {
		b.WriteString(":p")
		b.WriteString(strconv.Itoa(k.PageIndex))
	}
	return b.String()
}

// Validate rejects keys that cannot be stored
func (k Key) Validate() error {
	switch {
	case k.DocumentID == "":
		return errors.New("cache key requires a document id")
	case k.ContentVersion == "":
		return errors.New("cache key requires a content version")
	case !k.Kind.IsValid():
		return fmt.Errorf("invalid artifact kind: %q", k.Kind)
	case k.Kind == techpack.ArtifactPreview && k.PageIndex < 0:
		return errors.New("preview key requires a page index")
	}
	return nil
}

// DocumentPrefix is the key prefix shared by every entry of a document
func DocumentPrefix(documentID string) string {
	return "doc:" + documentID + ":"
}

// =============================================================================
// TTL policy
// =============================================================================

// TTLPolicy maps artifact kinds to their time to live
type TTLPolicy struct {
	Document time.Duration
	Preview  time.Duration
	Meta     time.Duration
}

// For returns the TTL for an artifact kind
func (p TTLPolicy) For(kind techpack.ArtifactKind) time.Duration {
	var ttl time.Duration
	switch kind {
	case techpack.ArtifactDocument:
		ttl = p.Document
	case techpack.ArtifactPreview:
		ttl = p.Preview
	case techpack.ArtifactMeta:
		ttl = p.Meta
	}
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}

// =============================================================================
// Stats
// =============================================================================

// Stats is a point-in-time view of cache counters
type Stats struct {
	Backend       string `json:"backend"`
	Hits          int64  `json:"hits"`
	Misses        int64  `json:"misses"`
	Puts          int64  `json:"puts"`
	StaleDrops    int64  `json:"stale_drops"`
	Invalidations int64  `json:"invalidations"`
	Errors        int64  `json:"errors"`
	Entries       int64  `json:"entries"`
	L1Hits        int64  `json:"l1_hits,omitempty"`
}

// HitRatio returns hits / (hits + misses)
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type counters struct {
	hits          atomic.Int64
	misses        atomic.Int64
	puts          atomic.Int64
	staleDrops    atomic.Int64
	invalidations atomic.Int64
	errors        atomic.Int64
}

func (c *counters) snapshot(backend string) Stats {
	return Stats{
		Backend:       backend,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Puts:          c.puts.Load(),
		StaleDrops:    c.staleDrops.Load(),
		Invalidations: c.invalidations.Load(),
		Errors:        c.errors.Load(),
	}
}

// clone copies an artifact so cached payloads are never shared with callers
func clone(a *techpack.Artifact) *techpack.Artifact {
	cp := *a
	cp.Data = append([]byte(nil), a.Data...)
	return &cp
}

func unavailable(op string, err error) error {
	return &techpack.CacheUnavailableError{Op: op, Err: err}
}
