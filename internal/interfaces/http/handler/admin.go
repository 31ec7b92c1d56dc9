package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/techpack/backend/internal/application/rendering"
	"github.com/techpack/backend/internal/infrastructure/admission"
	"github.com/techpack/backend/internal/infrastructure/cache"
	"github.com/techpack/backend/internal/infrastructure/printing"
	"github.com/techpack/backend/internal/interfaces/http/dto"
)

// CacheAdmin drops cached artifacts in bulk
type CacheAdmin interface {
	InvalidatePattern(ctx context.Context, prefix string) error
	FlushCache(ctx context.Context) error
}

var _ CacheAdmin = (*rendering.RenderService)(nil)

// PoolAdmin exposes render pool state and quarantine reset
type PoolAdmin interface {
	Stats() printing.PoolStats
	ResetQuarantined() int
}

var _ PoolAdmin = (*printing.RenderPool)(nil)

// AdminHandler serves the operator endpoints
type AdminHandler struct {
	BaseHandler
	cache     CacheAdmin
	pool      PoolAdmin
	cacheInfo func() cache.Stats
	admission func() admission.Stats
}

// AdminOption configures an AdminHandler
type AdminOption func(*AdminHandler)

// WithCacheStats adds artifact cache counters to the pool report
func WithCacheStats(stats func() cache.Stats) AdminOption {
	return func(h *AdminHandler) { h.cacheInfo = stats }
}

// WithAdmissionStats adds admission counters to the pool report
func WithAdmissionStats(stats func() admission.Stats) AdminOption {
	return func(h *AdminHandler) { h.admission = stats }
}

// NewAdminHandler creates an AdminHandler
func NewAdminHandler(c CacheAdmin, pool PoolAdmin, opts ...AdminOption) *AdminHandler {
	h := &AdminHandler{cache: c, pool: pool}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PoolReport is the body of GET /admin/pool
type PoolReport struct {
	Pool      printing.PoolStats `json:"pool"`
	Cache     *cache.Stats       `json:"cache,omitempty"`
	Admission *admission.Stats   `json:"admission,omitempty"`
}

// InvalidatePattern drops every artifact under a key prefix.
// POST /admin/cache/invalidate
func (h *AdminHandler) InvalidatePattern(c *gin.Context) {
	var req dto.InvalidatePatternRequest
	if !h.BindJSON(c, &req, false) {
		return
	}
	if err := h.cache.InvalidatePattern(c.Request.Context(), req.Prefix); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.InvalidationResponse{Prefix: req.Prefix})
}

// FlushCache drops every cached artifact.
// POST /admin/cache/flush
func (h *AdminHandler) FlushCache(c *gin.Context) {
	if err := h.cache.FlushCache(c.Request.Context()); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.InvalidationResponse{Flushed: true})
}

// PoolStats reports render pool slots and counters.
// GET /admin/pool
func (h *AdminHandler) PoolStats(c *gin.Context) {
	report := PoolReport{Pool: h.pool.Stats()}
	if h.cacheInfo != nil {
		s := h.cacheInfo()
		report.Cache = &s
	}
	if h.admission != nil {
		s := h.admission()
		report.Admission = &s
	}
	h.Success(c, report)
}

// ResetPool returns quarantined slots to rotation.
// POST /admin/pool/reset
func (h *AdminHandler) ResetPool(c *gin.Context) {
	h.Success(c, dto.ResetPoolResponse{Reset: h.pool.ResetQuarantined()})
}
