package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/techpack/backend/internal/infrastructure/admission"
	"github.com/techpack/backend/internal/interfaces/http/middleware"
	"github.com/techpack/backend/internal/interfaces/http/router"
)

// admit returns the admission gate for class, or nothing when admitter is nil
func admit(admitter middleware.Admitter, class admission.Class) []gin.HandlerFunc {
	if admitter == nil {
		return nil
	}
	return []gin.HandlerFunc{middleware.Admission(admitter, class)}
}

func chain(pre []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	return append(pre, h)
}

// TechPackRoutes mounts generation, preview and mutation hooks under /techpacks.
// Rendering routes are gated by admitter; mutation hooks are not.
func TechPackRoutes(h *TechPackHandler, admitter middleware.Admitter) *router.DomainGroup {
	g := router.NewDomainGroup("techpacks", "/techpacks")

	// Static segments before :id
	g.POST("/bulk", chain(admit(admitter, admission.ClassBulk), h.BulkGenerate)...)
	g.POST("/mutations", h.DocumentsMutated)

	g.GET("/:id", chain(admit(admitter, admission.ClassPreview), h.Describe)...)
	g.POST("/:id/generate", chain(admit(admitter, admission.ClassSingle), h.Generate)...)
	g.GET("/:id/pages/:page/preview", chain(admit(admitter, admission.ClassPreview), h.Preview)...)
	g.POST("/:id/mutations", h.DocumentMutated)
	return g
}

// AdminRoutes mounts cache and pool operations under /admin
func AdminRoutes(h *AdminHandler) *router.DomainGroup {
	g := router.NewDomainGroup("admin", "/admin")

	c := g.Group("cache", "/cache")
	c.POST("/invalidate", h.InvalidatePattern)
	c.POST("/flush", h.FlushCache)

	p := g.Group("pool", "/pool")
	p.GET("", h.PoolStats)
	p.POST("/reset", h.ResetPool)
	return g
}

// HealthRoutes mounts the probes and, when metrics is set, the scrape endpoint
func HealthRoutes(h *HealthHandler, metrics http.Handler) *router.DomainGroup {
	g := router.NewDomainGroup("health", "")
	g.GET("/health", h.Health)
	g.GET("/health/live", h.Live)
	g.GET("/health/ready", h.Ready)
	if metrics != nil {
		g.GET("/metrics", gin.WrapH(metrics))
	}
	return g
}
