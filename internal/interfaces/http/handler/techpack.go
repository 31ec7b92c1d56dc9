package handler

import (
	"context"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/techpack/backend/internal/application/rendering"
	"github.com/techpack/backend/internal/domain/techpack"
	"github.com/techpack/backend/internal/interfaces/http/dto"
)

// Artifact response headers
const (
	HeaderCache          = "X-Cache"
	HeaderContentVersion = "X-Content-Version"
	HeaderPageCount      = "X-Page-Count"
)

// TechPackService is the render pipeline as seen by the HTTP layer
type TechPackService interface {
	Generate(ctx context.Context, documentID string, options techpack.RenderOptions) (*techpack.Artifact, error)
	Preview(ctx context.Context, documentID string, pageNumber int, options techpack.RenderOptions) (*techpack.Artifact, error)
	BulkGenerate(ctx context.Context, documentIDs []string, options techpack.RenderOptions) (*rendering.BulkResult, error)
	Describe(ctx context.Context, documentID string) (*rendering.Description, error)
	OnDocumentMutated(ctx context.Context, documentID string) error
	OnDocumentsMutated(ctx context.Context, documentIDs []string) error
}

var _ TechPackService = (*rendering.RenderService)(nil)

// TechPackHandler serves document generation, preview and invalidation
type TechPackHandler struct {
	BaseHandler
	service TechPackService
}

// NewTechPackHandler creates a TechPackHandler
func NewTechPackHandler(service TechPackService) *TechPackHandler {
	return &TechPackHandler{service: service}
}

// PreviewQuery carries render overrides for GET requests
type PreviewQuery struct {
	Format        *string `form:"format"`
	Orientation   *string `form:"orientation"`
	IncludeImages *bool   `form:"include_images"`
	ImageQuality  *int    `form:"image_quality"`
}

func (q PreviewQuery) overrides() *techpack.OptionOverrides {
	return &techpack.OptionOverrides{
		Format:        q.Format,
		Orientation:   q.Orientation,
		IncludeImages: q.IncludeImages,
		ImageQuality:  q.ImageQuality,
	}
}

// Generate renders the full PDF of a document.
// POST /techpacks/:id/generate[?response=json]
func (h *TechPackHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if !h.BindJSON(c, &req, true) {
		return
	}
	options, err := req.Options.Resolve()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	artifact, err := h.service.Generate(c.Request.Context(), c.Param("id"), options)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if c.Query("response") == "json" {
		h.Success(c, dto.NewArtifactResponse(artifact))
		return
	}
	h.sendArtifact(c, artifact, "attachment")
}

// Preview renders one 1-based page as PNG.
// GET /techpacks/:id/pages/:page/preview
func (h *TechPackHandler) Preview(c *gin.Context) {
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeValidation, "Page must be a positive integer")
		return
	}
	var query PreviewQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.ErrorWithCode(c, dto.ErrCodeValidation, "Invalid preview options")
		return
	}
	options, err := query.overrides().Resolve()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	artifact, err := h.service.Preview(c.Request.Context(), c.Param("id"), page, options)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.sendArtifact(c, artifact, "inline")
}

// BulkGenerate renders several documents and reports per-document outcomes.
// POST /techpacks/bulk
func (h *TechPackHandler) BulkGenerate(c *gin.Context) {
	var req dto.BulkGenerateRequest
	if !h.BindJSON(c, &req, false) {
		return
	}
	options, err := req.Options.Resolve()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.service.BulkGenerate(c.Request.Context(), req.DocumentIDs, options)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Describe reports page estimates and generation readiness.
// GET /techpacks/:id
func (h *TechPackHandler) Describe(c *gin.Context) {
	desc, err := h.service.Describe(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, desc)
}

// DocumentMutated invalidates every cached artifact of one document. The
// reply is sent only after invalidation completed.
// POST /techpacks/:id/mutations
func (h *TechPackHandler) DocumentMutated(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.OnDocumentMutated(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.InvalidationResponse{Invalidated: []string{id}})
}

// DocumentsMutated invalidates several documents.
// POST /techpacks/mutations
func (h *TechPackHandler) DocumentsMutated(c *gin.Context) {
	var req dto.DocumentsMutatedRequest
	if !h.BindJSON(c, &req, false) {
		return
	}
	if err := h.service.OnDocumentsMutated(c.Request.Context(), req.DocumentIDs); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.InvalidationResponse{Invalidated: req.DocumentIDs})
}

func (h *TechPackHandler) sendArtifact(c *gin.Context, artifact *techpack.Artifact, disposition string) {
	cache := "MISS"
	if artifact.CacheHit {
		cache = "HIT"
	}
	c.Header(HeaderCache, cache)
	c.Header(HeaderContentVersion, artifact.ContentVersion)
	c.Header(HeaderPageCount, strconv.Itoa(artifact.Pages))
	c.Header("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": artifact.FileName()}))
	c.Data(http.StatusOK, artifact.ContentType(), artifact.Data)
}
