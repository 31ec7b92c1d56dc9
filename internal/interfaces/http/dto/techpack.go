package dto

import (
	"github.com/techpack/backend/internal/domain/techpack"
)

// GenerateRequest is the optional body of a generate call
type GenerateRequest struct {
	Options *techpack.OptionOverrides `json:"options"`
}

// BulkGenerateRequest asks for several documents in one call
type BulkGenerateRequest struct {
	DocumentIDs []string                  `json:"document_ids" binding:"required,min=1,dive,required,max=128"`
	Options     *techpack.OptionOverrides `json:"options"`
}

// DocumentsMutatedRequest invalidates several documents
type DocumentsMutatedRequest struct {
	DocumentIDs []string `json:"document_ids" binding:"required,min=1,dive,required,max=128"`
}

// InvalidatePatternRequest removes every artifact under a key prefix
type InvalidatePatternRequest struct {
	Prefix string `json:"prefix" binding:"required,min=4,max=256"`
}

// InvalidationResponse acknowledges a completed invalidation
type InvalidationResponse struct {
	Invalidated []string `json:"invalidated,omitempty"`
	Prefix      string   `json:"prefix,omitempty"`
	Flushed     bool     `json:"flushed,omitempty"`
}

// ArtifactResponse describes a generated artifact without its bytes
type ArtifactResponse struct {
	DocumentID     string `json:"document_id"`
	ContentVersion string `json:"content_version"`
	Format         string `json:"format"`
	Pages          int    `json:"pages"`
	Size           int    `json:"size"`
	FileName       string `json:"file_name"`
	CacheHit       bool   `json:"cache_hit"`
	PageIndex      *int   `json:"page_index,omitempty"`
}

// NewArtifactResponse summarises an artifact for a JSON reply
func NewArtifactResponse(a *techpack.Artifact) ArtifactResponse {
	resp := ArtifactResponse{
		DocumentID:     a.DocumentID,
		ContentVersion: a.ContentVersion,
		Format:         string(a.Format),
		Pages:          a.Pages,
		Size:           a.Size(),
		FileName:       a.FileName(),
		CacheHit:       a.CacheHit,
	}
	if a.PageIndex >= 0 {
		idx := a.PageIndex
		resp.PageIndex = &idx
	}
	return resp
}

// ResetPoolResponse reports slots returned to rotation
type ResetPoolResponse struct {
	Reset int `json:"reset"`
}

// HealthResponse is the body of the health probes
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}
