package rendering

import (
	"time"

	"github.com/techpack/backend/internal/domain/techpack"
)

// Description summarises what generating a document would produce
type Description struct {
	DocumentID          string                     `json:"document_id"`
	ContentVersion      string                     `json:"content_version"`
	EstimatedPages      int                        `json:"estimated_pages"`
	PagesByBlock        map[techpack.BlockType]int `json:"pages_by_block"`
	CanGenerate         bool                       `json:"can_generate"`
	Problems            []string                   `json:"problems,omitempty"`
	LifecycleStage      techpack.LifecycleStage    `json:"lifecycle_stage"`
	Watermark           string                     `json:"watermark,omitempty"`
	SupportedFormats    []techpack.OutputFormat    `json:"supported_formats"`
	SupportedPaperSizes []techpack.PaperSize       `json:"supported_paper_sizes"`
	CacheHit            bool                       `json:"cache_hit"`
}

// ArtifactRef points at a bulk artifact in object storage
type ArtifactRef struct {
	Key            string `json:"key"`
	URL            string `json:"url"`
	ContentVersion string `json:"content_version"`
	Size           int64  `json:"size"`
	Pages          int    `json:"pages"`
	CacheHit       bool   `json:"cache_hit"`
}

// ItemError describes why one document of a bulk run failed
type ItemError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// BulkItemResult is the outcome for one requested document
type BulkItemResult struct {
	DocumentID string       `json:"document_id"`
	Success    bool         `json:"success"`
	Artifact   *ArtifactRef `json:"artifact,omitempty"`
	Error      *ItemError   `json:"error,omitempty"`
}

// BulkSummary counts bulk outcomes
type BulkSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BulkResult holds one result per requested document, in request order
type BulkResult struct {
	RunID      string           `json:"run_id"`
	Results    []BulkItemResult `json:"results"`
	Summary    BulkSummary      `json:"summary"`
	StartedAt  time.Time        `json:"started_at"`
	DurationMS int64            `json:"duration_ms"`
}
