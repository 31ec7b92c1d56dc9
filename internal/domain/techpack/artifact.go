package techpack

import (
	"strconv"
	"time"
)

// Artifact is the binary output of a completed render
type Artifact struct {
	DocumentID     string       `json:"document_id"`
	ContentVersion string       `json:"content_version"`
	Kind           ArtifactKind `json:"kind"`
	Format         OutputFormat `json:"format"`
	PageIndex      int          `json:"page_index"` // -1 for whole documents
	Pages          int          `json:"pages"`
	Data           []byte       `json:"-"`
	CreatedAt      time.Time    `json:"created_at"`
	CacheHit       bool         `json:"cache_hit"`
}

// Size returns the payload size in bytes
func (a *Artifact) Size() int {
	return len(a.Data)
}

// ContentType returns the MIME type of the payload
func (a *Artifact) ContentType() string {
	return a.Format.ContentType()
}

// FileName returns a download file name for the artifact
func (a *Artifact) FileName() string {
	if a.Kind == ArtifactPreview {
		return a.DocumentID + "-" + a.ContentVersion + "-p" + strconv.Itoa(a.PageIndex+1) + ".png"
	}
	return a.DocumentID + "-" + a.ContentVersion + ".pdf"
}
