package techpack

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/techpack/backend/internal/domain/shared"
)

// Pipeline error codes, shared with the transport layer
const (
	CodeInvalidSnapshot   = "INVALID_SNAPSHOT"
	CodePoolSaturated     = "POOL_SATURATED"
	CodeRenderTimeout     = "RENDER_TIMEOUT"
	CodeCacheUnavailable  = "CACHE_UNAVAILABLE"
	CodeAdmissionRejected = "ADMISSION_REJECTED"
	CodeRenderFailed      = "RENDER_FAILED"
	CodePageOutOfRange    = "PAGE_OUT_OF_RANGE"
	CodeInvalidOptions    = "INVALID_OPTIONS"
	CodeTooManyDocuments  = "TOO_MANY_DOCUMENTS"
)

// InvalidSnapshotError reports a malformed or incomplete document snapshot.
// It is never retried.
type InvalidSnapshotError struct {
	DocumentID string
	Problems   []string
}

func (e *InvalidSnapshotError) Error() string {
	if len(e.Problems) == 0 {
		return fmt.Sprintf("invalid snapshot for document %q", e.DocumentID)
	}
	return fmt.Sprintf("invalid snapshot for document %q: %s", e.DocumentID, strings.Join(e.Problems, "; "))
}

// PoolSaturatedError is returned when no render slot frees up within the submission timeout
type PoolSaturatedError struct {
	Waited time.Duration
}

func (e *PoolSaturatedError) Error() string {
	return fmt.Sprintf("render pool saturated: no slot available after %s", e.Waited)
}

// RenderTimeoutError reports a render job that exceeded its budget and was terminated
type RenderTimeoutError struct {
	DocumentID string
	PageIndex  int // -1 for whole-document jobs
	Budget     time.Duration
}

func (e *RenderTimeoutError) Error() string {
	if e.PageIndex < 0 {
		return fmt.Sprintf("render of document %q exceeded %s", e.DocumentID, e.Budget)
	}
	return fmt.Sprintf("render of document %q page %d exceeded %s", e.DocumentID, e.PageIndex+1, e.Budget)
}

// CacheUnavailableError wraps a cache backend failure. Reads treat it as a
// miss; invalidation returns it so the mutation is not acknowledged.
type CacheUnavailableError struct {
	Op  string
	Err error
}

func (e *CacheUnavailableError) Error() string {
	return fmt.Sprintf("artifact cache unavailable during %s: %v", e.Op, e.Err)
}

func (e *CacheUnavailableError) Unwrap() error {
	return e.Err
}

// AdmissionRejectedError is returned when a caller exhausted its request budget
type AdmissionRejectedError struct {
	Identity   string
	Class      string
	Limit      int
	RetryAfter time.Duration
}

func (e *AdmissionRejectedError) Error() string {
	return fmt.Sprintf("request budget exhausted for %s requests (limit %d), retry after %s",
		e.Class, e.Limit, e.RetryAfter.Round(time.Millisecond))
}

// RenderFailedError reports a render that crashed or produced no output
type RenderFailedError struct {
	DocumentID string
	PageIndex  int
	Err        error
}

func (e *RenderFailedError) Error() string {
	return fmt.Sprintf("render of document %q failed: %v", e.DocumentID, e.Err)
}

func (e *RenderFailedError) Unwrap() error {
	return e.Err
}

// NewPageOutOfRangeError reports a preview request outside the page plan
func NewPageOutOfRangeError(page, total int) *shared.DomainError {
	return shared.NewDomainError(CodePageOutOfRange,
		fmt.Sprintf("page %d is out of range, document has %d pages", page, total))
}

// IsRetryable reports whether the caller may retry the request with backoff
func IsRetryable(err error) bool {
	var saturated *PoolSaturatedError
	var timeout *RenderTimeoutError
	var failed *RenderFailedError
	return errors.As(err, &saturated) || errors.As(err, &timeout) || errors.As(err, &failed)
}

// ErrorCode returns the pipeline code for a known error, or an empty string
func ErrorCode(err error) string {
	var (
		invalid   *InvalidSnapshotError
		saturated *PoolSaturatedError
		timeout   *RenderTimeoutError
		cacheErr  *CacheUnavailableError
		rejected  *AdmissionRejectedError
		failed    *RenderFailedError
		domain    *shared.DomainError
	)
	switch {
	case errors.As(err, &invalid):
		return CodeInvalidSnapshot
	case errors.As(err, &saturated):
		return CodePoolSaturated
	case errors.As(err, &timeout):
		return CodeRenderTimeout
	case errors.As(err, &rejected):
		return CodeAdmissionRejected
	case errors.As(err, &cacheErr):
		return CodeCacheUnavailable
	case errors.As(err, &failed):
		return CodeRenderFailed
	case errors.As(err, &domain):
		return domain.Code
	}
	return ""
}
