package dto

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/techpack/backend/internal/domain/shared"
	"github.com/techpack/backend/internal/domain/techpack"
)

// API error codes
const (
	ErrCodeInternal         = "ERR_INTERNAL"
	ErrCodeValidation       = "ERR_VALIDATION"
	ErrCodeInvalidJSON      = "ERR_INVALID_JSON"
	ErrCodeRequestTooLarge  = "ERR_REQUEST_TOO_LARGE"
	ErrCodeNotFound         = "ERR_NOT_FOUND"
	ErrCodeInvalidSnapshot  = "ERR_INVALID_SNAPSHOT"
	ErrCodePageOutOfRange   = "ERR_PAGE_OUT_OF_RANGE"
	ErrCodeTooManyDocuments = "ERR_TOO_MANY_DOCUMENTS"
	ErrCodeRateLimited      = "ERR_RATE_LIMITED"
	ErrCodePoolSaturated    = "ERR_POOL_SATURATED"
	ErrCodeRenderTimeout    = "ERR_RENDER_TIMEOUT"
	ErrCodeRenderFailed     = "ERR_RENDER_FAILED"
	ErrCodeCacheUnavailable = "ERR_CACHE_UNAVAILABLE"
	ErrCodeRequestCancelled = "ERR_REQUEST_CANCELLED"
	ErrCodeServiceNotReady  = "ERR_SERVICE_NOT_READY"
)

// StatusClientClosedRequest is reported when the caller went away mid-render
const StatusClientClosedRequest = 499

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:         http.StatusInternalServerError,
	ErrCodeValidation:       http.StatusBadRequest,
	ErrCodeInvalidJSON:      http.StatusBadRequest,
	ErrCodeRequestTooLarge:  http.StatusRequestEntityTooLarge,
	ErrCodeNotFound:         http.StatusNotFound,
	ErrCodeInvalidSnapshot:  http.StatusUnprocessableEntity,
	ErrCodePageOutOfRange:   http.StatusBadRequest,
	ErrCodeTooManyDocuments: http.StatusBadRequest,
	ErrCodeRateLimited:      http.StatusTooManyRequests,
	ErrCodePoolSaturated:    http.StatusServiceUnavailable,
	ErrCodeRenderTimeout:    http.StatusGatewayTimeout,
	ErrCodeRenderFailed:     http.StatusBadGateway,
	ErrCodeCacheUnavailable: http.StatusServiceUnavailable,
	ErrCodeRequestCancelled: StatusClientClosedRequest,
	ErrCodeServiceNotReady:  http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the status for an error code, 500 when unknown
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainCodes maps domain error codes onto API codes
var domainCodes = map[string]string{
	"NOT_FOUND":                   ErrCodeNotFound,
	"INVALID_INPUT":               ErrCodeValidation,
	techpack.CodeInvalidOptions:   ErrCodeValidation,
	techpack.CodePageOutOfRange:   ErrCodePageOutOfRange,
	techpack.CodeTooManyDocuments: ErrCodeTooManyDocuments,
	techpack.CodeInvalidSnapshot:  ErrCodeInvalidSnapshot,
}

// APIError is an error resolved into its transport form
type APIError struct {
	Status     int
	Info       ErrorInfo
	RetryAfter time.Duration
}

// FromError classifies err into an API error. Unknown errors become
// ERR_INTERNAL with a generic message so internals never leak.
func FromError(err error) *APIError {
	var (
		invalid   *techpack.InvalidSnapshotError
		saturated *techpack.PoolSaturatedError
		timeout   *techpack.RenderTimeoutError
		failed    *techpack.RenderFailedError
		rejected  *techpack.AdmissionRejectedError
		cacheErr  *techpack.CacheUnavailableError
		domain    *shared.DomainError
	)

	switch {
	case errors.As(err, &invalid):
		e := newAPIError(ErrCodeInvalidSnapshot, err.Error())
		e.Info.Details = invalid.Problems
		return e
	case errors.As(err, &saturated):
		e := newAPIError(ErrCodePoolSaturated, "All renderers are busy, retry shortly")
		e.retryAfter(max(saturated.Waited, time.Second))
		e.Info.Retryable = true
		return e
	case errors.As(err, &timeout):
		e := newAPIError(ErrCodeRenderTimeout, err.Error())
		e.Info.Retryable = true
		return e
	case errors.As(err, &rejected):
		e := newAPIError(ErrCodeRateLimited, err.Error())
		e.retryAfter(rejected.RetryAfter)
		e.Info.Retryable = true
		return e
	case errors.As(err, &failed):
		e := newAPIError(ErrCodeRenderFailed, "Rendering failed")
		e.Info.Retryable = true
		return e
	case errors.As(err, &cacheErr):
		e := newAPIError(ErrCodeCacheUnavailable, "Artifact cache unavailable, the request was not applied")
		e.Info.Retryable = true
		return e
	case errors.As(err, &domain):
		if code, ok := domainCodes[domain.Code]; ok {
			return newAPIError(code, domain.Message)
		}
	case errors.Is(err, context.DeadlineExceeded):
		e := newAPIError(ErrCodeRenderTimeout, "Request deadline exceeded")
		e.Info.Retryable = true
		return e
	case errors.Is(err, context.Canceled):
		return newAPIError(ErrCodeRequestCancelled, "Request cancelled")
	}
	return newAPIError(ErrCodeInternal, "An unexpected error occurred")
}

func newAPIError(code, message string) *APIError {
	return &APIError{
		Status: GetHTTPStatus(code),
		Info:   ErrorInfo{Code: code, Message: message},
	}
}

// retryAfter records a whole-second hint, never less than one second
func (e *APIError) retryAfter(d time.Duration) {
	secs := max(int(math.Ceil(d.Seconds())), 1)
	e.RetryAfter = time.Duration(secs) * time.Second
	e.Info.RetryAfterSeconds = &secs
}
