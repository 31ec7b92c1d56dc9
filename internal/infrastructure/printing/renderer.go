package printing

import (
	"context"
	"errors"
	"time"

	"github.com/techpack/backend/internal/domain/techpack"
)

// RenderRequest contains the parameters for rendering one HTML page or document
type RenderRequest struct {
	// HTML content to render
	HTML string
	// Output selects PDF or PNG output
	Output techpack.OutputFormat
	// PaperSize defines the output paper dimensions
	PaperSize techpack.PaperSize
	// Orientation defines portrait or landscape
	Orientation techpack.Orientation
	// Margins in millimeters
	Margins techpack.Margins
	// ImageQuality for embedded raster images (0-100)
	ImageQuality int
	// Title for the document metadata
	Title string
	// FooterHTML is printed at the bottom of every PDF page (optional)
	FooterHTML string
}

// RenderResult contains the output of one render
type RenderResult struct {
	// Data is the raw PDF or PNG content
	Data []byte
	// Format of Data
	Format techpack.OutputFormat
	// PageCount is the number of pages in a PDF result, 1 for images
	PageCount int
	// RenderDuration is how long the rendering took
	RenderDuration time.Duration
}

// Engine is one renderer instance owned by a pool slot. An engine renders
// one request at a time. Render must return promptly once ctx is done, and
// Close must terminate any external process the engine owns.
type Engine interface {
	Render(ctx context.Context, req *RenderRequest) (*RenderResult, error)
	// Health reports whether the engine can still accept work
	Health(ctx context.Context) error
	Close() error
}

// EngineFactory spawns a fresh engine for a pool slot
type EngineFactory func(ctx context.Context) (Engine, error)

// RenderError represents an error during rendering
type RenderError struct {
	Code    string
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// Error codes for rendering failures
const (
	ErrCodeRenderTimeout    = "RENDER_TIMEOUT"
	ErrCodeRenderFailed     = "RENDER_FAILED"
	ErrCodeInvalidHTML      = "INVALID_HTML"
	ErrCodeBinaryNotFound   = "BINARY_NOT_FOUND"
	ErrCodeInvalidPaperSize = "INVALID_PAPER_SIZE"
	ErrCodeEngineCrashed    = "ENGINE_CRASHED"
	ErrCodeEngineClosed     = "ENGINE_CLOSED"
	ErrCodeAssemblyFailed   = "ASSEMBLY_FAILED"
	ErrCodeStorageFailed    = "STORAGE_FAILED"
)

// NewRenderError creates a new RenderError
func NewRenderError(code, message string, cause error) *RenderError {
	return &RenderError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// isRequestError reports errors caused by the request itself. The engine
// that returned them is still healthy.
func isRequestError(err error) bool {
	var re *RenderError
	if !errors.As(err, &re) {
		return false
	}
	return re.Code == ErrCodeInvalidHTML || re.Code == ErrCodeInvalidPaperSize
}

// validateRequest runs the checks every engine performs before rendering
func validateRequest(req *RenderRequest) error {
	if req == nil {
		return NewRenderError(ErrCodeInvalidHTML, "render request is nil", nil)
	}
	if len(req.HTML) == 0 {
		return NewRenderError(ErrCodeInvalidHTML, "HTML content is empty", nil)
	}
	if !req.PaperSize.IsValid() {
		return NewRenderError(ErrCodeInvalidPaperSize, "invalid paper size: "+string(req.PaperSize), nil)
	}
	return nil
}

func mmToInches(mm float64) float64 {
	return mm / 25.4
}

// mmToPixels converts millimeters to CSS pixels at 96 DPI
func mmToPixels(mm int) int64 {
	return int64(float64(mm)/25.4*96 + 0.5)
}
