package printing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/techpack/backend/internal/domain/techpack"
)

const (
	defaultPDFBinaryPath   = "wkhtmltopdf"
	defaultImageBinaryPath = "wkhtmltoimage"
	defaultDPI             = 96
	defaultImageQuality    = 94
)

// WkhtmltopdfConfig contains configuration for the wkhtmltopdf engine
type WkhtmltopdfConfig struct {
	// BinaryPath is the path to the wkhtmltopdf binary. If empty, searched in PATH
	BinaryPath string
	// ImageBinaryPath is the path to wkhtmltoimage, used for previews
	ImageBinaryPath string
	// TempDir for temporary files during rendering
	TempDir string
	// DPI for rendering (default: 96)
	DPI int
	// Logger for debug output
	Logger *zap.Logger
}

func (c *WkhtmltopdfConfig) applyDefaults() {
	if c.BinaryPath == "" {
		c.BinaryPath = defaultPDFBinaryPath
	}
	if c.ImageBinaryPath == "" {
		c.ImageBinaryPath = defaultImageBinaryPath
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.DPI == 0 {
		c.DPI = defaultDPI
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// WkhtmltopdfEngine renders by running the wkhtmltopdf command-line tool.
// Each render is one child process; Close kills a render in flight.
type WkhtmltopdfEngine struct {
	config WkhtmltopdfConfig
	logger *zap.Logger

	mu      sync.Mutex
	running *exec.Cmd
	closed  bool
}

// NewWkhtmltopdfEngine verifies the binaries exist and creates an engine
func NewWkhtmltopdfEngine(config WkhtmltopdfConfig) (*WkhtmltopdfEngine, error) {
	config.applyDefaults()

	binaryPath, err := resolveBinaryPath(config.BinaryPath)
	if err != nil {
		return nil, NewRenderError(ErrCodeBinaryNotFound,
			fmt.Sprintf("wkhtmltopdf binary not found: %s", config.BinaryPath), err)
	}
	config.BinaryPath = binaryPath

	// Previews are optional, a missing wkhtmltoimage only fails PNG renders
	if imagePath, err := resolveBinaryPath(config.ImageBinaryPath); err == nil {
		config.ImageBinaryPath = imagePath
	}

	return &WkhtmltopdfEngine{
		config: config,
		logger: config.Logger,
	}, nil
}

// NewWkhtmltopdfEngineFactory returns a factory for pool slots
func NewWkhtmltopdfEngineFactory(config WkhtmltopdfConfig) EngineFactory {
	return func(ctx context.Context) (Engine, error) {
		return NewWkhtmltopdfEngine(config)
	}
}

// resolveBinaryPath finds the full path to the binary
func resolveBinaryPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil {
			return "", err
		}
		return path, nil
	}
	return exec.LookPath(path)
}

// Render converts HTML content to PDF or PNG
func (r *WkhtmltopdfEngine) Render(ctx context.Context, req *RenderRequest) (*RenderResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	startTime := time.Now()
	format := outputOrDefault(req.Output)

	htmlPath, err := r.writeTemp(buildCompleteHTML(req), "techpack-*.html")
	if err != nil {
		return nil, NewRenderError(ErrCodeRenderFailed, "failed to write HTML to temp file", err)
	}
	defer os.Remove(htmlPath)

	outPath, err := r.writeTemp("", "techpack-out-*."+string(format))
	if err != nil {
		return nil, NewRenderError(ErrCodeRenderFailed, "failed to create temp output file", err)
	}
	defer os.Remove(outPath)

	binary, args := r.config.BinaryPath, r.buildPDFArgs(req, htmlPath, outPath)
	if format == techpack.OutputPNG {
		binary, args = r.config.ImageBinaryPath, r.buildImageArgs(req, htmlPath, outPath)
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	startInOwnGroup(cmd)
	cmd.Cancel = func() error {
		killProcessGroup(cmd.Process.Pid)
		return nil
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := r.start(cmd); err != nil {
		return nil, err
	}
	err = cmd.Wait()
	r.finish()

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewRenderError(ErrCodeRenderTimeout, "render timed out", err)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, NewRenderError(ErrCodeRenderTimeout, "render was cancelled", err)
		}
		if r.isClosed() {
			return nil, NewRenderError(ErrCodeEngineClosed, "engine closed during render", err)
		}

		r.logger.Error("wkhtmltopdf failed",
			zap.Error(err),
			zap.String("stderr", stderr.String()))
		return nil, NewRenderError(ErrCodeEngineCrashed, "wkhtmltopdf execution failed: "+stderr.String(), err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, NewRenderError(ErrCodeRenderFailed, "failed to read render output", err)
	}
	if len(data) == 0 {
		return nil, NewRenderError(ErrCodeRenderFailed, "render produced no output", nil)
	}

	result := &RenderResult{
		Data:           data,
		Format:         format,
		PageCount:      1,
		RenderDuration: time.Since(startTime),
	}
	if format == techpack.OutputPDF {
		if n, err := CountPages(data); err == nil {
			result.PageCount = n
		}
	}
	return result, nil
}

func (r *WkhtmltopdfEngine) start(cmd *exec.Cmd) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return NewRenderError(ErrCodeEngineClosed, "engine is closed", nil)
	}
	if err := cmd.Start(); err != nil {
		return NewRenderError(ErrCodeEngineCrashed, "failed to start wkhtmltopdf", err)
	}
	r.running = cmd
	return nil
}

func (r *WkhtmltopdfEngine) finish() {
	r.mu.Lock()
	r.running = nil
	r.mu.Unlock()
}

func (r *WkhtmltopdfEngine) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// buildPDFArgs constructs the command-line arguments for wkhtmltopdf
func (r *WkhtmltopdfEngine) buildPDFArgs(req *RenderRequest, htmlPath, outPath string) []string {
	quality := req.ImageQuality
	if quality <= 0 {
		quality = defaultImageQuality
	}
	args := []string{
		"--quiet",
		"--encoding", "UTF-8",
		"--dpi", strconv.Itoa(r.config.DPI),
		"--image-quality", strconv.Itoa(quality),
		"--page-size", wkPageSize(req.PaperSize),
		"--orientation", wkOrientation(req.Orientation),
		"--margin-top", fmt.Sprintf("%dmm", req.Margins.Top),
		"--margin-right", fmt.Sprintf("%dmm", req.Margins.Right),
		"--margin-bottom", fmt.Sprintf("%dmm", req.Margins.Bottom),
		"--margin-left", fmt.Sprintf("%dmm", req.Margins.Left),
		"--disable-javascript",
		"--disable-local-file-access",
	}
	if req.Title != "" {
		args = append(args, "--title", req.Title)
	}
	return append(args, htmlPath, outPath)
}

// buildImageArgs constructs the command-line arguments for wkhtmltoimage
func (r *WkhtmltopdfEngine) buildImageArgs(req *RenderRequest, htmlPath, outPath string) []string {
	width, height := pageSizeMM(req)
	return []string{
		"--quiet",
		"--format", "png",
		"--width", strconv.FormatInt(mmToPixels(width), 10),
		"--height", strconv.FormatInt(mmToPixels(height), 10),
		"--disable-javascript",
		"--disable-local-file-access",
		htmlPath, outPath,
	}
}

func wkPageSize(p techpack.PaperSize) string {
	switch p {
	case techpack.PaperSizeLetter:
		return "Letter"
	case techpack.PaperSizeLegal:
		return "Legal"
	default:
		return "A4"
	}
}

func wkOrientation(o techpack.Orientation) string {
	if o == techpack.OrientationLandscape {
		return "Landscape"
	}
	return "Portrait"
}

// writeTemp writes content to a new temporary file and returns its path
func (r *WkhtmltopdfEngine) writeTemp(content, pattern string) (string, error) {
	file, err := os.CreateTemp(r.config.TempDir, pattern)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := file.WriteString(content); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

// Health checks the binary is still present
func (r *WkhtmltopdfEngine) Health(ctx context.Context) error {
	if r.isClosed() {
		return NewRenderError(ErrCodeEngineClosed, "engine is closed", nil)
	}
	if _, err := os.Stat(r.config.BinaryPath); err != nil {
		return NewRenderError(ErrCodeBinaryNotFound, "wkhtmltopdf binary disappeared", err)
	}
	return nil
}

// Close kills a render in flight and rejects further renders
func (r *WkhtmltopdfEngine) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.running != nil && r.running.Process != nil {
		killProcessGroup(r.running.Process.Pid)
	}
	return nil
}

var _ Engine = (*WkhtmltopdfEngine)(nil)
