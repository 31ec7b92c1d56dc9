package printing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/techpack/backend/internal/domain/techpack"
)

const (
	defaultChromeStartTimeout = 20 * time.Second
	defaultScale              = 1.0
)

// ChromedpConfig contains configuration for the chromedp engine
type ChromedpConfig struct {
	// ExecPath of the Chrome/Chromium binary (optional, searched in PATH)
	ExecPath string
	// RemoteURL is the websocket URL of a remote Chrome instance (optional).
	// If empty, every engine launches its own browser process.
	RemoteURL string
	// StartTimeout bounds browser start-up
	StartTimeout time.Duration
	// NoSandbox runs Chrome without sandbox (required for Docker/root)
	NoSandbox bool
	// Scale for PDF rendering (default: 1.0)
	Scale float64
	// Logger for debug output
	Logger *zap.Logger
}

func (c *ChromedpConfig) applyDefaults() {
	if c.StartTimeout == 0 {
		c.StartTimeout = defaultChromeStartTimeout
	}
	if c.Scale == 0 {
		c.Scale = defaultScale
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// ChromedpEngine owns one headless browser process and renders each
// request in a fresh tab.
type ChromedpEngine struct {
	config        ChromedpConfig
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once
}

// NewChromedpEngine launches a browser and waits until it answers
func NewChromedpEngine(ctx context.Context, config ChromedpConfig) (*ChromedpEngine, error) {
	config.applyDefaults()

	e := &ChromedpEngine{
		config: config,
		logger: config.Logger,
	}

	var allocCtx context.Context
	if config.RemoteURL != "" {
		allocCtx, e.allocCancel = chromedp.NewRemoteAllocator(context.Background(), config.RemoteURL)
	} else {
		allocCtx, e.allocCancel = chromedp.NewExecAllocator(context.Background(), e.allocatorOptions()...)
	}

	e.browserCtx, e.browserCancel = chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			e.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	// The first Run starts the browser process. Its context must be the
	// browser context itself, a cancelled child would close the browser.
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(e.browserCtx)
	}()

	timer := time.NewTimer(config.StartTimeout)
	defer timer.Stop()

	select {
	case err := <-started:
		if err != nil {
			_ = e.Close()
			return nil, NewRenderError(ErrCodeBinaryNotFound, "failed to start browser", err)
		}
		return e, nil
	case <-timer.C:
		_ = e.Close()
		return nil, NewRenderError(ErrCodeRenderTimeout,
			fmt.Sprintf("browser did not start within %v", config.StartTimeout), nil)
	case <-ctx.Done():
		_ = e.Close()
		return nil, NewRenderError(ErrCodeEngineClosed, "browser start cancelled", ctx.Err())
	}
}

// NewChromedpEngineFactory returns a factory that launches one browser per slot
func NewChromedpEngineFactory(config ChromedpConfig) EngineFactory {
	return func(ctx context.Context) (Engine, error) {
		return NewChromedpEngine(ctx, config)
	}
}

func (e *ChromedpEngine) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if e.config.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	if e.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(e.config.ExecPath))
	}
	return opts
}

// Render loads the HTML into a new tab and prints it to PDF or captures a PNG
func (e *ChromedpEngine) Render(ctx context.Context, req *RenderRequest) (*RenderResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if e.browserCtx.Err() != nil {
		return nil, NewRenderError(ErrCodeEngineClosed, "browser is closed", e.browserCtx.Err())
	}

	startTime := time.Now()

	tabCtx, tabCancel := chromedp.NewContext(e.browserCtx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	html := buildCompleteHTML(req)

	var data []byte
	actions := []chromedp.Action{
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
	}

	if req.Output == techpack.OutputPNG {
		actions = append(actions, e.screenshotAction(req, &data))
	} else {
		actions = append(actions, e.printAction(req, &data))
	}

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, NewRenderError(ErrCodeRenderTimeout, "render timed out", err)
			}
			return nil, NewRenderError(ErrCodeRenderTimeout, "render was cancelled", err)
		}
		if e.browserCtx.Err() != nil {
			return nil, NewRenderError(ErrCodeEngineCrashed, "browser exited during render", err)
		}
		e.logger.Error("chromedp rendering failed", zap.Error(err))
		return nil, NewRenderError(ErrCodeRenderFailed, "chromedp execution failed", err)
	}

	if len(data) == 0 {
		return nil, NewRenderError(ErrCodeRenderFailed, "render produced no output", nil)
	}

	result := &RenderResult{
		Data:           data,
		Format:         outputOrDefault(req.Output),
		PageCount:      1,
		RenderDuration: time.Since(startTime),
	}
	if result.Format == techpack.OutputPDF {
		if n, err := CountPages(data); err == nil {
			result.PageCount = n
		}
	}

	e.logger.Debug("page rendered",
		zap.String("format", string(result.Format)),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", result.RenderDuration))

	return result, nil
}

func (e *ChromedpEngine) printAction(req *RenderRequest, out *[]byte) chromedp.Action {
	params := e.buildPrintParams(req)
	return chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPreferCSSPageSize(false).
			WithPaperWidth(params.paperWidth).
			WithPaperHeight(params.paperHeight).
			WithMarginTop(params.marginTop).
			WithMarginRight(params.marginRight).
			WithMarginBottom(params.marginBottom).
			WithMarginLeft(params.marginLeft).
			WithScale(params.scale).
			WithLandscape(params.landscape).
			WithDisplayHeaderFooter(params.footerTemplate != "").
			WithHeaderTemplate("<span></span>").
			WithFooterTemplate(params.footerTemplate).
			Do(ctx)
		if err != nil {
			return err
		}
		*out = data
		return nil
	})
}

func (e *ChromedpEngine) screenshotAction(req *RenderRequest, out *[]byte) chromedp.Action {
	width, height := pageSizeMM(req)
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := emulation.SetDeviceMetricsOverride(mmToPixels(width), mmToPixels(height), 1, false).Do(ctx); err != nil {
			return err
		}
		data, err := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithCaptureBeyondViewport(false).
			Do(ctx)
		if err != nil {
			return err
		}
		*out = data
		return nil
	})
}

// Health asks the browser for its version
func (e *ChromedpEngine) Health(ctx context.Context) error {
	if e.browserCtx.Err() != nil {
		return NewRenderError(ErrCodeEngineClosed, "browser is closed", e.browserCtx.Err())
	}
	checkCtx, cancel := context.WithCancel(e.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(checkCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, _, err := browser.GetVersion().Do(ctx)
		return err
	}))
}

// Close terminates the browser process
func (e *ChromedpEngine) Close() error {
	e.closeOnce.Do(func() {
		if e.browserCancel != nil {
			e.browserCancel()
		}
		if e.allocCancel != nil {
			e.allocCancel()
		}
	})
	return nil
}

// printParams holds the parameters for PDF printing, in inches
type printParams struct {
	paperWidth     float64
	paperHeight    float64
	marginTop      float64
	marginRight    float64
	marginBottom   float64
	marginLeft     float64
	scale          float64
	landscape      bool
	footerTemplate string
}

// buildPrintParams constructs the print parameters from the render request
func (e *ChromedpEngine) buildPrintParams(req *RenderRequest) *printParams {
	width, height := req.PaperSize.Dimensions()
	params := &printParams{
		paperWidth:     mmToInches(float64(width)),
		paperHeight:    mmToInches(float64(height)),
		marginTop:      mmToInches(float64(req.Margins.Top)),
		marginRight:    mmToInches(float64(req.Margins.Right)),
		marginBottom:   mmToInches(float64(req.Margins.Bottom)),
		marginLeft:     mmToInches(float64(req.Margins.Left)),
		scale:          e.config.Scale,
		landscape:      req.Orientation == techpack.OrientationLandscape,
		footerTemplate: req.FooterHTML,
	}

	// Chrome draws the footer inside the bottom margin
	if params.footerTemplate != "" && params.marginBottom < mmToInches(10) {
		params.marginBottom = mmToInches(10)
	}
	return params
}

// buildCompleteHTML wraps a fragment in a full document
func buildCompleteHTML(req *RenderRequest) string {
	lower := strings.ToLower(req.HTML)
	if strings.Contains(lower, "<!doctype") || strings.Contains(lower, "<html") {
		return req.HTML
	}

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html><html><head>")
	buf.WriteString("<meta charset=\"UTF-8\">")
	if req.Title != "" {
		buf.WriteString("<title>")
		buf.WriteString(req.Title)
		buf.WriteString("</title>")
	}
	buf.WriteString("</head><body>")
	buf.WriteString(req.HTML)
	buf.WriteString("</body></html>")
	return buf.String()
}

func pageSizeMM(req *RenderRequest) (width, height int) {
	width, height = req.PaperSize.Dimensions()
	if req.Orientation == techpack.OrientationLandscape {
		return height, width
	}
	return width, height
}

func outputOrDefault(f techpack.OutputFormat) techpack.OutputFormat {
	if f == "" {
		return techpack.OutputPDF
	}
	return f
}

var _ Engine = (*ChromedpEngine)(nil)
