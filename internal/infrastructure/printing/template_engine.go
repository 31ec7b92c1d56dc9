package printing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/techpack/backend/internal/domain/techpack"
)

// tiledWatermarkCount is the number of repeated marks in a tiled overlay
const tiledWatermarkCount = 12

// Logo is a resolved logo image ready to embed
type Logo struct {
	Data        []byte
	ContentType string
}

// DataURL returns the logo as a data URL, or an empty URL when unset
func (l *Logo) DataURL() template.URL {
	if l == nil || len(l.Data) == 0 {
		return ""
	}
	contentType := l.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(l.Data)
	}
	return template.URL("data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(l.Data))
}

// PageContent is everything needed to lay out one planned page
type PageContent struct {
	Snapshot   *techpack.Snapshot
	Page       techpack.PageEntry
	TotalPages int
	Options    techpack.RenderOptions
	Overlay    *techpack.OverlayDescriptor
	Logo       *Logo
}

// TemplateEngine turns planned pages into HTML. Templates are parsed
// once; the engine is safe for concurrent use.
type TemplateEngine struct {
	tmpl     *template.Template
	markdown goldmark.Markdown
	now      func() time.Time
}

// TemplateEngineOption configures the template engine
type TemplateEngineOption func(*TemplateEngine)

// WithClock sets the time source used for the printed-at footer
func WithClock(now func() time.Time) TemplateEngineOption {
	return func(e *TemplateEngine) {
		e.now = now
	}
}

// NewTemplateEngine creates a new template engine with the built-in layouts
func NewTemplateEngine(opts ...TemplateEngineOption) *TemplateEngine {
	e := &TemplateEngine{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithXHTML(),
			),
		),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	funcMap := template.FuncMap{
		"formatDecimal":   formatDecimal,
		"formatTolerance": formatTolerance,
		"formatDate":      formatDate,
		"title":           titleCase,
		"upper":           strings.ToUpper,
		"join":            strings.Join,
		"truncate":        truncate,
		"add":             func(a, b int) int { return a + b },
		"valueFor": func(p techpack.MeasurementPoint, size string) string {
			v, ok := p.ValueFor(size)
			if !ok {
				return "-"
			}
			return formatDecimal(v, 1)
		},
		"swatch": func(hex string) template.CSS {
			if hex == "" {
				return "background: repeating-linear-gradient(45deg,#eee,#eee 4px,#fff 4px,#fff 8px)"
			}
			return template.CSS("background:" + escapeCSSString(hex))
		},
	}
	e.tmpl = template.Must(template.New("techpack").Funcs(funcMap).Parse(pageTemplates))
	return e
}

// pageView is the data bound to the layout template
type pageView struct {
	Title        string
	DocumentID   string
	Version      string
	Stage        string
	Block        string
	BlockTitle   string
	PageNumber   int
	TotalPages   int
	PrintedAt    time.Time
	Article      techpack.Article
	BOM          []techpack.BOMItem
	Measurements []techpack.MeasurementPoint
	Sizes        []string
	Construction []techpack.ConstructionEntry
	Colorways    []techpack.Colorway
	Notes        []noteView
	ShowImages   bool
	PageCSS      template.CSS
	OverlayCSS   template.CSS
	Watermark    string
	Tiles        []int
	LogoURL      template.URL
}

type noteView struct {
	Title string
	HTML  template.HTML
}

// RenderPage renders one planned page as a complete HTML document
func (e *TemplateEngine) RenderPage(content *PageContent) (string, error) {
	if content == nil || content.Snapshot == nil {
		return "", NewRenderError(ErrCodeInvalidHTML, "page content is nil", nil)
	}

	view, err := e.buildView(content)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := e.tmpl.ExecuteTemplate(&buf, "document", []*pageView{view}); err != nil {
		return "", NewRenderError(ErrCodeRenderFailed, "failed to execute template", err)
	}
	return buf.String(), nil
}

// RenderDocument renders every planned page into one HTML document with
// CSS page breaks between pages.
func (e *TemplateEngine) RenderDocument(snapshot *techpack.Snapshot, plan *techpack.PagePlan,
	options techpack.RenderOptions, overlay *techpack.OverlayDescriptor, logo *Logo) (string, error) {
	if snapshot == nil || plan == nil || plan.Len() == 0 {
		return "", NewRenderError(ErrCodeInvalidHTML, "nothing to render", nil)
	}

	views := make([]*pageView, 0, plan.Len())
	for _, page := range plan.Pages {
		view, err := e.buildView(&PageContent{
			Snapshot:   snapshot,
			Page:       page,
			TotalPages: plan.Len(),
			Options:    options,
			Overlay:    overlay,
			Logo:       logo,
		})
		if err != nil {
			return "", err
		}
		views = append(views, view)
	}

	var buf bytes.Buffer
	if err := e.tmpl.ExecuteTemplate(&buf, "document", views); err != nil {
		return "", NewRenderError(ErrCodeRenderFailed, "failed to execute template", err)
	}
	return buf.String(), nil
}

// FooterHTML returns the PDF footer template with page numbers
func (e *TemplateEngine) FooterHTML(snapshot *techpack.Snapshot) string {
	return fmt.Sprintf(`<div style="font-size:7pt;width:100%%;padding:0 10mm;color:#777;display:flex;justify-content:space-between">`+
		`<span>%s &middot; %s</span><span class="pageNumber"></span></div>`,
		template.HTMLEscapeString(snapshot.Article.StyleNumber),
		template.HTMLEscapeString(snapshot.ContentVersion))
}

func (e *TemplateEngine) buildView(content *PageContent) (*pageView, error) {
	s := content.Snapshot
	page := content.Page
	if page.Start < 0 || page.End > s.BlockLen(page.Block) || page.Start > page.End {
		return nil, NewRenderError(ErrCodeInvalidHTML,
			fmt.Sprintf("page %d slice [%d,%d) is outside block %s", page.PageIndex+1, page.Start, page.End, page.Block), nil)
	}

	view := &pageView{
		Title:      s.Article.StyleNumber + " " + s.Article.Name,
		DocumentID: s.DocumentID,
		Version:    s.ContentVersion,
		Stage:      string(s.LifecycleStage),
		Block:      string(page.Block),
		BlockTitle: page.Block.Title(),
		PageNumber: page.PageIndex + 1,
		TotalPages: content.TotalPages,
		PrintedAt:  e.now(),
		Article:    s.Article,
		ShowImages: content.Options.IncludeImages,
		PageCSS:    pageCSS(content.Options),
		LogoURL:    content.Logo.DataURL(),
	}

	switch page.Block {
	case techpack.BlockBOM:
		view.BOM = s.BOM[page.Start:page.End]
	case techpack.BlockMeasurements:
		view.Measurements = s.Measurements[page.Start:page.End]
		view.Sizes = s.Article.Sizes
	case techpack.BlockConstruction:
		view.Construction = s.Construction[page.Start:page.End]
	case techpack.BlockColorways:
		view.Colorways = s.Colorways[page.Start:page.End]
	case techpack.BlockPackingNotes:
		for _, note := range s.Notes[page.Start:page.End] {
			rendered, err := e.markdownToHTML(note.Markdown)
			if err != nil {
				return nil, err
			}
			view.Notes = append(view.Notes, noteView{Title: note.Title, HTML: rendered})
		}
	}

	if o := content.Overlay; o.HasWatermark() {
		view.Watermark = o.WatermarkText
		view.OverlayCSS = buildWatermarkCSS(o)
		if o.Placement == techpack.PlacementTiled {
			view.Tiles = make([]int, tiledWatermarkCount)
		}
	}
	return view, nil
}

// markdownToHTML converts a packing note. Raw HTML in the source is
// dropped by goldmark's safe renderer.
func (e *TemplateEngine) markdownToHTML(source string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := e.markdown.Convert([]byte(source), &buf); err != nil {
		return "", NewRenderError(ErrCodeInvalidHTML, "failed to convert note markdown", err)
	}
	return template.HTML(buf.String()), nil
}

func pageCSS(o techpack.RenderOptions) template.CSS {
	width, height := o.PageSizeMM()
	return template.CSS(fmt.Sprintf("@page { size: %dmm %dmm; margin: %dmm %dmm %dmm %dmm; }",
		width, height, o.Margins.Top, o.Margins.Right, o.Margins.Bottom, o.Margins.Left))
}

// buildWatermarkCSS styles the overlay. Center placement is one fixed mark
// in the middle of the page; tiled placement repeats the mark on a grid.
func buildWatermarkCSS(o *techpack.OverlayDescriptor) template.CSS {
	color := escapeCSSString(o.ColorHex)
	if o.Placement == techpack.PlacementTiled {
		return template.CSS(fmt.Sprintf(`
.wm-tiles { position: fixed; inset: 0; display: grid; grid-template-columns: repeat(3, 1fr); grid-auto-rows: 1fr; z-index: 0; pointer-events: none; }
.wm-tiles span { display: flex; align-items: center; justify-content: center; transform: rotate(%.1fdeg); font-size: %.0fpt; font-weight: bold; color: %s; opacity: %.2f; white-space: nowrap; }
`, o.RotationDegrees, o.FontSizePt, color, o.Opacity))
	}
	return template.CSS(fmt.Sprintf(`
.wm-center { position: fixed; top: 50%%; left: 50%%; transform: translate(-50%%, -50%%) rotate(%.1fdeg); font-size: %.0fpt; font-weight: bold; color: %s; opacity: %.2f; z-index: 0; pointer-events: none; white-space: nowrap; }
`, o.RotationDegrees, o.FontSizePt, color, o.Opacity))
}

// escapeCSSString escapes a value placed inside a CSS declaration
func escapeCSSString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, ";", "")
	s = strings.ReplaceAll(s, "}", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

// =============================================================================
// Template Functions
// =============================================================================

// formatDecimal formats a decimal with specified precision
func formatDecimal(v decimal.Decimal, precision int) string {
	return v.StringFixed(int32(precision))
}

// formatTolerance formats a +/- tolerance pair, collapsing symmetric tolerances
func formatTolerance(plus, minus decimal.Decimal) string {
	if plus.Equal(minus) {
		return "±" + plus.String()
	}
	return "+" + plus.String() + " / -" + minus.String()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// titleCase converts a string to title case
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// truncate truncates a string to max runes with an ellipsis
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
