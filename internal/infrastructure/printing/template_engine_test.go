package printing

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techpack/backend/internal/domain/techpack"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func sampleSnapshot() *techpack.Snapshot {
	s := &techpack.Snapshot{
		DocumentID:     "TP-1001",
		ContentVersion: "v3",
		Article: techpack.Article{
			StyleNumber: "SS25-TEE-01",
			Name:        "Crew Neck Tee",
			Season:      "SS25",
			Sizes:       []string{"S", "M", "L"},
		},
		LifecycleStage: techpack.StageSampling,
		Brand:          "Northwind",
		Construction: []techpack.ConstructionEntry{
			{Step: 1, Title: "Shoulder seam", Instruction: "Overlock 4-thread", ImageRef: "img/shoulder.png"},
		},
		Notes: []techpack.RichTextBlock{
			{Title: "Folding", Markdown: "Fold in **thirds**.\n\n<script>alert(1)</script>"},
		},
	}
	for i := 0; i < 12; i++ {
		s.BOM = append(s.BOM, techpack.BOMItem{
			Component: fmt.Sprintf("component-%02d", i),
			Material:  "cotton jersey",
			Quantity:  decimal.RequireFromString("1.5"),
			Unit:      "m",
		})
	}
	s.Measurements = []techpack.MeasurementPoint{{
		Code:           "POM-01",
		Description:    "chest width",
		Values:         map[string]decimal.Decimal{"S": decimal.NewFromInt(48), "L": decimal.NewFromInt(52)},
		TolerancePlus:  decimal.RequireFromString("0.5"),
		ToleranceMinus: decimal.RequireFromString("0.5"),
	}}
	s.Colorways = []techpack.Colorway{{
		Name:  "Navy",
		Code:  "NV",
		Parts: []techpack.ColorPart{{Part: "body", ColorName: "navy", Hex: "#1B2A4A", Pantone: "19-4024"}},
	}}
	return s
}

func TestTemplateEngine_RenderPage(t *testing.T) {
	e := NewTemplateEngine(WithClock(func() time.Time { return fixedNow }))
	s := sampleSnapshot()
	opts := techpack.DefaultRenderOptions()

	t.Run("renders only the planned bom slice", func(t *testing.T) {
		html, err := e.RenderPage(&PageContent{
			Snapshot:   s,
			Page:       techpack.PageEntry{PageIndex: 2, Block: techpack.BlockBOM, Start: 10, End: 12},
			TotalPages: 6,
			Options:    opts,
		})
		require.NoError(t, err)

		assert.Contains(t, html, "component-10")
		assert.Contains(t, html, "component-11")
		assert.NotContains(t, html, "component-09")
		assert.Contains(t, html, "Bill of Materials")
		assert.Contains(t, html, "Page 3 of 6")
		assert.Contains(t, html, "1.50")
		assert.Contains(t, html, "printed 2026-03-14")
		assert.Contains(t, html, "@page { size: 210mm 297mm; margin: 10mm 10mm 10mm 10mm; }")
	})

	t.Run("measurement chart marks missing sizes", func(t *testing.T) {
		html, err := e.RenderPage(&PageContent{
			Snapshot:   s,
			Page:       techpack.PageEntry{PageIndex: 3, Block: techpack.BlockMeasurements, Start: 0, End: 1},
			TotalPages: 6,
			Options:    opts,
		})
		require.NoError(t, err)
		assert.Contains(t, html, "48.0")
		assert.Contains(t, html, "52.0")
		assert.Contains(t, html, `<td class="num">-</td>`)
		assert.Contains(t, html, "±0.5")
	})

	t.Run("packing notes render markdown without raw html", func(t *testing.T) {
		html, err := e.RenderPage(&PageContent{
			Snapshot:   s,
			Page:       techpack.PageEntry{PageIndex: 5, Block: techpack.BlockPackingNotes, Start: 0, End: 1},
			TotalPages: 6,
			Options:    opts,
		})
		require.NoError(t, err)
		assert.Contains(t, html, "<strong>thirds</strong>")
		assert.NotContains(t, html, "<script>alert(1)</script>")
	})

	t.Run("construction images follow include images", func(t *testing.T) {
		page := techpack.PageEntry{PageIndex: 4, Block: techpack.BlockConstruction, Start: 0, End: 1}

		with, err := e.RenderPage(&PageContent{Snapshot: s, Page: page, TotalPages: 6, Options: opts})
		require.NoError(t, err)
		assert.Contains(t, with, "img/shoulder.png")

		noImages := opts
		noImages.IncludeImages = false
		without, err := e.RenderPage(&PageContent{Snapshot: s, Page: page, TotalPages: 6, Options: noImages})
		require.NoError(t, err)
		assert.NotContains(t, without, "img/shoulder.png")
	})

	t.Run("center watermark", func(t *testing.T) {
		overlay := techpack.NewOverlayComposer().DeriveWatermark(techpack.StageSampling)
		html, err := e.RenderPage(&PageContent{
			Snapshot:   s,
			Page:       techpack.PageEntry{PageIndex: 0, Block: techpack.BlockHeader, Start: 0, End: 1},
			TotalPages: 6,
			Options:    opts,
			Overlay:    overlay,
		})
		require.NoError(t, err)
		assert.Contains(t, html, `<div class="wm-center">SAMPLE</div>`)
		assert.Contains(t, html, "rotate(-45.0deg)")
		assert.Contains(t, html, "#1E88E5")
		assert.Contains(t, html, "opacity: 0.18")
	})

	t.Run("tiled watermark", func(t *testing.T) {
		overlay := techpack.NewOverlayComposer().DeriveBrandWatermark("Northwind", "Acme")
		html, err := e.RenderPage(&PageContent{
			Snapshot:   s,
			Page:       techpack.PageEntry{PageIndex: 0, Block: techpack.BlockHeader, Start: 0, End: 1},
			TotalPages: 6,
			Options:    opts,
			Overlay:    overlay,
		})
		require.NoError(t, err)
		assert.Contains(t, html, `class="wm-tiles"`)
		assert.Equal(t, tiledWatermarkCount, strings.Count(html, "<span>NORTHWIND × ACME</span>"))
	})

	t.Run("logo is embedded as data url", func(t *testing.T) {
		html, err := e.RenderPage(&PageContent{
			Snapshot:   s,
			Page:       techpack.PageEntry{PageIndex: 0, Block: techpack.BlockHeader, Start: 0, End: 1},
			TotalPages: 1,
			Options:    opts,
			Logo:       &Logo{Data: []byte("\x89PNG\r\n\x1a\n"), ContentType: "image/png"},
		})
		require.NoError(t, err)
		assert.Contains(t, html, `src="data:image/png;base64,`)
	})

	t.Run("rejects a slice outside the block", func(t *testing.T) {
		_, err := e.RenderPage(&PageContent{
			Snapshot: s,
			Page:     techpack.PageEntry{PageIndex: 1, Block: techpack.BlockBOM, Start: 10, End: 20},
			Options:  opts,
		})
		var re *RenderError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, ErrCodeInvalidHTML, re.Code)
	})

	t.Run("nil content", func(t *testing.T) {
		_, err := e.RenderPage(nil)
		assert.Error(t, err)
	})
}

func TestTemplateEngine_RenderDocument(t *testing.T) {
	e := NewTemplateEngine(WithClock(func() time.Time { return fixedNow }))
	s := sampleSnapshot()

	plan, err := techpack.NewPagePlanner(techpack.DefaultPaginationRules()).Plan(s)
	require.NoError(t, err)

	html, err := e.RenderDocument(s, plan, techpack.DefaultRenderOptions(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, plan.Len(), strings.Count(html, `<section class="page"`))
	assert.Equal(t, 1, strings.Count(html, "<!DOCTYPE html>"))

	last := -1
	for i := 1; i <= plan.Len(); i++ {
		idx := strings.Index(html, fmt.Sprintf(`data-page="%d"`, i))
		require.Greater(t, idx, last, "page %d out of order", i)
		last = idx
	}

	t.Run("empty plan", func(t *testing.T) {
		_, err := e.RenderDocument(s, &techpack.PagePlan{}, techpack.DefaultRenderOptions(), nil, nil)
		assert.Error(t, err)
	})
}

func TestTemplateEngine_FooterHTML(t *testing.T) {
	e := NewTemplateEngine()
	s := sampleSnapshot()
	s.Article.StyleNumber = "<b>X</b>"

	footer := e.FooterHTML(s)
	assert.Contains(t, footer, `class="pageNumber"`)
	assert.Contains(t, footer, "&lt;b&gt;X&lt;/b&gt;")
}

func TestTemplateFunctions(t *testing.T) {
	t.Run("formatTolerance", func(t *testing.T) {
		assert.Equal(t, "±0.5", formatTolerance(decimal.RequireFromString("0.5"), decimal.RequireFromString("0.5")))
		assert.Equal(t, "+1 / -0.5", formatTolerance(decimal.NewFromInt(1), decimal.RequireFromString("0.5")))
	})

	t.Run("truncate", func(t *testing.T) {
		assert.Equal(t, "short", truncate("short", 10))
		assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
		assert.Equal(t, "façad…", truncate("façade front", 6))
	})

	t.Run("titleCase", func(t *testing.T) {
		assert.Equal(t, "Packing Notes", titleCase("packing notes"))
	})

	t.Run("formatDate", func(t *testing.T) {
		assert.Equal(t, "", formatDate(time.Time{}))
		assert.Equal(t, "2026-03-14", formatDate(fixedNow))
	})

	t.Run("escapeCSSString", func(t *testing.T) {
		assert.Equal(t, "red", escapeCSSString("red;}"))
	})

	t.Run("logo data url", func(t *testing.T) {
		var nilLogo *Logo
		assert.Empty(t, nilLogo.DataURL())
		assert.Equal(t, "data:image/svg+xml;base64,PHN2Zy8+", string((&Logo{Data: []byte("<svg/>"), ContentType: "image/svg+xml"}).DataURL()))
	})
}
