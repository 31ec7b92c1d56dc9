// Package printing renders Tech Pack pages to PDF and PNG.
//
// This package contains:
//   - Engine, the renderer abstraction owned by one pool slot, with the
//     chromedp (headless Chrome) and wkhtmltopdf implementations
//   - RenderPool, the bounded pool every render goes through. Slots move
//     between idle, busy, recycling and quarantined; a timed out, cancelled
//     or crashed engine is terminated and replaced
//   - TemplateEngine, which lays out one planned page (or the whole plan)
//     as HTML with the overlay applied
//   - Assembler, which merges per-page PDFs in page order with pdfcpu
//
// Example usage:
//
//	pool := NewRenderPool(PoolConfig{Size: 4}, NewChromedpEngineFactory(ChromedpConfig{NoSandbox: true}))
//	defer pool.Close(ctx)
//
//	result, err := pool.Submit(ctx, NewRenderJob("TP-1001", "v3", 0, &RenderRequest{
//	    HTML:      html,
//	    PaperSize: techpack.PaperSizeA4,
//	}))
package printing
