package printing

// pageTemplates holds the built-in Tech Pack layouts. "document" renders a
// list of pages; each page dispatches on its block type.
const pageTemplates = `
{{define "document"}}<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{with index . 0}}{{.Title}}{{end}}</title>
<style>
{{with index . 0}}{{.PageCSS}}{{.OverlayCSS}}{{end}}
* { box-sizing: border-box; }
body { font-family: "Helvetica Neue", Arial, sans-serif; font-size: 9pt; color: #212121; margin: 0; }
.page { position: relative; page-break-after: always; break-after: page; }
.page:last-child { page-break-after: auto; break-after: auto; }
.content { position: relative; z-index: 1; }
header.bar { display: flex; justify-content: space-between; align-items: center; border-bottom: 2px solid #212121; padding-bottom: 4pt; margin-bottom: 8pt; }
header.bar .meta { font-size: 8pt; color: #616161; text-align: right; }
header.bar img.logo { max-height: 28pt; max-width: 120pt; }
h1 { font-size: 16pt; margin: 0; }
h2 { font-size: 12pt; margin: 0 0 6pt 0; }
table { width: 100%; border-collapse: collapse; }
th, td { border: 0.5pt solid #9E9E9E; padding: 3pt 4pt; text-align: left; vertical-align: top; }
th { background: #F5F5F5; font-weight: 600; }
td.num { text-align: right; font-variant-numeric: tabular-nums; }
dl.article { display: grid; grid-template-columns: 30% 70%; row-gap: 4pt; }
dl.article dt { font-weight: 600; }
.swatches { display: grid; grid-template-columns: repeat(2, 1fr); gap: 8pt; }
.colorway { border: 0.5pt solid #9E9E9E; padding: 6pt; }
.chip { display: inline-block; width: 18pt; height: 18pt; border: 0.5pt solid #616161; vertical-align: middle; margin-right: 4pt; }
.note { margin-bottom: 8pt; }
footer.page-footer { margin-top: 8pt; font-size: 7pt; color: #757575; display: flex; justify-content: space-between; }
</style>
</head>
<body>
{{range .}}<section class="page" data-block="{{.Block}}" data-page="{{.PageNumber}}">
{{if .Watermark}}{{if .Tiles}}<div class="wm-tiles">{{$w := .Watermark}}{{range .Tiles}}<span>{{$w}}</span>{{end}}</div>{{else}}<div class="wm-center">{{.Watermark}}</div>{{end}}{{end}}
<div class="content">
{{template "bar" .}}
{{if eq .Block "header"}}{{template "header" .}}{{end}}
{{if eq .Block "bom"}}{{template "bom" .}}{{end}}
{{if eq .Block "measurements"}}{{template "measurements" .}}{{end}}
{{if eq .Block "construction"}}{{template "construction" .}}{{end}}
{{if eq .Block "colorways"}}{{template "colorways" .}}{{end}}
{{if eq .Block "packing_notes"}}{{template "packing_notes" .}}{{end}}
<footer class="page-footer"><span>{{.DocumentID}} &middot; version {{.Version}}</span><span>Page {{.PageNumber}} of {{.TotalPages}} &middot; printed {{formatDate .PrintedAt}}</span></footer>
</div>
</section>
{{end}}
</body>
</html>{{end}}

{{define "bar"}}<header class="bar">
<div><h1>{{.Article.StyleNumber}}</h1><div>{{.Article.Name}}</div></div>
<div class="meta">{{.BlockTitle}}{{if .Stage}}<br>{{title .Stage}}{{end}}{{if .Article.Season}}<br>{{.Article.Season}}{{end}}</div>
{{if .LogoURL}}<img class="logo" src="{{.LogoURL}}" alt="logo">{{end}}
</header>{{end}}

{{define "header"}}<h2>{{.BlockTitle}}</h2>
<dl class="article">
<dt>Style number</dt><dd>{{.Article.StyleNumber}}</dd>
<dt>Name</dt><dd>{{.Article.Name}}</dd>
<dt>Season</dt><dd>{{.Article.Season}}</dd>
<dt>Category</dt><dd>{{.Article.Category}}</dd>
<dt>Size run</dt><dd>{{join .Article.Sizes " / "}}</dd>
<dt>Description</dt><dd>{{.Article.Description}}</dd>
</dl>{{end}}

{{define "bom"}}<h2>{{.BlockTitle}}</h2>
<table>
<thead><tr><th>Component</th><th>Material</th><th>Supplier</th><th>Color</th><th>Qty</th><th>Unit</th><th>Placement</th></tr></thead>
<tbody>{{range .BOM}}<tr><td>{{.Component}}</td><td>{{.Material}}</td><td>{{.Supplier}}</td><td>{{.Color}}</td><td class="num">{{formatDecimal .Quantity 2}}</td><td>{{.Unit}}</td><td>{{truncate .Placement 60}}</td></tr>
{{end}}</tbody>
</table>{{end}}

{{define "measurements"}}<h2>{{.BlockTitle}}</h2>
<table>
<thead><tr><th>POM</th><th>Description</th>{{range .Sizes}}<th>{{.}}</th>{{end}}<th>Tol.</th></tr></thead>
<tbody>{{$sizes := .Sizes}}{{range .Measurements}}{{$p := .}}<tr><td>{{.Code}}</td><td>{{.Description}}</td>{{range $sizes}}<td class="num">{{valueFor $p .}}</td>{{end}}<td class="num">{{formatTolerance .TolerancePlus .ToleranceMinus}}</td></tr>
{{end}}</tbody>
</table>{{end}}

{{define "construction"}}<h2>{{.BlockTitle}}</h2>
<table>
<thead><tr><th>Step</th><th>Title</th><th>Instruction</th></tr></thead>
<tbody>{{$show := .ShowImages}}{{range .Construction}}<tr><td class="num">{{.Step}}</td><td>{{.Title}}</td><td>{{.Instruction}}{{if and $show .ImageRef}}<br><small>image: {{.ImageRef}}</small>{{end}}</td></tr>
{{end}}</tbody>
</table>{{end}}

{{define "colorways"}}<h2>{{.BlockTitle}}</h2>
<div class="swatches">{{range .Colorways}}<div class="colorway"><strong>{{.Name}}</strong>{{if .Code}} ({{.Code}}){{end}}
<table><tbody>{{range .Parts}}<tr><td><span class="chip" style="{{swatch .Hex}}"></span>{{.Part}}</td><td>{{.ColorName}}</td><td>{{.Pantone}}</td></tr>{{end}}</tbody></table>
</div>{{end}}</div>{{end}}

{{define "packing_notes"}}<h2>{{.BlockTitle}}</h2>
{{range .Notes}}<div class="note"><h3>{{.Title}}</h3>{{.HTML}}</div>{{end}}{{end}}
`
