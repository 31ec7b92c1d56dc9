package techpack

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Snapshot is the immutable, versioned input of one generation run.
// It is owned by the persistence layer; the pipeline only reads it.
type Snapshot struct {
	DocumentID     string              `json:"document_id"`
	ContentVersion string              `json:"content_version"`
	Article        Article             `json:"article"`
	BOM            []BOMItem           `json:"bom"`
	Measurements   []MeasurementPoint  `json:"measurements"`
	Construction   []ConstructionEntry `json:"construction"`
	Colorways      []Colorway          `json:"colorways"`
	Notes          []RichTextBlock     `json:"notes"`
	LifecycleStage LifecycleStage      `json:"lifecycle_stage"`
	Brand          string              `json:"brand"`
	Supplier       string              `json:"supplier"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Article holds the header information of the garment
type Article struct {
	StyleNumber string   `json:"style_number"`
	Name        string   `json:"name"`
	Season      string   `json:"season"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Sizes       []string `json:"sizes"` // size run in grading order
	ImageRef    string   `json:"image_ref,omitempty"`
}

// BOMItem is one bill of materials line
type BOMItem struct {
	Component string          `json:"component"`
	Material  string          `json:"material"`
	Supplier  string          `json:"supplier"`
	Color     string          `json:"color"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit"`
	Placement string          `json:"placement"`
}

// MeasurementPoint is one point of measure with graded values per size
type MeasurementPoint struct {
	Code           string                     `json:"code"`
	Description    string                     `json:"description"`
	Values         map[string]decimal.Decimal `json:"values"`
	TolerancePlus  decimal.Decimal            `json:"tolerance_plus"`
	ToleranceMinus decimal.Decimal            `json:"tolerance_minus"`
}

// ValueFor returns the graded value for a size, or false when the size is not graded
func (m MeasurementPoint) ValueFor(size string) (decimal.Decimal, bool) {
	v, ok := m.Values[size]
	return v, ok
}

// Sizes returns the graded sizes in lexical order
func (m MeasurementPoint) Sizes() []string {
	sizes := make([]string, 0, len(m.Values))
	for size := range m.Values {
		sizes = append(sizes, size)
	}
	sort.Strings(sizes)
	return sizes
}

// ConstructionEntry is one construction or how-to-measure instruction
type ConstructionEntry struct {
	Step        int    `json:"step"`
	Title       string `json:"title"`
	Instruction string `json:"instruction"`
	ImageRef    string `json:"image_ref,omitempty"`
}

// Colorway is a named color combination made of one or more color parts
type Colorway struct {
	Name  string      `json:"name"`
	Code  string      `json:"code"`
	Parts []ColorPart `json:"parts"`
}

// ColorPart assigns a color to one part of the garment
type ColorPart struct {
	Part      string `json:"part"`
	ColorName string `json:"color_name"`
	Hex       string `json:"hex"`
	Pantone   string `json:"pantone,omitempty"`
}

// RichTextBlock is a free-form note written in markdown
type RichTextBlock struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}

// BlockLen returns the number of items a block holds.
// The header block always has exactly one item.
func (s *Snapshot) BlockLen(block BlockType) int {
	switch block {
	case BlockHeader:
		return 1
	case BlockBOM:
		return len(s.BOM)
	case BlockMeasurements:
		return len(s.Measurements)
	case BlockConstruction:
		return len(s.Construction)
	case BlockColorways:
		return len(s.Colorways)
	case BlockPackingNotes:
		return len(s.Notes)
	}
	return 0
}

// Validate checks the snapshot is complete enough to render.
// Every problem found is reported, not only the first.
func (s *Snapshot) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(s.DocumentID) == "" {
		add("document id is required")
	}
	if strings.TrimSpace(s.ContentVersion) == "" {
		add("content version is required")
	}
	if strings.TrimSpace(s.Article.StyleNumber) == "" {
		add("article style number is required")
	}

	sizes := make(map[string]struct{}, len(s.Article.Sizes))
	for _, size := range s.Article.Sizes {
		sizes[size] = struct{}{}
	}

	for i, item := range s.BOM {
		if strings.TrimSpace(item.Component) == "" {
			add("bom line %d: component is required", i+1)
		}
		if item.Quantity.IsNegative() {
			add("bom line %d: quantity cannot be negative", i+1)
		}
	}

	for i, point := range s.Measurements {
		if strings.TrimSpace(point.Code) == "" {
			add("measurement %d: code is required", i+1)
		}
		if point.TolerancePlus.IsNegative() || point.ToleranceMinus.IsNegative() {
			add("measurement %d: tolerances must be non-negative", i+1)
		}
		for _, size := range point.Sizes() {
			if _, ok := sizes[size]; !ok {
				add("measurement %d: size %q is not in the article size run", i+1, size)
			}
		}
	}

	for i, cw := range s.Colorways {
		if len(cw.Parts) == 0 {
			add("colorway %d: at least one color part is required", i+1)
		}
		for j, part := range cw.Parts {
			if part.Hex != "" && !hexColorPattern.MatchString(part.Hex) {
				add("colorway %d part %d: malformed hex color %q", i+1, j+1, part.Hex)
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &InvalidSnapshotError{DocumentID: s.DocumentID, Problems: problems}
}
