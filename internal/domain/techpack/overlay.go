package techpack

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Brand watermark sizing bounds, in points
const (
	brandFontBudget  = 480.0
	brandFontMinSize = 18.0
	brandFontMaxSize = 96.0
	stageFontSize    = 96.0
)

// LogoAssetRef points at a logo in asset storage
type LogoAssetRef struct {
	Key   string `json:"key"`
	Owner string `json:"owner"`
}

// OverlayDescriptor declares the watermark and logo drawn on every page
// applied at render time. A zero WatermarkText means logo only.
type OverlayDescriptor struct {
	WatermarkText   string           `json:"watermark_text"`
	Opacity         float64          `json:"opacity"`
	RotationDegrees float64          `json:"rotation_degrees"`
	ColorHex        string           `json:"color_hex"`
	Placement       PlacementPattern `json:"placement"`
	FontSizePt      float64          `json:"font_size_pt"`
	Logo            *LogoAssetRef    `json:"logo,omitempty"`
}

// HasWatermark reports whether a watermark text is set
func (d *OverlayDescriptor) HasWatermark() bool {
	return d != nil && d.WatermarkText != ""
}

// stageStyles is the fixed lifecycle stage table
var stageStyles = map[LifecycleStage]OverlayDescriptor{
	StageConcept:     {WatermarkText: "DRAFT", Opacity: 0.15, RotationDegrees: -45, ColorHex: "#9E9E9E", Placement: PlacementCenter, FontSizePt: stageFontSize},
	StageDevelopment: {WatermarkText: "DRAFT", Opacity: 0.15, RotationDegrees: -45, ColorHex: "#9E9E9E", Placement: PlacementCenter, FontSizePt: stageFontSize},
	StageSampling:    {WatermarkText: "SAMPLE", Opacity: 0.18, RotationDegrees: -45, ColorHex: "#1E88E5", Placement: PlacementCenter, FontSizePt: stageFontSize},
	StageProduction:  {WatermarkText: "APPROVED", Opacity: 0.12, RotationDegrees: -30, ColorHex: "#2E7D32", Placement: PlacementCenter, FontSizePt: stageFontSize},
	StageRevision:    {WatermarkText: "UNDER REVISION", Opacity: 0.18, RotationDegrees: -45, ColorHex: "#EF6C00", Placement: PlacementCenter, FontSizePt: stageFontSize},
}

// OverlayComposer derives overlay descriptors. It holds only its
// logo table, so all derivations are deterministic.
type OverlayComposer struct {
	logos map[string]string
}

// OverlayOption configures an OverlayComposer
type OverlayOption func(*OverlayComposer)

// WithLogoTable sets the brand or supplier name to logo asset key mapping.
// Names are matched case-insensitively.
func WithLogoTable(table map[string]string) OverlayOption {
	return func(c *OverlayComposer) {
		for name, key := range table {
			if key == "" {
				continue
			}
			c.logos[normalizeOwner(name)] = key
		}
	}
}

// NewOverlayComposer creates a new OverlayComposer
func NewOverlayComposer(opts ...OverlayOption) *OverlayComposer {
	c := &OverlayComposer{
		logos: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeriveWatermark returns the watermark for a lifecycle stage, or nil for unmapped stages
func (c *OverlayComposer) DeriveWatermark(stage LifecycleStage) *OverlayDescriptor {
	style, ok := stageStyles[LifecycleStage(strings.ToLower(strings.TrimSpace(string(stage))))]
	if !ok {
		return nil
	}
	return &style
}

// DeriveBrandWatermark returns a low-opacity tiled brand mark. The font
// size shrinks as the text grows so long names still fit a tile.
func (c *OverlayComposer) DeriveBrandWatermark(brand, supplier string) *OverlayDescriptor {
	text := norm.NFC.String(strings.TrimSpace(brand))
	if s := norm.NFC.String(strings.TrimSpace(supplier)); s != "" {
		if text == "" {
			text = s
		} else {
			text = text + " × " + s
		}
	}
	// Casers are stateful, so one per call
	text = cases.Upper(language.Und).String(text)

	return &OverlayDescriptor{
		WatermarkText:   text,
		Opacity:         0.08,
		RotationDegrees: -30,
		ColorHex:        "#607D8B",
		Placement:       PlacementTiled,
		FontSizePt:      brandFontSize(text),
	}
}

func brandFontSize(text string) float64 {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return brandFontMaxSize
	}
	size := brandFontBudget / float64(n)
	return max(brandFontMinSize, min(brandFontMaxSize, size))
}

// ResolveLogo looks up the logo for a brand or supplier name
func (c *OverlayComposer) ResolveLogo(owner string) *LogoAssetRef {
	name := normalizeOwner(owner)
	if name == "" {
		return nil
	}
	key, ok := c.logos[name]
	if !ok {
		return nil
	}
	return &LogoAssetRef{Key: key, Owner: strings.TrimSpace(owner)}
}

// Compose builds the overlay for a snapshot. The lifecycle stage mark wins
// over the brand mark; the supplier logo wins over the brand logo.
// Returns nil when the document carries no overlay at all.
func (c *OverlayComposer) Compose(s *Snapshot) *OverlayDescriptor {
	overlay := c.DeriveWatermark(s.LifecycleStage)
	if overlay == nil && strings.TrimSpace(s.Brand) != "" {
		overlay = c.DeriveBrandWatermark(s.Brand, s.Supplier)
	}

	logo := c.ResolveLogo(s.Supplier)
	if logo == nil {
		logo = c.ResolveLogo(s.Brand)
	}
	if logo != nil {
		if overlay == nil {
			overlay = &OverlayDescriptor{Placement: PlacementCenter}
		}
		overlay.Logo = logo
	}
	return overlay
}

func normalizeOwner(name string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(name)))
}
