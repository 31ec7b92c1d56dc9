package techpack

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/techpack/backend/internal/domain/shared"
)

// Default render option values
const (
	DefaultImageQuality = 90
	DefaultMarginMM     = 10
	MaxMarginMM         = 100
)

// Margins represents the page margins in millimeters
type Margins struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
	Right  int `json:"right"`
}

// DefaultMargins returns the default page margins
func DefaultMargins() Margins {
	return Margins{Top: DefaultMarginMM, Bottom: DefaultMarginMM, Left: DefaultMarginMM, Right: DefaultMarginMM}
}

func (m Margins) validate() error {
	for _, v := range []int{m.Top, m.Bottom, m.Left, m.Right} {
		if v < 0 {
			return shared.NewDomainError(CodeInvalidOptions, "Margins cannot be negative")
		}
		if v > MaxMarginMM {
			return shared.NewDomainError(CodeInvalidOptions, fmt.Sprintf("Margins cannot exceed %dmm", MaxMarginMM))
		}
	}
	return nil
}

// RenderOptions is the typed set of recognized output options
type RenderOptions struct {
	Format        PaperSize   `json:"format"`
	Orientation   Orientation `json:"orientation"`
	IncludeImages bool        `json:"include_images"`
	ImageQuality  int         `json:"image_quality"`
	Margins       Margins     `json:"margins"`
}

// DefaultRenderOptions returns the documented defaults:
// A4, portrait, images included, quality 90, 10mm margins.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Format:        PaperSizeA4,
		Orientation:   OrientationPortrait,
		IncludeImages: true,
		ImageQuality:  DefaultImageQuality,
		Margins:       DefaultMargins(),
	}
}

// Validate rejects unknown enum values and out of range numbers
func (o RenderOptions) Validate() error {
	if !o.Format.IsValid() {
		return shared.NewDomainError(CodeInvalidOptions, fmt.Sprintf("Unsupported format %q", o.Format))
	}
	if !o.Orientation.IsValid() {
		return shared.NewDomainError(CodeInvalidOptions, fmt.Sprintf("Unsupported orientation %q", o.Orientation))
	}
	if o.ImageQuality < 0 || o.ImageQuality > 100 {
		return shared.NewDomainError(CodeInvalidOptions, "Image quality must be between 0 and 100")
	}
	return o.Margins.validate()
}

// PageSizeMM returns the page width and height in millimeters after orientation
func (o RenderOptions) PageSizeMM() (width, height int) {
	width, height = o.Format.Dimensions()
	if o.Orientation == OrientationLandscape {
		return height, width
	}
	return width, height
}

// Variant returns a short stable fingerprint of the options.
// It is part of every cache key so different option sets never share an entry.
func (o RenderOptions) Variant() string {
	raw := fmt.Sprintf("%s|%s|%t|%d|%d,%d,%d,%d",
		o.Format, o.Orientation, o.IncludeImages, o.ImageQuality,
		o.Margins.Top, o.Margins.Bottom, o.Margins.Left, o.Margins.Right)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:6])
}

// MarginOverrides holds the margin fields a caller supplied
type MarginOverrides struct {
	Top    *int `json:"top"`
	Bottom *int `json:"bottom"`
	Left   *int `json:"left"`
	Right  *int `json:"right"`
}

// OptionOverrides holds the option fields a caller supplied. Nil fields
// fall back to defaults, unknown JSON keys are ignored by the decoder.
type OptionOverrides struct {
	Format        *string          `json:"format"`
	Orientation   *string          `json:"orientation"`
	IncludeImages *bool            `json:"includeImages"`
	ImageQuality  *int             `json:"imageQuality"`
	Margins       *MarginOverrides `json:"margins"`
}

// Resolve applies the overrides on top of the defaults and validates the result
func (in *OptionOverrides) Resolve() (RenderOptions, error) {
	opts := DefaultRenderOptions()
	if in == nil {
		return opts, nil
	}
	if in.Format != nil {
		format, ok := ParsePaperSize(*in.Format)
		if !ok {
			return RenderOptions{}, shared.NewDomainError(CodeInvalidOptions, fmt.Sprintf("Unsupported format %q", *in.Format))
		}
		opts.Format = format
	}
	if in.Orientation != nil {
		orientation, ok := ParseOrientation(*in.Orientation)
		if !ok {
			return RenderOptions{}, shared.NewDomainError(CodeInvalidOptions, fmt.Sprintf("Unsupported orientation %q", *in.Orientation))
		}
		opts.Orientation = orientation
	}
	if in.IncludeImages != nil {
		opts.IncludeImages = *in.IncludeImages
	}
	if in.ImageQuality != nil {
		opts.ImageQuality = *in.ImageQuality
	}
	if m := in.Margins; m != nil {
		if m.Top != nil {
			opts.Margins.Top = *m.Top
		}
		if m.Bottom != nil {
			opts.Margins.Bottom = *m.Bottom
		}
		if m.Left != nil {
			opts.Margins.Left = *m.Left
		}
		if m.Right != nil {
			opts.Margins.Right = *m.Right
		}
	}
	if err := opts.Validate(); err != nil {
		return RenderOptions{}, err
	}
	return opts, nil
}
