package techpack

import "strings"

// PaperSize represents the output paper format
type PaperSize string

const (
	PaperSizeA4     PaperSize = "A4"     // 210mm x 297mm
	PaperSizeLetter PaperSize = "Letter" // 216mm x 279mm
	PaperSizeLegal  PaperSize = "Legal"  // 216mm x 356mm
)

// IsValid checks if the PaperSize is a valid value
func (p PaperSize) IsValid() bool {
	switch p {
	case PaperSizeA4, PaperSizeLetter, PaperSizeLegal:
		return true
	}
	return false
}

// String returns the string representation of PaperSize
func (p PaperSize) String() string {
	return string(p)
}

// Dimensions returns the portrait paper dimensions in millimeters (width, height)
func (p PaperSize) Dimensions() (width, height int) {
	switch p {
	case PaperSizeLetter:
		return 216, 279
	case PaperSizeLegal:
		return 216, 356
	default:
		return 210, 297
	}
}

// ParsePaperSize matches a paper size case-insensitively.
// The second return value is false when the name is unknown.
func ParsePaperSize(s string) (PaperSize, bool) {
	for _, p := range AllPaperSizes() {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, true
		}
	}
	return "", false
}

// AllPaperSizes returns all valid PaperSize values
func AllPaperSizes() []PaperSize {
	return []PaperSize{PaperSizeA4, PaperSizeLetter, PaperSizeLegal}
}

// Orientation represents the page orientation
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// IsValid checks if the Orientation is a valid value
func (o Orientation) IsValid() bool {
	switch o {
	case OrientationPortrait, OrientationLandscape:
		return true
	}
	return false
}

// String returns the string representation of Orientation
func (o Orientation) String() string {
	return string(o)
}

// ParseOrientation matches an orientation case-insensitively
func ParseOrientation(s string) (Orientation, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(OrientationPortrait):
		return OrientationPortrait, true
	case string(OrientationLandscape):
		return OrientationLandscape, true
	}
	return "", false
}

// BlockType identifies a content block of a Tech Pack document.
// The declaration order below is the order blocks appear in a page plan.
type BlockType string

const (
	BlockHeader       BlockType = "header"
	BlockBOM          BlockType = "bom"
	BlockMeasurements BlockType = "measurements"
	BlockConstruction BlockType = "construction"
	BlockColorways    BlockType = "colorways"
	BlockPackingNotes BlockType = "packing_notes"
)

// IsValid checks if the BlockType is a valid value
func (b BlockType) IsValid() bool {
	switch b {
	case BlockHeader, BlockBOM, BlockMeasurements, BlockConstruction, BlockColorways, BlockPackingNotes:
		return true
	}
	return false
}

// String returns the string representation of BlockType
func (b BlockType) String() string {
	return string(b)
}

// Title returns the section heading printed for the block
func (b BlockType) Title() string {
	switch b {
	case BlockHeader:
		return "Article Information"
	case BlockBOM:
		return "Bill of Materials"
	case BlockMeasurements:
		return "Measurement Chart"
	case BlockConstruction:
		return "Construction & How to Measure"
	case BlockColorways:
		return "Colorways"
	case BlockPackingNotes:
		return "Packing Notes"
	default:
		return string(b)
	}
}

// AllBlockTypes returns every block type in plan order
func AllBlockTypes() []BlockType {
	return []BlockType{BlockHeader, BlockBOM, BlockMeasurements, BlockConstruction, BlockColorways, BlockPackingNotes}
}

// LifecycleStage is the development stage of the garment the document describes
type LifecycleStage string

const (
	StageConcept     LifecycleStage = "concept"
	StageDevelopment LifecycleStage = "development"
	StageSampling    LifecycleStage = "sampling"
	StageProduction  LifecycleStage = "production"
	StageRevision    LifecycleStage = "revision"
)

// IsValid checks if the stage is one of the known stages.
// Unknown stages are still accepted in a snapshot; they simply carry no watermark.
func (s LifecycleStage) IsValid() bool {
	switch s {
	case StageConcept, StageDevelopment, StageSampling, StageProduction, StageRevision:
		return true
	}
	return false
}

// String returns the string representation of LifecycleStage
func (s LifecycleStage) String() string {
	return string(s)
}

// ArtifactKind distinguishes the cached artifact families
type ArtifactKind string

const (
	ArtifactDocument ArtifactKind = "document" // full assembled PDF
	ArtifactPreview  ArtifactKind = "preview"  // single page PNG
	ArtifactMeta     ArtifactKind = "meta"     // describe() metadata
)

// IsValid checks if the ArtifactKind is a valid value
func (k ArtifactKind) IsValid() bool {
	switch k {
	case ArtifactDocument, ArtifactPreview, ArtifactMeta:
		return true
	}
	return false
}

// String returns the string representation of ArtifactKind
func (k ArtifactKind) String() string {
	return string(k)
}

// OutputFormat is the binary format produced by a render
type OutputFormat string

const (
	OutputPDF OutputFormat = "pdf"
	OutputPNG OutputFormat = "png"
)

// ContentType returns the MIME type of the format
func (f OutputFormat) ContentType() string {
	if f == OutputPNG {
		return "image/png"
	}
	return "application/pdf"
}

// SupportedOutputFormats lists the formats the pipeline can produce
func SupportedOutputFormats() []OutputFormat {
	return []OutputFormat{OutputPDF, OutputPNG}
}

// PlacementPattern describes how a watermark is laid over the page
type PlacementPattern string

const (
	PlacementCenter PlacementPattern = "center" // single diagonal mark in the middle of the page
	PlacementTiled  PlacementPattern = "tiled"  // repeated across the whole page
)

// String returns the string representation of PlacementPattern
func (p PlacementPattern) String() string {
	return string(p)
}
