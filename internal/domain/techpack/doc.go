// Package techpack contains the Tech Pack rendering domain.
// A Tech Pack is a garment specification document: article metadata,
// bill of materials, graded measurement charts, construction steps,
// colorways and packing notes. This package holds the immutable
// document snapshot consumed by the rendering pipeline, the page
// layout planner, the overlay composer, the render options model and
// the pipeline error taxonomy. Nothing here performs I/O.
package techpack
