// Package render paints the visible part of a tile grid onto a drawing surface.
package render

import (
	"image/color"
)

// Surface is the drawing target of a frame. Coordinates are surface-local
// pixels with the origin at the top-left corner.
type Surface interface {
	Size() (width, height float64)
	FillRect(x, y, w, h float64, c color.Color)
	// StrokeRect outlines a rectangle; a non-empty dash draws a dashed outline.
	StrokeRect(x, y, w, h float64, c color.Color, lineWidth float64, dash []float64)
	Line(x1, y1, x2, y2 float64, c color.Color, lineWidth float64)
}
