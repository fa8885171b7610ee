package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"log"

	"github.com/gogpu/gg"
)

// RasterSurface draws into an in-memory gg context.
type RasterSurface struct {
	dc *gg.Context
}

// NewRasterSurface allocates a width x height raster.
func NewRasterSurface(width, height int) *RasterSurface {
	return &RasterSurface{dc: gg.NewContext(max(width, 1), max(height, 1))}
}

// Resize changes the raster size. The content is undefined until the next paint.
func (r *RasterSurface) Resize(width, height int) error {
	if err := r.dc.Resize(width, height); err != nil {
		return fmt.Errorf("resize raster: %w", err)
	}
	return nil
}

func (r *RasterSurface) Size() (float64, float64) {
	return float64(r.dc.Width()), float64(r.dc.Height())
}

func (r *RasterSurface) FillRect(x, y, w, h float64, c color.Color) {
	r.dc.SetColor(c)
	r.dc.DrawRectangle(x, y, w, h)
	if err := r.dc.Fill(); err != nil {
		log.Printf("[Render] Fill failed: %v", err)
	}
}

func (r *RasterSurface) StrokeRect(x, y, w, h float64, c color.Color, lineWidth float64, dash []float64) {
	r.dc.SetColor(c)
	r.dc.SetLineWidth(lineWidth)
	if len(dash) > 0 {
		r.dc.SetDash(dash...)
		defer r.dc.ClearDash()
	}
	r.dc.DrawRectangle(x, y, w, h)
	if err := r.dc.Stroke(); err != nil {
		log.Printf("[Render] Stroke failed: %v", err)
	}
}

func (r *RasterSurface) Line(x1, y1, x2, y2 float64, c color.Color, lineWidth float64) {
	r.dc.SetColor(c)
	r.dc.SetLineWidth(lineWidth)
	r.dc.DrawLine(x1, y1, x2, y2)
	if err := r.dc.Stroke(); err != nil {
		log.Printf("[Render] Stroke failed: %v", err)
	}
}

// Image returns the painted frame.
func (r *RasterSurface) Image() image.Image { return r.dc.Image() }

// EncodePNG writes the frame as PNG.
func (r *RasterSurface) EncodePNG(w io.Writer) error { return r.dc.EncodePNG(w) }

// SavePNG writes the frame to a PNG file.
func (r *RasterSurface) SavePNG(path string) error { return r.dc.SavePNG(path) }

// Close releases the context.
func (r *RasterSurface) Close() error { return r.dc.Close() }
