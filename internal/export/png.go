package export

import (
	"fmt"
	"io"
	"math"

	"TileBoard/internal/render"
)

// PNG paints the pipeline's current view into a width x height raster and
// encodes it to w.
func PNG(w io.Writer, p *render.Pipeline, width, height float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("image size must be positive, got %gx%g", width, height)
	}
	s := render.NewRasterSurface(int(math.Ceil(width)), int(math.Ceil(height)))
	defer s.Close()
	p.Paint(s)
	if err := s.EncodePNG(w); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}
