package ui

import (
	"image"
	"image/color"
	"image/draw"
	"log"
	"math"
	"sync"

	"TileBoard/internal/render"
)

// ViewSurface is the engine's drawing target for the board widget. The widget
// reports its size with SetSize; the backing raster is resized at the start
// of the next frame so it never changes while a frame is painted.
type ViewSurface struct {
	raster *render.RasterSurface

	mu           sync.Mutex
	w, h         int
	wantW, wantH int
	frame        *image.RGBA
}

// NewViewSurface creates a surface of width x height pixels.
func NewViewSurface(width, height int) *ViewSurface {
	width, height = max(width, 1), max(height, 1)
	return &ViewSurface{
		raster: render.NewRasterSurface(width, height),
		w:      width,
		h:      height,
		wantW:  width,
		wantH:  height,
		frame:  image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// SetSize records the size for the next frame.
func (s *ViewSurface) SetSize(width, height float64) {
	s.mu.Lock()
	s.wantW = max(int(math.Ceil(width)), 1)
	s.wantH = max(int(math.Ceil(height)), 1)
	s.mu.Unlock()
}

// Size applies a pending resize and returns the frame size.
func (s *ViewSurface) Size() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wantW != s.w || s.wantH != s.h {
		if err := s.raster.Resize(s.wantW, s.wantH); err != nil {
			log.Printf("[UI] Failed to resize surface to %dx%d: %v", s.wantW, s.wantH, err)
		} else {
			s.w, s.h = s.wantW, s.wantH
		}
	}
	return float64(s.w), float64(s.h)
}

func (s *ViewSurface) FillRect(x, y, w, h float64, c color.Color) {
	s.raster.FillRect(x, y, w, h, c)
}

func (s *ViewSurface) StrokeRect(x, y, w, h float64, c color.Color, lineWidth float64, dash []float64) {
	s.raster.StrokeRect(x, y, w, h, c, lineWidth, dash)
}

func (s *ViewSurface) Line(x1, y1, x2, y2 float64, c color.Color, lineWidth float64) {
	s.raster.Line(x1, y1, x2, y2, c, lineWidth)
}

// Publish copies the painted raster into a new frame for the screen. It must
// run on the painting goroutine, after a frame.
func (s *ViewSurface) Publish() {
	img := s.raster.Image()
	frame := image.NewRGBA(img.Bounds())
	draw.Draw(frame, frame.Bounds(), img, img.Bounds().Min, draw.Src)

	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()
}

// Frame returns the last published frame. Frames are never modified after
// they are published.
func (s *ViewSurface) Frame() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Close releases the raster.
func (s *ViewSurface) Close() error {
	return s.raster.Close()
}
