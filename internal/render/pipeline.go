package render

import (
	"fmt"
	"image/color"
	"log"
	"math"
	"sync"

	"TileBoard/internal/config"
	"TileBoard/internal/state"
	"TileBoard/internal/viewport"
)

const (
	// minGridCell is the on-screen cell size below which grid lines are not drawn.
	minGridCell = 4.0

	overlayLineWidth = 2.0
)

var (
	boundaryColor = color.NRGBA{R: 120, G: 124, B: 132, A: 255}
	emptyColor    = color.NRGBA{R: 190, G: 194, B: 200, A: 255}
	outlineColor  = color.NRGBA{R: 60, G: 60, B: 60, A: 255}
	hoverColor    = color.NRGBA{R: 59, G: 130, B: 246, A: 255}

	emptyDash = []float64{4, 3}
)

// Overlay marks a tile another user is editing.
type Overlay struct {
	UserID   string
	Username string
	X, Y     int
}

// Stats are cumulative frame diagnostics.
type Stats struct {
	Frames           uint64
	TilesDrawn       uint64
	SkippedOverCap   uint64
	SkippedMalformed uint64
	CacheHits        uint64
	CacheMisses      uint64
}

// Pipeline paints the visible part of the open grid.
type Pipeline struct {
	store *state.TileStore
	view  *viewport.Viewport

	tileSize int
	maxTiles int

	mu       sync.Mutex
	gridW    int // world pixels
	gridH    int
	display  config.DisplayOptions
	colors   palette
	overlays []Overlay
	hover    *state.Coord
	stats    Stats

	cache visibleCache
}

type palette struct {
	background, canvas, grid color.NRGBA
}

// NewPipeline creates a pipeline reading from store and view.
func NewPipeline(cfg *config.Config, store *state.TileStore, view *viewport.Viewport) (*Pipeline, error) {
	if cfg.TileSize <= 0 {
		return nil, fmt.Errorf("render: tile size must be positive, got %d", cfg.TileSize)
	}
	p := &Pipeline{
		store:    store,
		view:     view,
		tileSize: cfg.TileSize,
		maxTiles: cfg.MaxTilesPerFrame,
		gridW:    cfg.GridWidth,
		gridH:    cfg.GridHeight,
	}
	if err := p.SetDisplay(cfg.Display); err != nil {
		return nil, err
	}
	return p, nil
}

// SetDisplay replaces the display options.
func (p *Pipeline) SetDisplay(d config.DisplayOptions) error {
	var pal palette
	var err error
	if pal.background, err = config.ParseHexColor(d.BackgroundColor); err != nil {
		return fmt.Errorf("render: background color: %w", err)
	}
	if pal.canvas, err = config.ParseHexColor(d.CanvasColor); err != nil {
		return fmt.Errorf("render: canvas color: %w", err)
	}
	if pal.grid, err = config.ParseHexColor(d.GridColor); err != nil {
		return fmt.Errorf("render: grid color: %w", err)
	}
	p.mu.Lock()
	p.display = d
	p.colors = pal
	p.mu.Unlock()
	return nil
}

// SetGrid changes the grid extent in world pixels.
func (p *Pipeline) SetGrid(width, height int) {
	p.mu.Lock()
	p.gridW, p.gridH = width, height
	p.hover = nil
	p.overlays = nil
	p.mu.Unlock()
	p.cache.invalidate()
}

// SetOverlays replaces the editing overlays.
func (p *Pipeline) SetOverlays(overlays []Overlay) {
	cp := append([]Overlay(nil), overlays...)
	p.mu.Lock()
	p.overlays = cp
	p.mu.Unlock()
}

// SetHover highlights a tile position, or clears the highlight when c is nil.
func (p *Pipeline) SetHover(c *state.Coord) {
	p.mu.Lock()
	if c == nil {
		p.hover = nil
	} else {
		h := *c
		p.hover = &h
	}
	p.mu.Unlock()
}

// Stats returns a snapshot of the frame counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	s := p.stats
	p.mu.Unlock()
	p.cache.mu.Lock()
	s.CacheHits, s.CacheMisses = p.cache.hits, p.cache.misses
	p.cache.mu.Unlock()
	return s
}

// Paint draws one frame onto s.
func (p *Pipeline) Paint(s Surface) {
	width, height := s.Size()
	if width <= 0 || height <= 0 {
		return
	}
	vs := p.view.State()

	p.mu.Lock()
	display := p.display
	pal := p.colors
	gridW, gridH := p.gridW, p.gridH
	overlays := p.overlays
	var hover *state.Coord
	if p.hover != nil {
		h := *p.hover
		hover = &h
	}
	p.mu.Unlock()

	ts := float64(p.tileSize)
	cell := ts * vs.Zoom
	across, down := gridW/p.tileSize, gridH/p.tileSize
	toScreen := func(wx, wy float64) (float64, float64) {
		return viewport.ToScreen(vs, viewport.Rect{}, wx, wy)
	}
	inGrid := func(x, y int) bool { return x >= 0 && y >= 0 && x < across && y < down }

	// background and canvas
	s.FillRect(0, 0, width, height, pal.background)
	cx, cy := toScreen(0, 0)
	cw, ch := float64(gridW)*vs.Zoom, float64(gridH)*vs.Zoom
	s.FillRect(cx, cy, cw, ch, pal.canvas)
	s.StrokeRect(cx, cy, cw, ch, boundaryColor, 1, nil)

	box, visible := p.cache.query(p.store, vs, width, height, p.tileSize)
	bx := TileBox{
		MinX: max(box.MinX, 0), MinY: max(box.MinY, 0),
		MaxX: min(box.MaxX, across-1), MaxY: min(box.MaxY, down-1),
	}

	if display.ShowGrid && cell >= minGridCell && bx.MinX <= bx.MaxX && bx.MinY <= bx.MaxY {
		top := math.Max(cy, 0)
		bottom := math.Min(cy+ch, height)
		for x := bx.MinX; x <= bx.MaxX+1; x++ {
			sx, _ := toScreen(float64(x)*ts, 0)
			s.Line(sx, top, sx, bottom, pal.grid, 1)
		}
		left := math.Max(cx, 0)
		right := math.Min(cx+cw, width)
		for y := bx.MinY; y <= bx.MaxY+1; y++ {
			_, sy := toScreen(0, float64(y)*ts)
			s.Line(left, sy, right, sy, pal.grid, 1)
		}
	}

	if display.ShowEmptyTiles && vs.Zoom >= display.EmptyTileZoomThreshold {
		occupied := make(map[state.Coord]bool, len(visible))
		for _, t := range visible {
			occupied[t.Coord()] = true
		}
		for y := bx.MinY; y <= bx.MaxY; y++ {
			for x := bx.MinX; x <= bx.MaxX; x++ {
				if occupied[state.Coord{X: x, Y: y}] {
					continue
				}
				sx, sy := toScreen(float64(x)*ts, float64(y)*ts)
				s.StrokeRect(sx+1, sy+1, cell-2, cell-2, emptyColor, 1, emptyDash)
			}
		}
	}

	drawn := make([]state.Tile, 0, len(visible))
	var overCap, malformed uint64
	for _, t := range visible {
		if p.maxTiles > 0 && len(drawn) >= p.maxTiles {
			overCap++
			continue
		}
		if !inGrid(t.X, t.Y) {
			malformed++
			continue
		}
		fills, err := resolveTile(t)
		if err != nil {
			log.Printf("[Render] Skipping tile %s at (%d,%d): %v", t.ID, t.X, t.Y, err)
			malformed++
			continue
		}
		sx, sy := toScreen(float64(t.X)*ts, float64(t.Y)*ts)
		for _, f := range fills {
			s.FillRect(sx+f.x*cell, sy+f.y*cell, f.w*cell, f.h*cell, f.c)
		}
		drawn = append(drawn, t)
	}

	if display.ShowTileOutlines {
		for _, t := range drawn {
			sx, sy := toScreen(float64(t.X)*ts, float64(t.Y)*ts)
			s.StrokeRect(sx, sy, cell, cell, outlineColor, 1, nil)
		}
	}

	if display.ShowOwnership {
		marker := math.Max(3, cell/5)
		for _, t := range drawn {
			if t.OwnerID == "" {
				continue
			}
			sx, sy := toScreen(float64(t.X)*ts, float64(t.Y)*ts)
			s.FillRect(sx, sy, marker, marker, OwnerColor(t.OwnerID))
		}
	}

	for _, o := range overlays {
		if !box.Contains(o.X, o.Y) || !inGrid(o.X, o.Y) {
			continue
		}
		sx, sy := toScreen(float64(o.X)*ts, float64(o.Y)*ts)
		s.StrokeRect(sx, sy, cell, cell, OwnerColor(o.UserID), overlayLineWidth, nil)
	}

	if hover != nil && inGrid(hover.X, hover.Y) {
		sx, sy := toScreen(float64(hover.X)*ts, float64(hover.Y)*ts)
		s.StrokeRect(sx, sy, cell, cell, hoverColor, overlayLineWidth, nil)
	}

	p.mu.Lock()
	p.stats.Frames++
	p.stats.TilesDrawn += uint64(len(drawn))
	p.stats.SkippedOverCap += overCap
	p.stats.SkippedMalformed += malformed
	p.mu.Unlock()

	if overCap > 0 {
		log.Printf("[Render] Draw cap %d reached, skipped %d tiles", p.maxTiles, overCap)
	}
}

// fill is one painted pixel rectangle in tile-relative units (0..1).
type fill struct {
	x, y, w, h float64
	c          color.NRGBA
}

// resolveTile resolves every pixel of t before anything is drawn, so a single
// malformed entry drops the whole tile.
func resolveTile(t state.Tile) ([]fill, error) {
	rows := len(t.Pixels)
	if rows == 0 {
		return nil, nil
	}
	var out []fill
	rh := 1 / float64(rows)
	for y, row := range t.Pixels {
		if len(row) == 0 {
			continue
		}
		cw := 1 / float64(len(row))
		for x, raw := range row {
			c, paint, err := ResolvePixel(raw)
			if err != nil {
				return nil, fmt.Errorf("pixel (%d,%d): %w", x, y, err)
			}
			if !paint {
				continue
			}
			out = append(out, fill{x: float64(x) * cw, y: float64(y) * rh, w: cw, h: rh, c: c})
		}
	}
	return out, nil
}
