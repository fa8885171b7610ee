// Package viewport owns pan/zoom state and screen/world coordinate conversion.
package viewport

import (
	"math"
	"sync"
	"time"

	"TileBoard/internal/event"
	"TileBoard/internal/throttle"
)

// ZoomStep is the factor applied by ZoomIn/ZoomOut.
const ZoomStep = 1.2

// Rect is the surface's bounding rectangle in screen coordinates.
type Rect struct {
	Left, Top, Width, Height float64
}

// Center returns the visual center of the rectangle.
func (r Rect) Center() (float64, float64) {
	return r.Left + r.Width/2, r.Top + r.Height/2
}

// State is a snapshot of the viewport. Origin is the world point drawn at the
// surface's top-left corner.
type State struct {
	OriginX float64
	OriginY float64
	Zoom    float64
}

// Limits bound the viewport.
type Limits struct {
	MinZoom     float64
	MaxZoom     float64
	OriginBound float64
}

// Viewport is the single owner of pan/zoom state for an open grid.
type Viewport struct {
	mu     sync.RWMutex
	state  State
	rect   Rect
	limits Limits

	changes  event.Feed[State]
	notifier *throttle.Throttler
}

// New creates a viewport at origin (0,0) and zoom 1 (clamped into limits).
// Subscribers are notified at most once per interval.
func New(limits Limits, interval time.Duration) *Viewport {
	v := &Viewport{limits: limits}
	v.state = State{Zoom: v.clampZoom(1)}
	v.notifier = throttle.New(interval, v.publish)
	return v
}

// Subscribe registers fn for viewport changes.
func (v *Viewport) Subscribe(fn func(State)) event.Subscription {
	return v.changes.Subscribe(fn)
}

// Flush delivers a pending trailing notification immediately.
func (v *Viewport) Flush() { v.notifier.Flush() }

// Close stops notifications.
func (v *Viewport) Close() { v.notifier.Stop() }

func (v *Viewport) publish() {
	v.changes.Send(v.State())
}

// State returns the current viewport.
func (v *Viewport) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Rect returns the surface rectangle.
func (v *Viewport) Rect() Rect {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.rect
}

// Limits returns the configured bounds.
func (v *Viewport) Limits() Limits { return v.limits }

// SetRect records the surface's bounding rectangle. It does not move the view.
func (v *Viewport) SetRect(r Rect) {
	v.mu.Lock()
	v.rect = r
	v.mu.Unlock()
}

// Pan shifts the view by a screen-space delta: dragging right by dx moves the
// origin left by dx/zoom in world space.
func (v *Viewport) Pan(dx, dy float64) {
	v.mu.Lock()
	v.state.OriginX = v.clampOrigin(v.state.OriginX - dx/v.state.Zoom)
	v.state.OriginY = v.clampOrigin(v.state.OriginY - dy/v.state.Zoom)
	v.mu.Unlock()
	v.notifier.Trigger()
}

// ZoomToward multiplies the zoom by factor while keeping the world point
// under the screen anchor (ax, ay) fixed.
func (v *Viewport) ZoomToward(factor, ax, ay float64) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return
	}
	v.mu.Lock()
	wx, wy := v.screenToWorld(ax, ay)
	zoom := v.clampZoom(v.state.Zoom * factor)
	v.state.Zoom = zoom
	v.state.OriginX = v.clampOrigin(wx - (ax-v.rect.Left)/zoom)
	v.state.OriginY = v.clampOrigin(wy - (ay-v.rect.Top)/zoom)
	v.mu.Unlock()
	v.notifier.Trigger()
}

// ZoomIn zooms one step toward the visual center.
func (v *Viewport) ZoomIn() {
	cx, cy := v.Rect().Center()
	v.ZoomToward(ZoomStep, cx, cy)
}

// ZoomOut zooms one step away from the visual center.
func (v *Viewport) ZoomOut() {
	cx, cy := v.Rect().Center()
	v.ZoomToward(1/ZoomStep, cx, cy)
}

// SetView replaces the whole state, clamping zoom and origin.
func (v *Viewport) SetView(s State) {
	v.mu.Lock()
	v.state.Zoom = v.clampZoom(s.Zoom)
	v.state.OriginX = v.clampOrigin(s.OriginX)
	v.state.OriginY = v.clampOrigin(s.OriginY)
	v.mu.Unlock()
	v.notifier.Trigger()
}

// CenterOn keeps the zoom and moves the origin so that world point (wx, wy)
// is drawn at the surface's visual center.
func (v *Viewport) CenterOn(wx, wy float64) {
	v.mu.Lock()
	zoom := v.state.Zoom
	v.state.OriginX = v.clampOrigin(wx - v.rect.Width/(2*zoom))
	v.state.OriginY = v.clampOrigin(wy - v.rect.Height/(2*zoom))
	v.mu.Unlock()
	v.notifier.Trigger()
}

// ResetToFit picks the zoom at which the whole grid fits the surface along its
// constraining dimension and centers the grid.
func (v *Viewport) ResetToFit(gridWidth, gridHeight float64) {
	v.mu.Lock()
	if gridWidth <= 0 || gridHeight <= 0 || v.rect.Width <= 0 || v.rect.Height <= 0 {
		v.mu.Unlock()
		return
	}
	zoom := v.clampZoom(math.Min(v.rect.Width/gridWidth, v.rect.Height/gridHeight))
	v.state.Zoom = zoom
	v.state.OriginX = v.clampOrigin(gridWidth/2 - v.rect.Width/(2*zoom))
	v.state.OriginY = v.clampOrigin(gridHeight/2 - v.rect.Height/(2*zoom))
	v.mu.Unlock()
	v.notifier.Trigger()
}

// ScreenToWorld converts a screen point into world coordinates.
func (v *Viewport) ScreenToWorld(sx, sy float64) (float64, float64) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.screenToWorld(sx, sy)
}

// WorldToScreen converts a world point into screen coordinates.
func (v *Viewport) WorldToScreen(wx, wy float64) (float64, float64) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return ToScreen(v.state, v.rect, wx, wy)
}

func (v *Viewport) screenToWorld(sx, sy float64) (float64, float64) {
	return ToWorld(v.state, v.rect, sx, sy)
}

// ToWorld converts a screen point for an explicit state and rectangle.
func ToWorld(s State, r Rect, sx, sy float64) (float64, float64) {
	return (sx-r.Left)/s.Zoom + s.OriginX, (sy-r.Top)/s.Zoom + s.OriginY
}

// ToScreen converts a world point for an explicit state and rectangle.
func ToScreen(s State, r Rect, wx, wy float64) (float64, float64) {
	return (wx-s.OriginX)*s.Zoom + r.Left, (wy-s.OriginY)*s.Zoom + r.Top
}

func (v *Viewport) clampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return v.limits.MinZoom
	}
	return math.Max(v.limits.MinZoom, math.Min(v.limits.MaxZoom, z))
}

func (v *Viewport) clampOrigin(o float64) float64 {
	b := v.limits.OriginBound
	if math.IsNaN(o) {
		return 0
	}
	return math.Max(-b, math.Min(b, o))
}
