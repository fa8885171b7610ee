package input

import (
	"math"
	"time"

	"TileBoard/internal/config"
	"TileBoard/internal/viewport"
)

// gesture is the coordinator's state. Exactly one of the types below is
// active at a time.
type gesture interface {
	Name() string
}

type idle struct{}

// pressed is a primary-button press that may become a click.
type pressed struct {
	startX, startY float64
}

// dragging pans the view with a mouse button held down.
type dragging struct {
	button       config.Button
	lastX, lastY float64
}

// panning follows a single touch point. moved stays false while the touch is
// still a tap candidate.
type panning struct {
	id             int
	startX, startY float64
	lastX, lastY   float64
	start          time.Time
	moved          bool
}

// pinching zooms around the pinch center captured when the second finger
// landed.
type pinching struct {
	a, b             int
	startDist        float64
	startView        viewport.State
	centerX, centerY float64
}

func (idle) Name() string     { return "idle" }
func (pressed) Name() string  { return "pressed" }
func (dragging) Name() string { return "dragging" }
func (panning) Name() string  { return "panning" }
func (pinching) Name() string { return "pinching" }

type point struct{ x, y float64 }

func distance(a, b point) float64 {
	return math.Hypot(a.x-b.x, a.y-b.y)
}

// tapRecord remembers the previous single tap for double-tap detection.
type tapRecord struct {
	at   time.Time
	x, y float64
}
