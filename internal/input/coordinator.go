package input

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"TileBoard/internal/config"
	"TileBoard/internal/event"
	"TileBoard/internal/state"
	"TileBoard/internal/viewport"
)

// ErrUnresolvable is reported when a screen point cannot be mapped to a tile.
var ErrUnresolvable = errors.New("input: point does not resolve to a tile")

// TileLookup finds a stored tile by tile-index position.
type TileLookup interface {
	At(x, y int) (state.Tile, bool)
}

// Settings are the gesture tunables.
type Settings struct {
	TileSize          int
	DragButton        config.Button
	ClickThreshold    float64
	TapMaxDuration    time.Duration
	DoubleTapDelay    time.Duration
	DoubleTapDistance float64
}

// SettingsFrom extracts the gesture settings from an engine config.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		TileSize:          cfg.TileSize,
		DragButton:        cfg.DragButton,
		ClickThreshold:    cfg.ClickThreshold,
		TapMaxDuration:    cfg.TapMaxDuration,
		DoubleTapDelay:    cfg.DoubleTapDelay,
		DoubleTapDistance: cfg.DoubleTapDistance,
	}
}

// Coordinator is the gesture state machine of one open grid. Each Handle call
// is applied atomically; subscribers are notified after the transition.
type Coordinator struct {
	settings Settings
	view     *viewport.Viewport
	tiles    TileLookup
	clock    state.Clock

	mu       sync.Mutex
	state    gesture
	touches  map[int]point
	lastTap  *tapRecord
	canvasID string
	gridW    int
	gridH    int

	clicks       event.Feed[state.Tile]
	doubleClicks event.Feed[state.Tile]
	hovers       event.Feed[*state.Tile]
	errs         event.Feed[error]
	activity     event.Feed[time.Time]
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(settings Settings, view *viewport.Viewport, tiles TileLookup, clock state.Clock) *Coordinator {
	if clock == nil {
		clock = state.SystemClock{}
	}
	return &Coordinator{
		settings: settings,
		view:     view,
		tiles:    tiles,
		clock:    clock,
		state:    idle{},
		touches:  make(map[int]point),
	}
}

func (c *Coordinator) OnTileClick(fn func(state.Tile)) event.Subscription {
	return c.clicks.Subscribe(fn)
}

func (c *Coordinator) OnTileDoubleClick(fn func(state.Tile)) event.Subscription {
	return c.doubleClicks.Subscribe(fn)
}

// OnTileHover delivers the tile under the pointer, or nil when there is none.
func (c *Coordinator) OnTileHover(fn func(*state.Tile)) event.Subscription {
	return c.hovers.Subscribe(fn)
}

// OnError delivers click resolution failures.
func (c *Coordinator) OnError(fn func(error)) event.Subscription {
	return c.errs.Subscribe(fn)
}

// Activity fires on every handled input event; the idle tracker listens to it.
func (c *Coordinator) Activity(fn func(time.Time)) event.Subscription {
	return c.activity.Subscribe(fn)
}

// SetGrid sets the grid that clicks resolve against, in world pixels, and
// resets any gesture in progress.
func (c *Coordinator) SetGrid(canvasID string, width, height int) {
	c.mu.Lock()
	c.canvasID = canvasID
	c.gridW, c.gridH = width, height
	c.reset()
	c.lastTap = nil
	c.mu.Unlock()
}

// State returns the name of the current gesture state.
func (c *Coordinator) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Name()
}

// Handle applies one input event.
func (c *Coordinator) Handle(ev Event) {
	var out []func()
	emit := func(fn func()) { out = append(out, fn) }

	c.mu.Lock()
	now := c.clock.Now()
	switch e := ev.(type) {
	case PointerDown:
		c.pointerDown(e)
	case PointerMove:
		c.pointerMove(e, emit)
	case PointerUp:
		c.pointerUp(e, emit)
	case PointerLeave:
		if _, ok := c.state.(pressed); ok {
			c.state = idle{}
		}
		emit(func() { c.hovers.Send(nil) })
	case Blur:
		c.reset()
	case Wheel:
		c.wheel(e)
	case Key:
		c.key(e)
	case TouchDown:
		c.touchDown(e, now)
	case TouchMove:
		c.touchMove(e)
	case TouchUp:
		c.touchUp(e, now, emit)
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.activity.Send(now)
	for _, fn := range out {
		fn()
	}
}

func (c *Coordinator) reset() {
	c.state = idle{}
	clear(c.touches)
}

func (c *Coordinator) pointerDown(e PointerDown) {
	if _, ok := c.state.(idle); !ok {
		return
	}
	switch {
	case e.Button == c.settings.DragButton:
		c.state = dragging{button: e.Button, lastX: e.X, lastY: e.Y}
	case e.Button == config.ButtonPrimary:
		c.state = pressed{startX: e.X, startY: e.Y}
	}
}

func (c *Coordinator) pointerMove(e PointerMove, emit func(func())) {
	if d, ok := c.state.(dragging); ok {
		c.view.Pan(e.X-d.lastX, e.Y-d.lastY)
		d.lastX, d.lastY = e.X, e.Y
		c.state = d
		return
	}
	tile, ok, err := c.resolve(e.X, e.Y)
	if err != nil || !ok {
		emit(func() { c.hovers.Send(nil) })
		return
	}
	emit(func() { c.hovers.Send(&tile) })
}

func (c *Coordinator) pointerUp(e PointerUp, emit func(func())) {
	switch s := c.state.(type) {
	case dragging:
		if e.Button == s.button {
			c.state = idle{}
		}
	case pressed:
		c.state = idle{}
		if e.Button != config.ButtonPrimary {
			return
		}
		c.click(s.startX, s.startY, e.X, e.Y, emit)
	}
}

// click decides whether a primary release counts as a click: it does when the
// pointer stayed within the threshold on both axes or when it was released
// over a stored tile.
func (c *Coordinator) click(sx, sy, x, y float64, emit func(func())) {
	still := math.Abs(x-sx) < c.settings.ClickThreshold && math.Abs(y-sy) < c.settings.ClickThreshold

	tile, ok, err := c.resolve(x, y)
	if err != nil {
		emit(func() { c.errs.Send(err) })
		return
	}
	if !ok {
		return
	}
	if still || !tile.IsEmpty {
		emit(func() { c.clicks.Send(tile) })
	}
}

func (c *Coordinator) wheel(e Wheel) {
	switch {
	case e.DeltaY < 0:
		c.view.ZoomToward(viewport.ZoomStep, e.X, e.Y)
	case e.DeltaY > 0:
		c.view.ZoomToward(1/viewport.ZoomStep, e.X, e.Y)
	}
}

func (c *Coordinator) key(e Key) {
	if e.EditableFocused {
		return
	}
	switch e.Key {
	case "+", "=":
		c.view.ZoomIn()
	case "-":
		c.view.ZoomOut()
	case "0":
		c.view.ResetToFit(float64(c.gridW), float64(c.gridH))
	}
}

func (c *Coordinator) touchDown(e TouchDown, now time.Time) {
	c.touches[e.ID] = point{e.X, e.Y}

	switch c.state.(type) {
	case idle:
		if len(c.touches) == 1 {
			c.state = panning{id: e.ID, startX: e.X, startY: e.Y, lastX: e.X, lastY: e.Y, start: now}
		}
	case panning:
		c.startPinch()
	case pressed, dragging:
		// A mouse gesture in progress keeps priority over touch.
	}
}

func (c *Coordinator) startPinch() {
	var ids []int
	for id := range c.touches {
		ids = append(ids, id)
	}
	if len(ids) < 2 {
		return
	}
	if ids[0] > ids[1] {
		ids[0], ids[1] = ids[1], ids[0]
	}
	a, b := c.touches[ids[0]], c.touches[ids[1]]
	dist := distance(a, b)
	if dist == 0 {
		return
	}
	c.state = pinching{
		a: ids[0], b: ids[1],
		startDist: dist,
		startView: c.view.State(),
		centerX:   (a.x + b.x) / 2,
		centerY:   (a.y + b.y) / 2,
	}
}

func (c *Coordinator) touchMove(e TouchMove) {
	if _, ok := c.touches[e.ID]; !ok {
		return
	}
	c.touches[e.ID] = point{e.X, e.Y}

	switch s := c.state.(type) {
	case panning:
		if e.ID != s.id {
			return
		}
		c.view.Pan(e.X-s.lastX, e.Y-s.lastY)
		s.lastX, s.lastY = e.X, e.Y
		if math.Abs(e.X-s.startX) >= c.settings.ClickThreshold || math.Abs(e.Y-s.startY) >= c.settings.ClickThreshold {
			s.moved = true
		}
		c.state = s
	case pinching:
		if e.ID != s.a && e.ID != s.b {
			return
		}
		dist := distance(c.touches[s.a], c.touches[s.b])
		c.view.SetView(pinchView(s, dist/s.startDist, c.view.Rect(), c.view.Limits()))
	}
}

// pinchView solves the viewport for a pinch scale so that the world point
// under the pinch center at the start stays under it.
func pinchView(s pinching, factor float64, r viewport.Rect, l viewport.Limits) viewport.State {
	zoom := math.Max(l.MinZoom, math.Min(l.MaxZoom, s.startView.Zoom*factor))
	wx, wy := viewport.ToWorld(s.startView, r, s.centerX, s.centerY)
	return viewport.State{
		OriginX: wx - (s.centerX-r.Left)/zoom,
		OriginY: wy - (s.centerY-r.Top)/zoom,
		Zoom:    zoom,
	}
}

func (c *Coordinator) touchUp(e TouchUp, now time.Time, emit func(func())) {
	if _, ok := c.touches[e.ID]; !ok {
		return
	}
	delete(c.touches, e.ID)

	switch s := c.state.(type) {
	case pinching:
		if e.ID != s.a && e.ID != s.b {
			return
		}
		for id, p := range c.touches {
			// Continue as a single-finger pan; never a tap.
			c.state = panning{id: id, startX: p.x, startY: p.y, lastX: p.x, lastY: p.y, start: now, moved: true}
			return
		}
		c.state = idle{}
	case panning:
		if e.ID != s.id {
			return
		}
		c.state = idle{}
		if !s.moved && now.Sub(s.start) < c.settings.TapMaxDuration {
			c.tap(e.X, e.Y, now, emit)
		}
	}
}

func (c *Coordinator) tap(x, y float64, now time.Time, emit func(func())) {
	double := c.lastTap != nil &&
		now.Sub(c.lastTap.at) <= c.settings.DoubleTapDelay &&
		math.Hypot(x-c.lastTap.x, y-c.lastTap.y) <= c.settings.DoubleTapDistance

	if double {
		c.lastTap = nil
	} else {
		c.lastTap = &tapRecord{at: now, x: x, y: y}
	}

	tile, ok, err := c.resolve(x, y)
	if err != nil {
		emit(func() { c.errs.Send(err) })
		return
	}
	if !ok {
		return
	}
	if double {
		emit(func() { c.doubleClicks.Send(tile) })
	} else {
		emit(func() { c.clicks.Send(tile) })
	}
}

// ResolveTile maps a screen point to the stored tile there or an empty
// placeholder. ok is false outside the grid.
func (c *Coordinator) ResolveTile(x, y float64) (state.Tile, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolve(x, y)
}

func (c *Coordinator) resolve(x, y float64) (state.Tile, bool, error) {
	ts := c.settings.TileSize
	if ts <= 0 {
		return state.Tile{}, false, fmt.Errorf("%w: tile size %d", ErrUnresolvable, ts)
	}
	wx, wy := c.view.ScreenToWorld(x, y)
	if math.IsNaN(wx) || math.IsNaN(wy) || math.IsInf(wx, 0) || math.IsInf(wy, 0) {
		return state.Tile{}, false, fmt.Errorf("%w: (%g,%g)", ErrUnresolvable, x, y)
	}
	if wx < 0 || wy < 0 || wx >= float64(c.gridW) || wy >= float64(c.gridH) {
		return state.Tile{}, false, nil
	}
	tx := int(math.Floor(wx / float64(ts)))
	ty := int(math.Floor(wy / float64(ts)))
	if tx >= c.gridW/ts || ty >= c.gridH/ts {
		return state.Tile{}, false, nil
	}
	if tile, ok := c.tiles.At(tx, ty); ok {
		return tile, true, nil
	}
	return state.EmptyTile(c.canvasID, tx, ty, ts), true, nil
}

// LogErrors subscribes a logger to click resolution failures.
func (c *Coordinator) LogErrors() event.Subscription {
	return c.OnError(func(err error) {
		log.Printf("[Input] Click resolution failed: %v", err)
	})
}
