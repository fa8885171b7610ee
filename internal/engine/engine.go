// Package engine wires the viewport, render pipeline, input coordinator and
// collaboration synchronizer of one client together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"TileBoard/internal/collab"
	"TileBoard/internal/config"
	"TileBoard/internal/event"
	"TileBoard/internal/input"
	"TileBoard/internal/render"
	"TileBoard/internal/state"
	"TileBoard/internal/viewport"
)

var (
	ErrNoSurface = errors.New("engine: no rendering surface")
	ErrNoGrid    = errors.New("engine: no grid is open")
)

// TileSource loads the stored tiles of a grid.
type TileSource interface {
	FetchTiles(ctx context.Context, canvasID string) ([]state.Tile, error)
}

// Connector moves the realtime channel to another canvas. Inbound messages
// must be passed to handle in receipt order.
type Connector interface {
	Connect(ctx context.Context, canvasID string, handle func([]byte)) error
}

// Disconnector is implemented by connectors that report a dropped channel.
// The engine then reconnects with backoff and reloads the grid.
type Disconnector interface {
	OnDisconnect(fn func(error)) event.Subscription
}

var errGridChanged = errors.New("engine: grid changed")

// Deps are the collaborators injected into an Engine. Realtime is optional;
// without it inbound messages arrive only through HandleMessage.
type Deps struct {
	Surface  render.Surface
	Tiles    TileSource
	Locks    collab.LockClient
	Sender   collab.Sender
	Realtime Connector
	Self     collab.Identity
	Clock    state.Clock
}

// Grid identifies the grid to open. Zero sizes fall back to the configured
// grid size.
type Grid struct {
	CanvasID string
	Width    int // world pixels
	Height   int
}

// LoadResult reports the outcome of a grid's tile fetch.
type LoadResult struct {
	Grid  Grid
	Tiles int
	Err   error
}

// Engine is one client's view of a shared grid.
type Engine struct {
	cfg  *config.Config
	deps Deps

	store     *state.TileStore
	view      *viewport.Viewport
	pipeline  *render.Pipeline
	scheduler *render.Scheduler
	input     *input.Coordinator

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	sync       *collab.Synchronizer
	syncSubs   []event.Subscription
	grid       Grid
	generation uint64 // bumped per connection; stale handlers and fetches check it
	loading    bool
	pending    [][]byte // messages received while loading, replayed after the fetch
	redialing  bool
	closed     bool
	subs       []event.Subscription

	viewChanges event.Feed[viewport.State]
	overlays    event.Feed[[]render.Overlay]
	lockLost    event.Feed[collab.LockLost]
	loaded      event.Feed[LoadResult]
	painted     event.Feed[render.Stats]
}

// New validates cfg and builds an engine. Configuration problems are returned
// as errors and the engine is not usable.
func New(cfg *config.Config, deps Deps) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: missing configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if deps.Surface == nil {
		return nil, ErrNoSurface
	}
	if deps.Tiles == nil || deps.Locks == nil {
		return nil, errors.New("engine: tile source and lock client are required")
	}
	if deps.Clock == nil {
		deps.Clock = state.SystemClock{}
	}
	if deps.Self.UserID == "" {
		deps.Self.UserID = state.NewSessionID()
	}

	e := &Engine{cfg: cfg, deps: deps, store: state.NewTileStore()}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.view = viewport.New(viewport.Limits{
		MinZoom:     cfg.MinZoom,
		MaxZoom:     cfg.MaxZoom,
		OriginBound: cfg.OriginBound,
	}, cfg.ViewportThrottle)

	pipeline, err := render.NewPipeline(cfg, e.store, e.view)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.pipeline = pipeline
	e.scheduler = render.NewScheduler(cfg.RenderThrottle, e.paint)
	e.input = input.NewCoordinator(input.SettingsFrom(cfg), e.view, e.store, deps.Clock)

	w, h := deps.Surface.Size()
	e.view.SetRect(viewport.Rect{Width: w, Height: h})

	e.subs = append(e.subs,
		e.view.Subscribe(func(s viewport.State) {
			e.scheduler.Invalidate()
			e.viewChanges.Send(s)
		}),
		e.input.OnTileHover(func(t *state.Tile) {
			if t == nil {
				e.pipeline.SetHover(nil)
			} else {
				c := t.Coord()
				e.pipeline.SetHover(&c)
			}
			e.scheduler.Invalidate()
		}),
		e.input.Activity(func(at time.Time) {
			if s := e.current(); s != nil {
				s.Activity(at)
			}
		}),
		e.input.LogErrors(),
	)
	if d, ok := deps.Realtime.(Disconnector); ok {
		e.subs = append(e.subs, d.OnDisconnect(e.disconnected))
	}
	return e, nil
}

func (e *Engine) paint() {
	e.pipeline.Paint(e.deps.Surface)
	e.painted.Send(e.pipeline.Stats())
}

func (e *Engine) current() *collab.Synchronizer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sync
}

// OpenGrid switches to grid g. The previous grid's synchronizer is closed,
// which releases its lock and stops its timers, the realtime channel moves to
// g, the store is cleared, and the tiles are fetched in the background.
// Realtime messages received before the fetch completes are applied after it.
// A fetch that completes after another OpenGrid is discarded, as are messages
// from the previous grid's connection.
func (e *Engine) OpenGrid(ctx context.Context, g Grid) error {
	if g.CanvasID == "" {
		return errors.New("engine: canvas id is required")
	}
	if g.Width <= 0 {
		g.Width = e.cfg.GridWidth
	}
	if g.Height <= 0 {
		g.Height = e.cfg.GridHeight
	}

	next := collab.New(g.CanvasID, e.deps.Self, collab.OptionsFrom(e.cfg), collab.Deps{
		Locks:  e.deps.Locks,
		Sender: e.deps.Sender,
		Store:  e.store,
		Render: e.scheduler,
		Clock:  e.deps.Clock,
	})
	subs := []event.Subscription{
		next.OnOverlays(func(ps []state.Presence) {
			overlays := toOverlays(ps)
			e.pipeline.SetOverlays(overlays)
			e.overlays.Send(overlays)
		}),
		next.OnLockLost(func(l collab.LockLost) { e.lockLost.Send(l) }),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		next.Close()
		return errors.New("engine: closed")
	}
	prev, prevSubs := e.sync, e.syncSubs
	e.sync, e.syncSubs = next, subs
	e.grid = g
	e.generation++
	gen := e.generation
	e.loading, e.pending = true, nil
	e.store.Reset(nil)
	e.mu.Unlock()

	if prev != nil {
		for _, s := range prevSubs {
			s.Unsubscribe()
		}
		prev.Close()
	}
	if e.deps.Realtime != nil {
		if err := e.deps.Realtime.Connect(ctx, g.CanvasID, e.handlerFor(gen)); err != nil {
			log.Printf("[Engine] Realtime channel unavailable for canvas %s: %v", g.CanvasID, err)
		}
	}

	e.pipeline.SetGrid(g.Width, g.Height)
	e.input.SetGrid(g.CanvasID, g.Width, g.Height)
	e.view.ResetToFit(float64(g.Width), float64(g.Height))
	next.Start()
	e.scheduler.Invalidate()
	log.Printf("[Engine] Opened canvas %s (%dx%d)", g.CanvasID, g.Width, g.Height)

	go e.fetch(ctx, g, gen)
	return nil
}

func (e *Engine) fetch(ctx context.Context, g Grid, gen uint64) {
	tiles, err := e.deps.Tiles.FetchTiles(ctx, g.CanvasID)

	e.mu.Lock()
	if gen != e.generation || e.closed {
		e.mu.Unlock()
		log.Printf("[Engine] Discarding stale tile fetch for canvas %s", g.CanvasID)
		return
	}
	if err == nil {
		e.store.Reset(tiles)
	}
	s := e.sync
	e.mu.Unlock()

	if err != nil {
		log.Printf("[Engine] Failed to load canvas %s: %v", g.CanvasID, err)
	}
	e.replay(gen, s)
	e.scheduler.Invalidate()
	e.loaded.Send(LoadResult{Grid: g, Tiles: len(tiles), Err: err})
}

// replay applies the messages held back while gen was loading, then lets new
// messages through directly.
func (e *Engine) replay(gen uint64, s *collab.Synchronizer) {
	for {
		e.mu.Lock()
		if gen != e.generation {
			e.mu.Unlock()
			return
		}
		batch := e.pending
		e.pending = nil
		if len(batch) == 0 {
			e.loading = false
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()

		for _, raw := range batch {
			s.Handle(raw)
		}
	}
}

// handlerFor returns the inbound handler of connection gen.
func (e *Engine) handlerFor(gen uint64) func([]byte) {
	return func(raw []byte) { e.deliver(gen, raw) }
}

func (e *Engine) deliver(gen uint64, raw []byte) {
	e.mu.Lock()
	if gen != e.generation || e.sync == nil {
		e.mu.Unlock()
		return
	}
	if e.loading {
		e.pending = append(e.pending, raw)
		e.mu.Unlock()
		return
	}
	s := e.sync
	e.mu.Unlock()
	s.Handle(raw)
}

func (e *Engine) disconnected(err error) {
	e.mu.Lock()
	if e.closed || e.sync == nil || e.redialing {
		e.mu.Unlock()
		return
	}
	e.redialing = true
	s, g := e.sync, e.grid
	e.mu.Unlock()

	log.Printf("[Engine] Realtime channel to canvas %s dropped: %v", g.CanvasID, err)
	go e.reconnect(s, g)
}

// reconnect redials the realtime channel of grid g until it succeeds, the
// grid is switched or the engine closes. Each connection refetches the grid,
// since events were missed while disconnected.
func (e *Engine) reconnect(s *collab.Synchronizer, g Grid) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.ReconnectDelay
	b.MaxInterval = e.cfg.ReconnectMaxDelay
	b.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		e.mu.Lock()
		// Only a connection made below can report the next drop.
		e.redialing = false
		if e.closed || e.sync != s {
			e.mu.Unlock()
			return backoff.Permanent(errGridChanged)
		}
		e.generation++
		gen := e.generation
		e.loading, e.pending = true, nil
		e.mu.Unlock()

		if err := e.deps.Realtime.Connect(e.ctx, g.CanvasID, e.handlerFor(gen)); err != nil {
			log.Printf("[Engine] Reconnect attempt %d to canvas %s failed: %v", attempt, g.CanvasID, err)
			return err
		}
		go e.fetch(e.ctx, g, gen)
		return nil
	}, backoff.WithContext(b, e.ctx))
	if err != nil {
		return
	}
	log.Printf("[Engine] Reconnected to canvas %s after %d attempt(s)", g.CanvasID, attempt)
	s.Announce(e.ctx)
}

// Grid returns the open grid.
func (e *Engine) Grid() (Grid, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid, e.sync != nil
}

// HandleMessage routes one inbound realtime message to the open grid. While
// the grid is loading it is held back until the fetched tiles are in place.
func (e *Engine) HandleMessage(raw []byte) {
	e.mu.Lock()
	gen := e.generation
	e.mu.Unlock()
	e.deliver(gen, raw)
}

// HandleInput feeds one input event to the gesture coordinator.
func (e *Engine) HandleInput(ev input.Event) {
	e.input.Handle(ev)
}

// Resize tells the engine the surface's new size.
func (e *Engine) Resize(width, height float64) {
	r := e.view.Rect()
	r.Width, r.Height = width, height
	e.view.SetRect(r)
	e.scheduler.Invalidate()
}

// SetDisplay replaces the display options, e.g. after a config reload.
func (e *Engine) SetDisplay(d config.DisplayOptions) error {
	if err := e.pipeline.SetDisplay(d); err != nil {
		return err
	}
	e.scheduler.Invalidate()
	return nil
}

// SetFocus reports window focus changes to presence.
func (e *Engine) SetFocus(focused bool) {
	if s := e.current(); s != nil {
		s.SetFocus(focused)
	}
}

// BeginEdit locks tile for editing on the open grid.
func (e *Engine) BeginEdit(ctx context.Context, tile state.Tile) (state.Lock, error) {
	s := e.current()
	if s == nil {
		return state.Lock{}, ErrNoGrid
	}
	return s.BeginEdit(ctx, tile)
}

// EndEdit releases the edit lock, if any.
func (e *Engine) EndEdit(ctx context.Context) {
	if s := e.current(); s != nil {
		s.EndEdit(ctx)
	}
}

// Invalidate requests a repaint.
func (e *Engine) Invalidate() { e.scheduler.Invalidate() }

// Viewport exposes pan/zoom for toolbars and tests.
func (e *Engine) Viewport() *viewport.Viewport { return e.view }

// Store exposes the tiles of the open grid for read-only use such as export.
func (e *Engine) Store() *state.TileStore { return e.store }

// Pipeline exposes the render pipeline for painting onto other surfaces.
func (e *Engine) Pipeline() *render.Pipeline { return e.pipeline }

// Presence returns the presence of the open grid.
func (e *Engine) Presence() []state.Presence {
	if s := e.current(); s != nil {
		return s.Presence().All()
	}
	return nil
}

func (e *Engine) OnTileClick(fn func(state.Tile)) event.Subscription {
	return e.input.OnTileClick(fn)
}

func (e *Engine) OnTileDoubleClick(fn func(state.Tile)) event.Subscription {
	return e.input.OnTileDoubleClick(fn)
}

func (e *Engine) OnTileHover(fn func(*state.Tile)) event.Subscription {
	return e.input.OnTileHover(fn)
}

func (e *Engine) OnInputError(fn func(error)) event.Subscription {
	return e.input.OnError(fn)
}

func (e *Engine) OnViewportChange(fn func(viewport.State)) event.Subscription {
	return e.viewChanges.Subscribe(fn)
}

func (e *Engine) OnOverlays(fn func([]render.Overlay)) event.Subscription {
	return e.overlays.Subscribe(fn)
}

func (e *Engine) OnLockLost(fn func(collab.LockLost)) event.Subscription {
	return e.lockLost.Subscribe(fn)
}

// OnLoad fires when a grid's tile fetch completes and was not discarded.
func (e *Engine) OnLoad(fn func(LoadResult)) event.Subscription {
	return e.loaded.Subscribe(fn)
}

// OnPaint fires after every painted frame.
func (e *Engine) OnPaint(fn func(render.Stats)) event.Subscription {
	return e.painted.Subscribe(fn)
}

// Close tears down the open grid and stops painting.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	s, subs := e.sync, e.syncSubs
	e.sync, e.syncSubs = nil, nil
	e.pending = nil
	e.mu.Unlock()
	e.cancel()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if s != nil {
		s.Close()
	}
	for _, sub := range e.subs {
		sub.Unsubscribe()
	}
	e.scheduler.Stop()
	e.view.Close()
}

func toOverlays(ps []state.Presence) []render.Overlay {
	out := make([]render.Overlay, 0, len(ps))
	for _, p := range ps {
		c, ok := p.Editing()
		if !ok {
			continue
		}
		out = append(out, render.Overlay{UserID: p.UserID, Username: p.Username, X: c.X, Y: c.Y})
	}
	return out
}
