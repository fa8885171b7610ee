package engine

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TileBoard/internal/collab"
	"TileBoard/internal/config"
	"TileBoard/internal/event"
	"TileBoard/internal/input"
	"TileBoard/internal/render"
	"TileBoard/internal/state"
	"TileBoard/internal/viewport"
)

type nullSurface struct{ fills atomic.Int32 }

func (s *nullSurface) Size() (float64, float64) { return 640, 640 }

func (s *nullSurface) FillRect(float64, float64, float64, float64, color.Color) {
	s.fills.Add(1)
}

func (s *nullSurface) StrokeRect(float64, float64, float64, float64, color.Color, float64, []float64) {}

func (s *nullSurface) Line(float64, float64, float64, float64, color.Color, float64) {}

// gatedSource returns canned tiles per canvas, optionally blocking until the
// gate for that canvas is opened.
type gatedSource struct {
	mu    sync.Mutex
	tiles map[string][]state.Tile
	gates map[string]chan struct{}
}

func (g *gatedSource) FetchTiles(ctx context.Context, canvasID string) ([]state.Tile, error) {
	g.mu.Lock()
	gate := g.gates[canvasID]
	tiles := g.tiles[canvasID]
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return tiles, nil
}

type memLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	releases atomic.Int32
}

func (m *memLocks) Acquire(_ context.Context, canvasID, tileID string) (state.Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := canvasID + "/" + tileID
	if m.held[key] {
		return state.Lock{}, collab.ErrLockConflict
	}
	m.held[key] = true
	return state.Lock{TileID: tileID, LockID: "l-" + tileID, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *memLocks) Extend(_ context.Context, _, tileID string) (state.Lock, error) {
	return state.Lock{TileID: tileID, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *memLocks) Release(_ context.Context, canvasID, tileID string) error {
	m.releases.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, canvasID+"/"+tileID)
	return nil
}

type nopSender struct{}

func (nopSender) Send(context.Context, any) error { return nil }

func newTestEngine(t *testing.T, src *gatedSource) (*Engine, *memLocks, *nullSurface) {
	t.Helper()
	cfg := config.Default()
	cfg.RenderThrottle = 0
	cfg.ViewportThrottle = 0
	locks := &memLocks{held: make(map[string]bool)}
	surface := &nullSurface{}
	e, err := New(cfg, Deps{
		Surface: surface,
		Tiles:   src,
		Locks:   locks,
		Sender:  nopSender{},
		Self:    collab.Identity{UserID: "me", Username: "Me"},
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, locks, surface
}

func openAndWait(t *testing.T, e *Engine, canvasID string) {
	t.Helper()
	done := make(chan struct{}, 1)
	sub := e.OnLoad(func(r LoadResult) {
		if r.Grid.CanvasID == canvasID {
			done <- struct{}{}
		}
	})
	defer sub.Unsubscribe()
	require.NoError(t, e.OpenGrid(context.Background(), Grid{CanvasID: canvasID}))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("canvas %s did not load", canvasID)
	}
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	deps := Deps{Surface: &nullSurface{}, Tiles: &gatedSource{}, Locks: &memLocks{}}

	_, err := New(config.Default(), Deps{Tiles: &gatedSource{}, Locks: &memLocks{}})
	assert.ErrorIs(t, err, ErrNoSurface)

	cfg := config.Default()
	cfg.TileSize = 0
	_, err = New(cfg, deps)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.MinZoom, cfg.MaxZoom = 5, 1
	_, err = New(cfg, deps)
	assert.Error(t, err)

	_, err = New(nil, deps)
	assert.Error(t, err)
}

func TestOpenGridLoadsTiles(t *testing.T) {
	src := &gatedSource{tiles: map[string][]state.Tile{
		"a": {{ID: "t1", X: 3, Y: 3}},
	}}
	e, _, surface := newTestEngine(t, src)

	loaded := make(chan LoadResult, 1)
	e.OnLoad(func(r LoadResult) { loaded <- r })
	require.NoError(t, e.OpenGrid(context.Background(), Grid{CanvasID: "a"}))

	select {
	case r := <-loaded:
		require.NoError(t, r.Err)
		assert.Equal(t, 1, r.Tiles)
		assert.Equal(t, 640, r.Grid.Width)
	case <-time.After(time.Second):
		t.Fatal("grid did not load")
	}
	_, ok := e.Store().Get("t1")
	assert.True(t, ok)
	assert.Positive(t, surface.fills.Load())
	assert.InDelta(t, 1, e.Viewport().State().Zoom, 1e-9)

	var clicked []state.Tile
	e.OnTileClick(func(t state.Tile) { clicked = append(clicked, t) })
	e.HandleInput(input.PointerDown{Button: config.ButtonPrimary, X: 100, Y: 100})
	e.HandleInput(input.PointerUp{Button: config.ButtonPrimary, X: 100, Y: 100})
	require.Len(t, clicked, 1)
	assert.Equal(t, "t1", clicked[0].ID)
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	src := &gatedSource{
		tiles: map[string][]state.Tile{
			"a": {{ID: "old", X: 1, Y: 1}},
			"b": {{ID: "new", X: 2, Y: 2}},
		},
		gates: map[string]chan struct{}{"a": gate},
	}
	e, _, _ := newTestEngine(t, src)

	var mu sync.Mutex
	var results []LoadResult
	e.OnLoad(func(r LoadResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	require.NoError(t, e.OpenGrid(context.Background(), Grid{CanvasID: "a"}))
	require.NoError(t, e.OpenGrid(context.Background(), Grid{CanvasID: "b"}))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	}, time.Second, 5*time.Millisecond)

	close(gate)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Grid.CanvasID)
	_, stale := e.Store().Get("old")
	assert.False(t, stale)
	_, fresh := e.Store().Get("new")
	assert.True(t, fresh)
}

func TestSwitchingGridReleasesLock(t *testing.T) {
	src := &gatedSource{}
	e, locks, _ := newTestEngine(t, src)
	ctx := context.Background()

	openAndWait(t, e, "a")
	_, err := e.BeginEdit(ctx, state.Tile{ID: "t1", X: 1, Y: 1})
	require.NoError(t, err)

	require.NoError(t, e.OpenGrid(ctx, Grid{CanvasID: "b"}))
	assert.Equal(t, int32(1), locks.releases.Load())

	_, err = e.BeginEdit(ctx, state.Tile{ID: "t1", X: 1, Y: 1})
	assert.NoError(t, err)
}

func TestBeginEditWithoutGrid(t *testing.T) {
	e, _, _ := newTestEngine(t, &gatedSource{})
	_, err := e.BeginEdit(context.Background(), state.Tile{ID: "t1"})
	assert.ErrorIs(t, err, ErrNoGrid)
}

func TestInboundMessagesReachOpenGrid(t *testing.T) {
	e, _, _ := newTestEngine(t, &gatedSource{})
	openAndWait(t, e, "a")

	var overlays [][]render.Overlay
	e.OnOverlays(func(o []render.Overlay) { overlays = append(overlays, o) })

	e.HandleMessage([]byte(`{"type":"tile_update","tile":{"id":"t5","x":5,"y":5}}`))
	_, ok := e.Store().At(5, 5)
	assert.True(t, ok)

	e.HandleMessage([]byte(`{"type":"user_presence_update","user_id":"bob","tile_x":2,"tile_y":3,"is_editing":true}`))
	require.Len(t, overlays, 1)
	assert.Equal(t, []render.Overlay{{UserID: "bob", X: 2, Y: 3}}, overlays[0])
	assert.Len(t, e.Presence(), 1)
}

func TestViewportChangesAreForwarded(t *testing.T) {
	e, _, _ := newTestEngine(t, &gatedSource{})
	var got []float64
	e.OnViewportChange(func(s viewport.State) { got = append(got, s.Zoom) })

	e.HandleInput(input.Key{Key: "+"})
	require.NotEmpty(t, got)
	assert.InDelta(t, 1.2, got[len(got)-1], 1e-9)
}

type fakeConnector struct {
	mu       sync.Mutex
	canvases []string
}

func (f *fakeConnector) Connect(_ context.Context, canvasID string, handle func([]byte)) error {
	f.mu.Lock()
	f.canvases = append(f.canvases, canvasID)
	f.mu.Unlock()
	// The host greets a new peer with the presence of the others.
	handle([]byte(`{"type":"user_presence_update","user_id":"bob-` + canvasID + `","status":"online"}`))
	return nil
}

func TestOpenGridMovesRealtimeChannel(t *testing.T) {
	conn := &fakeConnector{}
	cfg := config.Default()
	cfg.RenderThrottle, cfg.ViewportThrottle = 0, 0
	e, err := New(cfg, Deps{
		Surface:  &nullSurface{},
		Tiles:    &gatedSource{},
		Locks:    &memLocks{held: make(map[string]bool)},
		Sender:   nopSender{},
		Realtime: conn,
		Self:     collab.Identity{UserID: "me"},
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)

	openAndWait(t, e, "a")
	openAndWait(t, e, "b")

	conn.mu.Lock()
	assert.Equal(t, []string{"a", "b"}, conn.canvases)
	conn.mu.Unlock()

	presence := e.Presence()
	require.Len(t, presence, 1)
	assert.Equal(t, "bob-b", presence[0].UserID)
}

// dialer records the handler of every connection and can fail or drop them.
type dialer struct {
	mu       sync.Mutex
	canvases []string
	handles  []func([]byte)
	failures int
	dropped  event.Feed[error]
}

func (d *dialer) Connect(_ context.Context, canvasID string, handle func([]byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.canvases = append(d.canvases, canvasID)
	if d.failures > 0 {
		d.failures--
		return errors.New("host unreachable")
	}
	d.handles = append(d.handles, handle)
	return nil
}

func (d *dialer) OnDisconnect(fn func(error)) event.Subscription {
	return d.dropped.Subscribe(fn)
}

func (d *dialer) handle(i int) func([]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handles[i]
}

func (d *dialer) connections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}

func newDialedEngine(t *testing.T, src *gatedSource, d *dialer) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.RenderThrottle, cfg.ViewportThrottle = 0, 0
	cfg.ReconnectDelay = 5 * time.Millisecond
	cfg.ReconnectMaxDelay = 20 * time.Millisecond
	e, err := New(cfg, Deps{
		Surface:  &nullSurface{},
		Tiles:    src,
		Locks:    &memLocks{held: make(map[string]bool)},
		Sender:   nopSender{},
		Realtime: d,
		Self:     collab.Identity{UserID: "me"},
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestUpdatesDuringLoadAreAppliedAfterFetch(t *testing.T) {
	gate := make(chan struct{})
	src := &gatedSource{
		tiles: map[string][]state.Tile{"a": {{ID: "t1", X: 1, Y: 1, OwnerID: "old"}}},
		gates: map[string]chan struct{}{"a": gate},
	}
	d := &dialer{}
	e := newDialedEngine(t, src, d)

	loaded := make(chan LoadResult, 1)
	e.OnLoad(func(r LoadResult) { loaded <- r })
	require.NoError(t, e.OpenGrid(context.Background(), Grid{CanvasID: "a"}))

	// The update is newer than the snapshot the fetch is about to return.
	d.handle(0)([]byte(`{"type":"tile_update","tile":{"id":"t1","x":1,"y":1,"owner_id":"new"}}`))
	d.handle(0)([]byte(`{"type":"tile_created","tile":{"id":"t2","x":2,"y":2}}`))
	_, early := e.Store().Get("t2")
	assert.False(t, early)

	close(gate)
	select {
	case r := <-loaded:
		require.NoError(t, r.Err)
	case <-time.After(time.Second):
		t.Fatal("grid did not load")
	}

	t1, ok := e.Store().Get("t1")
	require.True(t, ok)
	assert.Equal(t, "new", t1.OwnerID)
	_, ok = e.Store().Get("t2")
	assert.True(t, ok)

	// Once loaded, messages apply immediately.
	d.handle(0)([]byte(`{"type":"tile_deleted","tile_id":"t2"}`))
	_, ok = e.Store().Get("t2")
	assert.False(t, ok)
}

func TestPreviousConnectionMessagesAreIgnored(t *testing.T) {
	d := &dialer{}
	e := newDialedEngine(t, &gatedSource{}, d)
	openAndWait(t, e, "a")
	openAndWait(t, e, "b")
	require.Equal(t, 2, d.connections())

	d.handle(0)([]byte(`{"type":"tile_created","tile":{"id":"from-a","x":4,"y":4}}`))
	_, ok := e.Store().Get("from-a")
	assert.False(t, ok)

	d.handle(1)([]byte(`{"type":"tile_created","tile":{"id":"from-b","x":4,"y":4}}`))
	_, ok = e.Store().Get("from-b")
	assert.True(t, ok)
}

func TestReconnectsAndReloadsAfterDrop(t *testing.T) {
	src := &gatedSource{tiles: map[string][]state.Tile{"a": {{ID: "t1", X: 1, Y: 1}}}}
	d := &dialer{}
	e := newDialedEngine(t, src, d)

	var mu sync.Mutex
	var loads []LoadResult
	e.OnLoad(func(r LoadResult) {
		mu.Lock()
		loads = append(loads, r)
		mu.Unlock()
	})
	loadCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(loads)
	}

	require.NoError(t, e.OpenGrid(context.Background(), Grid{CanvasID: "a"}))
	require.Eventually(t, func() bool { return loadCount() == 1 }, time.Second, 5*time.Millisecond)

	// Tiles saved while the channel was down only show up through a reload.
	src.mu.Lock()
	src.tiles["a"] = append(src.tiles["a"], state.Tile{ID: "missed", X: 3, Y: 3})
	src.mu.Unlock()
	d.mu.Lock()
	d.failures = 2
	d.mu.Unlock()

	d.dropped.Send(errors.New("connection reset"))

	require.Eventually(t, func() bool { return d.connections() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return loadCount() == 2 }, time.Second, 5*time.Millisecond)
	_, ok := e.Store().Get("missed")
	assert.True(t, ok)

	d.mu.Lock()
	assert.Equal(t, []string{"a", "a", "a", "a"}, d.canvases)
	d.mu.Unlock()

	// The dead connection's handler no longer applies anything.
	d.handle(0)([]byte(`{"type":"tile_created","tile":{"id":"ghost","x":5,"y":5}}`))
	_, ok = e.Store().Get("ghost")
	assert.False(t, ok)
	d.handle(1)([]byte(`{"type":"tile_created","tile":{"id":"live","x":5,"y":5}}`))
	_, ok = e.Store().Get("live")
	assert.True(t, ok)
}

func TestNoReconnectAfterClose(t *testing.T) {
	d := &dialer{}
	e := newDialedEngine(t, &gatedSource{}, d)
	openAndWait(t, e, "a")

	e.Close()
	d.dropped.Send(errors.New("connection reset"))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, d.connections())
}
