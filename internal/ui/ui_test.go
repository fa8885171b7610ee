package ui

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TileBoard/internal/collab"
	"TileBoard/internal/config"
	"TileBoard/internal/engine"
	"TileBoard/internal/state"
)

type cannedTiles map[string][]state.Tile

func (c cannedTiles) FetchTiles(_ context.Context, canvasID string) ([]state.Tile, error) {
	return c[canvasID], nil
}

type openLocks struct{}

func (openLocks) Acquire(_ context.Context, _, tileID string) (state.Lock, error) {
	return state.Lock{TileID: tileID, LockID: "l", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (openLocks) Extend(_ context.Context, _, tileID string) (state.Lock, error) {
	return state.Lock{TileID: tileID, LockID: "l", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (openLocks) Release(context.Context, string, string) error { return nil }

type nopSender struct{}

func (nopSender) Send(context.Context, any) error { return nil }

func newTestBoard(t *testing.T, tiles cannedTiles) *Board {
	t.Helper()
	test.NewTempApp(t)

	cfg := config.Default()
	cfg.RenderThrottle = 0
	cfg.ViewportThrottle = 0
	surface := NewViewSurface(640, 640)
	t.Cleanup(func() { surface.Close() })

	e, err := engine.New(cfg, engine.Deps{
		Surface: surface,
		Tiles:   tiles,
		Locks:   openLocks{},
		Sender:  nopSender{},
		Self:    collab.Identity{UserID: "me", Username: "Me"},
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)

	b := NewBoard(e, surface, cfg)
	t.Cleanup(b.Close)

	loaded := make(chan struct{}, 1)
	sub := e.OnLoad(func(engine.LoadResult) { loaded <- struct{}{} })
	defer sub.Unsubscribe()
	require.NoError(t, e.OpenGrid(context.Background(), engine.Grid{CanvasID: "a"}))
	select {
	case <-loaded:
	case <-time.After(time.Second):
		t.Fatal("canvas did not load")
	}
	return b
}

func TestViewSurfaceResizesOnNextFrame(t *testing.T) {
	s := NewViewSurface(10, 10)
	defer s.Close()

	s.SetSize(20.5, 5)
	assert.Equal(t, image.Rect(0, 0, 10, 10), s.Frame().Bounds())

	w, h := s.Size()
	assert.Equal(t, 21.0, w)
	assert.Equal(t, 5.0, h)

	red := color.RGBA{R: 255, A: 255}
	s.FillRect(0, 0, w, h, red)
	s.Publish()
	frame := s.Frame()
	assert.Equal(t, image.Rect(0, 0, 21, 5), frame.Bounds())
	assert.Equal(t, red, frame.At(3, 2))
}

func TestViewSurfacePublishedFramesAreStable(t *testing.T) {
	s := NewViewSurface(4, 4)
	defer s.Close()

	s.FillRect(0, 0, 4, 4, color.RGBA{B: 255, A: 255})
	s.Publish()
	first := s.Frame()

	s.FillRect(0, 0, 4, 4, color.RGBA{G: 255, A: 255})
	s.Publish()

	assert.Equal(t, color.RGBA{B: 255, A: 255}, first.At(1, 1))
	assert.Equal(t, color.RGBA{G: 255, A: 255}, s.Frame().At(1, 1))
}

func TestBoardWidgetClicksTile(t *testing.T) {
	b := newTestBoard(t, cannedTiles{"a": {{ID: "t1", X: 3, Y: 3, OwnerID: "bob"}}})

	var mu sync.Mutex
	var clicked []state.Tile
	b.Engine.OnTileClick(func(t state.Tile) {
		mu.Lock()
		clicked = append(clicked, t)
		mu.Unlock()
	})

	at := fyne.PointEvent{Position: fyne.NewPos(100, 100)}
	b.Widget.MouseDown(&desktop.MouseEvent{PointEvent: at, Button: desktop.MouseButtonPrimary})
	b.Widget.MouseUp(&desktop.MouseEvent{PointEvent: at, Button: desktop.MouseButtonPrimary})

	mu.Lock()
	require.Len(t, clicked, 1)
	assert.Equal(t, "t1", clicked[0].ID)
	mu.Unlock()

	assert.Eventually(t, func() bool { return b.Status() == "Tile (3,3) by bob" },
		time.Second, 10*time.Millisecond)
}

func TestBoardWidgetDragPansView(t *testing.T) {
	b := newTestBoard(t, cannedTiles{})
	before := b.Engine.Viewport().State()

	start := fyne.PointEvent{Position: fyne.NewPos(200, 200)}
	b.Widget.MouseDown(&desktop.MouseEvent{PointEvent: start, Button: desktop.MouseButtonSecondary})
	b.Widget.Dragged(&fyne.DragEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(250, 200)}})
	b.Widget.MouseUp(&desktop.MouseEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(250, 200)}, Button: desktop.MouseButtonSecondary})

	after := b.Engine.Viewport().State()
	assert.InDelta(t, before.OriginX-50, after.OriginX, 1e-9)
	assert.InDelta(t, before.OriginY, after.OriginY, 1e-9)
}

func TestUpdateDisplay(t *testing.T) {
	b := newTestBoard(t, cannedTiles{})
	require.True(t, b.Display().ShowGrid)

	b.UpdateDisplay(func(d *config.DisplayOptions) { d.ShowGrid = false })
	assert.False(t, b.Display().ShowGrid)
}

func TestPersonSwatchCentersOnEditedTile(t *testing.T) {
	b := newTestBoard(t, cannedTiles{})
	x, y := 5, 5

	s := newPersonSwatch(b, state.Presence{UserID: "bob", Username: "Bob", Status: state.StatusOnline, EditingTileX: &x, EditingTileY: &y})
	assert.Equal(t, "Bob", s.Label)
	s.Tapped(&fyne.PointEvent{})

	st := b.Engine.Viewport().State()
	assert.InDelta(t, 5.5*32-320, st.OriginX, 1e-9)
	assert.InDelta(t, 5.5*32-320, st.OriginY, 1e-9)

	idle := newPersonSwatch(b, state.Presence{UserID: "carol", Status: state.StatusAway})
	assert.Equal(t, "carol (away)", idle.Label)
	idle.Tapped(&fyne.PointEvent{})
	assert.InDelta(t, 5.5*32-320, b.Engine.Viewport().State().OriginX, 1e-9)
}
