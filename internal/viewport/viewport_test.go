package viewport

import (
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-6

func newTestViewport(t *testing.T) *Viewport {
	t.Helper()
	v := New(Limits{MinZoom: 0.1, MaxZoom: 10, OriginBound: 100000}, 0)
	v.SetRect(Rect{Left: 10, Top: 20, Width: 800, Height: 600})
	t.Cleanup(v.Close)
	return v
}

func TestPanInverse(t *testing.T) {
	v := newTestViewport(t)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		v.SetView(State{OriginX: rng.Float64()*1000 - 500, OriginY: rng.Float64()*1000 - 500, Zoom: 0.1 + rng.Float64()*9.9})
		before := v.State()
		dx, dy := rng.Float64()*2000-1000, rng.Float64()*2000-1000

		v.Pan(dx, dy)
		v.Pan(-dx, -dy)

		after := v.State()
		assert.InDelta(t, before.OriginX, after.OriginX, eps)
		assert.InDelta(t, before.OriginY, after.OriginY, eps)
	}
}

func TestPanConvertsScreenDelta(t *testing.T) {
	v := newTestViewport(t)
	v.SetView(State{Zoom: 2})
	v.Pan(100, -50)
	s := v.State()
	assert.InDelta(t, -50, s.OriginX, eps)
	assert.InDelta(t, 25, s.OriginY, eps)
}

func TestPanClampsOrigin(t *testing.T) {
	v := newTestViewport(t)
	v.SetView(State{Zoom: 0.1})
	v.Pan(-1e9, 1e9)
	s := v.State()
	assert.Equal(t, 100000.0, s.OriginX)
	assert.Equal(t, -100000.0, s.OriginY)
}

func TestZoomTowardKeepsAnchor(t *testing.T) {
	v := newTestViewport(t)
	rng := rand.New(rand.NewSource(2))

	for i := 0; i < 200; i++ {
		v.SetView(State{OriginX: rng.Float64()*200 - 100, OriginY: rng.Float64()*200 - 100, Zoom: 0.5 + rng.Float64()*2})
		ax, ay := 10+rng.Float64()*800, 20+rng.Float64()*600
		factor := 0.2 + rng.Float64()*4

		wx0, wy0 := v.ScreenToWorld(ax, ay)
		v.ZoomToward(factor, ax, ay)
		wx1, wy1 := v.ScreenToWorld(ax, ay)

		assert.InDelta(t, wx0, wx1, eps)
		assert.InDelta(t, wy0, wy1, eps)
	}
}

func TestZoomAlwaysClamped(t *testing.T) {
	v := newTestViewport(t)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		switch rng.Intn(4) {
		case 0:
			v.ZoomToward(rng.Float64()*50, rng.Float64()*800, rng.Float64()*600)
		case 1:
			v.ZoomIn()
		case 2:
			v.ZoomOut()
		case 3:
			v.SetView(State{Zoom: rng.Float64()*40 - 10})
		}
		z := v.State().Zoom
		require.GreaterOrEqual(t, z, 0.1)
		require.LessOrEqual(t, z, 10.0)
	}
}

func TestZoomTowardIgnoresInvalidFactor(t *testing.T) {
	v := newTestViewport(t)
	before := v.State()
	v.ZoomToward(0, 100, 100)
	v.ZoomToward(-2, 100, 100)
	assert.Equal(t, before, v.State())
}

func TestScreenWorldRoundTrip(t *testing.T) {
	v := newTestViewport(t)
	v.SetView(State{OriginX: 37.5, OriginY: -12.25, Zoom: 3.3})

	for _, p := range [][2]float64{{10, 20}, {810, 620}, {400, 300}, {123.4, 567.8}} {
		wx, wy := v.ScreenToWorld(p[0], p[1])
		sx, sy := v.WorldToScreen(wx, wy)
		assert.InDelta(t, p[0], sx, eps)
		assert.InDelta(t, p[1], sy, eps)

		sx, sy = v.WorldToScreen(p[0], p[1])
		wx, wy = v.ScreenToWorld(sx, sy)
		assert.InDelta(t, p[0], wx, eps)
		assert.InDelta(t, p[1], wy, eps)
	}
}

func TestResetToFit(t *testing.T) {
	v := newTestViewport(t)
	v.ResetToFit(640, 640)
	s := v.State()

	// 800x600 surface: height constrains.
	assert.InDelta(t, 600.0/640.0, s.Zoom, eps)

	cx, cy := v.Rect().Center()
	wx, wy := v.ScreenToWorld(cx, cy)
	assert.InDelta(t, 320, wx, eps)
	assert.InDelta(t, 320, wy, eps)
}

func TestResetToFitClampsZoom(t *testing.T) {
	v := newTestViewport(t)
	v.ResetToFit(10, 10)
	assert.Equal(t, 10.0, v.State().Zoom)
}

func TestZoomInOutTowardCenter(t *testing.T) {
	v := newTestViewport(t)
	cx, cy := v.Rect().Center()
	wx, wy := v.ScreenToWorld(cx, cy)

	v.ZoomIn()
	assert.InDelta(t, ZoomStep, v.State().Zoom, eps)
	v.ZoomOut()
	assert.InDelta(t, 1, v.State().Zoom, eps)

	wx2, wy2 := v.ScreenToWorld(cx, cy)
	assert.InDelta(t, wx, wx2, eps)
	assert.InDelta(t, wy, wy2, eps)
}

func TestNotificationsAreThrottledButFinalStateArrives(t *testing.T) {
	v := New(Limits{MinZoom: 0.1, MaxZoom: 10, OriginBound: 100000}, 30*time.Millisecond)
	v.SetRect(Rect{Width: 100, Height: 100})
	defer v.Close()

	var calls atomic.Int32
	var last atomic.Value
	sub := v.Subscribe(func(s State) {
		calls.Add(1)
		last.Store(s)
	})
	defer sub.Unsubscribe()

	for i := 0; i < 20; i++ {
		v.Pan(-1, 0)
	}
	assert.Equal(t, int32(1), calls.Load())

	assert.Eventually(t, func() bool {
		s, ok := last.Load().(State)
		return ok && s.OriginX == 20
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCenterOn(t *testing.T) {
	v := newTestViewport(t)
	v.SetView(State{Zoom: 2})

	v.CenterOn(100, 50)

	cx, cy := v.Rect().Center()
	wx, wy := v.ScreenToWorld(cx, cy)
	assert.InDelta(t, 100, wx, eps)
	assert.InDelta(t, 50, wy, eps)
	assert.InDelta(t, 2, v.State().Zoom, eps)
}
