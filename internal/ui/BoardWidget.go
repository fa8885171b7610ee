package ui

import (
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/driver/mobile"
	"fyne.io/fyne/v2/widget"

	"TileBoard/internal/config"
	"TileBoard/internal/engine"
	"TileBoard/internal/event"
	"TileBoard/internal/input"
	"TileBoard/internal/render"
)

// BoardWidget shows the engine's frames and feeds it the widget's pointer,
// wheel, key and touch events. Positions are widget-relative, so the
// viewport rectangle always starts at (0,0).
type BoardWidget struct {
	widget.BaseWidget

	engine  *engine.Engine
	surface *ViewSurface
	raster  *canvas.Raster
	painted event.Subscription

	// touching is set between TouchDown and TouchUp; drags then belong to
	// the touch rather than to a mouse button.
	touching bool
}

var (
	_ fyne.Widget       = (*BoardWidget)(nil)
	_ fyne.Draggable    = (*BoardWidget)(nil)
	_ fyne.Scrollable   = (*BoardWidget)(nil)
	_ fyne.Focusable    = (*BoardWidget)(nil)
	_ desktop.Mouseable = (*BoardWidget)(nil)
	_ desktop.Hoverable = (*BoardWidget)(nil)
	_ mobile.Touchable  = (*BoardWidget)(nil)
)

// NewBoardWidget creates the widget for an engine drawing onto surface.
func NewBoardWidget(e *engine.Engine, surface *ViewSurface) *BoardWidget {
	b := &BoardWidget{engine: e, surface: surface}
	b.raster = canvas.NewRaster(func(int, int) image.Image { return surface.Frame() })
	b.raster.ScaleMode = canvas.ImageScalePixels
	b.painted = e.OnPaint(func(render.Stats) {
		surface.Publish()
		fyne.Do(b.raster.Refresh)
	})
	b.ExtendBaseWidget(b)
	return b
}

// Detach stops the widget from following the engine's frames.
func (b *BoardWidget) Detach() {
	b.painted.Unsubscribe()
}

func (b *BoardWidget) resized(size fyne.Size) {
	b.surface.SetSize(float64(size.Width), float64(size.Height))
	b.engine.Resize(float64(size.Width), float64(size.Height))
}

func pos(p fyne.Position) (float64, float64) {
	return float64(p.X), float64(p.Y)
}

func (b *BoardWidget) MouseDown(e *desktop.MouseEvent) {
	if c := fyne.CurrentApp().Driver().CanvasForObject(b); c != nil {
		c.Focus(b)
	}
	x, y := pos(e.Position)
	b.engine.HandleInput(input.PointerDown{Button: config.Button(e.Button), X: x, Y: y})
}

func (b *BoardWidget) MouseUp(e *desktop.MouseEvent) {
	x, y := pos(e.Position)
	b.engine.HandleInput(input.PointerUp{Button: config.Button(e.Button), X: x, Y: y})
}

func (b *BoardWidget) MouseIn(e *desktop.MouseEvent) {
	b.MouseMoved(e)
}

func (b *BoardWidget) MouseMoved(e *desktop.MouseEvent) {
	x, y := pos(e.Position)
	b.engine.HandleInput(input.PointerMove{X: x, Y: y})
}

func (b *BoardWidget) MouseOut() {
	b.engine.HandleInput(input.PointerLeave{})
}

// Dragged arrives instead of MouseMoved while a button or finger is down.
func (b *BoardWidget) Dragged(e *fyne.DragEvent) {
	x, y := pos(e.Position)
	if b.touching {
		b.engine.HandleInput(input.TouchMove{X: x, Y: y})
		return
	}
	b.engine.HandleInput(input.PointerMove{X: x, Y: y})
}

func (b *BoardWidget) DragEnd() {}

func (b *BoardWidget) Scrolled(e *fyne.ScrollEvent) {
	x, y := pos(e.Position)
	// Wheel up scrolls by a positive DY and zooms in.
	b.engine.HandleInput(input.Wheel{X: x, Y: y, DeltaY: -float64(e.Scrolled.DY)})
}

// fyne reports a single touch point, so pinch is not available here.
func (b *BoardWidget) TouchDown(e *mobile.TouchEvent) {
	b.touching = true
	x, y := pos(e.Position)
	b.engine.HandleInput(input.TouchDown{X: x, Y: y})
}

func (b *BoardWidget) TouchUp(e *mobile.TouchEvent) {
	b.touching = false
	x, y := pos(e.Position)
	b.engine.HandleInput(input.TouchUp{X: x, Y: y})
}

func (b *BoardWidget) TouchCancel(e *mobile.TouchEvent) {
	b.TouchUp(e)
}

func (b *BoardWidget) FocusGained() {}

func (b *BoardWidget) FocusLost() {}

// TypedRune handles the zoom keys; the widget itself is never an editable
// field.
func (b *BoardWidget) TypedRune(r rune) {
	b.engine.HandleInput(input.Key{Key: string(r)})
}

func (b *BoardWidget) TypedKey(*fyne.KeyEvent) {}

func (b *BoardWidget) CreateRenderer() fyne.WidgetRenderer {
	return &boardWidgetRenderer{board: b}
}

type boardWidgetRenderer struct {
	board *BoardWidget
}

func (r *boardWidgetRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.board.raster}
}

func (r *boardWidgetRenderer) Layout(size fyne.Size) {
	r.board.raster.Resize(size)
	r.board.resized(size)
}

func (r *boardWidgetRenderer) MinSize() fyne.Size {
	return fyne.NewSize(300, 300)
}

func (r *boardWidgetRenderer) Refresh() {
	r.board.raster.Refresh()
}

func (r *boardWidgetRenderer) Destroy() {
	r.board.Detach()
}
