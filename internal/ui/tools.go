package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"TileBoard/internal/config"
	"TileBoard/internal/render"
	"TileBoard/internal/state"
)

// personSwatch shows one participant in their overlay color. Tapping it
// centers the view on the tile they are editing.
type personSwatch struct {
	widget.BaseWidget
	Color    color.Color
	Label    string
	OnTapped func()
}

func newPersonSwatch(b *Board, p state.Presence) *personSwatch {
	label := p.Username
	if label == "" {
		label = p.UserID
	}
	if p.Status == state.StatusAway {
		label += " (away)"
	}
	s := &personSwatch{Color: render.OwnerColor(p.UserID), Label: label}
	if c, ok := p.Editing(); ok {
		s.OnTapped = func() { b.CenterOn(c) }
	}
	s.ExtendBaseWidget(s)
	return s
}

func (s *personSwatch) CreateRenderer() fyne.WidgetRenderer {
	rect := canvas.NewRectangle(s.Color)
	rect.SetMinSize(fyne.NewSize(16, 16))

	border := canvas.NewRectangle(color.Transparent)
	border.StrokeColor = color.Gray{Y: 150}
	border.StrokeWidth = 1

	chip := container.NewStack(rect, border)
	return widget.NewSimpleRenderer(container.NewHBox(container.NewCenter(chip), widget.NewLabel(s.Label)))
}

func (s *personSwatch) Tapped(_ *fyne.PointEvent) {
	if s.OnTapped != nil {
		s.OnTapped()
	}
}

// NewToolbar builds the view controls: zoom, fit, layer toggles, end edit and
// export.
func NewToolbar(b *Board, win fyne.Window) fyne.CanvasObject {
	view := b.Engine.Viewport()
	tb := widget.NewToolbar(
		widget.NewToolbarAction(theme.ZoomInIcon(), view.ZoomIn),
		widget.NewToolbarAction(theme.ZoomOutIcon(), view.ZoomOut),
		widget.NewToolbarAction(theme.ZoomFitIcon(), func() {
			if g, ok := b.Engine.Grid(); ok {
				view.ResetToFit(float64(g.Width), float64(g.Height))
			}
		}),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.CancelIcon(), b.EndEdit),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), func() { b.exportPDF(win) }),
		widget.NewToolbarAction(theme.MediaPhotoIcon(), func() { b.exportPNG(win) }),
	)

	display := b.Display()
	toggle := func(label string, on bool, set func(*config.DisplayOptions, bool)) *widget.Check {
		c := widget.NewCheck(label, nil)
		c.Checked = on
		c.OnChanged = func(v bool) {
			b.UpdateDisplay(func(d *config.DisplayOptions) { set(d, v) })
		}
		return c
	}
	grid := toggle("Grid", display.ShowGrid, func(d *config.DisplayOptions, v bool) { d.ShowGrid = v })
	outlines := toggle("Outlines", display.ShowTileOutlines, func(d *config.DisplayOptions, v bool) { d.ShowTileOutlines = v })
	owners := toggle("Owners", display.ShowOwnership, func(d *config.DisplayOptions, v bool) { d.ShowOwnership = v })
	empty := toggle("Empty", display.ShowEmptyTiles, func(d *config.DisplayOptions, v bool) { d.ShowEmptyTiles = v })

	return container.NewHBox(
		tb,
		widget.NewSeparator(),
		grid, outlines, owners, empty,
		layout.NewSpacer(),
	)
}
