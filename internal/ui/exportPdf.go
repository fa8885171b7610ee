package ui

import (
	"fmt"
	"io"
	"log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"

	"TileBoard/internal/export"
)

func (b *Board) exportPDF(win fyne.Window) {
	title := "TileBoard"
	if g, ok := b.Engine.Grid(); ok {
		title = g.CanvasID
	}
	b.saveAs(win, "board.pdf", ".pdf", func(w io.Writer, width, height float64) error {
		return export.PDF(w, b.Engine.Pipeline(), width, height, title)
	})
}

func (b *Board) exportPNG(win fyne.Window) {
	b.saveAs(win, "board.png", ".png", func(w io.Writer, width, height float64) error {
		return export.PNG(w, b.Engine.Pipeline(), width, height)
	})
}

// saveAs asks for a destination and writes the current view there at the
// widget's size.
func (b *Board) saveAs(win fyne.Window, name, ext string, write func(io.Writer, float64, float64) error) {
	size := b.Widget.Size()
	d := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, win)
			return
		}
		if uc == nil {
			return
		}
		defer uc.Close()

		if err := write(uc, float64(size.Width), float64(size.Height)); err != nil {
			log.Printf("[UI] Export to %s failed: %v", uc.URI(), err)
			dialog.ShowError(err, win)
			return
		}
		b.SetStatus(fmt.Sprintf("Exported view to %s", uc.URI().Name()))
	}, win)
	d.SetFileName(name)
	d.SetFilter(storage.NewExtensionFileFilter([]string{ext}))
	d.Show()
}
