package ui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"TileBoard/internal/input"
)

// App is the fyne application running a board. The application must be
// created before the board's widgets.
type App struct {
	fyne.App
}

// NewApp creates the fyne application.
func NewApp() *App {
	return &App{App: app.NewWithID("io.tileboard.app")}
}

// RunBoard shows the board in a window and blocks until it is closed. A
// non-empty shareLink is shown above the board with a copy button.
func (a *App) RunBoard(title, shareLink string, b *Board) {
	win := a.NewWindow(title)
	win.Resize(fyne.NewSize(1024, 768))

	a.Lifecycle().SetOnEnteredForeground(func() { b.Engine.SetFocus(true) })
	a.Lifecycle().SetOnExitedForeground(func() {
		b.Engine.HandleInput(input.Blur{})
		b.Engine.SetFocus(false)
	})

	content := b.Content(win)
	if shareLink != "" {
		link := widget.NewEntry()
		link.SetText(shareLink)
		link.Disable()
		copyLink := widget.NewButtonWithIcon("Copy", theme.ContentCopyIcon(), func() {
			a.Clipboard().SetContent(shareLink)
			b.SetStatus("Share link copied")
		})
		header := container.NewBorder(nil, nil, widget.NewLabel("Share:"), copyLink, link)
		content = container.NewBorder(header, nil, nil, nil, content)
	}

	win.SetContent(content)
	win.SetOnClosed(b.Close)
	win.ShowAndRun()
}
