package ui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"TileBoard/internal/collab"
	"TileBoard/internal/config"
	"TileBoard/internal/engine"
	"TileBoard/internal/event"
	"TileBoard/internal/render"
	"TileBoard/internal/state"
)

const editTimeout = 10 * time.Second

// Board is the main window content: the grid widget, a toolbar, the
// participants strip and a status line.
type Board struct {
	Engine *engine.Engine
	Widget *BoardWidget

	tileSize int
	status   *widget.Label
	people   *fyne.Container
	subs     []event.Subscription

	mu      sync.Mutex
	display config.DisplayOptions
}

// NewBoard wires a board around an engine built from cfg.
func NewBoard(e *engine.Engine, surface *ViewSurface, cfg *config.Config) *Board {
	b := &Board{
		Engine:   e,
		Widget:   NewBoardWidget(e, surface),
		tileSize: cfg.TileSize,
		status:   widget.NewLabel("Ready"),
		people:   container.NewHBox(),
		display:  cfg.Display,
	}
	b.subs = append(b.subs,
		e.OnTileClick(b.tileClicked),
		e.OnTileDoubleClick(b.tileDoubleClicked),
		e.OnLockLost(func(l collab.LockLost) {
			b.SetStatus(fmt.Sprintf("Lost the lock on tile (%d,%d): %v", l.X, l.Y, l.Err))
		}),
		e.OnInputError(func(err error) {
			b.SetStatus(fmt.Sprintf("Could not resolve that tile: %v", err))
		}),
		e.OnOverlays(func([]render.Overlay) { b.refreshPeople() }),
		e.OnLoad(func(r engine.LoadResult) {
			if r.Err != nil {
				b.SetStatus(fmt.Sprintf("Failed to load %s: %v", r.Grid.CanvasID, r.Err))
				return
			}
			b.SetStatus(fmt.Sprintf("Canvas %s: %d tiles", r.Grid.CanvasID, r.Tiles))
			b.refreshPeople()
		}),
	)
	return b
}

// SetStatus updates the status line from any goroutine.
func (b *Board) SetStatus(text string) {
	fyne.Do(func() { b.status.SetText(text) })
}

// Status returns the status line text.
func (b *Board) Status() string {
	return b.status.Text
}

// Display returns the current display options.
func (b *Board) Display() config.DisplayOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.display
}

// UpdateDisplay applies fn to the display options and pushes them to the
// engine.
func (b *Board) UpdateDisplay(fn func(*config.DisplayOptions)) {
	b.mu.Lock()
	next := b.display
	fn(&next)
	b.mu.Unlock()

	if err := b.Engine.SetDisplay(next); err != nil {
		b.SetStatus(fmt.Sprintf("Invalid display options: %v", err))
		return
	}
	b.mu.Lock()
	b.display = next
	b.mu.Unlock()
}

func (b *Board) tileClicked(t state.Tile) {
	switch {
	case t.IsEmpty:
		b.SetStatus(fmt.Sprintf("Empty tile (%d,%d)", t.X, t.Y))
	case t.OwnerID != "":
		b.SetStatus(fmt.Sprintf("Tile (%d,%d) by %s", t.X, t.Y, t.OwnerID))
	default:
		b.SetStatus(fmt.Sprintf("Tile (%d,%d)", t.X, t.Y))
	}
}

// tileDoubleClicked starts editing: it locks the tile without blocking the
// input path.
func (b *Board) tileDoubleClicked(t state.Tile) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), editTimeout)
		defer cancel()
		_, err := b.Engine.BeginEdit(ctx, t)
		switch {
		case err == nil:
			b.SetStatus(fmt.Sprintf("Editing tile (%d,%d)", t.X, t.Y))
		case errors.Is(err, collab.ErrLockConflict):
			b.SetStatus(fmt.Sprintf("Tile (%d,%d) is being edited by someone else", t.X, t.Y))
		case errors.Is(err, collab.ErrAlreadyEditing):
			b.SetStatus("Finish editing the current tile first")
		default:
			log.Printf("[UI] Failed to start editing (%d,%d): %v", t.X, t.Y, err)
			b.SetStatus(fmt.Sprintf("Could not edit tile (%d,%d)", t.X, t.Y))
		}
	}()
}

// EndEdit releases the edit lock.
func (b *Board) EndEdit() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), editTimeout)
		defer cancel()
		b.Engine.EndEdit(ctx)
		b.SetStatus("Stopped editing")
	}()
}

// CenterOn scrolls the view to a tile.
func (b *Board) CenterOn(c state.Coord) {
	ts := float64(b.tileSize)
	b.Engine.Viewport().CenterOn((float64(c.X)+0.5)*ts, (float64(c.Y)+0.5)*ts)
}

func (b *Board) refreshPeople() {
	presence := b.Engine.Presence()
	fyne.Do(func() {
		objects := make([]fyne.CanvasObject, 0, len(presence))
		for _, p := range presence {
			if p.Status == state.StatusOffline {
				continue
			}
			objects = append(objects, newPersonSwatch(b, p))
		}
		b.people.Objects = objects
		b.people.Refresh()
	})
}

// Content lays out the board: toolbar on top, status and participants below.
func (b *Board) Content(win fyne.Window) fyne.CanvasObject {
	bottom := container.NewBorder(nil, nil, nil, b.people, b.status)
	return container.NewBorder(NewToolbar(b, win), bottom, nil, nil, b.Widget)
}

// Close detaches the board from the engine.
func (b *Board) Close() {
	for _, s := range b.subs {
		s.Unsubscribe()
	}
	b.Widget.Detach()
}
