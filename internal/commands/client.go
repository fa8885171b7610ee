package commands

import (
	"context"
	"fmt"
	"log"

	"TileBoard/internal/collab"
	"TileBoard/internal/config"
	"TileBoard/internal/engine"
	tbnet "TileBoard/internal/net"
	"TileBoard/internal/state"
	"TileBoard/internal/ui"
)

// session is one windowed client of a host.
type session struct {
	baseURL   string
	canvasID  string
	shareLink string
	cfg       *config.Config
}

// run opens the board window and blocks until it is closed.
func (s session) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app := ui.NewApp()

	self := collab.Identity{UserID: state.NewSessionID(), Username: username}
	api := tbnet.NewAPIClient(s.baseURL, self.UserID, nil)
	link := tbnet.NewLink(s.baseURL, self)
	defer link.Close()

	surface := ui.NewViewSurface(1024, 700)
	defer surface.Close()

	e, err := engine.New(s.cfg, engine.Deps{
		Surface:  surface,
		Tiles:    api,
		Locks:    api,
		Sender:   link,
		Realtime: link,
		Self:     self,
	})
	if err != nil {
		return err
	}
	defer e.Close()

	board := ui.NewBoard(e, surface, s.cfg)
	link.OnDisconnect(func(err error) {
		board.SetStatus(fmt.Sprintf("Disconnected from host, reconnecting: %v", err))
	})

	if err := e.OpenGrid(ctx, engine.Grid{CanvasID: s.canvasID}); err != nil {
		return err
	}

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(cfg *config.Config) {
				board.UpdateDisplay(func(d *config.DisplayOptions) { *d = cfg.Display })
			})
			if err != nil {
				log.Printf("[Config] Hot reload disabled: %v", err)
			}
		}()
	}

	log.Printf("[Client] Joined canvas %s at %s as %s", s.canvasID, s.baseURL, self.UserID)
	app.RunBoard("TileBoard - "+s.canvasID, s.shareLink, board)
	return nil
}
