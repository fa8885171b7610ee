package export

import (
	"TileBoard/internal/config"
	"TileBoard/internal/render"
	"TileBoard/internal/state"
	"TileBoard/internal/viewport"
)

// Snapshot builds a pipeline that shows the whole grid of tiles at zoom 1, for
// exporting without a window. The surface should be GridWidth x GridHeight.
// Call release when done.
func Snapshot(cfg *config.Config, tiles []state.Tile) (p *render.Pipeline, release func(), err error) {
	store := state.NewTileStore()
	store.Reset(tiles)

	view := viewport.New(viewport.Limits{
		MinZoom:     cfg.MinZoom,
		MaxZoom:     cfg.MaxZoom,
		OriginBound: cfg.OriginBound,
	}, 0)
	view.SetRect(viewport.Rect{Width: float64(cfg.GridWidth), Height: float64(cfg.GridHeight)})

	p, err = render.NewPipeline(cfg, store, view)
	if err != nil {
		view.Close()
		return nil, nil, err
	}
	p.SetGrid(cfg.GridWidth, cfg.GridHeight)
	return p, view.Close, nil
}
