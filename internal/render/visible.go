package render

import (
	"math"
	"sync"

	"TileBoard/internal/state"
	"TileBoard/internal/viewport"
)

// TileBox is an inclusive tile-index rectangle.
type TileBox struct {
	MinX, MinY, MaxX, MaxY int
}

// Contains reports whether (x, y) lies in the box.
func (b TileBox) Contains(x, y int) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// VisibleBox returns the tile-index box covering the world area visible on a
// surface of the given size, padded by one tile on every side.
func VisibleBox(vs viewport.State, width, height float64, tileSize int) TileBox {
	ts := float64(tileSize)
	left := vs.OriginX - ts
	top := vs.OriginY - ts
	right := vs.OriginX + width/vs.Zoom + ts
	bottom := vs.OriginY + height/vs.Zoom + ts
	return TileBox{
		MinX: int(math.Floor(left / ts)),
		MinY: int(math.Floor(top / ts)),
		MaxX: int(math.Floor(right / ts)),
		MaxY: int(math.Floor(bottom / ts)),
	}
}

type visibleKey struct {
	originX, originY, zoom float64
	width, height          float64
	size                   int
	version                uint64
}

// visibleCache memoizes the visible-tile query for an unchanged viewport,
// surface and store.
type visibleCache struct {
	mu    sync.Mutex
	key   visibleKey
	valid bool
	box   TileBox
	tiles []state.Tile

	hits, misses uint64
}

func (c *visibleCache) query(store *state.TileStore, vs viewport.State, width, height float64, tileSize int) (TileBox, []state.Tile) {
	key := visibleKey{
		originX: vs.OriginX, originY: vs.OriginY, zoom: vs.Zoom,
		width: width, height: height,
		size: store.Len(), version: store.Version(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid && c.key == key {
		c.hits++
		return c.box, c.tiles
	}
	c.misses++
	box := VisibleBox(vs, width, height, tileSize)
	c.key, c.box, c.valid = key, box, true
	c.tiles = store.InRect(box.MinX, box.MinY, box.MaxX, box.MaxY)
	return c.box, c.tiles
}

func (c *visibleCache) invalidate() {
	c.mu.Lock()
	c.valid = false
	c.tiles = nil
	c.mu.Unlock()
}
