package state

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// TileStore holds the tiles of the currently open grid, indexed by id and by
// position. Every mutation bumps Version so caches keyed on it invalidate.
type TileStore struct {
	mu      sync.RWMutex
	byID    map[string]Tile
	byCoord map[Coord]string
	version uint64
}

// NewTileStore creates an empty store.
func NewTileStore() *TileStore {
	return &TileStore{
		byID:    make(map[string]Tile),
		byCoord: make(map[Coord]string),
	}
}

// Upsert inserts or replaces a tile. A tile arriving for an occupied position
// under a different id replaces the previous occupant (last write wins).
// Returns true when the tile was not present before.
func (s *TileStore) Upsert(t Tile) bool {
	if t.ID == "" {
		t.ID = fmt.Sprintf("pending-%d-%d", t.X, t.Y)
	}
	t.IsEmpty = false

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.byID[t.ID]
	if old, ok := s.byID[t.ID]; ok && old.Coord() != t.Coord() {
		delete(s.byCoord, old.Coord())
	}
	if prevID, ok := s.byCoord[t.Coord()]; ok && prevID != t.ID {
		delete(s.byID, prevID)
		log.Printf("[Store] Tile %s at (%d,%d) replaced by %s", prevID, t.X, t.Y, t.ID)
	}
	s.byID[t.ID] = t
	s.byCoord[t.Coord()] = t.ID
	s.version++
	return !existed
}

// Remove deletes a tile by id. Removing an unknown id is a no-op.
func (s *TileStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	if s.byCoord[t.Coord()] == id {
		delete(s.byCoord, t.Coord())
	}
	s.version++
	return true
}

// Reset replaces the whole content, e.g. on grid load or switch.
func (s *TileStore) Reset(tiles []Tile) {
	s.mu.Lock()
	s.byID = make(map[string]Tile, len(tiles))
	s.byCoord = make(map[Coord]string, len(tiles))
	s.version++
	s.mu.Unlock()

	for _, t := range tiles {
		s.Upsert(t)
	}
}

// Get returns the tile with the given id.
func (s *TileStore) Get(id string) (Tile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	return t, ok
}

// At returns the tile at tile-index position (x, y).
func (s *TileStore) At(x, y int) (Tile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCoord[Coord{X: x, Y: y}]
	if !ok {
		return Tile{}, false
	}
	return s.byID[id], true
}

// InRect returns the tiles whose position lies inside the inclusive box
// [minX, maxX] x [minY, maxY], ordered by row then column.
func (s *TileStore) InRect(minX, minY, maxX, maxY int) []Tile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Tile
	for _, t := range s.byID {
		if t.X >= minX && t.X <= maxX && t.Y >= minY && t.Y <= maxY {
			out = append(out, t)
		}
	}
	sortTiles(out)
	return out
}

// All returns every tile ordered by row then column.
func (s *TileStore) All() []Tile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tile, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, t)
	}
	sortTiles(out)
	return out
}

// Len returns the number of stored tiles.
func (s *TileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Version returns a counter that changes on every mutation.
func (s *TileStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func sortTiles(tiles []Tile) {
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Y != tiles[j].Y {
			return tiles[i].Y < tiles[j].Y
		}
		return tiles[i].X < tiles[j].X
	})
}
