package state

import (
	"encoding/json"
	"time"
)

// Pixel is one raw color entry of a tile's pixel grid. Clients send colors in
// several plain formats, so the entry is kept undecoded until render time.
type Pixel = json.RawMessage

// Coord is a tile-index position on the grid.
type Coord struct{ X, Y int }

// Tile is one fixed-size cell of the shared grid.
type Tile struct {
	ID        string    `json:"id"`
	CanvasID  string    `json:"canvas_id,omitempty"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Pixels    [][]Pixel `json:"pixel_data,omitempty"`
	OwnerID   string    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// IsEmpty marks a placeholder synthesized by hit-testing for a cell that
	// has no stored tile. WorldX/WorldY hold the cell's top-left corner.
	IsEmpty bool    `json:"is_empty,omitempty"`
	WorldX  float64 `json:"world_x,omitempty"`
	WorldY  float64 `json:"world_y,omitempty"`
}

// Coord returns the tile-index position.
func (t Tile) Coord() Coord { return Coord{X: t.X, Y: t.Y} }

// EmptyTile returns a placeholder for the unoccupied cell (x, y).
func EmptyTile(canvasID string, x, y, tileSize int) Tile {
	return Tile{
		CanvasID: canvasID,
		X:        x,
		Y:        y,
		IsEmpty:  true,
		WorldX:   float64(x * tileSize),
		WorldY:   float64(y * tileSize),
	}
}

// Status is a user's presence status.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

// Presence is one user's presence on a grid.
type Presence struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username,omitempty"`
	Status       Status    `json:"status"`
	EditingTileX *int      `json:"editing_tile_x,omitempty"`
	EditingTileY *int      `json:"editing_tile_y,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Editing reports whether the user has an active editing position.
func (p Presence) Editing() (Coord, bool) {
	if p.EditingTileX == nil || p.EditingTileY == nil {
		return Coord{}, false
	}
	return Coord{X: *p.EditingTileX, Y: *p.EditingTileY}, true
}

// Lock is an exclusive, expiring edit lock on a tile.
type Lock struct {
	TileID    string    `json:"tile_id"`
	LockID    string    `json:"lock_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the lock has lapsed at now.
func (l Lock) Expired(now time.Time) bool { return !now.Before(l.ExpiresAt) }
