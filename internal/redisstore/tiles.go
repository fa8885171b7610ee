package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"TileBoard/internal/protocol"
	"TileBoard/internal/state"
)

func position(x, y int) string {
	return strconv.Itoa(x) + ":" + strconv.Itoa(y)
}

// Tiles returns every stored tile of a canvas ordered by position.
func (s *Store) Tiles(ctx context.Context, canvasID string) ([]state.Tile, error) {
	data, err := s.rdb.HGetAll(ctx, s.tilesKey(canvasID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get tiles: %w", err)
	}

	tiles := make([]state.Tile, 0, len(data))
	for id, raw := range data {
		var t state.Tile
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tile %s: %w", id, err)
		}
		tiles = append(tiles, t)
	}
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Y != tiles[j].Y {
			return tiles[i].Y < tiles[j].Y
		}
		return tiles[i].X < tiles[j].X
	})
	return tiles, nil
}

// Tile returns one stored tile.
func (s *Store) Tile(ctx context.Context, canvasID, tileID string) (state.Tile, error) {
	raw, err := s.rdb.HGet(ctx, s.tilesKey(canvasID), tileID).Result()
	if errors.Is(err, redis.Nil) {
		return state.Tile{}, fmt.Errorf("tile %s: %w", tileID, ErrNotFound)
	}
	if err != nil {
		return state.Tile{}, fmt.Errorf("failed to get tile: %w", err)
	}
	var t state.Tile
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return state.Tile{}, fmt.Errorf("failed to unmarshal tile %s: %w", tileID, err)
	}
	return t, nil
}

// SaveTile stores t, replacing whatever tile occupied its position, and
// publishes tile_created or tile_update. A tile without an ID gets one.
func (s *Store) SaveTile(ctx context.Context, canvasID string, t state.Tile) (state.Tile, error) {
	if t.X < 0 || t.Y < 0 {
		return state.Tile{}, fmt.Errorf("tile position must not be negative, got (%d,%d)", t.X, t.Y)
	}
	if t.ID == "" {
		t.ID = state.NewTileID()
	}
	t.CanvasID = canvasID
	t.IsEmpty = false
	t.WorldX, t.WorldY = 0, 0

	now := s.now().UTC()
	prevID, err := s.rdb.HGet(ctx, s.positionsKey(canvasID), position(t.X, t.Y)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return state.Tile{}, fmt.Errorf("failed to read tile position: %w", err)
	}
	created := true
	var moved *state.Tile
	if prev, err := s.Tile(ctx, canvasID, t.ID); err == nil {
		created = false
		t.CreatedAt = prev.CreatedAt
		if prev.X != t.X || prev.Y != t.Y {
			moved = &prev
		}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	data, err := json.Marshal(t)
	if err != nil {
		return state.Tile{}, fmt.Errorf("failed to marshal tile: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prevID != "" && prevID != t.ID {
			pipe.HDel(ctx, s.tilesKey(canvasID), prevID)
		}
		if moved != nil {
			pipe.HDel(ctx, s.positionsKey(canvasID), position(moved.X, moved.Y))
		}
		pipe.HSet(ctx, s.tilesKey(canvasID), t.ID, data)
		pipe.HSet(ctx, s.positionsKey(canvasID), position(t.X, t.Y), t.ID)
		return nil
	})
	if err != nil {
		return state.Tile{}, fmt.Errorf("failed to save tile: %w", err)
	}

	kind := protocol.TypeTileUpdate
	if created {
		kind = protocol.TypeTileCreated
	}
	if err := s.publish(ctx, canvasID, &protocol.TileMessage{Type: kind, Tile: t}); err != nil {
		return t, err
	}
	return t, nil
}

// DeleteTile removes a tile and publishes tile_deleted.
func (s *Store) DeleteTile(ctx context.Context, canvasID, tileID string) error {
	t, err := s.Tile(ctx, canvasID, tileID)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.tilesKey(canvasID), tileID)
		pipe.HDel(ctx, s.positionsKey(canvasID), position(t.X, t.Y))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete tile: %w", err)
	}
	return s.publish(ctx, canvasID, &protocol.TileDeleted{TileID: tileID})
}
