package net

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"TileBoard/internal/collab"
	"TileBoard/internal/state"
)

// StatusError is a non-2xx response from the host API.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("host returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps a 409 to collab.ErrLockConflict.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusConflict {
		return collab.ErrLockConflict
	}
	return nil
}

// APIClient talks to a host's HTTP API as one session. It serves as the
// engine's tile source and lock client.
type APIClient struct {
	base    string
	session string
	http    *http.Client
}

// NewAPIClient creates a client for baseURL (http://host:port). A nil hc
// uses a client with a 10s timeout.
func NewAPIClient(baseURL, sessionID string, hc *http.Client) *APIClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &APIClient{base: strings.TrimSuffix(baseURL, "/"), session: sessionID, http: hc}
}

func tilesPath(canvasID string) string {
	return "/api/canvases/" + url.PathEscape(canvasID) + "/tiles"
}

func lockPath(canvasID, key string) string {
	return tilesPath(canvasID) + "/" + url.PathEscape(key) + "/lock"
}

// FetchTiles returns the stored tiles of a canvas.
func (c *APIClient) FetchTiles(ctx context.Context, canvasID string) ([]state.Tile, error) {
	var tiles []state.Tile
	if err := c.do(ctx, http.MethodGet, tilesPath(canvasID), nil, &tiles); err != nil {
		return nil, fmt.Errorf("failed to fetch tiles: %w", err)
	}
	return tiles, nil
}

// SaveTile stores a tile; the host broadcasts it to every peer.
func (c *APIClient) SaveTile(ctx context.Context, canvasID string, t state.Tile) (state.Tile, error) {
	var saved state.Tile
	if err := c.do(ctx, http.MethodPut, tilesPath(canvasID), t, &saved); err != nil {
		return state.Tile{}, fmt.Errorf("failed to save tile: %w", err)
	}
	return saved, nil
}

// DeleteTile removes a tile.
func (c *APIClient) DeleteTile(ctx context.Context, canvasID, tileID string) error {
	path := tilesPath(canvasID) + "/" + url.PathEscape(tileID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to delete tile: %w", err)
	}
	return nil
}

func (c *APIClient) Acquire(ctx context.Context, canvasID, key string) (state.Lock, error) {
	var lock state.Lock
	err := c.do(ctx, http.MethodPost, lockPath(canvasID, key), nil, &lock)
	return lock, err
}

func (c *APIClient) Extend(ctx context.Context, canvasID, key string) (state.Lock, error) {
	var lock state.Lock
	err := c.do(ctx, http.MethodPatch, lockPath(canvasID, key), nil, &lock)
	return lock, err
}

func (c *APIClient) Release(ctx context.Context, canvasID, key string) error {
	return c.do(ctx, http.MethodDelete, lockPath(canvasID, key), nil, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set(SessionHeader, c.session)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &StatusError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Message}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
