package net

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"TileBoard/internal/collab"
	"TileBoard/internal/redisstore"
	"TileBoard/internal/state"
)

// SessionHeader identifies the session that owns a lock.
const SessionHeader = "X-Session-ID"

const maxBodyBytes = 1 << 20

// Server is the host's HTTP API: tiles, locks and the realtime websocket.
type Server struct {
	store *redisstore.Store
	hub   *Hub
}

// NewServer creates the API over a store and hub.
func NewServer(store *redisstore.Store, hub *Hub) *Server {
	return &Server{store: store, hub: hub}
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/canvases/{canvas}/tiles", s.handleListTiles)
	mux.HandleFunc("PUT /api/canvases/{canvas}/tiles", s.handleSaveTile)
	mux.HandleFunc("DELETE /api/canvases/{canvas}/tiles/{tile}", s.handleDeleteTile)
	mux.HandleFunc("POST /api/canvases/{canvas}/tiles/{tile}/lock", s.handleAcquireLock)
	mux.HandleFunc("PATCH /api/canvases/{canvas}/tiles/{tile}/lock", s.handleExtendLock)
	mux.HandleFunc("DELETE /api/canvases/{canvas}/tiles/{tile}/lock", s.handleReleaseLock)
	mux.HandleFunc("GET /ws/{canvas}", s.handleWS)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTiles(w http.ResponseWriter, r *http.Request) {
	tiles, err := s.store.Tiles(r.Context(), r.PathValue("canvas"))
	if err != nil {
		s.internalError(w, "list tiles", err)
		return
	}
	writeJSON(w, http.StatusOK, tiles)
}

// handleSaveTile stores a tile from the editor. A tile whose cell is locked
// by another session cannot be saved, nor can a tile be moved out of such a
// cell.
func (s *Server) handleSaveTile(w http.ResponseWriter, r *http.Request) {
	canvasID := r.PathValue("canvas")
	var tile state.Tile
	if !decodeJSONBody(w, r, &tile) {
		return
	}
	if tile.X < 0 || tile.Y < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "tile position must not be negative")
		return
	}
	cells := []state.Coord{tile.Coord()}
	if tile.ID != "" {
		prev, err := s.store.Tile(r.Context(), canvasID, tile.ID)
		switch {
		case err == nil && prev.Coord() != tile.Coord():
			cells = append(cells, prev.Coord())
		case err != nil && !errors.Is(err, redisstore.ErrNotFound):
			s.internalError(w, "read tile", err)
			return
		}
	}
	for _, c := range cells {
		if !s.checkLock(w, r, canvasID, c) {
			return
		}
	}

	saved, err := s.store.SaveTile(r.Context(), canvasID, tile)
	if err != nil {
		if saved.ID == "" {
			s.internalError(w, "save tile", err)
			return
		}
		// Stored but not fanned out; peers catch up on their next load.
		log.Printf("[Server] Saved tile %s without broadcast: %v", saved.ID, err)
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteTile(w http.ResponseWriter, r *http.Request) {
	canvasID, tileID := r.PathValue("canvas"), r.PathValue("tile")
	tile, err := s.store.Tile(r.Context(), canvasID, tileID)
	if err != nil {
		if errors.Is(err, redisstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		s.internalError(w, "read tile", err)
		return
	}
	if !s.checkLock(w, r, canvasID, tile.Coord()) {
		return
	}
	if err := s.store.DeleteTile(r.Context(), canvasID, tileID); err != nil {
		if errors.Is(err, redisstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		s.internalError(w, "delete tile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// checkLock writes a conflict and reports false when another session holds
// the lock on cell.
func (s *Server) checkLock(w http.ResponseWriter, r *http.Request, canvasID string, cell state.Coord) bool {
	owner, locked, err := s.store.LockOwner(r.Context(), canvasID, cell)
	if err != nil {
		s.internalError(w, "read lock", err)
		return false
	}
	if locked && owner != r.Header.Get(SessionHeader) {
		writeError(w, http.StatusConflict, "lock_conflict", "tile is locked by another session")
		return false
	}
	return true
}

// lockCell resolves the {tile} path value of a lock route to a grid cell. It
// is either a cell key or the id of a stored tile.
func (s *Server) lockCell(w http.ResponseWriter, r *http.Request) (state.Coord, bool) {
	key := r.PathValue("tile")
	if c, ok := collab.ParseCellKey(key); ok {
		return c, true
	}
	tile, err := s.store.Tile(r.Context(), r.PathValue("canvas"), key)
	if err != nil {
		if errors.Is(err, redisstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return state.Coord{}, false
		}
		s.internalError(w, "read tile", err)
		return state.Coord{}, false
	}
	return tile.Coord(), true
}

func (s *Server) handleAcquireLock(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	cell, ok := s.lockCell(w, r)
	if !ok {
		return
	}
	lock, err := s.store.AcquireLock(r.Context(), r.PathValue("canvas"), cell, session)
	if err != nil {
		s.lockError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lock)
}

func (s *Server) handleExtendLock(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	cell, ok := s.lockCell(w, r)
	if !ok {
		return
	}
	lock, err := s.store.ExtendLock(r.Context(), r.PathValue("canvas"), cell, session)
	if err != nil {
		s.lockError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lock)
}

func (s *Server) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	cell, ok := s.lockCell(w, r)
	if !ok {
		return
	}
	if err := s.store.ReleaseLock(r.Context(), r.PathValue("canvas"), cell, session); err != nil {
		s.lockError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id is required")
		return
	}
	s.hub.ServeWS(w, r, r.PathValue("canvas"), userID, q.Get("username"))
}

func (s *Server) lockError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, collab.ErrLockConflict):
		writeError(w, http.StatusConflict, "lock_conflict", err.Error())
	case errors.Is(err, redisstore.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not_owner", err.Error())
	default:
		s.internalError(w, "lock", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	log.Printf("[Server] Failed to %s: %v", op, err)
	writeError(w, http.StatusInternalServerError, "internal_error", "failed to "+op)
}

func requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	session := r.Header.Get(SessionHeader)
	if session == "" {
		writeError(w, http.StatusBadRequest, "bad_request", SessionHeader+" header is required")
		return "", false
	}
	return session, true
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds limit")
			return false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return false
	}
	return true
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}
