package collab

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"TileBoard/internal/protocol"
	"TileBoard/internal/state"
)

// renewTimeout bounds a single extension request.
const renewTimeout = 30 * time.Second

type heldLock struct {
	key   string
	x, y  int
	lock  state.Lock
	timer *time.Timer
}

const cellPrefix = "cell-"

// CellKey names the lock for a grid cell. Locks belong to cells, so a tile
// keeps the same lock before and after it is first saved.
func CellKey(c state.Coord) string {
	return fmt.Sprintf("%s%d-%d", cellPrefix, c.X, c.Y)
}

// ParseCellKey is the inverse of CellKey.
func ParseCellKey(key string) (state.Coord, bool) {
	rest, ok := strings.CutPrefix(key, cellPrefix)
	if !ok {
		return state.Coord{}, false
	}
	xs, ys, ok := strings.Cut(rest, "-")
	if !ok {
		return state.Coord{}, false
	}
	x, err := strconv.Atoi(xs)
	if err != nil || x < 0 {
		return state.Coord{}, false
	}
	y, err := strconv.Atoi(ys)
	if err != nil || y < 0 {
		return state.Coord{}, false
	}
	return state.Coord{X: x, Y: y}, true
}

// LockKey returns the key a tile is locked under: the key of its cell.
func LockKey(t state.Tile) string {
	return CellKey(t.Coord())
}

// BeginEdit acquires the edit lock for tile and starts renewing it. Calling it
// again for the tile already held returns the held lock. It blocks on the
// lock API, so callers on an input path should run it on its own goroutine.
func (s *Synchronizer) BeginEdit(ctx context.Context, tile state.Tile) (state.Lock, error) {
	key := LockKey(tile)

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return state.Lock{}, ErrClosed
	case s.held != nil && s.held.key == key:
		l := s.held.lock
		s.mu.Unlock()
		return l, nil
	case s.held != nil, s.acquiring != "" && s.acquiring != key:
		s.mu.Unlock()
		return state.Lock{}, ErrAlreadyEditing
	case s.acquiring == key:
		s.mu.Unlock()
		return state.Lock{}, fmt.Errorf("lock for %s is already being acquired", key)
	}
	s.acquiring = key
	s.mu.Unlock()

	lock, err := s.locks.Acquire(ctx, s.canvasID, key)

	s.mu.Lock()
	s.acquiring = ""
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, ErrLockConflict) {
			log.Printf("[Collab] Tile %s is being edited by someone else", key)
		} else {
			log.Printf("[Collab] Failed to lock tile %s: %v", key, err)
		}
		return state.Lock{}, fmt.Errorf("failed to lock tile %s: %w", key, err)
	}
	if s.closed {
		s.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), finalSendTimeout)
		defer cancel()
		s.release(ctx, &heldLock{key: key})
		return state.Lock{}, ErrClosed
	}
	h := &heldLock{key: key, x: tile.X, y: tile.Y, lock: lock}
	h.timer = time.AfterFunc(s.opts.LockRenewAfter, func() { s.renew(h) })
	s.held = h
	s.mu.Unlock()

	log.Printf("[Collab] Locked tile %s until %s", key, lock.ExpiresAt.Format(time.RFC3339))
	s.sendPresence(ctx, protocol.PresenceEditingTile)
	return lock, nil
}

// EndEdit releases the held lock, if any. Release failures are logged only,
// since the lock expires by itself.
func (s *Synchronizer) EndEdit(ctx context.Context) {
	s.mu.Lock()
	h := s.held
	s.held = nil
	if h != nil {
		h.timer.Stop()
	}
	s.mu.Unlock()

	if h == nil {
		return
	}
	s.release(ctx, h)
	s.sendPresence(ctx, protocol.PresenceEditingTile)
}

// Editing returns the lock currently held.
func (s *Synchronizer) Editing() (state.Lock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held == nil {
		return state.Lock{}, false
	}
	return s.held.lock, true
}

func (s *Synchronizer) release(ctx context.Context, h *heldLock) {
	if err := s.locks.Release(ctx, s.canvasID, h.key); err != nil {
		log.Printf("[Collab] Failed to release lock on %s: %v", h.key, err)
	}
}

func (s *Synchronizer) renew(h *heldLock) {
	s.mu.Lock()
	if s.held != h {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, renewTimeout)
	lock, err := s.locks.Extend(ctx, s.canvasID, h.key)
	cancel()

	s.mu.Lock()
	if s.held != h {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.held = nil
		s.mu.Unlock()
		log.Printf("[Collab] Lost lock on %s: %v", h.key, err)
		s.lost.Send(LockLost{TileID: h.key, X: h.x, Y: h.y, Err: err})
		s.sendPresence(s.ctx, protocol.PresenceEditingTile)
		return
	}
	h.lock = lock
	h.timer = time.AfterFunc(s.opts.LockRenewAfter, func() { s.renew(h) })
	s.mu.Unlock()
}
