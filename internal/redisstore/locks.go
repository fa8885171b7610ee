package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"TileBoard/internal/collab"
	"TileBoard/internal/state"
)

// A lock value is "<session> <lock id>"; ownership checks compare the
// session prefix.

// extendScript refreshes the TTL only when the caller owns the lock.
var extendScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v and string.sub(v, 1, string.len(ARGV[1])) == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return v
end
return false
`)

// releaseScript deletes the lock only when the caller owns it. It returns 1 on
// delete, 0 when the key is absent and -1 when another session holds it.
var releaseScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return 0
end
if string.sub(v, 1, string.len(ARGV[1])) == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return -1
`)

func ownerPrefix(sessionID string) string { return sessionID + " " }

// AcquireLock takes the exclusive lock on a grid cell for sessionID. A session
// re-acquiring its own lock gets it extended. Another session's unexpired lock
// yields an error wrapping collab.ErrLockConflict.
func (s *Store) AcquireLock(ctx context.Context, canvasID string, cell state.Coord, sessionID string) (state.Lock, error) {
	if sessionID == "" {
		return state.Lock{}, fmt.Errorf("session id cannot be empty")
	}
	key := s.lockKey(canvasID, cell)
	lockID := uuid.NewString()

	ok, err := s.rdb.SetNX(ctx, key, ownerPrefix(sessionID)+lockID, s.lockTTL).Result()
	if err != nil {
		return state.Lock{}, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if ok {
		return state.Lock{TileID: collab.CellKey(cell), LockID: lockID, ExpiresAt: s.now().Add(s.lockTTL)}, nil
	}

	lock, err := s.ExtendLock(ctx, canvasID, cell, sessionID)
	if errors.Is(err, ErrNotOwner) {
		return state.Lock{}, fmt.Errorf("tile (%d,%d): %w", cell.X, cell.Y, collab.ErrLockConflict)
	}
	return lock, err
}

// ExtendLock pushes the expiry of a lock held by sessionID.
func (s *Store) ExtendLock(ctx context.Context, canvasID string, cell state.Coord, sessionID string) (state.Lock, error) {
	key := s.lockKey(canvasID, cell)
	v, err := extendScript.Run(ctx, s.rdb, []string{key}, ownerPrefix(sessionID), s.lockTTL.Milliseconds()).Text()
	if errors.Is(err, redis.Nil) {
		return state.Lock{}, ErrNotOwner
	}
	if err != nil {
		return state.Lock{}, fmt.Errorf("failed to extend lock: %w", err)
	}
	return state.Lock{
		TileID:    collab.CellKey(cell),
		LockID:    strings.TrimPrefix(v, ownerPrefix(sessionID)),
		ExpiresAt: s.now().Add(s.lockTTL),
	}, nil
}

// ReleaseLock drops a lock held by sessionID. Releasing a cell that is not
// locked is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, canvasID string, cell state.Coord, sessionID string) error {
	key := s.lockKey(canvasID, cell)
	n, err := releaseScript.Run(ctx, s.rdb, []string{key}, ownerPrefix(sessionID)).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if n < 0 {
		return ErrNotOwner
	}
	return nil
}

// LockOwner returns the session holding the lock on a cell.
func (s *Store) LockOwner(ctx context.Context, canvasID string, cell state.Coord) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.lockKey(canvasID, cell)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read lock: %w", err)
	}
	session, _, _ := strings.Cut(v, " ")
	return session, true, nil
}
