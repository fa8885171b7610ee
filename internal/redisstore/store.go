// Package redisstore is the host-side repository for tiles and edit locks.
// Tiles live in a Redis hash per canvas, locks are keys with a TTL, and tile
// events are fanned out over Pub/Sub so several hosts can share one Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"TileBoard/internal/state"
)

var (
	// ErrNotOwner is returned when a session touches a lock held by another.
	ErrNotOwner = errors.New("lock is held by another session")
	// ErrNotFound is returned for missing tiles.
	ErrNotFound = errors.New("not found")
)

// Store is safe for concurrent use.
type Store struct {
	rdb       *redis.Client
	namespace string
	lockTTL   time.Duration
	now       func() time.Time
}

// New creates a store on a new client. namespace prefixes every key and
// channel so several boards can share a Redis instance.
func New(opts *redis.Options, namespace string, lockTTL time.Duration) (*Store, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	if lockTTL <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive, got %s", lockTTL)
	}
	return &Store{
		rdb:       redis.NewClient(opts),
		namespace: namespace,
		lockTTL:   lockTTL,
		now:       time.Now,
	}, nil
}

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, redisURL, namespace string, lockTTL time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	s, err := New(opts, namespace, lockTTL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return s, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// LockTTL returns the lifetime of a lock after acquire or extend.
func (s *Store) LockTTL() time.Duration { return s.lockTTL }

func (s *Store) tilesKey(canvasID string) string {
	return fmt.Sprintf("tileboard:%s:canvas:%s:tiles", s.namespace, canvasID)
}

func (s *Store) positionsKey(canvasID string) string {
	return fmt.Sprintf("tileboard:%s:canvas:%s:positions", s.namespace, canvasID)
}

func (s *Store) lockKey(canvasID string, cell state.Coord) string {
	return fmt.Sprintf("tileboard:%s:canvas:%s:lock:%d:%d", s.namespace, canvasID, cell.X, cell.Y)
}

func (s *Store) eventsChannel(canvasID string) string {
	return fmt.Sprintf("tileboard:%s:canvas:%s:events", s.namespace, canvasID)
}
