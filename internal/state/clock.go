package state

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall time for code that compares timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// NewSessionID returns a unique id for one client session.
func NewSessionID() string {
	return uuid.NewString()
}

// NewTileID returns a unique id for a newly persisted tile.
func NewTileID() string {
	return "tile-" + uuid.NewString()
}
