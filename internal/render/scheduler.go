package render

import (
	"time"

	"TileBoard/internal/throttle"
)

// Scheduler coalesces paint requests into at most one paint per interval.
// The paint for the last request in a burst always runs.
type Scheduler struct {
	t *throttle.Throttler
}

// NewScheduler returns a scheduler that calls paint.
func NewScheduler(interval time.Duration, paint func()) *Scheduler {
	return &Scheduler{t: throttle.New(interval, paint)}
}

// Invalidate requests a paint.
func (s *Scheduler) Invalidate() { s.t.Trigger() }

// Flush runs a deferred paint now.
func (s *Scheduler) Flush() { s.t.Flush() }

// Pending reports whether a paint is deferred.
func (s *Scheduler) Pending() bool { return s.t.Pending() }

// Stop drops deferred paints and ignores later requests.
func (s *Scheduler) Stop() { s.t.Stop() }
