package collab

import (
	"context"
	"log"
	"time"

	"TileBoard/internal/protocol"
	"TileBoard/internal/state"
)

// Status returns the local presence status.
func (s *Synchronizer) Status() state.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Activity records tracked input. It restarts the idle window and brings an
// idle session back online.
func (s *Synchronizer) Activity(time.Time) {
	s.mu.Lock()
	if s.closed || !s.started {
		s.mu.Unlock()
		return
	}
	s.idleTimer.Reset(s.opts.IdleTimeout)
	changed := s.status == state.StatusAway && s.focused
	if changed {
		s.status = state.StatusOnline
	}
	s.mu.Unlock()

	if changed {
		s.statusChanged(state.StatusOnline)
	}
}

// SetFocus maps window focus to away/online regardless of the idle timer.
func (s *Synchronizer) SetFocus(focused bool) {
	want := state.StatusAway
	if focused {
		want = state.StatusOnline
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.focused = focused
	if focused && s.idleTimer != nil {
		s.idleTimer.Reset(s.opts.IdleTimeout)
	}
	changed := s.status != want
	s.status = want
	s.mu.Unlock()

	if changed {
		s.statusChanged(want)
	}
}

func (s *Synchronizer) idleExpired() {
	s.mu.Lock()
	if s.closed || s.status != state.StatusOnline {
		s.mu.Unlock()
		return
	}
	s.status = state.StatusAway
	s.mu.Unlock()

	log.Printf("[Collab] No activity for %s, marking %s away", s.opts.IdleTimeout, s.self.UserID)
	s.statusChanged(state.StatusAway)
}

func (s *Synchronizer) statusChanged(st state.Status) {
	s.statuses.Send(st)
	s.sendPresence(s.ctx, protocol.PresenceStatusChange)
}

func (s *Synchronizer) heartbeatLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sendPresence(s.ctx, protocol.PresenceHeartbeat)
		case <-stop:
			return
		}
	}
}

// Announce resends this user's presence, e.g. after the realtime channel
// reconnected.
func (s *Synchronizer) Announce(ctx context.Context) {
	s.sendPresence(ctx, protocol.PresenceStatusChange)
}

// sendPresence sends the current status and editing position. Failures are
// logged and otherwise ignored.
func (s *Synchronizer) sendPresence(ctx context.Context, kind protocol.PresenceType) {
	if s.sender == nil {
		return
	}
	s.mu.Lock()
	msg := &protocol.UserPresence{
		PresenceType: kind,
		UserID:       s.self.UserID,
		Username:     s.self.Username,
		Status:       s.status,
	}
	if s.held != nil {
		x, y := s.held.x, s.held.y
		msg.TileX, msg.TileY = &x, &y
		msg.IsEditing = true
	}
	s.mu.Unlock()

	if err := s.sender.Send(ctx, msg); err != nil {
		log.Printf("[Collab] Failed to send %s presence: %v", kind, err)
	}
}
