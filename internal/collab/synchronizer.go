// Package collab keeps per-tile edit locks, presence and inbound tile updates
// of one open grid in sync with the other participants.
package collab

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"TileBoard/internal/config"
	"TileBoard/internal/event"
	"TileBoard/internal/protocol"
	"TileBoard/internal/state"
)

var (
	ErrLockConflict   = errors.New("tile is locked by another session")
	ErrAlreadyEditing = errors.New("session already holds a lock on another tile")
	ErrClosed         = errors.New("synchronizer is closed")
)

// finalSendTimeout bounds the best-effort calls made while closing.
const finalSendTimeout = 2 * time.Second

// LockClient is the host's lock API. Acquire fails with an error wrapping
// ErrLockConflict when another session holds an unexpired lock. Releasing a
// tile that is not locked succeeds. Keys come from LockKey.
type LockClient interface {
	Acquire(ctx context.Context, canvasID, key string) (state.Lock, error)
	Extend(ctx context.Context, canvasID, key string) (state.Lock, error)
	Release(ctx context.Context, canvasID, key string) error
}

// Sender delivers an outbound realtime message.
type Sender interface {
	Send(ctx context.Context, msg any) error
}

// Invalidator requests a repaint.
type Invalidator interface {
	Invalidate()
}

// Identity names the local session.
type Identity struct {
	UserID   string
	Username string
}

// Options are the collaboration timings.
type Options struct {
	LockRenewAfter    time.Duration
	HeartbeatInterval time.Duration
	IdleTimeout       time.Duration
}

// OptionsFrom extracts the collaboration timings from an engine config.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		LockRenewAfter:    cfg.LockRenewAfter,
		HeartbeatInterval: cfg.HeartbeatInterval,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// LockLost reports a lock that could not be extended.
type LockLost struct {
	TileID string
	X, Y   int
	Err    error
}

// Synchronizer owns the collaboration state of one open grid. All of its
// timers stop in Close.
type Synchronizer struct {
	opts     Options
	self     Identity
	canvasID string
	locks    LockClient
	sender   Sender
	store    *state.TileStore
	presence *state.PresenceBook
	render   Invalidator
	clock    state.Clock

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	held      *heldLock
	acquiring string
	status    state.Status
	focused   bool
	idleTimer *time.Timer
	stopBeat  chan struct{}
	started   bool
	closed    bool
	published []state.Presence

	overlays event.Feed[[]state.Presence]
	lost     event.Feed[LockLost]
	statuses event.Feed[state.Status]
}

// Deps are the collaborators of a Synchronizer.
type Deps struct {
	Locks    LockClient
	Sender   Sender
	Store    *state.TileStore
	Presence *state.PresenceBook
	Render   Invalidator
	Clock    state.Clock
}

// New creates a synchronizer for canvasID. Call Start to begin heartbeats and
// idle tracking.
func New(canvasID string, self Identity, opts Options, deps Deps) *Synchronizer {
	if deps.Clock == nil {
		deps.Clock = state.SystemClock{}
	}
	if deps.Presence == nil {
		deps.Presence = state.NewPresenceBook()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		opts:     opts,
		self:     self,
		canvasID: canvasID,
		locks:    deps.Locks,
		sender:   deps.Sender,
		store:    deps.Store,
		presence: deps.Presence,
		render:   deps.Render,
		clock:    deps.Clock,
		ctx:      ctx,
		cancel:   cancel,
		status:   state.StatusOnline,
		focused:  true,
	}
}

// OnOverlays delivers the editing positions of other users whenever they change.
func (s *Synchronizer) OnOverlays(fn func([]state.Presence)) event.Subscription {
	return s.overlays.Subscribe(fn)
}

// OnLockLost fires when a held lock could not be renewed.
func (s *Synchronizer) OnLockLost(fn func(LockLost)) event.Subscription {
	return s.lost.Subscribe(fn)
}

// OnStatus fires when the local presence status changes.
func (s *Synchronizer) OnStatus(fn func(state.Status)) event.Subscription {
	return s.statuses.Subscribe(fn)
}

// CanvasID returns the grid this synchronizer serves.
func (s *Synchronizer) CanvasID() string { return s.canvasID }

// Presence returns the presence book.
func (s *Synchronizer) Presence() *state.PresenceBook { return s.presence }

// Start announces the session as online and starts the heartbeat and idle
// timers.
func (s *Synchronizer) Start() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.stopBeat = make(chan struct{})
	s.idleTimer = time.AfterFunc(s.opts.IdleTimeout, s.idleExpired)
	stop := s.stopBeat
	s.mu.Unlock()

	go s.heartbeatLoop(stop)
	s.sendPresence(s.ctx, protocol.PresenceStatusChange)
}

// Close releases a held lock, announces offline and stops every timer. Both
// network calls are best-effort.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	if s.stopBeat != nil {
		close(s.stopBeat)
	}
	held := s.held
	s.held = nil
	if held != nil {
		held.timer.Stop()
	}
	s.status = state.StatusOffline
	s.mu.Unlock()

	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), finalSendTimeout)
	defer cancel()
	if held != nil {
		s.release(ctx, held)
	}
	s.sendPresence(ctx, protocol.PresenceStatusChange)
	log.Printf("[Collab] Closed session %s on canvas %s", s.self.UserID, s.canvasID)
}

// Handle applies one inbound realtime message. Invalid messages are logged
// and dropped; unknown types are ignored.
func (s *Synchronizer) Handle(raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		log.Printf("[Collab] Dropping inbound message: %v", err)
		return
	}
	s.Apply(msg)
}

// Apply applies an already decoded message.
func (s *Synchronizer) Apply(msg any) {
	switch m := msg.(type) {
	case *protocol.TileMessage:
		if m.Tile.CanvasID != "" && m.Tile.CanvasID != s.canvasID {
			return
		}
		s.store.Upsert(m.Tile)
		s.invalidate()
	case *protocol.TileDeleted:
		if s.store.Remove(m.TileID) {
			s.invalidate()
		}
	case *protocol.PresenceUpdate:
		p := m.Presence()
		p.UpdatedAt = s.clock.Now()
		s.presence.Upsert(p)
		s.publishOverlays()
	case *protocol.UserJoined:
		s.presence.Upsert(state.Presence{
			UserID:    m.UserID,
			Username:  m.Username,
			Status:    state.StatusOnline,
			UpdatedAt: s.clock.Now(),
		})
		s.publishOverlays()
	case *protocol.UserLeft:
		if s.presence.Remove(m.UserID) {
			s.publishOverlays()
		}
	}
}

func (s *Synchronizer) invalidate() {
	if s.render != nil {
		s.render.Invalidate()
	}
}

// publishOverlays sends the editing set of other users if it differs from the
// last one sent.
func (s *Synchronizer) publishOverlays() {
	editing := s.presence.Editing(s.self.UserID)

	s.mu.Lock()
	if sameEditing(s.published, editing) {
		s.mu.Unlock()
		return
	}
	s.published = editing
	s.mu.Unlock()

	s.overlays.Send(editing)
	s.invalidate()
}

func sameEditing(a, b []state.Presence) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, _ := a[i].Editing()
		cb, _ := b[i].Editing()
		if a[i].UserID != b[i].UserID || ca != cb {
			return false
		}
	}
	return true
}
