package state

import (
	"sort"
	"sync"
)

// PresenceBook tracks at most one presence entry per user for the open grid.
type PresenceBook struct {
	mu      sync.RWMutex
	entries []Presence
}

// NewPresenceBook creates an empty book.
func NewPresenceBook() *PresenceBook {
	return &PresenceBook{}
}

// Upsert replaces the entry with the same user id or appends a new one.
func (b *PresenceBook) Upsert(p Presence) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.entries {
		if b.entries[i].UserID == p.UserID {
			if p.Username == "" {
				p.Username = b.entries[i].Username
			}
			b.entries[i] = p
			return
		}
	}
	b.entries = append(b.entries, p)
}

// Remove drops the entry for userID. Returns false when there was none.
func (b *PresenceBook) Remove(userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.entries {
		if b.entries[i].UserID == userID {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the entry for userID.
func (b *PresenceBook) Get(userID string) (Presence, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.entries {
		if p.UserID == userID {
			return p, true
		}
	}
	return Presence{}, false
}

// Editing returns the entries with an active editing position, skipping
// exceptUserID, ordered by user id.
func (b *PresenceBook) Editing(exceptUserID string) []Presence {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Presence
	for _, p := range b.entries {
		if p.UserID == exceptUserID || p.Status == StatusOffline {
			continue
		}
		if _, ok := p.Editing(); ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// All returns a copy of every entry in insertion order.
func (b *PresenceBook) All() []Presence {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Presence, len(b.entries))
	copy(out, b.entries)
	return out
}

// Clear drops every entry.
func (b *PresenceBook) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}
