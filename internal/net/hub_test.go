package net

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TileBoard/internal/protocol"
	"TileBoard/internal/state"
)

func newPeer(userID string, buffer int) *Peer {
	return &Peer{UserID: userID, Username: userID, canvasID: "c1", send: make(chan []byte, buffer)}
}

// queued returns the messages buffered for p without blocking.
func queued(t *testing.T, p *Peer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case data, ok := <-p.send:
			if !ok {
				return out
			}
			var m map[string]any
			require.NoError(t, json.Unmarshal(data, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func ofType(msgs []map[string]any, typ string) []map[string]any {
	var out []map[string]any
	for _, m := range msgs {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func userIDs(ps []state.Presence) []string {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.UserID)
	}
	return ids
}

func TestAddRejectsPeerWhenSnapshotOverflows(t *testing.T) {
	hub := NewHub(nil)
	t.Cleanup(hub.Close)

	for i := 0; i <= sendBuffer; i++ {
		require.NoError(t, hub.Add(newPeer(fmt.Sprintf("u%d", i), 4*sendBuffer)))
	}
	require.Equal(t, sendBuffer+1, hub.Peers("c1"))

	late := newPeer("late", sendBuffer)
	assert.Error(t, hub.Add(late))
	assert.Equal(t, sendBuffer+1, hub.Peers("c1"))
	assert.NotContains(t, userIDs(hub.Presence("c1")), "late")

	assert.NotPanics(t, func() {
		hub.Broadcast("c1", &protocol.UserLeft{UserID: "someone"}, nil)
	})

	// The rejected peer's queue is closed after the partial snapshot.
	n := 0
	for range late.send {
		n++
	}
	assert.Equal(t, sendBuffer, n)

	// Peers served over a websocket get a buffer sized for the snapshot.
	roomy := &Peer{UserID: "roomy", canvasID: "c1"}
	require.NoError(t, hub.Add(roomy))
	assert.Len(t, ofType(queued(t, roomy), protocol.TypePresenceUpdate), sendBuffer+1)
}

func TestAddAfterCloseFails(t *testing.T) {
	hub := NewHub(nil)
	hub.Close()
	assert.ErrorIs(t, hub.Add(newPeer("alice", 4)), ErrHubClosed)
	assert.Zero(t, hub.Peers("c1"))
}

func TestSlowPeerIsRemovedWithItsPresence(t *testing.T) {
	hub := NewHub(nil)
	t.Cleanup(hub.Close)

	alice := newPeer("alice", 16)
	bob := newPeer("bob", 1)
	require.NoError(t, hub.Add(alice))
	// Bob's only slot holds alice's presence.
	require.NoError(t, hub.Add(bob))
	queued(t, alice)

	assert.NotPanics(t, func() {
		hub.Broadcast("c1", &protocol.UserJoined{UserID: "carol"}, nil)
	})

	assert.Equal(t, 1, hub.Peers("c1"))
	assert.Equal(t, []string{"alice"}, userIDs(hub.Presence("c1")))

	msgs := queued(t, alice)
	left := ofType(msgs, protocol.TypeUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "bob", left[0]["user_id"])

	<-bob.send
	_, open := <-bob.send
	assert.False(t, open)

	assert.NotPanics(t, func() {
		hub.Broadcast("c1", &protocol.UserJoined{UserID: "dave"}, nil)
	})
}

func TestUserLeavesWithTheirLastConnection(t *testing.T) {
	hub := NewHub(nil)
	t.Cleanup(hub.Close)

	watcher := newPeer("watcher", 16)
	first := newPeer("alice", 16)
	second := newPeer("alice", 16)
	require.NoError(t, hub.Add(watcher))
	require.NoError(t, hub.Add(first))
	require.NoError(t, hub.Add(second))

	joined := ofType(queued(t, watcher), protocol.TypeUserJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "alice", joined[0]["user_id"])

	hub.Remove(first)
	assert.Empty(t, ofType(queued(t, watcher), protocol.TypeUserLeft))
	assert.ElementsMatch(t, []string{"watcher", "alice"}, userIDs(hub.Presence("c1")))

	hub.Remove(second)
	left := ofType(queued(t, watcher), protocol.TypeUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "alice", left[0]["user_id"])
	assert.Equal(t, []string{"watcher"}, userIDs(hub.Presence("c1")))

	// Removing twice is harmless.
	hub.Remove(second)
	assert.Equal(t, 1, hub.Peers("c1"))
}
