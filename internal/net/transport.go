package net

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"TileBoard/internal/protocol"
	"TileBoard/internal/redisstore"
	"TileBoard/internal/state"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 64
)

// TileEvents is the source of tile events fanned out to a canvas's peers.
type TileEvents interface {
	Subscribe(ctx context.Context, canvasID string) (*redisstore.Subscription, error)
}

// ErrHubClosed is returned when a peer joins a closed hub.
var ErrHubClosed = errors.New("hub is closed")

// Peer is one websocket client connected to the host.
type Peer struct {
	UserID   string
	Username string
	canvasID string
	conn     *websocket.Conn
	send     chan []byte

	// closed is guarded by Hub.mu. Nothing is sent once it is set.
	closed bool
}

// closePeer stops all sends to p. h.mu must be held.
func (h *Hub) closePeer(p *Peer) {
	if p.closed {
		return
	}
	p.closed = true
	if p.send != nil {
		close(p.send)
	}
}

type room struct {
	peers    map[*Peer]bool
	presence *state.PresenceBook
	sub      *redisstore.Subscription
}

// Hub is used by the host to manage the peers of every canvas. Presence is
// relayed between peers of the same canvas; tile events arrive from
// TileEvents and go to every peer.
type Hub struct {
	events   TileEvents
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[string]*room
}

// NewHub creates a hub. events may be nil, in which case only presence is
// relayed.
func NewHub(events TileEvents) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Boards are shared on the LAN by link, any origin may join.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]*room),
	}
}

// ServeWS upgrades the request and serves the peer until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, canvasID, userID, username string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Hub] Upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	p := &Peer{
		UserID:   userID,
		Username: username,
		canvasID: canvasID,
		conn:     conn,
	}
	if err := h.Add(p); err != nil {
		log.Printf("[Hub] Rejected %s on canvas %s: %v", userID, canvasID, err)
		conn.Close()
		return
	}
	go h.writePump(p)
	h.readPump(p)
}

// Add joins p to its canvas, sends it the current presence and announces it to
// the others. A peer without a send buffer gets one large enough for the
// presence snapshot. If the snapshot does not fit, p is closed and not joined.
func (h *Hub) Add(p *Peer) error {
	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		return ErrHubClosed
	}
	rm, ok := h.rooms[p.canvasID]
	var snapshot []state.Presence
	if ok {
		snapshot = rm.presence.All()
	}
	if p.send == nil {
		p.send = make(chan []byte, sendBuffer+len(snapshot))
	}
	for _, other := range snapshot {
		if !h.enqueue(p, presenceUpdate(other)) {
			h.closePeer(p)
			h.mu.Unlock()
			return fmt.Errorf("presence snapshot of %d users overflows the send buffer", len(snapshot))
		}
	}
	if !ok {
		rm = &room{peers: make(map[*Peer]bool), presence: state.NewPresenceBook()}
		h.rooms[p.canvasID] = rm
	}
	first := !h.hasUser(rm, p.UserID)
	rm.peers[p] = true
	rm.presence.Upsert(state.Presence{UserID: p.UserID, Username: p.Username, Status: state.StatusOnline})
	h.mu.Unlock()

	if !ok {
		h.subscribe(p.canvasID, rm)
	}
	if first {
		h.Broadcast(p.canvasID, &protocol.UserJoined{UserID: p.UserID, Username: p.Username}, p)
	}
	log.Printf("[Hub] %s joined canvas %s", p.UserID, p.canvasID)
	return nil
}

// Remove drops p. Its user's presence is dropped and user_left announced only
// when this was the user's last peer on the canvas. The canvas's tile
// subscription stops with its last peer.
func (h *Hub) Remove(p *Peer) {
	h.mu.Lock()
	h.closePeer(p)
	rm, ok := h.rooms[p.canvasID]
	if !ok || !rm.peers[p] {
		h.mu.Unlock()
		return
	}
	delete(rm.peers, p)
	gone := !h.hasUser(rm, p.UserID)
	if gone {
		rm.presence.Remove(p.UserID)
	}
	var sub *redisstore.Subscription
	if len(rm.peers) == 0 {
		delete(h.rooms, p.canvasID)
		sub = rm.sub
	}
	h.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	if gone {
		h.Broadcast(p.canvasID, &protocol.UserLeft{UserID: p.UserID}, nil)
	}
	log.Printf("[Hub] %s left canvas %s", p.UserID, p.canvasID)
}

func (h *Hub) hasUser(rm *room, userID string) bool {
	for other := range rm.peers {
		if other.UserID == userID {
			return true
		}
	}
	return false
}

// Broadcast sends msg to every peer of canvasID except exclude.
func (h *Hub) Broadcast(canvasID string, msg any, exclude *Peer) {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("[Hub] Failed to encode broadcast: %v", err)
		return
	}
	h.broadcastRaw(canvasID, data, exclude)
}

// broadcastRaw queues data for every peer of canvasID except exclude. Peers
// whose buffer is full are removed like any departing peer.
func (h *Hub) broadcastRaw(canvasID string, data []byte, exclude *Peer) {
	h.mu.Lock()
	rm, ok := h.rooms[canvasID]
	if !ok {
		h.mu.Unlock()
		return
	}
	var slow []*Peer
	for p := range rm.peers {
		if p != exclude && !h.enqueueRaw(p, data) {
			slow = append(slow, p)
		}
	}
	h.mu.Unlock()

	for _, p := range slow {
		log.Printf("[Hub] Dropping slow peer %s", p.UserID)
		h.Remove(p)
	}
}

// enqueue and enqueueRaw must be called with h.mu held. They report false
// when p is closed or its buffer is full.
func (h *Hub) enqueue(p *Peer, msg any) bool {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("[Hub] Failed to encode message: %v", err)
		return true
	}
	return h.enqueueRaw(p, data)
}

func (h *Hub) enqueueRaw(p *Peer, data []byte) bool {
	if p.closed {
		return false
	}
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

// Peers returns the number of peers on a canvas.
func (h *Hub) Peers(canvasID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rm, ok := h.rooms[canvasID]; ok {
		return len(rm.peers)
	}
	return 0
}

// Presence returns the presence of a canvas's peers.
func (h *Hub) Presence(canvasID string) []state.Presence {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rm, ok := h.rooms[canvasID]; ok {
		return rm.presence.All()
	}
	return nil
}

// Close disconnects every peer and stops all tile subscriptions.
func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]*room)
	for _, rm := range rooms {
		for p := range rm.peers {
			h.closePeer(p)
		}
	}
	h.mu.Unlock()

	for _, rm := range rooms {
		if rm.sub != nil {
			rm.sub.Close()
		}
	}
}

func (h *Hub) subscribe(canvasID string, rm *room) {
	if h.events == nil {
		return
	}
	sub, err := h.events.Subscribe(h.ctx, canvasID)
	if err != nil {
		log.Printf("[Hub] Tile events unavailable for canvas %s: %v", canvasID, err)
		return
	}

	h.mu.Lock()
	if h.rooms[canvasID] != rm {
		// Every peer left while subscribing.
		h.mu.Unlock()
		sub.Close()
		return
	}
	rm.sub = sub
	h.mu.Unlock()

	go func() {
		events, errs := sub.Events(), sub.Errors()
		for events != nil || errs != nil {
			select {
			case data, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				h.broadcastRaw(canvasID, data, nil)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				log.Printf("[Hub] %v", err)
			}
		}
	}()
}

func (h *Hub) readPump(p *Peer) {
	defer func() {
		h.Remove(p)
		p.conn.Close()
	}()
	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Hub] Peer %s disconnected: %v", p.UserID, err)
			}
			return
		}
		h.handle(p, data)
	}
}

// handle applies one message from a peer. Peers only send presence.
func (h *Hub) handle(p *Peer, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Printf("[Hub] Dropping message from %s: %v", p.UserID, err)
		return
	}
	up, ok := msg.(*protocol.UserPresence)
	if !ok {
		return
	}
	up.UserID = p.UserID
	if up.Username == "" {
		up.Username = p.Username
	}
	update := up.Update()

	h.mu.Lock()
	rm, ok := h.rooms[p.canvasID]
	if !ok || !rm.peers[p] {
		// Dropped while its last messages were in flight.
		h.mu.Unlock()
		return
	}
	pr := update.Presence()
	pr.UpdatedAt = time.Now()
	rm.presence.Upsert(pr)
	h.mu.Unlock()

	h.Broadcast(p.canvasID, &update, p)
}

func (h *Hub) writePump(p *Peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()
	for {
		select {
		case data, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func presenceUpdate(p state.Presence) *protocol.PresenceUpdate {
	u := &protocol.PresenceUpdate{UserID: p.UserID, Username: p.Username, Status: p.Status}
	if c, ok := p.Editing(); ok {
		x, y := c.X, c.Y
		u.TileX, u.TileY, u.IsEditing = &x, &y, true
	}
	return u
}
