package net

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"TileBoard/internal/collab"
	"TileBoard/internal/event"
	"TileBoard/internal/protocol"
)

// Scheme prefixes share links: tileboard://host:port/canvas.
const Scheme = "tileboard://"

var ErrNotConnected = errors.New("not connected to a canvas")

// ShareLink builds the link a host hands out for a canvas.
func ShareLink(addr, canvasID string) string {
	return Scheme + addr + "/" + url.PathEscape(canvasID)
}

// ParseShareLink splits a share link into the host address and canvas.
func ParseShareLink(link string) (addr, canvasID string, err error) {
	rest, ok := strings.CutPrefix(link, Scheme)
	if !ok {
		return "", "", fmt.Errorf("not a %s link: %q", Scheme, link)
	}
	addr, canvas, _ := strings.Cut(strings.TrimSuffix(rest, "/"), "/")
	if addr == "" {
		return "", "", fmt.Errorf("link %q has no host", link)
	}
	if canvas == "" {
		canvas = "default"
	}
	canvasID, err = url.PathUnescape(canvas)
	if err != nil {
		return "", "", fmt.Errorf("link %q: %w", link, err)
	}
	return addr, canvasID, nil
}

// Link is a client's realtime channel to the host. It holds one websocket for
// the open canvas and implements collab.Sender.
type Link struct {
	base   string
	self   collab.Identity
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	wmu sync.Mutex

	disconnected event.Feed[error]
}

// NewLink creates a link to the host at baseURL (http://host:port).
func NewLink(baseURL string, self collab.Identity) *Link {
	return &Link{
		base:   strings.TrimSuffix(baseURL, "/"),
		self:   self,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (l *Link) wsURL(canvasID string) (string, error) {
	u, err := url.Parse(l.base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/" + canvasID
	q := url.Values{}
	q.Set("user_id", l.self.UserID)
	q.Set("username", l.self.Username)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect switches the link to canvasID. The previous connection is closed.
// Every inbound message is passed to handle on the link's read goroutine, in
// receipt order.
func (l *Link) Connect(ctx context.Context, canvasID string, handle func([]byte)) error {
	target, err := l.wsURL(canvasID)
	if err != nil {
		return fmt.Errorf("bad host url: %w", err)
	}
	conn, _, err := l.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to canvas %s: %w", canvasID, err)
	}

	l.mu.Lock()
	prev := l.conn
	l.conn = conn
	l.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	log.Printf("[Link] Connected to canvas %s as %s", canvasID, l.self.UserID)
	go l.readLoop(conn, handle)
	return nil
}

func (l *Link) readLoop(conn *websocket.Conn, handle func([]byte)) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.mu.Lock()
			current := l.conn == conn
			if current {
				l.conn = nil
			}
			l.mu.Unlock()
			conn.Close()
			if current {
				log.Printf("[Link] Disconnected from host: %v", err)
				l.disconnected.Send(err)
			}
			return
		}
		handle(data)
	}
}

// Send encodes and writes one outbound message.
func (l *Link) Send(ctx context.Context, msg any) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	l.wmu.Lock()
	defer l.wmu.Unlock()
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	return nil
}

// OnDisconnect fires when the host drops the current connection.
func (l *Link) OnDisconnect(fn func(error)) event.Subscription {
	return l.disconnected.Subscribe(fn)
}

// Close closes the current connection, if any.
func (l *Link) Close() error {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()
	if conn == nil {
		return nil
	}
	l.wmu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	l.wmu.Unlock()
	return conn.Close()
}
