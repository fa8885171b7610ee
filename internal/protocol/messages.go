// Package protocol defines the realtime message contracts exchanged between
// clients and the host hub.
package protocol

import (
	"encoding/json"
	"fmt"

	"TileBoard/internal/state"
)

// Message types.
const (
	TypeTileUpdate     = "tile_update"
	TypeTileCreated    = "tile_created"
	TypeTileDeleted    = "tile_deleted"
	TypePresenceUpdate = "user_presence_update"
	TypeUserJoined     = "user_joined"
	TypeUserLeft       = "user_left"
	TypeUserPresence   = "user_presence"
)

// PresenceType qualifies an outbound user_presence message.
type PresenceType string

const (
	PresenceStatusChange PresenceType = "status_change"
	PresenceEditingTile  PresenceType = "editing_tile"
	PresenceHeartbeat    PresenceType = "heartbeat"
)

// Envelope carries only the discriminator of a message.
type Envelope struct {
	Type string `json:"type"`
}

// TileMessage is a tile_update or tile_created message.
type TileMessage struct {
	Type string     `json:"type"`
	Tile state.Tile `json:"tile"`
}

// TileDeleted announces the removal of a tile.
type TileDeleted struct {
	Type   string `json:"type"`
	TileID string `json:"tile_id"`
}

// PresenceUpdate is the host's rebroadcast of a user's presence.
type PresenceUpdate struct {
	Type      string       `json:"type"`
	UserID    string       `json:"user_id"`
	Username  string       `json:"username,omitempty"`
	TileX     *int         `json:"tile_x,omitempty"`
	TileY     *int         `json:"tile_y,omitempty"`
	IsEditing bool         `json:"is_editing"`
	Status    state.Status `json:"status,omitempty"`
}

// Presence converts the update into a presence entry.
func (m PresenceUpdate) Presence() state.Presence {
	p := state.Presence{UserID: m.UserID, Username: m.Username, Status: m.Status}
	if p.Status == "" {
		p.Status = state.StatusOnline
	}
	if m.IsEditing && m.TileX != nil && m.TileY != nil {
		p.EditingTileX, p.EditingTileY = m.TileX, m.TileY
	}
	return p
}

// UserJoined announces a new participant.
type UserJoined struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// UserLeft announces a departed participant.
type UserLeft struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// UserPresence is the only message a client sends on the realtime channel.
type UserPresence struct {
	Type         string       `json:"type"`
	PresenceType PresenceType `json:"presence_type"`
	UserID       string       `json:"user_id"`
	Username     string       `json:"username,omitempty"`
	Status       state.Status `json:"status,omitempty"`
	TileX        *int         `json:"tile_x,omitempty"`
	TileY        *int         `json:"tile_y,omitempty"`
	IsEditing    bool         `json:"is_editing"`
}

// Update converts an outbound presence into the update the hub rebroadcasts.
func (m UserPresence) Update() PresenceUpdate {
	return PresenceUpdate{
		Type:      TypePresenceUpdate,
		UserID:    m.UserID,
		Username:  m.Username,
		TileX:     m.TileX,
		TileY:     m.TileY,
		IsEditing: m.IsEditing,
		Status:    m.Status,
	}
}

// Decode validates raw against the message schema and decodes it into its
// concrete type. Unknown but well-formed types yield (nil, nil) so callers can
// ignore them.
func Decode(raw []byte) (any, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}

	var msg any
	switch env.Type {
	case TypeTileUpdate, TypeTileCreated:
		msg = &TileMessage{}
	case TypeTileDeleted:
		msg = &TileDeleted{}
	case TypePresenceUpdate:
		msg = &PresenceUpdate{}
	case TypeUserJoined:
		msg = &UserJoined{}
	case TypeUserLeft:
		msg = &UserLeft{}
	case TypeUserPresence:
		msg = &UserPresence{}
	default:
		return nil, nil
	}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", env.Type, err)
	}
	return msg, nil
}

// Encode marshals a message, filling in its type discriminator.
func Encode(msg any) ([]byte, error) {
	switch m := msg.(type) {
	case *TileMessage:
		if m.Type == "" {
			m.Type = TypeTileUpdate
		}
	case *TileDeleted:
		m.Type = TypeTileDeleted
	case *PresenceUpdate:
		m.Type = TypePresenceUpdate
	case *UserJoined:
		m.Type = TypeUserJoined
	case *UserLeft:
		m.Type = TypeUserLeft
	case *UserPresence:
		m.Type = TypeUserPresence
	default:
		return nil, fmt.Errorf("unsupported message %T", msg)
	}
	return json.Marshal(msg)
}
