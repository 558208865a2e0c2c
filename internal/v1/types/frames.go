package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameType discriminates the JSON frames exchanged over the channel.
type FrameType string

const (
	FrameAdd          FrameType = "add"
	FrameUpdate       FrameType = "update"
	FramePresence     FrameType = "presence"
	FrameParticipants FrameType = "participants"
)

// ErrUnknownFrame is returned when a frame carries no recognized type.
// Callers log it and drop the frame; malformed input is never fatal.
var ErrUnknownFrame = errors.New("unknown frame type")

// Frame is the flat JSON envelope for every message on the wire.
// Which fields are meaningful depends on Type:
//
//	add/update:   Id, Content, User, Role, Ts
//	presence:     Id, User, Status, LastSeen
//	participants: Participants
type Frame struct {
	Type         FrameType      `json:"type"`
	ID           string         `json:"id,omitempty"`
	Content      string         `json:"content,omitempty"`
	User         string         `json:"user,omitempty"`
	Role         RoleTag        `json:"role,omitempty"`
	Timestamp    int64          `json:"ts,omitempty"`
	Status       PresenceStatus `json:"status,omitempty"`
	LastSeen     int64          `json:"lastSeen,omitempty"`
	Participants []Participant  `json:"participants,omitempty"`
}

// DecodeFrame parses an inbound frame. It rejects invalid JSON and frames
// without a recognized type so callers can swallow them uniformly.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Type {
	case FrameAdd, FrameUpdate, FramePresence, FrameParticipants:
		return &f, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
}

// Encode serializes the frame for the wire.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Message extracts the chat message carried by an add or update frame.
func (f *Frame) Message() ChatMessage {
	return ChatMessage{
		ID:        MessageIDType(f.ID),
		Content:   f.Content,
		User:      DisplayNameType(f.User),
		Role:      f.Role,
		Timestamp: f.Timestamp,
	}
}

// NewAddFrame builds the wire frame for a chat message.
func NewAddFrame(msg ChatMessage) *Frame {
	return &Frame{
		Type:      FrameAdd,
		ID:        string(msg.ID),
		Content:   msg.Content,
		User:      string(msg.User),
		Role:      msg.Role,
		Timestamp: msg.Timestamp,
	}
}

// NewUpdateFrame builds the wire frame replacing a message's content.
func NewUpdateFrame(msg ChatMessage) *Frame {
	f := NewAddFrame(msg)
	f.Type = FrameUpdate
	return f
}

// NewPresenceFrame builds a presence heartbeat / status change frame.
func NewPresenceFrame(p Participant) *Frame {
	return &Frame{
		Type:     FramePresence,
		ID:       string(p.ID),
		User:     string(p.User),
		Status:   p.Status,
		LastSeen: p.LastSeen,
	}
}

// NewParticipantsFrame builds a full participant-list snapshot frame.
// Receivers replace, not merge, their local list with it.
func NewParticipantsFrame(participants []Participant) *Frame {
	return &Frame{
		Type:         FrameParticipants,
		Participants: participants,
	}
}
