package roomclient

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role marks who authored a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// Status is a participant's advertised availability.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Message is a chat entry as held in client state. The Id is generated by
// the sending client and is unique within a room; the server echoes it back
// unchanged, which is how an echo is recognized as a confirmation rather
// than a new entry.
type Message struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	User    string `json:"user"`
	Role    Role   `json:"role"`
	Ts      int64  `json:"ts,omitempty"`
}

// Participant is a room member keyed by its stable opaque id. The display
// name is a mutable attribute, never an identity key.
type Participant struct {
	ID       string `json:"id"`
	User     string `json:"user"`
	Status   Status `json:"status"`
	LastSeen int64  `json:"lastSeen"`
}

type frameType string

const (
	frameAdd          frameType = "add"
	frameUpdate       frameType = "update"
	framePresence     frameType = "presence"
	frameParticipants frameType = "participants"
)

var errUnknownFrame = errors.New("unknown frame type")

// frame is the flat JSON envelope every message travels in. Which fields
// are meaningful depends on the type discriminator.
type frame struct {
	Type         frameType     `json:"type"`
	ID           string        `json:"id,omitempty"`
	Content      string        `json:"content,omitempty"`
	User         string        `json:"user,omitempty"`
	Role         Role          `json:"role,omitempty"`
	Ts           int64         `json:"ts,omitempty"`
	Status       Status        `json:"status,omitempty"`
	LastSeen     int64         `json:"lastSeen,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
}

func decodeFrame(data []byte) (*frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Type {
	case frameAdd, frameUpdate, framePresence, frameParticipants:
		return &f, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownFrame, f.Type)
	}
}

func (f *frame) encode() ([]byte, error) {
	return json.Marshal(f)
}

func (f *frame) message() Message {
	return Message{ID: f.ID, Content: f.Content, User: f.User, Role: f.Role, Ts: f.Ts}
}

func (f *frame) participant() Participant {
	return Participant{ID: f.ID, User: f.User, Status: f.Status, LastSeen: f.LastSeen}
}
