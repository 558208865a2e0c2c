package types

import (
	"context"
	"errors"
	"sync"

	"github.com/parlorchat/parlor/internal/v1/bus"
)

// --- Core Domain Types ---

// RoomIDType is the string partitioning key for the realtime channel.
type RoomIDType string

// ParticipantIDType is the stable opaque identifier for a participant.
// Display names are mutable attributes and are never used as identity keys.
type ParticipantIDType string

// DisplayNameType represents the human-readable name for a participant.
type DisplayNameType string

// MessageIDType is the client-generated, globally unique (within a room)
// identifier of a chat message.
type MessageIDType string

// RoleTag marks who authored a message.
type RoleTag string

const (
	RoleUser   RoleTag = "user"
	RoleSystem RoleTag = "system"
)

// PresenceStatus is a participant's advertised availability.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// MaxContentBytes caps chat message content.
const MaxContentBytes = 1000

// ChatMessage is a chat entry as held in room history and client state.
type ChatMessage struct {
	ID        MessageIDType   `json:"id"`
	Content   string          `json:"content"`
	User      DisplayNameType `json:"user"`
	Role      RoleTag         `json:"role"`
	Timestamp int64           `json:"ts,omitempty"`
}

// Validate ensures a chat message is safe to store.
func (m ChatMessage) Validate() error {
	if m.ID == "" {
		return errors.New("message id cannot be empty")
	}
	if len(m.Content) == 0 {
		return errors.New("message content cannot be empty")
	}
	if len(m.Content) > MaxContentBytes {
		return errors.New("message content cannot exceed 1000 bytes")
	}
	return nil
}

// Participant tracks a room member's presence.
type Participant struct {
	ID       ParticipantIDType `json:"id"`
	User     DisplayNameType   `json:"user"`
	Status   PresenceStatus    `json:"status"`
	LastSeen int64             `json:"lastSeen"`
}

// --- Shared Interfaces ---

// BusService defines the interface for distributed pub/sub messaging.
type BusService interface {
	Publish(ctx context.Context, roomID string, event string, payload any, senderID string) error
	Subscribe(ctx context.Context, roomID string, wg *sync.WaitGroup, handler func(bus.PubSubPayload))
	Ping(ctx context.Context) error
	Close() error
}

// HistoryStore defines the interface for durable room history.
// Implementations must upsert by (room, message id) so replayed frames
// never produce duplicate rows.
type HistoryStore interface {
	Save(ctx context.Context, roomID RoomIDType, msg ChatMessage) error
	UpdateContent(ctx context.Context, roomID RoomIDType, id MessageIDType, content string) error
	Recent(ctx context.Context, roomID RoomIDType, limit int) ([]ChatMessage, error)
	Close() error
}

// ClientInterface defines the behavior the room package requires from a
// connected client, without depending on the transport package.
type ClientInterface interface {
	GetID() ParticipantIDType
	GetDisplayName() DisplayNameType
	SetDisplayName(DisplayNameType)
	SendFrame(f *Frame)
	SendRaw(data []byte)
	Disconnect()
}

// Roomer defines the room operations the transport layer needs.
type Roomer interface {
	GetID() RoomIDType
	Router(ctx context.Context, client ClientInterface, f *Frame)
	HandleClientConnect(ctx context.Context, client ClientInterface)
	HandleClientDisconnect(client ClientInterface)
}
