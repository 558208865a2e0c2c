package room

import (
	"time"

	"github.com/parlorchat/parlor/internal/v1/types"
)

// Room helper functions - pure frame normalization, fully testable

// normalizeMessage fills the gaps clients are allowed to leave in add and
// update frames: author name defaults to the connection's display name,
// role to "user", timestamp to receipt time.
func normalizeMessage(client types.ClientInterface, f *types.Frame) types.ChatMessage {
	msg := f.Message()
	if msg.User == "" {
		msg.User = client.GetDisplayName()
	}
	if msg.Role == "" {
		msg.Role = types.RoleUser
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	return msg
}

// normalizePresence resolves the participant a presence frame refers to.
// Clients normally heartbeat for themselves; a frame without an id is bound
// to the sending connection so a client cannot be anonymous.
func normalizePresence(client types.ClientInterface, f *types.Frame) types.Participant {
	p := types.Participant{
		ID:       types.ParticipantIDType(f.ID),
		User:     types.DisplayNameType(f.User),
		Status:   f.Status,
		LastSeen: f.LastSeen,
	}
	if p.ID == "" {
		p.ID = client.GetID()
	}
	if p.User == "" {
		p.User = client.GetDisplayName()
	}
	if p.Status != types.StatusOnline && p.Status != types.StatusOffline {
		p.Status = types.StatusOnline
	}
	if p.LastSeen == 0 {
		p.LastSeen = time.Now().UnixMilli()
	}
	return p
}
