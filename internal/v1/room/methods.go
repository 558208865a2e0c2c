package room

import (
	"time"

	"github.com/parlorchat/parlor/internal/v1/types"
)

// --- Message History ---
//
// History is an append-ordered list with an id index. The index is what
// enforces the room's one hard invariant: no two entries ever share a
// message id, no matter how often the same frame is delivered.

// upsertMessageLocked inserts a message or, when the id is already present,
// treats the frame as a confirmation and leaves the existing entry in place.
// Returns true when a new entry was appended.
func (r *Room) upsertMessageLocked(msg types.ChatMessage) bool {
	if elem, exists := r.historyIndex[msg.ID]; exists {
		// Duplicate delivery. Keep the original entry; refresh the
		// timestamp only if the original never had one.
		existing := elem.Value.(types.ChatMessage)
		if existing.Timestamp == 0 && msg.Timestamp != 0 {
			existing.Timestamp = msg.Timestamp
			elem.Value = existing
		}
		return false
	}

	elem := r.history.PushBack(msg)
	r.historyIndex[msg.ID] = elem
	r.currentHistoryBytes += len(msg.Content)

	r.evictHistoryLocked()
	return true
}

// applyUpdateLocked replaces the content of the message with the matching
// id. Updates for unknown ids are ignored. Returns true when applied.
func (r *Room) applyUpdateLocked(id types.MessageIDType, content string) bool {
	elem, exists := r.historyIndex[id]
	if !exists {
		return false
	}

	msg := elem.Value.(types.ChatMessage)
	r.currentHistoryBytes += len(content) - len(msg.Content)
	msg.Content = content
	elem.Value = msg
	return true
}

// evictHistoryLocked drops entries from the front until both the length and
// byte caps hold.
func (r *Room) evictHistoryLocked() {
	for r.history.Len() > r.maxHistoryLength || (r.maxHistoryBytes > 0 && r.currentHistoryBytes > r.maxHistoryBytes) {
		front := r.history.Front()
		if front == nil {
			return
		}
		msg := front.Value.(types.ChatMessage)
		r.history.Remove(front)
		delete(r.historyIndex, msg.ID)
		r.currentHistoryBytes -= len(msg.Content)
	}
}

func (r *Room) recentMessagesLocked(limit int) []types.ChatMessage {
	if r.history == nil {
		return []types.ChatMessage{}
	}

	messages := make([]types.ChatMessage, 0, r.history.Len())
	for e := r.history.Front(); e != nil; e = e.Next() {
		if msg, ok := e.Value.(types.ChatMessage); ok {
			messages = append(messages, msg)
		}
	}

	if limit > 0 && len(messages) > limit {
		return messages[len(messages)-limit:]
	}
	return messages
}

// --- Participants ---
//
// Keyed by stable id. Display name is an attribute that updates in place;
// it is never an identity key (renames must not duplicate entries).

func (r *Room) upsertParticipantLocked(p types.Participant) {
	existing, ok := r.participants[p.ID]
	if !ok {
		cp := p
		r.participants[p.ID] = &cp
		return
	}

	if p.User != "" {
		existing.User = p.User
	}
	if p.Status != "" {
		existing.Status = p.Status
	}
	if p.LastSeen > existing.LastSeen {
		existing.LastSeen = p.LastSeen
	}
}

// sweepStaleLocked marks participants offline once their last heartbeat is
// older than the staleness window and removes offline entries past the
// retention window. Returns true when anything changed.
func (r *Room) sweepStaleLocked(now time.Time) bool {
	nowMs := now.UnixMilli()
	staleBefore := nowMs - r.stalenessWindow.Milliseconds()
	dropBefore := nowMs - retentionMultiplier*r.stalenessWindow.Milliseconds()

	changed := false
	for id, p := range r.participants {
		if p.Status == types.StatusOnline && p.LastSeen < staleBefore {
			p.Status = types.StatusOffline
			changed = true
		}
		if p.Status == types.StatusOffline && p.LastSeen < dropBefore && !r.hasConnectionLocked(id) {
			delete(r.participants, id)
			changed = true
		}
	}
	return changed
}
