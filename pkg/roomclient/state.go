package roomclient

import (
	"sort"
	"sync"
	"time"
)

// MessageList is the ordered, deduplicated view of a room's messages.
// Every mutation upserts by message id: inserting a known id is a no-op
// confirmation, so an optimistic local append followed by the server echo
// of the same frame yields exactly one visible entry.
type MessageList struct {
	mu    sync.RWMutex
	order []string
	index map[string]*Message
}

// NewMessageList returns an empty message list.
func NewMessageList() *MessageList {
	return &MessageList{index: make(map[string]*Message)}
}

// Upsert inserts the message unless its id is already present.
// Returns true when the message was new.
func (l *MessageList) Upsert(msg Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.index[msg.ID]; ok {
		// Echo of a message we already hold. Keep the original entry;
		// backfill the timestamp if the optimistic append had none.
		if existing.Ts == 0 && msg.Ts != 0 {
			existing.Ts = msg.Ts
		}
		return false
	}

	m := msg
	l.index[msg.ID] = &m
	l.order = append(l.order, msg.ID)
	return true
}

// ApplyUpdate replaces the content of an existing message in place.
// Updates for unknown ids are dropped; ordering never changes.
func (l *MessageList) ApplyUpdate(id, content string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.index[id]
	if !ok {
		return false
	}
	existing.Content = content
	return true
}

// Snapshot returns the messages in arrival order.
func (l *MessageList) Snapshot() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.index[id])
	}
	return out
}

// Len returns the number of visible messages.
func (l *MessageList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Clear drops every message. This is the only local deletion; the relay
// never instructs clients to forget history.
func (l *MessageList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = nil
	l.index = make(map[string]*Message)
}

// Reset drops all messages, then upserts the given ones in order.
// Used when loading a cached transcript.
func (l *MessageList) Reset(msgs []Message) {
	l.mu.Lock()
	l.order = nil
	l.index = make(map[string]*Message)
	l.mu.Unlock()

	for _, m := range msgs {
		l.Upsert(m)
	}
}

// ParticipantSet is the client's view of who is in the room, keyed by the
// stable participant id.
type ParticipantSet struct {
	mu      sync.RWMutex
	members map[string]Participant
}

// NewParticipantSet returns an empty participant set.
func NewParticipantSet() *ParticipantSet {
	return &ParticipantSet{members: make(map[string]Participant)}
}

// Upsert records a presence update. A known id is updated in place, an
// unknown one is added; the set never grows a duplicate for the same id.
func (s *ParticipantSet) Upsert(p Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.members[p.ID]
	if !ok {
		s.members[p.ID] = p
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
	s.members[p.ID] = existing
}

// ReplaceAll swaps the whole set for the given snapshot. Snapshots are
// authoritative: members absent from the snapshot are gone, not merged.
func (s *ParticipantSet) ReplaceAll(participants []Participant) {
	next := make(map[string]Participant, len(participants))
	for _, p := range participants {
		next[p.ID] = p
	}

	s.mu.Lock()
	s.members = next
	s.mu.Unlock()
}

// Snapshot returns the members sorted by id for stable iteration.
func (s *ParticipantSet) Snapshot() []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Participant, 0, len(s.members))
	for _, p := range s.members {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stale returns the ids of members whose last heartbeat is older than
// window. Absence of heartbeats is the only staleness signal; a dropped
// connection may never deliver an offline status.
func (s *ParticipantSet) Stale(window time.Duration, now time.Time) []string {
	cutoff := now.Add(-window).UnixMilli()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []string
	for id, p := range s.members {
		if p.Status == StatusOnline && p.LastSeen < cutoff {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	return stale
}
