package roomclient

import (
	"time"

	"go.uber.org/zap"
)

// Option configures a Client before it dials.
type Option func(*Client)

// WithParticipantID sets the stable opaque id this client identifies as.
// Passing the same id across sessions keeps the identity; without it a
// fresh uuid is generated per connection.
func WithParticipantID(id string) Option {
	return func(c *Client) { c.participantID = id }
}

// WithDisplayName sets the human-readable name sent with messages and
// presence. It can be changed later with SetDisplayName.
func WithDisplayName(name string) Option {
	return func(c *Client) { c.displayName = name }
}

// WithHeartbeatInterval overrides how often the client advertises itself
// as online. Must be shorter than the server's staleness window.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.heartbeatInterval = d
		}
	}
}

// WithLogger attaches a zap logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCachePath enables a local JSON transcript cache at path. The cache
// is loaded on Dial and written on Close; a corrupt cache file is
// discarded, never fatal.
func WithCachePath(path string) Option {
	return func(c *Client) { c.cachePath = path }
}

// WithHandshakeTimeout bounds the WebSocket dial.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.handshakeTimeout = d
		}
	}
}

// OnMessage registers a callback for new chat messages, both remote ones
// and the local optimistic appends.
func OnMessage(fn func(Message)) Option {
	return func(c *Client) { c.dispatcher.onMessage = fn }
}

// OnUpdate registers a callback for in-place content edits.
func OnUpdate(fn func(Message)) Option {
	return func(c *Client) { c.dispatcher.onUpdate = fn }
}

// OnPresence registers a callback for single-participant presence changes.
func OnPresence(fn func(Participant)) Option {
	return func(c *Client) { c.dispatcher.onPresence = fn }
}

// OnParticipants registers a callback for authoritative roster snapshots.
func OnParticipants(fn func([]Participant)) Option {
	return func(c *Client) { c.dispatcher.onParticipants = fn }
}

// OnError registers a callback for swallowed failures: undecodable
// frames, dropped sends, cache problems. The connection stays up.
func OnError(fn func(error)) Option {
	return func(c *Client) { c.dispatcher.onError = fn }
}
