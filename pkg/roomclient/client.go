// Package roomclient is the Go SDK for a chat relay room. It maintains an
// ordered, deduplicated transcript and a presence roster over a single
// WebSocket, sends optimistically with client-generated message ids, and
// heartbeats its own presence. It deliberately does not reconnect; a
// dropped connection ends the session and the caller decides what next.
package roomclient

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultHeartbeatInterval = 15 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second
	writeWait                = 10 * time.Second
)

// Client is a connection to one room on a chat relay.
type Client struct {
	room              string
	participantID     string
	displayName       string
	heartbeatInterval time.Duration
	handshakeTimeout  time.Duration
	logger            *zap.Logger
	cachePath         string
	dispatcher        dispatcher

	conn         *websocket.Conn
	writeCh      chan *frame
	messages     *MessageList
	participants *ParticipantSet

	mu        sync.RWMutex // protects displayName and closed
	closed    bool
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{} // closed when the write loop has drained
}

// Dial connects to the room at serverURL. serverURL is the relay base URL
// (http, https, ws or wss scheme); the room path and identity query
// parameters are appended here.
func Dial(ctx context.Context, serverURL, room string, opts ...Option) (*Client, error) {
	if room == "" {
		return nil, fmt.Errorf("room id cannot be empty")
	}

	c := &Client{
		room:              room,
		heartbeatInterval: defaultHeartbeatInterval,
		handshakeTimeout:  defaultHandshakeTimeout,
		logger:            zap.NewNop(),
		writeCh:           make(chan *frame, 64),
		messages:          NewMessageList(),
		participants:      NewParticipantSet(),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.participantID == "" {
		c.participantID = uuid.New().String()
	}
	if c.displayName == "" {
		c.displayName = "anonymous"
	}

	wsURL, err := buildRoomURL(serverURL, room, c.participantID, c.displayName)
	if err != nil {
		return nil, err
	}

	if c.cachePath != "" {
		cached, err := loadCache(c.cachePath, room)
		if err != nil {
			// Corrupt or unreadable cache is discarded, never fatal.
			c.logger.Warn("discarding unreadable transcript cache", zap.String("path", c.cachePath), zap.Error(err))
		} else if len(cached) > 0 {
			c.messages.Reset(cached)
		}
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", wsURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	c.conn = conn

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go c.writeLoop()
	go c.readLoop()
	go c.heartbeatLoop(runCtx)

	// Announce ourselves right away rather than waiting a full interval.
	c.enqueue(c.presenceFrame(StatusOnline))

	return c, nil
}

// buildRoomURL turns a relay base URL into the room's WebSocket endpoint.
func buildRoomURL(serverURL, room, pid, displayName string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws/rooms/" + room
	q := u.Query()
	q.Set("pid", pid)
	q.Set("username", displayName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Room returns the room id this client is joined to.
func (c *Client) Room() string { return c.room }

// ParticipantID returns the stable id this client identifies as.
func (c *Client) ParticipantID() string { return c.participantID }

// DisplayName returns the current display name.
func (c *Client) DisplayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.displayName
}

// SetDisplayName renames this participant. The id stays the same; peers
// see the rename as a presence update for the existing roster entry.
func (c *Client) SetDisplayName(name string) {
	if name == "" {
		return
	}
	c.mu.Lock()
	c.displayName = name
	c.mu.Unlock()

	c.enqueue(c.presenceFrame(StatusOnline))
}

// Send appends the message locally and transmits it, returning the
// generated message id. The local append is optimistic: the entry is
// visible immediately, and the server echo of the same id later confirms
// it without creating a duplicate. Transmit failures are swallowed; the
// optimistic entry simply stays unconfirmed.
func (c *Client) Send(content string) string {
	msg := Message{
		ID:      uuid.New().String(),
		Content: content,
		User:    c.DisplayName(),
		Role:    RoleUser,
		Ts:      time.Now().UnixMilli(),
	}

	if c.messages.Upsert(msg) {
		c.dispatcher.fireMessage(msg)
	}

	c.enqueue(&frame{
		Type:    frameAdd,
		ID:      msg.ID,
		Content: msg.Content,
		User:    msg.User,
		Role:    msg.Role,
		Ts:      msg.Ts,
	})
	return msg.ID
}

// Edit replaces the content of an already-sent message in place.
// Returns false when the id is not in the local transcript.
func (c *Client) Edit(id, content string) bool {
	if !c.messages.ApplyUpdate(id, content) {
		return false
	}

	c.enqueue(&frame{
		Type:    frameUpdate,
		ID:      id,
		Content: content,
		User:    c.DisplayName(),
		Role:    RoleUser,
		Ts:      time.Now().UnixMilli(),
	})
	return true
}

// Messages returns the transcript in arrival order.
func (c *Client) Messages() []Message { return c.messages.Snapshot() }

// Participants returns the roster sorted by id.
func (c *Client) Participants() []Participant { return c.participants.Snapshot() }

// Clear empties the local transcript. Nothing is sent; peers keep their
// copies and the next cache save reflects the cleared state.
func (c *Client) Clear() { c.messages.Clear() }

// StaleParticipants returns the ids of members still marked online whose
// last heartbeat is older than window. Useful for UIs that want to gray
// out members the server has not yet swept offline.
func (c *Client) StaleParticipants(window time.Duration) []string {
	return c.participants.Stale(window, time.Now())
}

// Close announces offline, flushes pending writes, and closes the
// connection. The offline announcement is best effort; peers that miss
// it will age this participant out by heartbeat absence instead.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.enqueue(c.presenceFrame(StatusOffline))

		if c.cachePath != "" {
			if err := saveCache(c.cachePath, c.room, c.messages.Snapshot()); err != nil {
				c.logger.Warn("failed to save transcript cache", zap.String("path", c.cachePath), zap.Error(err))
				c.dispatcher.fireError(err)
			}
		}

		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cancel()
		close(c.writeCh)
	})

	// Wait for the write loop to drain the offline frame and close the
	// connection, but never hang on a dead peer.
	select {
	case <-c.done:
	case <-time.After(writeWait):
	}
	return nil
}

// enqueue hands a frame to the write loop. Sends never block and never
// fail loudly: when the queue is full or the client is closed the frame
// is dropped and reported through OnError only.
func (c *Client) enqueue(f *frame) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	defer func() {
		// Close may shut the channel between the flag check and the send.
		if r := recover(); r != nil {
			c.logger.Debug("dropped frame on closed client", zap.String("type", string(f.Type)))
		}
	}()

	select {
	case c.writeCh <- f:
	default:
		c.logger.Warn("write queue full, dropping frame", zap.String("type", string(f.Type)))
		c.dispatcher.fireError(fmt.Errorf("write queue full, dropped %s frame", f.Type))
	}
}

func (c *Client) presenceFrame(status Status) *frame {
	return &frame{
		Type:     framePresence,
		ID:       c.participantID,
		User:     c.DisplayName(),
		Status:   status,
		LastSeen: time.Now().UnixMilli(),
	}
}

// readLoop applies every server frame to local state, then notifies the
// registered callbacks. Undecodable frames are logged and skipped.
func (c *Client) readLoop() {
	defer c.conn.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		f, err := decodeFrame(data)
		if err != nil {
			c.logger.Warn("skipping undecodable frame", zap.Error(err))
			c.dispatcher.fireError(err)
			continue
		}

		c.apply(f)
	}
}

// apply reconciles one frame into local state.
func (c *Client) apply(f *frame) {
	switch f.Type {
	case frameAdd:
		// Upsert by id: our own echo confirms the optimistic entry and
		// fires no callback; a remote message inserts and notifies.
		if c.messages.Upsert(f.message()) {
			c.dispatcher.fireMessage(f.message())
		}
	case frameUpdate:
		if c.messages.ApplyUpdate(f.ID, f.Content) {
			c.dispatcher.fireUpdate(f.message())
		} else {
			c.logger.Debug("dropping update for unknown message", zap.String("id", f.ID))
		}
	case framePresence:
		c.participants.Upsert(f.participant())
		c.dispatcher.firePresence(f.participant())
	case frameParticipants:
		// Snapshots replace the roster wholesale.
		c.participants.ReplaceAll(f.Participants)
		c.dispatcher.fireParticipants(f.Participants)
	}
}

func (c *Client) writeLoop() {
	defer close(c.done)
	defer c.conn.Close()

	for f := range c.writeCh {
		data, err := f.encode()
		if err != nil {
			c.dispatcher.fireError(err)
			continue
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.logger.Warn("write failed", zap.Error(err))
			c.dispatcher.fireError(err)
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.enqueue(c.presenceFrame(StatusOnline))
		}
	}
}
