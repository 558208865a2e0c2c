package transport

import (
	"context"
	"sync"
	"time"

	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/metrics"
	"github.com/parlorchat/parlor/internal/v1/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsConnection defines the interface for WebSocket connection operations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error) // Read the next message from the connection
	WriteMessage(messageType int, data []byte) error     // Write a message to the connection
	Close() error                                        // Close the connection
	SetWriteDeadline(t time.Time) error
}

// Client represents a single participant's connection to a chat room.
// It implements types.ClientInterface.
type Client struct {
	conn        wsConnection            // WebSocket connection for real-time communication
	room        types.Roomer            // Room interface for business logic operations
	ID          types.ParticipantIDType // Stable opaque identifier for this participant
	DisplayName types.DisplayNameType   // Human-readable name; mutable, never an identity key

	mu        sync.RWMutex // Protects concurrent access to Client fields
	closeOnce sync.Once    // Ensures send channel is only closed once
	closed    bool         // Track if client has been disconnected

	send chan []byte // Buffered channel for outbound frames
}

// --- types.ClientInterface setters and getters ---

func (c *Client) GetID() types.ParticipantIDType {
	return c.ID
}

// Thread-safe reader
func (c *Client) GetDisplayName() types.DisplayNameType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.DisplayName
}

// Thread-safe writer
func (c *Client) SetDisplayName(name types.DisplayNameType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DisplayName = name
}

func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		// Closing the channel makes the writePump drain its buffer, send a
		// CloseMessage, and close the connection.
		close(c.send)
	})
}

// readPump continuously processes incoming WebSocket frames from the client.
func (c *Client) readPump() {
	defer func() {
		c.room.HandleClientDisconnect(c)
		c.conn.Close()
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		// Malformed frames are logged and swallowed; they never close the
		// connection or surface to other clients.
		f, err := types.DecodeFrame(data)
		if err != nil {
			metrics.FramesProcessed.WithLabelValues("unknown", "malformed").Inc()
			logging.Warn(context.Background(), "Failed to decode frame", zap.String("participantId", string(c.ID)), zap.Error(err))
			continue
		}

		ctx := context.WithValue(context.Background(), logging.ParticipantIDKey, string(c.ID))
		c.room.Router(ctx, c, f)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	writeWait := 10 * time.Second

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Error(context.Background(), "error writing message", zap.Error(err))
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// SendFrame satisfies types.ClientInterface
func (c *Client) SendFrame(f *types.Frame) {
	data, err := f.Encode()
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal frame", zap.Error(err))
		return
	}
	c.SendRaw(data)
}

// SendRaw satisfies types.ClientInterface and allows sending pre-serialized data
func (c *Client) SendRaw(data []byte) {
	// Check if client is closed before attempting to send
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		logging.GetLogger().Debug("Skipping send to closed client", zap.String("participantId", string(c.ID)))
		return
	}
	c.mu.RUnlock()

	// Add panic recovery as a safety net: Disconnect may close the channel
	// between the flag check and the send.
	defer func() {
		if r := recover(); r != nil {
			logging.Warn(context.Background(), "Recovered from panic in SendRaw", zap.String("participantId", string(c.ID)), zap.Any("panic", r))
		}
	}()

	select {
	case c.send <- data:
	default:
		logging.Warn(context.Background(), "Client send channel full or closed", zap.String("participantId", string(c.ID)))
	}
}
