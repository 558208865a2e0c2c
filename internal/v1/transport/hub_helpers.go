package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/room"
	"github.com/parlorchat/parlor/internal/v1/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// validateOrigin checks if the request origin is in the allowed list.
func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.GetLogger().Debug("No origin header - allowing non-browser client")
		return nil // Allow non-browser clients (e.g., SDK and tests)
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		logging.Warn(context.Background(), "Invalid origin URL", zap.String("origin", origin), zap.Error(err))
		return fmt.Errorf("invalid origin URL: %w", err)
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		// Check if the scheme and host match
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			logging.GetLogger().Debug("Origin validated", zap.String("origin", origin))
			return nil
		}
	}

	logging.Warn(context.Background(), "Origin not in allowed list", zap.String("origin", origin), zap.Strings("allowedOrigins", allowedOrigins))
	return fmt.Errorf("origin not allowed: %s", origin)
}

// clientSetupParams holds parameters for setting up a client connection
type clientSetupParams struct {
	RoomID        types.RoomIDType
	ParticipantID string // From "pid" query param; generated when absent
	Username      string // From "username" query param
	Conn          wsConnection
}

// setupClientConnection creates or retrieves a room and initializes a client.
func (h *Hub) setupClientConnection(params *clientSetupParams) (*Client, *room.Room) {
	r := h.getOrCreateRoom(params.RoomID)

	// Identity is the stable opaque id. A returning client passes its old
	// pid to keep its identity across reconnects; otherwise it gets a
	// fresh one. The display name is just an attribute.
	participantID := params.ParticipantID
	if participantID == "" {
		participantID = uuid.New().String()
	}

	displayName := params.Username
	if displayName == "" {
		displayName = "anonymous"
	}

	client := &Client{
		conn:        params.Conn,
		send:        make(chan []byte, 256),
		room:        r,
		ID:          types.ParticipantIDType(participantID),
		DisplayName: types.DisplayNameType(displayName),
	}

	logging.Info(context.Background(), "Setting up client connection",
		zap.String("displayName", displayName),
		zap.String("participantId", participantID),
		zap.String("roomId", string(params.RoomID)))

	return client, r
}

// upgradeWebSocket handles the WebSocket upgrade process.
func (h *Hub) upgradeWebSocket(c *gin.Context) (wsConnection, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, h.allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{
			New: func() any {
				return make([]byte, 4096)
			},
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to upgrade connection", zap.Error(err))
		return nil, err
	}

	return conn, nil
}
