package transport

import (
	"context"
	"sync"
	"time"

	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/metrics"
	"github.com/parlorchat/parlor/internal/v1/ratelimit"
	"github.com/parlorchat/parlor/internal/v1/room"
	"github.com/parlorchat/parlor/internal/v1/types"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

// Hub serves as the central coordinator for all chat rooms in the system.
type Hub struct {
	rooms               map[types.RoomIDType]*room.Room  // Registry of active rooms by room ID
	mu                  sync.Mutex                       // Protects concurrent access to rooms map
	pendingRoomCleanups map[types.RoomIDType]*time.Timer // Timers for delayed room cleanup
	bus                 types.BusService                 // Optional Redis pub/sub for cross-instance fan-out
	store               types.HistoryStore               // Optional durable history
	cleanupGracePeriod  time.Duration                    // Grace period before deleting an empty room
	allowedOrigins      []string                         // Browser origins allowed to connect
	roomOpts            room.Options                     // Per-room limits and presence timing
	rateLimiter         *ratelimit.RateLimiter
}

// NewHub creates a new Hub and configures it with its dependencies.
func NewHub(bus types.BusService, store types.HistoryStore, allowedOrigins []string, roomOpts room.Options, rateLimiter *ratelimit.RateLimiter) *Hub {
	return &Hub{
		rooms:               make(map[types.RoomIDType]*room.Room),
		pendingRoomCleanups: make(map[types.RoomIDType]*time.Timer),
		bus:                 bus,
		store:               store,
		cleanupGracePeriod:  5 * time.Second,
		allowedOrigins:      allowedOrigins,
		roomOpts:            roomOpts,
		rateLimiter:         rateLimiter,
	}
}

// ServeWs validates the request and upgrades to a WebSocket connection.
// The room channel is unauthenticated; knowing the room id is the only
// requirement the wire contract defines.
func (h *Hub) ServeWs(c *gin.Context) {
	// Rate limiting first, before any resources are committed.
	if h.rateLimiter != nil && !h.rateLimiter.CheckWebSocket(c) {
		return // Response already written by CheckWebSocket
	}

	if err := validateOrigin(c.Request, h.allowedOrigins); err != nil {
		c.JSON(403, gin.H{"error": "origin not allowed"})
		return
	}

	conn, err := h.upgradeWebSocket(c)
	if err != nil {
		return
	}

	h.HandleConnection(c, conn)
}

// HandleConnection takes an established WebSocket connection and sets up the client/room.
func (h *Hub) HandleConnection(c *gin.Context, conn wsConnection) {
	client, r := h.setupClientConnection(&clientSetupParams{
		RoomID:        types.RoomIDType(c.Param("roomId")),
		ParticipantID: c.Query("pid"),
		Username:      c.Query("username"),
		Conn:          conn,
	})

	metrics.IncConnection()

	ctx := context.WithValue(c.Request.Context(), logging.RoomIDKey, string(r.GetID()))
	r.HandleClientConnect(ctx, client)

	// Start message pumps
	go client.writePump()
	go client.readPump()
}

// removeRoom is a private method for the Hub to clean up empty rooms.
func (h *Hub) removeRoom(roomID types.RoomIDType) {
	h.mu.Lock()

	// Cancel any existing cleanup timer for this room
	if existingTimer, exists := h.pendingRoomCleanups[roomID]; exists {
		existingTimer.Stop()
		delete(h.pendingRoomCleanups, roomID)
	}

	// Schedule room cleanup after grace period
	timer := time.AfterFunc(h.cleanupGracePeriod, func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		// Double-check room still exists and is empty before deleting
		if r, ok := h.rooms[roomID]; ok && r.IsRoomEmpty() {
			delete(h.rooms, roomID)
			delete(h.pendingRoomCleanups, roomID)

			go func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := r.Shutdown(shutdownCtx); err != nil {
					logging.Error(context.Background(), "Room shutdown timed out", zap.String("roomId", string(roomID)), zap.Error(err))
				}
			}()

			metrics.ActiveRooms.Dec()
			metrics.RoomParticipants.DeleteLabelValues(string(roomID))

			logging.Info(context.Background(), "Removed room from hub after grace period", zap.String("roomId", string(roomID)))
		} else {
			// Room is no longer empty, cancel cleanup
			delete(h.pendingRoomCleanups, roomID)
			if ok {
				logging.Info(context.Background(), "Cancelled room cleanup - room is active", zap.String("roomId", string(roomID)))
			}
		}
	})

	// Store the timer so we can cancel it if clients reconnect
	h.pendingRoomCleanups[roomID] = timer
	h.mu.Unlock()
}

// getOrCreateRoom retrieves the Room associated with the given RoomID from the Hub.
func (h *Hub) getOrCreateRoom(roomID types.RoomIDType) *room.Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[roomID]; ok {
		// Room exists, cancel any pending cleanup
		if timer, hasPendingCleanup := h.pendingRoomCleanups[roomID]; hasPendingCleanup {
			timer.Stop()
			delete(h.pendingRoomCleanups, roomID)
			logging.Info(context.Background(), "Cancelled pending room cleanup due to reconnection", zap.String("roomId", string(roomID)))
		}
		return r
	}

	logging.Info(context.Background(), "Creating new room", zap.String("roomId", string(roomID)))
	r := room.NewRoom(context.Background(), roomID, h.removeRoom, h.bus, h.store, h.roomOpts)
	h.rooms[roomID] = r

	metrics.ActiveRooms.Inc()
	return r
}

// Shutdown gracefully closes all active rooms and connections
func (h *Hub) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "Shutting down Hub - closing all active rooms...")

	h.mu.Lock()
	// Cancel all pending cleanup timers
	for roomID, timer := range h.pendingRoomCleanups {
		timer.Stop()
		delete(h.pendingRoomCleanups, roomID)
		logging.GetLogger().Debug("Cancelled pending cleanup timer", zap.String("roomId", string(roomID)))
	}

	// Get snapshot of all rooms
	rooms := make([]*room.Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	// Close all rooms (sends close frames to WebSocket connections)
	for _, r := range rooms {
		r.CloseRoom("Server shutting down")
		if err := r.Shutdown(ctx); err != nil {
			logging.Error(ctx, "Room shutdown failed", zap.String("roomId", string(r.GetID())), zap.Error(err))
		}
	}

	logging.Info(ctx, "All rooms closed", zap.Int("count", len(rooms)))

	return nil
}
