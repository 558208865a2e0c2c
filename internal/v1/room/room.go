package room

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/metrics"
	"github.com/parlorchat/parlor/internal/v1/types"
	"go.uber.org/zap"
)

const (
	// MaxParticipants is the maximum allowed users in a room
	MaxParticipants = 100

	// replayLimit caps how many history entries are replayed to a newcomer.
	replayLimit = 50

	// retentionMultiplier scales the staleness window into the retention
	// window after which departed participants age out of snapshots.
	retentionMultiplier = 4
)

// Options configures per-room limits and timing.
type Options struct {
	MaxHistoryLength int
	MaxHistoryBytes  int
	StalenessWindow  time.Duration
	InstanceID       string // identifies this relay instance on the bus
}

// DefaultOptions returns the limits used when the caller passes zero values.
func DefaultOptions() Options {
	return Options{
		MaxHistoryLength: 100,
		MaxHistoryBytes:  1024 * 1024,
		StalenessWindow:  45 * time.Second,
	}
}

// Room is a single chat room: connected clients, deduplicated message
// history, and the participant presence table.
type Room struct {
	ID types.RoomIDType

	mu                  sync.RWMutex
	history             *list.List
	historyIndex        map[types.MessageIDType]*list.Element
	maxHistoryLength    int
	maxHistoryBytes     int
	currentHistoryBytes int

	clients      map[types.ParticipantIDType]types.ClientInterface
	participants map[types.ParticipantIDType]*types.Participant

	stalenessWindow time.Duration
	instanceID      string

	onEmpty func(types.RoomIDType)
	bus     types.BusService
	store   types.HistoryStore

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	publishChan chan struct{} // Semaphore for bus publishes
}

// NewRoom creates a new Room instance with the given ID and dependencies.
func NewRoom(ctx context.Context, id types.RoomIDType, onEmptyCallback func(types.RoomIDType), busService types.BusService, store types.HistoryStore, opts Options) *Room {
	def := DefaultOptions()
	if opts.MaxHistoryLength <= 0 {
		opts.MaxHistoryLength = def.MaxHistoryLength
	}
	if opts.MaxHistoryBytes <= 0 {
		opts.MaxHistoryBytes = def.MaxHistoryBytes
	}
	if opts.StalenessWindow <= 0 {
		opts.StalenessWindow = def.StalenessWindow
	}

	room := &Room{
		ID:               id,
		history:          list.New(),
		historyIndex:     make(map[types.MessageIDType]*list.Element),
		maxHistoryLength: opts.MaxHistoryLength,
		maxHistoryBytes:  opts.MaxHistoryBytes,

		clients:      make(map[types.ParticipantIDType]types.ClientInterface),
		participants: make(map[types.ParticipantIDType]*types.Participant),

		stalenessWindow: opts.StalenessWindow,
		instanceID:      opts.InstanceID,

		onEmpty:     onEmptyCallback,
		bus:         busService,
		store:       store,
		publishChan: make(chan struct{}, 100), // Limit concurrent publishes
	}
	room.ctx, room.cancel = context.WithCancel(ctx)

	if busService != nil {
		room.subscribeToBus()
	}
	if store != nil {
		room.loadHistory()
	}

	room.startPresenceSweeper()

	return room
}

// GetID returns the room ID.
func (r *Room) GetID() types.RoomIDType {
	return r.ID
}

// Shutdown gracefully closes the room and waits for its goroutines.
func (r *Room) Shutdown(ctx context.Context) error {
	r.cancel()

	c := make(chan struct{})
	go func() {
		defer close(c)
		r.wg.Wait()
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRoomEmpty checks if the room has no connected clients.
func (r *Room) IsRoomEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients) == 0
}

// IsConnected checks if the given participant ID has a live connection.
func (r *Room) IsConnected(id types.ParticipantIDType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.clients[id]
	return exists
}

// CloseRoom closes the room and disconnects all clients with a reason.
func (r *Room) CloseRoom(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeRoomLocked(reason)
}

func (r *Room) closeRoomLocked(reason string) {
	logging.Info(r.ctx, "Closing room", zap.String("room", string(r.ID)), zap.String("reason", reason))
	r.cancel()

	var targets []types.ClientInterface
	for _, c := range r.clients {
		targets = append(targets, c)
	}

	for _, c := range targets {
		c.Disconnect()
	}
}

// HandleClientConnect registers a new connection, replays recent history to
// it, and announces the participant to the room.
func (r *Room) HandleClientConnect(ctx context.Context, client types.ClientInterface) {
	r.mu.Lock()

	if existing, exists := r.clients[client.GetID()]; exists {
		logging.Info(ctx, "Duplicate connection detected, replacing old client",
			zap.String("room", string(r.ID)),
			zap.String("participantId", string(client.GetID())),
		)
		delete(r.clients, existing.GetID())
		existing.Disconnect()
	}

	r.clients[client.GetID()] = client

	now := time.Now().UnixMilli()
	r.upsertParticipantLocked(types.Participant{
		ID:       client.GetID(),
		User:     client.GetDisplayName(),
		Status:   types.StatusOnline,
		LastSeen: now,
	})

	replay := r.recentMessagesLocked(replayLimit)
	snapshot := r.snapshotLocked()
	presence := types.NewPresenceFrame(*r.participants[client.GetID()])
	count := len(r.clients)
	r.mu.Unlock()

	// Newcomer first: history replay, then the authoritative snapshot.
	for i := range replay {
		client.SendFrame(types.NewAddFrame(replay[i]))
	}
	client.SendFrame(types.NewParticipantsFrame(snapshot))

	r.Broadcast(presence)

	metrics.RoomParticipants.WithLabelValues(string(r.ID)).Set(float64(count))
	logging.Info(ctx, "Client connected", zap.String("room", string(r.ID)), zap.String("participantId", string(client.GetID())))
}

// HandleClientDisconnect handles logic when a client disconnects.
func (r *Room) HandleClientDisconnect(client types.ClientInterface) {
	ctx := context.Background()

	r.mu.Lock()
	// Only remove if this exact client is still registered; a replacement
	// connection may have taken over the participant id.
	if current, ok := r.clients[client.GetID()]; ok && current == client {
		delete(r.clients, client.GetID())
	}

	var presence *types.Frame
	if p, ok := r.participants[client.GetID()]; ok && !r.hasConnectionLocked(client.GetID()) {
		p.Status = types.StatusOffline
		p.LastSeen = time.Now().UnixMilli()
		presence = types.NewPresenceFrame(*p)
	}

	count := len(r.clients)
	r.mu.Unlock()

	logging.Info(ctx, "Client disconnected", zap.String("room", string(r.ID)), zap.String("participantId", string(client.GetID())))

	if count > 0 {
		metrics.RoomParticipants.WithLabelValues(string(r.ID)).Set(float64(count))
	} else {
		metrics.RoomParticipants.DeleteLabelValues(string(r.ID))
	}

	if presence != nil {
		r.Broadcast(presence)
	}

	if count == 0 && r.onEmpty != nil {
		go r.onEmpty(r.ID)
	}
}

func (r *Room) hasConnectionLocked(id types.ParticipantIDType) bool {
	_, ok := r.clients[id]
	return ok
}

// Snapshot returns the current participant list, sorted by id for
// deterministic output.
func (r *Room) Snapshot() []types.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() []types.Participant {
	snapshot := make([]types.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		snapshot = append(snapshot, *p)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return snapshot
}

// RecentMessages returns the most recent history entries, oldest first.
func (r *Room) RecentMessages(limit int) []types.ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recentMessagesLocked(limit)
}

// --- Broadcast helpers ---

// broadcastRawLocked sends raw bytes to all local clients.
// It does NOT publish to the bus.
func (r *Room) broadcastRawLocked(data []byte) {
	for _, client := range r.clients {
		client.SendRaw(data)
	}
}

// broadcastLocalLocked serializes once and fans out to local clients only.
func (r *Room) broadcastLocalLocked(f *types.Frame) {
	data, err := f.Encode()
	if err != nil {
		logging.Error(r.ctx, "Failed to marshal broadcast frame", zap.String("room", string(r.ID)), zap.Error(err))
		return
	}
	r.broadcastRawLocked(data)
}

func (r *Room) broadcastLocked(f *types.Frame) {
	r.broadcastLocalLocked(f)
	r.publishAsync(f)
}

// Broadcast sends a frame to every local client and, when a bus is
// configured, to the other relay instances serving this room.
func (r *Room) Broadcast(f *types.Frame) {
	// Marshal ONCE
	data, err := f.Encode()
	if err != nil {
		logging.Error(r.ctx, "Failed to marshal broadcast frame", zap.String("room", string(r.ID)), zap.Error(err))
		return
	}

	r.mu.RLock()
	r.broadcastRawLocked(data)
	r.mu.RUnlock()

	r.publishAsync(f)
}

// publishAsync hands the frame to the bus behind a bounded semaphore so a
// slow bus cannot leak goroutines.
func (r *Room) publishAsync(f *types.Frame) {
	if r.bus == nil {
		return
	}

	select {
	case r.publishChan <- struct{}{}:
		r.wg.Add(1)
		go func() {
			defer func() {
				<-r.publishChan
				r.wg.Done()
			}()
			r.publishToBus(context.Background(), f)
		}()
	default:
		logging.Warn(r.ctx, "Dropping bus publish - queue full", zap.String("roomId", string(r.ID)))
	}
}

// --- Presence sweeper ---

// startPresenceSweeper runs the staleness loop: participants that stop
// heartbeating are marked offline even without an explicit offline frame,
// and offline participants eventually age out of snapshots.
func (r *Room) startPresenceSweeper() {
	interval := r.stalenessWindow / 3
	if interval <= 0 {
		interval = time.Second
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.sweepStale(time.Now())
			}
		}
	}()
}

func (r *Room) sweepStale(now time.Time) {
	r.mu.Lock()
	changed := r.sweepStaleLocked(now)
	var snapshot []types.Participant
	if changed {
		snapshot = r.snapshotLocked()
	}
	r.mu.Unlock()

	if changed {
		r.Broadcast(types.NewParticipantsFrame(snapshot))
	}
}
