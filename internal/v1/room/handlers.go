package room

import (
	"context"
	"time"

	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/metrics"
	"github.com/parlorchat/parlor/internal/v1/types"
	"go.uber.org/zap"
)

// Router dispatches an inbound frame from a connected client.
func (r *Room) Router(ctx context.Context, client types.ClientInterface, f *types.Frame) {
	if f == nil {
		logging.Warn(ctx, "Received nil frame", zap.String("participantId", string(client.GetID())))
		return
	}

	start := time.Now()
	defer func() {
		metrics.FrameHandlingDuration.WithLabelValues(string(f.Type)).Observe(time.Since(start).Seconds())
	}()

	switch f.Type {
	case types.FrameAdd:
		r.HandleAdd(ctx, client, f)
	case types.FrameUpdate:
		r.HandleUpdate(ctx, client, f)
	case types.FramePresence:
		r.HandlePresence(ctx, client, f)
	case types.FrameParticipants:
		// Snapshots flow server -> client only.
		metrics.FramesProcessed.WithLabelValues(string(f.Type), "rejected").Inc()
		logging.Warn(ctx, "Ignoring client-sent participants snapshot", zap.String("participantId", string(client.GetID())))
	default:
		metrics.FramesProcessed.WithLabelValues("unknown", "rejected").Inc()
		logging.Warn(ctx, "Unknown frame type received", zap.String("participantId", string(client.GetID())))
	}
}

// HandleAdd stores a chat message and echoes it to everyone, the sender
// included. A frame whose id is already in history is a confirmation of an
// optimistic send, not a new message: history stays unchanged, but the echo
// still goes out so every subscriber converges.
func (r *Room) HandleAdd(ctx context.Context, client types.ClientInterface, f *types.Frame) {
	msg := normalizeMessage(client, f)
	if err := msg.Validate(); err != nil {
		metrics.FramesProcessed.WithLabelValues(string(types.FrameAdd), "invalid").Inc()
		logging.Warn(ctx, "Dropping invalid add frame", zap.String("participantId", string(client.GetID())), zap.Error(err))
		return
	}

	r.mu.Lock()
	inserted := r.upsertMessageLocked(msg)
	r.mu.Unlock()

	if inserted && r.store != nil {
		if err := r.store.Save(ctx, r.ID, msg); err != nil {
			logging.Error(ctx, "Failed to persist message", zap.String("room", string(r.ID)), zap.Error(err))
		}
	}

	status := "stored"
	if !inserted {
		status = "confirmed"
	}
	metrics.FramesProcessed.WithLabelValues(string(types.FrameAdd), status).Inc()

	r.Broadcast(types.NewAddFrame(msg))
}

// HandleUpdate replaces the content of an existing message in place and
// broadcasts the change. Updates for unknown ids are dropped.
func (r *Room) HandleUpdate(ctx context.Context, client types.ClientInterface, f *types.Frame) {
	msg := normalizeMessage(client, f)
	if err := msg.Validate(); err != nil {
		metrics.FramesProcessed.WithLabelValues(string(types.FrameUpdate), "invalid").Inc()
		logging.Warn(ctx, "Dropping invalid update frame", zap.String("participantId", string(client.GetID())), zap.Error(err))
		return
	}

	r.mu.Lock()
	applied := r.applyUpdateLocked(msg.ID, msg.Content)
	r.mu.Unlock()

	if !applied {
		metrics.FramesProcessed.WithLabelValues(string(types.FrameUpdate), "unknown_id").Inc()
		logging.Warn(ctx, "Update for unknown message id", zap.String("room", string(r.ID)), zap.String("messageId", string(msg.ID)))
		return
	}

	if r.store != nil {
		if err := r.store.UpdateContent(ctx, r.ID, msg.ID, msg.Content); err != nil {
			logging.Error(ctx, "Failed to persist message update", zap.String("room", string(r.ID)), zap.Error(err))
		}
	}

	metrics.FramesProcessed.WithLabelValues(string(types.FrameUpdate), "applied").Inc()
	r.Broadcast(types.NewUpdateFrame(msg))
}

// HandlePresence upserts the participant table by stable id and relays the
// presence frame. A heartbeat from a known participant refreshes lastSeen
// and display name in place; it never duplicates the entry.
func (r *Room) HandlePresence(ctx context.Context, client types.ClientInterface, f *types.Frame) {
	p := normalizePresence(client, f)

	r.mu.Lock()
	r.upsertParticipantLocked(p)
	r.mu.Unlock()

	// Presence may carry a rename; keep the connection's name in sync so
	// later system frames use it.
	if p.ID == client.GetID() && p.User != "" && p.User != client.GetDisplayName() {
		client.SetDisplayName(p.User)
	}

	metrics.FramesProcessed.WithLabelValues(string(types.FramePresence), "applied").Inc()
	r.Broadcast(types.NewPresenceFrame(p))
}
