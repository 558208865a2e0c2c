package room

import (
	"context"

	"github.com/parlorchat/parlor/internal/v1/bus"
	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/types"
	"go.uber.org/zap"
)

func (r *Room) subscribeToBus() {
	if r.bus == nil {
		logging.GetLogger().Debug("Bus disabled (single-instance mode)")
		return
	}

	ctx := r.ctx
	r.bus.Subscribe(ctx, string(r.ID), &r.wg, func(payload bus.PubSubPayload) {
		r.handleBusMessage(payload)
	})
	logging.Info(ctx, "Subscribed to bus", zap.String("roomId", string(r.ID)))
}

// handleBusMessage applies a frame relayed from another instance to local
// state and fans it out to local clients. It never republishes, and frames
// originating from this instance are dropped to break echo loops.
func (r *Room) handleBusMessage(payload bus.PubSubPayload) {
	if len(payload.Payload) == 0 {
		return
	}
	if r.instanceID != "" && payload.SenderID == r.instanceID {
		return
	}

	f, err := types.DecodeFrame(payload.Payload)
	if err != nil {
		logging.Error(r.ctx, "Bus frame decode failed", zap.Error(err))
		return
	}

	r.mu.Lock()
	switch f.Type {
	case types.FrameAdd:
		r.upsertMessageLocked(f.Message())
	case types.FrameUpdate:
		r.applyUpdateLocked(types.MessageIDType(f.ID), f.Content)
	case types.FramePresence:
		r.upsertParticipantLocked(types.Participant{
			ID:       types.ParticipantIDType(f.ID),
			User:     types.DisplayNameType(f.User),
			Status:   f.Status,
			LastSeen: f.LastSeen,
		})
	}
	r.broadcastLocalLocked(f)
	r.mu.Unlock()
}

func (r *Room) publishToBus(ctx context.Context, f *types.Frame) {
	if r.bus == nil {
		return
	}

	// The frame itself is the payload; the bus wraps it in its envelope.
	if err := r.bus.Publish(ctx, string(r.ID), string(f.Type), f, r.instanceID); err != nil {
		logging.Error(ctx, "Bus publish failed", zap.Error(err))
	}
}
