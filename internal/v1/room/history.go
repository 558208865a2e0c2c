package room

import (
	"context"
	"time"

	"github.com/parlorchat/parlor/internal/v1/logging"
	"go.uber.org/zap"
)

// loadHistory seeds in-memory history from the durable store so a restarted
// relay replays the same messages to newcomers. The upsert path keeps the
// dedup invariant even if live frames for the same ids arrive later.
func (r *Room) loadHistory() {
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()

	messages, err := r.store.Recent(ctx, r.ID, r.maxHistoryLength)
	if err != nil {
		logging.Error(r.ctx, "Failed to load room history", zap.String("room", string(r.ID)), zap.Error(err))
		return
	}

	r.mu.Lock()
	for _, msg := range messages {
		r.upsertMessageLocked(msg)
	}
	count := r.history.Len()
	r.mu.Unlock()

	if count > 0 {
		logging.Info(r.ctx, "Loaded room history", zap.String("room", string(r.ID)), zap.Int("messages", count))
	}
}
