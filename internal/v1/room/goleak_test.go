package room

import (
	"context"
	"sync"
	"testing"

	"github.com/parlorchat/parlor/internal/v1/bus"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// BlockingBus simulates a Bus that spawns a long-running goroutine on
// Subscribe, mimicking the real Redis adapter's behavior.
type BlockingBus struct {
	*MockBusService
}

func (b *BlockingBus) Subscribe(ctx context.Context, roomID string, wg *sync.WaitGroup, handler func(bus.PubSubPayload)) {
	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer wg.Done()
		<-ctx.Done()
	}()
}

func TestRoom_ShutdownStopsSubscriber(t *testing.T) {
	blockingBus := &BlockingBus{MockBusService: &MockBusService{}}

	r := NewRoom(context.Background(), "leak-room", nil, blockingBus, nil, Options{})

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// Assertions are handled by TestMain's goleak.VerifyNone.
}

func TestRoom_ShutdownStopsSweeper(t *testing.T) {
	r := NewRoom(context.Background(), "sweeper-room", nil, nil, nil, Options{})

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}
