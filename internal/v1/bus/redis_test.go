package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	svc, err := NewService(mr.Addr(), "")
	require.NoError(t, err)

	return svc, mr
}

func TestNewService(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	assert.NotNil(t, svc.Client())
	err := svc.Ping(context.Background())
	assert.NoError(t, err)
}

func TestNewService_Unreachable(t *testing.T) {
	_, err := NewService("localhost:1", "")
	assert.Error(t, err)
}

func TestPublish(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	roomID := "room-1"

	// Subscribe manually to check if message arrives
	sub := svc.Client().Subscribe(ctx, "parlor:room:"+roomID)
	defer func() { _ = sub.Close() }()

	// Wait for subscription to be active
	time.Sleep(50 * time.Millisecond)

	frame := map[string]any{"type": "add", "id": "m1", "content": "hello"}
	err := svc.Publish(ctx, roomID, "add", frame, "instance-1")
	assert.NoError(t, err)

	// Receive
	msg, err := sub.ReceiveMessage(ctx)
	assert.NoError(t, err)

	var envelope PubSubPayload
	err = json.Unmarshal([]byte(msg.Payload), &envelope)
	assert.NoError(t, err)

	assert.Equal(t, roomID, envelope.RoomID)
	assert.Equal(t, "add", envelope.Event)
	assert.Equal(t, "instance-1", envelope.SenderID)

	// The inner payload is the frame as a JSON object, ready for DecodeFrame
	// on the receiving side.
	var inner map[string]any
	err = json.Unmarshal(envelope.Payload, &inner)
	assert.NoError(t, err)
	assert.Equal(t, "add", inner["type"])
	assert.Equal(t, "m1", inner["id"])
}

func TestSubscribe(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roomID := "room-sub"
	wg := &sync.WaitGroup{}

	received := make(chan PubSubPayload, 1)
	handler := func(p PubSubPayload) {
		received <- p
	}

	svc.Subscribe(ctx, roomID, wg, handler)

	// Wait for subscription
	time.Sleep(50 * time.Millisecond)

	// Publish from "another instance" (directly via redis client)
	payload := PubSubPayload{
		RoomID:   roomID,
		Event:    "add",
		SenderID: "instance-2",
	}
	bytes, _ := json.Marshal(payload)
	svc.Client().Publish(ctx, "parlor:room:"+roomID, bytes)

	select {
	case p := <-received:
		assert.Equal(t, "add", p.Event)
		assert.Equal(t, "instance-2", p.SenderID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	// Cancel context to stop subscription
	cancel()
	wg.Wait()
}

func TestSubscribe_MalformedMessageIsSkipped(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roomID := "room-garbage"
	wg := &sync.WaitGroup{}

	received := make(chan PubSubPayload, 1)
	svc.Subscribe(ctx, roomID, wg, func(p PubSubPayload) { received <- p })
	time.Sleep(50 * time.Millisecond)

	// Garbage first, then a valid envelope. The handler must only see the
	// valid one.
	svc.Client().Publish(ctx, "parlor:room:"+roomID, "{not json")
	valid, _ := json.Marshal(PubSubPayload{RoomID: roomID, Event: "presence", SenderID: "instance-3"})
	svc.Client().Publish(ctx, "parlor:room:"+roomID, valid)

	select {
	case p := <-received:
		assert.Equal(t, "presence", p.Event)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	cancel()
	wg.Wait()
}

func TestNilService_AllOpsAreNoOps(t *testing.T) {
	var svc *Service

	assert.NoError(t, svc.Publish(context.Background(), "room", "add", nil, "inst"))
	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
	assert.Nil(t, svc.Client())
	// Subscribe on a nil service must not spawn anything or panic.
	svc.Subscribe(context.Background(), "room", nil, nil)
}

func TestRedisFailure_Graceful(t *testing.T) {
	svc, mr := newTestService(t)

	// Kill redis
	mr.Close()

	ctx := context.Background()

	err := svc.Ping(ctx)
	assert.Error(t, err)
}

func TestPublish_CircuitBreakerOpen(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()

	// Close Redis to trigger circuit breaker
	mr.Close()

	// Multiple failed calls
	for i := 0; i < 10; i++ {
		_ = svc.Publish(ctx, "room-1", "add", map[string]string{}, "inst")
	}

	// Once open, publishes degrade to dropped messages instead of errors.
	err := svc.Publish(ctx, "room-1", "add", map[string]string{}, "inst")
	assert.NoError(t, err)
}
