package room

import (
	"context"
	"testing"
	"time"

	"github.com/parlorchat/parlor/internal/v1/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoom(t *testing.T, opts Options) *Room {
	t.Helper()
	r := NewRoom(context.Background(), "test-room", nil, nil, nil, opts)
	t.Cleanup(func() {
		_ = r.Shutdown(context.Background())
	})
	return r
}

func TestNewRoom_Defaults(t *testing.T) {
	r := newTestRoom(t, Options{})

	assert.Equal(t, types.RoomIDType("test-room"), r.ID)
	assert.NotNil(t, r.clients)
	assert.NotNil(t, r.history)
	assert.Equal(t, 100, r.maxHistoryLength)
	assert.Equal(t, 1024*1024, r.maxHistoryBytes)
	assert.Equal(t, 45*time.Second, r.stalenessWindow)
}

func TestIsRoomEmpty(t *testing.T) {
	r := newTestRoom(t, Options{})

	assert.True(t, r.IsRoomEmpty())

	client := NewMockClient("user1", "User")
	r.HandleClientConnect(context.Background(), client)
	assert.False(t, r.IsRoomEmpty())

	r.HandleClientDisconnect(client)
	assert.True(t, r.IsRoomEmpty())
}

func TestHandleClientConnect_ReplaysHistoryThenSnapshot(t *testing.T) {
	r := newTestRoom(t, Options{})

	r.mu.Lock()
	r.upsertMessageLocked(types.ChatMessage{ID: "m1", Content: "first", User: "a", Role: types.RoleUser, Timestamp: 1})
	r.upsertMessageLocked(types.ChatMessage{ID: "m2", Content: "second", User: "b", Role: types.RoleUser, Timestamp: 2})
	r.mu.Unlock()

	client := NewMockClient("user1", "User")
	r.HandleClientConnect(context.Background(), client)

	adds := client.ReceivedOfType(types.FrameAdd)
	require.Len(t, adds, 2)
	assert.Equal(t, "m1", adds[0].ID)
	assert.Equal(t, "m2", adds[1].ID)

	snapshots := client.ReceivedOfType(types.FrameParticipants)
	require.Len(t, snapshots, 1)
	require.Len(t, snapshots[0].Participants, 1)
	assert.Equal(t, types.ParticipantIDType("user1"), snapshots[0].Participants[0].ID)
	assert.Equal(t, types.StatusOnline, snapshots[0].Participants[0].Status)
}

func TestHandleClientConnect_AnnouncesPresenceToOthers(t *testing.T) {
	r := newTestRoom(t, Options{})

	first := NewMockClient("user1", "First")
	r.HandleClientConnect(context.Background(), first)

	second := NewMockClient("user2", "Second")
	r.HandleClientConnect(context.Background(), second)

	presences := first.ReceivedOfType(types.FramePresence)
	require.NotEmpty(t, presences)
	last := presences[len(presences)-1]
	assert.Equal(t, "user2", last.ID)
	assert.Equal(t, types.StatusOnline, last.Status)
}

func TestHandleClientConnect_DuplicateConnection(t *testing.T) {
	r := newTestRoom(t, Options{})

	oldClient := NewMockClient("user1", "Old Client")
	r.HandleClientConnect(context.Background(), oldClient)

	// Same participant id reconnects (simulating refresh)
	newClient := NewMockClient("user1", "New Client")
	r.HandleClientConnect(context.Background(), newClient)

	assert.True(t, oldClient.IsDisconnected())
	assert.False(t, newClient.IsDisconnected())

	r.mu.RLock()
	assert.Equal(t, 1, len(r.clients))
	assert.Same(t, newClient, r.clients["user1"])
	r.mu.RUnlock()
}

func TestHandleClientDisconnect_MarksOfflineAndCallsOnEmpty(t *testing.T) {
	cleanupCalled := make(chan types.RoomIDType, 1)
	r := NewRoom(context.Background(), "test-room", func(id types.RoomIDType) {
		cleanupCalled <- id
	}, nil, nil, Options{})
	defer func() { _ = r.Shutdown(context.Background()) }()

	client := NewMockClient("user1", "User")
	r.HandleClientConnect(context.Background(), client)
	r.HandleClientDisconnect(client)

	select {
	case id := <-cleanupCalled:
		assert.Equal(t, types.RoomIDType("test-room"), id)
	case <-time.After(time.Second):
		t.Fatal("onEmpty callback was not invoked")
	}

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, types.StatusOffline, snapshot[0].Status)
}

func TestHandleClientDisconnect_StaleConnectionDoesNotEvictReplacement(t *testing.T) {
	r := newTestRoom(t, Options{})

	oldClient := NewMockClient("user1", "Old")
	r.HandleClientConnect(context.Background(), oldClient)

	newClient := NewMockClient("user1", "New")
	r.HandleClientConnect(context.Background(), newClient)

	// The replaced connection's read pump eventually reports its disconnect;
	// the replacement must survive it.
	r.HandleClientDisconnect(oldClient)

	assert.True(t, r.IsConnected("user1"))
	assert.False(t, r.IsRoomEmpty())
}

func TestCloseRoom_DisconnectsEveryone(t *testing.T) {
	r := newTestRoom(t, Options{})

	a := NewMockClient("user1", "A")
	b := NewMockClient("user2", "B")
	r.HandleClientConnect(context.Background(), a)
	r.HandleClientConnect(context.Background(), b)

	r.CloseRoom("test shutdown")

	assert.True(t, a.IsDisconnected())
	assert.True(t, b.IsDisconnected())
}

func TestSnapshot_SortedByID(t *testing.T) {
	r := newTestRoom(t, Options{})

	r.mu.Lock()
	r.upsertParticipantLocked(types.Participant{ID: "zeta", User: "Z", Status: types.StatusOnline, LastSeen: 1})
	r.upsertParticipantLocked(types.Participant{ID: "alpha", User: "A", Status: types.StatusOnline, LastSeen: 1})
	r.upsertParticipantLocked(types.Participant{ID: "mid", User: "M", Status: types.StatusOnline, LastSeen: 1})
	r.mu.Unlock()

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, types.ParticipantIDType("alpha"), snapshot[0].ID)
	assert.Equal(t, types.ParticipantIDType("mid"), snapshot[1].ID)
	assert.Equal(t, types.ParticipantIDType("zeta"), snapshot[2].ID)
}

func TestBroadcast_ReachesAllClientsAndBus(t *testing.T) {
	mockBus := &MockBusService{}
	r := NewRoom(context.Background(), "test-room", nil, mockBus, nil, Options{InstanceID: "inst-1"})
	defer func() { _ = r.Shutdown(context.Background()) }()

	a := NewMockClient("user1", "A")
	b := NewMockClient("user2", "B")
	r.mu.Lock()
	r.clients[a.ID] = a
	r.clients[b.ID] = b
	r.mu.Unlock()

	r.Broadcast(types.NewAddFrame(types.ChatMessage{ID: "m1", Content: "hello", User: "A", Role: types.RoleUser, Timestamp: 1}))

	require.Len(t, a.ReceivedOfType(types.FrameAdd), 1)
	require.Len(t, b.ReceivedOfType(types.FrameAdd), 1)

	// The bus publish is async behind the semaphore.
	assert.Eventually(t, func() bool {
		return mockBus.PublishCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSweepStale_MarksOfflineAndBroadcastsSnapshot(t *testing.T) {
	r := newTestRoom(t, Options{StalenessWindow: 30 * time.Second})

	observer := NewMockClient("observer", "Observer")
	r.HandleClientConnect(context.Background(), observer)

	// A participant whose heartbeats stopped over a window ago.
	r.mu.Lock()
	r.upsertParticipantLocked(types.Participant{
		ID:       "ghost",
		User:     "Ghost",
		Status:   types.StatusOnline,
		LastSeen: time.Now().Add(-time.Minute).UnixMilli(),
	})
	r.mu.Unlock()

	r.sweepStale(time.Now())

	snapshots := observer.ReceivedOfType(types.FrameParticipants)
	require.NotEmpty(t, snapshots)
	last := snapshots[len(snapshots)-1]

	var ghost *types.Participant
	for i := range last.Participants {
		if last.Participants[i].ID == "ghost" {
			ghost = &last.Participants[i]
		}
	}
	require.NotNil(t, ghost)
	assert.Equal(t, types.StatusOffline, ghost.Status)
}

func TestSweepStale_NoChangeNoBroadcast(t *testing.T) {
	r := newTestRoom(t, Options{StalenessWindow: 30 * time.Second})

	observer := NewMockClient("observer", "Observer")
	r.HandleClientConnect(context.Background(), observer)
	before := len(observer.ReceivedFrames())

	r.sweepStale(time.Now())

	assert.Equal(t, before, len(observer.ReceivedFrames()))
}
