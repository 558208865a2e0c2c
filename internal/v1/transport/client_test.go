package transport

import (
	"testing"
	"time"

	"github.com/parlorchat/parlor/internal/v1/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(conn wsConnection, room types.Roomer) *Client {
	return &Client{
		conn:        conn,
		room:        room,
		ID:          "user1",
		DisplayName: "User",
		send:        make(chan []byte, 16),
	}
}

func TestReadPump_ForwardsDecodedFrames(t *testing.T) {
	room := &MockRoomer{ID: "room1"}
	conn := newScriptedConn(
		[]byte(`{"type":"add","id":"m1","content":"hello"}`),
		[]byte(`{"type":"presence","status":"online"}`),
	)
	client := newTestClient(conn, room)

	client.readPump()

	require.Equal(t, 2, room.RoutedCount())
	assert.Equal(t, types.FrameAdd, room.RoutedFrames[0].Type)
	assert.Equal(t, types.FramePresence, room.RoutedFrames[1].Type)
}

func TestReadPump_MalformedFrameIsSwallowed(t *testing.T) {
	room := &MockRoomer{ID: "room1"}
	conn := newScriptedConn(
		[]byte(`{not json at all`),
		[]byte(`{"type":"teleport"}`),
		[]byte(`{"type":"add","id":"m1","content":"still works"}`),
	)
	client := newTestClient(conn, room)

	client.readPump()

	// The two bad frames are dropped; the connection survives to deliver
	// the good one.
	require.Equal(t, 1, room.RoutedCount())
	assert.Equal(t, "m1", room.RoutedFrames[0].ID)
}

func TestReadPump_DisconnectsOnReadError(t *testing.T) {
	room := &MockRoomer{ID: "room1"}
	conn := newScriptedConn() // immediate read error
	client := newTestClient(conn, room)

	client.readPump()

	assert.Equal(t, 1, room.Disconnects())
	assert.True(t, conn.IsClosed())
}

func TestReadPump_IgnoresBinaryMessages(t *testing.T) {
	room := &MockRoomer{ID: "room1"}
	delivered := false
	conn := &MockConnection{}
	conn.ReadMessageFunc = func() (int, []byte, error) {
		if !delivered {
			delivered = true
			return websocket.BinaryMessage, []byte(`{"type":"add","id":"m1","content":"x"}`), nil
		}
		return 0, nil, assert.AnError
	}
	client := newTestClient(conn, room)

	client.readPump()

	assert.Equal(t, 0, room.RoutedCount())
}

func TestWritePump_WritesQueuedFramesThenCloseMessage(t *testing.T) {
	conn := &MockConnection{}
	client := newTestClient(conn, &MockRoomer{})

	client.send <- []byte("frame-1")
	client.send <- []byte("frame-2")
	close(client.send)

	client.writePump()

	written := conn.Written()
	require.Len(t, written, 3)
	assert.Equal(t, []byte("frame-1"), written[0])
	assert.Equal(t, []byte("frame-2"), written[1])
	// Final write is the close message.
	assert.True(t, conn.IsClosed())
}

func TestSendFrame_EncodesToWire(t *testing.T) {
	client := newTestClient(&MockConnection{}, &MockRoomer{})

	client.SendFrame(types.NewAddFrame(types.ChatMessage{ID: "m1", Content: "hi", User: "User", Role: types.RoleUser, Timestamp: 1}))

	select {
	case data := <-client.send:
		f, err := types.DecodeFrame(data)
		require.NoError(t, err)
		assert.Equal(t, "m1", f.ID)
	case <-time.After(time.Second):
		t.Fatal("no frame queued")
	}
}

func TestSendRaw_DropsWhenBufferFull(t *testing.T) {
	client := &Client{
		conn: &MockConnection{},
		room: &MockRoomer{},
		ID:   "user1",
		send: make(chan []byte, 1),
	}

	client.SendRaw([]byte("first"))
	client.SendRaw([]byte("overflow")) // must not block

	assert.Len(t, client.send, 1)
}

func TestSendRaw_AfterDisconnectDoesNotPanic(t *testing.T) {
	client := newTestClient(&MockConnection{}, &MockRoomer{})

	client.Disconnect()

	assert.NotPanics(t, func() {
		client.SendRaw([]byte("late"))
	})
}

func TestDisconnect_Idempotent(t *testing.T) {
	client := newTestClient(&MockConnection{}, &MockRoomer{})

	assert.NotPanics(t, func() {
		client.Disconnect()
		client.Disconnect()
	})
}

func TestSetDisplayName_ThreadSafe(t *testing.T) {
	client := newTestClient(&MockConnection{}, &MockRoomer{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			client.SetDisplayName("concurrent")
		}
	}()
	for range 100 {
		_ = client.GetDisplayName()
	}
	<-done

	assert.Equal(t, types.DisplayNameType("concurrent"), client.GetDisplayName())
}
