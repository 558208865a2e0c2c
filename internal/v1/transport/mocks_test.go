package transport

import (
	"context"
	"sync"
	"time"

	"github.com/parlorchat/parlor/internal/v1/bus"
	"github.com/parlorchat/parlor/internal/v1/types"
)

// MockBusService implements types.BusService
type MockBusService struct {
	publishCalls   int
	subscribeCalls int
	failPublish    bool
	mu             sync.Mutex
}

func (m *MockBusService) Publish(_ context.Context, _ string, _ string, _ any, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishCalls++
	if m.failPublish {
		return context.DeadlineExceeded
	}
	return nil
}

func (m *MockBusService) Subscribe(_ context.Context, _ string, _ *sync.WaitGroup, _ func(bus.PubSubPayload)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeCalls++
}

func (m *MockBusService) Ping(_ context.Context) error { return nil }

func (m *MockBusService) Close() error { return nil }

// MockConnection implements wsConnection
type MockConnection struct {
	ReadMessageFunc  func() (int, []byte, error)
	WriteMessageFunc func(int, []byte) error
	CloseFunc        func() error

	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func (m *MockConnection) ReadMessage() (int, []byte, error) {
	if m.ReadMessageFunc != nil {
		return m.ReadMessageFunc()
	}
	// Default: behave like a dead connection.
	return 0, nil, context.Canceled
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	m.written = append(m.written, data)
	m.mu.Unlock()
	if m.WriteMessageFunc != nil {
		return m.WriteMessageFunc(messageType, data)
	}
	return nil
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *MockConnection) SetWriteDeadline(_ time.Time) error {
	return nil
}

func (m *MockConnection) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

func (m *MockConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// newScriptedConn returns a connection that delivers the given text messages
// in order and then reports a closed connection.
func newScriptedConn(messages ...[]byte) *MockConnection {
	i := 0
	var mu sync.Mutex
	conn := &MockConnection{}
	conn.ReadMessageFunc = func() (int, []byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(messages) {
			return 0, nil, context.Canceled
		}
		msg := messages[i]
		i++
		return 1, msg, nil // websocket.TextMessage
	}
	return conn
}

// MockRoomer implements types.Roomer and records what the client forwards.
type MockRoomer struct {
	ID types.RoomIDType

	mu              sync.Mutex
	RoutedFrames    []*types.Frame
	ConnectCalls    int
	DisconnectCalls int
}

func (m *MockRoomer) GetID() types.RoomIDType { return m.ID }

func (m *MockRoomer) Router(_ context.Context, _ types.ClientInterface, f *types.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RoutedFrames = append(m.RoutedFrames, f)
}

func (m *MockRoomer) HandleClientConnect(_ context.Context, _ types.ClientInterface) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConnectCalls++
}

func (m *MockRoomer) HandleClientDisconnect(_ types.ClientInterface) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DisconnectCalls++
}

func (m *MockRoomer) RoutedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RoutedFrames)
}

func (m *MockRoomer) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DisconnectCalls
}
