package room

import (
	"context"
	"sync"

	"github.com/parlorchat/parlor/internal/v1/bus"
	"github.com/parlorchat/parlor/internal/v1/types"
	"github.com/stretchr/testify/assert"
)

// MockClient implements types.ClientInterface for testing
type MockClient struct {
	ID          types.ParticipantIDType
	DisplayName types.DisplayNameType

	mu             sync.Mutex
	SentFrames     []*types.Frame
	RawSent        [][]byte
	isDisconnected bool
}

func NewMockClient(id string, name string) *MockClient {
	return &MockClient{
		ID:          types.ParticipantIDType(id),
		DisplayName: types.DisplayNameType(name),
	}
}

func (m *MockClient) GetID() types.ParticipantIDType { return m.ID }

func (m *MockClient) GetDisplayName() types.DisplayNameType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DisplayName
}

func (m *MockClient) SetDisplayName(name types.DisplayNameType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DisplayName = name
}

func (m *MockClient) SendFrame(f *types.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentFrames = append(m.SentFrames, f)
}

func (m *MockClient) SendRaw(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RawSent = append(m.RawSent, data)
}

func (m *MockClient) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isDisconnected = true
}

func (m *MockClient) IsDisconnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isDisconnected
}

// ReceivedFrames decodes everything the client was sent, direct frames and
// broadcast bytes alike, in order of arrival per channel.
func (m *MockClient) ReceivedFrames() []*types.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()

	frames := make([]*types.Frame, 0, len(m.SentFrames)+len(m.RawSent))
	frames = append(frames, m.SentFrames...)
	for _, raw := range m.RawSent {
		if f, err := types.DecodeFrame(raw); err == nil {
			frames = append(frames, f)
		}
	}
	return frames
}

// ReceivedOfType filters received frames by type.
func (m *MockClient) ReceivedOfType(t types.FrameType) []*types.Frame {
	var out []*types.Frame
	for _, f := range m.ReceivedFrames() {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

// MockBusService is a mock implementation of types.BusService for testing
type MockBusService struct {
	mu             sync.Mutex
	publishCalls   int
	publishedTypes []string
	lastSenderID   string
	subscribeCalls int
	handler        func(bus.PubSubPayload)
	failPublish    bool
}

func (m *MockBusService) Publish(ctx context.Context, roomID string, event string, payload any, senderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPublish {
		return assert.AnError
	}
	m.publishCalls++
	m.publishedTypes = append(m.publishedTypes, event)
	m.lastSenderID = senderID
	return nil
}

func (m *MockBusService) Subscribe(ctx context.Context, roomID string, wg *sync.WaitGroup, handler func(bus.PubSubPayload)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeCalls++
	m.handler = handler
}

func (m *MockBusService) Ping(ctx context.Context) error { return nil }

func (m *MockBusService) Close() error { return nil }

func (m *MockBusService) PublishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publishCalls
}

// MockHistoryStore is a mock implementation of types.HistoryStore for testing
type MockHistoryStore struct {
	mu           sync.Mutex
	saved        []types.ChatMessage
	updates      map[types.MessageIDType]string
	recentResult []types.ChatMessage
	failSave     bool
}

func (m *MockHistoryStore) Save(ctx context.Context, roomID types.RoomIDType, msg types.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return assert.AnError
	}
	m.saved = append(m.saved, msg)
	return nil
}

func (m *MockHistoryStore) UpdateContent(ctx context.Context, roomID types.RoomIDType, id types.MessageIDType, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updates == nil {
		m.updates = make(map[types.MessageIDType]string)
	}
	m.updates[id] = content
	return nil
}

func (m *MockHistoryStore) Recent(ctx context.Context, roomID types.RoomIDType, limit int) ([]types.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recentResult, nil
}

func (m *MockHistoryStore) Close() error { return nil }

func (m *MockHistoryStore) SavedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}
