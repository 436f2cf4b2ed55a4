//go:build !production

package testutil

import (
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/drop-three/internal/protocol"
)

// MockClient 实现 types.ClientInterface 的 mock
type MockClient struct {
	mock.Mock
}

func (m *MockClient) GetID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockClient) GetPlayerID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockClient) GetName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockClient) GetRoom() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockClient) SendMessage(msg *protocol.Message) {
	m.Called(msg)
}

func (m *MockClient) Close() {
	m.Called()
}

// RecordingClient 记录收到消息的客户端，可在多个协程间共享
type RecordingClient struct {
	ID       string
	PlayerID string
	Name     string
	RoomCode string

	mu       sync.Mutex
	messages []*protocol.Message
	closed   bool
}

// NewRecordingClient 创建记录客户端，connID 每次连接不同，playerID 是身份
func NewRecordingClient(connID, playerID, name string) *RecordingClient {
	return &RecordingClient{ID: connID, PlayerID: playerID, Name: name}
}

func (c *RecordingClient) GetID() string       { return c.ID }
func (c *RecordingClient) GetPlayerID() string { return c.PlayerID }
func (c *RecordingClient) GetName() string     { return c.Name }
func (c *RecordingClient) GetRoom() string     { return c.RoomCode }

func (c *RecordingClient) SendMessage(msg *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *RecordingClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Closed 是否已被关闭
func (c *RecordingClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Messages 已收到消息的副本
func (c *RecordingClient) Messages() []*protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*protocol.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// OfType 指定类型的消息
func (c *RecordingClient) OfType(t protocol.MessageType) []*protocol.Message {
	var out []*protocol.Message
	for _, msg := range c.Messages() {
		if msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}

// Has 是否收到过指定类型的消息
func (c *RecordingClient) Has(t protocol.MessageType) bool {
	return len(c.OfType(t)) > 0
}

// LastState 最近一次收到的房间状态
func (c *RecordingClient) LastState() *protocol.GameState {
	states := c.OfType(protocol.MsgGameStateUpdate)
	if len(states) == 0 {
		return nil
	}
	var payload protocol.GameStatePayload
	if err := json.Unmarshal(states[len(states)-1].Payload, &payload); err != nil {
		return nil
	}
	return payload.GameState
}

// LastErrorCode 最近一次收到的错误码，没有时返回 0
func (c *RecordingClient) LastErrorCode() int {
	errs := c.OfType(protocol.MsgError)
	if len(errs) == 0 {
		return 0
	}
	var payload protocol.ErrorPayload
	if err := json.Unmarshal(errs[len(errs)-1].Payload, &payload); err != nil {
		return 0
	}
	return payload.Code
}

// Reset 清空已记录的消息
func (c *RecordingClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}
