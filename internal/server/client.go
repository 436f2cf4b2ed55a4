package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/protocol"
	"github.com/palemoky/drop-three/internal/protocol/codec"
	"github.com/palemoky/drop-three/internal/types"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时（pong 等待时间）
	pongWait = 60 * time.Second

	// ping 发送间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 256

	// 超速警告超过这个次数直接断开
	maxRateWarnings = 5
)

// Client 一个 WebSocket 连接，身份由握手时的令牌决定
type Client struct {
	ID       string // 连接 ID，每次连接都不同
	PlayerID string
	Name     string
	RoomCode string
	IP       string

	server *Server
	conn   *websocket.Conn
	send   chan []byte

	mu             sync.RWMutex
	closed         bool
	disconnectOnce sync.Once
}

var _ types.ClientInterface = (*Client)(nil)

// NewClient 创建客户端
func NewClient(s *Server, conn *websocket.Conn, id types.Identity, roomCode string) *Client {
	return &Client{
		ID:       uuid.NewString(),
		PlayerID: id.ID,
		Name:     id.Username,
		RoomCode: roomCode,
		server:   s,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
	}
}

func (c *Client) GetID() string       { return c.ID }
func (c *Client) GetPlayerID() string { return c.PlayerID }
func (c *Client) GetName() string     { return c.Name }
func (c *Client) GetRoom() string     { return c.RoomCode }

// ReadPump 从 WebSocket 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.handleDisconnect()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("player", c.PlayerID).Msg("读取错误")
			}
			return
		}

		allowed, warning := c.server.messageLimiter.AllowMessage(c.ID)
		if !allowed {
			log.Warn().Str("player", c.Name).Str("ip", c.IP).Msg("⚠️ 客户端消息过于频繁")
			c.SendMessage(codec.NewErrorMessageWithText(protocol.ErrCodeRateLimit, "消息发送过于频繁"))
			if c.server.messageLimiter.GetWarningCount(c.ID) > maxRateWarnings {
				log.Warn().Str("player", c.Name).Msg("🚫 客户端因多次超速被断开连接")
				return
			}
			continue
		}
		if warning {
			c.SendMessage(codec.NewErrorMessageWithText(protocol.ErrCodeRateLimit, "请求过于频繁，请放慢速度"))
		}

		msg, err := codec.Decode(data)
		if err != nil {
			log.Debug().Err(err).Str("player", c.PlayerID).Msg("消息解析错误")
			c.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
			continue
		}

		c.server.handler.Handle(c, msg)
		codec.Release(msg)
	}
}

// WritePump 向 WebSocket 写入消息，send 关闭后发送关闭帧
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 发送消息，缓冲区满时关闭连接
func (c *Client) SendMessage(msg *protocol.Message) {
	data, err := codec.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(msg.Type)).Msg("消息编码错误")
		return
	}

	overflow := false
	c.mu.RLock()
	if !c.closed {
		select {
		case c.send <- data:
		default:
			overflow = true
		}
	}
	c.mu.RUnlock()

	if overflow {
		log.Warn().Str("conn", c.ID).Str("player", c.PlayerID).Msg("客户端发送缓冲区已满")
		c.Close()
	}
}

// Close 关闭发送通道，可重复调用
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// handleDisconnect 连接断开只通知一次房间
func (c *Client) handleDisconnect() {
	c.disconnectOnce.Do(func() {
		c.Close()
		c.server.messageLimiter.ClearRateLimit(c.ID)
		c.server.unregisterClient(c)
		c.server.rooms.OnClose(c)
	})
}
