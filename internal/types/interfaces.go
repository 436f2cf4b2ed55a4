package types

import (
	"github.com/palemoky/drop-three/internal/protocol"
)

// Identity 经过身份校验的玩家身份
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Transport 房间持有的实时连接句柄，房间状态里只保存这个接口
type Transport interface {
	GetID() string // 连接 ID，每次建立连接都不同
	SendMessage(msg *protocol.Message)
	Close()
}

// ClientInterface 定义客户端接口
type ClientInterface interface {
	Transport
	GetPlayerID() string // 身份 ID，重连后保持不变
	GetName() string
	GetRoom() string
}

// ChatLimiter 聊天速率限制器接口
type ChatLimiter interface {
	AllowChat(clientID string) (allowed bool, reason string)
	RemoveClient(clientID string)
}
