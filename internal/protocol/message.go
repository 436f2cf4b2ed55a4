package protocol

import "encoding/json"

// Message 基础消息结构
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageType 消息类型
type MessageType string

// 客户端 → 服务端 消息类型
const (
	MsgMakeMove        MessageType = "MAKE_MOVE"         // 落子
	MsgLeaveRoom       MessageType = "LEAVE_ROOM"        // 离开房间
	MsgVoteReady       MessageType = "VOTE_READY"        // 开局准备投票
	MsgVoteRematch     MessageType = "VOTE_REMATCH"      // 再来一局投票
	MsgSendChatMessage MessageType = "SEND_CHAT_MESSAGE" // 发送聊天消息
)

// 服务端 → 客户端 消息类型
const (
	MsgGameStateUpdate MessageType = "GAME_STATE_UPDATE" // 房间状态快照
	MsgError           MessageType = "ERROR"             // 错误消息（仅发给请求方）
	MsgInfo            MessageType = "INFO_MESSAGE"      // 系统通知
	MsgRoomClosed      MessageType = "ROOM_CLOSED"       // 房间关闭或被移出房间
	MsgNewMessage      MessageType = "NEW_MESSAGE"       // 聊天消息转发
)
