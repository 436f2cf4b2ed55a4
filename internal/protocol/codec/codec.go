package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/palemoky/drop-three/internal/protocol"
)

// NewMessage 创建一个新消息
func NewMessage(msgType protocol.MessageType, payload any) (*protocol.Message, error) {
	var data json.RawMessage
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return &protocol.Message{
		Type:    msgType,
		Payload: data,
	}, nil
}

// MustNewMessage 创建消息，失败时 panic
func MustNewMessage(msgType protocol.MessageType, payload any) *protocol.Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Encode 将消息编码为 JSON 字节
func Encode(msg *protocol.Message) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if err := json.NewEncoder(buf).Encode(msg); err != nil {
		return nil, err
	}
	// Encoder 会追加换行，这里去掉并拷贝出缓冲区
	out := bytes.TrimRight(buf.Bytes(), "\n")
	return append([]byte(nil), out...), nil
}

// Decode 从 JSON 字节解码消息
func Decode(data []byte) (*protocol.Message, error) {
	msg := GetMessage()
	if err := json.Unmarshal(data, msg); err != nil {
		PutMessage(msg)
		return nil, err
	}
	if msg.Type == "" {
		PutMessage(msg)
		return nil, fmt.Errorf("消息缺少 type 字段")
	}
	return msg, nil
}

// Release 处理完成后归还解码得到的消息
func Release(msg *protocol.Message) {
	PutMessage(msg)
}

// ParsePayload 解析消息的 Payload 到指定类型
func ParsePayload[T any](msg *protocol.Message) (*T, error) {
	var payload T
	if len(msg.Payload) == 0 {
		return nil, fmt.Errorf("消息 %s 缺少 payload", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// NewErrorMessage 创建错误消息
func NewErrorMessage(code int) *protocol.Message {
	return NewErrorMessageWithText(code, protocol.ErrorMessages[code])
}

// NewErrorMessageWithText 创建带自定义文本的错误消息
func NewErrorMessageWithText(code int, text string) *protocol.Message {
	return MustNewMessage(protocol.MsgError, protocol.ErrorPayload{
		Code:    code,
		Message: text,
	})
}

// NewInfoMessage 创建系统通知
func NewInfoMessage(text string) *protocol.Message {
	return MustNewMessage(protocol.MsgInfo, protocol.InfoPayload{Message: text})
}

// NewRoomClosedMessage 创建房间关闭通知
func NewRoomClosedMessage(text string) *protocol.Message {
	return MustNewMessage(protocol.MsgRoomClosed, protocol.RoomClosedPayload{Message: text})
}

// NewGameStateMessage 创建房间状态推送
func NewGameStateMessage(state *protocol.GameState) *protocol.Message {
	return MustNewMessage(protocol.MsgGameStateUpdate, protocol.GameStatePayload{GameState: state})
}
