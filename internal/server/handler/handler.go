package handler

import (
	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/apperrors"
	"github.com/palemoky/drop-three/internal/protocol"
	"github.com/palemoky/drop-three/internal/protocol/codec"
	"github.com/palemoky/drop-three/internal/types"
)

// Orchestrator 房间编排器中由客户端消息驱动的操作
type Orchestrator interface {
	MakeMove(t types.Transport, column int) error
	Leave(t types.Transport) error
	VoteReady(t types.Transport) error
	VoteRematch(t types.Transport) error
	Chat(t types.Transport, text string) error
}

// HandlerDeps 处理器依赖
type HandlerDeps struct {
	Orchestrator Orchestrator
	ChatLimiter  types.ChatLimiter
}

// Handler 消息处理器
type Handler struct {
	orchestrator Orchestrator
	chatLimiter  types.ChatLimiter
	handlers     map[protocol.MessageType]handlerFunc
}

// handlerFunc 统一的处理器函数签名
type handlerFunc func(client types.ClientInterface, msg *protocol.Message)

// NewHandler 创建处理器
func NewHandler(deps HandlerDeps) *Handler {
	h := &Handler{
		orchestrator: deps.Orchestrator,
		chatLimiter:  deps.ChatLimiter,
	}
	h.initHandlers()
	return h
}

// initHandlers 初始化消息处理器映射
func (h *Handler) initHandlers() {
	h.handlers = map[protocol.MessageType]handlerFunc{
		protocol.MsgMakeMove:        h.handleMakeMove,
		protocol.MsgSendChatMessage: h.handleChat,

		protocol.MsgLeaveRoom: func(c types.ClientInterface, _ *protocol.Message) {
			h.reply(c, h.orchestrator.Leave(c))
		},
		protocol.MsgVoteReady: func(c types.ClientInterface, _ *protocol.Message) {
			h.reply(c, h.orchestrator.VoteReady(c))
		},
		protocol.MsgVoteRematch: func(c types.ClientInterface, _ *protocol.Message) {
			h.reply(c, h.orchestrator.VoteRematch(c))
		},
	}
}

// Handle 处理消息
func (h *Handler) Handle(client types.ClientInterface, msg *protocol.Message) {
	if handler, ok := h.handlers[msg.Type]; ok {
		handler(client, msg)
		return
	}

	log.Warn().Str("type", string(msg.Type)).Str("player", client.GetPlayerID()).
		Int("payload_bytes", len(msg.Payload)).Msg("⚠️ 未知消息类型")
	client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
}

// handleMakeMove 处理落子
func (h *Handler) handleMakeMove(client types.ClientInterface, msg *protocol.Message) {
	payload, err := codec.ParsePayload[protocol.MakeMovePayload](msg)
	if err != nil {
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}
	h.reply(client, h.orchestrator.MakeMove(client, payload.Column))
}

// handleChat 处理房间聊天
func (h *Handler) handleChat(client types.ClientInterface, msg *protocol.Message) {
	payload, err := codec.ParsePayload[protocol.SendChatPayload](msg)
	if err != nil {
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}

	if h.chatLimiter != nil {
		if allowed, reason := h.chatLimiter.AllowChat(client.GetPlayerID()); !allowed {
			client.SendMessage(codec.NewErrorMessageWithText(protocol.ErrCodeRateLimit, reason))
			return
		}
	}

	h.reply(client, h.orchestrator.Chat(client, payload.Text))
}

// reply 校验失败只回给请求者
func (h *Handler) reply(client types.ClientInterface, err error) {
	if err == nil {
		return
	}

	if code := apperrors.CodeOf(err); code != protocol.ErrCodeUnknown {
		client.SendMessage(codec.NewErrorMessage(code))
		return
	}

	log.Error().Err(err).Str("player", client.GetPlayerID()).Msg("❌ 处理消息失败")
	client.SendMessage(codec.NewErrorMessageWithText(protocol.ErrCodeUnknown, err.Error()))
}
