package room

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/apperrors"
	"github.com/palemoky/drop-three/internal/protocol"
	"github.com/palemoky/drop-three/internal/protocol/codec"
)

// project 生成房间的对外投影，只暴露在线标记，不暴露连接句柄
func (m *Manager) project(r *Room) *protocol.GameState {
	state := &protocol.GameState{
		RoomCode:           r.Code,
		HostID:             r.HostID,
		HostName:           r.HostName(),
		Players:            make([]protocol.PlayerInfo, 0, len(r.PlayerOrder)),
		Board:              r.Board.Cells(),
		PlayerOrder:        cloneOrEmpty(r.PlayerOrder),
		PlayerOrderHistory: cloneOrEmpty(r.PlayerOrderHistory),
		CurrentPlayerIndex: r.CurrentPlayerIndex,
		Status:             r.Status.String(),
		IsDraw:             r.IsDraw,
		TurnEndsAt:         unixMilli(r.TurnDeadline),
		ReadyVotes:         cloneOrEmpty(r.ReadyVotes),
		RematchVotes:       cloneOrEmpty(r.RematchVotes),
		RematchVoteEndsAt:  unixMilli(r.RematchDeadline),
	}
	if r.Winner != nil {
		winner := *r.Winner
		state.Winner = &winner
	}

	for _, id := range r.PlayerOrder {
		p := r.Players[id]
		state.Players = append(state.Players, protocol.PlayerInfo{
			ID:                p.ID,
			Username:          p.Username,
			IsOnline:          p.IsOnline(),
			InactivityStrikes: p.InactivityStrikes,
		})
	}
	return state
}

func cloneOrEmpty(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	return slices.Clone(ids)
}

func unixMilli(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// broadcast 向房间内所有在线连接推送最新状态
func (m *Manager) broadcast(r *Room) {
	state := m.project(r)
	msg := codec.NewGameStateMessage(state)
	for _, t := range r.onlineTransports() {
		t.SendMessage(msg)
	}
	if m.opts.Mirror != nil {
		m.opts.Mirror.Save(state)
	}
}

// mirror 同步房间快照到外部镜像
func (m *Manager) mirror(r *Room) {
	if m.opts.Mirror != nil {
		m.opts.Mirror.Save(m.project(r))
	}
}

// relay 向房间内所有在线连接转发消息
func (m *Manager) relay(r *Room, msg *protocol.Message) {
	for _, t := range r.onlineTransports() {
		t.SendMessage(msg)
	}
}

// chat 房间聊天，原样转发，不做持久化
func (m *Manager) chat(r *Room, playerID, text string) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.ErrChatEmpty
	}
	if utf8.RuneCountInString(text) > m.opts.ChatMaxLength {
		return apperrors.ErrChatTooLong
	}

	p := r.Players[playerID]
	m.relay(r, codec.MustNewMessage(protocol.MsgNewMessage, protocol.NewMessagePayload{
		Username: p.Username,
		Text:     text,
	}))
	log.Debug().Str("room", r.Code).Str("player", playerID).Msg("💬 聊天消息")
	return nil
}
