package room

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/apperrors"
	"github.com/palemoky/drop-three/internal/protocol/codec"
	"github.com/palemoky/drop-three/internal/types"
)

// Reason 玩家离开房间的原因
type Reason int

const (
	ReasonVoluntary  Reason = iota // 主动离开
	ReasonTimeout                  // 断线超时未重连
	ReasonInactivity               // 连续超时未落子
	ReasonNoRematch                // 未参与再来一局投票
)

func (r Reason) String() string {
	switch r {
	case ReasonVoluntary:
		return "voluntary"
	case ReasonTimeout:
		return "timeout"
	case ReasonInactivity:
		return "inactivity"
	case ReasonNoRematch:
		return "no_rematch"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// closeNotice 被动移出时发给离开者的 ROOM_CLOSED 文案
func (r Reason) closeNotice() string {
	switch r {
	case ReasonTimeout:
		return "⌛ 重连超时，你已被移出房间"
	case ReasonInactivity:
		return "😴 连续超时未操作，你已被移出房间"
	case ReasonNoRematch:
		return "👋 未参与再来一局投票，你已离开房间"
	default:
		return "👋 你已离开房间"
	}
}

// bind 准入检查并绑定连接
func (m *Manager) bind(t types.Transport, code string, id types.Identity) error {
	r, ok := m.rooms[code]
	if !ok {
		return m.reject(t, apperrors.ErrRoomNotFound)
	}

	if p, seated := r.Players[id.ID]; seated {
		if p.IsOnline() {
			log.Warn().Str("room", code).Str("player", id.ID).Msg("⚠️ 重复会话被拒绝")
			return m.reject(t, apperrors.ErrDuplicateSession)
		}
		m.reconnectPlayer(r, p, t)
		return nil
	}

	if r.Status != StatusWaiting || len(r.PlayerOrder) >= MaxPlayers {
		return m.reject(t, apperrors.ErrNotAccepting)
	}

	r.seat(&PlayerSession{ID: id.ID, Username: id.Username, Conn: t})
	m.bindings[t.GetID()] = binding{code: code, playerID: id.ID}
	if r.HostID == "" {
		r.HostID = id.ID
		r.hostName = id.Username
	}

	log.Info().Str("room", code).Str("player", id.ID).Int("seated", len(r.PlayerOrder)).Msg("🚪 玩家加入房间")
	m.relay(r, codec.NewInfoMessage(fmt.Sprintf("👋 %s 加入了房间", id.Username)))

	if len(r.PlayerOrder) == MaxPlayers {
		if m.transition(r, StatusReadyCheck) {
			r.ReadyVotes = r.ReadyVotes[:0]
		}
	}
	m.broadcast(r)
	return nil
}

// reject 准入失败：先发送 ERROR 再关闭连接
func (m *Manager) reject(t types.Transport, err *apperrors.GameError) error {
	t.SendMessage(codec.NewErrorMessage(err.Code))
	t.Close()
	return err
}

// reconnectPlayer 离线玩家重新连上，保留座次、超时次数和投票
func (m *Manager) reconnectPlayer(r *Room, p *PlayerSession, t types.Transport) {
	m.cancelReconnectTimer(r.Code, p.ID)
	p.Conn = t
	m.bindings[t.GetID()] = binding{code: r.Code, playerID: p.ID}

	log.Info().Str("room", r.Code).Str("player", p.ID).Msg("🔌 玩家重新连接")
	m.relay(r, codec.NewInfoMessage(fmt.Sprintf("🔌 %s 重新连接", p.Username)))
	m.broadcast(r)
}

// onClose 连接关闭，玩家保留座位并进入重连等待
func (m *Manager) onClose(t types.Transport) {
	b, ok := m.bindings[t.GetID()]
	if !ok {
		return
	}
	delete(m.bindings, t.GetID())

	r, ok := m.rooms[b.code]
	if !ok {
		return
	}
	p, seated := r.Players[b.playerID]
	if !seated || p.Conn == nil || p.Conn.GetID() != t.GetID() {
		return
	}

	p.Conn = nil
	log.Info().Str("room", r.Code).Str("player", p.ID).Msg("📴 玩家断线")
	m.relay(r, codec.NewInfoMessage(fmt.Sprintf("📴 %s 断开连接，等待重连 %d 秒",
		p.Username, int(m.opts.ReconnectTimeout.Seconds()))))
	m.broadcast(r)

	m.armReconnectTimer(r.Code, p.ID)
}

// armReconnectTimer 为断线玩家启动重连计时器
func (m *Manager) armReconnectTimer(code, playerID string) {
	m.cancelReconnectTimer(code, playerID)

	var h *timerHandle
	h = m.arm(m.opts.ReconnectTimeout, func() {
		if m.reconnect[code][playerID] != h {
			return
		}
		m.dropReconnectTimer(code, playerID)

		r, ok := m.rooms[code]
		if !ok {
			return
		}
		p, seated := r.Players[playerID]
		if !seated || p.IsOnline() {
			return
		}
		log.Info().Str("room", code).Str("player", playerID).Msg("⌛ 重连超时，移出房间")
		m.leave(r, playerID, ReasonTimeout)
	})

	if m.reconnect[code] == nil {
		m.reconnect[code] = make(map[string]*timerHandle)
	}
	m.reconnect[code][playerID] = h
}

func (m *Manager) cancelReconnectTimer(code, playerID string) {
	if h, ok := m.reconnect[code][playerID]; ok {
		h.cancel()
		m.dropReconnectTimer(code, playerID)
	}
}

func (m *Manager) dropReconnectTimer(code, playerID string) {
	delete(m.reconnect[code], playerID)
	if len(m.reconnect[code]) == 0 {
		delete(m.reconnect, code)
	}
}

// cancelReconnectTimers 取消房间内所有重连计时器
func (m *Manager) cancelReconnectTimers(code string) {
	for _, h := range m.reconnect[code] {
		h.cancel()
	}
	delete(m.reconnect, code)
}

// leave 玩家离开房间
func (m *Manager) leave(r *Room, playerID string, reason Reason) {
	p, seated := r.Players[playerID]
	if !seated {
		return
	}
	prevStatus := r.Status
	wasHost := r.HostID == playerID

	removedIdx := r.unseat(playerID)
	m.cancelReconnectTimer(r.Code, playerID)
	if p.Conn != nil {
		delete(m.bindings, p.Conn.GetID())
		if reason != ReasonVoluntary {
			p.Conn.SendMessage(codec.NewRoomClosedMessage(reason.closeNotice()))
		}
		p.Conn.Close()
		p.Conn = nil
	}

	log.Info().Str("room", r.Code).Str("player", playerID).Str("reason", reason.String()).
		Int("remaining", len(r.PlayerOrder)).Msg("🚶 玩家离开房间")

	if len(r.Players) == 0 {
		m.deleteRoom(r)
		return
	}

	if reason == ReasonInactivity {
		m.relay(r, codec.NewInfoMessage(fmt.Sprintf("😴 %s 因连续超时被移出房间", p.Username)))
	} else {
		m.relay(r, codec.NewInfoMessage(fmt.Sprintf("🚶 %s 离开了游戏", p.Username)))
	}
	if wasHost && r.promoteHost() {
		m.relay(r, codec.NewInfoMessage(fmt.Sprintf("👑 %s 成为新房主", r.HostName())))
	}

	switch prevStatus {
	case StatusReadyCheck:
		m.resetToWaiting(r)
	case StatusPlaying:
		if len(r.PlayerOrder) < 2 {
			m.resetToWaiting(r)
			break
		}
		// 离开的座位在当前玩家之前时下标前移，轮到的仍是同一个人
		if removedIdx >= 0 && removedIdx < r.CurrentPlayerIndex {
			r.CurrentPlayerIndex--
		}
		r.CurrentPlayerIndex %= len(r.PlayerOrder)
		m.armTurnClock(r)
		m.relay(r, codec.NewInfoMessage(fmt.Sprintf("▶️ 对局继续，剩余 %d 名玩家", len(r.PlayerOrder))))
	case StatusFinished:
		if !r.resolvingRematch {
			m.resolveRematch(r)
			return
		}
	}

	m.broadcast(r)
}

// resetToWaiting 回到等待状态，清空棋盘、投票和开局座次
func (m *Manager) resetToWaiting(r *Room) {
	r.turnTimer.cancel()
	r.rematchTimer.cancel()
	r.turnTimer, r.rematchTimer = nil, nil

	m.transition(r, StatusWaiting)
	r.resetBoard()
	r.ReadyVotes = nil
	r.RematchVotes = nil
	r.PlayerOrderHistory = nil
	r.historyNames = nil
	r.RematchDeadline = time.Time{}
	for _, p := range r.Players {
		p.InactivityStrikes = 0
	}
	r.promoteHost()

	log.Info().Str("room", r.Code).Int("seated", len(r.PlayerOrder)).Msg("⏸️ 房间回到等待状态")
}

// transition 状态迁移，失败只记录日志
func (m *Manager) transition(r *Room, next Status) bool {
	if err := r.transition(next); err != nil {
		log.Error().Err(err).Str("room", r.Code).Msg("❌ 非法状态迁移")
		return false
	}
	return true
}
