package room

import (
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/apperrors"
	"github.com/palemoky/drop-three/internal/protocol/codec"
)

// voteReady 开局准备投票，全员准备后开局
func (m *Manager) voteReady(r *Room, playerID string) error {
	if r.Status != StatusReadyCheck {
		return apperrors.ErrWrongPhase
	}
	if hasVote(r.ReadyVotes, playerID) {
		return apperrors.ErrAlreadyVoted
	}

	r.ReadyVotes = append(r.ReadyVotes, playerID)
	log.Debug().Str("room", r.Code).Str("player", playerID).
		Int("votes", len(r.ReadyVotes)).Msg("✋ 准备投票")

	if r.allVoted(r.ReadyVotes) {
		m.startGame(r)
		m.relay(r, codec.NewInfoMessage("🎮 全员准备，对局开始"))
	}
	m.broadcast(r)
	return nil
}

// startGame 开始新的一局，记录开局座次并启动回合计时
func (m *Manager) startGame(r *Room) {
	if !m.transition(r, StatusPlaying) {
		return
	}
	r.resetBoard()
	r.PlayerOrderHistory = slices.Clone(r.PlayerOrder)
	r.historyNames = make(map[string]string, len(r.PlayerOrder))
	for _, id := range r.PlayerOrder {
		r.historyNames[id] = r.Players[id].Username
	}
	r.ReadyVotes = nil
	r.RematchVotes = nil
	r.RematchDeadline = time.Time{}
	for _, p := range r.Players {
		p.InactivityStrikes = 0
	}
	m.armTurnClock(r)

	log.Info().Str("room", r.Code).Strs("order", r.PlayerOrder).Msg("🎮 对局开始")
}

// startRematchBallot 进入结算后启动再来一局投票
func (m *Manager) startRematchBallot(r *Room) {
	r.rematchTimer.cancel()
	r.RematchVotes = nil

	code := r.Code
	var h *timerHandle
	h = m.arm(m.opts.RematchTimeout, func() {
		r, ok := m.rooms[code]
		if !ok || r.rematchTimer != h || r.Status != StatusFinished {
			return
		}
		log.Info().Str("room", code).Msg("⏰ 再来一局投票截止")
		m.resolveRematch(r)
	})
	r.rematchTimer = h
	r.RematchDeadline = m.clock.Now().Add(m.opts.RematchTimeout)
}

// voteRematch 再来一局投票，全员投票后立即结算
func (m *Manager) voteRematch(r *Room, playerID string) error {
	if r.Status != StatusFinished {
		return apperrors.ErrWrongPhase
	}
	if hasVote(r.RematchVotes, playerID) {
		return apperrors.ErrAlreadyVoted
	}

	r.RematchVotes = append(r.RematchVotes, playerID)
	log.Debug().Str("room", r.Code).Str("player", playerID).
		Int("votes", len(r.RematchVotes)).Msg("🔁 再来一局投票")

	if r.allVoted(r.RematchVotes) {
		m.resolveRematch(r)
		return nil
	}
	m.broadcast(r)
	return nil
}

// resolveRematch 结算再来一局投票：未投票者视为离开，
// 剩余恰好满员且全部同意时开始新一局，否则回到等待状态
func (m *Manager) resolveRematch(r *Room) {
	r.rematchTimer.cancel()
	r.rematchTimer = nil
	r.RematchDeadline = time.Time{}

	r.resolvingRematch = true
	for _, id := range slices.Clone(r.PlayerOrder) {
		if hasVote(r.RematchVotes, id) {
			continue
		}
		if p, ok := r.Players[id]; ok {
			m.relay(r, codec.NewInfoMessage(fmt.Sprintf("👋 %s 未参与再来一局投票", p.Username)))
		}
		m.leave(r, id, ReasonNoRematch)
		if _, alive := m.rooms[r.Code]; !alive {
			return
		}
	}
	r.resolvingRematch = false

	if len(r.PlayerOrder) == MaxPlayers && r.allVoted(r.RematchVotes) {
		m.startGame(r)
		m.relay(r, codec.NewInfoMessage("🔁 再来一局开始"))
	} else {
		m.resetToWaiting(r)
		m.relay(r, codec.NewInfoMessage("⏸️ 人数不足，回到等待状态"))
	}
	m.broadcast(r)
}
