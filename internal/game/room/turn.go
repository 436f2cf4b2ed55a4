package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/apperrors"
	"github.com/palemoky/drop-three/internal/game/engine"
	"github.com/palemoky/drop-three/internal/logger"
	"github.com/palemoky/drop-three/internal/protocol/codec"
	"github.com/palemoky/drop-three/internal/types"
)

// armTurnClock 重置回合计时器，旧计时器总是先被取消
func (m *Manager) armTurnClock(r *Room) {
	r.turnTimer.cancel()

	code := r.Code
	var h *timerHandle
	h = m.arm(m.opts.TurnTimeout, func() {
		m.onTurnTimeout(code, h)
	})
	r.turnTimer = h
	r.TurnDeadline = m.clock.Now().Add(m.opts.TurnTimeout)
}

// onTurnTimeout 回合超时：在线玩家记一次超时，离线玩家直接跳过
func (m *Manager) onTurnTimeout(code string, h *timerHandle) {
	r, ok := m.rooms[code]
	if !ok || r.turnTimer != h || r.Status != StatusPlaying {
		return
	}
	p := r.currentPlayer()
	if p == nil {
		return
	}

	if p.IsOnline() {
		p.InactivityStrikes++
		log.Info().Str("room", code).Str("player", p.ID).
			Int("strikes", p.InactivityStrikes).Msg("⏰ 回合超时")

		if p.InactivityStrikes >= m.opts.MaxInactiveTurns {
			m.leave(r, p.ID, ReasonInactivity)
			return
		}
		m.relay(r, codec.NewInfoMessage(fmt.Sprintf("⏰ %s 超时未落子（%d/%d）",
			p.Username, p.InactivityStrikes, m.opts.MaxInactiveTurns)))
	} else {
		log.Debug().Str("room", code).Str("player", p.ID).Msg("⏭️ 离线玩家回合被跳过")
		m.relay(r, codec.NewInfoMessage(fmt.Sprintf("⏭️ %s 离线，跳过回合", p.Username)))
	}

	r.CurrentPlayerIndex = (r.CurrentPlayerIndex + 1) % len(r.PlayerOrder)
	m.armTurnClock(r)
	m.broadcast(r)
}

// makeMove 落子
func (m *Manager) makeMove(r *Room, playerID string, column int) error {
	if r.Status != StatusPlaying {
		return apperrors.ErrGameNotActive
	}

	res, err := engine.Apply(engine.State{
		Board:              r.Board,
		PlayerOrder:        r.PlayerOrder,
		CurrentPlayerIndex: r.CurrentPlayerIndex,
	}, playerID, column)
	if err != nil {
		return moveError(err)
	}

	r.Board = res.Board
	r.CurrentPlayerIndex = res.NextPlayerIndex
	if p, ok := r.Players[playerID]; ok {
		p.InactivityStrikes = 0
	}

	switch res.Outcome {
	case engine.OutcomeWin, engine.OutcomeDraw:
		m.finishGame(r, res)
	default:
		m.armTurnClock(r)
	}

	m.broadcast(r)
	return nil
}

// finishGame 一局结束：停止回合计时、启动再来一局投票并异步记录战绩
func (m *Manager) finishGame(r *Room, res engine.Result) {
	if !m.transition(r, StatusFinished) {
		return
	}
	r.turnTimer.cancel()
	r.turnTimer = nil
	r.TurnDeadline = time.Time{}

	if res.Outcome == engine.OutcomeWin {
		winner := res.Winner
		r.Winner = &winner
		m.relay(r, codec.NewInfoMessage(fmt.Sprintf("🏆 %s 获胜", r.Players[winner].Username)))
	} else {
		r.IsDraw = true
		m.relay(r, codec.NewInfoMessage("🤝 棋盘已满，平局"))
	}
	log.Info().Str("room", r.Code).Str("winner", res.Winner).Bool("draw", r.IsDraw).Msg("🏁 对局结束")

	m.startRematchBallot(r)
	m.recordAsync(r)
}

// moveError 把引擎错误映射为对外错误
func moveError(err error) error {
	switch {
	case errors.Is(err, engine.ErrNotYourTurn):
		return apperrors.ErrNotYourTurn
	case errors.Is(err, engine.ErrInvalidColumn):
		return apperrors.ErrInvalidColumn
	case errors.Is(err, engine.ErrColumnFull):
		return apperrors.ErrColumnFull
	default:
		return err
	}
}

// recordAsync 异步记录对局结果，失败只记日志，不影响房间状态
func (m *Manager) recordAsync(r *Room) {
	if m.opts.Recorder == nil {
		return
	}

	result := MatchResult{
		RoomCode:     r.Code,
		Participants: make([]types.Identity, 0, len(r.PlayerOrderHistory)),
		FinishedAt:   m.clock.Now(),
	}
	if r.Winner != nil {
		winner := *r.Winner
		result.WinnerID = &winner
	}
	for _, id := range r.PlayerOrderHistory {
		result.Participants = append(result.Participants, types.Identity{ID: id, Username: r.historyNames[id]})
	}

	recorder, timeout := m.opts.Recorder, m.opts.RecordTimeout
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.LogPanic(rec)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := recorder.Record(ctx, result); err != nil {
			log.Warn().Err(err).Str("room", result.RoomCode).Msg("⚠️ 对局记录失败")
		}
	}()
}
