// Package persistence 把对局结果分发到各个存储：对局历史、排行榜和事件总线。
// 每个存储都是可选的，任何一个失败都不会影响其他存储，也不会影响房间状态。
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/game/room"
	"github.com/palemoky/drop-three/internal/server/events"
	"github.com/palemoky/drop-three/internal/server/storage"
)

// MatchHistory 对局历史存储
type MatchHistory interface {
	Record(ctx context.Context, rec storage.MatchRecord) error
}

// Leaderboard 排行榜
type Leaderboard interface {
	RecordResult(ctx context.Context, playerID, playerName string, outcome storage.Outcome) error
}

// EventPublisher 对局事件发布
type EventPublisher interface {
	PublishMatchFinished(ctx context.Context, ev events.MatchFinished) error
}

// Gateway 对局结果分发
type Gateway struct {
	history     MatchHistory
	leaderboard Leaderboard
	publisher   EventPublisher
}

var _ room.Recorder = (*Gateway)(nil)

// NewGateway 创建分发器，不需要的存储传 nil
func NewGateway(history MatchHistory, leaderboard Leaderboard, publisher EventPublisher) *Gateway {
	return &Gateway{history: history, leaderboard: leaderboard, publisher: publisher}
}

// Record 依次写入各个存储，返回所有失败的合并错误，由调用方统一记录日志
func (g *Gateway) Record(ctx context.Context, result room.MatchResult) error {
	var errs []error

	if g.history != nil {
		if err := g.history.Record(ctx, toMatchRecord(result)); err != nil {
			errs = append(errs, fmt.Errorf("history: %w", err))
		}
	}

	if g.leaderboard != nil {
		for _, p := range result.Participants {
			if err := g.leaderboard.RecordResult(ctx, p.ID, p.Username, outcomeFor(result, p.ID)); err != nil {
				errs = append(errs, fmt.Errorf("leaderboard %s: %w", p.ID, err))
			}
		}
	}

	if g.publisher != nil {
		ev := events.MatchFinished{
			EventID:      uuid.NewString(),
			RoomCode:     result.RoomCode,
			WinnerID:     result.WinnerID,
			Participants: result.Participants,
			FinishedAt:   result.FinishedAt,
		}
		if err := g.publisher.PublishMatchFinished(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("events: %w", err))
		}
	}

	if len(errs) == 0 {
		log.Info().Str("room", result.RoomCode).Int("participants", len(result.Participants)).Msg("💾 对局结果已记录")
	}
	return errors.Join(errs...)
}

func toMatchRecord(result room.MatchResult) storage.MatchRecord {
	participants := make([]storage.Participant, 0, len(result.Participants))
	for _, p := range result.Participants {
		participants = append(participants, storage.Participant{ID: p.ID, Username: p.Username})
	}
	return storage.MatchRecord{
		RoomCode:     result.RoomCode,
		WinnerID:     result.WinnerID,
		Participants: participants,
		FinishedAt:   result.FinishedAt,
	}
}

func outcomeFor(result room.MatchResult, playerID string) storage.Outcome {
	switch {
	case result.WinnerID == nil:
		return storage.OutcomeDraw
	case *result.WinnerID == playerID:
		return storage.OutcomeWin
	default:
		return storage.OutcomeLoss
	}
}
