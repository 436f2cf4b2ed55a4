package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key
	playerStatsKey    = "player:stats:"
	leaderboardKey    = "leaderboard:wins"
	dailyLeaderboard  = "leaderboard:daily:"
	weeklyLeaderboard = "leaderboard:weekly:"
)

// Outcome 单个玩家在一局中的结果
type Outcome int

const (
	OutcomeLoss Outcome = iota
	OutcomeWin
	OutcomeDraw
)

// Period 排行榜周期
type Period string

const (
	PeriodTotal  Period = "total"
	PeriodDaily  Period = "daily"
	PeriodWeekly Period = "weekly"
)

// ParsePeriod 解析周期参数，无法识别时返回总榜
func ParsePeriod(s string) Period {
	switch Period(s) {
	case PeriodDaily, PeriodWeekly:
		return Period(s)
	default:
		return PeriodTotal
	}
}

// PlayerStats 玩家统计数据
type PlayerStats struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`

	TotalGames int `json:"total_games"`
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
	Draws      int `json:"draws"`

	// 连胜/连败
	CurrentStreak int `json:"current_streak"` // 正数为连胜，负数为连败
	MaxWinStreak  int `json:"max_win_streak"`

	LastPlayedAt int64 `json:"last_played_at"`
	CreatedAt    int64 `json:"created_at"`
}

// WinRate 胜率（百分比）
func (s *PlayerStats) WinRate() float64 {
	if s.TotalGames == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.TotalGames) * 100
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank       int     `json:"rank"`
	PlayerID   string  `json:"player_id"`
	PlayerName string  `json:"player_name"`
	Wins       int     `json:"wins"`
	TotalGames int     `json:"total_games"`
	WinRate    float64 `json:"win_rate"`
}

// LeaderboardManager 胜场排行榜
type LeaderboardManager struct {
	redis *redis.Client
	clock clockwork.Clock
}

// NewLeaderboardManager 创建排行榜管理器
func NewLeaderboardManager(client *redis.Client, clock clockwork.Clock) *LeaderboardManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LeaderboardManager{redis: client, clock: clock}
}

// GetPlayerStats 获取玩家统计，没有记录时返回 nil
func (lm *LeaderboardManager) GetPlayerStats(ctx context.Context, playerID string) (*PlayerStats, error) {
	data, err := lm.redis.Get(ctx, playerStatsKey+playerID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var stats PlayerStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (lm *LeaderboardManager) savePlayerStats(ctx context.Context, stats *PlayerStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return lm.redis.Set(ctx, playerStatsKey+stats.PlayerID, data, 0).Err()
}

func (lm *LeaderboardManager) getOrCreateStats(ctx context.Context, playerID, playerName string) (*PlayerStats, error) {
	stats, err := lm.GetPlayerStats(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &PlayerStats{
			PlayerID:   playerID,
			PlayerName: playerName,
			CreatedAt:  lm.clock.Now().Unix(),
		}
	}
	return stats, nil
}

// applyOutcome 更新胜负统计和连胜/连败，平局会中断连胜连败
func applyOutcome(stats *PlayerStats, outcome Outcome) {
	stats.TotalGames++
	switch outcome {
	case OutcomeWin:
		stats.Wins++
		stats.CurrentStreak = max(1, stats.CurrentStreak+1)
	case OutcomeLoss:
		stats.Losses++
		stats.CurrentStreak = min(-1, stats.CurrentStreak-1)
	default:
		stats.Draws++
		stats.CurrentStreak = 0
	}
	stats.MaxWinStreak = max(stats.MaxWinStreak, stats.CurrentStreak)
}

// RecordResult 记录一名玩家的对局结果并更新排行榜
func (lm *LeaderboardManager) RecordResult(ctx context.Context, playerID, playerName string, outcome Outcome) error {
	stats, err := lm.getOrCreateStats(ctx, playerID, playerName)
	if err != nil {
		return err
	}

	stats.PlayerName = playerName
	stats.LastPlayedAt = lm.clock.Now().Unix()
	applyOutcome(stats, outcome)

	if err := lm.savePlayerStats(ctx, stats); err != nil {
		return err
	}
	return lm.updateLeaderboard(ctx, stats, outcome)
}

// updateLeaderboard 总榜记录累计胜场，日榜和周榜记录周期内胜场
func (lm *LeaderboardManager) updateLeaderboard(ctx context.Context, stats *PlayerStats, outcome Outcome) error {
	now := lm.clock.Now()
	dailyKey := lm.periodKey(PeriodDaily, now)
	weeklyKey := lm.periodKey(PeriodWeekly, now)

	periodGain := 0.0
	if outcome == OutcomeWin {
		periodGain = 1
	}

	_, err := lm.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(stats.Wins), Member: stats.PlayerID})

		pipe.ZIncrBy(ctx, dailyKey, periodGain, stats.PlayerID)
		pipe.Expire(ctx, dailyKey, 48*time.Hour)

		pipe.ZIncrBy(ctx, weeklyKey, periodGain, stats.PlayerID)
		pipe.Expire(ctx, weeklyKey, 8*24*time.Hour)
		return nil
	})
	return err
}

func (lm *LeaderboardManager) periodKey(period Period, now time.Time) string {
	switch period {
	case PeriodDaily:
		return dailyLeaderboard + now.Format("2006-01-02")
	case PeriodWeekly:
		year, week := now.ISOWeek()
		return fmt.Sprintf("%s%d-W%02d", weeklyLeaderboard, year, week)
	default:
		return leaderboardKey
	}
}

// GetLeaderboard 获取排行榜（按胜场从高到低）
func (lm *LeaderboardManager) GetLeaderboard(ctx context.Context, period Period, limit int) ([]*LeaderboardEntry, error) {
	if limit <= 0 {
		return []*LeaderboardEntry{}, nil
	}

	key := lm.periodKey(period, lm.clock.Now())
	results, err := lm.redis.ZRevRangeWithScores(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]*LeaderboardEntry, 0, len(results))
	for _, result := range results {
		playerID, ok := result.Member.(string)
		if !ok {
			continue
		}
		stats, err := lm.GetPlayerStats(ctx, playerID)
		if err != nil || stats == nil {
			continue
		}

		entries = append(entries, &LeaderboardEntry{
			Rank:       len(entries) + 1,
			PlayerID:   playerID,
			PlayerName: stats.PlayerName,
			Wins:       int(result.Score),
			TotalGames: stats.TotalGames,
			WinRate:    stats.WinRate(),
		})
	}
	return entries, nil
}

// GetPlayerRank 获取玩家在总榜的排名，未上榜返回 -1
func (lm *LeaderboardManager) GetPlayerRank(ctx context.Context, playerID string) (int64, error) {
	rank, err := lm.redis.ZRevRank(ctx, leaderboardKey, playerID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return -1, nil
		}
		return -1, err
	}
	return rank + 1, nil
}
