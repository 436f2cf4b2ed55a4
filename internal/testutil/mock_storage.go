//go:build !production

package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/drop-three/internal/server/events"
	"github.com/palemoky/drop-three/internal/server/storage"
)

// MockLeaderboard 排行榜 mock
type MockLeaderboard struct {
	mock.Mock
}

func (m *MockLeaderboard) RecordResult(ctx context.Context, playerID, playerName string, outcome storage.Outcome) error {
	args := m.Called(ctx, playerID, playerName, outcome)
	return args.Error(0)
}

func (m *MockLeaderboard) GetPlayerStats(ctx context.Context, playerID string) (*storage.PlayerStats, error) {
	args := m.Called(ctx, playerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.PlayerStats), args.Error(1)
}

func (m *MockLeaderboard) GetPlayerRank(ctx context.Context, playerID string) (int64, error) {
	args := m.Called(ctx, playerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLeaderboard) GetLeaderboard(ctx context.Context, period storage.Period, limit int) ([]*storage.LeaderboardEntry, error) {
	args := m.Called(ctx, period, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*storage.LeaderboardEntry), args.Error(1)
}

// MockMatchHistory 对局历史 mock
type MockMatchHistory struct {
	mock.Mock
}

func (m *MockMatchHistory) Record(ctx context.Context, rec storage.MatchRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockMatchHistory) PublicHistory(ctx context.Context, limit int) ([]storage.MatchRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.MatchRecord), args.Error(1)
}

func (m *MockMatchHistory) PersonalHistory(ctx context.Context, playerID string, limit int) ([]storage.MatchRecord, error) {
	args := m.Called(ctx, playerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.MatchRecord), args.Error(1)
}

// MockPublisher 事件发布 mock
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishMatchFinished(ctx context.Context, ev events.MatchFinished) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}
