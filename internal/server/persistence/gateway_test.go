package persistence

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/drop-three/internal/game/room"
	"github.com/palemoky/drop-three/internal/server/events"
	"github.com/palemoky/drop-three/internal/server/storage"
	"github.com/palemoky/drop-three/internal/testutil"
	"github.com/palemoky/drop-three/internal/types"
)

func sampleResult(winner *string) room.MatchResult {
	return room.MatchResult{
		RoomCode: "ABC123",
		WinnerID: winner,
		Participants: []types.Identity{
			{ID: "a", Username: "alice"},
			{ID: "b", Username: "bob"},
			{ID: "c", Username: "carol"},
		},
		FinishedAt: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestGateway_Record_Win(t *testing.T) {
	history := new(testutil.MockMatchHistory)
	leaderboard := new(testutil.MockLeaderboard)
	publisher := new(testutil.MockPublisher)

	winner := "b"
	history.On("Record", mock.Anything, mock.MatchedBy(func(rec storage.MatchRecord) bool {
		return rec.RoomCode == "ABC123" && rec.WinnerID != nil && *rec.WinnerID == "b" &&
			len(rec.Participants) == 3 && rec.Participants[0].Username == "alice"
	})).Return(nil).Once()
	leaderboard.On("RecordResult", mock.Anything, "a", "alice", storage.OutcomeLoss).Return(nil).Once()
	leaderboard.On("RecordResult", mock.Anything, "b", "bob", storage.OutcomeWin).Return(nil).Once()
	leaderboard.On("RecordResult", mock.Anything, "c", "carol", storage.OutcomeLoss).Return(nil).Once()
	publisher.On("PublishMatchFinished", mock.Anything, mock.MatchedBy(func(ev events.MatchFinished) bool {
		return ev.RoomCode == "ABC123" && ev.EventID != "" && *ev.WinnerID == "b"
	})).Return(nil).Once()

	g := NewGateway(history, leaderboard, publisher)
	require.NoError(t, g.Record(context.Background(), sampleResult(&winner)))

	history.AssertExpectations(t)
	leaderboard.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestGateway_Record_DrawCountsForEveryone(t *testing.T) {
	leaderboard := new(testutil.MockLeaderboard)
	leaderboard.On("RecordResult", mock.Anything, mock.Anything, mock.Anything, storage.OutcomeDraw).Return(nil).Times(3)

	g := NewGateway(nil, leaderboard, nil)
	require.NoError(t, g.Record(context.Background(), sampleResult(nil)))
	leaderboard.AssertExpectations(t)
}

func TestGateway_Record_FailuresAreIsolated(t *testing.T) {
	history := new(testutil.MockMatchHistory)
	leaderboard := new(testutil.MockLeaderboard)
	publisher := new(testutil.MockPublisher)

	dbErr := errors.New("db down")
	history.On("Record", mock.Anything, mock.Anything).Return(dbErr)
	leaderboard.On("RecordResult", mock.Anything, "a", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	leaderboard.On("RecordResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	publisher.On("PublishMatchFinished", mock.Anything, mock.Anything).Return(nil)

	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })

	g := NewGateway(history, leaderboard, publisher)
	err := g.Record(context.Background(), sampleResult(nil))

	// 失败只通过返回值上报，日志由房间的记录协程统一输出
	assert.Empty(t, buf.String())

	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	leaderboard.AssertNumberOfCalls(t, "RecordResult", 3)
	publisher.AssertCalled(t, "PublishMatchFinished", mock.Anything, mock.Anything)
}

func TestGateway_NoSinks(t *testing.T) {
	g := NewGateway(nil, nil, nil)
	assert.NoError(t, g.Record(context.Background(), sampleResult(nil)))
}
