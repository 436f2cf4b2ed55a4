package room

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/drop-three/internal/protocol"
	"github.com/palemoky/drop-three/internal/testutil"
	"github.com/palemoky/drop-three/internal/types"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var (
	alice = types.Identity{ID: "a", Username: "alice"}
	bob   = types.Identity{ID: "b", Username: "bob"}
	carol = types.Identity{ID: "c", Username: "carol"}
	dave  = types.Identity{ID: "d", Username: "dave"}
)

// recordingRecorder 收集对局记录
type recordingRecorder struct {
	results chan MatchResult
	err     error
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{results: make(chan MatchResult, 8)}
}

func (r *recordingRecorder) Record(_ context.Context, result MatchResult) error {
	r.results <- result
	return r.err
}

// recordingMirror 收集镜像调用
type recordingMirror struct {
	mu      sync.Mutex
	saved   map[string]*protocol.GameState
	removed []string
}

func newRecordingMirror() *recordingMirror {
	return &recordingMirror{saved: make(map[string]*protocol.GameState)}
}

func (m *recordingMirror) Save(state *protocol.GameState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[state.RoomCode] = state
}

func (m *recordingMirror) Remove(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, code)
	m.removed = append(m.removed, code)
}

func (m *recordingMirror) snapshot(code string) (*protocol.GameState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.saved[code]
	return s, ok
}

func (m *recordingMirror) wasRemoved(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.removed, code)
}

type fixture struct {
	t        *testing.T
	clock    *clockwork.FakeClock
	m        *Manager
	recorder *recordingRecorder
	mirror   *recordingMirror
	conns    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		clock:    clockwork.NewFakeClock(),
		recorder: newRecordingRecorder(),
		mirror:   newRecordingMirror(),
	}
	f.m = NewManager(Options{
		Clock:    f.clock,
		Recorder: f.recorder,
		Mirror:   f.mirror,
	})
	t.Cleanup(f.m.Stop)
	return f
}

// connect 为玩家建立一条新连接并绑定到房间
func (f *fixture) connect(code string, id types.Identity) (*testutil.RecordingClient, error) {
	f.conns++
	c := testutil.NewRecordingClient(fmt.Sprintf("conn-%s-%d", id.ID, f.conns), id.ID, id.Username)
	c.RoomCode = code
	return c, f.m.Bind(c, code, id)
}

func (f *fixture) mustConnect(code string, id types.Identity) *testutil.RecordingClient {
	f.t.Helper()
	c, err := f.connect(code, id)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) state(code string) *protocol.GameState {
	f.t.Helper()
	s, ok := f.m.GetRoom(code)
	require.True(f.t, ok, "room %s should exist", code)
	assertConsistent(f.t, s)
	return s
}

// fullRoom 建房并让三名玩家入座，进入 readyCheck
func (f *fixture) fullRoom() (string, []*testutil.RecordingClient) {
	f.t.Helper()
	code, err := f.m.CreateRoom(alice)
	require.NoError(f.t, err)
	clients := []*testutil.RecordingClient{
		f.mustConnect(code, alice),
		f.mustConnect(code, bob),
		f.mustConnect(code, carol),
	}
	return code, clients
}

// playingRoom 三人全部准备，进入 playing，轮到 alice
func (f *fixture) playingRoom() (string, []*testutil.RecordingClient) {
	f.t.Helper()
	code, clients := f.fullRoom()
	for _, c := range clients {
		require.NoError(f.t, f.m.VoteReady(c))
	}
	require.Equal(f.t, "playing", f.state(code).Status)
	return code, clients
}

// finishedRoom alice 在底行连成三子获胜
func (f *fixture) finishedRoom() (string, []*testutil.RecordingClient) {
	f.t.Helper()
	code, clients := f.playingRoom()
	a, b, c := clients[0], clients[1], clients[2]
	moves := []struct {
		client *testutil.RecordingClient
		column int
	}{
		{a, 0}, {b, 5}, {c, 9},
		{a, 1}, {b, 5}, {c, 9},
		{a, 2},
	}
	for _, mv := range moves {
		require.NoError(f.t, f.m.MakeMove(mv.client, mv.column))
	}
	require.Equal(f.t, "finished", f.state(code).Status)
	return code, clients
}

// eventually 等待计时器回调生效
func (f *fixture) eventually(code string, cond func(s *protocol.GameState) bool, msg string) {
	f.t.Helper()
	require.Eventually(f.t, func() bool {
		s, ok := f.m.GetRoom(code)
		return ok && cond(s)
	}, waitFor, tick, msg)
}

func (f *fixture) eventuallyGone(code string) {
	f.t.Helper()
	require.Eventually(f.t, func() bool {
		_, ok := f.m.GetRoom(code)
		return !ok
	}, waitFor, tick, "room %s should be deleted", code)
}

func playerInfo(s *protocol.GameState, id string) (protocol.PlayerInfo, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return protocol.PlayerInfo{}, false
}

// assertConsistent 每次变更后都必须成立的约束
func assertConsistent(t *testing.T, s *protocol.GameState) {
	t.Helper()

	seen := make(map[string]bool, len(s.PlayerOrder))
	for _, id := range s.PlayerOrder {
		assert.False(t, seen[id], "duplicate player %s in order", id)
		seen[id] = true
		_, ok := playerInfo(s, id)
		assert.True(t, ok, "player %s in order but not seated", id)
	}
	assert.Len(t, s.Players, len(s.PlayerOrder))
	assert.LessOrEqual(t, len(s.PlayerOrder), MaxPlayers)

	if s.Status == "playing" {
		assert.Less(t, s.CurrentPlayerIndex, len(s.PlayerOrder))
		assert.NotNil(t, s.TurnEndsAt)
	}
	if s.Winner != nil {
		assert.Equal(t, "finished", s.Status)
	}
	assert.Len(t, s.Board, 9)
	for _, row := range s.Board {
		assert.Len(t, row, 10)
	}
}
