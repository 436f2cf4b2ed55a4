package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/drop-three/internal/config"
	"github.com/palemoky/drop-three/internal/game/room"
	"github.com/palemoky/drop-three/internal/protocol"
	"github.com/palemoky/drop-three/internal/protocol/codec"
	"github.com/palemoky/drop-three/internal/server/auth"
	"github.com/palemoky/drop-three/internal/server/storage"
	"github.com/palemoky/drop-three/internal/testutil"
	"github.com/palemoky/drop-three/internal/types"
)

var (
	alice = types.Identity{ID: "u-1", Username: "alice"}
	bob   = types.Identity{ID: "u-2", Username: "bob"}
)

type testServer struct {
	*Server
	resolver *auth.Resolver
	clock    *clockwork.FakeClock
}

func newTestServer(t *testing.T, history MatchHistoryReader, leaderboard LeaderboardReader) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := clockwork.NewFakeClock()
	rooms := room.NewManager(room.Options{Clock: clock})
	t.Cleanup(rooms.Stop)

	resolver := auth.NewResolver("test-secret", "", clock)
	s := NewServer(Deps{
		Config:      config.Default(),
		Rooms:       rooms,
		Auth:        resolver,
		History:     history,
		Leaderboard: leaderboard,
	})
	return &testServer{Server: s, resolver: resolver, clock: clock}
}

func (ts *testServer) token(t *testing.T, id types.Identity) string {
	t.Helper()
	token, err := ts.resolver.Issue(id, time.Hour)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path string, id *types.Identity) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)
	if id != nil {
		req.Header.Set("Authorization", "Bearer "+ts.token(t, *id))
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthAndNotFound(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = ts.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"not found"}`, w.Body.String())
}

func TestRooms_RequireAuth(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	for _, path := range []string{"/api/rooms", "/api/auth/status", "/api/history/personal"} {
		w := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := ts.do(t, http.MethodPost, "/api/rooms", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRooms_CreateAndList(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	w := ts.do(t, http.MethodPost, "/api/rooms", &alice)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		RoomCode string `json:"roomCode"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Len(t, created.RoomCode, 6)

	w = ts.do(t, http.MethodGet, "/api/rooms", &bob)
	require.Equal(t, http.StatusOK, w.Code)

	var rooms []protocol.GameState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, created.RoomCode, rooms[0].RoomCode)
	assert.Equal(t, "alice", rooms[0].HostName)
	assert.Equal(t, "waiting", rooms[0].Status)
}

func TestAuthStatus(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	w := ts.do(t, http.MethodGet, "/api/auth/status", &alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authenticated":true,"user":{"id":"u-1","username":"alice"}}`, w.Body.String())
}

func TestMaintenanceMode(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.EnterMaintenanceMode()
	ts.EnterMaintenanceMode()
	assert.True(t, ts.IsMaintenanceMode())

	w := ts.do(t, http.MethodPost, "/api/rooms", &alice)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"code":5003`)

	w = ts.do(t, http.MethodGet, "/ws/ABC123", &alice)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHistory_Unavailable(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	for _, path := range []string{"/api/history/matches", "/api/history/leaderboard"} {
		w := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
	w := ts.do(t, http.MethodGet, "/api/history/leaderboard/personal", &alice)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHistory_Matches(t *testing.T) {
	history := new(testutil.MockMatchHistory)
	ts := newTestServer(t, history, nil)

	winner := "u-1"
	records := []storage.MatchRecord{{
		ID:           7,
		RoomCode:     "ABC123",
		WinnerID:     &winner,
		Participants: []storage.Participant{{ID: "u-1", Username: "alice"}},
		FinishedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	history.On("PublicHistory", mock.Anything, publicHistoryLimit).Return(records, nil).Once()
	history.On("PersonalHistory", mock.Anything, "u-1", personalHistoryLimit).Return([]storage.MatchRecord{}, nil).Once()

	w := ts.do(t, http.MethodGet, "/api/history/matches", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"roomCode":"ABC123"`)

	w = ts.do(t, http.MethodGet, "/api/history/personal", &alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	history.AssertExpectations(t)
}

func TestHistory_MatchesError(t *testing.T) {
	history := new(testutil.MockMatchHistory)
	ts := newTestServer(t, history, nil)
	history.On("PublicHistory", mock.Anything, publicHistoryLimit).Return(nil, errors.New("db down"))

	w := ts.do(t, http.MethodGet, "/api/history/matches", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHistory_Leaderboard(t *testing.T) {
	lb := new(testutil.MockLeaderboard)
	ts := newTestServer(t, nil, lb)

	entries := []*storage.LeaderboardEntry{{Rank: 1, PlayerID: "u-2", PlayerName: "bob", Wins: 3, TotalGames: 4, WinRate: 75}}
	lb.On("GetLeaderboard", mock.Anything, storage.PeriodWeekly, leaderboardLimit).Return(entries, nil).Once()
	lb.On("GetLeaderboard", mock.Anything, storage.PeriodTotal, leaderboardLimit).Return(entries, nil).Twice()
	lb.On("GetPlayerRank", mock.Anything, "u-1").Return(int64(-1), nil).Once()
	lb.On("GetPlayerStats", mock.Anything, "u-1").Return(nil, nil).Once()

	w := ts.do(t, http.MethodGet, "/api/history/leaderboard?period=WEEKLY", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"player_name":"bob"`)

	w = ts.do(t, http.MethodGet, "/api/history/leaderboard?period=yearly", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/history/leaderboard/personal", &alice)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Top   []storage.LeaderboardEntry `json:"top"`
		Rank  int64                      `json:"rank"`
		Stats *storage.PlayerStats       `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Top, 1)
	assert.Equal(t, int64(-1), body.Rank)
	assert.Nil(t, body.Stats)

	lb.AssertExpectations(t)
}

func TestWebSocket_Rejections(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	w := ts.do(t, http.MethodGet, "/ws/ABC123", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	ts.ipFilter.AddToBlacklist("192.0.2.1")
	w = ts.do(t, http.MethodGet, "/ws/ABC123", &alice)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, len(ts.semaphore), "rejected requests release their slot")
}

// --- WebSocket 端到端 ---

func dial(t *testing.T, srv *httptest.Server, code, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + code + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg protocol.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return &msg
}

// readUntil 跳过其它消息直到收到指定类型
func readUntil(t *testing.T, conn *websocket.Conn, want protocol.MessageType) *protocol.Message {
	t.Helper()
	for {
		msg := readMessage(t, conn)
		if msg.Type == want {
			return msg
		}
	}
}

func TestWebSocket_JoinAndPlay(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	code, err := ts.rooms.CreateRoom(alice)
	require.NoError(t, err)

	conn := dial(t, srv, strings.ToLower(code), ts.token(t, alice))

	stateMsg := readUntil(t, conn, protocol.MsgGameStateUpdate)
	state, err := codec.ParsePayload[protocol.GameStatePayload](stateMsg)
	require.NoError(t, err)
	assert.Equal(t, code, state.GameState.RoomCode)
	assert.Equal(t, []string{"u-1"}, state.GameState.PlayerOrder)
	assert.Equal(t, 1, ts.GetOnlineCount())

	// 等待阶段不能投准备票
	require.NoError(t, conn.WriteJSON(protocol.Message{Type: protocol.MsgVoteReady}))
	errMsg := readUntil(t, conn, protocol.MsgError)
	payload, err := codec.ParsePayload[protocol.ErrorPayload](errMsg)
	require.NoError(t, err)
	assert.Equal(t, protocol.ErrCodeWrongPhase, payload.Code)

	// 非法 JSON
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	errMsg = readUntil(t, conn, protocol.MsgError)
	payload, err = codec.ParsePayload[protocol.ErrorPayload](errMsg)
	require.NoError(t, err)
	assert.Equal(t, protocol.ErrCodeInvalidMsg, payload.Code)

	// 聊天广播
	chat := codec.MustNewMessage(protocol.MsgSendChatMessage, protocol.SendChatPayload{Text: "hello"})
	require.NoError(t, conn.WriteJSON(chat))
	newMsg := readUntil(t, conn, protocol.MsgNewMessage)
	assert.JSONEq(t, `{"username":"alice","text":"hello"}`, string(newMsg.Payload))
}

func TestWebSocket_UnknownRoomIsClosed(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	conn := dial(t, srv, "ZZZZZZ", ts.token(t, alice))

	msg := readMessage(t, conn)
	require.Equal(t, protocol.MsgError, msg.Type)
	payload, err := codec.ParsePayload[protocol.ErrorPayload](msg)
	require.NoError(t, err)
	assert.Equal(t, protocol.ErrCodeRoomNotFound, payload.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	assert.Eventually(t, func() bool { return ts.GetOnlineCount() == 0 && len(ts.semaphore) == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestShutdown_ClosesRooms(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	code, err := ts.rooms.CreateRoom(alice)
	require.NoError(t, err)
	conn := dial(t, srv, code, ts.token(t, alice))
	readUntil(t, conn, protocol.MsgGameStateUpdate)

	ts.GracefulShutdown(time.Second)

	closed := readUntil(t, conn, protocol.MsgRoomClosed)
	assert.Contains(t, string(closed.Payload), "停机维护")
	assert.True(t, ts.IsMaintenanceMode())
}
