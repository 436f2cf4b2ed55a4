package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/drop-three/internal/protocol"
)

func newTestRedisStore(t *testing.T, instanceID string) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewRedisStore(client, instanceID)
	t.Cleanup(store.Close)
	return store, mr
}

func testState(code string) *protocol.GameState {
	return &protocol.GameState{
		RoomCode:    code,
		HostID:      "a",
		HostName:    "alice",
		Status:      "waiting",
		PlayerOrder: []string{"a"},
		Players:     []protocol.PlayerInfo{{ID: "a", Username: "alice", IsOnline: true}},
	}
}

// mirroredState 直接从 miniredis 读出房间快照，不存在时返回 nil
func mirroredState(t *testing.T, mr *miniredis.Miniredis, code string) *protocol.GameState {
	t.Helper()
	if !mr.Exists(roomKeyPrefix + code) {
		return nil
	}
	data, err := mr.Get(roomKeyPrefix + code)
	require.NoError(t, err)

	var state protocol.GameState
	require.NoError(t, json.Unmarshal([]byte(data), &state))
	return &state
}

func TestRedisStore_SaveDeleteRoom(t *testing.T) {
	store, mr := newTestRedisStore(t, "game-server-1")
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, store.SaveRoom(ctx, testState("ABC123")))

	loaded := mirroredState(t, mr, "ABC123")
	require.NotNil(t, loaded)
	assert.Equal(t, "alice", loaded.HostName)
	assert.Equal(t, []string{"a"}, loaded.PlayerOrder)
	assert.True(t, mr.TTL(roomKeyPrefix+"ABC123") > 0)
	assert.Equal(t, "game-server-1", mr.HGet(roomServerMap, "ABC123"))

	require.NoError(t, store.DeleteRoom(ctx, "ABC123"))
	assert.Nil(t, mirroredState(t, mr, "ABC123"))
	assert.Empty(t, mr.HGet(roomServerMap, "ABC123"))
}

func TestRedisStore_MirrorQueueKeepsOrder(t *testing.T) {
	store, mr := newTestRedisStore(t, "game-server-1")
	defer mr.Close()

	first := testState("ROOM01")
	second := testState("ROOM01")
	second.Status = "readyCheck"
	store.Save(first)
	store.Save(second)
	store.Save(testState("ROOM02"))
	store.Remove("ROOM02")
	store.Close()

	loaded := mirroredState(t, mr, "ROOM01")
	require.NotNil(t, loaded)
	assert.Equal(t, "readyCheck", loaded.Status)
	assert.Nil(t, mirroredState(t, mr, "ROOM02"))

	// 关闭后的更新被忽略
	store.Save(testState("ROOM03"))
	assert.False(t, mr.Exists(roomKeyPrefix+"ROOM03"))
}

func TestRedisStore_ReleaseInstance(t *testing.T) {
	store, mr := newTestRedisStore(t, "game-server-1")
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, store.SaveRoom(ctx, testState("MINE01")))
	require.NoError(t, store.SaveRoom(ctx, testState("MINE02")))
	mr.HSet(roomServerMap, "OTHER1", "game-server-2")

	released, err := store.ReleaseInstance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	assert.False(t, mr.Exists(roomKeyPrefix+"MINE01"))
	assert.Empty(t, mr.HGet(roomServerMap, "MINE02"))
	assert.Equal(t, "game-server-2", mr.HGet(roomServerMap, "OTHER1"))
}
