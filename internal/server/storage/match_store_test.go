package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatchStore(t *testing.T) *MatchStore {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	store, err := OpenMatchStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	_, err = store.pool.Exec(ctx, `TRUNCATE match_history`)
	require.NoError(t, err)
	return store
}

func TestMatchStore_RecordAndHistory(t *testing.T) {
	store := newTestMatchStore(t)
	ctx := context.Background()

	alice := Participant{ID: "a", Username: "alice"}
	bob := Participant{ID: "b", Username: "bob"}
	carol := Participant{ID: "c", Username: "carol"}
	dave := Participant{ID: "d", Username: "dave"}

	winner := "a"
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	records := []MatchRecord{
		{RoomCode: "ROOM01", WinnerID: &winner, Participants: []Participant{alice, bob, carol}, FinishedAt: base},
		{RoomCode: "ROOM02", Participants: []Participant{bob, carol, dave}, FinishedAt: base.Add(time.Minute)},
		{RoomCode: "ROOM03", WinnerID: &winner, Participants: []Participant{alice, carol, dave}, FinishedAt: base.Add(2 * time.Minute)},
	}
	for _, rec := range records {
		require.NoError(t, store.Record(ctx, rec))
	}

	public, err := store.PublicHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, public, 2)
	assert.Equal(t, "ROOM03", public[0].RoomCode)
	assert.Equal(t, "ROOM02", public[1].RoomCode)
	assert.Nil(t, public[1].WinnerID)
	assert.Equal(t, []Participant{bob, carol, dave}, public[1].Participants)

	personal, err := store.PersonalHistory(ctx, "a", 6)
	require.NoError(t, err)
	require.Len(t, personal, 2)
	assert.Equal(t, "ROOM03", personal[0].RoomCode)
	assert.Equal(t, "ROOM01", personal[1].RoomCode)
	require.NotNil(t, personal[1].WinnerID)
	assert.Equal(t, "a", *personal[1].WinnerID)

	none, err := store.PersonalHistory(ctx, "nobody", 6)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpenMatchStore_BadDSN(t *testing.T) {
	store, err := OpenMatchStore(context.Background(), "postgres://%zz")
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestOpenMatchStore_SchemaFailure(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	// 只读会话中建表必然失败
	sep := " "
	if strings.Contains(dsn, "://") {
		sep = "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
	}
	store, err := OpenMatchStore(context.Background(), dsn+sep+"default_transaction_read_only=on")
	require.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "match_history")
}
