package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/drop-three/internal/protocol"
)

func TestEncode_WireShape(t *testing.T) {
	t.Parallel()

	msg := MustNewMessage(protocol.MsgNewMessage, protocol.NewMessagePayload{Username: "alice01", Text: "gg"})
	data, err := Encode(msg)
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"NEW_MESSAGE","payload":{"username":"alice01","text":"gg"}}`, string(data))
	assert.NotContains(t, string(data), "\n")
}

func TestEncode_NoPayload(t *testing.T) {
	t.Parallel()

	msg := MustNewMessage(protocol.MsgLeaveRoom, nil)
	data, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"LEAVE_ROOM"}`, string(data))
}

func TestDecode(t *testing.T) {
	t.Parallel()

	msg, err := Decode([]byte(`{"type":"MAKE_MOVE","payload":{"column":4}}`))
	require.NoError(t, err)
	defer Release(msg)

	assert.Equal(t, protocol.MsgMakeMove, msg.Type)
	payload, err := ParsePayload[protocol.MakeMovePayload](msg)
	require.NoError(t, err)
	assert.Equal(t, 4, payload.Column)
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"not json", `hello`},
		{"missing type", `{"payload":{}}`},
		{"wrong type", `{"type":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.data))
			assert.Error(t, err)
			assert.Nil(t, msg)
		})
	}
}

func TestParsePayload_Missing(t *testing.T) {
	t.Parallel()

	_, err := ParsePayload[protocol.MakeMovePayload](&protocol.Message{Type: protocol.MsgMakeMove})
	assert.Error(t, err)
}

func TestNewErrorMessage(t *testing.T) {
	t.Parallel()

	msg := NewErrorMessage(protocol.ErrCodeColumnFull)
	assert.Equal(t, protocol.MsgError, msg.Type)

	payload, err := ParsePayload[protocol.ErrorPayload](msg)
	require.NoError(t, err)
	assert.Equal(t, protocol.ErrCodeColumnFull, payload.Code)
	assert.Equal(t, protocol.ErrorMessages[protocol.ErrCodeColumnFull], payload.Message)
}

func TestNotices(t *testing.T) {
	t.Parallel()

	info, err := ParsePayload[protocol.InfoPayload](NewInfoMessage("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi", info.Message)

	closed := NewRoomClosedMessage("bye")
	assert.Equal(t, protocol.MsgRoomClosed, closed.Type)

	state := NewGameStateMessage(&protocol.GameState{RoomCode: "ABC123"})
	payload, err := ParsePayload[protocol.GameStatePayload](state)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", payload.GameState.RoomCode)
}
