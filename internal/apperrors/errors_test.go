package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/palemoky/drop-three/internal/protocol"
)

func TestGameError_Message(t *testing.T) {
	t.Parallel()

	assert.Equal(t, protocol.ErrorMessages[protocol.ErrCodeColumnFull], ErrColumnFull.Error())
	assert.Equal(t, protocol.ErrCodeColumnFull, ErrColumnFull.Code)
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, protocol.ErrCodeNotYourTurn, CodeOf(ErrNotYourTurn))
	assert.Equal(t, protocol.ErrCodeRoomNotFound, CodeOf(fmt.Errorf("bind: %w", ErrRoomNotFound)))
	assert.Equal(t, protocol.ErrCodeUnknown, CodeOf(errors.New("boom")))
	assert.Equal(t, protocol.ErrCodeUnknown, CodeOf(nil))
}
