package apperrors

import (
	"errors"

	"github.com/palemoky/drop-three/internal/protocol"
)

// GameError 游戏错误（校验失败与准入失败共用）
type GameError struct {
	Code    int
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

func newError(code int) *GameError {
	return &GameError{Code: code, Message: protocol.ErrorMessages[code]}
}

// 预定义错误
var (
	ErrRoomNotFound     = newError(protocol.ErrCodeRoomNotFound)
	ErrNotAccepting     = newError(protocol.ErrCodeNotAccepting)
	ErrDuplicateSession = newError(protocol.ErrCodeDuplicateSession)
	ErrNotInRoom        = newError(protocol.ErrCodeNotInRoom)
	ErrGameNotActive    = newError(protocol.ErrCodeGameNotActive)
	ErrNotYourTurn      = newError(protocol.ErrCodeNotYourTurn)
	ErrInvalidColumn    = newError(protocol.ErrCodeInvalidColumn)
	ErrColumnFull       = newError(protocol.ErrCodeColumnFull)
	ErrAlreadyVoted     = newError(protocol.ErrCodeAlreadyVoted)
	ErrWrongPhase       = newError(protocol.ErrCodeWrongPhase)
	ErrChatTooLong      = newError(protocol.ErrCodeChatTooLong)
	ErrChatEmpty        = newError(protocol.ErrCodeChatEmpty)
	ErrMaintenance      = newError(protocol.ErrCodeServerMaintenance)
	ErrUnauthorized     = newError(protocol.ErrCodeUnauthorized)
)

// CodeOf 提取错误码，非 GameError 返回 ErrCodeUnknown
func CodeOf(err error) int {
	var gameErr *GameError
	if errors.As(err, &gameErr) {
		return gameErr.Code
	}
	return protocol.ErrCodeUnknown
}
