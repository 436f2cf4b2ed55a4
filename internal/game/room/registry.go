package room

import (
	"errors"
	"math/rand/v2"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/protocol"
	"github.com/palemoky/drop-three/internal/types"
)

const maxCodeAttempts = 100

var errCodeSpaceExhausted = errors.New("无法生成唯一房间号")

// createRoom 创建等待中的空房间
func (m *Manager) createRoom(creator types.Identity) (string, error) {
	code, err := m.generateRoomCode()
	if err != nil {
		return "", err
	}

	r := newRoom(code, creator.ID, creator.Username, m.clock.Now())
	m.rooms[code] = r
	m.mirror(r)

	log.Info().Str("room", code).Str("host", creator.Username).Msg("🏠 房间已创建")
	return code, nil
}

// generateRoomCode 生成房间号，与现有房间冲突时重试
func (m *Manager) generateRoomCode() (string, error) {
	for range maxCodeAttempts {
		code := m.opts.CodeGenerator()
		if _, exists := m.rooms[code]; !exists {
			return code, nil
		}
	}
	return "", errCodeSpaceExhausted
}

func randomRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		code[i] = roomCodeChars[rand.IntN(len(roomCodeChars))]
	}
	return string(code)
}

// listJoinable 等待中且未满员的房间
func (m *Manager) listJoinable() []*protocol.GameState {
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		if r.Status == StatusWaiting && len(r.PlayerOrder) < MaxPlayers {
			rooms = append(rooms, r)
		}
	}
	slices.SortFunc(rooms, func(a, b *Room) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	out := make([]*protocol.GameState, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, m.project(r))
	}
	return out
}

// deleteRoom 从房间表删除，并取消该房间的全部计时器
func (m *Manager) deleteRoom(r *Room) {
	r.turnTimer.cancel()
	r.rematchTimer.cancel()
	r.turnTimer, r.rematchTimer = nil, nil
	m.cancelReconnectTimers(r.Code)

	for id, b := range m.bindings {
		if b.code == r.Code {
			delete(m.bindings, id)
		}
	}
	delete(m.rooms, r.Code)

	if m.opts.Mirror != nil {
		m.opts.Mirror.Remove(r.Code)
	}
	log.Info().Str("room", r.Code).Msg("🧹 房间已清空并删除")
}

// sweepIdleRooms 清理创建后一直无人入座的房间
func (m *Manager) sweepIdleRooms() {
	now := m.clock.Now()
	for _, r := range m.rooms {
		if len(r.Players) == 0 && now.Sub(r.CreatedAt) > m.opts.RoomTimeout {
			log.Info().Str("room", r.Code).Msg("⏰ 房间长时间无人加入，已清理")
			m.deleteRoom(r)
		}
	}
}
