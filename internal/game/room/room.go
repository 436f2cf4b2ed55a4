package room

import (
	"slices"
	"time"

	"github.com/palemoky/drop-three/internal/game/engine"
	"github.com/palemoky/drop-three/internal/types"
)

const (
	MaxPlayers     = 3                                      // 房间容量
	roomCodeLength = 6                                      // 房间号长度
	roomCodeChars  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ" // 房间号字符集
)

// PlayerSession 玩家身份与连接状态，连接断开时身份、超时次数和投票都会保留
type PlayerSession struct {
	ID                string
	Username          string
	Conn              types.Transport // 离线时为 nil
	InactivityStrikes int
}

// IsOnline 是否有实时连接
func (p *PlayerSession) IsOnline() bool {
	return p.Conn != nil
}

// Room 游戏房间，只能在房间协程内读写
type Room struct {
	Code               string
	HostID             string
	Players            map[string]*PlayerSession
	PlayerOrder        []string // 入座顺序
	PlayerOrderHistory []string // 开局时的座次快照，决定棋子颜色
	Board              engine.Board
	CurrentPlayerIndex int
	Status             Status
	Winner             *string // 有人获胜时为胜者 ID
	IsDraw             bool
	TurnDeadline       time.Time
	RematchDeadline    time.Time
	ReadyVotes         []string
	RematchVotes       []string
	CreatedAt          time.Time

	hostName         string            // 房主尚未入座时的展示名
	historyNames     map[string]string // 开局时参与者的昵称，用于对局记录
	turnTimer        *timerHandle
	rematchTimer     *timerHandle
	resolvingRematch bool
}

func newRoom(code, hostID, hostName string, now time.Time) *Room {
	return &Room{
		Code:        code,
		HostID:      hostID,
		Players:     make(map[string]*PlayerSession),
		PlayerOrder: make([]string, 0, MaxPlayers),
		Status:      StatusWaiting,
		CreatedAt:   now,
		hostName:    hostName,
	}
}

// transition 按迁移表修改状态
func (r *Room) transition(next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return &ErrInvalidTransition{From: r.Status, To: next}
	}
	r.Status = next
	return nil
}

// seat 玩家入座
func (r *Room) seat(p *PlayerSession) {
	r.Players[p.ID] = p
	if !slices.Contains(r.PlayerOrder, p.ID) {
		r.PlayerOrder = append(r.PlayerOrder, p.ID)
	}
}

// unseat 玩家离座，返回其原来的座次下标
func (r *Room) unseat(playerID string) int {
	delete(r.Players, playerID)
	idx := slices.Index(r.PlayerOrder, playerID)
	if idx >= 0 {
		r.PlayerOrder = slices.Delete(r.PlayerOrder, idx, idx+1)
	}
	r.ReadyVotes = removeVote(r.ReadyVotes, playerID)
	r.RematchVotes = removeVote(r.RematchVotes, playerID)
	return idx
}

// currentPlayer 当前轮到的玩家
func (r *Room) currentPlayer() *PlayerSession {
	if len(r.PlayerOrder) == 0 {
		return nil
	}
	return r.Players[r.PlayerOrder[r.CurrentPlayerIndex%len(r.PlayerOrder)]]
}

// HostName 当前房主昵称
func (r *Room) HostName() string {
	if p, ok := r.Players[r.HostID]; ok {
		return p.Username
	}
	return r.hostName
}

// promoteHost 房主不在座时把第一个在座玩家提升为房主
func (r *Room) promoteHost() (changed bool) {
	if _, seated := r.Players[r.HostID]; seated || len(r.PlayerOrder) == 0 {
		return false
	}
	r.HostID = r.PlayerOrder[0]
	r.hostName = r.Players[r.HostID].Username
	return true
}

// resetBoard 清空一局的对局数据
func (r *Room) resetBoard() {
	r.Board = engine.Board{}
	r.CurrentPlayerIndex = 0
	r.Winner = nil
	r.IsDraw = false
	r.TurnDeadline = time.Time{}
}

// onlineTransports 当前在线的连接，按座次排列
func (r *Room) onlineTransports() []types.Transport {
	out := make([]types.Transport, 0, len(r.PlayerOrder))
	for _, id := range r.PlayerOrder {
		if p := r.Players[id]; p != nil && p.Conn != nil {
			out = append(out, p.Conn)
		}
	}
	return out
}

func hasVote(votes []string, playerID string) bool {
	return slices.Contains(votes, playerID)
}

func removeVote(votes []string, playerID string) []string {
	return slices.DeleteFunc(votes, func(id string) bool { return id == playerID })
}

// allVoted 所有在座玩家都已投票
func (r *Room) allVoted(votes []string) bool {
	if len(r.PlayerOrder) == 0 {
		return false
	}
	for _, id := range r.PlayerOrder {
		if !hasVote(votes, id) {
			return false
		}
	}
	return true
}
