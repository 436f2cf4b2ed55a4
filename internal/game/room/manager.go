package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/apperrors"
	"github.com/palemoky/drop-three/internal/logger"
	"github.com/palemoky/drop-three/internal/protocol"
	"github.com/palemoky/drop-three/internal/protocol/codec"
	"github.com/palemoky/drop-three/internal/types"
)

// ErrStopped 房间协程已退出
var ErrStopped = errors.New("room manager stopped")

const (
	inboxSize     = 1024
	sweepInterval = time.Minute
)

// MatchResult 一局结束后交给持久化的结果
type MatchResult struct {
	RoomCode     string
	WinnerID     *string // 平局为 nil
	Participants []types.Identity
	FinishedAt   time.Time
}

// Recorder 对局记录（尽力而为，失败只记日志）
type Recorder interface {
	Record(ctx context.Context, result MatchResult) error
}

// Mirror 房间快照的外部镜像，调用方不能阻塞
type Mirror interface {
	Save(state *protocol.GameState)
	Remove(code string)
}

// Options 房间管理器配置
type Options struct {
	Clock            clockwork.Clock
	TurnTimeout      time.Duration
	RematchTimeout   time.Duration
	ReconnectTimeout time.Duration
	RoomTimeout      time.Duration // 无人入座的房间保留时长
	MaxInactiveTurns int
	ChatMaxLength    int
	RecordTimeout    time.Duration
	Recorder         Recorder
	Mirror           Mirror
	CodeGenerator    func() string
}

func (o *Options) withDefaults() {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.TurnTimeout <= 0 {
		o.TurnTimeout = 30 * time.Second
	}
	if o.RematchTimeout <= 0 {
		o.RematchTimeout = 30 * time.Second
	}
	if o.ReconnectTimeout <= 0 {
		o.ReconnectTimeout = 60 * time.Second
	}
	if o.RoomTimeout <= 0 {
		o.RoomTimeout = 10 * time.Minute
	}
	if o.MaxInactiveTurns <= 0 {
		o.MaxInactiveTurns = 2
	}
	if o.ChatMaxLength <= 0 {
		o.ChatMaxLength = 200
	}
	if o.RecordTimeout <= 0 {
		o.RecordTimeout = 5 * time.Second
	}
	if o.CodeGenerator == nil {
		o.CodeGenerator = randomRoomCode
	}
}

// binding 连接与 (房间, 玩家) 的绑定
type binding struct {
	code     string
	playerID string
}

// Manager 房间编排器。
// 房间表、连接绑定和所有计时器只归 run 协程所有，外部只能通过方法投递事件。
type Manager struct {
	opts  Options
	clock clockwork.Clock

	rooms     map[string]*Room
	bindings  map[string]binding                 // 连接 ID → 绑定
	reconnect map[string]map[string]*timerHandle // 房间号 → 玩家 → 重连计时器

	inbox    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewManager 创建并启动房间管理器
func NewManager(opts Options) *Manager {
	opts.withDefaults()
	m := &Manager{
		opts:      opts,
		clock:     opts.Clock,
		rooms:     make(map[string]*Room),
		bindings:  make(map[string]binding),
		reconnect: make(map[string]map[string]*timerHandle),
		inbox:     make(chan func(), inboxSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go m.run()
	return m
}

// run 房间协程主循环
func (m *Manager) run() {
	defer close(m.done)

	sweep := m.clock.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case fn := <-m.inbox:
			m.safeRun(fn)
		case <-sweep.Chan():
			m.safeRun(m.sweepIdleRooms)
		case <-m.quit:
			m.cancelAllTimers()
			return
		}
	}
}

func (m *Manager) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
		}
	}()
	fn()
}

// post 投递事件，不等待执行
func (m *Manager) post(fn func()) {
	select {
	case m.inbox <- fn:
	case <-m.quit:
	}
}

// call 投递事件并等待执行完成
func (m *Manager) call(fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}

	select {
	case m.inbox <- wrapped:
	case <-m.quit:
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-m.done:
		return ErrStopped
	}
}

// Stop 停止房间协程并取消所有计时器
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.quit)
	})
	<-m.done
}

// Done 房间协程退出后关闭
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// --- 对外入口 ---

// CreateRoom 创建房间，创建者在自己建立连接时才入座
func (m *Manager) CreateRoom(creator types.Identity) (string, error) {
	var (
		code string
		err  error
	)
	if callErr := m.call(func() { code, err = m.createRoom(creator) }); callErr != nil {
		return "", callErr
	}
	return code, err
}

// ListJoinable 可加入的房间列表
func (m *Manager) ListJoinable() []*protocol.GameState {
	var out []*protocol.GameState
	_ = m.call(func() { out = m.listJoinable() })
	return out
}

// GetRoom 房间快照
func (m *Manager) GetRoom(code string) (*protocol.GameState, bool) {
	var state *protocol.GameState
	_ = m.call(func() {
		if r, ok := m.rooms[code]; ok {
			state = m.project(r)
		}
	})
	return state, state != nil
}

// Bind 把已认证的连接绑定到房间；准入失败时已向连接发送 ERROR 并关闭
func (m *Manager) Bind(t types.Transport, code string, id types.Identity) error {
	var err error
	if callErr := m.call(func() { err = m.bind(t, code, id) }); callErr != nil {
		t.Close()
		return callErr
	}
	return err
}

// OnClose 连接关闭
func (m *Manager) OnClose(t types.Transport) {
	m.post(func() { m.onClose(t) })
}

// MakeMove 落子
func (m *Manager) MakeMove(t types.Transport, column int) error {
	return m.withBinding(t, func(r *Room, playerID string) error {
		return m.makeMove(r, playerID, column)
	})
}

// VoteReady 开局准备投票
func (m *Manager) VoteReady(t types.Transport) error {
	return m.withBinding(t, m.voteReady)
}

// VoteRematch 再来一局投票
func (m *Manager) VoteRematch(t types.Transport) error {
	return m.withBinding(t, m.voteRematch)
}

// Leave 主动离开房间
func (m *Manager) Leave(t types.Transport) error {
	return m.withBinding(t, func(r *Room, playerID string) error {
		m.leave(r, playerID, ReasonVoluntary)
		return nil
	})
}

// Chat 房间聊天
func (m *Manager) Chat(t types.Transport, text string) error {
	return m.withBinding(t, func(r *Room, playerID string) error {
		return m.chat(r, playerID, text)
	})
}

// ActiveGamesCount 进行中的对局数
func (m *Manager) ActiveGamesCount() int {
	n := 0
	_ = m.call(func() {
		for _, r := range m.rooms {
			if r.Status == StatusPlaying {
				n++
			}
		}
	})
	return n
}

// RoomCount 房间总数
func (m *Manager) RoomCount() int {
	n := 0
	_ = m.call(func() { n = len(m.rooms) })
	return n
}

// CloseAll 通知所有在线玩家房间关闭并断开连接
func (m *Manager) CloseAll(message string) {
	_ = m.call(func() {
		for _, r := range m.rooms {
			m.relay(r, codec.NewRoomClosedMessage(message))
			for _, t := range r.onlineTransports() {
				t.Close()
			}
		}
	})
}

// withBinding 解析连接绑定后在房间协程内执行 fn
func (m *Manager) withBinding(t types.Transport, fn func(r *Room, playerID string) error) error {
	var err error
	callErr := m.call(func() {
		r, playerID, ok := m.resolve(t)
		if !ok {
			err = apperrors.ErrNotInRoom
			return
		}
		err = fn(r, playerID)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// resolve 查找连接对应的房间和玩家
func (m *Manager) resolve(t types.Transport) (*Room, string, bool) {
	b, ok := m.bindings[t.GetID()]
	if !ok {
		return nil, "", false
	}
	r, ok := m.rooms[b.code]
	if !ok {
		return nil, "", false
	}
	if _, seated := r.Players[b.playerID]; !seated {
		return nil, "", false
	}
	return r, b.playerID, true
}

// cancelAllTimers 退出前取消所有计时器
func (m *Manager) cancelAllTimers() {
	for code, r := range m.rooms {
		r.turnTimer.cancel()
		r.rematchTimer.cancel()
		m.cancelReconnectTimers(code)
	}
	log.Info().Int("rooms", len(m.rooms)).Msg("🛑 房间协程已停止")
}
