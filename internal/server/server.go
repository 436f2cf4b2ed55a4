package server

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/config"
	"github.com/palemoky/drop-three/internal/game/room"
	"github.com/palemoky/drop-three/internal/protocol"
	"github.com/palemoky/drop-three/internal/server/auth"
	"github.com/palemoky/drop-three/internal/server/handler"
	"github.com/palemoky/drop-three/internal/server/storage"
)

var _ handler.Orchestrator = (*room.Manager)(nil)

// MatchHistoryReader 对局历史查询
type MatchHistoryReader interface {
	PublicHistory(ctx context.Context, limit int) ([]storage.MatchRecord, error)
	PersonalHistory(ctx context.Context, playerID string, limit int) ([]storage.MatchRecord, error)
}

// LeaderboardReader 排行榜查询
type LeaderboardReader interface {
	GetLeaderboard(ctx context.Context, period storage.Period, limit int) ([]*storage.LeaderboardEntry, error)
	GetPlayerRank(ctx context.Context, playerID string) (int64, error)
	GetPlayerStats(ctx context.Context, playerID string) (*storage.PlayerStats, error)
}

// Deps 服务器依赖，History 和 Leaderboard 可以为空
type Deps struct {
	Config      *config.Config
	Rooms       *room.Manager
	Auth        *auth.Resolver
	History     MatchHistoryReader
	Leaderboard LeaderboardReader
}

// Server HTTP + WebSocket 服务器
type Server struct {
	config      *config.Config
	rooms       *room.Manager
	auth        *auth.Resolver
	history     MatchHistoryReader
	leaderboard LeaderboardReader
	handler     *handler.Handler

	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 安全组件
	rateLimiter    *RateLimiter
	originChecker  *OriginChecker
	messageLimiter *MessageRateLimiter
	chatLimiter    *ChatRateLimiter
	ipFilter       *IPFilter
	upgrader       websocket.Upgrader

	// 连接控制
	maxConnections int
	semaphore      chan struct{}

	maintenanceMode atomic.Bool

	httpServer *http.Server
}

// NewServer 创建服务器实例
func NewServer(deps Deps) *Server {
	cfg := deps.Config
	s := &Server{
		config:      cfg,
		rooms:       deps.Rooms,
		auth:        deps.Auth,
		history:     deps.History,
		leaderboard: deps.Leaderboard,
		clients:     make(map[string]*Client),
		rateLimiter: NewRateLimiter(
			cfg.Security.RateLimit.MaxPerSecond,
			cfg.Security.RateLimit.MaxPerMinute,
			cfg.Security.RateLimit.BanDurationTime(),
		),
		originChecker:  NewOriginChecker(cfg.Server.AllowedOrigins),
		messageLimiter: NewMessageRateLimiter(cfg.Security.MessageLimit.MaxPerSecond),
		chatLimiter: NewChatRateLimiter(
			cfg.Security.ChatLimit.MaxPerSecond,
			cfg.Security.ChatLimit.MaxPerMinute,
			cfg.Security.ChatLimit.CooldownDuration(),
		),
		ipFilter:       NewIPFilter(),
		maxConnections: cfg.Server.MaxConnections,
		semaphore:      make(chan struct{}, cfg.Server.MaxConnections),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originChecker.Check,
	}

	s.handler = handler.NewHandler(handler.HandlerDeps{
		Orchestrator: s.rooms,
		ChatLimiter:  s.chatLimiter,
	})

	log.Info().
		Int("conn_per_sec", cfg.Security.RateLimit.MaxPerSecond).
		Int("msg_per_sec", cfg.Security.MessageLimit.MaxPerSecond).
		Int("chat_per_sec", cfg.Security.ChatLimit.MaxPerSecond).
		Int("max_conns", cfg.Server.MaxConnections).
		Msg("🔒 安全配置已加载")

	return s
}

// Handler 带 CORS 的 HTTP 入口
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.originChecker.Origins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.Router())
}

// Start 启动服务器，阻塞直到关闭
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.Server.Addr()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go s.monitorStats(ctx)

	log.Info().Str("addr", addr).Int("cpus", runtime.NumCPU()).Msg("🚀 服务器启动")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// registerClient 注册客户端
func (s *Server) registerClient(client *Client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.clients[client.ID] = client
}

// unregisterClient 注销客户端并释放连接名额
func (s *Server) unregisterClient(client *Client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if _, ok := s.clients[client.ID]; ok {
		delete(s.clients, client.ID)
		<-s.semaphore
		log.Info().Str("player", client.Name).Str("conn", client.ID).Msg("❌ 玩家已断开")
	}
}

// GetOnlineCount 当前连接数
func (s *Server) GetOnlineCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Broadcast 广播消息给所有连接
func (s *Server) Broadcast(msg *protocol.Message) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, client := range s.clients {
		client.SendMessage(msg)
	}
}
