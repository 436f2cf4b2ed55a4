package server

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/protocol/codec"
)

const (
	monitorInterval       = 30 * time.Second
	shutdownCheckInterval = time.Second
)

// monitorStats 定期输出服务器状态并清理限流记录
func (s *Server) monitorStats(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			pruned := s.rateLimiter.Cleanup() + s.chatLimiter.Cleanup()

			log.Info().
				Int("online", s.GetOnlineCount()).
				Int("rooms", s.rooms.RoomCount()).
				Int("playing", s.rooms.ActiveGamesCount()).
				Int("goroutines", runtime.NumGoroutine()).
				Int("conns", len(s.semaphore)).
				Int("max_conns", s.maxConnections).
				Float64("mem_mb", float64(m.Alloc)/1024/1024).
				Int("pruned_limits", pruned).
				Msg("📊 [监控]")
		}
	}
}

// EnterMaintenanceMode 进入维护模式：拒绝新连接和新房间
func (s *Server) EnterMaintenanceMode() {
	if s.maintenanceMode.Swap(true) {
		return
	}
	s.Broadcast(codec.NewInfoMessage("👷🏻‍♂️ 服务器即将维护，当前对局结束后房间将关闭"))
	log.Info().Msg("🔧 进入维护模式：停止新连接和房间创建")
}

// IsMaintenanceMode 是否处于维护模式
func (s *Server) IsMaintenanceMode() bool {
	return s.maintenanceMode.Load()
}

// GracefulShutdown 等待进行中的对局结束（最多 timeout），然后关闭所有房间和 HTTP 服务
func (s *Server) GracefulShutdown(timeout time.Duration) {
	s.EnterMaintenanceMode()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(shutdownCheckInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		active := s.rooms.ActiveGamesCount()
		if active == 0 {
			log.Info().Msg("✅ 所有对局已结束")
			break
		}
		log.Info().Int("playing", active).Msg("⏳ 等待对局结束...")
		<-ticker.C
	}

	if active := s.rooms.ActiveGamesCount(); active > 0 {
		log.Warn().Int("playing", active).Msg("⚠️ 超时，强制关闭进行中的对局")
	}

	s.Shutdown()
}

// Shutdown 关闭所有房间并停止 HTTP 服务
func (s *Server) Shutdown() {
	s.rooms.CloseAll("🚧 服务器停机维护，房间已关闭")
	s.rooms.Stop()

	s.clientsMu.RLock()
	for _, client := range s.clients {
		client.Close()
	}
	s.clientsMu.RUnlock()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("HTTP 服务关闭失败")
		}
	}

	log.Info().Msg("服务器已关闭")
}
