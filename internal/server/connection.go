package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/apperrors"
)

// handleWebSocket 校验后升级连接并绑定到房间
func (s *Server) handleWebSocket(c *gin.Context) {
	clientIP := GetClientIP(c.Request)

	// 维护模式检查（最优先）
	if s.IsMaintenanceMode() {
		log.Info().Str("ip", clientIP).Msg("🔧 维护模式，拒绝新连接")
		errorJSON(c, http.StatusServiceUnavailable, apperrors.ErrMaintenance)
		return
	}

	select {
	case s.semaphore <- struct{}{}:
	default:
		log.Warn().Int("max", s.maxConnections).Str("ip", clientIP).Msg("🚫 达到最大连接数限制")
		c.String(http.StatusServiceUnavailable, "Server Full")
		return
	}
	registered := false
	defer func() {
		if !registered {
			<-s.semaphore
		}
	}()

	if !s.ipFilter.IsAllowed(clientIP) {
		log.Warn().Str("ip", clientIP).Msg("🚫 IP 被过滤器拒绝")
		c.String(http.StatusForbidden, "Forbidden")
		return
	}
	if !s.originChecker.Check(c.Request) {
		log.Warn().Str("origin", c.GetHeader("Origin")).Str("ip", clientIP).Msg("🚫 来源验证失败")
		c.String(http.StatusForbidden, "Origin not allowed")
		return
	}
	if !s.rateLimiter.Allow(clientIP) {
		log.Warn().Str("ip", clientIP).Msg("🚫 请求过于频繁")
		c.String(http.StatusTooManyRequests, "Too Many Requests")
		return
	}

	identity, err := s.auth.Resolve(c.Request)
	if err != nil {
		errorJSON(c, http.StatusUnauthorized, apperrors.ErrUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("ip", clientIP).Msg("WebSocket 升级失败")
		return
	}

	code := strings.ToUpper(c.Param("code"))
	client := NewClient(s, conn, identity, code)
	client.IP = clientIP
	s.registerClient(client)
	registered = true

	go client.WritePump()

	if err := s.rooms.Bind(client, code, identity); err != nil {
		log.Info().Err(err).Str("player", identity.ID).Str("room", code).Msg("房间准入失败")
	} else {
		log.Info().Str("player", identity.Username).Str("room", code).Str("conn", client.ID).Msg("✅ 玩家已连接")
	}

	go client.ReadPump()
}
