package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/apperrors"
	"github.com/palemoky/drop-three/internal/protocol"
	"github.com/palemoky/drop-three/internal/server/auth"
	"github.com/palemoky/drop-three/internal/server/storage"
)

const (
	publicHistoryLimit   = 5
	personalHistoryLimit = 6
	leaderboardLimit     = 5
)

// Router 注册所有路由
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	r.GET("/ws/:code", s.handleWebSocket)

	requireAuth := s.auth.RequireIdentity()

	api := r.Group("/api")
	{
		api.POST("/rooms", requireAuth, s.handleCreateRoom)
		api.GET("/rooms", requireAuth, s.handleListRooms)
		api.GET("/auth/status", requireAuth, s.handleAuthStatus)
	}

	history := api.Group("/history")
	{
		history.GET("/matches", s.handlePublicHistory)
		history.GET("/leaderboard", s.handleLeaderboard)
		history.GET("/personal", requireAuth, s.handlePersonalHistory)
		history.GET("/leaderboard/personal", requireAuth, s.handlePersonalLeaderboard)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	})
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http")
	}
}

func errorJSON(c *gin.Context, status int, err *apperrors.GameError) {
	c.JSON(status, gin.H{"code": err.Code, "message": err.Message})
}

// handleCreateRoom 创建房间，创建者稍后通过 /ws/:code 入座
func (s *Server) handleCreateRoom(c *gin.Context) {
	if s.IsMaintenanceMode() {
		errorJSON(c, http.StatusServiceUnavailable, apperrors.ErrMaintenance)
		return
	}

	id, _ := auth.IdentityFrom(c)
	code, err := s.rooms.CreateRoom(id)
	if err != nil {
		log.Error().Err(err).Str("player", id.ID).Msg("创建房间失败")
		c.JSON(http.StatusInternalServerError, gin.H{"code": protocol.ErrCodeUnknown, "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"roomCode": code})
}

func (s *Server) handleListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, s.rooms.ListJoinable())
}

func (s *Server) handleAuthStatus(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": id})
}

func (s *Server) historyUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"code": protocol.ErrCodeUnknown, "message": "历史数据暂不可用"})
}

func (s *Server) handlePublicHistory(c *gin.Context) {
	if s.history == nil {
		s.historyUnavailable(c)
		return
	}
	matches, err := s.history.PublicHistory(c.Request.Context(), publicHistoryLimit)
	if err != nil {
		log.Error().Err(err).Msg("查询对局历史失败")
		s.historyUnavailable(c)
		return
	}
	c.JSON(http.StatusOK, matches)
}

func (s *Server) handlePersonalHistory(c *gin.Context) {
	if s.history == nil {
		s.historyUnavailable(c)
		return
	}
	id, _ := auth.IdentityFrom(c)
	matches, err := s.history.PersonalHistory(c.Request.Context(), id.ID, personalHistoryLimit)
	if err != nil {
		log.Error().Err(err).Str("player", id.ID).Msg("查询个人对局失败")
		s.historyUnavailable(c)
		return
	}
	c.JSON(http.StatusOK, matches)
}

// handleLeaderboard 排行榜，?period=daily|weekly，默认总榜
func (s *Server) handleLeaderboard(c *gin.Context) {
	if s.leaderboard == nil {
		s.historyUnavailable(c)
		return
	}
	period := storage.ParsePeriod(strings.ToLower(c.Query("period")))
	entries, err := s.leaderboard.GetLeaderboard(c.Request.Context(), period, leaderboardLimit)
	if err != nil {
		log.Error().Err(err).Str("period", string(period)).Msg("查询排行榜失败")
		s.historyUnavailable(c)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// handlePersonalLeaderboard 排行榜前几名加上自己的排名和战绩
func (s *Server) handlePersonalLeaderboard(c *gin.Context) {
	if s.leaderboard == nil {
		s.historyUnavailable(c)
		return
	}
	ctx := c.Request.Context()
	id, _ := auth.IdentityFrom(c)

	entries, err := s.leaderboard.GetLeaderboard(ctx, storage.PeriodTotal, leaderboardLimit)
	if err != nil {
		log.Error().Err(err).Msg("查询排行榜失败")
		s.historyUnavailable(c)
		return
	}
	rank, err := s.leaderboard.GetPlayerRank(ctx, id.ID)
	if err != nil {
		log.Error().Err(err).Str("player", id.ID).Msg("查询排名失败")
		s.historyUnavailable(c)
		return
	}
	stats, err := s.leaderboard.GetPlayerStats(ctx, id.ID)
	if err != nil {
		log.Error().Err(err).Str("player", id.ID).Msg("查询战绩失败")
		s.historyUnavailable(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"top": entries, "rank": rank, "stats": stats})
}
