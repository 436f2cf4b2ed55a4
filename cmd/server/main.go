package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/config"
	"github.com/palemoky/drop-three/internal/game/room"
	"github.com/palemoky/drop-three/internal/logger"
	"github.com/palemoky/drop-three/internal/server"
	"github.com/palemoky/drop-three/internal/server/auth"
	"github.com/palemoky/drop-three/internal/server/events"
	"github.com/palemoky/drop-three/internal/server/persistence"
	"github.com/palemoky/drop-three/internal/server/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	envFile := flag.String("env", ".env", ".env 文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.Default()
	}
	if envErr := cfg.LoadEnv(*envFile); envErr != nil {
		logger.Init(cfg.Log.Level, cfg.Log.Pretty)
		log.Fatal().Err(envErr).Msg("读取环境变量失败")
	}

	logger.Init(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("加载配置文件失败，使用默认配置")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("配置无效")
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	// 外部依赖都是可选的，连不上只影响历史和排行榜
	var (
		history     persistence.MatchHistory
		historyRead server.MatchHistoryReader
		leaderboard persistence.Leaderboard
		boardRead   server.LeaderboardReader
		publisher   persistence.EventPublisher
		mirror      room.Mirror
		store       *storage.RedisStore
	)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("⚠️ Redis 不可用，房间目录和排行榜已禁用")
		_ = rdb.Close()
	} else {
		defer func() { _ = rdb.Close() }()
		store = storage.NewRedisStore(rdb, cfg.Server.InstanceID)
		mirror = store

		lb := storage.NewLeaderboardManager(rdb, clock)
		leaderboard, boardRead = lb, lb
		log.Info().Str("addr", cfg.Redis.Addr).Msg("✅ Redis 已连接")
	}
	cancel()

	if cfg.Postgres.DSN != "" {
		pgCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		matches, err := storage.OpenMatchStore(pgCtx, cfg.Postgres.DSN)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Postgres 不可用，对局历史已禁用")
		} else {
			defer matches.Close()
			history, historyRead = matches, matches
			log.Info().Msg("✅ Postgres 已连接")
		}
	}

	if cfg.NATS.URL != "" {
		pub, err := events.Connect(events.Config{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject})
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ NATS 不可用，对局事件不会发布")
		} else {
			defer pub.Close()
			publisher = pub
			log.Info().Str("subject", cfg.NATS.Subject).Msg("✅ NATS 已连接")
		}
	}

	rooms := room.NewManager(room.Options{
		Clock:            clock,
		TurnTimeout:      cfg.Game.TurnTimeoutDuration(),
		RematchTimeout:   cfg.Game.RematchTimeoutDuration(),
		ReconnectTimeout: cfg.Game.ReconnectTimeoutDuration(),
		RoomTimeout:      cfg.Game.RoomTimeoutDuration(),
		MaxInactiveTurns: cfg.Game.MaxInactiveTurns,
		ChatMaxLength:    cfg.Game.ChatMaxLength,
		Recorder:         persistence.NewGateway(history, leaderboard, publisher),
		Mirror:           mirror,
	})

	srv := server.NewServer(server.Deps{
		Config:      cfg,
		Rooms:       rooms,
		Auth:        auth.NewResolver(cfg.Auth.JWTSecret, cfg.Auth.CookieName, clock),
		History:     historyRead,
		Leaderboard: boardRead,
	})

	go func() {
		<-ctx.Done()
		log.Info().Msg("正在关闭服务器...")
		srv.GracefulShutdown(cfg.Server.ShutdownTimeoutDuration())
	}()

	log.Info().Str("instance", cfg.Server.InstanceID).Msg("🎮 Drop Three 服务器启动中...")
	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("服务器启动失败")
	}

	// 房间协程退出后镜像不再有新写入，清空队列再注销本实例的房间
	<-rooms.Done()
	if store != nil {
		store.Close()
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		released, err := store.ReleaseInstance(releaseCtx)
		if err != nil {
			log.Warn().Err(err).Msg("清理房间目录失败")
		} else {
			log.Info().Int("rooms", released).Msg("🧹 已清理本实例的房间目录")
		}
	}
}
