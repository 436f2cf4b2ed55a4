package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 服务端配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	NATS     NATSConfig     `yaml:"nats"`
	Auth     AuthConfig     `yaml:"auth"`
	Game     GameConfig     `yaml:"game"`
	Security SecurityConfig `yaml:"security"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig HTTP / WebSocket 服务器配置
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	InstanceID      string   `yaml:"instance_id"`      // 房间目录中登记的实例标识
	AllowedOrigins  []string `yaml:"allowed_origins"`  // CORS 与 WebSocket 来源白名单
	MaxConnections  int      `yaml:"max_connections"`  // 最大并发连接数
	ShutdownTimeout int      `yaml:"shutdown_timeout"` // 等待对局结束的最长时间（秒）
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig 对局历史数据库配置，DSN 为空时不启用
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig 对局事件发布配置，URL 为空时不启用
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// AuthConfig 身份校验配置
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	CookieName string `yaml:"cookie_name"`
}

// GameConfig 游戏配置
type GameConfig struct {
	TurnTimeout      int `yaml:"turn_timeout"`       // 落子超时（秒）
	RematchTimeout   int `yaml:"rematch_timeout"`    // 再来一局投票超时（秒）
	ReconnectTimeout int `yaml:"reconnect_timeout"`  // 断线重连宽限（秒）
	MaxInactiveTurns int `yaml:"max_inactive_turns"` // 连续超时多少次被移出房间
	ChatMaxLength    int `yaml:"chat_max_length"`    // 聊天消息最大字符数
	RoomTimeout      int `yaml:"room_timeout"`       // 无人入座的房间保留时长（分钟）
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	MessageLimit MessageLimitConfig `yaml:"message_limit"`
	ChatLimit    ChatLimitConfig    `yaml:"chat_limit"`
}

// RateLimitConfig 连接速率限制
type RateLimitConfig struct {
	MaxPerSecond int `yaml:"max_per_second"`
	MaxPerMinute int `yaml:"max_per_minute"`
	BanDuration  int `yaml:"ban_duration"` // 秒
}

// MessageLimitConfig 单连接消息速率限制
type MessageLimitConfig struct {
	MaxPerSecond int `yaml:"max_per_second"`
}

// ChatLimitConfig 聊天速率限制
type ChatLimitConfig struct {
	MaxPerSecond int `yaml:"max_per_second"`
	MaxPerMinute int `yaml:"max_per_minute"`
	Cooldown     int `yaml:"cooldown"` // 秒
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// TurnTimeoutDuration 返回落子超时时长
func (c *GameConfig) TurnTimeoutDuration() time.Duration {
	return time.Duration(c.TurnTimeout) * time.Second
}

// RematchTimeoutDuration 返回再来一局投票时长
func (c *GameConfig) RematchTimeoutDuration() time.Duration {
	return time.Duration(c.RematchTimeout) * time.Second
}

// ReconnectTimeoutDuration 返回断线重连宽限时长
func (c *GameConfig) ReconnectTimeoutDuration() time.Duration {
	return time.Duration(c.ReconnectTimeout) * time.Second
}

// RoomTimeoutDuration 返回空房间保留时长
func (c *GameConfig) RoomTimeoutDuration() time.Duration {
	return time.Duration(c.RoomTimeout) * time.Minute
}

// ShutdownTimeoutDuration 返回优雅关闭等待时长
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}

// BanDurationTime 返回封禁时长
func (c *RateLimitConfig) BanDurationTime() time.Duration {
	return time.Duration(c.BanDuration) * time.Second
}

// CooldownDuration 返回聊天冷却时长
func (c *ChatLimitConfig) CooldownDuration() time.Duration {
	return time.Duration(c.Cooldown) * time.Second
}

// Addr 返回监听地址
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load 加载配置文件，再依次应用 .env 和环境变量覆盖
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.fillDefaults()
	return cfg, nil
}

// LoadEnv 读取可选的 .env 文件并把环境变量覆盖到配置上
func (c *Config) LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("读取 .env 失败: %w", err)
	}

	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.InstanceID = getEnv("INSTANCE_ID", c.Server.InstanceID)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Postgres.DSN = getEnv("POSTGRES_DSN", c.Postgres.DSN)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret 不能为空")
	}
	if c.Game.TurnTimeout <= 0 || c.Game.RematchTimeout <= 0 || c.Game.ReconnectTimeout <= 0 {
		return errors.New("game 超时配置必须为正数")
	}
	if c.Game.MaxInactiveTurns <= 0 {
		return errors.New("game.max_inactive_turns 必须为正数")
	}
	return nil
}

// fillDefaults 补全 YAML 中显式写成零值的字段
func (c *Config) fillDefaults() {
	d := Default()
	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.InstanceID == "" {
		c.Server.InstanceID = d.Server.InstanceID
	}
	if c.Server.MaxConnections == 0 {
		c.Server.MaxConnections = d.Server.MaxConnections
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = d.Redis.Addr
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = d.NATS.Subject
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = d.Auth.CookieName
	}
	if c.Game.TurnTimeout == 0 {
		c.Game.TurnTimeout = d.Game.TurnTimeout
	}
	if c.Game.RematchTimeout == 0 {
		c.Game.RematchTimeout = d.Game.RematchTimeout
	}
	if c.Game.ReconnectTimeout == 0 {
		c.Game.ReconnectTimeout = d.Game.ReconnectTimeout
	}
	if c.Game.MaxInactiveTurns == 0 {
		c.Game.MaxInactiveTurns = d.Game.MaxInactiveTurns
	}
	if c.Game.ChatMaxLength == 0 {
		c.Game.ChatMaxLength = d.Game.ChatMaxLength
	}
	if c.Game.RoomTimeout == 0 {
		c.Game.RoomTimeout = d.Game.RoomTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			InstanceID:      "game-server-1",
			AllowedOrigins:  []string{"*"},
			MaxConnections:  1000,
			ShutdownTimeout: 120,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		NATS: NATSConfig{
			Subject: "match.finished",
		},
		Auth: AuthConfig{
			CookieName: "token",
		},
		Game: GameConfig{
			TurnTimeout:      30,
			RematchTimeout:   30,
			ReconnectTimeout: 60,
			MaxInactiveTurns: 2,
			ChatMaxLength:    200,
			RoomTimeout:      10,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				MaxPerSecond: 10,
				MaxPerMinute: 60,
				BanDuration:  60,
			},
			MessageLimit: MessageLimitConfig{
				MaxPerSecond: 20,
			},
			ChatLimit: ChatLimitConfig{
				MaxPerSecond: 1,
				MaxPerMinute: 20,
				Cooldown:     5,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
