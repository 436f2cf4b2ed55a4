// Package events 把对局结束事件发布到 NATS，供排行榜以外的下游服务订阅。
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const contentType = "application/x-protobuf; type=google.protobuf.Struct"

// Config NATS 连接配置
type Config struct {
	URL           string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Publisher 对局事件发布者
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// Connect 连接 NATS，断线后自动重连
func Connect(cfg Config) (*Publisher, error) {
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("drop-three"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("📴 NATS 连接断开")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("🔌 NATS 已重连")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("❌ NATS 错误")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接 NATS 失败: %w", err)
	}
	return NewPublisher(nc, cfg.Subject), nil
}

// NewPublisher 使用已有连接创建发布者
func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	return &Publisher{nc: nc, subject: subject}
}

// PublishMatchFinished 发布对局结束事件
func (p *Publisher) PublishMatchFinished(ctx context.Context, ev MatchFinished) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}

	data, err := Encode(ev)
	if err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header: nats.Header{
			"Content-Type": []string{contentType},
			"Event-ID":     []string{ev.EventID},
			"Room-Code":    []string{ev.RoomCode},
		},
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("发布对局事件失败: %w", err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("发布对局事件失败: %w", err)
	}

	log.Debug().Str("subject", p.subject).Str("event_id", ev.EventID).Str("room", ev.RoomCode).Msg("📨 对局事件已发布")
	return nil
}

// Close 发送缓冲区中的消息后断开
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
