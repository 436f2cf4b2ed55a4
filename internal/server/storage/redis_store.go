package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/drop-three/internal/protocol"
)

const (
	// Redis key 前缀
	roomKeyPrefix = "room:"
	roomServerMap = "room_to_server_map"

	// 房间快照过期时间
	roomExpiration = 2 * time.Hour

	mirrorQueueSize = 1024
	mirrorTimeout   = 2 * time.Second
)

type mirrorOp struct {
	code  string
	state *protocol.GameState // nil 表示删除
}

// RedisStore 房间快照镜像与房间目录。
// 内存中的房间状态才是权威数据，这里只用于观测和实例清理。
type RedisStore struct {
	client     *redis.Client
	instanceID string

	queue     chan mirrorOp
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewRedisStore 创建 Redis 存储并启动写入协程
func NewRedisStore(client *redis.Client, instanceID string) *RedisStore {
	rs := &RedisStore{
		client:     client,
		instanceID: instanceID,
		queue:      make(chan mirrorOp, mirrorQueueSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go rs.worker()
	return rs
}

// --- 异步镜像（房间协程调用，不阻塞） ---

// Save 排队写入房间快照
func (rs *RedisStore) Save(state *protocol.GameState) {
	if state == nil {
		return
	}
	rs.enqueue(mirrorOp{code: state.RoomCode, state: state})
}

// Remove 排队删除房间快照
func (rs *RedisStore) Remove(code string) {
	rs.enqueue(mirrorOp{code: code})
}

func (rs *RedisStore) enqueue(op mirrorOp) {
	select {
	case <-rs.quit:
		return
	default:
	}

	select {
	case rs.queue <- op:
	default:
		log.Warn().Str("room", op.code).Msg("⚠️ 房间镜像队列已满，丢弃本次更新")
	}
}

// worker 单协程按顺序写入，保证同一房间的更新不乱序
func (rs *RedisStore) worker() {
	defer close(rs.done)
	for {
		select {
		case op := <-rs.queue:
			rs.apply(op)
		case <-rs.quit:
			for {
				select {
				case op := <-rs.queue:
					rs.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (rs *RedisStore) apply(op mirrorOp) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	var err error
	if op.state == nil {
		err = rs.DeleteRoom(ctx, op.code)
	} else {
		err = rs.SaveRoom(ctx, op.state)
	}
	if err != nil {
		log.Warn().Err(err).Str("room", op.code).Msg("⚠️ 房间镜像写入失败")
	}
}

// Close 停止接收新的更新，写完队列中剩余的更新后返回
func (rs *RedisStore) Close() {
	rs.closeOnce.Do(func() {
		close(rs.quit)
	})
	<-rs.done
}

// --- 房间存储 ---

// SaveRoom 保存房间快照并登记所在实例
func (rs *RedisStore) SaveRoom(ctx context.Context, state *protocol.GameState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("序列化房间数据失败: %w", err)
	}

	_, err = rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomKeyPrefix+state.RoomCode, data, roomExpiration)
		pipe.HSet(ctx, roomServerMap, state.RoomCode, rs.instanceID)
		return nil
	})
	return err
}

// DeleteRoom 删除房间快照和目录项
func (rs *RedisStore) DeleteRoom(ctx context.Context, code string) error {
	_, err := rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, roomKeyPrefix+code)
		pipe.HDel(ctx, roomServerMap, code)
		return nil
	})
	return err
}

// ReleaseInstance 清理本实例登记的所有房间，启动和退出时调用
func (rs *RedisStore) ReleaseInstance(ctx context.Context) (int, error) {
	entries, err := rs.client.HGetAll(ctx, roomServerMap).Result()
	if err != nil {
		return 0, err
	}

	released := 0
	for code, owner := range entries {
		if owner != rs.instanceID {
			continue
		}
		if err := rs.DeleteRoom(ctx, code); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}
