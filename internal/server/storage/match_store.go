package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const matchHistorySchema = `
CREATE TABLE IF NOT EXISTS match_history (
	id           BIGSERIAL PRIMARY KEY,
	room_code    TEXT        NOT NULL,
	winner_id    TEXT,
	participants JSONB       NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS match_history_finished_at_idx ON match_history (finished_at DESC);
CREATE INDEX IF NOT EXISTS match_history_participants_idx ON match_history USING GIN (participants jsonb_path_ops);
`

// Participant 对局参与者
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// MatchRecord 一条对局记录
type MatchRecord struct {
	ID           int64         `json:"id"`
	RoomCode     string        `json:"roomCode"`
	WinnerID     *string       `json:"winnerId"` // 平局为 null
	Participants []Participant `json:"participants"`
	FinishedAt   time.Time     `json:"finishedAt"`
}

// MatchStore Postgres 对局历史
type MatchStore struct {
	pool *pgxpool.Pool
}

// NewMatchStore 连接 Postgres
func NewMatchStore(ctx context.Context, dsn string) (*MatchStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("连接 Postgres 失败: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("Postgres 不可用: %w", err)
	}
	return &MatchStore{pool: pool}, nil
}

// OpenMatchStore 连接 Postgres 并建表，建表失败时关闭连接池
func OpenMatchStore(ctx context.Context, dsn string) (*MatchStore, error) {
	ms, err := NewMatchStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := ms.EnsureSchema(ctx); err != nil {
		ms.Close()
		return nil, err
	}
	return ms, nil
}

// Close 关闭连接池
func (ms *MatchStore) Close() {
	ms.pool.Close()
}

// EnsureSchema 建表
func (ms *MatchStore) EnsureSchema(ctx context.Context) error {
	if _, err := ms.pool.Exec(ctx, matchHistorySchema); err != nil {
		return fmt.Errorf("初始化 match_history 失败: %w", err)
	}
	return nil
}

// Record 写入一条对局记录
func (ms *MatchStore) Record(ctx context.Context, rec MatchRecord) error {
	participants, err := json.Marshal(rec.Participants)
	if err != nil {
		return fmt.Errorf("序列化参与者失败: %w", err)
	}

	_, err = ms.pool.Exec(ctx,
		`INSERT INTO match_history (room_code, winner_id, participants, finished_at) VALUES ($1, $2, $3, $4)`,
		rec.RoomCode, rec.WinnerID, participants, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("写入对局记录失败: %w", err)
	}
	return nil
}

// PublicHistory 最近的对局
func (ms *MatchStore) PublicHistory(ctx context.Context, limit int) ([]MatchRecord, error) {
	rows, err := ms.pool.Query(ctx,
		`SELECT id, room_code, winner_id, participants, finished_at
		   FROM match_history
		  ORDER BY finished_at DESC
		  LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectMatches(rows)
}

// PersonalHistory 某个玩家最近参与的对局
func (ms *MatchStore) PersonalHistory(ctx context.Context, playerID string, limit int) ([]MatchRecord, error) {
	filter, err := json.Marshal([]map[string]string{{"id": playerID}})
	if err != nil {
		return nil, err
	}

	rows, err := ms.pool.Query(ctx,
		`SELECT id, room_code, winner_id, participants, finished_at
		   FROM match_history
		  WHERE participants @> $1::jsonb
		  ORDER BY finished_at DESC
		  LIMIT $2`, string(filter), limit)
	if err != nil {
		return nil, err
	}
	return collectMatches(rows)
}

func collectMatches(rows pgx.Rows) ([]MatchRecord, error) {
	defer rows.Close()

	out := make([]MatchRecord, 0)
	for rows.Next() {
		var (
			rec          MatchRecord
			participants []byte
		)
		if err := rows.Scan(&rec.ID, &rec.RoomCode, &rec.WinnerID, &participants, &rec.FinishedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(participants, &rec.Participants); err != nil {
			return nil, fmt.Errorf("解析参与者失败: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
