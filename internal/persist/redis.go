package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"replyd/internal/convo"
)

// DefaultTTL is how long an idle session's turns are kept in Redis.
const DefaultTTL = 7 * 24 * time.Hour

// RedisStore keeps each session's turns in a capped Redis list.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	keep   int64
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	// Keep caps the stored list length. Zero keeps four windows.
	Keep int
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, o RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", o.Addr, err)
	}
	return NewRedisStoreFromClient(client, o.TTL, o.Keep), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration, keep int) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if keep <= 0 {
		keep = 4 * convo.WindowSize
	}
	return &RedisStore{client: client, ttl: ttl, keep: int64(keep)}
}

func turnsKey(sessionID string) string { return "replyd:session:" + sessionID + ":turns" }

type redisTurn struct {
	UserID string     `json:"user_id"`
	Turn   convo.Turn `json:"turn"`
}

func (r *RedisStore) AppendTurn(ctx context.Context, sessionID, userID string, t convo.Turn) error {
	b, err := json.Marshal(redisTurn{UserID: userID, Turn: t})
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}
	key := turnsKey(sessionID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, b)
	pipe.LTrim(ctx, key, -r.keep, -1)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (r *RedisStore) LoadRecentTurns(ctx context.Context, sessionID string, limit int) ([]convo.Turn, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := r.client.LRange(ctx, turnsKey(sessionID), start, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	out := make([]convo.Turn, 0, len(raw))
	for _, s := range raw {
		var rt redisTurn
		if err := json.Unmarshal([]byte(s), &rt); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		out = append(out, rt.Turn)
	}
	return out, nil
}

// SessionOwner reads the owner from the oldest kept turn.
func (r *RedisStore) SessionOwner(ctx context.Context, sessionID string) (string, error) {
	raw, err := r.client.LIndex(ctx, turnsKey(sessionID), 0).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load owner: %w", err)
	}
	var rt redisTurn
	if err := json.Unmarshal([]byte(raw), &rt); err != nil {
		return "", fmt.Errorf("unmarshal turn: %w", err)
	}
	return rt.UserID, nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
