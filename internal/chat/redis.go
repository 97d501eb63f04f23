package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisHistoryStore keeps transcripts in a Redis list per session, with
// the key TTL refreshed on every append.
type RedisHistoryStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisHistoryStore constructs a RedisHistoryStore.
func NewRedisHistoryStore(client *redis.Client, prefix string, ttl time.Duration) *RedisHistoryStore {
	return &RedisHistoryStore{
		client: client,
		prefix: strings.TrimSpace(prefix),
		ttl:    normalizeTTL(ttl),
	}
}

// Append adds a turn to the session transcript.
func (s *RedisHistoryStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	payload, errMarshal := json.Marshal(turn)
	if errMarshal != nil {
		return fmt.Errorf("chat: marshal turn: %w", errMarshal)
	}
	key := s.buildKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, s.ttl)
	if _, errExec := pipe.Exec(ctx); errExec != nil {
		return fmt.Errorf("chat: append turn: %w", errExec)
	}
	return nil
}

// Turns returns the session transcript in order.
func (s *RedisHistoryStore) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	raw, errRange := s.client.LRange(ctx, s.buildKey(sessionID), 0, -1).Result()
	if errRange != nil {
		if errors.Is(errRange, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("chat: read turns: %w", errRange)
	}
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var turn Turn
		if errUnmarshal := json.Unmarshal([]byte(item), &turn); errUnmarshal != nil {
			return nil, fmt.Errorf("chat: decode turn: %w", errUnmarshal)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// DropLast removes the most recent turn of the session.
func (s *RedisHistoryStore) DropLast(ctx context.Context, sessionID string) error {
	if errPop := s.client.RPop(ctx, s.buildKey(sessionID)).Err(); errPop != nil && !errors.Is(errPop, redis.Nil) {
		return fmt.Errorf("chat: drop last turn: %w", errPop)
	}
	return nil
}

// Clear removes the session transcript.
func (s *RedisHistoryStore) Clear(ctx context.Context, sessionID string) error {
	if errDel := s.client.Del(ctx, s.buildKey(sessionID)).Err(); errDel != nil && !errors.Is(errDel, redis.Nil) {
		return fmt.Errorf("chat: clear session: %w", errDel)
	}
	return nil
}

func (s *RedisHistoryStore) buildKey(sessionID string) string {
	if s.prefix == "" {
		return "hist:" + sessionID
	}
	return s.prefix + ":" + sessionID
}
