package convctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "conv:"

// RedisStore persists conversation context in a shared Redis instance under
// "conv:<session_id>" JSON values, so multiple gateway instances see the
// same memory for a call.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed context store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(sessionID string) string {
	return keyPrefix + sessionID
}

func (s *RedisStore) GetContext(ctx context.Context, sessionID string) (Context, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return Empty(), nil
	}
	if err != nil {
		return Empty(), fmt.Errorf("convctx: redis get: %w", err)
	}

	var stored Context
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		// Corrupt value; treat as absent rather than poisoning the call.
		return Empty(), nil
	}
	if stored.History == nil {
		stored.History = []Turn{}
	}
	return stored, nil
}

func (s *RedisStore) SaveTurn(ctx context.Context, sessionID, userText, aiText string) error {
	stored, err := s.GetContext(ctx, sessionID)
	if err != nil {
		return err
	}
	stored.History = append(stored.History, Turn{UserText: userText, AIText: aiText})

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("convctx: marshal: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("convctx: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Reset(ctx context.Context, sessionID string) (Context, error) {
	fresh := Context{History: []Turn{}, Entities: map[string]string{}}
	data, err := json.Marshal(fresh)
	if err != nil {
		return Empty(), fmt.Errorf("convctx: marshal: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sessionID), data, 0).Err(); err != nil {
		return Empty(), fmt.Errorf("convctx: redis set: %w", err)
	}
	return fresh, nil
}

func (s *RedisStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("convctx: redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) AllSessions(ctx context.Context) ([]string, error) {
	keys, err := s.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("convctx: redis keys: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, keyPrefix))
	}
	return ids, nil
}
