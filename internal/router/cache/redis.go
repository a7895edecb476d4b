package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/tiers"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/shared/redis"
)

// RedisStore keeps cache entries in Redis, using native key expiry in
// place of the lazy purge the SQLite store performs.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type redisEntry struct {
	Response  string    `json:"response"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
}

func redisKey(prompt string, tier tiers.Tier) string {
	return "cache:exact:" + Key(prompt, tier)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, prompt string, tier tiers.Tier) (string, bool, error) {
	val, found, err := s.client.Get(ctx, redisKey(prompt, tier))
	if err != nil {
		return "", false, fmt.Errorf("cache read failed: %w", err)
	}
	if !found {
		return "", false, nil
	}

	var entry redisEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return "", false, fmt.Errorf("failed to deserialize cached response: %w", err)
	}
	return entry.Response, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, prompt string, tier tiers.Tier, response string, ttl time.Duration) error {
	data, err := json.Marshal(redisEntry{
		Response:  response,
		Tier:      string(tier),
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize response: %w", err)
	}
	return s.client.Set(ctx, redisKey(prompt, tier), string(data), ttl)
}

// Close implements Store. The Redis client is shared and closed by its
// owner.
func (s *RedisStore) Close() error {
	return nil
}
