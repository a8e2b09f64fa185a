package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// RedisStore backs the limiter with a shared Redis instance so horizontally
// scaled deployments enforce one logical limit. Errors surface to the limiter
// unchanged, which handles them by failing open.
type RedisStore struct {
	client rueidis.Client
}

// NewRedisStore connects to Redis at addr
func NewRedisStore(addr string) (*RedisStore, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	cmd := s.client.B().Get().Key(s.redisKey(key)).Build()
	raw, err := s.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rate limit entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode rate limit entry: %w", err)
	}

	return &entry, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode rate limit entry: %w", err)
	}

	cmd := s.client.B().Set().Key(s.redisKey(key)).Value(string(raw)).
		Px(ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to store rate limit entry: %w", err)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	cmd := s.client.B().Del().Key(s.redisKey(key)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to delete rate limit entry: %w", err)
	}

	return nil
}

// Close releases the underlying client
func (s *RedisStore) Close() {
	s.client.Close()
}

func (s *RedisStore) redisKey(key string) string {
	return "ratelimit:" + key
}
