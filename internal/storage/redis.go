package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"astro_insight/internal/core"
	"astro_insight/src/model"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis with a sliding TTL
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and checks the connection
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Load reads a session and extends its TTL
func (r *RedisStore) Load(ctx context.Context, sessionID string) (*core.Session, error) {
	key := model.SessionKey(sessionID)
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session data: %w", err)
	}

	var session core.Session
	if err := sonic.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to extend TTL: %w", err)
	}
	return &session, nil
}

// Save stores the session with the configured TTL
func (r *RedisStore) Save(ctx context.Context, session *core.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	data, err := sonic.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	if err := r.client.Set(ctx, model.SessionKey(session.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session data: %w", err)
	}
	return nil
}

// Delete removes a session from Redis
func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, model.SessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// TTL reports the remaining lifetime of a session
func (r *RedisStore) TTL(ctx context.Context, sessionID string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, model.SessionKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get TTL: %w", err)
	}
	return ttl, nil
}

// Ping tests the Redis connection
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
