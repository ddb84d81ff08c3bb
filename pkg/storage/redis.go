package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/navarrastar/gapscan/pkg/config"
	"github.com/navarrastar/gapscan/pkg/logging"
	"github.com/navarrastar/gapscan/pkg/models"
)

// RedisStore keeps drafts as JSON strings without TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed draft store.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("storage: redis client cannot be nil")
	}
	return &RedisStore{client: client}
}

// Load returns the draft stored under key
func (s *RedisStore) Load(ctx context.Context, key string) (models.FormDraft, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.FormDraft{}, ErrDraftNotFound
	}
	if err != nil {
		return models.FormDraft{}, fmt.Errorf("storage: redis get failed: %w", err)
	}
	return decode(b)
}

// Save overwrites the draft stored under key
func (s *RedisStore) Save(ctx context.Context, key string, draft models.FormDraft) error {
	b, err := encode(draft)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, b, 0).Err(); err != nil {
		return fmt.Errorf("storage: redis set failed: %w", err)
	}
	return nil
}

// Delete removes the draft stored under key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("storage: redis del failed: %w", err)
	}
	return nil
}

// BuildRedisClient returns a configured client, or nil when Redis is not
// configured or does not answer a ping.
func BuildRedisClient(ctx context.Context, cfg *config.Config, logger *logging.Logger) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, drafts kept in memory", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// Build returns the draft store for cfg: Redis when reachable, memory
// otherwise, always behind the degrading fallback.
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*FallbackStore, func() error) {
	client := BuildRedisClient(ctx, cfg, logger)
	if client == nil {
		return NewFallbackStore(nil, logger), func() error { return nil }
	}
	return NewFallbackStore(NewRedisStore(client), logger), client.Close
}
