package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces claim keys in a shared Redis
const DefaultKeyPrefix = "postcard:claim:"

// RedisClaimStore shares dispatch claims through Redis.
// Workers on several hosts share claims through it, so a campaign dispatch
// runs on one host at a time.
type RedisClaimStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisClaimStore connects to Redis and verifies the connection
func NewRedisClaimStore(cfg config.RedisConfig, keyPrefix string) (*RedisClaimStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}

	return NewRedisClaimStoreWithClient(client, keyPrefix), nil
}

// NewRedisClaimStoreWithClient creates a store with an existing Redis client
func NewRedisClaimStoreWithClient(client *redis.Client, keyPrefix string) *RedisClaimStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisClaimStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Claim claims a key for ttl with SETNX. It returns false when another
// holder already owns the claim.
func (s *RedisClaimStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", key, err)
	}
	return ok, nil
}

// IsClaimed reports whether a claim is currently held
func (s *RedisClaimStore) IsClaimed(ctx context.Context, key string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check claim %s: %w", key, err)
	}
	return exists > 0, nil
}

// Release drops a claim before its TTL runs out
func (s *RedisClaimStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release claim %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection
func (s *RedisClaimStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisClaimStore) Close() error {
	return s.client.Close()
}

var _ shared.ClaimStore = (*RedisClaimStore)(nil)
