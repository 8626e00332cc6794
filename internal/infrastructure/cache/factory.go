package cache

import (
	"fmt"

	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ClaimStoreFactory creates claim stores based on configuration
type ClaimStoreFactory struct {
	redisConfig           config.RedisConfig
	keyPrefix             string
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// ClaimStoreFactoryOption is a functional option for configuring the factory
type ClaimStoreFactoryOption func(*ClaimStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) ClaimStoreFactoryOption {
	return func(f *ClaimStoreFactory) {
		f.logger = logger
	}
}

// WithKeyPrefix overrides DefaultKeyPrefix
func WithKeyPrefix(prefix string) ClaimStoreFactoryOption {
	return func(f *ClaimStoreFactory) {
		f.keyPrefix = prefix
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory store
// when Redis is configured but unreachable. Default is true.
func WithInMemoryFallback(allow bool) ClaimStoreFactoryOption {
	return func(f *ClaimStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewClaimStoreFactory creates a new factory
func NewClaimStoreFactory(cfg config.RedisConfig, opts ...ClaimStoreFactoryOption) *ClaimStoreFactory {
	f := &ClaimStoreFactory{
		redisConfig:           cfg,
		keyPrefix:             DefaultKeyPrefix,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisStore connects to the configured Redis
func (f *ClaimStoreFactory) CreateRedisStore() (*RedisClaimStore, error) {
	store, err := NewRedisClaimStore(f.redisConfig, f.keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis claim store: %w", err)
	}
	return store, nil
}

// CreateInMemoryStore creates a process-local store.
// Claims are not shared across processes, so only a single worker process
// may run dispatches against it.
func (f *ClaimStoreFactory) CreateInMemoryStore() *InMemoryClaimStore {
	return NewInMemoryClaimStore()
}

// CreateStore returns the Redis store when a host is configured, otherwise
// the in-memory store. An unreachable Redis falls back to in-memory unless
// fallback was disabled.
func (f *ClaimStoreFactory) CreateStore() (shared.ClaimStore, error) {
	if f.redisConfig.Host == "" {
		f.logger.Info("Redis not configured, using in-memory claim store")
		return f.CreateInMemoryStore(), nil
	}

	store, err := f.CreateRedisStore()
	if err == nil {
		f.logger.Info("Using Redis claim store", zap.String("addr", f.redisConfig.Addr()))
		return store, nil
	}
	if !f.allowInMemoryFallback {
		return nil, err
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory claim store",
		zap.String("addr", f.redisConfig.Addr()),
		zap.Error(err))
	return f.CreateInMemoryStore(), nil
}
