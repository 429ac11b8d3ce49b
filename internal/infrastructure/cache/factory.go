package cache

import (
	"fmt"
	"time"

	"github.com/erp/utilitybilling/internal/application/reconciliation"
	"github.com/erp/utilitybilling/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Store is a balance cache that owns a connection or goroutine
type Store interface {
	reconciliation.BalanceCache
	Close() error
}

// FactoryOption configures a BalanceCacheFactory
type FactoryOption func(*BalanceCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *BalanceCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// the in-memory cache. The default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *BalanceCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// BalanceCacheFactory builds the balance cache named by the configuration
type BalanceCacheFactory struct {
	redisConfig           config.RedisConfig
	ttl                   time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// NewBalanceCacheFactory creates a factory for snapshots living ttl
func NewBalanceCacheFactory(cfg config.RedisConfig, ttl time.Duration, opts ...FactoryOption) *BalanceCacheFactory {
	f := &BalanceCacheFactory{
		redisConfig:           cfg,
		ttl:                   ttl,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore returns a Redis cache when Redis is enabled and reachable and
// an in-memory cache otherwise
func (f *BalanceCacheFactory) CreateStore() (Store, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory balance cache")
		return NewInMemoryBalanceCache(f.ttl, f.ttl), nil
	}

	store, err := NewRedisBalanceCache(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}, f.ttl)
	if err == nil {
		f.logger.Info("Using Redis balance cache",
			zap.String("host", f.redisConfig.Host),
			zap.Duration("ttl", f.ttl),
		)
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for the balance cache but unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory balance cache. "+
		"Invalidations will not reach other engine processes.",
		zap.Error(err),
	)
	return NewInMemoryBalanceCache(f.ttl, f.ttl), nil
}
