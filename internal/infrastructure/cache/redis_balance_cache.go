// Package cache holds account balance snapshots between reconciliations.
// A snapshot is dropped whenever a reconciliation, reversal or credit expiry
// commits for its account.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/utilitybilling/internal/application/reconciliation"
	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "billing:balance:"

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// RedisBalanceCache stores balance snapshots as JSON strings with a TTL.
// It is shared by every engine instance pointing at the same Redis.
type RedisBalanceCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisBalanceCache connects to Redis and verifies the connection
func NewRedisBalanceCache(cfg RedisConfig, ttl time.Duration) (*RedisBalanceCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisBalanceCacheWithClient(client, "", ttl), nil
}

// NewRedisBalanceCacheWithClient wraps an existing client
func NewRedisBalanceCacheWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisBalanceCache {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisBalanceCache{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (c *RedisBalanceCache) key(accountID uuid.UUID) string {
	return c.keyPrefix + accountID.String()
}

// Get returns the snapshot, or nil when none is cached
func (c *RedisBalanceCache) Get(ctx context.Context, accountID uuid.UUID) (*ledger.AccountBalance, error) {
	raw, err := c.client.Get(ctx, c.key(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read balance snapshot: %w", err)
	}
	var balance ledger.AccountBalance
	if err := json.Unmarshal(raw, &balance); err != nil {
		return nil, fmt.Errorf("failed to decode balance snapshot: %w", err)
	}
	return &balance, nil
}

// Set stores the snapshot with the cache TTL
func (c *RedisBalanceCache) Set(ctx context.Context, balance *ledger.AccountBalance) error {
	raw, err := json.Marshal(balance)
	if err != nil {
		return fmt.Errorf("failed to encode balance snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key(balance.AccountID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write balance snapshot: %w", err)
	}
	return nil
}

// Invalidate removes the snapshots of the given accounts in one DEL
func (c *RedisBalanceCache) Invalidate(ctx context.Context, accountIDs ...uuid.UUID) error {
	if len(accountIDs) == 0 {
		return nil
	}
	keys := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		keys[i] = c.key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate balance snapshots: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisBalanceCache) Close() error {
	return c.client.Close()
}

var _ reconciliation.BalanceCache = (*RedisBalanceCache)(nil)
