package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/erp/utilitybilling/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(balance string) *ledger.AccountBalance {
	return &ledger.AccountBalance{
		AccountID:        uuid.New(),
		OutstandingBills: 1,
		AmountDue:        decimal.RequireFromString(balance),
		Balance:          decimal.RequireFromString(balance),
		AsOf:             time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestInMemoryBalanceCache(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryBalanceCache(time.Minute, time.Hour)
	defer c.Close()

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	b := snapshot("120.50")
	miss, err := c.Get(ctx, b.AccountID)
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, c.Set(ctx, b))
	hit, err := c.Get(ctx, b.AccountID)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.True(t, hit.Balance.Equal(b.Balance))

	t.Run("returns a copy", func(t *testing.T) {
		hit.Balance = decimal.Zero
		again, err := c.Get(ctx, b.AccountID)
		require.NoError(t, err)
		assert.True(t, again.Balance.Equal(decimal.RequireFromString("120.50")))
	})

	t.Run("expires after the ttl", func(t *testing.T) {
		now = now.Add(time.Minute)
		expired, err := c.Get(ctx, b.AccountID)
		require.NoError(t, err)
		assert.Nil(t, expired)

		c.cleanup()
		assert.Zero(t, c.Size())
	})

	t.Run("invalidate drops every named account", func(t *testing.T) {
		first, second, other := snapshot("1"), snapshot("2"), snapshot("3")
		for _, s := range []*ledger.AccountBalance{first, second, other} {
			require.NoError(t, c.Set(ctx, s))
		}
		require.NoError(t, c.Invalidate(ctx, first.AccountID, second.AccountID))
		assert.Equal(t, 1, c.Size())

		left, err := c.Get(ctx, other.AccountID)
		require.NoError(t, err)
		assert.NotNil(t, left)
	})

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close(), "close is idempotent")
}

func TestBalanceCacheFactory_DisabledRedisUsesMemory(t *testing.T) {
	store, err := NewBalanceCacheFactory(config.RedisConfig{Enabled: false}, time.Minute).CreateStore()
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &InMemoryBalanceCache{}, store)
}

func TestBalanceCacheFactory_UnreachableRedis(t *testing.T) {
	cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}

	store, err := NewBalanceCacheFactory(cfg, time.Minute).CreateStore()
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &InMemoryBalanceCache{}, store)

	_, err = NewBalanceCacheFactory(cfg, time.Minute, WithInMemoryFallback(false)).CreateStore()
	assert.ErrorContains(t, err, "redis required")
}

// REDIS_ADDR points the test at a live server, e.g. localhost:6379
func TestRedisBalanceCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(ctx).Err())

	prefix := "test:balance:" + uuid.NewString() + ":"
	c := NewRedisBalanceCacheWithClient(client, prefix, time.Minute)
	defer c.Close()

	b := snapshot("88.10")
	miss, err := c.Get(ctx, b.AccountID)
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, c.Set(ctx, b))
	hit, err := c.Get(ctx, b.AccountID)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, b.AccountID, hit.AccountID)
	assert.True(t, hit.Balance.Equal(b.Balance))
	assert.True(t, hit.AsOf.Equal(b.AsOf))

	ttl, err := client.TTL(ctx, prefix+b.AccountID.String()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, c.Invalidate(ctx, b.AccountID, uuid.New()))
	gone, err := c.Get(ctx, b.AccountID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
