package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/utilitybilling/internal/application/reconciliation"
	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/google/uuid"
)

type entry struct {
	balance   ledger.AccountBalance
	expiresAt time.Time
}

// InMemoryBalanceCache keeps snapshots in a process-local map. It suits a
// single engine process and tests; separate processes do not see each
// other's invalidations.
type InMemoryBalanceCache struct {
	mu        sync.RWMutex
	entries   map[uuid.UUID]entry
	ttl       time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryBalanceCache creates the cache and starts a goroutine that
// drops expired snapshots every cleanupInterval. Close stops it.
func NewInMemoryBalanceCache(ttl, cleanupInterval time.Duration) *InMemoryBalanceCache {
	c := &InMemoryBalanceCache{
		entries:  make(map[uuid.UUID]entry),
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	c.wg.Add(1)
	go c.cleanupLoop(cleanupInterval)
	return c
}

// Get returns a copy of the snapshot, or nil when absent or expired
func (c *InMemoryBalanceCache) Get(_ context.Context, accountID uuid.UUID) (*ledger.AccountBalance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[accountID]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, nil
	}
	balance := e.balance
	return &balance, nil
}

// Set stores a copy of the snapshot
func (c *InMemoryBalanceCache) Set(_ context.Context, balance *ledger.AccountBalance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[balance.AccountID] = entry{balance: *balance, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Invalidate drops the snapshots of the given accounts
func (c *InMemoryBalanceCache) Invalidate(_ context.Context, accountIDs ...uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range accountIDs {
		delete(c.entries, id)
	}
	return nil
}

// Size returns the number of stored snapshots, expired ones included
func (c *InMemoryBalanceCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *InMemoryBalanceCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

func (c *InMemoryBalanceCache) cleanupLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *InMemoryBalanceCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, id)
		}
	}
}

var _ reconciliation.BalanceCache = (*InMemoryBalanceCache)(nil)
