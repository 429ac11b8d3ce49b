package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockOutboxRepository keeps entries in memory; fn fields override behaviour
type mockOutboxRepository struct {
	mu              sync.Mutex
	entries         map[uuid.UUID]*shared.OutboxEntry
	findPendingFn   func(ctx context.Context, limit int) ([]*shared.OutboxEntry, error)
	markProcessFn   func(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error)
	deleteOlderFn   func(ctx context.Context, before time.Time) (int64, error)
}

func newMockOutboxRepository() *mockOutboxRepository {
	return &mockOutboxRepository{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
}

func (r *mockOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		c := *e
		r.entries[e.ID] = &c
	}
	return nil
}

func (r *mockOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	if r.findPendingFn != nil {
		return r.findPendingFn(ctx, limit)
	}
	return r.byStatus(limit, func(e *shared.OutboxEntry) bool { return e.Status == shared.OutboxStatusPending }), nil
}

func (r *mockOutboxRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	return r.byStatus(limit, func(e *shared.OutboxEntry) bool {
		return e.Status == shared.OutboxStatusFailed && e.NextRetryAt != nil && !e.NextRetryAt.After(before)
	}), nil
}

func (r *mockOutboxRepository) byStatus(limit int, match func(*shared.OutboxEntry) bool) []*shared.OutboxEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		if match(e) {
			c := *e
			result = append(result, &c)
			if len(result) >= limit {
				break
			}
		}
	}
	return result
}

func (r *mockOutboxRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	if r.markProcessFn != nil {
		return r.markProcessFn(ctx, ids)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, id := range ids {
		if e, ok := r.entries[id]; ok {
			e.Status = shared.OutboxStatusProcessing
			c := *e
			result = append(result, &c)
		}
	}
	return result, nil
}

func (r *mockOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *entry
	r.entries[entry.ID] = &c
	return nil
}

func (r *mockOutboxRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	if r.deleteOlderFn != nil {
		return r.deleteOlderFn(ctx, before)
	}
	return 0, nil
}

func (r *mockOutboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e, nil
	}
	return nil, shared.ErrNotFound
}

func (r *mockOutboxRepository) FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	dead := r.byStatus(pageSize, func(e *shared.OutboxEntry) bool { return e.Status == shared.OutboxStatusDead })
	return dead, int64(len(dead)), nil
}

func (r *mockOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (r *mockOutboxRepository) get(id uuid.UUID) shared.OutboxEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.entries[id]
}

func (r *mockOutboxRepository) status(id uuid.UUID) shared.OutboxStatus {
	return r.get(id).Status
}

func newProcessorFixture(t *testing.T) (*mockOutboxRepository, *InMemoryEventBus, *EventSerializer, *OutboxProcessor) {
	t.Helper()
	serializer := NewEventSerializer()
	serializer.Register("TestEvent", &testEvent{})
	repo := newMockOutboxRepository()
	bus := NewInMemoryEventBus(zap.NewNop())
	cfg := OutboxProcessorConfig{BatchSize: 100, PollInterval: 20 * time.Millisecond}
	return repo, bus, serializer, NewOutboxProcessor(repo, bus, serializer, cfg, zap.NewNop())
}

func savePending(t *testing.T, repo *mockOutboxRepository, serializer *EventSerializer, eventType string) *shared.OutboxEntry {
	t.Helper()
	event := newTestEvent(eventType)
	payload, err := serializer.Serialize(event)
	if err != nil {
		payload = []byte(`{}`)
	}
	entry := shared.NewOutboxEntry(event, payload)
	require.NoError(t, repo.Save(context.Background(), entry))
	return entry
}

func TestOutboxProcessor_ProcessOnce_Delivers(t *testing.T) {
	repo, bus, serializer, processor := newProcessorFixture(t)
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler)
	entry := savePending(t, repo, serializer, "TestEvent")

	result, err := processor.ProcessOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, BatchResult{Sent: 1}, result)
	assert.Len(t, handler.getHandled(), 1)
	assert.Equal(t, shared.OutboxStatusSent, repo.status(entry.ID))
}

func TestOutboxProcessor_HandlerFailureSchedulesRetry(t *testing.T) {
	repo, bus, serializer, processor := newProcessorFixture(t)
	handler := newTestHandler("TestEvent")
	handler.setError(errors.New("downstream unavailable"))
	bus.Subscribe(handler)
	entry := savePending(t, repo, serializer, "TestEvent")

	result, err := processor.ProcessOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	stored := repo.get(entry.ID)
	assert.Equal(t, shared.OutboxStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.NotNil(t, stored.NextRetryAt)
	assert.Contains(t, stored.LastError, "downstream unavailable")
}

func TestOutboxProcessor_DeadLettersAfterMaxRetries(t *testing.T) {
	repo, _, _, processor := newProcessorFixture(t)
	event := newTestEvent("UnregisteredEvent")
	entry := shared.NewOutboxEntry(event, []byte(`{}`))
	entry.MaxRetries = 1
	require.NoError(t, repo.Save(context.Background(), entry))

	result, err := processor.ProcessOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Dead)
	stored := repo.get(entry.ID)
	assert.Equal(t, shared.OutboxStatusDead, stored.Status)
	assert.Contains(t, stored.LastError, "unknown event type")
}

func TestOutboxProcessor_ProcessOnce_PropagatesRepositoryErrors(t *testing.T) {
	repo, _, _, processor := newProcessorFixture(t)
	repo.findPendingFn = func(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
		return nil, errors.New("db down")
	}

	_, err := processor.ProcessOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestOutboxProcessor_SkipsEntriesClaimedElsewhere(t *testing.T) {
	repo, bus, serializer, processor := newProcessorFixture(t)
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler)
	savePending(t, repo, serializer, "TestEvent")
	repo.markProcessFn = func(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
		return nil, nil
	}

	result, err := processor.ProcessOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, result.Total())
	assert.Empty(t, handler.getHandled())
}

func TestOutboxProcessor_BackgroundLoop(t *testing.T) {
	repo, bus, serializer, processor := newProcessorFixture(t)
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler)
	entry := savePending(t, repo, serializer, "TestEvent")

	require.NoError(t, processor.Start(context.Background()))
	assert.Error(t, processor.Start(context.Background()), "double start is rejected")

	assert.Eventually(t, func() bool {
		return repo.status(entry.ID) == shared.OutboxStatusSent
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, processor.Stop(ctx))
	assert.Len(t, handler.getHandled(), 1)
}

func TestOutboxProcessor_Cleanup(t *testing.T) {
	repo, _, _, processor := newProcessorFixture(t)
	var cutoff time.Time
	repo.deleteOlderFn = func(ctx context.Context, before time.Time) (int64, error) {
		cutoff = before
		return 3, nil
	}
	processor.config.CleanupRetention = time.Hour

	assert.Equal(t, int64(3), processor.Cleanup(context.Background()))
	assert.WithinDuration(t, time.Now().Add(-time.Hour), cutoff, time.Second)
}

func TestDefaultOutboxProcessorConfig(t *testing.T) {
	config := DefaultOutboxProcessorConfig()

	assert.Equal(t, 100, config.BatchSize)
	assert.Equal(t, 5*time.Second, config.PollInterval)
	assert.True(t, config.CleanupEnabled)
	assert.Equal(t, 7*24*time.Hour, config.CleanupRetention)
	assert.Equal(t, time.Hour, config.CleanupInterval)
}
