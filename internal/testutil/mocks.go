package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cassiomorais/eventrelay/internal/domain/outbox"
	"github.com/cassiomorais/eventrelay/internal/publisher"
	"github.com/google/uuid"
)

// --- Outbox Store Mock ---

// MockStore is an in-memory implementation of outbox.Store with the same
// claim, lease and terminal-state semantics as the postgres store.
type MockStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*outbox.Event
	seq    int64

	AppendFunc     func(ctx context.Context, event *outbox.Event) error
	ClaimBatchFunc func(ctx context.Context, req outbox.ClaimRequest) ([]*outbox.Event, error)
}

func NewMockStore() *MockStore {
	return &MockStore{events: make(map[uuid.UUID]*outbox.Event)}
}

type txStageKey struct{}

type txStage struct {
	staged []*outbox.Event
}

func (m *MockStore) Append(ctx context.Context, event *outbox.Event) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		m.seq++
		event.CreatedAt = time.Unix(0, m.seq)
	}
	if event.NextRetryAt.IsZero() {
		event.NextRetryAt = event.CreatedAt
	}

	if stage, ok := ctx.Value(txStageKey{}).(*txStage); ok {
		stage.staged = append(stage.staged, event)
		return nil
	}
	m.events[event.ID] = event
	return nil
}

func (m *MockStore) ClaimBatch(ctx context.Context, req outbox.ClaimRequest) ([]*outbox.Event, error) {
	if m.ClaimBatchFunc != nil {
		return m.ClaimBatchFunc(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]*outbox.Event, 0, len(m.events))
	leaseExpiry := req.Now.Add(-req.Lease)
	for _, e := range m.events {
		if e.Published || e.Failed {
			continue
		}
		if e.RetryCount >= req.MaxRetries {
			continue
		}
		if e.NextRetryAt.After(req.Now) {
			continue
		}
		if e.ClaimedAt != nil && e.ClaimedAt.After(leaseExpiry) {
			continue
		}
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if req.Limit > 0 && len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}

	claimed := make([]*outbox.Event, 0, len(candidates))
	for _, e := range candidates {
		now := req.Now
		by := req.ClaimedBy
		e.ClaimedAt = &now
		e.ClaimedBy = &by
		copied := *e
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

func (m *MockStore) MarkPublished(ctx context.Context, id uuid.UUID, claimedBy string, publishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil
	}
	// Terminal states are absorbing; repeated confirmations are no-ops.
	if e.Published || e.Failed {
		return nil
	}
	// Fenced: a claimant whose lease was taken over writes nothing.
	if e.ClaimedAt != nil && (e.ClaimedBy == nil || *e.ClaimedBy != claimedBy) {
		return nil
	}
	e.Published = true
	e.PublishedAt = &publishedAt
	e.ClaimedAt = nil
	e.ClaimedBy = nil
	return nil
}

func (m *MockStore) MarkFailedAttempt(ctx context.Context, id uuid.UUID, claimedBy string, errorMessage string, nextRetryAt time.Time, maxRetries int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil
	}
	if e.Published || e.Failed {
		return nil
	}
	// Fenced: only the current claim holder may record the attempt.
	if e.ClaimedBy == nil || *e.ClaimedBy != claimedBy {
		return nil
	}
	e.RetryCount++
	e.ErrorMessage = &errorMessage
	e.NextRetryAt = nextRetryAt
	if e.RetryCount >= maxRetries {
		e.Failed = true
	}
	e.ClaimedAt = nil
	e.ClaimedBy = nil
	return nil
}

func (m *MockStore) ReleaseClaims(ctx context.Context, claimedBy string, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		e, ok := m.events[id]
		if !ok || e.Published || e.Failed {
			continue
		}
		if e.ClaimedBy != nil && *e.ClaimedBy == claimedBy {
			e.ClaimedAt = nil
			e.ClaimedBy = nil
		}
	}
	return nil
}

func (m *MockStore) ResetFailed(ctx context.Context, ids []uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match := func(id uuid.UUID) bool {
		if len(ids) == 0 {
			return true
		}
		for _, want := range ids {
			if want == id {
				return true
			}
		}
		return false
	}
	var reset int64
	for id, e := range m.events {
		if e.Failed && match(id) {
			e.Failed = false
			e.RetryCount = 0
			e.ErrorMessage = nil
			e.NextRetryAt = time.Now()
			reset++
		}
	}
	return reset, nil
}

func (m *MockStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, e := range m.events {
		if e.CreatedAt.Before(cutoff) && (e.Published || e.Failed) {
			delete(m.events, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MockStore) ListByAggregate(ctx context.Context, aggregateID uuid.UUID, limit int) ([]*outbox.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*outbox.Event
	for _, e := range m.events {
		if e.AggregateID != nil && *e.AggregateID == aggregateID {
			copied := *e
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockStore) GetStats(ctx context.Context) (*outbox.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &outbox.Stats{}
	for _, e := range m.events {
		switch {
		case e.Failed:
			stats.Failed++
		case !e.Published:
			stats.Pending++
			if stats.OldestPendingAt == nil || e.CreatedAt.Before(*stats.OldestPendingAt) {
				createdAt := e.CreatedAt
				stats.OldestPendingAt = &createdAt
			}
		}
	}
	return stats, nil
}

// Get returns the stored event by id, or nil.
func (m *MockStore) Get(id uuid.UUID) *outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil
	}
	copied := *e
	return &copied
}

// Len returns the number of stored events.
func (m *MockStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// --- Transaction Manager Mock ---

// MockTxManager stages appends on the context and applies them only when fn
// succeeds, mirroring the atomic append/rollback contract of the real
// TxManager.
type MockTxManager struct {
	store *MockStore
}

func NewMockTxManager(store *MockStore) *MockTxManager {
	return &MockTxManager{store: store}
}

func (m *MockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	stage := &txStage{}
	txCtx := context.WithValue(ctx, txStageKey{}, stage)

	if err := fn(txCtx); err != nil {
		return err
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, e := range stage.staged {
		m.store.events[e.ID] = e
	}
	return nil
}

// --- Publisher Mock ---

// MockPublisher records successful publishes in order and fails on demand.
type MockPublisher struct {
	mu        sync.Mutex
	published []publisher.Message
	failures  map[uuid.UUID]int
	failErr   error

	PublishFunc func(ctx context.Context, msg publisher.Message) error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{failures: make(map[uuid.UUID]int)}
}

// FailFor makes the next n publishes of the given event fail.
func (m *MockPublisher) FailFor(id uuid.UUID, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = n
	m.failErr = err
}

// AlwaysFail makes every publish fail with err.
func (m *MockPublisher) AlwaysFail(err error) {
	m.PublishFunc = func(ctx context.Context, msg publisher.Message) error {
		return err
	}
}

func (m *MockPublisher) Publish(ctx context.Context, msg publisher.Message) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if remaining, ok := m.failures[msg.ID]; ok && remaining > 0 {
		m.failures[msg.ID] = remaining - 1
		return m.failErr
	}
	m.published = append(m.published, msg)
	return nil
}

// Published returns the successfully published messages in publish order.
func (m *MockPublisher) Published() []publisher.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]publisher.Message, len(m.published))
	copy(out, m.published)
	return out
}

// --- Dead Letterer Mock ---

type DeadLetteredMessage struct {
	Message publisher.Message
	Reason  string
}

type MockDeadLetterer struct {
	mu       sync.Mutex
	messages []DeadLetteredMessage
}

func NewMockDeadLetterer() *MockDeadLetterer {
	return &MockDeadLetterer{}
}

func (m *MockDeadLetterer) DeadLetter(ctx context.Context, msg publisher.Message, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, DeadLetteredMessage{Message: msg, Reason: reason})
	return nil
}

func (m *MockDeadLetterer) Messages() []DeadLetteredMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeadLetteredMessage, len(m.messages))
	copy(out, m.messages)
	return out
}
