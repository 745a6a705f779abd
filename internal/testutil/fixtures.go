package testutil

import (
	"time"

	"github.com/cassiomorais/eventrelay/internal/domain/outbox"
	"github.com/google/uuid"
)

// NewTestEvent builds a pending event with the given creation time, which is
// the dispatch ordering key.
func NewTestEvent(eventType string, createdAt time.Time) *outbox.Event {
	return &outbox.Event{
		ID:          uuid.New(),
		EventType:   eventType,
		Payload:     []byte(`{"test":true}`),
		OccurredAt:  createdAt,
		CreatedAt:   createdAt,
		NextRetryAt: createdAt,
	}
}

// NewTestEventForAggregate builds a pending event linked to an aggregate.
func NewTestEventForAggregate(eventType string, aggregateType string, aggregateID uuid.UUID, createdAt time.Time) *outbox.Event {
	e := NewTestEvent(eventType, createdAt)
	e.AggregateType = &aggregateType
	e.AggregateID = &aggregateID
	return e
}
