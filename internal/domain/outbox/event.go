package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Event is the unit of durable, at-least-once delivery work. A row is
// appended by a business transaction and mutated only by the relay.
type Event struct {
	ID            uuid.UUID
	EventType     string
	Payload       []byte
	AggregateID   *uuid.UUID
	AggregateType *string
	OccurredAt    time.Time
	CreatedAt     time.Time
	Published     bool
	PublishedAt   *time.Time
	Failed        bool
	ErrorMessage  *string
	RetryCount    int
	NextRetryAt   time.Time
	ClaimedAt     *time.Time
	ClaimedBy     *string
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// NewEvent builds a pending event. CreatedAt is assigned by the store on
// insert; OccurredAt is the producer's logical timestamp.
func NewEvent(eventType string, payload []byte, occurredAt time.Time) *Event {
	return &Event{
		ID:         uuid.New(),
		EventType:  eventType,
		Payload:    payload,
		OccurredAt: occurredAt,
	}
}

// WithAggregate attaches provenance linking the event to the business entity
// that produced it. Used for diagnostics and selective replay, not ordering.
func (e *Event) WithAggregate(aggregateType string, aggregateID uuid.UUID) *Event {
	e.AggregateType = &aggregateType
	e.AggregateID = &aggregateID
	return e
}

// Status derives the lifecycle state. Published and failed are mutually
// exclusive terminal states; pending is the absence of both.
func (e *Event) Status() Status {
	switch {
	case e.Published:
		return StatusPublished
	case e.Failed:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Terminal reports whether the event has reached an absorbing state.
func (e *Event) Terminal() bool {
	return e.Published || e.Failed
}
