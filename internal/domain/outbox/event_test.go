package outbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	occurredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"order_id":"ord_123","total_cents":10000}`)

	event := NewEvent("order.created", payload, occurredAt)

	require.NotNil(t, event)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, "order.created", event.EventType)
	assert.Equal(t, payload, event.Payload)
	assert.Equal(t, occurredAt, event.OccurredAt)
	assert.Nil(t, event.AggregateID)
	assert.Nil(t, event.AggregateType)
	assert.False(t, event.Published)
	assert.False(t, event.Failed)
	assert.Equal(t, 0, event.RetryCount)
	assert.Nil(t, event.PublishedAt)
	assert.Nil(t, event.ErrorMessage)
}

func TestEvent_WithAggregate(t *testing.T) {
	aggregateID := uuid.New()
	event := NewEvent("order.created", []byte(`{}`), time.Now()).
		WithAggregate("order", aggregateID)

	require.NotNil(t, event.AggregateID)
	require.NotNil(t, event.AggregateType)
	assert.Equal(t, aggregateID, *event.AggregateID)
	assert.Equal(t, "order", *event.AggregateType)
}

func TestEvent_Status(t *testing.T) {
	tests := []struct {
		name      string
		published bool
		failed    bool
		want      Status
	}{
		{"pending", false, false, StatusPending},
		{"published", true, false, StatusPublished},
		{"failed", false, true, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Event{Published: tt.published, Failed: tt.failed}
			assert.Equal(t, tt.want, e.Status())
		})
	}
}

func TestEvent_Terminal(t *testing.T) {
	pending := &Event{}
	published := &Event{Published: true}
	failed := &Event{Failed: true}

	assert.False(t, pending.Terminal())
	assert.True(t, published.Terminal())
	assert.True(t, failed.Terminal())
}

func TestEvent_UniqueIDs(t *testing.T) {
	e1 := NewEvent("order.created", []byte(`{}`), time.Now())
	e2 := NewEvent("order.created", []byte(`{}`), time.Now())

	// Each event gets a unique ID even for identical content
	assert.NotEqual(t, e1.ID, e2.ID)
}

func TestStatus_Constants(t *testing.T) {
	assert.Equal(t, Status("pending"), StatusPending)
	assert.Equal(t, Status("published"), StatusPublished)
	assert.Equal(t, Status("failed"), StatusFailed)
}
