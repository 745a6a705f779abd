package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/eventrelay/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPublisher struct {
	err   error
	calls int
}

func (s *scriptedPublisher) Publish(ctx context.Context, msg Message) error {
	s.calls++
	return s.err
}

func testMessage() Message {
	return Message{ID: uuid.New(), EventType: "order.created", Payload: []byte(`{}`)}
}

func TestBreakerPublisher_PassesThroughSuccess(t *testing.T) {
	inner := &scriptedPublisher{}
	bp := NewBreakerPublisher("test", inner, 3, 30*time.Second)

	err := bp.Publish(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, gobreaker.StateClosed, bp.State())
}

func TestBreakerPublisher_OpensAfterFailures(t *testing.T) {
	inner := &scriptedPublisher{err: Transient(errors.New("broker down"))}
	bp := NewBreakerPublisher("test", inner, 3, 30*time.Second)

	for i := 0; i < 5; i++ {
		bp.Publish(context.Background(), testMessage())
	}
	assert.Equal(t, gobreaker.StateOpen, bp.State())

	// An open circuit rejects without reaching the broker, classified as
	// transient so the event's retry budget handles it.
	callsBefore := inner.calls
	err := bp.Publish(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, domainErrors.ErrPublisherUnavailable)
	assert.Equal(t, callsBefore, inner.calls)
}

func TestBreakerPublisher_PreservesErrorClassification(t *testing.T) {
	inner := &scriptedPublisher{err: Permanent(errors.New("bad payload"))}
	bp := NewBreakerPublisher("test", inner, 100, 30*time.Second)

	err := bp.Publish(context.Background(), testMessage())
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestBreakerPublisher_StateChangeCallback(t *testing.T) {
	inner := &scriptedPublisher{err: Transient(errors.New("broker down"))}
	var transitions []gobreaker.State
	bp := NewBreakerPublisher("test", inner, 3, 30*time.Second,
		WithStateChange(func(name string, from, to gobreaker.State) {
			transitions = append(transitions, to)
		}),
	)

	for i := 0; i < 5; i++ {
		bp.Publish(context.Background(), testMessage())
	}

	require.NotEmpty(t, transitions)
	assert.Equal(t, gobreaker.StateOpen, transitions[len(transitions)-1])
}
