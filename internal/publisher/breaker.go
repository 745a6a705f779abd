package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/eventrelay/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// BreakerPublisher wraps a Publisher with a circuit breaker so a struggling
// broker sheds load instead of absorbing every retry. An open circuit is
// reported as a transient error and counts against the event's retry budget
// like any other delivery failure.
type BreakerPublisher struct {
	inner   Publisher
	breaker *gobreaker.CircuitBreaker[struct{}]
	onState func(name string, from, to gobreaker.State)
}

type BreakerOption func(*BreakerPublisher)

// WithStateChange registers a callback for breaker state transitions,
// typically wired to a metrics gauge.
func WithStateChange(fn func(name string, from, to gobreaker.State)) BreakerOption {
	return func(b *BreakerPublisher) { b.onState = fn }
}

// NewBreakerPublisher builds the wrapper. The breaker trips when at least
// threshold requests in the rolling interval have a failure ratio >= 0.6.
func NewBreakerPublisher(name string, inner Publisher, threshold uint32, timeout time.Duration, opts ...BreakerOption) *BreakerPublisher {
	b := &BreakerPublisher{inner: inner}
	for _, opt := range opts {
		opt(b)
	}

	b.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= threshold && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if b.onState != nil {
				b.onState(name, from, to)
			}
		},
	})
	return b
}

func (b *BreakerPublisher) Publish(ctx context.Context, msg Message) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.inner.Publish(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Transient(fmt.Errorf("%w: %v", domainErrors.ErrPublisherUnavailable, err))
		}
		return err
	}
	return nil
}

// State exposes the current breaker state for health reporting.
func (b *BreakerPublisher) State() gobreaker.State {
	return b.breaker.State()
}
