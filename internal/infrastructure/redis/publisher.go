package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/eventrelay/internal/domain/errors"
	"github.com/cassiomorais/eventrelay/internal/publisher"
	"github.com/redis/go-redis/v9"
)

// StreamPublisher delivers outbox events to a Redis stream. It holds no
// state beyond the client and is safe for concurrent relay instances.
type StreamPublisher struct {
	client           *redis.Client
	stream           string
	deadLetterStream string
}

func NewStreamPublisher(client *redis.Client, stream, deadLetterStream string) *StreamPublisher {
	return &StreamPublisher{
		client:           client,
		stream:           stream,
		deadLetterStream: deadLetterStream,
	}
}

// Publish appends the event to the stream. Broker failures are transient by
// classification: Redis being down is exactly what the retry budget is for.
func (p *StreamPublisher) Publish(ctx context.Context, msg publisher.Message) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: streamValues(msg),
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return publisher.Transient(fmt.Errorf("%w: xadd %s: %v", domainErrors.ErrPublishTimeout, p.stream, err))
		}
		return publisher.Transient(fmt.Errorf("%w: xadd %s: %v", domainErrors.ErrPublisherUnavailable, p.stream, err))
	}
	return nil
}

// DeadLetter appends a terminally failed event to the DLQ stream together
// with the failure reason for manual inspection.
func (p *StreamPublisher) DeadLetter(ctx context.Context, msg publisher.Message, reason string) error {
	values := streamValues(msg)
	values["reason"] = reason

	args := &redis.XAddArgs{
		Stream: p.deadLetterStream,
		Values: values,
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.deadLetterStream, err)
	}
	return nil
}

func streamValues(msg publisher.Message) map[string]any {
	return map[string]any{
		"event_id":       msg.ID.String(),
		"event_type":     msg.EventType,
		"aggregate_id":   msg.AggregateID,
		"aggregate_type": msg.AggregateType,
		"payload":        string(msg.Payload),
		"occurred_at":    msg.OccurredAt.Unix(),
		"published_at":   time.Now().Unix(),
	}
}
