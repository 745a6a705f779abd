package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	domainErrors "github.com/cassiomorais/eventrelay/internal/domain/errors"
	"github.com/cassiomorais/eventrelay/internal/infrastructure/config"
	"github.com/cassiomorais/eventrelay/internal/publisher"
)

// Publisher delivers outbox events to a Kafka topic through a synchronous
// producer. The aggregate ID is used as the partition key so events of one
// aggregate land on one partition in order.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(cfg *config.KafkaConfig) (*Publisher, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	saramaCfg.Producer.Retry.Max = cfg.MaxRetries
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Idempotent = saramaCfg.Producer.RequiredAcks == sarama.WaitForAll
	if saramaCfg.Producer.Idempotent {
		saramaCfg.Net.MaxOpenRequests = 1
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &Publisher{producer: producer, topic: cfg.Topic}, nil
}

func (p *Publisher) Publish(ctx context.Context, msg publisher.Message) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return publisher.Transient(fmt.Errorf("%w: %v", domainErrors.ErrPublishTimeout, err))
		}
		return publisher.Transient(err)
	}

	pm := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(partitionKey(msg)),
		Value: sarama.ByteEncoder(msg.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_id"), Value: []byte(msg.ID.String())},
			{Key: []byte("event_type"), Value: []byte(msg.EventType)},
			{Key: []byte("aggregate_type"), Value: []byte(msg.AggregateType)},
			{Key: []byte("occurred_at"), Value: []byte(msg.OccurredAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"))},
		},
	}

	if _, _, err := p.producer.SendMessage(pm); err != nil {
		return classify(err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}

func partitionKey(msg publisher.Message) string {
	if msg.AggregateID != "" {
		return msg.AggregateID
	}
	return msg.ID.String()
}

// classify maps sarama errors onto the relay's transient/permanent taxonomy.
// Broker rejections of the message itself will not heal on retry; everything
// else (leader elections, timeouts, connectivity) will.
func classify(err error) error {
	var kerr sarama.KError
	if errors.As(err, &kerr) {
		switch kerr {
		case sarama.ErrMessageSizeTooLarge,
			sarama.ErrInvalidMessage,
			sarama.ErrInvalidTopic,
			sarama.ErrUnknownTopicOrPartition,
			sarama.ErrTopicAuthorizationFailed:
			return publisher.Permanent(fmt.Errorf("%w: %v", domainErrors.ErrPublishRejected, err))
		}
	}
	return publisher.Transient(fmt.Errorf("%w: %v", domainErrors.ErrPublisherUnavailable, err))
}
