package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/eventrelay/internal/domain/outbox"
	"github.com/cassiomorais/eventrelay/internal/infrastructure/observability"
	"github.com/cassiomorais/eventrelay/internal/publisher"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config is the dispatch loop policy. Backoff is linear: an event that fails
// with retry_count r becomes eligible again at now + InitialInterval +
// r*IntervalIncrement.
type Config struct {
	InstanceID        string
	PollInterval      time.Duration
	BatchSize         int
	MaxRetries        int
	InitialInterval   time.Duration
	IntervalIncrement time.Duration
	ClaimLease        time.Duration
	PublishTimeout    time.Duration
}

// NextRetryAt computes when an event with the given pre-increment retry
// count becomes eligible again after a failed attempt at now.
func (c Config) NextRetryAt(now time.Time, retryCount int) time.Time {
	return now.Add(c.InitialInterval + time.Duration(retryCount)*c.IntervalIncrement)
}

// CycleResult summarizes one dispatch cycle.
type CycleResult struct {
	Claimed      int
	Published    int
	Failed       int
	DeadLettered int
	Released     int
}

// Dispatcher drives pending outbox events to publication or terminal
// failure. Multiple instances may run against one store; exclusivity comes
// entirely from the store's atomic claim, so the dispatcher itself needs no
// locks.
type Dispatcher struct {
	store   outbox.Store
	pub     publisher.Publisher
	dlq     publisher.DeadLetterer
	clock   Clock
	cfg     Config
	logger  zerolog.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

type Option func(*Dispatcher)

// WithClock injects a clock, used by tests for deterministic backoff.
func WithClock(c Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithDeadLetterer routes terminally failed events to a dead-letter sink in
// addition to the error log.
func WithDeadLetterer(dlq publisher.DeadLetterer) Option {
	return func(d *Dispatcher) { d.dlq = dlq }
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics wires dispatch counters and backlog gauges.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(store outbox.Store, pub publisher.Publisher, cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		pub:    pub,
		clock:  SystemClock(),
		cfg:    cfg,
		logger: zerolog.Nop(),
		tracer: otel.Tracer("eventrelay/relay"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run polls on the configured cadence until ctx is cancelled. Cancellation
// is the graceful shutdown path: the in-flight publish finishes (bounded by
// PublishTimeout) and the unprocessed remainder of the batch is released.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().
		Str("instance_id", d.cfg.InstanceID).
		Dur("poll_interval", d.cfg.PollInterval).
		Int("batch_size", d.cfg.BatchSize).
		Int("max_retries", d.cfg.MaxRetries).
		Msg("Dispatcher started")

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("Dispatch cycle failed")
			if d.metrics != nil {
				d.metrics.DispatchCycles.WithLabelValues("error").Inc()
			}
		}

		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Dispatcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single claim-publish-reconcile cycle. Exposed for
// deterministic tests and for the strict-ordering leader loop.
func (d *Dispatcher) RunOnce(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	now := d.clock.Now()
	batch, err := d.store.ClaimBatch(ctx, outbox.ClaimRequest{
		Limit:      d.cfg.BatchSize,
		MaxRetries: d.cfg.MaxRetries,
		ClaimedBy:  d.cfg.InstanceID,
		Now:        now,
		Lease:      d.cfg.ClaimLease,
	})
	if err != nil {
		return res, fmt.Errorf("claim batch: %w", err)
	}
	res.Claimed = len(batch)

	if d.metrics != nil {
		d.metrics.ClaimBatchSize.Observe(float64(len(batch)))
	}
	if len(batch) == 0 {
		d.refreshBacklog(ctx)
		if d.metrics != nil {
			d.metrics.DispatchCycles.WithLabelValues("empty").Inc()
		}
		return res, nil
	}

	cycleCtx, span := d.tracer.Start(ctx, "dispatch.cycle",
		trace.WithAttributes(attribute.Int("outbox.batch_size", len(batch))))
	defer span.End()

	// Claimed order is created_at ascending; dispatch preserves it within
	// this instance. Interleaving across instances is documented behavior.
	for i, event := range batch {
		if cycleCtx.Err() != nil {
			d.releaseRemainder(cycleCtx, batch[i:], &res)
			break
		}
		d.dispatch(cycleCtx, event, &res)
	}

	d.refreshBacklog(ctx)
	if d.metrics != nil {
		d.metrics.DispatchCycles.WithLabelValues("dispatched").Inc()
	}
	d.logger.Debug().
		Int("claimed", res.Claimed).
		Int("published", res.Published).
		Int("failed", res.Failed).
		Msg("Dispatch cycle complete")
	return res, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, event *outbox.Event, res *CycleResult) {
	msg := toMessage(event)

	pubCtx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	start := time.Now()
	err := d.pub.Publish(pubCtx, msg)
	cancel()
	elapsed := time.Since(start).Seconds()

	// Outcomes are persisted even when shutdown races the publish; losing a
	// confirmed publish would cause a duplicate delivery on restart.
	markCtx := context.WithoutCancel(ctx)

	if err == nil {
		if d.metrics != nil {
			d.metrics.PublishDuration.WithLabelValues(event.EventType, "success").Observe(elapsed)
		}
		if markErr := d.store.MarkPublished(markCtx, event.ID, d.cfg.InstanceID, d.clock.Now()); markErr != nil {
			d.logger.Error().Err(markErr).Str("event_id", event.ID.String()).Msg("Failed to mark event published")
			return
		}
		if d.metrics != nil {
			d.metrics.EventsPublished.WithLabelValues(event.EventType).Inc()
		}
		res.Published++
		return
	}

	if d.metrics != nil {
		d.metrics.PublishDuration.WithLabelValues(event.EventType, "failure").Observe(elapsed)
	}
	d.recordFailure(markCtx, event, msg, err, res)
}

func (d *Dispatcher) recordFailure(ctx context.Context, event *outbox.Event, msg publisher.Message, pubErr error, res *CycleResult) {
	nextRetryAt := d.cfg.NextRetryAt(d.clock.Now(), event.RetryCount)
	terminal := event.RetryCount+1 >= d.cfg.MaxRetries

	if markErr := d.store.MarkFailedAttempt(ctx, event.ID, d.cfg.InstanceID, pubErr.Error(), nextRetryAt, d.cfg.MaxRetries); markErr != nil {
		d.logger.Error().Err(markErr).Str("event_id", event.ID.String()).Msg("Failed to record delivery failure")
		return
	}
	res.Failed++

	errClass := publisher.Classification(pubErr)
	if d.metrics != nil {
		d.metrics.EventsFailed.WithLabelValues(event.EventType, errClass, fmt.Sprintf("%t", terminal)).Inc()
	}

	if !terminal {
		d.logger.Warn().
			Err(pubErr).
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Str("error_class", errClass).
			Int("retry_count", event.RetryCount+1).
			Time("next_retry_at", nextRetryAt).
			Msg("Delivery attempt failed, will retry")
		return
	}

	// Terminal failure is an operator-facing outcome: the event will not be
	// retried again without a manual reset.
	d.logger.Error().
		Err(pubErr).
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("error_class", errClass).
		Int("retry_count", event.RetryCount+1).
		Msg("Event exhausted retry budget, marked failed")

	if d.dlq != nil {
		if dlqErr := d.dlq.DeadLetter(ctx, msg, pubErr.Error()); dlqErr != nil {
			d.logger.Error().Err(dlqErr).Str("event_id", event.ID.String()).Msg("Failed to dead-letter event")
		} else {
			if d.metrics != nil {
				d.metrics.EventsDeadLettered.WithLabelValues(event.EventType).Inc()
			}
			res.DeadLettered++
		}
	}
}

func (d *Dispatcher) releaseRemainder(ctx context.Context, remainder []*outbox.Event, res *CycleResult) {
	if len(remainder) == 0 {
		return
	}
	ids := make([]uuid.UUID, len(remainder))
	for i, e := range remainder {
		ids[i] = e.ID
	}
	if err := d.store.ReleaseClaims(context.WithoutCancel(ctx), d.cfg.InstanceID, ids); err != nil {
		// The lease expiry reclaims these rows anyway; log and move on.
		d.logger.Error().Err(err).Int("count", len(ids)).Msg("Failed to release claims on shutdown")
		return
	}
	res.Released = len(ids)
	d.logger.Info().Int("count", len(ids)).Msg("Released unprocessed claims on shutdown")
}

func (d *Dispatcher) refreshBacklog(ctx context.Context) {
	if d.metrics == nil {
		return
	}
	stats, err := d.store.GetStats(context.WithoutCancel(ctx))
	if err != nil {
		d.logger.Debug().Err(err).Msg("Failed to refresh backlog gauges")
		return
	}
	d.metrics.OutboxBacklog.Set(float64(stats.Pending))
	d.metrics.OutboxFailedTotal.Set(float64(stats.Failed))
	if stats.OldestPendingAt != nil {
		d.metrics.OldestPendingAgeSeconds.Set(d.clock.Now().Sub(*stats.OldestPendingAt).Seconds())
	} else {
		d.metrics.OldestPendingAgeSeconds.Set(0)
	}
}

func toMessage(event *outbox.Event) publisher.Message {
	msg := publisher.Message{
		ID:         event.ID,
		EventType:  event.EventType,
		Payload:    event.Payload,
		OccurredAt: event.OccurredAt,
	}
	if event.AggregateID != nil {
		msg.AggregateID = event.AggregateID.String()
	}
	if event.AggregateType != nil {
		msg.AggregateType = *event.AggregateType
	}
	return msg
}
