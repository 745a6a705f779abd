package postgres

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/eventrelay/internal/domain/errors"
	"github.com/cassiomorais/eventrelay/internal/domain/outbox"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id, event_type, payload, aggregate_id, aggregate_type, occurred_at, created_at,
	 published, published_at, failed, error_message, retry_count, next_retry_at, claimed_at, claimed_by`

// OutboxStore is the pgx-backed implementation of outbox.Store. All claim
// coordination happens in single atomic statements; the store holds no
// in-process state beyond the pool.
type OutboxStore struct {
	pool *pgxpool.Pool
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

func (s *OutboxStore) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, s.pool)
}

// Append inserts a pending row. It runs on the transaction carried by ctx
// when one is present, so the event commits or rolls back with the business
// mutation that produced it.
func (s *OutboxStore) Append(ctx context.Context, event *outbox.Event) error {
	if event.EventType == "" {
		return fmt.Errorf("%w: event_type is required", domainErrors.ErrInvalidEvent)
	}
	if len(event.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", domainErrors.ErrInvalidEvent)
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO outbox_events (id, event_type, payload, aggregate_id, aggregate_type, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, next_retry_at`,
		event.ID, event.EventType, event.Payload, event.AggregateID, event.AggregateType, event.OccurredAt,
	).Scan(&event.CreatedAt, &event.NextRetryAt)
	if err != nil {
		return fmt.Errorf("%w: append outbox event: %v", domainErrors.ErrStorageFailure, err)
	}
	return nil
}

// ClaimBatch claims up to req.Limit dispatchable rows in one atomic
// statement. FOR UPDATE SKIP LOCKED keeps concurrent claimants from blocking
// on each other's rows; the claimed_at lease makes rows orphaned by a
// crashed relay reclaimable once req.Lease has elapsed.
func (s *OutboxStore) ClaimBatch(ctx context.Context, req outbox.ClaimRequest) ([]*outbox.Event, error) {
	if req.Limit <= 0 {
		req.Limit = 10
	}
	leaseExpiry := req.Now.Add(-req.Lease)

	rows, err := s.db(ctx).Query(ctx,
		`WITH claimable AS (
			SELECT id FROM outbox_events
			WHERE published = false AND failed = false
			  AND retry_count < $1
			  AND next_retry_at <= $2
			  AND (claimed_at IS NULL OR claimed_at < $3)
			ORDER BY created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		), claimed AS (
			UPDATE outbox_events o
			SET claimed_at = $2, claimed_by = $5
			FROM claimable c
			WHERE o.id = c.id
			RETURNING o.*
		)
		SELECT `+eventColumns+`
		FROM claimed
		ORDER BY created_at ASC`,
		req.MaxRetries, req.Now, leaseExpiry, req.Limit, req.ClaimedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: claim outbox batch: %v", domainErrors.ErrStorageFailure, err)
	}
	defer rows.Close()

	var events []*outbox.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkPublished flips a row to the published terminal state. Repeated calls
// are no-ops and the first published_at wins; delivery confirmations may be
// duplicated upstream. The claimed_by fence rejects writes from a claimant
// whose expired lease another instance has since taken over.
func (s *OutboxStore) MarkPublished(ctx context.Context, id uuid.UUID, claimedBy string, publishedAt time.Time) error {
	_, err := s.db(ctx).Exec(ctx,
		`UPDATE outbox_events
		 SET published = true,
		     published_at = COALESCE(published_at, $2),
		     claimed_at = NULL, claimed_by = NULL
		 WHERE id = $1 AND failed = false
		   AND (claimed_by = $3 OR claimed_at IS NULL)`,
		id, publishedAt, claimedBy,
	)
	if err != nil {
		return fmt.Errorf("%w: mark outbox published: %v", domainErrors.ErrStorageFailure, err)
	}
	return nil
}

// MarkFailedAttempt records a delivery failure and releases the claim. The
// attempt that exhausts maxRetries also flips the row to terminal failure.
// The claimed_by fence keeps a stale claimant from burning retry budget for
// a row the current owner is still publishing.
func (s *OutboxStore) MarkFailedAttempt(ctx context.Context, id uuid.UUID, claimedBy string, errorMessage string, nextRetryAt time.Time, maxRetries int) error {
	_, err := s.db(ctx).Exec(ctx,
		`UPDATE outbox_events
		 SET retry_count = retry_count + 1,
		     error_message = $2,
		     next_retry_at = $3,
		     failed = retry_count + 1 >= $4,
		     claimed_at = NULL, claimed_by = NULL
		 WHERE id = $1 AND published = false AND failed = false
		   AND claimed_by = $5`,
		id, errorMessage, nextRetryAt, maxRetries, claimedBy,
	)
	if err != nil {
		return fmt.Errorf("%w: mark outbox failed attempt: %v", domainErrors.ErrStorageFailure, err)
	}
	return nil
}

// ReleaseClaims returns unprocessed rows from an abandoned batch to the
// pending pool without touching their retry budget.
func (s *OutboxStore) ReleaseClaims(ctx context.Context, claimedBy string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db(ctx).Exec(ctx,
		`UPDATE outbox_events
		 SET claimed_at = NULL, claimed_by = NULL
		 WHERE claimed_by = $1 AND id = ANY($2) AND published = false AND failed = false`,
		claimedBy, ids,
	)
	if err != nil {
		return fmt.Errorf("%w: release outbox claims: %v", domainErrors.ErrStorageFailure, err)
	}
	return nil
}

// ResetFailed is the manual replay path: failed rows become pending again
// with a fresh retry budget. With no ids every failed row is reset.
func (s *OutboxStore) ResetFailed(ctx context.Context, ids []uuid.UUID) (int64, error) {
	query := `UPDATE outbox_events
		 SET failed = false, retry_count = 0, error_message = NULL, next_retry_at = now()
		 WHERE failed = true`
	args := []any{}
	if len(ids) > 0 {
		query += ` AND id = ANY($1)`
		args = append(args, ids)
	}
	tag, err := s.db(ctx).Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: reset failed outbox events: %v", domainErrors.ErrStorageFailure, err)
	}
	return tag.RowsAffected(), nil
}

// PurgeOlderThan deletes terminal rows past the audit window. Pending rows
// survive regardless of age.
func (s *OutboxStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db(ctx).Exec(ctx,
		`DELETE FROM outbox_events
		 WHERE created_at < $1 AND (published = true OR failed = true)`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: purge outbox events: %v", domainErrors.ErrStorageFailure, err)
	}
	return tag.RowsAffected(), nil
}

// ListByAggregate returns the event history of one aggregate for diagnostics.
func (s *OutboxStore) ListByAggregate(ctx context.Context, aggregateID uuid.UUID, limit int) ([]*outbox.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db(ctx).Query(ctx,
		`SELECT `+eventColumns+`
		 FROM outbox_events
		 WHERE aggregate_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		aggregateID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list outbox events by aggregate: %v", domainErrors.ErrStorageFailure, err)
	}
	defer rows.Close()

	var events []*outbox.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetStats reports backlog counters for the admin API and the backlog gauges.
func (s *OutboxStore) GetStats(ctx context.Context) (*outbox.Stats, error) {
	stats := &outbox.Stats{}
	err := s.db(ctx).QueryRow(ctx,
		`SELECT
			count(*) FILTER (WHERE published = false AND failed = false),
			count(*) FILTER (WHERE failed = true),
			min(created_at) FILTER (WHERE published = false AND failed = false)
		 FROM outbox_events`,
	).Scan(&stats.Pending, &stats.Failed, &stats.OldestPendingAt)
	if err != nil {
		return nil, fmt.Errorf("%w: outbox stats: %v", domainErrors.ErrStorageFailure, err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*outbox.Event, error) {
	e := &outbox.Event{}
	err := row.Scan(
		&e.ID, &e.EventType, &e.Payload, &e.AggregateID, &e.AggregateType,
		&e.OccurredAt, &e.CreatedAt, &e.Published, &e.PublishedAt,
		&e.Failed, &e.ErrorMessage, &e.RetryCount, &e.NextRetryAt,
		&e.ClaimedAt, &e.ClaimedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: scan outbox event: %v", domainErrors.ErrStorageFailure, err)
	}
	return e, nil
}
