package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ClaimRequest parameterizes an atomic batch claim.
type ClaimRequest struct {
	// Limit caps the number of rows claimed in one batch.
	Limit int
	// MaxRetries excludes rows whose retry budget is already exhausted.
	MaxRetries int
	// ClaimedBy identifies the claiming relay instance.
	ClaimedBy string
	// Now is the claim timestamp; rows with NextRetryAt after Now are skipped.
	Now time.Time
	// Lease is the window after which an unreleased claim becomes reclaimable.
	Lease time.Duration
}

// Stats is an operator-facing snapshot of the outbox backlog.
type Stats struct {
	Pending         int64
	Failed          int64
	OldestPendingAt *time.Time
}

// Store is the durable outbox table. Implementations must be safe for
// concurrent use across relay instances; all coordination lives in the
// store's atomicity, not in process memory.
type Store interface {
	// Append inserts a new pending row. It participates in the caller's
	// transaction when one is carried on ctx; it never opens its own.
	// An error must fail the caller's enclosing transaction.
	Append(ctx context.Context, event *Event) error

	// ClaimBatch atomically selects and claims up to req.Limit pending rows
	// (published=false, failed=false, retry_count < req.MaxRetries,
	// next_retry_at <= req.Now, and no live claim), oldest created_at first.
	// Two concurrent claimants never receive the same row.
	ClaimBatch(ctx context.Context, req ClaimRequest) ([]*Event, error)

	// MarkPublished sets the published terminal state. Idempotent: marking
	// an already-published row is a no-op, and the original published_at
	// is preserved. The write is fenced on claimedBy: a claimant whose
	// expired lease was taken over by another instance writes nothing.
	MarkPublished(ctx context.Context, id uuid.UUID, claimedBy string, publishedAt time.Time) error

	// MarkFailedAttempt increments retry_count, records errorMessage and the
	// next retry eligibility time, and releases the claim. When the resulting
	// retry_count reaches maxRetries the row becomes terminally failed.
	// Fenced on claimedBy like MarkPublished, so a stale claimant cannot
	// burn retry budget or release a claim it no longer owns.
	MarkFailedAttempt(ctx context.Context, id uuid.UUID, claimedBy string, errorMessage string, nextRetryAt time.Time, maxRetries int) error

	// ReleaseClaims clears live claims held by claimedBy on the given rows so
	// an aborted batch becomes immediately reclaimable.
	ReleaseClaims(ctx context.Context, claimedBy string, ids []uuid.UUID) error

	// ResetFailed clears the failed terminal state and zeroes retry_count so
	// the rows are dispatched again. Empty ids resets every failed row.
	// Administrative; returns the number of rows reset.
	ResetFailed(ctx context.Context, ids []uuid.UUID) (int64, error)

	// PurgeOlderThan deletes terminal rows created before cutoff. Pending
	// rows are never deleted regardless of age. Returns rows deleted.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// ListByAggregate returns events for one aggregate, newest first.
	ListByAggregate(ctx context.Context, aggregateID uuid.UUID, limit int) ([]*Event, error)

	// GetStats reports backlog counters for observability and the admin API.
	GetStats(ctx context.Context) (*Stats, error)
}
