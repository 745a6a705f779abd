package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is a broker-agnostic publish request. The payload is opaque to the
// relay; decoding it is the consumer's concern.
type Message struct {
	ID            uuid.UUID
	EventType     string
	Payload       []byte
	AggregateID   string
	AggregateType string
	OccurredAt    time.Time
}

// Publisher pushes a single message to a broker. Implementations carry no
// local state and must be safe to call from concurrent relay instances.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// DeadLetterer receives events that exhausted their retry budget.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, msg Message, reason string) error
}

// TransientError marks a retry-eligible broker failure (timeout, broker
// temporarily unreachable).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient publish error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure retrying will not fix (payload rejected,
// routing misconfiguration). The relay still counts it against the retry
// budget; the classification exists for logs and metrics.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent publish error: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError, or returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as a PermanentError, or returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether err is classified as retry-eligible.
// Unclassified errors are treated as transient; permanence must be proven.
func IsTransient(err error) bool {
	var perm *PermanentError
	return !errors.As(err, &perm)
}

// Classification returns a short label for logs and metric labels.
func Classification(err error) string {
	if err == nil {
		return "none"
	}
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
