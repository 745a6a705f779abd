package api

import "time"

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// PurgeRequest overrides the configured retention window for one purge run.
type PurgeRequest struct {
	Retention string `json:"retention,omitempty" validate:"omitempty"`
}

type PurgeResponse struct {
	Deleted int64     `json:"deleted"`
	Cutoff  time.Time `json:"cutoff"`
}

// ResetFailedRequest names the failed events to replay. An empty list
// resets every failed event.
type ResetFailedRequest struct {
	IDs []string `json:"ids,omitempty" validate:"omitempty,dive,uuid4"`
}

type ResetFailedResponse struct {
	Reset int64 `json:"reset"`
}

type StatsResponse struct {
	Pending             int64      `json:"pending"`
	Failed              int64      `json:"failed"`
	OldestPendingAt     *time.Time `json:"oldest_pending_at,omitempty"`
	OldestPendingAgeSec *float64   `json:"oldest_pending_age_seconds,omitempty"`
}

type EventResponse struct {
	ID            string     `json:"id"`
	EventType     string     `json:"event_type"`
	AggregateID   *string    `json:"aggregate_id,omitempty"`
	AggregateType *string    `json:"aggregate_type,omitempty"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
	CreatedAt     time.Time  `json:"created_at"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	NextRetryAt   time.Time  `json:"next_retry_at"`
}

type ListEventsResponse struct {
	Events []EventResponse `json:"events"`
}
