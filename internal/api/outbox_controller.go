package api

import (
	"net/http"
	"strconv"
	"time"

	domainErrors "github.com/cassiomorais/eventrelay/internal/domain/errors"
	"github.com/cassiomorais/eventrelay/internal/domain/outbox"
	"github.com/google/uuid"
)

// OutboxController exposes the operator-facing maintenance entry points:
// purge of terminal rows past the audit window, manual replay of failed
// events, and backlog diagnostics.
type OutboxController struct {
	store            outbox.Store
	defaultRetention time.Duration
}

func NewOutboxController(store outbox.Store, defaultRetention time.Duration) *OutboxController {
	return &OutboxController{store: store, defaultRetention: defaultRetention}
}

// Purge deletes published/failed rows older than the retention window.
// Pending rows are never touched regardless of age.
func (c *OutboxController) Purge(w http.ResponseWriter, r *http.Request) {
	var req PurgeRequest
	if r.ContentLength > 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	retention := c.defaultRetention
	if req.Retention != "" {
		parsed, err := time.ParseDuration(req.Retention)
		if err != nil || parsed <= 0 {
			writeError(w, domainErrors.NewValidationError("retention", "must be a positive duration"))
			return
		}
		retention = parsed
	}

	cutoff := time.Now().UTC().Add(-retention)
	deleted, err := c.store.PurgeOlderThan(r.Context(), cutoff)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PurgeResponse{Deleted: deleted, Cutoff: cutoff})
}

// ResetFailed clears the failed terminal state and retry budget so the
// named events (or all failed events) are dispatched again.
func (c *OutboxController) ResetFailed(w http.ResponseWriter, r *http.Request) {
	var req ResetFailedRequest
	if r.ContentLength > 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, domainErrors.NewValidationError("ids", "invalid UUID: "+raw))
			return
		}
		ids = append(ids, id)
	}

	reset, err := c.store.ResetFailed(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ResetFailedResponse{Reset: reset})
}

// Stats reports the backlog counters the purge/replay decisions are made on.
func (c *OutboxController) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.store.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := StatsResponse{
		Pending:         stats.Pending,
		Failed:          stats.Failed,
		OldestPendingAt: stats.OldestPendingAt,
	}
	if stats.OldestPendingAt != nil {
		age := time.Since(*stats.OldestPendingAt).Seconds()
		resp.OldestPendingAgeSec = &age
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListEvents returns the event history of one aggregate for diagnostics.
func (c *OutboxController) ListEvents(w http.ResponseWriter, r *http.Request) {
	rawID := r.URL.Query().Get("aggregate_id")
	if rawID == "" {
		writeError(w, domainErrors.NewValidationError("aggregate_id", "query parameter is required"))
		return
	}
	aggregateID, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, domainErrors.NewValidationError("aggregate_id", "must be a UUID"))
		return
	}

	limit := 50
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit <= 0 {
			writeError(w, domainErrors.NewValidationError("limit", "must be a positive integer"))
			return
		}
	}

	events, err := c.store.ListByAggregate(r.Context(), aggregateID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := ListEventsResponse{Events: make([]EventResponse, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, toEventResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toEventResponse(e *outbox.Event) EventResponse {
	resp := EventResponse{
		ID:            e.ID.String(),
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		Status:        string(e.Status()),
		RetryCount:    e.RetryCount,
		ErrorMessage:  e.ErrorMessage,
		OccurredAt:    e.OccurredAt,
		CreatedAt:     e.CreatedAt,
		PublishedAt:   e.PublishedAt,
		NextRetryAt:   e.NextRetryAt,
	}
	if e.AggregateID != nil {
		s := e.AggregateID.String()
		resp.AggregateID = &s
	}
	return resp
}
