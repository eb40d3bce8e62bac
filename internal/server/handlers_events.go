package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/tracefold/tracefold/internal/enrich"
	"github.com/tracefold/tracefold/internal/model"
	"github.com/tracefold/tracefold/internal/runs"
	"github.com/tracefold/tracefold/internal/store"
)

// HandleIngestEvent handles POST /v1/runs/{run_id}/events: enrich the
// raw call, append it to the store, then fold it into the live tracker.
// The tracker update is best-effort; a run whose tracker was stopped
// still gets its history recorded.
func (h *Handlers) HandleIngestEvent(w http.ResponseWriter, r *http.Request) {
	runID, err := pathRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run id")
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), runID.String())
	if err != nil {
		// Limiter malfunction fails open.
		h.logger.Warn("rate limiter error", "error", err, "run_id", runID)
	} else if !allowed {
		writeError(w, r, http.StatusTooManyRequests, model.ErrCodeRateLimited, "too many events for this run")
		return
	}

	var in enrich.Input
	if err := decodeJSON(w, r, &in, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if in.EventName == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "event_name is required")
		return
	}

	run, err := h.registry.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, runs.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
			return
		}
		h.writeInternalError(w, r, "failed to look up run", err)
		return
	}
	if !run.Active() {
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "run is not accepting events")
		return
	}

	event := enrich.Event(runID, in, time.Now().UTC())
	if err := h.store.Insert(r.Context(), runID, event); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run has no event container")
			return
		}
		h.writeInternalError(w, r, "failed to store event", err)
		return
	}

	if err := h.aggregator.Update(r.Context(), runID, event); err != nil {
		h.logger.Debug("live tracker skipped event", "run_id", runID, "error", err)
	}

	writeJSON(w, r, http.StatusCreated, event)
}

type queryRequest struct {
	Filters model.Filters `json:"filters"`
}

// HandleQueryEvents handles POST /v1/runs/{run_id}/query.
func (h *Handlers) HandleQueryEvents(w http.ResponseWriter, r *http.Request) {
	runID, err := pathRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run id")
		return
	}
	var req queryRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	events, err := h.store.Query(r.Context(), runID, req.Filters)
	if err != nil {
		h.writeInternalError(w, r, "failed to query events", err)
		return
	}
	writeJSON(w, r, http.StatusOK, eventList(events))
}

type windowRequest struct {
	model.WindowQuery
	Filters *model.Filters `json:"filters,omitempty"`
}

// HandleWindowEvents handles POST /v1/runs/{run_id}/window: cut a
// trailing, last-N, or explicit time window, optionally filtered.
// Exactly one window spec must be set; a malformed spec selects nothing.
func (h *Handlers) HandleWindowEvents(w http.ResponseWriter, r *http.Request) {
	runID, err := pathRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run id")
		return
	}
	var req windowRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if countSpecs(req.WindowQuery) > 1 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "specify exactly one of last, last_n, range")
		return
	}

	var pred store.Predicate
	if req.Filters != nil && !req.Filters.Empty() {
		f := *req.Filters
		pred = func(e model.EventRecord) bool { return store.Matches(e, f) }
	}

	events, err := h.store.QueryWindow(r.Context(), runID, req.WindowQuery, pred)
	if err != nil {
		h.writeInternalError(w, r, "failed to query window", err)
		return
	}
	writeJSON(w, r, http.StatusOK, eventList(events))
}

func countSpecs(q model.WindowQuery) int {
	n := 0
	if q.Last != nil {
		n++
	}
	if q.LastN != nil {
		n++
	}
	if q.Range != nil {
		n++
	}
	return n
}

type eventListResponse struct {
	Events []model.EventRecord `json:"events"`
	Count  int                 `json:"count"`
}

// eventList wraps events so an empty result serializes as [] not null.
func eventList(events []model.EventRecord) eventListResponse {
	if events == nil {
		events = []model.EventRecord{}
	}
	return eventListResponse{Events: events, Count: len(events)}
}
