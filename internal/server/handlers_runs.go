package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/tracefold/tracefold/internal/model"
	"github.com/tracefold/tracefold/internal/runs"
	"github.com/tracefold/tracefold/internal/store"
)

type createRunRequest struct {
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HandleCreateRun handles POST /v1/runs. Creating a run registers it,
// opens its event container, and starts its live tracker in one step.
func (h *Handlers) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name is required")
		return
	}

	run := h.registry.Create(r.Context(), req.Name, req.Metadata)

	if err := h.store.Open(r.Context(), run.ID); err != nil {
		h.registry.Delete(r.Context(), run.ID)
		h.writeInternalError(w, r, "failed to open event container", err)
		return
	}
	if err := h.aggregator.Start(r.Context(), run.ID); err != nil {
		h.writeInternalError(w, r, "failed to start live tracker", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, run)
}

// HandleListRuns handles GET /v1/runs.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.registry.List(r.Context()))
}

// HandleGetRun handles GET /v1/runs/{run_id}.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := pathRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run id")
		return
	}
	run, err := h.registry.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleStopRun handles POST /v1/runs/{run_id}/stop. Stopped is
// terminal: the history stays queryable but the run accepts no more
// events.
func (h *Handlers) HandleStopRun(w http.ResponseWriter, r *http.Request) {
	h.transitionRun(w, r, h.registry.Stop)
}

// HandlePauseRun handles POST /v1/runs/{run_id}/pause.
func (h *Handlers) HandlePauseRun(w http.ResponseWriter, r *http.Request) {
	h.transitionRun(w, r, h.registry.Pause)
}

// HandleResumeRun handles POST /v1/runs/{run_id}/resume.
func (h *Handlers) HandleResumeRun(w http.ResponseWriter, r *http.Request) {
	h.transitionRun(w, r, h.registry.Resume)
}

func (h *Handlers) transitionRun(w http.ResponseWriter, r *http.Request, apply func(context.Context, uuid.UUID) (model.Run, error)) {
	runID, err := pathRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run id")
		return
	}
	run, err := apply(r.Context(), runID)
	switch {
	case errors.Is(err, runs.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
		return
	case errors.Is(err, runs.ErrStopped):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "run already stopped")
		return
	case err != nil:
		h.writeInternalError(w, r, "failed to transition run", err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleDeleteRun handles DELETE /v1/runs/{run_id}. Removes the run,
// its event history, and its live tracker. Idempotent.
func (h *Handlers) HandleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID, err := pathRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run id")
		return
	}

	h.registry.Delete(r.Context(), runID)
	h.aggregator.Stop(r.Context(), runID)
	if err := h.store.Delete(r.Context(), runID); err != nil && !errors.Is(err, store.ErrRunNotFound) {
		h.writeInternalError(w, r, "failed to delete event history", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
