package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/tracefold/tracefold/internal/analyze"
	"github.com/tracefold/tracefold/internal/model"
	"github.com/tracefold/tracefold/internal/stream"
)

// HandleLiveMetrics handles GET /v1/runs/{run_id}/metrics/live: the
// streaming aggregator's O(1) snapshot.
func (h *Handlers) HandleLiveMetrics(w http.ResponseWriter, r *http.Request) {
	runID, err := pathRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run id")
		return
	}
	m, err := h.aggregator.Metrics(r.Context(), runID)
	if err != nil {
		if errors.Is(err, stream.ErrNotTracked) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run is not tracked")
			return
		}
		h.writeInternalError(w, r, "failed to snapshot live metrics", err)
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

// HandleResetLiveMetrics handles POST /v1/runs/{run_id}/metrics/reset.
func (h *Handlers) HandleResetLiveMetrics(w http.ResponseWriter, r *http.Request) {
	runID, err := pathRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run id")
		return
	}
	if err := h.aggregator.Reset(r.Context(), runID); err != nil {
		if errors.Is(err, stream.ErrNotTracked) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run is not tracked")
			return
		}
		h.writeInternalError(w, r, "failed to reset live metrics", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRunMetrics handles GET /v1/runs/{run_id}/metrics: the offline
// analyzer's full-scan report.
func (h *Handlers) HandleRunMetrics(w http.ResponseWriter, r *http.Request) {
	runID, err := pathRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run id")
		return
	}
	m, err := h.analyzer.RunMetrics(r.Context(), runID)
	if err != nil {
		h.writeInternalError(w, r, "failed to compute run metrics", err)
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

// HandleWindowedMetrics handles GET /v1/runs/{run_id}/metrics/windows
// with window_seconds and step_seconds query parameters.
func (h *Handlers) HandleWindowedMetrics(w http.ResponseWriter, r *http.Request) {
	runID, err := pathRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run id")
		return
	}
	windowSec, err := strconv.ParseInt(r.URL.Query().Get("window_seconds"), 10, 64)
	if err != nil || windowSec <= 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "window_seconds must be a positive integer")
		return
	}
	stepSec := windowSec // tiling windows unless a step is given
	if raw := r.URL.Query().Get("step_seconds"); raw != "" {
		stepSec, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || stepSec <= 0 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "step_seconds must be a positive integer")
			return
		}
	}

	results, err := h.store.WindowedMetrics(r.Context(), runID,
		windowSec*model.MicrosPerSecond, stepSec*model.MicrosPerSecond)
	if err != nil {
		h.writeInternalError(w, r, "failed to compute windowed metrics", err)
		return
	}
	if results == nil {
		results = []model.WindowResult{}
	}
	writeJSON(w, r, http.StatusOK, results)
}

type compareRequest struct {
	RunIDs []uuid.UUID `json:"run_ids"`
}

// HandleCompareRuns handles POST /v1/compare. The first run id is the
// baseline.
func (h *Handlers) HandleCompareRuns(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	cmp, err := h.analyzer.CompareRuns(r.Context(), req.RunIDs)
	if err != nil {
		if errors.Is(err, analyze.ErrTooFewRuns) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "comparison requires at least two run ids")
			return
		}
		h.writeInternalError(w, r, "failed to compare runs", err)
		return
	}
	writeJSON(w, r, http.StatusOK, cmp)
}
