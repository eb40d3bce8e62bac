package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tracefold/tracefold/internal/export"
	"github.com/tracefold/tracefold/internal/model"
)

// HandleExportRun handles GET /v1/runs/{run_id}/export?format=ndjson|csv.
// The export streams straight from the store snapshot; a run with no
// events yields 410 rather than an empty file.
func (h *Handlers) HandleExportRun(w http.ResponseWriter, r *http.Request) {
	runID, err := pathRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run id")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "ndjson"
	}

	events, err := h.store.GetAll(r.Context(), runID)
	if err != nil {
		h.writeInternalError(w, r, "failed to read event history", err)
		return
	}

	switch format {
	case "ndjson":
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.ndjson", runID))
		err = export.WriteNDJSON(w, events)
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", runID))
		err = export.WriteCSV(w, events)
	default:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "format must be ndjson or csv")
		return
	}

	if errors.Is(err, export.ErrNoData) {
		// Headers are set but nothing was written yet, so the error
		// envelope is still available.
		w.Header().Del("Content-Disposition")
		writeError(w, r, http.StatusGone, model.ErrCodeGone, "run has no events to export")
		return
	}
	if err != nil {
		h.logger.Error("export failed mid-stream", "run_id", runID, "error", err)
	}
}
