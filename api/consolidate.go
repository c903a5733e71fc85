/*
consolidate.go - HTTP endpoints for the consolidation engine

PURPOSE:
  Triggers consolidation runs from uploaded legacy snapshots (or the
  bundled sample), exposes run status/cancellation, and serves the
  audit log of past runs.

ENDPOINTS:
  POST /api/consolidation/run       Body = legacy snapshot JSON.
                                    ?sample=true uses the bundled sample.
                                    ?wait=true blocks and returns the report.
  GET  /api/consolidation/status    Running flag + last report
  POST /api/consolidation/cancel    Cancel the active run
  GET  /api/consolidation/runs      Run history (?limit=N, default 20)

SEE ALSO:
  - runner.go: The lifecycle component behind these endpoints
  - ../consolidate: Engine, snapshot parsing, report
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/quartertone/studio-engine/consolidate"
)

// snapshotBodyLimit caps uploaded legacy exports at 16 MiB.
const snapshotBodyLimit = 16 << 20

// StartConsolidation kicks off a run from the request body (a legacy
// snapshot JSON export) or from the bundled sample.
func (h *Handler) StartConsolidation(w http.ResponseWriter, r *http.Request) {
	var (
		snap   *consolidate.Snapshot
		source string
	)

	if r.URL.Query().Get("sample") == "true" {
		snap = consolidate.SampleSnapshot()
		source = "sample"
	} else {
		body, err := io.ReadAll(io.LimitReader(r.Body, snapshotBodyLimit))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Failed to read request body", err)
			return
		}
		snap, err = consolidate.ParseSnapshot(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid legacy snapshot", err)
			return
		}
		source = "api-upload"
	}

	if snap.Count() == 0 {
		writeError(w, http.StatusBadRequest, "Snapshot contains no records", nil)
		return
	}

	if err := h.Runner.Start(snap, source); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			writeError(w, http.StatusConflict, "A consolidation run is already in progress", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to start consolidation", err)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		h.Runner.Wait()
		writeJSON(w, http.StatusOK, h.Runner.Status())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "started",
		"source":  source,
		"records": snap.Count(),
	})
}

// ConsolidationStatus reports the runner's state and last report.
func (h *Handler) ConsolidationStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Runner.Status())
}

// CancelConsolidation stops the active run, if any.
func (h *Handler) CancelConsolidation(w http.ResponseWriter, r *http.Request) {
	if !h.Runner.Cancel() {
		writeError(w, http.StatusConflict, "No consolidation run is in progress", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// ListConsolidationRuns serves the audit log, newest first.
func (h *Handler) ListConsolidationRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	records, err := h.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeStoreError(w, "Failed to list consolidation runs", err)
		return
	}

	dtos := make([]RunDTO, len(records))
	for i, rec := range records {
		dto := RunDTO{
			ID:        rec.ID,
			Source:    rec.Source,
			StartedAt: rec.StartedAt.Format(time.RFC3339),
		}
		if !rec.FinishedAt.IsZero() {
			dto.FinishedAt = rec.FinishedAt.Format(time.RFC3339)
		}
		// The stored report is opaque JSON; re-embed it unescaped.
		if rec.ReportJSON != "" {
			dto.Report = json.RawMessage(rec.ReportJSON)
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}
