/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	studio data for testing and demos. Each scenario resets the store and
	seeds projects, scope, estimates, cues, invoices, and payments.

AVAILABLE SCENARIOS:

	active-studio:  Three projects mid-production with invoices and
	                partial payments - exercises every aggregate.
	legacy-import:  Runs the bundled legacy snapshot through the
	                consolidation engine, synchronously, and records
	                the run. Shows resolution, defaulting, and the
	                skip/failure reporting.
	fresh-books:    One empty active project. The minimal state.

HOW SCENARIOS WORK:
 1. Reset store + cache (clear all data)
 2. Seed entities through the same Store interface the API uses
 3. Track the loaded scenario for the UI

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "active-studio"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: writeJSON/writeError helpers
  - consolidate/sample.go: The legacy export behind legacy-import
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/quartertone/studio-engine/consolidate"
	"github.com/quartertone/studio-engine/studio"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "active-studio",
		Name:        "Active Studio",
		Description: "Three projects mid-production with estimates, cues, invoices, and partial payments",
	},
	{
		ID:          "legacy-import",
		Name:        "Legacy Import",
		Description: "Consolidates the bundled legacy key/value export, including records that cannot resolve",
	},
	{
		ID:          "fresh-books",
		Name:        "Fresh Books",
		Description: "A single empty project - the minimal starting state",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeStoreError(w, "Failed to reset database", err)
		return
	}
	h.Views.InvalidateAll()
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "active-studio":
		err = h.loadActiveStudioScenario(ctx)
	case "legacy-import":
		err = h.loadLegacyImportScenario(ctx)
	case "fresh-books":
		err = h.loadFreshBooksScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFreshBooksScenario(ctx context.Context) error {
	p := &studio.Project{Name: "Untitled Feature", Status: studio.ProjectActive}
	return h.Store.CreateProject(ctx, p)
}

func (h *Handler) loadActiveStudioScenario(ctx context.Context) error {
	// Project 1: trailer campaign, invoiced and half paid.
	trailer := &studio.Project{Name: "Aurora Trailer Campaign", Status: studio.ProjectActive,
		Notes: "Two spots, rush delivery"}
	if err := h.Store.CreateProject(ctx, trailer); err != nil {
		return err
	}
	if err := h.Store.UpsertScope(ctx, &studio.Scope{
		ProjectID: trailer.ID, MusicMinutes: 4,
		OrchestrationHours: 10, RecordingHours: 6, MixingHours: 8,
		Contact: "supervisor@auroratrailers.example",
	}); err != nil {
		return err
	}
	if err := h.Store.InsertEstimate(ctx, &studio.Estimate{
		ProjectID: trailer.ID, MusicMinutes: 4,
		CreativeFee:    studio.MustDecimal("6000"),
		ProductionCost: studio.MustDecimal("2400"),
		LicensingFee:   studio.MustDecimal("1600"),
		TotalCost:      studio.MustDecimal("10000"),
	}); err != nil {
		return err
	}
	for i, title := range []string{"Opening Hit", "Build", "Drop and Tag"} {
		cue := &studio.Cue{ProjectID: trailer.ID, Number: i + 1, Title: title,
			Status: studio.CueRecorded, DurationSecs: 45 + 30*i}
		if i == 2 {
			cue.Status = studio.CueInProgress
		}
		if err := h.Store.InsertCue(ctx, cue); err != nil {
			return err
		}
	}
	trailerInvoice := &studio.Invoice{
		ProjectID: trailer.ID, Amount: studio.MustDecimal("10000"),
		DepositPercent: 50, Status: studio.InvoiceSent,
		LineItems: []studio.LineItem{
			{Description: "Original score, two spots", Amount: studio.MustDecimal("8400")},
			{Description: "Stems and alt mixes", Amount: studio.MustDecimal("1600")},
		},
	}
	if err := h.Store.InsertInvoice(ctx, trailerInvoice); err != nil {
		return err
	}
	if err := h.Store.InsertPayment(ctx, &studio.Payment{
		InvoiceID: trailerInvoice.ID, Amount: studio.MustDecimal("5000"),
		Method: "wire", ReceivedAt: time.Now().UTC().AddDate(0, 0, -14),
		Notes: "50% deposit",
	}); err != nil {
		return err
	}

	// Project 2: documentary series, scored and fully paid.
	doc := &studio.Project{Name: "Tidelands Documentary", Status: studio.ProjectCompleted}
	if err := h.Store.CreateProject(ctx, doc); err != nil {
		return err
	}
	if err := h.Store.UpsertScope(ctx, &studio.Scope{
		ProjectID: doc.ID, MusicMinutes: 38, MixingHours: 22,
		Contact: "post@tidelands.example",
	}); err != nil {
		return err
	}
	docInvoice := &studio.Invoice{
		ProjectID: doc.ID, Amount: studio.MustDecimal("14500"), Status: studio.InvoicePaid,
	}
	if err := h.Store.InsertInvoice(ctx, docInvoice); err != nil {
		return err
	}
	if err := h.Store.InsertPayment(ctx, &studio.Payment{
		InvoiceID: docInvoice.ID, Amount: studio.MustDecimal("14500"),
		Method: "ach", ReceivedAt: time.Now().UTC().AddDate(0, -1, 0),
	}); err != nil {
		return err
	}

	// Project 3: on hold, estimate only.
	game := &studio.Project{Name: "Starfall Game Score", Status: studio.ProjectOnHold,
		Notes: "Waiting on publisher greenlight"}
	if err := h.Store.CreateProject(ctx, game); err != nil {
		return err
	}
	return h.Store.InsertEstimate(ctx, &studio.Estimate{
		ProjectID: game.ID, MusicMinutes: 60,
		CreativeFee: studio.MustDecimal("24000"),
		TotalCost:   studio.MustDecimal("24000"),
	})
}

// loadLegacyImportScenario runs the bundled sample export through the
// engine synchronously (scenario loading is already a blocking admin
// call) and records the run like any other.
func (h *Handler) loadLegacyImportScenario(ctx context.Context) error {
	engine := consolidate.New(h.Store, h.Log, h.Views, consolidate.Options{})
	started := time.Now().UTC()

	report, err := engine.Run(ctx, consolidate.SampleSnapshot(), "scenario:legacy-import")
	if err != nil {
		return err
	}

	if h.Runs != nil {
		rec := studio.RunRecord{
			ID:         report.RunID,
			Source:     "scenario:legacy-import",
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
			ReportJSON: report.JSON(),
		}
		if err := h.Runs.SaveRun(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
