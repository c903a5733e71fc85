/*
handlers.go - HTTP API handlers for the studio engine

PURPOSE:
  Exposes the entity store, the cached aggregate views, and the
  consolidation engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Projects:
    GET    /api/projects                    List all projects
    POST   /api/projects                    Create project
    GET    /api/projects/{id}               Get project
    PUT    /api/projects/{id}               Update project
    DELETE /api/projects/{id}               Delete project (cascades)
    GET    /api/projects/{id}/totals        Cached aggregate view

  Dependents (all under /api/projects/{id}/...):
    scope (GET/PUT upsert), estimates (GET/POST, DELETE by estimate id),
    cues (GET/POST, PUT/DELETE by cue id), invoices (GET/POST),
    payments (GET, project-scoped list)

  Invoices / Payments:
    GET    /api/invoices/{id}               Get invoice
    POST   /api/invoices/{id}/status        Move invoice through lifecycle
    DELETE /api/invoices/{id}               Delete invoice (cascades payments)
    GET    /api/invoices/{id}/payments      List payments
    POST   /api/invoices/{id}/payments      Record payment
    DELETE /api/payments/{id}               Delete payment

  Aggregates / ops:
    GET    /api/totals                      Cached global totals
    GET    /api/cache/stats                 Cache counters
    POST   /api/reset                       Clear all data (dev only)

  Consolidation endpoints live in consolidate.go; scenarios in
  scenarios.go.

ERROR HANDLING:
  Store errors map to HTTP status through the shared taxonomy:
  - ErrNotFound   -> 404
  - ErrIntegrity  -> 409
  - ErrTxFailed   -> 500 (operation failed, store unchanged)
  - cache timeout -> 504
  Everything else is a 500.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - views.go: Cached aggregates and invalidation
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quartertone/studio-engine/cache"
	"github.com/quartertone/studio-engine/studio"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  studio.Store
	Runs   studio.RunLog
	Views  *Views
	Runner *Runner
	Log    *slog.Logger

	// Track currently loaded scenario (dev/demo only)
	currentScenario string
}

// NewHandler creates a handler. runs may equal store when one value
// implements both interfaces (both bundled implementations do).
func NewHandler(store studio.Store, runs studio.RunLog, views *Views, runner *Runner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Store: store, Runs: runs, Views: views, Runner: runner, Log: logger}
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

// ListProjects returns all projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context())
	if err != nil {
		writeStoreError(w, "Failed to list projects", err)
		return
	}

	dtos := make([]ProjectDTO, len(projects))
	for i := range projects {
		dtos[i] = toProjectDTO(&projects[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProject returns a single project.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.Store.GetProject(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to get project", err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(p))
}

// CreateProject creates a new project.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	status := studio.ProjectStatus(req.Status)
	if req.Status == "" {
		status = studio.ProjectActive
	}
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid project status", nil)
		return
	}

	p := &studio.Project{Name: req.Name, Status: status, Notes: req.Notes}
	if err := h.Store.CreateProject(r.Context(), p); err != nil {
		writeStoreError(w, "Failed to create project", err)
		return
	}

	h.Views.InvalidateProject(p.ID)
	writeJSON(w, http.StatusCreated, toProjectDTO(p))
}

// UpdateProject updates name, status, and notes.
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status := studio.ProjectStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid project status", nil)
		return
	}

	p := &studio.Project{ID: id, Name: req.Name, Status: status, Notes: req.Notes}
	if err := h.Store.UpdateProject(r.Context(), p); err != nil {
		writeStoreError(w, "Failed to update project", err)
		return
	}

	h.Views.InvalidateProject(id)
	writeJSON(w, http.StatusOK, toProjectDTO(p))
}

// DeleteProject deletes a project and every dependent row.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Store.DeleteProject(r.Context(), id); err != nil {
		writeStoreError(w, "Failed to delete project", err)
		return
	}

	h.Views.InvalidateProject(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// AGGREGATE VIEW HANDLERS
// =============================================================================

// GetProjectTotals serves the cached per-project aggregate view.
func (h *Handler) GetProjectTotals(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	totals, err := h.Views.ProjectTotals(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to compute project totals", err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectTotalsDTO(totals))
}

// GetGlobalTotals serves the cached store-wide aggregate view.
func (h *Handler) GetGlobalTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Views.GlobalTotals(r.Context())
	if err != nil {
		writeStoreError(w, "Failed to compute totals", err)
		return
	}
	writeJSON(w, http.StatusOK, toGlobalTotalsDTO(totals))
}

// CacheStats exposes cache counters.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Views.CacheStats())
}

// =============================================================================
// SCOPE HANDLERS
// =============================================================================

// GetScope returns the project's scope.
func (h *Handler) GetScope(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	sc, err := h.Store.GetScope(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to get scope", err)
		return
	}
	writeJSON(w, http.StatusOK, toScopeDTO(sc))
}

// UpsertScope inserts or replaces the project's scope.
func (h *Handler) UpsertScope(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	var req UpsertScopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sc := &studio.Scope{
		ProjectID:          id,
		MusicMinutes:       req.MusicMinutes,
		OrchestrationHours: req.OrchestrationHours,
		RecordingHours:     req.RecordingHours,
		MixingHours:        req.MixingHours,
		Contact:            req.Contact,
	}
	if err := h.Store.UpsertScope(r.Context(), sc); err != nil {
		writeStoreError(w, "Failed to upsert scope", err)
		return
	}

	h.Views.InvalidateProject(id)
	writeJSON(w, http.StatusOK, toScopeDTO(sc))
}

// =============================================================================
// ESTIMATE HANDLERS
// =============================================================================

// ListEstimates returns a project's estimates, newest first.
func (h *Handler) ListEstimates(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	estimates, err := h.Store.ListEstimates(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to list estimates", err)
		return
	}

	dtos := make([]EstimateDTO, len(estimates))
	for i := range estimates {
		dtos[i] = toEstimateDTO(&estimates[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEstimate snapshots a new estimate for the project.
func (h *Handler) CreateEstimate(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	var req CreateEstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	creative, ok1 := parseMoney(req.CreativeFee)
	production, ok2 := parseMoney(req.ProductionCost)
	licensing, ok3 := parseMoney(req.LicensingFee)
	total, ok4 := parseMoney(req.TotalCost)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		writeError(w, http.StatusBadRequest, "Invalid money amount", nil)
		return
	}
	if total.IsZero() {
		total = creative.Add(production).Add(licensing)
	}

	est := &studio.Estimate{
		ProjectID:      id,
		MusicMinutes:   req.MusicMinutes,
		CreativeFee:    creative,
		ProductionCost: production,
		LicensingFee:   licensing,
		TotalCost:      total,
	}
	if err := h.Store.InsertEstimate(r.Context(), est); err != nil {
		writeStoreError(w, "Failed to create estimate", err)
		return
	}

	h.Views.InvalidateProject(id)
	writeJSON(w, http.StatusCreated, toEstimateDTO(est))
}

// DeleteEstimate removes one estimate. Estimates are immutable, so
// delete-and-recreate is the only way to amend one.
func (h *Handler) DeleteEstimate(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	estimateID, ok := urlID(w, r, "estimateID")
	if !ok {
		return
	}
	if !h.estimateInProject(w, r, projectID, estimateID) {
		return
	}

	if err := h.Store.DeleteEstimate(r.Context(), estimateID); err != nil {
		writeStoreError(w, "Failed to delete estimate", err)
		return
	}

	h.Views.InvalidateProject(projectID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// CUE HANDLERS
// =============================================================================

// ListCues returns a project's cues ordered by number.
func (h *Handler) ListCues(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	cues, err := h.Store.ListCues(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to list cues", err)
		return
	}

	dtos := make([]CueDTO, len(cues))
	for i := range cues {
		dtos[i] = toCueDTO(&cues[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCue adds a cue to the project.
func (h *Handler) CreateCue(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	var req CreateCueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status := studio.CueStatus(req.Status)
	if req.Status == "" {
		status = studio.CueNotStarted
	}
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid cue status", nil)
		return
	}

	cue := &studio.Cue{
		ProjectID:    id,
		Number:       req.Number,
		Title:        req.Title,
		Status:       status,
		DurationSecs: req.DurationSecs,
		Notes:        req.Notes,
	}
	if err := h.Store.InsertCue(r.Context(), cue); err != nil {
		writeStoreError(w, "Failed to create cue", err)
		return
	}

	h.Views.InvalidateProject(id)
	writeJSON(w, http.StatusCreated, toCueDTO(cue))
}

// UpdateCue updates one cue in place.
func (h *Handler) UpdateCue(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	cueID, ok := urlID(w, r, "cueID")
	if !ok {
		return
	}
	if !h.cueInProject(w, r, projectID, cueID) {
		return
	}

	var req UpdateCueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status := studio.CueStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid cue status", nil)
		return
	}

	cue := &studio.Cue{
		ID:           cueID,
		ProjectID:    projectID,
		Number:       req.Number,
		Title:        req.Title,
		Status:       status,
		DurationSecs: req.DurationSecs,
		Notes:        req.Notes,
	}
	if err := h.Store.UpdateCue(r.Context(), cue); err != nil {
		writeStoreError(w, "Failed to update cue", err)
		return
	}

	h.Views.InvalidateProject(projectID)
	writeJSON(w, http.StatusOK, toCueDTO(cue))
}

// DeleteCue removes one cue.
func (h *Handler) DeleteCue(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	cueID, ok := urlID(w, r, "cueID")
	if !ok {
		return
	}
	if !h.cueInProject(w, r, projectID, cueID) {
		return
	}

	if err := h.Store.DeleteCue(r.Context(), cueID); err != nil {
		writeStoreError(w, "Failed to delete cue", err)
		return
	}

	h.Views.InvalidateProject(projectID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// ListInvoices returns a project's invoices.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	invoices, err := h.Store.ListInvoices(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to list invoices", err)
		return
	}

	dtos := make([]InvoiceDTO, len(invoices))
	for i := range invoices {
		dtos[i] = toInvoiceDTO(&invoices[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateInvoice creates an invoice under the project.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	var req CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, okAmount := parseMoney(req.Amount)
	if !okAmount {
		writeError(w, http.StatusBadRequest, "Invalid money amount", nil)
		return
	}

	items := make([]studio.LineItem, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		liAmount, okItem := parseMoney(li.Amount)
		if !okItem {
			writeError(w, http.StatusBadRequest, "Invalid line item amount", nil)
			return
		}
		items = append(items, studio.LineItem{Description: li.Description, Amount: liAmount})
	}
	if amount.IsZero() {
		for _, li := range items {
			amount = amount.Add(li.Amount)
		}
	}

	status := studio.InvoiceStatus(req.Status)
	if req.Status == "" {
		status = studio.InvoiceDraft
	}
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid invoice status", nil)
		return
	}

	inv := &studio.Invoice{
		ProjectID:      id,
		Amount:         amount,
		DepositPercent: req.DepositPercent,
		Status:         status,
		LineItems:      items,
	}
	if err := h.Store.InsertInvoice(r.Context(), inv); err != nil {
		writeStoreError(w, "Failed to create invoice", err)
		return
	}

	h.Views.InvalidateProject(id)
	writeJSON(w, http.StatusCreated, toInvoiceDTO(inv))
}

// GetInvoice returns one invoice by its own id.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	inv, err := h.Store.GetInvoice(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// SetInvoiceStatus moves an invoice to a new lifecycle state.
func (h *Handler) SetInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	var req SetInvoiceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status := studio.InvoiceStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid invoice status", nil)
		return
	}

	ctx := r.Context()
	inv, err := h.Store.GetInvoice(ctx, id)
	if err != nil {
		writeStoreError(w, "Failed to get invoice", err)
		return
	}
	if err := h.Store.SetInvoiceStatus(ctx, id, status); err != nil {
		writeStoreError(w, "Failed to update invoice status", err)
		return
	}

	h.Views.InvalidateProject(inv.ProjectID)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// DeleteInvoice removes an invoice and, by cascade, its payments.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	// Read the project before the row disappears, for invalidation.
	ctx := r.Context()
	inv, err := h.Store.GetInvoice(ctx, id)
	if err != nil {
		writeStoreError(w, "Failed to get invoice", err)
		return
	}
	if err := h.Store.DeleteInvoice(ctx, id); err != nil {
		writeStoreError(w, "Failed to delete invoice", err)
		return
	}

	h.Views.InvalidateProject(inv.ProjectID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListInvoicePayments returns payments recorded against one invoice.
func (h *Handler) ListInvoicePayments(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	payments, err := h.Store.ListPayments(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// ListProjectPayments returns payments across all of a project's
// invoices, via the denormalized project reference.
func (h *Handler) ListProjectPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	payments, err := h.Store.ListProjectPayments(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// CreatePayment records money received against the invoice in the URL.
// The payment's project id comes from the invoice inside the store; the
// request cannot supply one.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, okAmount := parseMoney(req.Amount)
	if !okAmount || amount.IsZero() {
		writeError(w, http.StatusBadRequest, "A non-zero amount is required", nil)
		return
	}

	receivedAt := time.Now().UTC()
	if req.ReceivedAt != "" {
		t, err := time.Parse("2006-01-02", req.ReceivedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid received_at date (use YYYY-MM-DD)", err)
			return
		}
		receivedAt = t
	}

	p := &studio.Payment{
		InvoiceID:  invoiceID,
		Amount:     amount,
		Method:     req.Method,
		ReceivedAt: receivedAt,
		Notes:      req.Notes,
	}
	if err := h.Store.InsertPayment(r.Context(), p); err != nil {
		writeStoreError(w, "Failed to record payment", err)
		return
	}

	h.Views.InvalidateProject(p.ProjectID)
	writeJSON(w, http.StatusCreated, toPaymentDTO(p))
}

// DeletePayment removes one payment. The owning project is not in the
// URL, so this invalidates the whole cache rather than one scope.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Store.DeletePayment(r.Context(), id); err != nil {
		writeStoreError(w, "Failed to delete payment", err)
		return
	}

	h.Views.InvalidateAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// OPS HANDLERS
// =============================================================================

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeStoreError(w, "Failed to reset database", err)
		return
	}

	h.Views.InvalidateAll()
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeStoreError maps the shared error taxonomy to HTTP status codes.
func writeStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case studio.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case studio.IsIntegrity(err):
		writeError(w, http.StatusConflict, message, err)
	case cache.IsTimeout(err):
		writeError(w, http.StatusGatewayTimeout, message, err)
	default:
		// Includes transaction failures: the operation failed but the
		// store is unchanged.
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// estimateInProject verifies the nested-route contract for estimates: a
// child id reached through another project's path does not exist. Writes
// the 404 itself on a miss. Keeping the check here also guarantees the
// later invalidation hits the project that actually owns the row.
func (h *Handler) estimateInProject(w http.ResponseWriter, r *http.Request, projectID, estimateID int64) bool {
	estimates, err := h.Store.ListEstimates(r.Context(), projectID)
	if err != nil {
		writeStoreError(w, "Failed to load estimates", err)
		return false
	}
	for i := range estimates {
		if estimates[i].ID == estimateID {
			return true
		}
	}
	writeError(w, http.StatusNotFound, "Estimate not found in project", nil)
	return false
}

// cueInProject is estimateInProject for cues.
func (h *Handler) cueInProject(w http.ResponseWriter, r *http.Request, projectID, cueID int64) bool {
	cues, err := h.Store.ListCues(r.Context(), projectID)
	if err != nil {
		writeStoreError(w, "Failed to load cues", err)
		return false
	}
	for i := range cues {
		if cues[i].ID == cueID {
			return true
		}
	}
	writeError(w, http.StatusNotFound, "Cue not found in project", nil)
	return false
}

// urlID parses a numeric URL parameter, writing the 400 itself.
func urlID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+param, err)
		return 0, false
	}
	return id, true
}

func toPaymentDTOs(payments []studio.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(payments))
	for i := range payments {
		dtos[i] = toPaymentDTO(&payments[i])
	}
	return dtos
}
