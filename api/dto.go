/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Money travels as strings ("450.00") in both directions. Request
  parsing goes through decimal.NewFromString so precision survives the
  wire; float64 never touches an amount.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ../studio/types.go: The domain entities behind them
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quartertone/studio-engine/studio"
)

// =============================================================================
// PROJECT
// =============================================================================

// ProjectDTO represents a project in API responses.
type ProjectDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// CreateProjectRequest is the request to create a project.
type CreateProjectRequest struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// UpdateProjectRequest is the request to update a project.
type UpdateProjectRequest struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// =============================================================================
// SCOPE
// =============================================================================

// ScopeDTO represents a project's scoring scope.
type ScopeDTO struct {
	ProjectID          int64   `json:"project_id"`
	MusicMinutes       int     `json:"music_minutes"`
	OrchestrationHours float64 `json:"orchestration_hours"`
	RecordingHours     float64 `json:"recording_hours"`
	MixingHours        float64 `json:"mixing_hours"`
	Contact            string  `json:"contact,omitempty"`
	UpdatedAt          string  `json:"updated_at,omitempty"`
}

// UpsertScopeRequest is the request body for the scope upsert. Callers
// never need to know whether a scope row already exists.
type UpsertScopeRequest struct {
	MusicMinutes       int     `json:"music_minutes"`
	OrchestrationHours float64 `json:"orchestration_hours"`
	RecordingHours     float64 `json:"recording_hours"`
	MixingHours        float64 `json:"mixing_hours"`
	Contact            string  `json:"contact"`
}

// =============================================================================
// ESTIMATE
// =============================================================================

// EstimateDTO represents an immutable cost snapshot.
type EstimateDTO struct {
	ID             int64  `json:"id"`
	ProjectID      int64  `json:"project_id"`
	MusicMinutes   int    `json:"music_minutes"`
	CreativeFee    string `json:"creative_fee"`
	ProductionCost string `json:"production_cost"`
	LicensingFee   string `json:"licensing_fee"`
	TotalCost      string `json:"total_cost"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// CreateEstimateRequest is the request to snapshot an estimate. An
// empty total falls back to the sum of the components.
type CreateEstimateRequest struct {
	MusicMinutes   int    `json:"music_minutes"`
	CreativeFee    string `json:"creative_fee,omitempty"`
	ProductionCost string `json:"production_cost,omitempty"`
	LicensingFee   string `json:"licensing_fee,omitempty"`
	TotalCost      string `json:"total_cost,omitempty"`
}

// =============================================================================
// CUE
// =============================================================================

// CueDTO represents one cue in API responses.
type CueDTO struct {
	ID           int64  `json:"id"`
	ProjectID    int64  `json:"project_id"`
	Number       int    `json:"number"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	DurationSecs int    `json:"duration_secs,omitempty"`
	Notes        string `json:"notes,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// CreateCueRequest is the request to add a cue. Status defaults to
// not_started.
type CreateCueRequest struct {
	Number       int    `json:"number"`
	Title        string `json:"title"`
	Status       string `json:"status,omitempty"`
	DurationSecs int    `json:"duration_secs,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// UpdateCueRequest is the request to update a cue.
type UpdateCueRequest struct {
	Number       int    `json:"number"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	DurationSecs int    `json:"duration_secs"`
	Notes        string `json:"notes"`
}

// =============================================================================
// INVOICE / PAYMENT
// =============================================================================

// LineItemDTO is one invoice line.
type LineItemDTO struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// InvoiceDTO represents an invoice with its line items.
type InvoiceDTO struct {
	ID             int64         `json:"id"`
	ProjectID      int64         `json:"project_id"`
	Amount         string        `json:"amount"`
	DepositPercent float64       `json:"deposit_percent"`
	Status         string        `json:"status"`
	LineItems      []LineItemDTO `json:"line_items,omitempty"`
	CreatedAt      string        `json:"created_at,omitempty"`
}

// CreateInvoiceRequest is the request to create an invoice. Status
// defaults to draft. An empty amount falls back to the line-item sum.
type CreateInvoiceRequest struct {
	Amount         string        `json:"amount,omitempty"`
	DepositPercent float64       `json:"deposit_percent,omitempty"`
	Status         string        `json:"status,omitempty"`
	LineItems      []LineItemDTO `json:"line_items,omitempty"`
}

// SetInvoiceStatusRequest moves an invoice through its lifecycle.
type SetInvoiceStatusRequest struct {
	Status string `json:"status"`
}

// PaymentDTO represents money received against an invoice. ProjectID is
// always the invoice's project; the store derives it.
type PaymentDTO struct {
	ID         int64  `json:"id"`
	InvoiceID  int64  `json:"invoice_id"`
	ProjectID  int64  `json:"project_id"`
	Amount     string `json:"amount"`
	Method     string `json:"method,omitempty"`
	ReceivedAt string `json:"received_at,omitempty"`
	Notes      string `json:"notes,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// CreatePaymentRequest is the request to record a payment against the
// invoice in the URL. There is no project field on purpose.
type CreatePaymentRequest struct {
	Amount     string `json:"amount"`
	Method     string `json:"method,omitempty"`
	ReceivedAt string `json:"received_at,omitempty"` // YYYY-MM-DD, defaults to today
	Notes      string `json:"notes,omitempty"`
}

// =============================================================================
// TOTALS / RUNS / MISC
// =============================================================================

// ProjectTotalsDTO is the per-project aggregate view plus the derived
// balance, rendered with money as strings.
type ProjectTotalsDTO struct {
	ProjectID      int64          `json:"project_id"`
	EstimateCount  int            `json:"estimate_count"`
	EstimatedTotal string         `json:"estimated_total"`
	InvoicedTotal  string         `json:"invoiced_total"`
	PaidTotal      string         `json:"paid_total"`
	BalanceDue     string         `json:"balance_due"`
	CueCount       int            `json:"cue_count"`
	CuesByStatus   map[string]int `json:"cues_by_status"`
	MusicMinutes   int            `json:"music_minutes"`
}

// GlobalTotalsDTO is the store-wide aggregate view.
type GlobalTotalsDTO struct {
	ProjectCount     int    `json:"project_count"`
	ActiveProjects   int    `json:"active_projects"`
	InvoicedTotal    string `json:"invoiced_total"`
	PaidTotal        string `json:"paid_total"`
	OutstandingTotal string `json:"outstanding_total"`
	CueCount         int    `json:"cue_count"`
}

// RunDTO is one consolidation run from the audit log. Report is the
// stored report object, re-embedded as raw JSON.
type RunDTO struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Report     any    `json:"report,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toProjectDTO(p *studio.Project) ProjectDTO {
	return ProjectDTO{
		ID:        p.ID,
		Name:      p.Name,
		Status:    string(p.Status),
		Notes:     p.Notes,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
	}
}

func toScopeDTO(s *studio.Scope) ScopeDTO {
	return ScopeDTO{
		ProjectID:          s.ProjectID,
		MusicMinutes:       s.MusicMinutes,
		OrchestrationHours: s.OrchestrationHours,
		RecordingHours:     s.RecordingHours,
		MixingHours:        s.MixingHours,
		Contact:            s.Contact,
		UpdatedAt:          s.UpdatedAt.Format(time.RFC3339),
	}
}

func toEstimateDTO(e *studio.Estimate) EstimateDTO {
	return EstimateDTO{
		ID:             e.ID,
		ProjectID:      e.ProjectID,
		MusicMinutes:   e.MusicMinutes,
		CreativeFee:    e.CreativeFee.String(),
		ProductionCost: e.ProductionCost.String(),
		LicensingFee:   e.LicensingFee.String(),
		TotalCost:      e.TotalCost.String(),
		CreatedAt:      e.CreatedAt.Format(time.RFC3339),
	}
}

func toCueDTO(c *studio.Cue) CueDTO {
	return CueDTO{
		ID:           c.ID,
		ProjectID:    c.ProjectID,
		Number:       c.Number,
		Title:        c.Title,
		Status:       string(c.Status),
		DurationSecs: c.DurationSecs,
		Notes:        c.Notes,
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
	}
}

func toInvoiceDTO(inv *studio.Invoice) InvoiceDTO {
	items := make([]LineItemDTO, len(inv.LineItems))
	for i, li := range inv.LineItems {
		items[i] = LineItemDTO{Description: li.Description, Amount: li.Amount.String()}
	}
	return InvoiceDTO{
		ID:             inv.ID,
		ProjectID:      inv.ProjectID,
		Amount:         inv.Amount.String(),
		DepositPercent: inv.DepositPercent,
		Status:         string(inv.Status),
		LineItems:      items,
		CreatedAt:      inv.CreatedAt.Format(time.RFC3339),
	}
}

func toPaymentDTO(p *studio.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:        p.ID,
		InvoiceID: p.InvoiceID,
		ProjectID: p.ProjectID,
		Amount:    p.Amount.String(),
		Method:    p.Method,
		Notes:     p.Notes,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
	if !p.ReceivedAt.IsZero() {
		dto.ReceivedAt = p.ReceivedAt.Format("2006-01-02")
	}
	return dto
}

func toProjectTotalsDTO(t *studio.ProjectTotals) ProjectTotalsDTO {
	byStatus := make(map[string]int, len(t.CuesByStatus))
	for status, n := range t.CuesByStatus {
		byStatus[string(status)] = n
	}
	return ProjectTotalsDTO{
		ProjectID:      t.ProjectID,
		EstimateCount:  t.EstimateCount,
		EstimatedTotal: t.EstimatedTotal.String(),
		InvoicedTotal:  t.InvoicedTotal.String(),
		PaidTotal:      t.PaidTotal.String(),
		BalanceDue:     t.BalanceDue().String(),
		CueCount:       t.CueCount,
		CuesByStatus:   byStatus,
		MusicMinutes:   t.MusicMinutes,
	}
}

func toGlobalTotalsDTO(t *studio.GlobalTotals) GlobalTotalsDTO {
	return GlobalTotalsDTO{
		ProjectCount:     t.ProjectCount,
		ActiveProjects:   t.ActiveProjects,
		InvoicedTotal:    t.InvoicedTotal.String(),
		PaidTotal:        t.PaidTotal.String(),
		OutstandingTotal: t.OutstandingTotal().String(),
		CueCount:         t.CueCount,
	}
}

// parseMoney parses a request money string. Empty means zero; anything
// unparseable is a validation error for the handler to report.
func parseMoney(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
