/*
Package studio defines the normalized business-record model.

PURPOSE:
  This package contains the authoritative entity types for a production
  studio's books: projects, scoring scope, cost estimates, music cues,
  invoices, and payments. Everything else in the repository — the SQLite
  store, the legacy consolidation engine, the aggregate cache, the API —
  speaks in these types.

KEY CONCEPTS IN THIS FILE (types.go):
  - Project: The ownership root. Every other entity hangs off a project.
  - Scope: At most one per project (1:1), written only via upsert.
  - Estimate: Immutable point-in-time cost snapshot.
  - Cue / Invoice / Payment: 1:N working records with status enums.

DESIGN PRINCIPLES:
  1. Precision: Money is decimal.Decimal, never float64.
  2. Store-enforced integrity: foreign keys, cascade deletes, and the
     payment/invoice project agreement live in the store, not in callers.
  3. Plain identifiers: ids are int64 assigned by the store.

SEE ALSO:
  - store.go: The Store interface all implementations satisfy
  - aggregates.go: Derived totals computed over these entities
  - errors.go: The error taxonomy stores and engines share
*/
package studio

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROJECT - Ownership root
// =============================================================================

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"    // In production
	ProjectOnHold    ProjectStatus = "on_hold"   // Paused by client
	ProjectCompleted ProjectStatus = "completed" // Delivered
	ProjectArchived  ProjectStatus = "archived"  // Closed out
)

// Valid reports whether s is one of the defined project statuses.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectOnHold, ProjectCompleted, ProjectArchived:
		return true
	}
	return false
}

// Project is the root of ownership. Deleting a project cascades to its
// scope, estimates, cues, invoices, and payments.
type Project struct {
	ID        int64
	Name      string
	Status    ProjectStatus
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectRef is the minimal (id, name) pair the resolver works over.
// A snapshot of refs is taken once per consolidation run; see
// Store.ProjectRefs.
type ProjectRef struct {
	ID   int64
	Name string
}

// =============================================================================
// SCOPE - 1:1 scoring scope per project
// =============================================================================

// Scope holds the quantitative scoring scope for a project: how many
// minutes of music, and how many hours of each work category. There is at
// most one row per project; writes go through Store.UpsertScope so callers
// never check existence first.
type Scope struct {
	ProjectID          int64
	MusicMinutes       int
	OrchestrationHours float64
	RecordingHours     float64
	MixingHours        float64
	Contact            string
	UpdatedAt          time.Time
}

// =============================================================================
// ESTIMATE - Immutable cost snapshot
// =============================================================================

// Estimate is a point-in-time cost computation. Once written it is never
// updated, only deleted.
type Estimate struct {
	ID             int64
	ProjectID      int64
	MusicMinutes   int
	CreativeFee    decimal.Decimal
	ProductionCost decimal.Decimal
	LicensingFee   decimal.Decimal
	TotalCost      decimal.Decimal
	CreatedAt      time.Time
}

// =============================================================================
// CUE - Unit of scoring work
// =============================================================================

type CueStatus string

const (
	CueNotStarted CueStatus = "not_started" // Default for new cues
	CueInProgress CueStatus = "in_progress"
	CueRecorded   CueStatus = "recorded"
	CueApproved   CueStatus = "approved"
)

func (s CueStatus) Valid() bool {
	switch s {
	case CueNotStarted, CueInProgress, CueRecorded, CueApproved:
		return true
	}
	return false
}

// Cue is one piece of music in a project, tracked by a human-assigned
// number (1m2, cue 14, ...). Numbers are meaningful only within their
// project and are deliberately NOT unique-constrained: legacy cue sheets
// repeat numbers across revisions and the store must accept them.
type Cue struct {
	ID           int64
	ProjectID    int64
	Number       int
	Title        string
	Status       CueStatus
	DurationSecs int
	Notes        string
	CreatedAt    time.Time
}

// =============================================================================
// INVOICE - Billing record with serialized line items
// =============================================================================

type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "draft" // Default for new invoices
	InvoiceSent  InvoiceStatus = "sent"
	InvoicePaid  InvoiceStatus = "paid"
	InvoiceVoid  InvoiceStatus = "void"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceVoid:
		return true
	}
	return false
}

// LineItem is one line of an invoice. The collection is serialized as JSON
// in the relational store.
type LineItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type Invoice struct {
	ID             int64
	ProjectID      int64
	Amount         decimal.Decimal
	DepositPercent float64
	Status         InvoiceStatus
	LineItems      []LineItem
	CreatedAt      time.Time
}

// =============================================================================
// PAYMENT - Money received against an invoice
// =============================================================================

// Payment references both its invoice and, redundantly, the project — the
// project id is a denormalized convenience for project-scoped queries.
//
// INVARIANT: payment.ProjectID always equals its invoice's ProjectID. The
// store derives it from the invoice at insert time; any caller-supplied
// value is ignored.
type Payment struct {
	ID         int64
	InvoiceID  int64
	ProjectID  int64
	Amount     decimal.Decimal
	Method     string
	ReceivedAt time.Time
	Notes      string
	CreatedAt  time.Time
}

// =============================================================================
// MONEY HELPERS
// =============================================================================

// MustDecimal parses s as a decimal, returning zero on malformed input.
// Used for fixtures and for reading money columns back from storage, which
// only ever hold String() output.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
