/*
store.go - Persistence interface for the entity model

PURPOSE:
  Defines the interface between domain logic and the database. Nothing
  above this interface constructs SQL; the consolidation engine, the
  aggregate views, and the API all write and read through it.

KEY INTERFACES:
  Store:  Full entity persistence — project CRUD with cascade delete,
          scope upsert, dependent-row inserts, aggregate accessors.
  RunLog: Audit trail of consolidation runs (report per run).

CONTRACT NOTES:
  - UpsertScope is insert-or-update keyed by project id; at most one scope
    row per project can ever exist. Safe to call repeatedly.
  - DeleteProject removes the project and every dependent row in a single
    transaction. No caller may observe a partially-cascaded state.
  - InsertPayment derives the payment's project id from its invoice within
    the same transaction; caller-supplied project ids are ignored.
  - Read accessors return NotFoundError (errors.Is(err, ErrNotFound)) for
    missing rows, never (nil, nil).

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - studio/store/memory.go: In-memory for tests and demo mode

SEE ALSO:
  - types.go: The entities these methods carry
  - aggregates.go: Shapes returned by the aggregate accessors
*/
package studio

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Entity persistence
// =============================================================================

type Store interface {
	// CreateProject persists p, assigning the next id when p.ID is zero.
	// A non-zero p.ID is preserved so legacy imports keep their numbering;
	// if that id is already taken the write fails with an IntegrityError.
	// Timestamps are stamped by the store.
	CreateProject(ctx context.Context, p *Project) error

	GetProject(ctx context.Context, id int64) (*Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	UpdateProject(ctx context.Context, p *Project) error

	// DeleteProject removes the project and cascades to its scope,
	// estimates, cues, invoices, and payments in one transaction.
	DeleteProject(ctx context.Context, id int64) error

	// ProjectRefs returns the (id, name) snapshot the resolver works over.
	ProjectRefs(ctx context.Context) ([]ProjectRef, error)

	// UpsertScope inserts the scope row or updates it in place, keyed by
	// s.ProjectID. The referenced project must exist.
	UpsertScope(ctx context.Context, s *Scope) error
	GetScope(ctx context.Context, projectID int64) (*Scope, error)

	InsertEstimate(ctx context.Context, e *Estimate) error
	ListEstimates(ctx context.Context, projectID int64) ([]Estimate, error)
	DeleteEstimate(ctx context.Context, id int64) error

	InsertCue(ctx context.Context, c *Cue) error
	ListCues(ctx context.Context, projectID int64) ([]Cue, error)
	UpdateCue(ctx context.Context, c *Cue) error
	DeleteCue(ctx context.Context, id int64) error

	// CueNumberExists supports opt-in consolidation dedup. Cue numbers are
	// not unique-constrained; this is a point lookup, not an invariant.
	CueNumberExists(ctx context.Context, projectID int64, number int) (bool, error)

	InsertInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, projectID int64) ([]Invoice, error)
	SetInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error
	DeleteInvoice(ctx context.Context, id int64) error

	// InsertPayment stores p with p.ProjectID derived from p.InvoiceID's
	// invoice inside the same transaction. A missing invoice is an
	// IntegrityError.
	InsertPayment(ctx context.Context, p *Payment) error
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	ListProjectPayments(ctx context.Context, projectID int64) ([]Payment, error)
	DeletePayment(ctx context.Context, id int64) error

	// Aggregate accessors. Money is summed as decimals row by row; these
	// are the expensive reads the cache fronts.
	ProjectTotals(ctx context.Context, projectID int64) (*ProjectTotals, error)
	GlobalTotals(ctx context.Context) (*GlobalTotals, error)

	// Reset drops every row. Demo and test tooling only.
	Reset(ctx context.Context) error
}

// =============================================================================
// RUN LOG - Audit trail of consolidation runs
// =============================================================================

// RunRecord is one consolidation run's audit row. ReportJSON is the
// serialized report; the store treats it as opaque.
type RunRecord struct {
	ID         string
	Source     string // snapshot origin: file path, "api-upload", "sample"
	StartedAt  time.Time
	FinishedAt time.Time
	ReportJSON string
}

// RunLog stores run records. Append-only.
type RunLog interface {
	SaveRun(ctx context.Context, rec RunRecord) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
