/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements studio.Store and studio.RunLog using SQLite. The same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  studio.Store:  Entity persistence with cascade deletes and upserts
  studio.RunLog: Consolidation run audit trail

KEY TABLES:
  projects:           Ownership roots; everything cascades from here
  scopes:             1:1 scoring scope, project_id is the PRIMARY KEY
  estimates:          Immutable cost snapshots
  cues:               Working cue sheet rows
  invoices:           Billing records with serialized line items
  payments:           Money received, FK to both invoice and project
  consolidation_runs: One row per consolidation run (report JSON)

INTEGRITY:
  Foreign keys are enforced by the engine (DSN opens with _foreign_keys=on),
  not by application checks. Every dependent table declares
  REFERENCES ... ON DELETE CASCADE, so deleting a project removes its whole
  subtree in one statement inside one transaction. The payments table
  carries a denormalized project_id; InsertPayment derives it from the
  invoice row inside the same transaction so it can never disagree.

MONEY:
  Decimal amounts are stored as TEXT and summed in Go. SQLite's SUM would
  coerce to float and lose cents; walking the rows with decimal arithmetic
  is the correct (and the expensive, hence cached) path.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/studio.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - studio/store.go: Interface definitions and contract notes
  - studio/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/quartertone/studio-engine/studio"
)

// Store implements studio.Store and studio.RunLog using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Projects (ownership roots)
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active'
			CHECK (status IN ('active', 'on_hold', 'completed', 'archived')),
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Name lookups drive legacy resolution fallback; not UNIQUE on purpose,
	-- duplicate display names are resolved by lowest id.
	CREATE INDEX IF NOT EXISTS idx_projects_name ON projects(name);

	-- Scope (1:1 per project; the project id IS the primary key)
	CREATE TABLE IF NOT EXISTS scopes (
		project_id INTEGER PRIMARY KEY
			REFERENCES projects(id) ON DELETE CASCADE,
		music_minutes INTEGER NOT NULL DEFAULT 0,
		orchestration_hours REAL NOT NULL DEFAULT 0,
		recording_hours REAL NOT NULL DEFAULT 0,
		mixing_hours REAL NOT NULL DEFAULT 0,
		contact TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	-- Estimates (immutable cost snapshots)
	CREATE TABLE IF NOT EXISTS estimates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL
			REFERENCES projects(id) ON DELETE CASCADE,
		music_minutes INTEGER NOT NULL DEFAULT 0,
		creative_fee TEXT NOT NULL DEFAULT '0',
		production_cost TEXT NOT NULL DEFAULT '0',
		licensing_fee TEXT NOT NULL DEFAULT '0',
		total_cost TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_estimates_project ON estimates(project_id);

	-- Cues. Numbers repeat across legacy cue-sheet revisions, so there is
	-- deliberately no UNIQUE(project_id, number) constraint.
	CREATE TABLE IF NOT EXISTS cues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL
			REFERENCES projects(id) ON DELETE CASCADE,
		number INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'not_started'
			CHECK (status IN ('not_started', 'in_progress', 'recorded', 'approved')),
		duration_secs INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cues_project ON cues(project_id);
	CREATE INDEX IF NOT EXISTS idx_cues_project_number ON cues(project_id, number);

	-- Invoices
	CREATE TABLE IF NOT EXISTS invoices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL
			REFERENCES projects(id) ON DELETE CASCADE,
		amount TEXT NOT NULL DEFAULT '0',
		deposit_percent REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'draft'
			CHECK (status IN ('draft', 'sent', 'paid', 'void')),
		line_items_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_project ON invoices(project_id);

	-- Payments. project_id is denormalized for project-scoped queries and
	-- is ALWAYS derived from the invoice row at insert time.
	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_id INTEGER NOT NULL
			REFERENCES invoices(id) ON DELETE CASCADE,
		project_id INTEGER NOT NULL
			REFERENCES projects(id) ON DELETE CASCADE,
		amount TEXT NOT NULL DEFAULT '0',
		method TEXT NOT NULL DEFAULT '',
		received_at TEXT,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_invoice ON payments(invoice_id);
	CREATE INDEX IF NOT EXISTS idx_payments_project ON payments(project_id);

	-- Consolidation runs (audit trail; report stored as JSON)
	CREATE TABLE IF NOT EXISTS consolidation_runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON consolidation_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PROJECTS
// =============================================================================

// CreateProject inserts p. A zero id takes the next AUTOINCREMENT value;
// a non-zero id is written as-is so legacy imports keep their numbering.
func (s *Store) CreateProject(ctx context.Context, p *studio.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Status == "" {
		p.Status = studio.ProjectActive
	}
	now := time.Now().UTC()

	if p.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO projects (name, status, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			p.Name, p.Status, p.Notes, now.Format(time.RFC3339), now.Format(time.RFC3339),
		)
		if err != nil {
			return wrapWriteError("create project", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		p.ID = id
	} else {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO projects (id, name, status, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.Status, p.Notes, now.Format(time.RFC3339), now.Format(time.RFC3339),
		)
		if err != nil {
			return wrapWriteError("create project", err)
		}
	}

	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (s *Store) GetProject(ctx context.Context, id int64) (*studio.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, notes, created_at, updated_at
		FROM projects WHERE id = ?`, id)

	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, &studio.NotFoundError{Kind: "project", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]studio.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, notes, created_at, updated_at
		FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []studio.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *Store) UpdateProject(ctx context.Context, p *studio.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, status = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Status, p.Notes, now.Format(time.RFC3339), p.ID,
	)
	if err != nil {
		return wrapWriteError("update project", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &studio.NotFoundError{Kind: "project", ID: p.ID}
	}
	p.UpdatedAt = now
	return nil
}

// DeleteProject removes the project; the engine cascades to scope,
// estimates, cues, invoices, and payments. Wrapped in an explicit
// transaction so no reader observes a partial cascade.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &studio.TxError{Op: "delete project", Cause: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return &studio.TxError{Op: "delete project", Cause: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &studio.NotFoundError{Kind: "project", ID: id}
	}
	if err := tx.Commit(); err != nil {
		return &studio.TxError{Op: "delete project", Cause: err}
	}
	return nil
}

func (s *Store) ProjectRefs(ctx context.Context) ([]studio.ProjectRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM projects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("project refs: %w", err)
	}
	defer rows.Close()

	var refs []studio.ProjectRef
	for rows.Next() {
		var ref studio.ProjectRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, fmt.Errorf("project refs: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// =============================================================================
// SCOPE - Upsert keyed by project id
// =============================================================================

// UpsertScope is a single INSERT ... ON CONFLICT DO UPDATE statement, so
// re-running with the same project id always leaves exactly one row with
// the latest values.
func (s *Store) UpsertScope(ctx context.Context, sc *studio.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scopes
			(project_id, music_minutes, orchestration_hours, recording_hours, mixing_hours, contact, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			music_minutes = excluded.music_minutes,
			orchestration_hours = excluded.orchestration_hours,
			recording_hours = excluded.recording_hours,
			mixing_hours = excluded.mixing_hours,
			contact = excluded.contact,
			updated_at = excluded.updated_at`,
		sc.ProjectID, sc.MusicMinutes, sc.OrchestrationHours, sc.RecordingHours,
		sc.MixingHours, sc.Contact, now.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintError(err) {
			return &studio.IntegrityError{Op: "upsert scope", Cause: err}
		}
		return &studio.TxError{Op: "upsert scope", Cause: err}
	}
	sc.UpdatedAt = now
	return nil
}

func (s *Store) GetScope(ctx context.Context, projectID int64) (*studio.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		sc        studio.Scope
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, music_minutes, orchestration_hours, recording_hours, mixing_hours, contact, updated_at
		FROM scopes WHERE project_id = ?`, projectID,
	).Scan(&sc.ProjectID, &sc.MusicMinutes, &sc.OrchestrationHours, &sc.RecordingHours,
		&sc.MixingHours, &sc.Contact, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, &studio.NotFoundError{Kind: "scope", ID: projectID}
	}
	if err != nil {
		return nil, fmt.Errorf("get scope: %w", err)
	}
	sc.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &sc, nil
}

// =============================================================================
// ESTIMATES
// =============================================================================

func (s *Store) InsertEstimate(ctx context.Context, e *studio.Estimate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO estimates
			(project_id, music_minutes, creative_fee, production_cost, licensing_fee, total_cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ProjectID, e.MusicMinutes,
		e.CreativeFee.String(), e.ProductionCost.String(), e.LicensingFee.String(), e.TotalCost.String(),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return wrapWriteError("insert estimate", err)
	}
	e.ID, _ = res.LastInsertId()
	e.CreatedAt = now
	return nil
}

func (s *Store) ListEstimates(ctx context.Context, projectID int64) ([]studio.Estimate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, music_minutes, creative_fee, production_cost, licensing_fee, total_cost, created_at
		FROM estimates WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list estimates: %w", err)
	}
	defer rows.Close()

	var estimates []studio.Estimate
	for rows.Next() {
		var (
			e                                               studio.Estimate
			creative, production, licensing, total, created string
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.MusicMinutes,
			&creative, &production, &licensing, &total, &created); err != nil {
			return nil, fmt.Errorf("list estimates: %w", err)
		}
		e.CreativeFee = studio.MustDecimal(creative)
		e.ProductionCost = studio.MustDecimal(production)
		e.LicensingFee = studio.MustDecimal(licensing)
		e.TotalCost = studio.MustDecimal(total)
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		estimates = append(estimates, e)
	}
	return estimates, rows.Err()
}

func (s *Store) DeleteEstimate(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM estimates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete estimate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &studio.NotFoundError{Kind: "estimate", ID: id}
	}
	return nil
}

// =============================================================================
// CUES
// =============================================================================

func (s *Store) InsertCue(ctx context.Context, c *studio.Cue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Status == "" {
		c.Status = studio.CueNotStarted
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cues (project_id, number, title, status, duration_secs, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ProjectID, c.Number, c.Title, c.Status, c.DurationSecs, c.Notes,
		now.Format(time.RFC3339),
	)
	if err != nil {
		return wrapWriteError("insert cue", err)
	}
	c.ID, _ = res.LastInsertId()
	c.CreatedAt = now
	return nil
}

func (s *Store) ListCues(ctx context.Context, projectID int64) ([]studio.Cue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, number, title, status, duration_secs, notes, created_at
		FROM cues WHERE project_id = ? ORDER BY number, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list cues: %w", err)
	}
	defer rows.Close()

	var cues []studio.Cue
	for rows.Next() {
		var (
			c       studio.Cue
			created string
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Number, &c.Title, &c.Status,
			&c.DurationSecs, &c.Notes, &created); err != nil {
			return nil, fmt.Errorf("list cues: %w", err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, created)
		cues = append(cues, c)
	}
	return cues, rows.Err()
}

func (s *Store) UpdateCue(ctx context.Context, c *studio.Cue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// project_id is intentionally not updatable: cues never move between
	// projects.
	res, err := s.db.ExecContext(ctx, `
		UPDATE cues SET number = ?, title = ?, status = ?, duration_secs = ?, notes = ?
		WHERE id = ?`,
		c.Number, c.Title, c.Status, c.DurationSecs, c.Notes, c.ID,
	)
	if err != nil {
		return wrapWriteError("update cue", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &studio.NotFoundError{Kind: "cue", ID: c.ID}
	}
	return nil
}

func (s *Store) DeleteCue(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM cues WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete cue: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &studio.NotFoundError{Kind: "cue", ID: id}
	}
	return nil
}

func (s *Store) CueNumberExists(ctx context.Context, projectID int64, number int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cues WHERE project_id = ? AND number = ?",
		projectID, number,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *Store) InsertInvoice(ctx context.Context, inv *studio.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.Status == "" {
		inv.Status = studio.InvoiceDraft
	}
	lineItems, err := json.Marshal(inv.LineItems)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (project_id, amount, deposit_percent, status, line_items_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ProjectID, inv.Amount.String(), inv.DepositPercent, inv.Status,
		string(lineItems), now.Format(time.RFC3339),
	)
	if err != nil {
		return wrapWriteError("insert invoice", err)
	}
	inv.ID, _ = res.LastInsertId()
	inv.CreatedAt = now
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (*studio.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, amount, deposit_percent, status, line_items_json, created_at
		FROM invoices WHERE id = ?`, id)

	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, &studio.NotFoundError{Kind: "invoice", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, projectID int64) ([]studio.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, amount, deposit_percent, status, line_items_json, created_at
		FROM invoices WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []studio.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("list invoices: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

func (s *Store) SetInvoiceStatus(ctx context.Context, id int64, status studio.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE invoices SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return wrapWriteError("set invoice status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &studio.NotFoundError{Kind: "invoice", ID: id}
	}
	return nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM invoices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &studio.NotFoundError{Kind: "invoice", ID: id}
	}
	return nil
}

// =============================================================================
// PAYMENTS - Project id derived from the invoice, never trusted
// =============================================================================

// InsertPayment looks up the invoice's project id and writes the payment
// with it, in one transaction. Whatever p.ProjectID held on entry is
// overwritten; the agreement invariant holds by construction.
func (s *Store) InsertPayment(ctx context.Context, p *studio.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &studio.TxError{Op: "insert payment", Cause: err}
	}
	defer tx.Rollback()

	var projectID int64
	err = tx.QueryRowContext(ctx,
		"SELECT project_id FROM invoices WHERE id = ?", p.InvoiceID,
	).Scan(&projectID)
	if err == sql.ErrNoRows {
		return &studio.IntegrityError{Op: "insert payment",
			Cause: fmt.Errorf("invoice %d does not exist", p.InvoiceID)}
	}
	if err != nil {
		return &studio.TxError{Op: "insert payment", Cause: err}
	}
	p.ProjectID = projectID

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO payments (invoice_id, project_id, amount, method, received_at, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.InvoiceID, p.ProjectID, p.Amount.String(), p.Method,
		nullTime(p.ReceivedAt), p.Notes, now.Format(time.RFC3339),
	)
	if err != nil {
		return wrapWriteError("insert payment", err)
	}
	if err := tx.Commit(); err != nil {
		return &studio.TxError{Op: "insert payment", Cause: err}
	}
	p.ID, _ = res.LastInsertId()
	p.CreatedAt = now
	return nil
}

func (s *Store) ListPayments(ctx context.Context, invoiceID int64) ([]studio.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryPayments(ctx, `
		SELECT id, invoice_id, project_id, amount, method, received_at, notes, created_at
		FROM payments WHERE invoice_id = ? ORDER BY id`, invoiceID)
}

func (s *Store) ListProjectPayments(ctx context.Context, projectID int64) ([]studio.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryPayments(ctx, `
		SELECT id, invoice_id, project_id, amount, method, received_at, notes, created_at
		FROM payments WHERE project_id = ? ORDER BY id`, projectID)
}

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]studio.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var payments []studio.Payment
	for rows.Next() {
		var (
			p                 studio.Payment
			amount, created   string
			receivedAt        sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.ProjectID, &amount, &p.Method,
			&receivedAt, &p.Notes, &created); err != nil {
			return nil, fmt.Errorf("query payments: %w", err)
		}
		p.Amount = studio.MustDecimal(amount)
		if receivedAt.Valid {
			p.ReceivedAt, _ = time.Parse(time.RFC3339, receivedAt.String)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, created)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) DeletePayment(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &studio.NotFoundError{Kind: "payment", ID: id}
	}
	return nil
}

// =============================================================================
// AGGREGATES - Money summed as decimals in Go, never SQL SUM
// =============================================================================

func (s *Store) ProjectTotals(ctx context.Context, projectID int64) (*studio.ProjectTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM projects WHERE id = ?", projectID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("project totals: %w", err)
	}
	if exists == 0 {
		return nil, &studio.NotFoundError{Kind: "project", ID: projectID}
	}

	totals := &studio.ProjectTotals{
		ProjectID:    projectID,
		CuesByStatus: make(map[studio.CueStatus]int),
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM estimates WHERE project_id = ?", projectID,
	).Scan(&totals.EstimateCount)
	if err != nil {
		return nil, fmt.Errorf("project totals: %w", err)
	}

	var latestTotal string
	err = s.db.QueryRowContext(ctx, `
		SELECT total_cost FROM estimates WHERE project_id = ?
		ORDER BY id DESC LIMIT 1`, projectID,
	).Scan(&latestTotal)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("project totals: %w", err)
	}
	totals.EstimatedTotal = studio.MustDecimal(latestTotal)

	totals.InvoicedTotal, err = s.sumColumn(ctx,
		"SELECT amount FROM invoices WHERE project_id = ? AND status != 'void'", projectID)
	if err != nil {
		return nil, fmt.Errorf("project totals: %w", err)
	}

	totals.PaidTotal, err = s.sumColumn(ctx,
		"SELECT amount FROM payments WHERE project_id = ?", projectID)
	if err != nil {
		return nil, fmt.Errorf("project totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM cues WHERE project_id = ? GROUP BY status", projectID)
	if err != nil {
		return nil, fmt.Errorf("project totals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status studio.CueStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("project totals: %w", err)
		}
		totals.CuesByStatus[status] = count
		totals.CueCount += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("project totals: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT music_minutes FROM scopes WHERE project_id = ?", projectID,
	).Scan(&totals.MusicMinutes)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("project totals: %w", err)
	}

	return totals, nil
}

func (s *Store) GlobalTotals(ctx context.Context) (*studio.GlobalTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := &studio.GlobalTotals{
		InvoicedTotal: decimal.Zero,
		PaidTotal:     decimal.Zero,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0)
		FROM projects`,
	).Scan(&totals.ProjectCount, &totals.ActiveProjects)
	if err != nil {
		return nil, fmt.Errorf("global totals: %w", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cues").Scan(&totals.CueCount)
	if err != nil {
		return nil, fmt.Errorf("global totals: %w", err)
	}

	totals.InvoicedTotal, err = s.sumColumn(ctx,
		"SELECT amount FROM invoices WHERE status != 'void'")
	if err != nil {
		return nil, fmt.Errorf("global totals: %w", err)
	}

	totals.PaidTotal, err = s.sumColumn(ctx, "SELECT amount FROM payments")
	if err != nil {
		return nil, fmt.Errorf("global totals: %w", err)
	}

	return totals, nil
}

// sumColumn walks a single TEXT money column and sums it as decimals.
func (s *Store) sumColumn(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(studio.MustDecimal(raw))
	}
	return sum, rows.Err()
}

// =============================================================================
// RUN LOG
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, rec studio.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consolidation_runs (id, source, started_at, finished_at, report_json)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Source,
		rec.StartedAt.UTC().Format(time.RFC3339),
		rec.FinishedAt.UTC().Format(time.RFC3339),
		rec.ReportJSON,
	)
	if err != nil {
		return wrapWriteError("save run", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]studio.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, started_at, finished_at, report_json
		FROM consolidation_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []studio.RunRecord
	for rows.Next() {
		var (
			rec                 studio.RunRecord
			started, finished   string
		)
		if err := rows.Scan(&rec.ID, &rec.Source, &started, &finished, &rec.ReportJSON); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339, started)
		rec.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo). Children first so the deletes
// never trip FK enforcement mid-way.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"payments", "invoices", "cues", "estimates", "scopes", "projects", "consolidation_runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*studio.Project, error) {
	var (
		p                  studio.Project
		created, updated   string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Status, &p.Notes, &created, &updated)
	if err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, created)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &p, nil
}

func scanInvoice(row rowScanner) (*studio.Invoice, error) {
	var (
		inv                      studio.Invoice
		amount, items, created   string
	)
	err := row.Scan(&inv.ID, &inv.ProjectID, &amount, &inv.DepositPercent,
		&inv.Status, &items, &created)
	if err != nil {
		return nil, err
	}
	inv.Amount = studio.MustDecimal(amount)
	if items != "" && items != "[]" {
		json.Unmarshal([]byte(items), &inv.LineItems)
	}
	inv.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &inv, nil
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// wrapWriteError maps SQLite constraint rejections to IntegrityError and
// leaves other failures as plain wrapped errors.
func wrapWriteError(op string, err error) error {
	if isConstraintError(err) {
		return &studio.IntegrityError{Op: op, Cause: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "FOREIGN KEY constraint failed") ||
		strings.Contains(msg, "CHECK constraint failed")
}
