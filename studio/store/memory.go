// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quartertone/studio-engine/studio"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/demo mode)
// =============================================================================

// Memory implements studio.Store and studio.RunLog with plain maps under a
// single mutex. Every method is atomic, which gives the same observable
// transaction boundaries as the SQLite store: cascades and payment
// derivation happen inside one lock hold.
type Memory struct {
	mu        sync.RWMutex
	projects  map[int64]studio.Project
	scopes    map[int64]studio.Scope // keyed by project id
	estimates map[int64]studio.Estimate
	cues      map[int64]studio.Cue
	invoices  map[int64]studio.Invoice
	payments  map[int64]studio.Payment
	runs      []studio.RunRecord

	nextProject  int64
	nextEstimate int64
	nextCue      int64
	nextInvoice  int64
	nextPayment  int64
}

func NewMemory() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

func (m *Memory) reset() {
	m.projects = make(map[int64]studio.Project)
	m.scopes = make(map[int64]studio.Scope)
	m.estimates = make(map[int64]studio.Estimate)
	m.cues = make(map[int64]studio.Cue)
	m.invoices = make(map[int64]studio.Invoice)
	m.payments = make(map[int64]studio.Payment)
	m.runs = nil
	m.nextProject, m.nextEstimate, m.nextCue, m.nextInvoice, m.nextPayment = 1, 1, 1, 1, 1
}

// =============================================================================
// PROJECTS
// =============================================================================

func (m *Memory) CreateProject(_ context.Context, p *studio.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.Status == "" {
		p.Status = studio.ProjectActive
	}
	if !p.Status.Valid() {
		return &studio.IntegrityError{Op: "create project", Cause: fmt.Errorf("invalid status %q", p.Status)}
	}

	if p.ID == 0 {
		p.ID = m.nextProject
	} else if _, taken := m.projects[p.ID]; taken {
		return &studio.IntegrityError{Op: "create project", Cause: fmt.Errorf("project id %d already exists", p.ID)}
	}
	if p.ID >= m.nextProject {
		m.nextProject = p.ID + 1
	}

	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	m.projects[p.ID] = *p
	return nil
}

func (m *Memory) GetProject(_ context.Context, id int64) (*studio.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok {
		return nil, &studio.NotFoundError{Kind: "project", ID: id}
	}
	return &p, nil
}

func (m *Memory) ListProjects(_ context.Context) ([]studio.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]studio.Project, 0, len(m.projects))
	for _, p := range m.projects {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) UpdateProject(_ context.Context, p *studio.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.projects[p.ID]
	if !ok {
		return &studio.NotFoundError{Kind: "project", ID: p.ID}
	}
	if !p.Status.Valid() {
		return &studio.IntegrityError{Op: "update project", Cause: fmt.Errorf("invalid status %q", p.Status)}
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	m.projects[p.ID] = *p
	return nil
}

// DeleteProject cascades to every dependent row under one lock hold.
func (m *Memory) DeleteProject(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[id]; !ok {
		return &studio.NotFoundError{Kind: "project", ID: id}
	}

	delete(m.projects, id)
	delete(m.scopes, id)
	for eid, e := range m.estimates {
		if e.ProjectID == id {
			delete(m.estimates, eid)
		}
	}
	for cid, c := range m.cues {
		if c.ProjectID == id {
			delete(m.cues, cid)
		}
	}
	for iid, inv := range m.invoices {
		if inv.ProjectID == id {
			delete(m.invoices, iid)
		}
	}
	for pid, pay := range m.payments {
		if pay.ProjectID == id {
			delete(m.payments, pid)
		}
	}
	return nil
}

func (m *Memory) ProjectRefs(_ context.Context) ([]studio.ProjectRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	refs := make([]studio.ProjectRef, 0, len(m.projects))
	for _, p := range m.projects {
		refs = append(refs, studio.ProjectRef{ID: p.ID, Name: p.Name})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// =============================================================================
// SCOPE - Upsert keyed by project id
// =============================================================================

func (m *Memory) UpsertScope(_ context.Context, s *studio.Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[s.ProjectID]; !ok {
		return &studio.IntegrityError{Op: "upsert scope", Cause: fmt.Errorf("project %d does not exist", s.ProjectID)}
	}
	s.UpdatedAt = time.Now().UTC()
	m.scopes[s.ProjectID] = *s
	return nil
}

func (m *Memory) GetScope(_ context.Context, projectID int64) (*studio.Scope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scopes[projectID]
	if !ok {
		return nil, &studio.NotFoundError{Kind: "scope", ID: projectID}
	}
	return &s, nil
}

// =============================================================================
// ESTIMATES
// =============================================================================

func (m *Memory) InsertEstimate(_ context.Context, e *studio.Estimate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[e.ProjectID]; !ok {
		return &studio.IntegrityError{Op: "insert estimate", Cause: fmt.Errorf("project %d does not exist", e.ProjectID)}
	}
	e.ID = m.nextEstimate
	m.nextEstimate++
	e.CreatedAt = time.Now().UTC()
	m.estimates[e.ID] = *e
	return nil
}

func (m *Memory) ListEstimates(_ context.Context, projectID int64) ([]studio.Estimate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []studio.Estimate
	for _, e := range m.estimates {
		if e.ProjectID == projectID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) DeleteEstimate(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.estimates[id]; !ok {
		return &studio.NotFoundError{Kind: "estimate", ID: id}
	}
	delete(m.estimates, id)
	return nil
}

// =============================================================================
// CUES
// =============================================================================

func (m *Memory) InsertCue(_ context.Context, c *studio.Cue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[c.ProjectID]; !ok {
		return &studio.IntegrityError{Op: "insert cue", Cause: fmt.Errorf("project %d does not exist", c.ProjectID)}
	}
	if c.Status == "" {
		c.Status = studio.CueNotStarted
	}
	if !c.Status.Valid() {
		return &studio.IntegrityError{Op: "insert cue", Cause: fmt.Errorf("invalid status %q", c.Status)}
	}
	c.ID = m.nextCue
	m.nextCue++
	c.CreatedAt = time.Now().UTC()
	m.cues[c.ID] = *c
	return nil
}

func (m *Memory) ListCues(_ context.Context, projectID int64) ([]studio.Cue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []studio.Cue
	for _, c := range m.cues {
		if c.ProjectID == projectID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Number != result[j].Number {
			return result[i].Number < result[j].Number
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) UpdateCue(_ context.Context, c *studio.Cue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.cues[c.ID]
	if !ok {
		return &studio.NotFoundError{Kind: "cue", ID: c.ID}
	}
	if !c.Status.Valid() {
		return &studio.IntegrityError{Op: "update cue", Cause: fmt.Errorf("invalid status %q", c.Status)}
	}
	c.ProjectID = existing.ProjectID // cues never move between projects
	c.CreatedAt = existing.CreatedAt
	m.cues[c.ID] = *c
	return nil
}

func (m *Memory) DeleteCue(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cues[id]; !ok {
		return &studio.NotFoundError{Kind: "cue", ID: id}
	}
	delete(m.cues, id)
	return nil
}

func (m *Memory) CueNumberExists(_ context.Context, projectID int64, number int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.cues {
		if c.ProjectID == projectID && c.Number == number {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// INVOICES
// =============================================================================

func (m *Memory) InsertInvoice(_ context.Context, inv *studio.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[inv.ProjectID]; !ok {
		return &studio.IntegrityError{Op: "insert invoice", Cause: fmt.Errorf("project %d does not exist", inv.ProjectID)}
	}
	if inv.Status == "" {
		inv.Status = studio.InvoiceDraft
	}
	if !inv.Status.Valid() {
		return &studio.IntegrityError{Op: "insert invoice", Cause: fmt.Errorf("invalid status %q", inv.Status)}
	}
	inv.ID = m.nextInvoice
	m.nextInvoice++
	inv.CreatedAt = time.Now().UTC()
	m.invoices[inv.ID] = cloneInvoice(*inv)
	return nil
}

func (m *Memory) GetInvoice(_ context.Context, id int64) (*studio.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invoices[id]
	if !ok {
		return nil, &studio.NotFoundError{Kind: "invoice", ID: id}
	}
	out := cloneInvoice(inv)
	return &out, nil
}

func (m *Memory) ListInvoices(_ context.Context, projectID int64) ([]studio.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []studio.Invoice
	for _, inv := range m.invoices {
		if inv.ProjectID == projectID {
			result = append(result, cloneInvoice(inv))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) SetInvoiceStatus(_ context.Context, id int64, status studio.InvoiceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[id]
	if !ok {
		return &studio.NotFoundError{Kind: "invoice", ID: id}
	}
	if !status.Valid() {
		return &studio.IntegrityError{Op: "set invoice status", Cause: fmt.Errorf("invalid status %q", status)}
	}
	inv.Status = status
	m.invoices[id] = inv
	return nil
}

// DeleteInvoice cascades to the invoice's payments.
func (m *Memory) DeleteInvoice(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.invoices[id]; !ok {
		return &studio.NotFoundError{Kind: "invoice", ID: id}
	}
	delete(m.invoices, id)
	for pid, pay := range m.payments {
		if pay.InvoiceID == id {
			delete(m.payments, pid)
		}
	}
	return nil
}

// =============================================================================
// PAYMENTS - Project id derived from the invoice, never trusted
// =============================================================================

func (m *Memory) InsertPayment(_ context.Context, p *studio.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[p.InvoiceID]
	if !ok {
		return &studio.IntegrityError{Op: "insert payment", Cause: fmt.Errorf("invoice %d does not exist", p.InvoiceID)}
	}
	p.ProjectID = inv.ProjectID
	p.ID = m.nextPayment
	m.nextPayment++
	p.CreatedAt = time.Now().UTC()
	m.payments[p.ID] = *p
	return nil
}

func (m *Memory) ListPayments(_ context.Context, invoiceID int64) ([]studio.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []studio.Payment
	for _, p := range m.payments {
		if p.InvoiceID == invoiceID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) ListProjectPayments(_ context.Context, projectID int64) ([]studio.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []studio.Payment
	for _, p := range m.payments {
		if p.ProjectID == projectID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) DeletePayment(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payments[id]; !ok {
		return &studio.NotFoundError{Kind: "payment", ID: id}
	}
	delete(m.payments, id)
	return nil
}

// =============================================================================
// AGGREGATES
// =============================================================================

func (m *Memory) ProjectTotals(_ context.Context, projectID int64) (*studio.ProjectTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.projects[projectID]; !ok {
		return nil, &studio.NotFoundError{Kind: "project", ID: projectID}
	}

	totals := &studio.ProjectTotals{
		ProjectID:    projectID,
		CuesByStatus: make(map[studio.CueStatus]int),
	}

	var latestEstimateID int64
	for _, e := range m.estimates {
		if e.ProjectID != projectID {
			continue
		}
		totals.EstimateCount++
		if e.ID > latestEstimateID {
			latestEstimateID = e.ID
			totals.EstimatedTotal = e.TotalCost
		}
	}

	for _, inv := range m.invoices {
		if inv.ProjectID != projectID || inv.Status == studio.InvoiceVoid {
			continue
		}
		totals.InvoicedTotal = totals.InvoicedTotal.Add(inv.Amount)
	}

	for _, p := range m.payments {
		if p.ProjectID == projectID {
			totals.PaidTotal = totals.PaidTotal.Add(p.Amount)
		}
	}

	for _, c := range m.cues {
		if c.ProjectID == projectID {
			totals.CueCount++
			totals.CuesByStatus[c.Status]++
		}
	}

	if s, ok := m.scopes[projectID]; ok {
		totals.MusicMinutes = s.MusicMinutes
	}
	return totals, nil
}

func (m *Memory) GlobalTotals(_ context.Context) (*studio.GlobalTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := &studio.GlobalTotals{
		ProjectCount:  len(m.projects),
		CueCount:      len(m.cues),
		InvoicedTotal: decimal.Zero,
		PaidTotal:     decimal.Zero,
	}
	for _, p := range m.projects {
		if p.Status == studio.ProjectActive {
			totals.ActiveProjects++
		}
	}
	for _, inv := range m.invoices {
		if inv.Status != studio.InvoiceVoid {
			totals.InvoicedTotal = totals.InvoicedTotal.Add(inv.Amount)
		}
	}
	for _, p := range m.payments {
		totals.PaidTotal = totals.PaidTotal.Add(p.Amount)
	}
	return totals, nil
}

// =============================================================================
// RUN LOG, RESET
// =============================================================================

func (m *Memory) SaveRun(_ context.Context, rec studio.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, rec)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]studio.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	result := make([]studio.RunRecord, 0, min(limit, len(m.runs)))
	for i := len(m.runs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, m.runs[i])
	}
	return result, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

func cloneInvoice(inv studio.Invoice) studio.Invoice {
	if inv.LineItems != nil {
		inv.LineItems = append([]studio.LineItem{}, inv.LineItems...)
	}
	return inv
}
