/*
Package consolidate migrates loosely-typed legacy records into the
normalized entity store.

PURPOSE:
  One-shot (per legacy source) batch reconciliation. Each record is
  resolved to a project, mapped with total field defaulting, and
  written through the store. Outcomes accumulate in a structured
  report; a bad record never aborts the batch.

KEY DESIGN PRINCIPLES:
  1. Dependency kinds before dependents: projects are consolidated
     first, then scope/estimates/cues/invoices, then payments (which
     need the invoices' new ids).
  2. Resolution runs against one snapshot of known projects taken
     after the project phase. Projects learned mid-run do not change
     resolution behavior.
  3. Writes for the same project are serialized: records are grouped
     by resolved project and each group runs on a single goroutine.
     Groups for different projects run concurrently under a bounded
     worker pool.
  4. Partial success: per-record failures are recorded and the batch
     continues. Only batch cancellation stops the run early, and even
     then the report covers everything processed so far.
  5. Scope consolidation is an upsert and therefore idempotent.
     Estimates, cues, invoices, and payments insert new rows on every
     run; re-running a batch duplicates them unless cue dedup is
     explicitly enabled in Options.

REPORT OUTCOMES:
  MIGRATED           one normalized row written
  SKIPPED_UNRESOLVED no matching project (or invoice, for payments)
  FAILED_WRITE       the store rejected the write; cause attached

USAGE:
  engine := consolidate.New(store, logger, cacheInvalidator, consolidate.Options{})
  report, err := engine.Run(ctx, snapshot)
  fmt.Print(report.Summary())

SEE ALSO:
  - resolver.go: project resolution rules
  - mapping.go: per-kind field mapping and defaulting
  - report.go: outcome accounting
*/
package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quartertone/studio-engine/studio"
)

// Invalidator receives change notifications so cached aggregates are
// never served stale. A nil Invalidator is valid and means no cache.
type Invalidator interface {
	// InvalidateProject drops cached aggregates scoped to the project,
	// plus global aggregates.
	InvalidateProject(id int64)
	// InvalidateAll drops everything.
	InvalidateAll()
}

// Options tunes one consolidation run.
type Options struct {
	// Workers bounds how many project groups consolidate concurrently.
	// Zero or negative selects the default of 4.
	Workers int

	// DedupCues skips cue records whose (project, number) already has a
	// row. Opt-in: legacy cue sheets re-number across revisions, so
	// dedup by number is only safe when the caller knows the source
	// was exported exactly once.
	DedupCues bool
}

// Engine drives consolidation runs. Safe to reuse across runs, but a
// single Engine must not run twice concurrently against the same
// source (see api.Runner, which enforces this).
type Engine struct {
	store studio.Store
	log   *slog.Logger
	inval Invalidator
	opts  Options
}

// New creates a consolidation engine. logger may be nil (falls back to
// slog.Default); inval may be nil (no cache to invalidate).
func New(store studio.Store, logger *slog.Logger, inval Invalidator, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Engine{store: store, log: logger, inval: inval, opts: opts}
}

// projectGroup is the per-project unit of serialized work. Order inside
// the group mirrors the dependency order within a project.
type projectGroup struct {
	projectID int64
	scopes    []Record
	estimates []Record
	cues      []Record
	invoices  []Record
}

// invoiceIndex maps legacy invoice ids to their new rows so payments
// can chase their invoice across the id translation.
type invoiceIndex struct {
	mu sync.Mutex
	m  map[int64]studio.Invoice
}

func (ix *invoiceIndex) put(legacyID int64, inv studio.Invoice) {
	if legacyID == 0 {
		return
	}
	ix.mu.Lock()
	ix.m[legacyID] = inv
	ix.mu.Unlock()
}

func (ix *invoiceIndex) get(legacyID int64) (studio.Invoice, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	inv, ok := ix.m[legacyID]
	return inv, ok
}

// Run consolidates one legacy snapshot. The returned report is always
// non-nil and covers every record processed before err (which is only
// non-nil when ctx was cancelled or the initial store reads failed).
func (e *Engine) Run(ctx context.Context, snap *Snapshot, source string) (*Report, error) {
	report := NewReport(source)
	e.log.Info("consolidation run starting",
		"run_id", report.RunID, "source", source, "records", snap.Count())

	// Phase 1: projects. Sequential - everything else hangs off them.
	if err := e.consolidateProjects(ctx, snap.Projects, report); err != nil {
		report.Cancelled = ctx.Err() != nil
		return report.Finish(), err
	}

	// Resolution snapshot, taken once for the whole run.
	refs, err := e.store.ProjectRefs(ctx)
	if err != nil {
		report.Finish()
		return report, fmt.Errorf("failed to snapshot projects: %w", err)
	}
	resolver := NewResolver(refs)

	// Phase 2: group scope/estimate/cue/invoice records by resolved
	// project; unresolvable records are reported here and never
	// scheduled.
	groups := e.buildGroups(snap, resolver, report)
	invoices := &invoiceIndex{m: make(map[int64]studio.Invoice)}

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for _, grp := range groups {
		grp := grp
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			e.consolidateGroup(ctx, grp, invoices, report)
			return nil
		})
	}
	g.Wait()

	// Phase 3: payments, after every invoice has its new id.
	e.consolidatePayments(ctx, snap.Payments, resolver, invoices, report)

	report.Finish()
	if ctx.Err() != nil {
		report.Cancelled = true
		e.log.Warn("consolidation run cancelled",
			"run_id", report.RunID, "migrated", report.TotalMigrated(), "errors", report.TotalErrors())
		return report, ctx.Err()
	}

	e.log.Info("consolidation run finished",
		"run_id", report.RunID,
		"migrated", report.TotalMigrated(),
		"errors", report.TotalErrors(),
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// consolidateProjects creates legacy projects, preserving their legacy
// ids so id-based resolution of dependent records keeps working. A
// project whose id or exact name already exists is deduped, which makes
// re-running a source harmless at this phase.
func (e *Engine) consolidateProjects(ctx context.Context, records []Record, report *Report) error {
	if len(records) == 0 {
		return nil
	}

	refs, err := e.store.ProjectRefs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	known := NewResolver(refs)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		p := mapProject(rec)
		if p.ID != 0 && known.Known(p.ID) {
			report.Dedup(KindProjects)
			continue
		}
		if p.Name != "" && known.KnownName(p.Name) {
			report.Dedup(KindProjects)
			continue
		}

		if err := e.store.CreateProject(ctx, p); err != nil {
			report.Record(KindProjects, FailedWrite, rec.Ref(), err.Error())
			e.log.Warn("project write failed", "ref", rec.Ref(), "error", err)
			continue
		}
		known.add(studio.ProjectRef{ID: p.ID, Name: p.Name})
		report.Record(KindProjects, Migrated, "", "")
		e.touch(p.ID)
	}
	return nil
}

// buildGroups resolves every scope/estimate/cue/invoice record and
// buckets the resolvable ones by project.
func (e *Engine) buildGroups(snap *Snapshot, resolver *Resolver, report *Report) []*projectGroup {
	byProject := make(map[int64]*projectGroup)
	group := func(id int64) *projectGroup {
		grp, ok := byProject[id]
		if !ok {
			grp = &projectGroup{projectID: id}
			byProject[id] = grp
		}
		return grp
	}

	for _, rec := range snap.Scopes {
		if id, err := resolver.Resolve(rec); err == nil {
			grp := group(id)
			grp.scopes = append(grp.scopes, rec)
		} else {
			report.Record(KindScopes, SkippedUnresolved, rec.Ref(), err.Error())
		}
	}
	for _, rec := range snap.Estimates {
		if id, err := resolver.Resolve(rec); err == nil {
			grp := group(id)
			grp.estimates = append(grp.estimates, rec)
		} else {
			report.Record(KindEstimates, SkippedUnresolved, rec.Ref(), err.Error())
		}
	}
	// Cue sheets arrive batched per project reference; an unresolvable
	// key skips the whole batch, one report entry per cue.
	for key, batch := range snap.Cues {
		id, err := resolver.ResolveKey(key)
		if err != nil {
			for _, rec := range batch {
				report.Record(KindCues, SkippedUnresolved, rec.Ref(), err.Error())
			}
			continue
		}
		grp := group(id)
		grp.cues = append(grp.cues, batch...)
	}
	for _, rec := range snap.Invoices {
		if id, err := resolver.Resolve(rec); err == nil {
			grp := group(id)
			grp.invoices = append(grp.invoices, rec)
		} else {
			report.Record(KindInvoices, SkippedUnresolved, rec.Ref(), err.Error())
		}
	}

	groups := make([]*projectGroup, 0, len(byProject))
	for _, grp := range byProject {
		groups = append(groups, grp)
	}
	// Deterministic scheduling order; execution order across projects
	// still carries no guarantee.
	sort.Slice(groups, func(i, j int) bool { return groups[i].projectID < groups[j].projectID })
	return groups
}

// consolidateGroup writes one project's records in dependency order.
// Runs on its own goroutine; everything here is serialized per project.
func (e *Engine) consolidateGroup(ctx context.Context, grp *projectGroup, invoices *invoiceIndex, report *Report) {
	for _, rec := range grp.scopes {
		if ctx.Err() != nil {
			return
		}
		sc := mapScope(grp.projectID, rec)
		if err := e.store.UpsertScope(ctx, sc); err != nil {
			report.Record(KindScopes, FailedWrite, rec.Ref(), err.Error())
			e.log.Warn("scope write failed", "project_id", grp.projectID, "ref", rec.Ref(), "error", err)
			continue
		}
		report.Record(KindScopes, Migrated, "", "")
		e.touch(grp.projectID)
	}

	for _, rec := range grp.estimates {
		if ctx.Err() != nil {
			return
		}
		est := mapEstimate(grp.projectID, rec)
		if err := e.store.InsertEstimate(ctx, est); err != nil {
			report.Record(KindEstimates, FailedWrite, rec.Ref(), err.Error())
			e.log.Warn("estimate write failed", "project_id", grp.projectID, "ref", rec.Ref(), "error", err)
			continue
		}
		report.Record(KindEstimates, Migrated, "", "")
		e.touch(grp.projectID)
	}

	for _, rec := range grp.cues {
		if ctx.Err() != nil {
			return
		}
		cue := mapCue(grp.projectID, rec)
		if e.opts.DedupCues && cue.Number != 0 {
			exists, err := e.store.CueNumberExists(ctx, grp.projectID, cue.Number)
			if err == nil && exists {
				report.Dedup(KindCues)
				continue
			}
		}
		if err := e.store.InsertCue(ctx, cue); err != nil {
			report.Record(KindCues, FailedWrite, rec.Ref(), err.Error())
			e.log.Warn("cue write failed", "project_id", grp.projectID, "ref", rec.Ref(), "error", err)
			continue
		}
		report.Record(KindCues, Migrated, "", "")
		e.touch(grp.projectID)
	}

	for _, rec := range grp.invoices {
		if ctx.Err() != nil {
			return
		}
		inv := mapInvoice(grp.projectID, rec)
		if err := e.store.InsertInvoice(ctx, inv); err != nil {
			report.Record(KindInvoices, FailedWrite, rec.Ref(), err.Error())
			e.log.Warn("invoice write failed", "project_id", grp.projectID, "ref", rec.Ref(), "error", err)
			continue
		}
		invoices.put(rec.Int("id", "legacyId", "legacy_id"), *inv)
		report.Record(KindInvoices, Migrated, "", "")
		e.touch(grp.projectID)
	}
}

// consolidatePayments attaches payments to their invoices. The legacy
// invoice reference is translated through this run's invoice index
// first; a reference that misses the index but names an invoice id
// already in the store is accepted as-is. The store derives the
// payment's project id from the invoice row, so a legacy project field
// on the payment is never trusted.
func (e *Engine) consolidatePayments(ctx context.Context, records []Record, resolver *Resolver, invoices *invoiceIndex, report *Report) {
	if len(records) == 0 {
		return
	}

	type paymentJob struct {
		rec       Record
		invoiceID int64
	}
	byProject := make(map[int64][]paymentJob)

	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}

		legacyRef := rec.Int("invoiceId", "invoice_id", "invoice")
		if legacyRef == 0 {
			report.Record(KindPayments, SkippedUnresolved, rec.Ref(), "payment carries no invoice reference")
			continue
		}

		if inv, ok := invoices.get(legacyRef); ok {
			byProject[inv.ProjectID] = append(byProject[inv.ProjectID], paymentJob{rec, inv.ID})
			continue
		}

		inv, err := e.store.GetInvoice(ctx, legacyRef)
		switch {
		case studio.IsNotFound(err):
			report.Record(KindPayments, SkippedUnresolved, rec.Ref(),
				fmt.Sprintf("invoice %d not found", legacyRef))
			continue
		case err != nil:
			report.Record(KindPayments, FailedWrite, rec.Ref(), err.Error())
			continue
		}
		byProject[inv.ProjectID] = append(byProject[inv.ProjectID], paymentJob{rec, inv.ID})
	}

	projectIDs := make([]int64, 0, len(byProject))
	for id := range byProject {
		projectIDs = append(projectIDs, id)
	}
	sort.Slice(projectIDs, func(i, j int) bool { return projectIDs[i] < projectIDs[j] })

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for _, projectID := range projectIDs {
		if ctx.Err() != nil {
			break
		}
		jobs := byProject[projectID]
		g.Go(func() error {
			for _, job := range jobs {
				if ctx.Err() != nil {
					return nil
				}
				pay := mapPayment(job.invoiceID, job.rec)
				if err := e.store.InsertPayment(ctx, pay); err != nil {
					report.Record(KindPayments, FailedWrite, job.rec.Ref(), err.Error())
					e.log.Warn("payment write failed", "invoice_id", job.invoiceID, "ref", job.rec.Ref(), "error", err)
					continue
				}
				report.Record(KindPayments, Migrated, "", "")
				e.touch(pay.ProjectID)
			}
			return nil
		})
	}
	g.Wait()
}

func (e *Engine) touch(projectID int64) {
	if e.inval != nil {
		e.inval.InvalidateProject(projectID)
	}
}
