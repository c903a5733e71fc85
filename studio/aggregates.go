/*
aggregates.go - Derived totals computed over entity rows

PURPOSE:
  Aggregate views answer "where does this project stand?" without the
  caller touching individual rows: estimate counts, invoiced vs. paid
  money, cue progress. Computing them walks every invoice and payment of a
  project (money lives in TEXT columns and is summed as decimals in Go, so
  there is no cheap SQL SUM), which is why the results are cached.

KEY INSIGHT:
  Totals are computed values, never stored columns. There is no "paid"
  field on Project that can drift out of sync; a fresh computation over the
  rows is always correct, and the cache in front of it is invalidated by
  every write that could change the outcome.

SEE ALSO:
  - store.go: ProjectTotals / GlobalTotals accessors
  - ../cache: The bounded cache these values live in
  - ../api/views.go: Cache keys and invalidation on write
*/
package studio

import "github.com/shopspring/decimal"

// =============================================================================
// PROJECT TOTALS - Per-project aggregate view
// =============================================================================

// ProjectTotals is the derived financial and progress summary for one
// project. EstimatedTotal is the most recent estimate's total (estimates
// are snapshots; summing them would double-count revisions). Void invoices
// are excluded from InvoicedTotal; payments count regardless of their
// invoice's status.
type ProjectTotals struct {
	ProjectID      int64             `json:"project_id"`
	EstimateCount  int               `json:"estimate_count"`
	EstimatedTotal decimal.Decimal   `json:"estimated_total"`
	InvoicedTotal  decimal.Decimal   `json:"invoiced_total"`
	PaidTotal      decimal.Decimal   `json:"paid_total"`
	CueCount       int               `json:"cue_count"`
	CuesByStatus   map[CueStatus]int `json:"cues_by_status"`
	MusicMinutes   int               `json:"music_minutes"`
}

// BalanceDue is invoiced minus paid. Negative means overpayment.
func (t *ProjectTotals) BalanceDue() decimal.Decimal {
	return t.InvoicedTotal.Sub(t.PaidTotal)
}

// SizeBytes estimates the in-memory footprint for cache accounting.
func (t *ProjectTotals) SizeBytes() int {
	// Struct itself plus four decimals (~48 bytes each once allocated)
	// plus one map bucket per status entry.
	return 96 + 4*48 + len(t.CuesByStatus)*64
}

// =============================================================================
// GLOBAL TOTALS - Whole-store aggregate view
// =============================================================================

type GlobalTotals struct {
	ProjectCount   int             `json:"project_count"`
	ActiveProjects int             `json:"active_projects"`
	InvoicedTotal  decimal.Decimal `json:"invoiced_total"`
	PaidTotal      decimal.Decimal `json:"paid_total"`
	CueCount       int             `json:"cue_count"`
}

// OutstandingTotal is invoiced minus paid across every project.
func (t *GlobalTotals) OutstandingTotal() decimal.Decimal {
	return t.InvoicedTotal.Sub(t.PaidTotal)
}

func (t *GlobalTotals) SizeBytes() int {
	return 64 + 2*48
}
