/*
report.go - Structured consolidation outcomes

Every legacy record lands in exactly one outcome bucket. The report is
safe for concurrent recording because project groups run in parallel.
Errors counts both skipped-unresolved and failed-write records; the
failures list carries a reference and reason for each so a human can
chase down what didn't make it.
*/
package consolidate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies what happened to one legacy record.
type Outcome string

const (
	Migrated          Outcome = "MIGRATED"           // Normalized row written
	SkippedUnresolved Outcome = "SKIPPED_UNRESOLVED" // No project/invoice to attach to
	FailedWrite       Outcome = "FAILED_WRITE"       // Store rejected the write
)

// Kind names a legacy record kind in the report.
type Kind string

const (
	KindProjects  Kind = "projects"
	KindScopes    Kind = "scopes"
	KindEstimates Kind = "estimates"
	KindCues      Kind = "cues"
	KindInvoices  Kind = "invoices"
	KindPayments  Kind = "payments"
)

// kindOrder fixes the display order of Summary output.
var kindOrder = []Kind{KindProjects, KindScopes, KindEstimates, KindCues, KindInvoices, KindPayments}

// Failure identifies one record that was not migrated and why.
type Failure struct {
	RecordRef string `json:"record_ref"`
	Reason    string `json:"reason"`
}

// KindReport accumulates outcomes for one record kind.
type KindReport struct {
	Migrated int       `json:"migrated"`
	Errors   int       `json:"errors"`
	Deduped  int       `json:"deduped,omitempty"`
	Failures []Failure `json:"failures,omitempty"`
}

// Report is the structured summary of one consolidation run.
type Report struct {
	mu sync.Mutex

	RunID      string               `json:"run_id"`
	Source     string               `json:"source"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Cancelled  bool                 `json:"cancelled,omitempty"`
	Kinds      map[Kind]*KindReport `json:"kinds"`
}

// NewReport starts a report for one run against the named source.
func NewReport(source string) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Source:    source,
		StartedAt: time.Now().UTC(),
		Kinds:     make(map[Kind]*KindReport),
	}
}

func (r *Report) kind(k Kind) *KindReport {
	kr, ok := r.Kinds[k]
	if !ok {
		kr = &KindReport{}
		r.Kinds[k] = kr
	}
	return kr
}

// Record books one outcome. ref and reason are only used for the
// non-migrated outcomes.
func (r *Report) Record(k Kind, outcome Outcome, ref, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kr := r.kind(k)
	switch outcome {
	case Migrated:
		kr.Migrated++
	case SkippedUnresolved, FailedWrite:
		kr.Errors++
		kr.Failures = append(kr.Failures, Failure{RecordRef: ref, Reason: reason})
	}
}

// Dedup books one record skipped because an equivalent row already
// exists. Deduped records are neither migrations nor errors.
func (r *Report) Dedup(k Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kind(k).Deduped++
}

// Finish stamps the end time and returns the report for chaining.
func (r *Report) Finish() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now().UTC()
	return r
}

// TotalMigrated returns the migrated count across all kinds.
func (r *Report) TotalMigrated() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, kr := range r.Kinds {
		n += kr.Migrated
	}
	return n
}

// TotalErrors returns the error count across all kinds.
func (r *Report) TotalErrors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, kr := range r.Kinds {
		n += kr.Errors
	}
	return n
}

// JSON renders the report for persistence in the run log.
func (r *Report) JSON() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := json.Marshal(r)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Summary renders a human-readable one-screen summary.
func (r *Report) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Consolidation run %s (source: %s)\n", r.RunID, r.Source)
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "Duration: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	if r.Cancelled {
		b.WriteString("CANCELLED before completion\n")
	}

	for _, k := range kindOrder {
		kr, ok := r.Kinds[k]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "  %-10s migrated=%d errors=%d", k, kr.Migrated, kr.Errors)
		if kr.Deduped > 0 {
			fmt.Fprintf(&b, " deduped=%d", kr.Deduped)
		}
		b.WriteString("\n")

		// Show a handful of failures, sorted for stable output.
		failures := make([]Failure, len(kr.Failures))
		copy(failures, kr.Failures)
		sort.Slice(failures, func(i, j int) bool { return failures[i].RecordRef < failures[j].RecordRef })
		for i, f := range failures {
			if i == 5 {
				fmt.Fprintf(&b, "    ... and %d more\n", len(failures)-5)
				break
			}
			fmt.Fprintf(&b, "    %s: %s\n", f.RecordRef, f.Reason)
		}
	}
	return b.String()
}
