/*
runner.go - Single-flight consolidation runner

PURPOSE:
  Owns the lifecycle of consolidation runs triggered over HTTP. The
  engine itself is a batch function; this component enforces that at
  most one batch runs at a time (consolidation is non-reentrant per
  source), runs it asynchronously, supports cancellation, and records
  every finished run in the audit log.

DESIGN:
  - Start rejects a second run while one is active (ErrRunInProgress).
  - The run executes on its own goroutine under a cancellable context
    detached from the triggering HTTP request, so the batch survives
    the client disconnecting.
  - Cancel stops scheduling new records; in-flight records finish and
    the partial report is still recorded.
  - Wait blocks until the active run (if any) completes. Used by the
    synchronous trigger mode and by tests.

USAGE:
  runner := NewRunner(store, runs, views, logger, consolidate.Options{})
  err := runner.Start(snapshot, "api-upload")
  ...
  runner.Cancel()

SEE ALSO:
  - consolidate/engine.go: The batch the runner drives
  - consolidate.go: HTTP endpoints over this component
*/
package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/quartertone/studio-engine/consolidate"
	"github.com/quartertone/studio-engine/studio"
)

// ErrRunInProgress is returned by Start while a run is active.
var ErrRunInProgress = errors.New("a consolidation run is already in progress")

// RunnerStatus is a point-in-time view of the runner.
type RunnerStatus struct {
	Running    bool                `json:"running"`
	RunID      string              `json:"run_id,omitempty"`
	Source     string              `json:"source,omitempty"`
	LastReport *consolidate.Report `json:"last_report,omitempty"`
}

// Runner serializes consolidation runs and records their reports.
type Runner struct {
	store studio.Store
	runs  studio.RunLog
	inval consolidate.Invalidator
	log   *slog.Logger
	opts  consolidate.Options

	// Metrics, when set, receives every finished report's outcome
	// counts. Assign before the first Start.
	Metrics *Metrics

	mu      sync.Mutex
	running bool
	runID   string
	source  string
	cancel  context.CancelFunc
	done    chan struct{}
	last    *consolidate.Report
}

// NewRunner creates a runner. runs may be nil (no audit trail); inval
// may be nil (no cache).
func NewRunner(store studio.Store, runs studio.RunLog, inval consolidate.Invalidator, logger *slog.Logger, opts consolidate.Options) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: store, runs: runs, inval: inval, log: logger, opts: opts}
}

// Start launches one consolidation run asynchronously. Fails with
// ErrRunInProgress if a run is already active. The run id appears in
// Status once the engine has opened its report.
func (rn *Runner) Start(snap *consolidate.Snapshot, source string) error {
	rn.mu.Lock()
	defer rn.mu.Unlock()

	if rn.running {
		return ErrRunInProgress
	}

	ctx, cancel := context.WithCancel(context.Background())
	engine := consolidate.New(rn.store, rn.log, rn.inval, rn.opts)
	done := make(chan struct{})

	rn.running = true
	rn.source = source
	rn.cancel = cancel
	rn.done = done
	rn.runID = "" // set by the goroutine once the report exists

	started := time.Now().UTC()
	go func() {
		defer close(done)
		defer cancel()

		report, err := engine.Run(ctx, snap, source)
		if err != nil && !errors.Is(err, context.Canceled) {
			rn.log.Error("consolidation run failed", "source", source, "error", err)
		}

		if rn.Metrics != nil {
			rn.Metrics.ObserveReport(report)
		}

		if rn.runs != nil && report != nil {
			rec := studio.RunRecord{
				ID:         report.RunID,
				Source:     source,
				StartedAt:  started,
				FinishedAt: time.Now().UTC(),
				ReportJSON: report.JSON(),
			}
			if err := rn.runs.SaveRun(context.Background(), rec); err != nil {
				rn.log.Error("failed to record consolidation run", "run_id", report.RunID, "error", err)
			}
		}

		rn.mu.Lock()
		rn.running = false
		rn.last = report
		if report != nil {
			rn.runID = report.RunID
		}
		rn.mu.Unlock()
	}()

	return nil
}

// Cancel stops the active run, if any. Returns whether a run was
// cancelled. The run keeps reporting until in-flight records finish.
func (rn *Runner) Cancel() bool {
	rn.mu.Lock()
	defer rn.mu.Unlock()

	if !rn.running || rn.cancel == nil {
		return false
	}
	rn.cancel()
	return true
}

// Wait blocks until the active run finishes. A no-op when idle.
func (rn *Runner) Wait() {
	rn.mu.Lock()
	done := rn.done
	running := rn.running
	rn.mu.Unlock()

	if running && done != nil {
		<-done
	}
}

// Status reports whether a run is active and the last finished report.
func (rn *Runner) Status() RunnerStatus {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return RunnerStatus{
		Running:    rn.running,
		RunID:      rn.runID,
		Source:     rn.source,
		LastReport: rn.last,
	}
}
