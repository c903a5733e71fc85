/*
main.go - One-shot legacy consolidation CLI

PURPOSE:
  Runs the consolidation engine once against a legacy snapshot file and
  prints the report. Intended for the initial cutover from the legacy
  client-side store, and safe to re-run only for the scope kind (see
  consolidate package docs on idempotence).

USAGE:
  # Consolidate an exported snapshot into a database
  ./migrate -db=studio.db -snapshot=legacy-export.json

  # Dry-run the bundled sample into a throwaway in-memory store
  ./migrate -sample -mem

  # Opt in to cue dedup when re-running a source
  ./migrate -db=studio.db -snapshot=legacy-export.json -dedup-cues

EXIT CODES:
  0  run completed (per-record failures may still appear in the report)
  1  hard failure: bad input, store unavailable, or run aborted

SEE ALSO:
  - consolidate/engine.go: The batch this drives
  - cmd/server: Serves the same engine over HTTP
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quartertone/studio-engine/consolidate"
	"github.com/quartertone/studio-engine/store/sqlite"
	"github.com/quartertone/studio-engine/studio"
	memstore "github.com/quartertone/studio-engine/studio/store"
)

func main() {
	dbPath := flag.String("db", "studio.db", "SQLite database path")
	snapshotPath := flag.String("snapshot", "", "legacy snapshot JSON file")
	useSample := flag.Bool("sample", false, "consolidate the bundled sample snapshot")
	useMemory := flag.Bool("mem", false, "use a throwaway in-memory store (dry run)")
	workers := flag.Int("workers", 4, "concurrent project groups")
	dedupCues := flag.Bool("dedup-cues", false, "skip cues whose project+number already exists")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *dbPath, *snapshotPath, *useSample, *useMemory, *workers, *dedupCues); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, dbPath, snapshotPath string, useSample, useMemory bool, workers int, dedupCues bool) error {
	// Input
	var (
		snap   *consolidate.Snapshot
		source string
		err    error
	)
	switch {
	case useSample:
		snap, source = consolidate.SampleSnapshot(), "sample"
	case snapshotPath != "":
		snap, err = consolidate.LoadSnapshot(snapshotPath)
		if err != nil {
			return err
		}
		source = snapshotPath
	default:
		return fmt.Errorf("either -snapshot or -sample is required")
	}
	if snap.Count() == 0 {
		return fmt.Errorf("snapshot contains no records")
	}

	// Store
	var (
		entityStore studio.Store
		runLog      studio.RunLog
	)
	if useMemory {
		mem := memstore.NewMemory()
		entityStore, runLog = mem, mem
	} else {
		db, openErr := sqlite.New(dbPath)
		if openErr != nil {
			return fmt.Errorf("failed to open database: %w", openErr)
		}
		defer db.Close()
		entityStore, runLog = db, db
	}

	// Ctrl-C cancels the batch; in-flight records finish and the
	// partial report still prints.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := consolidate.New(entityStore, logger, nil, consolidate.Options{
		Workers:   workers,
		DedupCues: dedupCues,
	})

	started := time.Now().UTC()
	report, runErr := engine.Run(ctx, snap, source)
	if report != nil {
		fmt.Print(report.Summary())

		rec := studio.RunRecord{
			ID:         report.RunID,
			Source:     source,
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
			ReportJSON: report.JSON(),
		}
		if saveErr := runLog.SaveRun(context.Background(), rec); saveErr != nil {
			logger.Warn("failed to record run", "error", saveErr)
		}
	}
	return runErr
}
