package consolidate_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartertone/studio-engine/consolidate"
	"github.com/quartertone/studio-engine/studio"
	"github.com/quartertone/studio-engine/studio/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newEngine(t *testing.T, opts consolidate.Options) (*consolidate.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return consolidate.New(mem, nil, nil, opts), mem
}

type fakeInvalidator struct {
	mu       sync.Mutex
	projects map[int64]int
	all      int
}

func newFakeInvalidator() *fakeInvalidator {
	return &fakeInvalidator{projects: make(map[int64]int)}
}

func (f *fakeInvalidator) InvalidateProject(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[id]++
}

func (f *fakeInvalidator) InvalidateAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.all++
}

// estimateRejectingStore simulates a constraint rejection on every
// estimate write while leaving all other kinds untouched.
type estimateRejectingStore struct {
	studio.Store
}

func (s estimateRejectingStore) InsertEstimate(ctx context.Context, e *studio.Estimate) error {
	return &studio.IntegrityError{Op: "insert estimate", Cause: errors.New("simulated rejection")}
}

// =============================================================================
// FULL SAMPLE RUN
// =============================================================================

func TestRun_SampleSnapshot(t *testing.T) {
	engine, mem := newEngine(t, consolidate.Options{})
	ctx := context.Background()

	report, err := engine.Run(ctx, consolidate.SampleSnapshot(), "sample")
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.Cancelled)

	// Per-kind outcome accounting.
	assert.Equal(t, 3, report.Kinds[consolidate.KindProjects].Migrated)
	assert.Equal(t, 2, report.Kinds[consolidate.KindScopes].Migrated)
	assert.Equal(t, 2, report.Kinds[consolidate.KindEstimates].Migrated)
	assert.Equal(t, 1, report.Kinds[consolidate.KindEstimates].Errors, "Ghost Ship estimate is unresolvable")
	assert.Equal(t, 4, report.Kinds[consolidate.KindCues].Migrated)
	assert.Equal(t, 2, report.Kinds[consolidate.KindCues].Errors, "the whole batch under id 99 is skipped")
	assert.Equal(t, 2, report.Kinds[consolidate.KindInvoices].Migrated)
	assert.Equal(t, 1, report.Kinds[consolidate.KindPayments].Migrated)
	assert.Equal(t, 1, report.Kinds[consolidate.KindPayments].Errors, "payment against unknown invoice 999")

	// Legacy project ids survive consolidation.
	p, err := mem.GetProject(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Foo Trailer", p.Name)

	onHold, err := mem.GetProject(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, studio.ProjectOnHold, onHold.Status)

	// Scope landed with mixed-type numeric fields decoded.
	sc, err := mem.GetScope(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 12, sc.MusicMinutes)
	assert.Equal(t, 6.5, sc.RecordingHours)

	// Estimate with explicit total vs component-sum fallback.
	est7, err := mem.ListEstimates(ctx, 7)
	require.NoError(t, err)
	require.Len(t, est7, 1)
	assert.True(t, est7[0].TotalCost.Equal(studio.MustDecimal("450")))

	est12, err := mem.ListEstimates(ctx, 12)
	require.NoError(t, err)
	require.Len(t, est12, 1)
	assert.True(t, est12[0].TotalCost.Equal(studio.MustDecimal("5000")),
		"total should fall back to 3000+1200+800, got %s", est12[0].TotalCost)

	// Cues under the resolvable keys landed with normalized statuses.
	cues7, err := mem.ListCues(ctx, 7)
	require.NoError(t, err)
	require.Len(t, cues7, 3)
	assert.Equal(t, studio.CueApproved, cues7[0].Status)
	assert.Equal(t, studio.CueInProgress, cues7[1].Status)
	assert.Equal(t, studio.CueNotStarted, cues7[2].Status)

	// Invoice line items survived the mapping.
	invoices7, err := mem.ListInvoices(ctx, 7)
	require.NoError(t, err)
	require.Len(t, invoices7, 1)
	assert.Len(t, invoices7[0].LineItems, 2)
	assert.Equal(t, studio.InvoiceSent, invoices7[0].Status)
}

func TestRun_PaymentProjectAgreement(t *testing.T) {
	// GIVEN: A consolidated sample
	// THEN: Every payment's project id equals its invoice's project id

	engine, mem := newEngine(t, consolidate.Options{})
	ctx := context.Background()

	_, err := engine.Run(ctx, consolidate.SampleSnapshot(), "sample")
	require.NoError(t, err)

	payments, err := mem.ListProjectPayments(ctx, 7)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].Amount.Equal(studio.MustDecimal("225")))

	inv, err := mem.GetInvoice(ctx, payments[0].InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, inv.ProjectID, payments[0].ProjectID,
		"payment project must be derived from the invoice")
}

func TestRun_EstimateResolvedByName(t *testing.T) {
	// GIVEN: A known project "Foo Trailer" with id 7 and a legacy estimate
	//        that only carries the project name
	// THEN: The estimate lands on project 7 with its total intact

	engine, mem := newEngine(t, consolidate.Options{})
	ctx := context.Background()

	require.NoError(t, mem.CreateProject(ctx, &studio.Project{ID: 7, Name: "Foo Trailer"}))

	snap := &consolidate.Snapshot{
		Estimates: []consolidate.Record{
			{"projectName": "Foo Trailer", "musicMinutes": float64(12), "total": float64(450)},
		},
	}
	report, err := engine.Run(ctx, snap, "name-resolution")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Kinds[consolidate.KindEstimates].Migrated)

	estimates, err := mem.ListEstimates(ctx, 7)
	require.NoError(t, err)
	require.Len(t, estimates, 1)
	assert.Equal(t, 12, estimates[0].MusicMinutes)
	assert.True(t, estimates[0].TotalCost.Equal(studio.MustDecimal("450")))
}

// =============================================================================
// IDEMPOTENCE AND DEDUP
// =============================================================================

func TestRun_ScopeUpsertIdempotent(t *testing.T) {
	// GIVEN: The same snapshot consolidated twice
	// THEN: Still exactly one scope per project, second run's values in
	//       effect; projects dedup instead of duplicating

	engine, mem := newEngine(t, consolidate.Options{})
	ctx := context.Background()

	snap := consolidate.SampleSnapshot()
	_, err := engine.Run(ctx, snap, "first")
	require.NoError(t, err)

	snap.Scopes[0]["musicMinutes"] = float64(20)
	report, err := engine.Run(ctx, snap, "second")
	require.NoError(t, err)

	assert.Equal(t, 0, report.Kinds[consolidate.KindProjects].Migrated)
	assert.Equal(t, 3, report.Kinds[consolidate.KindProjects].Deduped)
	assert.Equal(t, 2, report.Kinds[consolidate.KindScopes].Migrated)

	sc, err := mem.GetScope(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 20, sc.MusicMinutes, "second run's scope values take effect")

	// Inserts are not idempotent without dedup: estimates duplicated.
	estimates, err := mem.ListEstimates(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, estimates, 2)
}

func TestRun_CueDedupOptIn(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	engine := consolidate.New(mem, nil, nil, consolidate.Options{DedupCues: true})

	snap := consolidate.SampleSnapshot()
	_, err := engine.Run(ctx, snap, "first")
	require.NoError(t, err)

	report, err := engine.Run(ctx, snap, "second")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Kinds[consolidate.KindCues].Migrated)
	assert.Equal(t, 4, report.Kinds[consolidate.KindCues].Deduped)

	cues, err := mem.ListCues(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, cues, 3, "re-run with dedup must not duplicate cues")
}

// =============================================================================
// PARTIAL SUCCESS AND CANCELLATION
// =============================================================================

func TestRun_WriteFailureDoesNotAbortBatch(t *testing.T) {
	// GIVEN: A store that rejects every estimate write
	// THEN: Estimates fail, everything else still migrates

	mem := store.NewMemory()
	engine := consolidate.New(estimateRejectingStore{mem}, nil, nil, consolidate.Options{})
	ctx := context.Background()

	report, err := engine.Run(ctx, consolidate.SampleSnapshot(), "flaky")
	require.NoError(t, err)

	kr := report.Kinds[consolidate.KindEstimates]
	assert.Equal(t, 0, kr.Migrated)
	assert.Equal(t, 3, kr.Errors, "2 rejected writes + 1 unresolved")
	assert.Len(t, kr.Failures, 3, "every error carries a reference and reason")

	assert.Equal(t, 4, report.Kinds[consolidate.KindCues].Migrated, "other kinds unaffected")
	assert.Equal(t, 2, report.Kinds[consolidate.KindInvoices].Migrated)

	cues, err := mem.ListCues(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, cues, 3)
}

func TestRun_Cancellation(t *testing.T) {
	engine, _ := newEngine(t, consolidate.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := engine.Run(ctx, consolidate.SampleSnapshot(), "cancelled")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report, "report must cover work done before cancellation")
	assert.True(t, report.Cancelled)
	assert.Equal(t, 0, report.TotalMigrated())
}

// =============================================================================
// CACHE INVALIDATION HOOKS
// =============================================================================

func TestRun_InvalidatesTouchedProjects(t *testing.T) {
	mem := store.NewMemory()
	inval := newFakeInvalidator()
	engine := consolidate.New(mem, nil, inval, consolidate.Options{})

	_, err := engine.Run(context.Background(), consolidate.SampleSnapshot(), "sample")
	require.NoError(t, err)

	inval.mu.Lock()
	defer inval.mu.Unlock()
	assert.Greater(t, inval.projects[7], 0, "project 7 received writes")
	assert.Greater(t, inval.projects[12], 0, "project 12 received writes")
	assert.Greater(t, inval.projects[15], 0, "project 15 was created")
}

// =============================================================================
// REPORT PLUMBING
// =============================================================================

func TestReport_SummaryAndJSON(t *testing.T) {
	engine, _ := newEngine(t, consolidate.Options{})

	report, err := engine.Run(context.Background(), consolidate.SampleSnapshot(), "sample")
	require.NoError(t, err)

	summary := report.Summary()
	assert.Contains(t, summary, "estimates")
	assert.Contains(t, summary, "migrated=2")

	blob := report.JSON()
	assert.Contains(t, blob, `"run_id"`)
	assert.Contains(t, blob, `"migrated"`)
}
