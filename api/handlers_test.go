package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartertone/studio-engine/api"
	"github.com/quartertone/studio-engine/cache"
	"github.com/quartertone/studio-engine/consolidate"
	"github.com/quartertone/studio-engine/studio/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	router  http.Handler
	store   *store.Memory
	cache   *cache.Cache
	handler *api.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mem := store.NewMemory()
	c := cache.New(cache.Config{MaxEntries: 64, DefaultTTL: time.Minute})
	views := api.NewViews(mem, c)
	runner := api.NewRunner(mem, mem, views, nil, consolidate.Options{})
	h := api.NewHandler(mem, mem, views, runner, nil)

	return &testServer{
		router:  api.NewRouter(h, nil),
		store:   mem,
		cache:   c,
		handler: h,
	}
}

// do runs one request and decodes the JSON response into out (when
// out is non-nil).
func (ts *testServer) do(t *testing.T, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

// seedProject creates one project over HTTP and returns its id.
func (ts *testServer) seedProject(t *testing.T, name string) int64 {
	t.Helper()
	var dto api.ProjectDTO
	rec := ts.do(t, http.MethodPost, "/api/projects", api.CreateProjectRequest{Name: name}, &dto)
	require.Equal(t, http.StatusCreated, rec.Code)
	return dto.ID
}

// =============================================================================
// PROJECT CRUD
// =============================================================================

func TestProjectCRUD(t *testing.T) {
	ts := newTestServer(t)

	// Create with default status
	var created api.ProjectDTO
	rec := ts.do(t, http.MethodPost, "/api/projects",
		api.CreateProjectRequest{Name: "Foo Trailer", Notes: "rush"}, &created)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "active", created.Status)
	assert.NotZero(t, created.ID)

	// Get
	var got api.ProjectDTO
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d", created.ID), nil, &got)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Foo Trailer", got.Name)

	// Update
	rec = ts.do(t, http.MethodPut, fmt.Sprintf("/api/projects/%d", created.ID),
		api.UpdateProjectRequest{Name: "Foo Trailer", Status: "completed", Notes: "delivered"}, &got)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", got.Status)

	// List
	var list []api.ProjectDTO
	rec = ts.do(t, http.MethodGet, "/api/projects", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, list, 1)

	// Delete
	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/projects/%d", created.ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Missing rows are 404, not 500
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d", created.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateProject_Validation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/projects", api.CreateProjectRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "name is required")

	rec = ts.do(t, http.MethodPost, "/api/projects",
		api.CreateProjectRequest{Name: "X", Status: "bogus"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown status is rejected")
}

// =============================================================================
// SCOPE UPSERT
// =============================================================================

func TestScopeUpsertOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seedProject(t, "Doc Series")

	// First PUT inserts
	var scope api.ScopeDTO
	rec := ts.do(t, http.MethodPut, fmt.Sprintf("/api/projects/%d/scope", id),
		api.UpsertScopeRequest{MusicMinutes: 30, MixingHours: 12, Contact: "post@doc.example"}, &scope)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, scope.MusicMinutes)

	// Second PUT replaces in place - no existence check needed
	rec = ts.do(t, http.MethodPut, fmt.Sprintf("/api/projects/%d/scope", id),
		api.UpsertScopeRequest{MusicMinutes: 45}, &scope)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/scope", id), nil, &scope)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 45, scope.MusicMinutes, "second write's values win")
}

// =============================================================================
// BILLING CHAIN: estimate -> invoice -> payment -> totals
// =============================================================================

func TestBillingChainAndCachedTotals(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seedProject(t, "Aurora Campaign")

	var est api.EstimateDTO
	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/estimates", id),
		api.CreateEstimateRequest{MusicMinutes: 12, CreativeFee: "3000", ProductionCost: "1200", LicensingFee: "800"}, &est)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "5000", est.TotalCost, "empty total falls back to component sum")

	var inv api.InvoiceDTO
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/invoices", id),
		api.CreateInvoiceRequest{Amount: "5000", Status: "sent"}, &inv)
	require.Equal(t, http.StatusCreated, rec.Code)

	var pay api.PaymentDTO
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/invoices/%d/payments", inv.ID),
		api.CreatePaymentRequest{Amount: "2500", Method: "wire"}, &pay)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, id, pay.ProjectID, "project id derived from the invoice, not the request")

	// Totals reflect everything written so far
	var totals api.ProjectTotalsDTO
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/totals", id), nil, &totals)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5000", totals.InvoicedTotal)
	assert.Equal(t, "2500", totals.PaidTotal)
	assert.Equal(t, "2500", totals.BalanceDue)

	// A second read is served from cache
	before := ts.cache.Stats().Hits
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/totals", id), nil, &totals)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Greater(t, ts.cache.Stats().Hits, before)

	// A write followed by a read never serves the pre-write value
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/invoices/%d/payments", inv.ID),
		api.CreatePaymentRequest{Amount: "2500"}, &pay)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/totals", id), nil, &totals)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5000", totals.PaidTotal, "totals recomputed after the write")
	assert.Equal(t, "0", totals.BalanceDue)
}

func TestGlobalTotalsCoherence(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seedProject(t, "One")

	var totals api.GlobalTotalsDTO
	rec := ts.do(t, http.MethodGet, "/api/totals", nil, &totals)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, totals.ProjectCount)

	// Deleting the project invalidates the global scope too
	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/projects/%d", id), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/totals", nil, &totals)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, totals.ProjectCount, "cached count would be stale without invalidation")
}

// Nested child routes only reach rows the URL's project owns. A child
// addressed through another project's path is a 404, the row survives,
// and the owning project's cached totals stay correct.
func TestChildRoutesScopedToOwningProject(t *testing.T) {
	ts := newTestServer(t)
	outsider := ts.seedProject(t, "Outsider")
	owner := ts.seedProject(t, "Owner")

	var est api.EstimateDTO
	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/estimates", owner),
		api.CreateEstimateRequest{CreativeFee: "100"}, &est)
	require.Equal(t, http.StatusCreated, rec.Code)

	var cue api.CueDTO
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/cues", owner),
		api.CreateCueRequest{Number: 1, Title: "Main Title"}, &cue)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Warm the owner's cached totals
	var totals api.ProjectTotalsDTO
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/totals", owner), nil, &totals)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, totals.EstimateCount)
	require.Equal(t, 1, totals.CueCount)

	// Every cross-project path is a 404, never a write
	rec = ts.do(t, http.MethodDelete,
		fmt.Sprintf("/api/projects/%d/estimates/%d", outsider, est.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPut,
		fmt.Sprintf("/api/projects/%d/cues/%d", outsider, cue.ID),
		api.UpdateCueRequest{Number: 1, Title: "Hijacked", Status: "recorded"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete,
		fmt.Sprintf("/api/projects/%d/cues/%d", outsider, cue.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The owner's rows and cached view are untouched
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/totals", owner), nil, &totals)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, totals.EstimateCount)
	assert.Equal(t, 1, totals.CueCount)

	var cues []api.CueDTO
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/cues", owner), nil, &cues)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, cues, 1)
	assert.Equal(t, "Main Title", cues[0].Title)

	// Through the owning project the same operations work
	rec = ts.do(t, http.MethodDelete,
		fmt.Sprintf("/api/projects/%d/estimates/%d", owner, est.ID), nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// CASCADE OVER HTTP
// =============================================================================

func TestDeleteProjectCascadesOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seedProject(t, "Doomed")

	var inv api.InvoiceDTO
	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/invoices", id),
		api.CreateInvoiceRequest{Amount: "100"}, &inv)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/invoices/%d/payments", inv.ID),
		api.CreatePaymentRequest{Amount: "100"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/projects/%d", id), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/invoices/%d", inv.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "invoice went with the project")
}

// =============================================================================
// OPS
// =============================================================================

func TestResetAndHealth(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProject(t, "Gone Soon")

	rec := ts.do(t, http.MethodPost, "/api/reset", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []api.ProjectDTO
	rec = ts.do(t, http.MethodGet, "/api/projects", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, list)

	rec = ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCacheStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seedProject(t, "Stats")

	ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/totals", id), nil, nil)

	var stats cache.Stats
	rec := ts.do(t, http.MethodGet, "/api/cache/stats", nil, &stats)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, stats.Entries)
}
