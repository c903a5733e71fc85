package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartertone/studio-engine/api"
)

func loadScenario(t *testing.T, ts *testServer, id string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/scenarios/load",
		map[string]string{"scenario_id": id}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestScenarioCatalog(t *testing.T) {
	ts := newTestServer(t)

	var list []api.ScenarioDTO
	rec := ts.do(t, http.MethodGet, "/api/scenarios", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, list, 3)

	// Nothing loaded yet
	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/scenarios/load",
		map[string]string{"scenario_id": "no-such-scenario"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadActiveStudioScenario(t *testing.T) {
	ts := newTestServer(t)
	loadScenario(t, ts, "active-studio")

	var projects []api.ProjectDTO
	rec := ts.do(t, http.MethodGet, "/api/projects", nil, &projects)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, projects, 3)

	// The seeded books add up across the whole store
	var totals api.GlobalTotalsDTO
	rec = ts.do(t, http.MethodGet, "/api/totals", nil, &totals)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, totals.ProjectCount)
	assert.Equal(t, "24500", totals.InvoicedTotal)
	assert.Equal(t, "19500", totals.PaidTotal)
	assert.Equal(t, "5000", totals.OutstandingTotal)

	// Current scenario is tracked
	var current api.ScenarioDTO
	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil, &current)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active-studio", current.ID)
}

func TestLoadLegacyImportScenario(t *testing.T) {
	ts := newTestServer(t)
	loadScenario(t, ts, "legacy-import")

	// The sample export's resolvable projects came through
	var projects []api.ProjectDTO
	rec := ts.do(t, http.MethodGet, "/api/projects", nil, &projects)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, projects, 3)

	// The scenario's run is in the audit log like any other
	var runs []api.RunDTO
	rec = ts.do(t, http.MethodGet, "/api/consolidation/runs", nil, &runs)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, runs, 1)
	assert.Equal(t, "scenario:legacy-import", runs[0].Source)
}

func TestScenarioLoadReplacesPreviousData(t *testing.T) {
	ts := newTestServer(t)
	loadScenario(t, ts, "active-studio")
	loadScenario(t, ts, "fresh-books")

	var projects []api.ProjectDTO
	rec := ts.do(t, http.MethodGet, "/api/projects", nil, &projects)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, projects, 1, "previous scenario's data is gone")
	assert.Equal(t, "Untitled Feature", projects[0].Name)
}
