package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/internal/monitoring"
	"github.com/sells-group/sentinel-cli/internal/profile"
	"github.com/sells-group/sentinel-cli/internal/store"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	windows []model.TimeWindow
	done    chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{done: make(chan struct{}, 8)}
}

func (f *fakeRunner) Run(_ context.Context, orgID string, window model.TimeWindow) (*model.PipelineRunSummary, error) {
	f.mu.Lock()
	f.calls = append(f.calls, orgID)
	f.windows = append(f.windows, window)
	f.mu.Unlock()
	f.done <- struct{}{}
	return &model.PipelineRunSummary{RunID: "run-1", OrgID: orgID, Window: window}, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestAPI(t *testing.T) (*API, store.Store, *fakeRunner, chi.Router) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sentinel.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	profiles := &profile.StaticProvider{Profiles: []*model.OrganizationProfile{
		{ID: "acme", Name: "Acme Corp"},
	}}

	runner := newFakeRunner()
	api := New(st, profiles, runner, monitoring.NewCollector(st), 24)

	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return api, st, runner, r
}

func TestScanAccepted(t *testing.T) {
	_, _, runner, r := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/scan",
		strings.NewReader(`{"org": "acme", "window": "6h"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "6h", body["window"])

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner was not invoked")
	}
	assert.Equal(t, 1, runner.callCount())
	assert.Equal(t, model.Window6h, runner.windows[0])
}

func TestScanDefaultsTo24h(t *testing.T) {
	_, _, runner, r := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/scan", strings.NewReader(`{"org": "acme"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner was not invoked")
	}
	assert.Equal(t, model.Window24h, runner.windows[0])
}

func TestScanValidation(t *testing.T) {
	_, _, runner, r := newTestAPI(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"malformed body", `{not json`, http.StatusBadRequest},
		{"missing org", `{"window": "1h"}`, http.StatusBadRequest},
		{"bad window", `{"org": "acme", "window": "7d"}`, http.StatusBadRequest},
		{"unknown org", `{"org": "globex"}`, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook/scan", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
	assert.Zero(t, runner.callCount(), "invalid requests must not start runs")
}

func TestGetRun(t *testing.T) {
	_, st, _, r := newTestAPI(t)

	run, err := st.CreateRun(context.Background(), "acme", model.Window24h)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got model.PipelineRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, run.ID, got.ID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRunsFiltered(t *testing.T) {
	_, st, _, r := newTestAPI(t)

	_, err := st.CreateRun(context.Background(), "acme", model.Window24h)
	require.NoError(t, err)
	_, err = st.CreateRun(context.Background(), "other", model.Window1h)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?org=acme", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var runs []model.PipelineRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "acme", runs[0].OrgID)
}

func TestListFindings(t *testing.T) {
	_, st, _, r := newTestAPI(t)

	require.NoError(t, st.SaveFinding(context.Background(), &model.Finding{
		RunID:    "run-1",
		OrgID:    "acme",
		Analyzer: model.AnalyzerCrisis,
		Crisis:   &model.CrisisFinding{Headline: "recall", RiskLevel: 7},
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/findings?analyzer=crisis", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var findings []model.Finding
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &findings))
	require.Len(t, findings, 1)
	assert.Equal(t, "recall", findings[0].Crisis.Headline)
}

func TestListProfiles(t *testing.T) {
	_, _, _, r := newTestAPI(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profiles", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var profiles []model.OrganizationProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, "acme", profiles[0].ID)
}

func TestStatusSnapshot(t *testing.T) {
	_, st, _, r := newTestAPI(t)

	run, err := st.CreateRun(context.Background(), "acme", model.Window24h)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(context.Background(), run.ID, model.RunStatusDone,
		&model.PipelineRunSummary{SignalsCollected: 10, SignalsAfterDedup: 4, SignalsDispatched: 3}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsDone)
	assert.Equal(t, 10, snap.SignalsCollected)
}

func TestHealth(t *testing.T) {
	_, _, _, r := newTestAPI(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}
