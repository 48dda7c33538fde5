package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/internal/store"
)

// mockStore implements store.Store for testing.
type mockStore struct {
	runs      []model.PipelineRun
	listErr   error
	listCalls int
}

func (m *mockStore) ListRuns(_ context.Context, filter store.RunFilter) ([]model.PipelineRun, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.PipelineRun
	for _, r := range m.runs {
		if !filter.CreatedAfter.IsZero() && r.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

// Unused store methods, present to satisfy the interface.
func (m *mockStore) CreateRun(context.Context, string, model.TimeWindow) (*model.PipelineRun, error) {
	return nil, nil
}
func (m *mockStore) UpdateRunStatus(context.Context, string, model.RunStatus) error { return nil }
func (m *mockStore) CompleteRun(context.Context, string, model.RunStatus, *model.PipelineRunSummary) error {
	return nil
}
func (m *mockStore) GetRun(context.Context, string) (*model.PipelineRun, error) { return nil, nil }
func (m *mockStore) HasSeen(context.Context, string, []string, time.Duration) (map[string]bool, error) {
	return nil, nil
}
func (m *mockStore) MarkSeen(context.Context, string, []model.SeenMarker) error { return nil }
func (m *mockStore) SaveFinding(context.Context, *model.Finding) error          { return nil }
func (m *mockStore) ListFindings(context.Context, store.FindingFilter) ([]model.Finding, error) {
	return nil, nil
}
func (m *mockStore) Migrate(context.Context) error { return nil }
func (m *mockStore) Close() error                  { return nil }

func doneRun(age time.Duration, summary *model.PipelineRunSummary) model.PipelineRun {
	return model.PipelineRun{
		Status:    model.RunStatusDone,
		Summary:   summary,
		CreatedAt: time.Now().UTC().Add(-age),
	}
}

func TestCollector_Collect(t *testing.T) {
	st := &mockStore{runs: []model.PipelineRun{
		doneRun(time.Hour, &model.PipelineRunSummary{
			SignalsCollected:  40,
			SignalsAfterDedup: 10,
			SignalsDispatched: 8,
			PerAnalyzer: map[string]model.AnalyzerStatus{
				"crisis":      {Outcome: model.OutcomeOK, Findings: 2},
				"opportunity": {Outcome: model.OutcomeError},
			},
		}),
		doneRun(2*time.Hour, &model.PipelineRunSummary{
			SignalsCollected:  20,
			SignalsAfterDedup: 20,
			SignalsDispatched: 15,
			PerAnalyzer: map[string]model.AnalyzerStatus{
				"crisis": {Outcome: model.OutcomeTimeout},
			},
		}),
		{Status: model.RunStatusFailed, CreatedAt: time.Now().UTC().Add(-3 * time.Hour)},
		{Status: model.RunStatusCollecting, CreatedAt: time.Now().UTC().Add(-time.Minute)},
		// Outside the lookback window, must be excluded.
		doneRun(48*time.Hour, &model.PipelineRunSummary{SignalsCollected: 999}),
	}}

	snap, err := NewCollector(st).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsDone)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsInflight)
	assert.InDelta(t, 1.0/3.0, snap.RunFailRate, 0.001)

	assert.Equal(t, 60, snap.SignalsCollected)
	assert.Equal(t, 23, snap.SignalsDispatched)
	assert.InDelta(t, 0.5, snap.DedupRatio, 0.001) // 30 dropped of 60 collected

	crisis := snap.Analyzers["crisis"]
	assert.Equal(t, 2, crisis.Dispatches)
	assert.Equal(t, 1, crisis.Timeouts)
	assert.Equal(t, 2, crisis.Findings)
	assert.InDelta(t, 0.5, crisis.ErrorRate, 0.001)

	opp := snap.Analyzers["opportunity"]
	assert.Equal(t, 1, opp.Errors)
	assert.InDelta(t, 1.0, opp.ErrorRate, 0.001)

	assert.Equal(t, 24, snap.LookbackHours)
	assert.WithinDuration(t, time.Now().UTC(), snap.CollectedAt, 5*time.Second)
}

func TestCollector_Collect_Empty(t *testing.T) {
	snap, err := NewCollector(&mockStore{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.RunFailRate)
	assert.Zero(t, snap.DedupRatio)
}

func TestCollector_Collect_StoreError(t *testing.T) {
	st := &mockStore{listErr: eris.New("db down")}
	_, err := NewCollector(st).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list runs")
}
