package collect

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/internal/source"
)

type stubAdapter struct {
	name    string
	signals []model.RawSignal
	err     error
	delay   time.Duration
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Fetch(ctx context.Context, _ source.Query) ([]model.RawSignal, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.signals, s.err
}

func acmeProfile() *model.OrganizationProfile {
	return &model.OrganizationProfile{
		ID:          "acme",
		Name:        "Acme Corp",
		Industry:    "industrial equipment",
		Competitors: []string{"Globex", "Initech", "Umbrella"},
	}
}

func registryWith(adapters ...source.Adapter) *source.Registry {
	r := source.NewRegistry()
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func TestBuildQueries(t *testing.T) {
	queries := BuildQueries(acmeProfile(), model.Window6h)

	// 1 org + 2 competitors (capped) + 2 crisis + 2 opportunity + 1 industry.
	require.Len(t, queries, 8)

	kinds := map[string]int{}
	for _, q := range queries {
		kinds[q.Kind]++
		assert.NotEmpty(t, q.Text)
		assert.Equal(t, model.Window6h, q.Window)
		assert.NotNil(t, q.Profile)
	}
	assert.Equal(t, 1, kinds[KindOrg])
	assert.Equal(t, 2, kinds[KindCompetitor])
	assert.Equal(t, 2, kinds[KindCrisis])
	assert.Equal(t, 2, kinds[KindOpportunity])
	assert.Equal(t, 1, kinds[KindIndustry])
}

func TestBuildQueriesNoIndustryNoCompetitors(t *testing.T) {
	p := &model.OrganizationProfile{ID: "solo", Name: "Solo Inc"}
	queries := BuildQueries(p, model.Window1h)
	assert.Len(t, queries, 5)
}

func TestCollectMergesAndDedups(t *testing.T) {
	// Both adapters return the same URL; it must appear once.
	shared := model.RawSignal{Title: "Acme recall", URL: "https://news.example/1"}
	a1 := &stubAdapter{name: "a1", signals: []model.RawSignal{
		shared,
		{Title: "Acme funding", URL: "https://news.example/2"},
	}}
	a2 := &stubAdapter{name: "a2", signals: []model.RawSignal{
		shared,
		{Title: "malformed, no url"},
	}}

	c := New(registryWith(a1, a2), Config{})
	signals, report, err := c.Collect(context.Background(), acmeProfile(), model.Window24h)
	require.NoError(t, err)

	urls := map[string]int{}
	for _, s := range signals {
		urls[s.URL]++
	}
	assert.Equal(t, 1, urls["https://news.example/1"])
	assert.Equal(t, 1, urls["https://news.example/2"])
	assert.Equal(t, 8, report.Queries)
	assert.Equal(t, 16, report.TasksTotal)
	assert.Zero(t, report.TasksFailed)
}

func TestCollectPartialFailure(t *testing.T) {
	healthy := &stubAdapter{name: "healthy", signals: []model.RawSignal{
		{Title: "Acme news", URL: "https://news.example/ok"},
	}}
	broken := &stubAdapter{name: "broken", err: eris.New("upstream down")}

	c := New(registryWith(healthy, broken), Config{})
	signals, report, err := c.Collect(context.Background(), acmeProfile(), model.Window24h)
	require.NoError(t, err, "a failing adapter degrades, never aborts")
	assert.NotEmpty(t, signals)
	assert.Equal(t, 8, report.TasksFailed)
	assert.Equal(t, 8, report.PerAdapter["broken"].Errors)
	assert.Zero(t, report.PerAdapter["broken"].Signals)
}

func TestCollectAllTasksFail(t *testing.T) {
	broken := &stubAdapter{name: "broken", err: eris.New("down")}

	c := New(registryWith(broken), Config{})
	_, report, err := c.Collect(context.Background(), acmeProfile(), model.Window24h)
	assert.Error(t, err)
	assert.Equal(t, report.TasksTotal, report.TasksFailed)
}

func TestCollectSlowAdapterBounded(t *testing.T) {
	fast := &stubAdapter{name: "fast", signals: []model.RawSignal{
		{Title: "Acme story", URL: "https://news.example/fast"},
	}}
	slow := &stubAdapter{name: "slow", delay: 10 * time.Second, signals: []model.RawSignal{
		{Title: "never arrives", URL: "https://news.example/slow"},
	}}

	c := New(registryWith(fast, slow), Config{
		OverallTimeout: time.Second,
		AdapterTimeout: 200 * time.Millisecond,
	})

	started := time.Now()
	signals, report, err := c.Collect(context.Background(), acmeProfile(), model.Window24h)
	elapsed := time.Since(started)

	require.NoError(t, err)
	assert.Less(t, elapsed, 2*time.Second, "slow adapter cannot stretch the pass past its ceiling")
	assert.Len(t, signals, 1)
	assert.Equal(t, 8, report.PerAdapter["slow"].Errors)
}

func TestCollectMaxPerAdapter(t *testing.T) {
	many := make([]model.RawSignal, 10)
	for i := range many {
		many[i] = model.RawSignal{
			Title: "Acme story",
			URL:   "https://news.example/" + string(rune('a'+i)),
		}
	}
	a := &stubAdapter{name: "busy", signals: many}

	c := New(registryWith(a), Config{MaxPerAdapter: 3})
	signals, _, err := c.Collect(context.Background(), acmeProfile(), model.Window24h)
	require.NoError(t, err)
	assert.Len(t, signals, 3)
}

func TestCollectRejectsEmptyProfile(t *testing.T) {
	c := New(registryWith(&stubAdapter{name: "a"}), Config{})

	_, _, err := c.Collect(context.Background(), &model.OrganizationProfile{ID: "x"}, model.Window24h)
	assert.Error(t, err)

	_, _, err = c.Collect(context.Background(), nil, model.Window24h)
	assert.Error(t, err)
}
