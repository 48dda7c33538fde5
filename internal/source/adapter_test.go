package source

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/internal/resilience"
)

type fakeAdapter struct {
	name    string
	signals []model.RawSignal
	err     error
	calls   int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Fetch(_ context.Context, _ Query) ([]model.RawSignal, error) {
	f.calls++
	return f.signals, f.err
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{name: "websearch"})
	r.Register(&fakeAdapter{name: "rss"})

	assert.Equal(t, []string{"rss", "websearch"}, r.List())
	assert.NotNil(t, r.Get("rss"))
	assert.Nil(t, r.Get("missing"))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "rss", all[0].Name())
}

func TestThrottledPassesThrough(t *testing.T) {
	inner := &fakeAdapter{
		name:    "fake",
		signals: []model.RawSignal{{Title: "t", URL: "https://x.example"}},
	}
	th := Throttle(inner, 100, 10)

	got, err := th.Fetch(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "fake", th.Name())
}

func TestThrottledBreakerOpens(t *testing.T) {
	inner := &fakeAdapter{
		name: "flaky",
		err:  resilience.NewTransientError(eris.New("upstream down"), 503),
	}
	th := Throttle(inner, 1000, 1000)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, _ = th.Fetch(ctx, Query{Text: "q"})
	}

	assert.Equal(t, resilience.CircuitOpen, th.BreakerState())
	callsBefore := inner.calls
	_, err := th.Fetch(ctx, Query{Text: "q"})
	assert.Error(t, err)
	assert.Equal(t, callsBefore, inner.calls, "open breaker short-circuits the upstream call")
}

func TestThrottledSharesBreakerPerName(t *testing.T) {
	first := Throttle(&fakeAdapter{
		name: "shared",
		err:  resilience.NewTransientError(eris.New("upstream down"), 502),
	}, 1000, 1000)
	second := Throttle(&fakeAdapter{name: "shared"}, 1000, 1000)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, _ = first.Fetch(ctx, Query{Text: "q"})
	}

	// The circuit opened by the first wrapper rejects calls through the
	// second one, because both key the same adapter name.
	_, err := second.Fetch(ctx, Query{Text: "q"})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, resilience.CircuitOpen, BreakerStates()["shared"])
}

func TestThrottledRespectsContext(t *testing.T) {
	inner := &fakeAdapter{name: "slow"}
	th := Throttle(inner, 0.001, 1)

	ctx := context.Background()
	_, err := th.Fetch(ctx, Query{})
	require.NoError(t, err, "burst token covers the first call")

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = th.Fetch(ctx, Query{})
	assert.Error(t, err, "second call blocks on the limiter until the deadline")
}

func TestCleanDropsMalformed(t *testing.T) {
	in := []model.RawSignal{
		{Title: "ok", URL: "https://a.example"},
		{Title: "", URL: "https://b.example"},
		{Title: "no url"},
	}
	out := clean(in, "test")
	require.Len(t, out, 1)
	assert.Equal(t, "test", out[0].Adapter)
}

func TestQueryTerms(t *testing.T) {
	terms := queryTerms(`"Acme Corp" product recall OR lawsuit`)
	assert.Contains(t, terms, "acme")
	assert.Contains(t, terms, "recall")
	assert.NotContains(t, terms, "or")
}

func TestMatchesTerms(t *testing.T) {
	terms := queryTerms("Acme recall")
	assert.True(t, matchesTerms("ACME issues product recall", terms))
	assert.True(t, matchesTerms("total recall review", terms))
	assert.False(t, matchesTerms("unrelated headline", terms))
	assert.True(t, matchesTerms("anything", nil))
}
