package detect

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/pkg/anthropic"
)

type fakeLLM struct {
	replies []string
	err     error
	calls   int
}

func (f *fakeLLM) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: reply}},
	}, nil
}

func testLLMConfig() LLMConfig {
	return LLMConfig{Model: "claude-haiku-4-5-20251001", MaxTokens: 1024}
}

func TestCrisisAnalyzerParsesFindings(t *testing.T) {
	llm := &fakeLLM{replies: []string{"```json\n" + `{"findings": [
		{"headline": "Regulator opens probe", "risk_level": 7.5, "category": "investigation",
		 "summary": "FTC inquiry into billing.", "source_urls": ["https://news.example.com/a"]},
		{"headline": "", "risk_level": 9}
	]}` + "\n```"}}

	a := NewCrisisAnalyzer(llm, testLLMConfig())
	res, err := a.Analyze(context.Background(), Request{
		RunID:   "run-1",
		OrgID:   "org-1",
		Profile: &model.OrganizationProfile{Name: "Acme Corp"},
		Signals: testSignals(2),
	})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)

	f := res.Findings[0]
	assert.Equal(t, model.AnalyzerCrisis, f.Analyzer)
	require.NotNil(t, f.Crisis)
	assert.Equal(t, "Regulator opens probe", f.Crisis.Headline)
	assert.InDelta(t, 7.5, f.Crisis.RiskLevel, 0.001)
}

func TestOpportunityAnalyzerParsesFindings(t *testing.T) {
	llm := &fakeLLM{replies: []string{`{"findings": [
		{"headline": "Rival exits EU market", "kind": "competitor_weakness", "confidence": 0.8}
	]}`}}

	a := NewOpportunityAnalyzer(llm, testLLMConfig())
	res, err := a.Analyze(context.Background(), Request{Signals: testSignals(1)})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	require.NotNil(t, res.Findings[0].Opportunity)
	assert.Equal(t, "competitor_weakness", res.Findings[0].Opportunity.Kind)
}

func TestPredictionAnalyzerParsesFindings(t *testing.T) {
	llm := &fakeLLM{replies: []string{`{"findings": [
		{"statement": "Pricing pressure intensifies", "horizon": "weeks", "likelihood": 0.6, "basis": "signals 1-3"}
	]}`}}

	a := NewPredictionAnalyzer(llm, testLLMConfig())
	res, err := a.Analyze(context.Background(), Request{Signals: testSignals(1)})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	require.NotNil(t, res.Findings[0].Prediction)
	assert.Equal(t, "weeks", res.Findings[0].Prediction.Horizon)
}

func TestAnalyzerRetriesMalformedReply(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		"Here is my analysis, no JSON though.",
		`{"findings": []}`,
	}}

	a := NewCrisisAnalyzer(llm, testLLMConfig())
	res, err := a.Analyze(context.Background(), Request{Signals: testSignals(1)})
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
	assert.Equal(t, 2, llm.calls)
}

func TestAnalyzerAPIErrorNotRetried(t *testing.T) {
	llm := &fakeLLM{err: eris.New("invalid api key")}

	a := NewCrisisAnalyzer(llm, testLLMConfig())
	_, err := a.Analyze(context.Background(), Request{Signals: testSignals(1)})
	require.Error(t, err)
	assert.Equal(t, 1, llm.calls)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, extractJSON("```json\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": {"b": 2}}`, extractJSON(`prose {"a": {"b": 2}} trailing`))
	assert.Empty(t, extractJSON("no json here"))
	assert.Empty(t, extractJSON("} backwards {"))
}

func TestSignalDigest(t *testing.T) {
	signals := []model.ScoredSignal{
		{
			RawSignal: model.RawSignal{
				Title:       "Acme recalls widgets",
				Body:        strings.Repeat("x", 500),
				URL:         "https://news.example.com/recall",
				Source:      "news.example.com",
				PublishedAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
			},
			Score: 80,
		},
	}

	digest := signalDigest(signals)
	assert.Contains(t, digest, "1. [news.example.com | score 80 | 2026-09-01 10:00] Acme recalls widgets")
	assert.Contains(t, digest, "https://news.example.com/recall")
	assert.NotContains(t, digest, strings.Repeat("x", 301))

	many := make([]model.ScoredSignal, maxDigestSignals+10)
	for i := range many {
		many[i] = model.ScoredSignal{RawSignal: model.RawSignal{Title: "t", URL: "u"}}
	}
	capped := signalDigest(many)
	assert.NotContains(t, capped, "41. ")
}

func TestSignalDigestTruncatesOnRuneBoundary(t *testing.T) {
	// One leading ASCII byte pushes every 3-byte rune off the cut point.
	signals := []model.ScoredSignal{
		{RawSignal: model.RawSignal{
			Title:       "multibyte body",
			Body:        "a" + strings.Repeat("世", 110),
			URL:         "https://news.example.com/mb",
			Source:      "news.example.com",
			PublishedAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		}},
	}
	digest := signalDigest(signals)
	assert.True(t, utf8.ValidString(digest), "digest must not split a rune")
}

func TestProfileDigest(t *testing.T) {
	p := &model.OrganizationProfile{
		Name:         "Acme Corp",
		Industry:     "manufacturing",
		Competitors:  []string{"Globex"},
		Stakeholders: []string{"Jane Smith"},
	}
	digest := profileDigest(p)
	assert.Contains(t, digest, "Organization: Acme Corp")
	assert.Contains(t, digest, "Competitors: Globex")
	assert.Empty(t, profileDigest(nil))
}
