package detect

import (
	"context"
	"fmt"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/pkg/anthropic"
)

const opportunitySystemPrompt = `You are a business development analyst. You receive a batch of recent news
and social signals about an organization and its market. Identify concrete
openings the organization could act on: partnership prospects, funding
events, competitor stumbles, market gaps, favorable regulation.

Respond with ONLY a JSON object of this shape:
{"findings": [{"headline": "...", "kind": "partnership|funding|market_gap|competitor_weakness|regulatory", "confidence": 0.0-1.0, "summary": "...", "source_urls": ["..."]}]}

Only include openings actually supported by the signals. If the batch holds
none, return {"findings": []}.`

type opportunityPayload struct {
	Findings []model.OpportunityFinding `json:"findings"`
}

// OpportunityAnalyzer surfaces actionable openings from a signal batch.
type OpportunityAnalyzer struct {
	llm llmAnalyzer
}

func NewOpportunityAnalyzer(client anthropic.Client, cfg LLMConfig) *OpportunityAnalyzer {
	return &OpportunityAnalyzer{llm: llmAnalyzer{name: model.AnalyzerOpportunity, client: client, cfg: cfg}}
}

func (a *OpportunityAnalyzer) Name() string { return model.AnalyzerOpportunity }

func (a *OpportunityAnalyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	prompt := fmt.Sprintf("%s\nSignals:\n%s", profileDigest(req.Profile), signalDigest(req.Signals))

	var payload opportunityPayload
	if err := a.llm.complete(ctx, opportunitySystemPrompt, prompt, &payload); err != nil {
		return nil, err
	}

	res := &Result{Findings: make([]model.Finding, 0, len(payload.Findings))}
	for i := range payload.Findings {
		of := payload.Findings[i]
		if of.Headline == "" {
			continue
		}
		res.Findings = append(res.Findings, model.Finding{
			Analyzer:    model.AnalyzerOpportunity,
			Opportunity: &of,
		})
	}
	return res, nil
}
