package detect

import (
	"context"
	"fmt"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/pkg/anthropic"
)

const crisisSystemPrompt = `You are a reputational and operational risk analyst. You receive a batch of
recent news and social signals about an organization. Identify concrete
threats: lawsuits, recalls, regulatory investigations, data breaches,
executive scandals, major outages, hostile press.

Respond with ONLY a JSON object of this shape:
{"findings": [{"headline": "...", "risk_level": 0-10, "category": "...", "summary": "...", "source_urls": ["..."]}]}

risk_level is your severity estimate from 0 (noise) to 10 (existential).
Only include threats actually supported by the signals. If the batch holds
no credible threat, return {"findings": []}.`

type crisisPayload struct {
	Findings []model.CrisisFinding `json:"findings"`
}

// CrisisAnalyzer surfaces reputational and operational threats from a
// signal batch.
type CrisisAnalyzer struct {
	llm llmAnalyzer
}

func NewCrisisAnalyzer(client anthropic.Client, cfg LLMConfig) *CrisisAnalyzer {
	return &CrisisAnalyzer{llm: llmAnalyzer{name: model.AnalyzerCrisis, client: client, cfg: cfg}}
}

func (a *CrisisAnalyzer) Name() string { return model.AnalyzerCrisis }

func (a *CrisisAnalyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	prompt := fmt.Sprintf("%s\nSignals:\n%s", profileDigest(req.Profile), signalDigest(req.Signals))

	var payload crisisPayload
	if err := a.llm.complete(ctx, crisisSystemPrompt, prompt, &payload); err != nil {
		return nil, err
	}

	res := &Result{Findings: make([]model.Finding, 0, len(payload.Findings))}
	for i := range payload.Findings {
		cf := payload.Findings[i]
		if cf.Headline == "" {
			continue
		}
		res.Findings = append(res.Findings, model.Finding{
			Analyzer: model.AnalyzerCrisis,
			Crisis:   &cf,
		})
	}
	return res, nil
}
