package detect

import (
	"context"
	"fmt"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/pkg/anthropic"
)

const predictionSystemPrompt = `You are a forecasting analyst. You receive a batch of recent news and
social signals about an organization and its market. Derive forward-looking
statements: where the current signals point over the coming days to months.

Respond with ONLY a JSON object of this shape:
{"findings": [{"statement": "...", "horizon": "days|weeks|months", "likelihood": 0.0-1.0, "basis": "..."}]}

basis names the signals the statement rests on. Make at most three
predictions and only ones the batch genuinely supports. If the batch is too
thin to forecast from, return {"findings": []}.`

type predictionPayload struct {
	Findings []model.PredictionFinding `json:"findings"`
}

// PredictionAnalyzer derives forward-looking statements from a signal batch.
type PredictionAnalyzer struct {
	llm llmAnalyzer
}

func NewPredictionAnalyzer(client anthropic.Client, cfg LLMConfig) *PredictionAnalyzer {
	return &PredictionAnalyzer{llm: llmAnalyzer{name: model.AnalyzerPrediction, client: client, cfg: cfg}}
}

func (a *PredictionAnalyzer) Name() string { return model.AnalyzerPrediction }

func (a *PredictionAnalyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	prompt := fmt.Sprintf("%s\nSignals:\n%s", profileDigest(req.Profile), signalDigest(req.Signals))

	var payload predictionPayload
	if err := a.llm.complete(ctx, predictionSystemPrompt, prompt, &payload); err != nil {
		return nil, err
	}

	res := &Result{Findings: make([]model.Finding, 0, len(payload.Findings))}
	for i := range payload.Findings {
		pf := payload.Findings[i]
		if pf.Statement == "" {
			continue
		}
		res.Findings = append(res.Findings, model.Finding{
			Analyzer:   model.AnalyzerPrediction,
			Prediction: &pf,
		})
	}
	return res, nil
}
