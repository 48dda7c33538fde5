package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/internal/resilience"
	"github.com/sells-group/sentinel-cli/pkg/anthropic"
)

const maxDigestSignals = 40

// LLMConfig configures the model-backed analyzers.
type LLMConfig struct {
	Model     string
	MaxTokens int64
}

// llmAnalyzer is the shared core of the model-backed analyzers. Each
// concrete analyzer supplies a system prompt and a payload parser.
type llmAnalyzer struct {
	name   string
	client anthropic.Client
	cfg    LLMConfig
}

// complete sends the digest to the model and unmarshals the JSON reply into
// out. Malformed replies are retried once; the model usually self-corrects.
func (a *llmAnalyzer) complete(ctx context.Context, system, prompt string, out any) error {
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = 2
	retryCfg.ShouldRetry = resilience.RetryableParse
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", a.name)

	return resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     a.cfg.Model,
			MaxTokens: a.cfg.MaxTokens,
			System:    anthropic.BuildCachedSystemBlocks(system),
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return resilience.NewPermanentError(eris.Wrapf(err, "detect: %s analyzer call", a.name))
		}
		resp.Usage.LogCost(a.cfg.Model, a.name)

		raw := extractJSON(resp.Text())
		if raw == "" {
			return eris.Errorf("detect: parse %s analyzer reply: no JSON object found", a.name)
		}
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return eris.Wrapf(err, "detect: parse %s analyzer payload", a.name)
		}
		return nil
	})
}

// extractJSON pulls the outermost JSON object out of a model reply,
// tolerating markdown code fences and surrounding prose.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// signalDigest renders the scored batch as a numbered list for the prompt.
// Capped so a large batch cannot blow the context window.
func signalDigest(signals []model.ScoredSignal) string {
	var b strings.Builder
	n := len(signals)
	if n > maxDigestSignals {
		n = maxDigestSignals
	}
	for i := 0; i < n; i++ {
		s := signals[i]
		fmt.Fprintf(&b, "%d. [%s | score %.0f | %s] %s\n", i+1, s.Source, s.Score, s.PublishedAt.Format("2006-01-02 15:04"), s.Title)
		if body := strings.TrimSpace(s.Body); body != "" {
			if len(body) > 300 {
				// Back up to a rune boundary so the prompt stays valid UTF-8.
				cut := 300
				for cut > 0 && !utf8.RuneStart(body[cut]) {
					cut--
				}
				body = body[:cut]
			}
			fmt.Fprintf(&b, "   %s\n", body)
		}
		fmt.Fprintf(&b, "   %s\n", s.URL)
	}
	return b.String()
}

func profileDigest(p *model.OrganizationProfile) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Organization: %s\n", p.Name)
	if p.Industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", p.Industry)
	}
	if len(p.Competitors) > 0 {
		fmt.Fprintf(&b, "Competitors: %s\n", strings.Join(p.Competitors, ", "))
	}
	if len(p.Stakeholders) > 0 {
		fmt.Fprintf(&b, "Key stakeholders: %s\n", strings.Join(p.Stakeholders, ", "))
	}
	return b.String()
}
