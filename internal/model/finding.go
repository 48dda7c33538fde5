package model

import "time"

// Analyzer names. The configured analyzer set is configuration, but the
// finding payloads form a closed tagged set: exactly one of the variant
// pointers on Finding is non-nil, matching the Analyzer field.
const (
	AnalyzerCrisis      = "crisis"
	AnalyzerOpportunity = "opportunity"
	AnalyzerPrediction  = "prediction"
)

// CrisisFinding is a detected threat to the organization's reputation or
// operations. RiskLevel runs 0-10; sub-threshold findings are discarded by
// the router's crisis gate before persistence.
type CrisisFinding struct {
	Headline   string   `json:"headline"`
	RiskLevel  float64  `json:"risk_level"`
	Category   string   `json:"category,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	SourceURLs []string `json:"source_urls,omitempty"`
}

// OpportunityFinding is a detected opening (partnership, funding, market
// gap) the organization could act on.
type OpportunityFinding struct {
	Headline   string   `json:"headline"`
	Kind       string   `json:"kind,omitempty"`
	Confidence float64  `json:"confidence"`
	Summary    string   `json:"summary,omitempty"`
	SourceURLs []string `json:"source_urls,omitempty"`
}

// PredictionFinding is a forward-looking statement derived from the
// current signal batch.
type PredictionFinding struct {
	Statement  string  `json:"statement"`
	Horizon    string  `json:"horizon,omitempty"`
	Likelihood float64 `json:"likelihood"`
	Basis      string  `json:"basis,omitempty"`
}

// Finding is the common envelope persisted for every analyzer conclusion.
type Finding struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	OrgID     string    `json:"org_id"`
	Analyzer  string    `json:"analyzer"`
	CreatedAt time.Time `json:"created_at"`

	Crisis      *CrisisFinding      `json:"crisis,omitempty"`
	Opportunity *OpportunityFinding `json:"opportunity,omitempty"`
	Prediction  *PredictionFinding  `json:"prediction,omitempty"`
}
