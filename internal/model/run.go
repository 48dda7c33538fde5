package model

import "time"

// RunStatus tracks a pipeline run through its stages.
type RunStatus string

const (
	RunStatusCollecting  RunStatus = "collecting"
	RunStatusDeduping    RunStatus = "deduping"
	RunStatusScoring     RunStatus = "scoring"
	RunStatusDispatching RunStatus = "dispatching"
	RunStatusDone        RunStatus = "done"
	RunStatusFailed      RunStatus = "failed"
)

// AnalyzerOutcome is the terminal state of one analyzer dispatch.
type AnalyzerOutcome string

const (
	OutcomeOK      AnalyzerOutcome = "ok"
	OutcomeTimeout AnalyzerOutcome = "timeout"
	OutcomeError   AnalyzerOutcome = "error"
	OutcomeSkipped AnalyzerOutcome = "skipped"
)

// AnalyzerStatus records how a single analyzer fared during dispatch.
type AnalyzerStatus struct {
	Dispatched int             `json:"dispatched"`
	Outcome    AnalyzerOutcome `json:"outcome"`
	Error      string          `json:"error,omitempty"`
	Findings   int             `json:"findings"`
	DurationMs int64           `json:"duration_ms"`
}

// PipelineRunSummary is the observability record produced at the end of a
// run. Read by callers, never mutated afterward.
type PipelineRunSummary struct {
	RunID             string                    `json:"run_id"`
	OrgID             string                    `json:"org_id"`
	Window            TimeWindow                `json:"window"`
	SignalsCollected  int                       `json:"signals_collected"`
	SignalsAfterDedup int                       `json:"signals_after_dedup"`
	SignalsDispatched int                       `json:"signals_dispatched"`
	PerAnalyzer       map[string]AnalyzerStatus `json:"per_analyzer,omitempty"`
	Note              string                    `json:"note,omitempty"`
}

// PipelineRun is the persisted record of one pipeline invocation.
type PipelineRun struct {
	ID        string              `json:"id"`
	OrgID     string              `json:"org_id"`
	Window    TimeWindow          `json:"window"`
	Status    RunStatus           `json:"status"`
	Summary   *PipelineRunSummary `json:"summary,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}
