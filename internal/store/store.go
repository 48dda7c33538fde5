package store

import (
	"context"
	"time"

	"github.com/sells-group/sentinel-cli/internal/model"
)

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	OrgID        string          `json:"org_id,omitempty"`
	Status       model.RunStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// FindingFilter specifies criteria for listing analyzer findings.
type FindingFilter struct {
	OrgID    string `json:"org_id,omitempty"`
	RunID    string `json:"run_id,omitempty"`
	Analyzer string `json:"analyzer,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the signal pipeline.
// Seen-marker and finding writes are idempotent upserts: inserting a
// duplicate is a no-op, never an error.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, orgID string, window model.TimeWindow) (*model.PipelineRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.PipelineRunSummary) error
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)

	// Seen markers (dedup)
	HasSeen(ctx context.Context, orgID string, urls []string, lookback time.Duration) (map[string]bool, error)
	MarkSeen(ctx context.Context, orgID string, markers []model.SeenMarker) error

	// Findings
	SaveFinding(ctx context.Context, f *model.Finding) error
	ListFindings(ctx context.Context, filter FindingFilter) ([]model.Finding, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
