package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/internal/store"
)

// AnalyzerStats aggregates dispatch outcomes for one analyzer across runs.
type AnalyzerStats struct {
	Dispatches int     `json:"dispatches"`
	Errors     int     `json:"errors"`
	Timeouts   int     `json:"timeouts"`
	Findings   int     `json:"findings"`
	ErrorRate  float64 `json:"error_rate"`
}

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsDone     int     `json:"runs_done"`
	RunsFailed   int     `json:"runs_failed"`
	RunsInflight int     `json:"runs_inflight"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Signal flow (within lookback window).
	SignalsCollected  int     `json:"signals_collected"`
	SignalsDispatched int     `json:"signals_dispatched"`
	DedupRatio        float64 `json:"dedup_ratio"`

	// Per-analyzer outcomes.
	Analyzers map[string]AnalyzerStats `json:"analyzers,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers health metrics from persisted runs.
type Collector struct {
	store store.Store
}

func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect builds a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		Analyzers:     make(map[string]AnalyzerStats),
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	dedupDropped := 0

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusDone:
			snap.RunsDone++
		case model.RunStatusFailed:
			snap.RunsFailed++
		default:
			snap.RunsInflight++
		}

		if r.Summary == nil {
			continue
		}
		snap.SignalsCollected += r.Summary.SignalsCollected
		snap.SignalsDispatched += r.Summary.SignalsDispatched
		dedupDropped += r.Summary.SignalsCollected - r.Summary.SignalsAfterDedup

		for name, st := range r.Summary.PerAnalyzer {
			stats := snap.Analyzers[name]
			stats.Dispatches++
			stats.Findings += st.Findings
			switch st.Outcome {
			case model.OutcomeError:
				stats.Errors++
			case model.OutcomeTimeout:
				stats.Timeouts++
			}
			snap.Analyzers[name] = stats
		}
	}

	finished := snap.RunsDone + snap.RunsFailed
	if finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.SignalsCollected > 0 {
		snap.DedupRatio = float64(dedupDropped) / float64(snap.SignalsCollected)
	}
	for name, stats := range snap.Analyzers {
		if stats.Dispatches > 0 {
			stats.ErrorRate = float64(stats.Errors+stats.Timeouts) / float64(stats.Dispatches)
			snap.Analyzers[name] = stats
		}
	}

	return snap, nil
}
