// Package collect fans a fixed query set out over every registered source
// adapter and merges the results into one deduplicated signal batch.
package collect

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/internal/resilience"
	"github.com/sells-group/sentinel-cli/internal/source"
)

// AdapterReport summarizes one adapter's contribution to a run.
type AdapterReport struct {
	Signals int `json:"signals"`
	Errors  int `json:"errors"`
}

// Report describes what a collection pass did. Attached to run summaries
// for operators; never used for control flow.
type Report struct {
	Queries     int                      `json:"queries"`
	TasksTotal  int                      `json:"tasks_total"`
	TasksFailed int                      `json:"tasks_failed"`
	PerAdapter  map[string]AdapterReport `json:"per_adapter"`
	Elapsed     time.Duration            `json:"elapsed"`
}

// Config bounds a collection pass.
type Config struct {
	// OverallTimeout caps the whole pass. Default 40s.
	OverallTimeout time.Duration
	// AdapterTimeout caps each (query, adapter) task. Default 15s.
	AdapterTimeout time.Duration
	// MaxPerAdapter caps how many signals one adapter may contribute.
	// Zero means unlimited.
	MaxPerAdapter int
}

// Collector runs all queries against all adapters in parallel.
type Collector struct {
	registry *source.Registry
	cfg      Config
}

func New(registry *source.Registry, cfg Config) *Collector {
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = 40 * time.Second
	}
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = 15 * time.Second
	}
	return &Collector{registry: registry, cfg: cfg}
}

type taskResult struct {
	adapter string
	signals []model.RawSignal
	err     error
}

// Collect gathers raw signals for the profile. A failed or slow adapter
// contributes nothing; the pass errors only when the profile is unusable
// or every single task failed.
func (c *Collector) Collect(ctx context.Context, profile *model.OrganizationProfile, window model.TimeWindow) ([]model.RawSignal, *Report, error) {
	if profile == nil || strings.TrimSpace(profile.Name) == "" {
		return nil, nil, eris.New("collect: profile has no name")
	}

	started := time.Now()
	queries := BuildQueries(profile, window)
	adapters := c.registry.All()
	if len(adapters) == 0 {
		return nil, nil, eris.New("collect: no source adapters registered")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.OverallTimeout)
	defer cancel()

	// One result slot per (query, adapter) task; merged after the join so
	// no task ever touches shared state.
	results := make([]taskResult, len(queries)*len(adapters))

	var g errgroup.Group
	for qi, q := range queries {
		for ai, a := range adapters {
			slot := &results[qi*len(adapters)+ai]
			slot.adapter = a.Name()
			q, a := q, a

			g.Go(func() error {
				taskCtx, taskCancel := context.WithTimeout(ctx, c.cfg.AdapterTimeout)
				defer taskCancel()

				signals, err := a.Fetch(taskCtx, q)
				if err != nil {
					zap.L().Warn("collect: adapter task failed",
						zap.String("adapter", a.Name()),
						zap.String("query_kind", q.Kind),
						zap.Error(err))
					slot.err = err
					return nil
				}
				slot.signals = signals
				return nil
			})
		}
	}
	_ = g.Wait()

	report := &Report{
		Queries:    len(queries),
		TasksTotal: len(results),
		PerAdapter: make(map[string]AdapterReport),
	}

	seen := make(map[string]struct{})
	perAdapterCount := make(map[string]int)
	var merged []model.RawSignal

	for _, res := range results {
		ar := report.PerAdapter[res.adapter]
		if res.err != nil {
			report.TasksFailed++
			ar.Errors++
			report.PerAdapter[res.adapter] = ar
			continue
		}
		for _, s := range res.signals {
			if !s.Valid() {
				continue
			}
			if _, dup := seen[s.URL]; dup {
				continue
			}
			if c.cfg.MaxPerAdapter > 0 && perAdapterCount[res.adapter] >= c.cfg.MaxPerAdapter {
				continue
			}
			seen[s.URL] = struct{}{}
			perAdapterCount[res.adapter]++
			ar.Signals++
			merged = append(merged, s)
		}
		report.PerAdapter[res.adapter] = ar
	}
	report.Elapsed = time.Since(started)

	if report.TasksFailed > 0 {
		for name, state := range source.BreakerStates() {
			if state != resilience.CircuitClosed {
				zap.L().Warn("collect: adapter circuit not closed",
					zap.String("adapter", name),
					zap.Stringer("state", state))
			}
		}
	}

	if report.TasksFailed == report.TasksTotal {
		return nil, report, eris.New("collect: every adapter task failed")
	}

	zap.L().Info("collect: pass complete",
		zap.String("org", profile.ID),
		zap.Int("queries", report.Queries),
		zap.Int("signals", len(merged)),
		zap.Int("tasks_failed", report.TasksFailed),
		zap.Duration("elapsed", report.Elapsed))

	return merged, report, nil
}
