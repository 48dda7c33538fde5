package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sentinel-cli/internal/collect"
	"github.com/sells-group/sentinel-cli/internal/dedup"
	"github.com/sells-group/sentinel-cli/internal/detect"
	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/internal/profile"
	"github.com/sells-group/sentinel-cli/internal/score"
	"github.com/sells-group/sentinel-cli/internal/store"
)

// Config tunes one coordinator instance.
type Config struct {
	// Analyzers is the set dispatched per run.
	Analyzers []string
	// TopK caps how many scored signals are dispatched.
	TopK int
	// DispatchWait bounds how long Run blocks for analyzer results before
	// returning. Zero returns immediately after dispatch; analyzers keep
	// running and persist their own findings.
	DispatchWait time.Duration
}

// Coordinator drives one pipeline run through collection, dedup, scoring,
// and dispatch. A missing profile or a total collection outage fails the
// run; every other degradation is absorbed and noted in the run summary.
type Coordinator struct {
	store     store.Store
	profiles  profile.Provider
	collector *collect.Collector
	dedup     *dedup.Cache
	scorer    *score.Scorer
	router    *detect.Router
	cfg       Config
}

func New(
	st store.Store,
	profiles profile.Provider,
	collector *collect.Collector,
	dedupCache *dedup.Cache,
	scorer *score.Scorer,
	router *detect.Router,
	cfg Config,
) *Coordinator {
	if cfg.TopK <= 0 {
		cfg.TopK = 50
	}
	if len(cfg.Analyzers) == 0 {
		cfg.Analyzers = []string{model.AnalyzerCrisis, model.AnalyzerOpportunity, model.AnalyzerPrediction}
	}
	return &Coordinator{
		store:     st,
		profiles:  profiles,
		collector: collector,
		dedup:     dedupCache,
		scorer:    scorer,
		router:    router,
		cfg:       cfg,
	}
}

// Run executes one full pipeline pass for the organization over the window.
func (c *Coordinator) Run(ctx context.Context, orgID string, window model.TimeWindow) (*model.PipelineRunSummary, error) {
	prof, err := c.profiles.Get(ctx, orgID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load profile %q", orgID)
	}

	log := zap.L().With(zap.String("org_id", prof.ID), zap.String("window", string(window)))
	log.Info("pipeline: starting run")

	run, err := c.store.CreateRun(ctx, prof.ID, window)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	setStatus := func(status model.RunStatus) {
		if statusErr := c.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	summary := &model.PipelineRunSummary{
		RunID:  run.ID,
		OrgID:  prof.ID,
		Window: window,
	}

	// Collection.
	setStatus(model.RunStatusCollecting)
	signals, report, err := c.collector.Collect(ctx, prof, window)
	if err != nil {
		summary.Note = "collection failed: " + err.Error()
		c.complete(ctx, run.ID, model.RunStatusFailed, summary, log)
		return summary, eris.Wrap(err, "pipeline: collect")
	}
	summary.SignalsCollected = len(signals)
	log.Info("pipeline: collected",
		zap.Int("signals", len(signals)),
		zap.Int("tasks_failed", report.TasksFailed),
		zap.Duration("elapsed", report.Elapsed))

	// Dedup. A seen-store failure is absorbed: all signals pass through as
	// new rather than dropping the run.
	setStatus(model.RunStatusDeduping)
	fresh, seen, err := c.dedup.Filter(ctx, prof.ID, signals)
	if err != nil {
		summary.Note = "dedup degraded, treating all signals as new"
	}
	summary.SignalsAfterDedup = len(fresh)
	log.Info("pipeline: deduplicated", zap.Int("fresh", len(fresh)), zap.Int("seen", seen))

	if len(fresh) == 0 {
		if summary.Note == "" {
			summary.Note = "no new signals"
		}
		c.complete(ctx, run.ID, model.RunStatusDone, summary, log)
		return summary, nil
	}

	// Scoring.
	setStatus(model.RunStatusScoring)
	scored := score.TopK(c.scorer.Score(fresh, prof), c.cfg.TopK)
	summary.SignalsDispatched = len(scored)
	log.Info("pipeline: scored", zap.Int("relevant", len(scored)))

	if len(scored) == 0 {
		if summary.Note == "" {
			summary.Note = "no relevant signals"
		}
		c.complete(ctx, run.ID, model.RunStatusDone, summary, log)
		return summary, nil
	}

	// Dispatch, then mark the dispatched signals as seen. Marking after the
	// dispatch decision means a crashed run re-surfaces its signals on the
	// next pass instead of losing them.
	setStatus(model.RunStatusDispatching)
	receipt := c.router.Dispatch(ctx, detect.RunContext{
		RunID:   run.ID,
		OrgID:   prof.ID,
		Profile: prof,
	}, scored, c.cfg.Analyzers)

	dispatched := make([]model.RawSignal, len(scored))
	for i := range scored {
		dispatched[i] = scored[i].RawSignal
	}
	if err := c.dedup.MarkSeen(ctx, prof.ID, dispatched); err != nil {
		log.Error("pipeline: mark seen failed", zap.Error(err))
	}

	waited := false
	if c.cfg.DispatchWait > 0 {
		waited = receipt.Wait(c.cfg.DispatchWait)
		if !waited {
			log.Warn("pipeline: analyzers still running after grace period",
				zap.Duration("grace", c.cfg.DispatchWait))
		}
		summary.PerAnalyzer = receipt.Statuses()
	} else {
		summary.Note = appendNote(summary.Note, "analyzers dispatched asynchronously")
	}

	c.complete(ctx, run.ID, model.RunStatusDone, summary, log)

	if !waited {
		// Terminal analyzer outcomes are still arriving; re-persist the
		// summary once the receipt drains so dispatch failures show up in
		// the stored run.
		go c.recordOutcomes(context.WithoutCancel(ctx), run.ID, *summary, receipt, log)
	}
	log.Info("pipeline: run done",
		zap.String("run_id", run.ID),
		zap.Int("collected", summary.SignalsCollected),
		zap.Int("dispatched", summary.SignalsDispatched))
	return summary, nil
}

// recordOutcomes waits for every dispatched analyzer to finish, then writes
// the final per-analyzer statuses back to the stored run summary.
func (c *Coordinator) recordOutcomes(ctx context.Context, runID string, summary model.PipelineRunSummary, receipt *detect.DispatchReceipt, log *zap.Logger) {
	<-receipt.Done()
	summary.PerAnalyzer = receipt.Statuses()
	if err := c.store.CompleteRun(ctx, runID, model.RunStatusDone, &summary); err != nil {
		log.Error("pipeline: persist analyzer outcomes failed", zap.Error(err))
	}
}

func (c *Coordinator) complete(ctx context.Context, runID string, status model.RunStatus, summary *model.PipelineRunSummary, log *zap.Logger) {
	if err := c.store.CompleteRun(ctx, runID, status, summary); err != nil {
		log.Error("pipeline: complete run failed", zap.Error(err))
	}
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "; " + note
}
