package detect

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/sentinel-cli/internal/model"
)

// FindingStore is the persistence slice the router needs.
type FindingStore interface {
	SaveFinding(ctx context.Context, f *model.Finding) error
}

// RouterConfig controls dispatch deadlines and the crisis gate.
type RouterConfig struct {
	// Timeouts maps analyzer name to its dispatch deadline. Analyzers
	// without an entry get DefaultTimeout.
	Timeouts       map[string]time.Duration
	DefaultTimeout time.Duration

	// CrisisRiskThreshold discards crisis findings below this risk level
	// before persistence.
	CrisisRiskThreshold float64
}

// RunContext identifies the pipeline run on whose behalf analyzers fire.
type RunContext struct {
	RunID   string
	OrgID   string
	Profile *model.OrganizationProfile
}

// Router fans a dispatched signal batch out to analyzers. Dispatch is
// fire-and-forget: it returns as soon as every analyzer goroutine is
// launched, and each supervising goroutine persists its analyzer's findings
// independently of the caller's context.
type Router struct {
	registry *Registry
	store    FindingStore
	cfg      RouterConfig
	metrics  *Metrics
}

func NewRouter(registry *Registry, store FindingStore, cfg RouterConfig, metrics *Metrics) *Router {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	return &Router{registry: registry, store: store, cfg: cfg, metrics: metrics}
}

// DispatchReceipt tracks in-flight analyzer dispatches. Statuses fill in as
// analyzers finish; Wait blocks until all have finished or the grace period
// elapses.
type DispatchReceipt struct {
	mu       sync.Mutex
	statuses map[string]model.AnalyzerStatus
	pending  int
	done     chan struct{}
}

func newReceipt(analyzers []string) *DispatchReceipt {
	r := &DispatchReceipt{
		statuses: make(map[string]model.AnalyzerStatus, len(analyzers)),
		pending:  len(analyzers),
		done:     make(chan struct{}),
	}
	if r.pending == 0 {
		close(r.done)
	}
	return r
}

func (r *DispatchReceipt) finish(name string, st model.AnalyzerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[name] = st
	r.pending--
	if r.pending == 0 {
		close(r.done)
	}
}

// Wait blocks until every dispatched analyzer has finished, or the grace
// period elapses. Returns true when all finished in time.
func (r *DispatchReceipt) Wait(grace time.Duration) bool {
	select {
	case <-r.done:
		return true
	case <-time.After(grace):
		return false
	}
}

// Done is closed once every dispatched analyzer has reached a terminal
// outcome.
func (r *DispatchReceipt) Done() <-chan struct{} {
	return r.done
}

// Statuses returns a snapshot of the per-analyzer statuses recorded so far.
func (r *DispatchReceipt) Statuses() map[string]model.AnalyzerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]model.AnalyzerStatus, len(r.statuses))
	for k, v := range r.statuses {
		out[k] = v
	}
	return out
}

// Dispatch fires the named analyzers against the signal batch and returns
// immediately. Analyzer work survives cancellation of ctx; only the
// per-analyzer deadline bounds it.
func (rt *Router) Dispatch(ctx context.Context, run RunContext, signals []model.ScoredSignal, analyzers []string) *DispatchReceipt {
	receipt := newReceipt(analyzers)
	base := context.WithoutCancel(ctx)

	req := Request{
		RunID:   run.RunID,
		OrgID:   run.OrgID,
		Profile: run.Profile,
		Signals: signals,
	}

	for _, name := range analyzers {
		analyzer, ok := rt.registry.Get(name)
		if !ok {
			zap.L().Warn("detect: unknown analyzer skipped", zap.String("analyzer", name))
			rt.observe(name, model.OutcomeSkipped, 0)
			receipt.finish(name, model.AnalyzerStatus{
				Dispatched: len(signals),
				Outcome:    model.OutcomeSkipped,
				Error:      "analyzer not registered",
			})
			continue
		}

		go rt.supervise(base, analyzer, run, req, receipt)
	}

	return receipt
}

func (rt *Router) supervise(base context.Context, analyzer Analyzer, run RunContext, req Request, receipt *DispatchReceipt) {
	name := analyzer.Name()
	timeout := rt.cfg.Timeouts[name]
	if timeout <= 0 {
		timeout = rt.cfg.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	start := time.Now()
	res, err := analyzer.Analyze(ctx, req)
	elapsed := time.Since(start)

	st := model.AnalyzerStatus{
		Dispatched: len(req.Signals),
		DurationMs: elapsed.Milliseconds(),
	}

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		st.Outcome = model.OutcomeTimeout
		st.Error = err.Error()
		zap.L().Warn("detect: analyzer timed out",
			zap.String("analyzer", name),
			zap.String("run_id", run.RunID),
			zap.Duration("timeout", timeout))
	case err != nil:
		st.Outcome = model.OutcomeError
		st.Error = err.Error()
		zap.L().Error("detect: analyzer failed",
			zap.String("analyzer", name),
			zap.String("run_id", run.RunID),
			zap.Error(err))
	default:
		st.Outcome = model.OutcomeOK
		// Findings persist on a fresh deadline; an analyzer that finishes
		// near its own must not lose its output to context expiry.
		pctx, pcancel := context.WithTimeout(base, 15*time.Second)
		st.Findings = rt.persist(pctx, name, run, res.Findings)
		pcancel()
	}

	rt.observe(name, st.Outcome, elapsed)
	receipt.finish(name, st)
}

// persist applies the crisis gate and saves the surviving findings. Returns
// the number actually persisted.
func (rt *Router) persist(ctx context.Context, analyzer string, run RunContext, findings []model.Finding) int {
	saved := 0
	for i := range findings {
		f := findings[i]
		if analyzer == model.AnalyzerCrisis {
			if f.Crisis == nil || f.Crisis.RiskLevel < rt.cfg.CrisisRiskThreshold {
				continue
			}
		}
		f.RunID = run.RunID
		f.OrgID = run.OrgID
		f.Analyzer = analyzer
		if err := rt.store.SaveFinding(ctx, &f); err != nil {
			zap.L().Error("detect: persist finding failed",
				zap.String("analyzer", analyzer),
				zap.String("run_id", run.RunID),
				zap.Error(err))
			continue
		}
		saved++
	}
	if rt.metrics != nil && saved > 0 {
		rt.metrics.FindingsTotal.WithLabelValues(analyzer).Add(float64(saved))
	}
	return saved
}

func (rt *Router) observe(analyzer string, outcome model.AnalyzerOutcome, elapsed time.Duration) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.DispatchesTotal.WithLabelValues(analyzer, string(outcome)).Inc()
	if outcome != model.OutcomeSkipped {
		rt.metrics.DispatchDuration.WithLabelValues(analyzer).Observe(elapsed.Seconds())
	}
}
