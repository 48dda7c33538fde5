package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sentinel-cli/internal/collect"
	"github.com/sells-group/sentinel-cli/internal/dedup"
	"github.com/sells-group/sentinel-cli/internal/detect"
	"github.com/sells-group/sentinel-cli/internal/pipeline"
	"github.com/sells-group/sentinel-cli/internal/profile"
	"github.com/sells-group/sentinel-cli/internal/score"
	"github.com/sells-group/sentinel-cli/internal/source"
	"github.com/sells-group/sentinel-cli/internal/store"
	"github.com/sells-group/sentinel-cli/pkg/alphavantage"
	anthropicpkg "github.com/sells-group/sentinel-cli/pkg/anthropic"
	"github.com/sells-group/sentinel-cli/pkg/jina"
	"github.com/sells-group/sentinel-cli/pkg/reddit"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "sentinel.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initProfiles() (profile.Provider, error) {
	p, err := profile.NewFileProvider(cfg.Profiles.Dir)
	if err != nil {
		return nil, eris.Wrap(err, "load profiles")
	}
	return p, nil
}

// initSources registers every adapter the configured credentials allow.
// RSS and Reddit need none; web search needs a Jina key; financial needs
// at least one of Finnhub or Alpha Vantage.
func initSources() *source.Registry {
	sources := source.NewRegistry()

	sources.Register(source.Throttle(source.NewRSS(), 2, 4))
	sources.Register(source.Throttle(
		source.NewSocial(reddit.NewClient(cfg.Reddit.UserAgent, reddit.WithBaseURL(cfg.Reddit.BaseURL))),
		1, 2,
	))

	if cfg.Jina.Key != "" {
		sources.Register(source.Throttle(
			source.NewWebSearch(jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.SearchBaseURL))),
			1, 2,
		))
	} else {
		zap.L().Warn("env: jina key missing, web search adapter disabled")
	}

	if cfg.Finnhub.Key != "" || cfg.AlphaVantage.Key != "" {
		var fh source.MarketNewsFetcher
		if cfg.Finnhub.Key != "" {
			fh = source.NewFinnhubFetcher(cfg.Finnhub.Key)
		}
		var av alphavantage.Client
		if cfg.AlphaVantage.Key != "" {
			av = alphavantage.NewClient(cfg.AlphaVantage.Key, alphavantage.WithBaseURL(cfg.AlphaVantage.BaseURL))
		}
		sources.Register(source.Throttle(source.NewFinancial(fh, av), 1, 2))
	} else {
		zap.L().Warn("env: no financial API keys, financial adapter disabled")
	}

	return sources
}

func initDedup(st store.Store) (*dedup.Cache, error) {
	switch cfg.Dedup.Backend {
	case "redis":
		client, err := dedup.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			return nil, eris.Wrap(err, "redis dedup backend")
		}
		seen := dedup.NewRedisSeenStore(client, cfg.Dedup.Lookback())
		return dedup.New(seen, cfg.Dedup.Lookback(), cfg.Dedup.BatchSize), nil
	case "store", "":
		return dedup.New(st, cfg.Dedup.Lookback(), cfg.Dedup.BatchSize), nil
	default:
		return nil, eris.Errorf("unsupported dedup backend: %s", cfg.Dedup.Backend)
	}
}

func scoreWeights() score.Weights {
	return score.Weights{
		OrgTitle:        cfg.Score.OrgTitle,
		OrgBody:         cfg.Score.OrgBody,
		CompetitorTitle: cfg.Score.CompetitorTitle,
		CompetitorBody:  cfg.Score.CompetitorBody,
		CrisisKeyword:   cfg.Score.CrisisKeyword,
		UrgentMarker:    cfg.Score.UrgentMarker,
		Stakeholder:     cfg.Score.Stakeholder,
		KeywordMatch:    cfg.Score.KeywordMatch,
		KeywordCap:      cfg.Score.KeywordCap,
		TierCritical:    cfg.Score.TierCritical,
		TierHigh:        cfg.Score.TierHigh,
		RecencyHour:     cfg.Score.RecencyHour,
		Recency6h:       cfg.Score.Recency6h,
		Recency24h:      cfg.Score.Recency24h,
	}
}

func initRouter(st store.Store, reg prometheus.Registerer) *detect.Router {
	llmCfg := detect.LLMConfig{
		Model:     cfg.Anthropic.Model,
		MaxTokens: int64(cfg.Anthropic.MaxTokens),
	}
	client := anthropicpkg.NewClient(cfg.Anthropic.Key)

	analyzers := detect.NewRegistry()
	analyzers.Register(detect.NewCrisisAnalyzer(client, llmCfg))
	analyzers.Register(detect.NewOpportunityAnalyzer(client, llmCfg))
	analyzers.Register(detect.NewPredictionAnalyzer(client, llmCfg))

	timeouts := make(map[string]time.Duration, len(cfg.Detect.Analyzers))
	for _, name := range cfg.Detect.Analyzers {
		timeouts[name] = cfg.Detect.Timeout(name)
	}

	return detect.NewRouter(analyzers, st, detect.RouterConfig{
		Timeouts:            timeouts,
		DefaultTimeout:      30 * time.Second,
		CrisisRiskThreshold: cfg.Detect.CrisisRiskThreshold,
	}, detect.NewMetrics(reg))
}

// pipelineEnv bundles everything a command needs to run the pipeline.
type pipelineEnv struct {
	Store       store.Store
	Profiles    profile.Provider
	Coordinator *pipeline.Coordinator
}

func (e *pipelineEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("env: close store", zap.Error(err))
	}
}

func initPipeline(ctx context.Context, reg prometheus.Registerer, dispatchWait time.Duration) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	profiles, err := initProfiles()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	dedupCache, err := initDedup(st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	collector := collect.New(initSources(), collect.Config{
		OverallTimeout: cfg.Collect.OverallTimeout(),
		AdapterTimeout: cfg.Collect.AdapterTimeout(),
		MaxPerAdapter:  cfg.Collect.MaxPerAdapter,
	})

	coordinator := pipeline.New(
		st,
		profiles,
		collector,
		dedupCache,
		score.New(scoreWeights()),
		initRouter(st, reg),
		pipeline.Config{
			Analyzers:    cfg.Detect.Analyzers,
			TopK:         cfg.Score.TopK,
			DispatchWait: dispatchWait,
		},
	)

	return &pipelineEnv{
		Store:       st,
		Profiles:    profiles,
		Coordinator: coordinator,
	}, nil
}
