package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Redis        RedisConfig        `yaml:"redis" mapstructure:"redis"`
	Profiles     ProfilesConfig     `yaml:"profiles" mapstructure:"profiles"`
	Collect      CollectConfig      `yaml:"collect" mapstructure:"collect"`
	Dedup        DedupConfig        `yaml:"dedup" mapstructure:"dedup"`
	Score        ScoreConfig        `yaml:"score" mapstructure:"score"`
	Detect       DetectConfig       `yaml:"detect" mapstructure:"detect"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Jina         JinaConfig         `yaml:"jina" mapstructure:"jina"`
	Reddit       RedditConfig       `yaml:"reddit" mapstructure:"reddit"`
	Finnhub      FinnhubConfig      `yaml:"finnhub" mapstructure:"finnhub"`
	AlphaVantage AlphaVantageConfig `yaml:"alphavantage" mapstructure:"alphavantage"`
	Monitoring   MonitoringConfig   `yaml:"monitoring" mapstructure:"monitoring"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RedisConfig configures the optional Redis seen-marker backend.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// ProfilesConfig configures the organization profile provider.
type ProfilesConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// CollectConfig bounds the collection stage.
type CollectConfig struct {
	OverallTimeoutSecs int `yaml:"overall_timeout_secs" mapstructure:"overall_timeout_secs"`
	AdapterTimeoutSecs int `yaml:"adapter_timeout_secs" mapstructure:"adapter_timeout_secs"`
	MaxPerAdapter      int `yaml:"max_per_adapter" mapstructure:"max_per_adapter"`
}

// OverallTimeout returns the stage ceiling as a duration.
func (c CollectConfig) OverallTimeout() time.Duration {
	return time.Duration(c.OverallTimeoutSecs) * time.Second
}

// AdapterTimeout returns the per-call deadline as a duration.
func (c CollectConfig) AdapterTimeout() time.Duration {
	return time.Duration(c.AdapterTimeoutSecs) * time.Second
}

// DedupConfig configures the seen-marker cache.
type DedupConfig struct {
	Backend       string `yaml:"backend" mapstructure:"backend"` // "store" or "redis"
	LookbackHours int    `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	BatchSize     int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// Lookback returns the dedup window as a duration.
func (c DedupConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackHours) * time.Hour
}

// ScoreConfig holds relevance scoring weights and the dispatch cutoff.
type ScoreConfig struct {
	TopK            int     `yaml:"top_k" mapstructure:"top_k"`
	OrgTitle        float64 `yaml:"org_title" mapstructure:"org_title"`
	OrgBody         float64 `yaml:"org_body" mapstructure:"org_body"`
	CompetitorTitle float64 `yaml:"competitor_title" mapstructure:"competitor_title"`
	CompetitorBody  float64 `yaml:"competitor_body" mapstructure:"competitor_body"`
	CrisisKeyword   float64 `yaml:"crisis_keyword" mapstructure:"crisis_keyword"`
	UrgentMarker    float64 `yaml:"urgent_marker" mapstructure:"urgent_marker"`
	Stakeholder     float64 `yaml:"stakeholder" mapstructure:"stakeholder"`
	KeywordMatch    float64 `yaml:"keyword_match" mapstructure:"keyword_match"`
	KeywordCap      float64 `yaml:"keyword_cap" mapstructure:"keyword_cap"`
	TierCritical    float64 `yaml:"tier_critical" mapstructure:"tier_critical"`
	TierHigh        float64 `yaml:"tier_high" mapstructure:"tier_high"`
	RecencyHour     float64 `yaml:"recency_hour" mapstructure:"recency_hour"`
	Recency6h       float64 `yaml:"recency_6h" mapstructure:"recency_6h"`
	Recency24h      float64 `yaml:"recency_24h" mapstructure:"recency_24h"`
}

// DetectConfig configures the detection router and analyzers.
type DetectConfig struct {
	Analyzers              []string `yaml:"analyzers" mapstructure:"analyzers"`
	CrisisTimeoutSecs      int      `yaml:"crisis_timeout_secs" mapstructure:"crisis_timeout_secs"`
	OpportunityTimeoutSecs int      `yaml:"opportunity_timeout_secs" mapstructure:"opportunity_timeout_secs"`
	PredictionTimeoutSecs  int      `yaml:"prediction_timeout_secs" mapstructure:"prediction_timeout_secs"`
	CrisisRiskThreshold    float64  `yaml:"crisis_risk_threshold" mapstructure:"crisis_risk_threshold"`
}

// Timeout returns the per-analyzer deadline for the named analyzer.
func (c DetectConfig) Timeout(analyzer string) time.Duration {
	switch analyzer {
	case "crisis":
		return time.Duration(c.CrisisTimeoutSecs) * time.Second
	case "opportunity":
		return time.Duration(c.OpportunityTimeoutSecs) * time.Second
	case "prediction":
		return time.Duration(c.PredictionTimeoutSecs) * time.Second
	default:
		return 30 * time.Second
	}
}

// AnthropicConfig holds Anthropic API settings for the built-in analyzers.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds Jina AI Search settings for the web-search adapter.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// RedditConfig holds settings for the social adapter.
type RedditConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// FinnhubConfig holds Finnhub API settings for the financial adapter.
type FinnhubConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// AlphaVantageConfig holds Alpha Vantage settings for the financial adapter.
type AlphaVantageConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// MonitoringConfig configures health snapshots and alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	LookbackHours        int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	FailRateThreshold    float64 `yaml:"fail_rate_threshold" mapstructure:"fail_rate_threshold"`
	AnalyzerErrThreshold float64 `yaml:"analyzer_err_threshold" mapstructure:"analyzer_err_threshold"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "sentinel.db")
	v.SetDefault("profiles.dir", "profiles")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("collect.overall_timeout_secs", 40)
	v.SetDefault("collect.adapter_timeout_secs", 15)
	v.SetDefault("collect.max_per_adapter", 50)

	v.SetDefault("dedup.backend", "store")
	v.SetDefault("dedup.lookback_hours", 24)
	v.SetDefault("dedup.batch_size", 100)

	v.SetDefault("score.top_k", 50)
	v.SetDefault("score.org_title", 50.0)
	v.SetDefault("score.org_body", 20.0)
	v.SetDefault("score.competitor_title", 40.0)
	v.SetDefault("score.competitor_body", 15.0)
	v.SetDefault("score.crisis_keyword", 30.0)
	v.SetDefault("score.urgent_marker", 25.0)
	v.SetDefault("score.stakeholder", 20.0)
	v.SetDefault("score.keyword_match", 10.0)
	v.SetDefault("score.keyword_cap", 30.0)
	v.SetDefault("score.tier_critical", 15.0)
	v.SetDefault("score.tier_high", 10.0)
	v.SetDefault("score.recency_hour", 20.0)
	v.SetDefault("score.recency_6h", 10.0)
	v.SetDefault("score.recency_24h", 5.0)

	v.SetDefault("detect.analyzers", []string{"crisis", "opportunity", "prediction"})
	v.SetDefault("detect.crisis_timeout_secs", 25)
	v.SetDefault("detect.opportunity_timeout_secs", 25)
	v.SetDefault("detect.prediction_timeout_secs", 45)
	v.SetDefault("detect.crisis_risk_threshold", 6.0)

	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("reddit.base_url", "https://www.reddit.com")
	v.SetDefault("reddit.user_agent", "sentinel-cli/1.0")
	v.SetDefault("alphavantage.base_url", "https://www.alphavantage.co")

	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.fail_rate_threshold", 0.5)
	v.SetDefault("monitoring.analyzer_err_threshold", 0.5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a given mode depends on. Modes are "run"
// (one-shot pipeline) and "serve" (webhook server).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "run", "serve":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required (SENTINEL_ANTHROPIC_KEY)")
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
		if c.Dedup.Backend == "redis" && c.Redis.URL == "" {
			problems = append(problems, "redis.url is required for the redis dedup backend")
		}
		if c.Collect.OverallTimeoutSecs <= 0 || c.Collect.AdapterTimeoutSecs <= 0 {
			problems = append(problems, "collect timeouts must be > 0")
		}
		if c.Detect.CrisisRiskThreshold < 0 || c.Detect.CrisisRiskThreshold > 10 {
			problems = append(problems, "detect.crisis_risk_threshold must be between 0 and 10")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "serve" && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
