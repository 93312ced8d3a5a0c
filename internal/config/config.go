package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrInvalidConfiguration is wrapped by every Validate failure.
var ErrInvalidConfiguration = eris.New("invalid configuration")

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxLeads    int    `yaml:"max_leads" mapstructure:"max_leads"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the on-demand HTTP endpoint.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	RequestBudgetSecs int      `yaml:"request_budget_secs" mapstructure:"request_budget_secs"`
	AllowedOrigins    []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina Reader and Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds Firecrawl API settings (fetch fallback only).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GoogleConfig holds Google Places settings.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NotionConfig holds the Notion token and the signal library database.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	SignalDB string `yaml:"signal_db" mapstructure:"signal_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings. Empty ClientID disables the sink.
type SalesforceConfig struct {
	ClientID   string `yaml:"client_id" mapstructure:"client_id"`
	Username   string `yaml:"username" mapstructure:"username"`
	KeyPath    string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL   string `yaml:"login_url" mapstructure:"login_url"`
	LeadSource string `yaml:"lead_source" mapstructure:"lead_source"`
}

// GenerationConfig routes generation features to providers.
type GenerationConfig struct {
	// Routes maps a feature name (candidate_extraction, signal_evaluation)
	// to a provider name. Missing features use Default.
	Routes   map[string]string `yaml:"routes" mapstructure:"routes"`
	Default  string            `yaml:"default" mapstructure:"default"`
	Fallback string            `yaml:"fallback" mapstructure:"fallback"`

	StructuredAttempts int `yaml:"structured_attempts" mapstructure:"structured_attempts"`
	BreakerThreshold   int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSec int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// SearchConfig selects search providers.
type SearchConfig struct {
	Providers   []string `yaml:"providers" mapstructure:"providers"`
	MaxResults  int      `yaml:"max_results" mapstructure:"max_results"`
	SearchDepth string   `yaml:"search_depth" mapstructure:"search_depth"`
	RatePerSec  float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// RetryConfig is the shared retry policy for outbound calls.
type RetryConfig struct {
	MaxAttempts   int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs   int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	BackoffFactor float64 `yaml:"backoff_factor" mapstructure:"backoff_factor"`
}

// PipelineConfig holds run limits and thresholds.
type PipelineConfig struct {
	RunMode                string      `yaml:"run_mode" mapstructure:"run_mode"`
	SearchConcurrency      int         `yaml:"search_concurrency" mapstructure:"search_concurrency"`
	CandidateConcurrency   int         `yaml:"candidate_concurrency" mapstructure:"candidate_concurrency"`
	FetchConcurrency       int         `yaml:"fetch_concurrency" mapstructure:"fetch_concurrency"`
	MaxQueries             int         `yaml:"max_queries" mapstructure:"max_queries"`
	DefaultLimit           int         `yaml:"default_limit" mapstructure:"default_limit"`
	MinConfidence          float64     `yaml:"min_confidence" mapstructure:"min_confidence"`
	TriggerConfidenceFloor float64     `yaml:"trigger_confidence_floor" mapstructure:"trigger_confidence_floor"`
	DisqualifierConfidence float64     `yaml:"disqualifier_confidence" mapstructure:"disqualifier_confidence"`
	BudgetSecs             int         `yaml:"budget_secs" mapstructure:"budget_secs"`
	BudgetMarginSecs       int         `yaml:"budget_margin_secs" mapstructure:"budget_margin_secs"`
	CandidateTimeoutSecs   int         `yaml:"candidate_timeout_secs" mapstructure:"candidate_timeout_secs"`
	MaxEvidenceChars       int         `yaml:"max_evidence_chars" mapstructure:"max_evidence_chars"`
	AccountSearch          bool        `yaml:"account_search" mapstructure:"account_search"`
	DirectoryBlocklist     []string    `yaml:"directory_blocklist" mapstructure:"directory_blocklist"`
	SignalsPath            string      `yaml:"signals_path" mapstructure:"signals_path"`
	Retry                  RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// Budget returns the default wall-clock budget for a run.
func (p PipelineConfig) Budget() time.Duration {
	return time.Duration(p.BudgetSecs) * time.Second
}

// ScheduleConfig configures the daily job.
type ScheduleConfig struct {
	Cron string `yaml:"cron" mapstructure:"cron"`
}

// MonitoringConfig configures run-health alerts. An empty WebhookURL
// disables delivery.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaPricing             `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlPricing        `yaml:"firecrawl" mapstructure:"firecrawl"`
	Google     GooglePricing           `yaml:"google" mapstructure:"google"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
	PerMTok  float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// JinaPricing holds Jina pricing.
type JinaPricing struct {
	PerSearch float64 `yaml:"per_search" mapstructure:"per_search"`
	PerRead   float64 `yaml:"per_read" mapstructure:"per_read"`
}

// FirecrawlPricing holds Firecrawl pricing.
type FirecrawlPricing struct {
	PlanMonthly     float64 `yaml:"plan_monthly" mapstructure:"plan_monthly"`
	CreditsIncluded float64 `yaml:"credits_included" mapstructure:"credits_included"`
}

// GooglePricing holds Places pricing.
type GooglePricing struct {
	PerTextSearch float64 `yaml:"per_text_search" mapstructure:"per_text_search"`
}

var defaultBlocklist = []string{
	"linkedin.com", "crunchbase.com", "zoominfo.com", "glassdoor.com", "indeed.com",
	"yelp.com", "facebook.com", "twitter.com", "x.com", "instagram.com", "youtube.com",
	"wikipedia.org", "bloomberg.com", "reuters.com", "techcrunch.com", "forbes.com",
	"businesswire.com", "prnewswire.com", "globenewswire.com", "g2.com", "capterra.com",
	"clutch.co", "pitchbook.com", "owler.com", "medium.com", "google.com",
}

// Load reads configuration from ./config.yaml, if present, and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path and environment. An empty path
// falls back to an optional ./config.yaml; a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SIGNALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "signals.db")
	v.SetDefault("store.max_leads", 500)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_budget_secs", 120)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.lead_source", "Signal Hunter")

	v.SetDefault("generation.default", "anthropic")
	v.SetDefault("generation.fallback", "perplexity")
	v.SetDefault("generation.structured_attempts", 3)
	v.SetDefault("generation.breaker_threshold", 5)
	v.SetDefault("generation.breaker_cooldown_secs", 30)

	v.SetDefault("search.providers", []string{"jina"})
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.search_depth", "basic")
	v.SetDefault("search.rate_per_sec", 5.0)

	v.SetDefault("pipeline.run_mode", "live")
	v.SetDefault("pipeline.search_concurrency", 5)
	v.SetDefault("pipeline.candidate_concurrency", 5)
	v.SetDefault("pipeline.fetch_concurrency", 4)
	v.SetDefault("pipeline.max_queries", 50)
	v.SetDefault("pipeline.default_limit", 25)
	v.SetDefault("pipeline.min_confidence", 0.45)
	v.SetDefault("pipeline.trigger_confidence_floor", 0.5)
	v.SetDefault("pipeline.disqualifier_confidence", 0.5)
	v.SetDefault("pipeline.budget_secs", 300)
	v.SetDefault("pipeline.budget_margin_secs", 15)
	v.SetDefault("pipeline.candidate_timeout_secs", 90)
	v.SetDefault("pipeline.max_evidence_chars", 1500)
	v.SetDefault("pipeline.account_search", true)
	v.SetDefault("pipeline.directory_blocklist", defaultBlocklist)
	v.SetDefault("pipeline.signals_path", "configs/signals.yaml")
	v.SetDefault("pipeline.retry.max_attempts", 3)
	v.SetDefault("pipeline.retry.base_delay_ms", 1000)
	v.SetDefault("pipeline.retry.backoff_factor", 2.0)

	v.SetDefault("schedule.cron", "0 0 6 * * *")

	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 50.0)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 900)

	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-haiku-4-5-20251001":  map[string]any{"input": 1.0, "output": 5.0},
		"claude-sonnet-4-5-20250929": map[string]any{"input": 3.0, "output": 15.0},
	})
	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.perplexity.per_mtok", 1.0)
	v.SetDefault("pricing.jina.per_search", 0.002)
	v.SetDefault("pricing.jina.per_read", 0.0005)
	v.SetDefault("pricing.firecrawl.plan_monthly", 19.00)
	v.SetDefault("pricing.firecrawl.credits_included", 3000)
	v.SetDefault("pricing.google.per_text_search", 0.032)
}

// Validate checks the settings a run cannot start without.
func (c *Config) Validate() error {
	switch c.Pipeline.RunMode {
	case "simulated":
		return nil
	case "live":
	default:
		return eris.Wrapf(ErrInvalidConfiguration, "config: unknown pipeline.run_mode %q", c.Pipeline.RunMode)
	}

	if !c.providerConfigured(c.Generation.Default) {
		return eris.Wrapf(ErrInvalidConfiguration, "config: generation provider %q has no API key", c.Generation.Default)
	}
	for feature, name := range c.Generation.Routes {
		if !c.providerConfigured(name) {
			return eris.Wrapf(ErrInvalidConfiguration, "config: generation route %s uses unconfigured provider %q", feature, name)
		}
	}

	configured := 0
	for _, p := range c.Search.Providers {
		switch p {
		case "jina":
			if c.Jina.Key != "" {
				configured++
			}
		case "places":
			if c.Google.Key != "" {
				configured++
			}
		default:
			return eris.Wrapf(ErrInvalidConfiguration, "config: unknown search provider %q", p)
		}
	}
	if configured == 0 {
		return eris.Wrap(ErrInvalidConfiguration, "config: no search provider configured")
	}

	if c.Pipeline.MinConfidence < 0 || c.Pipeline.MinConfidence > 1 {
		return eris.Wrap(ErrInvalidConfiguration, "config: pipeline.min_confidence must be within [0,1]")
	}
	return nil
}

func (c *Config) providerConfigured(name string) bool {
	switch name {
	case "anthropic":
		return c.Anthropic.Key != ""
	case "perplexity":
		return c.Perplexity.Key != ""
	}
	return false
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
