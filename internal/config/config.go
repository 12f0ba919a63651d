// Package config loads application settings from config.yaml and
// FOODTRUCK_* environment variables.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Tavily     TavilyConfig     `yaml:"tavily" mapstructure:"tavily"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Usage      UsageConfig      `yaml:"usage" mapstructure:"usage"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Jobs       JobsConfig       `yaml:"jobs" mapstructure:"jobs"`
	Dedup      DedupConfig      `yaml:"dedup" mapstructure:"dedup"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
	Seeds      SeedsConfig      `yaml:"seeds" mapstructure:"seeds"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// FirecrawlConfig holds content extraction API settings.
type FirecrawlConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	WaitForMs        int    `yaml:"wait_for_ms" mapstructure:"wait_for_ms"`
	CacheTTLHours    int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollMaxAttempts  int    `yaml:"poll_max_attempts" mapstructure:"poll_max_attempts"`
	CrawlMaxDepth    int    `yaml:"crawl_max_depth" mapstructure:"crawl_max_depth"`
	CrawlLimit       int    `yaml:"crawl_limit" mapstructure:"crawl_limit"`
	LocalFallback    bool   `yaml:"local_fallback" mapstructure:"local_fallback"`
}

// TavilyConfig holds search API settings.
type TavilyConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	MaxResults int    `yaml:"max_results" mapstructure:"max_results"`
}

// AnthropicConfig holds generative extraction settings.
type AnthropicConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	Model            string `yaml:"model" mapstructure:"model"`
	MaxTokens        int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxParseAttempts int    `yaml:"max_parse_attempts" mapstructure:"max_parse_attempts"`
}

// GeocodeConfig controls address geocoding of truck locations.
type GeocodeConfig struct {
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	GoogleKey string  `yaml:"google_key" mapstructure:"google_key"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServiceLimit is a daily quota. Zero tokens means unlimited tokens.
type ServiceLimit struct {
	Requests int64 `yaml:"requests" mapstructure:"requests"`
	Tokens   int64 `yaml:"tokens" mapstructure:"tokens"`
}

// UsageConfig configures quota tracking and alerts.
type UsageConfig struct {
	Limits            map[string]ServiceLimit `yaml:"limits" mapstructure:"limits"`
	TokenBuffer       int64                   `yaml:"token_buffer" mapstructure:"token_buffer"`
	WarningThreshold  float64                 `yaml:"warning_threshold" mapstructure:"warning_threshold"`
	CriticalThreshold float64                 `yaml:"critical_threshold" mapstructure:"critical_threshold"`
	AlertHistory      int                     `yaml:"alert_history" mapstructure:"alert_history"`
	AlertWebhookURL   string                  `yaml:"alert_webhook_url" mapstructure:"alert_webhook_url"`
}

// DiscoveryConfig configures search-driven URL discovery.
type DiscoveryConfig struct {
	Cities           []string `yaml:"cities" mapstructure:"cities"`
	QueryTemplates   []string `yaml:"query_templates" mapstructure:"query_templates"`
	DirectoryURLs    []string `yaml:"directory_urls" mapstructure:"directory_urls"`
	ExtraBlocklist   []string `yaml:"extra_blocklist" mapstructure:"extra_blocklist"`
	QueriesPerSecond float64  `yaml:"queries_per_second" mapstructure:"queries_per_second"`
}

// PipelineConfig configures pipeline defaults.
type PipelineConfig struct {
	MaxURLs              int     `yaml:"max_urls" mapstructure:"max_urls"`
	MaxJobs              int     `yaml:"max_jobs" mapstructure:"max_jobs"`
	Concurrency          int     `yaml:"concurrency" mapstructure:"concurrency"`
	Priority             int     `yaml:"priority" mapstructure:"priority"`
	StaleDays            int     `yaml:"stale_days" mapstructure:"stale_days"`
	QualityFlagThreshold float64 `yaml:"quality_flag_threshold" mapstructure:"quality_flag_threshold"`
}

// JobsConfig configures the scraping job queue.
type JobsConfig struct {
	MaxRetries      int `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBaseSecs int `yaml:"backoff_base_secs" mapstructure:"backoff_base_secs"`
	BackoffMaxSecs  int `yaml:"backoff_max_secs" mapstructure:"backoff_max_secs"`

	// StalledAfterMins is how long a job may stay running before
	// maintenance fails it. Zero disables reaping.
	StalledAfterMins int `yaml:"stalled_after_mins" mapstructure:"stalled_after_mins"`
}

// DedupConfig tunes duplicate detection.
type DedupConfig struct {
	Threshold     float64 `yaml:"threshold" mapstructure:"threshold"`
	NameThreshold float64 `yaml:"name_threshold" mapstructure:"name_threshold"`
}

// SchedulerConfig configures periodic tasks. Intervals are in minutes.
type SchedulerConfig struct {
	Enabled            bool `yaml:"enabled" mapstructure:"enabled"`
	TickSecs           int  `yaml:"tick_secs" mapstructure:"tick_secs"`
	JobProcessingMins  int  `yaml:"job_processing_mins" mapstructure:"job_processing_mins"`
	MaintenanceMins    int  `yaml:"maintenance_mins" mapstructure:"maintenance_mins"`
	DataQualityMins    int  `yaml:"data_quality_mins" mapstructure:"data_quality_mins"`
	DiscoveryMins      int  `yaml:"discovery_mins" mapstructure:"discovery_mins"`
	UsageCheckMins     int  `yaml:"usage_check_mins" mapstructure:"usage_check_mins"`
	MaxConsecutiveErrs int  `yaml:"max_consecutive_errors" mapstructure:"max_consecutive_errors"`
}

// SeedsConfig points at the seed URL list (.yaml or .xlsx).
type SeedsConfig struct {
	Path string   `yaml:"path" mapstructure:"path"`
	URLs []string `yaml:"urls" mapstructure:"urls"`
}

// ResilienceConfig configures per-service circuit breakers.
type ResilienceConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FOODTRUCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "foodtrucks.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("firecrawl.wait_for_ms", 2000)
	v.SetDefault("firecrawl.cache_ttl_hours", 12)
	v.SetDefault("firecrawl.poll_interval_secs", 10)
	v.SetDefault("firecrawl.poll_max_attempts", 30)
	v.SetDefault("firecrawl.crawl_max_depth", 2)
	v.SetDefault("firecrawl.crawl_limit", 10)
	v.SetDefault("firecrawl.local_fallback", true)

	v.SetDefault("tavily.base_url", "https://api.tavily.com")
	v.SetDefault("tavily.max_results", 5)

	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.max_parse_attempts", 3)

	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.rate_limit", 10.0)

	v.SetDefault("usage.limits", map[string]any{
		"anthropic": map[string]any{"requests": 1500, "tokens": 32000},
		"firecrawl": map[string]any{"requests": 500},
		"tavily":    map[string]any{"requests": 1000},
	})
	v.SetDefault("usage.token_buffer", 100)
	v.SetDefault("usage.warning_threshold", 0.8)
	v.SetDefault("usage.critical_threshold", 0.95)
	v.SetDefault("usage.alert_history", 100)

	v.SetDefault("discovery.cities", []string{"Charleston, SC", "Columbia, SC", "Greenville, SC"})
	v.SetDefault("discovery.query_templates", []string{
		"food trucks in {city} {state}",
		"{city} {state} mobile food vendors",
	})
	v.SetDefault("discovery.queries_per_second", 1.0)

	v.SetDefault("pipeline.max_urls", 50)
	v.SetDefault("pipeline.max_jobs", 20)
	v.SetDefault("pipeline.concurrency", 3)
	v.SetDefault("pipeline.priority", 5)
	v.SetDefault("pipeline.stale_days", 7)
	v.SetDefault("pipeline.quality_flag_threshold", 0.3)

	v.SetDefault("jobs.max_retries", 3)
	v.SetDefault("jobs.backoff_base_secs", 30)
	v.SetDefault("jobs.backoff_max_secs", 1800)
	v.SetDefault("jobs.stalled_after_mins", 60)

	v.SetDefault("dedup.threshold", 0.8)
	v.SetDefault("dedup.name_threshold", 0.85)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick_secs", 60)
	v.SetDefault("scheduler.job_processing_mins", 30)
	v.SetDefault("scheduler.maintenance_mins", 360)
	v.SetDefault("scheduler.data_quality_mins", 720)
	v.SetDefault("scheduler.discovery_mins", 1440)
	v.SetDefault("scheduler.usage_check_mins", 30)
	v.SetDefault("scheduler.max_consecutive_errors", 5)

	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.cooldown_secs", 60)
}

// Validate checks the settings a command needs. mode is "serve",
// "pipeline" or "store".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if mode == "serve" || mode == "pipeline" {
		if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 5 {
			problems = append(problems, "pipeline.concurrency must be between 1 and 5")
		}
		if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
			problems = append(problems, "dedup.threshold must be in (0,1]")
		}
		if c.Jobs.MaxRetries < 1 {
			problems = append(problems, "jobs.max_retries must be at least 1")
		}
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, "server.port must be between 1 and 65535")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
