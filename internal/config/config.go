package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	AI         AIConfig         `yaml:"ai" mapstructure:"ai"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ExtractionConfig configures the text-extraction cascade.
type ExtractionConfig struct {
	WorkDir            string      `yaml:"work_dir" mapstructure:"work_dir"`
	CommandTimeoutSecs int         `yaml:"command_timeout_secs" mapstructure:"command_timeout_secs"`
	Tools              ToolsConfig `yaml:"tools" mapstructure:"tools"`
}

// ToolsConfig holds paths to the external binaries the strategies shell out to.
type ToolsConfig struct {
	PdfToText   string `yaml:"pdftotext" mapstructure:"pdftotext"`
	PdfToPPM    string `yaml:"pdftoppm" mapstructure:"pdftoppm"`
	Ghostscript string `yaml:"ghostscript" mapstructure:"ghostscript"`
	Tesseract   string `yaml:"tesseract" mapstructure:"tesseract"`
}

// CacheConfig configures the extraction result cache.
type CacheConfig struct {
	Backend          string  `yaml:"backend" mapstructure:"backend"`
	Dir              string  `yaml:"dir" mapstructure:"dir"`
	TTLHours         int     `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	SweepProbability float64 `yaml:"sweep_probability" mapstructure:"sweep_probability"`
}

// AIConfig configures the multi-provider extractor.
type AIConfig struct {
	TimeoutSecs             int                    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitPerSec         float64                `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	BreakerFailureThreshold int                    `yaml:"breaker_failure_threshold" mapstructure:"breaker_failure_threshold"`
	BreakerResetSecs        int                    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	OpenAIKey               string                 `yaml:"openai_api_key" mapstructure:"openai_api_key"`
	GLMKey                  string                 `yaml:"glm_api_key" mapstructure:"glm_api_key"`
	AnthropicKey            string                 `yaml:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	RosterFile              string                 `yaml:"roster_file" mapstructure:"roster_file"`
	Providers               []model.ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// PricingConfig holds per-model token pricing overrides.
type PricingConfig struct {
	Models map[string]ModelPricing `yaml:"models" mapstructure:"models"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PipelineConfig configures the document coordinator.
type PipelineConfig struct {
	Concurrency        int `yaml:"concurrency" mapstructure:"concurrency"`
	StoreRetryAttempts int `yaml:"store_retry_attempts" mapstructure:"store_retry_attempts"`
}

// MonitoringConfig configures the metrics collector and alerting thresholds.
type MonitoringConfig struct {
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours    int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FallbackRateThreshold  float64 `yaml:"fallback_rate_threshold" mapstructure:"fallback_rate_threshold"`
	AIFailureRateThreshold float64 `yaml:"ai_failure_rate_threshold" mapstructure:"ai_failure_rate_threshold"`
	CostBudgetUSD          float64 `yaml:"cost_budget_usd" mapstructure:"cost_budget_usd"`
	AlertCooldownMins      int     `yaml:"alert_cooldown_mins" mapstructure:"alert_cooldown_mins"`
}

// ServerConfig configures the operator HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from an optional ./config.yaml and environment.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. A named file must exist.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("RECONCILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "reconcile.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("extraction.work_dir", "")
	v.SetDefault("extraction.command_timeout_secs", 120)
	v.SetDefault("extraction.tools.pdftotext", "pdftotext")
	v.SetDefault("extraction.tools.pdftoppm", "pdftoppm")
	v.SetDefault("extraction.tools.ghostscript", "gs")
	v.SetDefault("extraction.tools.tesseract", "tesseract")
	v.SetDefault("cache.backend", "fs")
	v.SetDefault("cache.dir", ".cache/extraction")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.sweep_probability", 0.1)
	v.SetDefault("ai.timeout_secs", 10)
	v.SetDefault("ai.rate_limit_per_sec", 5.0)
	v.SetDefault("ai.breaker_failure_threshold", 3)
	v.SetDefault("ai.breaker_reset_secs", 60)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.store_retry_attempts", 3)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.fallback_rate_threshold", 0.5)
	v.SetDefault("monitoring.ai_failure_rate_threshold", 0.3)
	v.SetDefault("monitoring.cost_budget_usd", 10.0)
	v.SetDefault("monitoring.alert_cooldown_mins", 60)

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that viper cannot express.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.Cache.Backend {
	case "fs", "memory":
	default:
		return eris.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTLHours <= 0 {
		return eris.New("config: cache.ttl_hours must be positive")
	}
	if c.Cache.SweepProbability < 0 || c.Cache.SweepProbability > 1 {
		return eris.New("config: cache.sweep_probability must be within [0,1]")
	}
	if c.AI.TimeoutSecs <= 0 {
		return eris.New("config: ai.timeout_secs must be positive")
	}
	seen := make(map[string]bool, len(c.AI.Providers))
	for _, p := range c.AI.Providers {
		if p.Name == "" {
			return eris.New("config: ai.providers entry without name")
		}
		if seen[p.Name] {
			return eris.Errorf("config: duplicate provider %q", p.Name)
		}
		seen[p.Name] = true
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
