// Package config loads application configuration from config.yaml and
// ENRICH_-prefixed environment variables, and initializes the global
// logger.
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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Local     LocalConfig     `yaml:"local" mapstructure:"local"`
	Tavily    TavilyConfig    `yaml:"tavily" mapstructure:"tavily"`
	Places    PlacesConfig    `yaml:"places" mapstructure:"places"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Workflow  WorkflowConfig  `yaml:"workflow" mapstructure:"workflow"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds primary completion provider settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// LocalConfig holds the optional local completion endpoint settings.
type LocalConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// TavilyConfig holds web search provider settings.
type TavilyConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	SearchDepth string `yaml:"search_depth" mapstructure:"search_depth"`
	MaxResults  int    `yaml:"max_results" mapstructure:"max_results"`
}

// PlacesConfig holds Google Places API settings.
type PlacesConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// PricingConfig points at an optional rates override file.
type PricingConfig struct {
	RatesFile string `yaml:"rates_file" mapstructure:"rates_file"`
}

// WorkflowConfig tunes the enrichment workflows.
type WorkflowConfig struct {
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	BatchSize     int     `yaml:"batch_size" mapstructure:"batch_size"`
	MaxCostUSD    float64 `yaml:"max_cost_usd" mapstructure:"max_cost_usd"`
	SweepMaxUSD   float64 `yaml:"sweep_max_usd" mapstructure:"sweep_max_usd"`
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
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("local.enabled", false)
	v.SetDefault("local.base_url", "http://localhost:11434/v1")
	v.SetDefault("local.model", "qwen3:14b")
	v.SetDefault("tavily.search_depth", "basic")
	v.SetDefault("tavily.max_results", 5)
	v.SetDefault("workflow.min_confidence", 0.7)
	v.SetDefault("workflow.batch_size", 10)
	v.SetDefault("workflow.max_cost_usd", 5.0)
	v.SetDefault("workflow.sweep_max_usd", 10.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the configuration for a given run mode. Modes are
// "workflow" (add/refresh/sweep commands), "serve" (webhook server), and
// "import" (seed loading, no completion providers needed).
func (c *Config) Validate(mode string) error {
	var missing []string

	checkStore := func() {
		if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
			missing = append(missing, "store.driver must be postgres or sqlite")
		}
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}
	checkBounds := func() {
		if c.Workflow.MinConfidence < 0 || c.Workflow.MinConfidence > 1 {
			missing = append(missing, "workflow.min_confidence must be between 0 and 1")
		}
		if c.Workflow.BatchSize < 1 || c.Workflow.BatchSize > 50 {
			missing = append(missing, "workflow.batch_size must be between 1 and 50")
		}
	}

	switch mode {
	case "workflow":
		checkStore()
		checkBounds()
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Tavily.Key == "" {
			missing = append(missing, "tavily.key is required")
		}
	case "serve":
		checkStore()
		checkBounds()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Tavily.Key == "" {
			missing = append(missing, "tavily.key is required")
		}
	case "import":
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
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
