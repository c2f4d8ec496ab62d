// Package config loads engine configuration from YAML and environment
// variables. Environment variables always override YAML values; secrets
// (passwords, API keys) come only from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Supported database types.
const (
	DBTypePostgres  = "postgres"
	DBTypeSQLServer = "sqlserver"
)

// Supported LLM providers.
const (
	LLMProviderOpenAI    = "openai"
	LLMProviderAnthropic = "anthropic"
)

// Config holds all configuration for tessera-engine.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8642"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // set at load time, not from config

	// Target database the pipeline answers questions about.
	Database DatabaseConfig `yaml:"database"`

	// Generation/interpretation collaborator endpoint.
	LLM LLMConfig `yaml:"llm"`

	// Pipeline and validator tunables.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Schema cache settings.
	Cache CacheConfig `yaml:"cache"`

	// Result-shape classifier thresholds.
	Classifier ClassifierConfig `yaml:"classifier"`
}

// DatabaseConfig holds connection settings for the queried database.
type DatabaseConfig struct {
	// Type selects the dialect: "postgres" or "sqlserver".
	Type     string `yaml:"type" env:"DB_TYPE" env-default:"postgres"`
	Host     string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"DB_USER" env-default:""`
	Password string `yaml:"-" env:"DB_PASSWORD"` // secret - not in YAML
	Database string `yaml:"database" env:"DB_NAME" env-default:""`
	SSLMode  string `yaml:"ssl_mode" env:"DB_SSLMODE" env-default:"disable"`
}

// LLMConfig holds the collaborator endpoint configuration.
type LLMConfig struct {
	// Provider selects the client: "openai" (any OpenAI-compatible
	// endpoint) or "anthropic".
	Provider       string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL        string  `yaml:"base_url" env:"LLM_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model          string  `yaml:"model" env:"LLM_MODEL" env-default:""`
	APIKey         string  `yaml:"-" env:"LLM_API_KEY"` // secret - not in YAML
	Temperature    float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"60"`

	// Circuit breaker settings for the remote endpoint.
	BreakerThreshold    int `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerResetSeconds int `yaml:"breaker_reset_seconds" env:"LLM_BREAKER_RESET_SECONDS" env-default:"30"`
}

// Timeout returns the per-call collaborator timeout.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PipelineConfig holds orchestrator and validator tunables.
type PipelineConfig struct {
	// MaxValidationAttempts bounds the generate-validate retry loop.
	MaxValidationAttempts int `yaml:"max_validation_attempts" env:"PIPELINE_MAX_VALIDATION_ATTEMPTS" env-default:"3"`
	// QueryTimeoutSeconds bounds a single query execution.
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds" env:"PIPELINE_QUERY_TIMEOUT_SECONDS" env-default:"30"`
	// MaxRows caps the injected row limit.
	MaxRows int `yaml:"max_rows" env:"PIPELINE_MAX_ROWS" env-default:"1000"`
	// AllowWrite permits explicitly allow-listed write statements.
	AllowWrite bool `yaml:"allow_write" env:"PIPELINE_ALLOW_WRITE" env-default:"false"`
	// RequireRowLimit injects a row limit into SELECTs that lack one.
	RequireRowLimit bool `yaml:"require_row_limit" env:"PIPELINE_REQUIRE_ROW_LIMIT" env-default:"true"`
}

// QueryTimeout returns the per-query execution timeout.
func (c *PipelineConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// CacheConfig holds schema cache settings.
type CacheConfig struct {
	// TTLSeconds is how long a snapshot stays fresh.
	TTLSeconds int `yaml:"ttl_seconds" env:"CACHE_TTL_SECONDS" env-default:"300"`
	// RefreshTimeoutSeconds bounds a single schema fetch.
	RefreshTimeoutSeconds int `yaml:"refresh_timeout_seconds" env:"CACHE_REFRESH_TIMEOUT_SECONDS" env-default:"30"`
	// PersistDir, if set, persists snapshots to disk for warm starts.
	PersistDir string `yaml:"persist_dir" env:"CACHE_PERSIST_DIR" env-default:""`
}

// TTL returns the snapshot freshness window.
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// RefreshTimeout returns the per-refresh fetch timeout.
func (c *CacheConfig) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutSeconds) * time.Second
}

// ClassifierConfig holds result-shape classifier thresholds.
type ClassifierConfig struct {
	// MaxBarRows is the row count ceiling for bar charts.
	MaxBarRows int `yaml:"max_bar_rows" env:"CLASSIFIER_MAX_BAR_ROWS" env-default:"50"`
	// MaxPieCategories is the distinct-label ceiling for pie charts.
	MaxPieCategories int `yaml:"max_pie_categories" env:"CLASSIFIER_MAX_PIE_CATEGORIES" env-default:"8"`
}

// Load reads configuration from config.yaml (if present) and the
// environment. The version string is stamped onto the returned config.
func Load(version string) (*Config, error) {
	cfg := &Config{}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := cleanenv.ReadConfig(configPath, cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read config from environment: %w", err)
		}
	}

	cfg.Version = version

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Type {
	case DBTypePostgres, DBTypeSQLServer:
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	switch c.LLM.Provider {
	case LLMProviderOpenAI, LLMProviderAnthropic:
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.Pipeline.MaxValidationAttempts < 1 {
		return fmt.Errorf("max_validation_attempts must be at least 1")
	}
	if c.Pipeline.MaxRows < 1 {
		return fmt.Errorf("max_rows must be at least 1")
	}
	return nil
}
