package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Fetch    FetchConfig    `mapstructure:"fetch" yaml:"fetch"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	// Scan gets its marching orders from CLI flags, not the config file.
	Scan ScanConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// EngineConfig configures the analysis worker pool.
type EngineConfig struct {
	WorkerConcurrency int           `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	TaskTimeout       time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
}

// FetchConfig tunes script retrieval from remote targets.
type FetchConfig struct {
	Timeout         time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	UserAgent       string            `mapstructure:"user_agent" yaml:"user_agent"`
	Headers         map[string]string `mapstructure:"headers" yaml:"headers"`
	RateLimit       float64           `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst           int               `mapstructure:"burst" yaml:"burst"`
	MaxBodyBytes    int64             `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	IgnoreTLSErrors bool              `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// AnalysisConfig bounds the static analyzer itself.
type AnalysisConfig struct {
	// MaxScriptBytes skips scripts larger than this. Zero disables the cap.
	MaxScriptBytes int64 `mapstructure:"max_script_bytes" yaml:"max_script_bytes"`
}

// DatabaseConfig holds the optional findings store connection details.
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// ScanConfig holds settings populated from CLI flags for a specific run.
type ScanConfig struct {
	Targets     []string
	Output      string
	Format      string
	Concurrency int
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scripthound")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Engine --
	v.SetDefault("engine.worker_concurrency", 8)
	v.SetDefault("engine.task_timeout", "2m")

	// -- Fetch --
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.user_agent", "scripthound/1.0")
	v.SetDefault("fetch.rate_limit", 5.0)
	v.SetDefault("fetch.burst", 10)
	v.SetDefault("fetch.max_body_bytes", 10*1024*1024)
	v.SetDefault("fetch.ignore_tls_errors", false)

	// -- Analysis --
	v.SetDefault("analysis.max_script_bytes", 5*1024*1024)

	// -- Database --
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.url", "")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a validated configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Initialize wires in config file lookup and SCRIPTHOUND_* env overrides on
// the shared viper instance. Missing config files are not an error.
func Initialize(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SCRIPTHOUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Engine.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	if c.Engine.TaskTimeout <= 0 {
		return fmt.Errorf("engine.task_timeout must be a positive duration")
	}
	if c.Fetch.RateLimit <= 0 {
		return fmt.Errorf("fetch.rate_limit must be a positive number of requests per second")
	}
	if c.Fetch.Burst <= 0 {
		return fmt.Errorf("fetch.burst must be a positive integer")
	}
	if c.Analysis.MaxScriptBytes < 0 {
		return fmt.Errorf("analysis.max_script_bytes cannot be negative")
	}
	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("database.url is required when database.enabled is set")
	}
	return nil
}
