package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ridgehaul/ticketflow/internal/extract"
	"github.com/ridgehaul/ticketflow/internal/fetcher"
	"github.com/ridgehaul/ticketflow/internal/model"
	"github.com/ridgehaul/ticketflow/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig        `yaml:"store" mapstructure:"store"`
	Batch     BatchConfig        `yaml:"batch" mapstructure:"batch"`
	Dedupe    DedupeConfig       `yaml:"dedupe" mapstructure:"dedupe"`
	Extract   extract.Config     `yaml:"extract" mapstructure:"extract"`
	Anthropic AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Source    SourceConfig       `yaml:"source" mapstructure:"source"`
	Metadata  MetadataConfig     `yaml:"metadata" mapstructure:"metadata"`
	Reader    ReaderConfig       `yaml:"reader" mapstructure:"reader"`
	Server    ServerConfig       `yaml:"server" mapstructure:"server"`
	Log       LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool,omitempty" mapstructure:"pool"`
}

// BatchConfig configures batch orchestration.
type BatchConfig struct {
	Concurrency       int           `yaml:"concurrency" mapstructure:"concurrency"`
	MaxRetries        int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	FileTimeout       time.Duration `yaml:"file_timeout" mapstructure:"file_timeout"`
	ContinueOnError   bool          `yaml:"continue_on_error" mapstructure:"continue_on_error"`
	RollbackOnFailure bool          `yaml:"rollback_on_failure" mapstructure:"rollback_on_failure"`
}

// DedupeConfig configures duplicate detection.
type DedupeConfig struct {
	WindowDays int `yaml:"window_days" mapstructure:"window_days"`
}

// Policy assembles the batch policy from the batch and dedupe sections.
// Zero values fall back to the policy defaults.
func (c *Config) Policy() model.BatchPolicy {
	p := model.DefaultBatchPolicy()
	if c.Batch.Concurrency > 0 {
		p.Concurrency = c.Batch.Concurrency
	}
	if c.Batch.MaxRetries >= 0 {
		p.MaxRetries = c.Batch.MaxRetries
	}
	if c.Batch.RetryBackoff > 0 {
		p.RetryBackoff = c.Batch.RetryBackoff
	}
	if c.Batch.FileTimeout > 0 {
		p.FileTimeout = c.Batch.FileTimeout
	}
	p.ContinueOnError = c.Batch.ContinueOnError
	p.RollbackOnFailure = c.Batch.RollbackOnFailure
	if c.Dedupe.WindowDays > 0 {
		p.DuplicateWindow = time.Duration(c.Dedupe.WindowDays) * 24 * time.Hour
	}
	return p
}

// AnthropicConfig holds Anthropic API credentials.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// SourceConfig configures where scans come from.
type SourceConfig struct {
	Kind string             `yaml:"kind" mapstructure:"kind"` // "local" or "ftp"
	Dir  string             `yaml:"dir" mapstructure:"dir"`
	FTP  fetcher.FTPOptions `yaml:"ftp" mapstructure:"ftp"`
}

// MetadataConfig points at the path-schema file.
type MetadataConfig struct {
	SchemaPath string `yaml:"schema_path" mapstructure:"schema_path"`
}

// ReaderConfig configures PDF page reading.
type ReaderConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// ServerConfig configures the review API server.
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
	v.SetEnvPrefix("TICKETFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ticketflow.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.concurrency", 0) // 0 = NumCPU
	v.SetDefault("batch.max_retries", 2)
	v.SetDefault("batch.retry_backoff", "2s")
	v.SetDefault("batch.file_timeout", "300s")
	v.SetDefault("batch.continue_on_error", true)
	v.SetDefault("batch.rollback_on_failure", false)
	v.SetDefault("dedupe.window_days", 120)
	v.SetDefault("extract.provider", "pattern")
	v.SetDefault("extract.model", "claude-haiku-4-5-20251001")
	v.SetDefault("extract.max_tokens", 2048)
	v.SetDefault("extract.rate_per_second", 2.0)
	v.SetDefault("extract.burst", 4)
	v.SetDefault("source.kind", "local")
	v.SetDefault("source.dir", ".")
	v.SetDefault("source.ftp.timeout", "30s")
	v.SetDefault("source.ftp.staging_dir", "/tmp/ticketflow-staging")
	v.SetDefault("reader.pdftotext_path", "pdftotext")

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
