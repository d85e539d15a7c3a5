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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Confidence ConfidenceConfig `yaml:"confidence" mapstructure:"confidence"`
	Lineage    LineageConfig    `yaml:"lineage" mapstructure:"lineage"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PipelineConfig configures batch normalization behavior.
type PipelineConfig struct {
	BatchSize        int  `yaml:"batch_size" mapstructure:"batch_size"`
	ContinueOnError  bool `yaml:"continue_on_error" mapstructure:"continue_on_error"`
	MaxFallbackField int  `yaml:"max_fallback_fields" mapstructure:"max_fallback_fields"`
}

// ConfidenceConfig configures the scorer's default cut points.
type ConfidenceConfig struct {
	CriticalThreshold float64 `yaml:"critical_threshold" mapstructure:"critical_threshold"`
	LowThreshold      float64 `yaml:"low_threshold" mapstructure:"low_threshold"`
	MediumThreshold   float64 `yaml:"medium_threshold" mapstructure:"medium_threshold"`
	HighThreshold     float64 `yaml:"high_threshold" mapstructure:"high_threshold"`
}

// LineageConfig configures graph materialization.
type LineageConfig struct {
	DefaultDepth  int           `yaml:"default_depth" mapstructure:"default_depth"`
	CacheTTLHours int           `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	GraphVersion  string        `yaml:"graph_version" mapstructure:"graph_version"`
	CacheTTL      time.Duration `yaml:"-" mapstructure:"-"`
}

// IngestConfig configures file and FTP report import.
type IngestConfig struct {
	FTPTimeout time.Duration `yaml:"ftp_timeout" mapstructure:"ftp_timeout"`
	SheetLimit int           `yaml:"sheet_limit" mapstructure:"sheet_limit"`
	RowLimit   int           `yaml:"row_limit" mapstructure:"row_limit"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port           int     `yaml:"port" mapstructure:"port"`
	IngestRate     float64 `yaml:"ingest_rate" mapstructure:"ingest_rate"`
	IngestBurst    int     `yaml:"ingest_burst" mapstructure:"ingest_burst"`
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

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REFINERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "refinery.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.ingest_rate", 20.0)
	v.SetDefault("server.ingest_burst", 40)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("pipeline.continue_on_error", true)
	v.SetDefault("pipeline.max_fallback_fields", 50)
	v.SetDefault("confidence.critical_threshold", 0.3)
	v.SetDefault("confidence.low_threshold", 0.5)
	v.SetDefault("confidence.medium_threshold", 0.7)
	v.SetDefault("confidence.high_threshold", 0.85)
	v.SetDefault("lineage.default_depth", 10)
	v.SetDefault("lineage.cache_ttl_hours", 1)
	v.SetDefault("lineage.graph_version", "v1")
	v.SetDefault("ingest.ftp_timeout", "30s")
	v.SetDefault("ingest.sheet_limit", 10)
	v.SetDefault("ingest.row_limit", 5000)

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
	cfg.Lineage.CacheTTL = time.Duration(cfg.Lineage.CacheTTLHours) * time.Hour

	return &cfg, nil
}

// Validate checks the fields required for a given run mode.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func() {
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Confidence.CriticalThreshold < 0 || c.Confidence.HighThreshold > 1 {
			problems = append(problems, "confidence thresholds must be within [0, 1]")
		}
		if !(c.Confidence.CriticalThreshold <= c.Confidence.LowThreshold &&
			c.Confidence.LowThreshold <= c.Confidence.MediumThreshold &&
			c.Confidence.MediumThreshold <= c.Confidence.HighThreshold) {
			problems = append(problems, "confidence thresholds must be ordered critical <= low <= medium <= high")
		}
	}

	switch mode {
	case "process", "ingest", "migrate":
		check()
	case "serve":
		check()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.IngestRate <= 0 {
			problems = append(problems, "server.ingest_rate must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
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
