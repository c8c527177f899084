// Package config loads server and CLI settings from .env, config.yaml and the environment.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	History   HistoryConfig   `yaml:"history" mapstructure:"history"`
	Model     ModelConfig     `yaml:"model" mapstructure:"model"`
	Rules     RulesConfig     `yaml:"rules" mapstructure:"rules"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port         string   `yaml:"port" mapstructure:"port"`
	GinMode      string   `yaml:"gin_mode" mapstructure:"gin_mode"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	CORSOrigins  []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// HistoryConfig selects the assessment history backend.
type HistoryConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DSN         string `yaml:"dsn" mapstructure:"dsn"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Capacity    int    `yaml:"capacity" mapstructure:"capacity"`
}

// ModelConfig points at the prediction service.
type ModelConfig struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RulesConfig optionally replaces the built-in override rules.
type RulesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// AnthropicConfig enables LLM chatbot answers when APIKey is set.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	Model  string `yaml:"model" mapstructure:"model"`
}

// SessionConfig bounds how long idle form sessions live.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// BatchConfig configures batch uploads.
type BatchConfig struct {
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	RPS         float64 `yaml:"rps" mapstructure:"rps"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

var envKeys = map[string]string{
	"server.port":           "PORT",
	"server.gin_mode":       "GIN_MODE",
	"server.max_body_bytes": "MAX_BODY_BYTES",
	"server.cors_origins":   "CORS_ORIGINS",
	"history.driver":        "HISTORY_DRIVER",
	"history.dsn":           "HISTORY_DSN",
	"history.database_url":  "DATABASE_URL",
	"history.capacity":      "HISTORY_CAPACITY",
	"model.url":             "MODEL_URL",
	"model.timeout":         "MODEL_TIMEOUT",
	"rules.file":            "RULES_FILE",
	"anthropic.api_key":     "ANTHROPIC_API_KEY",
	"anthropic.model":       "ANTHROPIC_MODEL",
	"session.ttl":           "SESSION_TTL",
	"batch.concurrency":     "BATCH_CONCURRENCY",
	"batch.rps":             "BATCH_RPS",
	"log.level":             "LOG_LEVEL",
	"log.format":            "LOG_FORMAT",
}

// Load reads .env (if present), then config.yaml (if present), then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", env)
		}
	}

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("server.max_body_bytes", 5<<20)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("history.driver", "memory")
	v.SetDefault("history.dsn", "history.db")
	v.SetDefault("history.capacity", 100)
	v.SetDefault("model.url", "http://localhost:5000")
	v.SetDefault("model.timeout", "10s")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("session.ttl", "30m")
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.rps", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins)
	cfg.History.Driver = strings.ToLower(strings.TrimSpace(cfg.History.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.History.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.History.DatabaseURL == "" {
			return eris.New("DATABASE_URL is required when HISTORY_DRIVER=postgres")
		}
	default:
		return eris.Errorf("config: unknown history driver %q", c.History.Driver)
	}
	if c.Model.URL == "" {
		return eris.New("MODEL_URL is required")
	}
	if c.Model.Timeout <= 0 {
		return eris.New("config: model timeout must be positive")
	}
	if c.Batch.Concurrency < 1 {
		return eris.New("config: batch concurrency must be at least 1")
	}
	return nil
}

// HistoryDSN is the connection string for the selected history driver.
func (c *Config) HistoryDSN() string {
	if c.History.Driver == "postgres" {
		return c.History.DatabaseURL
	}
	return c.History.DSN
}

// CORS_ORIGINS arrives as one comma-separated string from the environment.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
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
