// Package config loads SuriCare configuration from a .env file, an optional TOML file and
// the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/suricare/suricare/internal/scheduler"
	"github.com/suricare/suricare/internal/util"
)

// Defaults.
const (
	DefaultStateDir          = "/var/lib/suricare"
	DefaultDBFileName        = "suricare.db"
	DefaultAPIAddr           = ":8080"
	DefaultModel             = "gpt-4o-mini"
	DefaultEmbeddingModel    = "text-embedding-3-small"
	DefaultWindowDays        = 7
	DefaultGrowthWindowDays  = 90
	DefaultGenerationTimeout = 60 * time.Second
	DefaultCacheTTL          = time.Hour
	DefaultLogLevel          = "info"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration that decodes from strings such as "60s" in TOML files.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// OpenAIConfig configures the generation capability.
type OpenAIConfig struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	EmbeddingModel string  `toml:"embedding_model"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int64   `toml:"max_tokens"`
	Debug          bool    `toml:"debug"`
}

// RedisConfig configures the knowledge search cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	CacheTTL Duration `toml:"cache_ttl"`
}

// AnalysisConfig configures the trend analyzer.
type AnalysisConfig struct {
	WindowDays       int    `toml:"window_days"`
	GrowthWindowDays int    `toml:"growth_window_days"`
	Timezone         string `toml:"timezone"`
}

// AlertsConfig configures the weekly alert job.
type AlertsConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"`
}

// Config is the complete runtime configuration.
type Config struct {
	StateDir          string         `toml:"state_dir"`
	DatabaseURL       string         `toml:"database_url"`
	APIAddr           string         `toml:"api_addr"`
	LogLevel          string         `toml:"log_level"`
	KnowledgeBase     string         `toml:"knowledge_base"`
	GuardrailRules    string         `toml:"guardrail_rules"`
	PersonaFile       string         `toml:"persona_file"`
	GenerationTimeout Duration       `toml:"generation_timeout"`
	OpenAI            OpenAIConfig   `toml:"openai"`
	Redis             RedisConfig    `toml:"redis"`
	Analysis          AnalysisConfig `toml:"analysis"`
	Alerts            AlertsConfig   `toml:"alerts"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		StateDir:          DefaultStateDir,
		APIAddr:           DefaultAPIAddr,
		LogLevel:          DefaultLogLevel,
		GenerationTimeout: Duration{DefaultGenerationTimeout},
		OpenAI: OpenAIConfig{
			Model:          DefaultModel,
			EmbeddingModel: DefaultEmbeddingModel,
			Temperature:    0.3,
			MaxTokens:      1024,
		},
		Redis:    RedisConfig{CacheTTL: Duration{DefaultCacheTTL}},
		Analysis: AnalysisConfig{WindowDays: DefaultWindowDays, GrowthWindowDays: DefaultGrowthWindowDays, Timezone: "UTC"},
		Alerts:   AlertsConfig{Enabled: true, Schedule: scheduler.DefaultWeeklyAnalysis},
	}
}

// Load reads .env (a missing file is not an error), then the TOML file at path when path
// is non-empty, then environment overrides. When path is empty SURICARE_CONFIG is consulted.
// The result is not validated; callers apply flag overrides and then call Validate.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("Config.Load: no .env file loaded", "error", err)
	} else {
		slog.Debug("Config.Load: loaded .env file")
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("SURICARE_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		slog.Debug("Config.Load: loaded config file", "path", path)
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// ApplyEnvOverrides replaces fields with any environment variables that are set.
func (c *Config) ApplyEnvOverrides() {
	c.StateDir = util.StringEnv("SURICARE_STATE_DIR", c.StateDir)
	c.DatabaseURL = util.StringEnv("DATABASE_URL", c.DatabaseURL)
	c.APIAddr = util.StringEnv("API_ADDR", c.APIAddr)
	c.LogLevel = util.StringEnv("SURICARE_LOG_LEVEL", c.LogLevel)
	c.KnowledgeBase = util.StringEnv("SURICARE_KNOWLEDGE_BASE", c.KnowledgeBase)
	c.GuardrailRules = util.StringEnv("SURICARE_GUARDRAIL_RULES", c.GuardrailRules)
	c.PersonaFile = util.StringEnv("SURICARE_PERSONA_FILE", c.PersonaFile)
	c.GenerationTimeout.Duration = util.ParseDurationEnv("SURICARE_GENERATION_TIMEOUT", c.GenerationTimeout.Duration)

	c.OpenAI.APIKey = util.StringEnv("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = util.StringEnv("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.Model = util.StringEnv("OPENAI_MODEL", c.OpenAI.Model)
	c.OpenAI.EmbeddingModel = util.StringEnv("OPENAI_EMBEDDING_MODEL", c.OpenAI.EmbeddingModel)
	c.OpenAI.Temperature = util.ParseFloatEnv("OPENAI_TEMPERATURE", c.OpenAI.Temperature)
	c.OpenAI.MaxTokens = int64(util.ParseIntEnv("OPENAI_MAX_TOKENS", int(c.OpenAI.MaxTokens)))
	c.OpenAI.Debug = util.ParseBoolEnv("SURICARE_GENAI_DEBUG", c.OpenAI.Debug)

	c.Redis.Addr = util.StringEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = util.StringEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = util.ParseIntEnv("REDIS_DB", c.Redis.DB)
	c.Redis.CacheTTL.Duration = util.ParseDurationEnv("SURICARE_CACHE_TTL", c.Redis.CacheTTL.Duration)

	c.Analysis.WindowDays = util.ParseIntEnv("SURICARE_WINDOW_DAYS", c.Analysis.WindowDays)
	c.Analysis.GrowthWindowDays = util.ParseIntEnv("SURICARE_GROWTH_WINDOW_DAYS", c.Analysis.GrowthWindowDays)
	c.Analysis.Timezone = util.StringEnv("SURICARE_TIMEZONE", c.Analysis.Timezone)

	c.Alerts.Enabled = util.ParseBoolEnv("SURICARE_ALERTS_ENABLED", c.Alerts.Enabled)
	c.Alerts.Schedule = util.StringEnv("SURICARE_ALERT_SCHEDULE", c.Alerts.Schedule)
}

// DSN returns the database DSN, defaulting to a SQLite file in the state directory.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.StateDir, DefaultDBFileName)
}

// Location returns the configured calendar-day location.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Analysis.Timezone)
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.LogLevel)
	}
	return l, nil
}

// Validate checks every field that has a constrained domain.
func (c *Config) Validate() error {
	var errs []error
	if c.Analysis.WindowDays <= 0 {
		errs = append(errs, fmt.Errorf("window days must be positive, got %d", c.Analysis.WindowDays))
	}
	if c.Analysis.GrowthWindowDays <= 0 {
		errs = append(errs, fmt.Errorf("growth window days must be positive, got %d", c.Analysis.GrowthWindowDays))
	}
	if c.GenerationTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("generation timeout must be positive, got %s", c.GenerationTimeout.Duration))
	}
	if c.Redis.CacheTTL.Duration <= 0 {
		errs = append(errs, fmt.Errorf("cache ttl must be positive, got %s", c.Redis.CacheTTL.Duration))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Analysis.Timezone, err))
	}
	if c.Alerts.Enabled {
		if err := scheduler.Validate(c.Alerts.Schedule); err != nil {
			errs = append(errs, err)
		}
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2], got %v", c.OpenAI.Temperature))
	}
	if c.OpenAI.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max tokens must be positive, got %d", c.OpenAI.MaxTokens))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
