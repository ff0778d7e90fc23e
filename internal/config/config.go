package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hiroki-koketsu/focusflow/internal/advisor"
	"github.com/hiroki-koketsu/focusflow/internal/store"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	// Server settings
	ServerPort string `yaml:"server_port"`

	// OpenTelemetry settings
	OTelEnabled  bool   `yaml:"otel_enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Environment  string `yaml:"environment"`
	LogLevel     string `yaml:"log_level"`

	Store   StoreConfig   `yaml:"store"`
	Advisor AdvisorConfig `yaml:"advisor"`

	// TimeZone decides which calendar day counts as today.
	TimeZone string `yaml:"time_zone"`
}

// StoreConfig selects the persistent store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// AdvisorConfig configures the generative-language client.
type AdvisorConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ServerPort:   "8080",
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "focusflow",
		Environment:  "development",
		LogLevel:     "info",
		Store: StoreConfig{
			Driver:      store.DriverSQLite,
			Path:        store.DefaultPath(),
			RedisAddr:   "localhost:6379",
			RedisPrefix: "focusflow:",
		},
		Advisor: AdvisorConfig{
			BaseURL: advisor.DefaultBaseURL,
			Model:   advisor.DefaultModel,
			Timeout: advisor.DefaultTimeout,
		},
		TimeZone: "Local",
	}
}

// Load returns configuration built from defaults, the optional YAML file at
// path, and environment variables, in increasing precedence. A missing file
// is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
	c.ServiceName = getEnv("OTEL_SERVICE_NAME", c.ServiceName)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.TimeZone = getEnv("TZ_NAME", c.TimeZone)

	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.Path = getEnv("STORE_PATH", c.Store.Path)
	c.Store.RedisAddr = getEnv("REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPrefix = getEnv("REDIS_PREFIX", c.Store.RedisPrefix)

	c.Advisor.APIKey = getEnv("GEMINI_API_KEY", getEnv("API_KEY", c.Advisor.APIKey))
	c.Advisor.BaseURL = getEnv("GEMINI_BASE_URL", c.Advisor.BaseURL)
	c.Advisor.Model = getEnv("GEMINI_MODEL", c.Advisor.Model)

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("OTEL_ENABLED: %w", err)
		}
		c.OTelEnabled = enabled
	}
	if v := os.Getenv("ADVISOR_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ADVISOR_TIMEOUT: %w", err)
		}
		c.Advisor.Timeout = timeout
	}
	return nil
}

// Level returns the configured slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || strings.EqualFold(c.TimeZone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.TimeZone)
}

// StoreOptions converts the store section for store.Open.
func (c *Config) StoreOptions() store.Config {
	return store.Config{
		Driver:      c.Store.Driver,
		Path:        c.Store.Path,
		RedisAddr:   c.Store.RedisAddr,
		RedisPrefix: c.Store.RedisPrefix,
	}
}

// AdvisorOptions converts the advisor section for advisor.NewGemini.
func (c *Config) AdvisorOptions() advisor.Config {
	return advisor.Config{
		APIKey:  c.Advisor.APIKey,
		BaseURL: c.Advisor.BaseURL,
		Model:   c.Advisor.Model,
		Timeout: c.Advisor.Timeout,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
