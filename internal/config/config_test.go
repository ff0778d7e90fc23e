package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"SERVER_PORT", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME", "ENVIRONMENT",
	"OTEL_ENABLED", "LOG_LEVEL", "STORE_DRIVER", "STORE_PATH", "REDIS_ADDR", "REDIS_PREFIX",
	"GEMINI_API_KEY", "API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL", "ADVISOR_TIMEOUT", "TZ_NAME",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "focusflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, filepath.Join(os.Getenv("XDG_DATA_HOME"), "focusflow", "focusflow.db"), cfg.Store.Path)
	assert.Equal(t, 30*time.Second, cfg.Advisor.Timeout)
	assert.Empty(t, cfg.Advisor.APIKey)
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
server_port: "9090"
otel_enabled: true
log_level: debug
time_zone: Asia/Tokyo
store:
  driver: redis
  redis_addr: cache:6379
advisor:
  model: other-model
  timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.True(t, cfg.OTelEnabled)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	assert.Equal(t, "focusflow:", cfg.Store.RedisPrefix, "unset keys keep defaults")
	assert.Equal(t, "other-model", cfg.Advisor.Model)
	assert.Equal(t, 5*time.Second, cfg.Advisor.Timeout)
	assert.Equal(t, "Asia/Tokyo", cfg.TimeZone)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "server_port: \"9090\"\nstore:\n  driver: redis\n")

	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("ADVISOR_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.ServerPort)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.True(t, cfg.OTelEnabled)
	assert.Equal(t, 2*time.Second, cfg.Advisor.Timeout)
}

func TestLoad_APIKeyFallback(t *testing.T) {
	clearEnv(t)

	t.Setenv("API_KEY", "legacy")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.Advisor.APIKey)

	t.Setenv("GEMINI_API_KEY", "preferred")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "preferred", cfg.Advisor.APIKey)
}

func TestLoad_BadInput(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(writeFile(t, "store: [unclosed"))
		require.Error(t, err)
	})
	t.Run("bool", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OTEL_ENABLED", "sometimes")
		_, err := Load("")
		require.ErrorContains(t, err, "OTEL_ENABLED")
	})
	t.Run("duration", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ADVISOR_TIMEOUT", "soon")
		_, err := Load("")
		require.ErrorContains(t, err, "ADVISOR_TIMEOUT")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "port not numeric", mutate: func(c *Config) { c.ServerPort = "http" }, field: "server_port"},
		{name: "port out of range", mutate: func(c *Config) { c.ServerPort = "70000" }, field: "server_port"},
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "loud" }, field: "log_level"},
		{name: "time zone", mutate: func(c *Config) { c.TimeZone = "Mars/Olympus" }, field: "time_zone"},
		{name: "driver", mutate: func(c *Config) { c.Store.Driver = "postgres" }, field: "store.driver"},
		{name: "sqlite path", mutate: func(c *Config) { c.Store.Path = "" }, field: "store.path"},
		{
			name:   "redis addr",
			mutate: func(c *Config) { c.Store.Driver = "redis"; c.Store.RedisAddr = "" },
			field:  "store.redis_addr",
		},
		{name: "timeout", mutate: func(c *Config) { c.Advisor.Timeout = 0 }, field: "advisor.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var fieldErrs criterio.FieldErrors
			require.ErrorAs(t, err, &fieldErrs)
			require.Len(t, fieldErrs, 1)
			assert.Equal(t, tt.field, fieldErrs[0].Field)
		})
	}
}

func TestLevelAndLocation(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	assert.Equal(t, "WARN", cfg.Level().String())

	cfg.LogLevel = "garbage"
	assert.Equal(t, "INFO", cfg.Level().String())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.TimeZone = "UTC"
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}
