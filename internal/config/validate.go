package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/hiroki-koketsu/focusflow/internal/store"
)

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("server_port", c.ServerPort, validPort),
		criterio.Run("log_level", c.LogLevel, validLevel),
		criterio.Run("time_zone", c.TimeZone, validZone),
		c.validateStore(),
		c.validateAdvisor(),
	)
}

func (c *Config) validateStore() error {
	var errs criterio.FieldErrorsBuilder

	switch c.Store.Driver {
	case store.DriverMemory:
	case store.DriverSQLite:
		if c.Store.Path == "" {
			errs = errs.Append("store.path", errors.New("required for the sqlite driver"))
		}
	case store.DriverRedis:
		if c.Store.RedisAddr == "" {
			errs = errs.Append("store.redis_addr", errors.New("required for the redis driver"))
		}
	default:
		errs = errs.Append("store.driver", fmt.Errorf("unknown driver %q (want memory, sqlite or redis)", c.Store.Driver))
	}

	return errs.ToError()
}

func (c *Config) validateAdvisor() error {
	var errs criterio.FieldErrorsBuilder
	if c.Advisor.Timeout <= 0 {
		errs = errs.Append("advisor.timeout", errors.New("must be positive"))
	}
	if c.Advisor.Model == "" {
		errs = errs.Append("advisor.model", errors.New("required"))
	}
	return errs.ToError()
}

func validPort(s string) error {
	port, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("out of range: %d", port)
	}
	return nil
}

func validLevel(s string) error {
	if s == "" {
		return nil
	}
	var level slog.Level
	return level.UnmarshalText([]byte(s))
}

func validZone(s string) error {
	if s == "" || strings.EqualFold(s, "local") {
		return nil
	}
	if _, err := time.LoadLocation(s); err != nil {
		return fmt.Errorf("unknown time zone %q", s)
	}
	return nil
}
