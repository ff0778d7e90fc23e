// Package store provides the durable string key-value slot the task
// repository and the quote cache write to. Each Set fully overwrites the
// previous value under that key.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Store is a durable, string-valued, key-addressed store.
type Store interface {
	// Get returns the value under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set overwrites the value under key.
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Driver      string
	Path        string // sqlite database file
	RedisAddr   string
	RedisPrefix string
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite, "":
		return OpenSQLite(cfg.Path)
	case DriverRedis:
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// DefaultPath returns the sqlite file location under the XDG data directory.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "focusflow.db"
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "focusflow", "focusflow.db")
}
