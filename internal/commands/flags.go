package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hiroki-koketsu/focusflow/internal/config"
	"github.com/hiroki-koketsu/focusflow/internal/repository"
	"github.com/hiroki-koketsu/focusflow/internal/store"
)

// Flags holds the global flag values.
type Flags struct {
	LogLevel    string
	ConfigPath  string
	StoreDriver string
	StorePath   string
	RedisAddr   string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config

	// Logger writes JSON to stderr; serve replaces it when export is on.
	Logger *slog.Logger
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "focusflow", "config.yaml")
}

// applyOverrides copies explicitly given flags over the loaded config.
func (f *Flags) applyOverrides(cfg *config.Config) {
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.StoreDriver != "" {
		cfg.Store.Driver = f.StoreDriver
	}
	if f.StorePath != "" {
		cfg.Store.Path = f.StorePath
	}
	if f.RedisAddr != "" {
		cfg.Store.RedisAddr = f.RedisAddr
	}
}

// Runtime is an open store with the task list loaded from it.
type Runtime struct {
	Store    store.Store
	Tasks    *repository.TaskRepository
	Location *time.Location
}

// Open connects to the configured store and loads the saved tasks.
func (f *Flags) Open(ctx context.Context, logger *slog.Logger, opts ...repository.Option) (*Runtime, error) {
	loc, err := f.Config.Location()
	if err != nil {
		return nil, fmt.Errorf("load time zone: %w", err)
	}

	st, err := store.Open(ctx, f.Config.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tasks := repository.NewTaskRepository(st, logger.With(slog.String("component", "repository")), opts...)
	if _, err := tasks.Load(ctx); err != nil {
		return nil, errors.Join(err, st.Close())
	}

	return &Runtime{Store: st, Tasks: tasks, Location: loc}, nil
}

// Close releases the store.
func (r *Runtime) Close() error {
	return r.Store.Close()
}
