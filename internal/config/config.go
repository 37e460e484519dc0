// Package config defines the immutable application configuration.
//
// A Config value is assembled once at startup from defaults, an optional
// YAML file, environment variables (MSGVAULT_*), and CLI flag overrides,
// then threaded into constructors. Nothing mutates it afterwards.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yndnr/msgvault-go/internal/bulk"
	"github.com/yndnr/msgvault-go/internal/infra/confloader"
	"github.com/yndnr/msgvault-go/internal/pipeline"
	"github.com/yndnr/msgvault-go/internal/store"
)

// DefaultDataDir is the default root for store and staging directories.
const DefaultDataDir = "data"

// Logging configures the slog-based logger.
type Logging struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `koanf:"level"`

	// Format is the output format (json, text).
	Format string `koanf:"format"`

	// AddSource adds source file information to log entries.
	AddSource bool `koanf:"add_source"`
}

// Config is the complete application configuration.
type Config struct {
	// Store configures the badger record store.
	Store store.Config `koanf:"store"`

	// StagingDir is the directory for encrypted staged snapshots.
	StagingDir string `koanf:"staging_dir"`

	// Pipeline tunes the import worker pool.
	Pipeline pipeline.Tuning `koanf:"pipeline"`

	// BulkBudget bounds the estimated decrypted bytes held in staging
	// ahead of the consumer during bulk runs.
	BulkBudget int64 `koanf:"bulk_budget"`

	// Logging configures the logger.
	Logging Logging `koanf:"logging"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Store:      store.DefaultConfig(filepath.Join(DefaultDataDir, "db")),
		StagingDir: filepath.Join(DefaultDataDir, "staging"),
		Pipeline:   pipeline.DefaultTuning(),
		BulkBudget: bulk.DefaultBudget,
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file, environment
// variables, and an optional override map (highest priority, used for CLI
// flags). filePath may be empty.
func Load(filePath string, overrides map[string]any) (Config, error) {
	cfg := Default()

	opts := []confloader.Option{}
	if filePath != "" {
		opts = append(opts, confloader.WithConfigFile(filePath))
	}
	loader := confloader.NewLoader(opts...)

	if err := loader.Load(&cfg); err != nil {
		return Config{}, err
	}
	if len(overrides) > 0 {
		if err := loader.LoadMap(overrides); err != nil {
			return Config{}, err
		}
		if err := loader.Unmarshal(&cfg); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c Config) Validate() error {
	if c.Store.Dir == "" {
		return fmt.Errorf("config: store.dir is required")
	}
	if c.StagingDir == "" {
		return fmt.Errorf("config: staging_dir is required")
	}
	if c.Store.Dir == c.StagingDir {
		return fmt.Errorf("config: store.dir and staging_dir must differ")
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("config: pipeline.workers must not be negative")
	}
	if c.BulkBudget < 0 {
		return fmt.Errorf("config: bulk_budget must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text", "console":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}
	return nil
}

// Tuning returns the pipeline tuning with the worker count resolved: zero
// selects an automatic count from the machine's CPUs, anything else is
// clamped to the supported range.
func (c Config) Tuning() pipeline.Tuning {
	t := c.Pipeline
	t.Workers = pipeline.ResolveWorkers(t.Workers)
	return t
}
