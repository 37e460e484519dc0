package command

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/msgvault-go/internal/cli/output"
	"github.com/yndnr/msgvault-go/internal/config"
	"github.com/yndnr/msgvault-go/internal/core/domain"
	"github.com/yndnr/msgvault-go/internal/infra/buildinfo"
	"github.com/yndnr/msgvault-go/internal/infra/confloader"
	"github.com/yndnr/msgvault-go/internal/infra/shutdown"
	"github.com/yndnr/msgvault-go/internal/pipeline"
	"github.com/yndnr/msgvault-go/internal/store"
	"github.com/yndnr/msgvault-go/internal/telemetry/logger"
)

const shutdownKey = "shutdown"

// App creates the CLI application. The shutdown handler owns resource
// cleanup: the store opened by a command is closed when the handler closes.
func App(h *shutdown.Handler) *cli.App {
	app := &cli.App{
		Name:    "msgvault",
		Usage:   "import and query encrypted message-history snapshots",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ImportCommand(),
			BulkCommand(),
			ListCommand(),
			RecordsCommand(),
			SearchCommand(),
			DeleteCommand(),
			ClearCommand(),
			ConfigCommand(),
		},
		Metadata: map[string]any{shutdownKey: h},
	}
	return app
}

// globalFlags returns the flags shared by all commands.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML configuration file",
			EnvVars: []string{"MSGVAULT_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Aliases: []string{"d"},
			Usage:   "Data directory (store and staging live under it)",
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			Usage:   "Worker count for batch writes (0 = auto)",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Machine-readable JSON output",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
	}
}

// appEnv carries the per-invocation dependencies a command needs.
type appEnv struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	registry *prometheus.Registry
	jsonOut  bool
}

// setup loads configuration, builds the logger, and opens the record store.
// The store is closed by the shutdown handler, not by the caller.
func setup(c *cli.Context) (*appEnv, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if c.Bool("verbose") {
		level = "debug"
	}
	log := logger.New(logger.Config{
		Level:     level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})

	st, err := store.Open(cfg.Store, log)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	st.RegisterMetrics(registry)

	if h, ok := c.App.Metadata[shutdownKey].(*shutdown.Handler); ok && h != nil {
		h.OnShutdown(func(context.Context) error { return st.Close() })
	}

	env := &appEnv{
		cfg:      cfg,
		logger:   log,
		store:    st,
		registry: registry,
		jsonOut:  c.Bool("json"),
	}
	watchConfig(c, env)
	return env, nil
}

// watchConfig follows the configuration file for the lifetime of the command
// and applies logging-level changes to the running process. Long bulk runs
// can be switched to debug and back without a restart. Other settings stay
// fixed once a command has started.
func watchConfig(c *cli.Context, env *appEnv) {
	path := c.String("config")
	if path == "" || c.Bool("verbose") {
		return
	}

	w, err := confloader.NewWatcher(env.logger)
	if err != nil {
		env.logger.Warn("configuration watch unavailable", "error", err)
		return
	}
	w.OnChange(func(changed string) {
		if filepath.Base(changed) != filepath.Base(path) {
			return
		}
		reloadLogging(path, env.logger)
	})
	if err := w.Watch(path); err != nil {
		env.logger.Warn("configuration watch unavailable", "error", err)
		w.Stop()
		return
	}
	w.StartAsync()

	if h, ok := c.App.Metadata[shutdownKey].(*shutdown.Handler); ok && h != nil {
		h.OnShutdown(func(context.Context) error { return w.Stop() })
	}
}

// reloadLogging re-reads the configuration file and applies its logging
// level. A file that fails to load or validate leaves the level untouched.
func reloadLogging(path string, log *slog.Logger) {
	cfg, err := config.Load(path, nil)
	if err != nil {
		log.Warn("configuration reload failed", "path", path, "error", err)
		return
	}
	if cfg.Logging.Level == logger.GetLevel() {
		return
	}
	logger.SetLevel(cfg.Logging.Level)
	log.Info("logging level changed", "level", cfg.Logging.Level)
}

// loadConfig assembles the configuration, mapping explicitly set CLI flags
// onto their config keys.
func loadConfig(c *cli.Context) (config.Config, error) {
	overrides := map[string]any{}
	if c.IsSet("data-dir") {
		dir := c.String("data-dir")
		overrides["store.dir"] = filepath.Join(dir, "db")
		overrides["staging_dir"] = filepath.Join(dir, "staging")
	}
	if c.IsSet("workers") {
		overrides["pipeline.workers"] = c.Int("workers")
	}
	return config.Load(c.String("config"), overrides)
}

// importer builds the single-snapshot importer with metrics registered.
func (e *appEnv) importer() *pipeline.Importer {
	imp := pipeline.NewImporter(e.store, e.cfg.Tuning(), e.logger)
	return imp.WithMetrics(pipeline.NewMetrics(e.registry))
}

// progressSink returns the progress callback and a flush function.
// Interactive runs get the progress bar on stderr; --json switches to JSON
// lines on stdout.
func (e *appEnv) progressSink(c *cli.Context) (domain.ProgressFunc, func()) {
	if e.jsonOut {
		el := output.NewEventLogger(c.App.Writer)
		return el.Handle, func() {}
	}
	bar := output.NewProgressBar(os.Stderr)
	return bar.Handle, bar.Finish
}
