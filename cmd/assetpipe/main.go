package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/assetpipe/internal/config"
	"github.com/aristath/assetpipe/internal/devserver"
	"github.com/aristath/assetpipe/internal/events"
	"github.com/aristath/assetpipe/internal/logging"
	"github.com/aristath/assetpipe/internal/notify"
	"github.com/aristath/assetpipe/internal/orchestrator"
	"github.com/aristath/assetpipe/internal/persistence"
	"github.com/aristath/assetpipe/internal/resilience"
	"github.com/aristath/assetpipe/internal/tasks"
	"github.com/aristath/assetpipe/internal/toolchain"
	"github.com/aristath/assetpipe/internal/watch"
)

// errBuildFailed makes the process exit non-zero without printing again.
var errBuildFailed = errors.New("build failed")

func main() {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errBuildFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
	noNotify   bool
	port       int
	tui        bool
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "assetpipe",
		Short:         "Build front-end assets, watch sources and serve the result with live reload",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "project config file (default assetpipe.{json,toml,yaml} in the working directory)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&flags.noNotify, "no-notify", false, "disable desktop notifications")

	dev := newDevCmd(flags)
	root.AddCommand(dev, newBuildCmd(flags), newCleanCmd(flags), newHistoryCmd(flags), newConfigCmd(flags))

	// Bare "assetpipe" is "assetpipe dev".
	root.Flags().AddFlagSet(dev.Flags())
	root.RunE = dev.RunE

	return root
}

// loadConfig loads the layered config and applies command-line overrides.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadDefault(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.noNotify {
		cfg.Notify.Desktop = false
	}
	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		cfg.Server.Port = flags.port
	}
	return cfg, nil
}

// app holds everything a pipeline command wires together.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pm     *toolchain.ProcessManager
	bus    *events.EventBus
	store  persistence.Store
	runner *orchestrator.Runner
	logOut io.Closer
}

type appOptions struct {
	serve bool // wire the dev server and watcher
	tui   bool // keep the terminal free for the dashboard
}

func newApp(ctx context.Context, cfg *config.Config, out io.Writer, opts appOptions) (*app, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, pm: toolchain.NewProcessManager(), bus: events.NewEventBus()}

	if opts.tui {
		// Logs would tear the dashboard; send them to a file instead.
		logPath, err := xdg.StateFile(filepath.Join("assetpipe", "assetpipe.log"))
		if err != nil {
			return nil, fmt.Errorf("resolving log file: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		a.logOut = f
		a.logger = logging.New(f, level, false)
	} else {
		a.logger = logging.Default(level)
	}

	tools, err := toolchain.New(cfg, a.pm)
	if err != nil {
		a.Close()
		return nil, err
	}
	for _, bin := range tools.Missing {
		a.logger.Warn().Str("tool", bin).Msg("external tool not found on PATH")
	}

	env := &tasks.Env{
		Config: cfg,
		Tools:  tools,
		Logger: a.logger,
		Retry:  resilience.DefaultRetryConfig(),
		Output: orchestrator.OutputTo(a.bus),
	}
	var taskList []tasks.Task
	for _, id := range tasks.BuildOrder {
		t, err := tasks.New(id, env)
		if err != nil {
			a.Close()
			return nil, err
		}
		taskList = append(taskList, t)
	}

	if cfg.History.Enabled {
		store, err := persistence.NewSQLiteStore(ctx, historyPath(cfg))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening build history: %w", err)
		}
		a.store = store
	}

	rc := orchestrator.Config{
		Config:   cfg,
		Tasks:    taskList,
		Bus:      a.bus,
		Store:    a.store,
		Reporter: newReporter(cfg, out, opts.tui, a.logger),
		Logger:   a.logger,
	}
	if opts.serve {
		rc.Server = devserver.New(devserver.Options{
			Root:   cfg.Paths.DistBase,
			Addr:   net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Inject: !cfg.Server.DisableInject,
			Logger: a.logger,
		})
		rc.Source = watch.NewFSNotifySource(a.logger)
	}

	a.runner, err = orchestrator.NewRunner(rc)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newReporter(cfg *config.Config, out io.Writer, tui bool, logger zerolog.Logger) *notify.Reporter {
	var console, desktop notify.Sink
	if !tui {
		console = notify.NewConsoleSink(out)
	}
	if cfg.Notify.Desktop {
		breakers := resilience.NewCircuitBreakerRegistry(logger)
		d, err := notify.NewDesktopSink(cfg.Notify.Command, breakers.Get("desktop-notify"))
		switch {
		case err == nil:
			desktop = d
		case errors.Is(err, notify.ErrNoNotifier):
			logger.Debug().Err(err).Msg("desktop notifications unavailable")
		default:
			logger.Warn().Err(err).Msg("desktop notifications disabled")
		}
	}
	return notify.NewReporter(console, desktop, logger)
}

// historyPath resolves the history database. Relative paths are taken as-is
// (relative to the working directory); an empty path uses the XDG data dir.
func historyPath(cfg *config.Config) string {
	if cfg.History.Path != "" {
		return cfg.History.Path
	}
	return filepath.Join(xdg.DataHome, "assetpipe", "history.db")
}

// Close kills tracked subprocesses and releases the history store.
func (a *app) Close() {
	if err := a.pm.KillAll(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to kill subprocesses")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close history store")
		}
	}
	if a.logOut != nil {
		a.logOut.Close()
	}
}
