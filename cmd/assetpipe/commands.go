package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aristath/assetpipe/internal/config"
	"github.com/aristath/assetpipe/internal/events"
	"github.com/aristath/assetpipe/internal/orchestrator"
	"github.com/aristath/assetpipe/internal/persistence"
	"github.com/aristath/assetpipe/internal/tasks"
	"github.com/aristath/assetpipe/internal/tui"
)

func newDevCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Clean and build everything, then watch sources and serve the dist tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, cmd.OutOrStdout(), appOptions{serve: true, tui: flags.tui})
			if err != nil {
				return err
			}
			defer a.Close()

			if flags.tui {
				return runWithTUI(cmd.Context(), a, flags)
			}
			return a.runner.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&flags.port, "port", 0, "dev server port (overrides server.port)")
	cmd.Flags().BoolVar(&flags.tui, "tui", false, "show the terminal dashboard")
	return cmd
}

// runWithTUI runs the pipeline under the dashboard. Quitting the dashboard
// cancels the pipeline; the pipeline stopping closes the bus, which quits
// the dashboard.
func runWithTUI(ctx context.Context, a *app, flags *globalFlags) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	projectPath := flags.configPath
	if projectPath == "" {
		projectPath = "assetpipe.json"
	}
	model := tui.New(a.bus, tui.Options{
		Config:  a.cfg,
		TaskIDs: tasks.BuildOrder,
		Rebuild: func(ctx context.Context) error {
			_, err := a.runner.Rebuild(ctx)
			return err
		},
		GlobalPath:  config.GlobalPath(),
		ProjectPath: projectPath,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())

	runErr := make(chan error, 1)
	go func() { runErr <- a.runner.Run(ctx) }()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, tuiErr := p.Run()
	cancel()

	select {
	case err := <-runErr:
		if err != nil {
			return err
		}
	case <-time.After(10 * time.Second):
		return errors.New("shutdown timeout exceeded")
	}
	return tuiErr
}

func newBuildCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Clean and build every category once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, cmd.OutOrStdout(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.runner.Build(cmd.Context())
			if err != nil {
				return err
			}
			printResults(cmd, results)
			if orchestrator.AnyFailed(results) {
				return errBuildFailed
			}
			return nil
		},
	}
}

func newCleanCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the configured clean targets from the dist tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, cmd.OutOrStdout(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.runner.RunSequence(cmd.Context(), events.PhaseBootstrap, events.TriggerManual, tasks.IDClean)
			if err != nil {
				return err
			}
			printResults(cmd, results)
			if orchestrator.AnyFailed(results) {
				return errBuildFailed
			}
			return nil
		},
	}
}

func printResults(cmd *cobra.Command, results []orchestrator.TaskResult) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, r := range results {
		detail := r.Result.Notice
		if r.Err != nil {
			detail = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.TaskID, r.Status, r.Duration.Round(time.Millisecond), detail)
	}
	w.Flush()
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var (
		limit int
		runID string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent build runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			path := historyPath(cfg)
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), "No build history yet.")
				return nil
			}
			store, err := persistence.NewSQLiteStore(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("opening build history: %w", err)
			}
			defer store.Close()

			if runID != "" {
				return printTaskRuns(cmd, store, runID)
			}
			return printRuns(cmd, store, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "show the tasks of one run")
	return cmd
}

func printRuns(cmd *cobra.Command, store persistence.Store, limit int) error {
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No build history yet.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tPHASE\tTRIGGER\tTASKS\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			r.ID, humanize.Time(r.StartedAt), r.Phase, r.Trigger, r.Tasks, r.Failed)
	}
	return w.Flush()
}

func printTaskRuns(cmd *cobra.Command, store persistence.Store, runID string) error {
	trs, err := store.TaskRuns(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(trs) == 0 {
		return fmt.Errorf("no tasks recorded for run %s", runID)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tSTATUS\tDURATION\tARTIFACTS\tMESSAGE")
	for _, tr := range trs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			tr.TaskID, tr.Status, tr.Duration, len(tr.Artifacts), tr.Message)
	}
	return w.Flush()
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration files",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration (default assetpipe.json)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "assetpipe.json"
			if len(args) == 1 {
				path = args[0]
			} else if flags.configPath != "" {
				path = flags.configPath
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	var format string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg, "."+strings.TrimPrefix(format, "."))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	showCmd.Flags().StringVar(&format, "format", "json", "output format: json, toml or yaml")

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
