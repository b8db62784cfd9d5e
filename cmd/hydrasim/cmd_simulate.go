package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/cobra"

	"github.com/talgya/seraphin/internal/config"
	"github.com/talgya/seraphin/internal/dashboard"
	"github.com/talgya/seraphin/internal/engine"
	"github.com/talgya/seraphin/internal/hydra"
	"github.com/talgya/seraphin/internal/persistence"
	"github.com/talgya/seraphin/internal/render"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a hydra simulation",
		Long: `Run a simulation from a fresh root hydra and print the final dashboard.

Flags override the config file, which overrides the built-in defaults.
Interrupting the run (ctrl+c) stops it at the next checkpoint; the partial
report is still printed and stored.`,
		RunE: runSimulate,
	}

	cmd.Flags().String("model", "", "Rule set: core or ultimate")
	cmd.Flags().Int("pulses", 0, "Number of root pulses")
	cmd.Flags().Int("depth", 0, "Maximum hydra depth")
	cmd.Flags().Bool("quantum-force", false, "Route deep and complex hydras through the quantum optimizer")
	cmd.Flags().Int64("seed", 0, "Random seed (0 = crypto randomness)")
	cmd.Flags().Int("budget", 0, "Spawn budget (0 = model default, -1 = unbounded)")
	cmd.Flags().String("backend", "", "Quantum optimizer: fallback or sampler")
	cmd.Flags().Int("shots", 0, "Sampler measurements per optimization")
	cmd.Flags().String("db", "", "SQLite run store path")
	cmd.Flags().Bool("no-store", false, "Do not store the report")
	cmd.Flags().Bool("render", false, "Write the Julia hydra PNG")
	cmd.Flags().String("render-dir", "", "Directory for rendered images")
	cmd.Flags().Bool("tui", false, "Show a live progress view instead of the pulse log")
	cmd.Flags().Bool("quiet", false, "Suppress the per-pulse log")
	cmd.Flags().Duration("yield-pause", 0, "Pause at each checkpoint")
	return cmd
}

// applySimulateFlags copies explicitly set flags over the config.
func applySimulateFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("model") {
		cfg.Simulation.Model, _ = f.GetString("model")
	}
	if f.Changed("pulses") {
		cfg.Simulation.Pulses, _ = f.GetInt("pulses")
	}
	if f.Changed("depth") {
		cfg.Simulation.MaxDepth, _ = f.GetInt("depth")
	}
	if f.Changed("quantum-force") {
		cfg.Simulation.ForcedMode, _ = f.GetBool("quantum-force")
	}
	if f.Changed("seed") {
		cfg.Simulation.Seed, _ = f.GetInt64("seed")
	}
	if f.Changed("budget") {
		cfg.Simulation.Budget, _ = f.GetInt("budget")
	}
	if f.Changed("backend") {
		cfg.Simulation.Backend, _ = f.GetString("backend")
	}
	if f.Changed("shots") {
		cfg.Simulation.Shots, _ = f.GetInt("shots")
	}
	if f.Changed("db") {
		cfg.Storage.Path, _ = f.GetString("db")
	}
	if noStore, _ := f.GetBool("no-store"); noStore {
		cfg.Storage.Path = ""
	}
	if f.Changed("render") {
		cfg.Render.Enabled, _ = f.GetBool("render")
	}
	if f.Changed("render-dir") {
		cfg.Render.Dir, _ = f.GetString("render-dir")
	}
}

// engineOptions maps validated config onto run options.
func engineOptions(cfg *config.Config) (engine.Options, error) {
	model, err := hydra.ParseModel(cfg.Simulation.Model)
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Model:    model,
		Pulses:   cfg.Simulation.Pulses,
		MaxDepth: cfg.Simulation.MaxDepth,
		Forced:   cfg.Simulation.ForcedMode,
		Seed:     cfg.Simulation.Seed,
		Budget:   cfg.Simulation.Budget,
		Backend:  cfg.Simulation.Backend,
		Shots:    cfg.Simulation.Shots,
	}, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applySimulateFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts, err := engineOptions(cfg)
	if err != nil {
		return err
	}
	opts.YieldPause, _ = cmd.Flags().GetDuration("yield-pause")

	sim, err := engine.NewSimulation(opts)
	if err != nil {
		return err
	}

	hostCPUs, err := cpu.Counts(true)
	if err != nil {
		slog.Warn("host cpu count unavailable", "error", err)
	}
	slog.Info("run configured",
		"run", sim.ID,
		"model", opts.Model,
		"pulses", opts.Pulses,
		"max_depth", opts.MaxDepth,
		"forced", opts.Forced,
		"seed", opts.Seed,
		"host_cpus", hostCPUs,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	useTUI, _ := cmd.Flags().GetBool("tui")
	quiet, _ := cmd.Flags().GetBool("quiet")
	jsonOut, _ := cmd.Flags().GetBool("json")

	var runErr error
	if useTUI {
		runErr = runWithProgressView(ctx, stop, cmd, sim)
	} else {
		if !quiet && !jsonOut {
			fmt.Fprintln(out, dashboard.Banner(opts.Model, opts.Forced))
			sim.Options.OnPulse = pulseLogger(out, sim)
		}
		runErr = sim.Run(ctx)
	}

	if runErr != nil {
		if !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
			return runErr
		}
		slog.Warn("run interrupted", "run", sim.ID, "pulses_completed", sim.Engine.Pulse)
	}

	rep := sim.Report()
	rep.HostCPUs = hostCPUs

	if jsonOut {
		if err := writeJSON(out, rep); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, dashboard.Format(rep))
	}

	if err := storeReport(cfg.Storage.Path, rep); err != nil {
		return err
	}

	if cfg.Render.Enabled {
		path, err := render.Save(rep, renderOptions(cfg), cfg.Render.Dir, time.Now())
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		if !jsonOut {
			fmt.Fprintf(out, "\n%s\nJulia hydra written to %s\n", render.Title(rep), path)
		}
	}
	return nil
}

// pulseLogger prints one line per root pulse: the pulse summary in the core
// model, the colony status in the ultimate model.
func pulseLogger(out io.Writer, sim *engine.Simulation) func(int, hydra.PulseResult) {
	if sim.Options.Model == hydra.ModelCore {
		return func(p int, r hydra.PulseResult) {
			fmt.Fprintln(out, dashboard.PulseLine(p, r))
		}
	}
	return func(int, hydra.PulseResult) {
		fmt.Fprintln(out, dashboard.StatusLine(sim.Progress()))
	}
}

// runWithProgressView drives the simulation in the background while the
// progress view owns the terminal.
func runWithProgressView(ctx context.Context, stop context.CancelFunc, cmd *cobra.Command, sim *engine.Simulation) error {
	updates := make(chan tea.Msg, 64)
	sim.Options.OnProgress = dashboard.Feed(updates)
	sim.Options.ProgressEvery = max(1, sim.Options.Pulses/100)

	view := dashboard.NewProgressModel(sim.ID.String(), sim.Options.Model.String(), updates, stop)
	prog := tea.NewProgram(view,
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)

	runErr := make(chan error, 1)
	go func() {
		err := sim.Run(ctx)
		close(updates)
		runErr <- err
		prog.Send(dashboard.DoneMsg{Report: sim.Report(), Err: err})
	}()

	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		stop()
		<-runErr
		return fmt.Errorf("progress view: %w", err)
	}
	return <-runErr
}

// storeReport saves rep when a store path is configured.
func storeReport(path string, rep engine.Report) error {
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := persistence.Open(path)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer db.Close()

	if err := db.SaveReport(rep); err != nil {
		return fmt.Errorf("store run: %w", err)
	}
	slog.Info("run stored", "run", rep.RunID, "path", path)
	return nil
}
