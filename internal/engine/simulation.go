// Simulation ties a colony, its root hydra and the pulse engine together and
// produces the final report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/seraphin/internal/consensus"
	"github.com/talgya/seraphin/internal/entropy"
	"github.com/talgya/seraphin/internal/hydra"
	"github.com/talgya/seraphin/internal/ledger"
	"github.com/talgya/seraphin/internal/quantum"
)

// Options configures one run.
type Options struct {
	Model    hydra.Model
	Pulses   int
	MaxDepth int
	Forced   bool

	// Seed makes the run reproducible; 0 uses crypto randomness.
	Seed int64
	// Budget overrides the spawn budget; 0 keeps the model default.
	Budget int
	// Backend names the quantum optimizer ("fallback" or "sampler").
	Backend string
	Shots   int

	YieldPause time.Duration
	// ProgressEvery reports progress every N pulses; 0 reports at checkpoints only.
	ProgressEvery int
	OnProgress    func(Progress)
	// OnPulse receives the root's summary after every top-level pulse.
	OnPulse func(pulse int, r hydra.PulseResult)
}

// Progress is a point-in-time view of a running simulation.
type Progress struct {
	Pulse      int `json:"pulse"`
	Pulses     int `json:"pulses"`
	RootEnergy int `json:"root_energy"`
	Clones     int `json:"clones"`
	MaxDepth   int `json:"max_depth"`
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.Pulses < 1 {
		return fmt.Errorf("pulses must be positive, got %d", o.Pulses)
	}
	if o.MaxDepth < 0 {
		return fmt.Errorf("max depth must be non-negative, got %d", o.MaxDepth)
	}
	if o.Model != hydra.ModelCore && o.Model != hydra.ModelUltimate {
		return fmt.Errorf("unknown model %v", o.Model)
	}
	if o.Budget < hydra.Unbounded {
		return fmt.Errorf("budget must be %d (unbounded), 0 (default) or positive, got %d", hydra.Unbounded, o.Budget)
	}
	return nil
}

// Simulation holds the complete state of one run.
type Simulation struct {
	ID      uuid.UUID
	Options Options
	Colony  *hydra.Colony
	Root    *hydra.Hydra
	Engine  *Engine

	StartedAt  time.Time
	FinishedAt time.Time

	// Last is the root's most recent pulse summary.
	Last hydra.PulseResult
}

// NewSimulation builds a fresh colony with a new ledger, a reset spawn budget
// and a root hydra at depth 0 with full energy.
func NewSimulation(opts Options) (*Simulation, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	src := entropy.New(opts.Seed)
	opt := quantum.New(opts.Backend, src, opts.Shots)
	colony := hydra.NewColony(hydra.ColonyConfig{
		Model:  opts.Model,
		Forced: opts.Forced,
		Budget: opts.Budget,
	}, src, opt)

	yieldEvery := uint64(UltimateYieldEvery)
	if opts.Model == hydra.ModelCore {
		yieldEvery = CoreYieldEvery
	}
	eng := NewEngine(yieldEvery)
	eng.YieldPause = opts.YieldPause

	sim := &Simulation{
		ID:      uuid.New(),
		Options: opts,
		Colony:  colony,
		Root:    colony.NewRoot(opts.MaxDepth),
		Engine:  eng,
	}
	eng.OnPulse = sim.pulse
	eng.OnYield = sim.checkpoint
	return sim, nil
}

func (s *Simulation) pulse(p uint64) {
	s.Last = s.Colony.Pulse(s.Root.ID)
	slog.Debug("pulse", "pulse", p, "result", s.Last.String())
	if s.Options.OnPulse != nil {
		s.Options.OnPulse(int(p), s.Last)
	}

	if s.Options.ProgressEvery > 0 && int(p)%s.Options.ProgressEvery == 0 {
		s.report()
	}
}

func (s *Simulation) checkpoint(p uint64) {
	slog.Info("pulse checkpoint",
		"run", s.ID,
		"pulse", p,
		"root_energy", s.Root.Energy,
		"clones", s.Colony.Ledger.CloneCount(),
		"max_depth", s.Colony.Ledger.MaxDepthReached(),
		"budget", s.Colony.Budget.Remaining(),
	)
	if s.Options.ProgressEvery == 0 {
		s.report()
	}
}

func (s *Simulation) report() {
	if s.Options.OnProgress != nil {
		s.Options.OnProgress(s.Progress())
	}
}

// Progress returns the current progress view.
func (s *Simulation) Progress() Progress {
	return Progress{
		Pulse:      int(s.Engine.Pulse),
		Pulses:     s.Options.Pulses,
		RootEnergy: s.Root.Energy,
		Clones:     s.Colony.Ledger.CloneCount(),
		MaxDepth:   s.Colony.Ledger.MaxDepthReached(),
	}
}

// Run drives the configured number of pulses on the root. A cancelled context
// stops the run at the next checkpoint; the partial report stays available.
func (s *Simulation) Run(ctx context.Context) error {
	s.StartedAt = time.Now().UTC()
	slog.Info("simulation started",
		"run", s.ID,
		"model", s.Options.Model,
		"pulses", s.Options.Pulses,
		"max_depth", s.Options.MaxDepth,
		"forced", s.Options.Forced,
		"optimizer", s.Colony.Optimizer.Name(),
	)

	err := s.Engine.Run(ctx, uint64(s.Options.Pulses))
	s.FinishedAt = time.Now().UTC()
	s.report()

	if err != nil {
		return fmt.Errorf("run %s: %w", s.ID, err)
	}
	slog.Info("simulation finished",
		"run", s.ID,
		"clones", s.Colony.Ledger.CloneCount(),
		"max_depth", s.Colony.Ledger.MaxDepthReached(),
		"elapsed", s.FinishedAt.Sub(s.StartedAt),
	)
	return nil
}

// Report is the read-only result of a run, consumed by the dashboard,
// renderer and store.
type Report struct {
	RunID           string    `json:"run_id"`
	Model           string    `json:"model"`
	Pulses          int       `json:"pulses"`
	PulsesCompleted int       `json:"pulses_completed"`
	MaxDepth        int       `json:"max_depth"`
	Forced          bool      `json:"forced"`
	Seed            int64     `json:"seed"`
	Optimizer       string    `json:"optimizer"`
	FinalEnergy     int       `json:"final_energy"`
	Decision        string    `json:"decision,omitempty"`
	HostCPUs        int       `json:"host_cpus,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`

	ledger.Snapshot
}

// Report snapshots the ledger and the run metadata.
func (s *Simulation) Report() Report {
	snap := s.Colony.Ledger.Snapshot()
	decision, _ := consensus.Decide(snap.Votes)
	return Report{
		RunID:           s.ID.String(),
		Model:           s.Colony.Model().String(),
		Pulses:          s.Options.Pulses,
		PulsesCompleted: int(s.Engine.Pulse),
		MaxDepth:        s.Options.MaxDepth,
		Forced:          s.Colony.Forced(),
		Seed:            s.Options.Seed,
		Optimizer:       s.Colony.Optimizer.Name(),
		FinalEnergy:     s.Root.Energy,
		Decision:        decision,
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
		Snapshot:        snap,
	}
}

// RunSimulation builds, runs and reports in one call. On cancellation the
// partial report is returned together with the error.
func RunSimulation(ctx context.Context, opts Options) (Report, error) {
	sim, err := NewSimulation(opts)
	if err != nil {
		return Report{}, err
	}
	if err := sim.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return sim.Report(), err
		}
		return Report{}, err
	}
	return sim.Report(), nil
}
