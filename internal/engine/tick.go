// Package engine provides the pulse loop and the simulation driver that runs
// a hydra colony for a fixed number of pulses.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Yield intervals: how many top-level pulses run between checkpoints.
const (
	CoreYieldEvery     = 100
	UltimateYieldEvery = 200
)

// Engine drives pulses forward.
type Engine struct {
	Pulse      uint64        // Pulses completed (monotonic)
	YieldEvery uint64        // Checkpoint interval; 0 disables checkpoints
	YieldPause time.Duration // Optional pause at each checkpoint
	Running    bool

	// Callbacks, populated during setup.
	OnPulse func(pulse uint64) // Every pulse
	OnYield func(pulse uint64) // Every YieldEvery pulses
}

// NewEngine creates an engine with the given checkpoint interval.
func NewEngine(yieldEvery uint64) *Engine {
	return &Engine{YieldEvery: yieldEvery}
}

// Run executes pulses until Pulse reaches total. Cancellation is only
// observed at checkpoints and before the first pulse.
func (e *Engine) Run(ctx context.Context, total uint64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("engine not started: %w", err)
	}

	e.Running = true
	defer func() { e.Running = false }()
	slog.Debug("pulse engine started", "pulse", e.Pulse, "total", total, "yield_every", e.YieldEvery)

	for e.Pulse < total {
		e.step()

		if e.YieldEvery == 0 || e.Pulse%e.YieldEvery != 0 {
			continue
		}
		if e.OnYield != nil {
			e.OnYield(e.Pulse)
		}
		if err := e.yield(ctx); err != nil {
			return fmt.Errorf("engine stopped at pulse %d: %w", e.Pulse, err)
		}
	}

	slog.Debug("pulse engine finished", "pulse", e.Pulse)
	return nil
}

// step advances the simulation by one pulse.
func (e *Engine) step() {
	e.Pulse++
	if e.OnPulse != nil {
		e.OnPulse(e.Pulse)
	}
}

func (e *Engine) yield(ctx context.Context) error {
	if e.YieldPause <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(e.YieldPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
