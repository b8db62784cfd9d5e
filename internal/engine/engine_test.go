package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/seraphin/internal/hydra"
)

func TestEngine_RunCallsHooks(t *testing.T) {
	eng := NewEngine(10)
	var pulses, yields []uint64
	eng.OnPulse = func(p uint64) { pulses = append(pulses, p) }
	eng.OnYield = func(p uint64) { yields = append(yields, p) }

	require.NoError(t, eng.Run(context.Background(), 35))
	assert.Len(t, pulses, 35)
	assert.Equal(t, uint64(1), pulses[0])
	assert.Equal(t, []uint64{10, 20, 30}, yields)
	assert.Equal(t, uint64(35), eng.Pulse)
	assert.False(t, eng.Running)
}

func TestEngine_CancelAtCheckpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := NewEngine(5)
	eng.OnPulse = func(p uint64) {
		if p == 3 {
			cancel()
		}
	}

	err := eng.Run(ctx, 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, uint64(5), eng.Pulse, "cancellation is observed at the next checkpoint")
}

func TestEngine_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng := NewEngine(5)
	err := eng.Run(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, eng.Pulse)
}

func TestOptionsValidate(t *testing.T) {
	valid := Options{Model: hydra.ModelUltimate, Pulses: 1, MaxDepth: 0}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero pulses", func(o *Options) { o.Pulses = 0 }},
		{"negative depth", func(o *Options) { o.MaxDepth = -1 }},
		{"unknown model", func(o *Options) { o.Model = hydra.Model(9) }},
		{"bad budget", func(o *Options) { o.Budget = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid
			tt.mutate(&o)
			assert.Error(t, o.Validate())
			_, err := NewSimulation(o)
			assert.Error(t, err)
		})
	}
}

func TestRunSimulation_CoreWithoutDepth(t *testing.T) {
	rep, err := RunSimulation(context.Background(), Options{
		Model:    hydra.ModelCore,
		Pulses:   100,
		MaxDepth: 0,
		Seed:     1,
	})
	require.NoError(t, err)

	assert.Equal(t, "core", rep.Model)
	assert.Zero(t, rep.CloneCount)
	assert.Equal(t, 100, rep.ProfitCount)
	assert.Equal(t, 100, rep.EnergyLogLen)
	assert.Equal(t, 100, rep.PulsesCompleted)
	assert.GreaterOrEqual(t, rep.FinalEnergy, hydra.MinEnergy)
	assert.LessOrEqual(t, rep.FinalEnergy, hydra.MaxEnergy)
	assert.Empty(t, rep.Decision, "core model never votes")
	assert.NotEmpty(t, rep.RunID)
	assert.False(t, rep.FinishedAt.Before(rep.StartedAt))
}

func TestRunSimulation_BudgetOfOne(t *testing.T) {
	rep, err := RunSimulation(context.Background(), Options{
		Model:    hydra.ModelUltimate,
		Pulses:   1000,
		MaxDepth: 15,
		Budget:   1,
		Seed:     5,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, rep.CloneCount, 1)
}

func TestRunSimulation_UltimateDefaults(t *testing.T) {
	sim, err := NewSimulation(Options{Model: hydra.ModelUltimate, Pulses: 400, MaxDepth: 8, Seed: 77})
	require.NoError(t, err)
	assert.Equal(t, hydra.ModelUltimate, sim.Colony.Model())
	assert.False(t, sim.Colony.Forced())
	assert.Equal(t, hydra.DefaultBudget, sim.Colony.Budget.Remaining())
	assert.Equal(t, uint64(UltimateYieldEvery), sim.Engine.YieldEvery)
	assert.Equal(t, 0, sim.Root.Depth)
	assert.Equal(t, hydra.RootEnergy, sim.Root.Energy)
	assert.Equal(t, hydra.RootSpecialty, sim.Root.Specialty)

	var progress []Progress
	sim.Options.OnProgress = func(p Progress) { progress = append(progress, p) }

	require.NoError(t, sim.Run(context.Background()))
	rep := sim.Report()

	assert.LessOrEqual(t, rep.MaxDepthReached, 8)
	assert.LessOrEqual(t, rep.CloneCount, hydra.DefaultBudget)
	assert.Equal(t, hydra.DefaultBudget-rep.CloneCount, sim.Colony.Budget.Remaining())
	assert.Equal(t, []string{"Solana"}, rep.Chains)
	assert.Equal(t, "fallback", rep.Optimizer)

	// Two checkpoints plus the final report.
	require.Len(t, progress, 3)
	assert.Equal(t, 200, progress[0].Pulse)
	assert.Equal(t, 400, progress[2].Pulse)
}

func TestRunSimulation_CancelReturnsPartialReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rep, err := RunSimulation(ctx, Options{
		Model:      hydra.ModelCore,
		Pulses:     1000,
		MaxDepth:   3,
		Seed:       2,
		OnProgress: func(Progress) { cancel() },
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CoreYieldEvery, rep.PulsesCompleted)
	assert.GreaterOrEqual(t, rep.EnergyLogLen, CoreYieldEvery)
}

func TestRunSimulation_SamplerBackend(t *testing.T) {
	rep, err := RunSimulation(context.Background(), Options{
		Model:    hydra.ModelUltimate,
		Pulses:   50,
		MaxDepth: 8,
		Forced:   true,
		Backend:  "sampler",
		Shots:    32,
		Seed:     3,
	})
	require.NoError(t, err)
	assert.Equal(t, "sampler", rep.Optimizer)
	assert.True(t, rep.Forced)
	assert.Equal(t, "ultimate", rep.Model)
	assert.GreaterOrEqual(t, rep.ProfitCount, 50)
}

func TestSimulation_OnPulseSeesEveryRootPulse(t *testing.T) {
	sim, err := NewSimulation(Options{Model: hydra.ModelCore, Pulses: 25, MaxDepth: 2, Seed: 4})
	require.NoError(t, err)

	var seen []int
	sim.Options.OnPulse = func(p int, r hydra.PulseResult) {
		seen = append(seen, p)
		assert.Equal(t, sim.Root.ID, r.ID)
		assert.Equal(t, 0, r.Depth)
	}
	require.NoError(t, sim.Run(context.Background()))
	assert.Len(t, seen, 25)
	assert.Equal(t, 25, seen[24])
}
