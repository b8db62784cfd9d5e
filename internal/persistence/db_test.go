package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/seraphin/internal/engine"
	"github.com/talgya/seraphin/internal/hydra"
	"github.com/talgya/seraphin/internal/ledger"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleReport(id string, started time.Time) engine.Report {
	return engine.Report{
		RunID:           id,
		Model:           "ultimate",
		Pulses:          500,
		PulsesCompleted: 500,
		MaxDepth:        15,
		Forced:          true,
		Seed:            11,
		Optimizer:       "sampler",
		FinalEnergy:     42,
		Decision:        "deep_quantum",
		HostCPUs:        8,
		StartedAt:       started,
		FinishedAt:      started.Add(3 * time.Second),
		Snapshot: ledger.Snapshot{
			TotalProfit:     123456.78,
			ProfitCount:     900,
			CloneCount:      3,
			CloneDepths:     map[int]int{1: 2, 2: 1},
			MaxDepthReached: 2,
			Mutations:       1,
			EnergyLogLen:    880,
			Votes: []ledger.Vote{
				{Proposal: "switch_chain", Weight: 10},
				{Proposal: "deep_quantum", Weight: 25.5},
			},
			EchoCount: 4,
			Chains:    []string{"Solana"},
			Specialties: map[string]ledger.SuccessStats{
				"root":   {Success: 300, Fail: 200},
				"Sniper": {Success: 7, Fail: 1},
			},
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	db := openTestDB(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := sampleReport("run-a", started)

	require.NoError(t, db.SaveReport(want))

	got, err := db.GetRun("run-a")
	require.NoError(t, err)

	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Model, got.Model)
	assert.True(t, got.Forced)
	assert.Equal(t, want.Seed, got.Seed)
	assert.Equal(t, want.Decision, got.Decision)
	assert.Equal(t, want.HostCPUs, got.HostCPUs)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	assert.True(t, want.FinishedAt.Equal(got.FinishedAt))
	assert.InDelta(t, want.TotalProfit, got.TotalProfit, 1e-9)
	assert.Equal(t, want.CloneCount, got.CloneCount)
	assert.Equal(t, want.CloneDepths, got.CloneDepths)
	assert.Equal(t, want.Votes, got.Votes)
	assert.Equal(t, want.Chains, got.Chains)
	assert.Equal(t, want.Specialties, got.Specialties)

	last, err := db.GetMeta("last_run")
	require.NoError(t, err)
	assert.Equal(t, "run-a", last)
}

func TestSaveReport_ReplacesSameRun(t *testing.T) {
	db := openTestDB(t)
	rep := sampleReport("run-a", time.Now().UTC())
	require.NoError(t, db.SaveReport(rep))

	rep.Votes = rep.Votes[:1]
	rep.FinalEnergy = 99
	require.NoError(t, db.SaveReport(rep))

	got, err := db.GetRun("run-a")
	require.NoError(t, err)
	assert.Len(t, got.Votes, 1)
	assert.Equal(t, 99, got.FinalEnergy)

	n, err := db.CountRuns()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSaveReport_EmptyID(t *testing.T) {
	db := openTestDB(t)
	assert.Error(t, db.SaveReport(engine.Report{}))
}

func TestGetRun_NotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetRun("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns_NewestFirst(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, db.SaveReport(sampleReport(id, base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := db.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "mid", runs[1].RunID)
	assert.Nil(t, runs[0].Votes, "list view skips per-run tables")

	all, err := db.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSpecialtyStatsAndTop(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveReport(sampleReport("a", time.Now().UTC())))

	stats, err := db.SpecialtyStats("a")
	require.NoError(t, err)
	assert.Equal(t, ledger.SuccessStats{Success: 7, Fail: 1}, stats["Sniper"])

	top, err := db.TopSpecialties(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"root"}, top)
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveMeta("schema", "1"))
	require.NoError(t, db.SaveMeta("schema", "2"))
	v, err := db.GetMeta("schema")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	_, err = db.GetMeta("absent")
	assert.Error(t, err)
}

func TestSaveSimulatedRun(t *testing.T) {
	db := openTestDB(t)
	rep, err := engine.RunSimulation(context.Background(), engine.Options{
		Model:    hydra.ModelUltimate,
		Pulses:   300,
		MaxDepth: 6,
		Seed:     21,
	})
	require.NoError(t, err)
	require.NoError(t, db.SaveReport(rep))

	got, err := db.GetRun(rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, rep.CloneCount, got.CloneCount)
	assert.Equal(t, rep.ProfitCount, got.ProfitCount)
	assert.Equal(t, rep.Specialties, got.Specialties)
	assert.Len(t, got.Votes, len(rep.Votes))
}
