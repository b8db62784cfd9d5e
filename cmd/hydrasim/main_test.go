package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "hydrasim version "+version+"\n", out)

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, version, v["version"])
}

func TestSimulate_CoreQuiet(t *testing.T) {
	out, err := execute(t, "simulate", "--model", "core", "--pulses", "10", "--depth", "1", "--seed", "1", "--quiet", "--no-store")
	require.NoError(t, err)
	assert.Contains(t, out, "FINAL DASHBOARD - CORE")
	assert.NotContains(t, out, "Pulse   1 |")
}

func TestSimulate_PulseLog(t *testing.T) {
	out, err := execute(t, "simulate", "--model", "core", "--pulses", "3", "--depth", "0", "--seed", "1", "--no-store")
	require.NoError(t, err)
	assert.Contains(t, out, "SERAPHIN - Core Simulation")
	assert.Contains(t, out, "Pulse   3 |")
}

func TestSimulate_RejectsBadConfig(t *testing.T) {
	_, err := execute(t, "simulate", "--model", "core", "--pulses", "-1", "--no-store")
	assert.Error(t, err)

	_, err = execute(t, "simulate", "--model", "hyper", "--no-store")
	assert.Error(t, err)
}

func TestSimulateStoreRunsShow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs", "hydra.db")

	out, err := execute(t, "simulate", "--model", "ultimate", "--pulses", "20", "--depth", "3",
		"--seed", "9", "--quiet", "--json", "--db", db)
	require.NoError(t, err)

	var rep struct {
		RunID string `json:"run_id"`
		Model string `json:"model"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.NotEmpty(t, rep.RunID)
	assert.Equal(t, "ultimate", rep.Model)

	out, err = execute(t, "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, rep.RunID)

	out, err = execute(t, "show", rep.RunID, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "ULTIMATE FRACTAL DASHBOARD")

	_, err = execute(t, "show", "missing-run", "--db", db)
	assert.Error(t, err)
}
