package dashboard

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/seraphin/internal/engine"
	"github.com/talgya/seraphin/internal/hydra"
	"github.com/talgya/seraphin/internal/ledger"
)

func TestMoney(t *testing.T) {
	assert.Equal(t, "1,234,567.89", Money(1234567.891))
	assert.Equal(t, "500.00", Money(500))
}

func TestFormat_Ultimate(t *testing.T) {
	out := Format(engine.Report{
		Model:           "ultimate",
		Pulses:          1000,
		PulsesCompleted: 1000,
		FinalEnergy:     37,
		Decision:        "deep_quantum",
		Snapshot: ledger.Snapshot{
			TotalProfit:     9876543.21,
			CloneCount:      4999,
			MaxDepthReached: 15,
			Mutations:       512,
			Chains:          []string{"Solana"},
		},
	})

	assert.Contains(t, out, "ULTIMATE FRACTAL DASHBOARD")
	assert.Contains(t, out, "9,876,543.21 USDC")
	assert.Contains(t, out, "4,999")
	assert.Contains(t, out, "37%")
	assert.Contains(t, out, "Chains Active")
	assert.Contains(t, out, "deep_quantum")
	assert.NotContains(t, out, "interrupted")
	assert.Contains(t, out, strings.Repeat("=", ultimateWidth))
}

func TestFormat_CoreOmitsUltimateLines(t *testing.T) {
	out := Format(engine.Report{Model: "core", Pulses: 10, PulsesCompleted: 4})
	assert.Contains(t, out, "FINAL DASHBOARD - CORE")
	assert.NotContains(t, out, "Mutations")
	assert.NotContains(t, out, "Consensus Decision")
	assert.Contains(t, out, "4 of 10 (interrupted)")
}

func TestPulseLine(t *testing.T) {
	line := PulseLine(7, hydra.PulseResult{Depth: 2, Specialty: "Sniper", Profit: 1500.5, Energy: 80})
	assert.Equal(t, "Pulse   7 | [Depth 2] Sniper +1500.50 USDC | Energy: 80%", line)
}

func TestStatusLine(t *testing.T) {
	line := StatusLine(engine.Progress{Pulse: 12, RootEnergy: 9, Clones: 340, MaxDepth: 7})
	assert.Equal(t, "Pulse    12 | Energy:   9% | Clones:   340 | Depth:  7", line)
}

func TestBanner(t *testing.T) {
	assert.Contains(t, Banner(hydra.ModelCore, false), "Core Simulation")
	assert.Contains(t, Banner(hydra.ModelUltimate, true), "Quantum-inspired")
}

func TestFormatRuns(t *testing.T) {
	assert.Equal(t, "no runs stored\n", FormatRuns(nil))
	out := FormatRuns([]engine.Report{{RunID: "abc", Model: "core", PulsesCompleted: 5}})
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "MODEL")
}

func TestFeedDropsWhenFull(t *testing.T) {
	ch := make(chan tea.Msg, 1)
	feed := Feed(ch)
	feed(engine.Progress{Pulse: 1})
	feed(engine.Progress{Pulse: 2})

	require.Len(t, ch, 1)
	msg := <-ch
	assert.Equal(t, ProgressMsg(engine.Progress{Pulse: 1}), msg)
}

func TestProgressModel_Flow(t *testing.T) {
	ch := make(chan tea.Msg, 4)
	m := NewProgressModel("run-1", "ultimate", ch, nil)

	ch <- ProgressMsg(engine.Progress{Pulse: 50, Pulses: 100, RootEnergy: 70, Clones: 3, MaxDepth: 2})
	msg := m.Init()()
	next, cmd := m.Update(msg)
	m = next.(ProgressModel)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "50/100 pulses")
	assert.Contains(t, m.View(), "clones      3")

	next, cmd = m.Update(DoneMsg{Report: engine.Report{RunID: "run-1"}})
	m = next.(ProgressModel)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	done, ok := m.Done()
	require.True(t, ok)
	assert.Equal(t, "run-1", done.Report.RunID)
	assert.Contains(t, m.View(), "done")
}

func TestProgressModel_CtrlCCancels(t *testing.T) {
	cancelled := false
	m := NewProgressModel("r", "core", make(chan tea.Msg), func() { cancelled = true })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = next.(ProgressModel)
	assert.True(t, cancelled)
	assert.True(t, m.Aborted())
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestProgressModel_ShowsError(t *testing.T) {
	m := NewProgressModel("r", "core", nil, nil)
	next, _ := m.Update(DoneMsg{Err: errors.New("context canceled")})
	assert.Contains(t, next.(ProgressModel).View(), "stopped: context canceled")
}

func TestBar(t *testing.T) {
	assert.Equal(t, barWidth, len([]rune(stripANSI(bar(0, 0)))))
	assert.Equal(t, barWidth, len([]rune(stripANSI(bar(500, 100)))))
}

func stripANSI(s string) string {
	var b strings.Builder
	skip := false
	for _, r := range s {
		switch {
		case r == 0x1b:
			skip = true
		case skip && r == 'm':
			skip = false
		case !skip:
			b.WriteRune(r)
		}
	}
	return b.String()
}
