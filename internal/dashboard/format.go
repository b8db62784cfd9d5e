// Package dashboard renders run output for the terminal: the per-pulse
// console lines, the final dashboard and a live progress view.
package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/talgya/seraphin/internal/engine"
	"github.com/talgya/seraphin/internal/hydra"
)

const (
	coreWidth     = 70
	ultimateWidth = 80
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle = lipgloss.NewStyle().Bold(true)
	footStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("141"))
)

func width(model string) int {
	if model == hydra.ModelCore.String() {
		return coreWidth
	}
	return ultimateWidth
}

func rule(w int) string { return strings.Repeat("=", w) }

// Banner is printed before the first pulse.
func Banner(model hydra.Model, forced bool) string {
	w := width(model.String())
	var b strings.Builder
	b.WriteString(rule(w) + "\n")
	if model == hydra.ModelCore {
		b.WriteString(titleStyle.Render("SERAPHIN - Core Simulation") + "\n")
	} else {
		b.WriteString(titleStyle.Render("SERAPHIN - Ultimate Fractal Hydra") + "\n")
	}
	b.WriteString("Every tentacle is a head. Every head is a complete hydra.\n")
	if forced {
		b.WriteString("Quantum-inspired mode forced for deep and complex heads.\n")
	}
	b.WriteString(rule(w) + "\n")
	return b.String()
}

// PulseLine formats one top-level pulse for the console log.
func PulseLine(pulse int, r hydra.PulseResult) string {
	return fmt.Sprintf("Pulse %3d | %s", pulse, r.String())
}

// StatusLine formats the colony status after a top-level pulse.
func StatusLine(p engine.Progress) string {
	return fmt.Sprintf("Pulse %5d | Energy: %3d%% | Clones: %5d | Depth: %2d", p.Pulse, p.RootEnergy, p.Clones, p.MaxDepth)
}

// Money formats a USDC amount with thousands separators and two decimals.
func Money(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}

// Format renders the final dashboard for a report.
func Format(rep engine.Report) string {
	w := width(rep.Model)
	core := rep.Model == hydra.ModelCore.String()

	var b strings.Builder
	b.WriteString("\n" + rule(w) + "\n")
	if core {
		b.WriteString(titleStyle.Render("FINAL DASHBOARD - CORE") + "\n")
	} else {
		b.WriteString(titleStyle.Render("ULTIMATE FRACTAL DASHBOARD") + "\n")
	}
	b.WriteString(rule(w) + "\n")

	line := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-27s:", label)) + " " + valueStyle.Render(value) + "\n")
	}

	line("Total Simulated Profit", Money(rep.TotalProfit)+" USDC")
	line("Total Clones Spawned", humanize.Comma(int64(rep.CloneCount)))
	line("Max Recursion Depth", fmt.Sprint(rep.MaxDepthReached))
	if !core {
		line("Chains Active", fmt.Sprint(len(rep.Chains)))
		line("Mutations (genetic)", humanize.Comma(int64(rep.Mutations)))
	}
	line("Final Energy Level", fmt.Sprintf("%d%%", rep.FinalEnergy))
	if !core {
		decision := rep.Decision
		if decision == "" {
			decision = "none"
		}
		line("Consensus Decision", decision)
		line("Future Echoes", fmt.Sprint(rep.EchoCount))
	}
	if rep.PulsesCompleted < rep.Pulses {
		line("Pulses Completed", fmt.Sprintf("%d of %d (interrupted)", rep.PulsesCompleted, rep.Pulses))
	}

	b.WriteString("\n")
	if core {
		b.WriteString(footStyle.Render("The core hydra lives: simple, fractal, emergent.") + "\n")
	} else {
		b.WriteString(footStyle.Render("The ultimate hydra lives: conscious, evolving, self-regulating.") + "\n")
	}
	b.WriteString(rule(w) + "\n")
	return b.String()
}

// FormatRuns renders a compact table of stored runs.
func FormatRuns(runs []engine.Report) string {
	if len(runs) == 0 {
		return "no runs stored\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s  %-8s  %7s  %7s  %5s  %18s  %s\n",
		"RUN", "MODEL", "PULSES", "CLONES", "DEPTH", "PROFIT (USDC)", "STARTED")
	for _, r := range runs {
		fmt.Fprintf(&b, "%-36s  %-8s  %7d  %7d  %5d  %18s  %s\n",
			r.RunID, r.Model, r.PulsesCompleted, r.CloneCount, r.MaxDepthReached,
			Money(r.TotalProfit), humanize.Time(r.StartedAt))
	}
	return b.String()
}
