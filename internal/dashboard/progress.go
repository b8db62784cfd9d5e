package dashboard

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/talgya/seraphin/internal/engine"
)

// ProgressMsg carries a progress update from the running simulation.
type ProgressMsg engine.Progress

// DoneMsg ends the progress view.
type DoneMsg struct {
	Report engine.Report
	Err    error
}

const barWidth = 40

var (
	barFull  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	barEmpty = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	boxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// ProgressModel is the bubbletea model for a live run. It reads updates
// from a channel fed by the simulation's progress hook.
type ProgressModel struct {
	RunID   string
	Model   string
	updates <-chan tea.Msg
	cancel  func()
	last    engine.Progress
	done    *DoneMsg
	aborted bool
}

// NewProgressModel returns a model reading from updates. cancel is called
// when the user quits early; it may be nil.
func NewProgressModel(runID, model string, updates <-chan tea.Msg, cancel func()) ProgressModel {
	return ProgressModel{RunID: runID, Model: model, updates: updates, cancel: cancel}
}

// Feed returns a progress hook that pushes updates into ch, dropping them
// when the view falls behind.
func Feed(ch chan<- tea.Msg) func(engine.Progress) {
	return func(p engine.Progress) {
		select {
		case ch <- ProgressMsg(p):
		default:
		}
	}
}

func (m ProgressModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.updates
		if !ok {
			return nil
		}
		return msg
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return m.waitForUpdate()
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.KeyMsg:
		switch v.String() {
		case "ctrl+c", "esc", "q":
			m.aborted = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case ProgressMsg:
		m.last = engine.Progress(v)
		return m, m.waitForUpdate()
	case DoneMsg:
		m.done = &v
		return m, tea.Quit
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("SERAPHIN hydra run "+m.RunID) + "\n")
	fmt.Fprintf(&b, "model %s\n\n", m.Model)

	b.WriteString(bar(m.last.Pulse, m.last.Pulses))
	fmt.Fprintf(&b, " %d/%d pulses\n", m.last.Pulse, m.last.Pulses)
	fmt.Fprintf(&b, "root energy %3d%%   clones %6d   max depth %2d\n",
		m.last.RootEnergy, m.last.Clones, m.last.MaxDepth)

	switch {
	case m.done != nil && m.done.Err != nil:
		fmt.Fprintf(&b, "\nstopped: %v\n", m.done.Err)
	case m.done != nil:
		b.WriteString("\ndone\n")
	case m.aborted:
		b.WriteString("\ncancelling...\n")
	default:
		b.WriteString("\nctrl+c to stop\n")
	}
	return boxStyle.Render(b.String())
}

// Done reports whether the run finished and its final message.
func (m ProgressModel) Done() (DoneMsg, bool) {
	if m.done == nil {
		return DoneMsg{}, false
	}
	return *m.done, true
}

// Aborted reports whether the user quit before the run finished.
func (m ProgressModel) Aborted() bool { return m.aborted }

func bar(n, total int) string {
	filled := 0
	if total > 0 {
		filled = n * barWidth / total
	}
	if filled > barWidth {
		filled = barWidth
	}
	return barFull.Render(strings.Repeat("█", filled)) + barEmpty.Render(strings.Repeat("░", barWidth-filled))
}
