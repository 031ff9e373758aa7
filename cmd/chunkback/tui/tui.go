// Package tui renders the restore confirm/countdown ceremony, grounded in
// dsmmcken-dh-cli's bubbletea screen idiom, replacing plain stdout prompts
// with a small interactive program (SPEC_FULL.md §4.G).
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/OCharnyshevich/chunkback/internal/coordinator"
)

var (
	primary = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	danger  = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5C72"}
	dim     = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"}
)

// lineMsg is one line forwarded from the host adapter's broadcast feed.
type lineMsg string

// doneMsg carries the final result of the confirm/countdown ceremony.
type doneMsg struct{ err error }

// model drives the ceremony screen: it displays every broadcast line as it
// arrives, and maps 'y'/'c' to Confirm and 'n'/'a' to Abort.
type model struct {
	coord   *coordinator.Coordinator
	lines   <-chan string
	result  <-chan error
	history []string
	err     error
	finished bool
}

func listen(lines <-chan string) tea.Cmd {
	return func() tea.Msg {
		line, ok := <-lines
		if !ok {
			return nil
		}
		return lineMsg(line)
	}
}

func awaitResult(result <-chan error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: <-result}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(listen(m.lines), awaitResult(m.result))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "y", "c":
			m.coord.Confirm()
		case "n", "a", "esc":
			m.coord.Abort()
		case "ctrl+c":
			m.coord.Abort()
			return m, tea.Quit
		}
		return m, nil
	case lineMsg:
		m.history = append(m.history, string(msg))
		return m, listen(m.lines)
	case doneMsg:
		m.err = msg.err
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Foreground(primary).Bold(true).Render("  Restore ceremony"))
	b.WriteString("\n\n")
	for _, line := range m.history {
		b.WriteString("  " + line + "\n")
	}
	if m.finished {
		if m.err != nil {
			b.WriteString("\n" + lipgloss.NewStyle().Foreground(danger).Render("  "+m.err.Error()) + "\n")
		} else {
			b.WriteString("\n" + lipgloss.NewStyle().Foreground(primary).Render("  done") + "\n")
		}
		return b.String()
	}
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(dim).Render("  y/c confirm • n/a abort • ctrl+c abort and quit"))
	return b.String()
}

// RunCeremony drives the confirm/countdown ceremony interactively: lines
// delivers every broadcast line the coordinator's RunConfirmCeremony emits
// through the host adapter, result delivers RunConfirmCeremony's return
// value once it finishes. RunCeremony blocks until the ceremony resolves
// and returns its error (nil on a successful countdown).
func RunCeremony(coord *coordinator.Coordinator, lines <-chan string, result <-chan error) error {
	m := model{coord: coord, lines: lines, result: result}
	p := tea.NewProgram(m)
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	fm, ok := final.(model)
	if !ok {
		return fmt.Errorf("tui: unexpected final model type %T", final)
	}
	return fm.err
}
