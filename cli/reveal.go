package cli

import (
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var hintStyle = lipgloss.NewStyle().Faint(true)

type countdownMsg struct{ step time.Duration }

func countdown(step time.Duration) tea.Cmd {
	return tea.Tick(step, func(time.Time) tea.Msg { return countdownMsg{step: step} })
}

// revealModel shows one line until a key is pressed or the time runs out,
// then renders nothing so the line is erased from the terminal.
type revealModel struct {
	text      string
	remaining time.Duration
	done      bool
}

// nextStep ticks once a second, or sooner so the line is erased on time.
func (m revealModel) nextStep() time.Duration {
	return max(min(time.Second, m.remaining), 0)
}

func (m revealModel) Init() tea.Cmd {
	return countdown(m.nextStep())
}

func (m revealModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.done = true
		return m, tea.Quit
	case countdownMsg:
		m.remaining -= msg.step
		if m.remaining <= 0 {
			m.done = true
			return m, tea.Quit
		}
		return m, countdown(m.nextStep())
	}
	return m, nil
}

func (m revealModel) View() string {
	if m.done {
		return ""
	}
	secs := int((m.remaining + time.Second - 1) / time.Second)
	return m.text + hintStyle.Render(fmt.Sprintf("  (hidden in %ds, press any key)", secs)) + "\n"
}

// showTransient displays text on the terminal for at most d and erases it.
func showTransient(in io.Reader, out io.Writer, text string, d time.Duration) error {
	m := revealModel{text: text, remaining: d}
	_, err := tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(out)).Run()
	return err
}
