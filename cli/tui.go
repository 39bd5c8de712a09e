package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fahmaliyi/pwmgr/vault"
)

type model struct {
	app     *App
	session *session

	entries []vault.Entry
	cursor  int
	state   string // "table", "filter"
	filter  textinput.Model

	revealed  string
	revealGen int
	copied    string
	msg       string
	err       error
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	msgStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("57")).Foreground(lipgloss.Color("0"))
)

type hideMsg struct{ gen int }

type clearClipboardMsg struct{ secret string }

// runTUI browses the unlocked store. Passwords are decrypted one at a
// time, on request, and hidden again after the reveal duration.
func runTUI(a *App, s *session) error {
	filter := textinput.New()
	filter.Placeholder = "site or user"
	filter.Prompt = "/"

	m := newModel(a, s, filter)
	final, err := tea.NewProgram(m, tea.WithInput(a.Stdin), tea.WithOutput(a.Stdout)).Run()
	if fm, ok := final.(model); ok && fm.copied != "" {
		_ = clearClipboard(a.Clipboard, fm.copied)
	}
	return err
}

func newModel(a *App, s *session, filter textinput.Model) model {
	m := model{app: a, session: s, state: "table", filter: filter}
	m.refresh()
	return m
}

func (m *model) refresh() {
	needle := strings.ToLower(m.filter.Value())
	var entries []vault.Entry
	for e := range m.session.store.List() {
		if needle == "" ||
			strings.Contains(strings.ToLower(e.Site), needle) ||
			strings.Contains(strings.ToLower(e.User), needle) {
			entries = append(entries, e)
		}
	}
	m.entries = entries
	if m.cursor >= len(m.entries) {
		m.cursor = max(len(m.entries)-1, 0)
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case hideMsg:
		if msg.gen == m.revealGen {
			m.revealed = ""
		}
		return m, nil
	case clearClipboardMsg:
		if m.copied == msg.secret {
			_ = clearClipboard(m.app.Clipboard, msg.secret)
			m.copied = ""
			m.msg = "Clipboard cleared"
		}
		return m, nil
	}

	switch m.state {
	case "filter":
		return updateFilter(m, msg)
	default:
		return updateTable(m, msg)
	}
}

func (m model) View() string {
	s := titleStyle.Render("Credentials") + "\n\n"
	if len(m.entries) == 0 {
		s += "(none)\n"
	}
	for i, e := range m.entries {
		line := fmt.Sprintf("%-24s  %-16s  %-24s", e.Site, e.User, e.Credential.Username)
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		s += line + "\n"
	}
	if m.state == "filter" || m.filter.Value() != "" {
		s += "\n" + m.filter.View() + "\n"
	}
	if m.revealed != "" {
		s += "\n" + msgStyle.Render("Password: "+m.revealed)
	} else if m.msg != "" {
		s += "\n" + msgStyle.Render(m.msg)
	}
	if m.err != nil {
		s += "\n" + errStyle.Render(m.err.Error())
	}
	s += "\nCommands: j/k=move, enter/v=reveal, c=copy, d=delete, /=filter, q=quit"
	return s
}

// --- Table ---
func updateTable(m model, msg tea.Msg) (model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	m.err = nil

	switch key.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "j", "down":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
		m.revealed = ""
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
		m.revealed = ""
	case "/":
		m.state = "filter"
		return m, m.filter.Focus()
	case "enter", "v":
		e, ok := m.selected()
		if !ok {
			return m, nil
		}
		view, err := m.session.store.Get(m.session.key, e.Site, e.User)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.revealed = view.Password
		m.revealGen++
		gen := m.revealGen
		return m, tea.Tick(m.session.cfg.RevealDuration, func(time.Time) tea.Msg { return hideMsg{gen: gen} })
	case "c":
		e, ok := m.selected()
		if !ok {
			return m, nil
		}
		view, err := m.session.store.Get(m.session.key, e.Site, e.User)
		if err != nil {
			m.err = err
			return m, nil
		}
		if err := m.app.Clipboard.WriteAll(view.Password); err != nil {
			m.err = err
			return m, nil
		}
		m.copied = view.Password
		timeout := m.session.cfg.ClipboardTimeout
		m.msg = fmt.Sprintf("Password copied! (clears in %s)", timeout)
		secret := view.Password
		return m, tea.Tick(timeout, func(time.Time) tea.Msg { return clearClipboardMsg{secret: secret} })
	case "d":
		e, ok := m.selected()
		if !ok {
			return m, nil
		}
		if err := m.session.store.Delete(e.Site, e.User); err != nil {
			m.err = err
			return m, nil
		}
		m.session.dirty = true
		if err := m.session.save(); err != nil {
			m.err = err
		}
		m.session.logger.Debug("credential deleted", "site", e.Site, "user", e.User)
		m.revealed = ""
		m.msg = fmt.Sprintf("Deleted %s/%s", e.Site, e.User)
		m.refresh()
	}
	return m, nil
}

func (m model) selected() (vault.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return vault.Entry{}, false
	}
	return m.entries[m.cursor], true
}

// --- Filter ---
func updateFilter(m model, msg tea.Msg) (model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter", "esc":
			m.state = "table"
			m.filter.Blur()
			if key.String() == "esc" {
				m.filter.SetValue("")
			}
			m.refresh()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.refresh()
	return m, cmd
}
