package review

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/dogs.go/model"
)

// Interactive lets a human walk the ChangeSet in a terminal UI.
type Interactive struct {
	// Input and Output default to the terminal when nil.
	Input  io.Reader
	Output io.Writer
}

// Review runs the UI until every entry is decided or the user quits.
// Entries left pending are rejected.
func (r Interactive) Review(ctx context.Context, cs *model.ChangeSet) error {
	defer cs.ResolvePending(model.StatusRejected)
	if cs.Len() == 0 {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if r.Input != nil {
		opts = append(opts, tea.WithInput(r.Input))
	}
	if r.Output != nil {
		opts = append(opts, tea.WithOutput(r.Output))
	}

	_, err := tea.NewProgram(newReviewModel(cs), opts...).Run()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return fmt.Errorf("running reviewer: %w", err)
	}
	return nil
}

// --- Styles ---
var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	addStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	removeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
	hunkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("44"))
	acceptedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78")).Bold(true)
	rejectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("197")).Bold(true)
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

type keyMap struct {
	Accept    key.Binding
	Reject    key.Binding
	Skip      key.Binding
	Prev      key.Binding
	AcceptAll key.Binding
	RejectAll key.Binding
	Quit      key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Accept:    key.NewBinding(key.WithKeys("a", "y"), key.WithHelp("a", "accept")),
		Reject:    key.NewBinding(key.WithKeys("r", "n"), key.WithHelp("r", "reject")),
		Skip:      key.NewBinding(key.WithKeys("s", "tab"), key.WithHelp("s", "skip")),
		Prev:      key.NewBinding(key.WithKeys("p", "shift+tab"), key.WithHelp("p", "previous")),
		AcceptAll: key.NewBinding(key.WithKeys("A"), key.WithHelp("A", "accept rest")),
		RejectAll: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reject rest")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp returns keybindings to show in the minimized help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Accept, k.Reject, k.Skip, k.Prev, k.AcceptAll, k.RejectAll, k.Quit}
}

// FullHelp returns keybindings for the expanded help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// chromeLines is the height taken by everything except the diff viewport.
const chromeLines = 4

type reviewModel struct {
	changes  []*model.FileChange
	cursor   int
	viewport viewport.Model
	help     help.Model
	keys     keyMap
	ready    bool
	done     bool
}

func newReviewModel(cs *model.ChangeSet) reviewModel {
	return reviewModel{
		changes: cs.All(),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

func (m reviewModel) Init() tea.Cmd {
	return nil
}

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - chromeLines
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.help.Width = msg.Width
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Accept):
			return m.decide(model.StatusAccepted)
		case key.Matches(msg, m.keys.Reject):
			return m.decide(model.StatusRejected)
		case key.Matches(msg, m.keys.Skip):
			return m.advance()
		case key.Matches(msg, m.keys.Prev):
			if m.cursor > 0 {
				m.cursor--
				m.refresh()
			}
			return m, nil
		case key.Matches(msg, m.keys.AcceptAll):
			return m.decideRest(model.StatusAccepted)
		case key.Matches(msg, m.keys.RejectAll):
			return m.decideRest(model.StatusRejected)
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m reviewModel) decide(status model.Status) (tea.Model, tea.Cmd) {
	m.changes[m.cursor].Status = status
	return m.advance()
}

// decideRest sets status on the current entry and every later pending one.
func (m reviewModel) decideRest(status model.Status) (tea.Model, tea.Cmd) {
	for i := m.cursor; i < len(m.changes); i++ {
		if i == m.cursor || m.changes[i].Status == model.StatusPending {
			m.changes[i].Status = status
		}
	}
	m.done = true
	return m, tea.Quit
}

// advance moves to the next entry, quitting after the last one.
func (m reviewModel) advance() (tea.Model, tea.Cmd) {
	if m.cursor+1 >= len(m.changes) {
		m.done = true
		return m, tea.Quit
	}
	m.cursor++
	m.refresh()
	return m, nil
}

func (m *reviewModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(colorizeDiff(UnifiedDiff(m.changes[m.cursor], DefaultContext)))
	m.viewport.GotoTop()
}

func (m reviewModel) View() string {
	if m.done {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}
	c := m.changes[m.cursor]
	header := fmt.Sprintf("%s %s %s  %s",
		titleStyle.Render(fmt.Sprintf("[%d/%d]", m.cursor+1, len(m.changes))),
		strings.ToUpper(c.Operation.String()),
		c.Path,
		statusBadge(c.Status))
	if c.Delta {
		header += subtleStyle.Render("  (line commands)")
	}
	return strings.Join([]string{
		header,
		subtleStyle.Render(strings.Repeat("─", max(m.viewport.Width, 1))),
		m.viewport.View(),
		m.help.View(m.keys),
	}, "\n")
}

func statusBadge(s model.Status) string {
	switch s {
	case model.StatusAccepted:
		return acceptedStyle.Render("accepted")
	case model.StatusRejected:
		return rejectedStyle.Render("rejected")
	default:
		return pendingStyle.Render("pending")
	}
}

func colorizeDiff(diff string) string {
	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			lines[i] = titleStyle.Render(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = hunkStyle.Render(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = addStyle.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = removeStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}
