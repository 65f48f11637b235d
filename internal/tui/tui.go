// Package tui shows a spinner while a long-running step, such as the
// verification command, is in progress.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// --- Styles ---
var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// ErrInterrupted is returned when the user quits before the task ends.
var ErrInterrupted = errors.New("interrupted")

// --- Messages ---
type doneMsg struct{ err error }

// --- Model ---
type Model struct {
	label   string
	task    func() error
	cancel  context.CancelFunc
	spinner spinner.Model
	state   state
	err     error
}

type state int

const (
	stateRunning state = iota
	stateDone
	stateInterrupted
)

func newModel(label string, task func() error, cancel context.CancelFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		label:   label,
		task:    task,
		cancel:  cancel,
		spinner: s,
		state:   stateRunning,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			m.state = stateInterrupted
			return m, tea.Quit
		}

	case doneMsg:
		m.state = stateDone
		m.err = msg.err
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateRunning {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	switch m.state {
	case stateRunning:
		return fmt.Sprintf("%s %s %s\n", m.spinner.View(), m.label, faintStyle.Render("(q to cancel)"))
	case stateInterrupted:
		return errorStyle.Render(m.label+" cancelled") + "\n"
	case stateDone:
		if m.err != nil {
			return errorStyle.Render(m.label+" failed") + "\n"
		}
		return successStyle.Render(m.label+" done") + "\n"
	default:
		return ""
	}
}

func (m Model) run() tea.Msg {
	return doneMsg{err: m.task()}
}

// Run executes task while rendering a spinner to out, reading keys from in
// (nil disables input). Quitting cancels the context passed to task and
// returns ErrInterrupted once task has returned. If the spinner cannot start,
// task runs without it.
func Run(ctx context.Context, in io.Reader, out io.Writer, label string, task func(context.Context) error) error {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var started atomic.Bool
	result := make(chan error, 1)
	wrapped := func() error {
		if !started.CompareAndSwap(false, true) {
			return nil
		}
		err := task(taskCtx)
		result <- err
		return err
	}

	p := tea.NewProgram(newModel(label, wrapped, cancel),
		tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		cancel()
		if started.CompareAndSwap(false, true) {
			return task(ctx)
		}
	}
	taskErr := <-result
	if m, ok := final.(Model); ok && m.state == stateInterrupted {
		return ErrInterrupted
	}
	return taskErr
}
