package tui

import (
	"context"
	"errors"
	"io"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestRunReturnsTaskResult(t *testing.T) {
	err := Run(context.Background(), nil, io.Discard, "Verifying", func(context.Context) error {
		return nil
	})
	assert.NoError(t, err)

	boom := errors.New("boom")
	err = Run(context.Background(), nil, io.Discard, "Verifying", func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestModelQuitCancelsTask(t *testing.T) {
	cancelled := false
	m := newModel("Verifying", func() error { return nil }, func() { cancelled = true })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, cancelled)
	assert.NotNil(t, cmd)
	assert.Equal(t, stateInterrupted, next.(Model).state)
	assert.Contains(t, next.View(), "Verifying cancelled")
}

func TestModelDone(t *testing.T) {
	m := newModel("Verifying", nil, func() {})
	assert.Contains(t, m.View(), "Verifying")

	next, _ := m.Update(doneMsg{err: errors.New("exit 1")})
	assert.Contains(t, next.View(), "Verifying failed")

	next, _ = m.Update(doneMsg{})
	assert.Contains(t, next.View(), "Verifying done")
}
