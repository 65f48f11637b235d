// Package source reads bundle text from a file, stdin or the clipboard.
package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-isatty"

	"github.com/sokinpui/dogs.go/internal/ui"
)

// Stdin is the argument that selects stdin or, on a terminal, the clipboard.
const Stdin = "-"

// Provider determines and retrieves the bundle content.
type Provider struct {
	stdin      io.Reader
	stdinIsTTY func() bool
	clipboard  func() (string, error)
}

// New creates a Provider bound to the process stdin and system clipboard.
func New() *Provider {
	return &Provider{
		stdin: os.Stdin,
		stdinIsTTY: func() bool {
			fd := os.Stdin.Fd()
			return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		},
		clipboard: clipboard.ReadAll,
	}
}

// GetContent returns the bundle named by arg: a file path, or "-" for piped
// stdin, falling back to the clipboard when stdin is a terminal.
func (p *Provider) GetContent(arg string) (string, error) {
	if arg != Stdin {
		data, err := os.ReadFile(arg)
		if err != nil {
			return "", fmt.Errorf("failed to read bundle: %w", err)
		}
		return string(data), nil
	}

	if !p.stdinIsTTY() {
		ui.Header("--- Reading from stdin ---")
		content, err := io.ReadAll(p.stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(content), nil
	}

	ui.Header("--- Reading from clipboard ---")
	content, err := p.clipboard()
	if err != nil {
		return "", fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		ui.Warning("Clipboard is empty. Nothing to process.")
		return "", nil
	}
	return content, nil
}
