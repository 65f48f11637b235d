// Package nvim asks a running Neovim to pick up files changed on disk.
package nvim

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/neovim/go-client/nvim"
)

// ErrNoInstance is returned when no Neovim server address is set.
var ErrNoInstance = errors.New("no running nvim instance ($NVIM and $NVIM_LISTEN_ADDRESS are unset)")

// Manager holds a connection to a Neovim instance.
type Manager struct {
	nvim *nvim.Nvim
}

// Address returns the server address of the enclosing Neovim, if any.
func Address() string {
	if addr := os.Getenv("NVIM"); addr != "" {
		return addr
	}
	return os.Getenv("NVIM_LISTEN_ADDRESS")
}

// New connects to the Neovim at Address.
func New() (*Manager, error) {
	addr := Address()
	if addr == "" {
		return nil, ErrNoInstance
	}
	v, err := nvim.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nvim at %s: %w", addr, err)
	}
	return &Manager{nvim: v}, nil
}

// Close disconnects from Neovim.
func (m *Manager) Close() {
	if m.nvim != nil {
		m.nvim.Close()
	}
}

// Sync reloads buffers for changed files and wipes buffers of removed ones.
// Paths must be absolute.
func (m *Manager) Sync(changed, removed []string) error {
	b := m.nvim.NewBatch()
	for _, p := range removed {
		b.Command("silent! bwipeout! " + escapePath(p))
	}
	if len(changed) > 0 {
		b.Command("silent! checktime")
	}
	if err := b.Execute(); err != nil {
		return fmt.Errorf("nvim sync: %w", err)
	}
	return nil
}

// escapePath escapes characters that are special in an Ex command filename.
func escapePath(p string) string {
	var sb strings.Builder
	for _, r := range p {
		switch r {
		case ' ', '\\', '%', '#', '|', '"', '\t':
			sb.WriteRune('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
