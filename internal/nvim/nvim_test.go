package nvim

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress(t *testing.T) {
	t.Setenv("NVIM", "")
	t.Setenv("NVIM_LISTEN_ADDRESS", "/tmp/legacy.sock")
	assert.Equal(t, "/tmp/legacy.sock", Address())

	t.Setenv("NVIM", "/tmp/nvim.sock")
	assert.Equal(t, "/tmp/nvim.sock", Address())
}

func TestNewWithoutInstance(t *testing.T) {
	t.Setenv("NVIM", "")
	t.Setenv("NVIM_LISTEN_ADDRESS", "")
	_, err := New()
	require.ErrorIs(t, err, ErrNoInstance)
}

func TestNewUnreachable(t *testing.T) {
	t.Setenv("NVIM", filepath.Join(t.TempDir(), "missing.sock"))
	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to nvim")
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, `/src/my\ file\%1.go`, escapePath("/src/my file%1.go"))
	assert.Equal(t, "/plain/path.go", escapePath("/plain/path.go"))
}
