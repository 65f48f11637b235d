package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// ErrOutsideRoot is returned for bundle paths that would land outside the output root.
var ErrOutsideRoot = errors.New("path escapes output root")

// PathResolver maps bundle-relative paths onto the output root.
type PathResolver struct {
	root string
}

// NewPathResolver creates a resolver rooted at dir.
func NewPathResolver(dir string) (*PathResolver, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving output root %q: %w", dir, err)
	}
	return &PathResolver{root: abs}, nil
}

// Root returns the absolute output root.
func (r *PathResolver) Root() string {
	return r.root
}

// Resolve returns the absolute target for a bundle path. Absolute paths and
// paths that climb out of the root are refused.
func (r *PathResolver) Resolve(relativePath string) (string, error) {
	p := filepath.FromSlash(strings.TrimSpace(relativePath))
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", fmt.Errorf("%s: %w", relativePath, ErrOutsideRoot)
	}
	abs := filepath.Join(r.root, p)
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", relativePath, ErrOutsideRoot)
	}
	return abs, nil
}

// Rel returns path relative to the root, or path itself if that fails.
func (r *PathResolver) Rel(path string) string {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// ReadIfExists returns the file content and whether a regular file exists at path.
// A parent that is a regular file counts as absent; the write reports it.
func ReadIfExists(path string) ([]byte, bool, error) {
	info, err := os.Stat(path)
	if isAbsent(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if info.IsDir() {
		return nil, false, fmt.Errorf("%s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func isAbsent(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// WriteFile writes data to path, creating parent directories as needed.
// An existing file keeps its permission bits.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(path, data, mode)
}

// RemoveFile deletes a regular file. A missing file is an error.
func RemoveFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return os.Remove(path)
}

// GetFileSHA256 computes the SHA256 hash of a file's content.
func GetFileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// StateDirName is the per-tree directory holding the lock and apply history.
const StateDirName = ".dogs"

// EnsureStateDir creates <root>/.dogs with a .gitignore that hides the
// directory from git, so checkpoints and rollbacks never touch it.
func EnsureStateDir(root string) (string, error) {
	dir := filepath.Join(root, StateDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("could not create state directory: %w", err)
	}
	ignore := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(ignore); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(ignore, []byte("*\n"), 0644); err != nil {
			return "", fmt.Errorf("could not write %s: %w", ignore, err)
		}
	}
	return dir, nil
}
