package fs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot holds the on-disk state of a set of paths so they can be put back
// later. It only covers the paths it was captured for; nothing else under
// the root is read or written by Restore.
type Snapshot struct {
	entries []preimage
}

type preimage struct {
	path   string
	exists bool
	isDir  bool
	data   []byte
	mode   os.FileMode
	// missingDirs are the ancestors that did not exist, deepest first.
	missingDirs []string
}

// Capture records the current state of every bundle path. Paths that do not
// resolve under the root are skipped, since nothing can be written there.
func (r *PathResolver) Capture(paths []string) (*Snapshot, error) {
	s := &Snapshot{}
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		target, err := r.Resolve(p)
		if err != nil || seen[target] {
			continue
		}
		seen[target] = true

		img, err := r.capture(target)
		if err != nil {
			return nil, fmt.Errorf("capturing %s: %w", p, err)
		}
		s.entries = append(s.entries, img)
	}
	return s, nil
}

func (r *PathResolver) capture(target string) (preimage, error) {
	img := preimage{path: target}
	info, err := os.Stat(target)
	switch {
	case isAbsent(err):
		img.missingDirs = r.missingAncestors(target)
		return img, nil
	case err != nil:
		return img, err
	case info.IsDir():
		img.isDir = true
		return img, nil
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return img, err
	}
	img.exists, img.data, img.mode = true, data, info.Mode().Perm()
	return img, nil
}

func (r *PathResolver) missingAncestors(target string) []string {
	var dirs []string
	for dir := filepath.Dir(target); dir != r.root && len(dir) > len(r.root); dir = filepath.Dir(dir) {
		if _, err := os.Lstat(dir); !isAbsent(err) {
			break
		}
		dirs = append(dirs, dir)
	}
	return dirs
}

// Len returns the number of captured paths.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Restore puts every captured path back: files that existed get their old
// content and permissions, files that did not are removed along with any
// directories created for them. Every path is attempted; failures are joined.
func (s *Snapshot) Restore() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.entries) - 1; i >= 0; i-- {
		if err := s.entries[i].restore(); err != nil {
			errs = append(errs, fmt.Errorf("restoring %s: %w", s.entries[i].path, err))
		}
	}
	return errors.Join(errs...)
}

func (img preimage) restore() error {
	if img.isDir {
		return nil
	}
	if !img.exists {
		if err := os.Remove(img.path); err != nil && !isAbsent(err) {
			return err
		}
		for _, dir := range img.missingDirs {
			// A directory that gained other content stays.
			if err := os.Remove(dir); err != nil && !isAbsent(err) {
				break
			}
		}
		return nil
	}

	current, err := os.ReadFile(img.path)
	if err == nil && bytes.Equal(current, img.data) {
		return os.Chmod(img.path, img.mode)
	}
	if err := os.MkdirAll(filepath.Dir(img.path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(img.path, img.data, img.mode); err != nil {
		return err
	}
	return os.Chmod(img.path, img.mode)
}
