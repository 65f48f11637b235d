// Package lock provides the exclusive working-tree lock held for the
// duration of an apply.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sokinpui/dogs.go/internal/fs"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("working tree is locked by another apply")

const fileName = "lock"

// Info is written into the lock file to identify the holder.
type Info struct {
	PID      int       `json:"pid"`
	Reason   string    `json:"reason"`
	LockedAt time.Time `json:"locked_at"`
}

// Lock is a held working-tree lock.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the lock for root without blocking.
func Acquire(root, reason string) (*Lock, error) {
	dir, err := fs.EnsureStateDir(root)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fileName)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if errors.Is(err, ErrLocked) {
			if holder, rerr := readInfo(path); rerr == nil {
				return nil, fmt.Errorf("%w (pid %d, %s, since %s)", ErrLocked, holder.PID, holder.Reason, holder.LockedAt.Format(time.RFC3339))
			}
			return nil, err
		}
		return nil, fmt.Errorf("acquiring lock on %s: %w", path, err)
	}

	if err := writeInfo(f, Info{PID: os.Getpid(), Reason: reason, LockedAt: time.Now()}); err != nil {
		slog.Warn("could not record lock holder", "path", path, "error", err)
	}
	slog.Debug("acquired lock", "path", path, "reason", reason)
	return &Lock{f: f, path: path}, nil
}

// Release drops the lock. Calling it more than once is harmless.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = l.f.Truncate(0)
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	slog.Debug("released lock", "path", l.path)
	return err
}

func writeInfo(f *os.File, info Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err = f.WriteAt(data, 0)
	return err
}

func readInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
