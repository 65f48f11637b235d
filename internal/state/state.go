// Package state keeps the apply history of an output tree under .dogs/history.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sokinpui/dogs.go/internal/fs"
	"github.com/sokinpui/dogs.go/model"
)

const historyFileName = "history"

// noHash marks an operation whose file has no content to hash, such as a delete.
const noHash = "-"

// Operation is one file touched by an apply run.
type Operation struct {
	Path   string
	Action string
	// ContentHash is the SHA256 of the file after the run, or empty for deletes.
	ContentHash string
}

// HistoryEntry is one apply run.
type HistoryEntry struct {
	ID         string
	Timestamp  int64
	Outcome    string
	Operations []Operation
}

// Time returns the entry timestamp in local time.
func (e HistoryEntry) Time() time.Time {
	return time.Unix(e.Timestamp, 0)
}

// Manager reads and appends the history file of one output root.
type Manager struct {
	historyPath string
	StateDir    string
}

// New creates a manager for root, creating the state directory when missing.
func New(root string) (*Manager, error) {
	stateDir, err := fs.EnsureStateDir(root)
	if err != nil {
		return nil, err
	}
	return &Manager{
		historyPath: filepath.Join(stateDir, historyFileName),
		StateDir:    stateDir,
	}, nil
}

// NewEntry stamps operations with a fresh ID and the current time.
func NewEntry(outcome string, ops []Operation) HistoryEntry {
	return HistoryEntry{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC().Unix(),
		Outcome:    outcome,
		Operations: ops,
	}
}

// Write appends an entry to the history file.
//
// Each entry is a block separated by a blank line:
//
//	<id> <unix-timestamp> <outcome>
//	<action>
//	<path>
//	<hash>
//	...
func (m *Manager) Write(entry HistoryEntry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %s\n", entry.ID, entry.Timestamp, entry.Outcome)
	for _, op := range entry.Operations {
		hash := op.ContentHash
		if hash == "" {
			hash = noHash
		}
		fmt.Fprintf(&b, "%s\n%s\n%s\n", op.Action, op.Path, hash)
	}
	b.WriteString("\n")

	f, err := os.OpenFile(m.historyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("writing history: %w", err)
	}
	return f.Close()
}

// List returns every recorded entry, oldest first.
func (m *Manager) List() ([]HistoryEntry, error) {
	data, err := os.ReadFile(m.historyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	var entries []HistoryEntry
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		entry, err := parseEntry(strings.Split(block, "\n"))
		if err != nil {
			return nil, fmt.Errorf("invalid history file: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseEntry(lines []string) (HistoryEntry, error) {
	header := strings.Fields(lines[0])
	if len(header) != 3 {
		return HistoryEntry{}, fmt.Errorf("malformed entry header %q", lines[0])
	}
	ts, err := strconv.ParseInt(header[1], 10, 64)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("could not parse timestamp from %q: %w", header[1], err)
	}
	entry := HistoryEntry{ID: header[0], Timestamp: ts, Outcome: header[2]}

	opLines := lines[1:]
	if len(opLines)%3 != 0 {
		return HistoryEntry{}, fmt.Errorf("incomplete operation record in entry %s", entry.ID)
	}
	for i := 0; i < len(opLines); i += 3 {
		op := Operation{Action: opLines[i], Path: opLines[i+1], ContentHash: opLines[i+2]}
		if op.ContentHash == noHash {
			op.ContentHash = ""
		}
		entry.Operations = append(entry.Operations, op)
	}
	return entry, nil
}

// CreateOperations records every file a summary reports as written or removed,
// hashing the content now on disk.
func CreateOperations(resolver *fs.PathResolver, s model.Summary) []Operation {
	ops := make([]Operation, 0, len(s.Created)+len(s.Modified)+len(s.Deleted))
	hashed := func(action string, paths []string) {
		for _, p := range paths {
			op := Operation{Path: p, Action: action}
			if abs, err := resolver.Resolve(p); err == nil {
				// A failed hash leaves the field empty.
				op.ContentHash, _ = fs.GetFileSHA256(abs)
			}
			ops = append(ops, op)
		}
	}
	hashed(model.OpCreate.String(), s.Created)
	hashed(model.OpModify.String(), s.Modified)
	for _, p := range s.Deleted {
		ops = append(ops, Operation{Path: p, Action: model.OpDelete.String()})
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Path < ops[j].Path
	})
	return ops
}
