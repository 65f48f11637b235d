package model

import (
	"fmt"
	"time"
)

// Operation is the kind of change a bundle entry makes to its target file.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Status is the review decision recorded on a FileChange.
type Status int

const (
	StatusPending Status = iota
	StatusAccepted
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// FileBlock is one START/END delimited unit of a bundle, before classification.
type FileBlock struct {
	Path     string
	IsBinary bool
	// Line is the 1-based bundle line of the START marker.
	Line     int
	RawLines []string
}

// FileChange represents a single planned change to a file.
type FileChange struct {
	Path      string
	Operation Operation
	// OldContent is the file content captured at classification time.
	// nil when the file did not exist or the change is a delete.
	OldContent []byte
	// NewContent is nil for deletes. Binary entries hold the decoded bytes.
	NewContent []byte
	IsBinary   bool
	// Delta is set when NewContent was produced by line commands.
	Delta  bool
	Status Status
}

// Summary holds the results of an operation for display.
type Summary struct {
	Created  []string
	Modified []string
	Deleted  []string
	Failed   []string
	Message  string
}

// VerificationOutcome is the result of running a verification command.
type VerificationOutcome struct {
	Command  string
	Success  bool
	Rejected bool
	TimedOut bool
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Output returns stdout and stderr joined for display.
func (v VerificationOutcome) Output() string {
	switch {
	case v.Stdout == "":
		return v.Stderr
	case v.Stderr == "":
		return v.Stdout
	default:
		return v.Stdout + "\n" + v.Stderr
	}
}

// ChangeSet is an ordered collection of file changes keyed by path.
// Order is bundle appearance order; a repeated path replaces the earlier
// entry in place.
type ChangeSet struct {
	changes []*FileChange
	index   map[string]int
}

// NewChangeSet creates an empty ChangeSet.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{index: make(map[string]int)}
}

// Add appends a change, or replaces the existing entry with the same path.
// It reports whether an earlier entry was replaced.
func (cs *ChangeSet) Add(change *FileChange) bool {
	if i, ok := cs.index[change.Path]; ok {
		cs.changes[i] = change
		return true
	}
	cs.index[change.Path] = len(cs.changes)
	cs.changes = append(cs.changes, change)
	return false
}

// Len returns the number of entries.
func (cs *ChangeSet) Len() int {
	return len(cs.changes)
}

// All returns every entry in order. The slice is a copy; the entries are shared.
func (cs *ChangeSet) All() []*FileChange {
	out := make([]*FileChange, len(cs.changes))
	copy(out, cs.changes)
	return out
}

// Get returns the entry for path, or nil.
func (cs *ChangeSet) Get(path string) *FileChange {
	if i, ok := cs.index[path]; ok {
		return cs.changes[i]
	}
	return nil
}

// SetStatus records a review decision for path.
func (cs *ChangeSet) SetStatus(path string, status Status) error {
	change := cs.Get(path)
	if change == nil {
		return fmt.Errorf("no change for path %q", path)
	}
	change.Status = status
	return nil
}

// SetAll records the same decision on every entry.
func (cs *ChangeSet) SetAll(status Status) {
	for _, c := range cs.changes {
		c.Status = status
	}
}

// ResolvePending sets every pending entry to status and returns how many changed.
func (cs *ChangeSet) ResolvePending(status Status) int {
	n := 0
	for _, c := range cs.changes {
		if c.Status == StatusPending {
			c.Status = status
			n++
		}
	}
	return n
}

func (cs *ChangeSet) filter(status Status) []*FileChange {
	var out []*FileChange
	for _, c := range cs.changes {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out
}

// Accepted returns the accepted entries in order.
func (cs *ChangeSet) Accepted() []*FileChange { return cs.filter(StatusAccepted) }

// Rejected returns the rejected entries in order.
func (cs *ChangeSet) Rejected() []*FileChange { return cs.filter(StatusRejected) }

// Pending returns the entries still awaiting a decision.
func (cs *ChangeSet) Pending() []*FileChange { return cs.filter(StatusPending) }
