package patcher

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrLineOutOfRange is returned when a command references a line the base text does not have.
var ErrLineOutOfRange = errors.New("line out of range")

// Kind is the type of a line command.
type Kind int

const (
	InsertAfter Kind = iota
	Replace
	Delete
)

func (k Kind) String() string {
	switch k {
	case InsertAfter:
		return "INSERT_AFTER_LINE"
	case Replace:
		return "REPLACE_LINES"
	case Delete:
		return "DELETE_LINES"
	default:
		return "UNKNOWN"
	}
}

// Command is a single line-indexed edit. Line numbers are 1-based and refer
// to the base text the command list is applied to.
type Command struct {
	Kind Kind
	// Line is used by InsertAfter; 0 inserts before the first line.
	Line int
	// Start and End are an inclusive range used by Replace and Delete.
	Start   int
	End     int
	Content []string
}

// anchor is the line a command is ordered by.
func (c Command) anchor() int {
	if c.Kind == InsertAfter {
		return c.Line
	}
	return c.Start
}

func (c Command) String() string {
	if c.Kind == InsertAfter {
		return fmt.Sprintf("%s(%d)", c.Kind, c.Line)
	}
	return fmt.Sprintf("%s(%d,%d)", c.Kind, c.Start, c.End)
}

// Apply runs cmds against base and returns the patched text.
//
// Commands are applied from the highest anchor line down so that an edit never
// shifts the lines a not-yet-applied command refers to. The result is therefore
// independent of declaration order for non-overlapping commands. Overlapping
// ranges are not detected and give unspecified results. Apply is not idempotent.
func Apply(base string, cmds []Command) (string, error) {
	trailingNewline := strings.HasSuffix(base, "\n")
	lines := SplitLines(base)

	for _, c := range cmds {
		if err := validate(c, len(lines)); err != nil {
			return "", err
		}
	}

	ordered := make([]Command, len(cmds))
	copy(ordered, cmds)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].anchor() > ordered[j].anchor()
	})

	lines = applyInOrder(lines, ordered)
	if len(lines) == 0 {
		return "", nil
	}
	out := strings.Join(lines, "\n")
	if trailingNewline {
		out += "\n"
	}
	return out, nil
}

// SplitLines splits text into lines, ignoring a single trailing newline.
func SplitLines(text string) []string {
	if text == "" {
		return []string{}
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

func validate(c Command, n int) error {
	switch c.Kind {
	case InsertAfter:
		if c.Line < 0 || c.Line > n {
			return fmt.Errorf("%s: %w (file has %d lines)", c, ErrLineOutOfRange, n)
		}
	case Replace, Delete:
		if c.Start < 1 || c.End < c.Start || c.End > n {
			return fmt.Errorf("%s: %w (file has %d lines)", c, ErrLineOutOfRange, n)
		}
	default:
		return fmt.Errorf("unknown command kind %d", c.Kind)
	}
	return nil
}

// applyInOrder splices each command into lines in the order given.
func applyInOrder(lines []string, cmds []Command) []string {
	for _, c := range cmds {
		switch c.Kind {
		case InsertAfter:
			lines = splice(lines, c.Line, c.Line, c.Content)
		case Replace:
			lines = splice(lines, c.Start-1, c.End, c.Content)
		case Delete:
			lines = splice(lines, c.Start-1, c.End, nil)
		}
	}
	return lines
}

// splice replaces lines[from:to] with insert, clamping to the slice bounds.
func splice(lines []string, from, to int, insert []string) []string {
	if from > len(lines) {
		from = len(lines)
	}
	if to > len(lines) {
		to = len(lines)
	}
	out := make([]string, 0, len(lines)-(to-from)+len(insert))
	out = append(out, lines[:from]...)
	out = append(out, insert...)
	out = append(out, lines[to:]...)
	return out
}
