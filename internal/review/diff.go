package review

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sokinpui/dogs.go/model"
)

// DefaultContext is the number of context lines around each hunk.
const DefaultContext = 3

// UnifiedDiff renders the change as a unified diff against the content it
// was classified from. Deletes and binary entries get a one-line summary.
func UnifiedDiff(c *model.FileChange, context int) string {
	if context <= 0 {
		context = DefaultContext
	}
	switch {
	case c.Operation == model.OpDelete:
		return fmt.Sprintf("delete %s\n", c.Path)
	case c.IsBinary:
		if c.Operation == model.OpCreate {
			return fmt.Sprintf("binary file %s created (%d bytes)\n", c.Path, len(c.NewContent))
		}
		return fmt.Sprintf("binary file %s changed (%d -> %d bytes)\n", c.Path, len(c.OldContent), len(c.NewContent))
	}

	from := "a/" + c.Path
	if c.Operation == model.OpCreate {
		from = "/dev/null"
	}
	u := difflib.UnifiedDiff{
		A:        splitLines(string(c.OldContent)),
		B:        splitLines(string(c.NewContent)),
		FromFile: from,
		ToFile:   "b/" + c.Path,
		Context:  context,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return fmt.Sprintf("could not render diff for %s: %v\n", c.Path, err)
	}
	if s == "" {
		return fmt.Sprintf("%s: no content changes\n", c.Path)
	}
	return s
}

// splitLines splits s into newline-terminated lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	} else {
		lines[last] += "\n"
	}
	return lines
}
