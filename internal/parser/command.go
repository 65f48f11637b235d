package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sokinpui/dogs.go/internal/patcher"
)

var (
	// commandRegex matches `@@ PAWS_CMD NAME(args) @@`.
	commandRegex = regexp.MustCompile(`^\s*@@\s*PAWS_CMD\s+([A-Z_]+)\(([^)]*)\)\s*@@\s*$`)
	// delimiterRegex matches any `@@ ... @@` line, which ends a command payload.
	delimiterRegex = regexp.MustCompile(`^\s*@@.*@@\s*$`)
)

// Directive is the command content of a block, if it has any.
type Directive struct {
	DeleteFile bool
	Commands   []patcher.Command
}

// ParseDirective inspects normalized block lines for PAWS_CMD markers.
// It returns nil when the block is plain file content.
func ParseDirective(lines []string) (*Directive, error) {
	first := -1
	for i, line := range lines {
		if commandRegex.MatchString(line) {
			first = i
			break
		}
	}
	if first == -1 {
		return nil, nil
	}

	d := &Directive{}
	var current *patcher.Command
	flush := func() {
		if current != nil {
			d.Commands = append(d.Commands, *current)
			current = nil
		}
	}

	for _, line := range lines[first:] {
		match := commandRegex.FindStringSubmatch(line)
		if match == nil {
			if delimiterRegex.MatchString(line) {
				flush()
				continue
			}
			if current != nil {
				current.Content = append(current.Content, line)
			}
			continue
		}

		flush()
		name, args := match[1], match[2]
		switch name {
		case "DELETE_FILE":
			d.DeleteFile = true
		case "INSERT_AFTER_LINE":
			n, err := parseArgs(name, args, 1)
			if err != nil {
				return nil, err
			}
			current = &patcher.Command{Kind: patcher.InsertAfter, Line: n[0]}
		case "REPLACE_LINES", "DELETE_LINES":
			n, err := parseArgs(name, args, 2)
			if err != nil {
				return nil, err
			}
			kind := patcher.Replace
			if name == "DELETE_LINES" {
				kind = patcher.Delete
			}
			current = &patcher.Command{Kind: kind, Start: n[0], End: n[1]}
		default:
			return nil, fmt.Errorf("unknown command %s", name)
		}
	}
	flush()

	for i := range d.Commands {
		if d.Commands[i].Kind == patcher.Delete {
			d.Commands[i].Content = nil
		}
	}
	if d.DeleteFile && len(d.Commands) > 0 {
		return nil, fmt.Errorf("DELETE_FILE cannot be combined with line commands")
	}
	return d, nil
}

func parseArgs(name, args string, want int) ([]int, error) {
	var out []int
	if strings.TrimSpace(args) != "" {
		for _, a := range strings.Split(args, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(a))
			if err != nil {
				return nil, fmt.Errorf("%s: invalid line number %q", name, strings.TrimSpace(a))
			}
			out = append(out, n)
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", name, want, len(out))
	}
	return out, nil
}

// FormatCommand renders a command back into its marker line and payload.
func FormatCommand(c patcher.Command) []string {
	var header string
	switch c.Kind {
	case patcher.InsertAfter:
		header = fmt.Sprintf("@@ PAWS_CMD INSERT_AFTER_LINE(%d) @@", c.Line)
	case patcher.Replace:
		header = fmt.Sprintf("@@ PAWS_CMD REPLACE_LINES(%d,%d) @@", c.Start, c.End)
	case patcher.Delete:
		header = fmt.Sprintf("@@ PAWS_CMD DELETE_LINES(%d,%d) @@", c.Start, c.End)
	}
	return append([]string{header}, c.Content...)
}

// DeleteFileCommand is the marker line for a whole-file delete.
const DeleteFileCommand = "@@ PAWS_CMD DELETE_FILE() @@"
