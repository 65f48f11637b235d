package parser

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// fence describes a line that CommonMark reads as a fenced code block delimiter.
type fence struct {
	// Lang is the info string language, empty for a bare fence.
	Lang string
	// Bare is true when the line carries no info string and can close a block.
	Bare bool
}

// parseFence reports whether line on its own is a fenced code block opener or closer.
func parseFence(line string) (fence, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "```") && !strings.HasPrefix(trimmed, "~~~") {
		return fence{}, false
	}

	source := []byte(line)
	root := goldmark.DefaultParser().Parse(text.NewReader(source))
	node, ok := root.FirstChild().(*ast.FencedCodeBlock)
	if !ok || node.Lines().Len() != 0 {
		return fence{}, false
	}
	if node.Info == nil {
		return fence{Bare: true}, true
	}
	return fence{Lang: string(node.Language(source))}, true
}

// Normalize strips boundary blank lines and a single leading and trailing
// markdown fence line, keeping interior lines untouched. It also returns the
// language tag of the stripped opening fence, if any.
func Normalize(lines []string) ([]string, string) {
	lines = trimBlank(lines)
	lang := ""
	if len(lines) > 0 {
		if f, ok := parseFence(lines[0]); ok {
			lang = f.Lang
			lines = lines[1:]
		}
	}
	if len(lines) > 0 {
		if f, ok := parseFence(lines[len(lines)-1]); ok && f.Bare {
			lines = lines[:len(lines)-1]
		}
	}
	return trimBlank(lines), lang
}

func trimBlank(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}
