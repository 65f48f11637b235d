package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/sokinpui/dogs.go/model"
)

// Out receives all user-facing output.
var Out io.Writer = os.Stderr

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	PromptColor  = color.New(color.FgMagenta)
	FaintColor   = color.New(color.Faint)
)

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Out, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Out, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Out, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Out, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Out, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Out, "  "+format+"\n", a...)
}

func Prompt(format string, a ...interface{}) string {
	return PromptColor.Sprintf(format, a...)
}

func list(files []string) {
	for _, f := range files {
		fmt.Fprintf(Out, "  - %s\n", f)
	}
}

// --- Summaries ---

// PrintPlan lists the planned changes before review.
func PrintPlan(changes []*model.FileChange) {
	Header("--- %d file(s) in bundle ---", len(changes))
	for _, c := range changes {
		note := ""
		switch {
		case c.IsBinary:
			note = " (binary)"
		case c.Delta:
			note = " (line commands)"
		}
		Path("%-6s %s%s", c.Operation, c.Path, note)
	}
}

// PrintApplySummary lists what was written, removed and what failed.
func PrintApplySummary(s model.Summary) {
	Header("\n--- Apply Summary ---")

	if s.Message != "" {
		Info("%s", s.Message)
	}
	if len(s.Created) == 0 && len(s.Modified) == 0 && len(s.Deleted) == 0 && len(s.Failed) == 0 {
		Info("No files were changed.")
		return
	}

	if len(s.Created) > 0 {
		Success("Created %d file(s):", len(s.Created))
		list(s.Created)
	}
	if len(s.Modified) > 0 {
		Success("Modified %d file(s):", len(s.Modified))
		list(s.Modified)
	}
	if len(s.Deleted) > 0 {
		Success("Deleted %d file(s):", len(s.Deleted))
		list(s.Deleted)
	}
	if len(s.Failed) > 0 {
		Error("Failed to apply %d file(s):", len(s.Failed))
		list(s.Failed)
	}
}

// PrintReviewSummary reports how many entries were accepted and rejected.
func PrintReviewSummary(accepted, rejected int) {
	if accepted == 0 {
		Warning("No changes accepted (%d rejected). Nothing to apply.", rejected)
		return
	}
	Info("Accepted %d change(s), rejected %d.", accepted, rejected)
}

// PrintVerification reports the verification command result with its output.
func PrintVerification(v model.VerificationOutcome) {
	Header("\n--- Verification: %s ---", v.Command)
	switch {
	case v.Rejected:
		Error("Command rejected: only allowlisted test commands may run.")
	case v.TimedOut:
		Error("Timed out after %s.", v.Duration.Round(time.Millisecond))
	case v.Success:
		Success("Passed in %s.", v.Duration.Round(time.Millisecond))
	default:
		Error("Failed with exit code %d after %s.", v.ExitCode, v.Duration.Round(time.Millisecond))
	}
	if !v.Success {
		if out := strings.TrimSpace(v.Output()); out != "" {
			FaintColor.Fprintln(Out, out)
		}
	}
}

// PrintRollback reports whether the tree was restored after a failure.
func PrintRollback(rolledBack bool, keptCheckpoint string) {
	switch {
	case rolledBack:
		Success("Working tree restored to its state before the apply.")
	case keptCheckpoint != "":
		Warning("Changes remain applied. Your previous state is kept in stash %q.", keptCheckpoint)
	default:
		Warning("Changes remain applied. Inspect the working tree before continuing.")
	}
}

// --- Progress Bar ---

type ProgressBar struct {
	total   int
	prefix  string
	current int
}

func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{total: total, prefix: prefix}
}

func (p *ProgressBar) Start() {
	p.draw()
}

func (p *ProgressBar) Increment() {
	p.current++
	p.draw()
}

func (p *ProgressBar) Finish() {
	if p.total > 0 {
		fmt.Fprintln(Out)
	}
}

func (p *ProgressBar) draw() {
	if p.total == 0 {
		return
	}
	const barLength = 40
	percent := float64(p.current) / float64(p.total)
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)

	percentStr := fmt.Sprintf("%.1f%%", percent*100)
	countStr := fmt.Sprintf("[%d/%d]", p.current, p.total)

	fmt.Fprintf(Out, "\r%s |%s| %s %s", p.prefix, bar, countStr, percentStr)
}
