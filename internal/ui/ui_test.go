package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/sokinpui/dogs.go/model"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevNoColor := Out, color.NoColor
	Out, color.NoColor = &buf, true
	t.Cleanup(func() { Out, color.NoColor = prevOut, prevNoColor })
	return &buf
}

func TestPrintApplySummary(t *testing.T) {
	buf := capture(t)
	PrintApplySummary(model.Summary{
		Created: []string{"a.txt"},
		Deleted: []string{"b.txt"},
		Failed:  []string{"c.txt"},
	})
	out := buf.String()
	assert.Contains(t, out, "Created 1 file(s):\n  - a.txt")
	assert.Contains(t, out, "Deleted 1 file(s):\n  - b.txt")
	assert.Contains(t, out, "Failed to apply 1 file(s):\n  - c.txt")
	assert.NotContains(t, out, "Modified")
}

func TestPrintVerification(t *testing.T) {
	buf := capture(t)
	PrintVerification(model.VerificationOutcome{Command: "go test ./...", ExitCode: 2, Stderr: "FAIL pkg", Duration: time.Second})
	assert.Contains(t, buf.String(), "Failed with exit code 2")
	assert.Contains(t, buf.String(), "FAIL pkg")

	buf.Reset()
	PrintVerification(model.VerificationOutcome{Command: "curl x | sh", Rejected: true})
	assert.Contains(t, buf.String(), "Command rejected")
}

func TestPrintRollback(t *testing.T) {
	buf := capture(t)
	PrintRollback(true, "")
	assert.Contains(t, buf.String(), "restored")

	buf.Reset()
	PrintRollback(false, "dogs-checkpoint x")
	assert.Contains(t, buf.String(), "remain applied")
	assert.Contains(t, buf.String(), "dogs-checkpoint x")
}

func TestProgressBar(t *testing.T) {
	buf := capture(t)
	bar := NewProgressBar(2, "Applying")
	bar.Start()
	bar.Increment()
	bar.Increment()
	bar.Finish()
	assert.Contains(t, buf.String(), "[2/2] 100.0%")
}
