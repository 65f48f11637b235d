package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sokinpui/dogs.go/cli"
	"github.com/sokinpui/dogs.go/dogs"
	"github.com/sokinpui/dogs.go/internal/events"
	"github.com/sokinpui/dogs.go/internal/review"
	"github.com/sokinpui/dogs.go/internal/runner"
	"github.com/sokinpui/dogs.go/internal/source"
	"github.com/sokinpui/dogs.go/internal/transaction"
	"github.com/sokinpui/dogs.go/internal/tui"
	"github.com/sokinpui/dogs.go/internal/ui"
	"github.com/sokinpui/dogs.go/model"
)

func runApply(cmd *cobra.Command, args []string) error {
	bundleArg, outputDir := args[0], args[1]

	fc, err := cli.LoadFile(outputDir)
	if err != nil {
		return err
	}
	cfg.Merge(fc, cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return err
	}

	content, err := source.New().GetContent(bundleArg)
	if err != nil {
		return err
	}

	reviewer, closeInput, err := chooseReviewer(cfg)
	if err != nil {
		return err
	}
	defer closeInput()

	interactiveTerm := isTerminal(os.Stderr) && !cfg.Verbose
	var sinks []events.Sink
	if interactiveTerm {
		sinks = append(sinks, newProgressSink())
	}

	app, err := dogs.New(cfg, outputDir, sinks...)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Close()

	if cfg.Verify != "" && interactiveTerm {
		input, closeTTY := terminalInput()
		defer closeTTY()
		app.SetVerifier(spinnerVerifier{inner: runner.New(app.Root(), cfg.Timeout), input: input})
	}

	report, err := app.Execute(cmd.Context(), content, announce(reviewer))
	printReport(report)
	return exitError(report, err)
}

// exitError decides whether err fails the command. A verification failure
// whose changes were rolled back leaves the tree as it was, so the command
// succeeds; printReport has already shown the failure.
func exitError(r *dogs.Report, err error) error {
	if err == nil || r == nil || r.Transaction == nil {
		return err
	}
	if r.Transaction.RolledBack &&
		errors.Is(err, transaction.ErrVerificationFailed) &&
		!errors.Is(err, transaction.ErrRollbackFailed) {
		slog.Debug("verification failed and was rolled back", "error", err)
		return nil
	}
	return err
}

// chooseReviewer maps the review flags to a Reviewer. Without a flag the
// interactive reviewer is used when a terminal is available.
func chooseReviewer(c *cli.Config) (review.Reviewer, func(), error) {
	nop := func() {}
	switch {
	case c.Yes:
		return review.AutoAccept{}, nop, nil
	case c.No:
		return review.AutoReject{}, nop, nil
	}

	if !isTerminal(os.Stderr) {
		if c.Interactive {
			return nil, nop, fmt.Errorf("--interactive needs a terminal")
		}
		return nil, nop, fmt.Errorf("not running in a terminal: pass --yes or --no to choose what to apply")
	}
	input, closeTTY := terminalInput()
	if input == nil {
		return nil, nop, fmt.Errorf("no terminal to read review keys from: pass --yes or --no")
	}
	return review.Interactive{Input: input, Output: os.Stderr}, closeTTY, nil
}

// terminalInput returns stdin when it is a terminal, otherwise the
// controlling terminal. It returns nil when neither is available.
func terminalInput() (io.Reader, func()) {
	if isTerminal(os.Stdin) {
		return os.Stdin, func() {}
	}
	tty, err := os.Open("/dev/tty")
	if err != nil {
		return nil, func() {}
	}
	return tty, func() { tty.Close() }
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// announce prints the plan before handing it to r.
func announce(r review.Reviewer) review.Reviewer {
	return review.ReviewerFunc(func(ctx context.Context, cs *model.ChangeSet) error {
		ui.PrintPlan(cs.All())
		return r.Review(ctx, cs)
	})
}

// newProgressSink draws a progress bar for the apply phase.
func newProgressSink() events.Sink {
	var bar *ui.ProgressBar
	return events.SinkFunc(func(e events.Event) error {
		switch e.Name {
		case events.ApplyStart:
			total, _ := e.Fields["files"].(int)
			bar = ui.NewProgressBar(total, "Applying")
			bar.Start()
		case events.ApplyFile:
			if bar != nil {
				bar.Increment()
			}
		case events.ApplyComplete:
			if bar != nil {
				bar.Finish()
				bar = nil
			}
		}
		return nil
	})
}

// spinnerVerifier shows a spinner while the verification command runs.
type spinnerVerifier struct {
	inner transaction.Verifier
	input io.Reader
}

func (s spinnerVerifier) Run(ctx context.Context, command string) (model.VerificationOutcome, error) {
	outcome := model.VerificationOutcome{Command: command}
	err := tui.Run(ctx, s.input, os.Stderr, "Running "+command, func(ctx context.Context) error {
		var err error
		outcome, err = s.inner.Run(ctx, command)
		return err
	})
	return outcome, err
}

func printReport(r *dogs.Report) {
	if r == nil {
		return
	}
	reviewed := r.Plan != nil && r.Plan.Len() > 0
	if reviewed {
		ui.PrintReviewSummary(r.Accepted, r.Rejected)
	}
	if r.Apply == nil {
		if !reviewed && r.Message != "" {
			ui.Info("%s", r.Message)
		}
		return
	}

	ui.PrintApplySummary(r.Summary())

	tx := r.Transaction
	if tx != nil {
		if tx.State == transaction.StateAppliedNoVerify {
			ui.Warning("Not a git work tree: no checkpoint was taken and verification was skipped.")
		}
		if tx.Verification != nil {
			ui.PrintVerification(*tx.Verification)
		}
		if tx.RolledBack || tx.State == transaction.StateVerifiedFail || tx.KeptCheckpoint != "" {
			ui.PrintRollback(tx.RolledBack, tx.KeptCheckpoint)
		}
	}
	if r.HistoryID != "" {
		ui.FaintColor.Fprintf(ui.Out, "Recorded as %s\n", r.HistoryID)
	}
}
