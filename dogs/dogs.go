// Package dogs applies file bundles to an output directory: parse, review,
// then a plain or verified apply.
package dogs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/sokinpui/dogs.go/cli"
	"github.com/sokinpui/dogs.go/internal/applier"
	"github.com/sokinpui/dogs.go/internal/events"
	"github.com/sokinpui/dogs.go/internal/fs"
	"github.com/sokinpui/dogs.go/internal/git"
	"github.com/sokinpui/dogs.go/internal/lock"
	"github.com/sokinpui/dogs.go/internal/nvim"
	"github.com/sokinpui/dogs.go/internal/parser"
	"github.com/sokinpui/dogs.go/internal/review"
	"github.com/sokinpui/dogs.go/internal/runner"
	"github.com/sokinpui/dogs.go/internal/state"
	"github.com/sokinpui/dogs.go/internal/transaction"
	"github.com/sokinpui/dogs.go/model"
)

// Outcomes recorded in the history for runs without a transaction.
const (
	OutcomeApplied = "applied"
	OutcomePartial = "partial"
)

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// Report describes one Execute call.
type Report struct {
	Plan     *model.ChangeSet
	Accepted int
	Rejected int
	// Apply is nil when nothing was accepted.
	Apply *applier.Result
	// Transaction is set for verified applies.
	Transaction *transaction.Result
	HistoryID   string
	Message     string
}

// Summary returns the apply summary, annotated with Message.
func (r *Report) Summary() model.Summary {
	var s model.Summary
	if r.Apply != nil {
		s = r.Apply.Summary
	}
	s.Message = r.Message
	return s
}

// App orchestrates the entire application logic for one output directory.
type App struct {
	cfg        *cli.Config
	resolver   *fs.PathResolver
	history    *state.Manager
	notify     *events.Emitter
	verifier   transaction.Verifier
	eventsFile io.Closer
	logger     *slog.Logger
}

// New creates an App rooted at outputDir. Extra sinks receive every
// progress event next to the ones configured in cfg.
func New(cfg *cli.Config, outputDir string, sinks ...events.Sink) (*App, error) {
	if cfg == nil {
		cfg = cli.Default()
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	resolver, err := fs.NewPathResolver(outputDir)
	if err != nil {
		return nil, err
	}
	history, err := state.New(resolver.Root())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history: %w", err)
	}

	a := &App{
		cfg:      cfg,
		resolver: resolver,
		history:  history,
		verifier: runner.New(resolver.Root(), cfg.Timeout),
		logger:   slog.Default().With("component", "app"),
	}

	var all events.Multi
	if cfg.EventsFile != "" {
		f, err := os.OpenFile(cfg.EventsFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open events file: %w", err)
		}
		a.eventsFile = f
		all = append(all, events.NewJSONLines(f))
	}
	if cfg.Verbose {
		all = append(all, events.Slog{Logger: slog.Default().With("component", "events")})
	}
	all = append(all, sinks...)
	if len(all) > 0 {
		a.notify = events.NewEmitter(all)
	}
	return a, nil
}

// Close releases the events file, if any.
func (a *App) Close() error {
	if a.eventsFile != nil {
		return a.eventsFile.Close()
	}
	return nil
}

// Root returns the absolute output directory.
func (a *App) Root() string {
	return a.resolver.Root()
}

// SetVerifier replaces the command runner used by verified applies.
func (a *App) SetVerifier(v transaction.Verifier) {
	a.verifier = v
}

// Parse classifies bundle content against the output directory.
func (a *App) Parse(content string) (*model.ChangeSet, error) {
	cs, err := parser.CreatePlan(content, a.resolver, a.notify, parser.Options{Strict: a.cfg.Strict})
	if err != nil {
		return nil, fmt.Errorf("failed to create execution plan: %w", err)
	}
	return cs, nil
}

// Review hands cs to r and rejects whatever is left pending.
func (a *App) Review(ctx context.Context, cs *model.ChangeSet, r review.Reviewer) error {
	defer cs.ResolvePending(model.StatusRejected)
	if err := r.Review(ctx, cs); err != nil {
		return fmt.Errorf("review failed: %w", err)
	}
	return nil
}

// Apply writes the accepted entries of cs without a checkpoint.
func (a *App) Apply(ctx context.Context, cs *model.ChangeSet) (*applier.Result, error) {
	res := applier.New(a.resolver, a.notify).Apply(ctx, cs)
	if !res.OK() {
		return res, fmt.Errorf("%d file(s) could not be written: %w", res.Failed, joinErrors(res.Errors))
	}
	return res, nil
}

// VerifiedApply runs cs through a git transaction with the configured
// verification command.
func (a *App) VerifiedApply(ctx context.Context, cs *model.ChangeSet) (*transaction.Result, error) {
	client, err := git.NewClient(a.resolver.Root(), a.cfg.GitTimeout)
	if err != nil {
		return nil, err
	}
	tx := transaction.New(client, applier.New(a.resolver, a.notify), a.verifier, a.notify)
	return tx.Run(ctx, cs, transaction.Options{
		VerifyCommand: a.cfg.Verify,
		RevertOnFail:  a.cfg.RevertOnFail,
	})
}

// History returns the recorded apply runs, oldest first.
func (a *App) History() ([]state.HistoryEntry, error) {
	return a.history.List()
}

// Execute parses content, reviews it with r and applies what was accepted,
// holding the working-tree lock for the write phase.
func (a *App) Execute(ctx context.Context, content string, r review.Reviewer) (report *Report, err error) {
	// Centralized panic recovery.
	defer func() {
		if rec := recover(); rec != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", rec),
				Stack: debug.Stack(),
			}
		}
	}()

	report = &Report{}
	if strings.TrimSpace(content) == "" {
		report.Message = "Source is empty. Nothing to process."
		return report, nil
	}

	cs, err := a.Parse(content)
	if err != nil {
		return report, err
	}
	report.Plan = cs
	if cs.Len() == 0 {
		report.Message = "No valid file blocks were found. Nothing to do."
		return report, nil
	}

	if err := a.Review(ctx, cs, r); err != nil {
		return report, err
	}
	report.Accepted, report.Rejected = len(cs.Accepted()), len(cs.Rejected())
	if report.Accepted == 0 {
		report.Message = "No changes accepted. Nothing to apply."
		return report, nil
	}

	l, err := lock.Acquire(a.resolver.Root(), "apply")
	if err != nil {
		return report, err
	}
	defer func() {
		if rerr := l.Release(); rerr != nil {
			a.logger.Warn("could not release lock", "error", rerr)
		}
	}()

	var outcome string
	if a.cfg.Verify != "" {
		var txRes *transaction.Result
		txRes, err = a.VerifiedApply(ctx, cs)
		report.Transaction = txRes
		if txRes != nil {
			report.Apply = txRes.Apply
			outcome = strings.ToLower(string(txRes.State))
		}
	} else {
		report.Apply, err = a.Apply(ctx, cs)
		outcome = OutcomeApplied
		if err != nil {
			outcome = OutcomePartial
		}
	}

	if report.Apply != nil {
		report.HistoryID = a.record(outcome, report)
		a.syncEditor(report)
	}
	return report, err
}

// record appends the run to the history. Failures only warn.
func (a *App) record(outcome string, report *Report) string {
	var ops []state.Operation
	if report.Transaction == nil || !report.Transaction.RolledBack {
		ops = state.CreateOperations(a.resolver, report.Apply.Summary)
	}
	entry := state.NewEntry(outcome, ops)
	if err := a.history.Write(entry); err != nil {
		a.logger.Warn("could not record apply history", "error", err)
		return ""
	}
	return entry.ID
}

// syncEditor asks Neovim to reload the touched files when enabled.
func (a *App) syncEditor(report *Report) {
	if !a.cfg.Nvim {
		return
	}
	s := report.Apply.Summary
	abs := func(paths []string) []string {
		out := make([]string, 0, len(paths))
		for _, p := range paths {
			if target, err := a.resolver.Resolve(p); err == nil {
				out = append(out, target)
			}
		}
		return out
	}
	changed := abs(append(append([]string{}, s.Created...), s.Modified...))
	removed := abs(s.Deleted)
	if report.Transaction != nil && report.Transaction.RolledBack {
		// Everything went back to its previous content.
		changed, removed = append(changed, removed...), nil
	}

	m, err := nvim.New()
	if err != nil {
		a.logger.Warn("editor sync skipped", "error", err)
		return
	}
	defer m.Close()
	if err := m.Sync(changed, removed); err != nil {
		a.logger.Warn("editor sync failed", "error", err)
	}
}

func joinErrors(errs map[string]error) error {
	paths := make([]string, 0, len(errs))
	for path := range errs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	all := make([]error, 0, len(errs))
	for _, path := range paths {
		all = append(all, fmt.Errorf("%s: %w", path, errs[path]))
	}
	return errors.Join(all...)
}
