// Package transaction wraps an apply in a git checkpoint so that a failed
// apply or verification can restore the working tree exactly.
//
// A transaction moves through
//
//	CLEAN -> CHECKPOINTED -> APPLIED -> VERIFIED_OK | VERIFIED_FAIL -> FINALIZED | ROLLED_BACK
//
// Outside a git work tree it degrades to a plain apply ending in
// APPLIED_NO_VERIFY.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/sokinpui/dogs.go/internal/applier"
	"github.com/sokinpui/dogs.go/internal/events"
	"github.com/sokinpui/dogs.go/internal/fs"
	"github.com/sokinpui/dogs.go/internal/git"
	"github.com/sokinpui/dogs.go/model"
)

// State is a transaction lifecycle state.
type State string

const (
	StateClean           State = "CLEAN"
	StateCheckpointed    State = "CHECKPOINTED"
	StateApplied         State = "APPLIED"
	StateVerifiedOK      State = "VERIFIED_OK"
	StateVerifiedFail    State = "VERIFIED_FAIL"
	StateFinalized       State = "FINALIZED"
	StateRolledBack      State = "ROLLED_BACK"
	StateAppliedNoVerify State = "APPLIED_NO_VERIFY"
)

var (
	ErrCheckpointFailed   = errors.New("could not create checkpoint")
	ErrApplyFailed        = errors.New("apply failed")
	ErrVerificationFailed = errors.New("verification failed")
	ErrRollbackFailed     = errors.New("rollback failed")
	ErrCheckpointConsumed = errors.New("checkpoint already consumed")
)

// Applier writes the accepted entries of a ChangeSet. Snapshot captures
// those entries' paths before anything is written.
type Applier interface {
	Snapshot(cs *model.ChangeSet) (*fs.Snapshot, error)
	Apply(ctx context.Context, cs *model.ChangeSet) *applier.Result
}

// Verifier runs the verification command.
type Verifier interface {
	Run(ctx context.Context, command string) (model.VerificationOutcome, error)
}

// Options configures one Run.
type Options struct {
	// VerifyCommand is run after a successful apply. Empty skips verification.
	VerifyCommand string
	// RevertOnFail restores the checkpoint when verification fails.
	RevertOnFail bool
}

// Result describes how a transaction ended.
type Result struct {
	ID           string
	State        State
	Apply        *applier.Result
	Verification *model.VerificationOutcome
	RolledBack   bool
	// KeptCheckpoint names a stash left in place for manual recovery after a
	// failed verification without RevertOnFail, or after a failed rollback.
	KeptCheckpoint string
	Duration       time.Duration
}

// Transaction runs a single verified apply. It is not reusable.
type Transaction struct {
	id       string
	git      git.Client
	applier  Applier
	verifier Verifier
	notify   *events.Emitter
	logger   *slog.Logger
	now      func() time.Time

	state      State
	checkpoint *Checkpoint
	snapshot   *fs.Snapshot
}

// New creates a transaction. notify may be nil.
func New(g git.Client, a Applier, v Verifier, notify *events.Emitter) *Transaction {
	id := uuid.NewString()
	return &Transaction{
		id:       id,
		git:      g,
		applier:  a,
		verifier: v,
		notify:   notify,
		logger:   slog.Default().With("component", "transaction", "transaction_id", id),
		now:      time.Now,
		state:    StateClean,
	}
}

// ID returns the transaction identifier.
func (t *Transaction) ID() string { return t.id }

// State returns the current lifecycle state.
func (t *Transaction) State() State { return t.state }

// Run executes checkpoint, apply, verify and finalize or rollback, in that order.
func (t *Transaction) Run(ctx context.Context, cs *model.ChangeSet, opts Options) (res *Result, err error) {
	start := t.now()
	res = &Result{ID: t.id}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transaction panicked: %v", r)
			t.logger.Error("panic during transaction", "panic", r, "stack", string(debug.Stack()))
			if t.checkpoint != nil && !t.checkpoint.consumed {
				if rbErr := t.rollback(ctx, "panic", res); rbErr != nil {
					err = errors.Join(err, rbErr)
				}
			}
		}
		res.State = t.state
		res.Duration = t.now().Sub(start)
		recordTransaction(ctx, t.state, res.Duration, err == nil)
		t.notify.Emit(events.TransactionComplete,
			"transaction_id", t.id,
			"state", string(t.state),
			"success", err == nil,
			"rolled_back", res.RolledBack,
			"duration_ms", res.Duration.Milliseconds())
	}()

	if !t.git.IsGitRepository(ctx) {
		return res, t.applyWithoutSafetyNet(ctx, cs, opts, res)
	}

	snap, err := t.applier.Snapshot(cs)
	if err != nil {
		recordCheckpoint(ctx, false, false)
		return res, fmt.Errorf("%w: %w", ErrCheckpointFailed, err)
	}
	t.snapshot = snap

	if _, err := t.Checkpoint(ctx); err != nil {
		return res, err
	}

	res.Apply = t.applier.Apply(ctx, cs)
	t.state = StateApplied
	t.notify.Emit(events.ApplyPhase,
		"transaction_id", t.id,
		"success", res.Apply.OK(),
		"succeeded", res.Apply.Succeeded,
		"failed", res.Apply.Failed)

	if !res.Apply.OK() {
		applyErr := fmt.Errorf("%d file(s) could not be written: %w", res.Apply.Failed, ErrApplyFailed)
		t.logger.Warn("apply failed, restoring checkpoint", "failed", res.Apply.Failed)
		if rbErr := t.rollback(ctx, "apply_failed", res); rbErr != nil {
			return res, errors.Join(applyErr, rbErr)
		}
		return res, applyErr
	}

	if opts.VerifyCommand == "" {
		t.state = StateVerifiedOK
		t.finalize(ctx)
		return res, nil
	}

	outcome, verr := t.verifier.Run(ctx, opts.VerifyCommand)
	res.Verification = &outcome
	t.notify.Emit(events.VerificationRun,
		"transaction_id", t.id,
		"command", opts.VerifyCommand,
		"success", verr == nil && outcome.Success,
		"exit_code", outcome.ExitCode,
		"rejected", outcome.Rejected,
		"timed_out", outcome.TimedOut,
		"duration_ms", outcome.Duration.Milliseconds())

	if verr == nil && outcome.Success {
		t.state = StateVerifiedOK
		t.finalize(ctx)
		return res, nil
	}

	t.state = StateVerifiedFail
	failErr := verificationError(outcome, verr)
	if opts.RevertOnFail {
		if rbErr := t.rollback(ctx, "verification_failed", res); rbErr != nil {
			return res, errors.Join(failErr, rbErr)
		}
		return res, failErr
	}

	if !t.checkpoint.Clean() {
		res.KeptCheckpoint = t.checkpoint.Label
	}
	t.logger.Warn("verification failed, changes left applied", "checkpoint", t.checkpoint.Label)
	return res, failErr
}

// rollback restores the checkpoint even when ctx is cancelled. A failed
// restore keeps the stash and names it in res.
func (t *Transaction) rollback(ctx context.Context, reason string, res *Result) error {
	if err := t.Rollback(context.WithoutCancel(ctx), reason); err != nil {
		if !t.checkpoint.Clean() {
			res.KeptCheckpoint = t.checkpoint.Label
		}
		return err
	}
	res.RolledBack = true
	return nil
}

func (t *Transaction) applyWithoutSafetyNet(ctx context.Context, cs *model.ChangeSet, opts Options, res *Result) error {
	t.logger.Warn("output directory is not a git work tree, applying without checkpoint")
	if opts.VerifyCommand != "" {
		t.logger.Warn("skipping verification outside a git work tree", "command", opts.VerifyCommand)
	}
	res.Apply = t.applier.Apply(ctx, cs)
	t.state = StateAppliedNoVerify
	t.notify.Emit(events.ApplyPhase,
		"transaction_id", t.id,
		"success", res.Apply.OK(),
		"succeeded", res.Apply.Succeeded,
		"failed", res.Apply.Failed,
		"checkpoint", false)
	if !res.Apply.OK() {
		return fmt.Errorf("%d file(s) could not be written: %w", res.Apply.Failed, ErrApplyFailed)
	}
	return nil
}

func verificationError(outcome model.VerificationOutcome, cause error) error {
	switch {
	case cause != nil:
		return fmt.Errorf("%w: %w", ErrVerificationFailed, cause)
	default:
		return fmt.Errorf("%w: %q exited with code %d", ErrVerificationFailed, outcome.Command, outcome.ExitCode)
	}
}

// finalize drops the checkpoint. The apply already succeeded, so a failing
// drop only warns.
func (t *Transaction) finalize(ctx context.Context) {
	if err := t.Finalize(ctx); err != nil {
		t.logger.Warn("could not drop checkpoint", "checkpoint", t.checkpoint.Label, "error", err)
	}
}
