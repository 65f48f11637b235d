package transaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/sokinpui/dogs.go/internal/events"
)

var errStashNotFound = errors.New("stash not found")

// Checkpoint is the snapshot a transaction can return to. It is consumed
// exactly once, by Finalize or Rollback.
type Checkpoint struct {
	// Label is the stash message, unique per transaction.
	Label string
	// stashed is false when the tree was clean and no stash was created.
	stashed  bool
	consumed bool
}

// Clean reports whether the checkpoint is the clean tree itself.
func (c *Checkpoint) Clean() bool { return !c.stashed }

func (c *Checkpoint) consume() error {
	if c.consumed {
		return fmt.Errorf("%s: %w", c.Label, ErrCheckpointConsumed)
	}
	c.consumed = true
	return nil
}

// Checkpoint snapshots the working tree. A dirty tree is stashed with its
// untracked files and the stash is immediately re-applied, so the tree keeps
// its content while the stash holds the restore point.
func (t *Transaction) Checkpoint(ctx context.Context) (*Checkpoint, error) {
	if t.checkpoint != nil {
		return nil, fmt.Errorf("transaction %s already has a checkpoint", t.id)
	}
	if _, err := t.git.RevParse(ctx, "HEAD"); err != nil {
		recordCheckpoint(ctx, false, false)
		return nil, fmt.Errorf("%w: repository has no commits: %w", ErrCheckpointFailed, err)
	}
	status, err := t.git.Status(ctx)
	if err != nil {
		recordCheckpoint(ctx, false, false)
		return nil, fmt.Errorf("%w: %w", ErrCheckpointFailed, err)
	}

	cp := &Checkpoint{
		Label: fmt.Sprintf("dogs-checkpoint %s %s", t.now().UTC().Format("2006-01-02T15:04:05Z"), t.id),
	}

	if !status.IsClean {
		if err := t.git.StashPush(ctx, cp.Label); err != nil {
			recordCheckpoint(ctx, true, false)
			return nil, fmt.Errorf("%w: %w", ErrCheckpointFailed, err)
		}
		if err := t.reapply(ctx, cp.Label); err != nil {
			recordCheckpoint(ctx, true, false)
			return nil, fmt.Errorf("%w: %w", ErrCheckpointFailed, err)
		}
		cp.stashed = true
	}

	t.checkpoint = cp
	t.state = StateCheckpointed
	recordCheckpoint(ctx, cp.stashed, true)
	t.logger.Debug("checkpoint created", "label", cp.Label, "stashed", cp.stashed)
	t.notify.Emit(events.CheckpointCreated,
		"transaction_id", t.id,
		"label", cp.Label,
		"stashed", cp.stashed)
	return cp, nil
}

// Finalize keeps the applied tree and discards the checkpoint.
func (t *Transaction) Finalize(ctx context.Context) error {
	cp := t.checkpoint
	if cp == nil {
		return errors.New("no checkpoint to finalize")
	}
	if err := cp.consume(); err != nil {
		return err
	}
	t.state = StateFinalized
	if !cp.stashed {
		return nil
	}
	ref, err := t.findStash(ctx, cp.Label)
	if err != nil {
		return err
	}
	return t.git.StashDrop(ctx, ref)
}

// Rollback restores every path the apply was about to touch to its captured
// state and drops the stash. Nothing outside those paths is reset or
// cleaned. When a path cannot be restored the stash is kept for manual
// recovery.
func (t *Transaction) Rollback(ctx context.Context, reason string) error {
	cp := t.checkpoint
	if cp == nil {
		return errors.New("no checkpoint to roll back to")
	}
	if err := cp.consume(); err != nil {
		return err
	}

	t.logger.Info("rolling back", "reason", reason, "checkpoint", cp.Label)
	err := t.restore(ctx, cp)
	recordRollback(ctx, reason, err == nil)
	t.notify.Emit(events.Rollback,
		"transaction_id", t.id,
		"reason", reason,
		"label", cp.Label,
		"success", err == nil,
		"error", err)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRollbackFailed, err)
	}
	t.state = StateRolledBack
	return nil
}

func (t *Transaction) restore(ctx context.Context, cp *Checkpoint) error {
	if err := t.snapshot.Restore(); err != nil {
		return err
	}
	if !cp.stashed {
		return nil
	}
	ref, err := t.findStash(ctx, cp.Label)
	if err == nil {
		err = t.git.StashDrop(ctx, ref)
	}
	if err != nil {
		t.logger.Warn("tree restored but the checkpoint stash was not dropped", "checkpoint", cp.Label, "error", err)
	}
	return nil
}

// reapply puts a just-pushed stash back into the tree and index, leaving
// the stash entry in place. On failure the stash is popped so the user's
// work never stays only in the stash.
func (t *Transaction) reapply(ctx context.Context, label string) error {
	ref, err := t.findStash(ctx, label)
	switch {
	case errors.Is(err, errStashNotFound):
		return err
	case err != nil:
		// The push succeeded, so the newest entry is ours.
		ref = "stash@{0}"
	default:
		if err = t.git.StashApply(ctx, ref); err == nil {
			return nil
		}
	}
	if popErr := t.git.StashPop(ctx, ref); popErr != nil {
		t.logger.Error("could not restore stash after failed checkpoint", "stash", label, "error", popErr)
		return errors.Join(err, fmt.Errorf("your changes are kept in the stash %q: %w", label, popErr))
	}
	return err
}

// findStash resolves a label to its current stash ref.
func (t *Transaction) findStash(ctx context.Context, label string) (string, error) {
	entries, err := t.git.StashList(ctx)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Message == label {
			return e.Ref, nil
		}
	}
	return "", fmt.Errorf("%q: %w", label, errStashNotFound)
}
