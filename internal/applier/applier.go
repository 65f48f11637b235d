// Package applier writes accepted changes from a ChangeSet to the output tree.
package applier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sokinpui/dogs.go/internal/events"
	"github.com/sokinpui/dogs.go/internal/fs"
	"github.com/sokinpui/dogs.go/model"
)

// ErrStaleClassification is returned when a file no longer matches the state
// it was classified against.
var ErrStaleClassification = errors.New("file changed since the bundle was classified")

// Result aggregates per-file outcomes of one Apply call.
type Result struct {
	Succeeded int
	Failed    int
	Summary   model.Summary
	// Errors maps failed paths to their cause.
	Errors map[string]error
}

// OK reports whether every accepted change was written.
func (r *Result) OK() bool {
	return r.Failed == 0
}

// Applier writes changes under a resolver's root.
type Applier struct {
	resolver *fs.PathResolver
	notify   *events.Emitter
	logger   *slog.Logger
}

// New creates an Applier. notify may be nil.
func New(resolver *fs.PathResolver, notify *events.Emitter) *Applier {
	return &Applier{
		resolver: resolver,
		notify:   notify,
		logger:   slog.Default().With("component", "applier"),
	}
}

// Snapshot captures the current state of every accepted path, so a later
// Restore undoes exactly what Apply writes.
func (a *Applier) Snapshot(cs *model.ChangeSet) (*fs.Snapshot, error) {
	accepted := cs.Accepted()
	paths := make([]string, len(accepted))
	for i, change := range accepted {
		paths[i] = change.Path
	}
	return a.resolver.Capture(paths)
}

// Apply writes every accepted change in ChangeSet order. A failing file is
// recorded and the batch continues. Cancelling ctx fails the remaining files.
func (a *Applier) Apply(ctx context.Context, cs *model.ChangeSet) *Result {
	accepted := cs.Accepted()
	start := time.Now()
	res := &Result{Errors: make(map[string]error)}

	a.notify.Emit(events.ApplyStart, "root", a.resolver.Root(), "files", len(accepted))

	processSequentially(accepted, func(change *model.FileChange) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return a.applyOne(change)
	}, func(change *model.FileChange, err error) {
		if err != nil {
			res.Failed++
			res.Errors[change.Path] = err
			res.Summary.Failed = append(res.Summary.Failed, change.Path)
			a.logger.Warn("apply failed", "path", change.Path, "operation", change.Operation.String(), "error", err)
			a.notify.Emit(events.ApplyFile, "path", change.Path, "operation", change.Operation.String(), "success", false, "error", err)
			recordFile(ctx, change.Operation, false)
			return
		}
		res.Succeeded++
		switch change.Operation {
		case model.OpCreate:
			res.Summary.Created = append(res.Summary.Created, change.Path)
		case model.OpModify:
			res.Summary.Modified = append(res.Summary.Modified, change.Path)
		case model.OpDelete:
			res.Summary.Deleted = append(res.Summary.Deleted, change.Path)
		}
		a.notify.Emit(events.ApplyFile, "path", change.Path, "operation", change.Operation.String(), "success", true)
		recordFile(ctx, change.Operation, true)
	})

	recordBatch(ctx, time.Since(start), res.Succeeded, res.Failed)
	a.notify.Emit(events.ApplyComplete, "succeeded", res.Succeeded, "failed", res.Failed)
	return res
}

func (a *Applier) applyOne(change *model.FileChange) error {
	target, err := a.resolver.Resolve(change.Path)
	if err != nil {
		return err
	}
	if err := checkFresh(target, change); err != nil {
		return err
	}

	switch change.Operation {
	case model.OpDelete:
		return fs.RemoveFile(target)
	case model.OpCreate, model.OpModify:
		return fs.WriteFile(target, change.NewContent)
	default:
		return fmt.Errorf("unknown operation %v", change.Operation)
	}
}

// checkFresh re-probes the target right before it is written.
func checkFresh(target string, change *model.FileChange) error {
	if change.Operation == model.OpDelete {
		return nil
	}
	current, exists, err := fs.ReadIfExists(target)
	if err != nil {
		return err
	}
	switch {
	case change.Operation == model.OpCreate && exists:
		return fmt.Errorf("%w: %s was created after classification", ErrStaleClassification, change.Path)
	case change.Operation == model.OpModify && !exists:
		return fmt.Errorf("%w: %s was removed after classification", ErrStaleClassification, change.Path)
	case change.Operation == model.OpModify && !bytes.Equal(current, change.OldContent):
		return fmt.Errorf("%w: %s was modified after classification", ErrStaleClassification, change.Path)
	}
	return nil
}

// processSequentially runs fn over items in order, reporting each result to done.
func processSequentially[T any](items []T, fn func(T) error, done func(T, error)) {
	for _, item := range items {
		done(item, fn(item))
	}
}
