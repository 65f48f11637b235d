// Package review decides which planned changes are applied.
//
// A Reviewer only sets statuses on the ChangeSet it is given. Whatever is
// still pending when it returns is treated as rejected by the caller.
package review

import (
	"context"

	"github.com/sokinpui/dogs.go/model"
)

// Reviewer sets a status on each entry of a ChangeSet.
type Reviewer interface {
	Review(ctx context.Context, cs *model.ChangeSet) error
}

// ReviewerFunc adapts a function to a Reviewer.
type ReviewerFunc func(ctx context.Context, cs *model.ChangeSet) error

func (f ReviewerFunc) Review(ctx context.Context, cs *model.ChangeSet) error { return f(ctx, cs) }

// AutoAccept accepts every entry.
type AutoAccept struct{}

func (AutoAccept) Review(_ context.Context, cs *model.ChangeSet) error {
	cs.SetAll(model.StatusAccepted)
	return nil
}

// AutoReject rejects every entry.
type AutoReject struct{}

func (AutoReject) Review(_ context.Context, cs *model.ChangeSet) error {
	cs.SetAll(model.StatusRejected)
	return nil
}
