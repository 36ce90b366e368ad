// Package repository persists status transition records and aggregates them
// per user for ranking.
package repository

import (
	"context"

	"github.com/okian/posture/internal/domain/model"
)

// AggregateFilter narrows an aggregate query.
type AggregateFilter struct {
	// ExcludeSession drops records written by this session id, so a live
	// session can be merged in from memory without counting it twice.
	ExcludeSession string
	// User limits the result to one user when set.
	User string
}

// Store provides append-only access to transition history.
type Store interface {
	// Insert appends one transition record.
	Insert(ctx context.Context, rec model.TransitionRecord) error

	// Aggregates sums history per user, ordered by user name.
	Aggregates(ctx context.Context, filter AggregateFilter) ([]model.UserAggregate, error)

	// HasUser reports whether any record exists for user.
	HasUser(ctx context.Context, user string) (bool, error)

	// Close releases the store. Further calls return ErrClosed.
	Close() error
}

func validate(rec model.TransitionRecord) error {
	if rec.User == "" {
		return wrapInvalid("empty user")
	}
	if rec.Status != model.StatusGood && rec.Status != model.StatusSlouch {
		return wrapInvalid("status " + rec.Status.Key())
	}
	if rec.Duration < 0 {
		return wrapInvalid("negative duration")
	}
	return nil
}
