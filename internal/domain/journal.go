package domain

import (
	"context"
	"time"
)

// UpdateAttempt is one device-local journal entry recording the outcome
// of an update attempt, so operators can audit update history on the
// device even while it is offline.
type UpdateAttempt struct {
	ID         string
	RolloutID  RolloutID
	Version    string
	Status     UpdateStatus
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// UpdateJournal persists update attempts on the device.
type UpdateJournal interface {
	Append(ctx context.Context, attempt UpdateAttempt) error

	// List returns all attempts, most recent first.
	List(ctx context.Context) ([]UpdateAttempt, error)

	// LastForRollout returns the most recent attempt for the given
	// rollout, or ErrNotFound.
	LastForRollout(ctx context.Context, id RolloutID) (UpdateAttempt, error)
}
