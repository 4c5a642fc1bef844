// Package journaltest provides contract tests for
// [domain.UpdateJournal] implementations.
package journaltest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

// Factory creates a fresh [domain.UpdateJournal] for each test.
type Factory func(t *testing.T) domain.UpdateJournal

// Run exercises the [domain.UpdateJournal] contract.
func Run(t *testing.T, factory Factory) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	attempt := func(id string, rollout domain.RolloutID, status domain.UpdateStatus, offset time.Duration) domain.UpdateAttempt {
		return domain.UpdateAttempt{
			ID:         id,
			RolloutID:  rollout,
			Version:    "2.0.0",
			Status:     status,
			StartedAt:  base.Add(offset),
			FinishedAt: base.Add(offset + time.Minute),
		}
	}

	t.Run("AppendAndList", func(t *testing.T) {
		j := factory(t)
		ctx := context.Background()

		if err := j.Append(ctx, attempt("a1", "r1", domain.UpdateStatusFailed, 0)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := j.Append(ctx, attempt("a2", "r1", domain.UpdateStatusSuccess, time.Hour)); err != nil {
			t.Fatalf("Append: %v", err)
		}

		got, err := j.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("List = %d attempts, want 2", len(got))
		}
		// Most recent first.
		if got[0].ID != "a2" {
			t.Errorf("List[0].ID = %q, want %q", got[0].ID, "a2")
		}
	})

	t.Run("LastForRollout", func(t *testing.T) {
		j := factory(t)
		ctx := context.Background()

		_ = j.Append(ctx, attempt("a1", "r1", domain.UpdateStatusFailed, 0))
		_ = j.Append(ctx, attempt("a2", "r2", domain.UpdateStatusSuccess, time.Hour))
		_ = j.Append(ctx, attempt("a3", "r1", domain.UpdateStatusSuccess, 2*time.Hour))

		got, err := j.LastForRollout(ctx, "r1")
		if err != nil {
			t.Fatalf("LastForRollout: %v", err)
		}
		if got.ID != "a3" {
			t.Errorf("LastForRollout.ID = %q, want %q", got.ID, "a3")
		}
		if got.Status != domain.UpdateStatusSuccess {
			t.Errorf("Status = %q, want %q", got.Status, domain.UpdateStatusSuccess)
		}
	})

	t.Run("LastForRolloutNotFound", func(t *testing.T) {
		j := factory(t)
		_, err := j.LastForRollout(context.Background(), "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("LastForRollout: got %v, want ErrNotFound", err)
		}
	})

	t.Run("ListEmpty", func(t *testing.T) {
		j := factory(t)
		got, err := j.List(context.Background())
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("List = %d attempts, want 0", len(got))
		}
	})
}
