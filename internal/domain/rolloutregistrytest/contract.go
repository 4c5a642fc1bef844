// Package rolloutregistrytest provides contract tests for
// [domain.RolloutRegistry] implementations.
package rolloutregistrytest

import (
	"context"
	"errors"
	"testing"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

// Seeder stores a rollout plan, standing in for the external release
// process that owns plan creation.
type Seeder func(t *testing.T, plan domain.RolloutPlan)

// Factory creates a fresh [domain.RolloutRegistry] plus a seeder for it.
type Factory func(t *testing.T) (domain.RolloutRegistry, Seeder)

// Run exercises the [domain.RolloutRegistry] contract.
func Run(t *testing.T, factory Factory) {
	sample := func(id domain.RolloutID, status domain.RolloutStatus) domain.RolloutPlan {
		return domain.RolloutPlan{
			ID:      id,
			Name:    "firmware 2.0",
			Version: "2.0.0",
			Status:  status,
			Phases: []domain.RolloutPhase{
				{ID: "canary", Percentage: 10},
				{ID: "fleet", Percentage: 100},
			},
			PackageURL:   "s3://updates/fw-2.0.0.tar.gz",
			PackageHash:  "abc123",
			TargetGroups: []string{"canary"},
		}
	}

	t.Run("Get", func(t *testing.T) {
		reg, seed := factory(t)
		seed(t, sample("r1", domain.RolloutStatusInProgress))

		got, err := reg.Get(context.Background(), "r1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Version != "2.0.0" {
			t.Errorf("Version = %q, want %q", got.Version, "2.0.0")
		}
		if len(got.Phases) != 2 {
			t.Errorf("Phases = %d, want 2", len(got.Phases))
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		reg, _ := factory(t)
		_, err := reg.Get(context.Background(), "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})

	t.Run("ListInProgressFiltersByStatus", func(t *testing.T) {
		reg, seed := factory(t)
		seed(t, sample("r1", domain.RolloutStatusInProgress))
		seed(t, sample("r2", domain.RolloutStatusCompleted))
		seed(t, sample("r3", domain.RolloutStatusPending))

		got, err := reg.ListInProgress(context.Background())
		if err != nil {
			t.Fatalf("ListInProgress: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("ListInProgress = %d plans, want 1", len(got))
		}
		if got[0].ID != "r1" {
			t.Errorf("ListInProgress[0].ID = %q, want %q", got[0].ID, "r1")
		}
	})

	t.Run("ListInProgressEmpty", func(t *testing.T) {
		reg, _ := factory(t)
		got, err := reg.ListInProgress(context.Background())
		if err != nil {
			t.Fatalf("ListInProgress: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("ListInProgress = %d plans, want 0", len(got))
		}
	})
}
