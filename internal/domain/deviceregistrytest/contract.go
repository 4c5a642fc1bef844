// Package deviceregistrytest provides contract tests for
// [domain.DeviceRegistry] implementations.
package deviceregistrytest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

// Seeder enrolls a device record, standing in for the external
// enrollment process the registry assumes.
type Seeder func(t *testing.T, record domain.DeviceRecord)

// Factory creates a fresh [domain.DeviceRegistry] plus a seeder for it.
type Factory func(t *testing.T) (domain.DeviceRegistry, Seeder)

// Run exercises the [domain.DeviceRegistry] contract.
func Run(t *testing.T, factory Factory) {
	sample := func() domain.DeviceRecord {
		return domain.DeviceRecord{
			ID:             "dev-1",
			Group:          "canary",
			CurrentVersion: "1.0.0",
			UpdateStatus:   domain.UpdateStatusIdle,
			Tags:           map[string]string{"region": "eu-west-1"},
		}
	}

	t.Run("Get", func(t *testing.T) {
		reg, seed := factory(t)
		seed(t, sample())

		got, err := reg.Get(context.Background(), "dev-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Group != "canary" {
			t.Errorf("Group = %q, want %q", got.Group, "canary")
		}
		if got.CurrentVersion != "1.0.0" {
			t.Errorf("CurrentVersion = %q, want %q", got.CurrentVersion, "1.0.0")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		reg, _ := factory(t)
		_, err := reg.Get(context.Background(), "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})

	t.Run("ReportUpdateSuccess", func(t *testing.T) {
		reg, seed := factory(t)
		seed(t, sample())
		ctx := context.Background()

		now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
		err := reg.ReportUpdate(ctx, "dev-1", domain.UpdateReport{
			RolloutID: "r1",
			Status:    domain.UpdateStatusSuccess,
			Version:   "1.1.0",
			Time:      now,
		})
		if err != nil {
			t.Fatalf("ReportUpdate: %v", err)
		}

		got, _ := reg.Get(ctx, "dev-1")
		if got.UpdateStatus != domain.UpdateStatusSuccess {
			t.Errorf("UpdateStatus = %q, want %q", got.UpdateStatus, domain.UpdateStatusSuccess)
		}
		if got.CurrentVersion != "1.1.0" {
			t.Errorf("CurrentVersion = %q, want %q", got.CurrentVersion, "1.1.0")
		}
		if got.LastUpdateID != "r1" {
			t.Errorf("LastUpdateID = %q, want %q", got.LastUpdateID, "r1")
		}
		if !got.LastUpdateTime.Equal(now) {
			t.Errorf("LastUpdateTime = %v, want %v", got.LastUpdateTime, now)
		}
	})

	t.Run("ReportUpdateFailureKeepsVersion", func(t *testing.T) {
		reg, seed := factory(t)
		seed(t, sample())
		ctx := context.Background()

		err := reg.ReportUpdate(ctx, "dev-1", domain.UpdateReport{
			RolloutID: "r1",
			Status:    domain.UpdateStatusFailed,
			Message:   "health check failed",
			Time:      time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("ReportUpdate: %v", err)
		}

		got, _ := reg.Get(ctx, "dev-1")
		if got.UpdateStatus != domain.UpdateStatusFailed {
			t.Errorf("UpdateStatus = %q, want %q", got.UpdateStatus, domain.UpdateStatusFailed)
		}
		if got.CurrentVersion != "1.0.0" {
			t.Errorf("CurrentVersion = %q, want unchanged %q", got.CurrentVersion, "1.0.0")
		}
		if got.LastUpdateMessage != "health check failed" {
			t.Errorf("LastUpdateMessage = %q", got.LastUpdateMessage)
		}
	})

	t.Run("Heartbeat", func(t *testing.T) {
		reg, seed := factory(t)
		seed(t, sample())
		ctx := context.Background()

		at := time.Date(2026, 8, 30, 9, 30, 0, 0, time.UTC)
		if err := reg.Heartbeat(ctx, "dev-1", at); err != nil {
			t.Fatalf("Heartbeat: %v", err)
		}
		got, _ := reg.Get(ctx, "dev-1")
		if !got.LastSeen.Equal(at) {
			t.Errorf("LastSeen = %v, want %v", got.LastSeen, at)
		}
	})
}
