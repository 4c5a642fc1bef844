package domain

import (
	"context"
	"time"
)

// DeviceRegistry is the shared per-device record table. The device reads
// its own record and writes only its own status fields; record creation
// (enrollment) and deletion are external administrative actions.
type DeviceRegistry interface {
	Get(ctx context.Context, id DeviceID) (DeviceRecord, error)

	// ReportUpdate writes the device's own update-status fields. It is
	// the only write a device ever performs to shared rollout state.
	ReportUpdate(ctx context.Context, id DeviceID, report UpdateReport) error

	// Heartbeat records when the device was last seen.
	Heartbeat(ctx context.Context, id DeviceID, at time.Time) error
}

// RolloutRegistry holds rollout plans. Read-only from the device; plans
// are created and advanced by the central controller.
type RolloutRegistry interface {
	Get(ctx context.Context, id RolloutID) (RolloutPlan, error)

	// ListInProgress returns all plans with status in-progress, backed
	// by a secondary index on status.
	ListInProgress(ctx context.Context) ([]RolloutPlan, error)
}
