// Package memory provides in-memory implementations of the registry and
// object-store ports, used for tests and for running the agent without
// cloud backing.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

// DeviceRegistry implements [domain.DeviceRegistry] with a map.
type DeviceRegistry struct {
	mu      sync.RWMutex
	records map[domain.DeviceID]domain.DeviceRecord
}

func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{records: make(map[domain.DeviceID]domain.DeviceRecord)}
}

// Enroll creates or replaces a device record. Enrollment is an external
// administrative action; it exists here so tests and local setups can
// seed the registry.
func (r *DeviceRegistry) Enroll(record domain.DeviceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ID] = record
}

func (r *DeviceRegistry) Get(_ context.Context, id domain.DeviceID) (domain.DeviceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[id]
	if !ok {
		return domain.DeviceRecord{}, fmt.Errorf("device %q: %w", id, domain.ErrNotFound)
	}
	return record, nil
}

func (r *DeviceRegistry) ReportUpdate(_ context.Context, id domain.DeviceID, report domain.UpdateReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return fmt.Errorf("device %q: %w", id, domain.ErrNotFound)
	}
	record.UpdateStatus = report.Status
	record.LastUpdateID = report.RolloutID
	record.LastUpdateTime = report.Time
	record.LastUpdateMessage = report.Message
	if report.Status == domain.UpdateStatusSuccess && report.Version != "" {
		record.CurrentVersion = report.Version
	}
	r.records[id] = record
	return nil
}

func (r *DeviceRegistry) Heartbeat(_ context.Context, id domain.DeviceID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return fmt.Errorf("device %q: %w", id, domain.ErrNotFound)
	}
	record.LastSeen = at
	r.records[id] = record
	return nil
}

// RolloutRegistry implements [domain.RolloutRegistry] with a map.
type RolloutRegistry struct {
	mu    sync.RWMutex
	plans map[domain.RolloutID]domain.RolloutPlan
}

func NewRolloutRegistry() *RolloutRegistry {
	return &RolloutRegistry{plans: make(map[domain.RolloutID]domain.RolloutPlan)}
}

// Put creates or replaces a plan. Plan authorship belongs to the central
// release process; Put exists for tests and local setups.
func (r *RolloutRegistry) Put(plan domain.RolloutPlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[plan.ID] = plan
}

func (r *RolloutRegistry) Get(_ context.Context, id domain.RolloutID) (domain.RolloutPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plan, ok := r.plans[id]
	if !ok {
		return domain.RolloutPlan{}, fmt.Errorf("rollout %q: %w", id, domain.ErrNotFound)
	}
	return plan, nil
}

func (r *RolloutRegistry) ListInProgress(_ context.Context) ([]domain.RolloutPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.RolloutPlan
	for _, plan := range r.plans {
		if plan.Status == domain.RolloutStatusInProgress {
			out = append(out, plan)
		}
	}
	return out, nil
}
