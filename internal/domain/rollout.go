package domain

import "time"

// RolloutID uniquely identifies a rollout plan.
type RolloutID string

// RolloutStatus indicates the lifecycle state of a rollout plan.
type RolloutStatus string

const (
	RolloutStatusPending    RolloutStatus = "pending"
	RolloutStatusInProgress RolloutStatus = "in-progress"
	RolloutStatusCompleted  RolloutStatus = "completed"
	RolloutStatusFailed     RolloutStatus = "failed"
	RolloutStatusRolledBack RolloutStatus = "rolled-back"
)

// RolloutPhase is one step of a plan: a target percentage of the fleet,
// an optional approval gate, and the metrics monitored while the phase
// is active. Percentages are non-decreasing across a plan's phases so
// each phase's device set is a superset of the previous one; that is a
// convention of the plan author, not validated here.
type RolloutPhase struct {
	ID              string
	Percentage      float64
	StartTime       time.Time
	Duration        string
	RequireApproval bool
	Approved        bool
	Metrics         []string
	Thresholds      map[string]float64
}

// RolloutPlan is a fleet-wide update definition. Plans are created by a
// release process and are read-only from the device's perspective; phase
// advancement is owned by the central controller, the device only reads
// CurrentPhase.
type RolloutPlan struct {
	ID           RolloutID
	Name         string
	Description  string
	Version      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Status       RolloutStatus
	Phases       []RolloutPhase
	CurrentPhase int
	PackageURL   string
	PackageHash  string
	TargetGroups []string
	RollbackPlan RolloutID
	CreatedBy    string
}

// ActivePhase returns the plan's current phase. ok is false when
// CurrentPhase is out of range.
func (p RolloutPlan) ActivePhase() (RolloutPhase, bool) {
	if p.CurrentPhase < 0 || p.CurrentPhase >= len(p.Phases) {
		return RolloutPhase{}, false
	}
	return p.Phases[p.CurrentPhase], true
}

// TargetsGroup reports whether the plan targets the given device group,
// either explicitly or via the GroupAll sentinel.
func (p RolloutPlan) TargetsGroup(group string) bool {
	for _, g := range p.TargetGroups {
		if g == group || g == GroupAll {
			return true
		}
	}
	return false
}
