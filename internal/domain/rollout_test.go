package domain_test

import (
	"testing"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

func TestRolloutPlan_ActivePhase(t *testing.T) {
	plan := domain.RolloutPlan{
		Phases: []domain.RolloutPhase{
			{ID: "canary", Percentage: 10},
			{ID: "broad", Percentage: 50},
		},
	}

	plan.CurrentPhase = 1
	phase, ok := plan.ActivePhase()
	if !ok {
		t.Fatal("ActivePhase: ok = false for in-range index")
	}
	if phase.ID != "broad" {
		t.Errorf("ActivePhase ID = %q, want %q", phase.ID, "broad")
	}

	plan.CurrentPhase = 2
	if _, ok := plan.ActivePhase(); ok {
		t.Error("ActivePhase: ok = true for out-of-range index")
	}

	plan.CurrentPhase = -1
	if _, ok := plan.ActivePhase(); ok {
		t.Error("ActivePhase: ok = true for negative index")
	}
}

func TestRolloutPlan_TargetsGroup(t *testing.T) {
	plan := domain.RolloutPlan{TargetGroups: []string{"canary", "staging"}}

	if !plan.TargetsGroup("canary") {
		t.Error("explicit group not matched")
	}
	if plan.TargetsGroup("production") {
		t.Error("unlisted group matched")
	}

	all := domain.RolloutPlan{TargetGroups: []string{domain.GroupAll}}
	if !all.TargetsGroup("production") {
		t.Error("sentinel group did not match every device group")
	}
}

func TestUpdateStatus_Terminal(t *testing.T) {
	for status, want := range map[domain.UpdateStatus]bool{
		domain.UpdateStatusIdle:     true,
		domain.UpdateStatusSuccess:  true,
		domain.UpdateStatusFailed:   true,
		domain.UpdateStatusUpdating: false,
	} {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}
