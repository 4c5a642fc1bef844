package domain_test

import (
	"fmt"
	"testing"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

// findDeviceWithPercentile scans generated IDs until one lands at the
// requested percentile. Percentiles are a pure function of the ID, so
// the scan is deterministic.
func findDeviceWithPercentile(t *testing.T, want float64) domain.DeviceID {
	t.Helper()
	for i := 0; i < 100000; i++ {
		id := domain.DeviceID(fmt.Sprintf("device-%04d", i))
		if domain.DevicePercentile(id) == want {
			return id
		}
	}
	t.Fatalf("no generated device ID has percentile %v", want)
	return ""
}

func TestDevicePercentile_Deterministic(t *testing.T) {
	id := domain.DeviceID("edge-gateway-0042")
	first := domain.DevicePercentile(id)
	for i := 0; i < 10; i++ {
		if got := domain.DevicePercentile(id); got != first {
			t.Fatalf("percentile changed between calls: %v then %v", first, got)
		}
	}
	if first < 0 || first >= 100 {
		t.Fatalf("percentile %v out of [0,100)", first)
	}
}

func TestEligibleForPhase_MonotonicAcrossPhases(t *testing.T) {
	// If a device is eligible at percentage P1, it must stay eligible
	// at every later phase with percentage P2 >= P1.
	for i := 0; i < 200; i++ {
		id := domain.DeviceID(fmt.Sprintf("fleet-node-%03d", i))
		eligibleAtPrev := false
		for _, pct := range []float64{5, 10, 25, 50, 100} {
			phase := domain.RolloutPhase{ID: "p", Percentage: pct}
			eligible := domain.EligibleForPhase(id, phase)
			if eligibleAtPrev && !eligible {
				t.Fatalf("device %s lost eligibility going to %v%%", id, pct)
			}
			eligibleAtPrev = eligible
		}
		// Every device is in at 100%.
		if !eligibleAtPrev {
			t.Fatalf("device %s not eligible at 100%%", id)
		}
	}
}

func TestEligibleForPhase_ApprovalGate(t *testing.T) {
	inside := findDeviceWithPercentile(t, 7)
	outside := findDeviceWithPercentile(t, 42)

	phase := domain.RolloutPhase{
		ID:              "canary",
		Percentage:      10,
		RequireApproval: true,
		Approved:        false,
	}

	// Unapproved phase blocks everyone, percentile notwithstanding.
	if domain.EligibleForPhase(inside, phase) {
		t.Error("unapproved phase admitted a device")
	}

	phase.Approved = true
	if !domain.EligibleForPhase(inside, phase) {
		t.Errorf("device at percentile 7 not admitted at 10%%")
	}
	if domain.EligibleForPhase(outside, phase) {
		t.Errorf("device at percentile 42 admitted at 10%%")
	}
}

func TestPhaseOpen(t *testing.T) {
	cases := []struct {
		name  string
		phase domain.RolloutPhase
		want  bool
	}{
		{"no approval required", domain.RolloutPhase{}, true},
		{"approval pending", domain.RolloutPhase{RequireApproval: true}, false},
		{"approved", domain.RolloutPhase{RequireApproval: true, Approved: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := domain.PhaseOpen(tc.phase); got != tc.want {
				t.Errorf("PhaseOpen = %v, want %v", got, tc.want)
			}
		})
	}
}
