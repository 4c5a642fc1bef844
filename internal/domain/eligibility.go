package domain

import "hash/fnv"

// GroupAll is the sentinel target group that matches every device.
const GroupAll = "all"

// DevicePercentile maps a device ID to a stable position in [0, 100).
// The hash is FNV-1a over the raw device ID, deliberately unsalted by
// plan ID: a device's relative ranking is identical across every plan,
// so the devices admitted at a given percentage never change between
// evaluations, process restarts, or plans.
func DevicePercentile(id DeviceID) float64 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return float64(h.Sum32() % 100)
}

// PhaseOpen reports whether the phase's approval gate admits devices.
// A phase requiring approval blocks all devices until Approved is set.
func PhaseOpen(phase RolloutPhase) bool {
	return !phase.RequireApproval || phase.Approved
}

// EligibleForPhase reports whether the device falls inside the phase's
// target percentage and the phase is open. Because percentages are
// non-decreasing across phases and the percentile is stable, a device
// that is eligible at one phase stays eligible at every later phase of
// the same plan.
func EligibleForPhase(id DeviceID, phase RolloutPhase) bool {
	if !PhaseOpen(phase) {
		return false
	}
	return DevicePercentile(id) <= phase.Percentage
}
