package domain

import "time"

// DeviceID uniquely identifies an enrolled edge device. It is immutable
// for the lifetime of the device.
type DeviceID string

// UpdateStatus tracks a device's progress through an update attempt.
// Valid transitions are idle -> updating -> {success, failed}; a device
// in "updating" is never selected for a new application until it reaches
// a terminal state.
type UpdateStatus string

const (
	UpdateStatusIdle     UpdateStatus = "idle"
	UpdateStatusUpdating UpdateStatus = "updating"
	UpdateStatusSuccess  UpdateStatus = "success"
	UpdateStatusFailed   UpdateStatus = "failed"
)

// Terminal reports whether the status permits starting a new update attempt.
func (s UpdateStatus) Terminal() bool {
	return s != UpdateStatusUpdating
}

// DeviceRecord is the registry's view of one edge device: identity,
// grouping for rollout targeting, and the outcome of its last update
// attempt. The device process writes only its own record.
type DeviceRecord struct {
	ID                DeviceID
	Group             string
	CurrentVersion    string
	UpdateStatus      UpdateStatus
	LastUpdateID      RolloutID
	LastUpdateTime    time.Time
	LastUpdateMessage string
	LastSeen          time.Time
	Tags              map[string]string
}

// UpdateReport is the device-owned slice of its registry record written
// back after each update attempt. Version is set only on success.
type UpdateReport struct {
	RolloutID RolloutID
	Status    UpdateStatus
	Version   string
	Message   string
	Time      time.Time
}
