package domain

import "time"

// PendingChange is a local write awaiting upload. Changes are held in
// memory and mirrored into the local store so a crash cannot lose them;
// a change is removed only after a confirmed upload.
type PendingChange struct {
	Key  string
	Data []byte
}

// SyncStatus is an observability snapshot of the sync engine.
type SyncStatus struct {
	DeviceID       DeviceID
	LastSyncTime   time.Time
	Online         bool
	InProgress     bool
	PendingChanges int
}

// SyncHandler processes synchronized data of one data type. Handlers own
// conflict resolution for their type; the engine itself applies only
// last-writer-wins to the keys it manages directly.
type SyncHandler interface {
	// ProcessUpdate applies a downloaded artifact.
	ProcessUpdate(key string, data []byte) error

	// GetLocalChanges returns the handler's outstanding local writes,
	// keyed relative to the handler's data type.
	GetLocalChanges() (map[string][]byte, error)

	// MergeConflicts produces the winning payload when both sides
	// changed the same key.
	MergeConflicts(local, remote []byte) ([]byte, error)
}
