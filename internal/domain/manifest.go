package domain

import "time"

// ManifestEntry describes one synchronized artifact available for
// download. The sync engine compares Timestamp against its last
// successful sync time to avoid re-downloading applied updates.
type ManifestEntry struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	DataType  string    `json:"dataType"`
}

// UpdateManifest is the per-device list of remote artifacts, produced
// centrally and stored at the device's well-known manifest key.
type UpdateManifest struct {
	Updates []ManifestEntry `json:"updates"`
}
