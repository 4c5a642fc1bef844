package domain

import (
	"context"
	"fmt"
)

// LocalStore is the embedded, crash-safe key/value store each device
// owns exclusively. Implementations return ErrNotFound for missing keys.
type LocalStore interface {
	Put(key string, data []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error

	// Keys returns all keys with the given prefix.
	Keys(prefix string) ([]string, error)

	Close() error
}

// ObjectStore is the shared cloud blob store. Devices write only under
// their own devices/{deviceID}/ prefix; that namespacing is the
// concurrency-safety boundary, there is no central lock.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, metadata map[string]string) error
	Get(ctx context.Context, key string) ([]byte, error)

	// FetchURL retrieves a blob addressed by a full store URL
	// (e.g. s3://bucket/path), used for rollout packages that live
	// outside the device's own prefix.
	FetchURL(ctx context.Context, rawURL string) ([]byte, error)
}

// DeviceDataKey returns the upload key for one synchronized value.
func DeviceDataKey(id DeviceID, key string) string {
	return fmt.Sprintf("devices/%s/data/%s", id, key)
}

// DeviceUpdateKey returns the download key for one manifest entry.
func DeviceUpdateKey(id DeviceID, key string) string {
	return fmt.Sprintf("devices/%s/updates/%s", id, key)
}

// DeviceManifestKey returns the device's well-known manifest location.
func DeviceManifestKey(id DeviceID) string {
	return fmt.Sprintf("devices/%s/manifest.json", id)
}
