// Package objectstoretest provides contract tests for
// [domain.ObjectStore] implementations.
package objectstoretest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

// Factory creates a fresh [domain.ObjectStore] for each test.
type Factory func(t *testing.T) domain.ObjectStore

// Run exercises the [domain.ObjectStore] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("PutAndGet", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		key := domain.DeviceDataKey("dev-1", "sensor/temp")
		meta := map[string]string{"device-id": "dev-1"}
		if err := store.Put(ctx, key, []byte("21.5"), meta); err != nil {
			t.Fatalf("Put: %v", err)
		}

		got, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(got, []byte("21.5")) {
			t.Errorf("Get = %q, want %q", got, "21.5")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		store := factory(t)
		_, err := store.Get(context.Background(), "devices/dev-1/data/missing")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})
}
