// Package localstoretest provides contract tests for
// [domain.LocalStore] implementations.
package localstoretest

import (
	"bytes"
	"errors"
	"sort"
	"testing"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

// Factory creates a fresh [domain.LocalStore] for each test. The store
// is closed by the contract.
type Factory func(t *testing.T) domain.LocalStore

// Run exercises the [domain.LocalStore] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("PutAndGet", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		if err := store.Put("sensor/temp", []byte("21.5")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := store.Get("sensor/temp")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(got, []byte("21.5")) {
			t.Errorf("Get = %q, want %q", got, "21.5")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Get("missing")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_ = store.Put("k", []byte("old"))
		_ = store.Put("k", []byte("new"))
		got, err := store.Get("k")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "new" {
			t.Errorf("Get = %q, want %q", got, "new")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_ = store.Put("k", []byte("v"))
		if err := store.Delete("k"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		_, err := store.Get("k")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get after Delete: got %v, want ErrNotFound", err)
		}
	})

	t.Run("KeysByPrefix", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_ = store.Put("pending/a", []byte("1"))
		_ = store.Put("pending/b", []byte("2"))
		_ = store.Put("data/a", []byte("3"))

		keys, err := store.Keys("pending/")
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		sort.Strings(keys)
		want := []string{"pending/a", "pending/b"}
		if len(keys) != len(want) {
			t.Fatalf("Keys = %v, want %v", keys, want)
		}
		for i := range want {
			if keys[i] != want[i] {
				t.Fatalf("Keys = %v, want %v", keys, want)
			}
		}
	})
}
