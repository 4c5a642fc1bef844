package badgerstore_test

import (
	"bytes"
	"testing"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain/localstoretest"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/infrastructure/badgerstore"
)

func TestStore(t *testing.T) {
	localstoretest.Run(t, func(t *testing.T) domain.LocalStore {
		store, err := badgerstore.Open(t.TempDir())
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		return store
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := badgerstore.Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Put("pending/sensor", []byte("queued")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := badgerstore.Open(dir)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get("pending/sensor")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !bytes.Equal(got, []byte("queued")) {
		t.Errorf("Get = %q, want %q", got, "queued")
	}
}
