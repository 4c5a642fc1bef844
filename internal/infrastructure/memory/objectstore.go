package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

// ObjectStore implements [domain.ObjectStore] with a map. FetchURL looks
// up the raw URL as a key, so tests seed packages with PutURL.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// Gets counts Get and FetchURL calls, for tests asserting on the
	// number of network round trips.
	gets int
}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: make(map[string][]byte)}
}

func (s *ObjectStore) Put(_ context.Context, key string, data []byte, _ map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

// PutURL seeds a blob addressed by a full store URL.
func (s *ObjectStore) PutURL(rawURL string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[rawURL] = append([]byte(nil), data...)
}

func (s *ObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q: %w", key, domain.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *ObjectStore) FetchURL(ctx context.Context, rawURL string) ([]byte, error) {
	return s.Get(ctx, rawURL)
}

// GetCount returns how many Get/FetchURL calls the store has served.
func (s *ObjectStore) GetCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gets
}

// Object returns the stored bytes for a key, for test assertions.
func (s *ObjectStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}
