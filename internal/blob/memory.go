package blob

import (
	"context"
	"io"
	"sync"

	"github.com/go-faster/errors"
)

// MemoryStore keeps blobs in process memory. Development and test use only;
// a restart loses everything.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryStore returns an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores the blob under key and returns a mem:// reference.
func (s *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, "read blob")
	}

	s.mu.Lock()
	s.blobs[key] = data
	s.mu.Unlock()
	return "mem://" + key, nil
}

// Get returns a stored blob's bytes.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.blobs[key]
	if !ok {
		return nil, errors.Errorf("blob %q not found", key)
	}
	return append([]byte(nil), data...), nil
}
