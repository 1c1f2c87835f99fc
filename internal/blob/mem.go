package blob

import (
	"context"
	"sync"

	"github.com/inkwellhq/inkwell-sync/internal/common"
)

// MemStore is an in-memory Store used in tests.
type MemStore struct {
	mu    sync.Mutex
	blobs map[string][]byte

	// FailWith, when non-nil, is returned by every operation.
	FailWith error
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

func (s *MemStore) Upload(ctx context.Context, path string, data []byte) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[path] = append([]byte(nil), data...)
	return nil
}

func (s *MemStore) Download(ctx context.Context, path string) ([]byte, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[path]
	if !ok {
		return nil, common.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Has reports whether a blob exists at path. Test inspection helper.
func (s *MemStore) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[path]
	return ok
}
