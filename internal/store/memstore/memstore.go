// Package memstore provides an in-memory EntityStore used in tests and as a
// stand-in backend where no database is available.
package memstore

import (
	"context"
	"sync"

	"github.com/inkwellhq/inkwell-sync/internal/model"
)

// Store keeps records in a map keyed by id. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	recs map[string]*model.Record

	// Root marks the store as holding root (project) records, whose
	// project scope is themselves; FindByProjectID then returns everything.
	Root bool

	// FailWith, when non-nil, is returned by every operation. Tests use it
	// to simulate transient connectivity failure.
	FailWith error
}

// New returns an empty store.
func New() *Store {
	return &Store{recs: make(map[string]*model.Record)}
}

func (s *Store) Create(ctx context.Context, projectID string, rec *model.Record) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := rec.Clone()
	if c.ProjectID == "" {
		c.ProjectID = projectID
	}
	s.recs[c.ID] = c
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*model.Record, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs[id].Clone(), nil
}

func (s *Store) FindByProjectID(ctx context.Context, projectID string) ([]*model.Record, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Record
	for _, r := range s.recs {
		if s.Root || r.ProjectID == projectID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, rec *model.Record) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec.Clone()
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	return nil
}

func (s *Store) DeleteByProjectID(ctx context.Context, projectID string) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.recs {
		if r.ProjectID == projectID {
			delete(s.recs, id)
		}
	}
	return nil
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

// Put stores rec directly, bypassing the error hook. Test setup helper.
func (s *Store) Put(rec *model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec.Clone()
}

// Get returns the stored record or nil. Test inspection helper.
func (s *Store) Get(id string) *model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs[id].Clone()
}
