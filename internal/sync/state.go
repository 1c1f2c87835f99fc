package sync

import (
	"sync"

	"github.com/inkwellhq/inkwell-sync/internal/model"
)

type queueKey struct {
	t  model.EntityType
	id string
}

// sharedState is the coordination state the Coordinator and the Router
// mutate: the single-flight flag, the ownership cache and the event queue.
// One mutex guards all three so the two paths stay mutually exclusive.
type sharedState struct {
	mu      sync.Mutex
	syncing bool
	owned   map[string]struct{}
	queue   map[queueKey]model.Event
}

func newSharedState() *sharedState {
	return &sharedState{
		owned: make(map[string]struct{}),
		queue: make(map[queueKey]model.Event),
	}
}

// tryBeginSync sets the single-flight flag, reporting false if a pass is
// already running.
func (s *sharedState) tryBeginSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing {
		return false
	}
	s.syncing = true
	return true
}

// endSync clears the single-flight flag. Always called from a defer so a
// failed pass cannot lock the engine out permanently.
func (s *sharedState) endSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncing = false
}

func (s *sharedState) syncInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

// setOwned replaces the ownership cache with the given project ids.
func (s *sharedState) setOwned(projectIDs []string) {
	owned := make(map[string]struct{}, len(projectIDs))
	for _, id := range projectIDs {
		owned[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owned = owned
}

// ownership classifies projectID against the cache. An empty cache is
// ambiguous between "no projects" and "not populated yet", so the caller
// must queue rather than drop.
func (s *sharedState) ownership(projectID string) (owns, cacheEmpty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.owned) == 0 {
		return false, true
	}
	_, ok := s.owned[projectID]
	return ok, false
}

// enqueue stores ev, keeping only the latest arrival per (type, id).
func (s *sharedState) enqueue(ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := queueKey{t: ev.Type, id: ev.ID}
	if prev, ok := s.queue[key]; ok && prev.ArrivedAt.After(ev.ArrivedAt) {
		return
	}
	s.queue[key] = ev
}

// takeQueue removes and returns all queued events, already deduplicated.
func (s *sharedState) takeQueue() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	events := make([]model.Event, 0, len(s.queue))
	for _, ev := range s.queue {
		events = append(events, ev)
	}
	s.queue = make(map[queueKey]model.Event)
	return events
}

func (s *sharedState) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
