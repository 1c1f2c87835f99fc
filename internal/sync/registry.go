package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/inkwellhq/inkwell-sync/internal/model"
	"github.com/inkwellhq/inkwell-sync/internal/store"
)

// PendingLedger is the local deletion ledger consumed by the engine.
type PendingLedger interface {
	Record(ctx context.Context, e model.PendingDeletion) error
	IsPending(ctx context.Context, entityID string) (bool, error)
	List(ctx context.Context) ([]model.PendingDeletion, error)
	Clear(ctx context.Context, entityID string) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RemoteLedger is the replicated deletion ledger consumed by the engine.
type RemoteLedger interface {
	Append(ctx context.Context, e model.RemoteDeletion) error
	ListForOwner(ctx context.Context, ownerID string) ([]model.RemoteDeletion, error)
	Delete(ctx context.Context, id string) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Registry is the per-type registration table: one local/remote store pair
// per entity type. It is built once at session start and read-only after.
type Registry struct {
	pairs map[model.EntityType]store.Pair
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pairs: make(map[model.EntityType]store.Pair)}
}

// Register binds the store pair for t. Unknown types are rejected.
func (r *Registry) Register(t model.EntityType, local, remote store.EntityStore) error {
	if model.SpecFor(t) == nil {
		return fmt.Errorf("unknown entity type %q", t)
	}
	r.pairs[t] = store.Pair{Local: local, Remote: remote}
	return nil
}

// Pair returns the store pair for t.
func (r *Registry) Pair(t model.EntityType) (store.Pair, error) {
	p, ok := r.pairs[t]
	if !ok {
		return store.Pair{}, fmt.Errorf("no stores registered for entity type %q", t)
	}
	return p, nil
}

// Complete verifies every declared entity type has a registered pair.
func (r *Registry) Complete() error {
	for i := range model.Types {
		if _, ok := r.pairs[model.Types[i].Type]; !ok {
			return fmt.Errorf("no stores registered for entity type %q", model.Types[i].Type)
		}
	}
	return nil
}
