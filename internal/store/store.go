// Package store defines the uniform entity-store contract the sync engine is
// written against. Each entity type gets two implementations: one backed by
// the local database and one backed by the remote multi-tenant backend.
package store

import (
	"context"

	"github.com/inkwellhq/inkwell-sync/internal/model"
)

// EntityStore is the create/find/update/delete contract for one entity type.
//
// For the root (project) type the projectID scope parameter is the owner id,
// since projects belong to a user rather than to another project.
//
// FindByID returns (nil, nil) when the record does not exist; errors are
// reserved for I/O failures.
//
// The engine writes exclusively through Create, which implementations treat
// as an upsert. Update is part of the contract for embedding applications
// that distinguish insert from modify; no engine path calls it.
type EntityStore interface {
	Create(ctx context.Context, projectID string, rec *model.Record) error
	FindByID(ctx context.Context, id string) (*model.Record, error)
	FindByProjectID(ctx context.Context, projectID string) ([]*model.Record, error)
	Update(ctx context.Context, rec *model.Record) error
	Delete(ctx context.Context, id string) error
	DeleteByProjectID(ctx context.Context, projectID string) error
}

// Pair bundles the local and remote stores for one entity type.
type Pair struct {
	Local  EntityStore
	Remote EntityStore
}
