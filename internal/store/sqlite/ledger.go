package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inkwellhq/inkwell-sync/internal/dbx"
	"github.com/inkwellhq/inkwell-sync/internal/model"
)

// PendingDeletionRepo is the local deletion ledger: an append-only record of
// deletes awaiting remote confirmation.
type PendingDeletionRepo struct {
	db dbx.DBTX
}

// NewPendingDeletionRepo returns a repo bound to the given DBTX.
func NewPendingDeletionRepo(db dbx.DBTX) *PendingDeletionRepo {
	return &PendingDeletionRepo{db: db}
}

// Record writes e, replacing any earlier entry for the same entity.
func (r *PendingDeletionRepo) Record(ctx context.Context, e model.PendingDeletion) error {
	query := `INSERT INTO pending_deletions (entity_id, entity_type, project_id, deleted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			entity_type = excluded.entity_type,
			project_id = excluded.project_id,
			deleted_at = excluded.deleted_at`
	_, err := r.db.ExecContext(ctx, query,
		e.EntityID, string(e.EntityType), e.ProjectID, e.DeletedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record pending deletion: %w", err)
	}
	return nil
}

// IsPending reports whether a deletion of entityID is awaiting confirmation.
func (r *PendingDeletionRepo) IsPending(ctx context.Context, entityID string) (bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM pending_deletions WHERE entity_id = ?`, entityID)
	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query pending deletion: %w", err)
	}
	return true, nil
}

// List returns every pending entry.
func (r *PendingDeletionRepo) List(ctx context.Context) ([]model.PendingDeletion, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entity_id, entity_type, project_id, deleted_at FROM pending_deletions`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deletions: %w", err)
	}
	defer rows.Close()

	var result []model.PendingDeletion
	for rows.Next() {
		var (
			e  model.PendingDeletion
			et string
			ms int64
		)
		if err := rows.Scan(&e.EntityID, &et, &e.ProjectID, &ms); err != nil {
			return nil, err
		}
		e.EntityType = model.EntityType(et)
		e.DeletedAt = time.UnixMilli(ms).UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Clear removes the entry for entityID. Clearing a missing entry is a no-op.
func (r *PendingDeletionRepo) Clear(ctx context.Context, entityID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_deletions WHERE entity_id = ?`, entityID)
	if err != nil {
		return fmt.Errorf("failed to clear pending deletion: %w", err)
	}
	return nil
}

// PruneOlderThan drops entries recorded before cutoff regardless of state.
// Bounds ledger growth at the cost of a very stale deletion not propagating.
func (r *PendingDeletionRepo) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_deletions WHERE deleted_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune pending deletions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
