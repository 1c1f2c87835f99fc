package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inkwellhq/inkwell-sync/internal/dbx"
	"github.com/inkwellhq/inkwell-sync/internal/model"
)

// DeletionLedgerRepo is the replicated deletion ledger: confirmed deletions
// written by one device and consumed by the owner's other devices.
type DeletionLedgerRepo struct {
	db dbx.DBTX
}

// NewDeletionLedgerRepo returns a repo bound to the given DBTX.
func NewDeletionLedgerRepo(db dbx.DBTX) *DeletionLedgerRepo {
	return &DeletionLedgerRepo{db: db}
}

// Append writes e, minting an id if the caller left it empty.
func (r *DeletionLedgerRepo) Append(ctx context.Context, e model.RemoteDeletion) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	query := `INSERT INTO deletion_ledger (id, entity_id, entity_type, project_id, deleted_at, owner_id, device_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.EntityID, string(e.EntityType), e.ProjectID, e.DeletedAt.UnixMilli(), e.OwnerID, e.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to append deletion ledger entry: %w", err)
	}
	return nil
}

// ListForOwner returns every ledger entry belonging to ownerID.
func (r *DeletionLedgerRepo) ListForOwner(ctx context.Context, ownerID string) ([]model.RemoteDeletion, error) {
	query := `SELECT id, entity_id, entity_type, project_id, deleted_at, owner_id, device_id
		FROM deletion_ledger WHERE owner_id = $1`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deletion ledger: %w", err)
	}
	defer rows.Close()

	var result []model.RemoteDeletion
	for rows.Next() {
		var (
			e  model.RemoteDeletion
			et string
			ms int64
		)
		if err := rows.Scan(&e.ID, &e.EntityID, &et, &e.ProjectID, &ms, &e.OwnerID, &e.DeviceID); err != nil {
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

// Delete removes the entry with the given id. Missing entries are a no-op.
func (r *DeletionLedgerRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM deletion_ledger WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete ledger entry: %w", err)
	}
	return nil
}

// PruneOlderThan drops entries recorded before cutoff regardless of which
// devices have observed them.
func (r *DeletionLedgerRepo) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM deletion_ledger WHERE deleted_at < $1`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune deletion ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
