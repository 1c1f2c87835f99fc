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

// Store implements store.EntityStore for one entity type over the shared
// records table. All rows of the type live in the same table, discriminated
// by the entity_type column, so nine entity types share one implementation.
type Store struct {
	db         dbx.DBTX
	entityType model.EntityType
	root       bool
}

// NewStore returns a Store bound to the given DBTX and entity type.
func NewStore(db dbx.DBTX, entityType model.EntityType) *Store {
	root := false
	if spec := model.SpecFor(entityType); spec != nil {
		root = spec.Root
	}
	return &Store{db: db, entityType: entityType, root: root}
}

// Create upserts rec under projectID. Upsert rather than plain insert: the
// coordinator creates on whichever side lost the merge, and the record may
// already exist there from an earlier partial pass.
func (s *Store) Create(ctx context.Context, projectID string, rec *model.Record) error {
	pid := rec.ProjectID
	if pid == "" {
		pid = projectID
	}
	query := `INSERT INTO records (entity_type, id, project_id, name, storage_path, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, id) DO UPDATE SET
			project_id = excluded.project_id,
			name = excluded.name,
			storage_path = excluded.storage_path,
			updated_at = excluded.updated_at,
			payload = excluded.payload`
	_, err := s.db.ExecContext(ctx, query,
		string(s.entityType), rec.ID, pid, rec.Name, rec.StoragePath, rec.UpdatedAt.UnixMilli(), []byte(rec.Payload))
	if err != nil {
		return fmt.Errorf("failed to upsert %s record: %w", s.entityType, err)
	}
	return nil
}

// FindByID returns the record with the given id, or (nil, nil) if absent.
func (s *Store) FindByID(ctx context.Context, id string) (*model.Record, error) {
	query := `SELECT id, project_id, name, storage_path, updated_at, payload
		FROM records WHERE entity_type = ? AND id = ?`
	row := s.db.QueryRowContext(ctx, query, string(s.entityType), id)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select %s record: %w", s.entityType, err)
	}
	return rec, nil
}

// FindByProjectID lists all records of the type under projectID. For the
// root type the scope argument is ignored: a root record's project_id is its
// own id, and the local database only ever holds one owner's data.
func (s *Store) FindByProjectID(ctx context.Context, projectID string) ([]*model.Record, error) {
	query := `SELECT id, project_id, name, storage_path, updated_at, payload
		FROM records WHERE entity_type = ? AND project_id = ?`
	args := []any{string(s.entityType), projectID}
	if s.root {
		query = `SELECT id, project_id, name, storage_path, updated_at, payload
			FROM records WHERE entity_type = ?`
		args = []any{string(s.entityType)}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s records: %w", s.entityType, err)
	}
	defer rows.Close()

	var result []*model.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Update overwrites the stored record. Same upsert shape as Create.
func (s *Store) Update(ctx context.Context, rec *model.Record) error {
	return s.Create(ctx, rec.ProjectID, rec)
}

// Delete removes the record. Deleting a missing record is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM records WHERE entity_type = ? AND id = ?`
	if _, err := s.db.ExecContext(ctx, query, string(s.entityType), id); err != nil {
		return fmt.Errorf("failed to delete %s record: %w", s.entityType, err)
	}
	return nil
}

// DeleteByProjectID removes every record of the type under projectID.
func (s *Store) DeleteByProjectID(ctx context.Context, projectID string) error {
	query := `DELETE FROM records WHERE entity_type = ? AND project_id = ?`
	if _, err := s.db.ExecContext(ctx, query, string(s.entityType), projectID); err != nil {
		return fmt.Errorf("failed to delete %s records: %w", s.entityType, err)
	}
	return nil
}

func scanRecord(scan func(dest ...any) error) (*model.Record, error) {
	var (
		rec     model.Record
		ms      int64
		payload []byte
	)
	if err := scan(&rec.ID, &rec.ProjectID, &rec.Name, &rec.StoragePath, &ms, &payload); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.UnixMilli(ms).UTC()
	if payload != nil {
		rec.Payload = payload
	}
	return &rec, nil
}
