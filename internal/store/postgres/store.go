package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inkwellhq/inkwell-sync/internal/dbx"
	"github.com/inkwellhq/inkwell-sync/internal/feed"
	"github.com/inkwellhq/inkwell-sync/internal/model"
)

// Store implements store.EntityStore for one entity type against the
// multi-tenant records table. Every row is scoped to the session owner, and
// every write emits a pg_notify on the type's channel so peer devices see the
// change.
type Store struct {
	db       dbx.DBTX
	spec     *model.TypeSpec
	ownerID  string
	deviceID string
}

// NewStore returns a Store for the given entity type scoped to ownerID.
// deviceID tags outgoing notifications so this device can skip its own echo.
func NewStore(db dbx.DBTX, t model.EntityType, ownerID, deviceID string) (*Store, error) {
	spec := model.SpecFor(t)
	if spec == nil {
		return nil, fmt.Errorf("unknown entity type %q", t)
	}
	return &Store{db: db, spec: spec, ownerID: ownerID, deviceID: deviceID}, nil
}

// inTx runs fn inside a transaction when the handle allows starting one.
// Write paths pair the row mutation with a pg_notify, and NOTIFY inside a
// transaction is delivered only on commit, so a rolled-back write never
// emits a phantom event.
func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, q dbx.DBTX) error) error {
	if db, ok := s.db.(*sql.DB); ok {
		return dbx.WithTx(ctx, db, nil, fn)
	}
	return fn(ctx, s.db)
}

// Create upserts rec under projectID and notifies the change feed.
func (s *Store) Create(ctx context.Context, projectID string, rec *model.Record) error {
	pid := rec.ProjectID
	if pid == "" {
		pid = projectID
	}
	query := `INSERT INTO records (entity_type, id, owner_id, project_id, name, storage_path, updated_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (entity_type, id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			name = EXCLUDED.name,
			storage_path = EXCLUDED.storage_path,
			updated_at = EXCLUDED.updated_at,
			payload = EXCLUDED.payload
		WHERE records.owner_id = EXCLUDED.owner_id`
	return s.inTx(ctx, func(ctx context.Context, q dbx.DBTX) error {
		_, err := q.ExecContext(ctx, query,
			string(s.spec.Type), rec.ID, s.ownerID, pid, rec.Name, rec.StoragePath, rec.UpdatedAt.UnixMilli(), []byte(rec.Payload))
		if err != nil {
			return fmt.Errorf("failed to upsert %s record: %w", s.spec.Type, err)
		}
		return s.notify(ctx, q, model.ChangeInsert, rec.ID, pid, rec.UpdatedAt)
	})
}

// FindByID returns the record with the given id, or (nil, nil) if absent.
func (s *Store) FindByID(ctx context.Context, id string) (*model.Record, error) {
	query := `SELECT id, project_id, name, storage_path, updated_at, payload
		FROM records WHERE entity_type = $1 AND id = $2 AND owner_id = $3`
	row := s.db.QueryRowContext(ctx, query, string(s.spec.Type), id, s.ownerID)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select %s record: %w", s.spec.Type, err)
	}
	return rec, nil
}

// FindByProjectID lists the owner's records of the type under projectID.
// For the root type the scope is the owner id itself.
func (s *Store) FindByProjectID(ctx context.Context, projectID string) ([]*model.Record, error) {
	query := `SELECT id, project_id, name, storage_path, updated_at, payload
		FROM records WHERE entity_type = $1 AND project_id = $2 AND owner_id = $3`
	args := []any{string(s.spec.Type), projectID, s.ownerID}
	if s.spec.Root {
		query = `SELECT id, project_id, name, storage_path, updated_at, payload
			FROM records WHERE entity_type = $1 AND owner_id = $2`
		args = []any{string(s.spec.Type), projectID}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s records: %w", s.spec.Type, err)
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

// Update overwrites the stored record and notifies the change feed.
func (s *Store) Update(ctx context.Context, rec *model.Record) error {
	query := `INSERT INTO records (entity_type, id, owner_id, project_id, name, storage_path, updated_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (entity_type, id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			name = EXCLUDED.name,
			storage_path = EXCLUDED.storage_path,
			updated_at = EXCLUDED.updated_at,
			payload = EXCLUDED.payload
		WHERE records.owner_id = EXCLUDED.owner_id`
	return s.inTx(ctx, func(ctx context.Context, q dbx.DBTX) error {
		_, err := q.ExecContext(ctx, query,
			string(s.spec.Type), rec.ID, s.ownerID, rec.ProjectID, rec.Name, rec.StoragePath, rec.UpdatedAt.UnixMilli(), []byte(rec.Payload))
		if err != nil {
			return fmt.Errorf("failed to update %s record: %w", s.spec.Type, err)
		}
		return s.notify(ctx, q, model.ChangeUpdate, rec.ID, rec.ProjectID, rec.UpdatedAt)
	})
}

// Delete removes the record and notifies the change feed. Deleting a missing
// record is a no-op and emits nothing.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.inTx(ctx, func(ctx context.Context, q dbx.DBTX) error {
		row := q.QueryRowContext(ctx,
			`DELETE FROM records WHERE entity_type = $1 AND id = $2 AND owner_id = $3 RETURNING project_id`,
			string(s.spec.Type), id, s.ownerID)
		var projectID string
		err := row.Scan(&projectID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to delete %s record: %w", s.spec.Type, err)
		}
		return s.notify(ctx, q, model.ChangeDelete, id, projectID, time.Now().UTC())
	})
}

// DeleteByProjectID removes every record of the type under projectID,
// notifying the feed once per removed record.
func (s *Store) DeleteByProjectID(ctx context.Context, projectID string) error {
	return s.inTx(ctx, func(ctx context.Context, q dbx.DBTX) error {
		rows, err := q.QueryContext(ctx,
			`DELETE FROM records WHERE entity_type = $1 AND project_id = $2 AND owner_id = $3 RETURNING id`,
			string(s.spec.Type), projectID, s.ownerID)
		if err != nil {
			return fmt.Errorf("failed to delete %s records: %w", s.spec.Type, err)
		}
		defer rows.Close()

		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, id := range ids {
			if err := s.notify(ctx, q, model.ChangeDelete, id, projectID, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) notify(ctx context.Context, q dbx.DBTX, kind model.ChangeKind, id, projectID string, updatedAt time.Time) error {
	payload, err := feed.Encode(kind, s.spec.Type, id, projectID, updatedAt, s.deviceID)
	if err != nil {
		return err
	}
	channel := feed.Channel(s.spec, s.ownerID)
	if _, err := q.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, payload); err != nil {
		return fmt.Errorf("failed to notify %s change: %w", s.spec.Type, err)
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
