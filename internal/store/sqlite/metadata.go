package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/inkwellhq/inkwell-sync/internal/common"
	"github.com/inkwellhq/inkwell-sync/internal/dbx"
)

// Keys stored in the metadata table.
const (
	MetaDeviceID     = "device_id"
	MetaLastSyncedAt = "last_synced_at"
)

// MetadataRepo is a small key/value table for engine bookkeeping such as the
// device id and the last successful sync time.
type MetadataRepo struct {
	db dbx.DBTX
}

// NewMetadataRepo returns a repo bound to the given DBTX.
func NewMetadataRepo(db dbx.DBTX) *MetadataRepo {
	return &MetadataRepo{db: db}
}

// Get returns the value for key, or common.ErrNotFound.
func (r *MetadataRepo) Get(ctx context.Context, key string) ([]byte, error) {
	row := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key)
	var v []byte
	err := row.Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata %q: %w", key, err)
	}
	return v, nil
}

// Set stores value under key, replacing any previous value.
func (r *MetadataRepo) Set(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set metadata %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are a no-op.
func (r *MetadataRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete metadata %q: %w", key, err)
	}
	return nil
}
