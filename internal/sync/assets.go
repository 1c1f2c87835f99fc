package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/inkwellhq/inkwell-sync/internal/blob"
	"github.com/inkwellhq/inkwell-sync/internal/common"
	"github.com/inkwellhq/inkwell-sync/internal/logging"
)

// Transfer moves asset payloads between the local blob directory and the
// remote bucket, keyed by storage path. Remote operations retry briefly on
// transient failures before surfacing the error to the caller.
type Transfer struct {
	local  blob.Store
	remote blob.Store
	log    logging.Logger

	backoff func() retry.Backoff
}

// NewTransfer returns a Transfer over the given blob stores.
func NewTransfer(local, remote blob.Store, log logging.Logger) *Transfer {
	return &Transfer{
		local:   local,
		remote:  remote,
		log:     log.With("module", "assets"),
		backoff: transferBackoff,
	}
}

func transferBackoff() retry.Backoff {
	return retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
}

// Upload copies the blob at storagePath from local to remote storage.
// A no-op when storagePath is empty or the local blob does not exist yet.
func (t *Transfer) Upload(ctx context.Context, storagePath string) error {
	if storagePath == "" {
		return nil
	}
	data, err := t.local.Download(ctx, storagePath)
	if errors.Is(err, common.ErrNotFound) {
		t.log.Warn(ctx, "local blob missing, skipping upload", "path", storagePath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read local blob: %w", err)
	}

	err = retry.Do(ctx, t.backoff(), func(ctx context.Context) error {
		return retry.RetryableError(t.remote.Upload(ctx, storagePath, data))
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %q: %w", storagePath, err)
	}
	return nil
}

// Download copies the blob at storagePath from remote to local storage.
// A no-op when storagePath is empty or the remote blob does not exist.
func (t *Transfer) Download(ctx context.Context, storagePath string) error {
	if storagePath == "" {
		return nil
	}
	var data []byte
	err := retry.Do(ctx, t.backoff(), func(ctx context.Context) error {
		var err error
		data, err = t.remote.Download(ctx, storagePath)
		if errors.Is(err, common.ErrNotFound) {
			return err // permanent
		}
		return retry.RetryableError(err)
	})
	if errors.Is(err, common.ErrNotFound) {
		t.log.Warn(ctx, "remote blob missing, skipping download", "path", storagePath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to download blob %q: %w", storagePath, err)
	}
	return t.local.Upload(ctx, storagePath, data)
}
