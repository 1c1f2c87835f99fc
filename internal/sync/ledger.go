package sync

import (
	"context"
	"fmt"

	"github.com/inkwellhq/inkwell-sync/internal/model"
)

// reconcileDeletions is the first phase of every pass: it prunes both
// ledgers, pushes this device's pending deletions out, and applies deletions
// other devices recorded. Running before the merge phase means the merge
// never resurrects something just deleted, nor deletes something just
// resurrected. Every entry fails independently and is retried next pass.
func (c *Coordinator) reconcileDeletions(ctx context.Context) {
	cutoff := c.now().Add(-c.retention)
	if n, err := c.pending.PruneOlderThan(ctx, cutoff); err != nil {
		c.log.Warn(ctx, "failed to prune pending deletions", "error", err)
	} else if n > 0 {
		c.log.Info(ctx, "pruned stale pending deletions", "count", n)
	}
	if n, err := c.remoteLedger.PruneOlderThan(ctx, cutoff); err != nil {
		c.log.Warn(ctx, "failed to prune remote deletion ledger", "error", err)
	} else if n > 0 {
		c.log.Info(ctx, "pruned stale remote ledger entries", "count", n)
	}

	entries, err := c.pending.List(ctx)
	if err != nil {
		c.log.Error(ctx, "failed to list pending deletions", "error", err)
	} else {
		for _, e := range entries {
			if err := c.reconcileLocalDeletion(ctx, e); err != nil {
				c.log.Error(ctx, "failed to reconcile pending deletion",
					"type", e.EntityType, "id", e.EntityID, "error", err)
			}
		}
	}

	remoteEntries, err := c.remoteLedger.ListForOwner(ctx, c.sess.OwnerID)
	if err != nil {
		c.log.Error(ctx, "failed to list remote deletion ledger", "error", err)
		return
	}
	for _, e := range remoteEntries {
		if e.DeviceID == c.sess.DeviceID {
			// Our own entry, written for the owner's other devices.
			continue
		}
		if err := c.reconcileRemoteDeletion(ctx, e); err != nil {
			c.log.Error(ctx, "failed to reconcile remote deletion",
				"type", e.EntityType, "id", e.EntityID, "error", err)
		}
	}
}

// reconcileLocalDeletion finishes one deletion this device requested. If the
// remote copy was edited after the deletion was recorded, the deletion is
// stale: it is abandoned and the newer remote record flows back in through
// the ordinary merge. Otherwise the remote delete is performed and replicated
// through the remote ledger.
func (c *Coordinator) reconcileLocalDeletion(ctx context.Context, e model.PendingDeletion) error {
	pair, err := c.registry.Pair(e.EntityType)
	if err != nil {
		return err
	}

	remote, err := pair.Remote.FindByID(ctx, e.EntityID)
	if err != nil {
		return fmt.Errorf("failed to fetch remote record: %w", err)
	}

	if remote != nil && remote.UpdatedAt.After(e.DeletedAt) {
		// Data-loss prevention: a collaborator edited this entity after
		// we deleted it. Abandon the deletion; the merge pulls the newer
		// record back in.
		c.log.Info(ctx, "abandoning stale deletion, remote is newer",
			"type", e.EntityType, "id", e.EntityID,
			"deleted_at", e.DeletedAt, "remote_updated_at", remote.UpdatedAt)
		return c.pending.Clear(ctx, e.EntityID)
	}

	if remote != nil {
		if err := pair.Remote.Delete(ctx, e.EntityID); err != nil {
			return fmt.Errorf("failed to delete remote record: %w", err)
		}
	}
	if spec := model.SpecFor(e.EntityType); spec != nil && spec.Root {
		c.cascadeProjectDeletion(ctx, e.EntityID, remoteSide)
	}

	err = c.remoteLedger.Append(ctx, model.RemoteDeletion{
		EntityID:   e.EntityID,
		EntityType: e.EntityType,
		ProjectID:  e.ProjectID,
		DeletedAt:  e.DeletedAt,
		OwnerID:    c.sess.OwnerID,
		DeviceID:   c.sess.DeviceID,
	})
	if err != nil {
		return fmt.Errorf("failed to replicate deletion: %w", err)
	}

	return c.pending.Clear(ctx, e.EntityID)
}

// reconcileRemoteDeletion applies one deletion another device recorded. If
// the local copy was edited after the remote deletion, the deletion is stale
// from this device's perspective: the ledger entry is discarded and the local
// record, now local-only and newer, is re-pushed by the ordinary merge.
func (c *Coordinator) reconcileRemoteDeletion(ctx context.Context, e model.RemoteDeletion) error {
	pair, err := c.registry.Pair(e.EntityType)
	if err != nil {
		return err
	}

	local, err := pair.Local.FindByID(ctx, e.EntityID)
	if err != nil {
		return fmt.Errorf("failed to fetch local record: %w", err)
	}

	if local != nil && local.UpdatedAt.After(e.DeletedAt) {
		c.log.Info(ctx, "resurrecting entity, local edit is newer than remote deletion",
			"type", e.EntityType, "id", e.EntityID,
			"deleted_at", e.DeletedAt, "local_updated_at", local.UpdatedAt)
		return c.remoteLedger.Delete(ctx, e.ID)
	}

	if local != nil {
		if err := pair.Local.Delete(ctx, e.EntityID); err != nil {
			return fmt.Errorf("failed to delete local record: %w", err)
		}
		if spec := model.SpecFor(e.EntityType); spec != nil && spec.Root {
			c.cascadeProjectDeletion(ctx, e.EntityID, localSide)
		}
		c.notifier.EntityDeleted(ctx, e.EntityType, e.EntityID, e.ProjectID)
	}

	return c.remoteLedger.Delete(ctx, e.ID)
}

type storeSide int

const (
	localSide storeSide = iota
	remoteSide
)

// cascadeProjectDeletion removes the child records of a deleted project on
// one side. Failures are logged per type; orphans left behind are invisible
// (children of unknown projects are never fetched) and get retried next pass.
func (c *Coordinator) cascadeProjectDeletion(ctx context.Context, projectID string, side storeSide) {
	for i := range model.Types {
		spec := &model.Types[i]
		if spec.Root {
			continue
		}
		pair, err := c.registry.Pair(spec.Type)
		if err != nil {
			continue
		}
		st := pair.Local
		if side == remoteSide {
			st = pair.Remote
		}
		if err := st.DeleteByProjectID(ctx, projectID); err != nil {
			c.log.Error(ctx, "failed to cascade project deletion",
				"type", spec.Type, "project", projectID, "error", err)
		}
	}
}
