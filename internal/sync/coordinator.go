package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/inkwellhq/inkwell-sync/internal/logging"
	"github.com/inkwellhq/inkwell-sync/internal/model"
	"github.com/inkwellhq/inkwell-sync/internal/session"
	"github.com/inkwellhq/inkwell-sync/internal/store"
)

// lastSyncSink persists the last successful sync time locally.
type lastSyncSink interface {
	Set(ctx context.Context, key string, value []byte) error
}

const metaLastSyncedAt = "last_synced_at"

// Coordinator runs full bidirectional reconciliation passes over every
// entity type. At most one pass runs at a time; calls arriving while a pass
// is in flight are no-ops.
type Coordinator struct {
	state        *sharedState
	registry     *Registry
	pending      PendingLedger
	remoteLedger RemoteLedger
	assets       *Transfer
	notifier     Notifier
	router       *Router
	sess         *session.Session
	meta         lastSyncSink
	retention    time.Duration
	log          logging.Logger

	now func() time.Time
}

// NewCoordinator wires a coordinator. retention bounds both deletion ledgers.
func NewCoordinator(
	state *sharedState,
	registry *Registry,
	pending PendingLedger,
	remoteLedger RemoteLedger,
	assets *Transfer,
	notifier Notifier,
	router *Router,
	sess *session.Session,
	meta lastSyncSink,
	retention time.Duration,
	log logging.Logger,
) *Coordinator {
	return &Coordinator{
		state:        state,
		registry:     registry,
		pending:      pending,
		remoteLedger: remoteLedger,
		assets:       assets,
		notifier:     notifier,
		router:       router,
		sess:         sess,
		meta:         meta,
		retention:    retention,
		log:          log.With("module", "coordinator"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SyncAll runs one full reconciliation pass: deletion ledgers first, then the
// root entities (rebuilding the ownership cache), then every child type per
// project, and finally the realtime queue drain. A failure in one entity type
// never aborts the others; the pass favors partial progress, and the next
// pass retries whatever failed.
func (c *Coordinator) SyncAll(ctx context.Context) error {
	if !c.state.tryBeginSync() {
		c.log.Debug(ctx, "sync already in flight, skipping")
		return nil
	}
	// Drain runs after the flag clears so drained events take the
	// immediate-apply path instead of re-queueing.
	defer c.router.DrainQueue(ctx)
	defer c.state.endSync()

	c.notifier.SetStatus(StatusSyncing)
	start := c.now()
	c.log.Info(ctx, "starting full sync", "owner", c.sess.OwnerID)

	c.reconcileDeletions(ctx)

	projectIDs, err := c.syncRoots(ctx)
	if err != nil {
		c.notifier.SetStatus(StatusOffline)
		return fmt.Errorf("failed to sync projects: %w", err)
	}

	c.syncChildren(ctx, projectIDs)

	finished := c.now()
	c.notifier.SetStatus(StatusOnline)
	c.notifier.SetLastSyncedAt(finished)
	if c.meta != nil {
		if err := c.meta.Set(ctx, metaLastSyncedAt, []byte(finished.Format(time.RFC3339Nano))); err != nil {
			c.log.Warn(ctx, "failed to persist last sync time", "error", err)
		}
	}
	c.log.Info(ctx, "full sync finished", "elapsed", finished.Sub(start))
	return nil
}

// syncRoots reconciles the project collection and rebuilds the ownership
// cache from the union of both sides. Unlike child types, a fetch failure
// here aborts the pass: children cannot attach to roots we do not know.
func (c *Coordinator) syncRoots(ctx context.Context) ([]string, error) {
	pair, err := c.registry.Pair(model.TypeProject)
	if err != nil {
		return nil, err
	}

	remote, err := pair.Remote.FindByProjectID(ctx, c.sess.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote projects: %w", err)
	}
	local, err := pair.Local.FindByProjectID(ctx, c.sess.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch local projects: %w", err)
	}

	ids := make([]string, 0, len(local)+len(remote))
	seen := make(map[string]struct{}, len(local)+len(remote))
	for _, rec := range append(append([]*model.Record{}, local...), remote...) {
		if _, ok := seen[rec.ID]; !ok {
			seen[rec.ID] = struct{}{}
			ids = append(ids, rec.ID)
		}
	}
	c.state.setOwned(ids)

	spec := model.SpecFor(model.TypeProject)
	c.reconcileType(ctx, spec, pair, local, remote)
	return ids, nil
}

// syncChildren reconciles every non-root type for every known project. Each
// (type, project) subset fails independently.
func (c *Coordinator) syncChildren(ctx context.Context, projectIDs []string) {
	for i := range model.Types {
		spec := &model.Types[i]
		if spec.Root {
			continue
		}
		pair, err := c.registry.Pair(spec.Type)
		if err != nil {
			c.log.Error(ctx, "skipping unregistered entity type", "type", spec.Type, "error", err)
			continue
		}
		for _, pid := range projectIDs {
			if err := c.syncChildSet(ctx, spec, pair, pid); err != nil {
				c.log.Error(ctx, "failed to sync entity type for project",
					"type", spec.Type, "project", pid, "error", err)
			}
		}
	}
}

func (c *Coordinator) syncChildSet(ctx context.Context, spec *model.TypeSpec, pair store.Pair, projectID string) error {
	local, err := pair.Local.FindByProjectID(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to fetch local %s records: %w", spec.Type, err)
	}
	remote, err := pair.Remote.FindByProjectID(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to fetch remote %s records: %w", spec.Type, err)
	}
	c.reconcileType(ctx, spec, pair, local, remote)
	return nil
}

// reconcileType applies PickNewer per id across both collections and writes
// each winner to the side that does not hold it. Anything mid-deletion is
// skipped; per-record failures are logged and do not stop the rest.
func (c *Coordinator) reconcileType(ctx context.Context, spec *model.TypeSpec, pair store.Pair, local, remote []*model.Record) {
	localByID := make(map[string]*model.Record, len(local))
	for _, rec := range local {
		localByID[rec.ID] = rec
	}
	remoteByID := make(map[string]*model.Record, len(remote))
	for _, rec := range remote {
		remoteByID[rec.ID] = rec
	}

	ids := make(map[string]struct{}, len(localByID)+len(remoteByID))
	for id := range localByID {
		ids[id] = struct{}{}
	}
	for id := range remoteByID {
		ids[id] = struct{}{}
	}

	for id := range ids {
		if err := c.reconcileRecord(ctx, spec, pair, localByID[id], remoteByID[id]); err != nil {
			c.log.Error(ctx, "failed to reconcile record",
				"type", spec.Type, "id", id, "error", err)
		}
	}
}

func (c *Coordinator) reconcileRecord(ctx context.Context, spec *model.TypeSpec, pair store.Pair, local, remote *model.Record) error {
	id := ""
	if local != nil {
		id = local.ID
	} else if remote != nil {
		id = remote.ID
	} else {
		return nil
	}

	pendingDel, err := c.pending.IsPending(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check pending deletion: %w", err)
	}
	if pendingDel {
		return nil
	}

	winner := PickNewer(local, remote)
	switch {
	case local == nil:
		return c.writeLocal(ctx, spec, pair, winner)
	case remote == nil:
		return c.writeRemote(ctx, spec, pair, winner)
	case winner == remote && remote.UpdatedAt.After(local.UpdatedAt):
		return c.writeLocal(ctx, spec, pair, winner)
	case winner == local && local.UpdatedAt.After(remote.UpdatedAt):
		return c.writeRemote(ctx, spec, pair, winner)
	default:
		// Tie: local already holds the winner, nothing to write.
		return nil
	}
}

// writeLocal pulls winner into the local store, moving the asset blob first
// so metadata never points at a blob the device does not have.
func (c *Coordinator) writeLocal(ctx context.Context, spec *model.TypeSpec, pair store.Pair, winner *model.Record) error {
	if spec.Asset {
		if err := c.assets.Download(ctx, winner.StoragePath); err != nil {
			return err
		}
	}
	if err := pair.Local.Create(ctx, winner.ProjectID, winner); err != nil {
		return err
	}
	c.notifier.EntityUpdated(ctx, spec.Type, winner)
	return nil
}

// writeRemote pushes winner to the remote store, uploading the asset blob
// first.
func (c *Coordinator) writeRemote(ctx context.Context, spec *model.TypeSpec, pair store.Pair, winner *model.Record) error {
	if spec.Asset {
		if err := c.assets.Upload(ctx, winner.StoragePath); err != nil {
			return err
		}
	}
	return pair.Remote.Create(ctx, winner.ProjectID, winner)
}
