package sync

import (
	"context"
	"fmt"

	"github.com/inkwellhq/inkwell-sync/internal/logging"
	"github.com/inkwellhq/inkwell-sync/internal/model"
	"github.com/inkwellhq/inkwell-sync/internal/session"
)

// Router consumes the realtime change feed. Events pass an ownership filter,
// are queued while a full sync is in flight, and otherwise apply immediately.
// It is the low-latency path once steady state is reached; the coordinator
// and the router share one reconciliation vocabulary (PickNewer timestamps,
// the pending-deletion ledger), so there is exactly one algorithm.
type Router struct {
	state    *sharedState
	registry *Registry
	pending  PendingLedger
	assets   *Transfer
	notifier Notifier
	sess     *session.Session
	log      logging.Logger
}

// NewRouter wires a router over the shared coordination state.
func NewRouter(
	state *sharedState,
	registry *Registry,
	pending PendingLedger,
	assets *Transfer,
	notifier Notifier,
	sess *session.Session,
	log logging.Logger,
) *Router {
	return &Router{
		state:    state,
		registry: registry,
		pending:  pending,
		assets:   assets,
		notifier: notifier,
		sess:     sess,
		log:      log.With("module", "router"),
	}
}

// HandleRemoteChange is the single entry point for change-feed events. It is
// also the dispatcher for drained queue events, so queued and live events
// follow identical rules.
func (r *Router) HandleRemoteChange(ctx context.Context, ev model.Event) {
	if ev.Origin == r.sess.DeviceID {
		// Echo of this device's own write.
		return
	}
	spec := model.SpecFor(ev.Type)
	if spec == nil {
		r.log.Warn(ctx, "dropping event for unknown entity type", "type", ev.Type)
		return
	}

	if !spec.Root {
		owns, cacheEmpty := r.state.ownership(ev.ProjectID)
		if cacheEmpty {
			// Ambiguous: "no projects" and "cache not built yet" look
			// the same. Dropping here would lose events during the
			// startup race, so queue instead.
			r.state.enqueue(ev)
			return
		}
		if !owns {
			// The transport cannot scope child-table subscriptions by
			// owner; this is the mandatory client-side filter.
			r.log.Debug(ctx, "dropping event outside ownership scope",
				"type", ev.Type, "project", ev.ProjectID)
			return
		}
	}

	if r.state.syncInFlight() {
		r.state.enqueue(ev)
		return
	}

	if err := r.apply(ctx, ev); err != nil {
		r.log.Error(ctx, "failed to apply realtime event",
			"type", ev.Type, "kind", ev.Kind, "id", ev.ID, "error", err)
	}
}

// DrainQueue applies every queued event, deduplicated per (type, id) with the
// latest arrival winning. Called at the end of every sync pass so events
// observed mid-sync are not lost. Events that are still ambiguous re-queue.
func (r *Router) DrainQueue(ctx context.Context) {
	events := r.state.takeQueue()
	if len(events) == 0 {
		return
	}
	r.log.Debug(ctx, "draining realtime queue", "events", len(events))
	for _, ev := range events {
		r.HandleRemoteChange(ctx, ev)
	}
}

// apply performs one event against the local store.
func (r *Router) apply(ctx context.Context, ev model.Event) error {
	pair, err := r.registry.Pair(ev.Type)
	if err != nil {
		return err
	}

	if ev.Kind == model.ChangeDelete {
		local, err := pair.Local.FindByID(ctx, ev.ID)
		if err != nil {
			return fmt.Errorf("failed to fetch local record: %w", err)
		}
		if local == nil {
			// Never held locally, nothing to delete or announce.
			return nil
		}
		if err := pair.Local.Delete(ctx, ev.ID); err != nil {
			return fmt.Errorf("failed to delete locally: %w", err)
		}
		r.notifier.EntityDeleted(ctx, ev.Type, ev.ID, ev.ProjectID)
		return nil
	}

	pendingDel, err := r.pending.IsPending(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("failed to check pending deletion: %w", err)
	}
	if pendingDel {
		// Mid-deletion; the next pass's ledger reconciliation decides
		// whether the remote edit supersedes the delete.
		r.log.Debug(ctx, "ignoring event for entity pending deletion",
			"type", ev.Type, "id", ev.ID)
		return nil
	}

	local, err := pair.Local.FindByID(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch local record: %w", err)
	}

	if local != nil {
		if local.UpdatedAt.After(ev.UpdatedAt) {
			// The one deliberate deviation from automatic last-write-wins:
			// an interactive session's newer edit is never clobbered
			// silently. The caller picks a side via ResolveConflict.
			r.notifier.NotifyConflict(ctx, Conflict{
				Type:            ev.Type,
				EntityID:        ev.ID,
				ProjectID:       ev.ProjectID,
				EntityName:      local.Name,
				LocalUpdatedAt:  local.UpdatedAt,
				RemoteUpdatedAt: ev.UpdatedAt,
			})
			return nil
		}
		if !remoteWinsTies && local.UpdatedAt.Equal(ev.UpdatedAt) {
			// Same tie policy as PickNewer: the materialized copy stands.
			return nil
		}
	}

	remote, err := pair.Remote.FindByID(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch remote record: %w", err)
	}
	if remote == nil {
		// Deleted remotely between the event and the fetch.
		return nil
	}

	spec := model.SpecFor(ev.Type)
	if spec.Asset {
		if err := r.assets.Download(ctx, remote.StoragePath); err != nil {
			return err
		}
	}
	if err := pair.Local.Create(ctx, remote.ProjectID, remote); err != nil {
		return fmt.Errorf("failed to write local record: %w", err)
	}
	r.notifier.EntityUpdated(ctx, ev.Type, remote)
	return nil
}
