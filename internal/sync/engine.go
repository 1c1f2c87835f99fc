package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/inkwellhq/inkwell-sync/internal/blob"
	"github.com/inkwellhq/inkwell-sync/internal/common"
	"github.com/inkwellhq/inkwell-sync/internal/feed"
	"github.com/inkwellhq/inkwell-sync/internal/logging"
	"github.com/inkwellhq/inkwell-sync/internal/model"
	"github.com/inkwellhq/inkwell-sync/internal/session"
)

// Channel is one established realtime change-feed connection.
type Channel interface {
	Consume(ctx context.Context, handler feed.Handler) error
	Ping(ctx context.Context) error
}

// MetaStore persists small engine state between runs.
type MetaStore interface {
	Set(ctx context.Context, key string, value []byte) error
}

// Options collects the dependencies an Engine is wired from. Registry must
// be complete; DialFeed and Probe may be nil for offline-only operation
// (tests, one-shot CLI sync).
type Options struct {
	Session      *session.Session
	Registry     *Registry
	Pending      PendingLedger
	RemoteLedger RemoteLedger
	LocalBlobs   blob.Store
	RemoteBlobs  blob.Store
	Notifier     Notifier
	Meta         MetaStore

	// DialFeed opens a realtime change-feed channel.
	DialFeed func(ctx context.Context) (Channel, error)
	// Probe checks plain network reachability of the backend.
	Probe func(ctx context.Context) error

	LedgerRetention time.Duration
	ProbeInterval   time.Duration
	Logger          logging.Logger
}

// Engine is the per-session synchronization engine.
type Engine struct {
	state       *sharedState
	registry    *Registry
	pending     PendingLedger
	coordinator *Coordinator
	router      *Router
	supervisor  *Supervisor
	assets      *Transfer
	notifier    Notifier
	sess        *session.Session
	dialFeed    func(ctx context.Context) (Channel, error)
	log         logging.Logger

	now func() time.Time
}

// NewEngine wires an engine from opts.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if err := opts.Registry.Complete(); err != nil {
		return nil, err
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.LedgerRetention <= 0 {
		opts.LedgerRetention = 30 * 24 * time.Hour
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 30 * time.Second
	}

	e := &Engine{
		state:    newSharedState(),
		registry: opts.Registry,
		pending:  opts.Pending,
		notifier: opts.Notifier,
		sess:     opts.Session,
		dialFeed: opts.DialFeed,
		log:      opts.Logger.With("module", "engine"),
		now:      func() time.Time { return time.Now().UTC() },
	}

	e.assets = NewTransfer(opts.LocalBlobs, opts.RemoteBlobs, opts.Logger)
	e.router = NewRouter(e.state, opts.Registry, opts.Pending, e.assets,
		opts.Notifier, opts.Session, opts.Logger)
	e.coordinator = NewCoordinator(e.state, opts.Registry, opts.Pending,
		opts.RemoteLedger, e.assets, opts.Notifier, e.router, opts.Session,
		opts.Meta, opts.LedgerRetention, opts.Logger)
	e.supervisor = NewSupervisor(
		e.connectFeed,
		opts.Probe,
		func(ctx context.Context) {
			if err := e.SyncAll(ctx); err != nil {
				e.log.Error(ctx, "sync after reconnect failed", "error", err)
			}
		},
		opts.ProbeInterval,
		opts.Notifier,
		opts.Logger,
	)
	return e, nil
}

// Run starts the engine: an initial full sync, the connectivity probe and
// the realtime channel. It blocks until ctx is cancelled. A failed initial
// sync does not abort the run; the engine simply starts offline and recovers
// through the probe and the supervisor.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.SyncAll(ctx); err != nil {
		e.log.Warn(ctx, "initial sync failed, starting offline", "error", err)
	}

	if e.supervisor.probe != nil {
		go e.supervisor.RunProbe(ctx)
	}
	if e.dialFeed != nil {
		if err := e.connectFeed(ctx); err != nil {
			e.log.Warn(ctx, "initial change feed dial failed", "error", err)
			e.supervisor.OnChannelClosed(ctx)
		}
	}

	<-ctx.Done()
	return ctx.Err()
}

// SyncAll runs one full reconciliation pass. A call arriving while a pass is
// in flight is a no-op.
func (e *Engine) SyncAll(ctx context.Context) error {
	return e.coordinator.SyncAll(ctx)
}

// HandleRemoteChange feeds one change event into the realtime path. Exposed
// for transports other than the built-in change feed.
func (e *Engine) HandleRemoteChange(ctx context.Context, ev model.Event) {
	e.router.HandleRemoteChange(ctx, ev)
}

// RequestDeletion deletes the entity locally and records a pending-deletion
// ledger entry; the remote delete happens on the next sync pass. Deleting a
// project also removes its child records locally.
func (e *Engine) RequestDeletion(ctx context.Context, t model.EntityType, id, projectID string) error {
	spec := model.SpecFor(t)
	if spec == nil {
		return fmt.Errorf("unknown entity type %q", t)
	}
	pair, err := e.registry.Pair(t)
	if err != nil {
		return err
	}

	// Ledger first: once the entry exists, neither the merge nor the
	// realtime path can re-pull the entity mid-deletion.
	err = e.pending.Record(ctx, model.PendingDeletion{
		EntityID:   id,
		EntityType: t,
		ProjectID:  projectID,
		DeletedAt:  e.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record pending deletion: %w", err)
	}

	if err := pair.Local.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete locally: %w", err)
	}
	if spec.Root {
		e.deleteChildrenLocally(ctx, id)
	}
	e.notifier.EntityDeleted(ctx, t, id, projectID)
	return nil
}

func (e *Engine) deleteChildrenLocally(ctx context.Context, projectID string) {
	for i := range model.Types {
		child := &model.Types[i]
		if child.Root {
			continue
		}
		pair, err := e.registry.Pair(child.Type)
		if err != nil {
			continue
		}
		if err := pair.Local.DeleteByProjectID(ctx, projectID); err != nil {
			e.log.Error(ctx, "failed to delete child records of deleted project",
				"type", child.Type, "project", projectID, "error", err)
		}
	}
}

// ResolveConflict is the caller's answer to a NotifyConflict event: pull the
// remote copy over the local one, or push the local copy over the remote one.
// Either way observers are re-notified with the resolved entity.
func (e *Engine) ResolveConflict(ctx context.Context, t model.EntityType, id, projectID string, res Resolution) error {
	spec := model.SpecFor(t)
	if spec == nil {
		return fmt.Errorf("unknown entity type %q", t)
	}
	pair, err := e.registry.Pair(t)
	if err != nil {
		return err
	}

	switch res {
	case ResolutionAcceptRemote:
		remote, err := pair.Remote.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch remote record: %w", err)
		}
		if remote == nil {
			// Deleted remotely since the conflict was raised.
			if err := pair.Local.Delete(ctx, id); err != nil {
				return fmt.Errorf("failed to delete locally: %w", err)
			}
			e.notifier.EntityDeleted(ctx, t, id, projectID)
			return nil
		}
		if spec.Asset {
			if err := e.assets.Download(ctx, remote.StoragePath); err != nil {
				return err
			}
		}
		if err := pair.Local.Create(ctx, remote.ProjectID, remote); err != nil {
			return fmt.Errorf("failed to write local record: %w", err)
		}
		e.notifier.EntityUpdated(ctx, t, remote)
		return nil

	case ResolutionKeepLocal:
		local, err := pair.Local.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch local record: %w", err)
		}
		if local == nil {
			return common.ErrNotFound
		}
		if spec.Asset {
			if err := e.assets.Upload(ctx, local.StoragePath); err != nil {
				return err
			}
		}
		if err := pair.Remote.Create(ctx, local.ProjectID, local); err != nil {
			return fmt.Errorf("failed to write remote record: %w", err)
		}
		e.notifier.EntityUpdated(ctx, t, local)
		return nil

	default:
		return common.ErrUnknownResolution
	}
}

// Reconnect is the manual recovery path after the supervisor exhausts its
// attempts: it resets the attempt ceiling, re-dials the channel and runs a
// full sync.
func (e *Engine) Reconnect(ctx context.Context) error {
	e.supervisor.Reset()
	if e.dialFeed != nil {
		if err := e.connectFeed(ctx); err != nil {
			e.supervisor.OnChannelClosed(ctx)
			return err
		}
	}
	return e.SyncAll(ctx)
}

// connectFeed dials the change feed and starts its consumer. Channel failure
// hands control to the supervisor, which calls back into connectFeed after
// the backoff delay.
func (e *Engine) connectFeed(ctx context.Context) error {
	ch, err := e.dialFeed(ctx)
	if err != nil {
		return fmt.Errorf("failed to dial change feed: %w", err)
	}
	e.supervisor.OnChannelEstablished()
	e.log.Info(ctx, "change feed established")

	go func() {
		err := ch.Consume(ctx, e.router.HandleRemoteChange)
		if ctx.Err() != nil {
			return
		}
		e.log.Warn(ctx, "change feed closed", "error", err)
		e.supervisor.OnChannelClosed(ctx)
	}()
	return nil
}
