package sync

import (
	"context"
	"time"

	"github.com/inkwellhq/inkwell-sync/internal/model"
)

// Status is the engine state surfaced to the UI layer.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusSyncing Status = "syncing"
)

// Resolution is the caller's answer to a Conflict notification.
type Resolution string

const (
	ResolutionAcceptRemote Resolution = "accept-remote"
	ResolutionKeepLocal    Resolution = "keep-local"
)

// Conflict describes an interactive-path conflict: a realtime update arrived
// for an entity the local session edited more recently. The caller answers
// through Engine.ResolveConflict.
type Conflict struct {
	Type            model.EntityType
	EntityID        string
	ProjectID       string
	EntityName      string
	LocalUpdatedAt  time.Time
	RemoteUpdatedAt time.Time
}

// Notifier is the observer sink consumed by the UI layer. Implementations
// must be cheap and non-blocking; the engine calls them inline.
type Notifier interface {
	EntityUpdated(ctx context.Context, t model.EntityType, rec *model.Record)
	EntityDeleted(ctx context.Context, t model.EntityType, entityID, projectID string)
	NotifyConflict(ctx context.Context, c Conflict)
	SetStatus(status Status)
	SetLastSyncedAt(ts time.Time)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) EntityUpdated(context.Context, model.EntityType, *model.Record)  {}
func (NopNotifier) EntityDeleted(context.Context, model.EntityType, string, string) {}
func (NopNotifier) NotifyConflict(context.Context, Conflict)                        {}
func (NopNotifier) SetStatus(Status)                                                {}
func (NopNotifier) SetLastSyncedAt(time.Time)                                       {}
