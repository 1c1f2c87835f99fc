// Package feed consumes the remote change feed: Postgres LISTEN/NOTIFY
// notifications emitted by the remote store on every write. The root
// (project) channel is owner-scoped; child channels are per-table and carry
// events for every tenant, so the router must filter them by ownership.
package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/inkwellhq/inkwell-sync/internal/model"
)

const channelPrefix = "inkwell_"

// Channel returns the NOTIFY channel name for an entity type. ownerID is
// only used for the root type; Postgres cannot scope a LISTEN on the child
// tables, which is exactly why the router filters child events client-side.
func Channel(spec *model.TypeSpec, ownerID string) string {
	if spec.Root {
		return channelPrefix + spec.Table + "_" + strings.ReplaceAll(ownerID, "-", "")
	}
	return channelPrefix + spec.Table
}

// Notification is the JSON payload carried on the wire. It is identity only;
// consumers re-fetch the full record.
type Notification struct {
	Kind       string `json:"kind"`
	EntityType string `json:"entity_type"`
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	UpdatedAt  int64  `json:"updated_at"` // unix milliseconds
	Origin     string `json:"origin"`     // device id that performed the write
}

// Encode serializes a notification payload for pg_notify.
func Encode(kind model.ChangeKind, t model.EntityType, id, projectID string, updatedAt time.Time, origin string) (string, error) {
	b, err := json.Marshal(Notification{
		Kind:       kind.String(),
		EntityType: string(t),
		ID:         id,
		ProjectID:  projectID,
		UpdatedAt:  updatedAt.UnixMilli(),
		Origin:     origin,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode notification: %w", err)
	}
	return string(b), nil
}

// Decode parses a wire payload into a model.Event. ArrivedAt is left zero;
// the router stamps it on receipt.
func Decode(payload string) (model.Event, error) {
	var n Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return model.Event{}, fmt.Errorf("failed to decode notification: %w", err)
	}
	kind, ok := model.ParseChangeKind(n.Kind)
	if !ok {
		return model.Event{}, fmt.Errorf("unknown change kind %q", n.Kind)
	}
	if model.SpecFor(model.EntityType(n.EntityType)) == nil {
		return model.Event{}, fmt.Errorf("unknown entity type %q", n.EntityType)
	}
	return model.Event{
		Type:      model.EntityType(n.EntityType),
		Kind:      kind,
		ID:        n.ID,
		ProjectID: n.ProjectID,
		UpdatedAt: time.UnixMilli(n.UpdatedAt).UTC(),
		Origin:    n.Origin,
	}, nil
}
