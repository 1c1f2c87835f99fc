package model

import "time"

// ChangeKind classifies a realtime change-feed event.
type ChangeKind int

const (
	ChangeInsert ChangeKind = iota
	ChangeUpdate
	ChangeDelete
)

// String returns a human-readable representation of the kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseChangeKind maps the wire representation back to a ChangeKind.
func ParseChangeKind(s string) (ChangeKind, bool) {
	switch s {
	case "insert":
		return ChangeInsert, true
	case "update":
		return ChangeUpdate, true
	case "delete":
		return ChangeDelete, true
	default:
		return 0, false
	}
}

// Event is one realtime change-feed notification. The payload is identity
// only; the apply path re-fetches the full record from the remote store.
type Event struct {
	Type      EntityType
	Kind      ChangeKind
	ID        string
	ProjectID string
	UpdatedAt time.Time

	// Origin is the device id that performed the write. The router drops
	// echoes of this device's own writes.
	Origin string

	// ArrivedAt orders events queued during a sync pass; the drain keeps
	// only the latest arrival per (Type, ID).
	ArrivedAt time.Time
}
