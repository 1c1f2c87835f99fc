package model

import "time"

// PendingDeletion is a local ledger entry recording a delete that has not yet
// been confirmed remotely.
type PendingDeletion struct {
	EntityID   string
	EntityType EntityType
	ProjectID  string
	DeletedAt  time.Time
}

// RemoteDeletion is a replicated ledger entry recording a confirmed delete,
// read by the owner's other devices so they can apply deletions they did not
// originate.
type RemoteDeletion struct {
	ID         string
	EntityID   string
	EntityType EntityType
	ProjectID  string
	DeletedAt  time.Time
	OwnerID    string
	DeviceID   string
}
