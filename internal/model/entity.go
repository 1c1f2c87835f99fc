// Package model defines the record envelope and entity-type table shared by
// every layer of the sync engine. The engine never inspects domain fields:
// a record is identity, timestamp and an opaque payload.
package model

import (
	"encoding/json"
	"time"
)

// EntityType identifies one synchronized record type.
type EntityType string

const (
	TypeProject      EntityType = "project"
	TypeChapter      EntityType = "chapter"
	TypeCharacter    EntityType = "character"
	TypeLocation     EntityType = "location"
	TypeOrganization EntityType = "organization"
	TypeScrapNote    EntityType = "scrap_note"
	TypeImage        EntityType = "image"
	TypeAudioTrack   EntityType = "audio_track"
	TypePlaylist     EntityType = "playlist"
)

// TypeSpec declares the static sync-relevant properties of one entity type.
type TypeSpec struct {
	Type EntityType

	// Root marks the project type. Root records belong to an owning user
	// rather than to a project; their ProjectID equals their own ID.
	Root bool

	// Asset marks types whose records carry a binary payload addressed by
	// StoragePath. Asset blobs move before metadata writes.
	Asset bool

	// Table is the remote table name for this type.
	Table string
}

// Types lists every synchronized entity type, root first. Child sync always
// runs in this order, after the root has been reconciled.
var Types = []TypeSpec{
	{Type: TypeProject, Root: true, Table: "projects"},
	{Type: TypeChapter, Table: "chapters"},
	{Type: TypeCharacter, Table: "characters"},
	{Type: TypeLocation, Table: "locations"},
	{Type: TypeOrganization, Table: "organizations"},
	{Type: TypeScrapNote, Table: "scrap_notes"},
	{Type: TypeImage, Asset: true, Table: "images"},
	{Type: TypeAudioTrack, Asset: true, Table: "audio_tracks"},
	{Type: TypePlaylist, Table: "playlists"},
}

// SpecFor returns the TypeSpec for t, or nil if t is unknown.
func SpecFor(t EntityType) *TypeSpec {
	for i := range Types {
		if Types[i].Type == t {
			return &Types[i]
		}
	}
	return nil
}

// Record is the sync envelope for one entity. Domain fields live in Payload
// and are carried verbatim between stores.
type Record struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Name        string          `json:"name,omitempty"`
	StoragePath string          `json:"storage_path,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Payload != nil {
		c.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	return &c
}
