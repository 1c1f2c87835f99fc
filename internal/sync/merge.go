// Package sync implements the offline-first synchronization engine: a pure
// last-write-wins merge, a two-sided deletion ledger, a single-flight
// coordinator, a realtime event router and a reconnect supervisor, all
// generic over entity types through a per-type store registry.
package sync

import "github.com/inkwellhq/inkwell-sync/internal/model"

// remoteWinsTies fixes the equal-timestamp policy in one place: ties go to
// the side already materialized locally, avoiding a redundant write.
const remoteWinsTies = false

// PickNewer returns the last-write-wins winner between a local and a remote
// candidate. Either side may be nil; a sole survivor wins outright, and two
// nils yield nil.
func PickNewer(local, remote *model.Record) *model.Record {
	if local == nil {
		return remote
	}
	if remote == nil {
		return local
	}
	if remote.UpdatedAt.After(local.UpdatedAt) {
		return remote
	}
	if remoteWinsTies && remote.UpdatedAt.Equal(local.UpdatedAt) {
		return remote
	}
	return local
}

// MergeCollections merges two record collections keyed by id: every local
// item is kept unless a strictly newer remote item with the same id replaces
// it, and remote-only items are added. Result order is unspecified; callers
// needing order re-sort explicitly.
func MergeCollections(local, remote []*model.Record) []*model.Record {
	byID := make(map[string]*model.Record, len(local)+len(remote))
	for _, l := range local {
		byID[l.ID] = l
	}
	for _, r := range remote {
		byID[r.ID] = PickNewer(byID[r.ID], r)
	}

	merged := make([]*model.Record, 0, len(byID))
	for _, rec := range byID {
		merged = append(merged, rec)
	}
	return merged
}
