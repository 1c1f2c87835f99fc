package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellhq/inkwell-sync/internal/model"
)

func TestSyncAll_PerformsPendingDeletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.local[model.TypeProject].Put(rec("p1", "p1", 100))
	f.remote[model.TypeProject].Put(rec("p1", "p1", 100))
	f.remote[model.TypeChapter].Put(rec("c1", "p1", 100))

	require.NoError(t, f.pending.Record(ctx, model.PendingDeletion{
		EntityID:   "c1",
		EntityType: model.TypeChapter,
		ProjectID:  "p1",
		DeletedAt:  time.UnixMilli(200).UTC(),
	}))

	f.syncAll(t)

	assert.Nil(t, f.remote[model.TypeChapter].Get("c1"))
	assert.Nil(t, f.local[model.TypeChapter].Get("c1"))
	assert.Equal(t, 0, f.pending.len())

	entries, err := f.ledger.ListForOwner(ctx, testOwnerID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c1", entries[0].EntityID)
	assert.Equal(t, testDeviceID, entries[0].DeviceID)
	assert.Equal(t, time.UnixMilli(200).UTC(), entries[0].DeletedAt)
}

func TestSyncAll_AbandonsStaleDeletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.local[model.TypeProject].Put(rec("p1", "p1", 100))
	f.remote[model.TypeProject].Put(rec("p1", "p1", 100))
	// Deleted locally at t=30, but another device updated it to t=35.
	f.remote[model.TypeChapter].Put(rec("c1", "p1", 35))

	require.NoError(t, f.pending.Record(ctx, model.PendingDeletion{
		EntityID:   "c1",
		EntityType: model.TypeChapter,
		ProjectID:  "p1",
		DeletedAt:  time.UnixMilli(30).UTC(),
	}))

	f.syncAll(t)

	// The deletion is abandoned and the newer record flows back in.
	assert.Equal(t, 0, f.pending.len())
	assert.Equal(t, 0, f.ledger.len())
	require.NotNil(t, f.remote[model.TypeChapter].Get("c1"))
	got := f.local[model.TypeChapter].Get("c1")
	require.NotNil(t, got)
	assert.Equal(t, time.UnixMilli(35).UTC(), got.UpdatedAt)
}

func TestSyncAll_PendingDeletionWithoutRemoteRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.pending.Record(ctx, model.PendingDeletion{
		EntityID:   "c1",
		EntityType: model.TypeChapter,
		ProjectID:  "p1",
		DeletedAt:  time.UnixMilli(200).UTC(),
	}))

	f.syncAll(t)

	// No remote timestamp means the deletion proceeds: the ledger entry is
	// still replicated so other devices that hold the record drop it.
	assert.Equal(t, 0, f.pending.len())
	assert.Equal(t, 1, f.ledger.len())
}

func TestSyncAll_AppliesRemoteDeletion(t *testing.T) {
	f := newFixture(t)
	f.local[model.TypeProject].Put(rec("p1", "p1", 100))
	f.remote[model.TypeProject].Put(rec("p1", "p1", 100))
	f.local[model.TypeChapter].Put(rec("c1", "p1", 100))

	f.ledger.put(model.RemoteDeletion{
		ID:         "rd1",
		EntityID:   "c1",
		EntityType: model.TypeChapter,
		ProjectID:  "p1",
		DeletedAt:  time.UnixMilli(200).UTC(),
		OwnerID:    testOwnerID,
		DeviceID:   "device-2",
	})

	f.syncAll(t)

	assert.Nil(t, f.local[model.TypeChapter].Get("c1"))
	assert.Equal(t, []string{"c1"}, f.notifier.deletedIDs())
	assert.Equal(t, 0, f.ledger.len())
}

func TestSyncAll_ResurrectsWhenLocalNewerThanDeletion(t *testing.T) {
	f := newFixture(t)
	f.local[model.TypeProject].Put(rec("p1", "p1", 100))
	f.remote[model.TypeProject].Put(rec("p1", "p1", 100))
	// Local edit at t=300 is newer than the deletion at t=200.
	f.local[model.TypeChapter].Put(rec("c1", "p1", 300))

	f.ledger.put(model.RemoteDeletion{
		ID:         "rd1",
		EntityID:   "c1",
		EntityType: model.TypeChapter,
		ProjectID:  "p1",
		DeletedAt:  time.UnixMilli(200).UTC(),
		OwnerID:    testOwnerID,
		DeviceID:   "device-2",
	})

	f.syncAll(t)

	// Entity survives, ledger entry is discarded, and the now local-only
	// record is re-pushed by the ordinary merge in the same pass.
	require.NotNil(t, f.local[model.TypeChapter].Get("c1"))
	assert.Equal(t, 0, f.ledger.len())
	assert.Empty(t, f.notifier.deletedIDs())
	assert.NotNil(t, f.remote[model.TypeChapter].Get("c1"))
}

func TestSyncAll_SkipsOwnLedgerEntries(t *testing.T) {
	f := newFixture(t)
	f.local[model.TypeChapter].Put(rec("c1", "p1", 100))

	f.ledger.put(model.RemoteDeletion{
		ID:         "rd1",
		EntityID:   "c1",
		EntityType: model.TypeChapter,
		ProjectID:  "p1",
		DeletedAt:  time.UnixMilli(200).UTC(),
		OwnerID:    testOwnerID,
		DeviceID:   testDeviceID,
	})

	f.syncAll(t)

	// Entries this device wrote are for the owner's other devices.
	assert.Equal(t, 1, f.ledger.len())
}

func TestSyncAll_PrunesBothLedgers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-31 * 24 * time.Hour)
	fresh := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, f.pending.Record(ctx, model.PendingDeletion{
		EntityID: "stale", EntityType: model.TypeChapter, ProjectID: "p1", DeletedAt: old,
	}))
	f.ledger.put(model.RemoteDeletion{
		ID: "rd-old", EntityID: "e1", EntityType: model.TypeChapter,
		ProjectID: "p1", DeletedAt: old, OwnerID: testOwnerID, DeviceID: testDeviceID,
	})
	f.ledger.put(model.RemoteDeletion{
		ID: "rd-new", EntityID: "e2", EntityType: model.TypeChapter,
		ProjectID: "p1", DeletedAt: fresh, OwnerID: testOwnerID, DeviceID: testDeviceID,
	})

	f.syncAll(t)

	assert.Equal(t, 0, f.pending.len())
	assert.Equal(t, 1, f.ledger.len())
}

func TestSyncAll_ProjectDeletionCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote[model.TypeProject].Put(rec("p1", "p1", 100))
	f.remote[model.TypeChapter].Put(rec("c1", "p1", 100))
	f.remote[model.TypeCharacter].Put(rec("ch1", "p1", 100))

	require.NoError(t, f.pending.Record(ctx, model.PendingDeletion{
		EntityID:   "p1",
		EntityType: model.TypeProject,
		ProjectID:  "p1",
		DeletedAt:  time.UnixMilli(200).UTC(),
	}))

	f.syncAll(t)

	assert.Nil(t, f.remote[model.TypeProject].Get("p1"))
	assert.Nil(t, f.remote[model.TypeChapter].Get("c1"))
	assert.Nil(t, f.remote[model.TypeCharacter].Get("ch1"))
	assert.Equal(t, 0, f.local[model.TypeChapter].Len())
}
