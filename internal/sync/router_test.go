package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellhq/inkwell-sync/internal/model"
)

func chapterEvent(id string, ts int64) model.Event {
	return model.Event{
		Type:      model.TypeChapter,
		Kind:      model.ChangeUpdate,
		ID:        id,
		ProjectID: "p1",
		UpdatedAt: time.UnixMilli(ts).UTC(),
		Origin:    "device-2",
		ArrivedAt: time.UnixMilli(ts).UTC(),
	}
}

// primeOwnership runs one pass so the ownership cache holds p1.
func primeOwnership(t *testing.T, f *fixture) {
	t.Helper()
	f.local[model.TypeProject].Put(rec("p1", "p1", 100))
	f.syncAll(t)
}

func TestRouter_DropsOwnEchoes(t *testing.T) {
	f := newFixture(t)
	primeOwnership(t, f)
	f.remote[model.TypeChapter].Put(rec("c1", "p1", 100))

	ev := chapterEvent("c1", 100)
	ev.Origin = testDeviceID
	f.eng.HandleRemoteChange(context.Background(), ev)

	assert.Nil(t, f.local[model.TypeChapter].Get("c1"))
	assert.Equal(t, 0, f.eng.state.queueLen())
}

func TestRouter_QueuesWhenOwnershipCacheEmpty(t *testing.T) {
	f := newFixture(t)

	f.eng.HandleRemoteChange(context.Background(), chapterEvent("c1", 100))

	assert.Equal(t, 1, f.eng.state.queueLen())
	assert.Nil(t, f.local[model.TypeChapter].Get("c1"))
}

func TestRouter_DropsEventsOutsideOwnership(t *testing.T) {
	f := newFixture(t)
	primeOwnership(t, f)
	f.remote[model.TypeChapter].Put(rec("c1", "foreign-project", 100))

	ev := chapterEvent("c1", 100)
	ev.ProjectID = "foreign-project"
	f.eng.HandleRemoteChange(context.Background(), ev)

	assert.Equal(t, 0, f.eng.state.queueLen())
	assert.Nil(t, f.local[model.TypeChapter].Get("c1"))
}

func TestRouter_RootEventsBypassOwnershipFilter(t *testing.T) {
	f := newFixture(t)
	primeOwnership(t, f)
	f.remote[model.TypeProject].Put(rec("p2", "p2", 100))

	f.eng.HandleRemoteChange(context.Background(), model.Event{
		Type:      model.TypeProject,
		Kind:      model.ChangeInsert,
		ID:        "p2",
		ProjectID: "p2",
		UpdatedAt: time.UnixMilli(100).UTC(),
		Origin:    "device-2",
		ArrivedAt: time.Now(),
	})

	assert.NotNil(t, f.local[model.TypeProject].Get("p2"))
}

func TestRouter_AppliesUpdateAndNotifies(t *testing.T) {
	f := newFixture(t)
	primeOwnership(t, f)
	f.remote[model.TypeChapter].Put(rec("c1", "p1", 200))
	f.local[model.TypeChapter].Put(rec("c1", "p1", 100))

	f.eng.HandleRemoteChange(context.Background(), chapterEvent("c1", 200))

	got := f.local[model.TypeChapter].Get("c1")
	require.NotNil(t, got)
	assert.Equal(t, time.UnixMilli(200).UTC(), got.UpdatedAt)
	assert.Contains(t, f.notifier.updatedIDs(), "c1")
}

func TestRouter_TieKeepsLocal(t *testing.T) {
	f := newFixture(t)
	primeOwnership(t, f)
	local := rec("c1", "p1", 100)
	local.Name = "local-copy"
	f.local[model.TypeChapter].Put(local)
	remote := rec("c1", "p1", 100)
	remote.Name = "remote-copy"
	f.remote[model.TypeChapter].Put(remote)

	f.eng.HandleRemoteChange(context.Background(), chapterEvent("c1", 100))

	// Equal timestamps: the materialized copy stands, no redundant write
	// and no notification.
	got := f.local[model.TypeChapter].Get("c1")
	require.NotNil(t, got)
	assert.Equal(t, "local-copy", got.Name)
	assert.Empty(t, f.notifier.updatedIDs())
	assert.Empty(t, f.notifier.allConflicts())
}

func TestRouter_AppliesDelete(t *testing.T) {
	f := newFixture(t)
	primeOwnership(t, f)
	f.local[model.TypeChapter].Put(rec("c1", "p1", 100))

	ev := chapterEvent("c1", 200)
	ev.Kind = model.ChangeDelete
	f.eng.HandleRemoteChange(context.Background(), ev)

	assert.Nil(t, f.local[model.TypeChapter].Get("c1"))
	assert.Equal(t, []string{"c1"}, f.notifier.deletedIDs())
}

func TestRouter_DeleteOfUnknownRecordIsSilent(t *testing.T) {
	f := newFixture(t)
	primeOwnership(t, f)

	ev := chapterEvent("c1", 200)
	ev.Kind = model.ChangeDelete
	f.eng.HandleRemoteChange(context.Background(), ev)

	assert.Empty(t, f.notifier.deletedIDs())
}

func TestRouter_RaisesConflictWhenLocalStrictlyNewer(t *testing.T) {
	f := newFixture(t)
	primeOwnership(t, f)
	f.local[model.TypeChapter].Put(rec("c1", "p1", 500))
	f.remote[model.TypeChapter].Put(rec("c1", "p1", 400))

	f.eng.HandleRemoteChange(context.Background(), chapterEvent("c1", 400))

	conflicts := f.notifier.allConflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "c1", conflicts[0].EntityID)
	assert.Equal(t, time.UnixMilli(500).UTC(), conflicts[0].LocalUpdatedAt)
	assert.Equal(t, time.UnixMilli(400).UTC(), conflicts[0].RemoteUpdatedAt)

	// The local record is not clobbered.
	got := f.local[model.TypeChapter].Get("c1")
	require.NotNil(t, got)
	assert.Equal(t, time.UnixMilli(500).UTC(), got.UpdatedAt)
}

func TestRouter_SkipsEntitiesPendingDeletion(t *testing.T) {
	f := newFixture(t)
	primeOwnership(t, f)
	f.remote[model.TypeChapter].Put(rec("c1", "p1", 300))
	require.NoError(t, f.pending.Record(context.Background(), model.PendingDeletion{
		EntityID:   "c1",
		EntityType: model.TypeChapter,
		ProjectID:  "p1",
		DeletedAt:  time.UnixMilli(200).UTC(),
	}))

	f.eng.HandleRemoteChange(context.Background(), chapterEvent("c1", 300))

	assert.Nil(t, f.local[model.TypeChapter].Get("c1"))
}

func TestRouter_IgnoresRecordDeletedBetweenEventAndFetch(t *testing.T) {
	f := newFixture(t)
	primeOwnership(t, f)

	f.eng.HandleRemoteChange(context.Background(), chapterEvent("c1", 100))

	assert.Nil(t, f.local[model.TypeChapter].Get("c1"))
	assert.Empty(t, f.notifier.updatedIDs())
}

func TestRouter_QueuesDuringSyncAndDeduplicates(t *testing.T) {
	f := newFixture(t)
	primeOwnership(t, f)
	ctx := context.Background()

	require.True(t, f.eng.state.tryBeginSync())
	for ts := int64(100); ts <= 500; ts += 100 {
		f.eng.HandleRemoteChange(ctx, chapterEvent("c1", ts))
	}
	require.Equal(t, 1, f.eng.state.queueLen())
	f.eng.state.endSync()

	f.remote[model.TypeChapter].Put(rec("c1", "p1", 500))
	f.eng.router.DrainQueue(ctx)

	assert.Equal(t, 0, f.eng.state.queueLen())
	got := f.local[model.TypeChapter].Get("c1")
	require.NotNil(t, got)
	assert.Equal(t, time.UnixMilli(500).UTC(), got.UpdatedAt)
	// Five queued events collapse into exactly one applied update.
	assert.Equal(t, []string{"c1"}, f.notifier.updatedIDs())
}

func TestRouter_DedupKeepsLatestArrival(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.eng.state.tryBeginSync())

	late := chapterEvent("c1", 300)
	early := chapterEvent("c1", 200)
	f.eng.HandleRemoteChange(context.Background(), late)
	f.eng.HandleRemoteChange(context.Background(), early)
	f.eng.state.endSync()

	events := f.eng.state.takeQueue()
	require.Len(t, events, 1)
	assert.Equal(t, late.ArrivedAt, events[0].ArrivedAt)
}

func TestRouter_AssetEventDownloadsBlob(t *testing.T) {
	f := newFixture(t)
	primeOwnership(t, f)

	img := rec("i1", "p1", 100)
	img.StoragePath = "p1/images/i1.png"
	f.remote[model.TypeImage].Put(img)
	require.NoError(t, f.remoteBlobs.Upload(context.Background(), img.StoragePath, []byte("png")))

	f.eng.HandleRemoteChange(context.Background(), model.Event{
		Type:      model.TypeImage,
		Kind:      model.ChangeInsert,
		ID:        "i1",
		ProjectID: "p1",
		UpdatedAt: time.UnixMilli(100).UTC(),
		Origin:    "device-2",
		ArrivedAt: time.Now(),
	})

	assert.True(t, f.localBlobs.Has(img.StoragePath))
	assert.NotNil(t, f.local[model.TypeImage].Get("i1"))
}
