package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellhq/inkwell-sync/internal/common"
	"github.com/inkwellhq/inkwell-sync/internal/feed"
	"github.com/inkwellhq/inkwell-sync/internal/model"
)

func TestEngine_RequestDeletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.local[model.TypeChapter].Put(rec("c1", "p1", 100))

	require.NoError(t, f.eng.RequestDeletion(ctx, model.TypeChapter, "c1", "p1"))

	assert.Nil(t, f.local[model.TypeChapter].Get("c1"))
	assert.Equal(t, 1, f.pending.len())
	assert.Equal(t, []string{"c1"}, f.notifier.deletedIDs())

	pendingDel, err := f.pending.IsPending(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, pendingDel)
}

func TestEngine_RequestDeletion_ProjectRemovesChildrenLocally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.local[model.TypeProject].Put(rec("p1", "p1", 100))
	f.local[model.TypeChapter].Put(rec("c1", "p1", 100))
	f.local[model.TypeScrapNote].Put(rec("n1", "p1", 100))

	require.NoError(t, f.eng.RequestDeletion(ctx, model.TypeProject, "p1", "p1"))

	assert.Nil(t, f.local[model.TypeProject].Get("p1"))
	assert.Equal(t, 0, f.local[model.TypeChapter].Len())
	assert.Equal(t, 0, f.local[model.TypeScrapNote].Len())
}

func TestEngine_RequestDeletion_UnknownType(t *testing.T) {
	f := newFixture(t)
	err := f.eng.RequestDeletion(context.Background(), "widget", "w1", "p1")
	require.Error(t, err)
}

func TestEngine_ResolveConflict_AcceptRemote(t *testing.T) {
	f := newFixture(t)
	f.local[model.TypeChapter].Put(rec("c1", "p1", 500))
	f.remote[model.TypeChapter].Put(rec("c1", "p1", 400))

	err := f.eng.ResolveConflict(context.Background(), model.TypeChapter, "c1", "p1", ResolutionAcceptRemote)
	require.NoError(t, err)

	got := f.local[model.TypeChapter].Get("c1")
	require.NotNil(t, got)
	assert.Equal(t, time.UnixMilli(400).UTC(), got.UpdatedAt)
	assert.Equal(t, []string{"c1"}, f.notifier.updatedIDs())
}

func TestEngine_ResolveConflict_AcceptRemoteVanished(t *testing.T) {
	f := newFixture(t)
	f.local[model.TypeChapter].Put(rec("c1", "p1", 500))

	err := f.eng.ResolveConflict(context.Background(), model.TypeChapter, "c1", "p1", ResolutionAcceptRemote)
	require.NoError(t, err)

	assert.Nil(t, f.local[model.TypeChapter].Get("c1"))
	assert.Equal(t, []string{"c1"}, f.notifier.deletedIDs())
}

func TestEngine_ResolveConflict_KeepLocal(t *testing.T) {
	f := newFixture(t)
	f.local[model.TypeChapter].Put(rec("c1", "p1", 500))
	f.remote[model.TypeChapter].Put(rec("c1", "p1", 400))

	err := f.eng.ResolveConflict(context.Background(), model.TypeChapter, "c1", "p1", ResolutionKeepLocal)
	require.NoError(t, err)

	got := f.remote[model.TypeChapter].Get("c1")
	require.NotNil(t, got)
	assert.Equal(t, time.UnixMilli(500).UTC(), got.UpdatedAt)
	assert.Equal(t, []string{"c1"}, f.notifier.updatedIDs())
}

func TestEngine_ResolveConflict_KeepLocalMissing(t *testing.T) {
	f := newFixture(t)

	err := f.eng.ResolveConflict(context.Background(), model.TypeChapter, "c1", "p1", ResolutionKeepLocal)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestEngine_ResolveConflict_UnknownResolution(t *testing.T) {
	f := newFixture(t)
	err := f.eng.ResolveConflict(context.Background(), model.TypeChapter, "c1", "p1", "coin-flip")
	assert.ErrorIs(t, err, common.ErrUnknownResolution)
}

func TestEngine_ResolveConflict_KeepLocalUploadsAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	img := rec("i1", "p1", 500)
	img.StoragePath = "p1/images/i1.png"
	f.local[model.TypeImage].Put(img)
	require.NoError(t, f.localBlobs.Upload(ctx, img.StoragePath, []byte("png")))

	require.NoError(t, f.eng.ResolveConflict(ctx, model.TypeImage, "i1", "p1", ResolutionKeepLocal))

	assert.True(t, f.remoteBlobs.Has(img.StoragePath))
	assert.NotNil(t, f.remote[model.TypeImage].Get("i1"))
}

// fakeChannel blocks in Consume until the context is cancelled, like a
// healthy feed connection with no traffic.
type fakeChannel struct {
	done chan struct{}
}

func (c *fakeChannel) Consume(ctx context.Context, handler feed.Handler) error {
	defer close(c.done)
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeChannel) Ping(ctx context.Context) error { return nil }

func TestEngine_Reconnect(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	dials := 0
	ch := &fakeChannel{done: make(chan struct{})}
	f.eng.dialFeed = func(ctx context.Context) (Channel, error) {
		dials++
		return ch, nil
	}
	f.eng.supervisor.mu.Lock()
	f.eng.supervisor.attempts = reconnectMaxAttempts
	f.eng.supervisor.mu.Unlock()

	f.remote[model.TypeProject].Put(rec("p1", "p1", 100))
	require.NoError(t, f.eng.Reconnect(ctx))

	assert.Equal(t, 1, dials)
	assert.Equal(t, 0, f.eng.supervisor.Attempts())
	assert.NotNil(t, f.local[model.TypeProject].Get("p1"))

	cancel()
	<-ch.done
}

func TestEngine_ReconnectDialFailure(t *testing.T) {
	f := newFixture(t)
	f.eng.dialFeed = func(ctx context.Context) (Channel, error) {
		return nil, errors.New("connection refused")
	}

	err := f.eng.Reconnect(context.Background())
	require.Error(t, err)
	// The failed dial re-enters the supervisor's backoff cycle.
	assert.Equal(t, 1, f.eng.supervisor.Attempts())
}
