package sync

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwellhq/inkwell-sync/internal/blob"
	"github.com/inkwellhq/inkwell-sync/internal/logging"
	"github.com/inkwellhq/inkwell-sync/internal/model"
	"github.com/inkwellhq/inkwell-sync/internal/session"
	"github.com/inkwellhq/inkwell-sync/internal/store/memstore"
)

const (
	testOwnerID  = "owner-1"
	testDeviceID = "device-1"
)

func testLogger() logging.Logger {
	return logging.New("error", "")
}

func rec(id, projectID string, ts int64) *model.Record {
	return &model.Record{
		ID:        id,
		ProjectID: projectID,
		UpdatedAt: time.UnixMilli(ts).UTC(),
		Name:      "name-" + id,
	}
}

// memPending is an in-memory PendingLedger.
type memPending struct {
	mu       sync.Mutex
	entries  map[string]model.PendingDeletion
	failWith error
}

func newMemPending() *memPending {
	return &memPending{entries: make(map[string]model.PendingDeletion)}
}

func (p *memPending) Record(ctx context.Context, e model.PendingDeletion) error {
	if p.failWith != nil {
		return p.failWith
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[e.EntityID] = e
	return nil
}

func (p *memPending) IsPending(ctx context.Context, entityID string) (bool, error) {
	if p.failWith != nil {
		return false, p.failWith
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[entityID]
	return ok, nil
}

func (p *memPending) List(ctx context.Context) ([]model.PendingDeletion, error) {
	if p.failWith != nil {
		return nil, p.failWith
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.PendingDeletion, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	return out, nil
}

func (p *memPending) Clear(ctx context.Context, entityID string) error {
	if p.failWith != nil {
		return p.failWith
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, entityID)
	return nil
}

func (p *memPending) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if p.failWith != nil {
		return 0, p.failWith
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int64
	for id, e := range p.entries {
		if e.DeletedAt.Before(cutoff) {
			delete(p.entries, id)
			n++
		}
	}
	return n, nil
}

func (p *memPending) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// memLedger is an in-memory RemoteLedger.
type memLedger struct {
	mu      sync.Mutex
	entries map[string]model.RemoteDeletion
	seq     int
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[string]model.RemoteDeletion)}
}

func (l *memLedger) Append(ctx context.Context, e model.RemoteDeletion) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	e.ID = "ledger-" + strconv.Itoa(l.seq)
	l.entries[e.ID] = e
	return nil
}

// put inserts a fully formed entry. Test setup helper.
func (l *memLedger) put(e model.RemoteDeletion) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[e.ID] = e
}

func (l *memLedger) ListForOwner(ctx context.Context, ownerID string) ([]model.RemoteDeletion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.RemoteDeletion
	for _, e := range l.entries {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memLedger) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
	return nil
}

func (l *memLedger) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for id, e := range l.entries {
		if e.DeletedAt.Before(cutoff) {
			delete(l.entries, id)
			n++
		}
	}
	return n, nil
}

func (l *memLedger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// recordingNotifier captures every notification for assertions.
type recordingNotifier struct {
	mu         sync.Mutex
	updated    []*model.Record
	deleted    []string
	conflicts  []Conflict
	statuses   []Status
	lastSynced []time.Time
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{}
}

func (n *recordingNotifier) EntityUpdated(ctx context.Context, t model.EntityType, r *model.Record) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, r.Clone())
}

func (n *recordingNotifier) EntityDeleted(ctx context.Context, t model.EntityType, entityID, projectID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, entityID)
}

func (n *recordingNotifier) NotifyConflict(ctx context.Context, c Conflict) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.conflicts = append(n.conflicts, c)
}

func (n *recordingNotifier) SetStatus(s Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, s)
}

func (n *recordingNotifier) SetLastSyncedAt(ts time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastSynced = append(n.lastSynced, ts)
}

func (n *recordingNotifier) updatedIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.updated))
	for _, r := range n.updated {
		out = append(out, r.ID)
	}
	return out
}

func (n *recordingNotifier) deletedIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.deleted...)
}

func (n *recordingNotifier) allConflicts() []Conflict {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Conflict(nil), n.conflicts...)
}

func (n *recordingNotifier) lastStatus() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.statuses) == 0 {
		return ""
	}
	return n.statuses[len(n.statuses)-1]
}

// memMeta records MetaStore writes.
type memMeta struct {
	mu   sync.Mutex
	vals map[string][]byte
}

func newMemMeta() *memMeta {
	return &memMeta{vals: make(map[string][]byte)}
}

func (m *memMeta) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = append([]byte(nil), value...)
	return nil
}

// fixture wires a full engine over in-memory stores.
type fixture struct {
	eng         *Engine
	local       map[model.EntityType]*memstore.Store
	remote      map[model.EntityType]*memstore.Store
	pending     *memPending
	ledger      *memLedger
	notifier    *recordingNotifier
	meta        *memMeta
	localBlobs  *blob.MemStore
	remoteBlobs *blob.MemStore
	sess        *session.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		local:       make(map[model.EntityType]*memstore.Store),
		remote:      make(map[model.EntityType]*memstore.Store),
		pending:     newMemPending(),
		ledger:      newMemLedger(),
		notifier:    newRecordingNotifier(),
		meta:        newMemMeta(),
		localBlobs:  blob.NewMemStore(),
		remoteBlobs: blob.NewMemStore(),
		sess:        &session.Session{OwnerID: testOwnerID, DeviceID: testDeviceID},
	}

	registry := NewRegistry()
	for i := range model.Types {
		spec := &model.Types[i]
		local := memstore.New()
		remote := memstore.New()
		if spec.Root {
			local.Root = true
			remote.Root = true
		}
		f.local[spec.Type] = local
		f.remote[spec.Type] = remote
		require.NoError(t, registry.Register(spec.Type, local, remote))
	}

	eng, err := NewEngine(Options{
		Session:      f.sess,
		Registry:     registry,
		Pending:      f.pending,
		RemoteLedger: f.ledger,
		LocalBlobs:   f.localBlobs,
		RemoteBlobs:  f.remoteBlobs,
		Notifier:     f.notifier,
		Meta:         f.meta,
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	f.eng = eng
	return f
}

// syncAll runs one pass and requires success.
func (f *fixture) syncAll(t *testing.T) {
	t.Helper()
	require.NoError(t, f.eng.SyncAll(context.Background()))
}
