package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/odvcencio/cadvc/pkg/config"
	"github.com/odvcencio/cadvc/pkg/diff"
	"github.com/odvcencio/cadvc/pkg/document"
	"github.com/odvcencio/cadvc/pkg/logging"
	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/resolve"
)

// snapshotHandle is a live document whose objects tests replace between
// commits.
type snapshotHandle struct {
	mu   sync.Mutex
	objs []document.SnapshotObject
	err  error
}

func (h *snapshotHandle) TakeSnapshot(ctx context.Context) (*document.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	return &document.Snapshot{Objects: append([]document.SnapshotObject(nil), h.objs...)}, nil
}

func (h *snapshotHandle) set(objs ...document.SnapshotObject) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.objs = objs
}

func part(name string, props map[string]object.Value) document.SnapshotObject {
	return document.SnapshotObject{TypeID: "Part::Feature", Name: name, Label: name, Properties: props}
}

func box(name string, length float64) document.SnapshotObject {
	return part(name, map[string]object.Value{
		"Length": object.Float(length),
		"Width":  object.Float(10),
		"Height": object.Float(10),
	})
}

// steppingClock advances one second per call so consecutive commits never
// share a timestamp.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type testRepo struct {
	*Repo
	backend *object.MemoryBackend
	docs    *document.Registry
	handle  *snapshotHandle
}

const testDocID = "bracket.FCStd"

// newTestRepo builds an in-memory repository with one registered live
// document. The object store has no read cache so tests can corrupt
// records underneath it.
func newTestRepo(t *testing.T, opts ...Option) *testRepo {
	t.Helper()

	backend := object.NewMemoryBackend()
	store, err := object.NewStore(backend)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	docs := document.NewRegistry()
	handle := &snapshotHandle{}
	if err := docs.Register(testDocID, map[string]object.Value{"Label": object.Str("Bracket")}, handle); err != nil {
		t.Fatalf("Register: %v", err)
	}

	all := append([]Option{
		WithAdapter(docs),
		WithClock(steppingClock()),
		WithLogger(logging.Discard()),
	}, opts...)
	r, err := New(store, all...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return &testRepo{Repo: r, backend: backend, docs: docs, handle: handle}
}

// commitObjects snapshots objs and commits them on top of parent.
func (tr *testRepo) commitObjects(t *testing.T, parent object.Hash, message string, objs ...document.SnapshotObject) object.Hash {
	t.Helper()
	tr.handle.set(objs...)
	h, err := tr.CommitDocument(context.Background(), testDocID, message, "alice", parent)
	if err != nil {
		t.Fatalf("CommitDocument(%q): %v", message, err)
	}
	return h
}

// writeCommit stores a commit with an empty tree directly, bypassing the
// document adapter.
func (tr *testRepo) writeCommit(t *testing.T, message string, parents ...object.Hash) object.Hash {
	t.Helper()
	ctx := context.Background()
	tree, err := tr.Store.StoreTree(ctx, &object.Tree{})
	if err != nil {
		t.Fatalf("StoreTree: %v", err)
	}
	c, err := tr.CreateCommit(tree, parents, "test-author", message)
	if err != nil {
		t.Fatalf("CreateCommit(%q): %v", message, err)
	}
	if _, err := tr.Store.StoreCommit(ctx, c); err != nil {
		t.Fatalf("StoreCommit(%q): %v", message, err)
	}
	return c.Hash
}

// rewriteCommit replaces the stored payload of h with c, keeping the
// address. Used to fabricate corrupt histories.
func (tr *testRepo) rewriteCommit(t *testing.T, h object.Hash, c *object.Commit) {
	t.Helper()
	data, err := object.MarshalCommit(c)
	if err != nil {
		t.Fatalf("MarshalCommit: %v", err)
	}
	if !tr.backend.Corrupt(h, data) {
		t.Fatalf("Corrupt(%s): object not found", h.Short())
	}
}

// failingStore fails every blob write.
type failingStore struct {
	ObjectStore
	err error
}

func (f *failingStore) StoreBlob(ctx context.Context, d *object.ObjectData) (object.Hash, error) {
	return "", f.err
}

func TestNew_Defaults(t *testing.T) {
	r, err := NewMemory()
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	defer r.Close()

	if r.Config == nil || r.Refs == nil || r.Adapter == nil {
		t.Fatalf("New left defaults unset: config=%v refs=%v adapter=%v", r.Config, r.Refs, r.Adapter)
	}
	if r.workers <= 0 {
		t.Fatalf("workers = %d, want > 0", r.workers)
	}
	if r.Resolver() == nil {
		t.Fatal("Resolver() = nil")
	}
}

func TestNew_RejectsNilStore(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("New(nil) succeeded")
	}
}

func TestNew_BadMergeRuleFails(t *testing.T) {
	cfg := config.Default()
	cfg.Merge.TrivialRules = append(cfg.Merge.TrivialRules, resolve.Rule{Name: "broken", Pattern: "[", Enabled: true})
	if _, err := NewMemory(WithConfig(cfg)); err == nil {
		t.Fatal("NewMemory with an uncompilable rule succeeded")
	}
}

func TestDiff_BetweenCommits(t *testing.T) {
	tr := newTestRepo(t)
	first := tr.commitObjects(t, "", "first", box("Box", 10))
	second := tr.commitObjects(t, first, "second", box("Box", 12), box("Lid", 2))

	d, err := tr.Diff(context.Background(), first, second)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if d.Stats.Added != 1 || d.Stats.Modified != 1 || d.Stats.Deleted != 0 {
		t.Fatalf("Stats = %+v, want 1 added, 1 modified", d.Stats)
	}
	got := map[string]diff.ChangeType{}
	for _, od := range d.ObjectDiffs {
		got[od.ObjectID] = od.ChangeType
	}
	if got["Lid"] != diff.Added || got["Box"] != diff.Modified {
		t.Fatalf("object changes = %v", got)
	}
}

func TestClose_PropagatesStoreError(t *testing.T) {
	closeErr := errors.New("close failed")
	r, err := New(&closingStore{ObjectStore: object.NewMemoryStore(), err: closeErr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Close(); !errors.Is(err, closeErr) {
		t.Fatalf("Close() = %v, want %v", err, closeErr)
	}
}

type closingStore struct {
	ObjectStore
	err error
}

func (c *closingStore) Close() error { return c.err }
