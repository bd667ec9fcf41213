package object

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/odvcencio/cadvc/pkg/vcserr"
)

func TestHashBytesDeterminism(t *testing.T) {
	data := []byte("hello world")
	h1 := HashBytes(data)
	h2 := HashBytes(data)
	if h1 != h2 {
		t.Errorf("HashBytes not deterministic: %q != %q", h1, h2)
	}
	if !ValidHash(h1) {
		t.Errorf("HashBytes produced invalid hash %q", h1)
	}
}

func TestValidHash(t *testing.T) {
	tests := []struct {
		in   Hash
		want bool
	}{
		{HashBytes([]byte("x")), true},
		{"", false},
		{Hash(strings.Repeat("a", 63)), false},
		{Hash(strings.Repeat("A", 64)), false},
		{Hash(strings.Repeat("g", 64)), false},
	}
	for _, tt := range tests {
		if got := ValidHash(tt.in); got != tt.want {
			t.Errorf("ValidHash(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func sampleObject(name string) *ObjectData {
	return &ObjectData{
		TypeID: "Part::Box",
		Name:   name,
		Label:  name,
		Properties: map[string]Value{
			"Length": Float(10),
			"Width":  Float(5.5),
			"Count":  Int(3),
		},
		Visibility: true,
	}
}

type backendCase struct {
	name string
	open func(t *testing.T) Backend
}

func backendCases() []backendCase {
	return []backendCase{
		{"memory", func(t *testing.T) Backend { return NewMemoryBackend() }},
		{"file", func(t *testing.T) Backend { return NewFileBackend(t.TempDir()) }},
		{"sqlite", func(t *testing.T) Backend {
			b, err := OpenSQLiteBackend(filepath.Join(t.TempDir(), "objects.db"))
			if err != nil {
				t.Fatalf("OpenSQLiteBackend: %v", err)
			}
			return b
		}},
	}
}

func TestStoreRoundTripAllBackends(t *testing.T) {
	ctx := context.Background()
	for _, tc := range backendCases() {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewStore(tc.open(t))
			if err != nil {
				t.Fatalf("NewStore: %v", err)
			}
			defer s.Close()

			obj := sampleObject("Box")
			bh, err := s.StoreBlob(ctx, obj)
			if err != nil {
				t.Fatalf("StoreBlob: %v", err)
			}
			gotObj, err := s.GetBlob(ctx, bh)
			if err != nil {
				t.Fatalf("GetBlob: %v", err)
			}
			if gotObj == nil || gotObj.Name != "Box" || !MapsEqualWithin(gotObj.Properties, obj.Properties, 0) {
				t.Fatalf("GetBlob = %+v, want %+v", gotObj, obj)
			}

			tree := NewTree(TreeEntry{Name: "Box", Hash: bh})
			th, err := s.StoreTree(ctx, tree)
			if err != nil {
				t.Fatalf("StoreTree: %v", err)
			}
			gotTree, err := s.GetTree(ctx, th)
			if err != nil || gotTree == nil {
				t.Fatalf("GetTree: %v %v", gotTree, err)
			}
			if len(gotTree.Entries) != 1 || gotTree.Entries[0].Hash != bh {
				t.Fatalf("tree entries = %+v", gotTree.Entries)
			}

			c := &Commit{
				ID:        "c-1",
				Tree:      th,
				Author:    "alice",
				Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
				Message:   "first",
			}
			ch, err := s.StoreCommit(ctx, c)
			if err != nil {
				t.Fatalf("StoreCommit: %v", err)
			}
			if ch != c.Hash {
				t.Fatalf("StoreCommit returned %s, commit sealed as %s", ch, c.Hash)
			}
			gotCommit, err := s.GetCommit(ctx, ch)
			if err != nil || gotCommit == nil {
				t.Fatalf("GetCommit: %v %v", gotCommit, err)
			}
			if gotCommit.Tree != th || gotCommit.Message != "first" || !gotCommit.Timestamp.Equal(c.Timestamp) {
				t.Fatalf("GetCommit = %+v", gotCommit)
			}
			if recomputed, _ := gotCommit.CalculateHash(); recomputed != ch {
				t.Fatalf("recomputed hash %s != %s", recomputed, ch)
			}

			var walked int
			if err := s.Walk(ctx, func(ObjectRef) error { walked++; return nil }); err != nil {
				t.Fatalf("Walk: %v", err)
			}
			if walked != 3 {
				t.Fatalf("Walk visited %d objects, want 3", walked)
			}
		})
	}
}

func TestStoreDeduplicatesWrites(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	s, err := NewStore(mem)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	h1, err := s.StoreBlob(ctx, sampleObject("Box"))
	if err != nil {
		t.Fatalf("StoreBlob 1: %v", err)
	}
	h2, err := s.StoreBlob(ctx, sampleObject("Box"))
	if err != nil {
		t.Fatalf("StoreBlob 2: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("identical content hashed differently: %s vs %s", h1, h2)
	}
	if mem.Writes() != 1 {
		t.Fatalf("backend writes = %d, want 1", mem.Writes())
	}
}

func TestStoreGetAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	missing := HashBytes([]byte("missing"))
	if obj, err := s.GetBlob(ctx, missing); obj != nil || err != nil {
		t.Errorf("GetBlob(missing) = %v, %v; want nil, nil", obj, err)
	}
	if c, err := s.GetCommit(ctx, missing); c != nil || err != nil {
		t.Errorf("GetCommit(missing) = %v, %v; want nil, nil", c, err)
	}
	if tr, err := s.GetTree(ctx, "not-a-hash"); tr != nil || err != nil {
		t.Errorf("GetTree(invalid) = %v, %v; want nil, nil", tr, err)
	}
	if ok, err := s.Has(ctx, missing); ok || err != nil {
		t.Errorf("Has(missing) = %v, %v", ok, err)
	}
}

func TestStoreIntegrityErrors(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	s, _ := NewStore(mem)

	h, err := s.StoreBlob(ctx, sampleObject("Box"))
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}

	if _, err := s.GetTree(ctx, h); !errors.Is(err, vcserr.ErrIntegrity) {
		t.Errorf("GetTree on blob: err = %v, want integrity", err)
	}

	mem.Corrupt(h, []byte(`{"name":"tampered"}`))
	_, err = s.GetBlob(ctx, h)
	if !errors.Is(err, vcserr.ErrIntegrity) {
		t.Fatalf("GetBlob after corruption: err = %v, want integrity", err)
	}
}

func TestStoreCommitRejectsMismatchedHash(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	s, _ := NewStore(mem)

	c := &Commit{
		Tree:      HashBytes([]byte("tree")),
		Author:    "alice",
		Timestamp: time.Unix(0, 0).UTC(),
		Message:   "m",
		Hash:      HashBytes([]byte("wrong")),
	}
	_, err := s.StoreCommit(ctx, c)
	if !errors.Is(err, vcserr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if mem.Writes() != 0 {
		t.Fatalf("backend writes = %d, want 0", mem.Writes())
	}
}

func TestStoreCompression(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(NewMemoryBackend(), WithCompression(64, zstd.SpeedFastest))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	obj := sampleObject("Sketch")
	obj.Properties["Notes"] = Str(strings.Repeat("constraint ", 500))
	h, err := s.StoreBlob(ctx, obj)
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}

	ref, err := s.Stat(ctx, h)
	if err != nil || ref == nil {
		t.Fatalf("Stat: %v %v", ref, err)
	}
	if !ref.Compressed {
		t.Fatal("expected large payload to be stored compressed")
	}

	got, err := s.GetBlob(ctx, h)
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	gotHash, _ := BlobHash(got)
	if gotHash != h {
		t.Fatalf("round-trip hash %s != %s", gotHash, h)
	}

	// A store without compression still reads compressed objects.
	plain, _ := NewStore(s.Backend())
	if got, err := plain.GetBlob(ctx, h); err != nil || got == nil {
		t.Fatalf("plain GetBlob: %v %v", got, err)
	}
}

func TestStoreWithCache(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(NewMemoryBackend(), WithCache(1<<20, 0))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	h, err := s.StoreBlob(ctx, sampleObject("Box"))
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}
	for i := 0; i < 3; i++ {
		got, err := s.GetBlob(ctx, h)
		if err != nil || got == nil || got.Name != "Box" {
			t.Fatalf("GetBlob #%d: %v %v", i, got, err)
		}
	}
	if tr, err := s.GetTree(ctx, h); err == nil {
		t.Fatalf("GetTree on cached blob = %v, want error", tr)
	}
}

func TestFileBackendFanoutLayout(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := NewStore(NewFileBackend(dir))

	h, err := s.StoreBlob(ctx, sampleObject("fanout"))
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}

	objPath := filepath.Join(dir, "objects", string(h[:2]), string(h[2:]))
	raw, err := os.ReadFile(objPath)
	if err != nil {
		t.Fatalf("expected fan-out file at %s: %v", objPath, err)
	}
	if !strings.HasPrefix(string(raw), "blob ") {
		t.Errorf("object header = %q", string(raw[:min(len(raw), 16)]))
	}
}

func TestReachableSetAndStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	bh, _ := s.StoreBlob(ctx, sampleObject("Box"))
	orphan, _ := s.StoreBlob(ctx, sampleObject("Orphan"))
	th, _ := s.StoreTree(ctx, NewTree(TreeEntry{Name: "Box", Hash: bh}))
	c := &Commit{Tree: th, Author: "a", Timestamp: time.Unix(1, 0).UTC(), Message: "m"}
	ch, err := s.StoreCommit(ctx, c)
	if err != nil {
		t.Fatalf("StoreCommit: %v", err)
	}

	reach, err := s.ReachableSet(ctx, []Hash{ch, ch, " "})
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}
	for _, h := range []Hash{ch, th, bh} {
		if _, ok := reach[h]; !ok {
			t.Errorf("%s not reachable", h.Short())
		}
	}
	if _, ok := reach[orphan]; ok {
		t.Error("orphan blob reported reachable")
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 4 || st.Objects[TypeBlob] != 2 || st.Objects[TypeTree] != 1 || st.Objects[TypeCommit] != 1 {
		t.Errorf("Stats = %+v", st)
	}
}
