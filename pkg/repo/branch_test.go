package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

func TestCreateBranch(t *testing.T) {
	tr := newTestRepo(t)
	ctx := context.Background()
	head := tr.writeCommit(t, "root")

	b, err := tr.CreateBranch(ctx, "feature/fillet", head)
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if b.Head != head || b.Protected {
		t.Fatalf("branch = %+v, want head %s unprotected", b, head)
	}
	if b.CreatedAt.IsZero() || !b.CreatedAt.Equal(b.UpdatedAt) {
		t.Fatalf("timestamps created=%v updated=%v", b.CreatedAt, b.UpdatedAt)
	}

	got, err := tr.GetBranch(ctx, "feature/fillet")
	if err != nil {
		t.Fatalf("GetBranch: %v", err)
	}
	if got.Head != head {
		t.Fatalf("GetBranch head = %s, want %s", got.Head, head)
	}
}

func TestCreateBranch_ProtectedFromConfig(t *testing.T) {
	tr := newTestRepo(t)
	head := tr.writeCommit(t, "root")

	for name, want := range map[string]bool{"main": true, "release/2.0": true, "dev": false} {
		b, err := tr.CreateBranch(context.Background(), name, head)
		if err != nil {
			t.Fatalf("CreateBranch(%s): %v", name, err)
		}
		if b.Protected != want {
			t.Fatalf("branch %s protected = %v, want %v", name, b.Protected, want)
		}
	}
}

func TestCreateBranch_Duplicate(t *testing.T) {
	tr := newTestRepo(t)
	ctx := context.Background()
	head := tr.writeCommit(t, "root")

	if _, err := tr.CreateBranch(ctx, "dev", head); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	_, err := tr.CreateBranch(ctx, "dev", head)
	if !errors.Is(err, ErrRefExists) {
		t.Fatalf("duplicate CreateBranch error = %v, want ErrRefExists", err)
	}
	if !errors.Is(err, vcserr.ErrValidation) {
		t.Fatalf("duplicate CreateBranch error = %v, want Validation kind", err)
	}
}

func TestCreateBranch_InvalidName(t *testing.T) {
	tr := newTestRepo(t)
	head := tr.writeCommit(t, "root")

	for _, name := range []string{"", "a..b", "topic.lock", "/lead", "has space"} {
		_, err := tr.CreateBranch(context.Background(), name, head)
		if !errors.Is(err, vcserr.ErrValidation) {
			t.Fatalf("CreateBranch(%q) error = %v, want Validation", name, err)
		}
	}
}

func TestCreateBranch_HeadMustExist(t *testing.T) {
	tr := newTestRepo(t)
	_, err := tr.CreateBranch(context.Background(), "dev", object.Hash(strings.Repeat("a", 64)))
	if !errors.Is(err, vcserr.ErrNotFound) {
		t.Fatalf("CreateBranch(missing head) error = %v, want NotFound", err)
	}
	if _, err := tr.CreateBranch(context.Background(), "dev", "short"); !errors.Is(err, vcserr.ErrValidation) {
		t.Fatalf("CreateBranch(bad head) error = %v, want Validation", err)
	}
}

func TestGetBranch_Missing(t *testing.T) {
	tr := newTestRepo(t)
	_, err := tr.GetBranch(context.Background(), "nope")
	if !errors.Is(err, vcserr.ErrNotFound) {
		t.Fatalf("GetBranch(missing) error = %v, want NotFound", err)
	}
}

func TestListBranches_Sorted(t *testing.T) {
	tr := newTestRepo(t)
	head := tr.writeCommit(t, "root")
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := tr.CreateBranch(context.Background(), name, head); err != nil {
			t.Fatalf("CreateBranch(%s): %v", name, err)
		}
	}

	bs, err := tr.ListBranches(context.Background())
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	var names []string
	for _, b := range bs {
		names = append(names, b.Name)
	}
	if got := strings.Join(names, ","); got != "alpha,mid,zeta" {
		t.Fatalf("branches = %s, want alpha,mid,zeta", got)
	}
}

func TestUpdateBranchHead_CAS(t *testing.T) {
	tr := newTestRepo(t)
	ctx := context.Background()
	first := tr.writeCommit(t, "first")
	second := tr.writeCommit(t, "second", first)
	third := tr.writeCommit(t, "third", second)

	if _, err := tr.CreateBranch(ctx, "dev", first); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	b, err := tr.UpdateBranchHead(ctx, "dev", second, first)
	if err != nil {
		t.Fatalf("UpdateBranchHead: %v", err)
	}
	if b.Head != second || !b.UpdatedAt.After(b.CreatedAt) {
		t.Fatalf("updated branch = %+v", b)
	}

	// Stale expectation.
	_, err = tr.UpdateBranchHead(ctx, "dev", third, first)
	if !errors.Is(err, ErrRefConflict) {
		t.Fatalf("stale CAS error = %v, want ErrRefConflict", err)
	}
	if !errors.Is(err, vcserr.ErrValidation) {
		t.Fatalf("stale CAS error = %v, want Validation kind", err)
	}
	got, err := tr.GetBranch(ctx, "dev")
	if err != nil || got.Head != second {
		t.Fatalf("branch after failed CAS = %+v, %v; want head %s", got, err, second)
	}

	// Unconditional move.
	if _, err := tr.UpdateBranchHead(ctx, "dev", third); err != nil {
		t.Fatalf("UpdateBranchHead(unconditional): %v", err)
	}
}

func TestUpdateBranchHead_Missing(t *testing.T) {
	tr := newTestRepo(t)
	head := tr.writeCommit(t, "root")
	_, err := tr.UpdateBranchHead(context.Background(), "ghost", head)
	if !errors.Is(err, vcserr.ErrNotFound) {
		t.Fatalf("UpdateBranchHead(missing) error = %v, want NotFound", err)
	}
}

func TestDeleteBranch(t *testing.T) {
	tr := newTestRepo(t)
	ctx := context.Background()
	head := tr.writeCommit(t, "root")

	if _, err := tr.CreateBranch(ctx, "scratch", head); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := tr.DeleteBranch(ctx, "scratch"); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	if _, err := tr.GetBranch(ctx, "scratch"); !errors.Is(err, vcserr.ErrNotFound) {
		t.Fatalf("GetBranch after delete error = %v, want NotFound", err)
	}
	if ok, _ := tr.Store.Has(ctx, head); !ok {
		t.Fatal("deleting a branch removed its commit")
	}
}

func TestDeleteBranch_Protected(t *testing.T) {
	tr := newTestRepo(t)
	ctx := context.Background()
	head := tr.writeCommit(t, "root")

	if _, err := tr.CreateBranch(ctx, "main", head); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := tr.DeleteBranch(ctx, "main"); !errors.Is(err, vcserr.ErrValidation) {
		t.Fatalf("DeleteBranch(main) error = %v, want Validation", err)
	}
	if _, err := tr.GetBranch(ctx, "main"); err != nil {
		t.Fatalf("protected branch vanished: %v", err)
	}
}

func TestReadReflog_NewestFirst(t *testing.T) {
	tr := newTestRepo(t)
	ctx := context.Background()
	first := tr.writeCommit(t, "first")
	second := tr.writeCommit(t, "second", first)

	if _, err := tr.CreateBranch(ctx, "dev", first); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if _, err := tr.UpdateBranchHead(ctx, "dev", second, first); err != nil {
		t.Fatalf("UpdateBranchHead: %v", err)
	}

	entries, err := tr.ReadReflog(ctx, "dev", 0)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("reflog entries = %d, want 2", len(entries))
	}
	if entries[0].OldHash != first || entries[0].NewHash != second {
		t.Fatalf("newest entry = %+v, want %s -> %s", entries[0], first.Short(), second.Short())
	}
	if entries[1].OldHash != zeroHash || entries[1].NewHash != first {
		t.Fatalf("oldest entry = %+v, want creation at %s", entries[1], first.Short())
	}

	limited, err := tr.ReadReflog(ctx, "dev", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("ReadReflog(limit 1) = %d entries, %v", len(limited), err)
	}
}

func TestCommitToBranch(t *testing.T) {
	tr := newTestRepo(t)
	ctx := context.Background()

	tr.handle.set(box("Box", 10))
	first, err := tr.CommitToBranch(ctx, "main", testDocID, "first", "alice")
	if err != nil {
		t.Fatalf("CommitToBranch(first): %v", err)
	}
	b, err := tr.GetBranch(ctx, "main")
	if err != nil {
		t.Fatalf("GetBranch: %v", err)
	}
	if b.Head != first || !b.Protected {
		t.Fatalf("branch after first commit = %+v", b)
	}

	tr.handle.set(box("Box", 12))
	second, err := tr.CommitToBranch(ctx, "main", testDocID, "second\n\nlonger body", "alice")
	if err != nil {
		t.Fatalf("CommitToBranch(second): %v", err)
	}
	c, err := tr.GetCommit(ctx, second)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if p, _ := c.FirstParent(); p != first {
		t.Fatalf("second commit parent = %s, want %s", p, first)
	}

	entries, err := tr.ReadReflog(ctx, "main", 1)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 1 || entries[0].Reason != "commit: second" {
		t.Fatalf("latest reflog = %+v, want reason %q", entries, "commit: second")
	}
}

func TestCommitToBranch_ConcurrentMoveConflicts(t *testing.T) {
	tr := newTestRepo(t)
	ctx := context.Background()
	tr.handle.set(box("Box", 1))
	first, err := tr.CommitToBranch(ctx, "dev", testDocID, "first", "alice")
	if err != nil {
		t.Fatalf("CommitToBranch: %v", err)
	}

	// Another writer moves the branch between our read and our CAS.
	other := tr.writeCommit(t, "other writer", first)
	tr.Refs = &racingRefStore{RefStore: tr.Refs, before: func() {
		if _, err := tr.UpdateBranchHead(ctx, "dev", other); err != nil {
			t.Errorf("concurrent move: %v", err)
		}
	}}

	tr.handle.set(box("Box", 2))
	_, err = tr.CommitToBranch(ctx, "dev", testDocID, "second", "alice")
	if !errors.Is(err, ErrRefConflict) {
		t.Fatalf("CommitToBranch error = %v, want ErrRefConflict", err)
	}
}

// racingRefStore runs before once, right before the first conditional
// update reaches the wrapped store.
type racingRefStore struct {
	RefStore
	before func()
	fired  bool
}

func (r *racingRefStore) UpdateBranch(ctx context.Context, b *Branch, reason string, expectedOld ...object.Hash) error {
	if !r.fired && len(expectedOld) > 0 {
		r.fired = true
		r.before()
	}
	return r.RefStore.UpdateBranch(ctx, b, reason, expectedOld...)
}

func TestRefError_Classification(t *testing.T) {
	if refError("op", "x", nil) != nil {
		t.Fatal("refError(nil) != nil")
	}
	if err := refError("op", "x", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("refError(canceled) = %v", err)
	}
	if err := refError("op", "x", fmt.Errorf("disk: %w", errors.New("eio"))); !errors.Is(err, vcserr.ErrStoreIO) {
		t.Fatalf("refError(io) = %v, want StoreIO", err)
	}
	nf := vcserr.NotFound("op", "x")
	if err := refError("op", "x", nf); !errors.Is(err, vcserr.ErrNotFound) {
		t.Fatalf("refError(not found) = %v, want NotFound", err)
	}
}
