package repo

import (
	"context"
	"testing"

	"github.com/odvcencio/cadvc/pkg/object"
)

func TestStats_ReachableFromRefs(t *testing.T) {
	tr := newTestRepo(t)
	ctx := context.Background()

	kept := tr.commitObjects(t, "", "kept", box("Box", 10))
	tr.commitObjects(t, "", "dangling", box("Box", 99))
	if _, err := tr.CreateBranch(ctx, "dev", kept); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if _, err := tr.CreateTag(ctx, "v1", kept, "alice", "", nil); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	st, err := tr.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	// Each commit brings one blob and one tree; the tag adds one object.
	if st.Total != 7 {
		t.Fatalf("Total = %d, want 7 (objects %v)", st.Total, st.Objects)
	}
	if st.Objects[object.TypeCommit] != 2 || st.Objects[object.TypeTag] != 1 {
		t.Fatalf("Objects = %v", st.Objects)
	}
	if st.Reachable != 4 || st.Unreachable != 3 {
		t.Fatalf("Reachable/Unreachable = %d/%d, want 4/3", st.Reachable, st.Unreachable)
	}
}

func TestStats_EmptyRepo(t *testing.T) {
	tr := newTestRepo(t)
	st, err := tr.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 0 || st.Reachable != 0 || st.Unreachable != 0 {
		t.Fatalf("stats = %+v, want zeros", st)
	}
}

func TestVerifyAll(t *testing.T) {
	tr := newTestRepo(t)
	ctx := context.Background()

	first := tr.writeCommit(t, "first")
	second := tr.writeCommit(t, "second", first)
	side := tr.writeCommit(t, "side", first)
	if _, err := tr.CreateBranch(ctx, "dev", second); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if _, err := tr.CreateTag(ctx, "side-tip", side, "alice", "", nil); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	report, err := tr.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if !report.OK() || report.Checked != 3 {
		t.Fatalf("report = %+v, want 3 checked, none invalid", report)
	}

	c, err := tr.GetCommit(ctx, first)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	tampered := *c
	tampered.Author = "mallory"
	tr.rewriteCommit(t, first, &tampered)

	report, err = tr.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll(tampered): %v", err)
	}
	if report.OK() || len(report.Invalid) != 1 || report.Invalid[0] != first {
		t.Fatalf("report = %+v, want %s invalid", report, first.Short())
	}
}
