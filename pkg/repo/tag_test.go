package repo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

func TestCreateTag(t *testing.T) {
	tr := newTestRepo(t)
	ctx := context.Background()
	target := tr.writeCommit(t, "release candidate")

	tag, err := tr.CreateTag(ctx, "v1.0", target, "alice", "first release",
		map[string]object.Value{"drawing_rev": object.Str("B")})
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if tag.Target != target || tag.Tagger != "alice" || tag.Timestamp.IsZero() {
		t.Fatalf("tag = %+v", tag)
	}

	got, err := tr.GetTag(ctx, "v1.0")
	if err != nil {
		t.Fatalf("GetTag: %v", err)
	}
	if got.Target != target || got.Message != "first release" {
		t.Fatalf("GetTag = %+v", got)
	}
	if rev, _ := got.Metadata["drawing_rev"].AsString(); rev != "B" {
		t.Fatalf("tag metadata drawing_rev = %q, want B", rev)
	}
}

func TestCreateTag_WriteOnce(t *testing.T) {
	tr := newTestRepo(t)
	ctx := context.Background()
	first := tr.writeCommit(t, "first")
	second := tr.writeCommit(t, "second", first)

	if _, err := tr.CreateTag(ctx, "v1.0", first, "alice", "", nil); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	_, err := tr.CreateTag(ctx, "v1.0", second, "bob", "", nil)
	if !errors.Is(err, vcserr.ErrValidation) {
		t.Fatalf("re-tag error = %v, want Validation", err)
	}
	if !strings.Contains(err.Error(), "tag exists") {
		t.Fatalf("re-tag error = %q, want tag exists", err)
	}

	got, err := tr.GetTag(ctx, "v1.0")
	if err != nil || got.Target != first {
		t.Fatalf("tag after rejected re-tag = %+v, %v; want target %s", got, err, first)
	}
}

func TestCreateTag_TargetMustExist(t *testing.T) {
	tr := newTestRepo(t)
	_, err := tr.CreateTag(context.Background(), "v1.0", object.Hash(strings.Repeat("b", 64)), "alice", "", nil)
	if !errors.Is(err, vcserr.ErrNotFound) {
		t.Fatalf("CreateTag(missing target) error = %v, want NotFound", err)
	}
}

func TestCreateTag_InvalidName(t *testing.T) {
	tr := newTestRepo(t)
	target := tr.writeCommit(t, "c")
	_, err := tr.CreateTag(context.Background(), "v1..0", target, "alice", "", nil)
	if !errors.Is(err, vcserr.ErrValidation) {
		t.Fatalf("CreateTag(bad name) error = %v, want Validation", err)
	}
}

func TestGetTag_Missing(t *testing.T) {
	tr := newTestRepo(t)
	_, err := tr.GetTag(context.Background(), "nope")
	if !errors.Is(err, vcserr.ErrNotFound) {
		t.Fatalf("GetTag(missing) error = %v, want NotFound", err)
	}
}

func TestListTags_Sorted(t *testing.T) {
	tr := newTestRepo(t)
	ctx := context.Background()
	target := tr.writeCommit(t, "c")

	for _, name := range []string{"v2.0", "v1.0", "v1.1"} {
		if _, err := tr.CreateTag(ctx, name, target, "alice", "", nil); err != nil {
			t.Fatalf("CreateTag(%s): %v", name, err)
		}
	}
	tags, err := tr.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	var names []string
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	if got := strings.Join(names, ","); got != "v1.0,v1.1,v2.0" {
		t.Fatalf("tags = %s, want v1.0,v1.1,v2.0", got)
	}
}
