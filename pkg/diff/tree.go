package diff

import (
	"context"
	"sort"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

// NullRef stands in for the hash of an absent tree side.
const NullRef = "null"

// Stats counts object-level changes. Renamed is always zero: objects are
// matched by name only.
type Stats struct {
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
	Renamed  int `json:"renamed"`
}

// Total returns the number of changed objects.
func (s Stats) Total() int { return s.Added + s.Modified + s.Deleted + s.Renamed }

// CommitDiff is the difference between two trees. FromCommit and ToCommit
// hold the tree hashes, or NullRef for an absent side.
type CommitDiff struct {
	FromCommit  string       `json:"from_commit"`
	ToCommit    string       `json:"to_commit"`
	ObjectDiffs []ObjectDiff `json:"object_diffs"`
	Stats       Stats        `json:"stats"`
}

// BlobLoader reads object data by hash. *object.Store satisfies it.
type BlobLoader interface {
	GetBlob(ctx context.Context, h object.Hash) (*object.ObjectData, error)
}

// CommitLoader reads commits, trees and blobs. *object.Store satisfies it.
type CommitLoader interface {
	BlobLoader
	GetCommit(ctx context.Context, h object.Hash) (*object.Commit, error)
	GetTree(ctx context.Context, h object.Hash) (*object.Tree, error)
}

// DiffTrees compares two trees entry by entry. Either side may be nil.
// Object diffs carry hashes only; see DiffTreesDeep for property detail.
func DiffTrees(before, after *object.Tree) *CommitDiff {
	return defaultDiffer.DiffTrees(before, after)
}

func (df *Differ) DiffTrees(before, after *object.Tree) *CommitDiff {
	cd := &CommitDiff{
		FromCommit:  treeRef(before),
		ToCommit:    treeRef(after),
		ObjectDiffs: []ObjectDiff{},
	}

	beforeMap := entryMap(before)
	afterMap := entryMap(after)

	for name, be := range beforeMap {
		ae, ok := afterMap[name]
		switch {
		case !ok:
			cd.ObjectDiffs = append(cd.ObjectDiffs, ObjectDiff{ObjectID: name, ChangeType: Deleted, OldHash: be.Hash})
			cd.Stats.Deleted++
		case ae.Hash != be.Hash:
			cd.ObjectDiffs = append(cd.ObjectDiffs, ObjectDiff{ObjectID: name, ChangeType: Modified, OldHash: be.Hash, NewHash: ae.Hash})
			cd.Stats.Modified++
		}
	}
	for name, ae := range afterMap {
		if _, ok := beforeMap[name]; !ok {
			cd.ObjectDiffs = append(cd.ObjectDiffs, ObjectDiff{ObjectID: name, ChangeType: Added, NewHash: ae.Hash})
			cd.Stats.Added++
		}
	}

	sort.Slice(cd.ObjectDiffs, func(i, j int) bool { return cd.ObjectDiffs[i].ObjectID < cd.ObjectDiffs[j].ObjectID })
	return cd
}

// DiffTreesDeep is DiffTrees with every changed object loaded and compared
// property by property. Modified entries whose content is equivalent within
// tolerance stay in the result with an empty diff.
func (df *Differ) DiffTreesDeep(ctx context.Context, loader BlobLoader, before, after *object.Tree) (*CommitDiff, error) {
	cd := df.DiffTrees(before, after)
	for i := range cd.ObjectDiffs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		od := &cd.ObjectDiffs[i]
		oldObj, err := loadBlob(ctx, loader, od.OldHash)
		if err != nil {
			return nil, err
		}
		newObj, err := loadBlob(ctx, loader, od.NewHash)
		if err != nil {
			return nil, err
		}
		detail := df.DiffObjects(oldObj, newObj)
		detail.ObjectID = od.ObjectID
		detail.ChangeType = od.ChangeType
		detail.OldHash = od.OldHash
		detail.NewHash = od.NewHash
		*od = *detail
	}
	return cd, nil
}

// DiffCommits compares the trees of two commits. An empty from hash diffs
// against the empty tree.
func (df *Differ) DiffCommits(ctx context.Context, loader CommitLoader, from, to object.Hash) (*CommitDiff, error) {
	fromTree, err := commitTree(ctx, loader, from)
	if err != nil {
		return nil, err
	}
	toTree, err := commitTree(ctx, loader, to)
	if err != nil {
		return nil, err
	}
	return df.DiffTreesDeep(ctx, loader, fromTree, toTree)
}

func commitTree(ctx context.Context, loader CommitLoader, h object.Hash) (*object.Tree, error) {
	if h == "" {
		return nil, nil
	}
	c, err := loader.GetCommit(ctx, h)
	if err != nil {
		return nil, vcserr.Wrap("diff commits", string(h), err)
	}
	if c == nil {
		return nil, vcserr.NotFound("diff commits", string(h))
	}
	t, err := loader.GetTree(ctx, c.Tree)
	if err != nil {
		return nil, vcserr.Wrap("diff commits", string(c.Tree), err)
	}
	if t == nil {
		return nil, vcserr.NotFound("diff commits: tree", string(c.Tree))
	}
	return t, nil
}

func loadBlob(ctx context.Context, loader BlobLoader, h object.Hash) (*object.ObjectData, error) {
	if h == "" {
		return nil, nil
	}
	d, err := loader.GetBlob(ctx, h)
	if err != nil {
		return nil, vcserr.Wrap("diff trees", string(h), err)
	}
	if d == nil {
		return nil, vcserr.NotFound("diff trees: blob", string(h))
	}
	return d, nil
}

func treeRef(t *object.Tree) string {
	if t == nil {
		return NullRef
	}
	h, err := t.Hash()
	if err != nil {
		return NullRef
	}
	return string(h)
}

func entryMap(t *object.Tree) map[string]object.TreeEntry {
	if t == nil {
		return nil
	}
	m := make(map[string]object.TreeEntry, len(t.Entries))
	for _, e := range t.Entries {
		m[e.Name] = e
	}
	return m
}
