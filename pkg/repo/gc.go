package repo

import (
	"context"
	"sort"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

// refRoots returns the branch heads and tag objects, deduplicated and
// sorted. These are the roots of everything the repository keeps alive.
func (r *Repo) refRoots(ctx context.Context) ([]object.Hash, error) {
	branches, err := r.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := r.Refs.ListTags(ctx)
	if err != nil {
		return nil, refError("list tags", "", err)
	}

	rootSet := make(map[object.Hash]struct{}, len(branches)+len(tags))
	for _, b := range branches {
		if b.Head != "" {
			rootSet[b.Head] = struct{}{}
		}
	}
	for _, h := range tags {
		if h != "" {
			rootSet[h] = struct{}{}
		}
	}

	roots := make([]object.Hash, 0, len(rootSet))
	for h := range rootSet {
		roots = append(roots, h)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return roots, nil
}

// Stats counts stored objects and how many of them are reachable from
// branches and tags. Nothing is deleted; Unreachable is what an external
// collector could reclaim.
func (r *Repo) Stats(ctx context.Context) (*object.StorageStats, error) {
	st, err := r.Store.Stats(ctx)
	if err != nil {
		return nil, vcserr.Wrap("stats", "", err)
	}
	roots, err := r.refRoots(ctx)
	if err != nil {
		return nil, err
	}
	reachable, err := r.Store.ReachableSet(ctx, roots)
	if err != nil {
		return nil, vcserr.Wrap("stats", "", err)
	}
	st.Reachable = len(reachable)
	st.Unreachable = st.Total - st.Reachable
	if st.Unreachable < 0 {
		st.Unreachable = 0
	}
	return st, nil
}
