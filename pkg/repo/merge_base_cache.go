package repo

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

const defaultCommitCacheSize = 4096

type mergeBaseCacheKey struct {
	left  object.Hash
	right object.Hash
}

type mergeBaseCacheEntry struct {
	base  object.Hash
	found bool
}

// traversalState caches what history walks and merge-base searches learn
// about the commit graph. Commits are immutable, so entries never go stale;
// the caches are bounded LRUs.
type traversalState struct {
	commits     *lru.Cache[object.Hash, *object.Commit]
	generations *lru.Cache[object.Hash, uint64]
	mergeBases  *lru.Cache[mergeBaseCacheKey, mergeBaseCacheEntry]
}

func newTraversalState(size int) (*traversalState, error) {
	if size <= 0 {
		size = defaultCommitCacheSize
	}
	commits, err := lru.New[object.Hash, *object.Commit](size)
	if err != nil {
		return nil, err
	}
	generations, err := lru.New[object.Hash, uint64](size)
	if err != nil {
		return nil, err
	}
	mergeBases, err := lru.New[mergeBaseCacheKey, mergeBaseCacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &traversalState{commits: commits, generations: generations, mergeBases: mergeBases}, nil
}

func canonicalMergeBaseCacheKey(a, b object.Hash) mergeBaseCacheKey {
	if a <= b {
		return mergeBaseCacheKey{left: a, right: b}
	}
	return mergeBaseCacheKey{left: b, right: a}
}

func (s *traversalState) loadMergeBase(a, b object.Hash) (mergeBaseCacheEntry, bool) {
	return s.mergeBases.Get(canonicalMergeBaseCacheKey(a, b))
}

func (s *traversalState) storeMergeBase(a, b, base object.Hash, found bool) {
	s.mergeBases.Add(canonicalMergeBaseCacheKey(a, b), mergeBaseCacheEntry{base: base, found: found})
}

func (s *traversalState) mergeBaseCacheSize() int { return s.mergeBases.Len() }

func (s *traversalState) generationCacheSize() int { return s.generations.Len() }

// lookupCommit returns the commit h, or nil when it is not stored. Cached
// commits are shared and must not be modified.
func (s *traversalState) lookupCommit(ctx context.Context, store ObjectStore, h object.Hash) (*object.Commit, error) {
	if c, ok := s.commits.Get(h); ok {
		return c, nil
	}
	c, err := store.GetCommit(ctx, h)
	if err != nil || c == nil {
		return nil, err
	}
	s.commits.Add(h, c)
	return c, nil
}

// readCommit is lookupCommit with a missing commit reported as NotFound.
func (s *traversalState) readCommit(ctx context.Context, store ObjectStore, h object.Hash) (*object.Commit, error) {
	c, err := s.lookupCommit(ctx, store, h)
	if err != nil {
		return nil, vcserr.Wrap("find merge base", string(h), err)
	}
	if c == nil {
		return nil, vcserr.NotFound("find merge base: read commit", string(h))
	}
	return c, nil
}

func (s *traversalState) generation(ctx context.Context, store ObjectStore, h object.Hash) (uint64, error) {
	return s.generationRecursive(ctx, store, h, make(map[object.Hash]bool))
}

// generationRecursive computes 1 + the largest parent generation; root
// commits have generation 1.
func (s *traversalState) generationRecursive(ctx context.Context, store ObjectStore, h object.Hash, visiting map[object.Hash]bool) (uint64, error) {
	if h == "" {
		return 0, nil
	}
	if g, ok := s.generations.Get(h); ok {
		return g, nil
	}
	if visiting[h] {
		return 0, vcserr.Integrity("find merge base", string(h), "commit graph cycle detected")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	visiting[h] = true
	commit, err := s.readCommit(ctx, store, h)
	if err != nil {
		delete(visiting, h)
		return 0, err
	}

	var maxParentGeneration uint64
	for _, p := range commit.Parents {
		pg, err := s.generationRecursive(ctx, store, p, visiting)
		if err != nil {
			delete(visiting, h)
			return 0, err
		}
		if pg > maxParentGeneration {
			maxParentGeneration = pg
		}
	}

	generation := maxParentGeneration + 1
	s.generations.Add(h, generation)
	delete(visiting, h)
	return generation, nil
}
