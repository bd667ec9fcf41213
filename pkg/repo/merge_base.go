package repo

import (
	"container/heap"
	"context"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

const (
	maxMergeBaseBFSSteps = 1_000_000
	maxMergeBaseBFSDepth = 1_000_000
)

// These vars allow tests to tighten safety limits without affecting
// production defaults.
var (
	mergeBaseBFSStepsLimit = maxMergeBaseBFSSteps
	mergeBaseBFSDepthLimit = maxMergeBaseBFSDepth
)

type mergeBaseTraversalQueueItem struct {
	hash  object.Hash
	depth int
}

func mergeBaseTraversalLimits() (maxSteps int, maxDepth int) {
	maxSteps = normalizeMergeBaseTraversalLimit(mergeBaseBFSStepsLimit, maxMergeBaseBFSSteps)
	maxDepth = normalizeMergeBaseTraversalLimit(mergeBaseBFSDepthLimit, maxMergeBaseBFSDepth)
	return maxSteps, maxDepth
}

func normalizeMergeBaseTraversalLimit(limit, hardMax int) int {
	// Test hooks may only tighten the hard bounds.
	if limit <= 0 || limit > hardMax {
		return hardMax
	}
	return limit
}

func mergeBaseStepsLimitError(limit int) error {
	return vcserr.Validation("find merge base", "traversal exceeded maximum steps (%d)", limit)
}

func mergeBaseDepthLimitError(limit int) error {
	return vcserr.Validation("find merge base", "traversal exceeded maximum depth (%d)", limit)
}

// generationItem orders commits by generation, highest first, so both
// frontiers of a merge-base search advance from the tips toward the roots.
type generationItem struct {
	hash       object.Hash
	generation uint64
}

type generationHeap []generationItem

func (h generationHeap) Len() int { return len(h) }

func (h generationHeap) Less(i, j int) bool {
	if h[i].generation == h[j].generation {
		return h[i].hash < h[j].hash
	}
	return h[i].generation > h[j].generation
}

func (h generationHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *generationHeap) Push(x any) { *h = append(*h, x.(generationItem)) }

func (h *generationHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (h generationHeap) peek() (generationItem, bool) {
	if len(h) == 0 {
		return generationItem{}, false
	}
	return h[0], true
}

// FindMergeBase returns the best common ancestor of commits a and b, or ""
// when their histories are disjoint. Among several common ancestors the one
// with the highest generation wins, ties broken by the smaller hash.
// Results are memoized per unordered pair.
func (r *Repo) FindMergeBase(ctx context.Context, a, b object.Hash) (object.Hash, error) {
	if a == "" || b == "" {
		return "", nil
	}
	if a == b {
		return a, nil
	}

	state := r.traversal
	if cached, ok := state.loadMergeBase(a, b); ok {
		if cached.found {
			return cached.base, nil
		}
		return "", nil
	}

	genA, err := state.generation(ctx, r.Store, a)
	if err != nil {
		return "", err
	}
	genB, err := state.generation(ctx, r.Store, b)
	if err != nil {
		return "", err
	}

	// Fast path: one side already contains the other. The lower generation
	// is tried as the ancestor first.
	order := []struct {
		ancestor, descendant object.Hash
		ga, gd               uint64
	}{{a, b, genA, genB}, {b, a, genB, genA}}
	if genA > genB {
		order[0], order[1] = order[1], order[0]
	}
	for _, o := range order {
		isAncestor, err := r.isAncestorWithGeneration(ctx, o.ancestor, o.descendant, o.ga, o.gd)
		if err != nil {
			return "", err
		}
		if isAncestor {
			state.storeMergeBase(a, b, o.ancestor, true)
			return o.ancestor, nil
		}
	}

	base, found, err := r.findMergeBaseWithPruning(ctx, a, b, genA, genB)
	if err != nil {
		return "", err
	}
	state.storeMergeBase(a, b, base, found)
	if !found {
		return "", nil
	}
	return base, nil
}

// IsAncestor reports whether ancestor is reachable from descendant through
// parent links. A commit is its own ancestor.
func (r *Repo) IsAncestor(ctx context.Context, ancestor, descendant object.Hash) (bool, error) {
	if ancestor == "" || descendant == "" {
		return false, nil
	}
	ga, err := r.traversal.generation(ctx, r.Store, ancestor)
	if err != nil {
		return false, err
	}
	gd, err := r.traversal.generation(ctx, r.Store, descendant)
	if err != nil {
		return false, err
	}
	return r.isAncestorWithGeneration(ctx, ancestor, descendant, ga, gd)
}

func (r *Repo) isAncestorWithGeneration(ctx context.Context, ancestor, descendant object.Hash, ancestorGeneration, descendantGeneration uint64) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	if ancestorGeneration > descendantGeneration {
		return false, nil
	}

	state := r.traversal
	maxSteps, maxDepth := mergeBaseTraversalLimits()
	visited := map[object.Hash]struct{}{descendant: {}}
	queue := []mergeBaseTraversalQueueItem{{hash: descendant, depth: 0}}
	steps := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		item := queue[0]
		queue = queue[1:]

		steps++
		if steps > maxSteps {
			return false, mergeBaseStepsLimitError(maxSteps)
		}
		if item.depth > maxDepth {
			return false, mergeBaseDepthLimitError(maxDepth)
		}

		cur := item.hash
		if cur == ancestor {
			return true, nil
		}

		curGeneration, err := state.generation(ctx, r.Store, cur)
		if err != nil {
			return false, err
		}
		if curGeneration <= ancestorGeneration {
			continue
		}

		commit, err := state.readCommit(ctx, r.Store, cur)
		if err != nil {
			return false, err
		}
		for _, p := range commit.Parents {
			if p == "" {
				continue
			}
			if _, seen := visited[p]; seen {
				continue
			}
			parentGeneration, err := state.generation(ctx, r.Store, p)
			if err != nil {
				return false, err
			}
			if parentGeneration < ancestorGeneration {
				continue
			}
			childDepth := item.depth + 1
			if childDepth > maxDepth {
				return false, mergeBaseDepthLimitError(maxDepth)
			}
			visited[p] = struct{}{}
			queue = append(queue, mergeBaseTraversalQueueItem{hash: p, depth: childDepth})
		}
	}

	return false, nil
}

// mergeFrontier is one side of the bidirectional search.
type mergeFrontier struct {
	queue   generationHeap
	visited map[object.Hash]struct{}
	depth   map[object.Hash]int
}

func newMergeFrontier(h object.Hash, gen uint64) *mergeFrontier {
	f := &mergeFrontier{
		queue:   generationHeap{{hash: h, generation: gen}},
		visited: map[object.Hash]struct{}{h: {}},
		depth:   map[object.Hash]int{h: 0},
	}
	heap.Init(&f.queue)
	return f
}

func (r *Repo) findMergeBaseWithPruning(ctx context.Context, a, b object.Hash, genA, genB uint64) (object.Hash, bool, error) {
	state := r.traversal
	maxSteps, maxDepth := mergeBaseTraversalLimits()

	sideA := newMergeFrontier(a, genA)
	sideB := newMergeFrontier(b, genB)

	best := object.Hash("")
	var bestGeneration uint64
	steps := 0

	for sideA.queue.Len() > 0 || sideB.queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		if best != "" {
			topA, okA := sideA.queue.peek()
			topB, okB := sideB.queue.peek()
			if (!okA || topA.generation < bestGeneration) && (!okB || topB.generation < bestGeneration) {
				break
			}
		}

		// Advance whichever frontier holds the higher generation.
		var cur, other *mergeFrontier
		switch {
		case sideA.queue.Len() == 0:
			cur, other = sideB, sideA
		case sideB.queue.Len() == 0:
			cur, other = sideA, sideB
		default:
			topA, topB := sideA.queue[0], sideB.queue[0]
			if topA.generation > topB.generation ||
				(topA.generation == topB.generation && topA.hash <= topB.hash) {
				cur, other = sideA, sideB
			} else {
				cur, other = sideB, sideA
			}
		}

		item := heap.Pop(&cur.queue).(generationItem)

		steps++
		if steps > maxSteps {
			return "", false, mergeBaseStepsLimitError(maxSteps)
		}
		if best != "" && item.generation < bestGeneration {
			continue
		}

		itemDepth := cur.depth[item.hash]
		if itemDepth > maxDepth {
			return "", false, mergeBaseDepthLimitError(maxDepth)
		}

		if _, seen := other.visited[item.hash]; seen {
			best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, item.hash, item.generation)
		}

		commit, err := state.readCommit(ctx, r.Store, item.hash)
		if err != nil {
			return "", false, err
		}

		for _, p := range commit.Parents {
			if p == "" {
				continue
			}

			parentGeneration, err := state.generation(ctx, r.Store, p)
			if err != nil {
				return "", false, err
			}
			if best != "" && parentGeneration < bestGeneration {
				continue
			}

			childDepth := itemDepth + 1
			if childDepth > maxDepth {
				return "", false, mergeBaseDepthLimitError(maxDepth)
			}

			if _, seen := cur.visited[p]; seen {
				continue
			}
			cur.visited[p] = struct{}{}
			cur.depth[p] = childDepth
			heap.Push(&cur.queue, generationItem{hash: p, generation: parentGeneration})
			if _, seen := other.visited[p]; seen {
				best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, p, parentGeneration)
			}
		}
	}

	if best == "" {
		return "", false, nil
	}
	return best, true, nil
}

func chooseBetterMergeBase(best object.Hash, bestGeneration uint64, candidate object.Hash, candidateGeneration uint64) (object.Hash, uint64) {
	if best == "" {
		return candidate, candidateGeneration
	}
	if candidateGeneration > bestGeneration {
		return candidate, candidateGeneration
	}
	if candidateGeneration < bestGeneration {
		return best, bestGeneration
	}
	if candidate < best {
		return candidate, candidateGeneration
	}
	return best, bestGeneration
}
