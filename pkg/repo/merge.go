package repo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/resolve"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

// MergeOptions selects what Merge combines.
type MergeOptions struct {
	// Ours and Theirs are commit hashes. When Branch is set and Ours is
	// empty, Ours is the branch head.
	Ours   object.Hash
	Theirs object.Hash
	// Branch, when set, is moved to the result with a compare-and-swap
	// against Ours.
	Branch string
	// Strategy defaults to the configured merge strategy.
	Strategy resolve.Strategy
	Author   string
	Message  string
	Metadata map[string]object.Value
	// NoFastForward records a merge commit even when Ours is an ancestor
	// of Theirs.
	NoFastForward bool
}

// MergeResult reports the outcome of Merge. On failure no commit is
// stored and Conflicts holds the objects that still need a decision.
type MergeResult struct {
	Success           bool                     `json:"success"`
	CommitHash        object.Hash              `json:"commit_hash,omitempty"`
	Conflicts         []*resolve.MergeConflict `json:"conflicts"`
	Resolutions       []resolve.ResolvedObject `json:"resolutions,omitempty"`
	MergedTree        *object.Tree             `json:"merged_tree,omitempty"`
	StrategyUsed      resolve.Strategy         `json:"strategy_used"`
	AutoResolvedCount int                      `json:"auto_resolved_count"`
	MergeBase         object.Hash              `json:"merge_base,omitempty"`
	FastForward       bool                     `json:"fast_forward"`
	UpToDate          bool                     `json:"up_to_date"`
}

// Unresolved returns the conflicts whose resolution needs a human.
func (m *MergeResult) Unresolved() []*resolve.MergeConflict {
	var out []*resolve.MergeConflict
	for i, res := range m.Resolutions {
		if !res.Resolved() {
			out = append(out, m.Conflicts[i])
		}
	}
	return out
}

// Merge three-way merges the trees of two commits against their merge base.
// Objects changed on one side only are taken from that side; objects both
// sides changed differently become MergeConflicts, which the resolver
// settles with the chosen strategy. When every conflict is settled the
// merged tree and a merge commit are stored. Otherwise nothing is stored
// and the result lists the conflicts.
func (r *Repo) Merge(ctx context.Context, opts MergeOptions) (*MergeResult, error) {
	const op = "merge"

	strategy := opts.Strategy
	if strategy == "" {
		s, err := resolve.ParseStrategy(r.Config.Merge.Strategy)
		if err != nil {
			return nil, vcserr.Validation(op, "%v", err)
		}
		strategy = s
	}
	if _, err := resolve.ParseStrategy(string(strategy)); err != nil {
		return nil, vcserr.Validation(op, "%v", err)
	}

	ours := opts.Ours
	if opts.Branch != "" {
		b, err := r.GetBranch(ctx, opts.Branch)
		if err != nil {
			return nil, err
		}
		if ours == "" {
			ours = b.Head
		}
	}
	if !object.ValidHash(ours) {
		return nil, vcserr.Validation(op, "invalid ours hash %q", ours)
	}
	if !object.ValidHash(opts.Theirs) {
		return nil, vcserr.Validation(op, "invalid theirs hash %q", opts.Theirs)
	}
	theirs := opts.Theirs

	oursCommit, err := r.GetCommit(ctx, ours)
	if err != nil {
		return nil, err
	}
	theirsCommit, err := r.GetCommit(ctx, theirs)
	if err != nil {
		return nil, err
	}

	base, err := r.FindMergeBase(ctx, ours, theirs)
	if err != nil {
		return nil, err
	}
	result := &MergeResult{
		StrategyUsed: strategy,
		MergeBase:    base,
		Conflicts:    []*resolve.MergeConflict{},
	}

	if base == theirs {
		result.Success = true
		result.UpToDate = true
		result.CommitHash = ours
		return result, nil
	}
	if base == ours && !opts.NoFastForward {
		tree, err := r.treeOrEmpty(ctx, op, theirsCommit.Tree)
		if err != nil {
			return nil, err
		}
		if opts.Branch != "" {
			if _, err := r.moveBranch(ctx, opts.Branch, theirs, "merge: fast-forward", ours); err != nil {
				return nil, err
			}
		}
		result.Success = true
		result.FastForward = true
		result.CommitHash = theirs
		result.MergedTree = tree
		r.logger.Info("merge fast-forward", slog.String("from", string(ours)), slog.String("to", string(theirs)))
		return result, nil
	}

	var baseTreeHash object.Hash
	if base != "" {
		baseCommit, err := r.GetCommit(ctx, base)
		if err != nil {
			return nil, err
		}
		baseTreeHash = baseCommit.Tree
	}
	baseTree, err := r.treeOrEmpty(ctx, op, baseTreeHash)
	if err != nil {
		return nil, err
	}
	oursTree, err := r.treeOrEmpty(ctx, op, oursCommit.Tree)
	if err != nil {
		return nil, err
	}
	theirsTree, err := r.treeOrEmpty(ctx, op, theirsCommit.Tree)
	if err != nil {
		return nil, err
	}

	merged, err := r.mergeTrees(ctx, baseTree, oursTree, theirsTree, strategy, result)
	if err != nil {
		return nil, err
	}

	if len(result.Unresolved()) > 0 {
		r.logger.Info("merge has unresolved conflicts",
			slog.String("ours", string(ours)),
			slog.String("theirs", string(theirs)),
			slog.Int("conflicts", len(result.Conflicts)),
			slog.Int("unresolved", len(result.Unresolved())),
		)
		return result, nil
	}

	treeHash, err := r.Store.StoreTree(ctx, merged)
	if err != nil {
		return nil, wrapUnlessCanceled(ctx, op, "", err)
	}
	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Merge %s into %s", theirs.Short(), ours.Short())
	}
	meta := map[string]object.Value{
		MetadataMergeStrategy: object.Str(string(strategy)),
	}
	if base != "" {
		meta[MetadataMergeBase] = object.Str(string(base))
	}
	h, err := r.CreateMergeCommit(ctx, treeHash, []object.Hash{ours, theirs}, message, opts.Author,
		WithMetadata(opts.Metadata), WithMetadata(meta))
	if err != nil {
		return nil, err
	}
	if opts.Branch != "" {
		if _, err := r.moveBranch(ctx, opts.Branch, h, "merge: "+firstLine(message), ours); err != nil {
			return nil, err
		}
	}

	result.Success = true
	result.CommitHash = h
	result.MergedTree = merged
	return result, nil
}

// mergeTrees combines three trees entry by entry. Blobs of resolved
// conflicts are stored; the returned tree is not.
func (r *Repo) mergeTrees(ctx context.Context, base, ours, theirs *object.Tree, strategy resolve.Strategy, result *MergeResult) (*object.Tree, error) {
	baseEntries := indexEntries(base)
	oursEntries := indexEntries(ours)
	theirsEntries := indexEntries(theirs)

	merged := &object.Tree{}
	for _, name := range unionNames(baseEntries, oursEntries, theirsEntries) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, o, t := baseEntries[name], oursEntries[name], theirsEntries[name]

		switch {
		case o.Hash == t.Hash:
			if o.Hash != "" {
				merged.Add(o)
			}
			continue
		case o.Hash == b.Hash:
			if t.Hash != "" {
				merged.Add(t)
			}
			continue
		case t.Hash == b.Hash:
			if o.Hash != "" {
				merged.Add(o)
			}
			continue
		}

		c, err := r.loadConflict(ctx, name, b.Hash, o.Hash, t.Hash)
		if err != nil {
			return nil, err
		}
		r.resolver.Suggest(c)
		res := r.resolver.Resolve(c, strategy)
		result.Conflicts = append(result.Conflicts, c)
		result.Resolutions = append(result.Resolutions, res)
		if !res.Resolved() {
			continue
		}
		result.AutoResolvedCount++
		if res.ObjectData == nil {
			continue
		}
		h, err := r.Store.StoreBlob(ctx, res.ObjectData)
		if err != nil {
			return nil, wrapUnlessCanceled(ctx, "merge", name, err)
		}
		merged.Add(object.TreeEntry{Name: name, Hash: h})
	}
	return merged, nil
}

func (r *Repo) loadConflict(ctx context.Context, name string, base, ours, theirs object.Hash) (*resolve.MergeConflict, error) {
	load := func(h object.Hash) (*object.ObjectData, error) {
		if h == "" {
			return nil, nil
		}
		d, err := r.Store.GetBlob(ctx, h)
		if err != nil {
			return nil, vcserr.Wrap("merge", name, err)
		}
		if d == nil {
			return nil, vcserr.NotFound("merge: blob "+name, string(h))
		}
		return d, nil
	}

	c := &resolve.MergeConflict{ObjectID: name}
	var err error
	if c.Base, err = load(base); err != nil {
		return nil, err
	}
	if c.Ours, err = load(ours); err != nil {
		return nil, err
	}
	if c.Theirs, err = load(theirs); err != nil {
		return nil, err
	}

	switch {
	case base == "":
		c.Type = resolve.AddAdd
	case ours == "":
		c.Type = resolve.DeleteModify
	case theirs == "":
		c.Type = resolve.ModifyDelete
	default:
		c.Type = resolve.ModifyModify
	}
	return c, nil
}

func indexEntries(t *object.Tree) map[string]object.TreeEntry {
	out := make(map[string]object.TreeEntry, len(t.Entries))
	for _, e := range t.Entries {
		out[e.Name] = e
	}
	return out
}

func unionNames(sets ...map[string]object.TreeEntry) []string {
	seen := make(map[string]struct{})
	for _, s := range sets {
		for name := range s {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
