package repo

import (
	"context"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

// GetCommitHistory walks first parents from h, newest first. The walk stops
// after limit commits (limit <= 0 means no limit), at a parent that is not
// stored, or at a hash it has already visited. A missing starting commit is
// a NotFound error.
//
// Returned commits may be shared with the traversal cache; treat them as
// read-only.
func (r *Repo) GetCommitHistory(ctx context.Context, h object.Hash, limit int) ([]*object.Commit, error) {
	const op = "commit history"

	var out []*object.Commit
	visited := make(map[object.Hash]struct{})
	cur := h
	for cur != "" {
		if limit > 0 && len(out) >= limit {
			break
		}
		if _, seen := visited[cur]; seen {
			r.logger.Warn("commit history: cycle detected", "commit", string(cur))
			break
		}
		visited[cur] = struct{}{}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := r.traversal.lookupCommit(ctx, r.Store, cur)
		if err != nil {
			return nil, vcserr.Wrap(op, string(cur), err)
		}
		if c == nil {
			if len(out) == 0 {
				return nil, vcserr.NotFound(op, string(h))
			}
			break
		}
		out = append(out, c)

		next, ok := c.FirstParent()
		if !ok {
			break
		}
		cur = next
	}
	if out == nil {
		out = []*object.Commit{}
	}
	return out, nil
}
