package repo

import (
	"context"
	"log/slog"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

// VerifyReport is the outcome of VerifyAll.
type VerifyReport struct {
	Checked int           `json:"checked"`
	Invalid []object.Hash `json:"invalid"`
}

// OK reports whether every checked commit passed.
func (v *VerifyReport) OK() bool { return len(v.Invalid) == 0 }

// VerifyAll runs ValidateCommit over every commit reachable from branches
// and tags, following all parents. Invalid commits are collected rather
// than returned as errors; only failures to enumerate refs or read tags
// abort the sweep.
func (r *Repo) VerifyAll(ctx context.Context) (*VerifyReport, error) {
	branches, err := r.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := r.Refs.ListTags(ctx)
	if err != nil {
		return nil, refError("verify", "", err)
	}

	stack := make([]object.Hash, 0, len(branches)+len(tags))
	for _, b := range branches {
		stack = append(stack, b.Head)
	}
	// Tags point at tag objects; start from their targets.
	for name, h := range tags {
		t, err := r.Store.GetTag(ctx, h)
		if err != nil {
			return nil, vcserr.Wrap("verify", name, err)
		}
		if t == nil {
			r.logger.Warn("verify: tag object missing", slog.String("tag", name), slog.String("object", string(h)))
			continue
		}
		stack = append(stack, t.Target)
	}

	report := &VerifyReport{Invalid: []object.Hash{}}
	seen := make(map[object.Hash]struct{})
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}

		report.Checked++
		if !r.ValidateCommit(ctx, h) {
			report.Invalid = append(report.Invalid, h)
		}
		c, err := r.traversal.lookupCommit(ctx, r.Store, h)
		if err != nil || c == nil {
			continue
		}
		stack = append(stack, c.Parents...)
	}

	r.logger.Info("verify",
		slog.Int("checked", report.Checked),
		slog.Int("invalid", len(report.Invalid)),
	)
	return report, nil
}
