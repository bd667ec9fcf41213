package repo

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/odvcencio/cadvc/pkg/naming"
	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

// CreateTag stores a tag object naming target and records it under name.
// Tags are write-once: an existing name is a validation error. target must
// be a stored commit.
func (r *Repo) CreateTag(ctx context.Context, name string, target object.Hash, tagger, message string, metadata map[string]object.Value) (*object.Tag, error) {
	const op = "create tag"
	name, err := r.validateRefName(op, "tag", name)
	if err != nil {
		return nil, err
	}
	if !object.ValidHash(target) {
		return nil, vcserr.Validation(op, "invalid target hash %q", target)
	}

	existing, err := r.Refs.GetTag(ctx, name)
	if err != nil {
		return nil, refError(op, name, err)
	}
	if existing != "" {
		return nil, vcserr.Validation(op, "tag exists: %s", name)
	}

	c, err := r.Store.GetCommit(ctx, target)
	if err != nil {
		return nil, vcserr.Wrap(op, name, err)
	}
	if c == nil {
		return nil, vcserr.NotFound(op+": target commit", string(target))
	}

	t := &object.Tag{
		Name:      name,
		Target:    target,
		Tagger:    tagger,
		Timestamp: r.now().UTC(),
		Message:   message,
		Metadata:  object.CloneValues(metadata),
	}
	h, err := r.Store.StoreTag(ctx, t)
	if err != nil {
		return nil, wrapUnlessCanceled(ctx, op, name, err)
	}
	if err := r.Refs.CreateTag(ctx, name, h); err != nil {
		if errors.Is(err, ErrRefExists) {
			return nil, vcserr.Validation(op, "tag exists: %s", name)
		}
		return nil, refError(op, name, err)
	}
	r.logger.Info("tag created", slog.String("tag", name), slog.String("commit", string(target)))
	return t, nil
}

// GetTag returns the named tag or a NotFound error.
func (r *Repo) GetTag(ctx context.Context, name string) (*object.Tag, error) {
	const op = "get tag"
	name = naming.Normalize(name)
	h, err := r.Refs.GetTag(ctx, name)
	if err != nil {
		return nil, refError(op, name, err)
	}
	if h == "" {
		return nil, vcserr.NotFound(op, name)
	}
	t, err := r.Store.GetTag(ctx, h)
	if err != nil {
		return nil, vcserr.Wrap(op, name, err)
	}
	if t == nil {
		return nil, vcserr.NotFound(op+": tag object", string(h))
	}
	return t, nil
}

// ListTags returns every tag sorted by name.
func (r *Repo) ListTags(ctx context.Context) ([]*object.Tag, error) {
	refs, err := r.Refs.ListTags(ctx)
	if err != nil {
		return nil, refError("list tags", "", err)
	}
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*object.Tag, 0, len(names))
	for _, name := range names {
		t, err := r.GetTag(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
