package repo

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

// BuildTreeFromDocument snapshots a document and stores one blob per
// object, returning the tree that names them. The tree itself is not
// stored. Blobs are written concurrently, at most r.workers at a time; an
// entry is only added once its blob is stored. A cancelled context returns
// the context error and no tree.
func (r *Repo) BuildTreeFromDocument(ctx context.Context, documentID string) (*object.Tree, error) {
	const op = "build tree"

	doc, err := r.Adapter.Open(ctx, documentID)
	if err != nil {
		return nil, wrapUnlessCanceled(ctx, op, documentID, err)
	}
	objs, err := doc.Objects(ctx)
	if err != nil {
		return nil, wrapUnlessCanceled(ctx, op, documentID, err)
	}

	hashes := make([]object.Hash, len(objs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, d := range objs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := r.Store.StoreBlob(gctx, d)
			if err != nil {
				return err
			}
			hashes[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, wrapUnlessCanceled(ctx, op, documentID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tree := &object.Tree{Entries: make([]object.TreeEntry, 0, len(objs))}
	for i, d := range objs {
		tree.Add(object.TreeEntry{Name: d.Name, Hash: hashes[i]})
	}
	r.logger.Debug("built tree", "document", documentID, "objects", len(tree.Entries))
	return tree, nil
}

// treeOrEmpty loads tree h; the empty hash is the empty tree.
func (r *Repo) treeOrEmpty(ctx context.Context, op string, h object.Hash) (*object.Tree, error) {
	if h == "" {
		return &object.Tree{}, nil
	}
	t, err := r.Store.GetTree(ctx, h)
	if err != nil {
		return nil, vcserr.Wrap(op, string(h), err)
	}
	if t == nil {
		return nil, vcserr.NotFound(op+": tree", string(h))
	}
	return t, nil
}
