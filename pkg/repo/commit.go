package repo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

// Metadata keys set on merge commits.
const (
	MetadataIsMerge        = "is_merge"
	MetadataMergeTimestamp = "merge_timestamp"
	MetadataMergeBase      = "merge_base"
	MetadataMergeStrategy  = "merge_strategy"
	MetadataDocumentID     = "document_id"
)

// CommitSigner signs canonical commit payload bytes and returns an encoded
// signature string to be persisted in the commit metadata.
type CommitSigner func(payload []byte) (string, error)

// SignatureVerifier checks an encoded signature over a commit payload.
type SignatureVerifier func(payload []byte, signature string) error

// CommitOption sets optional commit fields.
type CommitOption func(*commitOptions)

type commitOptions struct {
	committer string
	metadata  map[string]object.Value
}

// WithCommitter records a committer distinct from the author.
func WithCommitter(name string) CommitOption {
	return func(o *commitOptions) { o.committer = name }
}

// WithMetadata merges md into the commit metadata. Later options win.
func WithMetadata(md map[string]object.Value) CommitOption {
	return func(o *commitOptions) {
		if len(md) == 0 {
			return
		}
		if o.metadata == nil {
			o.metadata = make(map[string]object.Value, len(md))
		}
		for k, v := range md {
			o.metadata[k] = v.Clone()
		}
	}
}

// CreateCommit builds and seals a commit without storing it. The timestamp
// comes from the repository clock, in UTC.
func (r *Repo) CreateCommit(tree object.Hash, parents []object.Hash, author, message string, opts ...CommitOption) (*object.Commit, error) {
	if !object.ValidHash(tree) {
		return nil, vcserr.Validation("create commit", "invalid tree hash %q", tree)
	}
	for _, p := range parents {
		if !object.ValidHash(p) {
			return nil, vcserr.Validation("create commit", "invalid parent hash %q", p)
		}
	}

	var o commitOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := &object.Commit{
		ID:        r.newID(),
		Tree:      tree,
		Parents:   append([]object.Hash(nil), parents...),
		Author:    author,
		Committer: o.committer,
		Timestamp: r.now().UTC(),
		Message:   message,
		Metadata:  o.metadata,
	}
	if c.Parents == nil {
		c.Parents = []object.Hash{}
	}
	if err := c.Seal(); err != nil {
		return nil, vcserr.Validation("create commit", "%v", err)
	}
	return c, nil
}

// CommitDocument snapshots a document and commits it on top of parent (no
// parent when empty). Every blob and the tree are stored before the commit,
// so a returned hash always names a complete snapshot.
func (r *Repo) CommitDocument(ctx context.Context, documentID, message, author string, parent object.Hash, opts ...CommitOption) (object.Hash, error) {
	const op = "commit document"
	if parent != "" && !object.ValidHash(parent) {
		return "", vcserr.Validation(op, "invalid parent hash %q", parent)
	}

	var parents []object.Hash
	if parent != "" {
		ok, err := r.Store.Has(ctx, parent)
		if err != nil {
			return "", vcserr.Wrap(op, documentID, err)
		}
		if !ok {
			return "", vcserr.NotFound(op+": parent", string(parent))
		}
		parents = []object.Hash{parent}
	}

	tree, err := r.BuildTreeFromDocument(ctx, documentID)
	if err != nil {
		return "", err
	}
	treeHash, err := r.Store.StoreTree(ctx, tree)
	if err != nil {
		return "", wrapUnlessCanceled(ctx, op, documentID, err)
	}

	opts = append([]CommitOption{WithMetadata(map[string]object.Value{
		MetadataDocumentID: object.Str(documentID),
	})}, opts...)
	c, err := r.CreateCommit(treeHash, parents, author, message, opts...)
	if err != nil {
		return "", err
	}
	if err := r.storeCommit(ctx, op, c); err != nil {
		return "", err
	}

	r.logger.Info("commit",
		slog.String("commit", string(c.Hash)),
		slog.String("tree", string(treeHash)),
		slog.String("document", documentID),
		slog.Int("objects", len(tree.Entries)),
	)
	return c.Hash, nil
}

// CreateMergeCommit stores a commit with two or more parents. Fewer parents
// are rejected before any store access. The metadata gains is_merge and
// merge_timestamp.
func (r *Repo) CreateMergeCommit(ctx context.Context, tree object.Hash, parents []object.Hash, message, author string, opts ...CommitOption) (object.Hash, error) {
	const op = "create merge commit"
	if len(parents) < 2 {
		return "", vcserr.Validation(op, "need at least 2 parents, got %d", len(parents))
	}

	now := r.now().UTC()
	opts = append(opts, WithMetadata(map[string]object.Value{
		MetadataIsMerge:        object.Bool(true),
		MetadataMergeTimestamp: object.Str(object.FormatTimestamp(now)),
	}))
	c, err := r.CreateCommit(tree, parents, author, message, opts...)
	if err != nil {
		return "", err
	}
	if err := r.storeCommit(ctx, op, c); err != nil {
		return "", err
	}

	r.logger.Info("merge commit",
		slog.String("commit", string(c.Hash)),
		slog.String("tree", string(tree)),
		slog.Int("parents", len(parents)),
	)
	return c.Hash, nil
}

// storeCommit signs c when a signer is configured and writes it.
func (r *Repo) storeCommit(ctx context.Context, op string, c *object.Commit) error {
	if r.signer != nil {
		payload, err := object.CommitSigningPayload(c)
		if err != nil {
			return vcserr.Validation(op, "signing payload: %v", err)
		}
		sig, err := r.signer(payload)
		if err != nil {
			return vcserr.Validation(op, "sign commit: %v", err)
		}
		if c.Metadata == nil {
			c.Metadata = make(map[string]object.Value, 1)
		}
		c.Metadata[object.MetadataSignature] = object.Str(sig)
	}
	if _, err := r.Store.StoreCommit(ctx, c); err != nil {
		return wrapUnlessCanceled(ctx, op, string(c.Hash), err)
	}
	return nil
}

// GetCommit returns commit h, or a NotFound error.
func (r *Repo) GetCommit(ctx context.Context, h object.Hash) (*object.Commit, error) {
	c, err := r.Store.GetCommit(ctx, h)
	if err != nil {
		return nil, vcserr.Wrap("get commit", string(h), err)
	}
	if c == nil {
		return nil, vcserr.NotFound("get commit", string(h))
	}
	return c, nil
}

// GetCommitTree returns the tree of commit h. A missing commit or tree
// yields nil without error; store failures are still reported.
func (r *Repo) GetCommitTree(ctx context.Context, h object.Hash) (*object.Tree, error) {
	c, err := r.Store.GetCommit(ctx, h)
	if err != nil {
		if errors.Is(err, vcserr.ErrIntegrity) {
			return nil, nil
		}
		return nil, vcserr.Wrap("get commit tree", string(h), err)
	}
	if c == nil {
		return nil, nil
	}
	t, err := r.Store.GetTree(ctx, c.Tree)
	if err != nil {
		if errors.Is(err, vcserr.ErrIntegrity) {
			return nil, nil
		}
		return nil, vcserr.Wrap("get commit tree", string(c.Tree), err)
	}
	return t, nil
}

// ValidateCommit audits commit h: the stored hash must match its recomputed
// content hash, and the tree and every parent must exist. It never returns
// an error; failures are logged at warn level.
func (r *Repo) ValidateCommit(ctx context.Context, h object.Hash) bool {
	fail := func(reason string, args ...any) bool {
		r.logger.Warn("commit validation failed",
			append([]any{slog.String("commit", string(h)), slog.String("reason", reason)}, args...)...)
		return false
	}

	c, err := r.Store.GetCommit(ctx, h)
	if err != nil {
		return fail("read commit", slog.Any("error", err))
	}
	if c == nil {
		return fail("commit not found")
	}
	want, err := c.CalculateHash()
	if err != nil {
		return fail("hash commit", slog.Any("error", err))
	}
	if want != h || c.Hash != h {
		return fail("hash mismatch", slog.String("computed", string(want)), slog.String("recorded", string(c.Hash)))
	}

	ok, err := r.Store.Has(ctx, c.Tree)
	if err != nil {
		return fail("check tree", slog.Any("error", err))
	}
	if !ok {
		return fail("tree missing", slog.String("tree", string(c.Tree)))
	}
	for _, p := range c.Parents {
		ok, err := r.Store.Has(ctx, p)
		if err != nil {
			return fail("check parent", slog.Any("error", err))
		}
		if !ok {
			return fail("parent missing", slog.String("parent", string(p)))
		}
	}
	return true
}

// VerifySignature checks the signature stored on commit h with verify.
func (r *Repo) VerifySignature(ctx context.Context, h object.Hash, verify SignatureVerifier) error {
	const op = "verify signature"
	c, err := r.GetCommit(ctx, h)
	if err != nil {
		return err
	}
	sig := object.CommitSignature(c)
	if sig == "" {
		return vcserr.Validation(op, "commit %s is not signed", h.Short())
	}
	payload, err := object.CommitSigningPayload(c)
	if err != nil {
		return vcserr.Validation(op, "signing payload: %v", err)
	}
	if err := verify(payload, sig); err != nil {
		return vcserr.Integrity(op, string(h), "%v", err)
	}
	return nil
}

// wrapUnlessCanceled passes context errors through untouched so callers
// can tell cancellation from store failure.
func wrapUnlessCanceled(ctx context.Context, op, subject string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return vcserr.Wrap(op, subject, err)
}
