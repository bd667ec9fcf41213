package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odvcencio/cadvc/pkg/naming"
	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

// validateRefName rejects names the configured validator refuses, listing
// every reason.
func (r *Repo) validateRefName(op, kind, name string) (string, error) {
	name = naming.Normalize(name)
	if !r.validator.IsValid(name) {
		return "", vcserr.Validation(op, "invalid %s name %q: %s", kind, name, strings.Join(r.validator.ExplainInvalid(name), "; "))
	}
	return name, nil
}

// refError classifies RefStore failures: CAS and existence conflicts are
// validation errors that still match ErrRefConflict or ErrRefExists.
func refError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var classified *vcserr.Error
	switch {
	case errors.Is(err, ErrRefConflict), errors.Is(err, ErrRefExists):
		return &vcserr.Error{Kind: vcserr.KindValidation, Op: op, Subject: name, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.As(err, &classified):
		return err
	}
	return vcserr.StoreIO(op, name, err)
}

// CreateBranch creates a branch at head, which must be a stored commit.
// Protection is decided once, here, from the configured patterns.
func (r *Repo) CreateBranch(ctx context.Context, name string, head object.Hash) (*Branch, error) {
	const op = "create branch"
	name, err := r.validateRefName(op, "branch", name)
	if err != nil {
		return nil, err
	}
	if !object.ValidHash(head) {
		return nil, vcserr.Validation(op, "invalid head hash %q", head)
	}
	c, err := r.Store.GetCommit(ctx, head)
	if err != nil {
		return nil, vcserr.Wrap(op, name, err)
	}
	if c == nil {
		return nil, vcserr.NotFound(op+": head commit", string(head))
	}

	now := r.now().UTC()
	b := &Branch{
		Name:      name,
		Head:      head,
		CreatedAt: now,
		UpdatedAt: now,
		Protected: r.Config.IsProtected(name),
	}
	if err := r.Refs.CreateBranch(ctx, b, "branch: created at "+head.Short()); err != nil {
		if errors.Is(err, ErrRefExists) {
			return nil, refError(op, name, fmt.Errorf("branch already exists: %w", err))
		}
		return nil, refError(op, name, err)
	}
	r.logger.Info("branch created", slog.String("branch", name), slog.String("commit", string(head)))
	return b, nil
}

// GetBranch returns the named branch or a NotFound error.
func (r *Repo) GetBranch(ctx context.Context, name string) (*Branch, error) {
	b, err := r.Refs.GetBranch(ctx, naming.Normalize(name))
	if err != nil {
		return nil, refError("get branch", name, err)
	}
	if b == nil {
		return nil, vcserr.NotFound("get branch", name)
	}
	return b, nil
}

// ListBranches returns every branch sorted by name.
func (r *Repo) ListBranches(ctx context.Context) ([]*Branch, error) {
	bs, err := r.Refs.ListBranches(ctx)
	if err != nil {
		return nil, refError("list branches", "", err)
	}
	return bs, nil
}

// UpdateBranchHead moves a branch to newHead. When expectedOld is given the
// move only happens if the branch still points there; otherwise the error
// matches ErrRefConflict. newHead is not checked for existence.
func (r *Repo) UpdateBranchHead(ctx context.Context, name string, newHead object.Hash, expectedOld ...object.Hash) (*Branch, error) {
	return r.moveBranch(ctx, name, newHead, "update", expectedOld...)
}

func (r *Repo) moveBranch(ctx context.Context, name string, newHead object.Hash, reason string, expectedOld ...object.Hash) (*Branch, error) {
	const op = "update branch"
	if !object.ValidHash(newHead) {
		return nil, vcserr.Validation(op, "invalid head hash %q", newHead)
	}
	cur, err := r.GetBranch(ctx, name)
	if err != nil {
		return nil, err
	}

	next := cur.clone()
	next.Head = newHead
	next.UpdatedAt = r.now().UTC()
	if err := r.Refs.UpdateBranch(ctx, next, reason, expectedOld...); err != nil {
		return nil, refError(op, cur.Name, err)
	}
	r.logger.Info("branch moved",
		slog.String("branch", cur.Name),
		slog.String("from", string(cur.Head)),
		slog.String("to", string(newHead)),
		slog.String("reason", reason),
	)
	return next, nil
}

// DeleteBranch removes an unprotected branch. Commits stay in the store.
func (r *Repo) DeleteBranch(ctx context.Context, name string) error {
	const op = "delete branch"
	b, err := r.GetBranch(ctx, name)
	if err != nil {
		return err
	}
	if b.Protected {
		return vcserr.Validation(op, "branch %q is protected", b.Name)
	}
	if err := r.Refs.DeleteBranch(ctx, b.Name); err != nil {
		return refError(op, b.Name, err)
	}
	r.logger.Info("branch deleted", slog.String("branch", b.Name), slog.String("commit", string(b.Head)))
	return nil
}

// ReadReflog returns the recorded moves of a branch, newest first.
func (r *Repo) ReadReflog(ctx context.Context, branch string, limit int) ([]ReflogEntry, error) {
	entries, err := r.Refs.ReadReflog(ctx, branch, limit)
	if err != nil {
		return nil, refError("read reflog", branch, err)
	}
	return entries, nil
}

// CommitToBranch commits a document on top of the branch head and moves the
// branch there with a compare-and-swap. The branch is created by its first
// commit. A concurrent move of the branch fails with ErrRefConflict; the
// new commit is then stored but unreferenced.
func (r *Repo) CommitToBranch(ctx context.Context, branch, documentID, message, author string, opts ...CommitOption) (object.Hash, error) {
	const op = "commit to branch"
	branch, err := r.validateRefName(op, "branch", branch)
	if err != nil {
		return "", err
	}
	cur, err := r.Refs.GetBranch(ctx, branch)
	if err != nil {
		return "", refError(op, branch, err)
	}

	var parent object.Hash
	if cur != nil {
		parent = cur.Head
	}
	h, err := r.CommitDocument(ctx, documentID, message, author, parent, opts...)
	if err != nil {
		return "", err
	}

	if cur == nil {
		if _, err := r.CreateBranch(ctx, branch, h); err != nil {
			return "", err
		}
		return h, nil
	}
	if _, err := r.moveBranch(ctx, branch, h, "commit: "+firstLine(message), parent); err != nil {
		return "", err
	}
	return h, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
