package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/cadvc/pkg/config"
	"github.com/odvcencio/cadvc/pkg/logging"
	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/repo"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

// openRepo opens the repository containing the working directory. Logs go
// to the command's stderr in the configured format.
func openRepo(cmd *cobra.Command, opts ...repo.Option) (*repo.Repo, error) {
	root, err := repo.FindRoot(".")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(filepath.Join(root, repo.DirName))
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return repo.Open(root, append([]repo.Option{repo.WithLogger(logger)}, opts...)...)
}

// resolveRev turns a branch name, tag name or full commit hash into a
// commit hash. Branches win over tags of the same name.
func resolveRev(ctx context.Context, r *repo.Repo, rev string) (object.Hash, error) {
	rev = strings.TrimSpace(rev)
	if rev == "" {
		return "", fmt.Errorf("empty revision")
	}

	b, err := r.GetBranch(ctx, rev)
	if err == nil {
		return b.Head, nil
	}
	if !errors.Is(err, vcserr.ErrNotFound) {
		return "", err
	}

	t, err := r.GetTag(ctx, rev)
	if err == nil {
		return t.Target, nil
	}
	if !errors.Is(err, vcserr.ErrNotFound) {
		return "", err
	}

	h := object.Hash(rev)
	if !object.ValidHash(h) {
		return "", fmt.Errorf("unknown revision %q", rev)
	}
	if _, err := r.GetCommit(ctx, h); err != nil {
		return "", err
	}
	return h, nil
}

// defaultAuthor picks the configured author, then $USER.
func defaultAuthor(r *repo.Repo) string {
	if r.Config.Commit.DefaultAuthor != "" {
		return r.Config.Commit.DefaultAuthor
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
