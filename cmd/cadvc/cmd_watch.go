package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/odvcencio/cadvc/pkg/document"
	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/repo"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

const defaultWatchDebounce = 100 * time.Millisecond

func newWatchCmd() *cobra.Command {
	var branch string
	var documentID string
	var author string
	var message string
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <snapshot.json>",
		Short: "Commit a document snapshot every time the CAD application saves it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshotPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve snapshot path: %w", err)
			}
			if documentID == "" {
				documentID = filepath.Base(snapshotPath)
			}

			docs := document.NewRegistry()
			meta := map[string]object.Value{"FileName": object.Str(snapshotPath)}
			if err := docs.Register(documentID, meta, document.FileHandle{Path: snapshotPath}); err != nil {
				return err
			}
			r, err := openRepo(cmd, repo.WithAdapter(docs))
			if err != nil {
				return err
			}
			defer r.Close()

			if branch == "" {
				branch = r.Config.Branches.Default
			}
			if author == "" {
				author = defaultAuthor(r)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := &snapshotWatcher{
				repo:       r,
				path:       snapshotPath,
				documentID: documentID,
				branch:     branch,
				author:     author,
				message:    message,
				debounce:   debounce,
				out:        cmd.OutOrStdout(),
				logger:     r.Logger(),
			}
			fmt.Fprintf(cmd.OutOrStdout(), "watching %s on branch %s\n", snapshotPath, branch)
			return w.run(ctx)
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch to commit to (default: branches.default)")
	cmd.Flags().StringVar(&documentID, "document", "", "document id (default: snapshot file name)")
	cmd.Flags().StringVar(&author, "author", "", "override author")
	cmd.Flags().StringVarP(&message, "message", "m", "Autosave", "message prefix for recorded commits")
	cmd.Flags().DurationVar(&debounce, "debounce", defaultWatchDebounce, "quiet period after the last write before committing")

	return cmd
}

// snapshotWatcher commits a snapshot file whenever it settles after a
// change. Saves that leave the object tree unchanged are skipped.
type snapshotWatcher struct {
	repo       *repo.Repo
	path       string
	documentID string
	branch     string
	author     string
	message    string
	debounce   time.Duration
	out        io.Writer
	logger     *slog.Logger
}

func (w *snapshotWatcher) run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Applications often save by writing a temp file and renaming it over
	// the original, so the directory is watched rather than the file.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	debounce := w.debounce
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		case <-timer.C:
			if _, _, err := w.commitIfChanged(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("autosave commit failed", slog.String("path", w.path), slog.String("error", err.Error()))
			}
		}
	}
}

// commitIfChanged records the current snapshot on the branch unless its
// tree equals the branch head's tree. A snapshot that is missing or still
// being written is skipped.
func (w *snapshotWatcher) commitIfChanged(ctx context.Context) (object.Hash, bool, error) {
	tree, err := w.repo.BuildTreeFromDocument(ctx, w.documentID)
	if err != nil {
		if errors.Is(err, vcserr.ErrValidation) || errors.Is(err, vcserr.ErrNotFound) {
			w.logger.Debug("snapshot not readable yet", slog.String("path", w.path), slog.String("error", err.Error()))
			return "", false, nil
		}
		return "", false, err
	}
	th, err := tree.Hash()
	if err != nil {
		return "", false, err
	}

	b, err := w.repo.GetBranch(ctx, w.branch)
	switch {
	case err == nil:
		if cur, err := w.repo.GetCommit(ctx, b.Head); err == nil && cur.Tree == th {
			return "", false, nil
		}
	case !errors.Is(err, vcserr.ErrNotFound):
		return "", false, err
	}

	msg := fmt.Sprintf("%s: %s", w.message, filepath.Base(w.path))
	h, err := w.repo.CommitToBranch(ctx, w.branch, w.documentID, msg, w.author)
	if err != nil {
		return "", false, err
	}
	fmt.Fprintf(w.out, "[%s %s] %s (%d objects)\n", w.branch, h.Short(), msg, len(tree.Entries))
	return h, true, nil
}
