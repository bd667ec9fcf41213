package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/cadvc/pkg/document"
	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/repo"
)

func newCommitCmd() *cobra.Command {
	var message string
	var author string
	var branch string
	var documentID string
	var sign bool
	var keyPath string

	cmd := &cobra.Command{
		Use:   "commit <snapshot.json>",
		Short: "Record a document snapshot on a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("commit message is required (-m)")
			}

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

			opts := []repo.Option{repo.WithAdapter(docs)}
			if sign {
				signer, _, err := newSSHCommitSigner(keyPath)
				if err != nil {
					return err
				}
				opts = append(opts, repo.WithSigner(signer))
			}

			r, err := openRepo(cmd, opts...)
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

			h, err := r.CommitToBranch(cmd.Context(), branch, documentID, message, author)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, h.Short(), message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVar(&author, "author", "", "override author (default: commit.default_author, then $USER)")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch to commit to (default: branches.default)")
	cmd.Flags().StringVar(&documentID, "document", "", "document id (default: snapshot file name)")
	cmd.Flags().BoolVarP(&sign, "sign", "S", false, "sign the commit with an SSH key")
	cmd.Flags().StringVar(&keyPath, "key", "", "SSH private key for --sign (default: ~/.ssh/id_ed25519, id_ecdsa, id_rsa)")

	return cmd
}
