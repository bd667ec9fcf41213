package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/cadvc/pkg/diff"
	"github.com/odvcencio/cadvc/pkg/object"
)

type showOutput struct {
	Commit  *object.Commit     `json:"commit"`
	Entries []object.TreeEntry `json:"entries"`
	Changes *diff.CommitDiff   `json:"changes,omitempty"`
}

func newShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show [branch|tag|commit]",
		Short: "Show commit metadata, its objects and what changed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx := cmd.Context()
			rev := r.Config.Branches.Default
			if len(args) == 1 {
				rev = args[0]
			}
			h, err := resolveRev(ctx, r, rev)
			if err != nil {
				return err
			}
			c, err := r.GetCommit(ctx, h)
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}
			tree, err := r.GetCommitTree(ctx, h)
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}
			if tree == nil {
				return fmt.Errorf("show: tree of %s is missing", h.Short())
			}

			var parent object.Hash
			if p, ok := c.FirstParent(); ok {
				parent = p
			}
			changes, err := r.Diff(ctx, parent, h)
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, showOutput{Commit: c, Entries: tree.Entries, Changes: changes})
			}

			printCommit(out, c, "", false)
			fmt.Fprintf(out, "Objects (%d):\n", len(tree.Entries))
			for _, e := range tree.Entries {
				fmt.Fprintf(out, "  %s %s\n", e.Hash.Short(), e.Name)
			}
			if changes.Stats.Total() > 0 {
				fmt.Fprintln(out)
				fmt.Fprint(out, diff.Summary(changes))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print machine-readable JSON")

	return cmd
}
