package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/cadvc/pkg/diff"
	"github.com/odvcencio/cadvc/pkg/object"
)

func newDiffCmd() *cobra.Command {
	var asJSON bool
	var objectName string

	cmd := &cobra.Command{
		Use:   "diff <from> [to]",
		Short: "Show object changes between two commits",
		Long: "Compare the trees of two revisions. With one argument the revision\n" +
			"is compared against its first parent.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx := cmd.Context()
			var from, to object.Hash
			if len(args) == 2 {
				if from, err = resolveRev(ctx, r, args[0]); err != nil {
					return err
				}
				if to, err = resolveRev(ctx, r, args[1]); err != nil {
					return err
				}
			} else {
				if to, err = resolveRev(ctx, r, args[0]); err != nil {
					return err
				}
				c, err := r.GetCommit(ctx, to)
				if err != nil {
					return err
				}
				if p, ok := c.FirstParent(); ok {
					from = p
				}
			}

			cd, err := r.Diff(ctx, from, to)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if objectName != "" {
				for i := range cd.ObjectDiffs {
					od := &cd.ObjectDiffs[i]
					if od.ObjectID != objectName {
						continue
					}
					if asJSON {
						return writeJSON(out, od)
					}
					fmt.Fprint(out, diff.FormatDiff(od))
					return nil
				}
				return fmt.Errorf("object %q did not change", objectName)
			}

			if asJSON {
				return writeJSON(out, cd)
			}
			fmt.Fprint(out, diff.Summary(cd))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print machine-readable JSON")
	cmd.Flags().StringVar(&objectName, "object", "", "show only the named object")

	return cmd
}
