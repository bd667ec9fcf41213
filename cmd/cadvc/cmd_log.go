package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

func newLogCmd() *cobra.Command {
	var oneline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log [branch|tag|commit]",
		Short: "Show first-parent commit history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			rev := r.Config.Branches.Default
			if len(args) == 1 {
				rev = args[0]
			} else if _, err := r.GetBranch(cmd.Context(), rev); errors.Is(err, vcserr.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "no commits yet")
				return nil
			}
			start, err := resolveRev(cmd.Context(), r, rev)
			if err != nil {
				return err
			}

			commits, err := r.GetCommitHistory(cmd.Context(), start, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, c := range commits {
				decoration := ""
				if i == 0 && len(args) == 0 {
					decoration = "(" + rev + ")"
				}
				printCommit(out, c, decoration, oneline)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "compact one-line format")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of commits to show (0 for all)")

	return cmd
}

func printCommit(out io.Writer, c *object.Commit, decoration string, oneline bool) {
	h := c.Hash
	if oneline {
		if decoration != "" {
			fmt.Fprintf(out, "%s %s %s\n", h.Short(), decoration, firstLine(c.Message))
		} else {
			fmt.Fprintf(out, "%s %s\n", h.Short(), firstLine(c.Message))
		}
		return
	}

	if decoration != "" {
		fmt.Fprintf(out, "commit %s %s\n", h, decoration)
	} else {
		fmt.Fprintf(out, "commit %s\n", h)
	}
	if len(c.Parents) > 1 {
		fmt.Fprint(out, "Merge:")
		for _, p := range c.Parents {
			fmt.Fprintf(out, " %s", p.Short())
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "Author: %s\n", c.Author)
	fmt.Fprintf(out, "Date:   %s\n", c.Timestamp.Format("2006-01-02 15:04:05"))
	if object.CommitSignature(c) != "" {
		fmt.Fprintln(out, "Signed: yes")
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "    %s\n", c.Message)
	fmt.Fprintln(out)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
