package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/cadvc/pkg/repo"
	"github.com/odvcencio/cadvc/pkg/resolve"
)

func newMergeCmd() *cobra.Command {
	var into string
	var strategy string
	var message string
	var author string
	var noFF bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "merge <branch|tag|commit>",
		Short: "Merge a revision into a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx := cmd.Context()
			if into == "" {
				into = r.Config.Branches.Default
			}
			theirs, err := resolveRev(ctx, r, args[0])
			if err != nil {
				return err
			}
			var s resolve.Strategy
			if strategy != "" {
				if s, err = resolve.ParseStrategy(strategy); err != nil {
					return err
				}
			}
			if author == "" {
				author = defaultAuthor(r)
			}
			if message == "" {
				message = fmt.Sprintf("Merge '%s' into %s", args[0], into)
			}

			res, err := r.Merge(ctx, repo.MergeOptions{
				Theirs:        theirs,
				Branch:        into,
				Strategy:      s,
				Author:        author,
				Message:       message,
				NoFastForward: noFF,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, res); err != nil {
					return err
				}
			} else {
				printMergeResult(out, into, message, res)
			}
			if !res.Success {
				n := len(res.Unresolved())
				return fmt.Errorf("merge failed: %d unresolved conflict%s", n, plural(n))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&into, "into", "", "branch to merge into (default: branches.default)")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "ours, theirs, union, auto or interactive (default: merge.strategy)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "merge commit message")
	cmd.Flags().StringVar(&author, "author", "", "override author")
	cmd.Flags().BoolVar(&noFF, "no-ff", false, "create a merge commit even when fast-forward is possible")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the merge result as JSON")

	return cmd
}

func printMergeResult(out io.Writer, into, message string, res *repo.MergeResult) {
	switch {
	case res.UpToDate:
		fmt.Fprintln(out, "already up to date")
		return
	case res.FastForward:
		fmt.Fprintf(out, "fast-forward %s to %s\n", into, res.CommitHash.Short())
		return
	}

	if res.MergeBase != "" {
		fmt.Fprintf(out, "merge base %s, strategy %s\n", res.MergeBase.Short(), res.StrategyUsed)
	}
	for i, c := range res.Conflicts {
		rt := res.Resolutions[i].ResolutionType
		line := fmt.Sprintf("  %s: %s -> %s", c.ObjectID, strings.ToLower(string(c.Type)), rt)
		if info := res.Resolutions[i].ConflictInfo; info != nil && len(info.ConflictingProperties) > 0 {
			line += " (" + strings.Join(info.ConflictingProperties, ", ") + ")"
		}
		fmt.Fprintln(out, line)
	}

	if !res.Success {
		n := len(res.Unresolved())
		fmt.Fprintf(out, "merge stopped with %d unresolved conflict%s; %s unchanged\n", n, plural(n), into)
		return
	}
	if res.AutoResolvedCount > 0 {
		fmt.Fprintf(out, "auto-resolved %d conflict%s\n", res.AutoResolvedCount, plural(res.AutoResolvedCount))
	}
	fmt.Fprintf(out, "[%s %s] %s\n", into, res.CommitHash.Short(), message)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
