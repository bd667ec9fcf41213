package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBranchCmd() *cobra.Command {
	var deleteBranch string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "branch [name] [start]",
		Short: "List, create, or delete branches",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if deleteBranch != "" {
				if len(args) > 0 {
					return fmt.Errorf("branch --delete does not accept positional args")
				}
				if err := r.DeleteBranch(ctx, deleteBranch); err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted branch '%s'\n", deleteBranch)
				return nil
			}

			if len(args) > 0 {
				start := r.Config.Branches.Default
				if len(args) == 2 {
					start = args[1]
				}
				head, err := resolveRev(ctx, r, start)
				if err != nil {
					return fmt.Errorf("cannot resolve %s: %w", start, err)
				}
				b, err := r.CreateBranch(ctx, args[0], head)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "created branch '%s' at %s\n", b.Name, b.Head.Short())
				return nil
			}

			branches, err := r.ListBranches(ctx)
			if err != nil {
				return err
			}
			for _, b := range branches {
				marker := " "
				if b.Name == r.Config.Branches.Default {
					marker = "*"
				}
				if !verbose {
					fmt.Fprintf(out, "%s %s\n", marker, b.Name)
					continue
				}
				protected := ""
				if b.Protected {
					protected = " [protected]"
				}
				fmt.Fprintf(out, "%s %s %s%s\n", marker, b.Name, b.Head.Short(), protected)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&deleteBranch, "delete", "d", "", "delete the named branch")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show head and protection")

	return cmd
}
