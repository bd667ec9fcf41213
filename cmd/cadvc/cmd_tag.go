package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/cadvc/pkg/object"
)

func newTagCmd() *cobra.Command {
	var message string
	var tagger string
	var showHash bool
	var release string

	cmd := &cobra.Command{
		Use:   "tag [name] [target]",
		Short: "List or create tags",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				tags, err := r.ListTags(ctx)
				if err != nil {
					return err
				}
				for _, t := range tags {
					if showHash {
						fmt.Fprintf(out, "%s %s\n", t.Target, t.Name)
					} else {
						fmt.Fprintln(out, t.Name)
					}
				}
				return nil
			}

			target := r.Config.Branches.Default
			if len(args) == 2 {
				target = args[1]
			}
			h, err := resolveRev(ctx, r, target)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", target, err)
			}
			if tagger == "" {
				tagger = defaultAuthor(r)
			}
			var meta map[string]object.Value
			if release != "" {
				meta = map[string]object.Value{"release": object.Str(release)}
			}

			t, err := r.CreateTag(ctx, args[0], h, tagger, message, meta)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "tagged %s as '%s'\n", t.Target.Short(), t.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "tag message")
	cmd.Flags().StringVar(&tagger, "tagger", "", "override tagger (default: commit.default_author, then $USER)")
	cmd.Flags().BoolVar(&showHash, "show-hash", false, "show tag target hashes when listing")
	cmd.Flags().StringVar(&release, "release", "", "record a release name in the tag metadata")

	return cmd
}
