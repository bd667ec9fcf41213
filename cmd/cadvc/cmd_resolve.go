package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/cadvc/pkg/config"
	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/repo"
	"github.com/odvcencio/cadvc/pkg/resolve"
)

type resolveOutput struct {
	Conflict   *resolve.MergeConflict `json:"conflict"`
	Category   resolve.Category       `json:"category"`
	Resolution resolve.ResolvedObject `json:"resolution"`
}

func newResolveCmd() *cobra.Command {
	var basePath, oursPath, theirsPath string
	var strategy string

	cmd := &cobra.Command{
		Use:   "resolve --ours <file> --theirs <file> [--base <file>]",
		Short: "Resolve one object conflict from exported object versions",
		Long: "Resolve a single conflict offline. Each file holds one object as JSON.\n" +
			"Omitting --ours or --theirs means that side deleted the object; omitting\n" +
			"--base means both sides added it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if oursPath == "" && theirsPath == "" {
				return fmt.Errorf("at least one of --ours and --theirs is required")
			}
			s, err := resolve.ParseStrategy(strategy)
			if err != nil {
				return err
			}

			base, err := readObjectFile(basePath)
			if err != nil {
				return err
			}
			ours, err := readObjectFile(oursPath)
			if err != nil {
				return err
			}
			theirs, err := readObjectFile(theirsPath)
			if err != nil {
				return err
			}

			res, err := conflictResolver(cmd)
			if err != nil {
				return err
			}

			c := &resolve.MergeConflict{
				ObjectID: objectID(base, ours, theirs),
				Base:     base,
				Ours:     ours,
				Theirs:   theirs,
				Type:     conflictType(base, ours, theirs),
			}
			res.Suggest(c)
			out := resolveOutput{
				Conflict:   c,
				Category:   res.Analyze(c).Category,
				Resolution: res.Resolve(c, s),
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !out.Resolution.Resolved() {
				return fmt.Errorf("%s needs a manual decision (%s)", c.ObjectID, out.Resolution.ResolutionType)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&basePath, "base", "", "common ancestor version")
	cmd.Flags().StringVar(&oursPath, "ours", "", "our version")
	cmd.Flags().StringVar(&theirsPath, "theirs", "", "their version")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", string(resolve.StrategyAuto), "ours, theirs, union, auto or interactive")

	return cmd
}

// conflictResolver uses the repository's merge settings when run inside a
// repository and the defaults otherwise.
func conflictResolver(cmd *cobra.Command) (*resolve.Resolver, error) {
	if _, err := repo.FindRoot("."); err == nil {
		r, err := openRepo(cmd)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return r.Resolver(), nil
	}
	return resolve.New(config.Default().ResolverOptions()...)
}

func readObjectFile(path string) (*object.ObjectData, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var d object.ObjectData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if d.Name == "" {
		return nil, fmt.Errorf("%s: object has no name", path)
	}
	return &d, nil
}

func objectID(versions ...*object.ObjectData) string {
	for _, v := range versions {
		if v != nil {
			return v.Name
		}
	}
	return ""
}

func conflictType(base, ours, theirs *object.ObjectData) resolve.ConflictType {
	switch {
	case ours == nil:
		return resolve.DeleteModify
	case theirs == nil:
		return resolve.ModifyDelete
	case base == nil:
		return resolve.AddAdd
	}
	return resolve.ModifyModify
}
