package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/cadvc/pkg/object"
)

func newStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show object store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			st, err := r.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, st)
			}
			fmt.Fprintf(out, "objects:     %d (%d bytes, %d compressed)\n", st.Total, st.Bytes, st.CompressedObjects)
			for _, t := range []object.ObjectType{object.TypeBlob, object.TypeTree, object.TypeCommit, object.TypeTag} {
				fmt.Fprintf(out, "  %-10s %d\n", string(t)+":", st.Objects[t])
			}
			fmt.Fprintf(out, "reachable:   %d\n", st.Reachable)
			fmt.Fprintf(out, "unreachable: %d\n", st.Unreachable)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print machine-readable JSON")

	return cmd
}
