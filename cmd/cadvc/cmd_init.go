package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/cadvc/pkg/config"
	"github.com/odvcencio/cadvc/pkg/logging"
	"github.com/odvcencio/cadvc/pkg/repo"
)

func newInitCmd() *cobra.Command {
	var backend string
	var defaultBranch string

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty cadvc repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}

			cfg := config.Default()
			cfg.Storage.Backend = backend
			if defaultBranch != "" {
				cfg.Branches.Default = defaultBranch
			}
			logger, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			r, err := repo.Init(abs, cfg, repo.WithLogger(logger))
			if err != nil {
				return err
			}
			defer r.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty cadvc repository in %s\n", r.Dir+string(filepath.Separator))
			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "backend", config.BackendFile, "object storage backend (file or sqlite)")
	cmd.Flags().StringVar(&defaultBranch, "default-branch", "", "branch commits go to when --branch is omitted")

	return cmd
}
