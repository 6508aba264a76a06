package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sgttomas/chirality-runtime/internal/presentation/tui"
	"github.com/spf13/cobra"
)

const configTemplate = `# chirality runtime configuration. Every key can be overridden with CHIRALITY_* variables.
workspace: %q
data_dir: %q
log_level: info

store:
  backend: file     # file | memory | redis
  lock_ttl: 30s

blob:
  backend: file     # file | sqlite | memory

guard:
  containment: fallback   # fallback | fail_closed

ledger:
  enabled: true

git:
  enabled: false

http:
  address: ":8080"
`

func newInitCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter chirality.yaml and data directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			path := filepath.Join(abs, "chirality.yaml")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := os.MkdirAll(filepath.Join(abs, ".chirality"), 0755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(fmt.Sprintf(configTemplate, abs, filepath.Join(abs, ".chirality"))), 0644); err != nil {
				return err
			}
			if !opts.jsonOutput {
				tui.PrintBanner(cmd.OutOrStdout())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized chirality workspace at %s\n", abs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing chirality.yaml")
	return cmd
}
