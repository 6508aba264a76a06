package main

import (
	"fmt"
	"strings"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/spf13/cobra"
)

// parseWriteScope reads the --scope shorthand:
//
//	none
//	deliverable:<folder>
//	tool-root:<dir>
//	repo-metadata:<file>[,<file>...]
func parseWriteScope(s string) (domain.WriteScope, error) {
	kind, arg, _ := strings.Cut(s, ":")
	switch strings.ToLower(kind) {
	case "none", "":
		return domain.WriteNone{}, nil
	case "deliverable":
		if arg == "" {
			return nil, fmt.Errorf("scope %q needs a folder", s)
		}
		return domain.DeliverableLocal{DeliverablePath: arg}, nil
	case "tool-root":
		if arg == "" {
			return nil, fmt.Errorf("scope %q needs a directory", s)
		}
		return domain.ToolRootOnly{RootPath: arg}, nil
	case "repo-metadata":
		var files []string
		for _, f := range strings.Split(arg, ",") {
			if f = strings.TrimSpace(f); f != "" {
				files = append(files, f)
			}
		}
		return domain.RepoMetadataOnly{AllowedFiles: files}, nil
	}
	return nil, fmt.Errorf("unknown scope %q (none, deliverable:, tool-root:, repo-metadata:)", s)
}

func newGuardCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Inspect write-scope decisions",
	}

	var scopeFlag, policyFlag string
	check := &cobra.Command{
		Use:   "check <path>",
		Short: "Report whether a write to path is allowed under a scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseWriteScope(scopeFlag)
			if err != nil {
				return err
			}
			policy := policyFlag
			if policy == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				policy = cfg.Guard.Containment
			}
			p, err := domain.ParseContainmentPolicy(policy)
			if err != nil {
				return err
			}
			decision := domain.NewGuard(domain.WithContainmentPolicy(p)).Validate(scope, args[0])
			if !decision.Allowed {
				return decision.Err()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Allowed: %s may be written under %s\n", args[0], scope)
			return nil
		},
	}
	check.Flags().StringVar(&scopeFlag, "scope", "none", "Write scope: none | deliverable:<dir> | tool-root:<dir> | repo-metadata:<files>")
	check.Flags().StringVar(&policyFlag, "policy", "", "Containment policy: fallback | fail_closed (defaults to the config)")
	cmd.AddCommand(check)
	return cmd
}
