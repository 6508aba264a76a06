package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sgttomas/chirality-runtime/pkg/brief"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newBriefCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brief",
		Short: "Work with session briefs",
	}

	var agent string
	validate := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a brief file against the agent's input rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readBrief(args[0])
			if err != nil {
				return err
			}
			validator := brief.NewValidator(nil)
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Brief.RulesFile != "" {
				rules, err := brief.LoadRules(cfg.Brief.RulesFile)
				if err != nil {
					return err
				}
				validator = brief.NewValidator(brief.DefaultRules().Merge(rules))
			}
			if err := validator.Validate(b, agent); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Brief is valid for %s\n", agentLabel(agent))
			return nil
		},
	}
	validate.Flags().StringVar(&agent, "agent", "", "Agent the brief is addressed to")
	cmd.AddCommand(validate)
	return cmd
}

func agentLabel(agent string) string {
	if agent == "" {
		return "any agent"
	}
	return agent
}

// readBriefDocument loads a JSON or YAML brief as an untyped document.
func readBriefDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read brief: %w", err)
	}
	var doc map[string]any
	// YAML is a superset of JSON, so one decoder serves both.
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &domain.InvalidBriefError{Reason: fmt.Sprintf("%s is not a mapping: %v", filepath.Base(path), err)}
	}
	if doc == nil {
		return nil, &domain.InvalidBriefError{Reason: fmt.Sprintf("%s is empty", filepath.Base(path))}
	}
	return doc, nil
}

func readBrief(path string) (domain.SessionBrief, error) {
	doc, err := readBriefDocument(path)
	if err != nil {
		return domain.SessionBrief{}, err
	}
	return brief.Parse(doc)
}
