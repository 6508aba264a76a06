package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/user"

	chirality "github.com/sgttomas/chirality-runtime"
	"github.com/sgttomas/chirality-runtime/internal/presentation/tui"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	logLevel   string
	workspace  string
	actor      string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "chirality",
		Short:         "Chirality drives engineering deliverables through their lifecycle",
		Long:          `Chirality tracks projects, packages and deliverables in a workspace, and runs agent sessions confined to the folders they may write.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (defaults to ./chirality.yaml when present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.workspace, "workspace", "", "Workspace root (overrides the config)")
	cmd.PersistentFlags().StringVar(&opts.actor, "actor", "", "Human actor recorded for mutations (defaults to the OS user)")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print entities as JSON")

	cmd.AddCommand(
		newVersionCmd(),
		newInitCmd(opts),
		newBriefCmd(opts),
		newGuardCmd(opts),
		newProjectCmd(opts),
		newPackageCmd(opts),
		newDeliverableCmd(opts),
		newSessionCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
	)
	return cmd
}

// loadConfig reads the config and applies flag overrides.
func (o *rootOptions) loadConfig() (*chirality.Config, error) {
	cfg, err := chirality.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.workspace != "" {
		cfg.Workspace = o.workspace
	}
	return cfg, nil
}

// open builds a Runtime for one command. Callers must Close it.
func (o *rootOptions) open(opts ...chirality.Option) (*chirality.Runtime, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return chirality.New(cfg, opts...)
}

// human returns the actor the CLI acts as.
func (o *rootOptions) human() domain.Actor {
	if o.actor != "" {
		return domain.HumanActor(o.actor)
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return domain.HumanActor(u.Username)
	}
	if name := os.Getenv("USER"); name != "" {
		return domain.HumanActor(name)
	}
	return domain.HumanActor("unknown")
}

// print writes v as JSON when --json is set, otherwise the rendered markdown.
func (o *rootOptions) print(w io.Writer, v any, markdown string) error {
	if o.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprint(w, tui.NewRenderer(w).Render(markdown))
	return err
}
