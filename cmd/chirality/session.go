package main

import (
	"errors"
	"fmt"
	"strings"

	chirality "github.com/sgttomas/chirality-runtime"
	"github.com/sgttomas/chirality-runtime/internal/presentation/tui"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/spf13/cobra"
)

func newSessionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage agent sessions",
		Long:  `Start, move, list, inspect and remove agent sessions.`,
	}
	cmd.AddCommand(
		newSessionStartCmd(opts),
		newSessionTransitionCmd(opts),
		newSessionLsCmd(opts),
		newSessionInspectCmd(opts),
		newSessionRmCmd(opts),
	)
	return cmd
}

type startFlags struct {
	agent, agentType, class   string
	deliverable, pkg, project string
	briefPath, branch         string
	run                       bool
}

// scope picks the single session scope named by the flags.
func (f *startFlags) scope() (domain.SessionScope, error) {
	var scopes []domain.SessionScope
	if f.deliverable != "" {
		id, err := domain.ParseDeliverableID(f.deliverable)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, domain.DeliverableScope{DeliverableID: id})
	}
	if f.pkg != "" {
		id, err := domain.ParsePackageID(f.pkg)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, domain.PackageScope{PackageID: id})
	}
	if f.project != "" {
		id, err := domain.ParseProjectID(f.project)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, domain.ProjectScope{ProjectID: id})
	}
	if len(scopes) != 1 {
		return nil, errors.New("exactly one of --deliverable, --package or --project is required")
	}
	return scopes[0], nil
}

func (f *startFlags) request(actor domain.Actor) (chirality.StartSessionRequest, error) {
	req := chirality.StartSessionRequest{AgentName: f.agent, Branch: f.branch, Actor: actor}
	if err := req.Class.UnmarshalText([]byte(strings.ToUpper(f.class))); err != nil {
		return req, err
	}
	if f.agentType != "" {
		if err := req.AgentType.UnmarshalText([]byte(strings.ToUpper(f.agentType))); err != nil {
			return req, err
		}
	}
	scope, err := f.scope()
	if err != nil {
		return req, err
	}
	req.Scope = scope
	if f.briefPath != "" {
		if req.Brief, err = readBriefDocument(f.briefPath); err != nil {
			return req, err
		}
	}
	return req, nil
}

func newSessionStartCmd(opts *rootOptions) *cobra.Command {
	f := &startFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an agent session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(opts.human())
			if err != nil {
				return err
			}
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			s, err := rt.StartSession(cmd.Context(), req)
			if err != nil {
				return err
			}
			if f.run {
				if _, err := rt.RunTask(cmd.Context(), s.ID); err != nil {
					return fmt.Errorf("session %s: %w", s.ID, err)
				}
				if s, err = rt.GetSession(cmd.Context(), s.ID); err != nil {
					return err
				}
			}
			return opts.print(cmd.OutOrStdout(), s, tui.SessionMarkdown(s))
		},
	}
	cmd.Flags().StringVar(&f.agent, "agent", "", "Agent name")
	cmd.Flags().StringVar(&f.class, "class", "task", "Agent class: task | persona")
	cmd.Flags().StringVar(&f.agentType, "type", "", "Agent type: architect | manager | specialist")
	cmd.Flags().StringVar(&f.deliverable, "deliverable", "", "Deliverable scope")
	cmd.Flags().StringVar(&f.pkg, "package", "", "Package scope")
	cmd.Flags().StringVar(&f.project, "project", "", "Project scope")
	cmd.Flags().StringVar(&f.briefPath, "brief", "", "Brief file (YAML or JSON), required for task sessions")
	cmd.Flags().StringVar(&f.branch, "branch", "", "Git branch the session works on")
	cmd.Flags().BoolVar(&f.run, "run", false, "Run the task immediately")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newSessionTransitionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transition <session-id> <state>",
		Short: "Move a session to another state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target domain.SessionState
			if err := target.UnmarshalText([]byte(strings.ToUpper(args[1]))); err != nil {
				return err
			}
			id, err := domain.ParseSessionID(args[0])
			if err != nil {
				return err
			}
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			s, err := rt.TransitionSession(cmd.Context(), id, target)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), s, fmt.Sprintf("`%s` is now **%s**\n", s.ID, s.State))
		},
	}
}

func newSessionLsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List all sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			sessions, err := rt.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), sessions, tui.SessionTable(sessions))
		},
	}
}

func newSessionInspectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <session-id>",
		Short: "Inspect the state of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseSessionID(args[0])
			if err != nil {
				return err
			}
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			s, err := rt.GetSession(cmd.Context(), id)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), s, tui.SessionMarkdown(s))
		},
	}
}

func newSessionRmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <session-id>...",
		Short: "Remove one or more sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			var errs []error
			for _, arg := range args {
				id, err := domain.ParseSessionID(arg)
				if err == nil {
					err = rt.DeleteSession(cmd.Context(), id)
				}
				if err != nil {
					errs = append(errs, fmt.Errorf("remove %s: %w", arg, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed session '%s'\n", id)
			}
			return errors.Join(errs...)
		},
	}
}
