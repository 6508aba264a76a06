package main

import (
	"fmt"
	"path/filepath"

	chirality "github.com/sgttomas/chirality-runtime"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/spf13/cobra"
)

func newProjectCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	var req chirality.CreateProjectRequest
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project rooted in the workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			req.Name = args[0]
			req.Actor = opts.human()
			if req.WorkspacePath == "" {
				req.WorkspacePath = rt.Config.Workspace
			}
			if req.WorkspacePath, err = filepath.Abs(req.WorkspacePath); err != nil {
				return err
			}
			p, err := rt.CreateProject(cmd.Context(), req)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), p, fmt.Sprintf("Created project **%s** `%s`\n", p.Name, p.ID))
		},
	}
	create.Flags().StringVar(&req.WorkspacePath, "path", "", "Project root (defaults to the workspace)")
	create.Flags().StringVar(&req.Description, "description", "", "Project description")
	create.Flags().StringVar(&req.Decomposition, "decomposition", "", "Path of the decomposition document")
	cmd.AddCommand(create)
	return cmd
}

func newPackageCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "package",
		Short: "Manage packages",
	}

	var (
		projectID string
		req       chirality.CreatePackageRequest
	)
	create := &cobra.Command{
		Use:   "create <label>",
		Short: "Create a package under a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projID, err := domain.ParseProjectID(projectID)
			if err != nil {
				return err
			}
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			req.Label = args[0]
			req.ProjectID = projID
			pkg, err := rt.CreatePackage(cmd.Context(), req)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), pkg,
				fmt.Sprintf("Created package **%s** `%s` in `%s`\n", pkg.Label, pkg.ID, pkg.FolderName))
		},
	}
	create.Flags().StringVar(&projectID, "project", "", "Owning project id")
	create.Flags().IntVar(&req.LegacyNumber, "number", 0, "Legacy package number (PKG-###)")
	create.Flags().StringSliceVar(&req.ScopeItems, "scope-item", nil, "Scope item (repeatable)")
	_ = create.MarkFlagRequired("project")
	cmd.AddCommand(create)
	return cmd
}
