package main

import (
	"fmt"

	chirality "github.com/sgttomas/chirality-runtime"
	"github.com/sgttomas/chirality-runtime/internal/presentation/tui"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/spf13/cobra"
)

func newDeliverableCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deliverable",
		Aliases: []string{"del"},
		Short:   "Manage deliverables",
	}
	cmd.AddCommand(
		newDeliverableCreateCmd(opts),
		newDeliverableShowCmd(opts),
		newDeliverableTransitionCmd(opts),
		newDeliverableLsCmd(opts),
		newDeliverableStatusCmd(opts),
	)
	return cmd
}

func newDeliverableCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		packageID string
		req       chirality.CreateDeliverableRequest
	)
	cmd := &cobra.Command{
		Use:   "create <label>",
		Short: "Create and scaffold a deliverable folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgID, err := domain.ParsePackageID(packageID)
			if err != nil {
				return err
			}
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			req.Label = args[0]
			req.PackageID = pkgID
			d, err := rt.CreateDeliverable(cmd.Context(), req)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), d, tui.DeliverableMarkdown(d))
		},
	}
	cmd.Flags().StringVar(&packageID, "package", "", "Owning package id")
	cmd.Flags().IntVar(&req.LegacyNumber, "number", 0, "Legacy deliverable number (DEL-pp.nn)")
	cmd.Flags().StringVar(&req.Type, "type", "", "Deliverable type")
	cmd.Flags().StringVar(&req.Discipline, "discipline", "", "Engineering discipline")
	cmd.Flags().StringVar(&req.ResponsibleParty, "responsible", "", "Responsible party")
	cmd.Flags().StringSliceVar(&req.AnticipatedArtifacts, "artifact", nil, "Anticipated artifact (repeatable)")
	_ = cmd.MarkFlagRequired("package")
	return cmd
}

func newDeliverableShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <deliverable-id>",
		Short: "Show a deliverable and its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseDeliverableID(args[0])
			if err != nil {
				return err
			}
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			d, err := rt.GetDeliverable(cmd.Context(), id)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), d, tui.DeliverableMarkdown(d))
		},
	}
}

func newDeliverableTransitionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transition <deliverable-id> <state>",
		Short: "Move a deliverable to another lifecycle state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target domain.DeliverableState
			if err := target.UnmarshalText([]byte(args[1])); err != nil {
				return err
			}
			id, err := domain.ParseDeliverableID(args[0])
			if err != nil {
				return err
			}
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			d, err := rt.TransitionDeliverable(cmd.Context(), id, target, opts.human())
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), d, fmt.Sprintf("`%s` is now **%s**\n", d.ID, d.State))
		},
	}
}

func newDeliverableLsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <package-id>",
		Short: "List the deliverables of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParsePackageID(args[0])
			if err != nil {
				return err
			}
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			ds, err := rt.ListDeliverables(cmd.Context(), id)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return opts.print(cmd.OutOrStdout(), ds, "")
			}
			for _, d := range ds {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", d.ID, d.State, d.Label)
			}
			return nil
		},
	}
}

func newDeliverableStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <package-id>",
		Short: "Show a status board for a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParsePackageID(args[0])
			if err != nil {
				return err
			}
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			pkg, err := rt.GetPackage(cmd.Context(), id)
			if err != nil {
				return err
			}
			ds, err := rt.ListDeliverables(cmd.Context(), pkg.ID)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), ds, tui.StatusBoard(fmt.Sprintf("%s %s", pkg.ID, pkg.Label), ds))
		},
	}
}
