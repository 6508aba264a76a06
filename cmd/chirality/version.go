package main

import (
	"fmt"
	"strings"

	chirality "github.com/sgttomas/chirality-runtime"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of chirality",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chirality version %s\n", strings.TrimSpace(chirality.Version))
		},
	}
}
