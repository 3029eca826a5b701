package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/churro/pkg/churro"
)

const modulePath = "github.com/mesh-intelligence/churro"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the churro version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "churro v%s\nmodule: %s\n", churro.Version, modulePath)
			return nil
		},
	}
}
