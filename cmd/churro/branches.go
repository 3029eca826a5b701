package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBranchesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "branches",
		Short: "List the branches of the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(false)
			if err != nil {
				return err
			}
			defer store.Close()

			branches, err := store.Branches()
			if err != nil {
				return fmt.Errorf("%w: %w", errStorage, err)
			}

			out := cmd.OutOrStdout()
			if a.jsonMode {
				return writeJSON(out, branches)
			}
			for _, b := range branches {
				marker := " "
				if b.Name == store.Branch() {
					marker = "*"
				}
				head := b.Head
				if head == "" {
					head = "(no commits)"
				}
				fmt.Fprintf(out, "%s %s %s\n", marker, b.Name, head)
			}
			return nil
		},
	}
}
