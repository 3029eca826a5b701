package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLogCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the commit history of the branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(false)
			if err != nil {
				return err
			}
			defer store.Close()

			commits, err := store.Log(limit)
			if err != nil {
				return fmt.Errorf("%w: %w", errStorage, err)
			}

			out := cmd.OutOrStdout()
			if a.jsonMode {
				return writeJSON(out, commits)
			}
			for _, c := range commits {
				fmt.Fprintf(out, "%s  %s  %d changes\n", c.ID, c.CreatedAt.Format(time.RFC3339), c.Changes)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many commits (0 for all)")
	return cmd
}
