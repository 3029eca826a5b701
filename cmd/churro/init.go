package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	var bare bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a repository",
		Long:  "Create the configuration directory and a repository at the resolved location. Initializing an existing repository only opens it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("bare") {
				a.cfg.Bare = bare
			}
			a.cfg.Create = true
			store, err := a.openStore(true)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if a.jsonMode {
				return writeJSON(out, map[string]any{
					"repo":   a.cfg.Repo,
					"branch": store.Branch(),
					"bare":   store.Bare(),
				})
			}
			fmt.Fprintln(out, "Repository initialized")
			fmt.Fprintln(out, "  repo:  ", a.cfg.Repo)
			fmt.Fprintln(out, "  branch:", store.Branch())
			return nil
		},
	}
	cmd.Flags().BoolVar(&bare, "bare", false, "keep repository metadata directly in the repository directory")
	return cmd
}
