package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/churro/pkg/churro"
)

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a record and everything below it, then commit",
		Long: `Remove the record at path in one commit.

Folders along the path are loaded through the built-in folder type only, so
they must be plain folders. The removed record itself is never loaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := splitPath(args[0])
			if len(names) == 0 {
				return errors.New("cannot remove the root folder")
			}

			store, err := a.openStore(false)
			if err != nil {
				return err
			}
			c := churro.New(store, churro.WithLogger(a.log))
			defer c.Close()

			folder, err := c.Root()
			if err != nil {
				return fmt.Errorf("%w: %w", errStorage, err)
			}
			for _, name := range names[:len(names)-1] {
				if folder, err = folder.GetFolder(name); err != nil {
					return err
				}
			}
			if err := folder.Delete(names[len(names)-1]); err != nil {
				return err
			}
			if err := c.Commit(context.Background()); err != nil {
				return fmt.Errorf("%w: %w", errStorage, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "removed", cleanPath(args[0]))
			return nil
		},
	}
}
