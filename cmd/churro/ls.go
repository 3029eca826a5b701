package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/churro/pkg/churro"
)

type lsEntry struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func newLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List the children of a folder at the branch head",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) == 1 {
				dir = cleanPath(args[0])
			}

			store, err := a.openStore(false)
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := headSnapshot(store)
			if err != nil {
				return err
			}
			entries := []lsEntry{}
			if snap != nil {
				children, err := churro.ListStored(snap, dir)
				if err != nil {
					return fmt.Errorf("%w: %w", errStorage, err)
				}
				for _, c := range children {
					entries = append(entries, lsEntry{Name: c.Name, Kind: c.Kind.String()})
				}
			}

			out := cmd.OutOrStdout()
			if a.jsonMode {
				return writeJSON(out, entries)
			}
			for _, e := range entries {
				if e.Kind == churro.KindFolder.String() {
					fmt.Fprintln(out, e.Name+"/")
				} else {
					fmt.Fprintln(out, e.Name)
				}
			}
			return nil
		},
	}
}
