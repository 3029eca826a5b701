package main

import (
	"fmt"
	"io"
	"path"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/churro/pkg/churro"
	"github.com/mesh-intelligence/churro/pkg/types"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <path>",
		Short: "Print the stored unit of a record at the branch head",
		Long:  "Print the stored unit of the object or folder at path. The root folder is \"/\".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := cleanPath(args[0])

			store, err := a.openStore(false)
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := headSnapshot(store)
			if err != nil {
				return err
			}
			if snap == nil {
				return fmt.Errorf("%w: %s", types.ErrNotFound, p)
			}
			unit, err := findUnit(snap, p)
			if err != nil {
				return err
			}

			r, err := snap.Open(unit)
			if err != nil {
				return fmt.Errorf("%w: %w", errStorage, err)
			}
			defer r.Close()
			_, err = io.Copy(cmd.OutOrStdout(), r)
			return err
		},
	}
}

// findUnit returns the unit holding the record at p: the object unit when
// there is one, else the folder marker.
func findUnit(s types.Storage, p string) (string, error) {
	var candidates []string
	if p != "/" {
		candidates = append(candidates, p+churro.Ext)
	}
	candidates = append(candidates, path.Join(p, churro.FolderMarker))
	for _, c := range candidates {
		ok, err := s.Exists(c)
		if err != nil {
			return "", fmt.Errorf("%w: %w", errStorage, err)
		}
		if ok {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", types.ErrNotFound, p)
}
