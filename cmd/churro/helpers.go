package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// splitPath returns the names along a slash separated repository path. The
// root has none.
func splitPath(p string) []string {
	var names []string
	for _, name := range strings.Split(p, "/") {
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// cleanPath returns p in its canonical absolute form.
func cleanPath(p string) string {
	return "/" + strings.Join(splitPath(p), "/")
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
