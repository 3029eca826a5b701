package churro

import (
	"path"
	"strings"
)

// ResourcePath returns the storage path of e followed by elements. The path
// is derived from the parent chain on every call, so it follows records
// that move between folders. The root is "/".
func ResourcePath(e Entity, elements ...string) string {
	var names []string
	for o := e.object(); o.parent != nil; o = o.parent {
		names = append(names, o.name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	names = append(names, elements...)
	return "/" + strings.Join(names, "/")
}

func joinPath(base string, elements ...string) string {
	return path.Join(append([]string{base}, elements...)...)
}

// unitPath returns the path of the unit holding the child name of the
// folder stored at dir.
func unitPath(dir, name string, kind Kind) string {
	if kind == KindFolder {
		return joinPath(dir, name, FolderMarker)
	}
	return joinPath(dir, name+Ext)
}

// childPath returns the path a child occupies in storage: the unit for an
// object, the directory for a folder.
func childPath(dir, name string, kind Kind) string {
	if kind == KindFolder {
		return joinPath(dir, name)
	}
	return joinPath(dir, name+Ext)
}
