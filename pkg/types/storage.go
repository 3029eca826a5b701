package types

import "io"

// Storage is the view of a versioned filesystem that the persistence layer
// reads and writes within one transaction. Paths are slash separated;
// absolute paths start at the repository root, relative paths resolve
// against the working directory set by Cd.
//
// Writes are staged. They become durable only when the transaction the view
// belongs to commits, and all of them become durable together.
type Storage interface {
	// Exists reports whether a file or directory exists at path.
	Exists(path string) (bool, error)

	// IsDir reports whether path exists and is a directory.
	IsDir(path string) (bool, error)

	// List returns the entry names of the directory at path, sorted.
	List(path string) ([]string, error)

	// Mkdir creates the directory at path along with missing parents.
	Mkdir(path string) error

	// RemoveAll removes path and everything below it.
	RemoveAll(path string) error

	// Remove removes the single file at path.
	// Returns ErrNotExist if there is no such file.
	Remove(path string) error

	// Open opens the file at path for reading.
	// Returns ErrNotExist if there is no such file.
	Open(path string) (io.ReadCloser, error)

	// Create opens the file at path for writing, truncating any previous
	// content. The content is visible to readers once the writer is closed.
	Create(path string) (io.WriteCloser, error)

	// Cd runs fn with the working directory set to path and restores the
	// previous working directory afterwards.
	Cd(path string, fn func() error) error
}
