// Package types defines the storage provider contract, repository
// configuration, and the standard error values shared by the churro
// persistence layer and its storage backends.
package types
