package churro

import "github.com/mesh-intelligence/churro/pkg/types"

// Errors reported by the persistence layer. They are the values defined in
// package types so that storage backends and callers share one set.
var (
	ErrNotFound      = types.ErrNotFound
	ErrInvalidValue  = types.ErrInvalidValue
	ErrUnencodable   = types.ErrUnencodable
	ErrUnknownType   = types.ErrUnknownType
	ErrDuplicateType = types.ErrDuplicateType
	ErrNotFolder     = types.ErrNotFolder
	ErrUnbound       = types.ErrUnbound
	ErrInvalidName   = types.ErrInvalidName
	ErrUndeclared    = types.ErrUndeclared
	ErrSessionClosed = types.ErrSessionClosed
)
