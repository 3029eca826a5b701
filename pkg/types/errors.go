package types

import "errors"

// Persistence errors surfaced by folders, properties and the codec.
var (
	ErrNotFound      = errors.New("child not found")
	ErrInvalidValue  = errors.New("invalid property value")
	ErrUnencodable   = errors.New("value cannot be encoded")
	ErrUnknownType   = errors.New("unknown record type")
	ErrDuplicateType = errors.New("record type already defined")
	ErrNotFolder     = errors.New("record is not a folder")
	ErrUnbound       = errors.New("record was not created through its type")
	ErrInvalidName   = errors.New("invalid child name")
	ErrUndeclared    = errors.New("property not declared by record type")
)

// Session and transaction errors.
var (
	ErrSessionClosed = errors.New("session is closed")
	ErrConflict      = errors.New("branch head moved during transaction")
)

// Repository errors.
var (
	ErrRepoEmpty    = errors.New("repository location must not be empty")
	ErrRepoNotFound = errors.New("repository not found")
	ErrHeadInvalid  = errors.New("invalid head name")
	ErrNotExist     = errors.New("path does not exist")
	ErrIsDir        = errors.New("path is a directory")
)
