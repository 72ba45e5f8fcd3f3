package asset

import "errors"

var (
	// ErrArchetypeNotFound means an asset declares an archetype that is not
	// in the container.
	ErrArchetypeNotFound = errors.New("archetype not found")
	// ErrInvalidPath means a serialized path reaches a node of the wrong kind.
	ErrInvalidPath = errors.New("invalid object path")
	// ErrNilArgument means a required argument was nil.
	ErrNilArgument = errors.New("required argument is nil")
	// ErrInvalidArgument means an argument does not fit the operation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyInitialized means Initialize was called twice.
	ErrAlreadyInitialized = errors.New("property graph already initialized")
	// ErrConflictingRegistration means an asset type was registered twice
	// with different entries.
	ErrConflictingRegistration = errors.New("conflicting registration")
)
