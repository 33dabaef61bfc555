package adapter

import "errors"

var (
	// ErrMissingIdentity is returned when a connection is registered without an identity.
	ErrMissingIdentity = errors.New("compute: connection is missing an identity")

	// ErrAlreadyRegistered is returned when a connection identity is registered twice.
	ErrAlreadyRegistered = errors.New("compute: connection is already registered")

	// ErrUnknownConnection is returned when an operation references an unregistered identity.
	ErrUnknownConnection = errors.New("compute: unknown connection")

	// ErrNotFound is returned when a record doesn't exist or is soft-deleted.
	ErrNotFound = errors.New("compute: record not found")

	// ErrAlreadyExists is returned when creating a record with an existing primary key.
	ErrAlreadyExists = errors.New("compute: record already exists")

	// ErrMissingAttribute is returned when a required attribute is absent on create.
	ErrMissingAttribute = errors.New("compute: missing required attribute")

	// ErrTooManyCombinations is returned when a where clause expands past Config.MaxCombinations.
	ErrTooManyCombinations = errors.New("compute: where clause expands to too many combinations")

	// ErrInvalidMigrate is returned for an unknown migrate strategy.
	ErrInvalidMigrate = errors.New("compute: invalid migrate strategy")
)
