package storage

import "errors"

var (
	// ErrNotFound indicates no object exists for the given id.
	ErrNotFound = errors.New("storage: object not found")

	// ErrInvalidID indicates the object id is not a UUID.
	ErrInvalidID = errors.New("storage: invalid object id")

	// ErrIOFailure indicates a file read/write error.
	ErrIOFailure = errors.New("storage: I/O failure")

	// ErrEmptyContent indicates an attempt to store empty content.
	ErrEmptyContent = errors.New("storage: content is empty")

	// ErrTooLarge indicates content above the store's size limit.
	ErrTooLarge = errors.New("storage: content exceeds size limit")

	// ErrInvalidBaseDir indicates the base directory path is invalid.
	ErrInvalidBaseDir = errors.New("storage: invalid base directory")

	// ErrNilReader indicates a nil content reader.
	ErrNilReader = errors.New("storage: content reader is nil")
)
