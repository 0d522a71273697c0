package custody

import "errors"

var (
	// ErrUnauthorized indicates a missing or rejected bearer token.
	ErrUnauthorized = errors.New("custody: unauthorized")

	// ErrFileExists indicates an upload under a name that is already registered.
	ErrFileExists = errors.New("custody: file already exists")

	// ErrFileNotFound indicates no file is registered under the name.
	ErrFileNotFound = errors.New("custody: file not found")

	// ErrInvalidName indicates an empty or path-like file name.
	ErrInvalidName = errors.New("custody: invalid file name")

	// ErrStorage indicates the blob store or index failed.
	ErrStorage = errors.New("custody: storage failure")

	// ErrNilParam indicates a required dependency was nil.
	ErrNilParam = errors.New("custody: required parameter is nil")
)
