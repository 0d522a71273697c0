package index

import "errors"

var (
	// ErrUnavailable indicates the index backend could not be reached or failed.
	ErrUnavailable = errors.New("index: unavailable")

	// ErrFileNotFound indicates no file is registered under the given name.
	ErrFileNotFound = errors.New("index: file not found")

	// ErrNotFound indicates no cross reference exists for the given block hash.
	ErrNotFound = errors.New("index: cross reference not found")

	// ErrInvalidReference indicates a cross reference without a block hash.
	ErrInvalidReference = errors.New("index: invalid cross reference")
)
