package hashing

import "errors"

var (
	// ErrInvalidInput indicates the value or stream could not be hashed.
	ErrInvalidInput = errors.New("hashing: invalid input")

	// ErrUnsupportedValue indicates a value that has no canonical JSON form.
	ErrUnsupportedValue = errors.New("hashing: unsupported value")
)
