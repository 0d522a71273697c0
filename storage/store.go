// Package storage is the blob store holding custodied file content. Every
// object gets a random UUID identifier on Put; content is never addressed
// by name.
package storage

import (
	"io"
	"time"
)

// Object describes a stored blob.
type Object struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store holds file content keyed by a store-assigned identifier.
type Store interface {
	// Put stores the content read from r and returns the new object.
	Put(name, contentType string, r io.Reader) (*Object, error)

	// Open returns a reader over the object's content. The caller closes it.
	Open(id string) (io.ReadCloser, *Object, error)

	// Stat returns the object's description.
	Stat(id string) (*Object, error)

	// Has checks if an object exists.
	Has(id string) (bool, error)

	// Delete removes an object and its description.
	Delete(id string) error

	// List returns all stored object ids (for backup/export).
	List() ([]string, error)
}
