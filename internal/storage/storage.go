// Package storage provides object storage abstractions for the pipeline's
// landing, quarantine, and archive zones.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrReadFailed     = errors.New("read failed")
	ErrWriteFailed    = errors.New("write failed")
	ErrMoveFailed     = errors.New("move failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts the blob store the pipeline reads landed files
// from and writes quarantined/archived objects to.
// Implementations include S3 and the local filesystem for testing.
type ObjectStorage interface {
	// Read returns the full contents of an object.
	// Returns ErrObjectNotFound if the object does not exist.
	Read(ctx context.Context, objectPath string) ([]byte, error)

	// Write stores data at objectPath, overwriting any existing object.
	Write(ctx context.Context, objectPath string, data []byte) error

	// Move relocates an object from src to dst.
	// Returns ErrObjectNotFound if src does not exist.
	Move(ctx context.Context, src, dst string) error

	// Delete removes an object. Deleting a missing object is a no-op,
	// matching S3 semantics, so re-triggered invocations stay safe.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// List returns all object paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
