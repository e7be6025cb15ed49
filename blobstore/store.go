// Package blobstore abstracts where serialized collection snapshots live.
// The warm tier writes to a local filesystem store, the cold tier to an
// object store. Blobs are immutable: a Put replaces the whole object.
package blobstore

import (
	"context"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for reading and writing immutable snapshot blobs.
type Store interface {
	// Put writes a blob atomically, replacing any existing blob of the
	// same name. A blob must never be observable in a partially written
	// state.
	Put(ctx context.Context, name string, data []byte) error

	// Get reads a whole blob, or ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)

	// Delete removes a blob. Deleting an absent blob is a no-op.
	Delete(ctx context.Context, name string) error

	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
