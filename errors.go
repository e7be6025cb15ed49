package ember

import (
	"errors"
	"fmt"

	"github.com/emberdb/ember/index"
	"github.com/emberdb/ember/tier"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrCollectionNotFound is returned when a collection name is unknown.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is returned when creating a collection whose name
	// is taken.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrClosed is returned by operations on a closed database.
	ErrClosed = errors.New("database is closed")

	// ErrStorageUnavailable indicates a transient storage failure; the
	// operation can be retried.
	ErrStorageUnavailable = tier.ErrStorageUnavailable

	// ErrCorruption indicates a snapshot that failed integrity
	// verification. It is not retryable.
	ErrCorruption = tier.ErrCorruption

	// ErrTransitionAborted indicates a tier transition that stopped before
	// completion; the collection kept its previous tier.
	ErrTransitionAborted = tier.ErrTransitionAborted
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrDuplicateID indicates an insert whose document id already exists.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDuplicateID struct {
	ID    string
	cause error
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate document id: %s", e.ID)
}

func (e *ErrDuplicateID) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, index.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Dimension and argument normalization.
	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var dup *index.ErrDuplicateID
	if errors.As(err, &dup) {
		return &ErrDuplicateID{ID: dup.ID.String(), cause: err}
	}
	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	// Tier errors already wrap the package sentinels.
	return err
}
