// Package index provides the vector index abstraction shared by the exact
// and approximate backends.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/emberdb/ember/distance"
	"github.com/emberdb/ember/model"
)

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("k must be positive")

// ErrNotFound is returned by Get when no document has the requested id.
var ErrNotFound = errors.New("document not found")

// ErrEmptyVector is returned when a zero-length vector is inserted.
var ErrEmptyVector = errors.New("vector must not be empty")

// ErrInvalidVector is returned when a vector contains NaN or Inf components.
var ErrInvalidVector = errors.New("vector components must be finite")

// ErrDimensionMismatch is a named error type for dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrDuplicateID indicates an insert with a doc id that is already present.
type ErrDuplicateID struct {
	ID model.DocumentID
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate document id: %s", e.ID)
}

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// Kind selects the index backend for a collection at creation time.
type Kind int

const (
	// KindFlat is the exact linear-scan index (100% recall).
	KindFlat Kind = iota
	// KindHNSW is the approximate graph index (sub-linear search).
	KindHNSW
)

func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "flat"
	case KindHNSW:
		return "hnsw"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Index is the capability set implemented by all vector index backends.
// Implementations are safe for concurrent use: many readers or one writer.
type Index interface {
	// Insert adds a document. The vector length must equal the index
	// dimension and the doc id must not already be present.
	Insert(ctx context.Context, doc model.VectorDocument) error

	// InsertBatch adds multiple documents under a single exclusive section.
	// Validation failures reject the whole batch before any mutation.
	InsertBatch(ctx context.Context, docs []model.VectorDocument) error

	// Search returns the k nearest documents to query, sorted by score per
	// the metric's convention with ties broken by ascending doc id.
	Search(ctx context.Context, query []float32, k int) ([]model.SearchResult, error)

	// Delete removes a document. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id model.DocumentID) error

	// Get returns the stored document, or ErrNotFound.
	Get(ctx context.Context, id model.DocumentID) (model.VectorDocument, error)

	// Count returns the number of stored documents.
	Count() int

	// Clear removes all documents.
	Clear(ctx context.Context) error

	// Documents returns a copy of every stored document. Used by the tier
	// manager to serialize a collection out of memory.
	Documents(ctx context.Context) ([]model.VectorDocument, error)

	// Dimension returns the configured vector dimension.
	Dimension() int

	// Metric returns the configured distance metric.
	Metric() distance.Metric
}

// Rebuilder is implemented by indexes that build an expensive search
// structure lazily. Rebuild is idempotent: when the structure is already
// current it returns immediately without reconstructing anything.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

// ValidateBasicOptions validates dimension and metric shared by all backends.
func ValidateBasicOptions(dimension int, metric distance.Metric) error {
	if dimension <= 0 {
		return &ErrInvalidDimension{Dimension: dimension}
	}
	if !metric.Valid() {
		return fmt.Errorf("unsupported metric: %v", metric)
	}
	return nil
}
