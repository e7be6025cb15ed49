package tier

import (
	"errors"
	"fmt"

	"github.com/emberdb/ember/model"
)

// ErrStorageUnavailable indicates a transient storage failure. The
// transition that hit it can be retried; the collection's previous state is
// intact.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrCorruption indicates a snapshot that failed integrity verification.
// It is non-retryable: the collection must not be served from that blob.
var ErrCorruption = errors.New("snapshot corruption")

// ErrTransitionAborted indicates a tier transition that stopped before
// completion. The collection remains in its previous tier.
var ErrTransitionAborted = errors.New("transition aborted")

// ErrNotRegistered indicates an operation on an unknown collection.
type ErrNotRegistered struct {
	ID model.CollectionID
}

func (e *ErrNotRegistered) Error() string {
	return fmt.Sprintf("collection not registered: %s", e.ID)
}

// ErrPinned indicates a demotion attempt on a pinned collection.
type ErrPinned struct {
	ID model.CollectionID
}

func (e *ErrPinned) Error() string {
	return fmt.Sprintf("collection is pinned: %s", e.ID)
}
