package model

import (
	"github.com/google/uuid"
)

// DocumentID uniquely identifies a vector document within a collection.
// IDs are UUIDv7, so they sort by creation time.
type DocumentID = uuid.UUID

// CollectionID uniquely identifies a collection in the registry.
type CollectionID = uuid.UUID

// NewDocumentID returns a fresh time-ordered document id.
func NewDocumentID() DocumentID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the random source is broken; fall back to v4
		// rather than propagating an error through every insert path.
		return uuid.New()
	}
	return id
}

// NewCollectionID returns a fresh time-ordered collection id.
func NewCollectionID() CollectionID {
	return NewDocumentID()
}
