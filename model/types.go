package model

import (
	"time"
)

// Metadata is the user-defined structured payload attached to a document.
type Metadata map[string]any

// VectorDocument is a single vector record stored in an index.
// Documents are immutable once inserted; an update is a delete plus insert.
type VectorDocument struct {
	// DocID is the unique, time-ordered identifier within the collection.
	DocID DocumentID `json:"doc_id"`

	// ExternalID is an optional caller-supplied identifier.
	ExternalID string `json:"external_id,omitempty"`

	// Vector is the dense embedding. Its length must equal the collection
	// dimension.
	Vector []float32 `json:"vector"`

	// Metadata is an optional structured payload.
	Metadata Metadata `json:"metadata,omitempty"`

	// InsertedAt is the insertion timestamp.
	InsertedAt time.Time `json:"inserted_at"`
}

// NewVectorDocument creates a document with a fresh id and the current time.
func NewVectorDocument(vector []float32) VectorDocument {
	return VectorDocument{
		DocID:      NewDocumentID(),
		Vector:     vector,
		InsertedAt: time.Now().UTC(),
	}
}

// WithExternalID sets the external identifier.
func (d VectorDocument) WithExternalID(id string) VectorDocument {
	d.ExternalID = id
	return d
}

// WithMetadata sets the metadata payload.
func (d VectorDocument) WithMetadata(m Metadata) VectorDocument {
	d.Metadata = m
	return d
}

// Dimension returns the length of the stored vector.
func (d VectorDocument) Dimension() int {
	return len(d.Vector)
}

// SearchResult is a single match produced by a search call.
// Results are ephemeral and never persisted.
type SearchResult struct {
	// DocID is the matched document id.
	DocID DocumentID `json:"doc_id"`

	// ExternalID is the matched document's external id, if set.
	ExternalID string `json:"external_id,omitempty"`

	// Score is the metric-dependent distance or similarity. It is always
	// finite: ascending order for L2, descending for Cosine/DotProduct.
	Score float32 `json:"score"`

	// Metadata is the matched document's payload, if any.
	Metadata Metadata `json:"metadata,omitempty"`
}
