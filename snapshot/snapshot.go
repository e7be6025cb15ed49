// Package snapshot serializes a collection's full contents into a single
// immutable blob. Snapshots are written before a collection is evicted from
// memory and decoded when it is rehydrated; a snapshot that fails integrity
// verification must never be served.
package snapshot

import (
	"time"

	"github.com/emberdb/ember/distance"
	"github.com/emberdb/ember/index"
	"github.com/emberdb/ember/model"
)

// Snapshot is the serialized form of a collection: enough to reconstruct
// an equivalent index from scratch.
type Snapshot struct {
	CollectionID model.CollectionID     `json:"collection_id"`
	Dimension    int                    `json:"dimension"`
	Metric       distance.Metric        `json:"metric"`
	Kind         index.Kind             `json:"kind"`
	CreatedAt    time.Time              `json:"created_at"`
	Documents    []model.VectorDocument `json:"documents"`
}

// New captures a snapshot of the given documents.
func New(id model.CollectionID, dim int, metric distance.Metric, kind index.Kind, docs []model.VectorDocument) *Snapshot {
	return &Snapshot{
		CollectionID: id,
		Dimension:    dim,
		Metric:       metric,
		Kind:         kind,
		CreatedAt:    time.Now().UTC(),
		Documents:    docs,
	}
}
