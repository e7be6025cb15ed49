// Package tier implements the collection lifecycle across memory and
// storage. A collection is Hot (index resident in RAM), Warm (snapshot on
// local disk) or Cold (snapshot in object storage). Transitions follow two
// rules that hold everywhere: a collection's data is written to the target
// tier before its memory is released, and a collection is fully rebuilt in
// memory before any search is served from it.
package tier

import (
	"fmt"
	"time"

	"github.com/emberdb/ember/model"
)

// Tier identifies where a collection currently lives.
type Tier int

const (
	// TierHot means the index is resident in memory and serves directly.
	TierHot Tier = iota
	// TierWarm means the collection is a snapshot on local disk.
	TierWarm
	// TierCold means the collection is a snapshot in object storage.
	TierCold
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarm:
		return "warm"
	case TierCold:
		return "cold"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// Valid returns true for a known tier.
func (t Tier) Valid() bool {
	return t >= TierHot && t <= TierCold
}

// State is the durable lifecycle record of one collection.
type State struct {
	CollectionID model.CollectionID `json:"collection_id"`
	Tier         Tier               `json:"tier"`

	// Pinned collections are exempt from demotion.
	Pinned bool `json:"pinned"`

	// LastAccessedAt is the time of the most recent read.
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// AccessCount counts reads within the current access window. It resets
	// when the window expires or the collection is promoted.
	AccessCount uint64 `json:"access_count"`

	// AccessWindowStart marks the beginning of the current access window.
	AccessWindowStart time.Time `json:"access_window_start"`

	// WarmLocation is the snapshot blob name in the warm store, set while
	// the collection is Warm.
	WarmLocation string `json:"warm_location,omitempty"`

	// SnapshotRef is the snapshot blob name in the cold store, set while
	// the collection is Cold.
	SnapshotRef string `json:"snapshot_ref,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}
