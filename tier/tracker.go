package tier

import (
	"sync"
	"time"

	"github.com/emberdb/ember/model"
)

// Tracker records collection accesses on the read path. Recording is a map
// update under a mutex and stays well under a millisecond; storage is never
// touched here. The scheduler drains the tracker into durable state on its
// own cadence.
type Tracker struct {
	mu     sync.Mutex
	window time.Duration
	stats  map[model.CollectionID]access
	now    func() time.Time
}

type access struct {
	lastAccessedAt time.Time
	count          uint64
	windowStart    time.Time
}

// NewTracker creates a tracker counting accesses within the given window.
func NewTracker(window time.Duration) *Tracker {
	return &Tracker{
		window: window,
		stats:  make(map[model.CollectionID]access),
		now:    time.Now,
	}
}

// Record notes a single access. When the current window has expired the
// count restarts at one.
func (t *Tracker) Record(id model.CollectionID) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.stats[id]
	if !ok || now.Sub(a.windowStart) > t.window {
		t.stats[id] = access{lastAccessedAt: now, count: 1, windowStart: now}
		return
	}

	a.lastAccessedAt = now
	a.count++
	t.stats[id] = a
}

// Snapshot returns the current counters for one collection. The zero value
// means the collection has not been accessed since the last reset.
func (t *Tracker) Snapshot(id model.CollectionID) (lastAccessedAt time.Time, count uint64, windowStart time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a := t.stats[id]
	return a.lastAccessedAt, a.count, a.windowStart
}

// Reset clears the counters for one collection, typically right after a
// promotion so the next window starts fresh.
func (t *Tracker) Reset(id model.CollectionID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.stats, id)
}

// Forget drops a collection entirely, used when it is deleted.
func (t *Tracker) Forget(id model.CollectionID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.stats, id)
}
