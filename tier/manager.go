package tier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/emberdb/ember/blobstore"
	"github.com/emberdb/ember/distance"
	"github.com/emberdb/ember/index"
	"github.com/emberdb/ember/model"
	"github.com/emberdb/ember/snapshot"
)

// IndexFactory creates an empty index for a collection. The manager calls
// it on registration and again on every rehydration.
type IndexFactory func() (index.Index, error)

// CollectionInfo is the immutable shape of a collection.
type CollectionInfo struct {
	Name      string
	Dimension int
	Metric    distance.Metric
	Kind      index.Kind
}

// Options contains configuration options for the manager.
type Options struct {
	// Policy holds the demotion and promotion thresholds.
	Policy Policy

	// WarmCompression is the snapshot codec for the warm tier. LZ4 keeps
	// local-disk round trips cheap.
	WarmCompression snapshot.Compression

	// ColdCompression is the snapshot codec for the cold tier. Zstd keeps
	// object-storage bills down.
	ColdCompression snapshot.Compression

	// ColdPromotionTimeout bounds a Cold to Hot rehydration. When it
	// expires the transition aborts and the collection stays Cold.
	ColdPromotionTimeout time.Duration

	// StorageBytesPerSec throttles snapshot reads and writes so background
	// transitions do not saturate storage. 0 means unlimited.
	StorageBytesPerSec int

	// Logger receives structured transition logs.
	Logger *slog.Logger
}

// DefaultOptions contains the default configuration options for the manager.
var DefaultOptions = Options{
	Policy:               DefaultPolicy(),
	WarmCompression:      snapshot.CompressionLZ4,
	ColdCompression:      snapshot.CompressionZstd,
	ColdPromotionTimeout: 30 * time.Second,
	StorageBytesPerSec:   0,
}

// Manager drives collections through the Hot/Warm/Cold state machine. All
// transitions for one collection serialize on that collection's lock, so a
// demotion can never interleave with a rehydration.
type Manager struct {
	opts    Options
	states  StateStore
	warm    blobstore.Store
	cold    blobstore.Store
	tracker *Tracker
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.RWMutex
	collections map[model.CollectionID]*collection
}

type collection struct {
	mu      sync.RWMutex
	id      model.CollectionID
	info    CollectionInfo
	factory IndexFactory

	// idx is non-nil exactly while the collection is Hot.
	idx   index.Index
	state State
}

// NewManager creates a tier manager on top of the given state store, warm
// store and cold store.
func NewManager(states StateStore, warm, cold blobstore.Store, optFns ...func(o *Options)) (*Manager, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if !opts.WarmCompression.Valid() || !opts.ColdCompression.Valid() {
		return nil, fmt.Errorf("invalid snapshot compression")
	}
	if opts.ColdPromotionTimeout <= 0 {
		return nil, fmt.Errorf("cold promotion timeout must be positive, got %v", opts.ColdPromotionTimeout)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &Manager{
		opts:        opts,
		states:      states,
		warm:        warm,
		cold:        cold,
		tracker:     NewTracker(opts.Policy.AccessWindow),
		logger:      opts.Logger,
		now:         time.Now,
		collections: make(map[model.CollectionID]*collection),
	}
	if opts.StorageBytesPerSec > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(opts.StorageBytesPerSec), opts.StorageBytesPerSec)
	}
	return m, nil
}

// WithPolicy sets the demotion and promotion thresholds.
func WithPolicy(p Policy) func(o *Options) {
	return func(o *Options) { o.Policy = p }
}

// WithColdPromotionTimeout bounds Cold to Hot rehydrations.
func WithColdPromotionTimeout(d time.Duration) func(o *Options) {
	return func(o *Options) { o.ColdPromotionTimeout = d }
}

// WithStorageThrottle limits snapshot transfer throughput in bytes/second.
func WithStorageThrottle(bytesPerSec int) func(o *Options) {
	return func(o *Options) { o.StorageBytesPerSec = bytesPerSec }
}

// WithCompression sets the snapshot codecs for the warm and cold tiers.
func WithCompression(warmC, coldC snapshot.Compression) func(o *Options) {
	return func(o *Options) {
		o.WarmCompression = warmC
		o.ColdCompression = coldC
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// Register adds a collection to the manager. A collection with persisted
// Warm or Cold state is adopted where it is; anything else starts Hot with
// a fresh empty index.
func (m *Manager) Register(ctx context.Context, id model.CollectionID, info CollectionInfo, factory IndexFactory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[id]; ok {
		return fmt.Errorf("collection already registered: %s", id)
	}

	c := &collection{id: id, info: info, factory: factory}

	persisted, err := m.states.Get(ctx, id)
	var notReg *ErrNotRegistered
	switch {
	case err == nil && (persisted.Tier == TierWarm || persisted.Tier == TierCold):
		// The snapshot survives a restart; memory does not.
		c.state = persisted
	case err == nil || errors.As(err, &notReg):
		now := m.now()
		idx, err := factory()
		if err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		c.idx = idx
		c.state = State{
			CollectionID:      id,
			Tier:              TierHot,
			LastAccessedAt:    now,
			AccessWindowStart: now,
			UpdatedAt:         now,
		}
		if err := m.states.Put(ctx, c.state); err != nil {
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
	default:
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	m.collections[id] = c
	return nil
}

// Drop removes a collection, its snapshots and its persisted state.
func (m *Manager) Drop(ctx context.Context, id model.CollectionID) error {
	m.mu.Lock()
	c, ok := m.collections[id]
	if !ok {
		m.mu.Unlock()
		return &ErrNotRegistered{ID: id}
	}
	delete(m.collections, id)
	m.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.WarmLocation != "" {
		if err := m.warm.Delete(ctx, c.state.WarmLocation); err != nil {
			m.logger.WarnContext(ctx, "failed to delete warm snapshot", "collection", id, "error", err)
		}
	}
	if c.state.SnapshotRef != "" {
		if err := m.cold.Delete(ctx, c.state.SnapshotRef); err != nil {
			m.logger.WarnContext(ctx, "failed to delete cold snapshot", "collection", id, "error", err)
		}
	}
	m.tracker.Forget(id)

	if err := m.states.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	c.idx = nil
	return nil
}

// Acquire returns the collection's resident index, rehydrating it first when
// it is Warm or Cold. The access is recorded before any tier work so the
// read path cost stays flat.
func (m *Manager) Acquire(ctx context.Context, id model.CollectionID) (index.Index, error) {
	c, err := m.get(id)
	if err != nil {
		return nil, err
	}

	m.tracker.Record(id)

	c.mu.RLock()
	if c.state.Tier == TierHot && c.idx != nil {
		idx := c.idx
		c.mu.RUnlock()
		return idx, nil
	}
	c.mu.RUnlock()

	if err := m.Promote(ctx, id); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state.Tier != TierHot || c.idx == nil {
		return nil, fmt.Errorf("%w: collection %s not resident after promotion", ErrTransitionAborted, id)
	}
	return c.idx, nil
}

// Promote moves a Warm or Cold collection to Hot. Promoting a Hot
// collection is a no-op. Cold promotions bypass the warm tier entirely and
// run under the cold promotion timeout.
func (m *Manager) Promote(ctx context.Context, id model.CollectionID) error {
	c, err := m.get(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Tier {
	case TierHot:
		return nil

	case TierWarm:
		return m.rehydrateLocked(ctx, c, m.warm, c.state.WarmLocation)

	case TierCold:
		ctx, cancel := context.WithTimeout(ctx, m.opts.ColdPromotionTimeout)
		defer cancel()
		return m.rehydrateLocked(ctx, c, m.cold, c.state.SnapshotRef)

	default:
		return fmt.Errorf("%w: unknown tier %v", ErrTransitionAborted, c.state.Tier)
	}
}

// PromoteToWarm moves a Cold collection one tier up, staging its snapshot
// back in the warm store without loading anything into memory. Hot and Warm
// collections are a no-op.
func (m *Manager) PromoteToWarm(ctx context.Context, id model.CollectionID) error {
	c, err := m.get(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Tier {
	case TierHot, TierWarm:
		return nil
	case TierCold:
		return m.thawLocked(ctx, c)
	default:
		return fmt.Errorf("%w: unknown tier %v", ErrTransitionAborted, c.state.Tier)
	}
}

// Demote moves a collection one tier down: Hot to Warm, or Warm to Cold.
// Pinned collections refuse.
func (m *Manager) Demote(ctx context.Context, id model.CollectionID) error {
	c, err := m.get(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Pinned {
		return &ErrPinned{ID: id}
	}

	switch c.state.Tier {
	case TierHot:
		return m.evictLocked(ctx, c)
	case TierWarm:
		return m.archiveLocked(ctx, c)
	default:
		return fmt.Errorf("%w: cannot demote from %v", ErrTransitionAborted, c.state.Tier)
	}
}

// Pin exempts a collection from demotion until Unpin.
func (m *Manager) Pin(ctx context.Context, id model.CollectionID) error {
	return m.setPinned(ctx, id, true)
}

// Unpin re-enables demotion for a collection.
func (m *Manager) Unpin(ctx context.Context, id model.CollectionID) error {
	return m.setPinned(ctx, id, false)
}

func (m *Manager) setPinned(ctx context.Context, id model.CollectionID, pinned bool) error {
	c, err := m.get(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Pinned == pinned {
		return nil
	}
	next := c.state
	next.Pinned = pinned
	next.UpdatedAt = m.now()
	if err := m.states.Put(ctx, next); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	c.state = next
	return nil
}

// State returns one collection's current state with live access counters
// folded in.
func (m *Manager) State(id model.CollectionID) (State, error) {
	c, err := m.get(id)
	if err != nil {
		return State{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return m.mergeTracker(c.state), nil
}

// States returns every collection's current state with live access counters
// folded in. The scheduler feeds these to the policy.
func (m *Manager) States() []State {
	m.mu.RLock()
	cols := make([]*collection, 0, len(m.collections))
	for _, c := range m.collections {
		cols = append(cols, c)
	}
	m.mu.RUnlock()

	states := make([]State, 0, len(cols))
	for _, c := range cols {
		c.mu.RLock()
		states = append(states, m.mergeTracker(c.state))
		c.mu.RUnlock()
	}
	return states
}

// Info returns the collection's immutable shape.
func (m *Manager) Info(id model.CollectionID) (CollectionInfo, error) {
	c, err := m.get(id)
	if err != nil {
		return CollectionInfo{}, err
	}
	return c.info, nil
}

// Policy returns the active thresholds.
func (m *Manager) Policy() Policy {
	return m.opts.Policy
}

func (m *Manager) get(id model.CollectionID) (*collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[id]
	if !ok {
		return nil, &ErrNotRegistered{ID: id}
	}
	return c, nil
}

func (m *Manager) mergeTracker(s State) State {
	lastAccessedAt, count, windowStart := m.tracker.Snapshot(s.CollectionID)
	if lastAccessedAt.After(s.LastAccessedAt) {
		s.LastAccessedAt = lastAccessedAt
	}
	if count > 0 {
		s.AccessCount = count
		s.AccessWindowStart = windowStart
	}
	return s
}

// evictLocked demotes Hot to Warm. The snapshot is durably written and the
// state persisted before the in-memory index is released; any failure
// leaves the collection Hot and serving.
func (m *Manager) evictLocked(ctx context.Context, c *collection) error {
	docs, err := c.idx.Documents(ctx)
	if err != nil {
		return fmt.Errorf("%w: read documents: %w", ErrTransitionAborted, err)
	}

	snap := snapshot.New(c.id, c.info.Dimension, c.info.Metric, c.info.Kind, docs)
	data, err := snapshot.Encode(snap, m.opts.WarmCompression)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", ErrTransitionAborted, err)
	}

	name := blobName("warm", c.id)
	if err := m.throttle(ctx, len(data)); err != nil {
		return fmt.Errorf("%w: %w", ErrTransitionAborted, err)
	}
	if err := m.warm.Put(ctx, name, data); err != nil {
		return fmt.Errorf("%w: write warm snapshot: %w", ErrStorageUnavailable, err)
	}

	next := m.mergeTracker(c.state)
	next.Tier = TierWarm
	next.WarmLocation = name
	next.UpdatedAt = m.now()
	if err := m.states.Put(ctx, next); err != nil {
		return fmt.Errorf("%w: persist state: %w", ErrStorageUnavailable, err)
	}

	// The snapshot is durable and the state recorded. Only now is it safe
	// to free memory.
	c.state = next
	c.idx = nil

	m.logger.InfoContext(ctx, "collection demoted",
		"collection", c.id, "from", TierHot, "to", TierWarm, "documents", len(docs), "bytes", len(data))
	return nil
}

// archiveLocked demotes Warm to Cold. The blob is copied to the cold store
// before the warm copy is removed; the blob format is self-describing so no
// re-encode is needed.
func (m *Manager) archiveLocked(ctx context.Context, c *collection) error {
	if err := m.throttle(ctx, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrTransitionAborted, err)
	}
	data, err := m.warm.Get(ctx, c.state.WarmLocation)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return fmt.Errorf("%w: warm snapshot missing: %w", ErrCorruption, err)
		}
		return fmt.Errorf("%w: read warm snapshot: %w", ErrStorageUnavailable, err)
	}

	name := blobName("cold", c.id)
	if err := m.throttle(ctx, len(data)); err != nil {
		return fmt.Errorf("%w: %w", ErrTransitionAborted, err)
	}
	if err := m.cold.Put(ctx, name, data); err != nil {
		return fmt.Errorf("%w: write cold snapshot: %w", ErrStorageUnavailable, err)
	}

	next := m.mergeTracker(c.state)
	next.Tier = TierCold
	next.SnapshotRef = name
	warmLocation := next.WarmLocation
	next.WarmLocation = ""
	next.UpdatedAt = m.now()
	if err := m.states.Put(ctx, next); err != nil {
		return fmt.Errorf("%w: persist state: %w", ErrStorageUnavailable, err)
	}
	c.state = next

	// The cold copy is authoritative now; losing this delete only leaks a
	// stale warm blob.
	if err := m.warm.Delete(ctx, warmLocation); err != nil {
		m.logger.WarnContext(ctx, "failed to delete warm snapshot after archive",
			"collection", c.id, "blob", warmLocation, "error", err)
	}

	m.logger.InfoContext(ctx, "collection demoted",
		"collection", c.id, "from", TierWarm, "to", TierCold, "bytes", len(data))
	return nil
}

// thawLocked promotes Cold to Warm, the inverse of archiveLocked. The warm
// copy is durable and the state persisted before the cold copy is removed;
// the blob moves verbatim, no decode happens on this path.
func (m *Manager) thawLocked(ctx context.Context, c *collection) error {
	if err := m.throttle(ctx, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrTransitionAborted, err)
	}
	data, err := m.cold.Get(ctx, c.state.SnapshotRef)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return fmt.Errorf("%w: cold snapshot missing: %w", ErrCorruption, err)
		}
		return fmt.Errorf("%w: read cold snapshot: %w", ErrStorageUnavailable, err)
	}

	name := blobName("warm", c.id)
	if err := m.throttle(ctx, len(data)); err != nil {
		return fmt.Errorf("%w: %w", ErrTransitionAborted, err)
	}
	if err := m.warm.Put(ctx, name, data); err != nil {
		return fmt.Errorf("%w: write warm snapshot: %w", ErrStorageUnavailable, err)
	}

	next := m.mergeTracker(c.state)
	next.Tier = TierWarm
	next.WarmLocation = name
	snapshotRef := next.SnapshotRef
	next.SnapshotRef = ""
	next.UpdatedAt = m.now()
	if err := m.states.Put(ctx, next); err != nil {
		return fmt.Errorf("%w: persist state: %w", ErrStorageUnavailable, err)
	}
	c.state = next

	// The warm copy is authoritative now; losing this delete only leaks a
	// stale cold blob.
	if err := m.cold.Delete(ctx, snapshotRef); err != nil {
		m.logger.WarnContext(ctx, "failed to delete cold snapshot after thaw",
			"collection", c.id, "blob", snapshotRef, "error", err)
	}

	m.logger.InfoContext(ctx, "collection promoted",
		"collection", c.id, "from", TierCold, "to", TierWarm, "bytes", len(data))
	return nil
}

// rehydrateLocked promotes a snapshot-backed collection to Hot. The index
// is fully rebuilt, including its search structure, before the collection
// flips tiers; a failure at any step leaves the previous state untouched.
func (m *Manager) rehydrateLocked(ctx context.Context, c *collection, store blobstore.Store, name string) error {
	from := c.state.Tier

	if err := m.throttle(ctx, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrTransitionAborted, err)
	}
	data, err := store.Get(ctx, name)
	if err != nil {
		switch {
		case errors.Is(err, blobstore.ErrNotFound):
			return fmt.Errorf("%w: snapshot missing: %w", ErrCorruption, err)
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			return fmt.Errorf("%w: %w", ErrTransitionAborted, err)
		default:
			return fmt.Errorf("%w: read snapshot: %w", ErrStorageUnavailable, err)
		}
	}

	snap, err := snapshot.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruption, err)
	}
	if snap.CollectionID != c.id || snap.Dimension != c.info.Dimension ||
		snap.Metric != c.info.Metric || snap.Kind != c.info.Kind {
		return fmt.Errorf("%w: snapshot does not match collection %s", ErrCorruption, c.id)
	}

	idx, err := c.factory()
	if err != nil {
		return fmt.Errorf("%w: create index: %w", ErrTransitionAborted, err)
	}
	if len(snap.Documents) > 0 {
		if err := idx.InsertBatch(ctx, snap.Documents); err != nil {
			return fmt.Errorf("%w: load documents: %w", ErrTransitionAborted, err)
		}
	}
	if rb, ok := idx.(index.Rebuilder); ok {
		if err := rb.Rebuild(ctx); err != nil {
			return fmt.Errorf("%w: rebuild index: %w", ErrTransitionAborted, err)
		}
	}

	now := m.now()
	next := c.state
	next.Tier = TierHot
	next.WarmLocation = ""
	next.SnapshotRef = ""
	next.LastAccessedAt = now
	next.AccessCount = 0
	next.AccessWindowStart = now
	next.UpdatedAt = now
	if err := m.states.Put(ctx, next); err != nil {
		return fmt.Errorf("%w: persist state: %w", ErrStorageUnavailable, err)
	}

	// The index is complete and the state recorded; flip and serve.
	c.state = next
	c.idx = idx
	m.tracker.Reset(c.id)

	if err := store.Delete(ctx, name); err != nil {
		m.logger.WarnContext(ctx, "failed to delete snapshot after promotion",
			"collection", c.id, "blob", name, "error", err)
	}

	m.logger.InfoContext(ctx, "collection promoted",
		"collection", c.id, "from", from, "to", TierHot, "documents", len(snap.Documents))
	return nil
}

// throttle charges n bytes against the storage rate limit, clamped to the
// limiter burst so oversized snapshots still pass.
func (m *Manager) throttle(ctx context.Context, n int) error {
	if m.limiter == nil {
		return nil
	}
	if n <= 0 {
		n = 1
	}
	if burst := m.limiter.Burst(); n > burst {
		n = burst
	}
	return m.limiter.WaitN(ctx, n)
}

func blobName(prefix string, id model.CollectionID) string {
	return fmt.Sprintf("%s/%s.snap", prefix, id)
}
