package ember

import (
	"context"
	"fmt"
	"sync"

	"github.com/emberdb/ember/blobstore"
	"github.com/emberdb/ember/distance"
	"github.com/emberdb/ember/index"
	"github.com/emberdb/ember/index/flat"
	"github.com/emberdb/ember/index/hnsw"
	"github.com/emberdb/ember/model"
	"github.com/emberdb/ember/tier"
)

// DB is the top-level handle: a registry of named collections on top of the
// tier manager. All methods are safe for concurrent use.
type DB struct {
	opts      options
	manager   *tier.Manager
	scheduler *tier.Scheduler

	mu     sync.RWMutex
	byName map[string]*Collection
	closed bool
}

// New creates a database. Without options everything lives in memory,
// including the warm and cold tiers; production setups pass WithDataDir
// plus a cold store and a durable state store.
func New(optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)

	warm := o.warmStore
	if warm == nil && o.dataDir != "" {
		local, err := blobstore.NewLocalStore(o.dataDir)
		if err != nil {
			return nil, err
		}
		warm = local
	}
	if warm == nil {
		warm = blobstore.NewMemoryStore()
	}
	cold := o.coldStore
	if cold == nil {
		cold = blobstore.NewMemoryStore()
	}
	states := o.stateStore
	if states == nil {
		states = tier.NewMemoryStateStore()
	}

	manager, err := tier.NewManager(states, warm, cold,
		tier.WithPolicy(o.policy),
		tier.WithCompression(o.warmCompression, o.coldCompression),
		tier.WithColdPromotionTimeout(o.coldPromotionTimeout),
		tier.WithStorageThrottle(o.storageBytesPerSec),
		tier.WithLogger(o.logger.Logger),
	)
	if err != nil {
		return nil, err
	}

	db := &DB{
		opts:      o,
		manager:   manager,
		scheduler: tier.NewScheduler(manager, o.schedulerOptions...),
		byName:    make(map[string]*Collection),
	}
	if !o.disableScheduler {
		db.scheduler.Start()
	}
	return db, nil
}

// CollectionOptions contains configuration options for a new collection.
type CollectionOptions struct {
	// Metric selects the distance metric used for scoring.
	Metric distance.Metric

	// Kind selects the index backend. The approximate graph index is the
	// default; the exact index trades speed for guaranteed recall.
	Kind index.Kind

	// Profile tunes the approximate index's speed/recall trade-off.
	// Ignored by the exact index.
	Profile hnsw.Profile
}

// DefaultCollectionOptions contains the default configuration options for a
// new collection.
var DefaultCollectionOptions = CollectionOptions{
	Metric:  distance.MetricCosine,
	Kind:    index.KindHNSW,
	Profile: hnsw.ProfileBalanced,
}

// WithMetric sets the distance metric.
func WithMetric(m distance.Metric) func(o *CollectionOptions) {
	return func(o *CollectionOptions) { o.Metric = m }
}

// WithIndexKind sets the index backend.
func WithIndexKind(k index.Kind) func(o *CollectionOptions) {
	return func(o *CollectionOptions) { o.Kind = k }
}

// WithProfile sets the approximate index's parameter preset.
func WithProfile(p hnsw.Profile) func(o *CollectionOptions) {
	return func(o *CollectionOptions) { o.Profile = p }
}

// CreateCollection creates a named collection with a fixed dimension. The
// collection starts Hot and empty.
func (db *DB) CreateCollection(ctx context.Context, name string, dimension int, optFns ...func(o *CollectionOptions)) (*Collection, error) {
	opts := DefaultCollectionOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrClosed
	}
	if _, ok := db.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}

	id := model.NewCollectionID()
	info := tier.CollectionInfo{
		Name:      name,
		Dimension: dimension,
		Metric:    opts.Metric,
		Kind:      opts.Kind,
	}
	factory, err := indexFactory(dimension, opts)
	if err != nil {
		return nil, err
	}
	if err := db.manager.Register(ctx, id, info, factory); err != nil {
		return nil, err
	}

	col := &Collection{db: db, id: id, info: info}
	db.byName[name] = col
	db.opts.logger.InfoContext(ctx, "collection created",
		"collection", name, "dimension", dimension, "metric", opts.Metric, "kind", opts.Kind)
	return col, nil
}

// Collection returns an existing collection by name.
func (db *DB) Collection(name string) (*Collection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrClosed
	}
	col, ok := db.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return col, nil
}

// DropCollection removes a collection, its snapshots and its state.
func (db *DB) DropCollection(ctx context.Context, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}
	col, ok := db.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err := db.manager.Drop(ctx, col.id); err != nil {
		return err
	}
	delete(db.byName, name)
	db.opts.logger.InfoContext(ctx, "collection dropped", "collection", name)
	return nil
}

// Collections returns the names of all collections.
func (db *DB) Collections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.byName))
	for name := range db.byName {
		names = append(names, name)
	}
	return names
}

// Close stops the background scheduler. Collections are left in their
// current tiers; demote collections explicitly before shutdown if their hot
// contents must survive a restart.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true
	db.scheduler.Stop()
	return nil
}

// RunSchedulerCycle runs one policy evaluation synchronously, independent of
// the background cadence. Useful in tests and admin tooling.
func (db *DB) RunSchedulerCycle(ctx context.Context) {
	db.scheduler.RunCycle(ctx)
}

func indexFactory(dimension int, opts CollectionOptions) (tier.IndexFactory, error) {
	switch opts.Kind {
	case index.KindFlat:
		return func() (index.Index, error) {
			return flat.New(
				flat.WithDimension(dimension),
				flat.WithMetric(opts.Metric),
			)
		}, nil
	case index.KindHNSW:
		return func() (index.Index, error) {
			return hnsw.New(
				hnsw.WithDimension(dimension),
				hnsw.WithMetric(opts.Metric),
				hnsw.WithProfile(opts.Profile),
			)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported index kind: %v", opts.Kind)
	}
}
