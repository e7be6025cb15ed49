package ember

import (
	"log/slog"
	"time"

	"github.com/emberdb/ember/blobstore"
	"github.com/emberdb/ember/snapshot"
	"github.com/emberdb/ember/tier"
)

type options struct {
	policy               tier.Policy
	warmStore            blobstore.Store
	coldStore            blobstore.Store
	stateStore           tier.StateStore
	dataDir              string
	warmCompression      snapshot.Compression
	coldCompression      snapshot.Compression
	coldPromotionTimeout time.Duration
	storageBytesPerSec   int
	schedulerOptions     []func(*tier.SchedulerOptions)
	disableScheduler     bool
	metricsCollector     MetricsCollector
	logger               *Logger
}

// Option configures database construction.
type Option func(*options)

// WithTierPolicy configures the demotion and promotion thresholds applied by
// the background scheduler.
func WithTierPolicy(p tier.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithDataDir configures the warm tier to live under the given directory on
// local disk. Ignored when WithWarmStore is also set.
func WithDataDir(path string) Option {
	return func(o *options) {
		o.dataDir = path
	}
}

// WithWarmStore configures the blob store backing the warm tier.
//
// If nil is passed, an in-memory store is used; such a warm tier does not
// survive a restart.
func WithWarmStore(store blobstore.Store) Option {
	return func(o *options) {
		o.warmStore = store
	}
}

// WithColdStore configures the blob store backing the cold tier, typically
// object storage (see the blobstore/s3 and blobstore/minio packages).
//
// If nil is passed, an in-memory store is used.
func WithColdStore(store blobstore.Store) Option {
	return func(o *options) {
		o.coldStore = store
	}
}

// WithStateStore configures where tier states are persisted (see the
// tier/dynamo package for a durable implementation).
//
// If nil is passed, an in-memory store is used.
func WithStateStore(store tier.StateStore) Option {
	return func(o *options) {
		o.stateStore = store
	}
}

// WithSnapshotCompression configures the snapshot codecs: warmC for the warm
// tier, coldC for the cold tier.
func WithSnapshotCompression(warmC, coldC snapshot.Compression) Option {
	return func(o *options) {
		o.warmCompression = warmC
		o.coldCompression = coldC
	}
}

// WithColdPromotionTimeout bounds how long a Cold to Hot rehydration may
// take before it aborts and leaves the collection Cold.
func WithColdPromotionTimeout(d time.Duration) Option {
	return func(o *options) {
		o.coldPromotionTimeout = d
	}
}

// WithStorageThrottle limits background snapshot transfer throughput in
// bytes per second. 0 disables the throttle.
func WithStorageThrottle(bytesPerSec int) Option {
	return func(o *options) {
		o.storageBytesPerSec = bytesPerSec
	}
}

// WithSchedulerOptions tunes the background scheduler (concurrency bound,
// per-collection budget, retry policy).
func WithSchedulerOptions(optFns ...func(*tier.SchedulerOptions)) Option {
	return func(o *options) {
		o.schedulerOptions = optFns
	}
}

// WithoutScheduler disables the background scheduler. Tier transitions then
// only happen on demand or through explicit Promote/Demote calls. Useful in
// tests.
func WithoutScheduler() Option {
	return func(o *options) {
		o.disableScheduler = true
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		policy:               tier.DefaultPolicy(),
		warmCompression:      snapshot.CompressionLZ4,
		coldCompression:      snapshot.CompressionZstd,
		coldPromotionTimeout: 30 * time.Second,
		metricsCollector:     NoopMetricsCollector{},
		logger:               NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
