package tier

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/emberdb/ember/model"
)

// SchedulerOptions contains configuration options for the scheduler.
type SchedulerOptions struct {
	// MaxConcurrentTransitions bounds how many collections move between
	// tiers at the same time.
	MaxConcurrentTransitions int64

	// CollectionBudget bounds the total time spent on one collection per
	// cycle, retries included. A collection that exceeds it is skipped
	// until the next cycle.
	CollectionBudget time.Duration

	// MaxRetries is the number of retry attempts after the first failure
	// of a transient transition error.
	MaxRetries uint64

	// InitialBackoff is the delay before the first retry; subsequent
	// delays double, with jitter.
	InitialBackoff time.Duration

	// Logger receives structured cycle logs.
	Logger *slog.Logger
}

// DefaultSchedulerOptions contains the default configuration options for
// the scheduler.
var DefaultSchedulerOptions = SchedulerOptions{
	MaxConcurrentTransitions: 2,
	CollectionBudget:         time.Minute,
	MaxRetries:               3,
	InitialBackoff:           100 * time.Millisecond,
}

// Scheduler periodically applies the manager's policy: idle collections
// move down a tier, busy warm collections come back to memory. Cold
// collections only return on demand, through the manager's fast path.
type Scheduler struct {
	manager *Manager
	opts    SchedulerOptions
	sem     *semaphore.Weighted
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewScheduler creates a scheduler for the given manager. The cycle cadence
// comes from the manager's policy.
func NewScheduler(manager *Manager, optFns ...func(o *SchedulerOptions)) *Scheduler {
	opts := DefaultSchedulerOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrentTransitions <= 0 {
		opts.MaxConcurrentTransitions = 1
	}
	if opts.Logger == nil {
		opts.Logger = manager.logger
	}

	return &Scheduler{
		manager: manager,
		opts:    opts,
		sem:     semaphore.NewWeighted(opts.MaxConcurrentTransitions),
		logger:  opts.Logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// WithMaxConcurrentTransitions bounds parallel transitions per cycle.
func WithMaxConcurrentTransitions(n int64) func(o *SchedulerOptions) {
	return func(o *SchedulerOptions) { o.MaxConcurrentTransitions = n }
}

// WithCollectionBudget bounds per-collection time per cycle.
func WithCollectionBudget(d time.Duration) func(o *SchedulerOptions) {
	return func(o *SchedulerOptions) { o.CollectionBudget = d }
}

// WithRetries sets the retry count and initial backoff for transient
// transition failures.
func WithRetries(maxRetries uint64, initial time.Duration) func(o *SchedulerOptions) {
	return func(o *SchedulerOptions) {
		o.MaxRetries = maxRetries
		o.InitialBackoff = initial
	}
}

// WithSchedulerLogger sets the structured logger.
func WithSchedulerLogger(logger *slog.Logger) func(o *SchedulerOptions) {
	return func(o *SchedulerOptions) { o.Logger = logger }
}

// Start launches the background loop. Subsequent calls, and calls after
// Stop, are no-ops.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true
	go s.loop()
}

// Stop halts the loop and waits for the in-flight cycle to finish. Stopping
// a scheduler that was never started returns immediately.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stop)
		if !s.started {
			// No loop is running to close done for us.
			close(s.done)
		}
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.manager.Policy().SchedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.RunCycle(context.Background())
		}
	}
}

// RunCycle evaluates every collection against the policy once and executes
// the resulting transitions, bounded by the concurrency limit. It blocks
// until the cycle's transitions finish.
func (s *Scheduler) RunCycle(ctx context.Context) {
	now := s.manager.now()
	policy := s.manager.Policy()

	var wg sync.WaitGroup
	defer wg.Wait()

	for _, state := range s.manager.States() {
		var run func(context.Context, model.CollectionID) error
		var verb string

		switch {
		case policy.ShouldPromote(state, now):
			run, verb = s.manager.Promote, "promote"
		default:
			if _, ok := policy.ShouldDemote(state, now); !ok {
				continue
			}
			run, verb = s.manager.Demote, "demote"
		}

		// A failed acquire means the context is gone; stop launching but
		// still wait for transitions already in flight.
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		wg.Add(1)
		go func(id model.CollectionID) {
			defer wg.Done()
			defer s.sem.Release(1)

			if err := s.transition(ctx, id, run); err != nil {
				s.logger.ErrorContext(ctx, "tier transition failed",
					"collection", id, "op", verb, "error", err)
			}
		}(state.CollectionID)
	}
}

// transition runs one tier move under the per-collection budget, retrying
// transient storage failures with exponential backoff. Corruption and
// aborted transitions are permanent for the cycle.
func (s *Scheduler) transition(ctx context.Context, id model.CollectionID, run func(context.Context, model.CollectionID) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CollectionBudget)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.InitialBackoff
	bo.Multiplier = 2

	return backoff.Retry(func() error {
		err := run(ctx, id)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrStorageUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, s.opts.MaxRetries), ctx))
}
