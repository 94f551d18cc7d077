package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/fieldstore/fieldpath"
)

// Store is a reactive container of form field state.
//
// Thread-safety model:
//   - All operations are safe from any goroutine.
//   - Subscriber and watcher callbacks run on the scheduler goroutine during a
//     flush, except the initial Subscribe delivery, which runs on the caller's
//     goroutine.
//   - Callbacks may call back into the store. They must not call Sync, which
//     would wait on the flush they are running in.
type Store struct {
	id       string
	log      *slog.Logger
	warnings bool
	now      func() time.Time
	codec    *fieldpath.Codec
	clock    *Clock
	sched    Scheduler
	loop     *LoopScheduler // non-nil when the store owns its scheduler

	mu         sync.Mutex
	fields     map[string]*fieldRecord
	order      []string // registration order
	validators map[string]*validatorSet
	tickets    map[string]int64
	formTicket int64
	ticketSeq  int64

	middleware []Middleware
	chain      Handler

	subs      map[uint64]*subscription
	pathIndex map[string]map[uint64]*subscription
	nextSubID uint64

	exact       map[string][]*watcher
	wildcards   []*watcher
	watchCount  int
	nextWatchID uint64

	listeners     map[EventName][]*listenerEntry
	listenerCount int
	cleanups      []ownedCleanup

	batch          *batch
	flushScheduled bool
	flushMu        sync.Mutex

	fastPath  atomic.Bool
	destroyed bool
	closed    chan struct{} // closed by Destroy
}

// batch accumulates the changes of every mutation since the last flush.
type batch struct {
	paths   []string
	seen    map[string]struct{}
	watches []WatchEvent
}

func newBatch() *batch {
	return &batch{seen: make(map[string]struct{})}
}

// change is one path touched by a mutation.
type change struct {
	path  string
	value any
	watch bool // value-bearing; delivered to watchers
}

// New creates a store, installs middleware and sets up plugins in order.
func New(opts ...Option) *Store {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	id := uuid.Must(uuid.NewV7()).String()
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "fieldstore", "store_id", id)

	s := &Store{
		id:         id,
		log:        logger,
		warnings:   cfg.warnings,
		now:        cfg.now,
		codec:      fieldpath.NewCodec(cfg.cacheSize),
		clock:      NewClock(),
		fields:     make(map[string]*fieldRecord),
		validators: make(map[string]*validatorSet),
		tickets:    make(map[string]int64),
		subs:       make(map[uint64]*subscription),
		pathIndex:  make(map[string]map[uint64]*subscription),
		exact:      make(map[string][]*watcher),
		listeners:  make(map[EventName][]*listenerEntry),
		batch:      newBatch(),
		closed:     make(chan struct{}),
	}
	if cfg.scheduler != nil {
		s.sched = cfg.scheduler
	} else {
		s.loop = NewLoopScheduler(logger)
		s.sched = s.loop
	}

	s.middleware = append(s.middleware, cfg.middleware...)
	s.chain = Compose(s.middleware, s.apply)
	s.refreshFastPathLocked()

	for _, p := range cfg.plugins {
		s.setupPlugin(p)
	}
	return s
}

// ID returns the store's unique identifier (a UUIDv7).
func (s *Store) ID() string {
	return s.id
}

// Epoch returns the epoch of the most recent mutation (0 before any).
func (s *Store) Epoch() int64 {
	return s.clock.Current()
}

// ParsePath parses a path with the store's cache.
// The returned slice must not be modified.
func (s *Store) ParsePath(path string) []string {
	return s.codec.Parse(path)
}

// Sync waits until every flush scheduled before the call has completed.
//
// It enqueues a barrier task behind the pending work and waits for it to run.
// With a ManualScheduler, Sync blocks until someone drains the scheduler.
func (s *Store) Sync(ctx context.Context) error {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		return ErrDestroyed
	}

	done := make(chan struct{})
	if !s.sched.Schedule(func() { close(done) }) {
		return ErrSchedulerClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) warn(msg string, args ...any) {
	if s.warnings {
		s.log.Warn(msg, args...)
	}
}

// fastEligibleLocked reports whether nothing can observe a mutation, in
// which case SetControlledValue may skip the pipeline.
func (s *Store) fastEligibleLocked() bool {
	return len(s.middleware) == 0 &&
		len(s.subs) == 0 &&
		s.watchCount == 0 &&
		s.listenerCount == 0
}

// refreshFastPathLocked must run whenever a middleware, subscriber, watcher
// or listener count changes.
func (s *Store) refreshFastPathLocked() {
	s.fastPath.Store(s.fastEligibleLocked())
}

// recordLocked adds changes to the current batch. It returns true when the
// caller must schedule a flush.
func (s *Store) recordLocked(changes []change) bool {
	if len(s.subs) == 0 && s.watchCount == 0 {
		return false
	}
	for _, c := range changes {
		if c.path != "" {
			if _, ok := s.batch.seen[c.path]; !ok {
				s.batch.seen[c.path] = struct{}{}
				s.batch.paths = append(s.batch.paths, c.path)
			}
		}
		if c.watch && s.watchCount > 0 {
			s.batch.watches = append(s.batch.watches, WatchEvent{Path: c.path, Value: c.value})
		}
	}
	if s.flushScheduled {
		return false
	}
	s.flushScheduled = true
	return true
}

func (s *Store) scheduleFlush() {
	if s.sched.Schedule(s.flush) {
		return
	}
	s.mu.Lock()
	s.flushScheduled = false
	s.mu.Unlock()
}

// flush delivers every change batched since the previous flush: first
// subscriptions (re-running selectors), then watchers.
//
// The batch is swapped out before delivery. Mutations made by callbacks land
// in the next batch, whose flush is queued behind this one.
func (s *Store) flush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	b := s.batch
	s.batch = newBatch()
	s.flushScheduled = false
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	affected := s.affectedLocked(b.paths)
	deliveries := s.watchDeliveriesLocked(b.watches)
	s.mu.Unlock()

	for _, sub := range affected {
		s.isolate(func() { s.rerun(sub) }, "subscription", sub.id)
	}
	for _, d := range deliveries {
		s.isolate(func() { s.deliverWatch(d) }, "watch", d.w.pattern)
	}
}

// isolate runs one observer call. A panic is logged and does not stop
// delivery to the rest of the batch.
func (s *Store) isolate(fn func(), kind string, id any) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("observer panicked", "kind", kind, "id", id, "panic", r)
		}
	}()
	fn()
}
