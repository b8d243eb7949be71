// Package scheduler distributes active objects across a fixed pool of
// reactor threads and provides the cross-thread placement/signal surface
// (C7). Each reactor in the pool runs its own locked OS thread, matching
// eventloop's deferred-thread-lock convention: epoll/kqueue require thread
// affinity, so the goroutine that calls Reactor.Run locks itself to its OS
// thread for the reactor's lifetime.
package scheduler

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/solidframe-go/reactorcore/reactor"
)

// ErrNotStarted is returned by Push before Start has been called. Signal
// silently ignores calls made before Start.
var ErrNotStarted = errors.New("scheduler: not started")

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("scheduler: already started")

// Placement selects how Push picks a reactor for a new object.
type Placement uint8

const (
	// PlacementRoundRobin cycles through reactors in order. Default: cheap,
	// and fair under uniform load.
	PlacementRoundRobin Placement = iota
	// PlacementLeastLoaded picks the reactor with the fewest occupied slots,
	// at the cost of reading every reactor's load counter on each Push.
	PlacementLeastLoaded
)

type schedulerOptions struct {
	workerCapacity int
	logger         zerolog.Logger
	placement      Placement
}

// Option configures a Scheduler at construction time.
type Option interface{ apply(*schedulerOptions) }

type optionFunc func(*schedulerOptions)

func (f optionFunc) apply(o *schedulerOptions) { f(o) }

// WithWorkerCapacity sets the per-reactor object-slot capacity. Default 1024.
func WithWorkerCapacity(n int) Option {
	return optionFunc(func(o *schedulerOptions) { o.workerCapacity = n })
}

// WithLogger sets the logger passed through to every reactor in the pool.
func WithLogger(logger zerolog.Logger) Option {
	return optionFunc(func(o *schedulerOptions) { o.logger = logger })
}

// WithPlacement selects the Push placement strategy. Default PlacementRoundRobin.
func WithPlacement(p Placement) Option {
	return optionFunc(func(o *schedulerOptions) { o.placement = p })
}

func resolveOptions(opts []Option) schedulerOptions {
	cfg := schedulerOptions{
		workerCapacity: 1024,
		logger:         zerolog.Nop(),
		placement:      PlacementRoundRobin,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	return cfg
}

// Scheduler owns a fixed pool of reactors and places new objects across
// them (spec §4.6, C7). The scheduler itself holds no references to placed
// objects — only the reactors do — matching the ownership model of §5:
// "The scheduler holds no references — only opaque uids."
type Scheduler struct {
	opts     schedulerOptions
	reactors []*reactor.Reactor
	rrNext   atomic.Uint32

	wg       sync.WaitGroup
	runErrMu sync.Mutex
	runErr   error

	started atomic.Bool
}

// New constructs an unstarted Scheduler. Call Start to spin up its reactors.
func New(opts ...Option) *Scheduler {
	return &Scheduler{opts: resolveOptions(opts)}
}

// Start creates workerCount reactors and runs each on its own locked OS
// thread goroutine. Start may be called only once.
func (s *Scheduler) Start(workerCount int) error {
	if workerCount <= 0 {
		return errors.New("scheduler: workerCount must be positive")
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	s.reactors = make([]*reactor.Reactor, workerCount)
	for i := 0; i < workerCount; i++ {
		r, err := reactor.NewReactor(uint32(i),
			reactor.WithCapacity(s.opts.workerCapacity),
			reactor.WithLogger(s.opts.logger),
		)
		if err != nil {
			return err
		}
		s.reactors[i] = r
	}

	s.wg.Add(workerCount)
	for _, r := range s.reactors {
		r := r
		go func() {
			defer s.wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			if err := r.Run(); err != nil {
				s.runErrMu.Lock()
				if s.runErr == nil {
					s.runErr = err
				}
				s.runErrMu.Unlock()
				s.opts.logger.Error().Err(err).Uint32("reactor", r.ID()).Msg("reactor terminated with error")
			}
		}()
	}
	return nil
}

// Push selects a reactor per the configured Placement and admits object
// with numSockets socket slots, returning its ObjectUid. Fails with
// reactor.ErrCapacityExceeded if every reactor is full, or ErrNotStarted if
// Start has not been called.
func (s *Scheduler) Push(object reactor.ActiveObject, numSockets int) (reactor.ObjectUid, error) {
	if !s.started.Load() {
		return reactor.ObjectUid{}, ErrNotStarted
	}

	n := len(s.reactors)
	order := s.placementOrder(n)

	var lastErr error
	for _, idx := range order {
		uid, err := s.reactors[idx].Push(object, numSockets)
		if err == nil {
			return uid, nil
		}
		lastErr = err
	}
	return reactor.ObjectUid{}, lastErr
}

// placementOrder returns the reactor indices to try, in preference order.
func (s *Scheduler) placementOrder(n int) []int {
	order := make([]int, n)
	switch s.opts.placement {
	case PlacementLeastLoaded:
		for i := range order {
			order[i] = i
		}
		sortByLoad(order, s.reactors)
	default: // PlacementRoundRobin
		start := int(s.rrNext.Add(1)-1) % n
		for i := range order {
			order[i] = (start + i) % n
		}
	}
	return order
}

// sortByLoad is a small insertion sort over reactor indices by Load() —
// worker-pool sizes are small (tens, not thousands), so this beats the
// overhead of sort.Slice's reflection-based comparator.
func sortByLoad(order []int, reactors []*reactor.Reactor) {
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && reactors[order[j]].Load() < reactors[order[j-1]].Load(); j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
}

// Signal resolves uid to its owning reactor and forwards the signal. Out-of-
// range reactor ids are silently ignored, matching the reactor's own
// stale-uid tolerance.
func (s *Scheduler) Signal(uid reactor.ObjectUid, mask uint32) {
	if !s.started.Load() || int(uid.ReactorID) >= len(s.reactors) {
		return
	}
	s.reactors[uid.ReactorID].Signal(uid, mask)
}

// Stop requests shutdown of every reactor in the pool. If wait is true, Stop
// blocks until all reactor goroutines have returned, then reports the first
// non-nil error any of them returned.
func (s *Scheduler) Stop(wait bool) error {
	if !s.started.Load() {
		return nil
	}
	for _, r := range s.reactors {
		r.Stop()
	}
	if !wait {
		return nil
	}
	s.wg.Wait()
	s.runErrMu.Lock()
	defer s.runErrMu.Unlock()
	return s.runErr
}

// WorkerCount returns the number of reactors in the pool.
func (s *Scheduler) WorkerCount() int { return len(s.reactors) }
