package reactor

import (
	"time"

	"github.com/rs/zerolog"
)

// reactorOptions holds construction-time configuration for a Reactor.
type reactorOptions struct {
	capacity         int
	logger           zerolog.Logger
	maxScanInterval  time.Duration
	nonBlockRefreshN int
	maxPollWait      time.Duration
}

// Option configures a Reactor at construction time.
type Option interface {
	apply(*reactorOptions)
}

type optionFunc func(*reactorOptions)

func (f optionFunc) apply(o *reactorOptions) { f(o) }

// WithCapacity sets the fixed number of active-object slots the reactor
// can hold. Default 1024.
func WithCapacity(n int) Option {
	return optionFunc(func(o *reactorOptions) { o.capacity = n })
}

// WithLogger sets the structured logger used for non-fatal notifier
// errors and lifecycle events. Default is a no-op logger — silent unless
// the caller opts in.
func WithLogger(logger zerolog.Logger) Option {
	return optionFunc(func(o *reactorOptions) { o.logger = logger })
}

// WithMaxScanInterval bounds how long an expired timeout can go undetected
// between full scans. Default 100ms.
func WithMaxScanInterval(d time.Duration) Option {
	return optionFunc(func(o *reactorOptions) { o.maxScanInterval = d })
}

// WithNonBlockingRefresh sets how many non-blocking loop iterations run
// between refreshes of the cached current instant; an iteration whose
// notifier wait could block always refreshes it on the next iteration.
// Default 64.
func WithNonBlockingRefresh(n int) Option {
	return optionFunc(func(o *reactorOptions) { o.nonBlockRefreshN = n })
}

// WithMaxPollWait caps a single notifier wait call, so a reactor with no
// deadlines still wakes periodically to notice new state (e.g. shutdown
// requested by another means). Default 1s.
func WithMaxPollWait(d time.Duration) Option {
	return optionFunc(func(o *reactorOptions) { o.maxPollWait = d })
}

func resolveOptions(opts []Option) reactorOptions {
	cfg := reactorOptions{
		capacity:         1024,
		logger:           zerolog.Nop(),
		maxScanInterval:  100 * time.Millisecond,
		nonBlockRefreshN: 64,
		maxPollWait:      time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(&cfg)
	}
	return cfg
}
