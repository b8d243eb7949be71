package reactor

import (
	"sync/atomic"

	"github.com/solidframe-go/reactorcore/clock"
)

// Events is the bitmask delivered to ActiveObject.Execute. Signalled is
// advisory rather than exact: it is set whenever the slot was woken via the
// wake channel, including on initial admission, so an object should treat it
// as "check your own SignalState" rather than as proof a signal arrived —
// SwapAndClear against a mask that is actually zero is always a safe no-op.
type Events uint8

const (
	InDone Events = 1 << iota
	OutDone
	TimeoutEvent
	ErrDone
	Signalled
)

// Disposition is an active object's requested next step, returned from
// Execute.
type Disposition uint8

const (
	// DispositionDone means no more work is scheduled right now; the
	// reactor applies any queued per-socket request, or leaves the object
	// armed on its existing deadlines/readiness.
	DispositionDone Disposition = iota
	// DispositionContinue re-enqueues the slot for the next loop
	// iteration (cooperative yield).
	DispositionContinue
	// DispositionWait arms next_timeout as the slot's merged wake deadline.
	DispositionWait
	// DispositionClose tears the slot down: sockets unregistered, timers
	// removed, object dropped, slot freed.
	DispositionClose
	// DispositionDetach is like DispositionClose but hands the object back
	// to the caller instead of dropping it.
	DispositionDetach
)

// SocketRequest is a deferred registration change applied by the reactor
// at the end of slot execution.
type SocketRequest uint8

const (
	RequestNone SocketRequest = iota
	RequestRegister
	RequestUnregister
	RequestUpdateInterest
)

// ActiveObject is the cooperative scheduling contract of spec §4.5 (C6).
// All socket_* and state operations are single-threaded — only the owning
// reactor touches them between Execute calls. Signal is the sole
// cross-thread operation.
type ActiveObject interface {
	// Execute performs one cooperative step. events is the set of
	// readiness/timeout/signal conditions observed since the last call.
	// The object must not block. It returns its disposition and, for
	// DispositionWait, the deadline at which it wants to be woken
	// (clock.Never means "wait on readiness alone").
	Execute(rt *ObjectRuntime, events Events) (Disposition, clock.Instant)

	// Signal merges mask into the object's private signal mask with an
	// atomic OR and reports whether that transitioned the mask from zero
	// to non-zero — the scheduler uses this to decide whether a wake
	// token is actually needed.
	Signal(mask uint32) bool
}

// SignalState is an embeddable atomic signal mask implementing the
// cross-thread half of the ActiveObject contract (spec §4.5, §5). Reading
// it inside Execute atomically swaps it to zero.
type SignalState struct {
	mask atomic.Uint32
}

// Signal ORs mask into the state and reports whether this call transitioned
// the mask from zero to non-zero.
func (s *SignalState) Signal(mask uint32) bool {
	for {
		old := s.mask.Load()
		if s.mask.CompareAndSwap(old, old|mask) {
			return old == 0 && mask != 0
		}
	}
}

// SwapAndClear atomically reads the current mask and resets it to zero.
func (s *SignalState) SwapAndClear() uint32 {
	return s.mask.Swap(0)
}
