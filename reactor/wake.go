package reactor

import "sync"

// ShutdownToken is the reserved wake token meaning "reactor shutdown
// requested". Any other token is the slot index of the object to wake.
const ShutdownToken uint32 = 0

// wakeBatchCap bounds one Drain's worth of tokens. A Drain that returns a
// full batch signals a suspected overrun (spec §9's
// "open question": treat any possible under-drain as a cue to do a full
// scan, rather than replicate one version's specific byte-count
// threshold).
const wakeBatchCap = 1024

// WakeChannel is the thread-safe MPSC token queue of spec §4.2 (C2): any
// goroutine may Signal it, and the owning reactor Drains it from its own
// goroutine. The token queue itself is a plain mutex-guarded slice pair,
// swapped on Drain rather than copied — the same double-buffering used by
// gaio's watcher for its cross-thread pending-connection queue, applied
// here to tokens instead of connections. The OS-level fd exists purely to
// make the channel observable by the readiness notifier; discrete tokens
// are never encoded into it.
type WakeChannel struct {
	mu      sync.Mutex
	pending []uint32
	spare   []uint32

	readFD, writeFD int
	closed          bool
}

// NewWakeChannel creates a wake channel with its OS-level signal fd ready
// to register with a notifier via FD().
func NewWakeChannel() (*WakeChannel, error) {
	r, w, err := createWakeFD()
	if err != nil {
		return nil, err
	}
	return &WakeChannel{
		pending: make([]uint32, 0, 16),
		spare:   make([]uint32, 0, 16),
		readFD:  r,
		writeFD: w,
	}, nil
}

// FD returns the fd to register with the notifier (level-triggered, per
// spec §6).
func (w *WakeChannel) FD() int { return w.readFD }

// Signal enqueues token and wakes the reactor. Never fails on
// back-pressure: once the batch cap is reached, further tokens are
// coalesced (dropped) — the Drain that returns the full batch reports an
// overrun, and the reactor then wakes every occupied slot, so a coalesced
// wake is never lost permanently, only merged into that wake-all.
func (w *WakeChannel) Signal(token uint32) {
	w.mu.Lock()
	if len(w.pending) < wakeBatchCap {
		w.pending = append(w.pending, token)
	}
	closed := w.closed
	w.mu.Unlock()
	if !closed {
		_ = writeWakeFD(w.writeFD)
	}
}

// Drain returns all tokens queued since the last Drain and clears the OS
// signal. overrun is true if the batch cap was hit, meaning the reactor
// should trigger a full scan rather than trust the token set is complete.
func (w *WakeChannel) Drain() (tokens []uint32, overrun bool) {
	w.mu.Lock()
	tokens, w.pending = w.pending, w.spare[:0]
	w.spare = tokens
	w.mu.Unlock()

	drainWakeFD(w.readFD)

	overrun = len(tokens) >= wakeBatchCap
	// Return a copy since the buffer is about to be reused as next Drain's
	// spare slice.
	out := make([]uint32, len(tokens))
	copy(out, tokens)
	return out, overrun
}

// Close releases the OS-level fd. Further Signal calls become no-ops.
func (w *WakeChannel) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	closeWakeFD(w.readFD, w.writeFD)
	return nil
}
