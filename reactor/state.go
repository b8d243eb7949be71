package reactor

import "sync/atomic"

// State is the lifecycle of a Reactor.
//
// State Machine:
//
//	StateAwake (0) → StateRunning (3)        [Run(), via CAS]
//	StateRunning (3) → StateTerminating (4)  [drainWake sees the Stop() token, via CAS]
//	StateRunning (3) → StateTerminating (4)  [notifier wait error, via Store]
//	StateTerminating (4) → StateTerminated (1) [Run() exit, via Store]
//	StateTerminated (1) → (terminal)
//
// StateSleeping is defined, and accepted by TransitionAny/CanAcceptWork,
// but no code path currently enters it.
type State uint64

const (
	StateAwake State = iota
	StateTerminated
	StateSleeping
	StateRunning
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine, cache-line padded to avoid false
// sharing between a reactor's own goroutine and callers polling its state
// from another thread (e.g. the scheduler).
type fastState struct { // betteralign:ignore
	_ [64]byte
	v atomic.Uint64
	_ [56]byte
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint64(StateAwake))
	return s
}

func (s *fastState) Load() State { return State(s.v.Load()) }

func (s *fastState) Store(state State) { s.v.Store(uint64(state)) }

func (s *fastState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

func (s *fastState) TransitionAny(validFrom []State, to State) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint64(from), uint64(to)) {
			return true
		}
	}
	return false
}

func (s *fastState) IsTerminal() bool { return s.Load() == StateTerminated }

func (s *fastState) IsRunning() bool {
	state := s.Load()
	return state == StateRunning || state == StateSleeping
}

func (s *fastState) CanAcceptWork() bool {
	state := s.Load()
	return state == StateAwake || state == StateRunning || state == StateSleeping
}
