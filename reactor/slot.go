package reactor

import "github.com/solidframe-go/reactorcore/clock"

// SocketStub is per (object, socket) slot state (spec §3).
type SocketStub struct {
	socket *Socket

	deadlineIn, deadlineOut     clock.Instant
	timeoutInIdx, timeoutOutIdx int // -1 = none, index into reactor.sockTimers

	requestedEvents Interest
	reportedEvents  Events
	pendingRequest  SocketRequest

	// lastErr is the most recent *NotifierError from applying a pending
	// request, cleared on the next request that succeeds. Surfaced to the
	// object via ObjectRuntime.SocketErr so an ErrDone event is
	// diagnosable, not just observable.
	lastErr error

	state uint16
}

func newSocketStub() SocketStub {
	return SocketStub{
		deadlineIn:    clock.Never,
		deadlineOut:   clock.Never,
		timeoutInIdx:  -1,
		timeoutOutIdx: -1,
	}
}

// reactorSlot is one per object capacity in a reactor (spec §3).
type reactorSlot struct {
	object     ActiveObject
	stubs      []SocketStub
	inRunQueue bool
	generation uint32

	// signalled is set by drainWake when a wake token named this slot, and
	// consumed (OR'd into Events.Signalled) by the next executeSlot call.
	// Only the owning goroutine ever touches it.
	signalled bool

	// wakeDeadlineIdx is the index into reactor.slotTimers holding this
	// slot's merged Wait deadline, or -1. This doubles as the data
	// model's "cached next_scan_deadline": TimerStore already caches its
	// own minimum in O(1), so a second per-slot cache would only
	// duplicate that value.
	wakeDeadlineIdx int

	occupied bool
}

// timerKey identifies what a timer-store entry is for, letting PopExpired
// route an expiry back to the right socket/slot.
type timerKey struct {
	slot      int
	socket    int // -1 for a slot-level (merged Wait) deadline
	direction timerDirection
}

type timerDirection uint8

const (
	dirIn timerDirection = iota
	dirOut
	dirSlot
)
