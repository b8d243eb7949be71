package reactor

import "github.com/solidframe-go/reactorcore/clock"

// ObjectRuntime is the per-call handle an ActiveObject uses to drive its
// sockets during one Execute. It is never stored by the object across
// calls: the reactor is the arena for slots, and the runtime just borrows
// a slot index into that arena for the duration of the call (spec §9's
// arena-plus-index re-architecture applied to the object/reactor boundary,
// not only to ObjectUid).
type ObjectRuntime struct {
	r    *Reactor
	slot int
}

func (rt *ObjectRuntime) stub(i int) *SocketStub {
	return &rt.r.slots[rt.slot].stubs[i]
}

// SocketCount returns the number of socket slots this object owns.
func (rt *ObjectRuntime) SocketCount() int {
	return len(rt.r.slots[rt.slot].stubs)
}

// SocketState returns the application-defined state word for socket i.
func (rt *ObjectRuntime) SocketState(i int) uint16 { return rt.stub(i).state }

// SocketStateSet sets the application-defined state word for socket i.
func (rt *ObjectRuntime) SocketStateSet(i int, v uint16) { rt.stub(i).state = v }

// BindSocket attaches sock to socket slot i, replacing any existing one.
func (rt *ObjectRuntime) BindSocket(i int, sock *Socket) {
	rt.stub(i).socket = sock
}

// Socket returns the raw socket bound to slot i, or nil if vacant.
func (rt *ObjectRuntime) Socket(i int) *Socket { return rt.stub(i).socket }

// SocketErr returns the notifier failure that produced socket i's last
// ErrDone, or nil if its last applied request succeeded.
func (rt *ObjectRuntime) SocketErr(i int) error { return rt.stub(i).lastErr }

// SocketRecv reads into buf via socket i, recording ReadInterest as the
// requested event if the read would block.
func (rt *ObjectRuntime) SocketRecv(i int, buf []byte) Result {
	s := rt.stub(i)
	res := s.socket.Recv(buf)
	if res.Status == StatusPending {
		s.requestedEvents |= ReadInterest
	}
	return res
}

// SocketSend writes buf via socket i, recording WriteInterest as the
// requested event if the write would block.
func (rt *ObjectRuntime) SocketSend(i int, buf []byte) Result {
	s := rt.stub(i)
	res := s.socket.Send(buf)
	if res.Status == StatusPending {
		s.requestedEvents |= WriteInterest
	}
	return res
}

// SocketRequestRegister defers registration of socket i with the notifier
// using its current requestedEvents mask.
func (rt *ObjectRuntime) SocketRequestRegister(i int) {
	rt.stub(i).pendingRequest = RequestRegister
}

// SocketRequestUnregister defers removal of socket i from the notifier.
func (rt *ObjectRuntime) SocketRequestUnregister(i int) {
	rt.stub(i).pendingRequest = RequestUnregister
}

// SocketRequestUpdateInterest defers an interest-mask update for socket i
// to reflect its current requestedEvents.
func (rt *ObjectRuntime) SocketRequestUpdateInterest(i int) {
	rt.stub(i).pendingRequest = RequestUpdateInterest
}

// SetDeadlineIn arms socket i's inbound deadline. deadline == clock.Never
// cancels it.
func (rt *ObjectRuntime) SetDeadlineIn(i int, deadline clock.Instant) {
	rt.r.armSocketDeadline(rt.slot, i, dirIn, deadline)
}

// SetDeadlineOut arms socket i's outbound deadline. deadline == clock.Never
// cancels it.
func (rt *ObjectRuntime) SetDeadlineOut(i int, deadline clock.Instant) {
	rt.r.armSocketDeadline(rt.slot, i, dirOut, deadline)
}
