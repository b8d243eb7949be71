package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/solidframe-go/reactorcore/clock"
)

// testObject adapts a plain closure to the ActiveObject interface, so each
// test can express its cooperative logic inline instead of declaring a new
// named type per scenario.
type testObject struct {
	SignalState
	execute func(o *testObject, rt *ObjectRuntime, events Events) (Disposition, clock.Instant)
}

func (o *testObject) Execute(rt *ObjectRuntime, events Events) (Disposition, clock.Instant) {
	return o.execute(o, rt, events)
}

func runReactorForTest(t *testing.T, r *Reactor) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Run() }()
	return done
}

func stopAndWait(t *testing.T, r *Reactor, runDone <-chan error) {
	t.Helper()
	r.Stop()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reactor did not stop within deadline")
	}
}

func TestReactorSignalDeliversExactlyOnce(t *testing.T) {
	r, err := NewReactor(1, WithCapacity(8))
	require.NoError(t, err)
	runDone := runReactorForTest(t, r)

	seen := make(chan uint32, 4)
	obj := &testObject{}
	obj.execute = func(o *testObject, _ *ObjectRuntime, _ Events) (Disposition, clock.Instant) {
		if mask := o.SwapAndClear(); mask != 0 {
			seen <- mask
		}
		return DispositionDone, clock.Never
	}

	uid, err := r.Push(obj, 0)
	require.NoError(t, err)

	r.Signal(uid, 1)

	select {
	case mask := <-seen:
		assert.Equal(t, uint32(1), mask)
	case <-time.After(2 * time.Second):
		t.Fatal("signal was not observed")
	}

	select {
	case <-seen:
		t.Fatal("signal delivered twice")
	case <-time.After(100 * time.Millisecond):
	}

	stopAndWait(t, r, runDone)
}

func TestReactorSignalToStaleUidIsIgnored(t *testing.T) {
	r, err := NewReactor(1, WithCapacity(8))
	require.NoError(t, err)
	runDone := runReactorForTest(t, r)

	closeCh := make(chan struct{})
	obj := &testObject{}
	obj.execute = func(o *testObject, _ *ObjectRuntime, events Events) (Disposition, clock.Instant) {
		if o.SwapAndClear() != 0 {
			close(closeCh)
		}
		return DispositionClose, clock.Never
	}

	uid, err := r.Push(obj, 0)
	require.NoError(t, err)

	select {
	case <-closeCh:
		t.Fatal("object observed a signal it was never sent")
	case <-time.After(100 * time.Millisecond):
	}

	// uid's generation is now stale since the object already closed itself;
	// signalling it must be a silent no-op, not a panic or a crash.
	stale := uid
	stale.Generation++
	assert.NotPanics(t, func() { r.Signal(stale, 1) })

	stopAndWait(t, r, runDone)
}

func TestReactorDispositionWaitFiresTimeout(t *testing.T) {
	r, err := NewReactor(1, WithCapacity(8))
	require.NoError(t, err)
	runDone := runReactorForTest(t, r)

	timedOut := make(chan struct{})
	obj := &testObject{}
	armed := false
	obj.execute = func(_ *testObject, _ *ObjectRuntime, events Events) (Disposition, clock.Instant) {
		if events&TimeoutEvent != 0 {
			close(timedOut)
			return DispositionClose, clock.Never
		}
		if !armed {
			armed = true
			return DispositionWait, clock.Monotonic().Add(50 * time.Millisecond)
		}
		return DispositionDone, clock.Never
	}

	_, err = r.Push(obj, 0)
	require.NoError(t, err)

	select {
	case <-timedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout disposition never fired")
	}

	stopAndWait(t, r, runDone)
}

func TestReactorCapacityExceeded(t *testing.T) {
	r, err := NewReactor(1, WithCapacity(2)) // one usable slot: 0 is reserved
	require.NoError(t, err)
	runDone := runReactorForTest(t, r)

	block := make(chan struct{})
	obj := &testObject{}
	obj.execute = func(_ *testObject, _ *ObjectRuntime, _ Events) (Disposition, clock.Instant) {
		<-block
		return DispositionClose, clock.Never
	}

	_, err = r.Push(obj, 0)
	require.NoError(t, err)

	second := &testObject{}
	second.execute = func(_ *testObject, _ *ObjectRuntime, _ Events) (Disposition, clock.Instant) {
		return DispositionClose, clock.Never
	}
	_, err = r.Push(second, 0)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	close(block)
	stopAndWait(t, r, runDone)
}

func TestReactorEchoObjectSocketRoundTrip(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	client := NewSocket(fds[0])
	defer client.Close()

	r, err := NewReactor(1, WithCapacity(8))
	require.NoError(t, err)
	runDone := runReactorForTest(t, r)

	echo := &echoObject{sock: NewSocket(fds[1])}
	_, err = r.Push(echo, 1)
	require.NoError(t, err)

	require.NoError(t, func() error {
		res := client.Send([]byte("ping"))
		if res.Status != StatusDone {
			return res.Err
		}
		return nil
	}())

	buf := make([]byte, 16)
	deadline := time.Now().Add(2 * time.Second)
	var n int
	for time.Now().Before(deadline) {
		res := client.Recv(buf)
		if res.Status == StatusDone && res.N > 0 {
			n = res.N
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Greater(t, n, 0)
	assert.Equal(t, "ping", string(buf[:n]))

	stopAndWait(t, r, runDone)
}

// echoObject is a minimal stateful ActiveObject: it registers socket 0 for
// reading, and on every receipt echoes the bytes straight back out the same
// socket, re-arming its read interest afterward.
type echoObject struct {
	SignalState
	sock *Socket
	buf  [256]byte
}

func (o *echoObject) Execute(rt *ObjectRuntime, events Events) (Disposition, clock.Instant) {
	if rt.Socket(0) == nil {
		if o.sock == nil {
			return DispositionContinue, clock.Never
		}
		rt.BindSocket(0, o.sock)
		// Arm read interest before registering: SocketRecv only sets
		// ReadInterest on a StatusPending result, so registering without
		// calling it first would hand the notifier a zero interest mask and
		// the peer's first write would never be observed.
		res := rt.SocketRecv(0, o.buf[:])
		switch res.Status {
		case StatusDone:
			if res.N == 0 {
				return DispositionClose, clock.Never
			}
			rt.SocketSend(0, o.buf[:res.N])
			rt.stub(0).requestedEvents |= ReadInterest
		case StatusError:
			return DispositionClose, clock.Never
		}
		rt.SocketRequestRegister(0)
		return DispositionDone, clock.Never
	}

	if events&ErrDone != 0 {
		return DispositionClose, clock.Never
	}

	if events&InDone != 0 {
		res := rt.SocketRecv(0, o.buf[:])
		switch res.Status {
		case StatusDone:
			if res.N == 0 {
				return DispositionClose, clock.Never
			}
			rt.SocketSend(0, o.buf[:res.N])
			rt.SocketRequestUpdateInterest(0)
			return DispositionDone, clock.Never
		case StatusPending:
			rt.SocketRequestUpdateInterest(0)
			return DispositionDone, clock.Never
		default:
			return DispositionClose, clock.Never
		}
	}
	return DispositionDone, clock.Never
}
