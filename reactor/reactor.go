package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/solidframe-go/reactorcore/clock"
)

// wakeSlot is the reserved slot index standing in for the wake channel
// within the reactor's slot table (spec §4.4: "slot 0 reserved for the
// wake channel").
const wakeSlot = 0

// ObjectUid identifies an active object across threads: (reactor, slot,
// generation). Resolving a stale uid (wrong generation) is a silent no-op
// — the arena-plus-index re-architecture of spec §9 applied at the
// scheduler/reactor boundary.
type ObjectUid struct {
	ReactorID  uint32
	Slot       uint32
	Generation uint32
}

// Reactor is the per-thread event loop of spec §4.4 (C5). It owns the
// readiness notifier, the timer store, the wake channel, and a run queue
// of active objects. Only the goroutine that calls Run touches the
// reactor's slot contents apart from the handful of operations explicitly
// documented as cross-thread safe (Push, Signal, Stop).
type Reactor struct {
	id     uint32
	state  *fastState
	logger zerolog.Logger

	ntf  notifier
	wake *WakeChannel

	slotTimers *TimerStore[timerKey] // slot-level merged Wait deadlines
	sockTimers *TimerStore[timerKey] // per-socket in/out deadlines

	// admitMu guards occupancy/generation/freeStack, plus the slot fields
	// Push initialises when it claims a free slot (object, stubs,
	// inRunQueue, wakeDeadlineIdx) — Push runs on an arbitrary caller
	// thread, and this goroutine's own slot teardown resets the same
	// fields. Once a slot is occupied, its other reactorSlot/SocketStub
	// fields are touched solely by the owning goroutine.
	admitMu       sync.Mutex
	freeStack     []int
	occupiedCount atomic.Int32

	slots    []reactorSlot
	runQueue []int

	currentInstant  clock.Instant
	lastScanInstant clock.Instant
	nonBlockCounter int
	needFullScan    bool
	pendingEvents   []readyEvent

	detached chan ActiveObject

	opts reactorOptions
}

// NewReactor constructs a reactor with its own notifier and wake channel.
// Call Run on a dedicated goroutine (the notifier requires thread
// affinity on some platforms, so callers should runtime.LockOSThread
// before calling Run, matching eventloop's own deferred-lock convention).
func NewReactor(id uint32, opts ...Option) (*Reactor, error) {
	cfg := resolveOptions(opts)

	wake, err := NewWakeChannel()
	if err != nil {
		return nil, WrapError("reactor: wake channel", err)
	}

	ntf := newNotifier()
	if err := ntf.init(); err != nil {
		_ = wake.Close()
		return nil, WrapError("reactor: notifier init", err)
	}

	r := &Reactor{
		id:         id,
		state:      newFastState(),
		logger:     cfg.logger,
		ntf:        ntf,
		wake:       wake,
		slotTimers: NewTimerStore[timerKey](),
		sockTimers: NewTimerStore[timerKey](),
		slots:      make([]reactorSlot, cfg.capacity),
		freeStack:  make([]int, 0, cfg.capacity),
		detached:   make(chan ActiveObject, 64),
		opts:       cfg,
	}
	// Slot 0 is reserved for the wake channel and never allocated to an
	// object; free slots are 1..capacity-1.
	for i := cfg.capacity - 1; i >= 1; i-- {
		r.freeStack = append(r.freeStack, i)
		r.slots[i].wakeDeadlineIdx = -1
	}

	if err := r.ntf.add(wake.FD(), ReadInterest, false, packUserData(wakeSlot, 0)); err != nil {
		_ = ntf.close()
		_ = wake.Close()
		return nil, WrapError("reactor: registering wake fd", err)
	}

	return r, nil
}

// ID returns the reactor's identifier, as used in ObjectUid.
func (r *Reactor) ID() uint32 { return r.id }

// Load returns the number of occupied slots, for a scheduler's least-loaded
// placement decision. Safe to call from any goroutine.
func (r *Reactor) Load() int { return int(r.occupiedCount.Load()) }

// Capacity returns the number of usable object slots (excluding the
// reserved wake slot).
func (r *Reactor) Capacity() int { return len(r.slots) - 1 }

// Detached yields objects that a DispositionDetach return handed back
// instead of dropping. The channel is buffered; if a caller never drains
// it, further detaches are logged and discarded rather than blocking the
// reactor goroutine.
func (r *Reactor) Detached() <-chan ActiveObject { return r.detached }

// Push admits a new object with numSockets socket slots, returning its
// ObjectUid. Fails with ErrCapacityExceeded if the slot table is full, or
// ErrShutdown if the reactor is terminating.
func (r *Reactor) Push(object ActiveObject, numSockets int) (ObjectUid, error) {
	if !r.state.CanAcceptWork() {
		return ObjectUid{}, ErrShutdown
	}

	r.admitMu.Lock()
	if len(r.freeStack) == 0 {
		r.admitMu.Unlock()
		return ObjectUid{}, ErrCapacityExceeded
	}
	slot := r.freeStack[len(r.freeStack)-1]
	r.freeStack = r.freeStack[:len(r.freeStack)-1]

	r.slots[slot].generation++
	gen := r.slots[slot].generation
	r.slots[slot].object = object
	r.slots[slot].occupied = true
	stubs := make([]SocketStub, numSockets)
	for i := range stubs {
		stubs[i] = newSocketStub()
	}
	r.slots[slot].stubs = stubs
	r.slots[slot].inRunQueue = false
	r.slots[slot].wakeDeadlineIdx = -1
	r.admitMu.Unlock()
	r.occupiedCount.Add(1)

	r.wake.Signal(uint32(slot))

	return ObjectUid{ReactorID: r.id, Slot: uint32(slot), Generation: gen}, nil
}

// Signal resolves uid and, if the object's own Signal transitions its mask
// from zero to non-zero, posts a wake token. Stale uids are silently
// ignored (spec §4.6, §8 invariant on ObjectUid generations).
func (r *Reactor) Signal(uid ObjectUid, mask uint32) {
	if uid.ReactorID != r.id || int(uid.Slot) >= len(r.slots) || uid.Slot == wakeSlot {
		return
	}
	r.admitMu.Lock()
	slot := &r.slots[uid.Slot]
	occupied := slot.occupied && slot.generation == uid.Generation
	var obj ActiveObject
	if occupied {
		obj = slot.object
	}
	r.admitMu.Unlock()
	if !occupied {
		return
	}
	if obj.Signal(mask) {
		r.wake.Signal(uid.Slot)
	}
}

// Stop requests shutdown: posts the reserved shutdown token so Run's
// current or next wait call observes it and exits the loop after draining
// remaining work.
func (r *Reactor) Stop() {
	r.wake.Signal(ShutdownToken)
}

// armSocketDeadline is called by ObjectRuntime to set or cancel a
// per-socket directional deadline.
func (r *Reactor) armSocketDeadline(slotIdx, socketIdx int, dir timerDirection, deadline clock.Instant) {
	slot := &r.slots[slotIdx]
	stub := &slot.stubs[socketIdx]

	var idxField *int
	var deadlineField *clock.Instant
	if dir == dirIn {
		idxField, deadlineField = &stub.timeoutInIdx, &stub.deadlineIn
	} else {
		idxField, deadlineField = &stub.timeoutOutIdx, &stub.deadlineOut
	}

	if deadline.IsNever() {
		if *idxField >= 0 {
			r.sockTimers.PopByIndex(*idxField, r.relocateSockTimer)
			*idxField = -1
		}
		*deadlineField = clock.Never
		return
	}

	*deadlineField = deadline
	if *idxField >= 0 {
		r.sockTimers.Change(*idxField, deadline)
	} else {
		*idxField = r.sockTimers.Push(deadline, timerKey{slot: slotIdx, socket: socketIdx, direction: dir})
	}
}

// relocateSockTimer fixes up the socket stub's cached timer index after a
// swap-remove moves a different entry into the freed slot.
func (r *Reactor) relocateSockTimer(newIndex, _ int, key timerKey) {
	stub := &r.slots[key.slot].stubs[key.socket]
	if key.direction == dirIn {
		stub.timeoutInIdx = newIndex
	} else {
		stub.timeoutOutIdx = newIndex
	}
}

// relocateSlotTimer fixes up a reactorSlot's cached wake-deadline index
// after a swap-remove in slotTimers.
func (r *Reactor) relocateSlotTimer(newIndex, _ int, key timerKey) {
	r.slots[key.slot].wakeDeadlineIdx = newIndex
}

// armSlotDeadline sets or cancels the merged per-slot wake deadline armed
// by a DispositionWait return from Execute.
func (r *Reactor) armSlotDeadline(slotIdx int, deadline clock.Instant) {
	slot := &r.slots[slotIdx]
	if deadline.IsNever() {
		if slot.wakeDeadlineIdx >= 0 {
			r.slotTimers.PopByIndex(slot.wakeDeadlineIdx, r.relocateSlotTimer)
			slot.wakeDeadlineIdx = -1
		}
		return
	}
	if slot.wakeDeadlineIdx >= 0 {
		r.slotTimers.Change(slot.wakeDeadlineIdx, deadline)
	} else {
		slot.wakeDeadlineIdx = r.slotTimers.Push(deadline, timerKey{slot: slotIdx, socket: -1, direction: dirSlot})
	}
}

// nextDeadline is the minimum across both timer stores, i.e. the spec's
// cached next_deadline (§4.4's "State" bullet list merges socket and
// slot-level deadlines into one schedule).
func (r *Reactor) nextDeadline() clock.Instant {
	a, b := r.slotTimers.Next(), r.sockTimers.Next()
	if a.Before(b) {
		return a
	}
	return b
}

// Run executes the main loop (spec §4.4) until Stop is called: once the
// shutdown token has been drained and the run queue is empty, Run tears
// down every slot still occupied (unregistering its sockets) and returns.
// An empty slot table alone does not end the loop. Run must be
// called from the goroutine that will own this reactor for its lifetime;
// callers typically runtime.LockOSThread beforehand since the underlying
// notifier requires thread affinity on some platforms.
func (r *Reactor) Run() error {
	if !r.state.TryTransition(StateAwake, StateRunning) {
		return ErrClosed
	}
	r.currentInstant = clock.Monotonic()
	r.lastScanInstant = r.currentInstant

	for {
		// 1. Refresh current_instant after any wait that could block, and
		// otherwise every nonBlockRefreshN non-blocking iterations.
		if r.nonBlockCounter <= 0 {
			r.currentInstant = clock.Monotonic()
			r.nonBlockCounter = r.opts.nonBlockRefreshN
		}
		r.nonBlockCounter--

		// 2. Dispatch events pending from the previous wait.
		wokeByWake := r.dispatchReadiness()

		// 3. Full scan if signalled, a deadline has passed, or it has been
		// MaxScanInterval since the last scan (the bound spec §8 scenario 2
		// names for timeout-detection latency, independent of any single
		// timer's own deadline).
		scanDue := !r.currentInstant.Before(r.lastScanInstant.Add(r.opts.maxScanInterval))
		if r.needFullScan || !r.currentInstant.Before(r.nextDeadline()) || scanDue {
			r.fullScan()
			r.needFullScan = false
			r.lastScanInstant = r.currentInstant
		}

		// 4. Execute the run queue once, bounded to its size at entry so
		// objects re-enqueuing themselves run next iteration.
		ran := r.runOnce()

		// 5. Drain the wake channel if flagged; newly woken slots run on
		// the next iteration, bounding how much work one wait() can defer.
		if wokeByWake {
			r.drainWake()
		}

		// 6. Exit once shutdown was requested and the run queue has
		// drained; teardownAll below releases any objects still occupying
		// slots.
		if r.shouldExit() {
			break
		}

		// 7. Compute poll_wait.
		pollWaitMs := r.computePollWaitMs(ran)

		// 8. Wait for readiness.
		events, err := r.ntf.wait(pollWaitMs)
		if err != nil {
			r.state.Store(StateTerminating)
			r.teardownAll()
			r.state.Store(StateTerminated)
			return err
		}
		r.pendingEvents = events
		if pollWaitMs != 0 {
			// The wait may have blocked: force a refresh next iteration.
			r.nonBlockCounter = 0
		}
	}

	r.teardownAll()
	r.state.Store(StateTerminated)
	return nil
}

// dispatchReadiness decodes events stashed from the previous wait call
// (spec §4.4 step 2 / "Readiness dispatch"). Returns whether the wake
// channel's fd was among them.
func (r *Reactor) dispatchReadiness() bool {
	wokeByWake := false
	for _, ev := range r.pendingEvents {
		slotIdx, sockIdx := unpackUserData(ev.userData)
		if slotIdx == wakeSlot {
			wokeByWake = true
			continue
		}
		if slotIdx < 0 || slotIdx >= len(r.slots) {
			continue
		}
		slot := &r.slots[slotIdx]
		if !slot.occupied || sockIdx < 0 || sockIdx >= len(slot.stubs) {
			continue
		}
		stub := &slot.stubs[sockIdx]
		delivered := translateReadyFlags(ev.flags, stub.requestedEvents)
		if delivered == 0 {
			continue
		}
		stub.reportedEvents |= delivered
		r.enqueue(slotIdx)
	}
	r.pendingEvents = nil
	return wokeByWake
}

func translateReadyFlags(flags ReadyFlags, requested Interest) Events {
	var events Events
	if flags&(HangUp|ErrorFlag) != 0 {
		events |= ErrDone
	}
	if flags&Readable != 0 && requested&ReadInterest != 0 {
		events |= InDone
	}
	if flags&Writable != 0 && requested&WriteInterest != 0 {
		events |= OutDone
	}
	return events
}

// drainWake drains the wake channel and enqueues every woken, occupied
// slot. Draining is idempotent: a token for a slot already in the run
// queue is a no-op. Token 0 requests shutdown; an overrun (the batch cap
// was reached, so Signal may have dropped tokens) wakes every occupied
// slot and forces a full scan on the next iteration rather than trusting
// the token set as complete.
func (r *Reactor) drainWake() {
	tokens, overrun := r.wake.Drain()
	if overrun {
		r.needFullScan = true
		r.admitMu.Lock()
		for i := 1; i < len(r.slots); i++ {
			if r.slots[i].occupied {
				r.slots[i].signalled = true
				r.enqueue(i)
			}
		}
		r.admitMu.Unlock()
	}
	for _, tok := range tokens {
		if tok == ShutdownToken {
			r.state.TransitionAny([]State{StateRunning, StateSleeping}, StateTerminating)
			continue
		}
		slotIdx := int(tok)
		if slotIdx <= 0 || slotIdx >= len(r.slots) {
			continue
		}
		r.admitMu.Lock()
		occupied := r.slots[slotIdx].occupied
		r.admitMu.Unlock()
		if occupied {
			r.slots[slotIdx].signalled = true
			r.enqueue(slotIdx)
		}
	}
}

// fullScan iterates every occupied slot, marking Timeout on any expired
// deadline and enqueuing it, per spec §4.4 step 3.
func (r *Reactor) fullScan() {
	r.slotTimers.PopExpired(r.currentInstant, func(_ int, key timerKey) {
		r.slots[key.slot].wakeDeadlineIdx = -1
		r.enqueue(key.slot)
	}, r.relocateSlotTimer)

	r.sockTimers.PopExpired(r.currentInstant, func(_ int, key timerKey) {
		stub := &r.slots[key.slot].stubs[key.socket]
		if key.direction == dirIn {
			stub.timeoutInIdx = -1
			stub.deadlineIn = clock.Never
		} else {
			stub.timeoutOutIdx = -1
			stub.deadlineOut = clock.Never
		}
		stub.reportedEvents |= TimeoutEvent
		r.enqueue(key.slot)
	}, r.relocateSockTimer)
}

// enqueue appends slot to the run queue unless it is already there.
func (r *Reactor) enqueue(slotIdx int) {
	slot := &r.slots[slotIdx]
	if slot.inRunQueue {
		return
	}
	slot.inRunQueue = true
	r.runQueue = append(r.runQueue, slotIdx)
}

// runOnce executes the run queue up to its size at entry, so objects that
// re-enqueue themselves (DispositionContinue) run on the next loop
// iteration rather than spinning the current one indefinitely. Returns
// whether anything ran.
func (r *Reactor) runOnce() bool {
	n := len(r.runQueue)
	if n == 0 {
		return false
	}
	batch := r.runQueue[:n]
	r.runQueue = r.runQueue[n:]
	for _, slotIdx := range batch {
		r.executeSlot(slotIdx)
	}
	return true
}

// executeSlot runs one cooperative step of the object in slotIdx (spec
// §4.4 "Slot execution").
func (r *Reactor) executeSlot(slotIdx int) {
	slot := &r.slots[slotIdx]
	if !slot.occupied {
		return
	}

	var events Events
	for i := range slot.stubs {
		events |= slot.stubs[i].reportedEvents
	}
	if slot.signalled {
		events |= Signalled
		slot.signalled = false
	}
	slot.inRunQueue = false

	rt := &ObjectRuntime{r: r, slot: slotIdx}
	disposition, timeout := slot.object.Execute(rt, events)

	switch disposition {
	case DispositionDone:
		// No more work scheduled. Any pending socket requests still get
		// applied below; any armed deadline (slot- or socket-level)
		// remains in the timer stores; otherwise the slot simply waits on
		// its existing notifier registrations.
	case DispositionContinue:
		r.enqueue(slotIdx)
	case DispositionWait:
		r.armSlotDeadline(slotIdx, timeout)
	case DispositionClose:
		r.applySocketRequests(slotIdx)
		r.teardownSlot(slotIdx)
		return
	case DispositionDetach:
		obj := slot.object
		r.applySocketRequests(slotIdx)
		r.teardownSlot(slotIdx)
		select {
		case r.detached <- obj:
		default:
			r.logger.Warn().Int("slot", slotIdx).Msg("detached object dropped: channel full")
		}
		return
	}

	// Clear before applying requests, so an ErrDone raised by a failed
	// request survives until the re-enqueued slot next executes.
	for i := range slot.stubs {
		slot.stubs[i].reportedEvents = 0
	}

	r.applySocketRequests(slotIdx)
}

// applySocketRequests applies queued per-socket pending_requests (spec
// §4.4 step 4). On notifier error, the affected socket is signalled
// ErrDone and the slot is re-enqueued rather than the reactor failing —
// the error policy of spec §4.4/§7 treats notifier errors as non-fatal to
// the reactor. The failure is preserved as a *NotifierError, retrievable
// by the object via ObjectRuntime.SocketErr.
func (r *Reactor) applySocketRequests(slotIdx int) {
	slot := &r.slots[slotIdx]
	for i := range slot.stubs {
		stub := &slot.stubs[i]
		req := stub.pendingRequest
		if req == RequestNone || stub.socket == nil {
			continue
		}
		stub.pendingRequest = RequestNone

		var err error
		switch req {
		case RequestRegister:
			err = r.ntf.add(stub.socket.Fd(), stub.requestedEvents, true, packUserData(slotIdx, i))
		case RequestUpdateInterest:
			err = r.ntf.modify(stub.socket.Fd(), stub.requestedEvents, packUserData(slotIdx, i))
		case RequestUnregister:
			err = r.ntf.remove(stub.socket.Fd())
		}
		if err != nil {
			nerr := &NotifierError{Op: requestName(req), Fd: stub.socket.Fd(), Err: err}
			r.logger.Warn().Err(nerr).Int("slot", slotIdx).Int("socket", i).Msg("notifier error")
			stub.lastErr = nerr
			stub.reportedEvents |= ErrDone
			r.enqueue(slotIdx)
			continue
		}
		stub.lastErr = nil
	}
}

func requestName(r SocketRequest) string {
	switch r {
	case RequestRegister:
		return "add"
	case RequestUpdateInterest:
		return "modify"
	case RequestUnregister:
		return "remove"
	default:
		return "none"
	}
}

// teardownSlot unregisters all of the slot's sockets from the notifier,
// removes their timer entries, and returns the slot to the free stack.
// Whether the object itself is dropped (DispositionClose) or handed back
// via Detached() (DispositionDetach) is the caller's responsibility;
// teardownSlot only reclaims reactor-owned resources.
func (r *Reactor) teardownSlot(slotIdx int) {
	slot := &r.slots[slotIdx]
	for i := range slot.stubs {
		stub := &slot.stubs[i]
		if stub.socket != nil {
			_ = r.ntf.remove(stub.socket.Fd())
		}
		if stub.timeoutInIdx >= 0 {
			r.sockTimers.PopByIndex(stub.timeoutInIdx, r.relocateSockTimer)
		}
		if stub.timeoutOutIdx >= 0 {
			r.sockTimers.PopByIndex(stub.timeoutOutIdx, r.relocateSockTimer)
		}
	}
	if slot.wakeDeadlineIdx >= 0 {
		r.slotTimers.PopByIndex(slot.wakeDeadlineIdx, r.relocateSlotTimer)
	}

	r.admitMu.Lock()
	slot.occupied = false
	slot.object = nil
	slot.stubs = nil
	slot.inRunQueue = false
	slot.wakeDeadlineIdx = -1
	r.freeStack = append(r.freeStack, slotIdx)
	r.admitMu.Unlock()
	r.occupiedCount.Add(-1)
}

// teardownAll tears down every occupied slot, used when Run exits (either
// normally or on a fatal notifier error).
func (r *Reactor) teardownAll() {
	for i := range r.slots {
		if i == wakeSlot {
			continue
		}
		if r.slots[i].occupied {
			r.teardownSlot(i)
		}
	}
	_ = r.ntf.remove(r.wake.FD())
	_ = r.ntf.close()
	_ = r.wake.Close()
}

func (r *Reactor) shouldExit() bool {
	return r.state.Load() == StateTerminating && len(r.runQueue) == 0
}

func (r *Reactor) computePollWaitMs(ranThisIteration bool) int {
	if ranThisIteration {
		return 0
	}
	// Folding the next forced full scan in as a candidate deadline (rather
	// than capping the wait separately) makes MaxScanInterval an actual
	// bound on timeout-detection latency: the loop always wakes in time to
	// run fullScan, not just "eventually, if some other deadline happens
	// to land sooner".
	deadline := r.nextDeadline()
	if scanDeadline := r.lastScanInstant.Add(r.opts.maxScanInterval); scanDeadline.Before(deadline) {
		deadline = scanDeadline
	}
	if deadline.IsNever() {
		ms := int(r.opts.maxPollWait / time.Millisecond)
		if ms <= 0 {
			ms = -1
		}
		return ms
	}
	d := deadline.Sub(r.currentInstant)
	if d < 0 {
		d = 0
	}
	if d > r.opts.maxPollWait {
		d = r.opts.maxPollWait
	}
	ms := int(d / time.Millisecond)
	if ms <= 0 && d > 0 {
		ms = 1
	}
	return ms
}
