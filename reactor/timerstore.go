package reactor

import "github.com/solidframe-go/reactorcore/clock"

// TimerStore is the flat-vector timer queue of spec §4.1 (C3). A vector
// with swap-remove outperforms a heap at the load the reactor actually
// sees (few pending timeouts relative to active objects) — this is a
// deliberate departure from the heap-based timer queues used elsewhere in
// the retrieval pack (e.g. container/heap-based timedHeap in gaio's
// watcher), carried over unchanged from the spec's own stated rationale
// rather than re-derived.
type TimerStore[V any] struct {
	entries     []timerEntry[V]
	minDeadline clock.Instant
}

type timerEntry[V any] struct {
	deadline clock.Instant
	value    V
}

// NewTimerStore creates an empty store.
func NewTimerStore[V any]() *TimerStore[V] {
	return &TimerStore[V]{minDeadline: clock.Never}
}

// Len returns the number of live entries.
func (t *TimerStore[V]) Len() int { return len(t.entries) }

// Push appends a (deadline, value) pair and returns its index.
func (t *TimerStore[V]) Push(deadline clock.Instant, value V) int {
	idx := len(t.entries)
	t.entries = append(t.entries, timerEntry[V]{deadline: deadline, value: value})
	if deadline.Before(t.minDeadline) {
		t.minDeadline = deadline
	}
	return idx
}

// Change overwrites the deadline at index. Narrowing updates min_deadline
// here directly; widening does not, so Next may report the older, earlier
// value until a later PopExpired (or a PopByIndex of the cached minimum)
// recomputes it.
func (t *TimerStore[V]) Change(index int, deadline clock.Instant) {
	t.entries[index].deadline = deadline
	if deadline.Before(t.minDeadline) {
		t.minDeadline = deadline
	}
}

// PopByIndex removes the entry at index via swap-remove. If a different
// entry was relocated into the freed slot, relocate(newIndex, oldIndex,
// movedValue) is called so the caller can fix up any index it stores
// pointing at the moved entry. min_deadline is recomputed only if the
// removed entry held it.
func (t *TimerStore[V]) PopByIndex(index int, relocate func(newIndex, oldIndex int, movedValue V)) {
	last := len(t.entries) - 1
	removedWasMin := t.entries[index].deadline == t.minDeadline
	if index != last {
		t.entries[index] = t.entries[last]
		if relocate != nil {
			relocate(index, last, t.entries[index].value)
		}
	}
	t.entries = t.entries[:last]
	if removedWasMin {
		t.recomputeMin()
	}
}

// PopExpired makes a single pass over the store, swap-removing every entry
// whose deadline is ≤ now. onExpire(index, value) is called before each
// removal; onRelocate(newIndex, oldIndex, movedValue) is called whenever
// swap-remove moves a surviving entry. min_deadline is recomputed once at
// the end across survivors.
func (t *TimerStore[V]) PopExpired(now clock.Instant, onExpire func(index int, value V), onRelocate func(newIndex, oldIndex int, movedValue V)) {
	i := 0
	for i < len(t.entries) {
		if t.entries[i].deadline.After(now) {
			i++
			continue
		}
		if onExpire != nil {
			onExpire(i, t.entries[i].value)
		}
		last := len(t.entries) - 1
		if i != last {
			t.entries[i] = t.entries[last]
			if onRelocate != nil {
				onRelocate(i, last, t.entries[i].value)
			}
		}
		t.entries = t.entries[:last]
		// Do not advance i: the entry swapped into i must still be
		// checked against now.
	}
	t.recomputeMin()
}

// Next returns the cached minimum deadline, or clock.Never if empty.
func (t *TimerStore[V]) Next() clock.Instant { return t.minDeadline }

func (t *TimerStore[V]) recomputeMin() {
	min := clock.Never
	for _, e := range t.entries {
		if e.deadline.Before(min) {
			min = e.deadline
		}
	}
	t.minDeadline = min
}
