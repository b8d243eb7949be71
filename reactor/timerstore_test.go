package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solidframe-go/reactorcore/clock"
)

func instant(sec int64) clock.Instant { return clock.Instant{Sec: sec} }

func TestTimerStoreNextIsNeverWhenEmpty(t *testing.T) {
	ts := NewTimerStore[string]()
	assert.True(t, ts.Next().IsNever())
	assert.Equal(t, 0, ts.Len())
}

func TestTimerStorePushTracksMinimum(t *testing.T) {
	ts := NewTimerStore[string]()
	ts.Push(instant(10), "a")
	ts.Push(instant(5), "b")
	ts.Push(instant(20), "c")
	assert.Equal(t, instant(5), ts.Next())
	assert.Equal(t, 3, ts.Len())
}

func TestTimerStoreChangeNarrowsMinimum(t *testing.T) {
	ts := NewTimerStore[string]()
	idx := ts.Push(instant(10), "a")
	ts.Push(instant(20), "b")
	require.Equal(t, instant(10), ts.Next())

	ts.Change(idx, instant(1))
	assert.Equal(t, instant(1), ts.Next())
}

func TestTimerStorePopByIndexRelocatesSwappedEntry(t *testing.T) {
	ts := NewTimerStore[string]()
	ts.Push(instant(10), "a")
	ts.Push(instant(20), "b")
	thirdIdx := ts.Push(instant(30), "c")

	var relocatedTo, relocatedFrom int
	var relocatedVal string
	ts.PopByIndex(0, func(newIndex, oldIndex int, movedValue string) {
		relocatedTo, relocatedFrom, relocatedVal = newIndex, oldIndex, movedValue
	})

	assert.Equal(t, 2, ts.Len())
	assert.Equal(t, 0, relocatedTo)
	assert.Equal(t, thirdIdx, relocatedFrom)
	assert.Equal(t, "c", relocatedVal)
	assert.Equal(t, instant(20), ts.Next())
}

func TestTimerStorePopByIndexOfMinimumRecomputes(t *testing.T) {
	ts := NewTimerStore[string]()
	idx := ts.Push(instant(5), "min")
	ts.Push(instant(10), "other")

	ts.PopByIndex(idx, nil)
	assert.Equal(t, instant(10), ts.Next())
}

func TestTimerStorePopExpiredRemovesOnlyDueEntries(t *testing.T) {
	ts := NewTimerStore[string]()
	ts.Push(instant(5), "due")
	ts.Push(instant(15), "not-due")

	var expired []string
	ts.PopExpired(instant(10), func(_ int, v string) {
		expired = append(expired, v)
	}, nil)

	assert.Equal(t, []string{"due"}, expired)
	assert.Equal(t, 1, ts.Len())
	assert.Equal(t, instant(15), ts.Next())
}

func TestTimerStorePopExpiredHandlesAllDue(t *testing.T) {
	ts := NewTimerStore[string]()
	ts.Push(instant(1), "a")
	ts.Push(instant(2), "b")
	ts.Push(instant(3), "c")

	var expired []string
	ts.PopExpired(instant(100), func(_ int, v string) {
		expired = append(expired, v)
	}, nil)

	assert.Len(t, expired, 3)
	assert.Equal(t, 0, ts.Len())
	assert.True(t, ts.Next().IsNever())
}

func BenchmarkTimerStorePushAndPopExpired(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ts := NewTimerStore[int]()
		for j := 0; j < 256; j++ {
			ts.Push(instant(int64(j)), j)
		}
		ts.PopExpired(instant(1<<30), nil, nil)
	}
}
