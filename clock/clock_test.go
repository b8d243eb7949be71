package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeverIsGreatestInstant(t *testing.T) {
	now := Monotonic()
	assert.True(t, now.Before(Never))
	assert.True(t, Never.After(now))
	assert.True(t, Never.IsNever())
	assert.False(t, now.IsNever())
}

func TestOrderingTotal(t *testing.T) {
	a := Instant{Sec: 1, Nsec: 0}
	b := Instant{Sec: 1, Nsec: 500}
	c := Instant{Sec: 2, Nsec: 0}
	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.True(t, c.After(a))
	assert.False(t, a.Before(a))
}

func TestAddSaturatesToNever(t *testing.T) {
	got := Never.Add(time.Second)
	assert.Equal(t, Never, got)

	big := Instant{Sec: 1<<63 - 2}
	got = big.Add(10 * time.Second)
	assert.Equal(t, Never, got)
}

func TestAddNormalizesNanoseconds(t *testing.T) {
	base := Instant{Sec: 10, Nsec: 900_000_000}
	got := base.Add(200 * time.Millisecond)
	require.Equal(t, int64(11), got.Sec)
	require.Equal(t, int32(100_000_000), got.Nsec)
}

func TestSubSaturatesInsteadOfOverflowing(t *testing.T) {
	d := Never.Sub(Instant{})
	assert.Equal(t, time.Duration(1<<63-1), d)
}

func TestSubSymmetric(t *testing.T) {
	a := Instant{Sec: 100, Nsec: 250}
	b := Instant{Sec: 90, Nsec: 750}
	assert.Equal(t, -a.Sub(b), b.Sub(a))
}
