package reactor

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakeChannelSignalThenDrain(t *testing.T) {
	w, err := NewWakeChannel()
	require.NoError(t, err)
	defer w.Close()

	w.Signal(3)
	w.Signal(7)

	tokens, overrun := w.Drain()
	assert.False(t, overrun)
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	assert.Equal(t, []uint32{3, 7}, tokens)
}

func TestWakeChannelDrainIsEmptyWhenIdle(t *testing.T) {
	w, err := NewWakeChannel()
	require.NoError(t, err)
	defer w.Close()

	tokens, overrun := w.Drain()
	assert.Empty(t, tokens)
	assert.False(t, overrun)
}

func TestWakeChannelOverrunPastBatchCap(t *testing.T) {
	w, err := NewWakeChannel()
	require.NoError(t, err)
	defer w.Close()

	for i := uint32(1); i <= wakeBatchCap+10; i++ {
		w.Signal(i)
	}

	tokens, overrun := w.Drain()
	assert.True(t, overrun)
	assert.Len(t, tokens, wakeBatchCap)
}

func TestWakeChannelSignalAfterCloseIsNoop(t *testing.T) {
	w, err := NewWakeChannel()
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.NotPanics(t, func() { w.Signal(1) })
}
