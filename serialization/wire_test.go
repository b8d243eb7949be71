package serialization_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/solidframe-go/reactorcore/serialization"
)

func runToCompletion(t *testing.T, s *Serializer, chunkSize int) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, chunkSize)
	for !s.Done() {
		n := s.Run(buf)
		require.NoError(t, s.Err())
		if n == 0 && !s.Done() {
			t.Fatal("serializer made no progress with a nonzero-capacity buffer")
		}
		out = append(out, buf[:n]...)
	}
	return out
}

// TestTripleEncodeMatchesSpecExpectedBytes exercises spec scenario 4:
// {u32 = 0xDEADBEEF, string "hello", vector<u16> [1,2,3]}.
func TestTripleEncodeMatchesSpecExpectedBytes(t *testing.T) {
	s := NewSerializer(DefaultLimits())
	s.PushUint(0xDEADBEEF)
	s.PushString("hello")
	vec := []uint16{1, 2, 3}
	s.PushContainer(len(vec), func(i int) { s.PushUint(uint64(vec[i])) })

	got := runToCompletion(t, s, 4096)

	want := []byte{
		0x04, 0xEF, 0xBE, 0xAD, 0xDE, // u32 0xDEADBEEF
		0x01, 0x05, 'h', 'e', 'l', 'l', 'o', // "hello"
		0x01, 0x03, // container count = 3
		0x01, 0x01, // element 0 = 1
		0x01, 0x02, // element 1 = 2
		0x01, 0x03, // element 2 = 3
	}
	assert.Equal(t, want, got)
}

func TestTripleRoundTripsThroughDeserializer(t *testing.T) {
	s := NewSerializer(DefaultLimits())
	s.PushUint(0xDEADBEEF)
	s.PushString("hello")
	vec := []uint16{1, 2, 3}
	s.PushContainer(len(vec), func(i int) { s.PushUint(uint64(vec[i])) })
	wire := runToCompletion(t, s, 4096)

	d := NewDeserializer(DefaultLimits())
	var u uint64
	var str string
	var n int
	var scratch []uint64
	d.PullUint(&u)
	d.PullString(&str)
	d.PullContainer(func(count int) { n = count; scratch = make([]uint64, count) }, func(i int) {
		d.PullUint(&scratch[i])
	})

	consumed := d.Run(wire)
	require.NoError(t, d.Err())
	assert.Equal(t, len(wire), consumed)
	assert.True(t, d.Done())
	assert.Equal(t, uint64(0xDEADBEEF), u)
	assert.Equal(t, "hello", str)
	assert.Equal(t, 3, n)
	decoded := make([]uint16, n)
	for i, v := range scratch {
		decoded[i] = uint16(v)
	}
	assert.Equal(t, []uint16{1, 2, 3}, decoded)
}

// TestRoundTripSurvivesArbitraryChunkBoundaries is the split-at-arbitrary-
// points round-trip law from spec §8: feeding bytes in any chunking
// produces the same decode as feeding them all at once.
func TestRoundTripSurvivesArbitraryChunkBoundaries(t *testing.T) {
	for _, chunkSize := range []int{1, 2, 3, 5, 7, 4096} {
		s := NewSerializer(DefaultLimits())
		s.PushUint(0xDEADBEEF)
		s.PushString("hello world, this is a longer string to force multiple chunks")
		vec := []uint16{10, 20, 30, 40, 50}
		s.PushContainer(len(vec), func(i int) { s.PushUint(uint64(vec[i])) })
		wire := runToCompletion(t, s, 4096)

		d := NewDeserializer(DefaultLimits())
		var u uint64
		var str string
		var scratch []uint64
		d.PullUint(&u)
		d.PullString(&str)
		d.PullContainer(func(count int) { scratch = make([]uint64, count) }, func(i int) {
			d.PullUint(&scratch[i])
		})

		pos := 0
		for pos < len(wire) {
			end := pos + chunkSize
			if end > len(wire) {
				end = len(wire)
			}
			d.Run(wire[pos:end])
			pos = end
		}
		require.NoError(t, d.Err(), "chunkSize=%d", chunkSize)
		assert.True(t, d.Done(), "chunkSize=%d", chunkSize)
		assert.Equal(t, uint64(0xDEADBEEF), u, "chunkSize=%d", chunkSize)
		assert.Equal(t, "hello world, this is a longer string to force multiple chunks", str, "chunkSize=%d", chunkSize)
		decoded := make([]uint16, len(scratch))
		for i, v := range scratch {
			decoded[i] = uint16(v)
		}
		assert.Equal(t, []uint16{10, 20, 30, 40, 50}, decoded, "chunkSize=%d", chunkSize)
	}
}

func TestBoolEncodingUsesSpecBytes(t *testing.T) {
	s := NewSerializer(DefaultLimits())
	s.PushBool(true)
	s.PushBool(false)
	got := runToCompletion(t, s, 16)
	assert.Equal(t, []byte{0xFF, 0xAA}, got)
}

func TestBitsetPacksBitsLowToHigh(t *testing.T) {
	s := NewSerializer(DefaultLimits())
	s.PushBitset([]bool{true, false, true, false, false, false, false, false, true})
	got := runToCompletion(t, s, 16)
	// count=9 -> cross-integer {1,9}; ceil(9/8)=2 bytes: 0b00000101, 0b00000001
	assert.Equal(t, []byte{0x01, 0x09, 0x05, 0x01}, got)

	d := NewDeserializer(DefaultLimits())
	var out []bool
	d.PullBitset(&out)
	d.Run(got)
	require.NoError(t, d.Err())
	assert.Equal(t, []bool{true, false, true, false, false, false, false, false, true}, out)
}
