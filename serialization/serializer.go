package serialization

// stepResult is the outcome of one frame step (spec §4.7 "step function
// contract").
type stepResult uint8

const (
	stepDone stepResult = iota
	stepContinue
	stepWait
)

// boolTrue/boolFalse are the wire encodings for bool (spec §6).
const (
	boolTrue  byte = 0xFF
	boolFalse byte = 0xAA
)

type serializeFrame struct {
	name string
	step func(avail []byte) (n int, res stepResult)
}

// Serializer is a resumable stack-machine encoder over a caller-provided
// byte window (spec §4.7, C8).
//
// frames holds every queued unit of work in execution order; pos is the
// index of the frame currently running. A frame whose own step wants child
// work to run before it continues again (container/array elements, stream
// chunks) splices those children in at pos — ahead of itself and
// everything behind it — via insertPos, which always names "where the next
// sequentially-pushed frame goes". Splicing at pos rather than appending at
// the end is the Go realization of the original's doubly-linked deque with
// a movable sentinel: it reproduces the same "pre-existing work vs.
// work-pushed-by-the-running-frame" ordering without needing a literal
// linked list or sentinel node.
type Serializer struct {
	frames    []serializeFrame
	pos       int
	insertPos int

	err     error
	limits  Limits
	version uint32
}

// NewSerializer constructs an encoder with the given limits.
func NewSerializer(limits Limits) *Serializer {
	return &Serializer{limits: limits}
}

// Err returns the latched error, if any (spec §7).
func (s *Serializer) Err() error { return s.err }

// SetVersion sets the serializer's current protocol version. PushVersioned
// replaces it for the duration of its body call and then restores it; the
// Serializer has no accessor that reads it back.
func (s *Serializer) SetVersion(v uint32) { s.version = v }

func (s *Serializer) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

// insertAt splices fr into frames at index i, shifting i and everything
// after it one position to the right.
func (s *Serializer) insertAt(i int, fr serializeFrame) {
	s.frames = append(s.frames, serializeFrame{})
	copy(s.frames[i+1:], s.frames[i:])
	s.frames[i] = fr
}

// push queues a new frame at the current insertion cursor and advances the
// cursor past it, so a run of sequential Push* calls lands in call order.
func (s *Serializer) push(name string, step func(avail []byte) (int, stepResult)) {
	s.insertAt(s.insertPos, serializeFrame{name: name, step: step})
	s.insertPos++
}

// beginChildren resets the insertion cursor to pos, the position a
// currently-running frame occupies. Anything pushed after this call lands
// immediately ahead of that frame, which itself is shifted right by each
// insert and so naturally resumes once its children finish. Call this once
// at the top of any frame's step closure that pushes children.
func (s *Serializer) beginChildren() { s.insertPos = s.pos }

func (s *Serializer) pushRaw(name string, data []byte) {
	cursor := 0
	s.push(name, func(avail []byte) (int, stepResult) {
		n := copy(avail, data[cursor:])
		cursor += n
		if cursor == len(data) {
			return n, stepDone
		}
		return n, stepWait
	})
}

// Run drives the frame stack against buf, returning the number of bytes
// written. It returns immediately without touching buf once Err() is set.
func (s *Serializer) Run(buf []byte) int {
	written := 0
	for s.pos < len(s.frames) && written < len(buf) {
		if s.err != nil {
			return written
		}
		f := &s.frames[s.pos]
		n, res := f.step(buf[written:])
		written += n
		switch res {
		case stepDone:
			s.pos++
		case stepWait:
			return written
		}
		// stepContinue: loop again; pos is unchanged but frames[pos] may now
		// be a freshly spliced-in child.
	}
	return written
}

// Done reports whether every queued frame has completed.
func (s *Serializer) Done() bool { return s.pos >= len(s.frames) }

// PushUint queues a cross-integer-encoded unsigned value.
func (s *Serializer) PushUint(v uint64) { s.pushRaw("uint", encodeCrossUint(v)) }

// PushInt queues a zigzag cross-integer-encoded signed value.
func (s *Serializer) PushInt(v int64) { s.pushRaw("int", encodeCrossUint(zigzagEncode(v))) }

// PushBool queues a one-byte boolean.
func (s *Serializer) PushBool(b bool) {
	v := boolFalse
	if b {
		v = boolTrue
	}
	s.pushRaw("bool", []byte{v})
}

// PushBytes queues a cross-integer length prefix followed by raw bytes,
// failing with ErrLimitBlob if len(b) exceeds limits.MaxBlob.
func (s *Serializer) PushBytes(b []byte) {
	if s.limits.MaxBlob > 0 && len(b) > s.limits.MaxBlob {
		s.fail(ErrLimitBlob)
		return
	}
	s.PushUint(uint64(len(b)))
	s.pushRaw("bytes", b)
}

// PushString queues a cross-integer length prefix followed by the string's
// bytes, failing with ErrLimitString if it exceeds limits.MaxString.
func (s *Serializer) PushString(str string) {
	if s.limits.MaxString > 0 && len(str) > s.limits.MaxString {
		s.fail(ErrLimitString)
		return
	}
	s.PushUint(uint64(len(str)))
	s.pushRaw("string", []byte(str))
}

// PushContainer queues a cross-integer count followed by each element in
// turn, encoded by calling encodeElem(i) once per index. encodeElem is
// expected to call Push* methods to describe element i; those pushes are
// spliced in ahead of the remaining container work via beginChildren, so
// nested multi-field elements come out in the order encodeElem calls them,
// and iteration resumes correctly across partial Run calls — the Go
// equivalent of the boxed-closure iterator the original keeps per frame.
func (s *Serializer) PushContainer(n int, encodeElem func(i int)) {
	if s.limits.MaxContainer > 0 && n > s.limits.MaxContainer {
		s.fail(ErrLimitContainer)
		return
	}
	s.PushUint(uint64(n))
	s.pushElements(n, encodeElem)
}

// PushArray queues a fixed-length array: no count prefix (the length is
// known to both sides out of band), just the element stream.
func (s *Serializer) PushArray(n int, encodeElem func(i int)) {
	s.pushElements(n, encodeElem)
}

func (s *Serializer) pushElements(n int, encodeElem func(i int)) {
	i := 0
	s.push("elements", func(_ []byte) (int, stepResult) {
		if i >= n {
			return 0, stepDone
		}
		idx := i
		i++
		s.beginChildren()
		encodeElem(idx)
		return 0, stepContinue
	})
}

// PushBitset queues a cross-integer count followed by ceil(count/8) packed
// bytes, bit i at bit (i mod 8) of byte (i/8).
func (s *Serializer) PushBitset(bits []bool) {
	s.PushUint(uint64(len(bits)))
	packed := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			packed[i/8] |= 1 << uint(i%8)
		}
	}
	s.pushRaw("bitset", packed)
}

// StreamProgress is invoked once per chunk emitted by PushStream.
type StreamProgress func(bytesSoFar int, done bool, name string)

// ByteReader is the minimal surface PushStream needs; io.Reader satisfies
// it directly.
type ByteReader interface {
	Read(p []byte) (n int, err error)
}

// PushStream queues a chunked encoding of everything read from r: repeated
// (u16 length, length bytes) records terminated by a zero-length record
// (spec §4.7, §6). Each chunk is capacity-checked against limits.MaxStream.
func (s *Serializer) PushStream(name string, r ByteReader, onProgress StreamProgress) {
	const chunkSize = 2048
	total := 0
	finished := false
	chunk := make([]byte, chunkSize)
	s.push("stream:"+name, func(_ []byte) (int, stepResult) {
		if finished {
			return 0, stepDone
		}
		n, readErr := r.Read(chunk)
		if n > 0 {
			total += n
			if s.limits.MaxStream > 0 && total > s.limits.MaxStream {
				s.fail(ErrLimitStream)
				return 0, stepDone
			}
			header := []byte{byte(n), byte(n >> 8)}
			s.beginChildren()
			s.pushRaw("stream-chunk-header", header)
			s.pushRaw("stream-chunk-body", chunk[:n])
			if onProgress != nil {
				onProgress(total, false, name)
			}
			return 0, stepContinue
		}
		_ = readErr // EOF or any read error both end the stream here
		finished = true
		s.beginChildren()
		s.pushRaw("stream-terminator", []byte{0, 0})
		if onProgress != nil {
			onProgress(total, true, name)
		}
		return 0, stepContinue
	})
}
