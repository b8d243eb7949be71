package serialization

type deserializeFrame struct {
	name string
	step func(avail []byte) (n int, res stepResult)
}

// Deserializer is the decode-side mirror of Serializer: the same
// pos/insertPos splice model drives a resumable frame stack, but frames
// read from avail into caller-supplied destinations instead of writing to
// it (spec §4.7, C8).
type Deserializer struct {
	frames    []deserializeFrame
	pos       int
	insertPos int

	err     error
	limits  Limits
	version uint32
}

// NewDeserializer constructs a decoder with the given limits.
func NewDeserializer(limits Limits) *Deserializer {
	return &Deserializer{limits: limits}
}

// Err returns the latched error, if any.
func (d *Deserializer) Err() error { return d.err }

// Version returns the version of the record whose PullVersioned body
// callback is currently running; outside that call it returns the value
// set by SetVersion (zero by default). Frames the body queues run after it
// returns, so they see the outer value.
func (d *Deserializer) Version() uint32 { return d.version }

// SetVersion seeds the version used before any Versioned frame has decoded.
func (d *Deserializer) SetVersion(v uint32) { d.version = v }

func (d *Deserializer) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Deserializer) insertAt(i int, fr deserializeFrame) {
	d.frames = append(d.frames, deserializeFrame{})
	copy(d.frames[i+1:], d.frames[i:])
	d.frames[i] = fr
}

func (d *Deserializer) push(name string, step func(avail []byte) (int, stepResult)) {
	d.insertAt(d.insertPos, deserializeFrame{name: name, step: step})
	d.insertPos++
}

func (d *Deserializer) beginChildren() { d.insertPos = d.pos }

// pushThen queues a one-shot frame whose job is to inspect state decoded by
// an earlier frame and, once, either finish immediately or splice in
// further children (via beginChildren + push, done inside once) and wait
// for them. once's bool return says whether it pushed children: true
// means "children queued, come back to me when they're done and I'll just
// finish", false means "nothing more to do, finish now". A raw push here
// would be re-entered once its spliced-in children complete (since they
// sit ahead of it in the frame list) and must not redo its own work, hence
// the guard.
func (d *Deserializer) pushThen(name string, once func() (pushedChildren bool)) {
	dispatched := false
	d.push(name, func(_ []byte) (int, stepResult) {
		if dispatched {
			return 0, stepDone
		}
		dispatched = true
		if once() {
			return 0, stepContinue
		}
		return 0, stepDone
	})
}

// Run feeds buf to the frame stack and returns the number of bytes
// consumed. It stops consuming the instant Err() is set. Frames that need
// no bytes (assignments, limit checks) still run once buf is used up, so
// decoding the final bytes of a message leaves Done() true.
func (d *Deserializer) Run(buf []byte) int {
	read := 0
	for d.pos < len(d.frames) {
		if d.err != nil {
			return read
		}
		f := &d.frames[d.pos]
		n, res := f.step(buf[read:])
		read += n
		switch res {
		case stepDone:
			d.pos++
		case stepWait:
			return read
		}
	}
	return read
}

// Done reports whether every queued frame has completed.
func (d *Deserializer) Done() bool { return d.pos >= len(d.frames) }

// readCrossUint queues a resumable read of one cross-integer (spec §6): a
// header byte giving the value's byte count, then that many value bytes.
// Both the header and the value bytes may straddle separate Run calls.
func (d *Deserializer) readCrossUint(name string, cb func(v uint64)) {
	var count int
	var value [maxCrossIntegerBytes]byte
	haveCount := false
	got := 0
	d.push(name, func(avail []byte) (int, stepResult) {
		read := 0
		if !haveCount {
			if len(avail) == 0 {
				return 0, stepWait
			}
			count = int(avail[0])
			read++
			if count < 1 || count > maxCrossIntegerBytes {
				d.fail(ErrCrossInteger)
				return read, stepDone
			}
			haveCount = true
		}
		for got < count && read < len(avail) {
			value[got] = avail[read]
			got++
			read++
		}
		if got < count {
			return read, stepWait
		}
		var v uint64
		for i := 0; i < count; i++ {
			v |= uint64(value[i]) << (8 * i)
		}
		cb(v)
		return read, stepDone
	})
}

// PullUint decodes a cross-integer into *out once this frame runs.
func (d *Deserializer) PullUint(out *uint64) {
	d.readCrossUint("uint", func(v uint64) { *out = v })
}

// PullInt decodes a zigzag cross-integer into *out.
func (d *Deserializer) PullInt(out *int64) {
	d.readCrossUint("int", func(v uint64) { *out = zigzagDecode(v) })
}

// PullBool decodes a one-byte boolean. Any nonzero byte other than
// boolFalse is treated as true, matching the original's tolerant bool
// decode.
func (d *Deserializer) PullBool(out *bool) {
	d.push("bool", func(avail []byte) (int, stepResult) {
		if len(avail) == 0 {
			return 0, stepWait
		}
		*out = avail[0] != boolFalse && avail[0] != 0
		return 1, stepDone
	})
}

func (d *Deserializer) readRawInto(name string, dst []byte) {
	got := 0
	d.push(name, func(avail []byte) (int, stepResult) {
		n := copy(dst[got:], avail)
		got += n
		if got == len(dst) {
			return n, stepDone
		}
		return n, stepWait
	})
}

// PullBytes decodes a length-prefixed blob into a freshly allocated slice,
// failing with ErrLimitBlob if the decoded length exceeds limits.MaxBlob.
func (d *Deserializer) PullBytes(out *[]byte) {
	var n uint64
	d.readCrossUint("length", func(v uint64) { n = v })
	d.pushThen("length-check", func() bool {
		if d.limits.MaxBlob > 0 && int(n) > d.limits.MaxBlob {
			d.fail(ErrLimitBlob)
			return false
		}
		buf := make([]byte, n)
		d.beginChildren()
		d.readRawInto("bytes", buf)
		d.push("bytes-assign", func(_ []byte) (int, stepResult) {
			*out = buf
			return 0, stepDone
		})
		return true
	})
}

// PullString decodes a length-prefixed string, failing with
// ErrLimitString if the decoded length exceeds limits.MaxString.
func (d *Deserializer) PullString(out *string) {
	var n uint64
	d.readCrossUint("length", func(v uint64) { n = v })
	d.pushThen("length-check", func() bool {
		if d.limits.MaxString > 0 && int(n) > d.limits.MaxString {
			d.fail(ErrLimitString)
			return false
		}
		buf := make([]byte, n)
		d.beginChildren()
		d.readRawInto("string-bytes", buf)
		d.push("string-assign", func(_ []byte) (int, stepResult) {
			*out = string(buf)
			return 0, stepDone
		})
		return true
	})
}

// PullContainer decodes a cross-integer count, failing with
// ErrLimitContainer if it exceeds limits.MaxContainer, then calls
// decodeElem once per index so the caller can pull that element's fields.
// onCount, if non-nil, receives the decoded count (e.g. to preallocate a
// slice) before any element is decoded.
func (d *Deserializer) PullContainer(onCount func(n int), decodeElem func(i int)) {
	var n uint64
	d.readCrossUint("count", func(v uint64) { n = v })
	d.pushThen("count-check", func() bool {
		if d.limits.MaxContainer > 0 && int(n) > d.limits.MaxContainer {
			d.fail(ErrLimitContainer)
			return false
		}
		if onCount != nil {
			onCount(int(n))
		}
		d.beginChildren()
		d.pullElements(int(n), decodeElem)
		return true
	})
}

// PullArray decodes n elements with no count prefix, n being known out of
// band by both sides.
func (d *Deserializer) PullArray(n int, decodeElem func(i int)) {
	d.pullElements(n, decodeElem)
}

func (d *Deserializer) pullElements(n int, decodeElem func(i int)) {
	i := 0
	d.push("elements", func(_ []byte) (int, stepResult) {
		if i >= n {
			return 0, stepDone
		}
		idx := i
		i++
		d.beginChildren()
		decodeElem(idx)
		return 0, stepContinue
	})
}

// PullBitset decodes a cross-integer count followed by ceil(count/8) packed
// bytes into a freshly allocated []bool.
func (d *Deserializer) PullBitset(out *[]bool) {
	var n uint64
	d.readCrossUint("count", func(v uint64) { n = v })
	d.pushThen("bitset-body", func() bool {
		packed := make([]byte, (n+7)/8)
		d.beginChildren()
		d.readRawInto("bitset-bytes", packed)
		d.push("bitset-assign", func(_ []byte) (int, stepResult) {
			bits := make([]bool, n)
			for i := range bits {
				bits[i] = packed[i/8]&(1<<uint(i%8)) != 0
			}
			*out = bits
			return 0, stepDone
		})
		return true
	})
}

// ByteWriter is the minimal surface PullStream needs; io.Writer satisfies
// it directly.
type ByteWriter interface {
	Write(p []byte) (n int, err error)
}

// PullStream decodes the chunked stream encoding written by
// Serializer.PushStream: repeated (u16 length, length bytes) records into
// w, terminated by a zero-length record, failing with ErrLimitStream if the
// running total exceeds limits.MaxStream.
func (d *Deserializer) PullStream(name string, w ByteWriter, onProgress StreamProgress) {
	d.pullStreamChunk(name, w, 0, onProgress)
}

func (d *Deserializer) pullStreamChunk(name string, w ByteWriter, total int, onProgress StreamProgress) {
	var length uint16
	got := 0
	d.push("stream-length:"+name, func(avail []byte) (int, stepResult) {
		read := 0
		for got < 2 && read < len(avail) {
			length |= uint16(avail[read]) << (8 * got)
			got++
			read++
		}
		if got < 2 {
			return read, stepWait
		}
		return read, stepDone
	})
	d.pushThen("stream-body:"+name, func() bool {
		if length == 0 {
			if onProgress != nil {
				onProgress(total, true, name)
			}
			return false
		}
		newTotal := total + int(length)
		if d.limits.MaxStream > 0 && newTotal > d.limits.MaxStream {
			d.fail(ErrLimitStream)
			return false
		}
		chunk := make([]byte, length)
		d.beginChildren()
		d.readRawInto("stream-chunk", chunk)
		d.pushThen("stream-chunk-write", func() bool {
			if _, err := w.Write(chunk); err != nil {
				d.fail(err)
				return false
			}
			if onProgress != nil {
				onProgress(newTotal, false, name)
			}
			d.beginChildren()
			d.pullStreamChunk(name, w, newTotal, onProgress)
			return true
		})
		return true
	})
}
