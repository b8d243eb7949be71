package serialization

// PushVersioned writes version as a cross-integer, then calls body to queue
// the record's own fields. body typically branches on version to decide
// which fields to emit, matching the original's "version once at the outer
// frame, nested types dispatch by version" convention rather than stamping
// a version on every nested field.
func (s *Serializer) PushVersioned(version uint32, body func(s *Serializer)) {
	s.PushUint(uint64(version))
	prev := s.version
	s.version = version
	body(s)
	s.version = prev
}

// PullVersioned reads the cross-integer version written by PushVersioned
// and calls body with it once decoded; body is expected to branch on the
// version to decide which fields to pull, mirroring PushVersioned. Unlike
// the push side, the version isn't known until it comes off the wire, so
// body's own Pull* calls are queued as children of a dedicated frame
// rather than invoked inline.
func (d *Deserializer) PullVersioned(body func(d *Deserializer, version uint32)) {
	var version uint64
	d.readCrossUint("version", func(v uint64) { version = v })
	d.pushThen("versioned-body", func() bool {
		prev := d.version
		d.version = uint32(version)
		d.beginChildren()
		before := len(d.frames)
		body(d, uint32(version))
		d.version = prev
		return len(d.frames) > before
	})
}
