package serialization

import "reflect"

// nullTypeID is the distinguished id written for a nil polymorphic pointer
// (spec §5, "Polymorphic cast registration surface").
const nullTypeID uint32 = 0

// TypeStub holds the store/load closures and factory registered for one
// concrete type under a TypeMap.
type TypeStub struct {
	id      uint32
	rtype   reflect.Type
	factory func() interface{}
	store   func(s *Serializer, v interface{})
	load    func(d *Deserializer, v interface{})
}

// TypeMap maps wire type ids to concrete Go types, mirroring the original's
// factory-based polymorphic registry: a base-class pointer is written as
// (type id, payload) and read back by looking up the id, constructing a
// zero value via the registered factory, and decoding into it.
//
// Casts let a value registered under one concrete type also be read back
// through a less-derived interface (spec's "Polymorphic cast registration
// surface") — Go has no implicit upcast, so the conversion is an explicit
// registered function keyed by the (concrete, interface) type pair.
type TypeMap struct {
	byID   map[uint32]*TypeStub
	byType map[reflect.Type]*TypeStub
	casts  map[castKey]func(interface{}) interface{}
}

type castKey struct {
	from reflect.Type
	to   reflect.Type
}

// NewTypeMap constructs an empty registry.
func NewTypeMap() *TypeMap {
	return &TypeMap{
		byID:   make(map[uint32]*TypeStub),
		byType: make(map[reflect.Type]*TypeStub),
		casts:  make(map[castKey]func(interface{}) interface{}),
	}
}

// RegisterType associates id with T, storeFn describing how to push a *T's
// fields and loadFn how to pull them into a freshly factory-constructed *T.
// id must be nonzero; zero is reserved for the null encoding.
func RegisterType[T any](tm *TypeMap, id uint32, factory func() *T, storeFn func(s *Serializer, v *T), loadFn func(d *Deserializer, v *T)) {
	if id == nullTypeID {
		panic("serialization: type id 0 is reserved for null")
	}
	rtype := reflect.TypeOf((*T)(nil))
	stub := &TypeStub{
		id:      id,
		rtype:   rtype,
		factory: func() interface{} { return factory() },
		store:   func(s *Serializer, v interface{}) { storeFn(s, v.(*T)) },
		load:    func(d *Deserializer, v interface{}) { loadFn(d, v.(*T)) },
	}
	tm.byID[id] = stub
	tm.byType[rtype] = stub
}

// RegisterCast teaches the map how to widen a *Derived value to whatever
// interface or pointer type callers pull as To, so a pointer registered
// under its concrete type can still be read back through a base interface
// (spec's polymorphic cast surface; Go has no implicit upcast).
func RegisterCast[Derived any, To any](tm *TypeMap, convert func(*Derived) To) {
	from := reflect.TypeOf((*Derived)(nil))
	to := reflect.TypeOf((*To)(nil)).Elem()
	tm.casts[castKey{from: from, to: to}] = func(v interface{}) interface{} {
		return convert(v.(*Derived))
	}
}

func (tm *TypeMap) stubFor(v interface{}) (*TypeStub, bool) {
	stub, ok := tm.byType[reflect.TypeOf(v)]
	return stub, ok
}

// PushPointer writes (type id, payload) for a polymorphic pointer, or the
// null id alone if ptr is nil. ptr must be a pointer type registered via
// RegisterType, or nil.
func (s *Serializer) PushPointer(tm *TypeMap, ptr interface{}) {
	if ptr == nil || reflect.ValueOf(ptr).IsNil() {
		s.PushUint(uint64(nullTypeID))
		return
	}
	stub, ok := tm.stubFor(ptr)
	if !ok {
		s.fail(ErrNoType)
		return
	}
	s.PushUint(uint64(stub.id))
	stub.store(s, ptr)
}

// PullPointer reads a polymorphic pointer written by PushPointer, invoking
// assign with the factory-constructed, fully decoded value (already cast
// to To via a registered RegisterCast conversion if the stored id's
// concrete type differs from To), or with nil for the null id.
func PullPointer[To any](d *Deserializer, tm *TypeMap, assign func(To)) {
	var id uint64
	d.readCrossUint("type-id", func(v uint64) { id = v })
	d.pushThen("type-dispatch", func() bool {
		if uint32(id) == nullTypeID {
			var zero To
			assign(zero)
			return false
		}
		stub, ok := tm.byID[uint32(id)]
		if !ok {
			d.fail(ErrNoType)
			return false
		}
		v := stub.factory()
		d.beginChildren()
		// type-load resets the cursor to its own position before calling
		// stub.load, so the fields it pulls run to completion before
		// type-assign (queued right after it below) ever sees v — not
		// merely before type-assign is *scheduled*.
		d.pushThen("type-load", func() bool {
			d.beginChildren()
			before := len(d.frames)
			stub.load(d, v)
			return len(d.frames) > before
		})
		d.push("type-assign", func(_ []byte) (int, stepResult) {
			if direct, ok := v.(To); ok {
				assign(direct)
				return 0, stepDone
			}
			toType := reflect.TypeOf((*To)(nil)).Elem()
			convert, ok := tm.casts[castKey{from: stub.rtype, to: toType}]
			if !ok {
				d.fail(ErrNoCast)
				return 0, stepDone
			}
			assign(convert(v).(To))
			return 0, stepDone
		})
		return true
	})
}
