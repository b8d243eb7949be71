package serialization_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/solidframe-go/reactorcore/serialization"
)

// Fruit is the base interface spec scenario 5 decodes through; Apple and
// Orange are concrete registered types.
type Fruit interface {
	Name() string
}

type Apple struct {
	Variety string
}

func (a *Apple) Name() string { return "apple:" + a.Variety }

type Orange struct {
	Segments uint64
}

func (o *Orange) Name() string { return "orange" }

func newFruitTypeMap() *TypeMap {
	tm := NewTypeMap()
	RegisterType[Orange](tm, 1,
		func() *Orange { return &Orange{} },
		func(s *Serializer, v *Orange) { s.PushUint(v.Segments) },
		func(d *Deserializer, v *Orange) {
			d.PullUint(&v.Segments)
		},
	)
	RegisterType[Apple](tm, 2,
		func() *Apple { return &Apple{} },
		func(s *Serializer, v *Apple) { s.PushString(v.Variety) },
		func(d *Deserializer, v *Apple) {
			d.PullString(&v.Variety)
		},
	)
	RegisterCast[Apple, Fruit](tm, func(a *Apple) Fruit { return a })
	RegisterCast[Orange, Fruit](tm, func(o *Orange) Fruit { return o })
	return tm
}

// TestPolymorphicPointerRoundTrip exercises spec scenario 5: register
// Apple (id=2), Orange (id=1) deriving from Fruit; encode a Fruit pointer
// holding an Apple; the decoded pointer is non-null and casts to Apple.
func TestPolymorphicPointerRoundTrip(t *testing.T) {
	tm := newFruitTypeMap()
	s := NewSerializer(DefaultLimits())
	s.PushPointer(tm, &Apple{Variety: "gala"})
	wire := runToCompletion(t, s, 4096)

	d := NewDeserializer(DefaultLimits())
	var fruit Fruit
	PullPointer[Fruit](d, tm, func(f Fruit) { fruit = f })
	d.Run(wire)
	require.NoError(t, d.Err())
	require.NotNil(t, fruit)
	assert.Equal(t, "apple:gala", fruit.Name())
	apple, ok := fruit.(*Apple)
	require.True(t, ok)
	assert.Equal(t, "gala", apple.Variety)
}

func TestPolymorphicNullPointerDecodesAsNil(t *testing.T) {
	tm := newFruitTypeMap()
	s := NewSerializer(DefaultLimits())
	s.PushPointer(tm, (*Apple)(nil))
	wire := runToCompletion(t, s, 4096)

	d := NewDeserializer(DefaultLimits())
	fruit := Fruit(&Apple{Variety: "untouched"})
	PullPointer[Fruit](d, tm, func(f Fruit) { fruit = f })
	d.Run(wire)
	require.NoError(t, d.Err())
	assert.Nil(t, fruit)
}

func TestPolymorphicUnknownTypeIDFailsWithNoType(t *testing.T) {
	tm := NewTypeMap()
	d := NewDeserializer(DefaultLimits())
	var fruit Fruit
	PullPointer[Fruit](d, tm, func(f Fruit) { fruit = f })
	d.Run([]byte{0x01, 0x63}) // type-id = 99, never registered
	assert.ErrorIs(t, d.Err(), ErrNoType)
}
