package moses

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFieldSet_Empty(t *testing.T) {
	fs := NewFieldSet(nil)
	require.True(t, fs.Empty())
	require.Equal(t, 0, fs.Len())
}

// TestDiscreteRoundTrip exercises R2: get(f, set(f, v, i)) == v for every
// value in the field's domain.
func TestDiscreteRoundTrip(t *testing.T) {
	fs := NewFieldSet([]Field{
		NewDiscreteField(2),
		NewDiscreteField(5),
		NewDiscreteField(17),
	})
	inst := fs.ZeroInstance()

	for fieldID, card := range []int{2, 5, 17} {
		for v := 0; v < card; v++ {
			fs.Set(fieldID, uint64(v), &inst)
			require.Equal(t, uint64(v), fs.Get(fieldID, inst), "field %d value %d", fieldID, v)
		}
	}
}

func TestDiscreteFieldsDoNotOverlap(t *testing.T) {
	fs := NewFieldSet([]Field{
		NewDiscreteField(3),
		NewDiscreteField(200),
		NewDiscreteField(4),
	})
	inst := fs.ZeroInstance()
	fs.Set(0, 2, &inst)
	fs.Set(1, 150, &inst)
	fs.Set(2, 3, &inst)

	require.Equal(t, uint64(2), fs.Get(0, inst))
	require.Equal(t, uint64(150), fs.Get(1, inst))
	require.Equal(t, uint64(3), fs.Get(2, inst))
}

// TestContinuousStopSentinel exercises the ternary stop-sentinel encoding
// from spec.md §4.1: digits beyond the first Stop are ignored on read and
// cleared on write.
func TestContinuousStopSentinel(t *testing.T) {
	fs := NewFieldSet([]Field{NewContinuousField(4)})
	inst := fs.ZeroInstance()

	fs.SetContinuous(0, []int{TernaryL, TernaryR, TernaryL}, &inst)
	require.Equal(t, []int{TernaryL, TernaryR, TernaryL}, fs.GetContinuous(0, inst))

	// Writing fewer digits than depth pads with Stop; reading only returns
	// the digits before the first Stop.
	fs.SetContinuous(0, []int{TernaryR}, &inst)
	require.Equal(t, []int{TernaryR}, fs.GetContinuous(0, inst))

	// A Stop embedded mid-sequence truncates everything after it, and the
	// write normalizes the trailing bits so Equal matches semantic equality.
	inst2 := fs.ZeroInstance()
	fs.SetContinuous(0, []int{TernaryL, TernaryS, TernaryR}, &inst2)
	require.Equal(t, []int{TernaryL}, fs.GetContinuous(0, inst2))

	expected := fs.ZeroInstance()
	fs.SetContinuous(0, []int{TernaryL}, &expected)
	require.True(t, inst2.Equal(expected), "normalized write must equal the semantically-equivalent shorter write")
}

func TestInstanceEqualAndHash(t *testing.T) {
	fs := NewFieldSet([]Field{NewDiscreteField(4), NewContinuousField(3)})
	a := fs.ZeroInstance()
	b := fs.ZeroInstance()
	require.True(t, a.Equal(b))
	require.Equal(t, a.Hash(), b.Hash())

	fs.Set(0, 3, &a)
	require.False(t, a.Equal(b))
}

func TestTermField(t *testing.T) {
	fs := NewFieldSet([]Field{NewTermField(10)})
	inst := fs.ZeroInstance()
	fs.Set(0, 7, &inst)
	require.Equal(t, uint64(7), fs.Get(0, inst))
}
