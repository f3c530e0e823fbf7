package state

import (
	"slices"
	"testing"

	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/kovidgoyal/uplift/spectrum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type circle struct{ Radius float64 }
type square struct{ Side float64 }

type shape struct {
	Kind   int
	Circle circle
	Square square
}

func (s shape) VariantTag() int { return s.Kind }
func (s shape) VariantValue() any {
	if s.Kind == 0 {
		return s.Circle
	}
	return s.Square
}

type thing struct {
	Name   string
	Color  colorconv.Vec3
	Refl   spectrum.Spectrum
	Matrix *mat.Dense
	Shapes []shape
	Weight float64
}

func base_thing() thing {
	return thing{
		Name: "a", Color: colorconv.Vec3{0.1, 0.2, 0.3}, Refl: spectrum.Constant(0.5),
		Matrix: mat.NewDense(2, 2, []float64{1, 2, 3, 4}),
		Shapes: []shape{{Kind: 0, Circle: circle{1}}}, Weight: 1,
	}
}

func TestChanged(t *testing.T) {
	const tol = 1e-6
	a := base_thing()
	for _, tc := range []struct {
		name    string
		mutate  func(*thing)
		changed bool
	}{
		{"identical", func(*thing) {}, false},
		{"float noise", func(x *thing) { x.Weight += 1e-9 }, false},
		{"float change", func(x *thing) { x.Weight = 1.1 }, true},
		{"color noise", func(x *thing) { x.Color[0] += 1e-9 }, false},
		{"color change", func(x *thing) { x.Color[2] = 0.31 }, true},
		{"spectrum noise", func(x *thing) { x.Refl[3] += 1e-8 }, false},
		{"spectrum change", func(x *thing) { x.Refl[3] = 0.6 }, true},
		{"matrix copy", func(x *thing) { x.Matrix = mat.DenseCopyOf(x.Matrix) }, false},
		{"matrix change", func(x *thing) { x.Matrix = mat.NewDense(2, 2, []float64{1, 2, 3, 5}) }, true},
		{"matrix shape", func(x *thing) { x.Matrix = mat.NewDense(1, 4, []float64{1, 2, 3, 4}) }, true},
		{"inactive payload", func(x *thing) { x.Shapes = []shape{{Kind: 0, Circle: circle{1}, Square: square{7}}} }, false},
		{"active payload", func(x *thing) { x.Shapes = []shape{{Kind: 0, Circle: circle{2}}} }, true},
		{"tag", func(x *thing) { x.Shapes = []shape{{Kind: 1, Circle: circle{1}}} }, true},
		{"name", func(x *thing) { x.Name = "b" }, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := base_thing()
			tc.mutate(&b)
			assert.Equal(t, tc.changed, Changed(a, b, tol), Describe(a, b, tol))
		})
	}
}

func TestValue(t *testing.T) {
	v := NewValue[colorconv.Vec3](1e-6, nil)
	require.False(t, v.Stale())
	require.True(t, v.Update(colorconv.Vec3{1, 1, 1}))
	require.True(t, v.Stale())
	require.False(t, v.Update(colorconv.Vec3{1, 1, 1}))
	require.True(t, v.Stale(), "flags are sticky until acknowledged")
	v.Ack()
	require.False(t, v.Stale())
	require.True(t, v.Update(colorconv.Vec3{1, 0, 1}))
	require.True(t, v.Stale())
}

func TestSequence(t *testing.T) {
	s := NewSequence[colorconv.Vec3](1e-6, nil)
	values := []colorconv.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	original := slices.Clone(values)

	d := s.Update(values)
	require.True(t, d.Resized)
	require.True(t, d.Any)
	require.Equal(t, []int{0, 1, 2}, d.Stale)
	require.Equal(t, 3, s.Len())
	s.AckAll()
	require.False(t, s.AnyStale())
	require.False(t, s.Resized())

	d = s.Update(values)
	require.False(t, d.Any)
	require.Empty(t, d.Stale)

	values[1] = colorconv.Vec3{1, 0.5, 0}
	d = s.Update(values)
	require.Equal(t, Diff{Stale: []int{1}, Any: true}, d)
	require.True(t, s.Stale(1))
	require.False(t, s.Stale(0))

	// unchanged update leaves the sticky flag alone
	d = s.Update(values)
	require.False(t, d.Any)
	require.True(t, s.Stale(1))
	s.Ack(1)
	require.False(t, s.AnyStale())

	// grow: only the new index is stale
	values = append(values, colorconv.Vec3{0, 0, 1})
	d = s.Update(values)
	require.True(t, d.Resized)
	require.Equal(t, []int{3}, d.Stale)
	require.Equal(t, []int{3}, s.StaleIndices())
	require.True(t, s.Resized())
	s.AckAll()

	// shrink: nothing is stale but the tracker knows it resized
	d = s.Update(values[:2])
	require.True(t, d.Resized)
	require.True(t, d.Any)
	require.Empty(t, d.Stale)
	require.Equal(t, 2, s.Len())
	require.True(t, s.AnyStale())
	require.False(t, s.Stale(3))

	s.MarkAll()
	require.Equal(t, []int{0, 1}, s.StaleIndices())

	// observing never modifies the observed values
	require.Equal(t, original[0], values[0])
	require.Equal(t, original[2], values[2])
}

func TestSequenceSnapshotsWithClone(t *testing.T) {
	s := NewSequence(0, slices.Clone[[]float64])
	values := [][]float64{{1, 2}, {3}}
	s.Update(values)
	s.AckAll()
	values[0][1] = 5
	d := s.Update(values)
	require.Equal(t, []int{0}, d.Stale)
}
