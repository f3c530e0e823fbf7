package mismatch

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/kovidgoyal/uplift/basis"
	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/kovidgoyal/uplift/csys"
	"github.com/kovidgoyal/uplift/hull"
	"github.com/kovidgoyal/uplift/spectrum"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func default_basis(t *testing.T) *basis.Basis {
	b, err := basis.Default(basis.DefaultK)
	require.NoError(t, err)
	return b
}

func reference_spectrum(b *basis.Basis) spectrum.Spectrum {
	r := rand.New(rand.NewPCG(3, 4))
	c := make([]float64, b.K())
	for i := range c {
		c[i] = 0.1 * (2*r.Float64() - 1)
	}
	return b.Spectrum(c)
}

func dot3(d []float64, p colorconv.Vec3) float64 { return d[0]*p[0] + d[1]*p[1] + d[2]*p[2] }

func TestDirections(t *testing.T) {
	a := Directions(32, 6, 11)
	require.Len(t, a, 32)
	for _, d := range a {
		require.Len(t, d, 6)
		require.InDelta(t, 1, floats.Norm(d, 2), 1e-12)
	}
	require.Equal(t, a, Directions(32, 6, 11))
	require.NotEqual(t, a[0], a[1])
	// each direction only depends on its own index
	require.Equal(t, a[5], Directions(6, 6, 11)[5])
	require.NotEqual(t, a, Directions(32, 6, 12))
	require.Equal(t, 3, Dims(1))
	require.Equal(t, 9, Dims(3))
	require.Equal(t, 3, Dims(0))
}

func TestOCSPointsAreExtremal(t *testing.T) {
	b := default_basis(t)
	free := csys.SRGB(spectrum.D65).Finalize()
	bd, err := OCS(b, free, 32, 1, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, bd.Points, 32)
	require.Zero(t, bd.Failed)
	require.False(t, bd.Degenerate)
	require.NoError(t, bd.Err())
	for i, d := range bd.Directions {
		pi := Vec3(bd.Points[i])
		require.True(t, pi.IsFinite())
		require.True(t, bd.Spectra[i].InBounds(0))
		for j := range bd.Points {
			require.GreaterOrEqual(t, dot3(d, pi), dot3(d, Vec3(bd.Points[j]))-1e-6)
		}
		// mid gray is inside the object colour solid
		require.GreaterOrEqual(t, dot3(d, pi), dot3(d, free.Apply(spectrum.Constant(0.5)))-1e-6)
	}
}

func TestMismatchBoundaryContainsReference(t *testing.T) {
	b := default_basis(t)
	ref := reference_spectrum(b)
	fixed := csys.SRGB(spectrum.D65).Finalize()
	free := csys.SRGB(spectrum.FL11()).Finalize()
	target := fixed.Apply(ref)
	in := Input{
		Basis: b, Fixed: []csys.Response{fixed}, Targets: []colorconv.Vec3{target},
		Free: free, Directions: Directions(32, Dims(1), 5),
	}
	bd, err := Generate(in, DefaultOptions())
	require.NoError(t, err)
	require.Zero(t, bd.Failed)
	inside := free.Apply(ref)
	for i, d := range bd.Directions {
		require.LessOrEqual(t, fixed.Apply(bd.Spectra[i]).Sub(target).MaxAbs(), 1e-6)
		require.GreaterOrEqual(t, dot3(d, Vec3(bd.Points[i])), dot3(d, inside)-1e-6)
	}
	// the centroid of a convex boundary is close to its interior
	require.Less(t, Vec3(bd.Center).Sub(inside).Norm(), 2*bd.Radius())
}

func TestDegenerateWhenFreeEqualsFixed(t *testing.T) {
	b := default_basis(t)
	fixed := csys.SRGB(spectrum.D65).Finalize()
	target := fixed.Apply(reference_spectrum(b))
	bd, err := Generate(Input{
		Basis: b, Fixed: []csys.Response{fixed}, Targets: []colorconv.Vec3{target},
		Free: fixed, Directions: Directions(16, 3, 1),
	}, DefaultOptions())
	require.NoError(t, err)
	require.True(t, bd.Degenerate)
	require.ErrorIs(t, bd.Err(), ErrDegenerate)
	for _, p := range bd.Points {
		require.Equal(t, bd.Center, p)
	}
	require.Less(t, Vec3(bd.Center).Sub(target).MaxAbs(), 1e-4)
}

func TestNoFreedom(t *testing.T) {
	b := default_basis(t)
	fixed := csys.SRGB(spectrum.D65).Finalize()
	_, err := Generate(Input{
		Basis: b, Fixed: []csys.Response{fixed}, Targets: []colorconv.Vec3{{5, 5, 5}},
		Free: fixed, Directions: Directions(8, 3, 1),
	}, DefaultOptions())
	require.ErrorIs(t, err, ErrNoFreedom)
}

func TestBadInput(t *testing.T) {
	b := default_basis(t)
	fixed := csys.SRGB(spectrum.D65).Finalize()
	for _, in := range []Input{
		{Free: fixed, Directions: Directions(4, 3, 1)},
		{Basis: b, Fixed: []csys.Response{fixed}, Free: fixed, Directions: Directions(4, 3, 1)},
		{Basis: b, Free: fixed},
		{Basis: b, Free: fixed, Directions: [][]float64{{1, 0}}},
		{Basis: b, Fixed: []csys.Response{fixed}, Targets: []colorconv.Vec3{{math.NaN(), 0, 0}}, Free: fixed, Directions: Directions(4, 3, 1)},
	} {
		_, err := Generate(in, DefaultOptions())
		require.ErrorIs(t, err, ErrBadInput)
	}
}

func TestOCSTerminates(t *testing.T) {
	b := default_basis(t)
	free := csys.SRGB(spectrum.D65).Finalize()
	type result struct {
		bd  *Boundary
		err error
	}
	done := make(chan result, 1)
	go func() {
		bd, err := OCS(b, free, 64, 0x5eed, DefaultOptions())
		done <- result{bd, err}
	}()
	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Len(t, r.bd.Points, 64)
		require.Zero(t, r.bd.Failed)
		for _, s := range r.bd.Spectra {
			require.True(t, s.InBounds(0))
		}
	case <-time.After(time.Minute):
		t.Fatal("object colour solid did not finish within a minute")
	}
	// every direction of a different seed as well
	for i, d := range Directions(4, 3, 1) {
		bd, err := Generate(Input{Basis: b, Free: free, Directions: [][]float64{d}}, DefaultOptions())
		require.NoError(t, err, "direction %d", i)
		require.Zero(t, bd.Failed, "direction %d", i)
	}
}

func TestSecondaryFixedConstraint(t *testing.T) {
	b := default_basis(t)
	ref := reference_spectrum(b)
	fixed := []csys.Response{csys.SRGB(spectrum.D65).Finalize(), csys.SRGB(spectrum.A).Finalize()}
	targets := []colorconv.Vec3{fixed[0].Apply(ref), fixed[1].Apply(ref)}
	free := csys.SRGB(spectrum.FL11()).Finalize()
	dirs := Directions(32, Dims(len(fixed)), 5)
	bd, err := Generate(Input{Basis: b, Fixed: fixed, Targets: targets, Free: free, Directions: dirs}, DefaultOptions())
	require.NoError(t, err)
	require.Zero(t, bd.Failed)
	require.False(t, bd.Degenerate)
	inside := free.Apply(ref)
	for i, d := range bd.Directions {
		require.Len(t, d, 6)
		require.True(t, bd.Spectra[i].InBounds(0))
		for j, f := range fixed {
			require.LessOrEqual(t, f.Apply(bd.Spectra[i]).Sub(targets[j]).MaxAbs(), 1e-6, "direction %d system %d", i, j)
		}
		require.GreaterOrEqual(t, dot3(d, Vec3(bd.Points[i])), dot3(d, inside)-1e-6)
	}
	m, err := hull.Build(bd.Points, hull.Options{})
	require.NoError(t, err)
	require.Greater(t, m.Volume, 0.0)
}
