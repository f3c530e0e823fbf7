package basis

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/kovidgoyal/uplift/spectrum"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDefaultIsOrthonormal(t *testing.T) {
	b, err := Default(DefaultK)
	require.NoError(t, err)
	require.Equal(t, DefaultK, b.K())
	var g mat.Dense
	g.Mul(b.Functions.T(), b.Functions)
	require.True(t, mat.EqualApprox(&g, eye(DefaultK), 1e-12))
	_, err = Default(0)
	require.ErrorIs(t, err, ErrBadDimension)
	_, err = Default(spectrum.N + 1)
	require.ErrorIs(t, err, ErrBadDimension)
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := range n {
		m.Set(i, i, 1)
	}
	return m
}

func TestSpectrumCoefficientsRoundtrip(t *testing.T) {
	b, err := Default(8)
	require.NoError(t, err)
	coeffs := []float64{0.3, -0.1, 0.05, 0, 0.02, -0.03, 0.01, 0.04}
	s := b.Spectrum(coeffs)
	back, err := b.Coefficients(s)
	require.NoError(t, err)
	require.InDeltaSlice(t, coeffs, back, 1e-12)
	require.Equal(t, b.Mean, b.Spectrum(make([]float64, 8)))
}

func TestFitRecoversSubspace(t *testing.T) {
	// samples generated from three smooth functions must be reproduced
	// exactly by a three function PCA basis
	gen, err := Default(3)
	require.NoError(t, err)
	r := rand.New(rand.NewPCG(1, 2))
	samples := make([]spectrum.Spectrum, 50)
	for i := range samples {
		samples[i] = gen.Spectrum([]float64{r.Float64() - 0.5, 0.2 * (r.Float64() - 0.5), 0.1 * (r.Float64() - 0.5)})
	}
	b, err := Fit(samples, 3)
	require.NoError(t, err)
	for _, s := range samples[:10] {
		c, err := b.Coefficients(s)
		require.NoError(t, err)
		back := b.Spectrum(c)
		for j := range back {
			require.InDelta(t, s[j], back[j], 1e-9)
		}
	}
	f0 := b.Function(0)
	require.InDelta(t, 1, f0.Norm(), 1e-9)
	require.False(t, math.IsNaN(f0.Sum()))

	_, err = Fit(samples[:1], 1)
	require.ErrorIs(t, err, ErrBadDimension)
	_, err = Fit(samples, 40)
	require.ErrorIs(t, err, ErrBadDimension)
}
