package spectrum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGrid(t *testing.T) {
	require.Equal(t, 700.0, MaxWavelength)
	require.Equal(t, 400.0, Wavelengths()[0])
	require.Equal(t, 550.0, Wavelength(15))
}

func TestResampleIdentityOnLinearData(t *testing.T) {
	wl := []float64{380, 720}
	vals := []float64{0, 340}
	s, err := Resample(wl, vals)
	require.NoError(t, err)
	for i, v := range s {
		// the mean of a linear function over a symmetric bin is its centre value
		require.InDelta(t, Wavelength(i)-380, v, 1e-9)
	}
	_, err = Resample([]float64{1}, []float64{1})
	require.Error(t, err)
	_, err = Resample([]float64{2, 1}, []float64{1, 1})
	require.Error(t, err)
}

func TestFL11KeepsEmissionEnergy(t *testing.T) {
	fl := FL11()
	// the 545 nm line lands in the 540 and 550 bins
	require.Greater(t, fl[14], 30.0)
	require.Greater(t, fl[15], 30.0)
	require.Less(t, fl[0], 10.0)
}

func TestPlanckNormalisation(t *testing.T) {
	require.InDelta(t, 100, A[16], 1e-9)
	// illuminant A rises towards the red
	require.Greater(t, A[N-1], A[0])
}

func TestSpectrumOps(t *testing.T) {
	s := Constant(0.5)
	require.True(t, s.InBounds(0))
	require.InDelta(t, 0.5*N, s.Sum(), 1e-12)
	o := s.Add(Constant(0.7))
	require.False(t, o.InBounds(1e-9))
	require.InDelta(t, 0.2, o.MaxViolation(), 1e-12)
	require.True(t, o.Clamp().InBounds(0))
	require.Equal(t, 1.0, o.Clamp().Max())
	require.True(t, s.ApproxEqual(s.Add(Constant(1e-12)), 1e-9))
	_, err := FromSlice([]float64{1, 2})
	require.Error(t, err)
}

func TestLookupByName(t *testing.T) {
	for _, name := range IlluminantNames() {
		_, err := IlluminantByName(name)
		require.NoError(t, err)
	}
	_, err := IlluminantByName("FL-11")
	require.NoError(t, err)
	_, err = IlluminantByName("nope")
	require.Error(t, err)
	c, err := CMFSByName("CIE1931")
	require.NoError(t, err)
	require.Equal(t, CIE1931, c)
}
