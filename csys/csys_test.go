package csys

import (
	"testing"

	"github.com/kovidgoyal/uplift/basis"
	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/kovidgoyal/uplift/spectrum"
	"github.com/stretchr/testify/require"
)

func TestWhiteNormalisation(t *testing.T) {
	for _, illum := range []spectrum.Illuminant{spectrum.D65, spectrum.FL11(), spectrum.A, spectrum.E} {
		sys := SRGB(illum)
		sys.Output = XYZ
		w := sys.Finalize().White()
		require.InDelta(t, 1, w[1], 1e-12)
	}
}

func TestD65WhiteIsNeutral(t *testing.T) {
	w := SRGB(spectrum.D65).Finalize().White()
	for _, c := range w {
		// tabulation at 10 nm costs a little accuracy
		require.InDelta(t, 1, c, 0.02)
	}
}

func TestAdaptationNeutralisesWhite(t *testing.T) {
	sys := SRGB(spectrum.A)
	raw := sys.Finalize().White()
	require.Greater(t, raw[0], raw[2]+0.3, "tungsten white should be strongly red: %s", raw)
	sys.Adapt = true
	w := sys.Finalize().White()
	for _, c := range w {
		require.InDelta(t, 1, c, 1e-5)
	}
}

func TestTransportBounces(t *testing.T) {
	sys := SRGB(spectrum.D65)
	sys.Transport = spectrum.Constant(0.5)
	sys.Bounces = 2
	direct := SRGB(spectrum.D65).Finalize().Apply(spectrum.Constant(0.8))
	indirect := sys.Finalize().Apply(spectrum.Constant(0.8))
	for c := range 3 {
		require.InDelta(t, direct[c]*0.25, indirect[c], 1e-12)
	}
}

func TestProjectionMatchesFullResponse(t *testing.T) {
	b, err := basis.Default(basis.DefaultK)
	require.NoError(t, err)
	r := SRGB(spectrum.FL11()).Finalize()
	p := r.Project(b)
	coeffs := make([]float64, b.K())
	for i := range coeffs {
		coeffs[i] = 0.01 * float64(i%3-1)
	}
	full := r.Apply(b.Spectrum(coeffs))
	proj := p.Apply(coeffs)
	require.True(t, full.ApproxEqual(proj, 1e-12), "%s != %s", full, proj)
	require.True(t, colorconv.Vec3{}.ApproxEqual(r.Apply(spectrum.Spectrum{}), 0))
}
