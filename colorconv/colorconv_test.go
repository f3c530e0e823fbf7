package colorconv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func nearlyEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

var tableCases = []struct {
	name    string
	L, a, b float64
}{
	{"neutral gray", 50, 0, 0},
	{"vivid warm", 60, 80, 60},
	{"vivid cyan-ish", 75, -70, 70},
	{"light slightly red", 90, 30, 0},
	{"dark saturated green-blue", 20, 80, -60},
	{"very dark saturated", 5, 60, -40},
}

func TestLabXYZ_Roundtrip_TableDriven(t *testing.T) {
	epsL := 1e-9
	epsAB := 1e-8 // a,b can be slightly more sensitive

	for _, white := range []Vec3{WhiteD50, WhiteD65} {
		for _, tc := range tableCases {
			t.Run(tc.name, func(t *testing.T) {
				xyz := LabToXYZ(Vec3{tc.L, tc.a, tc.b}, white)
				lab := XYZToLab(xyz, white)
				if !nearlyEqual(tc.L, lab[0], epsL) || !nearlyEqual(tc.a, lab[1], epsAB) || !nearlyEqual(tc.b, lab[2], epsAB) {
					t.Fatalf("Roundtrip mismatch for %s: in Lab=(%.9f,%.9f,%.9f) out Lab=%s", tc.name, tc.L, tc.a, tc.b, lab)
				}
			})
		}
	}
}

func TestSRGBMatricesAreInverse(t *testing.T) {
	p := XYZToLinearSRGB.Mul(LinearSRGBToXYZ)
	for i := range 3 {
		for j := range 3 {
			require.InDelta(t, Identity3[i][j], p[i][j], 1e-5)
		}
	}
	inv, err := XYZToLinearSRGB.Inverse()
	require.NoError(t, err)
	for i := range 3 {
		for j := range 3 {
			require.InDelta(t, LinearSRGBToXYZ[i][j], inv[i][j], 1e-5)
		}
	}
}

func TestD65WhiteIsSRGBWhite(t *testing.T) {
	rgb := XYZToLinearSRGB.MulVec(WhiteD65)
	for _, c := range rgb {
		require.InDelta(t, 1, c, 1e-3)
	}
}

func TestCompandingRoundtrip(t *testing.T) {
	for i := range 256 {
		c := float64(i) / 255
		require.InDelta(t, c, LinearToSRGB(SRGBToLinear(c)), 1e-12)
	}
}

func TestAdaptationFixesWhite(t *testing.T) {
	m := ChromaticAdaptationMatrix(WhiteD50, WhiteD65)
	w := m.MulVec(WhiteD50)
	require.True(t, w.ApproxEqual(WhiteD65, 1e-6), "adapted white: %s", w)
}

func TestSingularInverse(t *testing.T) {
	_, err := Mat3{{1, 2, 3}, {2, 4, 6}, {0, 0, 1}}.Inverse()
	require.Error(t, err)
}

func TestVecApproxEqual(t *testing.T) {
	a := Vec3{0.5, 0.5, 0.5}
	require.True(t, a.ApproxEqual(a.Add(Vec3{1e-9, 0, 0}), 1e-6))
	require.False(t, a.ApproxEqual(a.Add(Vec3{1e-3, 0, 0}), 1e-6))
	require.Equal(t, 0.25, Vec3{0.1, -0.25, 0.2}.MaxAbs())
	require.True(t, InGamut(Clamp01Vec(Vec3{-1, 2, 0.5})))
}
