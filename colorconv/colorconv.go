package colorconv

import (
	"fmt"
	"math"
)

// This package holds the small fixed-size colour algebra used throughout the
// uplifting core: tristimulus vectors, 3x3 matrices, the CIE XYZ (D65) <->
// linear sRGB transform, sRGB companding in both directions, CIELAB relative
// to an arbitrary white and Bradford chromatic adaptation.
//
// Notes:
// - Colours produced by colour systems are linear (no companding). Companding
//   is only applied when talking to 8-bit textures or displays.
// - XYZ values are normalised so that the white has Y = 1.

var _ = fmt.Print

type Vec3 [3]float64
type Mat3 [3][3]float64

// Standard reference whites (CIE XYZ) normalized so Y = 1.0
// Note that WhiteD50 uses Z value from ICC spec rather that CIE spec.
var (
	WhiteD50 = Vec3{0.96422, 1.00000, 0.82491}
	WhiteD65 = Vec3{0.95047, 1.00000, 1.08883}
)

// Bradford transform matrices (forward and inverse)
var (
	bradford = Mat3{
		{0.8951, 0.2664, -0.1614},
		{-0.7502, 1.7135, 0.0367},
		{0.0389, -0.0685, 1.0296},
	}
	invBradford = Mat3{
		{0.9869929, -0.1470543, 0.1599627},
		{0.4323053, 0.5183603, 0.0492912},
		{-0.0085287, 0.0400428, 0.9684867},
	}
)

// XYZToLinearSRGB is the linear sRGB transform matrix from CIE XYZ (D65).
var XYZToLinearSRGB = Mat3{
	{3.2404542, -1.5371385, -0.4985314},
	{-0.9692660, 1.8760108, 0.0415560},
	{0.0556434, -0.2040259, 1.0572252},
}

// LinearSRGBToXYZ is the inverse of XYZToLinearSRGB.
var LinearSRGBToXYZ = Mat3{
	{0.4124564, 0.3575761, 0.1804375},
	{0.2126729, 0.7151522, 0.0721750},
	{0.0193339, 0.1191920, 0.9503041},
}

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }
func (v Vec3) Scale(f float64) Vec3 { return Vec3{v[0] * f, v[1] * f, v[2] * f} }
func (v Vec3) Dot(o Vec3) float64   { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }
func (v Vec3) Norm() float64        { return math.Sqrt(v.Dot(v)) }

// MaxAbs returns the largest absolute component, the per channel error measure
// used for roundtrip checks.
func (v Vec3) MaxAbs() float64 {
	return max(math.Abs(v[0]), math.Abs(v[1]), math.Abs(v[2]))
}

func (v Vec3) IsFinite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.6f, %.6f, %.6f)", v[0], v[1], v[2])
}

// ApproxEqual compares two vectors by the norm of their difference relative
// to their magnitude, so that tolerance does not depend on the unit scale.
func (v Vec3) ApproxEqual(o Vec3, tol float64) bool {
	return v.Sub(o).Norm() <= tol*max(1, v.Norm(), o.Norm())
}

func (m Mat3) Mul(b Mat3) Mat3 {
	var out Mat3
	for i := range 3 {
		for j := range 3 {
			sum := 0.0
			for k := range 3 {
				sum += m[i][k] * b[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

func (m Mat3) Transpose() (ans Mat3) {
	for i := range 3 {
		for j := range 3 {
			ans[i][j] = m[j][i]
		}
	}
	return
}

func (m Mat3) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

func (m Mat3) Inverse() (ans Mat3, err error) {
	det := m.Det()
	if det == 0 {
		return ans, fmt.Errorf("matrix is singular and cannot be inverted")
	}
	invDet := 1 / det
	adj := Mat3{
		{
			(m[1][1]*m[2][2] - m[1][2]*m[2][1]),
			(m[0][2]*m[2][1] - m[0][1]*m[2][2]),
			(m[0][1]*m[1][2] - m[0][2]*m[1][1]),
		},
		{
			(m[1][2]*m[2][0] - m[1][0]*m[2][2]),
			(m[0][0]*m[2][2] - m[0][2]*m[2][0]),
			(m[0][2]*m[1][0] - m[0][0]*m[1][2]),
		},
		{
			(m[1][0]*m[2][1] - m[1][1]*m[2][0]),
			(m[0][1]*m[2][0] - m[0][0]*m[2][1]),
			(m[0][0]*m[1][1] - m[0][1]*m[1][0]),
		},
	}
	for i := range 3 {
		for j := range 3 {
			ans[i][j] = invDet * adj[i][j]
		}
	}
	return
}

// Identity3 is the 3x3 identity matrix.
var Identity3 = Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// ChromaticAdaptationMatrix constructs a 3x3 matrix that adapts XYZ values
// from sourceWhite to targetWhite using the Bradford method.
func ChromaticAdaptationMatrix(sourceWhite, targetWhite Vec3) Mat3 {
	src := bradford.MulVec(sourceWhite)
	tgt := bradford.MulVec(targetWhite)
	diag := Mat3{
		{tgt[0] / src[0], 0, 0},
		{0, tgt[1] / src[1], 0},
		{0, 0, tgt[2] / src[2]},
	}
	// adapt = invBradford * diag * bradford
	return invBradford.Mul(diag.Mul(bradford))
}

// SRGBToLinear undoes the sRGB companding of a single component.
func SRGBToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

// LinearToSRGB applies the sRGB (gamma) companding function to a linear component.
func LinearToSRGB(c float64) float64 {
	// clip small negative rounding noise at this stage for stability
	if c <= 0 {
		return 0.0
	}
	if c <= 0.0031308 {
		return 12.92 * c
	}
	return 1.055*math.Pow(c, 1.0/2.4) - 0.055
}

func SRGBToLinearVec(v Vec3) Vec3 {
	return Vec3{SRGBToLinear(v[0]), SRGBToLinear(v[1]), SRGBToLinear(v[2])}
}

func LinearToSRGBVec(v Vec3) Vec3 {
	return Vec3{LinearToSRGB(v[0]), LinearToSRGB(v[1]), LinearToSRGB(v[2])}
}

func finv(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta {
		return t * t * t
	}
	// when t <= delta: 3*delta^2*(t - 4/29)
	return 3 * delta * delta * (t - 4.0/29.0)
}

func ff(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta*delta*delta {
		return math.Cbrt(t)
	}
	// t <= delta^3
	return t/(3*delta*delta) + 4.0/29.0
}

// XYZToLab converts XYZ into CIELAB relative to the given white (Y=1).
func XYZToLab(xyz, white Vec3) Vec3 {
	fx := ff(xyz[0] / white[0])
	fy := ff(xyz[1] / white[1])
	fz := ff(xyz[2] / white[2])
	return Vec3{116.0*fy - 16.0, 500.0 * (fx - fy), 200.0 * (fy - fz)}
}

// LabToXYZ converts CIELAB relative to the given white back to XYZ.
func LabToXYZ(lab, white Vec3) Vec3 {
	fy := (lab[0] + 16.0) / 116.0
	fx := fy + (lab[1] / 500.0)
	fz := fy - (lab[2] / 200.0)
	return Vec3{finv(fx) * white[0], finv(fy) * white[1], finv(fz) * white[2]}
}

// LinearSRGBToLab converts linear sRGB (D65) to CIELAB (D65).
func LinearSRGBToLab(rgb Vec3) Vec3 {
	return XYZToLab(LinearSRGBToXYZ.MulVec(rgb), WhiteD65)
}

// DeltaE76 is the euclidean distance between two CIELAB colours.
func DeltaE76(a, b Vec3) float64 {
	return a.Sub(b).Norm()
}

// InGamut checks whether all components are inside [0,1] (with a small epsilon)
func InGamut(v Vec3) bool {
	const eps = 1e-12
	return v[0] >= -eps && v[1] >= -eps && v[2] >= -eps && v[0] <= 1+eps && v[1] <= 1+eps && v[2] <= 1+eps
}

// Clamp01 clamps value to [0,1]
func Clamp01(x float64) float64 {
	return max(0, min(x, 1))
}

func Clamp01Vec(v Vec3) Vec3 {
	return Vec3{Clamp01(v[0]), Clamp01(v[1]), Clamp01(v[2])}
}
