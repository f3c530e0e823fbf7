// Package csys turns a colour matching function / illuminant pairing into a
// linear response: a 3×N matrix mapping reflectance spectra to colours, or a
// 3×K matrix plus offset once projected onto a reflectance basis.
package csys

import (
	"fmt"

	"github.com/kovidgoyal/uplift/basis"
	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/kovidgoyal/uplift/spectrum"
	"gonum.org/v1/gonum/mat"
)

var _ = fmt.Print

type Output int

const (
	XYZ Output = iota
	LinearSRGB
)

func (o Output) String() string {
	switch o {
	case XYZ:
		return "xyz"
	case LinearSRGB:
		return "srgb"
	}
	return fmt.Sprintf("Output(%d)", int(o))
}

// System pairs an observer with an illuminant. Transport, raised to the power
// Bounces, models light that has been reflected off a surface of that
// reflectance before arriving; with Bounces == 0 it is ignored.
type System struct {
	CMFS       spectrum.CMFS
	Illuminant spectrum.Illuminant
	Transport  spectrum.Spectrum
	Bounces    int
	Output     Output
	// Adapt applies a Bradford adaptation from the illuminant white to D65
	// before converting to sRGB. Ignored for XYZ output.
	Adapt bool
}

// SRGB is the common case of the CIE 1931 observer under illum with linear
// sRGB output.
func SRGB(illum spectrum.Illuminant) System {
	return System{CMFS: spectrum.CIE1931, Illuminant: illum, Output: LinearSRGB}
}

// Response is a finalized colour system, one row of weights per output channel.
type Response [3]spectrum.Spectrum

// Finalize builds the response. Weights are normalised so that a perfect white
// reflector has luminance Y = 1 under the direct illuminant.
func (s System) Finalize() Response {
	k := s.CMFS[1].Dot(s.Illuminant)
	if k <= 0 {
		k = 1
	}
	power := s.Illuminant.Scale(1 / k)
	if s.Bounces > 0 {
		power = power.Mul(s.Transport.Pow(float64(s.Bounces)))
	}
	var xyz Response
	for c := range 3 {
		xyz[c] = s.CMFS[c].Mul(power)
	}
	if s.Output == XYZ {
		return xyz
	}
	m := colorconv.XYZToLinearSRGB
	if s.Adapt {
		var white colorconv.Vec3
		for c := range 3 {
			white[c] = s.CMFS[c].Dot(s.Illuminant.Scale(1 / k))
		}
		m = m.Mul(colorconv.ChromaticAdaptationMatrix(white, colorconv.WhiteD65))
	}
	return xyz.Transform(m)
}

// Transform left multiplies the response by a 3×3 colour matrix.
func (r Response) Transform(m colorconv.Mat3) (ans Response) {
	for i := range 3 {
		for j := range 3 {
			ans[i] = ans[i].Add(r[j].Scale(m[i][j]))
		}
	}
	return
}

// Apply evaluates the colour of a reflectance.
func (r Response) Apply(s spectrum.Spectrum) colorconv.Vec3 {
	return colorconv.Vec3{r[0].Dot(s), r[1].Dot(s), r[2].Dot(s)}
}

// White is the colour of the perfect white reflector.
func (r Response) White() colorconv.Vec3 {
	return r.Apply(spectrum.Constant(1))
}

// Matrix returns the response as a 3×N dense matrix.
func (r Response) Matrix() *mat.Dense {
	m := mat.NewDense(3, spectrum.N, nil)
	for c := range 3 {
		m.SetRow(c, r[c].Slice())
	}
	return m
}

// Projected is a response restricted to a basis: colour = M·coeffs + Offset.
type Projected struct {
	M      *mat.Dense
	Offset colorconv.Vec3
}

func (r Response) Project(b *basis.Basis) Projected {
	m := mat.NewDense(3, b.K(), nil)
	m.Mul(r.Matrix(), b.Functions)
	return Projected{M: m, Offset: r.Apply(b.Mean)}
}

func (p Projected) Apply(coeffs []float64) (ans colorconv.Vec3) {
	_, k := p.M.Dims()
	for c := range 3 {
		v := p.Offset[c]
		for j := range k {
			v += p.M.At(c, j) * coeffs[j]
		}
		ans[c] = v
	}
	return
}
