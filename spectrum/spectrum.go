// Package spectrum defines the fixed wavelength grid shared by every stage of
// the uplifting core together with the tabulated colour matching functions
// and illuminants that colour systems are built from.
package spectrum

import (
	"fmt"
	"math"
)

var _ = fmt.Print

const (
	// N is the number of samples in a Spectrum.
	N = 31
	// MinWavelength is the wavelength (nm) of the first sample.
	MinWavelength = 400.0
	// Step is the spacing (nm) between samples.
	Step = 10.0
	// MaxWavelength is the wavelength (nm) of the last sample.
	MaxWavelength = MinWavelength + (N-1)*Step
)

// Spectrum is a sampled spectral distribution over the fixed grid. For
// reflectances every sample must be in [0,1].
type Spectrum [N]float64

// Wavelength returns the wavelength of sample i in nm.
func Wavelength(i int) float64 { return MinWavelength + float64(i)*Step }

func Wavelengths() (ans Spectrum) {
	for i := range ans {
		ans[i] = Wavelength(i)
	}
	return
}

func Constant(v float64) (ans Spectrum) {
	for i := range ans {
		ans[i] = v
	}
	return
}

func (s Spectrum) Add(o Spectrum) Spectrum {
	for i := range s {
		s[i] += o[i]
	}
	return s
}

func (s Spectrum) Sub(o Spectrum) Spectrum {
	for i := range s {
		s[i] -= o[i]
	}
	return s
}

func (s Spectrum) Mul(o Spectrum) Spectrum {
	for i := range s {
		s[i] *= o[i]
	}
	return s
}

func (s Spectrum) Scale(f float64) Spectrum {
	for i := range s {
		s[i] *= f
	}
	return s
}

func (s Spectrum) Pow(p float64) Spectrum {
	for i := range s {
		s[i] = math.Pow(s[i], p)
	}
	return s
}

func (s Spectrum) Dot(o Spectrum) (ans float64) {
	for i := range s {
		ans += s[i] * o[i]
	}
	return
}

func (s Spectrum) Sum() (ans float64) {
	for _, v := range s {
		ans += v
	}
	return
}

func (s Spectrum) Norm() float64 { return math.Sqrt(s.Dot(s)) }

func (s Spectrum) Max() float64 {
	ans := s[0]
	for _, v := range s[1:] {
		ans = max(ans, v)
	}
	return ans
}

func (s Spectrum) Min() float64 {
	ans := s[0]
	for _, v := range s[1:] {
		ans = min(ans, v)
	}
	return ans
}

// Clamp re-projects a spectrum onto the physically valid box [0,1].
func (s Spectrum) Clamp() Spectrum {
	for i, v := range s {
		s[i] = max(0, min(v, 1))
	}
	return s
}

// InBounds reports whether every sample lies in [-eps, 1+eps].
func (s Spectrum) InBounds(eps float64) bool {
	for _, v := range s {
		if !(v >= -eps && v <= 1+eps) {
			return false
		}
	}
	return true
}

// MaxViolation returns the largest distance of any sample outside [0,1].
func (s Spectrum) MaxViolation() (ans float64) {
	for _, v := range s {
		ans = max(ans, -v, v-1)
	}
	return
}

func (s Spectrum) IsFinite() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ApproxEqual compares spectra by the norm of their difference relative to
// their magnitude.
func (s Spectrum) ApproxEqual(o Spectrum, tol float64) bool {
	return s.Sub(o).Norm() <= tol*max(1, s.Norm(), o.Norm())
}

func (s Spectrum) Slice() []float64 { return s[:] }

// FromSlice copies exactly N values into a Spectrum.
func FromSlice(v []float64) (ans Spectrum, err error) {
	if len(v) != N {
		return ans, fmt.Errorf("spectrum needs %d samples, got %d", N, len(v))
	}
	copy(ans[:], v)
	return
}

// Resample box-filters tabulated data (ascending wavelengths, linear
// interpolation in between, zero outside) onto the fixed grid. Each output
// sample is the mean over its bin [λ-Step/2, λ+Step/2].
func Resample(wavelengths, values []float64) (ans Spectrum, err error) {
	if len(wavelengths) != len(values) || len(values) < 2 {
		return ans, fmt.Errorf("resample needs at least two matched samples, got %d wavelengths and %d values", len(wavelengths), len(values))
	}
	for i := 1; i < len(wavelengths); i++ {
		if wavelengths[i] <= wavelengths[i-1] {
			return ans, fmt.Errorf("resample wavelengths must be strictly ascending")
		}
	}
	at := func(l float64) float64 {
		if l < wavelengths[0] || l > wavelengths[len(wavelengths)-1] {
			return 0
		}
		j := 1
		for j < len(wavelengths)-1 && wavelengths[j] < l {
			j++
		}
		t := (l - wavelengths[j-1]) / (wavelengths[j] - wavelengths[j-1])
		return values[j-1] + t*(values[j]-values[j-1])
	}
	const sub = 20
	for i := range ans {
		lo := Wavelength(i) - Step/2
		sum := 0.0
		// midpoint rule over the bin
		for k := range sub {
			sum += at(lo + (float64(k)+0.5)*Step/sub)
		}
		ans[i] = sum / sub
	}
	return
}
