package spectrum

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// CMFS holds the three colour matching functions x̄, ȳ, z̄.
type CMFS [3]Spectrum

// Illuminant is a relative spectral power distribution.
type Illuminant = Spectrum

// CIE 1931 2° standard observer, 400-700 nm in 10 nm steps.
var CIE1931 = CMFS{
	{
		0.01431, 0.04351, 0.13438, 0.2839, 0.34828, 0.3362, 0.2908, 0.19536, 0.09564, 0.03201,
		0.0049, 0.0093, 0.06327, 0.1655, 0.2904, 0.43345, 0.5945, 0.7621, 0.9163, 1.0263,
		1.0622, 1.0026, 0.85445, 0.6424, 0.4479, 0.2835, 0.1649, 0.0874, 0.04677, 0.0227,
		0.011359,
	},
	{
		0.000396, 0.00121, 0.004, 0.0116, 0.023, 0.038, 0.06, 0.09098, 0.13902, 0.20802,
		0.323, 0.503, 0.71, 0.862, 0.954, 0.99495, 0.995, 0.952, 0.87, 0.757,
		0.631, 0.503, 0.381, 0.265, 0.175, 0.107, 0.061, 0.032, 0.017, 0.00821,
		0.004102,
	},
	{
		0.06785, 0.2074, 0.6456, 1.3856, 1.74706, 1.77211, 1.6692, 1.28764, 0.81295, 0.46518,
		0.272, 0.1582, 0.07825, 0.04216, 0.0203, 0.00875, 0.0039, 0.0021, 0.00165, 0.0011,
		0.0008, 0.00034, 0.00019, 0.00005, 0.00002, 0, 0, 0, 0, 0,
		0,
	},
}

// CIE standard illuminant D65, 400-700 nm in 10 nm steps.
var D65 = Illuminant{
	82.7549, 91.486, 93.4318, 86.6823, 104.865, 117.008, 117.812, 114.861, 115.923, 108.811,
	109.354, 107.802, 104.79, 107.689, 104.405, 104.046, 100, 96.3342, 95.788, 88.6856,
	90.0062, 89.5991, 87.6987, 83.2886, 83.6992, 80.0268, 80.2146, 82.2778, 78.2842, 69.7213,
	71.6091,
}

// CIE standard illuminant D50, 400-700 nm in 10 nm steps.
var D50 = Illuminant{
	49.31, 56.51, 60.03, 57.82, 74.82, 87.25, 90.61, 91.37, 95.11, 91.96,
	95.72, 96.61, 97.13, 102.1, 100.75, 102.32, 100, 97.74, 98.92, 93.5,
	97.69, 99.27, 99.04, 95.72, 98.86, 95.67, 98.19, 103, 99.13, 87.38,
	91.6,
}

// FL11 is tabulated at 5 nm; its narrow emission lines would be missed by
// point sampling, so it is box-filtered onto the grid.
var fl11_5nm = []float64{
	1.29, 12.68, 1.59, 1.79, 2.46, 3.33, 4.49, 33.94, 12.13, 6.95,
	7.19, 7.12, 6.72, 6.13, 5.46, 4.79, 5.66, 14.29, 14.96, 8.97,
	4.72, 2.33, 1.47, 1.10, 0.89, 0.83, 1.18, 4.90, 39.59, 72.84,
	32.61, 7.52, 2.83, 1.96, 1.67, 4.43, 11.28, 14.76, 12.73, 9.74,
	7.33, 9.72, 55.27, 42.58, 13.18, 13.16, 12.26, 5.11, 2.07, 2.34,
	3.58, 3.01, 2.48, 2.14, 1.54, 1.33, 1.46, 1.94, 2.00, 1.20,
	1.35,
}

var FL11 = sync.OnceValue(func() Illuminant {
	wl := make([]float64, len(fl11_5nm))
	for i := range wl {
		wl[i] = MinWavelength + 5*float64(i)
	}
	ans, err := Resample(wl, fl11_5nm)
	if err != nil {
		panic(err)
	}
	return ans
})

// E is the equal energy illuminant.
var E = Constant(100)

// Planck returns the spectral radiance of a black body at temperature kelvin,
// normalised to 100 at 560 nm.
func Planck(kelvin float64) (ans Illuminant) {
	const c1 = 3.74183e-16
	const c2 = 1.4388e-2
	b := func(nm float64) float64 {
		l := nm * 1e-9
		return c1 / (math.Pow(l, 5) * (math.Exp(c2/(l*kelvin)) - 1))
	}
	ref := b(560)
	for i := range ans {
		ans[i] = 100 * b(Wavelength(i)) / ref
	}
	return
}

// A is CIE standard illuminant A (tungsten, 2856 K).
var A = Planck(2856)

var illuminants = map[string]func() Illuminant{
	"d65":  func() Illuminant { return D65 },
	"d50":  func() Illuminant { return D50 },
	"e":    func() Illuminant { return E },
	"a":    func() Illuminant { return A },
	"fl11": FL11,
}

var cmfs = map[string]CMFS{
	"cie1931": CIE1931,
}

func normalize_name(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "")
}

// IlluminantByName looks up one of the built-in illuminants (d65, d50, e, a, fl11).
func IlluminantByName(name string) (Illuminant, error) {
	if f, ok := illuminants[normalize_name(name)]; ok {
		return f(), nil
	}
	return Illuminant{}, fmt.Errorf("unknown illuminant: %q (known: %s)", name, strings.Join(IlluminantNames(), ", "))
}

func IlluminantNames() []string {
	ans := make([]string, 0, len(illuminants))
	for k := range illuminants {
		ans = append(ans, k)
	}
	sort.Strings(ans)
	return ans
}

// CMFSByName looks up one of the built-in observers.
func CMFSByName(name string) (CMFS, error) {
	if c, ok := cmfs[normalize_name(name)]; ok {
		return c, nil
	}
	return CMFS{}, fmt.Errorf("unknown colour matching functions: %q", name)
}
