// Package basis provides the low dimensional linear reflectance model the
// solvers work in: spectrum = Mean + Functions·coeffs.
package basis

import (
	"errors"
	"fmt"
	"math"

	"github.com/kovidgoyal/uplift/spectrum"
	"gonum.org/v1/gonum/mat"
)

var _ = fmt.Print

var ErrBadDimension = errors.New("basis: bad dimension")

// DefaultK is the number of functions in the default basis.
const DefaultK = 12

type Basis struct {
	Mean spectrum.Spectrum
	// Functions is an N×K matrix whose columns are the basis functions.
	Functions *mat.Dense
}

func New(mean spectrum.Spectrum, functions *mat.Dense) (*Basis, error) {
	r, c := functions.Dims()
	if r != spectrum.N || c < 1 || c > spectrum.N {
		return nil, fmt.Errorf("%w: functions must be %d×K with 1 <= K <= %d, got %d×%d", ErrBadDimension, spectrum.N, spectrum.N, r, c)
	}
	return &Basis{Mean: mean, Functions: functions}, nil
}

// Default returns an orthonormal DCT-II basis of k smooth functions around a
// constant 0.5 reflectance. It stands in for a measured PCA basis when the
// project supplies none.
func Default(k int) (*Basis, error) {
	if k < 1 || k > spectrum.N {
		return nil, fmt.Errorf("%w: k must be in [1, %d], got %d", ErrBadDimension, spectrum.N, k)
	}
	f := mat.NewDense(spectrum.N, k, nil)
	for j := range spectrum.N {
		for c := range k {
			scale := math.Sqrt(2.0 / spectrum.N)
			if c == 0 {
				scale = math.Sqrt(1.0 / spectrum.N)
			}
			f.Set(j, c, scale*math.Cos(math.Pi*float64(c)*(float64(j)+0.5)/spectrum.N))
		}
	}
	return &Basis{Mean: spectrum.Constant(0.5), Functions: f}, nil
}

// Fit derives a k function basis from a reflectance dataset by PCA: the mean
// of the samples plus the k leading right singular vectors of the centred
// data matrix.
func Fit(samples []spectrum.Spectrum, k int) (*Basis, error) {
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: need at least two samples to fit a basis, got %d", ErrBadDimension, len(samples))
	}
	if k < 1 || k > min(len(samples), spectrum.N) {
		return nil, fmt.Errorf("%w: k must be in [1, %d], got %d", ErrBadDimension, min(len(samples), spectrum.N), k)
	}
	var mean spectrum.Spectrum
	for _, s := range samples {
		mean = mean.Add(s)
	}
	mean = mean.Scale(1 / float64(len(samples)))
	data := mat.NewDense(len(samples), spectrum.N, nil)
	for i, s := range samples {
		data.SetRow(i, s.Sub(mean).Slice())
	}
	var svd mat.SVD
	if !svd.Factorize(data, mat.SVDThin) {
		return nil, errors.New("basis: SVD of the sample matrix failed to converge")
	}
	var v mat.Dense
	svd.VTo(&v)
	f := mat.NewDense(spectrum.N, k, nil)
	f.Copy(v.Slice(0, spectrum.N, 0, k))
	return &Basis{Mean: mean, Functions: f}, nil
}

func (b *Basis) K() int {
	_, c := b.Functions.Dims()
	return c
}

// Spectrum expands basis coefficients into a full spectrum. No clamping is
// done, the result may leave [0,1].
func (b *Basis) Spectrum(coeffs []float64) spectrum.Spectrum {
	ans := b.Mean
	var out mat.VecDense
	out.MulVec(b.Functions, mat.NewVecDense(len(coeffs), coeffs))
	for i := range ans {
		ans[i] += out.AtVec(i)
	}
	return ans
}

// Coefficients returns the least squares projection of s onto the basis.
func (b *Basis) Coefficients(s spectrum.Spectrum) ([]float64, error) {
	d := s.Sub(b.Mean)
	var x mat.VecDense
	if err := x.SolveVec(b.Functions, mat.NewVecDense(spectrum.N, d.Slice())); err != nil {
		return nil, fmt.Errorf("basis: projecting spectrum: %w", err)
	}
	return x.RawVector().Data, nil
}

// Function returns basis function c as a spectrum.
func (b *Basis) Function(c int) (ans spectrum.Spectrum) {
	for j := range ans {
		ans[j] = b.Functions.At(j, c)
	}
	return
}
