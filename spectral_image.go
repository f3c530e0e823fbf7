package uplift

import (
	"fmt"
	"image"

	"github.com/kovidgoyal/uplift/spectrum"
)

var _ = fmt.Print

// SpectralImage is an in-memory image of reflectance spectra.
type SpectralImage struct {
	// Pix holds the spectra, spectrum.N samples per pixel. The pixel at
	// (x, y) starts at Pix[(y-Rect.Min.Y)*Stride + (x-Rect.Min.X)*spectrum.N].
	Pix []float32
	// Stride is the Pix stride (in samples) between vertically adjacent pixels.
	Stride int
	// Rect is the image's bounds.
	Rect image.Rectangle
}

func NewSpectralImage(r image.Rectangle) *SpectralImage {
	w, h := r.Dx(), r.Dy()
	return &SpectralImage{Pix: make([]float32, spectrum.N*w*h), Stride: spectrum.N * w, Rect: r}
}

func (p *SpectralImage) Bounds() image.Rectangle { return p.Rect }

// PixOffset returns the index of the first element of Pix that corresponds to
// the pixel at (x, y).
func (p *SpectralImage) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*spectrum.N
}

func (p *SpectralImage) SpectrumAt(x, y int) (ans spectrum.Spectrum) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+spectrum.N : i+spectrum.N]
	for j, v := range s {
		ans[j] = float64(v)
	}
	return
}

func (p *SpectralImage) SetSpectrum(x, y int, c spectrum.Spectrum) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+spectrum.N : i+spectrum.N]
	for j := range s {
		s[j] = float32(c[j])
	}
}

// SubImage returns an image representing the portion of the image p visible
// through r. The returned value shares pixels with the original image.
func (p *SpectralImage) SubImage(r image.Rectangle) *SpectralImage {
	r = r.Intersect(p.Rect)
	if r.Empty() {
		return &SpectralImage{}
	}
	i := p.PixOffset(r.Min.X, r.Min.Y)
	return &SpectralImage{Pix: p.Pix[i:], Stride: p.Stride, Rect: r}
}
