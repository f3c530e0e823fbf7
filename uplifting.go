package uplift

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/kovidgoyal/uplift/basis"
	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/kovidgoyal/uplift/csys"
	"github.com/kovidgoyal/uplift/hull"
	"github.com/kovidgoyal/uplift/mismatch"
	"github.com/kovidgoyal/uplift/scene"
	"github.com/kovidgoyal/uplift/solver"
	"github.com/kovidgoyal/uplift/spectrum"
)

var _ = fmt.Print

var ErrNotReady = errors.New("uplift: no uplifting tessellation has been built")

// Uplifting maps colours of the uplifting system to spectra. Its points are
// samples of the object colour solid boundary together with the colours of
// the solved vertices, each carrying the spectrum that produces it. Colours
// are uplifted by blending the spectra of the enclosing tetrahedron with
// barycentric weights, which reproduces the colour exactly since responses are
// linear.
type Uplifting struct {
	Tessellation *hull.Tetrahedra
	// Spectra holds one spectrum per tessellation point.
	Spectra []spectrum.Spectrum
	// Vertices maps tessellation points to scene vertex indices, -1 for
	// points that are not vertices.
	Vertices []int

	primary csys.Response
	basis   *basis.Basis
	opts    solver.Options
}

// NewUplifting tessellates colors, which must correspond one to one with
// spectra and vertices.
func NewUplifting(b *basis.Basis, primary csys.Response, colors []colorconv.Vec3, spectra []spectrum.Spectrum, vertices []int, opts solver.Options) (*Uplifting, error) {
	if len(colors) != len(spectra) || len(colors) != len(vertices) {
		return nil, fmt.Errorf("%w: %d colors, %d spectra, %d vertices", hull.ErrDegenerate, len(colors), len(spectra), len(vertices))
	}
	pts := make([]r3.Vector, len(colors))
	for i, c := range colors {
		pts[i] = mismatch.Vector(c)
	}
	t, err := hull.Tessellate(pts, hull.Options{})
	if err != nil {
		return nil, err
	}
	ans := &Uplifting{
		Tessellation: t, primary: primary, basis: b, opts: opts,
		Spectra:  append([]spectrum.Spectrum(nil), spectra...),
		Vertices: append([]int(nil), vertices...),
	}
	if len(t.Points) > len(spectra) {
		// star tessellations add the centroid of the points
		ans.Spectra = append(ans.Spectra, mean_spectrum(spectra))
		ans.Vertices = append(ans.Vertices, -1)
	}
	return ans, nil
}

// Uplift returns the spectrum for rgb. Colours outside the tessellation are
// mapped to the closest element and then refined with the solver, so that
// the result is still the best bounded spectrum for rgb.
func (u *Uplifting) Uplift(rgb colorconv.Vec3) (spectrum.Spectrum, error) {
	if !rgb.IsFinite() {
		return spectrum.Spectrum{}, fmt.Errorf("%w: colour %s is not finite", solver.ErrDimension, rgb)
	}
	s, inside := u.blend(rgb)
	if inside {
		return s, nil
	}
	res, err := solver.Solve(u.basis, []csys.Response{u.primary}, []colorconv.Vec3{rgb}, u.opts)
	if err != nil {
		return s, err
	}
	if res.MaxError() < u.primary.Apply(s).Sub(rgb).MaxAbs() {
		return res.Spectrum, nil
	}
	return s, nil
}

func (u *Uplifting) blend(rgb colorconv.Vec3) (ans spectrum.Spectrum, inside bool) {
	w, elem, inside := u.Tessellation.FindEnclosing(mismatch.Vector(rgb))
	for i, v := range elem {
		ans = ans.Add(u.Spectra[v].Scale(w[i]))
	}
	return ans.Clamp(), inside
}

// Weights returns the contribution of each scene vertex to the spectrum of
// rgb. Contributions of points that are not vertices are omitted.
func (u *Uplifting) Weights(rgb colorconv.Vec3) map[int]float64 {
	w, elem, _ := u.Tessellation.FindEnclosing(mismatch.Vector(rgb))
	ans := make(map[int]float64, 4)
	for i, v := range elem {
		if vi := u.Vertices[v]; vi >= 0 && w[i] > 0 {
			ans[vi] += w[i]
		}
	}
	return ans
}

func (e *Engine) rebuild_uplifting(sc *scene.Scene) error {
	b, primary := sc.Basis(), sc.Primary()
	if e.ocs == nil {
		opts := e.cfg.mismatch_options()
		opts.Workers = e.cfg.Workers
		ocs, err := mismatch.OCS(b, primary, e.cfg.OCSSamples, e.cfg.Seed, opts)
		if err != nil {
			return fmt.Errorf("object colour solid: %w", err)
		}
		e.ocs = ocs
	}
	n := len(e.ocs.Points)
	colors := make([]colorconv.Vec3, n, n+len(e.caches))
	spectra := make([]spectrum.Spectrum, n, n+len(e.caches))
	vertices := make([]int, n, n+len(e.caches))
	for i, p := range e.ocs.Points {
		colors[i], spectra[i], vertices[i] = mismatch.Vec3(p), e.ocs.Spectra[i], -1
	}
	for i := range e.caches {
		if c := &e.caches[i]; c.valid() {
			colors = append(colors, primary.Apply(c.Spectrum))
			spectra = append(spectra, c.Spectrum)
			vertices = append(vertices, i)
		}
	}
	u, err := NewUplifting(b, primary, colors, spectra, vertices, e.cfg.solver_options())
	if err != nil {
		return err
	}
	e.uplifting = u
	return nil
}
