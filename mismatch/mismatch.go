// Package mismatch traces the boundary of a metamer mismatch volume: the set
// of colours that reflectances matching a fixed set of constraints can take
// on under one further, free, colour system.
package mismatch

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/golang/geo/r3"
	"github.com/kovidgoyal/go-parallel"
	"github.com/kovidgoyal/uplift/basis"
	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/kovidgoyal/uplift/csys"
	"github.com/kovidgoyal/uplift/spectrum"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
	"gonum.org/v1/gonum/stat/distuv"
)

var _ = fmt.Print

var (
	ErrBadInput = errors.New("mismatch: invalid input")
	// ErrNoFreedom means no direction produced an extremal spectrum, the fixed
	// constraints admit no bounded reflectance.
	ErrNoFreedom = errors.New("mismatch: constraints admit no bounded reflectance")
	// ErrDegenerate is reported by Boundary.Err for volumes that collapsed to
	// a point.
	ErrDegenerate = errors.New("mismatch: degenerate mismatch volume")
)

type Options struct {
	// Boundaries whose points all lie within this distance of their
	// centroid are collapsed to it.
	DegenerateRadius float64
	// Tolerance passed to the simplex solver.
	Tolerance float64
	// Number of goroutines, 0 means GOMAXPROCS.
	Workers int
	// Longest time the LP of a single direction may run, directions that
	// take longer count as failed. 0 means no limit.
	Timeout time.Duration
}

func DefaultOptions() Options {
	return Options{DegenerateRadius: 1e-4, Tolerance: 1e-10, Timeout: 10 * time.Second}
}

type Input struct {
	Basis *basis.Basis
	// Fixed responses with their targets, primary first.
	Fixed   []csys.Response
	Targets []colorconv.Vec3
	Free    csys.Response
	// Directions, each of dimension 3+3·(len(Fixed)-1). See Directions.
	Directions [][]float64
}

type Boundary struct {
	// One point per direction, in the output space of the free system.
	Points []r3.Vector
	// The extremal spectrum that produced each point.
	Spectra    []spectrum.Spectrum
	Directions [][]float64
	Center     r3.Vector
	Degenerate bool
	// Number of directions whose LP failed and were replaced by the centroid
	// of the successful ones.
	Failed int
}

func (b *Boundary) Err() error {
	if b.Degenerate {
		return ErrDegenerate
	}
	return nil
}

// Radius is the largest distance of a boundary point from the center.
func (b *Boundary) Radius() (ans float64) {
	for _, p := range b.Points {
		ans = max(ans, p.Sub(b.Center).Norm())
	}
	return
}

func Vector(v colorconv.Vec3) r3.Vector { return r3.Vector{X: v[0], Y: v[1], Z: v[2]} }
func Vec3(v r3.Vector) colorconv.Vec3  { return colorconv.Vec3{v.X, v.Y, v.Z} }

// Directions returns n unit vectors of dimension dims, approximately
// uniformly distributed on the sphere. Direction i is drawn from a PCG
// generator seeded with seed^i, so any single direction can be reproduced
// independently of the others.
func Directions(n, dims int, seed uint64) [][]float64 {
	ans := make([][]float64, n)
	for i := range n {
		r := rand.New(rand.NewPCG(seed^uint64(i), 0x9e3779b97f4a7c15))
		d := make([]float64, dims)
		for {
			for j := range d {
				u := 2*r.Float64() - 1
				p := min(max((u+1)/2, 1e-12), 1-1e-12)
				d[j] = distuv.UnitNormal.Quantile(p)
			}
			if n := floats.Norm(d, 2); n > 1e-12 {
				floats.Scale(1/n, d)
				break
			}
		}
		ans[i] = d
	}
	return ans
}

// Dims is the dimension of directions for a mismatch problem with the given
// number of fixed constraints.
func Dims(num_fixed int) int { return 3 + 3*max(0, num_fixed-1) }

// perturbation shrinks every bound of [0,1] by a distinct amount in
// [perturbation, 2·perturbation), which keeps the vertices of the feasible
// polytope simple so that simplex pivots always make progress.
const perturbation = 1e-9

var (
	// ErrTimeout is recorded for directions whose LP ran longer than
	// Options.Timeout.
	ErrTimeout = errors.New("mismatch: linear program timed out")
	ErrLP      = errors.New("mismatch: linear program failed")
)

// program is the boundary LP with the fixed equalities eliminated. Feasible
// spectra are origin + M·z for free z, subject to lo <= origin + M·z <= hi.
// In standard form, with z = z⁺ - z⁻ and slacks u, w:
//
//	-M(z⁺-z⁻) + u = origin - lo
//	 M(z⁺-z⁻) + w = hi - origin
//	z⁺, z⁻, u, w >= 0
//
// Since origin is strictly inside the bounds, the slacks form a feasible
// starting basis.
type program struct {
	m      *mat.Dense // basis functions times the null space of the fixed responses
	r      *mat.Dense // free response on the same null space
	origin spectrum.Spectrum
	lo, hi spectrum.Spectrum
	a      *mat.Dense
	b      []float64
	basic  []int
	tol    float64

	// set when origin is the only feasible spectrum
	degenerate bool
}

// split_equalities returns the least norm solution of E·c = e and an
// orthonormal basis of the null space of E, nil when E has full column rank.
// Inconsistent components of e are ignored.
func split_equalities(e *mat.Dense, rhs []float64) ([]float64, *mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(e, mat.SVDFull) {
		return nil, nil, fmt.Errorf("%w: SVD of fixed responses failed", ErrBadInput)
	}
	_, k := e.Dims()
	sv := svd.Values(nil)
	rank := 0
	for _, s := range sv {
		if s > 0 && s > 1e-10*sv[0] {
			rank++
		}
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	particular := make([]float64, k)
	for i := range rank {
		f := floats.Dot(mat.Col(nil, i, &u), rhs) / sv[i]
		for j := range k {
			particular[j] += f * v.At(j, i)
		}
	}
	if rank == k {
		return particular, nil, nil
	}
	return particular, mat.DenseCopyOf(v.Slice(0, k, rank, k)), nil
}

func new_program(in Input, tol float64) (*program, error) {
	bs := in.Basis
	k, n := bs.K(), spectrum.N
	particular := make([]float64, k)
	var null *mat.Dense
	if len(in.Fixed) > 0 {
		e := mat.NewDense(3*len(in.Fixed), k, nil)
		rhs := make([]float64, 3*len(in.Fixed))
		for i, resp := range in.Fixed {
			p := resp.Project(bs)
			for row := range 3 {
				for col := range k {
					e.Set(3*i+row, col, p.M.At(row, col))
				}
				rhs[3*i+row] = in.Targets[i][row] - p.Offset[row]
			}
		}
		var err error
		if particular, null, err = split_equalities(e, rhs); err != nil {
			return nil, err
		}
	} else {
		null = mat.NewDense(k, k, nil)
		for i := range k {
			null.Set(i, i, 1)
		}
	}
	p := &program{origin: bs.Spectrum(particular), tol: tol}
	r := rand.New(rand.NewPCG(uint64(n), 0x5eed))
	for j := range n {
		p.lo[j] = perturbation * (1 + r.Float64())
		p.hi[j] = 1 - perturbation*(1+r.Float64())
	}
	if null == nil {
		p.degenerate = true
		return p, p.check_margin(p.margin())
	}
	_, q := null.Dims()
	p.m = mat.NewDense(n, q, nil)
	p.m.Mul(bs.Functions, null)
	p.r = mat.NewDense(3, q, nil)
	p.r.Mul(in.Free.Project(bs).M, null)
	if err := p.center(); err != nil {
		return nil, err
	}
	if p.degenerate {
		return p, nil
	}

	p.a = mat.NewDense(2*n, 2*q+2*n, nil)
	p.b = make([]float64, 2*n)
	p.basic = make([]int, 2*n)
	for j := range n {
		for col := range q {
			v := p.m.At(j, col)
			p.a.Set(j, col, -v)
			p.a.Set(j, q+col, v)
			p.a.Set(n+j, col, v)
			p.a.Set(n+j, q+col, -v)
		}
		p.a.Set(j, 2*q+j, 1)
		p.a.Set(n+j, 2*q+n+j, 1)
		p.b[j] = p.origin[j] - p.lo[j]
		p.b[n+j] = p.hi[j] - p.origin[j]
		p.basic[j], p.basic[n+j] = 2*q+j, 2*q+n+j
	}
	return p, nil
}

// margin is the distance of origin from the nearest bound, negative when
// origin is out of bounds.
func (p *program) margin() float64 {
	ans := math.Inf(1)
	for j, v := range p.origin {
		ans = min(ans, v-p.lo[j], p.hi[j]-v)
	}
	return ans
}

func (p *program) check_margin(m float64) error {
	switch {
	case m < -1e-6:
		return fmt.Errorf("%w: the fixed targets need reflectances %.3g out of bounds", ErrNoFreedom, -m)
	case m <= 1e-10:
		p.degenerate = true
	}
	return nil
}

// center moves origin to the point of the feasible set furthest from the
// bounds by solving
//
//	maximize t
//	-M(z⁺-z⁻) + t' + u = origin - lo - t₀
//	 M(z⁺-z⁻) + t' + w = hi - origin - t₀
//
// where t = t' + t₀ and t₀ is chosen so that the slacks are a feasible
// starting basis.
func (p *program) center() error {
	n, q := spectrum.N, p.cols()
	t0 := 0.0
	for j, v := range p.origin {
		t0 = min(t0, v-p.lo[j], p.hi[j]-v)
	}
	t0 -= 1
	a := mat.NewDense(2*n, 2*q+1+2*n, nil)
	b := make([]float64, 2*n)
	basic := make([]int, 2*n)
	for j := range n {
		for col := range q {
			v := p.m.At(j, col)
			a.Set(j, col, -v)
			a.Set(j, q+col, v)
			a.Set(n+j, col, v)
			a.Set(n+j, q+col, -v)
		}
		a.Set(j, 2*q, 1)
		a.Set(n+j, 2*q, 1)
		a.Set(j, 2*q+1+j, 1)
		a.Set(n+j, 2*q+1+n+j, 1)
		b[j] = p.origin[j] - p.lo[j] - t0
		b[n+j] = p.hi[j] - p.origin[j] - t0
		basic[j], basic[n+j] = 2*q+1+j, 2*q+1+n+j
	}
	c := make([]float64, 2*q+1+2*n)
	c[2*q] = -1
	x, err := simplex(c, a, b, basic, p.tol)
	if err == nil {
		z := make([]float64, q)
		for col := range q {
			z[col] = x[col] - x[q+col]
		}
		if s := p.point(z); s.IsFinite() {
			p.origin = s
		}
	}
	// a failed centering leaves the least norm origin, which is still usable
	// when it is in bounds
	return p.check_margin(p.margin())
}

func (p *program) cols() int {
	_, q := p.m.Dims()
	return q
}

func (p *program) point(z []float64) spectrum.Spectrum {
	var out mat.VecDense
	out.MulVec(p.m, mat.NewVecDense(len(z), z))
	ans := p.origin
	for j := range ans {
		ans[j] += out.AtVec(j)
	}
	return ans
}

// simplex runs the gonum solver from a known feasible basis, converting its
// panics into errors.
func simplex(c []float64, a *mat.Dense, b []float64, basic []int, tol float64) (x []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			x, err = nil, fmt.Errorf("%w: %v", ErrLP, r)
		}
	}()
	if _, x, err = lp.Simplex(c, a, slices.Clone(b), tol, slices.Clone(basic)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLP, err)
	}
	return x, nil
}

// solve finds the extremal spectrum in the direction d (only the free part
// of d matters, the fixed parts are constant under the equalities).
func (p *program) solve(d []float64) (spectrum.Spectrum, error) {
	if p.degenerate {
		return p.origin.Clamp(), nil
	}
	q := p.cols()
	c := make([]float64, 2*q+2*spectrum.N)
	for col := range q {
		g := d[0]*p.r.At(0, col) + d[1]*p.r.At(1, col) + d[2]*p.r.At(2, col)
		c[col], c[q+col] = -g, g
	}
	x, err := simplex(c, p.a, p.b, p.basic, p.tol)
	if err != nil {
		return spectrum.Spectrum{}, err
	}
	z := make([]float64, q)
	for col := range q {
		z[col] = x[col] - x[q+col]
	}
	s := p.point(z)
	if !s.IsFinite() {
		return s, fmt.Errorf("%w: non-finite extremal spectrum", ErrLP)
	}
	return s.Clamp(), nil
}

// solve_within is solve bounded by timeout. A timed out LP is abandoned, it
// still terminates on its own since every pivot makes progress.
func (p *program) solve_within(d []float64, timeout time.Duration) (spectrum.Spectrum, error) {
	if timeout <= 0 {
		return p.solve(d)
	}
	type result struct {
		s   spectrum.Spectrum
		err error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := p.solve(d)
		ch <- result{s, err}
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.s, r.err
	case <-timer.C:
		return spectrum.Spectrum{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

func (in Input) validate() error {
	if in.Basis == nil {
		return fmt.Errorf("%w: no basis", ErrBadInput)
	}
	if len(in.Fixed) != len(in.Targets) {
		return fmt.Errorf("%w: %d fixed systems but %d targets", ErrBadInput, len(in.Fixed), len(in.Targets))
	}
	if len(in.Directions) == 0 {
		return fmt.Errorf("%w: no directions", ErrBadInput)
	}
	for i, d := range in.Directions {
		if len(d) < 3 {
			return fmt.Errorf("%w: direction %d has dimension %d", ErrBadInput, i, len(d))
		}
	}
	for i, t := range in.Targets {
		if !t.IsFinite() {
			return fmt.Errorf("%w: target %d is not finite", ErrBadInput, i)
		}
	}
	return nil
}

// Generate computes one extremal boundary point per direction. The LPs are
// solved in parallel, each writing only its own output slot.
func Generate(in Input, opts Options) (ans *Boundary, err error) {
	if err = in.validate(); err != nil {
		return
	}
	prog, err := new_program(in, opts.Tolerance)
	if err != nil {
		return
	}
	n := len(in.Directions)
	ans = &Boundary{
		Points:     make([]r3.Vector, n),
		Spectra:    make([]spectrum.Spectrum, n),
		Directions: in.Directions,
	}
	ok := make([]bool, n)
	if err = parallel.Run_in_parallel_over_range(opts.Workers, func(start, limit int) {
		for i := start; i < limit; i++ {
			s, serr := prog.solve_within(in.Directions[i], opts.Timeout)
			if serr == nil {
				ans.Spectra[i] = s
				ans.Points[i] = Vector(in.Free.Apply(s))
				ok[i] = true
			}
		}
	}, 0, n); err != nil {
		return nil, err
	}

	var mean_spectrum spectrum.Spectrum
	succeeded := 0
	for i, good := range ok {
		if good {
			mean_spectrum = mean_spectrum.Add(ans.Spectra[i])
			succeeded++
		}
	}
	if succeeded == 0 {
		return nil, ErrNoFreedom
	}
	mean_spectrum = mean_spectrum.Scale(1 / float64(succeeded))
	center := Vector(in.Free.Apply(mean_spectrum))
	for i, good := range ok {
		if !good {
			ans.Spectra[i] = mean_spectrum
			ans.Points[i] = center
			ans.Failed++
		}
	}
	ans.Center = centroid(ans.Points)
	if ans.Radius() < opts.DegenerateRadius {
		ans.Degenerate = true
		for i := range ans.Points {
			ans.Points[i] = ans.Center
			ans.Spectra[i] = mean_spectrum
		}
	}
	return ans, nil
}

func centroid(pts []r3.Vector) (ans r3.Vector) {
	for _, p := range pts {
		ans = ans.Add(p)
	}
	return ans.Mul(1 / float64(len(pts)))
}

// OCS samples the boundary of the object colour solid of free: the colours
// of all bounded reflectances representable in the basis.
func OCS(b *basis.Basis, free csys.Response, n int, seed uint64, opts Options) (*Boundary, error) {
	return Generate(Input{Basis: b, Free: free, Directions: Directions(n, 3, seed)}, opts)
}
