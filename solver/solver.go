// Package solver finds a reflectance spectrum that reproduces target colours
// under a set of colour systems while staying physically bounded.
//
// The unknowns are basis coefficients c, spectrum = mean + B·c. The first
// (primary) constraint is either satisfied exactly, by restricting c to the
// affine subspace c0 + Z·y where Z spans the null space of its projected
// response, or weighted into the least squares objective together with the
// secondary constraints. The box 0 <= spectrum <= 1 is enforced by a rising
// quadratic penalty minimised with L-BFGS, after which the spectrum is
// clamped back into the box.
package solver

import (
	"errors"
	"fmt"
	"math"

	"github.com/kovidgoyal/uplift/basis"
	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/kovidgoyal/uplift/csys"
	"github.com/kovidgoyal/uplift/spectrum"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

var _ = fmt.Print

var (
	ErrDimension  = errors.New("solver: systems and targets do not match")
	ErrInfeasible = errors.New("solver: constraints cannot be satisfied jointly")
)

type Options struct {
	// PrimaryExact treats the first constraint as an equality.
	PrimaryExact bool
	// PrimaryWeight is used for the first constraint when it is not exact.
	PrimaryWeight float64
	// Weights for the remaining constraints, missing entries default to 1.
	Weights []float64
	// Regularization pulls coefficients towards the basis mean.
	Regularization float64
	// MaxIterations caps L-BFGS iterations per penalty round.
	MaxIterations int
	// PenaltyRounds is the number of times the bound penalty is raised (x100
	// each time, starting at 100).
	PenaltyRounds int
	// BoundTolerance stops the penalty rounds early once the largest bound
	// violation is below it.
	BoundTolerance float64
	// FeasibleTolerance is the largest per channel roundtrip error for which a
	// result still counts as feasible.
	FeasibleTolerance float64
	// MinimizeError searches blends of the bounded and unbounded solutions for
	// the smallest primary error after clamping.
	MinimizeError bool
}

func DefaultOptions() Options {
	return Options{
		PrimaryExact:      true,
		PrimaryWeight:     100,
		Regularization:    1e-6,
		MaxIterations:     200,
		PenaltyRounds:     4,
		BoundTolerance:    1e-7,
		FeasibleTolerance: 1e-3,
	}
}

type Result struct {
	Spectrum spectrum.Spectrum
	Coeffs   []float64
	// Errors holds the largest per channel error for each constraint.
	Errors     []float64
	Feasible   bool
	Iterations int
}

// MaxError is the largest roundtrip error over all constraints.
func (r Result) MaxError() (ans float64) {
	for _, e := range r.Errors {
		ans = max(ans, e)
	}
	return
}

// Err returns ErrInfeasible wrapped with the worst error if the result is not
// feasible, otherwise nil.
func (r Result) Err() error {
	if r.Feasible {
		return nil
	}
	return fmt.Errorf("%w: largest roundtrip error %.3g", ErrInfeasible, r.MaxError())
}

type term struct {
	m      *mat.Dense
	offset colorconv.Vec3
	target colorconv.Vec3
	weight float64
}

type problem struct {
	b     *basis.Basis
	soft  []term
	c0    *mat.VecDense
	z     *mat.Dense
	alpha float64
	mu    float64
	k, q  int
}

func (p *problem) coeffs(y []float64) *mat.VecDense {
	c := mat.NewVecDense(p.k, nil)
	if p.q > 0 {
		c.MulVec(p.z, mat.NewVecDense(p.q, y))
	}
	c.AddVec(c, p.c0)
	return c
}

func (p *problem) spectrum(c *mat.VecDense) spectrum.Spectrum {
	return p.b.Spectrum(c.RawVector().Data)
}

// eval returns the objective and, if grad is not nil, fills its gradient
// with respect to y.
func (p *problem) eval(y, grad []float64) float64 {
	c := p.coeffs(y)
	f := 0.0
	gc := mat.NewVecDense(p.k, nil)
	var tmp mat.VecDense
	for _, t := range p.soft {
		var r mat.VecDense
		r.MulVec(t.m, c)
		res := mat.NewVecDense(3, nil)
		for i := range 3 {
			res.SetVec(i, r.AtVec(i)+t.offset[i]-t.target[i])
		}
		f += t.weight * mat.Dot(res, res)
		if grad != nil {
			tmp.MulVec(t.m.T(), res)
			gc.AddScaledVec(gc, 2*t.weight, &tmp)
		}
	}
	f += p.alpha * mat.Dot(c, c)
	if grad != nil {
		gc.AddScaledVec(gc, 2*p.alpha, c)
	}
	if p.mu > 0 {
		s := p.spectrum(c)
		gs := mat.NewVecDense(spectrum.N, nil)
		for j, v := range s {
			lo, hi := max(0, -v), max(0, v-1)
			f += p.mu * (lo*lo + hi*hi)
			gs.SetVec(j, 2*p.mu*(hi-lo))
		}
		if grad != nil {
			tmp.MulVec(p.b.Functions.T(), gs)
			gc.AddVec(gc, &tmp)
		}
	}
	if grad != nil && p.q > 0 {
		gy := mat.NewVecDense(p.q, grad)
		gy.MulVec(p.z.T(), gc)
	}
	return f
}

func (p *problem) minimize(y []float64, max_iterations int) ([]float64, int) {
	if p.q == 0 {
		return y, 0
	}
	prob := optimize.Problem{
		Func: func(x []float64) float64 { return p.eval(x, nil) },
		Grad: func(grad, x []float64) { p.eval(x, grad) },
	}
	settings := &optimize.Settings{MajorIterations: max_iterations}
	// line search failures still leave the best location found in res.X
	res, _ := optimize.Minimize(prob, y, settings, &optimize.LBFGS{})
	if res == nil || len(res.X) != len(y) || floats.HasNaN(res.X) {
		return y, 0
	}
	return res.X, res.Stats.MajorIterations
}

// nullspace returns a particular minimum norm solution of m·c = rhs together
// with an orthonormal basis (as columns) of the null space of m.
func nullspace(m *mat.Dense, rhs colorconv.Vec3) (*mat.VecDense, *mat.Dense, error) {
	rows, k := m.Dims()
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return nil, nil, errors.New("solver: SVD of the primary response failed to converge")
	}
	sv := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	rank := 0
	for _, s := range sv {
		if s > 1e-10*sv[0] {
			rank++
		}
	}
	c0 := mat.NewVecDense(k, nil)
	for i := range rank {
		dot := 0.0
		for r := range rows {
			dot += u.At(r, i) * rhs[r]
		}
		c0.AddScaledVec(c0, dot/sv[i], v.ColView(i))
	}
	if rank == k {
		return c0, nil, nil
	}
	z := mat.NewDense(k, k-rank, nil)
	z.Copy(v.Slice(0, k, rank, k))
	return c0, z, nil
}

// Solve computes a bounded spectrum reproducing targets[i] under systems[i].
// Jointly infeasible constraints do not produce an error: the least violating
// spectrum is returned with Feasible set to false.
func Solve(b *basis.Basis, systems []csys.Response, targets []colorconv.Vec3, opts Options) (ans Result, err error) {
	if len(systems) == 0 || len(systems) != len(targets) {
		return ans, fmt.Errorf("%w: %d systems, %d targets", ErrDimension, len(systems), len(targets))
	}
	for i, t := range targets {
		if !t.IsFinite() {
			return ans, fmt.Errorf("%w: target %d is not finite", ErrDimension, i)
		}
	}
	k := b.K()
	p := &problem{b: b, alpha: opts.Regularization, k: k}
	first := 0
	if opts.PrimaryExact {
		proj := systems[0].Project(b)
		c0, z, err := nullspace(proj.M, targets[0].Sub(proj.Offset))
		if err != nil {
			return ans, err
		}
		p.c0, p.z = c0, z
		if z != nil {
			_, p.q = z.Dims()
		}
		first = 1
	} else {
		p.c0 = mat.NewVecDense(k, nil)
		p.z = identity(k)
		p.q = k
	}
	for i := first; i < len(systems); i++ {
		proj := systems[i].Project(b)
		w := 1.0
		if i == 0 {
			w = opts.PrimaryWeight
		} else if i-1 < len(opts.Weights) {
			w = opts.Weights[i-1]
		}
		p.soft = append(p.soft, term{m: proj.M, offset: proj.Offset, target: targets[i], weight: w})
	}

	// unbounded solution first, it seeds the penalty rounds
	y := make([]float64, p.q)
	y, its := p.minimize(y, opts.MaxIterations)
	ans.Iterations += its
	unbounded := p.coeffs(y)

	mu := 100.0
	for range max(1, opts.PenaltyRounds) {
		if p.spectrum(p.coeffs(y)).MaxViolation() <= opts.BoundTolerance {
			break
		}
		p.mu = mu
		y, its = p.minimize(y, opts.MaxIterations)
		ans.Iterations += its
		mu *= 100
	}
	bounded := p.coeffs(y)

	chosen := bounded
	if opts.MinimizeError {
		chosen = min_error_blend(b, systems[0], targets[0], bounded, unbounded)
	}
	ans.Coeffs = mat.VecDenseCopyOf(chosen).RawVector().Data
	ans.Spectrum = b.Spectrum(ans.Coeffs).Clamp()
	ans.Errors = make([]float64, len(systems))
	ans.Feasible = true
	for i, sys := range systems {
		ans.Errors[i] = sys.Apply(ans.Spectrum).Sub(targets[i]).MaxAbs()
		if ans.Errors[i] > opts.FeasibleTolerance {
			ans.Feasible = false
		}
	}
	return ans, nil
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := range n {
		m.Set(i, i, 1)
	}
	return m
}

// min_error_blend golden section searches t in [0,1] for the blend
// (1-t)·bounded + t·unbounded whose clamped spectrum has the smallest
// primary error.
func min_error_blend(b *basis.Basis, primary csys.Response, target colorconv.Vec3, bounded, unbounded *mat.VecDense) *mat.VecDense {
	blend := func(t float64) *mat.VecDense {
		c := mat.NewVecDense(bounded.Len(), nil)
		c.AddScaledVec(c, 1-t, bounded)
		c.AddScaledVec(c, t, unbounded)
		return c
	}
	cost := func(t float64) float64 {
		s := b.Spectrum(blend(t).RawVector().Data).Clamp()
		return primary.Apply(s).Sub(target).MaxAbs()
	}
	phi := (math.Sqrt(5) - 1) / 2
	lo, hi := 0.0, 1.0
	x1, x2 := hi-phi*(hi-lo), lo+phi*(hi-lo)
	f1, f2 := cost(x1), cost(x2)
	for range 40 {
		if f1 < f2 {
			hi, x2, f2 = x2, x1, f1
			x1 = hi - phi*(hi-lo)
			f1 = cost(x1)
		} else {
			lo, x1, f1 = x1, x2, f2
			x2 = lo + phi*(hi-lo)
			f2 = cost(x2)
		}
	}
	best, bf := 0.0, cost(0)
	for _, t := range []float64{1, (lo + hi) / 2} {
		if f := cost(t); f < bf {
			best, bf = t, f
		}
	}
	return blend(best)
}
