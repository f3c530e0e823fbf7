package hull

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/golang/geo/r3"
)

const inside_eps = 1e-9

func (t *Tetrahedra) barycentric(i int, p r3.Vector) (w [4]float64, ok bool) {
	inv := t.inverses[i]
	if inv == nil {
		return w, false
	}
	d := p.Sub(t.Points[t.Elements[i][0]])
	for r := range 3 {
		w[r+1] = inv.At(r, 0)*d.X + inv.At(r, 1)*d.Y + inv.At(r, 2)*d.Z
	}
	w[0] = 1 - w[1] - w[2] - w[3]
	return w, true
}

// FindEnclosing returns the barycentric weights of p with respect to the
// element containing it, together with that element's vertex indices. For
// points outside the tessellation ok is false and the element whose weights
// are least negative is returned, with weights clamped to be non-negative and
// renormalised to sum to one.
func (t *Tetrahedra) FindEnclosing(p r3.Vector) (weights [4]float64, elem [4]int, ok bool) {
	best, best_idx := math.Inf(-1), -1
	for i := range t.Elements {
		w, valid := t.barycentric(i, p)
		if !valid {
			continue
		}
		m := min(w[0], w[1], w[2], w[3])
		if m >= -inside_eps {
			return w, t.Elements[i], true
		}
		if m > best {
			best, best_idx, weights = m, i, w
		}
	}
	if best_idx < 0 {
		return weights, elem, false
	}
	sum := 0.0
	for i, w := range weights {
		weights[i] = max(0, w)
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights, t.Elements[best_idx], false
}

// Interpolate evaluates the point with the given barycentric weights in
// element elem.
func (t *Tetrahedra) Interpolate(weights [4]float64, elem [4]int) (ans r3.Vector) {
	for i, v := range elem {
		ans = ans.Add(t.Points[v].Mul(weights[i]))
	}
	return
}

// Sample returns a point uniformly distributed over the volume of the
// tessellation.
func (t *Tetrahedra) Sample(r *rand.Rand) r3.Vector {
	if len(t.Elements) == 0 {
		return Centroid(t.Points)
	}
	x := r.Float64() * t.cdf[len(t.cdf)-1]
	i := min(sort.SearchFloat64s(t.cdf, x), len(t.cdf)-1)
	var w [4]float64
	sum := 0.0
	for j := range w {
		w[j] = -math.Log(1 - r.Float64())
		sum += w[j]
	}
	for j := range w {
		w[j] /= sum
	}
	return t.Interpolate(w, t.Elements[i])
}
