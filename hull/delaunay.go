package hull

import (
	"fmt"
	"math"
	"slices"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

var _ = fmt.Print

// Tetrahedra is a tessellation of the convex hull of a point cloud into
// positively oriented tetrahedra.
type Tetrahedra struct {
	Points   []r3.Vector
	Elements [][4]int
	Volumes  []float64
	Volume   float64
	// Star is set when the Delaunay tessellation did not cover the hull and
	// a star of the hull triangles around its center was used instead.
	Star bool

	inverses []*mat.Dense
	cdf      []float64
}

type circumsphere struct {
	v      [4]int
	center r3.Vector
	r2     float64
	flat   bool
}

func signed_volume(a, b, c, d r3.Vector) float64 {
	return b.Sub(a).Dot(c.Sub(a).Cross(d.Sub(a))) / 6
}

func new_circumsphere(pts []r3.Vector, v [4]int) circumsphere {
	a := pts[v[0]]
	ab, ac, ad := pts[v[1]].Sub(a), pts[v[2]].Sub(a), pts[v[3]].Sub(a)
	den := 2 * ab.Dot(ac.Cross(ad))
	scale := max(ab.Norm2(), ac.Norm2(), ad.Norm2())
	if math.Abs(den) <= 1e-14*scale*math.Sqrt(scale) {
		return circumsphere{v: v, flat: true}
	}
	num := ac.Cross(ad).Mul(ab.Norm2()).Add(ad.Cross(ab).Mul(ac.Norm2())).Add(ab.Cross(ac).Mul(ad.Norm2()))
	off := num.Mul(1 / den)
	return circumsphere{v: v, center: a.Add(off), r2: off.Norm2()}
}

func (c circumsphere) contains(p r3.Vector) bool {
	return c.flat || p.Sub(c.center).Norm2() < c.r2*(1-1e-12)
}

// bowyer_watson returns the Delaunay tetrahedra of points, inserting them one
// at a time into an enclosing super tetrahedron. Points within eps of an
// already inserted point are skipped.
func bowyer_watson(points []r3.Vector, eps float64) [][4]int {
	n := len(points)
	c := Centroid(points)
	l := 50 * max(extent(points), 1e-6)
	all := make([]r3.Vector, n, n+4)
	copy(all, points)
	all = append(all,
		c.Add(r3.Vector{X: l, Y: l, Z: l}),
		c.Add(r3.Vector{X: l, Y: -l, Z: -l}),
		c.Add(r3.Vector{X: -l, Y: l, Z: -l}),
		c.Add(r3.Vector{X: -l, Y: -l, Z: l}),
	)
	tets := []circumsphere{new_circumsphere(all, [4]int{n, n + 1, n + 2, n + 3})}
	inserted := make([]int, 0, n)
	type face = [3]int
	for i := range n {
		p := all[i]
		if slices.ContainsFunc(inserted, func(j int) bool { return all[j].Sub(p).Norm() <= eps }) {
			continue
		}
		counts := make(map[face]int)
		var faces []face
		keep := tets[:0:0]
		for _, t := range tets {
			if !t.contains(p) {
				keep = append(keep, t)
				continue
			}
			for skip := range 4 {
				var f face
				k := 0
				for j, v := range t.v {
					if j != skip {
						f[k] = v
						k++
					}
				}
				key := f
				slices.Sort(key[:])
				if counts[key] == 0 {
					faces = append(faces, key)
				}
				counts[key]++
			}
		}
		if len(keep) == len(tets) {
			continue
		}
		for _, f := range faces {
			if counts[f] == 1 {
				keep = append(keep, new_circumsphere(all, [4]int{f[0], f[1], f[2], i}))
			}
		}
		tets = keep
		inserted = append(inserted, i)
	}
	ans := make([][4]int, 0, len(tets))
	for _, t := range tets {
		if slices.ContainsFunc(t.v[:], func(v int) bool { return v >= n }) {
			continue
		}
		ans = append(ans, t.v)
	}
	return ans
}

// set orients elements positively, drops those with no volume and computes
// per element data used by queries.
func (t *Tetrahedra) set(elements [][4]int, min_volume float64) {
	t.Elements = t.Elements[:0]
	t.Volumes = t.Volumes[:0]
	t.Volume = 0
	for _, e := range elements {
		v := signed_volume(t.Points[e[0]], t.Points[e[1]], t.Points[e[2]], t.Points[e[3]])
		if v < 0 {
			e[2], e[3] = e[3], e[2]
			v = -v
		}
		if v <= min_volume {
			continue
		}
		t.Elements = append(t.Elements, e)
		t.Volumes = append(t.Volumes, v)
		t.Volume += v
	}
	t.inverses = make([]*mat.Dense, len(t.Elements))
	t.cdf = make([]float64, len(t.Elements))
	sum := 0.0
	for i, e := range t.Elements {
		a := t.Points[e[0]]
		b, c, d := t.Points[e[1]].Sub(a), t.Points[e[2]].Sub(a), t.Points[e[3]].Sub(a)
		m := mat.NewDense(3, 3, []float64{b.X, c.X, d.X, b.Y, c.Y, d.Y, b.Z, c.Z, d.Z})
		var inv mat.Dense
		if err := inv.Inverse(m); err == nil {
			t.inverses[i] = &inv
		}
		sum += t.Volumes[i]
		t.cdf[i] = sum
	}
}

// Star tessellates a convex mesh by joining each of its triangles to the
// mesh center.
func Star(m *Mesh) *Tetrahedra {
	pts := make([]r3.Vector, len(m.Points), len(m.Points)+1)
	copy(pts, m.Points)
	pts = append(pts, m.Center)
	c := len(pts) - 1
	elements := make([][4]int, len(m.Triangles))
	for i, tri := range m.Triangles {
		elements[i] = [4]int{c, tri[0], tri[1], tri[2]}
	}
	ans := &Tetrahedra{Points: pts, Star: true}
	ans.set(elements, 0)
	return ans
}

// Tessellate computes the Delaunay tetrahedralisation of points. The result
// is checked against the volume of the convex hull, falling back to a star
// tessellation of the hull when the two disagree.
func Tessellate(points []r3.Vector, opts Options) (*Tetrahedra, error) {
	m, err := Build(points, opts)
	if err != nil {
		return nil, err
	}
	size := extent(points)
	ans := &Tetrahedra{Points: points}
	ans.set(bowyer_watson(points, opts.eps()*size), opts.eps()*size*size*size)
	if math.Abs(ans.Volume-m.Volume) <= 1e-6*m.Volume {
		return ans, nil
	}
	return Star(m), nil
}
