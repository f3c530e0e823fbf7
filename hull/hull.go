// Package hull builds closed triangle meshes and tetrahedral tessellations
// of 3D point clouds, and answers point location queries against them.
package hull

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/markus-wa/quickhull-go/v2"
)

var _ = fmt.Print

var (
	ErrTooFewPoints = errors.New("hull: at least four points are needed")
	ErrDegenerate   = errors.New("hull: points are coplanar or coincident")
)

const default_eps = 1e-10

type Options struct {
	// Eps is the quickhull tolerance, also used (relative to the extent of
	// the cloud) to decide that a hull has no volume.
	Eps float64
}

func (o Options) eps() float64 {
	if o.Eps > 0 {
		return o.Eps
	}
	return default_eps
}

// Mesh is a closed triangle mesh with outward facing, counter clockwise
// triangles.
type Mesh struct {
	Points    []r3.Vector
	Triangles [][3]int
	// Center is the arithmetic mean of Points.
	Center r3.Vector
	Volume float64
	Area   float64
}

func Centroid(pts []r3.Vector) (ans r3.Vector) {
	if len(pts) == 0 {
		return
	}
	for _, p := range pts {
		ans = ans.Add(p)
	}
	return ans.Mul(1 / float64(len(pts)))
}

func extent(pts []r3.Vector) float64 {
	lo := r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := lo.Mul(-1)
	for _, p := range pts {
		lo = r3.Vector{X: min(lo.X, p.X), Y: min(lo.Y, p.Y), Z: min(lo.Z, p.Z)}
		hi = r3.Vector{X: max(hi.X, p.X), Y: max(hi.Y, p.Y), Z: max(hi.Z, p.Z)}
	}
	return max(hi.X-lo.X, hi.Y-lo.Y, hi.Z-lo.Z)
}

// Point returns the hull of a single point: no triangles and no volume.
func Point(p r3.Vector) *Mesh {
	return &Mesh{Points: []r3.Vector{p}, Center: p}
}

func (m *Mesh) IsPoint() bool { return len(m.Triangles) == 0 }

// orient flips triangles so that their normals point away from the center
// and computes volume and area.
func (m *Mesh) orient() {
	m.Volume, m.Area = 0, 0
	for i, t := range m.Triangles {
		a, b, c := m.Points[t[0]], m.Points[t[1]], m.Points[t[2]]
		n := b.Sub(a).Cross(c.Sub(a))
		v := a.Sub(m.Center).Dot(b.Sub(m.Center).Cross(c.Sub(m.Center))) / 6
		if v < 0 {
			m.Triangles[i][1], m.Triangles[i][2] = t[2], t[1]
			v = -v
		}
		m.Volume += v
		m.Area += n.Norm() / 2
	}
}

func convex_hull(points []r3.Vector, eps float64) (indices []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: quickhull failed: %v", ErrDegenerate, r)
		}
	}()
	ch := new(quickhull.QuickHull).ConvexHull(points, true, true, eps)
	if len(ch.Indices) < 12 || len(ch.Indices)%3 != 0 {
		return nil, ErrDegenerate
	}
	return ch.Indices, nil
}

// Build computes the convex hull of points. Points not on the hull remain in
// Points but are not referenced by any triangle.
func Build(points []r3.Vector, opts Options) (*Mesh, error) {
	if len(points) < 4 {
		return nil, ErrTooFewPoints
	}
	for i, p := range points {
		if math.IsNaN(p.X+p.Y+p.Z) || math.IsInf(p.X+p.Y+p.Z, 0) {
			return nil, fmt.Errorf("%w: point %d is not finite", ErrDegenerate, i)
		}
	}
	size := extent(points)
	if size <= opts.eps() {
		return nil, fmt.Errorf("%w: all points coincide", ErrDegenerate)
	}
	indices, err := convex_hull(points, opts.eps()*size)
	if err != nil {
		return nil, err
	}
	m := &Mesh{Points: points, Center: Centroid(points), Triangles: make([][3]int, len(indices)/3)}
	for i := range m.Triangles {
		m.Triangles[i] = [3]int{indices[3*i], indices[3*i+1], indices[3*i+2]}
	}
	m.orient()
	if m.Volume <= opts.eps()*size*size*size {
		return nil, fmt.Errorf("%w: hull has no volume", ErrDegenerate)
	}
	return m, nil
}

// Contains reports whether p lies inside the mesh or within eps of its
// surface. Only meaningful for convex meshes.
func (m *Mesh) Contains(p r3.Vector, eps float64) bool {
	if m.IsPoint() {
		return p.Sub(m.Center).Norm() <= eps
	}
	for _, t := range m.Triangles {
		a, b, c := m.Points[t[0]], m.Points[t[1]], m.Points[t[2]]
		n := b.Sub(a).Cross(c.Sub(a))
		l := n.Norm()
		if l == 0 {
			continue
		}
		if p.Sub(a).Dot(n)/l > eps {
			return false
		}
	}
	return true
}

// Template is a triangle topology computed once from a set of sampling
// directions. Boundaries generated from the same directions can reuse it
// instead of running a hull algorithm per boundary.
type Template struct {
	N         int
	Triangles [][3]int
}

// NewTemplate builds the topology of the spherical hull of the first three
// components of each direction.
func NewTemplate(directions [][]float64) (*Template, error) {
	pts := make([]r3.Vector, len(directions))
	for i, d := range directions {
		if len(d) < 3 {
			return nil, fmt.Errorf("%w: direction %d has dimension %d", ErrDegenerate, i, len(d))
		}
		v := r3.Vector{X: d[0], Y: d[1], Z: d[2]}
		if n := v.Norm(); n > 0 {
			v = v.Mul(1 / n)
		}
		pts[i] = v
	}
	m, err := Build(pts, Options{})
	if err != nil {
		return nil, err
	}
	return &Template{N: len(pts), Triangles: m.Triangles}, nil
}

// BuildFromTemplate reuses the topology of tpl for points, which must
// correspond one to one with the directions the template was built from.
// Triangles are oriented away from the centroid of points.
func BuildFromTemplate(points []r3.Vector, tpl *Template) (*Mesh, error) {
	if len(points) != tpl.N {
		return nil, fmt.Errorf("%w: template has %d vertices, got %d points", ErrDegenerate, tpl.N, len(points))
	}
	m := &Mesh{Points: points, Center: Centroid(points), Triangles: make([][3]int, len(tpl.Triangles))}
	copy(m.Triangles, tpl.Triangles)
	m.orient()
	size := extent(points)
	if size <= default_eps || m.Volume <= default_eps*size*size*size {
		return nil, fmt.Errorf("%w: templated mesh has no volume", ErrDegenerate)
	}
	return m, nil
}
