// Package scene holds the entities the uplifting core works on. Entities live
// in flat, index stable slices and refer to each other only by index.
package scene

import (
	"errors"
	"fmt"

	"github.com/kovidgoyal/uplift/basis"
	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/kovidgoyal/uplift/csys"
	"github.com/kovidgoyal/uplift/spectrum"
)

var _ = fmt.Print

var (
	// ErrInvalidIndex means an entity refers to another that does not exist.
	// It indicates a corrupted scene, not a numerical problem.
	ErrInvalidIndex = errors.New("scene: invalid index")
	ErrNoFree       = errors.New("scene: vertex has no free constraint")
)

type Named[T any] struct {
	Name  string
	Value T
}

// SystemDef describes a colour system in terms of scene resources.
type SystemDef struct {
	CMFS       int
	Illuminant int
	// Transport is an index into Scene.Reflectances or -1 for direct light.
	Transport int
	Bounces   int
	Output    csys.Output
	Adapt     bool
}

// Uplifting selects the basis spectra are solved in and the colour system
// vertex primaries and textures are expressed in.
type Uplifting struct {
	Basis  int
	System int
}

type Vertex struct {
	Name string
	// Primary is the colour the vertex reproduces under the uplifting system.
	Primary     colorconv.Vec3
	Constraints []Constraint
	// Free is the index of the constraint whose target the user moves around
	// inside the mismatch volume, or -1.
	Free int
}

func (v Vertex) HasFree() bool { return v.Free >= 0 && v.Free < len(v.Constraints) }

// Clone returns a copy that shares no memory with v.
func (v Vertex) Clone() Vertex {
	v.Constraints = append([]Constraint(nil), v.Constraints...)
	return v
}

type Scene struct {
	CMFS         []Named[spectrum.CMFS]
	Illuminants  []Named[spectrum.Illuminant]
	Reflectances []Named[spectrum.Spectrum]
	Bases        []Named[*basis.Basis]
	Systems      []SystemDef
	Vertices     []Vertex
	Uplifting    Uplifting
}

// New returns a scene with the CIE 1931 observer, the D65 and FL11
// illuminants, the default basis and linear sRGB systems under both
// illuminants. The uplifting system is sRGB under D65.
func New() *Scene {
	b, err := basis.Default(basis.DefaultK)
	if err != nil {
		panic(err)
	}
	return &Scene{
		CMFS:        []Named[spectrum.CMFS]{{"cie1931", spectrum.CIE1931}},
		Illuminants: []Named[spectrum.Illuminant]{{"d65", spectrum.D65}, {"fl11", spectrum.FL11()}},
		Bases:       []Named[*basis.Basis]{{"dct", b}},
		Systems: []SystemDef{
			{CMFS: 0, Illuminant: 0, Transport: -1, Output: csys.LinearSRGB},
			{CMFS: 0, Illuminant: 1, Transport: -1, Output: csys.LinearSRGB},
		},
		Uplifting: Uplifting{Basis: 0, System: 0},
	}
}

func in_range[T any](s []T, i int) bool { return i >= 0 && i < len(s) }

func (s *Scene) validate_system(d SystemDef) error {
	if !in_range(s.CMFS, d.CMFS) {
		return fmt.Errorf("cmfs %d", d.CMFS)
	}
	if !in_range(s.Illuminants, d.Illuminant) {
		return fmt.Errorf("illuminant %d", d.Illuminant)
	}
	if d.Transport != -1 && !in_range(s.Reflectances, d.Transport) {
		return fmt.Errorf("transport %d", d.Transport)
	}
	if d.Bounces < 0 {
		return fmt.Errorf("bounces %d", d.Bounces)
	}
	return nil
}

// Validate checks every cross reference in the scene.
func (s *Scene) Validate() error {
	for i, d := range s.Systems {
		if err := s.validate_system(d); err != nil {
			return fmt.Errorf("%w: system %d: %s", ErrInvalidIndex, i, err)
		}
	}
	for i, b := range s.Bases {
		if b.Value == nil {
			return fmt.Errorf("%w: basis %d is nil", ErrInvalidIndex, i)
		}
	}
	if !in_range(s.Bases, s.Uplifting.Basis) {
		return fmt.Errorf("%w: uplifting basis %d", ErrInvalidIndex, s.Uplifting.Basis)
	}
	if !in_range(s.Systems, s.Uplifting.System) {
		return fmt.Errorf("%w: uplifting system %d", ErrInvalidIndex, s.Uplifting.System)
	}
	for i, v := range s.Vertices {
		if v.Free != -1 && !in_range(v.Constraints, v.Free) {
			return fmt.Errorf("%w: vertex %d: free constraint %d", ErrInvalidIndex, i, v.Free)
		}
		for j, c := range v.Constraints {
			if err := c.validate(s); err != nil {
				return fmt.Errorf("%w: vertex %d: constraint %d: %s", ErrInvalidIndex, i, j, err)
			}
		}
	}
	return nil
}

// System finalizes system i. The scene must be valid.
func (s *Scene) System(i int) csys.System {
	d := s.Systems[i]
	ans := csys.System{
		CMFS: s.CMFS[d.CMFS].Value, Illuminant: s.Illuminants[d.Illuminant].Value,
		Output: d.Output, Adapt: d.Adapt,
	}
	if d.Transport >= 0 {
		ans.Transport, ans.Bounces = s.Reflectances[d.Transport].Value, d.Bounces
	}
	return ans
}

func (s *Scene) Basis() *basis.Basis { return s.Bases[s.Uplifting.Basis].Value }

// Primary is the response of the uplifting system.
func (s *Scene) Primary() csys.Response { return s.System(s.Uplifting.System).Finalize() }

// Resolved is a vertex reduced to responses and targets.
type Resolved struct {
	Basis *basis.Basis
	// Fixed constraints, the primary first.
	Fixed   []csys.Response
	Targets []colorconv.Vec3
	HasFree bool
	Free    csys.Response
	// FreeTarget is where the user placed the vertex inside the mismatch
	// volume.
	FreeTarget colorconv.Vec3
}

// Systems returns all responses and targets the solver should satisfy, the
// free constraint last.
func (r Resolved) Systems() ([]csys.Response, []colorconv.Vec3) {
	if !r.HasFree {
		return r.Fixed, r.Targets
	}
	return append(r.Fixed[:len(r.Fixed):len(r.Fixed)], r.Free), append(r.Targets[:len(r.Targets):len(r.Targets)], r.FreeTarget)
}

// Resolve finalizes all constraints of vertex i.
func (s *Scene) Resolve(i int) (ans Resolved, err error) {
	if !in_range(s.Vertices, i) {
		return ans, fmt.Errorf("%w: vertex %d", ErrInvalidIndex, i)
	}
	v := s.Vertices[i]
	ans.Basis = s.Basis()
	ans.Fixed = append(ans.Fixed, s.Primary())
	ans.Targets = append(ans.Targets, v.Primary)
	for j, c := range v.Constraints {
		resp, target, err := c.Finalize(s)
		if err != nil {
			return ans, fmt.Errorf("vertex %d: constraint %d: %w", i, j, err)
		}
		if j == v.Free {
			ans.HasFree, ans.Free, ans.FreeTarget = true, resp, target
			continue
		}
		ans.Fixed = append(ans.Fixed, resp)
		ans.Targets = append(ans.Targets, target)
	}
	return
}

// SetFreeTarget moves the free constraint of vertex i to c.
func (s *Scene) SetFreeTarget(i int, c colorconv.Vec3) error {
	if !in_range(s.Vertices, i) {
		return fmt.Errorf("%w: vertex %d", ErrInvalidIndex, i)
	}
	v := &s.Vertices[i]
	if !v.HasFree() {
		return fmt.Errorf("%w: vertex %d", ErrNoFree, i)
	}
	return v.Constraints[v.Free].SetTarget(c)
}

// AddVertex appends v and returns its index.
func (s *Scene) AddVertex(v Vertex) int {
	s.Vertices = append(s.Vertices, v)
	return len(s.Vertices) - 1
}

// RemoveVertex deletes vertex i, shifting later vertices down by one.
func (s *Scene) RemoveVertex(i int) error {
	if !in_range(s.Vertices, i) {
		return fmt.Errorf("%w: vertex %d", ErrInvalidIndex, i)
	}
	s.Vertices = append(s.Vertices[:i], s.Vertices[i+1:]...)
	return nil
}
