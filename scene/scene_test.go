package scene

import (
	"strings"
	"testing"

	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/kovidgoyal/uplift/spectrum"
	"github.com/kovidgoyal/uplift/state"
	"github.com/stretchr/testify/require"
)

func test_scene() *Scene {
	s := New()
	s.Reflectances = append(s.Reflectances, Named[spectrum.Spectrum]{"half", spectrum.Constant(0.5)})
	s.AddVertex(Vertex{
		Name:    "gray",
		Primary: colorconv.Vec3{0.5, 0.5, 0.5},
		Constraints: []Constraint{
			Color(1, colorconv.Vec3{0.45, 0.5, 0.55}),
			Measurement(0, 1),
		},
		Free: 0,
	})
	return s
}

func TestValidate(t *testing.T) {
	require.NoError(t, New().Validate())
	require.NoError(t, test_scene().Validate())
	for name, mutate := range map[string]func(*Scene){
		"system illuminant":  func(s *Scene) { s.Systems[1].Illuminant = 7 },
		"system transport":   func(s *Scene) { s.Systems[0].Transport = 3 },
		"uplifting basis":    func(s *Scene) { s.Uplifting.Basis = 1 },
		"uplifting system":   func(s *Scene) { s.Uplifting.System = -1 },
		"free":               func(s *Scene) { s.Vertices[0].Free = 2 },
		"color system":       func(s *Scene) { s.Vertices[0].Constraints[0].Color.System = 9 },
		"measurement":        func(s *Scene) { s.Vertices[0].Constraints[1].Measurement.Reflectance = 1 },
		"unknown kind":       func(s *Scene) { s.Vertices[0].Constraints[0].Kind = 42 },
		"indirect transport": func(s *Scene) { s.Vertices[0].Constraints[0] = Indirect(0, 5, 1, colorconv.Vec3{}) },
	} {
		s := test_scene()
		mutate(s)
		require.ErrorIs(t, s.Validate(), ErrInvalidIndex, name)
	}
}

func TestResolve(t *testing.T) {
	s := test_scene()
	r, err := s.Resolve(0)
	require.NoError(t, err)
	require.Len(t, r.Fixed, 2)
	require.Equal(t, colorconv.Vec3{0.5, 0.5, 0.5}, r.Targets[0])
	require.True(t, r.HasFree)
	require.Equal(t, colorconv.Vec3{0.45, 0.5, 0.55}, r.FreeTarget)
	fl11 := s.System(1).Finalize()
	require.Equal(t, fl11, r.Free)
	require.Equal(t, fl11.Apply(spectrum.Constant(0.5)), r.Targets[1])

	systems, targets := r.Systems()
	require.Len(t, systems, 3)
	require.Len(t, targets, 3)
	require.Equal(t, r.Free, systems[2])
	require.Len(t, r.Fixed, 2, "Systems must not grow Fixed")

	_, err = s.Resolve(3)
	require.ErrorIs(t, err, ErrInvalidIndex)
}

func TestFinalizeKinds(t *testing.T) {
	s := test_scene()
	surface, target, err := Surface(1, colorconv.Vec3{1, 2, 3}).Finalize(s)
	require.NoError(t, err)
	require.Equal(t, colorconv.Vec3{1, 2, 3}, target)
	require.Equal(t, s.System(1).Finalize(), surface)

	indirect, _, err := Indirect(1, 0, 2, colorconv.Vec3{}).Finalize(s)
	require.NoError(t, err)
	white := spectrum.Constant(1)
	a, b := surface.Apply(white), indirect.Apply(white)
	for c := range 3 {
		require.InDelta(t, a[c]*0.25, b[c], 1e-12)
	}

	_, _, err = Color(5, colorconv.Vec3{}).Finalize(s)
	require.ErrorIs(t, err, ErrInvalidIndex)
}

func TestSetFreeTarget(t *testing.T) {
	s := test_scene()
	require.NoError(t, s.SetFreeTarget(0, colorconv.Vec3{0.1, 0.2, 0.3}))
	require.Equal(t, colorconv.Vec3{0.1, 0.2, 0.3}, s.Vertices[0].Constraints[0].Color.Target)
	require.ErrorIs(t, s.SetFreeTarget(1, colorconv.Vec3{}), ErrInvalidIndex)
	s.Vertices[0].Free = 1
	require.ErrorIs(t, s.SetFreeTarget(0, colorconv.Vec3{}), ErrNoTarget)
	s.Vertices[0].Free = -1
	require.ErrorIs(t, s.SetFreeTarget(0, colorconv.Vec3{}), ErrNoFree)
}

func TestConstraintIsVariant(t *testing.T) {
	a := Color(1, colorconv.Vec3{0.1, 0.2, 0.3})
	b := a
	b.Surface.Illuminant = 5
	require.False(t, state.Changed(a, b, 1e-6), "inactive payloads are ignored")
	b = a
	b.Kind = KindSurface
	require.True(t, state.Changed(a, b, 1e-6))
	b = a
	b.Color.Target[1] = 0.25
	require.True(t, state.Changed(a, b, 1e-6))
}

func TestVertexClone(t *testing.T) {
	v := test_scene().Vertices[0]
	c := v.Clone()
	c.Constraints[0].Color.System = 0
	require.Equal(t, 1, v.Constraints[0].Color.System)
}

func TestRemoveVertex(t *testing.T) {
	s := test_scene()
	s.AddVertex(Vertex{Name: "second", Free: -1})
	require.NoError(t, s.RemoveVertex(0))
	require.Len(t, s.Vertices, 1)
	require.Equal(t, "second", s.Vertices[0].Name)
	require.ErrorIs(t, s.RemoveVertex(4), ErrInvalidIndex)
}

const scene_yaml = `
illuminants: [d65, fl11, a]
reflectances:
  - {name: dark, constant: 0.2}
  - {name: light, constant: 0.8}
  - name: ramp
    wavelengths: [380, 780]
    values: [0.1, 0.9]
bases:
  - {name: dct, k: 8}
  - {name: fitted, k: 2, fit: [0, 1, 2]}
systems:
  - {cmfs: 0, illuminant: 0}
  - {cmfs: 0, illuminant: 1, output: srgb}
  - {cmfs: 0, illuminant: 2, output: xyz, adapt: true}
  - {cmfs: 0, illuminant: 0, transport: 1, bounces: 2}
uplifting: {basis: 0, system: 0}
vertices:
  - name: gray
    primary: "#808080"
    free: 0
    constraints:
      - {kind: color, system: 1, target: [0.2, 0.21, 0.22]}
      - {kind: surface, illuminant: 2, target: "#ff8000"}
      - {kind: indirect, illuminant: 0, transport: 0, bounces: 1, target: [0.1, 0.1, 0.1]}
      - {kind: measurement, reflectance: 2, system: 0}
`

func TestLoad(t *testing.T) {
	s, err := Load(strings.NewReader(scene_yaml))
	require.NoError(t, err)
	require.Len(t, s.Illuminants, 3)
	require.Len(t, s.Bases, 2)
	require.Equal(t, 8, s.Bases[0].Value.K())
	require.Equal(t, 2, s.Bases[1].Value.K())
	require.Equal(t, 0.8, s.Reflectances[1].Value[4])
	require.Equal(t, -1, s.Systems[0].Transport)
	require.Equal(t, 1, s.Systems[3].Transport)
	require.True(t, s.Systems[2].Adapt)
	v := s.Vertices[0]
	require.InDelta(t, 0.2158605, v.Primary[0], 1e-6)
	require.Equal(t, 0, v.Free)
	kinds := []Kind{}
	for _, c := range v.Constraints {
		kinds = append(kinds, c.Kind)
	}
	require.Equal(t, []Kind{KindColor, KindSurface, KindIndirect, KindMeasurement}, kinds)
	require.InDelta(t, 1, v.Constraints[1].Surface.Target[0], 1e-9)
	require.Equal(t, "#808080", Hex(v.Primary))
	_, err = s.Resolve(0)
	require.NoError(t, err)
}

func TestLoadErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"bad index":      "illuminants: [d65]\nsystems: [{cmfs: 0, illuminant: 3}]\n",
		"unknown field":  "illuminants: [d65]\nbogus: 1\n",
		"bad colour":     "illuminants: [d65]\nsystems: [{cmfs: 0, illuminant: 0}]\nvertices: [{primary: [1, 2]}]\n",
		"bad illuminant": "illuminants: [nope]\n",
		"bad kind":       "illuminants: [d65]\nsystems: [{cmfs: 0, illuminant: 0}]\nvertices: [{constraints: [{kind: weird}]}]\n",
	} {
		_, err := Load(strings.NewReader(doc))
		require.Error(t, err, name)
	}
	_, err := Load(strings.NewReader("illuminants: [d65]\nsystems: [{cmfs: 0, illuminant: 3}]\n"))
	require.ErrorIs(t, err, ErrInvalidIndex)
}
