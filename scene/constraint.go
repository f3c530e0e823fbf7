package scene

import (
	"errors"
	"fmt"

	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/kovidgoyal/uplift/csys"
)

type Kind int

const (
	// KindColor: a target colour under one of the scene's colour systems.
	KindColor Kind = iota
	// KindSurface: a target colour under another illuminant, seen by the
	// uplifting observer.
	KindSurface
	// KindIndirect: like KindSurface, for light that bounced off a surface of
	// the given reflectance Bounces times before reaching the vertex.
	KindIndirect
	// KindMeasurement: the colours of a measured reflectance under a colour
	// system, the target follows from the measurement.
	KindMeasurement
)

var kind_names = [...]string{"color", "surface", "indirect", "measurement"}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kind_names) {
		return kind_names[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func KindFromString(s string) (Kind, error) {
	for i, n := range kind_names {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown constraint kind: %q", s)
}

type ColorConstraint struct {
	System int
	Target colorconv.Vec3
}

type SurfaceConstraint struct {
	Illuminant int
	Target     colorconv.Vec3
}

type IndirectConstraint struct {
	Illuminant int
	// Transport indexes Scene.Reflectances.
	Transport int
	Bounces   int
	Target    colorconv.Vec3
}

type MeasurementConstraint struct {
	Reflectance int
	System      int
}

// Constraint is a tagged union, only the payload selected by Kind is used.
type Constraint struct {
	Kind        Kind
	Color       ColorConstraint
	Surface     SurfaceConstraint
	Indirect    IndirectConstraint
	Measurement MeasurementConstraint
}

func Color(system int, target colorconv.Vec3) Constraint {
	return Constraint{Kind: KindColor, Color: ColorConstraint{System: system, Target: target}}
}

func Surface(illuminant int, target colorconv.Vec3) Constraint {
	return Constraint{Kind: KindSurface, Surface: SurfaceConstraint{Illuminant: illuminant, Target: target}}
}

func Indirect(illuminant, transport, bounces int, target colorconv.Vec3) Constraint {
	return Constraint{Kind: KindIndirect, Indirect: IndirectConstraint{
		Illuminant: illuminant, Transport: transport, Bounces: bounces, Target: target}}
}

func Measurement(reflectance, system int) Constraint {
	return Constraint{Kind: KindMeasurement, Measurement: MeasurementConstraint{Reflectance: reflectance, System: system}}
}

func (c Constraint) VariantTag() int { return int(c.Kind) }

func (c Constraint) VariantValue() any {
	switch c.Kind {
	case KindColor:
		return c.Color
	case KindSurface:
		return c.Surface
	case KindIndirect:
		return c.Indirect
	case KindMeasurement:
		return c.Measurement
	}
	return nil
}

var ErrNoTarget = errors.New("scene: constraint has no adjustable target")

// SetTarget changes the target colour of kinds that have one.
func (c *Constraint) SetTarget(t colorconv.Vec3) error {
	switch c.Kind {
	case KindColor:
		c.Color.Target = t
	case KindSurface:
		c.Surface.Target = t
	case KindIndirect:
		c.Indirect.Target = t
	default:
		return fmt.Errorf("%w: %s", ErrNoTarget, c.Kind)
	}
	return nil
}

func (c Constraint) validate(s *Scene) error {
	switch c.Kind {
	case KindColor:
		if !in_range(s.Systems, c.Color.System) {
			return fmt.Errorf("system %d", c.Color.System)
		}
	case KindSurface:
		if !in_range(s.Illuminants, c.Surface.Illuminant) {
			return fmt.Errorf("illuminant %d", c.Surface.Illuminant)
		}
	case KindIndirect:
		if !in_range(s.Illuminants, c.Indirect.Illuminant) {
			return fmt.Errorf("illuminant %d", c.Indirect.Illuminant)
		}
		if !in_range(s.Reflectances, c.Indirect.Transport) {
			return fmt.Errorf("transport %d", c.Indirect.Transport)
		}
		if c.Indirect.Bounces < 0 {
			return fmt.Errorf("bounces %d", c.Indirect.Bounces)
		}
	case KindMeasurement:
		if !in_range(s.Reflectances, c.Measurement.Reflectance) {
			return fmt.Errorf("reflectance %d", c.Measurement.Reflectance)
		}
		if !in_range(s.Systems, c.Measurement.System) {
			return fmt.Errorf("system %d", c.Measurement.System)
		}
	default:
		return fmt.Errorf("unknown kind %s", c.Kind)
	}
	return nil
}

func finalize_color(s *Scene, c ColorConstraint) (csys.Response, colorconv.Vec3) {
	return s.System(c.System).Finalize(), c.Target
}

// Surface and indirect constraints borrow the observer and output space of
// the uplifting system.
func finalize_surface(s *Scene, c SurfaceConstraint) (csys.Response, colorconv.Vec3) {
	sys := s.System(s.Uplifting.System)
	sys.Illuminant = s.Illuminants[c.Illuminant].Value
	sys.Bounces = 0
	return sys.Finalize(), c.Target
}

func finalize_indirect(s *Scene, c IndirectConstraint) (csys.Response, colorconv.Vec3) {
	sys := s.System(s.Uplifting.System)
	sys.Illuminant = s.Illuminants[c.Illuminant].Value
	sys.Transport, sys.Bounces = s.Reflectances[c.Transport].Value, c.Bounces
	return sys.Finalize(), c.Target
}

func finalize_measurement(s *Scene, c MeasurementConstraint) (csys.Response, colorconv.Vec3) {
	resp := s.System(c.System).Finalize()
	return resp, resp.Apply(s.Reflectances[c.Reflectance].Value)
}

// Finalize reduces the constraint to a response and the colour it must
// produce. The constraint must have been validated against s.
func (c Constraint) Finalize(s *Scene) (csys.Response, colorconv.Vec3, error) {
	if err := c.validate(s); err != nil {
		return csys.Response{}, colorconv.Vec3{}, fmt.Errorf("%w: %s", ErrInvalidIndex, err)
	}
	var r csys.Response
	var t colorconv.Vec3
	switch c.Kind {
	case KindColor:
		r, t = finalize_color(s, c.Color)
	case KindSurface:
		r, t = finalize_surface(s, c.Surface)
	case KindIndirect:
		r, t = finalize_indirect(s, c.Indirect)
	case KindMeasurement:
		r, t = finalize_measurement(s, c.Measurement)
	}
	return r, t, nil
}
