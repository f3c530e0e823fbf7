package scene

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/kovidgoyal/uplift/basis"
	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/kovidgoyal/uplift/csys"
	"github.com/kovidgoyal/uplift/spectrum"
	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

// HexColor is a colour in a scene file: either a hex string, which is taken to
// be sRGB encoded and is linearised, or a list of three linear values.
type HexColor colorconv.Vec3

func (c *HexColor) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		h, err := colorful.Hex(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		r, g, b := h.LinearRgb()
		*c = HexColor{r, g, b}
		return nil
	case yaml.SequenceNode:
		var v []float64
		if err := node.Decode(&v); err != nil {
			return err
		}
		if len(v) != 3 {
			return fmt.Errorf("line %d: a colour needs 3 components, not %d", node.Line, len(v))
		}
		*c = HexColor{v[0], v[1], v[2]}
		return nil
	}
	return fmt.Errorf("line %d: a colour must be a hex string or a list of three numbers", node.Line)
}

// Hex formats a linear colour as an sRGB hex string, clamping out of gamut
// values.
func Hex(c colorconv.Vec3) string {
	return colorful.LinearRgb(c[0], c[1], c[2]).Clamped().Hex()
}

type file_reflectance struct {
	Name        string    `yaml:"name"`
	Wavelengths []float64 `yaml:"wavelengths"`
	Values      []float64 `yaml:"values"`
	Constant    *float64  `yaml:"constant"`
}

type file_basis struct {
	Name string `yaml:"name"`
	K    int    `yaml:"k"`
	// Fit lists indices into reflectances to fit the basis to by PCA,
	// otherwise the default basis is used.
	Fit []int `yaml:"fit"`
}

type file_system struct {
	CMFS       int    `yaml:"cmfs"`
	Illuminant int    `yaml:"illuminant"`
	Transport  *int   `yaml:"transport"`
	Bounces    int    `yaml:"bounces"`
	Output     string `yaml:"output"`
	Adapt      bool   `yaml:"adapt"`
}

type file_constraint struct {
	Kind        string   `yaml:"kind"`
	System      int      `yaml:"system"`
	Illuminant  int      `yaml:"illuminant"`
	Transport   int      `yaml:"transport"`
	Bounces     int      `yaml:"bounces"`
	Reflectance int      `yaml:"reflectance"`
	Target      HexColor `yaml:"target"`
}

type file_vertex struct {
	Name        string            `yaml:"name"`
	Primary     HexColor          `yaml:"primary"`
	Constraints []file_constraint `yaml:"constraints"`
	Free        *int              `yaml:"free"`
}

type file_scene struct {
	CMFS         []string           `yaml:"cmfs"`
	Illuminants  []string           `yaml:"illuminants"`
	Reflectances []file_reflectance `yaml:"reflectances"`
	Bases        []file_basis       `yaml:"bases"`
	Systems      []file_system      `yaml:"systems"`
	Uplifting    Uplifting          `yaml:"uplifting"`
	Vertices     []file_vertex      `yaml:"vertices"`
}

func parse_output(s string) (csys.Output, error) {
	switch s {
	case "", "srgb":
		return csys.LinearSRGB, nil
	case "xyz":
		return csys.XYZ, nil
	}
	return 0, fmt.Errorf("unknown output space: %q", s)
}

func (f file_scene) build() (*Scene, error) {
	s := &Scene{Uplifting: f.Uplifting}
	if len(f.CMFS) == 0 {
		f.CMFS = []string{"cie1931"}
	}
	for _, name := range f.CMFS {
		c, err := spectrum.CMFSByName(name)
		if err != nil {
			return nil, err
		}
		s.CMFS = append(s.CMFS, Named[spectrum.CMFS]{name, c})
	}
	for _, name := range f.Illuminants {
		il, err := spectrum.IlluminantByName(name)
		if err != nil {
			return nil, err
		}
		s.Illuminants = append(s.Illuminants, Named[spectrum.Illuminant]{name, il})
	}
	for i, r := range f.Reflectances {
		var sp spectrum.Spectrum
		var err error
		switch {
		case r.Constant != nil:
			sp = spectrum.Constant(*r.Constant)
		case len(r.Wavelengths) > 0:
			sp, err = spectrum.Resample(r.Wavelengths, r.Values)
		default:
			sp, err = spectrum.FromSlice(r.Values)
		}
		if err != nil {
			return nil, fmt.Errorf("reflectance %d (%s): %w", i, r.Name, err)
		}
		s.Reflectances = append(s.Reflectances, Named[spectrum.Spectrum]{r.Name, sp})
	}
	if len(f.Bases) == 0 {
		f.Bases = []file_basis{{Name: "dct"}}
	}
	for i, fb := range f.Bases {
		k := fb.K
		if k == 0 {
			k = basis.DefaultK
		}
		var b *basis.Basis
		var err error
		if len(fb.Fit) > 0 {
			samples := make([]spectrum.Spectrum, len(fb.Fit))
			for j, idx := range fb.Fit {
				if !in_range(s.Reflectances, idx) {
					return nil, fmt.Errorf("%w: basis %d: reflectance %d", ErrInvalidIndex, i, idx)
				}
				samples[j] = s.Reflectances[idx].Value
			}
			b, err = basis.Fit(samples, k)
		} else {
			b, err = basis.Default(k)
		}
		if err != nil {
			return nil, fmt.Errorf("basis %d (%s): %w", i, fb.Name, err)
		}
		s.Bases = append(s.Bases, Named[*basis.Basis]{fb.Name, b})
	}
	for i, fs := range f.Systems {
		out, err := parse_output(fs.Output)
		if err != nil {
			return nil, fmt.Errorf("system %d: %w", i, err)
		}
		d := SystemDef{CMFS: fs.CMFS, Illuminant: fs.Illuminant, Transport: -1, Bounces: fs.Bounces, Output: out, Adapt: fs.Adapt}
		if fs.Transport != nil {
			d.Transport = *fs.Transport
		}
		s.Systems = append(s.Systems, d)
	}
	for i, fv := range f.Vertices {
		v := Vertex{Name: fv.Name, Primary: colorconv.Vec3(fv.Primary), Free: -1}
		if fv.Free != nil {
			v.Free = *fv.Free
		}
		for j, fc := range fv.Constraints {
			kind, err := KindFromString(fc.Kind)
			if err != nil {
				return nil, fmt.Errorf("vertex %d: constraint %d: %w", i, j, err)
			}
			t := colorconv.Vec3(fc.Target)
			var c Constraint
			switch kind {
			case KindColor:
				c = Color(fc.System, t)
			case KindSurface:
				c = Surface(fc.Illuminant, t)
			case KindIndirect:
				c = Indirect(fc.Illuminant, fc.Transport, fc.Bounces, t)
			case KindMeasurement:
				c = Measurement(fc.Reflectance, fc.System)
			}
			v.Constraints = append(v.Constraints, c)
		}
		s.Vertices = append(s.Vertices, v)
	}
	return s, nil
}

// Load reads a YAML scene description and validates it.
func Load(r io.Reader) (*Scene, error) {
	var f file_scene
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse scene: %w", err)
	}
	s, err := f.build()
	if err != nil {
		return nil, err
	}
	if err = s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func LoadFile(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
