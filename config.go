package uplift

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/kovidgoyal/uplift/hull"
	"github.com/kovidgoyal/uplift/mismatch"
	"github.com/kovidgoyal/uplift/solver"
	"github.com/pelletier/go-toml/v2"
)

var _ = fmt.Print

type SolverConfig struct {
	MaxIterations  int     `toml:"max_iterations"`
	PenaltyRounds  int     `toml:"penalty_rounds"`
	Regularization float64 `toml:"regularization"`
	PrimaryExact   bool    `toml:"primary_exact"`
	MinimizeError  bool    `toml:"minimize_error"`
}

type Config struct {
	// Samples is the number of boundary directions per vertex.
	Samples int    `toml:"samples"`
	Seed    uint64 `toml:"seed"`
	// Tolerance for change detection between frames.
	Tolerance        float64 `toml:"tolerance"`
	DegenerateRadius float64 `toml:"degenerate_radius"`
	// UseTemplate meshes boundaries with a topology shared by all vertices
	// that use the same directions, instead of a hull per vertex.
	UseTemplate bool `toml:"use_template"`
	// Delaunay additionally tessellates each vertex's boundary.
	Delaunay bool `toml:"delaunay"`
	// Workers for parallel stages, 0 means GOMAXPROCS.
	Workers int `toml:"workers"`
	// OCSSamples is the number of object colour solid boundary points in the
	// uplifting tessellation.
	OCSSamples int          `toml:"ocs_samples"`
	Solver     SolverConfig `toml:"solver"`
}

func DefaultConfig() Config {
	s := solver.DefaultOptions()
	return Config{
		Samples:          32,
		Seed:             0x5eed,
		Tolerance:        1e-6,
		DegenerateRadius: mismatch.DefaultOptions().DegenerateRadius,
		Delaunay:         true,
		OCSSamples:       64,
		Solver: SolverConfig{
			MaxIterations:  s.MaxIterations,
			PenaltyRounds:  s.PenaltyRounds,
			Regularization: s.Regularization,
			PrimaryExact:   s.PrimaryExact,
			MinimizeError:  s.MinimizeError,
		},
	}
}

// normalized clamps values into their supported ranges.
func (c Config) normalized() Config {
	c.Samples = max(16, min(c.Samples, 64))
	c.OCSSamples = max(16, min(c.OCSSamples, 256))
	if c.Tolerance < 0 {
		c.Tolerance = 0
	}
	if c.DegenerateRadius <= 0 {
		c.DegenerateRadius = mismatch.DefaultOptions().DegenerateRadius
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Solver.MaxIterations <= 0 {
		c.Solver.MaxIterations = solver.DefaultOptions().MaxIterations
	}
	if c.Solver.PenaltyRounds <= 0 {
		c.Solver.PenaltyRounds = solver.DefaultOptions().PenaltyRounds
	}
	c.Solver.Regularization = max(0, c.Solver.Regularization)
	return c
}

func (c Config) solver_options() solver.Options {
	ans := solver.DefaultOptions()
	ans.MaxIterations = c.Solver.MaxIterations
	ans.PenaltyRounds = c.Solver.PenaltyRounds
	ans.Regularization = c.Solver.Regularization
	ans.PrimaryExact = c.Solver.PrimaryExact
	ans.MinimizeError = c.Solver.MinimizeError
	return ans
}

func (c Config) mismatch_options() mismatch.Options {
	ans := mismatch.DefaultOptions()
	ans.DegenerateRadius = c.DegenerateRadius
	// vertices are already processed in parallel
	ans.Workers = 1
	return ans
}

func (c Config) hull_options() hull.Options { return hull.Options{} }

// ReadConfig parses TOML, keys that are absent keep their default values.
func ReadConfig(r io.Reader) (Config, error) {
	c := DefaultConfig()
	d := toml.NewDecoder(r)
	d.DisallowUnknownFields()
	if err := d.Decode(&c); err != nil {
		return c, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), err
	}
	c, err := ReadConfig(bytes.NewReader(data))
	if err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
