package uplift

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	c, err := ReadConfig(strings.NewReader(`
samples = 100
seed = 7
use_template = true

[solver]
max_iterations = 50
minimize_error = true
`))
	require.NoError(t, err)
	require.Equal(t, 100, c.Samples)
	require.Equal(t, uint64(7), c.Seed)
	require.True(t, c.UseTemplate)
	require.True(t, c.Delaunay, "unset keys keep their defaults")
	require.Equal(t, 50, c.Solver.MaxIterations)
	require.True(t, c.Solver.MinimizeError)
	require.True(t, c.Solver.PrimaryExact)

	e := NewEngine(WithConfig(c), quiet())
	require.Equal(t, 64, e.Config().Samples)
	require.Positive(t, e.Config().Workers)
	so := e.Config().solver_options()
	require.Equal(t, 50, so.MaxIterations)
	require.True(t, so.MinimizeError)
}

func TestReadConfigErrors(t *testing.T) {
	for name, src := range map[string]string{
		"unknown key":   "sample = 3\n",
		"unknown table": "[renderer]\nspp = 4\n",
		"bad type":      "samples = \"many\"\n",
		"syntax":        "samples = \n",
	} {
		_, err := ReadConfig(strings.NewReader(src))
		require.Error(t, err, name)
	}
}

func TestConfigRoundtrip(t *testing.T) {
	c := DefaultConfig()
	c.Samples, c.Seed, c.Solver.Regularization = 24, 99, 1e-5
	var buf bytes.Buffer
	require.NoError(t, c.Write(&buf))
	path := filepath.Join(t.TempDir(), "uplift.toml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	got, err := LoadConfig(path)
	require.NoError(t, err)
	if diff := cmp.Diff(c, got); diff != "" {
		t.Fatalf("config changed on roundtrip (-want +got):\n%s", diff)
	}
	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestNormalizedConfig(t *testing.T) {
	c := DefaultConfig()
	c.Samples, c.OCSSamples, c.Tolerance, c.DegenerateRadius = 3, 1000, -1, 0
	c.Solver.MaxIterations, c.Solver.Regularization = -4, -1
	n := c.normalized()
	require.Equal(t, 16, n.Samples)
	require.Equal(t, 256, n.OCSSamples)
	require.Zero(t, n.Tolerance)
	require.Equal(t, DefaultConfig().DegenerateRadius, n.DegenerateRadius)
	require.Equal(t, DefaultConfig().Solver.MaxIterations, n.Solver.MaxIterations)
	require.Zero(t, n.Solver.Regularization)
}

func TestVersion(t *testing.T) {
	require.Equal(t, "0.3.0", Version.String())
	require.True(t, Version.After(VersionInfo{0, 2, 9}))
	require.True(t, Version.Before(VersionInfo{1, 0, 0}))
	require.False(t, Version.Before(Version))
}
