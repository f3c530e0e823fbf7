package uplift

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"cogentcore.org/core/base/errors"
	"cogentcore.org/core/base/slicesx"
	"github.com/kovidgoyal/go-parallel"
	"gonum.org/v1/gonum/mat"

	"github.com/kovidgoyal/uplift/basis"
	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/kovidgoyal/uplift/hull"
	"github.com/kovidgoyal/uplift/mismatch"
	"github.com/kovidgoyal/uplift/scene"
	"github.com/kovidgoyal/uplift/solver"
	"github.com/kovidgoyal/uplift/spectrum"
	"github.com/kovidgoyal/uplift/state"
)

var _ = fmt.Print

type Status int

const (
	// StatusEmpty means the vertex has never been processed successfully.
	StatusEmpty Status = iota
	// StatusSolved means all constraints are reproduced.
	StatusSolved
	// StatusApproximate means the constraints are jointly infeasible and the
	// least violating spectrum is used.
	StatusApproximate
	// StatusDegenerate means the mismatch volume collapsed to a point.
	StatusDegenerate
	// StatusFailed means a stage failed this frame and earlier results are
	// being shown.
	StatusFailed
)

var status_names = [...]string{"empty", "solved", "approximate", "degenerate", "failed"}

func (s Status) String() string {
	if int(s) < len(status_names) {
		return status_names[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Stage names a step of the per vertex pipeline, used in logs and reports.
type Stage string

const (
	StageSolve      Stage = "solve"
	StageBoundary   Stage = "boundary"
	StageHull       Stage = "hull"
	StageTessellate Stage = "tessellate"
	StageUplifting  Stage = "uplifting"
	StageUnexpected Stage = "panic"
)

// VertexCache holds everything derived from one vertex. It is replaced
// wholesale when the vertex is recomputed.
type VertexCache struct {
	Spectrum spectrum.Spectrum
	Solve    solver.Result
	// Boundary, Hull and Tessellation are nil for vertices without a free
	// constraint.
	Boundary     *mismatch.Boundary
	Hull         *hull.Mesh
	Tessellation *hull.Tetrahedra
	Status       Status
	// Err is the first error absorbed the last time the vertex was processed.
	Err   error
	Stage Stage
	// Generation is the frame number in which the vertex was last
	// recomputed.
	Generation uint64

	shape string
}

func (c *VertexCache) valid() bool { return c.Status != StatusEmpty }

// vertex_shape identifies the constraint systems of v, ignoring targets.
// Previous results are only ever reused for a vertex of the same shape.
func vertex_shape(v scene.Vertex) string {
	cs := slices.Clone(v.Constraints)
	for i := range cs {
		cs[i].Color.Target = colorconv.Vec3{}
		cs[i].Surface.Target = colorconv.Vec3{}
		cs[i].Indirect.Target = colorconv.Vec3{}
	}
	return fmt.Sprintf("%d:%v", v.Free, cs)
}

type globals struct {
	CMFS         []scene.Named[spectrum.CMFS]
	Illuminants  []scene.Named[spectrum.Illuminant]
	Reflectances []scene.Named[spectrum.Spectrum]
	Bases        []scene.Named[*basis.Basis]
	Systems      []scene.SystemDef
	Uplifting    scene.Uplifting
}

func clone_globals(g globals) globals {
	g.CMFS = slices.Clone(g.CMFS)
	g.Illuminants = slices.Clone(g.Illuminants)
	g.Reflectances = slices.Clone(g.Reflectances)
	g.Systems = slices.Clone(g.Systems)
	g.Bases = slices.Clone(g.Bases)
	for i, b := range g.Bases {
		if b.Value != nil {
			g.Bases[i].Value = &basis.Basis{Mean: b.Value.Mean, Functions: mat.DenseCopyOf(b.Value.Functions)}
		}
	}
	return g
}

type Engine struct {
	cfg    Config
	logger *slog.Logger

	globals  *state.Value[globals]
	vertices *state.Sequence[scene.Vertex]
	caches   []VertexCache
	frame    uint64

	directions map[int][][]float64
	templates  map[int]*hull.Template
	ocs        *mismatch.Boundary
	uplifting  *Uplifting
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithConfig(c Config) Option {
	return func(e *Engine) {
		e.cfg = c
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{cfg: DefaultConfig(), logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	e.cfg = e.cfg.normalized()
	e.globals = state.NewValue(e.cfg.Tolerance, clone_globals)
	e.vertices = state.NewSequence(e.cfg.Tolerance, scene.Vertex.Clone)
	e.directions = make(map[int][][]float64)
	e.templates = make(map[int]*hull.Template)
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// VertexReport summarises the state of one vertex after a frame.
type VertexReport struct {
	Name     string
	Status   Status
	Spectrum spectrum.Spectrum
	// Errors holds the roundtrip error of each satisfied constraint, primary
	// first, the free constraint last.
	Errors     []float64
	Points     int
	Volume     float64
	Recomputed bool
	Stage      Stage
	Err        error
}

type Report struct {
	Frame      uint64
	Vertices   []VertexReport
	Recomputed []int
	// Resized is set when vertices were added or removed since the last
	// frame.
	Resized bool
	// Uplifting is set when the uplifting tessellation was rebuilt.
	Uplifting bool
	Duration  time.Duration
}

// work is one stale vertex resolved to responses, ready for the parallel
// stages.
type work struct {
	index    int
	resolved scene.Resolved
	shape    string
	prev     VertexCache
	result   VertexCache
}

// new_work prepares vertex i for recomputation. When vertices were removed
// the cache in slot i may belong to a vertex that has since shifted away, so
// it is not offered as the previous result.
func (e *Engine) new_work(sc *scene.Scene, i int, shrunk bool) (*work, error) {
	res, err := sc.Resolve(i)
	if err != nil {
		return nil, err
	}
	w := &work{index: i, resolved: res, shape: vertex_shape(sc.Vertices[i])}
	if prev := e.caches[i]; !shrunk && prev.shape == w.shape {
		w.prev = prev
	}
	return w, nil
}

func (e *Engine) directions_for(dims int) [][]float64 {
	d, ok := e.directions[dims]
	if !ok {
		d = mismatch.Directions(e.cfg.Samples, dims, e.cfg.Seed)
		e.directions[dims] = d
	}
	return d
}

func (e *Engine) template_for(dims int) *hull.Template {
	if !e.cfg.UseTemplate || dims != 3 {
		return nil
	}
	t, ok := e.templates[dims]
	if !ok {
		var err error
		if t, err = hull.NewTemplate(e.directions_for(dims)); err != nil {
			e.logger.Warn("cannot build hull template", "dims", dims, "err", err)
		}
		e.templates[dims] = t
	}
	return t
}

// Frame brings all derived data up to date with sc. Invalid scenes are
// rejected before any work is done. Numerical failures of individual vertices
// are absorbed: they are logged, reported and the vertex keeps its previous
// results.
func (e *Engine) Frame(sc *scene.Scene) (r Report, err error) {
	start := time.Now()
	if err = sc.Validate(); err != nil {
		return r, err
	}
	e.frame++
	r.Frame = e.frame
	g := globals{
		CMFS: sc.CMFS, Illuminants: sc.Illuminants, Reflectances: sc.Reflectances,
		Bases: sc.Bases, Systems: sc.Systems, Uplifting: sc.Uplifting,
	}
	globals_changed := e.globals.Update(g)
	diff := e.vertices.Update(sc.Vertices)
	if globals_changed {
		e.vertices.MarkAll()
		e.ocs = nil
	}
	r.Resized = diff.Resized
	old_len := len(e.caches)
	shrunk := len(sc.Vertices) < old_len
	e.caches = slicesx.SetLength(e.caches, len(sc.Vertices))
	for i := old_len; i < len(e.caches); i++ {
		e.caches[i] = VertexCache{}
	}

	stale := e.vertices.StaleIndices()
	jobs := make([]*work, 0, len(stale))
	for _, i := range stale {
		w, rerr := e.new_work(sc, i, shrunk)
		if rerr != nil {
			// validation passed so this is a bug in the scene package
			return r, errors.Log(rerr)
		}
		jobs = append(jobs, w)
		if w.resolved.HasFree {
			dims := mismatch.Dims(len(w.resolved.Fixed))
			e.directions_for(dims)
			e.template_for(dims)
		}
	}
	if len(jobs) > 0 {
		if perr := parallel.Run_in_parallel_over_range(e.cfg.Workers, func(start, limit int) {
			for _, w := range jobs[start:limit] {
				e.process(w)
			}
		}, 0, len(jobs)); perr != nil {
			errors.Log(perr)
		}
	}
	for _, w := range jobs {
		e.caches[w.index] = w.result
		e.caches[w.index].shape = w.shape
		r.Recomputed = append(r.Recomputed, w.index)
	}

	if globals_changed || diff.Any || len(jobs) > 0 || e.uplifting == nil {
		if uerr := e.rebuild_uplifting(sc); uerr != nil {
			e.logger.Warn("uplifting tessellation kept from previous frame", "stage", StageUplifting, "err", uerr)
		} else {
			r.Uplifting = true
		}
	}

	e.vertices.AckAll()
	e.globals.Ack()

	r.Vertices = make([]VertexReport, len(e.caches))
	for i := range e.caches {
		r.Vertices[i] = e.vertex_report(sc, i)
		r.Vertices[i].Recomputed = slices.Contains(r.Recomputed, i)
	}
	r.Duration = time.Since(start)
	e.logger.Debug("frame", "number", r.Frame, "vertices", len(e.caches), "recomputed", len(r.Recomputed), "uplifting", r.Uplifting, "duration", r.Duration)
	return r, nil
}

func (e *Engine) vertex_report(sc *scene.Scene, i int) VertexReport {
	c := &e.caches[i]
	ans := VertexReport{
		Name: sc.Vertices[i].Name, Status: c.Status, Spectrum: c.Spectrum,
		Errors: slices.Clone(c.Solve.Errors), Stage: c.Stage, Err: c.Err,
	}
	if c.Boundary != nil {
		ans.Points = len(c.Boundary.Points)
	}
	if c.Hull != nil {
		ans.Volume = c.Hull.Volume
	}
	return ans
}

// absorb records a failed stage, the vertex continues with what it has.
func (e *Engine) absorb(w *work, stage Stage, err error) {
	e.logger.Warn("vertex stage failed", "vertex", w.index, "stage", stage, "err", err)
	if w.result.Err == nil {
		w.result.Err, w.result.Stage = err, stage
	}
}

// process runs solve, boundary and hull for one vertex, writing only
// w.result.
func (e *Engine) process(w *work) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("vertex %d: unexpected failure: %v", w.index, rec)
			errors.Log(err)
			w.result = w.prev
			w.result.Err, w.result.Stage = err, StageUnexpected
			if w.prev.valid() {
				w.result.Status = StatusFailed
			}
		}
	}()
	w.result = VertexCache{Generation: e.frame}
	systems, targets := w.resolved.Systems()
	res, err := solver.Solve(w.resolved.Basis, systems, targets, e.cfg.solver_options())
	if err != nil {
		e.absorb(w, StageSolve, err)
		w.result = w.prev
		w.result.Err, w.result.Stage = err, StageSolve
		if w.prev.valid() {
			w.result.Status = StatusFailed
		}
		return
	}
	w.result.Solve, w.result.Spectrum, w.result.Status = res, res.Spectrum, StatusSolved
	if !res.Feasible {
		w.result.Status = StatusApproximate
		e.logger.Debug("approximate solve", "vertex", w.index, "err", res.Err())
	}
	if !w.resolved.HasFree {
		return
	}

	// The fixed targets are replaced by what a strictly bounded spectrum of
	// the basis achieves, which keeps the boundary problem feasible for
	// approximate solves.
	inner := interior(w.resolved.Basis, res.Coeffs)
	achieved := make([]colorconv.Vec3, len(w.resolved.Fixed))
	for i, f := range w.resolved.Fixed {
		achieved[i] = f.Apply(inner)
	}
	dims := mismatch.Dims(len(w.resolved.Fixed))
	b, err := mismatch.Generate(mismatch.Input{
		Basis: w.resolved.Basis, Fixed: w.resolved.Fixed, Targets: achieved,
		Free: w.resolved.Free, Directions: e.directions[dims],
	}, e.cfg.mismatch_options())
	if err != nil {
		e.absorb(w, StageBoundary, err)
		w.result.Boundary, w.result.Hull, w.result.Tessellation = w.prev.Boundary, w.prev.Hull, w.prev.Tessellation
		if w.result.Hull == nil {
			w.result.Hull = hull.Point(mismatch.Vector(w.resolved.Free.Apply(res.Spectrum)))
		}
		w.result.Status = StatusFailed
		return
	}
	if b.Failed > 0 {
		e.logger.Debug("boundary directions failed", "vertex", w.index, "failed", b.Failed, "of", len(b.Points))
	}
	w.result.Boundary = b
	if b.Degenerate {
		w.result.Hull = hull.Point(b.Center)
		if w.result.Status == StatusSolved {
			w.result.Status = StatusDegenerate
		}
		return
	}

	var m *hull.Mesh
	if tpl := e.templates[dims]; tpl != nil {
		m, err = hull.BuildFromTemplate(b.Points, tpl)
	}
	if m == nil {
		m, err = hull.Build(b.Points, e.cfg.hull_options())
	}
	if err != nil {
		e.absorb(w, StageHull, err)
		if w.prev.Hull != nil {
			w.result.Boundary, w.result.Hull, w.result.Tessellation = w.prev.Boundary, w.prev.Hull, w.prev.Tessellation
		} else {
			w.result.Hull = hull.Point(b.Center)
		}
		w.result.Status = StatusFailed
		return
	}
	w.result.Hull = m
	if !e.cfg.Delaunay {
		return
	}
	t, err := hull.Tessellate(b.Points, e.cfg.hull_options())
	if err != nil {
		// the previous tessellation belongs to a different boundary
		e.absorb(w, StageTessellate, err)
		return
	}
	w.result.Tessellation = t
}

// interior scales the basis spectrum of coeffs towards the basis mean until
// it lies within [0,1].
func interior(b *basis.Basis, coeffs []float64) spectrum.Spectrum {
	d := b.Spectrum(coeffs).Sub(b.Mean)
	t := 1.0
	for i, x := range d {
		m := b.Mean[i]
		switch {
		case m+x > 1:
			t = min(t, (1-m)/x)
		case m+x < 0:
			t = min(t, -m/x)
		}
	}
	t = max(0, t*(1-1e-9))
	return b.Mean.Add(d.Scale(t))
}

func (e *Engine) cache(i int) *VertexCache {
	if i < 0 || i >= len(e.caches) {
		return nil
	}
	return &e.caches[i]
}

// Spectrum returns the realized spectrum of vertex i.
func (e *Engine) Spectrum(i int) (spectrum.Spectrum, bool) {
	c := e.cache(i)
	if c == nil || !c.valid() {
		return spectrum.Spectrum{}, false
	}
	return c.Spectrum, true
}

// Vertex returns the cache of vertex i. It must not be modified.
func (e *Engine) Vertex(i int) *VertexCache { return e.cache(i) }

// Boundary returns the mismatch boundary samples of vertex i, nil for
// vertices without a free constraint.
func (e *Engine) Boundary(i int) *mismatch.Boundary {
	if c := e.cache(i); c != nil {
		return c.Boundary
	}
	return nil
}

func (e *Engine) Hull(i int) *hull.Mesh {
	if c := e.cache(i); c != nil {
		return c.Hull
	}
	return nil
}

func (e *Engine) Tessellation(i int) *hull.Tetrahedra {
	if c := e.cache(i); c != nil {
		return c.Tessellation
	}
	return nil
}

// FindEnclosing locates p, a colour under the free system of vertex i,
// inside the tessellation of its mismatch volume. ok is false when the
// vertex has no tessellation or p lies outside it, in which case weights
// refer to the nearest element.
func (e *Engine) FindEnclosing(i int, p colorconv.Vec3) (weights [4]float64, elem [4]int, ok bool) {
	t := e.Tessellation(i)
	if t == nil {
		return weights, elem, false
	}
	return t.FindEnclosing(mismatch.Vector(p))
}

// Metamer returns the spectrum of vertex i that produces p under its free
// system, interpolated from the extremal boundary spectra. ok is false if p
// lies outside the mismatch volume, the spectrum is then that of the closest
// element.
func (e *Engine) Metamer(i int, p colorconv.Vec3) (ans spectrum.Spectrum, ok bool, err error) {
	c := e.cache(i)
	if c == nil {
		return ans, false, fmt.Errorf("%w: vertex %d", scene.ErrInvalidIndex, i)
	}
	if c.Boundary == nil || c.Tessellation == nil {
		return ans, false, fmt.Errorf("%w: vertex %d", scene.ErrNoFree, i)
	}
	w, elem, ok := c.Tessellation.FindEnclosing(mismatch.Vector(p))
	for j, v := range elem {
		var s spectrum.Spectrum
		if v < len(c.Boundary.Spectra) {
			s = c.Boundary.Spectra[v]
		} else {
			// the center of a star tessellation
			s = mean_spectrum(c.Boundary.Spectra)
		}
		ans = ans.Add(s.Scale(w[j]))
	}
	return ans.Clamp(), ok, nil
}

func mean_spectrum(s []spectrum.Spectrum) (ans spectrum.Spectrum) {
	for _, x := range s {
		ans = ans.Add(x)
	}
	if len(s) > 0 {
		ans = ans.Scale(1 / float64(len(s)))
	}
	return
}

// Uplift returns the spectrum for a colour under the uplifting system.
func (e *Engine) Uplift(rgb colorconv.Vec3) (spectrum.Spectrum, error) {
	if e.uplifting == nil {
		return spectrum.Spectrum{}, ErrNotReady
	}
	return e.uplifting.Uplift(rgb)
}

// Uplifting returns the tessellation used by Uplift, nil before the first
// frame.
func (e *Engine) Uplifting() *Uplifting { return e.uplifting }
