// Package state detects which parts of a scene changed between frames so that
// only stale entities are recomputed.
//
// Comparison is approximate: floating point values are equal within a
// tolerance, colours and spectra within a tolerance on the norm of their
// difference. Trackers never modify the values they observe; they keep their
// own snapshot of the previous frame.
package state

import (
	"fmt"
	"slices"

	"cogentcore.org/core/base/slicesx"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/kovidgoyal/uplift/spectrum"
	"gonum.org/v1/gonum/mat"
)

var _ = fmt.Print

// Variant is implemented by tagged unions. Two variants are equal when their
// tags match and their active payloads compare equal, inactive payloads are
// ignored.
type Variant interface {
	VariantTag() int
	VariantValue() any
}

type variant_view struct {
	Tag   int
	Value any
}

// Options returns the comparison options used by trackers built with
// tolerance tol.
func Options(tol float64) cmp.Options {
	return cmp.Options{
		cmpopts.EquateApprox(tol, tol),
		cmpopts.EquateNaNs(),
		cmpopts.EquateEmpty(),
		cmp.Comparer(func(a, b colorconv.Vec3) bool { return a.ApproxEqual(b, tol) }),
		cmp.Comparer(func(a, b spectrum.Spectrum) bool { return a.ApproxEqual(b, tol) }),
		cmp.Comparer(func(a, b *mat.Dense) bool {
			if a == nil || b == nil {
				return a == b
			}
			ar, ac := a.Dims()
			br, bc := b.Dims()
			return ar == br && ac == bc && mat.EqualApprox(a, b, tol)
		}),
		cmp.Transformer("Variant", func(v Variant) variant_view {
			return variant_view{Tag: v.VariantTag(), Value: v.VariantValue()}
		}),
	}
}

// Changed reports whether new differs from old beyond tolerance tol.
func Changed[T any](old, new T, tol float64, opts ...cmp.Option) bool {
	return !cmp.Equal(old, new, Options(tol), cmp.Options(opts))
}

// Describe returns a human readable description of the differences, for
// logging.
func Describe[T any](old, new T, tol float64, opts ...cmp.Option) string {
	return cmp.Diff(old, new, Options(tol), cmp.Options(opts))
}

// Value tracks a single value. It is stale on first observation and after
// every observed change, until acknowledged.
type Value[T any] struct {
	tol   float64
	opts  cmp.Options
	clone func(T) T
	prev  T
	seen  bool
	stale bool
}

// NewValue creates a tracker. clone, if not nil, is used to snapshot observed
// values that share memory with the caller.
func NewValue[T any](tol float64, clone func(T) T, opts ...cmp.Option) *Value[T] {
	return &Value[T]{tol: tol, clone: clone, opts: opts}
}

// Update observes v and reports whether it differs from the previously
// observed value.
func (t *Value[T]) Update(v T) (changed bool) {
	changed = !t.seen || Changed(t.prev, v, t.tol, t.opts...)
	if changed {
		t.prev = snapshot(v, t.clone)
		t.seen = true
		t.stale = true
	}
	return
}

func (t *Value[T]) Stale() bool { return t.stale }
func (t *Value[T]) Ack()        { t.stale = false }

func snapshot[T any](v T, clone func(T) T) T {
	if clone != nil {
		return clone(v)
	}
	return v
}

// Sequence tracks an indexed collection of values. Stale flags are sticky:
// once set by Update they remain set until acknowledged, regardless of later
// updates.
type Sequence[T any] struct {
	tol     float64
	opts    cmp.Options
	clone   func(T) T
	prev    []T
	stale   []bool
	resized bool
}

type Diff struct {
	// Resized is set when the number of values changed.
	Resized bool
	// Stale lists the indices whose values changed or are new in this update.
	Stale []int
	// Any is set if anything at all changed.
	Any bool
}

// NewSequence creates a tracker, see NewValue for the meaning of clone.
func NewSequence[T any](tol float64, clone func(T) T, opts ...cmp.Option) *Sequence[T] {
	return &Sequence[T]{tol: tol, clone: clone, opts: opts}
}

// Update observes values. Indices beyond the previously observed length are
// stale, indices removed by shrinking are forgotten.
func (s *Sequence[T]) Update(values []T) (d Diff) {
	d.Resized = len(values) != len(s.prev)
	s.stale = slicesx.SetLength(s.stale, len(values))
	for i, v := range values {
		if i >= len(s.prev) || Changed(s.prev[i], v, s.tol, s.opts...) {
			d.Stale = append(d.Stale, i)
			s.stale[i] = true
		}
	}
	if d.Resized || len(d.Stale) > 0 {
		prev := make([]T, len(values))
		for i, v := range values {
			prev[i] = snapshot(v, s.clone)
		}
		s.prev = prev
	}
	s.resized = s.resized || d.Resized
	d.Any = d.Resized || len(d.Stale) > 0
	return
}

func (s *Sequence[T]) Len() int { return len(s.prev) }

func (s *Sequence[T]) Stale(i int) bool { return i >= 0 && i < len(s.stale) && s.stale[i] }

// StaleIndices returns all indices whose flags are set.
func (s *Sequence[T]) StaleIndices() (ans []int) {
	for i, x := range s.stale {
		if x {
			ans = append(ans, i)
		}
	}
	return
}

func (s *Sequence[T]) AnyStale() bool { return s.resized || slices.Contains(s.stale, true) }

// Resized reports whether the length changed since the last AckAll.
func (s *Sequence[T]) Resized() bool { return s.resized }

func (s *Sequence[T]) Ack(i int) {
	if i >= 0 && i < len(s.stale) {
		s.stale[i] = false
	}
}

// MarkAll flags every index as stale, used when something all values depend
// on has changed.
func (s *Sequence[T]) MarkAll() {
	for i := range s.stale {
		s.stale[i] = true
	}
}

func (s *Sequence[T]) AckAll() {
	clear(s.stale)
	s.resized = false
}
