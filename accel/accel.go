// Package accel implements the three interchangeable fixed-point
// convergence accelerators of spec §4.7.6: direct substitution with
// relaxation, Wegstein, and Steffensen (Aitken's Δ²). Each accelerator
// is a capability — Predict(x_{k-2}, x_{k-1}, x_k, g(x_k)) -> x_{k+1} —
// rather than a type hierarchy, per Design Notes §9's "tagged variants
// or vtable-style function pointers, avoid deep inheritance".
package accel

import "gonum.org/v1/gonum/floats"

// Method selects a convergence accelerator (spec §6 "convergenceMethod").
type Method int

const (
	DirectSubstitution Method = iota
	Wegstein
	Steffensen
)

// State carries the iteration history an accelerator needs across
// calls for one tear-stream component vector: the two prior raw map
// outputs plus the current iteration counter, reset at the start of
// each partition solve.
type State struct {
	Method Method

	// Relaxation is rho for DIRECT_SUBSTITUTION, default 1 (pure
	// substitution). Must lie in (0, 1].
	Relaxation float64

	// WegsteinMin is q_min for WEGSTEIN, default -5. The spec pins the
	// clamp interval to [WegsteinMin, 1) open at 1 (spec §9 Open
	// Question: reject q=1 rather than silently divide by zero).
	WegsteinMin float64

	absTol float64

	k int // iteration counter, incremented by Accelerate

	xPrev2, xPrev1, xPrev []float64 // x_{k-2}, x_{k-1}, x_k
	gPrev1, gPrev         []float64 // g(x_{k-2}), g(x_{k-1})
}

// NewState builds accelerator state for one tear-stream vector; the
// vector length is taken from the slices passed to Accelerate. absTol
// is the spec's absTol, used as the Wegstein/Steffensen
// near-zero-denominator guard.
func NewState(method Method, relaxation, wegsteinMin, absTol float64) *State {
	if relaxation <= 0 || relaxation > 1 {
		relaxation = 1
	}
	return &State{
		Method:      method,
		Relaxation:  relaxation,
		WegsteinMin: wegsteinMin,
		absTol:      absTol,
	}
}

// Accelerate computes x_{k+1} from the current raw map output g(x_k)
// and the current iterate x_k, updating internal history, then
// advances the iteration counter. x and g must be the same length and
// are not mutated; the returned slice is newly allocated.
func (s *State) Accelerate(x, g []float64) []float64 {
	var next []float64
	switch s.Method {
	case Wegstein:
		next = s.wegstein(x, g)
	case Steffensen:
		next = s.steffensen(x, g)
	default:
		next = s.directSubstitution(x, g)
	}

	s.xPrev2 = s.xPrev1
	s.xPrev1 = append([]float64(nil), x...)
	s.gPrev1 = s.gPrev
	s.gPrev = append([]float64(nil), g...)
	s.xPrev = append([]float64(nil), next...)
	s.k++

	return next
}

// directSubstitution implements spec §4.7.6 DIRECT_SUBSTITUTION:
// x_{k+1} = (1-rho)*x_k + rho*g(x_k).
func (s *State) directSubstitution(x, g []float64) []float64 {
	out := make([]float64, len(x))
	rho := s.Relaxation
	for i := range x {
		out[i] = (1-rho)*x[i] + rho*g[i]
	}
	return out
}

// wegstein implements spec §4.7.6 WEGSTEIN, falling back to direct
// substitution for the first two iterations (k<2, no x_{k-1}/g(x_{k-1})
// history yet) and componentwise when the denominator is too small.
func (s *State) wegstein(x, g []float64) []float64 {
	if s.k < 2 || s.xPrev1 == nil || s.gPrev == nil {
		return s.directSubstitution(x, g)
	}
	out := make([]float64, len(x))
	qMin := s.WegsteinMin
	for i := range x {
		denom := x[i] - s.xPrev1[i]
		if floats.EqualWithinAbs(denom, 0, s.absTol) {
			out[i] = (1-s.Relaxation)*x[i] + s.Relaxation*g[i]
			continue
		}
		slope := (g[i] - s.gPrev[i]) / denom
		if slope == 1 {
			// s/(s-1) undefined; fall back to substitution for this
			// component only.
			out[i] = g[i]
			continue
		}
		q := slope / (slope - 1)
		if q < qMin {
			q = qMin
		}
		if q >= 1 {
			q = 1 - 1e-12 // spec §9: reject q=1, clamp just below it
		}
		out[i] = q*x[i] + (1-q)*g[i]
	}
	return out
}

// steffensen implements spec §4.7.6 STEFFENSEN: Aitken's Δ² applied
// every third evaluation (k mod 3 == 2), pure substitution otherwise.
func (s *State) steffensen(x, g []float64) []float64 {
	if s.k%3 != 2 || s.xPrev2 == nil {
		return s.directSubstitution(x, g)
	}
	out := make([]float64, len(x))
	for i := range x {
		x0, x1, x2 := s.xPrev2[i], s.xPrev1[i], x[i]
		denom := x2 - 2*x1 + x0
		if floats.EqualWithinAbs(denom, 0, s.absTol) {
			out[i] = (1-s.Relaxation)*x[i] + s.Relaxation*g[i]
			continue
		}
		d := x1 - x0
		out[i] = x0 - (d*d)/denom
	}
	return out
}

// ClampPhysical clamps a blended result to physically valid ranges
// (spec §4.7.6: "mass >= 0, probability bins in [0,1]"). massIndices
// names components that must stay non-negative; fractionIndices names
// components that must additionally stay within [0,1].
func ClampPhysical(x []float64, massIndices, fractionIndices []int) {
	for _, i := range massIndices {
		if x[i] < 0 {
			x[i] = 0
		}
	}
	for _, i := range fractionIndices {
		if x[i] < 0 {
			x[i] = 0
		}
		if x[i] > 1 {
			x[i] = 1
		}
	}
}

// Renormalise rescales x so floats.Sum(x) == 1, leaving x unchanged if
// the sum is already within absTol of 1 or is non-positive (caller's
// responsibility to treat the latter as an error upstream).
func Renormalise(x []float64, absTol float64) {
	total := floats.Sum(x)
	if total <= 0 {
		return
	}
	if floats.EqualWithinAbs(total, 1, absTol) {
		return
	}
	floats.Scale(1/total, x)
}
