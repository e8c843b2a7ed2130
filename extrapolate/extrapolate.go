// Package extrapolate predicts tear-stream initial guesses for the next
// time window from the last few converged windows (spec §4.7.5).
//
// LINEAR and SPLINE are backed by gonum.org/v1/gonum/interp, the same
// interpolation library the matrix package's time axis conceptually
// relies on (matrix.DistributedMatrix does its own linear blend via
// blas64 for speed on the hot path; this package reaches for gonum's
// fitted predictors instead because extrapolation runs once per window,
// not once per flat coordinate, so the allocation cost of fitting a
// gonum.Predictor is immaterial). gonum/interp has no natural-cubic-
// spline predictor; AkimaSpline is the closest fit in the library (it
// reduces to a cubic through three points) and stands in for the SPLINE
// method, noted in DESIGN.md.
package extrapolate

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// Method selects the tear-stream extrapolation predictor (spec §6
// "extrapolationMethod").
type Method int

const (
	Linear Method = iota
	Spline
	Nearest
)

// Anchor is one converged window's value for a single scalar component,
// sampled at the window's end time.
type Anchor struct {
	T float64
	V float64
}

// Predict extrapolates a componentwise scalar to t, given up to the
// three most recent converged anchors in chronological order (spec
// §4.7.5). anchors must be sorted ascending by T and contain at least
// one element.
func Predict(method Method, anchors []Anchor, t float64) (float64, error) {
	if len(anchors) == 0 {
		return 0, fmt.Errorf("extrapolate: no anchors to extrapolate from")
	}
	if len(anchors) == 1 {
		return anchors[0].V, nil
	}

	switch method {
	case Nearest:
		return anchors[len(anchors)-1].V, nil
	case Spline:
		if len(anchors) >= 3 {
			return akimaExtrapolate(anchors[len(anchors)-3:], t)
		}
		return linearExtrapolate(anchors[len(anchors)-2:], t)
	default: // Linear, and the "only two prior windows exist" fallback
		return linearExtrapolate(anchors[len(anchors)-2:], t)
	}
}

func linearExtrapolate(last2 []Anchor, t float64) (float64, error) {
	var p interp.PiecewiseLinear
	xs := []float64{last2[0].T, last2[1].T}
	ys := []float64{last2[0].V, last2[1].V}
	if err := p.Fit(xs, ys); err != nil {
		return 0, fmt.Errorf("extrapolate: linear fit: %w", err)
	}
	return evalExtrapolated(&p, xs, t), nil
}

func akimaExtrapolate(last3 []Anchor, t float64) (float64, error) {
	var p interp.AkimaSpline
	xs := []float64{last3[0].T, last3[1].T, last3[2].T}
	ys := []float64{last3[0].V, last3[1].V, last3[2].V}
	if err := p.Fit(xs, ys); err != nil {
		return 0, fmt.Errorf("extrapolate: akima fit: %w", err)
	}
	return evalExtrapolated(&p, xs, t), nil
}

// fittedPredictor is the subset of interp.FittedInterpolator used here.
type fittedPredictor interface {
	Predict(x float64) float64
}

// evalExtrapolated evaluates a fitted predictor at t, falling back to
// linear slope extrapolation from the predictor's boundary when t falls
// outside [xs[0], xs[last]] — gonum's predictors are only defined for
// interpolation within their fitted domain, but tear-stream targets
// routinely fall just past the last converged window's end time.
func evalExtrapolated(p fittedPredictor, xs []float64, t float64) float64 {
	lo, hi := xs[0], xs[len(xs)-1]
	if t >= lo && t <= hi {
		return p.Predict(t)
	}
	const eps = 1e-9
	if t > hi {
		y1 := p.Predict(hi)
		y0 := p.Predict(hi - eps)
		slope := (y1 - y0) / eps
		return y1 + slope*(t-hi)
	}
	y0 := p.Predict(lo)
	y1 := p.Predict(lo + eps)
	slope := (y1 - y0) / eps
	return y0 + slope*(t-lo)
}

// PredictDistribution applies Predict componentwise to a distribution
// bin vector, then renormalises so the bins sum to one (spec §4.7.5:
// "distributions are renormalised after extrapolation").
func PredictDistribution(method Method, anchors [][]Anchor, t float64) ([]float64, error) {
	out := make([]float64, len(anchors))
	var sum float64
	for i, a := range anchors {
		v, err := Predict(method, a, t)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			v = 0
		}
		out[i] = v
		sum += v
	}
	if sum > 0 {
		for i := range out {
			out[i] /= sum
		}
	}
	return out, nil
}
