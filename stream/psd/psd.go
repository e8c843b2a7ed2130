// Package psd implements the particle-size-distribution conversions spec
// §4.3 names in passing: q0/Q0/q2/Q2/q3/Q3 and Sauter diameter, derived on
// demand from a stored mass-fraction q3 distribution. Grounded on
// original_source/ModelsAPI/DistributionFunctions.cpp.
package psd

// kahanThreshold is the class count above which sums use Kahan
// compensation, per spec §4.3.
const kahanThreshold = 1000

// sum adds xs, switching to Kahan-compensated summation once the class
// count exceeds kahanThreshold. No library in the pack's domain stack
// (gonum/floats) exposes a public compensated-sum routine in the pinned
// version, so this is hand-rolled per DESIGN.md.
func sum(xs []float64) float64 {
	if len(xs) <= kahanThreshold {
		var s float64
		for _, x := range xs {
			s += x
		}
		return s
	}
	var s, c float64
	for _, x := range xs {
		y := x - c
		t := s + y
		c = (t - s) - y
		s = t
	}
	return s
}

// Q3 returns the cumulative mass distribution from a mass-density q3.
func Q3(q3 []float64) []float64 {
	out := make([]float64, len(q3))
	acc := 0.0
	for i, v := range q3 {
		acc += v
		out[i] = acc
	}
	return out
}

// q0 converts mass density q3 to number density q0, given per-class mean
// diameters: q0_i = (q3_i / d_i^3) / sum_j(q3_j / d_j^3).
func q0(q3, diamMeans []float64) []float64 {
	raw := make([]float64, len(q3))
	for i := range q3 {
		d := diamMeans[i]
		if d <= 0 {
			continue
		}
		raw[i] = q3[i] / (d * d * d)
	}
	total := sum(raw)
	out := make([]float64, len(raw))
	if total <= 0 {
		return out
	}
	for i := range raw {
		out[i] = raw[i] / total
	}
	return out
}

// Q0 returns the cumulative number distribution.
func Q0(q3, diamMeans []float64) []float64 { return Q3(q0(q3, diamMeans)) }

// q2 converts mass density q3 to area density q2: q2_i = (q3_i / d_i) /
// sum_j(q3_j / d_j).
func q2(q3, diamMeans []float64) []float64 {
	raw := make([]float64, len(q3))
	for i := range q3 {
		d := diamMeans[i]
		if d <= 0 {
			continue
		}
		raw[i] = q3[i] / d
	}
	total := sum(raw)
	out := make([]float64, len(raw))
	if total <= 0 {
		return out
	}
	for i := range raw {
		out[i] = raw[i] / total
	}
	return out
}

// Q2 returns the cumulative area distribution.
func Q2(q3, diamMeans []float64) []float64 { return Q3(q2(q3, diamMeans)) }

// NumberDistribution is an alias for q0, the density number distribution.
func NumberDistribution(q3, diamMeans []float64) []float64 { return q0(q3, diamMeans) }

// SauterDiameter computes d32 = 1 / sum_i(q3_i / d_i), the surface-volume
// mean diameter (spec glossary), using compensated summation once the
// class count crosses the threshold.
func SauterDiameter(q3, diamMeans []float64) float64 {
	terms := make([]float64, len(q3))
	for i := range q3 {
		d := diamMeans[i]
		if d <= 0 {
			continue
		}
		terms[i] = q3[i] / d
	}
	denom := sum(terms)
	if denom <= 0 {
		return 0
	}
	return 1.0 / denom
}
