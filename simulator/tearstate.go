package simulator

import (
	"github.com/pthm-cable/dyssol-go/matrix"
	"github.com/pthm-cable/dyssol-go/stream"
)

// tearLayout flattens a tear stream's full state into a single vector so
// the accelerator and extrapolator can work componentwise over every
// scalar and every distribution bin (spec §4.7.3, §4.7.5), not just the
// stream's overall mass. The layout is:
//
//	[0]                    mass
//	[1]                    temperature
//	[2]                    pressure
//	[fracStart, +nPhases)  phase fractions
//	per phase block        phase composition (nCompounds each)
//	per compound block     solid distribution (product(gridShape) each)
type tearLayout struct {
	phases    []stream.Phase
	compounds []string
	gridShape []int
	binCount  int

	fracStart int
	compStart []int // per-phase offset
	distStart []int // per-compound offset
	total     int
}

func newTearLayout(tm *stream.MaterialStream) *tearLayout {
	phases := tm.Phases()
	compounds := tm.Compounds()
	shape := tm.SolidGridShape()
	binCount := 1
	for _, d := range shape {
		binCount *= d
	}

	l := &tearLayout{phases: phases, compounds: compounds, gridShape: shape, binCount: binCount}
	l.fracStart = 3
	off := l.fracStart + len(phases)
	l.compStart = make([]int, len(phases))
	for i := range phases {
		l.compStart[i] = off
		off += len(compounds)
	}
	l.distStart = make([]int, len(compounds))
	for i := range compounds {
		l.distStart[i] = off
		off += binCount
	}
	l.total = off
	return l
}

const (
	tearMassIdx = 0
	tearTempIdx = 1
	tearPresIdx = 2
)

// gather reads a tear stream's full state at t into a flat vector.
func (l *tearLayout) gather(tm *stream.MaterialStream, t float64) []float64 {
	v := make([]float64, l.total)
	v[tearMassIdx] = tm.Mass(t)
	v[tearTempIdx] = tm.Temperature(t)
	v[tearPresIdx] = tm.Pressure(t)
	for i, p := range l.phases {
		v[l.fracStart+i] = tm.PhaseFraction(t, p)
	}
	for i, p := range l.phases {
		base := l.compStart[i]
		for j, c := range l.compounds {
			v[base+j] = tm.PhaseComposition(t, p, c)
		}
	}
	for i, c := range l.compounds {
		base := l.distStart[i]
		d := tm.SolidDistribution(t, c)
		for j := 0; j < l.binCount && j < len(d); j++ {
			v[base+j] = d[j]
		}
	}
	return v
}

// scatter writes a flat vector back onto a tear stream at t.
func (l *tearLayout) scatter(tm *stream.MaterialStream, t float64, v []float64) error {
	if err := tm.SetMass(t, v[tearMassIdx]); err != nil {
		return err
	}
	if err := tm.SetTemperature(t, v[tearTempIdx]); err != nil {
		return err
	}
	if err := tm.SetPressure(t, v[tearPresIdx]); err != nil {
		return err
	}
	for i, p := range l.phases {
		if err := tm.SetPhaseFraction(t, p, v[l.fracStart+i]); err != nil {
			return err
		}
	}
	for i, p := range l.phases {
		base := l.compStart[i]
		for j, c := range l.compounds {
			if err := tm.SetPhaseComposition(t, p, c, v[base+j]); err != nil {
				return err
			}
		}
	}
	for i, c := range l.compounds {
		base := l.distStart[i]
		dist := append(matrix.Slice(nil), v[base:base+l.binCount]...)
		if err := tm.SetSolidDistribution(t, c, dist); err != nil {
			return err
		}
	}
	return nil
}

// clampAndRenormalise applies spec §4.7.6's physical bounds (mass and
// pressure non-negative, every fractional component in [0,1]) and
// restores the sum-to-one invariants the blend above can disturb: phase
// fractions as a whole, each phase's composition, each compound's
// distribution.
func (l *tearLayout) clampAndRenormalise(v []float64, absTol float64) {
	if v[tearMassIdx] < 0 {
		v[tearMassIdx] = 0
	}
	if v[tearPresIdx] < 0 {
		v[tearPresIdx] = 0
	}
	if v[tearTempIdx] <= 0 {
		v[tearTempIdx] = absTol
	}
	for i := range v {
		if i == tearMassIdx || i == tearTempIdx || i == tearPresIdx {
			continue
		}
		if v[i] < 0 {
			v[i] = 0
		}
		if v[i] > 1 {
			v[i] = 1
		}
	}
	renormalise(v[l.fracStart:l.fracStart+len(l.phases)], absTol)
	for _, base := range l.compStart {
		renormalise(v[base:base+len(l.compounds)], absTol)
	}
	for _, base := range l.distStart {
		renormalise(v[base:base+l.binCount], absTol)
	}
}

func renormalise(x []float64, absTol float64) {
	var sum float64
	for _, xi := range x {
		sum += xi
	}
	if sum <= 0 {
		return
	}
	d := sum - 1
	if d < 0 {
		d = -d
	}
	if d <= absTol {
		return
	}
	for i := range x {
		x[i] /= sum
	}
}

// vectorConverged applies spec §4.7.3's scalar convergence test
// componentwise, requiring every component to be within tolerance.
func vectorConverged(a, b []float64, absTol, relTol float64) bool {
	for i := range a {
		if !convergenceTest(a[i], b[i], absTol, relTol) {
			return false
		}
	}
	return true
}
