// Package stream implements MaterialStream: the value object flowing on
// flowsheet arcs, composed of five DistributedMatrices for overall
// properties, phase fractions, per-phase compositions, and per-solid-
// compound distributions (spec §3.4, §4.3).
package stream

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/dyssol-go/grid"
	"github.com/pthm-cable/dyssol-go/matrix"
	"github.com/pthm-cable/dyssol-go/simerr"
)

// Overall property indices within the `overall` matrix.
const (
	Mass = iota
	Temperature
	Pressure
	numOverall
)

// Phase identifies one of the flowsheet's declared phases.
type Phase int

const (
	Solid Phase = iota
	Liquid
	Liquid2
	Vapour
)

func (p Phase) String() string {
	switch p {
	case Solid:
		return "solid"
	case Liquid:
		return "liquid"
	case Liquid2:
		return "liquid2"
	case Vapour:
		return "vapour"
	default:
		return "unknown"
	}
}

// MinFraction is the default epsilon below which a phase or composition
// fraction is treated as zero (spec glossary: "Minimum fraction").
const MinFraction = 1e-9

// MaterialStream is a named value object with a unique key and the five
// DistributedMatrices spec §3.4 describes.
type MaterialStream struct {
	Key  string
	Name string

	compounds []string // ordered compound keys, mirrors the flowsheet
	phases    []Phase

	overall          *matrix.DistributedMatrix           // [mass, T, p]
	phaseFraction    *matrix.DistributedMatrix           // [phase]
	phaseComposition map[Phase]*matrix.DistributedMatrix // per phase: [compound]
	solidDist        map[string]*matrix.DistributedMatrix // per solid compound: grid-shaped

	g *grid.Grid // non-COMPOUNDS dimensions used for solidDist shape

	cacheWindow int
	cacheDir    string
}

// New creates an empty stream over the given compound list, declared
// phases, and distributed-parameter grid.
func New(key, name string, compounds []string, phases []Phase, g *grid.Grid, cacheWindow int, cacheDir string) *MaterialStream {
	s := &MaterialStream{
		Key:              key,
		Name:             name,
		compounds:        append([]string(nil), compounds...),
		phases:           append([]Phase(nil), phases...),
		phaseComposition: make(map[Phase]*matrix.DistributedMatrix),
		solidDist:        make(map[string]*matrix.DistributedMatrix),
		g:                g,
		cacheWindow:      cacheWindow,
		cacheDir:         cacheDir,
	}
	s.overall = matrix.New([]int{numOverall}, cacheWindow, cacheDir, nil)
	s.phaseFraction = matrix.New([]int{len(phases)}, cacheWindow, cacheDir, nil)
	for _, p := range phases {
		s.phaseComposition[p] = matrix.New([]int{len(compounds)}, cacheWindow, cacheDir, nil)
	}
	return s
}

func (s *MaterialStream) phaseIndex(p Phase) (int, bool) {
	for i, pp := range s.phases {
		if pp == p {
			return i, true
		}
	}
	return 0, false
}

func (s *MaterialStream) compoundIndex(c string) (int, bool) {
	for i, cc := range s.compounds {
		if cc == c {
			return i, true
		}
	}
	return 0, false
}

// solidGridShape returns the tensor shape for a solidDistribution matrix:
// every grid dimension except COMPOUNDS.
func (s *MaterialStream) solidGridShape() []int {
	dims := s.g.NonCompoundDimensions()
	if len(dims) == 0 {
		return []int{1}
	}
	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = d.ClassesNumber()
	}
	return shape
}

// Grid returns the distributed-parameter grid this stream's solid
// distributions are shaped over.
func (s *MaterialStream) Grid() *grid.Grid { return s.g }

// SolidGridShape returns the tensor shape of this stream's solid
// distributions (every grid dimension except COMPOUNDS).
func (s *MaterialStream) SolidGridShape() []int { return s.solidGridShape() }

// --- overall properties ---

func (s *MaterialStream) SetMass(t, v float64) error    { return s.setOverall(t, Mass, v) }
func (s *MaterialStream) SetTemperature(t, v float64) error {
	if v <= 0 {
		return simerr.New(simerr.KindInvalidTarget, "temperature must be > 0", nil)
	}
	return s.setOverall(t, Temperature, v)
}
func (s *MaterialStream) SetPressure(t, v float64) error {
	if v < 0 {
		return simerr.New(simerr.KindInvalidTarget, "pressure must be >= 0", nil)
	}
	return s.setOverall(t, Pressure, v)
}

func (s *MaterialStream) setOverall(t float64, idx int, v float64) error {
	if idx == Mass && v < 0 {
		return simerr.New(simerr.KindInvalidTarget, "mass must be >= 0", nil)
	}
	return s.overall.SetValue(t, idx, v)
}

func (s *MaterialStream) Mass(t float64) float64        { return s.overall.GetValue(t, Mass) }
func (s *MaterialStream) Temperature(t float64) float64 { return s.overall.GetValue(t, Temperature) }
func (s *MaterialStream) Pressure(t float64) float64    { return s.overall.GetValue(t, Pressure) }

// --- phase fraction ---

// SetPhaseFraction sets phase fraction at time t. Fails with InvalidTarget
// if the phase is not declared (spec §4.3).
func (s *MaterialStream) SetPhaseFraction(t float64, p Phase, v float64) error {
	idx, ok := s.phaseIndex(p)
	if !ok {
		return simerr.New(simerr.KindInvalidTarget, fmt.Sprintf("phase %s not declared on stream %s", p, s.Key), nil)
	}
	return s.phaseFraction.SetValue(t, idx, v)
}

func (s *MaterialStream) PhaseFraction(t float64, p Phase) float64 {
	idx, ok := s.phaseIndex(p)
	if !ok {
		return 0
	}
	return s.phaseFraction.GetValue(t, idx)
}

// CheckPhaseFractionsSumToOne verifies invariant 1 of spec §8 at time t.
func (s *MaterialStream) CheckPhaseFractionsSumToOne(t float64) bool {
	sl := s.phaseFraction.GetTimePoint(t)
	return withinEps(floats.Sum(sl), 1, MinFraction)
}

// --- phase composition ---

func (s *MaterialStream) SetPhaseComposition(t float64, p Phase, compound string, v float64) error {
	m, ok := s.phaseComposition[p]
	if !ok {
		return simerr.New(simerr.KindInvalidTarget, fmt.Sprintf("phase %s not declared on stream %s", p, s.Key), nil)
	}
	idx, ok := s.compoundIndex(compound)
	if !ok {
		return simerr.New(simerr.KindInvalidTarget, fmt.Sprintf("unknown compound %s", compound), nil)
	}
	return m.SetValue(t, idx, v)
}

func (s *MaterialStream) PhaseComposition(t float64, p Phase, compound string) float64 {
	m, ok := s.phaseComposition[p]
	if !ok {
		return 0
	}
	idx, ok := s.compoundIndex(compound)
	if !ok {
		return 0
	}
	return m.GetValue(t, idx)
}

// CheckPhaseCompositionSumsToOne verifies invariant 2 of spec §8: for
// every phase with fraction above MinFraction, composition sums to one.
func (s *MaterialStream) CheckPhaseCompositionSumsToOne(t float64) bool {
	for _, p := range s.phases {
		if s.PhaseFraction(t, p) <= MinFraction {
			continue
		}
		sl := s.phaseComposition[p].GetTimePoint(t)
		if !withinEps(floats.Sum(sl), 1, MinFraction) {
			return false
		}
	}
	return true
}

// --- solid distribution ---

// solidMatrix lazily creates the per-compound solid distribution matrix.
func (s *MaterialStream) solidMatrix(compound string) *matrix.DistributedMatrix {
	if m, ok := s.solidDist[compound]; ok {
		return m
	}
	m := matrix.New(s.solidGridShape(), s.cacheWindow, s.cacheDir, nil)
	s.solidDist[compound] = m
	return m
}

// SetSolidDistribution sets the full distribution slice for a solid
// compound at time t. Fails with InvalidTarget for unknown compounds.
func (s *MaterialStream) SetSolidDistribution(t float64, compound string, dist matrix.Slice) error {
	if _, ok := s.compoundIndex(compound); !ok {
		return simerr.New(simerr.KindInvalidTarget, fmt.Sprintf("unknown compound %s", compound), nil)
	}
	return s.solidMatrix(compound).SetTimePoint(t, dist)
}

func (s *MaterialStream) SolidDistribution(t float64, compound string) matrix.Slice {
	m, ok := s.solidDist[compound]
	if !ok {
		return nil
	}
	return m.GetTimePoint(t)
}

// CheckSolidDistributionSumsToOne verifies invariant 3 of spec §8 for
// every solid compound with non-zero solid-phase mass.
func (s *MaterialStream) CheckSolidDistributionSumsToOne(t float64) bool {
	solidMass := s.Mass(t) * s.PhaseFraction(t, Solid)
	if solidMass <= MinFraction {
		return true
	}
	for compound, m := range s.solidDist {
		frac := s.PhaseComposition(t, Solid, compound)
		if frac*solidMass <= MinFraction {
			continue
		}
		sl := m.GetTimePoint(t)
		if !withinEps(floats.Sum(sl), 1, MinFraction) {
			return false
		}
	}
	return true
}

func withinEps(got, want, eps float64) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d <= eps
}

// --- lifecycle operations ---

// CopyFrom copies all data in [t1, t2] from other into s.
func (s *MaterialStream) CopyFrom(other *MaterialStream, t1, t2 float64) {
	for _, t := range other.overall.Times() {
		if t < t1 || t > t2 {
			continue
		}
		sl := other.overall.GetTimePoint(t)
		_ = s.overall.SetTimePoint(t, sl)
		_ = s.phaseFraction.SetTimePoint(t, other.phaseFraction.GetTimePoint(t))
		for p, m := range other.phaseComposition {
			if dst, ok := s.phaseComposition[p]; ok {
				_ = dst.SetTimePoint(t, m.GetTimePoint(t))
			}
		}
		for c, m := range other.solidDist {
			_ = s.solidMatrix(c).SetTimePoint(t, m.GetTimePoint(t))
		}
	}
}

// RebinInto copies s's state at time t into dst, the spec §4.5(c)
// grid-conversion step performed on every data transfer into an
// input-side stream whose grid differs from its source's. Overall
// properties, phase fractions and phase compositions are not
// grid-shaped and are copied unchanged; each compound's solid
// distribution is redistributed from s's grid axes to dst's via
// matrix.ConvertDistribution.
func (s *MaterialStream) RebinInto(dst *MaterialStream, t float64) error {
	if err := dst.overall.SetTimePoint(t, s.overall.GetTimePoint(t)); err != nil {
		return err
	}
	if err := dst.phaseFraction.SetTimePoint(t, s.phaseFraction.GetTimePoint(t)); err != nil {
		return err
	}
	for p, m := range s.phaseComposition {
		if dm, ok := dst.phaseComposition[p]; ok {
			if err := dm.SetTimePoint(t, m.GetTimePoint(t)); err != nil {
				return err
			}
		}
	}
	srcDims := s.g.NonCompoundDimensions()
	dstDims := dst.g.NonCompoundDimensions()
	for _, c := range s.compounds {
		srcM, ok := s.solidDist[c]
		if !ok {
			continue
		}
		converted, err := matrix.ConvertDistribution(srcM.GetTimePoint(t), srcDims, dstDims)
		if err != nil {
			return fmt.Errorf("stream: rebinning compound %s into %s: %w", c, dst.Key, err)
		}
		if err := dst.solidMatrix(c).SetTimePoint(t, converted); err != nil {
			return err
		}
	}
	return nil
}

// RemoveTimePointsAfter truncates every internal matrix together, used by
// the Simulator to roll back an aborted or cancelled window (spec §4.3,
// §4.7.4, §5).
func (s *MaterialStream) RemoveTimePointsAfter(t float64, inclusive bool) {
	s.overall.RemoveTimePointsAfter(t, inclusive)
	s.phaseFraction.RemoveTimePointsAfter(t, inclusive)
	for _, m := range s.phaseComposition {
		m.RemoveTimePointsAfter(t, inclusive)
	}
	for _, m := range s.solidDist {
		m.RemoveTimePointsAfter(t, inclusive)
	}
}

// MixWith computes the mass-weighted average of s and other at time t and
// replaces s's value at t with the result (spec §4.3): scalar properties
// by mass, phase fractions by overall mass, compositions by per-phase
// mass, distributions by per-compound solid-phase mass.
func (s *MaterialStream) MixWith(other *MaterialStream, t float64) error {
	m1, m2 := s.Mass(t), other.Mass(t)
	total := m1 + m2
	if total <= 0 {
		return nil
	}
	w1, w2 := m1/total, m2/total

	temp := w1*s.Temperature(t) + w2*other.Temperature(t)
	pres := w1*s.Pressure(t) + w2*other.Pressure(t)

	// Snapshot each side's solid-phase mass and composition before the
	// blending below overwrites s's own overall/phase-fraction/
	// composition fields in place: reading them back off s afterward
	// would double-count other's already-blended-in contribution.
	solidMass1 := m1 * s.PhaseFraction(t, Solid)
	solidMass2 := m2 * other.PhaseFraction(t, Solid)
	solidComp1 := make(map[string]float64, len(s.compounds))
	solidComp2 := make(map[string]float64, len(s.compounds))
	for _, c := range s.compounds {
		solidComp1[c] = s.PhaseComposition(t, Solid, c)
		solidComp2[c] = other.PhaseComposition(t, Solid, c)
	}

	if err := s.overall.SetTimePoint(t, matrix.Slice{total, temp, pres}); err != nil {
		return err
	}

	for _, p := range s.phases {
		f1, f2 := s.PhaseFraction(t, p), other.PhaseFraction(t, p)
		pm1, pm2 := f1*m1, f2*m2
		pmTotal := pm1 + pm2
		newFrac := 0.0
		if total > 0 {
			newFrac = pmTotal / total
		}
		if err := s.SetPhaseFraction(t, p, newFrac); err != nil {
			return err
		}
		if pmTotal <= 0 {
			continue
		}
		pw1, pw2 := pm1/pmTotal, pm2/pmTotal
		for _, c := range s.compounds {
			c1 := s.PhaseComposition(t, p, c)
			c2 := other.PhaseComposition(t, p, c)
			if err := s.SetPhaseComposition(t, p, c, pw1*c1+pw2*c2); err != nil {
				return err
			}
		}
	}

	for _, c := range s.compounds {
		sm1 := solidMass1 * solidComp1[c]
		om2 := solidMass2 * solidComp2[c]
		total := sm1 + om2
		if total <= 0 {
			continue
		}
		d1 := s.SolidDistribution(t, c)
		d2 := other.SolidDistribution(t, c)
		if d1 == nil && d2 == nil {
			continue
		}
		shape := s.solidGridShape()
		n := 1
		for _, sh := range shape {
			n *= sh
		}
		out := make(matrix.Slice, n)
		w1, w2 := sm1/total, om2/total
		for i := 0; i < n; i++ {
			var v1, v2 float64
			if d1 != nil {
				v1 = d1[i]
			}
			if d2 != nil {
				v2 = d2[i]
			}
			out[i] = w1*v1 + w2*v2
		}
		if err := s.SetSolidDistribution(t, c, out); err != nil {
			return err
		}
	}
	return nil
}

// Compounds returns the ordered compound key list.
func (s *MaterialStream) Compounds() []string { return append([]string(nil), s.compounds...) }

// Phases returns the declared phases.
func (s *MaterialStream) Phases() []Phase { return append([]Phase(nil), s.phases...) }

// TimePoints returns every time point at which this stream's overall
// properties are stored, ascending. Used by persist to enumerate what
// needs serialising without reaching into the underlying matrices.
func (s *MaterialStream) TimePoints() []float64 { return s.overall.Times() }
