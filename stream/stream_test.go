package stream

import (
	"math"
	"testing"

	"github.com/pthm-cable/dyssol-go/grid"
)

func newTestStream(t *testing.T) *MaterialStream {
	t.Helper()
	g := grid.New()
	g.SyncCompounds([]string{"A", "B"})
	return New("s1", "s1", []string{"A", "B"}, []Phase{Solid, Liquid}, g, 100, "")
}

func TestSetGetOverallProperties(t *testing.T) {
	s := newTestStream(t)
	if err := s.SetMass(0, 10); err != nil {
		t.Fatalf("SetMass: %v", err)
	}
	if err := s.SetTemperature(0, 298.15); err != nil {
		t.Fatalf("SetTemperature: %v", err)
	}
	if err := s.SetPressure(0, 101325); err != nil {
		t.Fatalf("SetPressure: %v", err)
	}
	if s.Mass(0) != 10 || s.Temperature(0) != 298.15 || s.Pressure(0) != 101325 {
		t.Fatalf("round-trip mismatch: mass=%v temp=%v pres=%v", s.Mass(0), s.Temperature(0), s.Pressure(0))
	}
}

func TestSetTemperatureRejectsNonPositive(t *testing.T) {
	s := newTestStream(t)
	if err := s.SetTemperature(0, 0); err == nil {
		t.Fatalf("expected error for non-positive temperature")
	}
	if err := s.SetTemperature(0, -1); err == nil {
		t.Fatalf("expected error for negative temperature")
	}
}

func TestSetMassRejectsNegative(t *testing.T) {
	s := newTestStream(t)
	if err := s.SetMass(0, -1); err == nil {
		t.Fatalf("expected error for negative mass")
	}
}

func TestSetPhaseFractionRejectsUndeclaredPhase(t *testing.T) {
	s := newTestStream(t)
	if err := s.SetPhaseFraction(0, Vapour, 1.0); err == nil {
		t.Fatalf("expected error for undeclared phase")
	}
}

func TestCheckPhaseFractionsSumToOne(t *testing.T) {
	s := newTestStream(t)
	_ = s.SetPhaseFraction(0, Solid, 0.4)
	_ = s.SetPhaseFraction(0, Liquid, 0.6)
	if !s.CheckPhaseFractionsSumToOne(0) {
		t.Fatalf("expected fractions to sum to one")
	}
	_ = s.SetPhaseFraction(0, Liquid, 0.5)
	if s.CheckPhaseFractionsSumToOne(0) {
		t.Fatalf("expected fractions not to sum to one")
	}
}

func TestCheckPhaseCompositionSumsToOneIgnoresNegligiblePhases(t *testing.T) {
	s := newTestStream(t)
	_ = s.SetPhaseFraction(0, Solid, 0)
	_ = s.SetPhaseFraction(0, Liquid, 1)
	_ = s.SetPhaseComposition(0, Liquid, "A", 0.5)
	_ = s.SetPhaseComposition(0, Liquid, "B", 0.5)
	// Solid phase has zero fraction and no composition set at all; should
	// still pass since it's below MinFraction.
	if !s.CheckPhaseCompositionSumsToOne(0) {
		t.Fatalf("expected composition check to ignore a negligible phase")
	}
}

func TestSetPhaseCompositionRejectsUnknownCompound(t *testing.T) {
	s := newTestStream(t)
	if err := s.SetPhaseComposition(0, Liquid, "Z", 1.0); err == nil {
		t.Fatalf("expected error for unknown compound")
	}
}

func TestMixWithIsMassWeighted(t *testing.T) {
	a := newTestStream(t)
	b := newTestStream(t)

	_ = a.SetMass(0, 10)
	_ = a.SetTemperature(0, 300)
	_ = a.SetPressure(0, 1e5)
	_ = a.SetPhaseFraction(0, Solid, 0)
	_ = a.SetPhaseFraction(0, Liquid, 1)
	_ = a.SetPhaseComposition(0, Liquid, "A", 1.0)
	_ = a.SetPhaseComposition(0, Liquid, "B", 0.0)

	_ = b.SetMass(0, 30)
	_ = b.SetTemperature(0, 400)
	_ = b.SetPressure(0, 1e5)
	_ = b.SetPhaseFraction(0, Solid, 0)
	_ = b.SetPhaseFraction(0, Liquid, 1)
	_ = b.SetPhaseComposition(0, Liquid, "A", 0.0)
	_ = b.SetPhaseComposition(0, Liquid, "B", 1.0)

	if err := a.MixWith(b, 0); err != nil {
		t.Fatalf("MixWith: %v", err)
	}

	if a.Mass(0) != 40 {
		t.Fatalf("mixed mass = %v, want 40", a.Mass(0))
	}
	wantTemp := (10.0*300 + 30.0*400) / 40.0
	if math.Abs(a.Temperature(0)-wantTemp) > 1e-9 {
		t.Fatalf("mixed temp = %v, want %v", a.Temperature(0), wantTemp)
	}
	wantCompA := 0.25 // (10*1 + 30*0)/40
	if math.Abs(a.PhaseComposition(0, Liquid, "A")-wantCompA) > 1e-9 {
		t.Fatalf("mixed composition A = %v, want %v", a.PhaseComposition(0, Liquid, "A"), wantCompA)
	}
}

func TestMixWithBlendsSolidDistributionsWithoutDoubleCounting(t *testing.T) {
	g := grid.New()
	g.SyncCompounds([]string{"A", "B"})
	_ = g.AddDimension(&grid.Dimension{Type: grid.Size, Boundaries: []float64{0, 1, 2, 3}})

	a := New("a", "a", []string{"A", "B"}, []Phase{Solid, Liquid}, g, 100, "")
	b := New("b", "b", []string{"A", "B"}, []Phase{Solid, Liquid}, g, 100, "")

	_ = a.SetMass(0, 10)
	_ = a.SetTemperature(0, 300)
	_ = a.SetPressure(0, 1e5)
	_ = a.SetPhaseFraction(0, Solid, 1)
	_ = a.SetPhaseFraction(0, Liquid, 0)
	_ = a.SetPhaseComposition(0, Solid, "A", 1.0)
	_ = a.SetPhaseComposition(0, Solid, "B", 0.0)
	_ = a.SetSolidDistribution(0, "A", []float64{1, 0, 0})

	_ = b.SetMass(0, 30)
	_ = b.SetTemperature(0, 400)
	_ = b.SetPressure(0, 1e5)
	_ = b.SetPhaseFraction(0, Solid, 1)
	_ = b.SetPhaseFraction(0, Liquid, 0)
	_ = b.SetPhaseComposition(0, Solid, "A", 1.0)
	_ = b.SetPhaseComposition(0, Solid, "B", 0.0)
	_ = b.SetSolidDistribution(0, "A", []float64{0, 0, 1})

	if err := a.MixWith(b, 0); err != nil {
		t.Fatalf("MixWith: %v", err)
	}

	if a.Mass(0) != 40 {
		t.Fatalf("mixed mass = %v, want 40", a.Mass(0))
	}

	// a contributes 10kg entirely in class 0, b contributes 30kg entirely
	// in class 2: mass-weighted blend must land at [0.25, 0, 0.75], not at
	// some double-counted value that no longer sums to one.
	got := a.SolidDistribution(0, "A")
	want := []float64{0.25, 0, 0.75}
	var sum float64
	for i, v := range got {
		sum += v
		if math.Abs(v-want[i]) > 1e-12 {
			t.Fatalf("dist[%d] = %v, want %v", i, v, want[i])
		}
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("blended distribution sums to %v, want 1", sum)
	}
}

func TestMixWithZeroTotalMassIsNoOp(t *testing.T) {
	a := newTestStream(t)
	b := newTestStream(t)
	_ = a.SetMass(0, 0)
	_ = b.SetMass(0, 0)
	if err := a.MixWith(b, 0); err != nil {
		t.Fatalf("MixWith: %v", err)
	}
	if a.Mass(0) != 0 {
		t.Fatalf("expected mass to remain 0")
	}
}

func TestCopyFromRespectsTimeWindow(t *testing.T) {
	src := newTestStream(t)
	_ = src.SetMass(0, 1)
	_ = src.SetMass(1, 2)
	_ = src.SetMass(2, 3)

	dst := newTestStream(t)
	dst.CopyFrom(src, 0.5, 1.5)

	pts := dst.TimePoints()
	if len(pts) != 1 || pts[0] != 1 {
		t.Fatalf("expected only t=1 copied, got %v", pts)
	}
}

func TestRemoveTimePointsAfterTruncatesAllMatrices(t *testing.T) {
	s := newTestStream(t)
	_ = s.SetMass(0, 1)
	_ = s.SetMass(1, 2)
	_ = s.SetMass(2, 3)
	_ = s.SetPhaseFraction(0, Solid, 0.5)
	_ = s.SetPhaseFraction(1, Solid, 0.5)
	_ = s.SetPhaseFraction(2, Solid, 0.5)

	s.RemoveTimePointsAfter(1, false)

	pts := s.TimePoints()
	if len(pts) != 2 {
		t.Fatalf("expected 2 time points remaining, got %v", pts)
	}
}

func TestSolidDistributionRoundTripAndSumCheck(t *testing.T) {
	g := grid.New()
	g.SyncCompounds([]string{"A", "B"})
	_ = g.AddDimension(&grid.Dimension{Type: grid.Size, Boundaries: []float64{0, 1, 2, 3}})
	s2 := New("s2", "s2", []string{"A", "B"}, []Phase{Solid, Liquid}, g, 100, "")

	_ = s2.SetMass(0, 10)
	_ = s2.SetPhaseFraction(0, Solid, 1)
	_ = s2.SetPhaseFraction(0, Liquid, 0)
	_ = s2.SetPhaseComposition(0, Solid, "A", 1.0)
	_ = s2.SetPhaseComposition(0, Solid, "B", 0.0)

	if err := s2.SetSolidDistribution(0, "A", []float64{0.2, 0.3, 0.5}); err != nil {
		t.Fatalf("SetSolidDistribution: %v", err)
	}
	got := s2.SolidDistribution(0, "A")
	want := []float64{0.2, 0.3, 0.5}
	for i, v := range got {
		if math.Abs(v-want[i]) > 1e-12 {
			t.Fatalf("dist[%d] = %v, want %v", i, v, want[i])
		}
	}
	if !s2.CheckSolidDistributionSumsToOne(0) {
		t.Fatalf("expected distribution to sum to one")
	}

	if err := s2.SetSolidDistribution(0, "Z", []float64{1}); err == nil {
		t.Fatalf("expected error for unknown compound in SetSolidDistribution")
	}
}
