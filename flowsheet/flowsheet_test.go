package flowsheet

import (
	"math"
	"testing"

	"github.com/pthm-cable/dyssol-go/grid"
	"github.com/pthm-cable/dyssol-go/materials"
	"github.com/pthm-cable/dyssol-go/stream"
	"github.com/pthm-cable/dyssol-go/stream/psd"
	"github.com/pthm-cable/dyssol-go/unit"
)

// stubUnit is a minimal unit.Unit used to exercise Flowsheet wiring
// without depending on any of the built-in models.
type stubUnit struct {
	key    string
	ports  []*unit.Port
	params *unit.ParameterManager
	bound  map[string]*stream.MaterialStream
}

func newStubUnit(key string, ports ...*unit.Port) *stubUnit {
	return &stubUnit{key: key, ports: ports, params: unit.NewParameterManager(), bound: make(map[string]*stream.MaterialStream)}
}

func (u *stubUnit) Key() string                                       { return u.key }
func (u *stubUnit) Ports() []*unit.Port                                { return u.ports }
func (u *stubUnit) Initialise(t0 float64) error                       { return nil }
func (u *stubUnit) Simulate(t1, t2 float64) error                      { return nil }
func (u *stubUnit) Finalise()                                          {}
func (u *stubUnit) Holdups() map[string]*stream.MaterialStream         { return nil }
func (u *stubUnit) Parameters() *unit.ParameterManager                 { return u.params }
func (u *stubUnit) BindStream(portKey string, s *stream.MaterialStream) { u.bound[portKey] = s }

func newSimpleFlowsheet(t *testing.T, g *grid.Grid) *Flowsheet {
	t.Helper()
	return New([]string{"A"}, []stream.Phase{stream.Solid}, g, materials.NewDB(), 100, "")
}

func TestInitialiseRejectsUnconnectedPort(t *testing.T) {
	fs := newSimpleFlowsheet(t, grid.New())
	feeder := newStubUnit("feeder", &unit.Port{Key: "feeder.out", Name: "out", Direction: unit.Output})
	if err := fs.AddUnit("feeder", "feeder", feeder); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	if err := fs.Initialise(); err == nil {
		t.Fatalf("expected Initialise to reject an unconnected port")
	}
}

func TestInitialiseRejectsNoCompounds(t *testing.T) {
	fs := New(nil, []stream.Phase{stream.Solid}, grid.New(), materials.NewDB(), 100, "")
	if err := fs.Initialise(); err == nil {
		t.Fatalf("expected Initialise to reject a flowsheet with no compounds")
	}
}

func TestInitialiseAliasesInputStreamWhenGridMatches(t *testing.T) {
	fs := newSimpleFlowsheet(t, grid.New())
	feeder := newStubUnit("feeder", &unit.Port{Key: "feeder.out", Name: "out", Direction: unit.Output})
	sink := newStubUnit("sink", &unit.Port{Key: "sink.in", Name: "in", Direction: unit.Input})
	if err := fs.AddUnit("feeder", "feeder", feeder); err != nil {
		t.Fatalf("AddUnit feeder: %v", err)
	}
	if err := fs.AddUnit("sink", "sink", sink); err != nil {
		t.Fatalf("AddUnit sink: %v", err)
	}
	if err := fs.AddStream("s1", "s1", "feeder.out", "sink.in"); err != nil {
		t.Fatalf("AddStream: %v", err)
	}
	if err := fs.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}

	ms, _ := fs.Stream("s1")
	pd := fs.portMap.Get(fs.portsByKey["sink.in"])
	if pd.InputStream != ms {
		t.Fatalf("expected input-side stream to alias the main stream when no port grid is declared")
	}
	if sink.bound["sink.in"] != ms {
		t.Fatalf("expected sink to be bound to the main stream")
	}
}

// logNormalPSD builds a discrete mass-density q3 distribution over the
// given per-class mean diameters, following a log-normal shape.
func logNormalPSD(means []float64, muLog, sigmaLog float64) []float64 {
	raw := make([]float64, len(means))
	var total float64
	for i, d := range means {
		if d <= 0 {
			continue
		}
		z := (math.Log(d) - muLog) / sigmaLog
		raw[i] = math.Exp(-0.5*z*z) / d
		total += raw[i]
	}
	if total <= 0 {
		return raw
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = v / total
	}
	return out
}

// TestInitialiseConvertsGridBetweenDifferentlyDiscretisedPorts reproduces
// the two-unit, differently-discretised-PSD case: a feeder writing a
// 20-class log-normal size distribution into a 50-class input-side
// stream on the sink's port. The conversion must conserve total mass
// (exactly, since RebinBoundaries redistributes every unit of mass to
// overlapping classes and nothing else) and must not grossly distort the
// Sauter diameter.
func TestInitialiseConvertsGridBetweenDifferentlyDiscretisedPorts(t *testing.T) {
	coarseBounds, _, err := grid.BuildBoundaries(grid.GeometricInc, 20, 1e-6, 1e-3)
	if err != nil {
		t.Fatalf("BuildBoundaries coarse: %v", err)
	}
	fineBounds, _, err := grid.BuildBoundaries(grid.GeometricInc, 50, 1e-6, 1e-3)
	if err != nil {
		t.Fatalf("BuildBoundaries fine: %v", err)
	}

	mainGrid := grid.New()
	if err := mainGrid.AddDimension(&grid.Dimension{Type: grid.Size, Boundaries: coarseBounds}); err != nil {
		t.Fatalf("AddDimension coarse: %v", err)
	}
	fineGrid := grid.New()
	if err := fineGrid.AddDimension(&grid.Dimension{Type: grid.Size, Boundaries: fineBounds}); err != nil {
		t.Fatalf("AddDimension fine: %v", err)
	}

	fs := newSimpleFlowsheet(t, mainGrid)

	feeder := newStubUnit("feeder", &unit.Port{Key: "feeder.out", Name: "out", Direction: unit.Output})
	sink := newStubUnit("sink", &unit.Port{Key: "sink.in", Name: "in", Direction: unit.Input, Grid: fineGrid})
	if err := fs.AddUnit("feeder", "feeder", feeder); err != nil {
		t.Fatalf("AddUnit feeder: %v", err)
	}
	if err := fs.AddUnit("sink", "sink", sink); err != nil {
		t.Fatalf("AddUnit sink: %v", err)
	}
	if err := fs.AddStream("s1", "s1", "feeder.out", "sink.in"); err != nil {
		t.Fatalf("AddStream: %v", err)
	}

	ms, ok := fs.Stream("s1")
	if !ok {
		t.Fatalf("stream s1 not found")
	}
	_ = ms.SetMass(0, 10)
	_ = ms.SetTemperature(0, 300)
	_ = ms.SetPressure(0, 1e5)
	_ = ms.SetPhaseFraction(0, stream.Solid, 1)
	_ = ms.SetPhaseComposition(0, stream.Solid, "A", 1.0)

	coarseDim := mainGrid.Dimension(grid.Size)
	coarseMeans := coarseDim.PSDMeans(grid.Diameter)
	q3Coarse := logNormalPSD(coarseMeans, math.Log(5e-5), 0.5)
	if err := ms.SetSolidDistribution(0, "A", q3Coarse); err != nil {
		t.Fatalf("SetSolidDistribution: %v", err)
	}

	if err := fs.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}

	pd := fs.portMap.Get(fs.portsByKey["sink.in"])
	if pd.InputStream == ms {
		t.Fatalf("expected a distinct grid-converted input-side stream")
	}
	q3Fine := pd.InputStream.SolidDistribution(0, "A")
	if len(q3Fine) != 50 {
		t.Fatalf("expected 50-class converted distribution, got %d classes", len(q3Fine))
	}

	var sumCoarse, sumFine float64
	for _, v := range q3Coarse {
		sumCoarse += v
	}
	for _, v := range q3Fine {
		sumFine += v
	}
	if math.Abs(sumFine-sumCoarse) > 1e-9*math.Max(sumCoarse, 1) {
		t.Errorf("converted distribution mass = %v, want %v (relative diff %v)", sumFine, sumCoarse, math.Abs(sumFine-sumCoarse)/sumCoarse)
	}

	fineDim := fineGrid.Dimension(grid.Size)
	fineMeans := fineDim.PSDMeans(grid.Diameter)
	dCoarse := psd.SauterDiameter(q3Coarse, coarseMeans)
	dFine := psd.SauterDiameter(q3Fine, fineMeans)
	relDiff := math.Abs(dFine-dCoarse) / dCoarse
	// A looser bound than a from-scratch 50-class discretisation would
	// allow: RebinBoundaries redistributes mass linearly across a fixed
	// set of overlaps rather than resampling the original analytic shape,
	// so some smoothing error versus the coarse-grid Sauter diameter is
	// expected. This still catches a conversion that drops or misplaces
	// mass across the size axis.
	if relDiff > 1e-2 {
		t.Errorf("Sauter diameter relative difference = %v, want <1e-2 (coarse=%v fine=%v)", relDiff, dCoarse, dFine)
	}

	// SyncInputSide must re-run the same conversion for a later time point.
	_ = ms.SetMass(1, 20)
	_ = ms.SetTemperature(1, 300)
	_ = ms.SetPressure(1, 1e5)
	_ = ms.SetPhaseFraction(1, stream.Solid, 1)
	_ = ms.SetPhaseComposition(1, stream.Solid, "A", 1.0)
	q3Coarse2 := logNormalPSD(coarseMeans, math.Log(2e-4), 0.4)
	if err := ms.SetSolidDistribution(1, "A", q3Coarse2); err != nil {
		t.Fatalf("SetSolidDistribution at t=1: %v", err)
	}
	if err := fs.SyncInputSide(1); err != nil {
		t.Fatalf("SyncInputSide: %v", err)
	}
	q3Fine2 := pd.InputStream.SolidDistribution(1, "A")
	var sumFine2 float64
	for _, v := range q3Fine2 {
		sumFine2 += v
	}
	if math.Abs(sumFine2-1) > 1e-9 {
		t.Errorf("converted distribution at t=1 sums to %v, want 1", sumFine2)
	}
}
