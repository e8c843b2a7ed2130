package grid

import (
	"math"
	"testing"
)

func TestDimensionValidateRejectsNonMonotoneBoundaries(t *testing.T) {
	d := &Dimension{Type: Size, Boundaries: []float64{0, 2, 1, 4}}
	if err := d.Validate(); err == nil {
		t.Fatalf("expected error for non-monotone boundaries")
	}
}

func TestDimensionValidateRejectsNegativeBoundary(t *testing.T) {
	d := &Dimension{Type: Size, Boundaries: []float64{-1, 2, 4}}
	if err := d.Validate(); err == nil {
		t.Fatalf("expected error for negative boundary")
	}
}

func TestDimensionValidateAcceptsSymbolic(t *testing.T) {
	d := &Dimension{Type: Color, Labels: []string{"red", "green"}}
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if d.ClassesNumber() != 2 {
		t.Fatalf("got %d classes, want 2", d.ClassesNumber())
	}
}

func TestClassesMeansIsMidpoint(t *testing.T) {
	d := &Dimension{Type: Size, Boundaries: []float64{0, 2, 4, 8}}
	means := d.ClassesMeans()
	want := []float64{1, 3, 6}
	for i, m := range means {
		if math.Abs(m-want[i]) > 1e-12 {
			t.Fatalf("means[%d] = %v, want %v", i, m, want[i])
		}
	}
}

func TestPSDMeansVolumeUsesDiameterMeanNotCubedBoundaryMean(t *testing.T) {
	d := &Dimension{Type: Size, Boundaries: []float64{0, 2}}
	diam := d.PSDMeans(Diameter)
	vol := d.PSDMeans(Volume)
	want := (math.Pi / 6.0) * diam[0] * diam[0] * diam[0]
	if math.Abs(vol[0]-want) > 1e-12 {
		t.Fatalf("volume mean = %v, want %v (diameter-mean basis)", vol[0], want)
	}
}

func TestBuildBoundariesEquidistant(t *testing.T) {
	bounds, warned, err := BuildBoundaries(Equidistant, 4, 0, 8)
	if err != nil {
		t.Fatalf("BuildBoundaries: %v", err)
	}
	if warned {
		t.Fatalf("unexpected floor warning")
	}
	want := []float64{0, 2, 4, 6, 8}
	for i, b := range bounds {
		if math.Abs(b-want[i]) > 1e-9 {
			t.Fatalf("bounds[%d] = %v, want %v", i, b, want[i])
		}
	}
}

func TestBuildBoundariesGeometricIncMonotone(t *testing.T) {
	bounds, _, err := BuildBoundaries(GeometricInc, 5, 1e-6, 1e-3)
	if err != nil {
		t.Fatalf("BuildBoundaries: %v", err)
	}
	for i := 1; i < len(bounds); i++ {
		if bounds[i] <= bounds[i-1] {
			t.Fatalf("bounds not strictly increasing at %d: %v", i, bounds)
		}
	}
	if math.Abs(bounds[0]-1e-6) > 1e-15 || math.Abs(bounds[len(bounds)-1]-1e-3) > 1e-12 {
		t.Fatalf("bounds do not span [min,max]: %v", bounds)
	}
}

func TestBuildBoundariesGeometricZeroMinFloorsAndWarns(t *testing.T) {
	bounds, warned, err := BuildBoundaries(GeometricInc, 3, 0, 1.0)
	if err != nil {
		t.Fatalf("BuildBoundaries: %v", err)
	}
	if !warned {
		t.Fatalf("expected floor warning when min<=0 for a log-based function")
	}
	if bounds[0] <= 0 {
		t.Fatalf("floored min should be positive, got %v", bounds[0])
	}
}

func TestBuildBoundariesManualIsRejected(t *testing.T) {
	if _, _, err := BuildBoundaries(Manual, 3, 0, 1); err == nil {
		t.Fatalf("expected error requesting explicit boundaries for MANUAL")
	}
}

func TestGridAddDimensionReplacesSameType(t *testing.T) {
	g := New()
	if err := g.AddDimension(&Dimension{Type: Size, Boundaries: []float64{0, 1, 2}}); err != nil {
		t.Fatalf("AddDimension: %v", err)
	}
	if err := g.AddDimension(&Dimension{Type: Size, Boundaries: []float64{0, 1, 2, 3}}); err != nil {
		t.Fatalf("AddDimension replace: %v", err)
	}
	if len(g.Dimensions()) != 1 {
		t.Fatalf("expected replacement, not append: got %d dimensions", len(g.Dimensions()))
	}
	if g.Dimension(Size).ClassesNumber() != 3 {
		t.Fatalf("replacement did not take effect")
	}
}

func TestGridRemoveDimension(t *testing.T) {
	g := New()
	_ = g.AddDimension(&Dimension{Type: Size, Boundaries: []float64{0, 1}})
	_ = g.AddDimension(&Dimension{Type: Color, Labels: []string{"a"}})
	g.RemoveDimension(Size)
	if g.Dimension(Size) != nil {
		t.Fatalf("Size dimension should have been removed")
	}
	if len(g.Dimensions()) != 1 {
		t.Fatalf("want 1 remaining dimension, got %d", len(g.Dimensions()))
	}
}

func TestGridSyncCompoundsIsNotUserEditableDirectly(t *testing.T) {
	g := New()
	g.SyncCompounds([]string{"A", "B", "C"})
	if g.Dimension(Compounds).ClassesNumber() != 3 {
		t.Fatalf("expected 3 compound classes")
	}
	g.SyncCompounds([]string{"A", "B"})
	if g.Dimension(Compounds).ClassesNumber() != 2 {
		t.Fatalf("resync should replace, not append")
	}
}

func TestGridShapeMatchesDimensionOrder(t *testing.T) {
	g := New()
	_ = g.AddDimension(&Dimension{Type: Compounds, Labels: []string{"A", "B"}})
	_ = g.AddDimension(&Dimension{Type: Size, Boundaries: []float64{0, 1, 2, 3}})
	shape := g.Shape()
	want := []int{2, 3}
	for i, s := range shape {
		if s != want[i] {
			t.Fatalf("shape[%d] = %d, want %d", i, s, want[i])
		}
	}
}
