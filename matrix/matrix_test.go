package matrix

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func TestInterpolationRoundTrip(t *testing.T) {
	m := New([]int{1}, 100, "", nil)
	ts := []float64{0, 1, 2.5, 5, 10}
	for i, tt := range ts {
		if err := m.SetTimePoint(tt, Slice{float64(i) * 2}); err != nil {
			t.Fatalf("SetTimePoint: %v", err)
		}
	}
	for i, tt := range ts {
		got := m.GetTimePoint(tt)
		want := float64(i) * 2
		if !almostEqual(got[0], want, 1e-12) {
			t.Errorf("t=%v: got %v want %v (no re-interpolation expected at stored points)", tt, got[0], want)
		}
	}
}

func TestLinearInterpolationBetweenPoints(t *testing.T) {
	m := New([]int{1}, 100, "", nil)
	_ = m.SetTimePoint(0, Slice{0})
	_ = m.SetTimePoint(10, Slice{100})
	got := m.GetValue(2.5, 0)
	want := 25.0 // 25% of the way from 0 to 100
	if !almostEqual(got, want, 1e-6) {
		t.Errorf("interpolated value = %v, want %v", got, want)
	}
}

func TestExtrapolationIsNearestNeighbour(t *testing.T) {
	m := New([]int{1}, 100, "", nil)
	_ = m.SetTimePoint(1, Slice{10})
	_ = m.SetTimePoint(2, Slice{20})
	if got := m.GetValue(-5, 0); !almostEqual(got, 10, 1e-12) {
		t.Errorf("before range: got %v want 10", got)
	}
	if got := m.GetValue(50, 0); !almostEqual(got, 20, 1e-12) {
		t.Errorf("after range: got %v want 20", got)
	}
}

func TestLinearInterpolationPreservesFloat64Precision(t *testing.T) {
	// Non-round endpoints chosen so a float32 round trip through the blend
	// (as blas32.Sscal/Saxpy would force) loses ~1.2e-7 relative precision,
	// well past the 1e-9 relative tolerance grid conversion requires.
	m := New([]int{1}, 100, "", nil)
	lo, hi := 0.333333333333, 0.666666666667
	_ = m.SetTimePoint(0, Slice{lo})
	_ = m.SetTimePoint(1, Slice{hi})

	got := m.GetValue(0.5, 0)
	want := (lo + hi) / 2
	if !almostEqual(got, want, 1e-9) {
		t.Errorf("interpolated value = %.15f, want %.15f (diff %.3e exceeds 1e-9)", got, want, got-want)
	}
}

func TestCacheSpillPreservesValues(t *testing.T) {
	dir := t.TempDir()
	m := New([]int{1}, 2, dir, nil)
	n := 1000
	for i := 0; i < n; i++ {
		tt := float64(i)
		if err := m.SetTimePoint(tt, Slice{math.Sin(tt)}); err != nil {
			t.Fatalf("SetTimePoint: %v", err)
		}
	}
	for i := 0; i < n; i += 37 {
		tt := float64(i)
		want := math.Sin(tt)
		got := m.GetValue(tt, 0)
		if !almostEqual(got, want, 1e-12) {
			t.Errorf("spilled read at t=%v: got %v want %v", tt, got, want)
		}
	}
}

func TestRemoveTimePointsAfter(t *testing.T) {
	m := New([]int{1}, 100, "", nil)
	for i := 0; i < 5; i++ {
		_ = m.SetTimePoint(float64(i), Slice{float64(i)})
	}
	m.RemoveTimePointsAfter(2, false)
	times := m.Times()
	if len(times) != 3 || times[len(times)-1] != 2 {
		t.Errorf("times after truncation = %v, want [0 1 2]", times)
	}
	m.RemoveTimePointsAfter(1, true)
	times = m.Times()
	if len(times) != 1 || times[0] != 0 {
		t.Errorf("times after inclusive truncation = %v, want [0]", times)
	}
}
