// Package matrix implements DistributedMatrix: a time-indexed,
// multidimensional tensor with linear interpolation over an arbitrary
// (non-uniform) time grid and a disk-backed LRU cache, as described in
// spec §3.3 and §4.2.
//
// Time-point storage and eviction follow the same split-phase shape as
// shadowmap.go's texture cache (build in RAM, spill the least recently
// touched blocks to disk, fall back to memory only on cache error) —
// see cache.go.
package matrix

import (
	"fmt"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/blas/blas64"

	"github.com/pthm-cable/dyssol-go/grid"
)

// Slice is one time point's dense tensor, stored flattened in row-major
// order over the matrix's declared shape.
type Slice []float64

// DistributedMatrix stores one Slice per time point over a declared
// tensor shape, with linear interpolation for reads at arbitrary t and
// nearest-neighbour extrapolation outside the stored range.
type DistributedMatrix struct {
	shape []int
	size  int // product of shape

	times  []float64 // sorted ascending
	cache  *blockCache

	log *slog.Logger
}

// New creates a matrix over the given tensor shape (e.g. grid.Grid.Shape()
// for a distribution, or a length-1 shape for a scalar overall property).
// cacheWindow is the number of most-recently-used time blocks kept in RAM
// (spec §4.2); cacheDir is where spilled blocks are written and read back —
// an empty cacheDir or a write-protected one falls back to in-memory
// storage with a single warning (spec §4.2, CacheError recovery).
func New(shape []int, cacheWindow int, cacheDir string, log *slog.Logger) *DistributedMatrix {
	size := 1
	for _, s := range shape {
		size *= s
	}
	if log == nil {
		log = slog.Default()
	}
	return &DistributedMatrix{
		shape: append([]int(nil), shape...),
		size:  size,
		cache: newBlockCache(cacheWindow, cacheDir, log),
		log:   log,
	}
}

func (m *DistributedMatrix) Shape() []int { return m.shape }

// insertIndex returns the position where t sits (or would sit) in the
// sorted time list, and whether t is an exact match.
func (m *DistributedMatrix) insertIndex(t float64) (idx int, exact bool) {
	idx = sort.SearchFloat64s(m.times, t)
	if idx < len(m.times) && m.times[idx] == t {
		return idx, true
	}
	return idx, false
}

// SetTimePoint stores (or overwrites) the slice at time t. Insertion of a
// new time point is O(log n) for the search; the underlying slice append
// is O(n) only for new-point inserts that are not at the end, matching
// the amortised cost the spec's "O(log n) insertion" targets for the
// common append-at-tail simulation pattern.
func (m *DistributedMatrix) SetTimePoint(t float64, s Slice) error {
	if len(s) != m.size {
		return fmt.Errorf("matrix: slice length %d does not match shape size %d", len(s), m.size)
	}
	idx, exact := m.insertIndex(t)
	cp := append(Slice(nil), s...)
	if exact {
		m.cache.put(idx, cp)
		return nil
	}
	m.times = append(m.times, 0)
	copy(m.times[idx+1:], m.times[idx:])
	m.times[idx] = t
	m.cache.insertAt(idx, cp)
	return nil
}

// SetValue sets a single element of the slice at time t, reading-modifying-
// writing the stored slice (inserting t if absent, copied from the nearest
// neighbour so unrelated coordinates keep their last known value).
func (m *DistributedMatrix) SetValue(t float64, flatCoord int, v float64) error {
	if flatCoord < 0 || flatCoord >= m.size {
		return fmt.Errorf("matrix: coordinate %d out of range [0,%d)", flatCoord, m.size)
	}
	idx, exact := m.insertIndex(t)
	if exact {
		s := m.cache.get(idx)
		s[flatCoord] = v
		m.cache.put(idx, s)
		return nil
	}
	var base Slice
	if len(m.times) > 0 {
		base = append(Slice(nil), m.GetTimePoint(t)...)
	} else {
		base = make(Slice, m.size)
	}
	base[flatCoord] = v
	return m.SetTimePoint(t, base)
}

// GetValue reads a single element at time t via the same interpolation
// rule as GetTimePoint.
func (m *DistributedMatrix) GetValue(t float64, flatCoord int) float64 {
	return m.GetTimePoint(t)[flatCoord]
}

// GetTimePoint reads the full slice at time t. For t inside [t_min,t_max]
// between two stored points, linear interpolation is used; for an exact
// stored point the stored value is returned unchanged (no re-interpolation,
// spec §8 property 7); outside the stored range the boundary slice is
// returned (nearest-neighbour extrapolation).
func (m *DistributedMatrix) GetTimePoint(t float64) Slice {
	n := len(m.times)
	if n == 0 {
		return make(Slice, m.size)
	}
	idx, exact := m.insertIndex(t)
	if exact {
		return append(Slice(nil), m.cache.get(idx)...)
	}
	if idx == 0 {
		return append(Slice(nil), m.cache.get(0)...)
	}
	if idx >= n {
		return append(Slice(nil), m.cache.get(n-1)...)
	}
	t0, t1 := m.times[idx-1], m.times[idx]
	s0, s1 := m.cache.get(idx-1), m.cache.get(idx)
	alpha := (t1 - t) / (t1 - t0)
	return blend(s0, s1, alpha)
}

// blend computes alpha*s0 + (1-alpha)*s1 using blas64's vectorised AXPY
// combination rather than a hand-rolled scalar loop, mirroring
// flowfield.go's blas-accelerated flow-field blend but kept float64-native:
// interpolated reads feed convergence comparisons against absTol/relTol
// (down to 1e-9 relative for grid-conversion mass conservation), so the
// ~1.2e-7 relative error a float32 round trip would add here is not
// acceptable.
func blend(s0, s1 Slice, alpha float64) Slice {
	n := len(s0)
	y := append(Slice(nil), s1...) // y <- s1
	x := append(Slice(nil), s0...) // x <- s0
	impl := blas64.Implementation()
	impl.Dscal(n, 1-alpha, y, 1)     // y <- (1-alpha)*s1
	impl.Daxpy(n, alpha, x, 1, y, 1) // y <- alpha*s0 + y
	return Slice(y)
}

// Times returns the sorted stored time points.
func (m *DistributedMatrix) Times() []float64 { return append([]float64(nil), m.times...) }

// RemoveTimePointsAfter removes every stored time point in (t, +inf), or
// [t, +inf) when inclusive is true.
func (m *DistributedMatrix) RemoveTimePointsAfter(t float64, inclusive bool) {
	idx := sort.SearchFloat64s(m.times, t)
	if inclusive {
		// idx already points at the first time >= t
	} else {
		for idx < len(m.times) && m.times[idx] == t {
			idx++
		}
	}
	m.cache.truncateFrom(idx)
	m.times = m.times[:idx]
}

// RemoveRange removes every stored time point in the half-open range
// [t1, t2).
func (m *DistributedMatrix) RemoveRange(t1, t2 float64) {
	lo := sort.SearchFloat64s(m.times, t1)
	hi := sort.SearchFloat64s(m.times, t2)
	if lo >= hi {
		return
	}
	m.cache.removeRange(lo, hi)
	m.times = append(m.times[:lo], m.times[hi:]...)
}

// CompressTimePoints removes redundant time points in [t1,t2]: a point is
// dropped when it is linearly representable (within ratio tolerance)
// from its neighbours, implementing the saveTimeStep reduction of
// spec §4.7.7 at the matrix level.
func (m *DistributedMatrix) CompressTimePoints(t1, t2, tolerance float64) {
	lo := sort.SearchFloat64s(m.times, t1)
	hi := sort.SearchFloat64s(m.times, t2)
	if hi-lo < 3 {
		return
	}
	keep := make([]bool, hi-lo)
	keep[0] = true
	keep[len(keep)-1] = true
	for i := lo + 1; i < hi-1; i++ {
		t0, t, t1x := m.times[i-1], m.times[i], m.times[i+1]
		if t1x == t0 {
			keep[i-lo] = true
			continue
		}
		alpha := (t1x - t) / (t1x - t0)
		s0, s, s1x := m.cache.get(i-1), m.cache.get(i), m.cache.get(i+1)
		interp := blend(s0, s1x, alpha)
		if !withinTolerance(s, interp, tolerance) {
			keep[i-lo] = true
		}
	}
	var newTimes []float64
	var drop []int
	for i := lo; i < hi; i++ {
		if keep[i-lo] {
			newTimes = append(newTimes, m.times[i])
		} else {
			drop = append(drop, i)
		}
	}
	if len(drop) == 0 {
		return
	}
	m.cache.removeIndices(drop)
	m.times = append(append(append([]float64(nil), m.times[:lo]...), newTimes...), m.times[hi:]...)
}

func withinTolerance(a, b Slice, tol float64) bool {
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		ref := a[i]
		if ref < 0 {
			ref = -ref
		}
		if d > tol*(1+ref) {
			return false
		}
	}
	return true
}

// Rebin rebuilds storage after a grid change along one axis: addedAt
// classes (if non-empty) get zero; removedAt classes have their mass
// redistributed uniformly across the remaining classes of the same axis,
// per spec §4.2. newShape is the tensor's new shape.
//
// This is a structural operation the Simulator invokes when a unit's
// input-side stream requires rebinning to a different grid (spec §4.5).
func (m *DistributedMatrix) Rebin(axis int, removedClassIdx []int, insertedClassIdx []int, newShape []int) {
	newSize := 1
	for _, s := range newShape {
		newSize *= s
	}
	for i := range m.times {
		old := m.cache.get(i)
		nw := rebinSlice(old, m.shape, axis, removedClassIdx, insertedClassIdx, newShape)
		m.cache.put(i, nw)
	}
	m.shape = append([]int(nil), newShape...)
	m.size = newSize
}

// rebinSlice performs mass-conserving redistribution for a single axis:
// classes in removedClassIdx have their mass spread evenly over the
// remaining classes of axis; classes in insertedClassIdx are zero-filled.
// See spec §9 Open Question: mass-weighted (not number-weighted) chosen.
func rebinSlice(s Slice, shape []int, axis int, removed, inserted []int, newShape []int) Slice {
	out := make(Slice, productOf(newShape))
	removedSet := toSet(removed)
	insertedSet := toSet(inserted)
	// new-axis positions holding surviving old classes, in order
	var survivors []int
	for c := 0; c < newShape[axis]; c++ {
		if !insertedSet[c] {
			survivors = append(survivors, c)
		}
	}
	remaining := len(survivors)

	strideOld := strides(shape)
	strideNew := strides(newShape)

	// Walk every coordinate of the old tensor; skip removed classes after
	// redistributing their mass uniformly to all surviving classes.
	coords := make([]int, len(shape))
	total := len(s)
	for flat := 0; flat < total; flat++ {
		unflatten(flat, shape, strideOld, coords)
		if removedSet[coords[axis]] {
			mass := s[flat]
			if mass == 0 || remaining == 0 {
				continue
			}
			share := mass / float64(remaining)
			newCoords := append([]int(nil), coords...)
			for _, c := range survivors {
				newCoords[axis] = c
				out[flattenIdx(newCoords, strideNew)] += share
			}
			continue
		}
		newCoords := append([]int(nil), coords...)
		newCoords[axis] = survivors[mapSurvivingIndex(coords[axis], removedSet)]
		out[flattenIdx(newCoords, strideNew)] += s[flat]
	}
	return out
}

// RebinBoundaries rebuilds storage along axis using overlap-weighted
// linear redistribution between oldBounds and newBounds, per spec §3.3:
// "resized boundaries trigger linear rebinning that conserves the first
// moment along that axis". Unlike Rebin, which adds or removes whole
// classes at fixed boundaries, this moves the boundaries themselves —
// the mechanism behind a per-input-port grid conversion (spec §4.5(c))
// when two connected units discretise the same physical axis
// differently (e.g. 20 vs 50 particle-size classes over the same span).
func (m *DistributedMatrix) RebinBoundaries(axis int, oldBounds, newBounds []float64, newShape []int) {
	newSize := productOf(newShape)
	for i := range m.times {
		old := m.cache.get(i)
		nw := rebinBoundariesSlice(old, m.shape, axis, oldBounds, newBounds, newShape)
		m.cache.put(i, nw)
	}
	m.shape = append([]int(nil), newShape...)
	m.size = newSize
}

// rebinBoundariesSlice redistributes one axis's values from oldBounds to
// newBounds by overlap fraction: each new class [lo,hi) receives, from
// every old class it overlaps, the fraction of the old class's span
// covered by the new class, times the old class's value. This conserves
// the axis's total exactly and its first moment closely for grids fine
// enough relative to the underlying distribution's shape.
func rebinBoundariesSlice(s Slice, shape []int, axis int, oldBounds, newBounds []float64, newShape []int) Slice {
	out := make(Slice, productOf(newShape))
	strideOld := strides(shape)
	strideNew := strides(newShape)
	coords := make([]int, len(shape))
	total := len(s)
	for flat := 0; flat < total; flat++ {
		unflatten(flat, shape, strideOld, coords)
		value := s[flat]
		if value == 0 {
			continue
		}
		oi := coords[axis]
		lo, hi := oldBounds[oi], oldBounds[oi+1]
		span := hi - lo
		if span <= 0 {
			continue
		}
		newCoords := append([]int(nil), coords...)
		for ni := 0; ni < newShape[axis]; ni++ {
			ov := overlapLen(lo, hi, newBounds[ni], newBounds[ni+1])
			if ov <= 0 {
				continue
			}
			newCoords[axis] = ni
			out[flattenIdx(newCoords, strideNew)] += value * ov / span
		}
	}
	return out
}

func overlapLen(lo1, hi1, lo2, hi2 float64) float64 {
	lo := lo1
	if lo2 > lo {
		lo = lo2
	}
	hi := hi1
	if hi2 < hi {
		hi = hi2
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// ConvertDistribution redistributes a single distribution slice from the
// axes described by srcDims to the axes described by dstDims, axis by
// axis: numeric axes use RebinBoundaries' overlap-weighted linear
// rebinning, symbolic axes use Rebin's class add/remove redistribution.
// srcDims and dstDims must declare the same dimension types in the same
// order (both exclude COMPOUNDS, which solid distributions never carry
// as an axis). This is the per-input-port grid-conversion step of spec
// §4.5(c), applied once per data transfer.
func ConvertDistribution(s Slice, srcDims, dstDims []*grid.Dimension) (Slice, error) {
	if len(srcDims) != len(dstDims) {
		return nil, fmt.Errorf("matrix: grid conversion axis count mismatch: %d vs %d", len(srcDims), len(dstDims))
	}
	shape := make([]int, len(srcDims))
	for i, d := range srcDims {
		shape[i] = d.ClassesNumber()
	}
	scratch := New(shape, 0, "", nil)
	if err := scratch.SetTimePoint(0, s); err != nil {
		return nil, err
	}
	for axis := range srcDims {
		sd, dd := srcDims[axis], dstDims[axis]
		if sd.Type != dd.Type {
			return nil, fmt.Errorf("matrix: grid conversion axis %d type mismatch: %s vs %s", axis, sd.Type, dd.Type)
		}
		if sd.ClassesNumber() == dd.ClassesNumber() && sameBoundsOrLabels(sd, dd) {
			continue
		}
		newShape := append([]int(nil), scratch.Shape()...)
		newShape[axis] = dd.ClassesNumber()
		if sd.IsSymbolic() {
			removed, inserted := labelDiff(sd.Labels, dd.Labels)
			scratch.Rebin(axis, removed, inserted, newShape)
		} else {
			scratch.RebinBoundaries(axis, sd.Boundaries, dd.Boundaries, newShape)
		}
	}
	return scratch.GetTimePoint(0), nil
}

func sameBoundsOrLabels(a, b *grid.Dimension) bool {
	if a.IsSymbolic() != b.IsSymbolic() {
		return false
	}
	if a.IsSymbolic() {
		if len(a.Labels) != len(b.Labels) {
			return false
		}
		for i := range a.Labels {
			if a.Labels[i] != b.Labels[i] {
				return false
			}
		}
		return true
	}
	if len(a.Boundaries) != len(b.Boundaries) {
		return false
	}
	for i := range a.Boundaries {
		if a.Boundaries[i] != b.Boundaries[i] {
			return false
		}
	}
	return true
}

func labelDiff(oldLabels, newLabels []string) (removed, inserted []int) {
	newSet := make(map[string]bool, len(newLabels))
	for _, l := range newLabels {
		newSet[l] = true
	}
	oldSet := make(map[string]bool, len(oldLabels))
	for _, l := range oldLabels {
		oldSet[l] = true
	}
	for i, l := range oldLabels {
		if !newSet[l] {
			removed = append(removed, i)
		}
	}
	for i, l := range newLabels {
		if !oldSet[l] {
			inserted = append(inserted, i)
		}
	}
	return removed, inserted
}

func mapSurvivingIndex(idx int, removed map[int]bool) int {
	shift := 0
	for i := 0; i < idx; i++ {
		if removed[i] {
			shift++
		}
	}
	return idx - shift
}

func toSet(xs []int) map[int]bool {
	m := make(map[int]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}

func productOf(shape []int) int {
	p := 1
	for _, s := range shape {
		p *= s
	}
	return p
}

func strides(shape []int) []int {
	st := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= shape[i]
	}
	return st
}

func unflatten(flat int, shape, stride []int, coords []int) {
	for i := range shape {
		coords[i] = (flat / stride[i]) % shape[i]
	}
}

func flattenIdx(coords, stride []int) int {
	idx := 0
	for i, c := range coords {
		idx += c * stride[i]
	}
	return idx
}
