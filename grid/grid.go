// Package grid describes the discretised axes shared by every material
// stream and holdup: particle size, porosity, composition, and
// user-defined distributions. It has no dependency on any sibling
// package — flowsheet, stream and matrix all build on top of it.
package grid

import (
	"fmt"
	"math"
)

// DistributionType enumerates the fixed set of distributed-parameter axes
// a MultidimensionalGrid may carry. At most one dimension per type.
type DistributionType int

const (
	Compounds DistributionType = iota
	Size
	PartPorosity
	FormFactor
	Color
	UserDefined01
	UserDefined02
	UserDefined03
	UserDefined04
	UserDefined05
	UserDefined06
	UserDefined07
	UserDefined08
	UserDefined09
	UserDefined10
)

func (t DistributionType) String() string {
	switch t {
	case Compounds:
		return "COMPOUNDS"
	case Size:
		return "SIZE"
	case PartPorosity:
		return "PART_POROSITY"
	case FormFactor:
		return "FORM_FACTOR"
	case Color:
		return "COLOR"
	default:
		if t >= UserDefined01 && t <= UserDefined10 {
			return fmt.Sprintf("USER_DEFINED_%02d", int(t-UserDefined01)+1)
		}
		return "UNKNOWN"
	}
}

// Function selects the generator used to build a numeric dimension's
// boundaries from (n, min, max).
type Function int

const (
	Manual Function = iota
	Equidistant
	GeometricInc
	GeometricDec
	LogarithmicInc
	LogarithmicDec
)

// PSDBasis selects the interpretation used when computing class means for
// a SIZE dimension: the diameter of the nominal particle, or the volume
// of the nominal particle (computed from the diameter mean, not the mean
// of cubed boundaries — see spec §4.1).
type PSDBasis int

const (
	Diameter PSDBasis = iota
	Volume
)

// Dimension is a single discretised axis: either numeric (strictly
// increasing boundaries) or symbolic (an ordered list of labels).
type Dimension struct {
	Type       DistributionType
	Boundaries []float64 // numeric dimensions: n+1 strictly increasing values
	Labels     []string  // symbolic dimensions: one label per class
}

// IsSymbolic reports whether this dimension is label-indexed.
func (d *Dimension) IsSymbolic() bool { return d.Labels != nil }

// ClassesNumber returns n for a numeric grid of n+1 boundaries, or the
// label count for a symbolic grid.
func (d *Dimension) ClassesNumber() int {
	if d.IsSymbolic() {
		return len(d.Labels)
	}
	if len(d.Boundaries) == 0 {
		return 0
	}
	return len(d.Boundaries) - 1
}

// Validate checks invariant (i) of spec §3.2: strictly monotone boundaries
// with bi >= 0 for physical axes (everything but a user-defined axis may
// carry negative boundaries; here we require non-negativity uniformly
// since every built-in distribution type in this engine is physical).
func (d *Dimension) Validate() error {
	if d.IsSymbolic() {
		if len(d.Labels) == 0 {
			return fmt.Errorf("grid: dimension %s has no labels", d.Type)
		}
		return nil
	}
	if len(d.Boundaries) < 2 {
		return fmt.Errorf("grid: dimension %s needs at least 2 boundaries", d.Type)
	}
	for i, b := range d.Boundaries {
		if b < 0 {
			return fmt.Errorf("grid: dimension %s boundary %d is negative", d.Type, i)
		}
		if i > 0 && b <= d.Boundaries[i-1] {
			return fmt.Errorf("grid: dimension %s boundaries not strictly increasing at %d", d.Type, i)
		}
	}
	return nil
}

// ClassesMeans returns the arithmetic centre of each [bi, bi+1] interval.
func (d *Dimension) ClassesMeans() []float64 {
	n := d.ClassesNumber()
	means := make([]float64, n)
	for i := 0; i < n; i++ {
		means[i] = 0.5 * (d.Boundaries[i] + d.Boundaries[i+1])
	}
	return means
}

// PSDMeans returns per-class means for a SIZE dimension in either the
// diameter or volume basis. Volume means are (pi/6)*d^3 of the diameter
// mean, never the mean of cubed boundaries, per spec §4.1.
func (d *Dimension) PSDMeans(basis PSDBasis) []float64 {
	diam := d.ClassesMeans()
	if basis == Diameter {
		return diam
	}
	vol := make([]float64, len(diam))
	for i, dm := range diam {
		vol[i] = (math.Pi / 6.0) * dm * dm * dm
	}
	return vol
}

// BuildBoundaries constructs n+1 boundaries for a numeric dimension using
// the given generator function. min=0 combined with a geometric or
// logarithmic function is an error condition (undefined log of zero);
// per spec §4.1 this substitutes a small positive floor max*1e-6 and the
// caller is told a warning should be surfaced (the warnedFloor return).
func BuildBoundaries(fn Function, n int, min, max float64) (bounds []float64, warnedFloor bool, err error) {
	if n <= 0 {
		return nil, false, fmt.Errorf("grid: n must be positive, got %d", n)
	}
	if max <= min {
		return nil, false, fmt.Errorf("grid: max (%v) must exceed min (%v)", max, min)
	}

	needsLog := fn == GeometricInc || fn == GeometricDec || fn == LogarithmicInc || fn == LogarithmicDec
	if needsLog && min <= 0 {
		min = max * 1e-6
		warnedFloor = true
	}

	bounds = make([]float64, n+1)
	switch fn {
	case Manual:
		return nil, false, fmt.Errorf("grid: MANUAL function requires explicit boundaries, not generation")
	case Equidistant:
		step := (max - min) / float64(n)
		for i := 0; i <= n; i++ {
			bounds[i] = min + step*float64(i)
		}
	case GeometricInc:
		ratio := math.Pow(max/min, 1.0/float64(n))
		bounds[0] = min
		for i := 1; i <= n; i++ {
			bounds[i] = bounds[i-1] * ratio
		}
	case GeometricDec:
		// mirror of GeometricInc: smaller classes at the top of the range.
		ratio := math.Pow(max/min, 1.0/float64(n))
		fwd := make([]float64, n+1)
		fwd[0] = min
		for i := 1; i <= n; i++ {
			fwd[i] = fwd[i-1] * ratio
		}
		span := fwd[n] - fwd[0]
		for i := 0; i <= n; i++ {
			bounds[i] = min + (span - (fwd[n-i] - fwd[0]))
		}
	case LogarithmicInc:
		logMin, logMax := math.Log10(min), math.Log10(max)
		step := (logMax - logMin) / float64(n)
		for i := 0; i <= n; i++ {
			bounds[i] = math.Pow(10, logMin+step*float64(i))
		}
	case LogarithmicDec:
		logMin, logMax := math.Log10(min), math.Log10(max)
		step := (logMax - logMin) / float64(n)
		for i := 0; i <= n; i++ {
			exp := logMax - step*float64(i)
			// reflect so bounds run from min to max with class widths
			// shrinking toward max
			bounds[i] = min + max - math.Pow(10, exp)
		}
	default:
		return nil, false, fmt.Errorf("grid: unknown function %d", fn)
	}
	return bounds, warnedFloor, nil
}

// Grid is an ordered collection of dimensions, each tagged with a
// distribution type, with at most one dimension per type.
type Grid struct {
	dims  []*Dimension
	byTyp map[DistributionType]*Dimension
}

// New returns an empty grid.
func New() *Grid {
	return &Grid{byTyp: make(map[DistributionType]*Dimension)}
}

// AddDimension adds or replaces the dimension for its type.
func (g *Grid) AddDimension(d *Dimension) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := g.byTyp[d.Type]; !exists {
		g.dims = append(g.dims, d)
	} else {
		for i, existing := range g.dims {
			if existing.Type == d.Type {
				g.dims[i] = d
			}
		}
	}
	g.byTyp[d.Type] = d
	return nil
}

// RemoveDimension drops the dimension of the given type, if present.
func (g *Grid) RemoveDimension(t DistributionType) {
	if _, ok := g.byTyp[t]; !ok {
		return
	}
	delete(g.byTyp, t)
	out := g.dims[:0]
	for _, d := range g.dims {
		if d.Type != t {
			out = append(out, d)
		}
	}
	g.dims = out
}

// Dimension returns the dimension of the given type, or nil.
func (g *Grid) Dimension(t DistributionType) *Dimension { return g.byTyp[t] }

// Dimensions returns all dimensions in insertion order.
func (g *Grid) Dimensions() []*Dimension { return g.dims }

// SyncCompounds rebuilds the COMPOUNDS dimension to mirror the
// flowsheet's ordered compound list (invariant iii of spec §3.2): this
// dimension is never user-editable directly.
func (g *Grid) SyncCompounds(compoundKeys []string) {
	_ = g.AddDimension(&Dimension{Type: Compounds, Labels: append([]string(nil), compoundKeys...)})
}

// NonCompoundDimensions returns every dimension except COMPOUNDS, in
// insertion order — the axes a solid distribution tensor is shaped over.
func (g *Grid) NonCompoundDimensions() []*Dimension {
	var out []*Dimension
	for _, d := range g.dims {
		if d.Type == Compounds {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Shape returns the class counts of every dimension, in insertion order —
// the tensor shape every DistributedMatrix slice over this grid must have.
func (g *Grid) Shape() []int {
	shape := make([]int, len(g.dims))
	for i, d := range g.dims {
		shape[i] = d.ClassesNumber()
	}
	return shape
}
