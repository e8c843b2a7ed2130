// Package unit defines the Unit (model) contract the engine consumes:
// Initialise/Simulate/Finalise, ports, and parameters (spec §4.4).
//
// Units and parameters are capability sets rather than a class hierarchy
// (Design Notes §9): a Unit is any type implementing this interface, and
// a parameter is a tagged variant (ParameterKind) rather than a distinct
// Go type per kind.
package unit

import (
	"github.com/pthm-cable/dyssol-go/grid"
	"github.com/pthm-cable/dyssol-go/stream"
)

// PortDirection distinguishes input from output ports. This core only
// models material ports (spec §4.4: "typed as material-only in this core").
type PortDirection int

const (
	Input PortDirection = iota
	Output
)

// Port is a named connection point on a Unit, bound to exactly one
// Stream key once the flowsheet is wired (spec §3.5).
type Port struct {
	Key       string
	Name      string
	Direction PortDirection
	StreamKey string // empty until connected

	// Grid is this port's own distributed-parameter grid, if it differs
	// from the flowsheet's main grid. Nil means the port uses the
	// flowsheet's grid directly. When set on an input port, Initialise
	// materialises a distinct input-side stream and keeps it rebinned
	// to this grid on every data transfer (spec §4.5(c)).
	Grid *grid.Grid
}

// Unit is the black-box behaviour contract the engine drives. A
// dynamic unit's Simulate(t1, t2) is expected to be idempotent with
// respect to its inputs (spec §4.4): calling it again with the same
// input data over the same interval must reproduce the same outputs.
type Unit interface {
	// Key returns this unit's persistent opaque identifier.
	Key() string

	// Initialise prepares internal state for time t0. Called exactly
	// once per simulation, before any Simulate call.
	Initialise(t0 float64) error

	// Simulate advances the unit from t1 to t2, reading its input
	// streams and writing its output streams and holdups over the
	// interval. A non-empty returned error aborts the run (UnitError).
	Simulate(t1, t2 float64) error

	// Finalise releases transient resources at the end of a run.
	Finalise()

	// Ports returns this unit's declared ports, in a stable order.
	Ports() []*Port

	// Holdups returns this unit's internal holdup streams, keyed by
	// holdup name.
	Holdups() map[string]*stream.MaterialStream

	// Parameters returns this unit's parameter manager.
	Parameters() *ParameterManager
}

// StreamBinder is an optional capability (Design Notes §9: capability
// sets, not class hierarchies) a Unit implements when it needs a direct
// reference to the MaterialStream connected to one of its ports.
// Flowsheet.AddStream calls BindStream on both endpoints' models once a
// connection is made, letting Simulate read/write the stream directly
// instead of re-resolving it by key on every call.
type StreamBinder interface {
	BindStream(portKey string, s *stream.MaterialStream)
}

// ParameterKind tags the variant a Parameter carries, per spec §4.4's
// enumeration (constants, time-dependent, strings, checkboxes,
// combo/group, compound references, nested solver references,
// reactions, lists).
type ParameterKind int

const (
	KindConstant ParameterKind = iota
	KindTimeDependent
	KindString
	KindCheckbox
	KindCombo
	KindGroup
	KindCompoundRef
	KindSolverRef
	KindReaction
	KindList
)

// Parameter is a single named, typed unit parameter. Exactly one of the
// typed fields is meaningful, selected by Kind — the tagged-variant shape
// Design Notes §9 calls for instead of a type hierarchy.
type Parameter struct {
	Key  string
	Name string
	Kind ParameterKind

	Value     float64              // KindConstant
	TimeCurve map[float64]float64  // KindTimeDependent: t -> value
	Str       string               // KindString
	Checked   bool                 // KindCheckbox
	Selected  string               // KindCombo
	Group     map[string]*Parameter // KindGroup
	Compound  string               // KindCompoundRef
	SolverRef string               // KindSolverRef
	List      []*Parameter         // KindList
}

// AtTime evaluates a KindTimeDependent parameter at t via linear
// interpolation between the two bracketing keys (falling back to Value
// for KindConstant).
func (p *Parameter) AtTime(t float64) float64 {
	if p.Kind != KindTimeDependent || len(p.TimeCurve) == 0 {
		return p.Value
	}
	var times []float64
	for k := range p.TimeCurve {
		times = append(times, k)
	}
	sortFloats(times)
	if t <= times[0] {
		return p.TimeCurve[times[0]]
	}
	if t >= times[len(times)-1] {
		return p.TimeCurve[times[len(times)-1]]
	}
	for i := 1; i < len(times); i++ {
		if t <= times[i] {
			t0, t1 := times[i-1], times[i]
			v0, v1 := p.TimeCurve[t0], p.TimeCurve[t1]
			alpha := (t1 - t) / (t1 - t0)
			return alpha*v0 + (1-alpha)*v1
		}
	}
	return p.Value
}

func sortFloats(xs []float64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// ParameterManager is the named registry of a unit's parameters
// (spec §4.4). Parameters are read-only during simulation: a Unit reads
// them via Get but the manager exposes no setter once a simulation run
// has started (enforced by the caller, not this type).
type ParameterManager struct {
	byKey map[string]*Parameter
	order []string
}

func NewParameterManager() *ParameterManager {
	return &ParameterManager{byKey: make(map[string]*Parameter)}
}

func (pm *ParameterManager) Add(p *Parameter) {
	if _, exists := pm.byKey[p.Key]; !exists {
		pm.order = append(pm.order, p.Key)
	}
	pm.byKey[p.Key] = p
}

func (pm *ParameterManager) Get(key string) (*Parameter, bool) {
	p, ok := pm.byKey[key]
	return p, ok
}

func (pm *ParameterManager) All() []*Parameter {
	out := make([]*Parameter, 0, len(pm.order))
	for _, k := range pm.order {
		out = append(out, pm.byKey[k])
	}
	return out
}
