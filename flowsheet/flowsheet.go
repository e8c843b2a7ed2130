// Package flowsheet implements the static graph of spec §3.5: units,
// streams, ports, compounds, phases, grid and parameters, plus the
// Initialise() structural checks and propagation of spec §4.5.
//
// Units, streams and ports are stored in an ark ECS world as opaque
// entity handles (32-bit index + generation tag), the arena-storage
// pattern Design Notes §9 calls for instead of back-pointers. This is a
// direct adaptation of game.go's ecs.World + ecs.MapN component
// accessors, with UnitData/StreamData/PortData components standing in
// for Position/Velocity/Organism.
package flowsheet

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/dyssol-go/grid"
	"github.com/pthm-cable/dyssol-go/materials"
	"github.com/pthm-cable/dyssol-go/simerr"
	"github.com/pthm-cable/dyssol-go/stream"
	"github.com/pthm-cable/dyssol-go/unit"
)

// UnitData is the ECS component backing a unit entity.
type UnitData struct {
	Key   string
	Name  string
	Model unit.Unit
}

// StreamData is the ECS component backing a stream entity.
type StreamData struct {
	Key    string
	Name   string
	Stream *stream.MaterialStream
	// FromPort/ToPort are the port entities this stream connects
	// (output -> input), spec §3.5: "exactly one output port to exactly
	// one input port".
	FromPort ecs.Entity
	ToPort   ecs.Entity
}

// PortData is the ECS component backing a port entity.
type PortData struct {
	Key       string
	Unit      ecs.Entity
	Direction unit.PortDirection
	Stream    ecs.Entity // zero value until connected

	// Grid is this port's own grid, copied from its declaring unit.Port;
	// nil means the flowsheet's main grid.
	Grid *grid.Grid

	// InputStream is the per-input-port stream Initialise materialises
	// for spec §4.5(c): the connected main stream itself when Grid is
	// nil or structurally equal to the flowsheet's grid (an alias, no
	// copy), or a distinct grid-converted instance otherwise. Only set
	// on input ports.
	InputStream *stream.MaterialStream
}

// Flowsheet owns the canonical arenas for units, streams, ports,
// compounds, phases, the main grid, and the calculation sequence.
type Flowsheet struct {
	world *ecs.World

	unitMap   *ecs.Map1[UnitData]
	streamMap *ecs.Map1[StreamData]
	portMap   *ecs.Map1[PortData]

	unitsByKey   map[string]ecs.Entity
	streamsByKey map[string]ecs.Entity
	portsByKey   map[string]ecs.Entity

	unitOrder []ecs.Entity // insertion order, for deterministic iteration

	compounds []string
	phases    []stream.Phase
	Grid      *grid.Grid
	Materials *materials.DB

	cacheWindow int
	cacheDir    string

	topologyDirty bool
}

// New creates an empty flowsheet.
func New(compounds []string, phases []stream.Phase, g *grid.Grid, db *materials.DB, cacheWindow int, cacheDir string) *Flowsheet {
	world := ecs.NewWorld()
	g.SyncCompounds(compounds)
	return &Flowsheet{
		world:         world,
		unitMap:       ecs.NewMap1[UnitData](world),
		streamMap:     ecs.NewMap1[StreamData](world),
		portMap:       ecs.NewMap1[PortData](world),
		unitsByKey:    make(map[string]ecs.Entity),
		streamsByKey:  make(map[string]ecs.Entity),
		portsByKey:    make(map[string]ecs.Entity),
		compounds:     append([]string(nil), compounds...),
		phases:        append([]stream.Phase(nil), phases...),
		Grid:          g,
		Materials:     db,
		cacheWindow:   cacheWindow,
		cacheDir:      cacheDir,
		topologyDirty: true,
	}
}

// Compounds returns the ordered compound key list.
func (f *Flowsheet) Compounds() []string { return append([]string(nil), f.compounds...) }

// Phases returns the declared phases.
func (f *Flowsheet) Phases() []stream.Phase { return append([]stream.Phase(nil), f.phases...) }

// AddUnit registers a unit model under key, and declares its ports.
// Re-analysis of the calculation sequence is required afterward (marks
// topology dirty, spec §4.6).
func (f *Flowsheet) AddUnit(key, name string, model unit.Unit) error {
	if _, exists := f.unitsByKey[key]; exists {
		return fmt.Errorf("flowsheet: duplicate unit key %q", key)
	}
	e := f.unitMap.NewEntity(&UnitData{Key: key, Name: name, Model: model})
	f.unitsByKey[key] = e
	f.unitOrder = append(f.unitOrder, e)

	for _, p := range model.Ports() {
		pe := f.portMap.NewEntity(&PortData{Key: p.Key, Unit: e, Direction: p.Direction, Grid: p.Grid})
		f.portsByKey[p.Key] = pe
	}
	f.topologyDirty = true
	return nil
}

// AddStream creates a stream connecting exactly one output port to
// exactly one input port (spec §3.5).
func (f *Flowsheet) AddStream(key, name, fromPortKey, toPortKey string) error {
	if _, exists := f.streamsByKey[key]; exists {
		return fmt.Errorf("flowsheet: duplicate stream key %q", key)
	}
	fromPE, ok := f.portsByKey[fromPortKey]
	if !ok {
		return fmt.Errorf("flowsheet: unknown output port %q", fromPortKey)
	}
	toPE, ok := f.portsByKey[toPortKey]
	if !ok {
		return fmt.Errorf("flowsheet: unknown input port %q", toPortKey)
	}
	fromData := f.portMap.Get(fromPE)
	toData := f.portMap.Get(toPE)
	if fromData.Direction != unit.Output {
		return fmt.Errorf("flowsheet: port %q is not an output port", fromPortKey)
	}
	if toData.Direction != unit.Input {
		return fmt.Errorf("flowsheet: port %q is not an input port", toPortKey)
	}
	if fromData.Stream != (ecs.Entity{}) || toData.Stream != (ecs.Entity{}) {
		return fmt.Errorf("flowsheet: port already connected to a stream")
	}

	ms := stream.New(key, name, f.compounds, f.phases, f.Grid, f.cacheWindow, f.cacheDir)
	se := f.streamMap.NewEntity(&StreamData{Key: key, Name: name, Stream: ms, FromPort: fromPE, ToPort: toPE})
	f.streamsByKey[key] = se

	fromData.Stream = se
	toData.Stream = se

	if binder, ok := f.unitMap.Get(fromData.Unit).Model.(unit.StreamBinder); ok {
		binder.BindStream(fromPortKey, ms)
	}
	if binder, ok := f.unitMap.Get(toData.Unit).Model.(unit.StreamBinder); ok {
		binder.BindStream(toPortKey, ms)
	}

	f.topologyDirty = true
	return nil
}

// Unit returns a unit's model by key.
func (f *Flowsheet) Unit(key string) (unit.Unit, bool) {
	e, ok := f.unitsByKey[key]
	if !ok {
		return nil, false
	}
	return f.unitMap.Get(e).Model, true
}

// Stream returns a stream's value object by key.
func (f *Flowsheet) Stream(key string) (*stream.MaterialStream, bool) {
	e, ok := f.streamsByKey[key]
	if !ok {
		return nil, false
	}
	return f.streamMap.Get(e).Stream, true
}

// StreamPorts returns the output and input port keys a stream connects,
// in the form Flowsheet.AddStream originally received them. Used by
// persist to rebuild wiring on Load without guessing which of a unit's
// several ports a saved stream was bound to.
func (f *Flowsheet) StreamPorts(key string) (fromPortKey, toPortKey string, ok bool) {
	e, ok := f.streamsByKey[key]
	if !ok {
		return "", "", false
	}
	sd := f.streamMap.Get(e)
	return f.portMap.Get(sd.FromPort).Key, f.portMap.Get(sd.ToPort).Key, true
}

// UnitKeys returns every unit key in insertion order.
func (f *Flowsheet) UnitKeys() []string {
	out := make([]string, 0, len(f.unitOrder))
	for _, e := range f.unitOrder {
		out = append(out, f.unitMap.Get(e).Key)
	}
	return out
}

// StreamKeys returns every stream key.
func (f *Flowsheet) StreamKeys() []string {
	out := make([]string, 0, len(f.streamsByKey))
	for k := range f.streamsByKey {
		out = append(out, k)
	}
	return out
}

// Edge describes one directed unit->unit dependency induced by a stream.
type Edge struct {
	From, To   string // unit keys
	StreamKey  string
}

// Edges returns every unit->unit directed edge induced by the stream
// graph: an edge from the unit owning a stream's source port to the unit
// owning its destination port. Used by calcseq's topology analysis
// (spec §4.6 step 1).
func (f *Flowsheet) Edges() []Edge {
	var edges []Edge
	for key, se := range f.streamsByKey {
		sd := f.streamMap.Get(se)
		fromUnit := f.portMap.Get(sd.FromPort).Unit
		toUnit := f.portMap.Get(sd.ToPort).Unit
		edges = append(edges, Edge{
			From:      f.unitMap.Get(fromUnit).Key,
			To:        f.unitMap.Get(toUnit).Key,
			StreamKey: key,
		})
	}
	return edges
}

// TopologyDirty reports whether a structural mutation has occurred since
// the last calculation-sequence analysis (spec §4.6).
func (f *Flowsheet) TopologyDirty() bool { return f.topologyDirty }

// ClearTopologyDirty is called by the Simulator once it has re-analysed
// the calculation sequence.
func (f *Flowsheet) ClearTopologyDirty() { f.topologyDirty = false }

// Initialise performs the structural validity checks and propagation of
// spec §4.5: every port connected, at least one compound, at least one
// phase. Every stream is already grid/compound/phase-consistent by
// construction (AddStream builds it from the flowsheet's own lists), so
// propagation here covers the two cases that aren't: every unit's
// holdups (propagateToHoldups) and the per-input-port input-side
// streams used for grid conversion (materialiseInputSideStreams).
// Errors are returned as a single descriptive string, matching the
// spec's "errors from Initialise() are returned as a single descriptive
// string" contract — but typed as a simerr.Error with KindStructuralError
// so the Simulator can still distinguish it programmatically.
func (f *Flowsheet) Initialise() error {
	if len(f.compounds) == 0 {
		return structuralErr("flowsheet has no compounds")
	}
	if len(f.phases) == 0 {
		return structuralErr("flowsheet has no phases")
	}
	for key, pe := range f.portsByKey {
		pd := f.portMap.Get(pe)
		if pd.Stream == (ecs.Entity{}) {
			return structuralErr(fmt.Sprintf("port %q is not connected to any stream", key))
		}
	}
	// every stream key corresponds to a port-referenced stream: trivially
	// true by construction of AddStream, but re-verify the invariant.
	for key, se := range f.streamsByKey {
		sd := f.streamMap.Get(se)
		if f.portMap.Get(sd.FromPort).Stream != se || f.portMap.Get(sd.ToPort).Stream != se {
			return structuralErr(fmt.Sprintf("stream %q is not consistently referenced by its ports", key))
		}
	}
	if err := f.propagateToHoldups(); err != nil {
		return err
	}
	if err := f.materialiseInputSideStreams(); err != nil {
		return err
	}
	return nil
}

// propagateToHoldups implements spec §4.5(b) for unit holdups: every
// holdup a unit owns must carry the flowsheet's canonical compound and
// phase lists, since it was never constructed through AddStream (which
// propagates them at creation time for ordinary streams).
func (f *Flowsheet) propagateToHoldups() error {
	for _, e := range f.unitOrder {
		ud := f.unitMap.Get(e)
		for name, hs := range ud.Model.Holdups() {
			if hs == nil {
				continue
			}
			if !sameStringSlice(hs.Compounds(), f.compounds) {
				return structuralErr(fmt.Sprintf("unit %q holdup %q compounds do not match the flowsheet's compound list", ud.Key, name))
			}
			if !samePhaseSlice(hs.Phases(), f.phases) {
				return structuralErr(fmt.Sprintf("unit %q holdup %q phases do not match the flowsheet's phase list", ud.Key, name))
			}
		}
	}
	return nil
}

// materialiseInputSideStreams implements spec §4.5(c): every input port
// gets an input-side stream. A port with no grid of its own (or one
// structurally equal to the flowsheet's) gets an alias of the main
// stream; otherwise a distinct instance is built over the port's grid
// and populated from the main stream via matrix.ConvertDistribution
// (stream.MaterialStream.RebinInto; numeric axes are rebinned with
// RebinBoundaries, symbolic ones with Rebin), and the unit is rebound
// to read from the converted stream instead of the raw one.
func (f *Flowsheet) materialiseInputSideStreams() error {
	for key, pe := range f.portsByKey {
		pd := f.portMap.Get(pe)
		if pd.Direction != unit.Input || pd.Stream == (ecs.Entity{}) {
			continue
		}
		mainStream := f.streamMap.Get(pd.Stream).Stream
		if pd.Grid == nil || sameGridSchema(pd.Grid, f.Grid) {
			pd.InputStream = mainStream
			continue
		}
		ins := stream.New(key+".input-side", key+".input-side", f.compounds, f.phases, pd.Grid, f.cacheWindow, f.cacheDir)
		for _, t := range mainStream.TimePoints() {
			if err := mainStream.RebinInto(ins, t); err != nil {
				return structuralErr(fmt.Sprintf("port %q grid conversion: %v", key, err))
			}
		}
		pd.InputStream = ins
		if binder, ok := f.unitMap.Get(pd.Unit).Model.(unit.StreamBinder); ok {
			binder.BindStream(key, ins)
		}
	}
	return nil
}

// SyncInputSide re-runs grid conversion at time t for every input port
// whose input-side stream is distinct from its main stream, keeping it
// current after the upstream unit writes fresh data (spec §4.5(c):
// "automatic rebinning occurs on each data transfer"). Called by the
// Simulator before every unit's Simulate call, in every iteration.
func (f *Flowsheet) SyncInputSide(t float64) error {
	for key, pe := range f.portsByKey {
		pd := f.portMap.Get(pe)
		if pd.Direction != unit.Input || pd.Stream == (ecs.Entity{}) || pd.InputStream == nil {
			continue
		}
		mainStream := f.streamMap.Get(pd.Stream).Stream
		if pd.InputStream == mainStream {
			continue
		}
		if err := mainStream.RebinInto(pd.InputStream, t); err != nil {
			return structuralErr(fmt.Sprintf("port %q grid conversion at t=%v: %v", key, t, err))
		}
	}
	return nil
}

func sameGridSchema(a, b *grid.Grid) bool {
	if a == b {
		return true
	}
	da, db := a.NonCompoundDimensions(), b.NonCompoundDimensions()
	if len(da) != len(db) {
		return false
	}
	for i := range da {
		if da[i].Type != db[i].Type || da[i].ClassesNumber() != db[i].ClassesNumber() {
			return false
		}
		if da[i].IsSymbolic() != db[i].IsSymbolic() {
			return false
		}
		if da[i].IsSymbolic() {
			for j := range da[i].Labels {
				if da[i].Labels[j] != db[i].Labels[j] {
					return false
				}
			}
			continue
		}
		for j := range da[i].Boundaries {
			if da[i].Boundaries[j] != db[i].Boundaries[j] {
				return false
			}
		}
	}
	return true
}

func sameStringSlice(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func samePhaseSlice(a, b []stream.Phase) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func structuralErr(msg string) error {
	return simerr.New(simerr.KindStructuralError, msg, nil)
}

// World exposes the underlying ECS world for packages that need direct
// entity-level access (e.g. the simulator's unit-order resolution).
func (f *Flowsheet) World() *ecs.World { return f.world }
