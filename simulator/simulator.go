// Package simulator implements the orchestrator of spec §4.7: it
// advances simulation time in windows, drives each calculation-sequence
// partition to convergence on its tear streams, and adapts the window
// size. Grounded on game.go's main tick loop (its Tick method) plus
// parallel.go's worker-pool phasing, generalised from per-frame
// organism updates to per-window partition updates.
package simulator

import (
	"github.com/pthm-cable/dyssol-go/accel"
	"github.com/pthm-cable/dyssol-go/calcseq"
	"github.com/pthm-cable/dyssol-go/engine"
	"github.com/pthm-cable/dyssol-go/extrapolate"
	"github.com/pthm-cable/dyssol-go/flowsheet"
	"github.com/pthm-cable/dyssol-go/params"
	"github.com/pthm-cable/dyssol-go/simerr"
)

// tearHistory keeps the three most recent converged-window end values
// for every component of one tear stream's full state vector (spec
// §4.7.3: mass, temperature, pressure, phase fractions, phase
// compositions, solid distributions — not just mass), used by the
// extrapolator (spec §4.7.1's "per-partition tear-stream snapshots for
// three successive iterations"). The accelerators keep their own
// per-iteration history in accel.State.
type tearHistory struct {
	anchors [][]extrapolate.Anchor // per vector component, oldest first, max 3
}

func (h *tearHistory) push(t float64, v []float64) {
	if h.anchors == nil {
		h.anchors = make([][]extrapolate.Anchor, len(v))
	}
	for i, vi := range v {
		h.anchors[i] = append(h.anchors[i], extrapolate.Anchor{T: t, V: vi})
		if len(h.anchors[i]) > 3 {
			h.anchors[i] = h.anchors[i][len(h.anchors[i])-3:]
		}
	}
}

// Simulator drives a Flowsheet through spec §4.7's main loop.
type Simulator struct {
	FS     *flowsheet.Flowsheet
	Params *params.Parameters
	Ctx    *engine.Context

	seq *calcseq.Sequence

	tearHistories map[string]*tearHistory // tear stream key -> history

	// progress fields, exposed for tests and cmd front-ends.
	windowIdx int
	t1        float64
	dtau      float64
}

// New builds a Simulator. Ctx may be nil, in which case a default
// engine.Context is created.
func New(fs *flowsheet.Flowsheet, p *params.Parameters, ctx *engine.Context) *Simulator {
	if ctx == nil {
		ctx = engine.New(nil, nil, fs.Materials)
	}
	return &Simulator{
		FS:            fs,
		Params:        p,
		Ctx:           ctx,
		tearHistories: make(map[string]*tearHistory),
	}
}

// analyseIfDirty re-runs calculation-sequence analysis when the
// flowsheet's topology has changed since the last analysis (spec §4.6:
// "re-analysis is triggered automatically ... the flowsheet carries a
// topology-dirty flag consumed here").
func (s *Simulator) analyseIfDirty() error {
	if s.seq != nil && !s.FS.TopologyDirty() {
		return nil
	}
	seq, err := calcseq.Analyse(s.FS.UnitKeys(), toCalcseqEdges(s.FS.Edges()))
	if err != nil {
		return err
	}
	s.seq = seq
	s.FS.ClearTopologyDirty()
	return nil
}

func toCalcseqEdges(edges []flowsheet.Edge) []calcseq.Edge {
	out := make([]calcseq.Edge, len(edges))
	for i, e := range edges {
		out[i] = calcseq.Edge{From: e.From, To: e.To, StreamKey: e.StreamKey}
	}
	return out
}

// Result summarises a completed (or aborted) run.
type Result struct {
	ElapsedTime float64
	WindowCount int
	Cancelled   bool
}

// Run executes the full main loop of spec §4.7.2 to t_end (or until
// cancellation/failure).
func (s *Simulator) Run() (*Result, error) {
	if err := s.FS.Initialise(); err != nil {
		return nil, err
	}
	if err := s.analyseIfDirty(); err != nil {
		return nil, err
	}
	for _, key := range s.FS.UnitKeys() {
		u, _ := s.FS.Unit(key)
		if err := u.Initialise(0); err != nil {
			return nil, simerr.New(simerr.KindUnitError, "unit Initialise failed", err).WithContext(key, 0, 0, 0)
		}
	}

	s.t1 = 0
	s.dtau = s.Params.InitTimeWindow
	s.windowIdx = 0

	for s.t1 < s.Params.EndSimulationTime {
		if err := s.Ctx.CheckCancelled(); err != nil {
			return &Result{ElapsedTime: s.t1, WindowCount: s.windowIdx, Cancelled: true}, nil
		}

		res, err := s.Step()
		if err != nil {
			return res, err
		}
		if res.Cancelled {
			return res, nil
		}
	}

	return &Result{ElapsedTime: s.t1, WindowCount: s.windowIdx}, nil
}

// Step advances at most one time window and returns (spec Design Notes
// §9: "Expose a Step() entry point that advances at most one window and
// returns, so the caller can interleave cancellation checks without
// needing threads").
func (s *Simulator) Step() (*Result, error) {
	if s.t1 >= s.Params.EndSimulationTime {
		return &Result{ElapsedTime: s.t1, WindowCount: s.windowIdx}, nil
	}
	if err := s.analyseIfDirty(); err != nil {
		return nil, err
	}
	if err := s.Ctx.CheckCancelled(); err != nil {
		return &Result{ElapsedTime: s.t1, WindowCount: s.windowIdx, Cancelled: true}, nil
	}

	retries := 0
	for {
		t2 := s.t1 + s.dtau
		if t2 > s.Params.EndSimulationTime {
			t2 = s.Params.EndSimulationTime
		}

		maxIters, diverged, err := s.runWindow(s.t1, t2)
		if err != nil {
			return nil, err
		}
		if !diverged {
			s.adaptWindow(maxIters)
			s.t1 = t2
			s.windowIdx++
			return &Result{ElapsedTime: s.t1, WindowCount: s.windowIdx}, nil
		}

		// PartitionDiverged: roll back, shrink the window by the
		// magnification ratio, retry (spec §4.7.4).
		s.rollback(s.t1)
		s.dtau /= s.Params.MagnificationRatio
		retries++
		if s.dtau < s.Params.MinTimeWindow {
			return nil, simerr.ErrMinWindowReached
		}
		if retries > s.Params.MaxIter {
			return nil, simerr.New(simerr.KindPartitionDiverged, "exceeded retry budget for this window", nil)
		}
	}
}

// runWindow runs every partition over [t1, t2] once, returning the
// maximum iteration count observed across non-trivial partitions (used
// by adaptWindow) and whether any partition diverged.
func (s *Simulator) runWindow(t1, t2 float64) (maxIters int, diverged bool, err error) {
	for _, part := range s.seq.Partitions {
		if part.Trivial() {
			key := part.Units[0]
			if err := s.FS.SyncInputSide(t2); err != nil {
				return 0, false, err
			}
			u, _ := s.FS.Unit(key)
			if err := u.Simulate(t1, t2); err != nil {
				return 0, false, simerr.New(simerr.KindUnitError, "unit Simulate failed", err).WithContext(key, s.windowIdx, 0, 0)
			}
			continue
		}
		k, div, err := s.iteratePartition(part, t1, t2)
		if err != nil {
			return 0, false, err
		}
		if div {
			return 0, true, nil
		}
		if k > maxIters {
			maxIters = k
		}
	}
	return maxIters, false, nil
}

// iteratePartition runs the fixed-point loop of spec §4.7.3 for one
// non-trivial partition.
func (s *Simulator) iteratePartition(part calcseq.Partition, t1, t2 float64) (iterations int, diverged bool, err error) {
	method, err := s.Params.AccelMethod()
	if err != nil {
		return 0, false, err
	}
	extMethod, err := s.Params.ExtrapMethod()
	if err != nil {
		return 0, false, err
	}

	states := make(map[string]*accel.State, len(part.Tears))
	layouts := make(map[string]*tearLayout, len(part.Tears))
	for _, tearKey := range part.Tears {
		states[tearKey] = accel.NewState(method, s.Params.RelaxationParam, s.Params.WegsteinAccel, s.Params.AbsTol)
		tm, ok := s.FS.Stream(tearKey)
		if !ok {
			return 0, false, simerr.New(simerr.KindStructuralError, "unknown tear stream "+tearKey, nil)
		}
		layouts[tearKey] = newTearLayout(tm)
	}

	if s.windowIdx == 0 && !s.Params.InitializeTearStreamsAuto {
		// user-provided initial values are assumed already present on the
		// tear streams; nothing to do.
	} else {
		for _, tearKey := range part.Tears {
			if err := s.extrapolateTear(tearKey, t2, extMethod, layouts[tearKey]); err != nil {
				return 0, false, err
			}
		}
	}

	prev := make(map[string][]float64, len(part.Tears))
	for k := 0; ; k++ {
		for _, tearKey := range part.Tears {
			tm, ok := s.FS.Stream(tearKey)
			if !ok {
				return 0, false, simerr.New(simerr.KindStructuralError, "unknown tear stream "+tearKey, nil)
			}
			prev[tearKey] = layouts[tearKey].gather(tm, t2)
		}

		for _, unitKey := range part.Units {
			if err := s.FS.SyncInputSide(t2); err != nil {
				return 0, false, err
			}
			u, _ := s.FS.Unit(unitKey)
			if err := u.Simulate(t1, t2); err != nil {
				return 0, false, simerr.New(simerr.KindUnitError, "unit Simulate failed", err).WithContext(unitKey, s.windowIdx, k, 0)
			}
		}

		converged := true
		blendedVecs := make(map[string][]float64, len(part.Tears))
		for _, tearKey := range part.Tears {
			tm, _ := s.FS.Stream(tearKey)
			layout := layouts[tearKey]
			raw := layout.gather(tm, t2)

			if k >= 1 {
				st := states[tearKey]
				blended := st.Accelerate(prev[tearKey], raw)
				layout.clampAndRenormalise(blended, s.Params.AbsTol)
				if err := layout.scatter(tm, t2, blended); err != nil {
					return 0, false, err
				}
				blendedVecs[tearKey] = blended
				if !vectorConverged(blended, prev[tearKey], s.Params.AbsTol, s.Params.RelTol) {
					converged = false
				}
			} else {
				converged = false
			}
		}

		if k >= 1 && converged {
			for _, tearKey := range part.Tears {
				h, ok := s.tearHistories[tearKey]
				if !ok {
					h = &tearHistory{}
					s.tearHistories[tearKey] = h
				}
				h.push(t2, blendedVecs[tearKey])
			}
			return k, false, nil
		}

		if k > s.Params.MaxIter || (s.windowIdx == 0 && k > s.Params.Iters1stUpperLimit) {
			return k, true, nil
		}
	}
}

// extrapolateTear predicts a tear stream's full state vector at t from its
// converged history (spec §4.7.5), writing the prediction as the initial
// guess. The three scalar components (mass, temperature, pressure) are
// extrapolated independently with Predict; every sum-to-one block (phase
// fractions, each phase's composition, each compound's distribution) is
// extrapolated componentwise with PredictDistribution so the block is
// renormalised back to summing to one.
func (s *Simulator) extrapolateTear(tearKey string, t float64, method extrapolate.Method, layout *tearLayout) error {
	tm, ok := s.FS.Stream(tearKey)
	if !ok {
		return simerr.New(simerr.KindStructuralError, "unknown tear stream "+tearKey, nil)
	}
	h, ok := s.tearHistories[tearKey]
	if !ok || len(h.anchors) == 0 {
		return nil // no history yet: leave whatever the user/last window set
	}

	v := make([]float64, layout.total)
	for _, idx := range []int{tearMassIdx, tearTempIdx, tearPresIdx} {
		p, err := extrapolate.Predict(method, h.anchors[idx], t)
		if err != nil {
			return err
		}
		v[idx] = p
	}

	blocks := [][2]int{{layout.fracStart, layout.fracStart + len(layout.phases)}}
	for _, base := range layout.compStart {
		blocks = append(blocks, [2]int{base, base + len(layout.compounds)})
	}
	for _, base := range layout.distStart {
		blocks = append(blocks, [2]int{base, base + layout.binCount})
	}
	for _, b := range blocks {
		pred, err := extrapolate.PredictDistribution(method, h.anchors[b[0]:b[1]], t)
		if err != nil {
			return err
		}
		copy(v[b[0]:b[1]], pred)
	}

	if v[tearMassIdx] < 0 {
		v[tearMassIdx] = 0
	}
	return layout.scatter(tm, t, v)
}

// convergenceTest implements spec §4.7.3's scalar convergence test:
// |a-b| <= absTol + relTol*max(|a|,|b|).
func convergenceTest(a, b, absTol, relTol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	amax := absVal(a)
	if bmax := absVal(b); bmax > amax {
		amax = bmax
	}
	return d <= absTol+relTol*amax
}

func absVal(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// adaptWindow applies spec §4.7.4's growth/shrink rule based on the
// iteration count observed in the just-completed window.
func (s *Simulator) adaptWindow(iters int) {
	switch {
	case iters <= s.Params.ItersLowerLimit:
		s.dtau *= s.Params.MagnificationRatio
		if s.dtau > s.Params.MaxTimeWindow {
			s.dtau = s.Params.MaxTimeWindow
		}
	case iters >= s.Params.ItersUpperLimit:
		s.dtau /= s.Params.MagnificationRatio
	}
}

// rollback truncates every stream's time points beyond t (spec §4.7.4:
// "data rolled back by truncating all streams' time points beyond
// tau1"), used both on PartitionDiverged and on explicit Cancel (spec
// §5, scenario F).
func (s *Simulator) rollback(t float64) {
	for _, key := range s.FS.StreamKeys() {
		stm, ok := s.FS.Stream(key)
		if !ok {
			continue
		}
		stm.RemoveTimePointsAfter(t, false)
	}
}

// Cancel requests cooperative cancellation and rolls back to the start
// of the current (incomplete) window, matching spec §8 scenario F:
// "leaves streams truncated exactly at the start of window 3".
func (s *Simulator) Cancel() {
	s.Ctx.Cancel()
	s.rollback(s.t1)
}
