package models

import (
	"github.com/pthm-cable/dyssol-go/stream"
	"github.com/pthm-cable/dyssol-go/unit"
)

// Splitter splits one inlet stream into two outlets by a mass fraction
// parameter (spec §8 scenario B: "Splitter(0.5)"). Intensive properties
// (temperature, pressure, phase fractions, compositions, distributions)
// are copied unchanged to both outlets; only mass is split.
type Splitter struct {
	key, name string
	params    *unit.ParameterManager

	in         *stream.MaterialStream
	outPrimary *stream.MaterialStream
	outSecond  *stream.MaterialStream
}

// NewSplitter creates a splitter with a default split fraction of 0.5
// to the primary outlet.
func NewSplitter(key, name string) *Splitter {
	pm := unit.NewParameterManager()
	pm.Add(&unit.Parameter{Key: "split_fraction", Name: "Split fraction (to outlet 1)", Kind: unit.KindConstant, Value: 0.5})
	return &Splitter{key: key, name: name, params: pm}
}

func (sp *Splitter) Key() string { return sp.key }

func (sp *Splitter) Ports() []*unit.Port {
	return []*unit.Port{
		{Key: sp.key + ".in", Name: "in", Direction: unit.Input},
		{Key: sp.key + ".out1", Name: "out1", Direction: unit.Output},
		{Key: sp.key + ".out2", Name: "out2", Direction: unit.Output},
	}
}

func (sp *Splitter) BindStream(portKey string, stm *stream.MaterialStream) {
	switch portKey {
	case sp.key + ".in":
		sp.in = stm
	case sp.key + ".out1":
		sp.outPrimary = stm
	case sp.key + ".out2":
		sp.outSecond = stm
	}
}

func (sp *Splitter) Initialise(t0 float64) error { return nil }

// Simulate copies the inlet's full state to both outlets, then scales
// each outlet's mass by the split fraction and its complement.
func (sp *Splitter) Simulate(t1, t2 float64) error {
	if sp.in == nil {
		return nil
	}
	frac, _ := sp.params.Get("split_fraction")
	f := frac.AtTime(t2)

	sp.outPrimary.CopyFrom(sp.in, t2, t2)
	sp.outSecond.CopyFrom(sp.in, t2, t2)

	totalMass := sp.in.Mass(t2)
	if err := sp.outPrimary.SetMass(t2, totalMass*f); err != nil {
		return err
	}
	if err := sp.outSecond.SetMass(t2, totalMass*(1-f)); err != nil {
		return err
	}
	return nil
}

func (sp *Splitter) Finalise() {}

func (sp *Splitter) Holdups() map[string]*stream.MaterialStream { return nil }

func (sp *Splitter) Parameters() *unit.ParameterManager { return sp.params }
