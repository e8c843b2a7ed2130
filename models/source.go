package models

import (
	"github.com/pthm-cable/dyssol-go/stream"
	"github.com/pthm-cable/dyssol-go/unit"
)

// Source emits a constant (or time-dependent, via its parameters) feed
// stream on its single "out" port. It also exposes an internal
// "makeup" inlet so scenario B's recycle loop can feed back into it
// (spec §8 scenario B: "loops back into the Source's internal makeup
// input with gain 0.3").
type Source struct {
	key, name string
	params    *unit.ParameterManager
	hasMakeup bool

	out    *stream.MaterialStream
	makeup *stream.MaterialStream
}

// NewSource creates a Source with default feed parameters (mass=0,
// T=298.15, p=1e5, one compound fraction of 1 on the first compound)
// and a single "out" port.
func NewSource(key, name string) *Source {
	return newSource(key, name, false)
}

// NewSourceWithMakeup is NewSource plus an internal "makeup" inlet port
// that Simulate adds (scaled by the makeup_gain parameter) to the feed
// mass — spec §8 scenario B's recycle loop feeding back into the
// source.
func NewSourceWithMakeup(key, name string) *Source {
	return newSource(key, name, true)
}

func newSource(key, name string, hasMakeup bool) *Source {
	pm := unit.NewParameterManager()
	pm.Add(&unit.Parameter{Key: "mass", Name: "Mass flow", Kind: unit.KindConstant, Value: 0})
	pm.Add(&unit.Parameter{Key: "temperature", Name: "Temperature", Kind: unit.KindConstant, Value: 298.15})
	pm.Add(&unit.Parameter{Key: "pressure", Name: "Pressure", Kind: unit.KindConstant, Value: 1e5})
	pm.Add(&unit.Parameter{Key: "makeup_gain", Name: "Makeup gain", Kind: unit.KindConstant, Value: 0})
	return &Source{key: key, name: name, params: pm, hasMakeup: hasMakeup}
}

func (s *Source) Key() string { return s.key }

// Ports declares the feed outlet, plus the makeup inlet only when this
// Source was built with NewSourceWithMakeup — port lists must be stable
// and fully connectable (spec §4.5's "every port connected" structural
// check), so a plain Source never advertises a port nothing will wire.
func (s *Source) Ports() []*unit.Port {
	ports := []*unit.Port{{Key: s.key + ".out", Name: "out", Direction: unit.Output}}
	if s.hasMakeup {
		ports = append(ports, &unit.Port{Key: s.key + ".makeup", Name: "makeup", Direction: unit.Input})
	}
	return ports
}

func (s *Source) BindStream(portKey string, stm *stream.MaterialStream) {
	switch portKey {
	case s.key + ".out":
		s.out = stm
	case s.key + ".makeup":
		s.makeup = stm
	}
}

func (s *Source) Initialise(t0 float64) error { return nil }

// Simulate writes the feed composition at [t1, t2], plus any makeup
// recycle scaled by makeup_gain added directly into the feed mass.
func (s *Source) Simulate(t1, t2 float64) error {
	mass, _ := s.params.Get("mass")
	temp, _ := s.params.Get("temperature")
	pres, _ := s.params.Get("pressure")

	m := mass.AtTime(t2)
	if s.makeup != nil {
		gain, _ := s.params.Get("makeup_gain")
		m += gain.Value * s.makeup.Mass(t2)
	}

	if err := s.out.SetMass(t2, m); err != nil {
		return err
	}
	if err := s.out.SetTemperature(t2, temp.AtTime(t2)); err != nil {
		return err
	}
	if err := s.out.SetPressure(t2, pres.AtTime(t2)); err != nil {
		return err
	}

	phases := s.out.Phases()
	compounds := s.out.Compounds()
	if len(phases) > 0 && len(compounds) > 0 {
		feedPhase := phases[0]
		for _, p := range phases {
			frac := 0.0
			if p == feedPhase {
				frac = 1
			}
			if err := s.out.SetPhaseFraction(t2, p, frac); err != nil {
				return err
			}
		}
		for i, c := range compounds {
			frac := 0.0
			if i == 0 {
				frac = 1
			}
			if err := s.out.SetPhaseComposition(t2, feedPhase, c, frac); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Source) Finalise() {}

func (s *Source) Holdups() map[string]*stream.MaterialStream { return nil }

func (s *Source) Parameters() *unit.ParameterManager { return s.params }
