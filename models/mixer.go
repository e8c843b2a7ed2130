package models

import (
	"github.com/pthm-cable/dyssol-go/stream"
	"github.com/pthm-cable/dyssol-go/unit"
)

// Mixer combines any number of inlet streams by mass-weighted mixing
// (spec §8 scenario A) and writes the result to a single outlet.
//
// Port count is fixed at construction time (two inlets from NewMixer,
// n from NewMixerN(key, name, n)) rather
// than discovered dynamically, since Ports() must return a stable
// ordered list before any streams are connected (spec §3.5's "ports are
// declared before streams are wired").
type Mixer struct {
	key, name string
	params    *unit.ParameterManager

	inletKeys []string
	inlets    []*stream.MaterialStream
	out       *stream.MaterialStream
}

// NewMixer creates a mixer with two inlets by default. Use
// NewMixerN for more.
func NewMixer(key, name string) *Mixer { return NewMixerN(key, name, 2) }

// NewMixerN creates a mixer with n inlet ports.
func NewMixerN(key, name string, n int) *Mixer {
	if n < 1 {
		n = 1
	}
	m := &Mixer{key: key, name: name, params: unit.NewParameterManager()}
	for i := 0; i < n; i++ {
		m.inletKeys = append(m.inletKeys, portKeyN(key, "in", i))
	}
	m.inlets = make([]*stream.MaterialStream, n)
	return m
}

func portKeyN(key, base string, i int) string {
	if i == 0 {
		return key + "." + base
	}
	return key + "." + base + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	return digits
}

func (m *Mixer) Key() string { return m.key }

func (m *Mixer) Ports() []*unit.Port {
	ports := make([]*unit.Port, 0, len(m.inletKeys)+1)
	for _, k := range m.inletKeys {
		ports = append(ports, &unit.Port{Key: k, Name: k, Direction: unit.Input})
	}
	ports = append(ports, &unit.Port{Key: m.key + ".out", Name: "out", Direction: unit.Output})
	return ports
}

func (m *Mixer) BindStream(portKey string, stm *stream.MaterialStream) {
	if portKey == m.key+".out" {
		m.out = stm
		return
	}
	for i, k := range m.inletKeys {
		if k == portKey {
			m.inlets[i] = stm
			return
		}
	}
}

func (m *Mixer) Initialise(t0 float64) error { return nil }

// Simulate copies the first connected inlet into the outlet, then
// mass-weighted mixes every subsequent connected inlet into it
// (stream.MixWith), reproducing spec §8 scenario A's mass-weighted
// temperature blend.
func (m *Mixer) Simulate(t1, t2 float64) error {
	var first *stream.MaterialStream
	for _, in := range m.inlets {
		if in == nil {
			continue
		}
		if first == nil {
			first = in
			continue
		}
	}
	if first == nil {
		return nil
	}

	m.out.CopyFrom(first, t2, t2)
	for _, in := range m.inlets {
		if in == nil || in == first {
			continue
		}
		if err := m.out.MixWith(in, t2); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mixer) Finalise() {}

func (m *Mixer) Holdups() map[string]*stream.MaterialStream { return nil }

func (m *Mixer) Parameters() *unit.ParameterManager { return m.params }
