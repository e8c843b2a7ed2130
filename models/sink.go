package models

import (
	"github.com/pthm-cable/dyssol-go/stream"
	"github.com/pthm-cable/dyssol-go/unit"
)

// Sink consumes its single inlet stream and does nothing further — a
// terminal node for flowsheet traversal (spec §8 scenario B).
type Sink struct {
	key, name string
	params    *unit.ParameterManager
	in        *stream.MaterialStream
}

func NewSink(key, name string) *Sink {
	return &Sink{key: key, name: name, params: unit.NewParameterManager()}
}

func (s *Sink) Key() string { return s.key }

func (s *Sink) Ports() []*unit.Port {
	return []*unit.Port{{Key: s.key + ".in", Name: "in", Direction: unit.Input}}
}

func (s *Sink) BindStream(portKey string, stm *stream.MaterialStream) {
	if portKey == s.key+".in" {
		s.in = stm
	}
}

func (s *Sink) Initialise(t0 float64) error { return nil }

// Simulate is a no-op: a sink only reads what flows into it, it never
// writes a stream of its own.
func (s *Sink) Simulate(t1, t2 float64) error { return nil }

func (s *Sink) Finalise() {}

func (s *Sink) Holdups() map[string]*stream.MaterialStream { return nil }

func (s *Sink) Parameters() *unit.ParameterManager { return s.params }
