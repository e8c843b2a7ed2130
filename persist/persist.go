// Package persist implements spec §6's Save/Load container: "a
// hierarchical file ... any container preserving attributes, named
// datasets and versioning suffices". Grounded on config/config.go's
// yaml.v3 embed-and-unmarshal idiom, extended here to a two-way,
// versioned round trip instead of one-way defaults loading.
package persist

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/dyssol-go/flowsheet"
	"github.com/pthm-cable/dyssol-go/simerr"
	"github.com/pthm-cable/dyssol-go/stream"
	"github.com/pthm-cable/dyssol-go/unit"
)

// FormatVersion is the save-version integer attached at the document
// root (spec §6: "a save-version integer is attached at each hierarchy
// level; loaders must accept older versions down to the documented
// floor per section"). There is one documented version so far: this one.
const FormatVersion = 1

// Document is the root of the saved container: the flowsheet's static
// topology plus every stream's recorded time series and every unit's
// parameter values.
type Document struct {
	Version   int             `yaml:"version"`
	Compounds []string        `yaml:"compounds"`
	Phases    []int           `yaml:"phases"`
	Units     []UnitDoc       `yaml:"units"`
	Streams   []StreamDoc     `yaml:"streams"`
	Wiring    []WiringDoc     `yaml:"wiring"`
}

// UnitDoc captures one unit's identity and parameter snapshot.
type UnitDoc struct {
	Version    int             `yaml:"version"`
	Key        string          `yaml:"key"`
	Name       string          `yaml:"name"`
	ModelID    string          `yaml:"model_id"`
	Parameters []ParameterDoc  `yaml:"parameters"`
}

// ParameterDoc is one unit parameter's persisted value, tagged by kind
// the same way unit.Parameter is (spec §4.4's tagged-variant shape).
type ParameterDoc struct {
	Key       string             `yaml:"key"`
	Kind      int                `yaml:"kind"`
	Value     float64            `yaml:"value,omitempty"`
	TimeCurve map[float64]float64 `yaml:"time_curve,omitempty"`
	Str       string             `yaml:"str,omitempty"`
	Checked   bool               `yaml:"checked,omitempty"`
	Selected  string             `yaml:"selected,omitempty"`
	Compound  string             `yaml:"compound,omitempty"`
	SolverRef string             `yaml:"solver_ref,omitempty"`
}

// StreamDoc captures one stream's full recorded time series.
type StreamDoc struct {
	Version int          `yaml:"version"`
	Key     string       `yaml:"key"`
	Name    string       `yaml:"name"`
	Points  []StreamPoint `yaml:"points"`
}

// StreamPoint is one time point's full state across the five
// DistributedMatrices spec §3.4 describes, reconstructed via the public
// getters rather than reaching into matrix internals.
type StreamPoint struct {
	T                float64                         `yaml:"t"`
	Mass             float64                         `yaml:"mass"`
	Temperature      float64                         `yaml:"temperature"`
	Pressure         float64                         `yaml:"pressure"`
	PhaseFraction    map[int]float64                 `yaml:"phase_fraction"`
	PhaseComposition map[int]map[string]float64       `yaml:"phase_composition"`
	SolidDistribution map[string][]float64            `yaml:"solid_distribution,omitempty"`
}

// WiringDoc records one stream's port connectivity so Load can re-call
// Flowsheet.AddStream in the same order the original run used.
type WiringDoc struct {
	StreamKey   string `yaml:"stream_key"`
	FromPortKey string `yaml:"from_port_key"`
	ToPortKey   string `yaml:"to_port_key"`
}

// Save serialises fs's topology, every unit's parameters, and every
// stream's recorded time series to path as YAML.
func Save(fs *flowsheet.Flowsheet, path string) error {
	doc := Document{
		Version:   FormatVersion,
		Compounds: fs.Compounds(),
	}
	for _, p := range fs.Phases() {
		doc.Phases = append(doc.Phases, int(p))
	}

	unitKeys := fs.UnitKeys()
	for _, key := range unitKeys {
		u, ok := fs.Unit(key)
		if !ok {
			continue
		}
		ud := UnitDoc{Version: FormatVersion, Key: key, Name: key}
		for _, p := range u.Parameters().All() {
			ud.Parameters = append(ud.Parameters, parameterToDoc(p))
		}
		doc.Units = append(doc.Units, ud)
	}

	streamKeys := fs.StreamKeys()
	sort.Strings(streamKeys)
	for _, key := range streamKeys {
		s, ok := fs.Stream(key)
		if !ok {
			continue
		}
		doc.Streams = append(doc.Streams, streamToDoc(s))
	}

	for _, key := range streamKeys {
		fromPort, toPort, ok := fs.StreamPorts(key)
		if !ok {
			continue
		}
		doc.Wiring = append(doc.Wiring, WiringDoc{StreamKey: key, FromPortKey: fromPort, ToPortKey: toPort})
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return simerr.New(simerr.KindIOError, "marshalling save document", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return simerr.New(simerr.KindIOError, fmt.Sprintf("writing %s", path), err)
	}
	return nil
}

func parameterToDoc(p *unit.Parameter) ParameterDoc {
	return ParameterDoc{
		Key:       p.Key,
		Kind:      int(p.Kind),
		Value:     p.Value,
		TimeCurve: p.TimeCurve,
		Str:       p.Str,
		Checked:   p.Checked,
		Selected:  p.Selected,
		Compound:  p.Compound,
		SolverRef: p.SolverRef,
	}
}

func streamToDoc(s *stream.MaterialStream) StreamDoc {
	sd := StreamDoc{Version: FormatVersion, Key: s.Key, Name: s.Name}
	compounds := s.Compounds()
	phases := s.Phases()
	for _, t := range s.TimePoints() {
		pt := StreamPoint{
			T:                t,
			Mass:             s.Mass(t),
			Temperature:      s.Temperature(t),
			Pressure:         s.Pressure(t),
			PhaseFraction:    make(map[int]float64),
			PhaseComposition: make(map[int]map[string]float64),
		}
		for _, p := range phases {
			pt.PhaseFraction[int(p)] = s.PhaseFraction(t, p)
			comps := make(map[string]float64, len(compounds))
			for _, c := range compounds {
				comps[c] = s.PhaseComposition(t, p, c)
			}
			pt.PhaseComposition[int(p)] = comps
		}
		if len(compounds) > 0 && hasSolidPhase(phases) {
			pt.SolidDistribution = make(map[string][]float64)
			for _, c := range compounds {
				dist := s.SolidDistribution(t, c)
				if dist != nil {
					pt.SolidDistribution[c] = append([]float64(nil), dist...)
				}
			}
		}
		sd.Points = append(sd.Points, pt)
	}
	return sd
}

func hasSolidPhase(phases []stream.Phase) bool {
	for _, p := range phases {
		if p == stream.Solid {
			return true
		}
	}
	return false
}

// Load reads a Document from path. Applying it onto a live Flowsheet is
// the caller's responsibility via Apply, since reconstructing a
// Flowsheet also requires the grid and materials.DB the caller already
// owns (spec §6: Load operates on an existing flowsheet instance, not a
// freestanding one — "Load(flowsheet, path)").
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, simerr.New(simerr.KindIOError, fmt.Sprintf("reading %s", path), err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, simerr.New(simerr.KindIOError, "parsing save document", err)
	}
	if doc.Version > FormatVersion {
		return nil, simerr.New(simerr.KindIOError, fmt.Sprintf("save document version %d is newer than supported %d", doc.Version, FormatVersion), nil)
	}
	return &doc, nil
}

// Apply restores every unit's parameters and every stream's recorded
// time series onto an already-wired Flowsheet (units, streams and their
// port connections must already exist with matching keys — Apply does
// not call AddUnit/AddStream itself, since port-stable construction is
// the model factories' responsibility, not the persistence layer's).
func Apply(fs *flowsheet.Flowsheet, doc *Document) error {
	for _, ud := range doc.Units {
		u, ok := fs.Unit(ud.Key)
		if !ok {
			return simerr.New(simerr.KindStructuralError, fmt.Sprintf("save document references unknown unit %q", ud.Key), nil)
		}
		pm := u.Parameters()
		for _, pd := range ud.Parameters {
			p, ok := pm.Get(pd.Key)
			if !ok {
				continue
			}
			p.Value = pd.Value
			if pd.TimeCurve != nil {
				p.TimeCurve = pd.TimeCurve
			}
			p.Str = pd.Str
			p.Checked = pd.Checked
			p.Selected = pd.Selected
			p.Compound = pd.Compound
			p.SolverRef = pd.SolverRef
		}
	}

	for _, sd := range doc.Streams {
		s, ok := fs.Stream(sd.Key)
		if !ok {
			return simerr.New(simerr.KindStructuralError, fmt.Sprintf("save document references unknown stream %q", sd.Key), nil)
		}
		if err := applyStreamPoints(s, sd); err != nil {
			return err
		}
	}
	return nil
}

func applyStreamPoints(s *stream.MaterialStream, sd StreamDoc) error {
	for _, pt := range sd.Points {
		if err := s.SetMass(pt.T, pt.Mass); err != nil {
			return err
		}
		if err := s.SetTemperature(pt.T, pt.Temperature); err != nil {
			return err
		}
		if err := s.SetPressure(pt.T, pt.Pressure); err != nil {
			return err
		}
		for _, p := range s.Phases() {
			if frac, ok := pt.PhaseFraction[int(p)]; ok {
				if err := s.SetPhaseFraction(pt.T, p, frac); err != nil {
					return err
				}
			}
			comps := pt.PhaseComposition[int(p)]
			for c, v := range comps {
				if err := s.SetPhaseComposition(pt.T, p, c, v); err != nil {
					return err
				}
			}
		}
		for c, dist := range pt.SolidDistribution {
			if err := s.SetSolidDistribution(pt.T, c, dist); err != nil {
				return err
			}
		}
	}
	return nil
}
