// Package export writes named streams and holdups out as CSV (spec §6's
// Export operation), one row per recorded time point. Grounded directly
// on telemetry/output.go's gocsv.Marshal/MarshalWithoutHeaders idiom for
// streaming tabular writes.
package export

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/dyssol-go/flowsheet"
	"github.com/pthm-cable/dyssol-go/simerr"
	"github.com/pthm-cable/dyssol-go/stream"
)

// Row is one time point of one stream's overall and per-compound state,
// flattened to a shape gocsv can marshal (it does not support nested
// structs or maps, so each phase/compound pair gets its own row, named
// in the Phase and Compound columns).
type Row struct {
	StreamKey   string  `csv:"stream_key"`
	T           float64 `csv:"t"`
	Mass        float64 `csv:"mass"`
	Temperature float64 `csv:"temperature"`
	Pressure    float64 `csv:"pressure"`
	Phase       string  `csv:"phase"`
	PhaseFrac   float64 `csv:"phase_fraction"`
	Compound    string  `csv:"compound"`
	Composition float64 `csv:"composition"`
}

// Streams writes every time point of every named stream in fs to path as
// CSV, one row per (time point, phase, compound) triple. Names not found
// in fs are reported as a simerr.KindInvalidTarget error rather than
// silently skipped.
func Streams(fs *flowsheet.Flowsheet, names []string, path string) error {
	rows, err := buildRows(fs, names)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return simerr.New(simerr.KindIOError, fmt.Sprintf("creating %s", path), err)
	}
	defer f.Close()

	if err := gocsv.Marshal(rows, f); err != nil {
		return simerr.New(simerr.KindIOError, "writing csv export", err)
	}
	return nil
}

func buildRows(fs *flowsheet.Flowsheet, names []string) ([]Row, error) {
	var rows []Row
	for _, name := range names {
		s, ok := fs.Stream(name)
		if !ok {
			return nil, simerr.New(simerr.KindInvalidTarget, fmt.Sprintf("export: unknown stream %q", name), nil)
		}
		rows = append(rows, rowsForStream(s)...)
	}
	return rows, nil
}

func rowsForStream(s *stream.MaterialStream) []Row {
	var rows []Row
	phases := s.Phases()
	compounds := s.Compounds()
	for _, t := range s.TimePoints() {
		for _, p := range phases {
			for _, c := range compounds {
				rows = append(rows, Row{
					StreamKey:   s.Key,
					T:           t,
					Mass:        s.Mass(t),
					Temperature: s.Temperature(t),
					Pressure:    s.Pressure(t),
					Phase:       p.String(),
					PhaseFrac:   s.PhaseFraction(t, p),
					Compound:    c,
					Composition: s.PhaseComposition(t, p, c),
				})
			}
		}
	}
	return rows
}

// Holdups writes every named unit's holdup streams to path, flattened the
// same way Streams does, prefixing each row's stream key with the owning
// unit's key so rows from different units' holdups of the same name don't
// collide.
func Holdups(fs *flowsheet.Flowsheet, unitKeys []string, path string) error {
	var rows []Row
	for _, key := range unitKeys {
		u, ok := fs.Unit(key)
		if !ok {
			return simerr.New(simerr.KindInvalidTarget, fmt.Sprintf("export: unknown unit %q", key), nil)
		}
		for holdupName, hs := range u.Holdups() {
			for _, row := range rowsForStream(hs) {
				row.StreamKey = key + "." + holdupName
				rows = append(rows, row)
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return simerr.New(simerr.KindIOError, fmt.Sprintf("creating %s", path), err)
	}
	defer f.Close()

	if err := gocsv.Marshal(rows, f); err != nil {
		return simerr.New(simerr.KindIOError, "writing csv export", err)
	}
	return nil
}
