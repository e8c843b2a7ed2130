package persist

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/dyssol-go/flowsheet"
	"github.com/pthm-cable/dyssol-go/grid"
	"github.com/pthm-cable/dyssol-go/materials"
	"github.com/pthm-cable/dyssol-go/models"
	"github.com/pthm-cable/dyssol-go/stream"
)

func buildMixerFlowsheet(t *testing.T) (*flowsheet.Flowsheet, *models.Mixer) {
	t.Helper()
	compounds := []string{"A"}
	phases := []stream.Phase{stream.Liquid}
	g := grid.New()
	db := materials.NewDB()
	fs := flowsheet.New(compounds, phases, g, db, 100, "")

	src1 := models.NewSource("src1", "src1")
	src2 := models.NewSource("src2", "src2")
	mx := models.NewMixer("mixer", "mixer")
	sink := models.NewSink("sink", "sink")

	if err := fs.AddUnit("src1", "src1", src1); err != nil {
		t.Fatalf("AddUnit src1: %v", err)
	}
	if err := fs.AddUnit("src2", "src2", src2); err != nil {
		t.Fatalf("AddUnit src2: %v", err)
	}
	if err := fs.AddUnit("mixer", "mixer", mx); err != nil {
		t.Fatalf("AddUnit mixer: %v", err)
	}
	if err := fs.AddUnit("sink", "sink", sink); err != nil {
		t.Fatalf("AddUnit sink: %v", err)
	}

	if err := fs.AddStream("s1", "s1", "src1.out", "mixer.in"); err != nil {
		t.Fatalf("AddStream s1: %v", err)
	}
	if err := fs.AddStream("s2", "s2", "src2.out", "mixer.in1"); err != nil {
		t.Fatalf("AddStream s2: %v", err)
	}
	if err := fs.AddStream("s3", "s3", "mixer.out", "sink.in"); err != nil {
		t.Fatalf("AddStream s3: %v", err)
	}

	massParam1, _ := src1.Parameters().Get("mass")
	massParam1.Value = 1.0
	massParam2, _ := src2.Parameters().Get("mass")
	massParam2.Value = 2.0

	return fs, mx
}

// TestSaveLoadRoundTripsParametersAndStreamData checks that Save followed
// by Load+Apply onto a freshly-rebuilt, identically-wired flowsheet
// reproduces every unit parameter and every recorded stream time point.
func TestSaveLoadRoundTripsParametersAndStreamData(t *testing.T) {
	fs, mx := buildMixerFlowsheet(t)
	if err := fs.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}

	src1, _ := fs.Unit("src1")
	src2, _ := fs.Unit("src2")
	if err := src1.Simulate(0, 1); err != nil {
		t.Fatalf("src1.Simulate: %v", err)
	}
	if err := src2.Simulate(0, 1); err != nil {
		t.Fatalf("src2.Simulate: %v", err)
	}
	if err := mx.Simulate(0, 1); err != nil {
		t.Fatalf("mixer.Simulate: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	if err := Save(fs, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("save file missing: %v", err)
	}

	fs2, _ := buildMixerFlowsheet(t)
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Version != FormatVersion {
		t.Errorf("doc.Version = %d, want %d", doc.Version, FormatVersion)
	}
	if err := Apply(fs2, doc); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	src1b, _ := fs2.Unit("src1")
	massParam, _ := src1b.Parameters().Get("mass")
	if !approx(massParam.Value, 1.0, 1e-12) {
		t.Errorf("src1 mass parameter = %v, want 1.0", massParam.Value)
	}

	s3a, _ := fs.Stream("s3")
	s3b, _ := fs2.Stream("s3")
	if !approx(s3a.Mass(1), s3b.Mass(1), 1e-9) {
		t.Errorf("restored s3 mass = %v, want %v", s3b.Mass(1), s3a.Mass(1))
	}
	if !approx(s3a.Temperature(1), s3b.Temperature(1), 1e-9) {
		t.Errorf("restored s3 temperature = %v, want %v", s3b.Temperature(1), s3a.Temperature(1))
	}
}

// TestLoadRejectsNewerVersion checks the documented version-floor
// contract: a save document from a newer format than this build supports
// is rejected rather than silently misread.
func TestLoadRejectsNewerVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "future.yaml")
	if err := os.WriteFile(path, []byte("version: 999\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Errorf("expected Load to reject a future version, got nil error")
	}
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
