// Command dyssolctl is the thin script-driven front-end spec §6
// describes as an external collaborator to the core: it parses a
// line-oriented command script, optionally loads a previous saved run,
// applies parameter overrides, drives the simulator to completion, saves
// the result, and optionally exports named streams to CSV.
//
// Grounded on main.go's flag-based entry point and runHeadless's
// run-to-completion-then-report shape, generalised from a graphics loop
// to a script-driven batch run; the script format itself follows
// DyssolConsole's ConfigFileParser key-value line convention.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/dyssol-go/export"
	"github.com/pthm-cable/dyssol-go/flowsheet"
	"github.com/pthm-cable/dyssol-go/grid"
	"github.com/pthm-cable/dyssol-go/materials"
	"github.com/pthm-cable/dyssol-go/models"
	"github.com/pthm-cable/dyssol-go/params"
	"github.com/pthm-cable/dyssol-go/persist"
	"github.com/pthm-cable/dyssol-go/simulator"
	"github.com/pthm-cable/dyssol-go/stream"
)

var (
	scriptPath = flag.String("script", "", "Path to a dyssolctl command script (required)")
	configPath = flag.String("config", "", "Path to a simulator parameters YAML file (defaults embedded if empty)")
)

func main() {
	flag.Parse()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *scriptPath == "" {
		fmt.Fprintln(os.Stderr, "dyssolctl: -script is required")
		os.Exit(1)
	}

	script, err := ParseScript(*scriptPath)
	if err != nil {
		log.Error("failed to parse script", "error", err)
		os.Exit(1)
	}

	p, err := params.Load(*configPath)
	if err != nil {
		log.Error("failed to load parameters", "error", err)
		os.Exit(1)
	}
	if script.SimulationTime > 0 {
		p.EndSimulationTime = script.SimulationTime
	}
	if script.AbsTol > 0 {
		p.AbsTol = script.AbsTol
	}
	if script.RelTol > 0 {
		p.RelTol = script.RelTol
	}

	fs := buildDemoFlowsheet()

	if script.SourceFile != "" {
		doc, err := persist.Load(script.SourceFile)
		if err != nil {
			log.Error("failed to load source file", "path", script.SourceFile, "error", err)
			os.Exit(1)
		}
		if err := persist.Apply(fs, doc); err != nil {
			log.Error("failed to apply saved state", "error", err)
			os.Exit(1)
		}
	}

	if err := applyUnitParamOverrides(fs, script.UnitParams); err != nil {
		log.Error("failed to apply unit parameter overrides", "error", err)
		os.Exit(1)
	}

	log.Info("starting run", "end_time", p.EndSimulationTime, "abs_tol", p.AbsTol, "rel_tol", p.RelTol)
	start := time.Now()

	sim := simulator.New(fs, p, nil)
	res, err := sim.Run()
	if err != nil {
		log.Error("simulation failed", "error", err)
		os.Exit(1)
	}
	log.Info("run complete", "elapsed_sim_time", res.ElapsedTime, "windows", res.WindowCount, "wall_clock", time.Since(start))

	if script.ResultFile != "" {
		if err := persist.Save(fs, script.ResultFile); err != nil {
			log.Error("failed to save result", "path", script.ResultFile, "error", err)
			os.Exit(1)
		}
		log.Info("saved result", "path", script.ResultFile)
	}

	if len(script.ExportStreams) > 0 {
		exportPath := script.ResultFile + ".csv"
		if script.ResultFile == "" {
			exportPath = "export.csv"
		}
		if err := export.Streams(fs, script.ExportStreams, exportPath); err != nil {
			log.Error("failed to export streams", "error", err)
			os.Exit(1)
		}
		log.Info("exported streams", "path", exportPath, "streams", script.ExportStreams)
	}
}

// buildDemoFlowsheet constructs the recycle topology spec §8 scenario B
// describes (Source -> Splitter -> Sink, with the splitter's second
// outlet recycled into the source's makeup inlet) as the fixed flowsheet
// this front-end drives. A full flowsheet-definition script grammar is
// out of scope (spec §1 places "the textual configuration/script
// front-ends" out of scope beyond their minimal core interface); this
// gives the minimal interface something concrete to exercise end to end.
func buildDemoFlowsheet() *flowsheet.Flowsheet {
	compounds := []string{"A"}
	phases := []stream.Phase{stream.Liquid}
	g := grid.New()
	db := materials.NewDB()
	fs := flowsheet.New(compounds, phases, g, db, 100, "")

	src := models.NewSourceWithMakeup("src", "src")
	split := models.NewSplitter("split", "split")
	sink := models.NewSink("sink", "sink")

	_ = fs.AddUnit("src", "src", src)
	_ = fs.AddUnit("split", "split", split)
	_ = fs.AddUnit("sink", "sink", sink)

	_ = fs.AddStream("s_feed", "feed", "src.out", "split.in")
	_ = fs.AddStream("s_out", "out", "split.out1", "sink.in")
	_ = fs.AddStream("s_recycle", "recycle", "split.out2", "src.makeup")

	return fs
}

func applyUnitParamOverrides(fs *flowsheet.Flowsheet, overrides []UnitParamOverride) error {
	for _, o := range overrides {
		u, ok := fs.Unit(o.UnitKey)
		if !ok {
			return fmt.Errorf("dyssolctl: unknown unit %q in UNIT_PARAMETER override", o.UnitKey)
		}
		p, ok := u.Parameters().Get(o.ParamKey)
		if !ok {
			return fmt.Errorf("dyssolctl: unit %q has no parameter %q", o.UnitKey, o.ParamKey)
		}
		p.Value = o.Value
	}
	return nil
}
