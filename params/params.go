// Package params provides configuration loading and access for the
// simulator (spec §6): embedded defaults merged with an optional user
// file via two yaml.Unmarshal passes into the same struct, following
// config.go's Load/Init/Cfg pattern.
package params

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/dyssol-go/accel"
	"github.com/pthm-cable/dyssol-go/extrapolate"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// EnthalpyConfig holds the enthalpy lookup table discretisation (spec
// §6 "enthalpy{MinT,MaxT,Intervals}").
type EnthalpyConfig struct {
	MinT      float64 `yaml:"min_t"`
	MaxT      float64 `yaml:"max_t"`
	Intervals int     `yaml:"intervals"`
}

// Parameters holds every simulator-wide tolerance, window-sizing, and
// solver-selection knob named in spec §6.
type Parameters struct {
	AbsTol      float64 `yaml:"abs_tol"`
	RelTol      float64 `yaml:"rel_tol"`
	MinFraction float64 `yaml:"min_fraction"`

	EndSimulationTime float64 `yaml:"end_simulation_time"`
	InitTimeWindow    float64 `yaml:"init_time_window"`
	MinTimeWindow     float64 `yaml:"min_time_window"`
	MaxTimeWindow     float64 `yaml:"max_time_window"`

	MaxIter            int     `yaml:"max_iter"`
	ItersUpperLimit    int     `yaml:"iters_upper_limit"`
	ItersLowerLimit    int     `yaml:"iters_lower_limit"`
	Iters1stUpperLimit int     `yaml:"iters_1st_upper_limit"`
	MagnificationRatio float64 `yaml:"magnification_ratio"`

	ConvergenceMethod string  `yaml:"convergence_method"` // DIRECT|WEGSTEIN|STEFFENSEN
	RelaxationParam   float64 `yaml:"relaxation_param"`
	WegsteinAccel     float64 `yaml:"wegstein_accel"`

	ExtrapolationMethod string `yaml:"extrapolation_method"` // LINEAR|SPLINE|NEAREST

	SaveTimeStep           float64 `yaml:"save_time_step"`
	SaveTimeStepFlagHoldups bool   `yaml:"save_time_step_flag_holdups"`

	Enthalpy EnthalpyConfig `yaml:"enthalpy"`

	CacheWindow int    `yaml:"cache_window"`
	CachePath   string `yaml:"cache_path"`

	InitializeTearStreamsAuto bool `yaml:"initialize_tear_streams_auto"`
}

// AccelMethod maps ConvergenceMethod to the accel package's enum.
func (p *Parameters) AccelMethod() (accel.Method, error) {
	switch p.ConvergenceMethod {
	case "DIRECT", "":
		return accel.DirectSubstitution, nil
	case "WEGSTEIN":
		return accel.Wegstein, nil
	case "STEFFENSEN":
		return accel.Steffensen, nil
	default:
		return 0, fmt.Errorf("params: unknown convergence_method %q", p.ConvergenceMethod)
	}
}

// ExtrapMethod maps ExtrapolationMethod to the extrapolate package's enum.
func (p *Parameters) ExtrapMethod() (extrapolate.Method, error) {
	switch p.ExtrapolationMethod {
	case "LINEAR", "":
		return extrapolate.Linear, nil
	case "SPLINE":
		return extrapolate.Spline, nil
	case "NEAREST":
		return extrapolate.Nearest, nil
	default:
		return 0, fmt.Errorf("params: unknown extrapolation_method %q", p.ExtrapolationMethod)
	}
}

// global holds the process-wide loaded parameters, mirroring
// config.go's Init/Cfg singleton. The simulator takes an explicit
// *Parameters (simulator.New) and cmd/dyssolctl builds its own with
// Load; neither reads the global.
var global *Parameters

// Init loads parameters from path (or embedded defaults if path is
// empty) and sets the package-level global. Must be called before Cfg().
func Init(path string) error {
	p, err := Load(path)
	if err != nil {
		return err
	}
	global = p
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("params: failed to initialize: %v", err))
	}
}

// Cfg returns the global parameters. Panics if Init was not called.
func Cfg() *Parameters {
	if global == nil {
		panic("params: Cfg() called before Init()")
	}
	return global
}

// Load builds Parameters from embedded defaults, optionally overridden
// by a user YAML file (only fields present in the file are overwritten).
func Load(path string) (*Parameters, error) {
	p := &Parameters{}
	if err := yaml.Unmarshal(defaultsYAML, p); err != nil {
		return nil, fmt.Errorf("params: parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("params: reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("params: parsing config file: %w", err)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the invariants spec §6 implies: relaxation in (0,1],
// non-negative tolerances, a sane window-size ordering.
func (p *Parameters) Validate() error {
	if p.RelaxationParam <= 0 || p.RelaxationParam > 1 {
		return fmt.Errorf("params: relaxation_param must be in (0,1], got %v", p.RelaxationParam)
	}
	if p.MinTimeWindow <= 0 || p.MinTimeWindow > p.MaxTimeWindow {
		return fmt.Errorf("params: min_time_window must be positive and <= max_time_window")
	}
	if p.AbsTol < 0 || p.RelTol < 0 {
		return fmt.Errorf("params: abs_tol/rel_tol must be non-negative")
	}
	if _, err := p.AccelMethod(); err != nil {
		return err
	}
	if _, err := p.ExtrapMethod(); err != nil {
		return err
	}
	return nil
}

// Save writes p to path as YAML. The persist package does not call it:
// a saved flowsheet document does not include run parameters.
func (p *Parameters) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("params: marshalling: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("params: writing %s: %w", path, err)
	}
	return nil
}
