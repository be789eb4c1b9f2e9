// Package config provides configuration loading and access for the migration model.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Histogram quantities for analysis.quantity.
const (
	QuantityPositionY    = "position_y"   // absolute y of each agent
	QuantityDisplacement = "displacement" // y - y0, distance traveled since seeding
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all model configuration parameters.
type Config struct {
	Domain      DomainConfig       `yaml:"domain"`
	Mesh        MeshConfig         `yaml:"mesh"`
	ECM         ECMConfig          `yaml:"ecm"`
	Viscosity   ViscosityConfig    `yaml:"viscosity"`
	Motility    MotilityConfig     `yaml:"motility"`
	Definitions []DefinitionConfig `yaml:"definitions"`
	Time        TimeConfig         `yaml:"time"`
	Parallel    ParallelConfig     `yaml:"parallel"`
	Telemetry   TelemetryConfig    `yaml:"telemetry"`
	Analysis    AnalysisConfig     `yaml:"analysis"`
	Optimize    OptimizeConfig     `yaml:"optimize"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// DomainConfig holds the fixed seeding extents. The y extents come from the mesh.
type DomainConfig struct {
	XMin float64 `yaml:"x_min"`
	XMax float64 `yaml:"x_max"`
	ZMin float64 `yaml:"z_min"`
	ZMax float64 `yaml:"z_max"`
}

// MeshConfig describes the voxel mesh of the host field.
type MeshConfig struct {
	XMin float64 `yaml:"x_min"`
	XMax float64 `yaml:"x_max"`
	YMin float64 `yaml:"y_min"`
	YMax float64 `yaml:"y_max"`
	ZMin float64 `yaml:"z_min"`
	ZMax float64 `yaml:"z_max"`
	DX   float64 `yaml:"dx"`
	DY   float64 `yaml:"dy"`
	DZ   float64 `yaml:"dz"`
}

// ECMConfig holds the extracellular matrix initial condition.
type ECMConfig struct {
	Substrate string    `yaml:"substrate"` // field name sampled by the locomotion model
	Mode      string    `yaml:"mode"`      // "uniform" or "patches"
	Density   float64   `yaml:"density"`   // uniform density (mg/mL)
	Levels    []float64 `yaml:"levels"`    // density levels used by "patches"
	Scale     float64   `yaml:"scale"`     // noise frequency per micron for "patches"
	Seed      int64     `yaml:"seed"`
}

// ViscosityConfig holds the density to viscosity table.
type ViscosityConfig struct {
	Fallback string           `yaml:"fallback"` // "nearest", "interpolate" or "strict"
	Table    []ViscosityPoint `yaml:"table"`
}

// ViscosityPoint maps one exact density to a drag coefficient.
type ViscosityPoint struct {
	Density   float64 `yaml:"density"`
	Viscosity float64 `yaml:"viscosity"`
}

// MotilityConfig holds the user parameters of the locomotion model.
type MotilityConfig struct {
	Sigma               float64 `yaml:"sigma"`                // Rayleigh scale of the migration speed
	LateralRestriction  float64 `yaml:"lateral_restriction"`  // damping of the x direction component
	VerticalRestriction float64 `yaml:"vertical_restriction"` // damping of the z direction component
	ForwardBias         float64 `yaml:"forward_bias"`         // weight of the +y bias direction
	PersistenceTime     float64 `yaml:"persistence_time"`     // minutes between direction changes
}

// DefinitionConfig describes one cell definition.
type DefinitionConfig struct {
	Name   string  `yaml:"name"`
	Radius float64 `yaml:"radius"`
	Motile *bool   `yaml:"motile"`
}

// TimeConfig holds step and horizon settings, in minutes.
type TimeConfig struct {
	DT             float64 `yaml:"dt"`
	MaxTime        float64 `yaml:"max_time"`
	OutputInterval float64 `yaml:"output_interval"` // position snapshot cadence (one day by default)
}

// ParallelConfig holds worker pool settings.
type ParallelConfig struct {
	Workers   int `yaml:"workers"`   // 0 = GOMAXPROCS
	Threshold int `yaml:"threshold"` // minimum agents before the pool is used
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow       float64 `yaml:"stats_window"` // minutes
	CompressSnapshots bool    `yaml:"compress_snapshots"`
}

// AnalysisConfig holds distance histogram settings.
type AnalysisConfig struct {
	Bins             int     `yaml:"bins"`  // number of bin edges spread evenly over [0, Range]
	Range            float64 `yaml:"range"` // microns
	ExperimentalDir  string  `yaml:"experimental_dir"`
	ExperimentalStem string  `yaml:"experimental_stem"`
	Days             []int   `yaml:"days"`
	Quantity         string  `yaml:"quantity"` // QuantityPositionY or QuantityDisplacement
}

// OptimizeConfig holds the parameter fitting settings.
type OptimizeConfig struct {
	Replicates   int     `yaml:"replicates"`
	MaxEvals     int     `yaml:"max_evals"`
	Population   int     `yaml:"population"`
	InitStepSize float64 `yaml:"init_step_size"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	StepsPerWindow  int            // Telemetry.StatsWindow / Time.DT
	StepsPerOutput  int            // Time.OutputInterval / Time.DT
	MaxSteps        int            // Time.MaxTime / Time.DT
	DefinitionIndex map[string]int // name -> index for definition lookup
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Clone returns a deep copy, so optimizer replicates can mutate parameters independently.
func (c *Config) Clone() *Config {
	cp := *c
	cp.ECM.Levels = append([]float64(nil), c.ECM.Levels...)
	cp.Viscosity.Table = append([]ViscosityPoint(nil), c.Viscosity.Table...)
	cp.Definitions = append([]DefinitionConfig(nil), c.Definitions...)
	cp.Analysis.Days = append([]int(nil), c.Analysis.Days...)
	cp.computeDerived()
	return &cp
}

// WithMaxTime returns a copy that stops after minutes, with step counts recomputed.
func (c *Config) WithMaxTime(minutes float64) *Config {
	cp := c.Clone()
	cp.Time.MaxTime = minutes
	cp.computeDerived()
	return cp
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	if c.Time.DT > 0 {
		c.Derived.StepsPerWindow = max(1, int(c.Telemetry.StatsWindow/c.Time.DT+0.5))
		c.Derived.StepsPerOutput = max(1, int(c.Time.OutputInterval/c.Time.DT+0.5))
		c.Derived.MaxSteps = int(c.Time.MaxTime/c.Time.DT + 0.5)
	}

	// Synthesize a default definition if none specified
	if len(c.Definitions) == 0 {
		c.Definitions = []DefinitionConfig{{Name: "default", Radius: 8.0}}
	}

	c.Derived.DefinitionIndex = make(map[string]int, len(c.Definitions))
	for i, def := range c.Definitions {
		c.Derived.DefinitionIndex[def.Name] = i
	}
}

// Validate checks the parameters the locomotion model and seeder rely on.
// Violations surface here, at initialization, rather than during stepping.
func (c *Config) Validate() error {
	if c.Motility.Sigma <= 0 {
		return fmt.Errorf("%w: motility.sigma must be positive, got %v", ErrInvalidConfig, c.Motility.Sigma)
	}
	if c.Motility.PersistenceTime <= 0 {
		return fmt.Errorf("%w: motility.persistence_time must be positive, got %v", ErrInvalidConfig, c.Motility.PersistenceTime)
	}
	for name, v := range map[string]float64{
		"lateral_restriction":  c.Motility.LateralRestriction,
		"vertical_restriction": c.Motility.VerticalRestriction,
		"forward_bias":         c.Motility.ForwardBias,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: motility.%s must be in [0,1], got %v", ErrInvalidConfig, name, v)
		}
	}
	if c.Time.DT <= 0 {
		return fmt.Errorf("%w: time.dt must be positive, got %v", ErrInvalidConfig, c.Time.DT)
	}
	for _, def := range c.Definitions {
		if def.Radius <= 0 {
			return fmt.Errorf("%w: definition %q radius must be positive", ErrInvalidConfig, def.Name)
		}
	}
	if len(c.Viscosity.Table) == 0 {
		return fmt.Errorf("%w: viscosity.table is empty", ErrInvalidConfig)
	}
	for _, p := range c.Viscosity.Table {
		if p.Viscosity <= 0 {
			return fmt.Errorf("%w: viscosity for density %v must be positive", ErrInvalidConfig, p.Density)
		}
	}
	switch c.Viscosity.Fallback {
	case "nearest", "interpolate", "strict":
	default:
		return fmt.Errorf("%w: unknown viscosity.fallback %q", ErrInvalidConfig, c.Viscosity.Fallback)
	}
	var levels []float64
	switch c.ECM.Mode {
	case "uniform":
		levels = []float64{c.ECM.Density}
	case "patches":
		if len(c.ECM.Levels) == 0 {
			return fmt.Errorf("%w: ecm.levels required for patches mode", ErrInvalidConfig)
		}
		levels = c.ECM.Levels
	default:
		return fmt.Errorf("%w: unknown ecm.mode %q", ErrInvalidConfig, c.ECM.Mode)
	}
	if c.Viscosity.Fallback == "strict" {
		for _, d := range levels {
			if !c.hasViscosityEntry(d) {
				return fmt.Errorf("%w: ecm density %v has no viscosity entry (strict fallback)", ErrInvalidConfig, d)
			}
		}
	}
	if c.Mesh.DX <= 0 || c.Mesh.DY <= 0 || c.Mesh.DZ <= 0 {
		return fmt.Errorf("%w: mesh voxel sizes must be positive", ErrInvalidConfig)
	}
	if c.Analysis.Bins < 2 || c.Analysis.Range <= 0 {
		return fmt.Errorf("%w: analysis needs at least 2 bin edges over a positive range", ErrInvalidConfig)
	}
	switch c.Analysis.Quantity {
	case QuantityPositionY, QuantityDisplacement:
	default:
		return fmt.Errorf("%w: unknown analysis.quantity %q", ErrInvalidConfig, c.Analysis.Quantity)
	}
	return nil
}

func (c *Config) hasViscosityEntry(density float64) bool {
	for _, p := range c.Viscosity.Table {
		if p.Density == density {
			return true
		}
	}
	return false
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
