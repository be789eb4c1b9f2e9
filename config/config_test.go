package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load defaults: %v", err)
	}

	if cfg.Motility.Sigma != 2.8 {
		t.Errorf("sigma = %v, want 2.8", cfg.Motility.Sigma)
	}
	if len(cfg.Viscosity.Table) != 3 {
		t.Fatalf("viscosity table has %d entries, want 3", len(cfg.Viscosity.Table))
	}
	if cfg.Domain.XMin != -400 || cfg.Domain.XMax != 400 || cfg.Domain.ZMin != -75 || cfg.Domain.ZMax != 75 {
		t.Errorf("unexpected domain %+v", cfg.Domain)
	}
	if got := cfg.Derived.StepsPerOutput; got != 14400 {
		t.Errorf("StepsPerOutput = %d, want 14400", got)
	}
	if cfg.Analysis.Quantity != QuantityPositionY {
		t.Errorf("analysis quantity = %q, want %q", cfg.Analysis.Quantity, QuantityPositionY)
	}
	if idx, ok := cfg.Derived.DefinitionIndex["default"]; !ok || idx != 0 {
		t.Errorf("default definition index = %d, %v", idx, ok)
	}
}

func TestLoadMergesUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.yaml")
	data := []byte("motility:\n  sigma: 1.5\necm:\n  density: 6.0\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Motility.Sigma != 1.5 {
		t.Errorf("sigma = %v, want 1.5", cfg.Motility.Sigma)
	}
	if cfg.ECM.Density != 6.0 {
		t.Errorf("density = %v, want 6.0", cfg.ECM.Density)
	}
	// Untouched fields keep their defaults
	if cfg.Motility.ForwardBias != 0.56 {
		t.Errorf("forward_bias = %v, want default 0.56", cfg.Motility.ForwardBias)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sigma", func(c *Config) { c.Motility.Sigma = 0 }},
		{"negative persistence", func(c *Config) { c.Motility.PersistenceTime = -1 }},
		{"bias above one", func(c *Config) { c.Motility.ForwardBias = 1.2 }},
		{"zero dt", func(c *Config) { c.Time.DT = 0 }},
		{"zero radius", func(c *Config) { c.Definitions[0].Radius = 0 }},
		{"zero viscosity", func(c *Config) { c.Viscosity.Table[0].Viscosity = 0 }},
		{"empty table", func(c *Config) { c.Viscosity.Table = nil }},
		{"unknown fallback", func(c *Config) { c.Viscosity.Fallback = "guess" }},
		{"unknown ecm mode", func(c *Config) { c.ECM.Mode = "gradient" }},
		{"patches without levels", func(c *Config) { c.ECM.Mode = "patches"; c.ECM.Levels = nil }},
		{"unknown quantity", func(c *Config) { c.Analysis.Quantity = "position_x" }},
		{"strict unmatched density", func(c *Config) { c.Viscosity.Fallback = "strict"; c.ECM.Density = 4.5 }},
		{"strict unmatched level", func(c *Config) {
			c.Viscosity.Fallback = "strict"
			c.ECM.Mode = "patches"
			c.ECM.Levels = []float64{2.5, 5}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestValidateStrictMatched(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Viscosity.Fallback = "strict"
	cfg.ECM.Mode = "patches"
	if err := cfg.Validate(); err != nil {
		t.Errorf("strict with table levels: %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cp := cfg.Clone()
	cp.Viscosity.Table[0].Viscosity = 1
	cp.Motility.Sigma = 9

	if cfg.Viscosity.Table[0].Viscosity == 1 {
		t.Error("clone shares viscosity table with original")
	}
	if cfg.Motility.Sigma == 9 {
		t.Error("clone shares motility with original")
	}
}

func TestWithMaxTime(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	steps := cfg.Derived.MaxSteps

	short := cfg.WithMaxTime(40)
	if short.Time.MaxTime != 40 {
		t.Errorf("max_time = %v, want 40", short.Time.MaxTime)
	}
	if want := int(40/cfg.Time.DT + 0.5); short.Derived.MaxSteps != want {
		t.Errorf("MaxSteps = %d, want %d", short.Derived.MaxSteps, want)
	}
	if short.Derived.StepsPerOutput != cfg.Derived.StepsPerOutput {
		t.Errorf("StepsPerOutput = %d, want %d", short.Derived.StepsPerOutput, cfg.Derived.StepsPerOutput)
	}
	if cfg.Time.MaxTime != 5760 || cfg.Derived.MaxSteps != steps {
		t.Errorf("original changed to max_time %v, %d steps", cfg.Time.MaxTime, cfg.Derived.MaxSteps)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Motility.Sigma = 3.3

	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load written config: %v", err)
	}
	if back.Motility.Sigma != 3.3 {
		t.Errorf("sigma after round trip = %v, want 3.3", back.Motility.Sigma)
	}
}
