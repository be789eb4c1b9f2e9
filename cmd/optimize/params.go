package main

import (
	"github.com/pthm-cable/ecmigrate/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name string  // Human-readable name
	Path string  // Config path for logging
	Min  float64 // Lower bound
	Max  float64 // Upper bound
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the locomotion parameter set with its search bounds.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "sigma", Path: "motility.sigma", Min: 0, Max: 6},
			{Name: "lateral_restriction", Path: "motility.lateral_restriction", Min: 0, Max: 0.5},
			{Name: "vertical_restriction", Path: "motility.vertical_restriction", Min: 0.5, Max: 0.9},
			{Name: "forward_bias", Path: "motility.forward_bias", Min: 0.5, Max: 1.0},
			{Name: "persistence_time", Path: "motility.persistence_time", Min: 10, Max: 60},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// minSigma keeps the Rayleigh scale positive at the lower bound.
const minSigma = 1e-3

// ToMotility converts a raw vector into motility parameters, clamped to bounds.
func (pv *ParamVector) ToMotility(values []float64) config.MotilityConfig {
	c := pv.Clamp(values)
	return config.MotilityConfig{
		Sigma:               max(c[0], minSigma),
		LateralRestriction:  c[1],
		VerticalRestriction: c[2],
		ForwardBias:         c[3],
		PersistenceTime:     c[4],
	}
}

// ApplyToConfig applies parameter values to a Config struct.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	cfg.Motility = pv.ToMotility(values)
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	m := cfg.Motility
	return []float64{
		m.Sigma,
		m.LateralRestriction,
		m.VerticalRestriction,
		m.ForwardBias,
		m.PersistenceTime,
	}
}
