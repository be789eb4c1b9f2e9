// Package telemetry provides windowed migration statistics, performance
// timing and position snapshots.
package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartStep int     `csv:"-"`
	WindowEndStep   int     `csv:"window_end"`
	SimTime         float64 `csv:"sim_time"` // minutes

	Cells int `csv:"cells"`

	// Nominal migration speed drawn this step (before drag)
	SpeedMean float64 `csv:"speed_mean"`
	SpeedP10  float64 `csv:"speed_p10"`
	SpeedP50  float64 `csv:"speed_p50"`
	SpeedP90  float64 `csv:"speed_p90"`

	// Velocity magnitude after drag
	VelocityMean float64 `csv:"velocity_mean"`

	ViscosityMean float64 `csv:"viscosity_mean"`

	// Traveled distance along the channel, y - y0
	DisplacementMean float64 `csv:"displacement_mean"`
	DisplacementP50  float64 `csv:"displacement_p50"`
	DisplacementP90  float64 `csv:"displacement_p90"`
	DisplacementMax  float64 `csv:"displacement_max"`
}

// Percentile returns the empirical p-quantile of a sorted slice: the smallest
// value whose cumulative share reaches p. p is clamped to [0, 1].
// Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if !(p > 0) {
		p = 0
	}
	return stat.Quantile(min(p, 1), stat.Empirical, sorted, nil)
}

// Distribution summarizes a sample.
type Distribution struct {
	Mean, P10, P50, P90, Max float64
}

// ComputeDistribution calculates mean, max and percentiles. values is not modified.
func ComputeDistribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return Distribution{
		Mean: stat.Mean(values, nil),
		P10:  Percentile(sorted, 0.10),
		P50:  Percentile(sorted, 0.50),
		P90:  Percentile(sorted, 0.90),
		Max:  floats.Max(values),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", s.WindowStartStep),
		slog.Int("window_end", s.WindowEndStep),
		slog.Float64("sim_time", s.SimTime),
		slog.Int("cells", s.Cells),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_p10", s.SpeedP10),
		slog.Float64("speed_p50", s.SpeedP50),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("velocity_mean", s.VelocityMean),
		slog.Float64("viscosity_mean", s.ViscosityMean),
		slog.Float64("displacement_mean", s.DisplacementMean),
		slog.Float64("displacement_p50", s.DisplacementP50),
		slog.Float64("displacement_p90", s.DisplacementP90),
		slog.Float64("displacement_max", s.DisplacementMax),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}
