package telemetry

// Sample is the per-agent reading the collector aggregates.
type Sample struct {
	Speed        float64 // nominal migration speed
	Velocity     float64 // |v| after drag
	Viscosity    float64
	Displacement float64 // y - y0
}

// Collector tracks stats windows and produces WindowStats.
type Collector struct {
	windowSteps int
	dt          float64

	windowStartStep int

	// scratch reused between flushes
	speeds, displacements []float64
}

// NewCollector creates a new stats collector.
// windowMinutes: how long each stats window lasts in simulated minutes
// dt: minutes per step
func NewCollector(windowMinutes, dt float64) *Collector {
	steps := int(windowMinutes/dt + 0.5)
	if steps < 1 {
		steps = 1
	}
	return &Collector{windowSteps: steps, dt: dt}
}

// ShouldFlush returns true if enough steps have passed to flush the window.
func (c *Collector) ShouldFlush(step int) bool {
	return step-c.windowStartStep >= c.windowSteps
}

// Flush produces a WindowStats from the given samples and starts the next window.
func (c *Collector) Flush(step int, samples []Sample) WindowStats {
	c.speeds = c.speeds[:0]
	c.displacements = c.displacements[:0]

	var velSum, viscSum float64
	for _, s := range samples {
		c.speeds = append(c.speeds, s.Speed)
		c.displacements = append(c.displacements, s.Displacement)
		velSum += s.Velocity
		viscSum += s.Viscosity
	}

	speed := ComputeDistribution(c.speeds)
	disp := ComputeDistribution(c.displacements)

	stats := WindowStats{
		WindowStartStep: c.windowStartStep,
		WindowEndStep:   step,
		SimTime:         float64(step) * c.dt,
		Cells:           len(samples),

		SpeedMean: speed.Mean,
		SpeedP10:  speed.P10,
		SpeedP50:  speed.P50,
		SpeedP90:  speed.P90,

		DisplacementMean: disp.Mean,
		DisplacementP50:  disp.P50,
		DisplacementP90:  disp.P90,
		DisplacementMax:  disp.Max,
	}
	if n := len(samples); n > 0 {
		stats.VelocityMean = velSum / float64(n)
		stats.ViscosityMean = viscSum / float64(n)
	}

	c.windowStartStep = step
	return stats
}

// WindowSteps returns the number of steps per window.
func (c *Collector) WindowSteps() int {
	return c.windowSteps
}
