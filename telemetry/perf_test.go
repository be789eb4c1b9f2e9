package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseVelocity)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseIntegrate)
		time.Sleep(200 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()

	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration")
	}
	if _, ok := stats.PhaseAvg[PhaseVelocity]; !ok {
		t.Error("expected velocity phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseIntegrate]; !ok {
		t.Error("expected integrate phase to be tracked")
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5) // Small window

	for i := 0; i < 10; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseIntegrate)
		time.Sleep(10 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()

	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration after window filled")
	}
	if stats.StepsPerSecond <= 0 {
		t.Error("expected positive steps per second")
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase("fast")
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase("slow")
		time.Sleep(2 * time.Millisecond)
		pc.EndStep()
	}

	stats := pc.Stats()

	if slow, fast := stats.PhasePct["slow"], stats.PhasePct["fast"]; slow <= fast {
		t.Errorf("expected slow phase (%v%%) > fast phase (%v%%)", slow, fast)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	stats := NewPerfCollector(10).Stats()

	if stats.AvgStepDuration != 0 {
		t.Error("expected zero avg step duration for empty collector")
	}
	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected non-nil phase maps")
	}
}

func TestPerfStatsToCSV(t *testing.T) {
	s := PerfStats{
		AvgStepDuration: 1500 * time.Microsecond,
		PhasePct:        map[string]float64{PhaseVelocity: 80, PhaseIntegrate: 15},
	}
	row := s.ToCSV(600)
	if row.WindowEnd != 600 || row.AvgStepUS != 1500 {
		t.Errorf("row = %+v", row)
	}
	if row.VelocityPct != 80 || row.IntegratePct != 15 || row.TelemetryPct != 0 {
		t.Errorf("phase columns = %+v", row)
	}
}
