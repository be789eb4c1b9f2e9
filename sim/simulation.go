// Package sim hosts the agents: it owns the ECS world, seeds the tissue, and
// advances velocities and positions step by step.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/ecmigrate/components"
	"github.com/pthm-cable/ecmigrate/config"
	"github.com/pthm-cable/ecmigrate/field"
	"github.com/pthm-cable/ecmigrate/phenotype"
	"github.com/pthm-cable/ecmigrate/systems"
	"github.com/pthm-cable/ecmigrate/telemetry"
)

// Options configures a simulation beyond the model config.
type Options struct {
	Seed      uint64
	OutputDir string // empty disables file output
	LogStats  bool

	// Hooks are installed on every definition. Unset slots stay no-ops.
	Hooks []phenotype.Behavior
}

// Simulation holds the complete model state.
type Simulation struct {
	cfg   *config.Config
	world *ecs.World

	agentMapper *ecs.Map4[components.Position, components.Velocity, components.Motility, components.Cell]
	agentFilter *ecs.Filter4[components.Position, components.Velocity, components.Motility, components.Cell]
	velMap      *ecs.Map[components.Velocity]
	motMap      *ecs.Map[components.Motility]

	mesh     *field.Mesh
	ecm      *field.DensityField
	registry *phenotype.Registry
	physics  *systems.PhysicsSystem

	// active (non no-op) per-step hooks, by definition index
	hooks [][]phenotype.Behavior

	parallel *parallelState

	collector *telemetry.Collector
	perf      *telemetry.PerfCollector
	output    *telemetry.OutputManager
	logStats  bool

	// traveled distance per output index, kept for analysis
	distances     map[int][]float64

	step   int
	nextID uint32
}

// New builds the mesh, field, registry and locomotion model from cfg and
// seeds the tissue once with the default definition.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	mesh := field.NewMesh(cfg.Mesh)
	ecm, err := field.NewECMField(mesh, cfg.ECM)
	if err != nil {
		return nil, fmt.Errorf("building ecm field: %w", err)
	}
	substrate, err := ecm.Index(cfg.ECM.Substrate)
	if err != nil {
		return nil, err
	}

	policy, err := systems.ParseFallback(cfg.Viscosity.Fallback)
	if err != nil {
		return nil, err
	}
	table, err := systems.NewViscosityTable(cfg.Viscosity.Table, policy)
	if err != nil {
		return nil, err
	}
	if err := table.Validate(ecm.Levels(substrate)); err != nil {
		return nil, fmt.Errorf("validating viscosity table against %s: %w", cfg.ECM.Substrate, err)
	}

	model := &systems.DragVelocityUpdate{
		Field:     ecm,
		Substrate: substrate,
		Table:     table,
		Force:     systems.ForceGenerator{Sigma: cfg.Motility.Sigma},
		Kinetics:  systems.NewStandardKinetics(),
	}
	registry, err := phenotype.RegistryFromConfig(cfg, model, opts.Hooks...)
	if err != nil {
		return nil, err
	}

	world := ecs.NewWorld()
	s := &Simulation{
		cfg:   cfg,
		world: world,
		agentMapper: ecs.NewMap4[
			components.Position,
			components.Velocity,
			components.Motility,
			components.Cell,
		](world),
		agentFilter: ecs.NewFilter4[
			components.Position,
			components.Velocity,
			components.Motility,
			components.Cell,
		](world),
		velMap:        ecs.NewMap[components.Velocity](world),
		motMap:        ecs.NewMap[components.Motility](world),
		mesh:          mesh,
		ecm:           ecm,
		registry:      registry,
		physics:       systems.NewPhysicsSystem(world, mesh.Box),
		hooks:         activeHooks(registry),
		parallel:      newParallelState(cfg.Parallel.Workers, cfg.Parallel.Threshold, opts.Seed),
		collector:     telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Time.DT),
		perf:          telemetry.NewPerfCollector(cfg.Derived.StepsPerWindow),
		logStats:      opts.LogStats,
		distances:     make(map[int][]float64),
	}

	s.output, err = telemetry.NewOutputManager(opts.OutputDir, cfg.Telemetry.CompressSnapshots)
	if err != nil {
		return nil, err
	}
	if err := s.output.WriteConfig(cfg); err != nil {
		s.output.Close()
		return nil, err
	}

	def := registry.Default()
	seeder := systems.TissueSeeder{Box: field.SeedingBox(mesh, cfg.Domain)}
	n := seeder.Seed(def, s)
	slog.Info("tissue seeded",
		"agents", n,
		"definition", def.Name(),
		"radius", def.Radius(),
		"box", seeder.Box.Bounds(),
		"workers", s.parallel.numWorkers,
	)

	s.recordOutput()
	return s, nil
}

// activeHooks collects the per-step hooks that do something. Contact hooks
// need neighbor detection and are not dispatched here.
func activeHooks(r *phenotype.Registry) [][]phenotype.Behavior {
	out := make([][]phenotype.Behavior, r.Len())
	for i := range out {
		def := r.ByIndex(i)
		for _, kind := range []phenotype.HookKind{phenotype.HookPhenotype, phenotype.HookCustomRule} {
			if h := def.Hook(kind); !phenotype.IsNoOp(h) {
				out[i] = append(out[i], h)
			}
		}
	}
	return out
}

// CreateAgent adds an agent at rest at pos.
func (s *Simulation) CreateAgent(def *phenotype.Definition, pos r3.Vec) {
	s.agentMapper.NewEntity(
		&components.Position{Vec: pos},
		&components.Velocity{},
		&components.Motility{},
		&components.Cell{ID: s.nextID, Definition: def.Index(), InitialY: pos.Y},
	)
	s.nextID++
}

// Step advances the model by one time step.
func (s *Simulation) Step() {
	dt := s.cfg.Time.DT

	s.perf.StartStep()
	s.perf.StartPhase(telemetry.PhaseVelocity)
	s.updateVelocities(dt)

	s.perf.StartPhase(telemetry.PhaseIntegrate)
	s.physics.Update(dt)
	s.step++

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	s.flushTelemetry()
	if s.step%s.cfg.Derived.StepsPerOutput == 0 {
		s.recordOutput()
	}
	s.perf.EndStep()
}

// Run steps until MaxTime is reached or ctx is canceled.
func (s *Simulation) Run(ctx context.Context) error {
	slog.Info("starting simulation",
		"max_time", s.cfg.Time.MaxTime,
		"dt", s.cfg.Time.DT,
		"steps", s.cfg.Derived.MaxSteps,
	)
	for s.step < s.cfg.Derived.MaxSteps {
		select {
		case <-ctx.Done():
			slog.Warn("simulation canceled", "step", s.step, "time", s.Time())
			return ctx.Err()
		default:
		}
		s.Step()
	}
	slog.Info("simulation finished", "step", s.step, "time", s.Time())
	return nil
}

// flushTelemetry checks if the stats window should be flushed.
func (s *Simulation) flushTelemetry() {
	if !s.collector.ShouldFlush(s.step) {
		return
	}

	var samples []telemetry.Sample
	query := s.agentFilter.Query()
	for query.Next() {
		pos, vel, mot, cell := query.Get()
		samples = append(samples, telemetry.Sample{
			Speed:        mot.MigrationSpeed,
			Velocity:     r3.Norm(vel.Vec),
			Viscosity:    mot.Viscosity,
			Displacement: pos.Y - cell.InitialY,
		})
	}

	stats := s.collector.Flush(s.step, samples)
	perfStats := s.perf.Stats()

	if s.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if s.output != nil {
		if err := s.output.WriteTelemetry(stats); err != nil {
			slog.Error("failed to write telemetry", "error", err)
		}
		if err := s.output.WritePerf(perfStats, stats.WindowEndStep); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}
}

// recordOutput keeps the histogram quantity of the current output index and
// writes a position snapshot when output is enabled.
func (s *Simulation) recordOutput() {
	day := s.step / s.cfg.Derived.StepsPerOutput

	var records []telemetry.PositionRecord
	var dist []float64
	query := s.agentFilter.Query()
	for query.Next() {
		pos, vel, mot, cell := query.Get()
		rec := telemetry.PositionRecord{
			Day:          day,
			Step:         s.step,
			ID:           cell.ID,
			Definition:   s.registry.ByIndex(cell.Definition).Name(),
			X:            pos.X,
			Y:            pos.Y,
			Z:            pos.Z,
			VX:           vel.X,
			VY:           vel.Y,
			VZ:           vel.Z,
			Speed:        mot.MigrationSpeed,
			Viscosity:    mot.Viscosity,
			Displacement: pos.Y - cell.InitialY,
		}
		dist = append(dist, rec.Distance(s.cfg.Analysis.Quantity))
		if s.output != nil {
			records = append(records, rec)
		}
	}
	s.distances[day] = dist

	if s.output == nil {
		return
	}
	path, err := s.output.WritePositions(day, records)
	if err != nil {
		slog.Error("failed to write positions", "day", day, "error", err)
		return
	}
	slog.Info("positions saved", "path", path, "day", day, "step", s.step)
}

// Distances returns the analysis.quantity values recorded at output index day.
func (s *Simulation) Distances(day int) ([]float64, bool) {
	d, ok := s.distances[day]
	return d, ok
}

// Days returns the recorded output indices in ascending order.
func (s *Simulation) Days() []int {
	days := make([]int, 0, len(s.distances))
	for d := range s.distances {
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}

// Positions returns every agent position in storage order.
func (s *Simulation) Positions() []r3.Vec {
	var out []r3.Vec
	query := s.agentFilter.Query()
	for query.Next() {
		pos, _, _, _ := query.Get()
		out = append(out, pos.Vec)
	}
	return out
}

// AgentCount returns the number of agents.
func (s *Simulation) AgentCount() int {
	return int(s.nextID)
}

// StepCount returns the number of completed steps.
func (s *Simulation) StepCount() int { return s.step }

// Time returns the simulated time in minutes.
func (s *Simulation) Time() float64 {
	return float64(s.step) * s.cfg.Time.DT
}

// Close stops the worker pool and closes output files.
func (s *Simulation) Close() error {
	s.parallel.stopWorkers()
	return s.output.Close()
}
