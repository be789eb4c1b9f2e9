package sim

import (
	"runtime"
	"sync"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/ecmigrate/phenotype"
	"github.com/pthm-cable/ecmigrate/random"
)

// defaultParallelThreshold is the minimum agent count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const defaultParallelThreshold = 64

// agentSnapshot pairs an entity with the agent view the behaviors mutate.
// Workers write only the Agent at their own index.
type agentSnapshot struct {
	Entity ecs.Entity
	Agent  phenotype.Agent
}

// workChunk represents a range of agents for a worker to process.
// Chunk k always draws from stream k, so results do not depend on which
// goroutine picks the chunk up.
type workChunk struct {
	start, end int
	stream     int
	dt         float64
}

// parallelState holds resources for parallel velocity computation.
type parallelState struct {
	snapshots  []agentSnapshot
	streams    []*random.Stream
	numWorkers int
	threshold  int

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

func newParallelState(numWorkers, threshold int, seed uint64) *parallelState {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if threshold <= 0 {
		threshold = defaultParallelThreshold
	}
	return &parallelState{
		numWorkers: numWorkers,
		threshold:  threshold,
		streams:    random.NewStreams(seed, numWorkers),
		snapshots:  make([]agentSnapshot, 0, 512),
	}
}

// startWorkers launches persistent worker goroutines.
func (p *parallelState) startWorkers(s *Simulation) {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(s)
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *parallelState) stopWorkers() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *parallelState) worker(s *Simulation) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			s.computeChunk(chunk.start, chunk.end, p.streams[chunk.stream], chunk.dt)
			p.doneChan <- struct{}{}
		}
	}
}

// updateVelocities snapshots every agent, runs the per-agent behaviors and
// writes velocity and motility state back.
func (s *Simulation) updateVelocities(dt float64) {
	p := s.parallel

	// Phase A: Build snapshots (single-threaded)
	p.snapshots = p.snapshots[:0]

	query := s.agentFilter.Query()
	for query.Next() {
		pos, vel, mot, cell := query.Get()
		p.snapshots = append(p.snapshots, agentSnapshot{
			Entity: query.Entity(),
			Agent: phenotype.Agent{
				ID:         cell.ID,
				Position:   pos.Vec,
				Velocity:   vel.Vec,
				Motility:   *mot,
				Definition: s.registry.ByIndex(cell.Definition),
			},
		})
	}

	n := len(p.snapshots)
	if n == 0 {
		return
	}

	// Phase B: Compute - choose single or parallel based on agent count
	if n < p.threshold || p.numWorkers == 1 {
		s.computeChunk(0, n, p.streams[0], dt)
	} else {
		s.computeParallel(n, dt)
	}

	// Phase C: Apply (single-threaded)
	s.applySnapshots()
}

// computeParallel dispatches work to the worker pool.
func (s *Simulation) computeParallel(n int, dt float64) {
	p := s.parallel
	if !p.running {
		p.startWorkers(s)
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{start: start, end: end, stream: w, dt: dt}
		dispatched++
	}

	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}

// computeChunk runs hooks and the velocity update for agents [i0, i1).
func (s *Simulation) computeChunk(i0, i1 int, rng random.Uniform, dt float64) {
	for i := i0; i < i1; i++ {
		a := &s.parallel.snapshots[i].Agent
		for _, h := range s.hooks[a.Definition.Index()] {
			h.Apply(a, nil, dt)
		}
		a.Definition.VelocityUpdater().UpdateVelocity(a, dt, rng)
	}
}

// applySnapshots writes computed results back to ECS components.
func (s *Simulation) applySnapshots() {
	for i := range s.parallel.snapshots {
		snap := &s.parallel.snapshots[i]

		vel := s.velMap.Get(snap.Entity)
		mot := s.motMap.Get(snap.Entity)
		if vel == nil || mot == nil {
			continue
		}

		vel.Vec = snap.Agent.Velocity
		*mot = snap.Agent.Motility
	}
}
