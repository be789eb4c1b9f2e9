package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pthm-cable/ecmigrate/analysis"
	"github.com/pthm-cable/ecmigrate/config"
	"github.com/pthm-cable/ecmigrate/sim"
)

// FitnessEvaluator runs headless replicates and scores them against the
// experimental histograms.
type FitnessEvaluator struct {
	ctx        context.Context
	params     *ParamVector
	seeds      []uint64
	baseConfig *config.Config
	comparator *analysis.Comparator

	mu   sync.Mutex
	last Result
}

// Result is the outcome of one evaluation.
type Result struct {
	Params     config.MotilityConfig
	Replicates []analysis.Score
	MeanBC     float64
	StdBC      float64
	Elapsed    time.Duration
	Err        error
}

// ReplicateBCs returns the mean BC of each replicate.
func (r Result) ReplicateBCs() []float64 {
	out := make([]float64, len(r.Replicates))
	for i, s := range r.Replicates {
		out[i] = s.Mean
	}
	return out
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(ctx context.Context, params *ParamVector, seeds []uint64, baseCfg *config.Config, cmp *analysis.Comparator) *FitnessEvaluator {
	return &FitnessEvaluator{
		ctx:        ctx,
		params:     params,
		seeds:      seeds,
		baseConfig: baseCfg,
		comparator: cmp,
	}
}

// Last returns the result of the most recent Evaluate call.
func (fe *FitnessEvaluator) Last() Result {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.last
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
// Fitness is the negated mean Bhattacharyya coefficient over replicates.
// A failed replicate scores 0.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	start := time.Now()
	cfg := fe.baseConfig.Clone()
	fe.params.ApplyToConfig(cfg, x)
	// replicates already run side by side
	cfg.Parallel.Workers = 1

	res := Result{
		Params:     cfg.Motility,
		Replicates: make([]analysis.Score, len(fe.seeds)),
	}
	errs := make([]error, len(fe.seeds))

	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, seed uint64) {
			defer wg.Done()
			res.Replicates[idx], errs[idx] = fe.runReplicate(cfg, seed)
		}(i, seed)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			res.Err = fmt.Errorf("replicate %d: %w", i, err)
			break
		}
	}
	res.MeanBC, res.StdBC = analysis.MeanStd(res.ReplicateBCs())
	res.Elapsed = time.Since(start)

	fe.mu.Lock()
	fe.last = res
	fe.mu.Unlock()

	return -res.MeanBC
}

// runReplicate executes a single headless simulation and compares its
// traveled distances with the experimental data.
func (fe *FitnessEvaluator) runReplicate(cfg *config.Config, seed uint64) (analysis.Score, error) {
	s, err := sim.New(cfg, sim.Options{Seed: seed})
	if err != nil {
		return analysis.Score{}, err
	}
	defer s.Close()

	if err := s.Run(fe.ctx); err != nil {
		return analysis.Score{}, err
	}
	return fe.comparator.Compare(s.Distances)
}
