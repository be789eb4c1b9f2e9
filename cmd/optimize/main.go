// Package main fits the locomotion parameters to experimental traveled-distance
// histograms with CMA-ES.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/optimize"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/ecmigrate/analysis"
	"github.com/pthm-cable/ecmigrate/config"
	"github.com/pthm-cable/ecmigrate/runstore"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// logRow is one line of optimize_log.csv.
type logRow struct {
	Eval                int     `csv:"eval"`
	Fitness             float64 `csv:"fitness"`
	MeanBC              float64 `csv:"mean_bc"`
	StdBC               float64 `csv:"std_bc"`
	Sigma               float64 `csv:"sigma"`
	LateralRestriction  float64 `csv:"lateral_restriction"`
	VerticalRestriction float64 `csv:"vertical_restriction"`
	ForwardBias         float64 `csv:"forward_bias"`
	PersistenceTime     float64 `csv:"persistence_time"`
	ElapsedSec          float64 `csv:"elapsed_sec"`
	Error               string  `csv:"error"`
}

// contextConverger stops the optimization once ctx is done.
type contextConverger struct {
	ctx context.Context
}

func (c contextConverger) Init(int) {}

func (c contextConverger) Converged(*optimize.Location) optimize.Status {
	if c.ctx.Err() != nil {
		return optimize.Failure
	}
	return optimize.NotTerminated
}

type options struct {
	configPath string
	outputDir  string
	dbPath     string
	replicates int
	maxEvals   int
	population int
	seed       uint64
	logLevel   string
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Fit locomotion parameters to experimental histograms",
		Long: `optimize searches sigma, lateral_restriction, vertical_restriction,
forward_bias and persistence_time with CMA-ES. Every evaluation runs several
headless replicates and scores the mean Bhattacharyya coefficient between
simulated and experimental traveled-distance histograms.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Base config YAML file (empty = use defaults)")
	f.StringVar(&opts.outputDir, "output", "", "Output directory for results")
	f.StringVar(&opts.dbPath, "db", "", "SQLite evaluation log (default <output>/optimize.db)")
	f.IntVar(&opts.replicates, "replicates", 0, "Replicates per evaluation (0 = config value)")
	f.IntVar(&opts.maxEvals, "max-evals", 0, "Maximum number of evaluations (0 = config value)")
	f.IntVar(&opts.population, "population", -1, "CMA-ES population size (0 = auto, -1 = config value)")
	f.Uint64Var(&opts.seed, "seed", 42, "Base seed; replicate i uses seed+1000*i")
	f.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("output")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cobra.Command, opts options) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := os.MkdirAll(opts.outputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	baseCfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.replicates > 0 {
		baseCfg.Optimize.Replicates = opts.replicates
	}
	if opts.maxEvals > 0 {
		baseCfg.Optimize.MaxEvals = opts.maxEvals
	}
	if opts.population >= 0 {
		baseCfg.Optimize.Population = opts.population
	}

	comparator, err := analysis.NewComparator(baseCfg.Analysis)
	if err != nil {
		return fmt.Errorf("loading experimental histograms: %w", err)
	}

	params := NewParamVector()

	seeds := make([]uint64, max(1, baseCfg.Optimize.Replicates))
	for i := range seeds {
		seeds[i] = opts.seed + uint64(i)*1000
	}

	evaluator := NewFitnessEvaluator(ctx, params, seeds, baseCfg, comparator)

	// Evaluation log: CSV for quick inspection, SQLite for querying across runs.
	dbPath := opts.dbPath
	if dbPath == "" {
		dbPath = filepath.Join(opts.outputDir, "optimize.db")
	}
	store, err := runstore.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening evaluation db: %w", err)
	}
	defer store.Close()

	cfgYAML, err := yaml.Marshal(baseCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	runID, err := store.StartRun(ctx, opts.seed, string(cfgYAML))
	if err != nil {
		return err
	}

	logPath := filepath.Join(opts.outputDir, "optimize_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("creating log file: %w", err)
	}
	defer logFile.Close()

	dim := params.Dim()
	initX := params.Normalize(params.ExtractFromConfig(baseCfg))
	maxEvals := baseCfg.Optimize.MaxEvals

	popSize := baseCfg.Optimize.Population
	if popSize == 0 {
		// Auto-size: 4 + floor(3*ln(n))
		popSize = 4 + int(3*math.Log(float64(dim)))
	}

	out := cmd.OutOrStdout()
	evalCount := 0
	bestFitness := math.Inf(1)
	var bestParams []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Denormalize(x)
			fitness := evaluator.Evaluate(raw)
			res := evaluator.Last()

			clamped := params.Clamp(raw)
			if res.Err == nil && fitness < bestFitness {
				bestFitness = fitness
				bestParams = clamped
			}

			row := logRow{
				Eval:                evalCount,
				Fitness:             fitness,
				MeanBC:              res.MeanBC,
				StdBC:               res.StdBC,
				Sigma:               res.Params.Sigma,
				LateralRestriction:  res.Params.LateralRestriction,
				VerticalRestriction: res.Params.VerticalRestriction,
				ForwardBias:         res.Params.ForwardBias,
				PersistenceTime:     res.Params.PersistenceTime,
				ElapsedSec:          res.Elapsed.Seconds(),
			}
			if res.Err != nil {
				row.Error = res.Err.Error()
			}
			if err := writeLogRow(logFile, row, evalCount == 0); err != nil {
				slog.Error("failed to write log row", "eval", evalCount, "error", err)
			}

			// Canceled evaluations are incomplete; keep them out of the db.
			if res.Err == nil {
				if err := store.RecordEvaluation(context.WithoutCancel(ctx), runID, runstore.Evaluation{
					Eval:       evalCount,
					Params:     res.Params,
					Replicates: res.ReplicateBCs(),
					MeanBC:     res.MeanBC,
					StdBC:      res.StdBC,
					Elapsed:    res.Elapsed,
				}); err != nil {
					slog.Error("failed to record evaluation", "eval", evalCount, "error", err)
				}
			}
			evalCount++

			elapsed := time.Since(startTime)
			avgPerEval := elapsed / time.Duration(evalCount)
			remaining := time.Duration(max(0, maxEvals-evalCount)) * avgPerEval
			fmt.Fprintf(out, "Eval %d/%d: bc=%.4f±%.4f (best=%.4f) | elapsed: %s, ETA: %s\n",
				evalCount, maxEvals, res.MeanBC, res.StdBC, -bestFitness,
				formatDuration(elapsed), formatDuration(remaining))

			return fitness
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Concurrent:      0, // Sequential evaluation
		Converger:       contextConverger{ctx: ctx},
	}
	method := &optimize.CmaEsChol{
		InitStepSize: baseCfg.Optimize.InitStepSize,
		Population:   popSize,
	}

	fmt.Fprintf(out, "Starting CMA-ES optimization with %d parameters, population=%d, max_evals=%d\n",
		dim, popSize, maxEvals)
	fmt.Fprintf(out, "Replicates per evaluation: %d, steps per run: %d\n", len(seeds), baseCfg.Derived.MaxSteps)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		slog.Warn("optimization ended", "error", err)
	}
	if ctx.Err() != nil {
		fmt.Fprintln(out, "\nOptimization interrupted")
	}

	if bestParams == nil {
		if result == nil {
			return errors.New("no evaluation completed")
		}
		bestParams = params.Clamp(params.Denormalize(result.X))
	}

	fmt.Fprintf(out, "\nOptimization complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	if best, err := store.Best(context.WithoutCancel(ctx), runID); err == nil {
		fmt.Fprintf(out, "Best mean BC: %.4f ± %.4f (eval %d)\n", best.MeanBC, best.StdBC, best.Eval)
	}

	fmt.Fprintln(out, "\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Fprintf(out, "  %s: %.6f\n", spec.Name, bestParams[i])
	}

	bestCfg := baseCfg.Clone()
	params.ApplyToConfig(bestCfg, bestParams)
	configOutPath := filepath.Join(opts.outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nBest config saved to: %s\n", configOutPath)
	return nil
}

// writeLogRow appends row to the CSV log, with a header on the first call.
func writeLogRow(f *os.File, row logRow, header bool) error {
	rows := []logRow{row}
	if header {
		return gocsv.Marshal(rows, f)
	}
	return gocsv.MarshalWithoutHeaders(rows, f)
}
