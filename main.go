package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/ecmigrate/analysis"
	"github.com/pthm-cable/ecmigrate/config"
	"github.com/pthm-cable/ecmigrate/field"
	"github.com/pthm-cable/ecmigrate/sim"
	"github.com/pthm-cable/ecmigrate/systems"
	"github.com/pthm-cable/ecmigrate/telemetry"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ecmigrate",
		Short: "Agent-based cell migration through an extracellular matrix",
		Long: `ecmigrate seeds a tissue of cells in a microfluidic channel and moves
them with a persistent biased random walk whose speed is damped by the local
ECM viscosity. Traveled distances can be compared with experimental histograms.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			// Initialize config before anything else
			if err := config.Init(configPath); err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			// Structured JSON logs go to stderr, CSV results to stdout
			slog.SetDefault(slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), nil)))
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config.yaml (empty = use defaults)")

	rootCmd.AddCommand(
		newRunCmd(),
		newSeedCmd(),
		newAnalyzeCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ecmigrate version %s\n", version)
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		outputDir string
		seed      uint64
		logStats  bool
		maxTime   float64
		score     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a headless simulation",
		Long: `Run seeds the tissue and steps it until time.max_time (minutes).

With --output-dir, telemetry, perf stats, the config snapshot and daily
position snapshots are written there. With --score, the traveled distances of
the compared days are scored against the experimental histograms.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Cfg()
			if maxTime > 0 {
				cfg = cfg.WithMaxTime(maxTime)
			}
			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := sim.New(cfg, sim.Options{
				Seed:      seed,
				OutputDir: outputDir,
				LogStats:  logStats,
			})
			if err != nil {
				return err
			}
			defer s.Close()

			slog.Info("starting headless simulation",
				"seed", seed,
				"agents", s.AgentCount(),
				"output_dir", outputDir,
			)
			if err := s.Run(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			if !score {
				return nil
			}
			cmp, err := analysis.NewComparator(cfg.Analysis)
			if err != nil {
				return fmt.Errorf("loading experimental histograms: %w", err)
			}
			result, err := cmp.Compare(s.Distances)
			if err != nil {
				return err
			}
			return reportScore(cmd, result, outputDir)
		},
	}

	f := cmd.Flags()
	f.StringVar(&outputDir, "output-dir", "", "Output directory for CSV logs, snapshots and config")
	f.Uint64Var(&seed, "seed", 0, "RNG seed (0 = time-based)")
	f.BoolVar(&logStats, "log-stats", false, "Output window stats via slog")
	f.Float64Var(&maxTime, "max-time", 0, "Stop after this many minutes (0 = use config)")
	f.BoolVar(&score, "score", false, "Compare traveled distances with experimental histograms")
	return cmd
}

// latticeRow is one seeded position.
type latticeRow struct {
	X float64 `csv:"x"`
	Y float64 `csv:"y"`
	Z float64 `csv:"z"`
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Print the seeded tissue lattice as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Cfg()
			box := field.SeedingBox(field.NewMesh(cfg.Mesh), cfg.Domain)
			positions := systems.NewLattice(cfg.Definitions[0].Radius).Positions(box)

			rows := make([]latticeRow, len(positions))
			for i, p := range positions {
				rows[i] = latticeRow{X: p.X, Y: p.Y, Z: p.Z}
			}
			slog.Info("lattice", "cells", len(rows), "box", box.Bounds())
			return gocsv.Marshal(rows, cmd.OutOrStdout())
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <output-dir>",
		Short: "Score saved position snapshots against experimental histograms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			snapshots, err := telemetry.ListSnapshots(dir)
			if err != nil {
				return err
			}
			if len(snapshots) == 0 {
				return fmt.Errorf("no position snapshots in %s", dir)
			}

			days := make([]int, 0, len(snapshots))
			for day := range snapshots {
				days = append(days, day)
			}
			sort.Ints(days)
			slog.Info("snapshots found", "dir", dir, "days", days)

			cfg := config.Cfg()
			cmp, err := analysis.NewComparator(cfg.Analysis)
			if err != nil {
				return fmt.Errorf("loading experimental histograms: %w", err)
			}

			distances := make(map[int][]float64, len(snapshots))
			for _, day := range cmp.Days {
				path, ok := snapshots[day]
				if !ok {
					continue
				}
				records, err := telemetry.LoadPositions(path)
				if err != nil {
					return fmt.Errorf("loading %s: %w", path, err)
				}
				distances[day] = telemetry.Distances(records, cfg.Analysis.Quantity)
			}

			result, err := cmp.Compare(func(day int) ([]float64, bool) {
				d, ok := distances[day]
				return d, ok
			})
			if err != nil {
				return err
			}
			return reportScore(cmd, result, "")
		},
	}
}

// reportScore logs the per-day coefficients and writes them as CSV to stdout,
// and to bc.csv in dir when dir is set.
func reportScore(cmd *cobra.Command, result analysis.Score, dir string) error {
	for _, d := range result.Days {
		slog.Info("bhattacharyya", "day", d.Day, "cells", d.Cells, "bc", d.BC)
	}
	slog.Info("bhattacharyya mean", "bc", result.Mean, "days", len(result.Days))

	if err := gocsv.Marshal(result.Days, cmd.OutOrStdout()); err != nil {
		return err
	}
	if dir == "" {
		return nil
	}
	f, err := os.Create(filepath.Join(dir, "bc.csv"))
	if err != nil {
		return fmt.Errorf("creating bc.csv: %w", err)
	}
	defer f.Close()
	return gocsv.Marshal(result.Days, f)
}
