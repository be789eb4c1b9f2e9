package runstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pthm-cable/ecmigrate/config"
)

func params(sigma float64) config.MotilityConfig {
	return config.MotilityConfig{
		Sigma:               sigma,
		LateralRestriction:  0.36,
		VerticalRestriction: 0.89,
		ForwardBias:         0.56,
		PersistenceTime:     49.8,
	}
}

func TestStoreRecordAndBest(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "optimize.db")

	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	run, err := st.StartRun(ctx, 42, "motility:\n  sigma: 2.8\n")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	if _, err := st.Best(ctx, run); !errors.Is(err, ErrNoEvaluations) {
		t.Fatalf("Best on empty run = %v, want ErrNoEvaluations", err)
	}

	evals := []Evaluation{
		{Eval: 0, Params: params(2.8), Replicates: []float64{0.80, 0.82, 0.81}, MeanBC: 0.81, StdBC: 0.008, Elapsed: 1500 * time.Millisecond},
		{Eval: 1, Params: params(3.4), Replicates: []float64{0.90, 0.88, 0.89}, MeanBC: 0.89, StdBC: 0.008, Elapsed: 1400 * time.Millisecond},
		{Eval: 2, Params: params(1.1), Replicates: []float64{0.50, 0.52, 0.54}, MeanBC: 0.52, StdBC: 0.016, Elapsed: 1300 * time.Millisecond},
	}
	for _, e := range evals {
		if err := st.RecordEvaluation(ctx, run, e); err != nil {
			t.Fatalf("RecordEvaluation(%d): %v", e.Eval, err)
		}
	}

	best, err := st.Best(ctx, run)
	if err != nil {
		t.Fatalf("Best: %v", err)
	}
	if best.Eval != 1 || best.Params.Sigma != 3.4 || best.MeanBC != 0.89 {
		t.Errorf("best = %+v, want eval 1", best)
	}
	if len(best.Replicates) != 3 || best.Replicates[1] != 0.88 {
		t.Errorf("best replicates = %v", best.Replicates)
	}
	if best.Elapsed != 1400*time.Millisecond {
		t.Errorf("elapsed = %v", best.Elapsed)
	}

	all, err := st.Evaluations(ctx, run)
	if err != nil {
		t.Fatalf("Evaluations: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d evaluations, want 3", len(all))
	}
	for i, e := range all {
		if e.Eval != i || e.Params != evals[i].Params || len(e.Replicates) != 3 {
			t.Errorf("evaluation %d = %+v", i, e)
		}
	}
}

func TestStoreRejectsDuplicateEval(t *testing.T) {
	ctx := context.Background()
	st, err := Open(filepath.Join(t.TempDir(), "optimize.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	run, err := st.StartRun(ctx, 1, "")
	if err != nil {
		t.Fatal(err)
	}
	e := Evaluation{Eval: 0, Params: params(2), Replicates: []float64{0.5}, MeanBC: 0.5}
	if err := st.RecordEvaluation(ctx, run, e); err != nil {
		t.Fatal(err)
	}
	if err := st.RecordEvaluation(ctx, run, e); err == nil {
		t.Fatal("expected duplicate evaluation to fail")
	}

	// the failed transaction must not leave replicate rows behind
	all, err := st.Evaluations(ctx, run)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || len(all[0].Replicates) != 1 {
		t.Errorf("evaluations after duplicate = %+v", all)
	}
}

func TestStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "optimize.db")

	st, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	run, err := st.StartRun(ctx, 9, "cfg")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.RecordEvaluation(ctx, run, Evaluation{Eval: 0, Params: params(2.5), MeanBC: 0.7}); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var (
		seed  int64
		sigma float64
	)
	row := db.QueryRow(`SELECT r.seed, e.sigma FROM runs r JOIN evaluations e ON e.run_id = r.id`)
	if err := row.Scan(&seed, &sigma); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if seed != 9 || sigma != 2.5 {
		t.Errorf("seed=%d sigma=%v, want 9 and 2.5", seed, sigma)
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("expected error for empty path")
	}
}
