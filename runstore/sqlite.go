// Package runstore records parameter-fitting evaluations in SQLite.
package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pthm-cable/ecmigrate/config"
)

// ErrNoEvaluations is returned by Best for a run with nothing recorded.
var ErrNoEvaluations = errors.New("run has no evaluations")

// Evaluation is one scored parameter set.
type Evaluation struct {
	Eval       int
	Params     config.MotilityConfig
	Replicates []float64 // mean BC of each replicate
	MeanBC     float64
	StdBC      float64
	Elapsed    time.Duration
}

// Store is a SQLite-backed evaluation log.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TEXT NOT NULL,
			seed INTEGER NOT NULL,
			config TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS evaluations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES runs(id),
			eval INTEGER NOT NULL,
			sigma REAL NOT NULL,
			lateral_restriction REAL NOT NULL,
			vertical_restriction REAL NOT NULL,
			forward_bias REAL NOT NULL,
			persistence_time REAL NOT NULL,
			mean_bc REAL NOT NULL,
			std_bc REAL NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			UNIQUE(run_id, eval)
		);`,
		`CREATE TABLE IF NOT EXISTS replicates (
			evaluation_id INTEGER NOT NULL REFERENCES evaluations(id),
			replicate INTEGER NOT NULL,
			bc REAL NOT NULL,
			PRIMARY KEY(evaluation_id, replicate)
		);`,
		`CREATE INDEX IF NOT EXISTS evaluations_by_score ON evaluations(run_id, mean_bc);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// StartRun registers a new optimization run and returns its id.
func (s *Store) StartRun(ctx context.Context, seed uint64, configYAML string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(started_at, seed, config) VALUES(?,?,?)`,
		time.Now().UTC().Format(time.RFC3339), int64(seed), configYAML,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	return res.LastInsertId()
}

// RecordEvaluation stores an evaluation and its replicate scores atomically.
func (s *Store) RecordEvaluation(ctx context.Context, runID int64, e Evaluation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p := e.Params
	res, err := tx.ExecContext(ctx,
		`INSERT INTO evaluations(run_id, eval, sigma, lateral_restriction, vertical_restriction,
			forward_bias, persistence_time, mean_bc, std_bc, elapsed_ms)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		runID, e.Eval, p.Sigma, p.LateralRestriction, p.VerticalRestriction,
		p.ForwardBias, p.PersistenceTime, e.MeanBC, e.StdBC, e.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting evaluation %d: %w", e.Eval, err)
	}
	evalID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for i, bc := range e.Replicates {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO replicates(evaluation_id, replicate, bc) VALUES(?,?,?)`,
			evalID, i, bc,
		); err != nil {
			return fmt.Errorf("inserting replicate %d: %w", i, err)
		}
	}
	return tx.Commit()
}

const evaluationColumns = `id, eval, sigma, lateral_restriction, vertical_restriction,
	forward_bias, persistence_time, mean_bc, std_bc, elapsed_ms`

// Best returns the evaluation with the highest mean BC.
func (s *Store) Best(ctx context.Context, runID int64) (Evaluation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations
		WHERE run_id=? ORDER BY mean_bc DESC, eval ASC LIMIT 1`, runID)
	id, e, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Evaluation{}, ErrNoEvaluations
	}
	if err != nil {
		return Evaluation{}, err
	}
	e.Replicates, err = s.replicates(ctx, id)
	return e, err
}

// Evaluations returns every evaluation of a run in order.
func (s *Store) Evaluations(ctx context.Context, runID int64) ([]Evaluation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE run_id=? ORDER BY eval`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	var out []Evaluation
	for rows.Next() {
		id, e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i, id := range ids {
		if out[i].Replicates, err = s.replicates(ctx, id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) replicates(ctx context.Context, evalID int64) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bc FROM replicates WHERE evaluation_id=? ORDER BY replicate`, evalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var bc float64
		if err := rows.Scan(&bc); err != nil {
			return nil, err
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(r scanner) (int64, Evaluation, error) {
	var (
		id      int64
		e       Evaluation
		elapsed int64
	)
	err := r.Scan(&id, &e.Eval,
		&e.Params.Sigma, &e.Params.LateralRestriction, &e.Params.VerticalRestriction,
		&e.Params.ForwardBias, &e.Params.PersistenceTime,
		&e.MeanBC, &e.StdBC, &elapsed)
	e.Elapsed = time.Duration(elapsed) * time.Millisecond
	return id, e, err
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
