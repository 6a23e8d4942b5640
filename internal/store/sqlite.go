package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cwbudde/onefifth/internal/driver"

	_ "modernc.org/sqlite"
)

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID             string        `json:"id"`
	Objective      string        `json:"objective"`
	Dim            int           `json:"dim"`
	Rule           string        `json:"rule"`
	Seed           int64         `json:"seed"`
	Generations    int           `json:"generations"`
	Evaluations    int           `json:"evaluations"`
	InitialFitness float64       `json:"initialFitness"`
	BestFitness    float64       `json:"bestFitness"`
	StopReason     string        `json:"stopReason"`
	Elapsed        time.Duration `json:"elapsed"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// SQLiteHistory records finished runs and their per-generation logbooks in a
// SQLite database. It complements FSStore, which only keeps the latest
// checkpoint of each job.
type SQLiteHistory struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteHistory(path string) *SQLiteHistory {
	return &SQLiteHistory{path: path}
}

// Init opens the database and creates the tables. Calling it twice is a no-op.
func (h *SQLiteHistory) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.path == "" {
		return errors.New("sqlite path is required")
	}
	if h.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", h.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	h.db = db
	return nil
}

// SaveRun inserts or replaces a run summary.
func (h *SQLiteHistory) SaveRun(ctx context.Context, run RunSummary) error {
	db, err := h.getDB()
	if err != nil {
		return err
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, objective, dim, rule, seed, generations, evaluations,
			initial_fitness, best_fitness, stop_reason, elapsed_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			objective = excluded.objective,
			dim = excluded.dim,
			rule = excluded.rule,
			seed = excluded.seed,
			generations = excluded.generations,
			evaluations = excluded.evaluations,
			initial_fitness = excluded.initial_fitness,
			best_fitness = excluded.best_fitness,
			stop_reason = excluded.stop_reason,
			elapsed_ns = excluded.elapsed_ns,
			created_at = excluded.created_at
	`, run.ID, run.Objective, run.Dim, run.Rule, run.Seed, run.Generations, run.Evaluations,
		run.InitialFitness, run.BestFitness, run.StopReason, int64(run.Elapsed), run.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// SaveGenerations replaces the logbook of a run in a single transaction.
func (h *SQLiteHistory) SaveGenerations(ctx context.Context, runID string, logbook driver.Logbook) error {
	db, err := h.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM generations WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear generations of %s: %w", runID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO generations (run_id, generation, evaluations, fitness, best, sigma, psucc, accepted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range logbook {
		if _, err := stmt.ExecContext(ctx, runID, r.Generation, r.Evaluations, r.Fitness, r.Best, r.Sigma, r.PSucc, r.Accepted); err != nil {
			return fmt.Errorf("save generation %d of %s: %w", r.Generation, runID, err)
		}
	}
	return tx.Commit()
}

// GetRun returns the run with the given id, and false if it does not exist.
func (h *SQLiteHistory) GetRun(ctx context.Context, id string) (RunSummary, bool, error) {
	db, err := h.getDB()
	if err != nil {
		return RunSummary{}, false, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, objective, dim, rule, seed, generations, evaluations,
			initial_fitness, best_fitness, stop_reason, elapsed_ns, created_at
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunSummary{}, false, nil
		}
		return RunSummary{}, false, err
	}
	return run, true, nil
}

// ListRuns returns all runs, newest first.
func (h *SQLiteHistory) ListRuns(ctx context.Context) ([]RunSummary, error) {
	db, err := h.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, objective, dim, rule, seed, generations, evaluations,
			initial_fitness, best_fitness, stop_reason, elapsed_ns, created_at
		FROM runs ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetGenerations returns the stored logbook of a run in generation order.
// Offspring statistics are not persisted.
func (h *SQLiteHistory) GetGenerations(ctx context.Context, runID string) (driver.Logbook, error) {
	db, err := h.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT generation, evaluations, fitness, best, sigma, psucc, accepted
		FROM generations WHERE run_id = ? ORDER BY generation
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lb driver.Logbook
	for rows.Next() {
		var r driver.Record
		if err := rows.Scan(&r.Generation, &r.Evaluations, &r.Fitness, &r.Best, &r.Sigma, &r.PSucc, &r.Accepted); err != nil {
			return nil, err
		}
		lb = append(lb, r)
	}
	return lb, rows.Err()
}

func (h *SQLiteHistory) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

func (h *SQLiteHistory) getDB() (*sql.DB, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.db == nil {
		return nil, errors.New("history is not initialized")
	}
	return h.db, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunSummary, error) {
	var (
		run       RunSummary
		elapsed   int64
		createdAt int64
	)
	err := row.Scan(&run.ID, &run.Objective, &run.Dim, &run.Rule, &run.Seed, &run.Generations, &run.Evaluations,
		&run.InitialFitness, &run.BestFitness, &run.StopReason, &elapsed, &createdAt)
	if err != nil {
		return RunSummary{}, err
	}
	run.Elapsed = time.Duration(elapsed)
	run.CreatedAt = time.Unix(0, createdAt)
	return run, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			objective TEXT NOT NULL,
			dim INTEGER NOT NULL,
			rule TEXT NOT NULL,
			seed INTEGER NOT NULL,
			generations INTEGER NOT NULL,
			evaluations INTEGER NOT NULL,
			initial_fitness REAL NOT NULL,
			best_fitness REAL NOT NULL,
			stop_reason TEXT NOT NULL,
			elapsed_ns INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS generations (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			evaluations INTEGER NOT NULL,
			fitness REAL NOT NULL,
			best REAL NOT NULL,
			sigma REAL NOT NULL,
			psucc REAL NOT NULL,
			accepted INTEGER NOT NULL,
			PRIMARY KEY (run_id, generation)
		);
	`)
	return err
}
