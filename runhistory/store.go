// Package runhistory persists per-run and per-epoch training metrics to a
// SQLite database so past runs can be compared after the process exits.
package runhistory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages training history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    started_at    TEXT NOT NULL,
    finished_at   TEXT,
    status        TEXT NOT NULL DEFAULT 'running',
    input_path    TEXT NOT NULL,
    input_type    TEXT NOT NULL,
    num_classes   INTEGER NOT NULL,
    num_samples   INTEGER NOT NULL,
    epochs        INTEGER NOT NULL,
    batch_size    INTEGER NOT NULL,
    learning_rate REAL NOT NULL,
    seed          INTEGER NOT NULL,
    best_loss     REAL
);

CREATE TABLE IF NOT EXISTS epochs (
    run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    epoch          INTEGER NOT NULL,
    train_loss     REAL NOT NULL,
    train_accuracy REAL NOT NULL,
    valid_loss     REAL NOT NULL,
    valid_accuracy REAL NOT NULL,
    duration_ms    INTEGER NOT NULL,
    PRIMARY KEY (run_id, epoch)
);
`

// Open initializes or connects to the history database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RunInfo describes one training run row.
type RunInfo struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       string
	InputPath    string
	InputType    string
	NumClasses   int
	NumSamples   int
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64
	BestLoss     *float64
}

// EpochRecord is one per-epoch metrics row.
type EpochRecord struct {
	RunID         string
	Epoch         int
	TrainLoss     float64
	TrainAccuracy float64
	ValidLoss     float64
	ValidAccuracy float64
	Duration      time.Duration
}

// BeginRun inserts a new run in the running state.
func (s *Store) BeginRun(ctx context.Context, run RunInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (
            id, started_at, status, input_path, input_type,
            num_classes, num_samples, epochs, batch_size, learning_rate, seed
        ) VALUES (?, ?, 'running', ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.InputPath,
		run.InputType,
		run.NumClasses,
		run.NumSamples,
		run.Epochs,
		run.BatchSize,
		run.LearningRate,
		run.Seed,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordEpoch appends one epoch's metrics for a run.
func (s *Store) RecordEpoch(ctx context.Context, rec EpochRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO epochs (
            run_id, epoch, train_loss, train_accuracy,
            valid_loss, valid_accuracy, duration_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.Epoch,
		rec.TrainLoss,
		rec.TrainAccuracy,
		rec.ValidLoss,
		rec.ValidAccuracy,
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert epoch %d: %w", rec.Epoch, err)
	}
	return nil
}

// FinishRun marks a run completed (or failed) and records its best
// validation loss.
func (s *Store) FinishRun(ctx context.Context, runID, status string, bestLoss float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, best_loss = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		status,
		bestLoss,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return err
}

// Epochs returns the recorded epochs for a run in order.
func (s *Store) Epochs(ctx context.Context, runID string) ([]EpochRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT epoch, train_loss, train_accuracy, valid_loss, valid_accuracy, duration_ms
         FROM epochs WHERE run_id = ? ORDER BY epoch`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query epochs: %w", err)
	}
	defer rows.Close()

	var out []EpochRecord
	for rows.Next() {
		rec := EpochRecord{RunID: runID}
		var durationMs int64
		if err := rows.Scan(&rec.Epoch, &rec.TrainLoss, &rec.TrainAccuracy,
			&rec.ValidLoss, &rec.ValidAccuracy, &durationMs); err != nil {
			return nil, fmt.Errorf("scan epoch row: %w", err)
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Run fetches one run row by id.
func (s *Store) Run(ctx context.Context, runID string) (*RunInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, status, input_path, input_type,
                num_classes, num_samples, epochs, batch_size, learning_rate, seed, best_loss
         FROM runs WHERE id = ?`,
		runID,
	)

	var run RunInfo
	var started string
	var finished sql.NullString
	var bestLoss sql.NullFloat64
	err := row.Scan(&run.ID, &started, &finished, &run.Status, &run.InputPath,
		&run.InputType, &run.NumClasses, &run.NumSamples, &run.Epochs,
		&run.BatchSize, &run.LearningRate, &run.Seed, &bestLoss)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run row: %w", err)
	}

	run.StartedAt, err = time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		ts, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &ts
	}
	if bestLoss.Valid {
		run.BestLoss = &bestLoss.Float64
	}
	return &run, nil
}
