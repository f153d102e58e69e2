package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"
)

// DefaultListLimit bounds ListRuns when the caller passes a non-positive
// limit.
const DefaultListLimit = 20

// timeLayout has a fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore is a RunStore backed by a SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens (or creates) the SQLite database at dsn and ensures the
// schema exists. Pass ":memory:" for an in-memory database.
func Open(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "open", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.StorageError(errors.CodeStoreUnavailable, "open", fmt.Errorf("%s: %w", pragma, err))
		}
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "migrate", err)
	}

	log := logger.WithComponent("run_store").WithField("dsn", dsn)
	log.Debug("Run store opened")

	return &SQLiteStore{db: db, logger: log}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			workflow TEXT NOT NULL,
			tolerance_days INTEGER NOT NULL,
			bank_source TEXT NOT NULL,
			system_source TEXT NOT NULL,
			bank_variant TEXT NOT NULL,
			total_bank INTEGER NOT NULL,
			total_system INTEGER NOT NULL,
			matched INTEGER NOT NULL,
			unmatched_bank INTEGER NOT NULL,
			unmatched_system INTEGER NOT NULL,
			percent_verified REAL NOT NULL,
			duration_ms INTEGER NOT NULL,
			warnings TEXT NOT NULL,
			statistics TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,

		`CREATE TABLE IF NOT EXISTS run_matches (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			bank_id INTEGER NOT NULL,
			system_id INTEGER NOT NULL,
			match_key TEXT NOT NULL,
			bank_date TEXT NOT NULL,
			system_date TEXT NOT NULL,
			day_offset INTEGER NOT NULL,
			amount_delta TEXT NOT NULL,
			quality TEXT NOT NULL,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// SaveRun inserts run and its matches in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return errors.StorageError(errors.CodeProcessingError, "save_run", err)
	}
	statistics, err := json.Marshal(run.Statistics)
	if err != nil {
		return errors.StorageError(errors.CodeProcessingError, "save_run", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError(errors.CodeStoreUnavailable, "save_run", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs
		(id, created_at, workflow, tolerance_days, bank_source, system_source, bank_variant,
		 total_bank, total_system, matched, unmatched_bank, unmatched_system,
		 percent_verified, duration_ms, warnings, statistics)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.CreatedAt.UTC().Format(timeLayout), run.Workflow, run.ToleranceDays,
		run.BankSource, run.SystemSource, run.BankVariant,
		run.TotalBank, run.TotalSystem, run.Matched, run.UnmatchedBank, run.UnmatchedSystem,
		run.PercentVerified, run.Duration.Milliseconds(), string(warnings), string(statistics),
	)
	if err != nil {
		return errors.StorageError(errors.CodeStoreUnavailable, "save_run", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_matches
		(run_id, seq, bank_id, system_id, match_key, bank_date, system_date, day_offset, amount_delta, quality)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return errors.StorageError(errors.CodeStoreUnavailable, "save_run", err)
	}
	defer stmt.Close()

	for _, m := range run.Matches {
		if _, err := stmt.ExecContext(ctx,
			run.ID, m.Seq, m.BankID, m.SystemID, m.Key, m.BankDate, m.SystemDate,
			m.DayOffset, m.AmountDelta, m.Quality,
		); err != nil {
			return errors.StorageError(errors.CodeStoreUnavailable, "save_run", fmt.Errorf("match %d: %w", m.Seq, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError(errors.CodeStoreUnavailable, "save_run", err)
	}

	s.logger.WithFields(logger.Fields{
		"run_id":  run.ID,
		"matches": len(run.Matches),
	}).Info("Run saved")
	return nil
}

const runColumns = `id, created_at, workflow, tolerance_days, bank_source, system_source, bank_variant,
	total_bank, total_system, matched, unmatched_bank, unmatched_system,
	percent_verified, duration_ms, warnings, statistics`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		createdAt  string
		durationMS int64
		warnings   string
		statistics string
	)
	err := row.Scan(
		&run.ID, &createdAt, &run.Workflow, &run.ToleranceDays, &run.BankSource, &run.SystemSource,
		&run.BankVariant, &run.TotalBank, &run.TotalSystem, &run.Matched, &run.UnmatchedBank,
		&run.UnmatchedSystem, &run.PercentVerified, &durationMS, &warnings, &statistics,
	)
	if err != nil {
		return nil, err
	}

	if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal([]byte(warnings), &run.Warnings); err != nil {
		return nil, fmt.Errorf("warnings: %w", err)
	}
	if err := json.Unmarshal([]byte(statistics), &run.Statistics); err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}
	return &run, nil
}

// GetRun returns the run with id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.StorageError(errors.CodeRunNotFound, id, nil)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "get_run", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "list_runs", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeStoreUnavailable, "list_runs", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "list_runs", err)
	}
	return runs, nil
}

// ListMatches returns the matched pairs of a run in match order.
func (s *SQLiteStore) ListMatches(ctx context.Context, runID string) ([]RunMatch, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, bank_id, system_id, match_key, bank_date, system_date, day_offset, amount_delta, quality
		FROM run_matches WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "list_matches", err)
	}
	defer rows.Close()

	matches := []RunMatch{}
	for rows.Next() {
		var m RunMatch
		if err := rows.Scan(&m.RunID, &m.Seq, &m.BankID, &m.SystemID, &m.Key, &m.BankDate,
			&m.SystemDate, &m.DayOffset, &m.AmountDelta, &m.Quality); err != nil {
			return nil, errors.StorageError(errors.CodeStoreUnavailable, "list_matches", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "list_matches", err)
	}
	return matches, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
