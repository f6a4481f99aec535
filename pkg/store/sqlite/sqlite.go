// Package sqlite implements the run-history store on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/deepresearch/pkg/domain"
	"github.com/nstogner/deepresearch/pkg/store"
)

// Store implements store.RunStore using SQLite.
type Store struct {
	db *sql.DB
}

// Verify interface compliance at compile time.
var _ store.RunStore = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and runs
// migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		interaction_id TEXT NOT NULL UNIQUE,
		query TEXT NOT NULL DEFAULT '',
		agent TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		report_path TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Create persists a new run record.
func (s *Store) Create(ctx context.Context, run *store.Run) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, interaction_id, query, agent, state, report_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.InteractionID, run.Query, run.Agent, string(run.State), run.ReportPath,
		run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByInteraction retrieves a run by its remote interaction id.
func (s *Store) GetByInteraction(ctx context.Context, interactionID string) (*store.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, interaction_id, query, agent, state, report_path, created_at, updated_at
		FROM runs WHERE interaction_id = ?`, interactionID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run for interaction %s not found", interactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List returns runs newest-first, at most limit when limit > 0.
func (s *Store) List(ctx context.Context, limit int) ([]store.Run, error) {
	query := `
		SELECT id, interaction_id, query, agent, state, report_path, created_at, updated_at
		FROM runs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// SetState records the most recently observed state for a run.
func (s *Store) SetState(ctx context.Context, interactionID string, state domain.State) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET state = ?, updated_at = ? WHERE interaction_id = ?`,
		string(state), time.Now().UTC(), interactionID,
	)
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run for interaction %s not found", interactionID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*store.Run, error) {
	var run store.Run
	var state string
	if err := row.Scan(
		&run.ID, &run.InteractionID, &run.Query, &run.Agent, &state,
		&run.ReportPath, &run.CreatedAt, &run.UpdatedAt,
	); err != nil {
		return nil, err
	}
	run.State = domain.State(state)
	return &run, nil
}
