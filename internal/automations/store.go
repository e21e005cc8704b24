package automations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists automations in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore creates an automation store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// List returns all automations ordered by creation time, newest first.
func (s *Store) List(ctx context.Context) ([]Automation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(automation_id, ''), name, active, COALESCE(status, ''),
		       completed_calls, total_calls, last_run_at, next_run_at,
		       created_at, updated_at
		FROM automations
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list automations: %w", err)
	}
	defer rows.Close()

	var out []Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get returns the automation with the given canonical identifier, or
// nil when none exists. Both identity columns are consulted.
func (s *Store) Get(ctx context.Context, id string) (*Automation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(automation_id, ''), name, active, COALESCE(status, ''),
		       completed_calls, total_calls, last_run_at, next_run_at,
		       created_at, updated_at
		FROM automations
		WHERE id = $1 OR automation_id = $1`, id)

	a, err := scanAutomation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new automation. A missing ID is generated.
func (s *Store) Create(ctx context.Context, a *Automation) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO automations (id, automation_id, name, active, status,
		                         completed_calls, total_calls, last_run_at, next_run_at,
		                         created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, nullString(a.AutomationID), a.Name, a.Active, nullString(a.Status),
		a.CompletedCalls, a.TotalCalls, a.LastRunAt, a.NextRunAt,
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create automation: %w", err)
	}
	return nil
}

// SetActive toggles an automation on or off.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE automations
		SET active = $2, updated_at = NOW()
		WHERE id = $1 OR automation_id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update automation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("automation %s not found", id)
	}
	return nil
}

// RecordRun updates progress counters and run timestamps after a
// dialing pass completes.
func (s *Store) RecordRun(ctx context.Context, id string, completed, total int, nextRun *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE automations
		SET completed_calls = $2, total_calls = $3,
		    last_run_at = NOW(), next_run_at = $4, updated_at = NOW()
		WHERE id = $1 OR automation_id = $1`, id, completed, total, nextRun)
	if err != nil {
		return fmt.Errorf("failed to record run for automation %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAutomation(row rowScanner) (Automation, error) {
	var a Automation
	var lastRun, nextRun sql.NullTime
	err := row.Scan(&a.ID, &a.AutomationID, &a.Name, &a.Active, &a.Status,
		&a.CompletedCalls, &a.TotalCalls, &lastRun, &nextRun,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Automation{}, err
	}
	if lastRun.Valid {
		a.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		a.NextRunAt = &nextRun.Time
	}
	return a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
