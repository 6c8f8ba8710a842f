package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Relay/internal/domain"
)

// RunRepo — репозиторий снапшотов runs.
//
// Движок держит состояние в памяти и пишет снапшот после каждого
// перехода; строка run целиком перезаписывается (upsert по id).
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// SaveRun сохраняет снапшот run. Реализует runtime.Store.
func (r *RunRepo) SaveRun(ctx context.Context, run *domain.Run) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	statesJSON, err := json.Marshal(run.StepStates)
	if err != nil {
		return fmt.Errorf("marshal step states: %w", err)
	}

	query := `
		INSERT INTO runs (id, flow_name, status, params, step_states, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			step_states = EXCLUDED.step_states,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.FlowName,
		run.Status,
		paramsJSON,
		statesJSON,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, flow_name, status, params, step_states, error, started_at, finished_at
		FROM runs
		WHERE id = $1
	`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// ListActive возвращает runs в нетерминальных статусах.
// Используется при рестарте для восстановления состояния движка.
func (r *RunRepo) ListActive(ctx context.Context) ([]*domain.Run, error) {
	query := `
		SELECT id, flow_name, status, params, step_states, error, started_at, finished_at
		FROM runs
		WHERE status IN ('RUNNING', 'SUSPENDED')
		ORDER BY started_at
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// rowScanner покрывает pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var (
		run        domain.Run
		paramsJSON []byte
		statesJSON []byte
		errText    *string
	)

	err := row.Scan(
		&run.ID,
		&run.FlowName,
		&run.Status,
		&paramsJSON,
		&statesJSON,
		&errText,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if err := json.Unmarshal(paramsJSON, &run.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if err := json.Unmarshal(statesJSON, &run.StepStates); err != nil {
		return nil, fmt.Errorf("unmarshal step states: %w", err)
	}
	if errText != nil {
		run.Error = *errText
	}

	return &run, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
