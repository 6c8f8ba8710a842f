package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Relay/internal/timers"
)

// TimerRepo — Postgres-хранилище durable-таймеров.
// Реализует timers.Store: таймеры переживают рестарт процесса.
type TimerRepo struct {
	pool *pgxpool.Pool
}

// NewTimerRepo создаёт новый TimerRepo.
func NewTimerRepo(pool *pgxpool.Pool) *TimerRepo {
	return &TimerRepo{pool: pool}
}

func (r *TimerRepo) Put(ctx context.Context, entry timers.Entry) error {
	query := `
		INSERT INTO timers (token, run_id, timer_key, fire_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO UPDATE SET fire_at = EXCLUDED.fire_at
	`
	_, err := r.pool.Exec(ctx, query, entry.Token, entry.RunID, entry.TimerKey, entry.FireAt)
	if err != nil {
		return fmt.Errorf("upsert timer: %w", err)
	}
	return nil
}

func (r *TimerRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]timers.Entry, error) {
	query := `
		SELECT token, run_id, timer_key, fire_at
		FROM timers
		WHERE fire_at <= $1
		ORDER BY fire_at
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due timers: %w", err)
	}
	defer rows.Close()

	var entries []timers.Entry
	for rows.Next() {
		var entry timers.Entry
		if err := rows.Scan(&entry.Token, &entry.RunID, &entry.TimerKey, &entry.FireAt); err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *TimerRepo) Delete(ctx context.Context, token uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM timers WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("delete timer: %w", err)
	}
	return nil
}

func (r *TimerRepo) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM timers WHERE run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("delete run timers: %w", err)
	}
	return nil
}
