package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"creditiq/pkg/core/pipeline"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRepo mirrors complete results into the analysis_runs table.
type RunRepo struct {
	pool *pgxpool.Pool
}

func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Save upserts res on run_id.
func (r *RunRepo) Save(ctx context.Context, res *pipeline.RunResult) error {
	if r.pool == nil {
		return fmt.Errorf("database pool not configured")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	query := `
		INSERT INTO analysis_runs (run_id, url, state, result_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id)
		DO UPDATE SET
			state = EXCLUDED.state,
			result_json = EXCLUDED.result_json,
			updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, res.RunID, res.URL, string(res.State), data, res.Timestamp); err != nil {
		return fmt.Errorf("failed to save run %s: %w", res.RunID, err)
	}
	return nil
}

// Load returns the stored result of id.
func (r *RunRepo) Load(ctx context.Context, id string) (*pipeline.RunResult, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("database pool not configured")
	}
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT result_json FROM analysis_runs WHERE run_id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	var res pipeline.RunResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &res, nil
}
