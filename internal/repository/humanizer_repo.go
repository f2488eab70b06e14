package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"timekill-backend/internal/models"
)

type HumanizerRepo struct {
	pool *pgxpool.Pool
}

func NewHumanizerRepo(pool *pgxpool.Pool) *HumanizerRepo {
	return &HumanizerRepo{pool: pool}
}

// CreateRun appends one immutable run record. Runs are never updated.
func (r *HumanizerRepo) CreateRun(ctx context.Context, run *models.HumanizerRun) error {
	run.ID = uuid.New()

	query := `INSERT INTO humanizer_runs
		(id, user_id, input_text, output_text, sapling_score, iterations, failed_iterations, similarity, credits_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		run.ID, run.UserID, run.InputText, run.OutputText, run.SaplingScore,
		run.Iterations, run.FailedIterations, run.Similarity, run.CreditsUsed,
	).Scan(&run.CreatedAt)
}

func (r *HumanizerRepo) ListRuns(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.HumanizerRun, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM humanizer_runs WHERE user_id = $1", userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT id, user_id, input_text, output_text, sapling_score, iterations, failed_iterations, similarity, credits_used, created_at
		FROM humanizer_runs WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*models.HumanizerRun
	for rows.Next() {
		run := &models.HumanizerRun{}
		err := rows.Scan(
			&run.ID, &run.UserID, &run.InputText, &run.OutputText, &run.SaplingScore,
			&run.Iterations, &run.FailedIterations, &run.Similarity, &run.CreditsUsed, &run.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}

	return runs, total, rows.Err()
}

// WeeklyCreditsUsed reads the credit ledger for one (user, ISO year, ISO week).
func (r *HumanizerRepo) WeeklyCreditsUsed(ctx context.Context, userID uuid.UUID, isoYear, isoWeek int) (int, error) {
	var used int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(credits_used, 0) FROM humanizer_usage
		WHERE user_id = $1 AND iso_year = $2 AND iso_week = $3
	`, userID, isoYear, isoWeek).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		// No ledger row yet means nothing consumed this week.
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return used, nil
}

// AddWeeklyCredits increments the ledger after a successful run.
func (r *HumanizerRepo) AddWeeklyCredits(ctx context.Context, userID uuid.UUID, isoYear, isoWeek, credits int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO humanizer_usage (user_id, iso_year, iso_week, credits_used)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, iso_year, iso_week) DO UPDATE
		SET credits_used = humanizer_usage.credits_used + $4, updated_at = NOW()
	`, userID, isoYear, isoWeek, credits)
	return err
}

func (r *HumanizerRepo) GetStats(ctx context.Context, userID uuid.UUID, isoYear, isoWeek int) (*models.HumanizerStats, error) {
	stats := &models.HumanizerStats{}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(AVG(sapling_score), 0),
			COALESCE(MIN(sapling_score), 0),
			COALESCE(SUM(credits_used), 0)
		FROM humanizer_runs WHERE user_id = $1
	`, userID).Scan(&stats.TotalRuns, &stats.AverageScore, &stats.BestScore, &stats.TotalCreditsUsed)
	if err != nil {
		return nil, err
	}

	used, err := r.WeeklyCreditsUsed(ctx, userID, isoYear, isoWeek)
	if err != nil {
		return nil, err
	}
	stats.CreditsThisWeek = used

	return stats, nil
}
