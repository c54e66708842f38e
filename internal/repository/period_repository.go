package repository

import (
	"context"
	"database/sql"
	"fmt"

	"onetrivia/game-service/internal/models"
)

type PeriodRepository interface {
	FindByID(ctx context.Context, id uint64) (*models.Period, error)
	ListActive(ctx context.Context) ([]*models.Period, error)
}

type periodRepository struct {
	db *sql.DB
}

func NewPeriodRepository(db *sql.DB) PeriodRepository {
	return &periodRepository{db: db}
}

const periodColumns = `id, mode_id, status, starts_at, ends_at, min_answers_to_qualify, max_winners, payout_amount, payout_currency, created_at, updated_at`

func (r *periodRepository) FindByID(ctx context.Context, id uint64) (*models.Period, error) {
	query := `SELECT ` + periodColumns + ` FROM periods WHERE id = ?`

	period, err := scanPeriod(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find period: %w", err)
	}
	return period, nil
}

func (r *periodRepository) ListActive(ctx context.Context) ([]*models.Period, error) {
	query := `SELECT ` + periodColumns + ` FROM periods WHERE status = ? ORDER BY ends_at`

	rows, err := r.db.QueryContext(ctx, query, models.PeriodStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query active periods: %w", err)
	}
	defer rows.Close()

	var periods []*models.Period
	for rows.Next() {
		period, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		periods = append(periods, period)
	}

	return periods, nil
}

func scanPeriod(row rowScanner) (*models.Period, error) {
	period := &models.Period{}
	var payout string
	err := row.Scan(
		&period.ID, &period.ModeID, &period.Status, &period.StartsAt, &period.EndsAt,
		&period.MinAnswersToQualify, &period.MaxWinners, &payout, &period.PayoutCurrency,
		&period.CreatedAt, &period.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	period.PayoutAmount = parseDecimal(payout)
	return period, nil
}
