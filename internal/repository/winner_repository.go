package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"onetrivia/game-service/internal/models"
)

var ErrPeriodNotActive = errors.New("period is not active")

type WinnerRepository interface {
	// CreateForPeriod flips the period ACTIVE to COMPLETED, inserts the
	// winner rows and credits lifetime earnings in one transaction. The
	// conditional status UPDATE is the linearization point: when it matches
	// no row the whole transaction aborts with ErrPeriodNotActive and no
	// winner is ever written, so finalization runs exactly once per period.
	CreateForPeriod(ctx context.Context, periodID uint64, winners []*models.Winner, earnings map[uint64]decimal.Decimal) error
	ListByPeriod(ctx context.Context, periodID uint64) ([]*models.Winner, error)
}

type winnerRepository struct {
	db *sql.DB
}

func NewWinnerRepository(db *sql.DB) WinnerRepository {
	return &winnerRepository{db: db}
}

func (r *winnerRepository) CreateForPeriod(ctx context.Context, periodID uint64, winners []*models.Winner, earnings map[uint64]decimal.Decimal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	claimQuery := `
		UPDATE periods
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := tx.ExecContext(ctx, claimQuery,
		models.PeriodStatusCompleted, time.Now(), periodID, models.PeriodStatusActive)
	if err != nil {
		return fmt.Errorf("failed to complete period: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPeriodNotActive
	}

	insertQuery := `
		INSERT INTO winners (user_id, period_id, ` + "`rank`" + `, payout_amount, payout_currency, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, winner := range winners {
		_, err := tx.ExecContext(ctx, insertQuery,
			winner.UserID, winner.PeriodID, winner.Rank,
			winner.PayoutAmount.String(), winner.PayoutCurrency,
			models.WinnerStatusPending, time.Now())
		if err != nil {
			return fmt.Errorf("failed to insert winner: %w", err)
		}
	}

	earningsQuery := `
		UPDATE users
		SET lifetime_earnings = lifetime_earnings + ?, updated_at = ?
		WHERE id = ?
	`
	for userID, amount := range earnings {
		_, err := tx.ExecContext(ctx, earningsQuery, amount.String(), time.Now(), userID)
		if err != nil {
			return fmt.Errorf("failed to credit lifetime earnings: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit finalization: %w", err)
	}

	return nil
}

func (r *winnerRepository) ListByPeriod(ctx context.Context, periodID uint64) ([]*models.Winner, error) {
	query := `
		SELECT id, user_id, period_id, ` + "`rank`" + `, payout_amount, payout_currency, status, created_at
		FROM winners
		WHERE period_id = ?
		ORDER BY ` + "`rank`" + `
	`
	rows, err := r.db.QueryContext(ctx, query, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to query winners: %w", err)
	}
	defer rows.Close()

	var winners []*models.Winner
	for rows.Next() {
		winner := &models.Winner{}
		var payout string
		err := rows.Scan(
			&winner.ID, &winner.UserID, &winner.PeriodID, &winner.Rank,
			&payout, &winner.PayoutCurrency, &winner.Status, &winner.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan winner: %w", err)
		}
		winner.PayoutAmount = parseDecimal(payout)
		winners = append(winners, winner)
	}

	return winners, nil
}
