package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"onetrivia/game-service/internal/models"
)

type LeaderboardRepository interface {
	// Upsert inserts the entry or refreshes an existing (user, period) row.
	Upsert(ctx context.Context, entry *models.LeaderboardEntry) error
	// ListByPeriod returns all entries for the period in creation order,
	// which serves as the final stable tiebreak during ranking.
	ListByPeriod(ctx context.Context, periodID uint64) ([]*models.LeaderboardEntry, error)
	// UpdateRanks writes back the computed ranks in one transaction so a
	// concurrent reader never observes a half-ranked period.
	UpdateRanks(ctx context.Context, periodID uint64, entries []*models.LeaderboardEntry) error
	ListTop(ctx context.Context, periodID uint64, limit int) ([]*models.LeaderboardEntry, error)
	FindByUserAndPeriod(ctx context.Context, userID, periodID uint64) (*models.LeaderboardEntry, error)
	// UserTrailingAvgScore returns the user's average score across completed
	// periods other than the given one. Zero when there is no history.
	UserTrailingAvgScore(ctx context.Context, userID, excludePeriodID uint64) (float64, error)
}

type leaderboardRepository struct {
	db *sql.DB
}

func NewLeaderboardRepository(db *sql.DB) LeaderboardRepository {
	return &leaderboardRepository{db: db}
}

const leaderboardColumns = "id, user_id, period_id, `rank`, score, qualified, avg_response_time, completed_at, created_at"

func (r *leaderboardRepository) Upsert(ctx context.Context, entry *models.LeaderboardEntry) error {
	query := `
		INSERT INTO leaderboard_entries (user_id, period_id, ` + "`rank`" + `, score, qualified, avg_response_time, completed_at, created_at)
		VALUES (?, ?, 0, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE score = VALUES(score), qualified = VALUES(qualified),
		    avg_response_time = VALUES(avg_response_time), completed_at = VALUES(completed_at)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.UserID, entry.PeriodID, entry.Score, entry.Qualified,
		entry.AvgResponseTime, entry.CompletedAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert leaderboard entry: %w", err)
	}
	return nil
}

func (r *leaderboardRepository) ListByPeriod(ctx context.Context, periodID uint64) ([]*models.LeaderboardEntry, error) {
	query := `SELECT ` + leaderboardColumns + ` FROM leaderboard_entries WHERE period_id = ? ORDER BY id`
	return r.list(ctx, query, periodID)
}

func (r *leaderboardRepository) UpdateRanks(ctx context.Context, periodID uint64, entries []*models.LeaderboardEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := "UPDATE leaderboard_entries SET `rank` = ? WHERE id = ? AND period_id = ?"
	for _, entry := range entries {
		_, err := tx.ExecContext(ctx, query, entry.Rank, entry.ID, periodID)
		if err != nil {
			return fmt.Errorf("failed to update rank: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rank update: %w", err)
	}

	return nil
}

func (r *leaderboardRepository) ListTop(ctx context.Context, periodID uint64, limit int) ([]*models.LeaderboardEntry, error) {
	query := `SELECT ` + leaderboardColumns + ` FROM leaderboard_entries WHERE period_id = ? AND ` + "`rank`" + ` > 0 ORDER BY ` + "`rank`" + ` LIMIT ?`
	return r.list(ctx, query, periodID, limit)
}

func (r *leaderboardRepository) FindByUserAndPeriod(ctx context.Context, userID, periodID uint64) (*models.LeaderboardEntry, error) {
	query := `SELECT ` + leaderboardColumns + ` FROM leaderboard_entries WHERE user_id = ? AND period_id = ?`

	entry, err := scanLeaderboardEntry(r.db.QueryRowContext(ctx, query, userID, periodID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find leaderboard entry: %w", err)
	}
	return entry, nil
}

func (r *leaderboardRepository) UserTrailingAvgScore(ctx context.Context, userID, excludePeriodID uint64) (float64, error) {
	query := `
		SELECT COALESCE(AVG(score), 0)
		FROM leaderboard_entries
		WHERE user_id = ? AND period_id != ?
	`
	var avg float64
	err := r.db.QueryRowContext(ctx, query, userID, excludePeriodID).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to compute trailing average score: %w", err)
	}
	return avg, nil
}

func (r *leaderboardRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LeaderboardEntry
	for rows.Next() {
		entry, err := scanLeaderboardEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func scanLeaderboardEntry(row rowScanner) (*models.LeaderboardEntry, error) {
	entry := &models.LeaderboardEntry{}
	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.PeriodID, &entry.Rank, &entry.Score,
		&entry.Qualified, &entry.AvgResponseTime, &entry.CompletedAt, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}
