package repository

import (
	"context"
	"database/sql"
	"fmt"

	"onetrivia/game-service/internal/models"
)

type GameModeRepository interface {
	FindByID(ctx context.Context, id uint64) (*models.GameMode, error)
}

type gameModeRepository struct {
	db *sql.DB
}

func NewGameModeRepository(db *sql.DB) GameModeRepository {
	return &gameModeRepository{db: db}
}

func (r *gameModeRepository) FindByID(ctx context.Context, id uint64) (*models.GameMode, error) {
	query := `
		SELECT id, name, type, entry_fee_credits, entry_fee_money, question_count, language, created_at, updated_at
		FROM game_modes
		WHERE id = ?
	`
	mode := &models.GameMode{}
	var feeCredits, feeMoney string

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&mode.ID, &mode.Name, &mode.Type, &feeCredits, &feeMoney,
		&mode.QuestionCount, &mode.Language, &mode.CreatedAt, &mode.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find game mode: %w", err)
	}

	mode.EntryFeeCredits = parseDecimal(feeCredits)
	mode.EntryFeeMoney = parseDecimal(feeMoney)

	return mode, nil
}
