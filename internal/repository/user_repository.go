package repository

import (
	"context"
	"database/sql"
	"fmt"

	"onetrivia/game-service/internal/models"
)

type UserRepository interface {
	FindByID(ctx context.Context, id uint64) (*models.User, error)
	FindUsernames(ctx context.Context, ids []uint64) (map[uint64]string, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id uint64) (*models.User, error) {
	query := `
		SELECT id, username, is_verified, language, lifetime_earnings, created_at, updated_at
		FROM users
		WHERE id = ?
	`
	user := &models.User{}
	var earnings string

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.IsVerified, &user.Language,
		&earnings, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	user.LifetimeEarnings = parseDecimal(earnings)

	return user, nil
}

func (r *userRepository) FindUsernames(ctx context.Context, ids []uint64) (map[uint64]string, error) {
	usernames := make(map[uint64]string, len(ids))
	if len(ids) == 0 {
		return usernames, nil
	}

	query := `SELECT id, username FROM users WHERE id IN (`
	args := make([]interface{}, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, id)
	}
	query += ")"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usernames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uint64
		var username string
		if err := rows.Scan(&id, &username); err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}
		usernames[id] = username
	}

	return usernames, nil
}
