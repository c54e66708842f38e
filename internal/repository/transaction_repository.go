package repository

import (
	"context"
	"database/sql"
	"fmt"

	"onetrivia/game-service/internal/models"
)

type TransactionRepository interface {
	FindByID(ctx context.Context, id string) (*models.WalletTransaction, error)
	FindByUserID(ctx context.Context, userID uint64, filters map[string]interface{}) ([]*models.WalletTransaction, error)
	// HasAdClaimToday reports whether the user already claimed the given ad
	// type during the current calendar day (server time).
	HasAdClaimToday(ctx context.Context, userID uint64, adType string) (bool, error)
	// FindCompletedByReference returns the latest completed transaction of
	// the given type carrying the reference, or nil when none exists.
	FindCompletedByReference(ctx context.Context, userID uint64, txType, reference string) (*models.WalletTransaction, error)
}

type transactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) FindByID(ctx context.Context, id string) (*models.WalletTransaction, error) {
	query := `
		SELECT id, user_id, type, amount, balance_after, description, reference, metadata, status, created_at
		FROM wallet_transactions
		WHERE id = ?
	`
	txn, err := r.scanOne(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return txn, nil
}

func (r *transactionRepository) FindByUserID(ctx context.Context, userID uint64, filters map[string]interface{}) ([]*models.WalletTransaction, error) {
	query := `
		SELECT id, user_id, type, amount, balance_after, description, reference, metadata, status, created_at
		FROM wallet_transactions
		WHERE user_id = ?
	`
	args := []interface{}{userID}

	if txType, ok := filters["type"].(string); ok && txType != "" {
		query += " AND type = ?"
		args = append(args, txType)
	}

	query += " ORDER BY created_at DESC"

	if limit, ok := filters["limit"].(int); ok && limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.WalletTransaction
	for rows.Next() {
		txn, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}

	return transactions, nil
}

func (r *transactionRepository) HasAdClaimToday(ctx context.Context, userID uint64, adType string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM wallet_transactions
		WHERE user_id = ? AND type = ? AND reference = ? AND DATE(created_at) = CURDATE()
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID, models.TransactionTypeAdReward, adType).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count ad claims: %w", err)
	}
	return count > 0, nil
}

func (r *transactionRepository) FindCompletedByReference(ctx context.Context, userID uint64, txType, reference string) (*models.WalletTransaction, error) {
	query := `
		SELECT id, user_id, type, amount, balance_after, description, reference, metadata, status, created_at
		FROM wallet_transactions
		WHERE user_id = ? AND type = ? AND reference = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	txn, err := r.scanOne(r.db.QueryRowContext(ctx, query, userID, txType, reference, models.TransactionStatusCompleted))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction by reference: %w", err)
	}
	return txn, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *transactionRepository) scanOne(row rowScanner) (*models.WalletTransaction, error) {
	txn := &models.WalletTransaction{}
	var amount, balanceAfter string
	err := row.Scan(
		&txn.ID, &txn.UserID, &txn.Type, &amount, &balanceAfter,
		&txn.Description, &txn.Reference, &txn.Metadata, &txn.Status, &txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	txn.Amount = parseDecimal(amount)
	txn.BalanceAfter = parseDecimal(balanceAfter)
	return txn, nil
}
