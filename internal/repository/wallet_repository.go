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

var ErrInsufficientBalance = errors.New("insufficient balance")

type WalletRepository interface {
	FindByUserID(ctx context.Context, userID uint64) (*models.Wallet, error)
	// AdjustBalance applies a signed amount to the wallet and appends the
	// ledger row in one transaction. The balance check and the write are a
	// single conditional UPDATE, so two concurrent debits can never both
	// pass against a stale read.
	AdjustBalance(ctx context.Context, userID uint64, amount decimal.Decimal, txn *models.WalletTransaction) (decimal.Decimal, error)
	// ClaimAdRewardSlot consumes one ad reward slot in a single conditional
	// UPDATE. The counting window rolls over in the same statement when
	// resetAt has passed, so two concurrent claims can never both slip past
	// the cap against a stale read. Returns false when the cap is exhausted.
	ClaimAdRewardSlot(ctx context.Context, userID uint64, cap int, now, nextReset time.Time) (bool, error)
	ReleaseAdRewardSlot(ctx context.Context, userID uint64) error
	// ClaimDailyBonusSlot stamps last_free_claim_at only when the previous
	// claim is at least the configured interval old. The condition lives in
	// the UPDATE itself, so concurrent claims cannot both pass. Returns
	// false when the interval has not elapsed.
	ClaimDailyBonusSlot(ctx context.Context, userID uint64, claimedAt, earliestPrevious time.Time) (bool, error)
	RestoreLastFreeClaim(ctx context.Context, userID uint64, previous *time.Time) error
}

type walletRepository struct {
	db *sql.DB
}

func NewWalletRepository(db *sql.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) FindByUserID(ctx context.Context, userID uint64) (*models.Wallet, error) {
	query := `
		SELECT id, user_id, balance, ad_reward_count, ad_reward_reset_at, last_free_claim_at, created_at, updated_at
		FROM wallets
		WHERE user_id = ?
	`
	wallet := &models.Wallet{}

	var balance string
	var lastFreeClaim sql.NullTime

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&wallet.ID, &wallet.UserID, &balance, &wallet.AdRewardCount,
		&wallet.AdRewardResetAt, &lastFreeClaim, &wallet.CreatedAt, &wallet.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wallet: %w", err)
	}

	wallet.Balance = parseDecimal(balance)
	if lastFreeClaim.Valid {
		wallet.LastFreeClaimAt = &lastFreeClaim.Time
	}

	return wallet, nil
}

func (r *walletRepository) AdjustBalance(ctx context.Context, userID uint64, amount decimal.Decimal, txn *models.WalletTransaction) (decimal.Decimal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE wallets
		SET balance = balance + ?, updated_at = ?
		WHERE user_id = ? AND balance + ? >= 0
	`
	result, err := tx.ExecContext(ctx, query, amount.String(), time.Now(), userID, amount.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to adjust balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return decimal.Zero, ErrInsufficientBalance
	}

	var balanceStr string
	err = tx.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = ?`, userID).Scan(&balanceStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	newBalance := parseDecimal(balanceStr)

	insertQuery := `
		INSERT INTO wallet_transactions (id, user_id, type, amount, balance_after, description, reference, metadata, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, insertQuery,
		txn.ID, userID, txn.Type, amount.String(), newBalance.String(),
		txn.Description, txn.Reference, txn.Metadata, models.TransactionStatusCompleted, time.Now())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create wallet transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit balance adjustment: %w", err)
	}

	return newBalance, nil
}

func (r *walletRepository) ClaimAdRewardSlot(ctx context.Context, userID uint64, cap int, now, nextReset time.Time) (bool, error) {
	// The IF expressions read the pre-update ad_reward_reset_at, so the
	// rollover and the increment happen against the same window snapshot.
	query := `
		UPDATE wallets
		SET ad_reward_count = IF(ad_reward_reset_at <= ?, 1, ad_reward_count + 1),
		    ad_reward_reset_at = IF(ad_reward_reset_at <= ?, ?, ad_reward_reset_at),
		    updated_at = ?
		WHERE user_id = ?
		  AND (ad_reward_reset_at <= ? OR ad_reward_count < ?)
	`
	result, err := r.db.ExecContext(ctx, query, now, now, nextReset, time.Now(), userID, now, cap)
	if err != nil {
		return false, fmt.Errorf("failed to claim ad reward slot: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check ad reward claim: %w", err)
	}
	return rows > 0, nil
}

func (r *walletRepository) ReleaseAdRewardSlot(ctx context.Context, userID uint64) error {
	query := `
		UPDATE wallets
		SET ad_reward_count = ad_reward_count - 1, updated_at = ?
		WHERE user_id = ? AND ad_reward_count > 0
	`
	_, err := r.db.ExecContext(ctx, query, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to release ad reward slot: %w", err)
	}
	return nil
}

func (r *walletRepository) ClaimDailyBonusSlot(ctx context.Context, userID uint64, claimedAt, earliestPrevious time.Time) (bool, error) {
	query := `
		UPDATE wallets
		SET last_free_claim_at = ?, updated_at = ?
		WHERE user_id = ? AND (last_free_claim_at IS NULL OR last_free_claim_at <= ?)
	`
	result, err := r.db.ExecContext(ctx, query, claimedAt, time.Now(), userID, earliestPrevious)
	if err != nil {
		return false, fmt.Errorf("failed to claim daily bonus slot: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check daily bonus claim: %w", err)
	}
	return rows > 0, nil
}

func (r *walletRepository) RestoreLastFreeClaim(ctx context.Context, userID uint64, previous *time.Time) error {
	query := `
		UPDATE wallets
		SET last_free_claim_at = ?, updated_at = ?
		WHERE user_id = ?
	`
	_, err := r.db.ExecContext(ctx, query, previous, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to restore last free claim: %w", err)
	}
	return nil
}

// parseDecimal handles empty strings as zero
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
