package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	ID              uint64          `db:"id"`
	UserID          uint64          `db:"user_id"`
	Balance         decimal.Decimal `db:"balance"`
	AdRewardCount   int             `db:"ad_reward_count"`
	AdRewardResetAt time.Time       `db:"ad_reward_reset_at"`
	LastFreeClaimAt *time.Time      `db:"last_free_claim_at"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// Transaction types
const (
	TransactionTypeEntryFee   = "entry_fee"
	TransactionTypeRefund     = "refund"
	TransactionTypeAdReward   = "ad_reward"
	TransactionTypeDailyBonus = "daily_bonus"
	TransactionTypePrize      = "prize"
	TransactionTypePurchase   = "purchase"
	TransactionTypeAdjustment = "adjustment"
)

// Transaction statuses
const (
	TransactionStatusCompleted = "COMPLETED"
)

// WalletTransaction is an immutable ledger row. One row is written per
// successful wallet mutation; BalanceAfter holds the post-mutation balance.
type WalletTransaction struct {
	ID           string          `db:"id"` // TRX-YYYYMMDD-XXXXXX
	UserID       uint64          `db:"user_id"`
	Type         string          `db:"type"`
	Amount       decimal.Decimal `db:"amount"` // signed; positive credits, negative debits
	BalanceAfter decimal.Decimal `db:"balance_after"`
	Description  string          `db:"description"`
	Reference    *string         `db:"reference"`
	Metadata     *string         `db:"metadata"`
	Status       string          `db:"status"`
	CreatedAt    time.Time       `db:"created_at"`
}
