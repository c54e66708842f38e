package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LeaderboardEntry is one user's standing within a period. Entries are
// upserted when a session completes; Rank is assigned by rank recalculation.
type LeaderboardEntry struct {
	ID              uint64    `db:"id"`
	UserID          uint64    `db:"user_id"`
	PeriodID        uint64    `db:"period_id"`
	Rank            int       `db:"rank"`
	Score           int64     `db:"score"`
	Qualified       bool      `db:"qualified"`
	AvgResponseTime float64   `db:"avg_response_time"`
	CompletedAt     time.Time `db:"completed_at"`
	CreatedAt       time.Time `db:"created_at"`
}

// Winner statuses
const (
	WinnerStatusPending  = "PENDING"
	WinnerStatusApproved = "APPROVED"
	WinnerStatusRejected = "REJECTED"
	WinnerStatusPaid     = "PAID"
)

// Winner rows are created only while the owning period transitions
// ACTIVE to COMPLETED.
type Winner struct {
	ID             uint64          `db:"id"`
	UserID         uint64          `db:"user_id"`
	PeriodID       uint64          `db:"period_id"`
	Rank           int             `db:"rank"`
	PayoutAmount   decimal.Decimal `db:"payout_amount"`
	PayoutCurrency string          `db:"payout_currency"`
	Status         string          `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
}

// WinnerView is what leaderboard viewers receive. Below the earnings gating
// threshold the Username and amounts are synthetic.
type WinnerView struct {
	Rank           int             `json:"rank"`
	Username       string          `json:"username"`
	PayoutAmount   decimal.Decimal `json:"payout_amount"`
	PayoutCurrency string          `json:"payout_currency"`
}
