package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID               uint64          `db:"id"`
	Username         string          `db:"username"`
	IsVerified       bool            `db:"is_verified"`
	Language         string          `db:"language"`
	LifetimeEarnings decimal.Decimal `db:"lifetime_earnings"` // reference currency
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}
