package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"onetrivia/game-service/internal/config"
	"onetrivia/game-service/internal/models"
	"onetrivia/game-service/internal/repository"
	"onetrivia/game-service/pkg/helpers"
	"onetrivia/game-service/pkg/logger"
	"onetrivia/game-service/pkg/metrics"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidAmount       = errors.New("amount must not be zero")
	ErrAlreadyClaimedToday = errors.New("ad reward already claimed today for this ad type")
	ErrDailyLimitReached   = errors.New("daily ad reward limit reached")
	ErrClaimNotReady       = errors.New("daily bonus not yet claimable")
)

// AdjustBalanceParams describes one wallet mutation. Positive amounts
// credit, negative amounts debit.
type AdjustBalanceParams struct {
	UserID      uint64 `validate:"required"`
	Amount      decimal.Decimal
	Type        string `validate:"required,oneof=entry_fee refund ad_reward daily_bonus prize purchase adjustment"`
	Description string `validate:"required"`
	Reference   *string
	Metadata    *string
}

// ClaimAdRewardParams identifies one ad reward claim.
type ClaimAdRewardParams struct {
	UserID uint64 `validate:"required"`
	AdType string `validate:"required,ad_type"`
}

type WalletService interface {
	GetWallet(ctx context.Context, userID uint64) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID uint64, filters map[string]interface{}) ([]*models.WalletTransaction, error)
	// AdjustBalance applies a signed amount and returns the new balance and
	// the appended ledger row. Fails with ErrInsufficientFunds when the
	// post-mutation balance would be negative.
	AdjustBalance(ctx context.Context, params AdjustBalanceParams) (decimal.Decimal, *models.WalletTransaction, error)
	ClaimAdReward(ctx context.Context, params ClaimAdRewardParams) (decimal.Decimal, error)
	ClaimDailyBonus(ctx context.Context, userID uint64) (decimal.Decimal, error)
}

type walletService struct {
	walletRepo      repository.WalletRepository
	transactionRepo repository.TransactionRepository
	idGen           *helpers.IDGenerator
	validator       *helpers.CustomValidator
	cfg             config.WalletConfig
	metrics         *metrics.Metrics
	audit           AuditSink
	log             *logger.Logger
}

func NewWalletService(
	walletRepo repository.WalletRepository,
	transactionRepo repository.TransactionRepository,
	idGen *helpers.IDGenerator,
	validator *helpers.CustomValidator,
	cfg config.WalletConfig,
	m *metrics.Metrics,
	audit AuditSink,
	log *logger.Logger,
) WalletService {
	return &walletService{
		walletRepo:      walletRepo,
		transactionRepo: transactionRepo,
		idGen:           idGen,
		validator:       validator,
		cfg:             cfg,
		metrics:         m,
		audit:           audit,
		log:             log,
	}
}

func (s *walletService) GetWallet(ctx context.Context, userID uint64) (*models.Wallet, error) {
	wallet, err := s.walletRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}
	return wallet, nil
}

func (s *walletService) ListTransactions(ctx context.Context, userID uint64, filters map[string]interface{}) ([]*models.WalletTransaction, error) {
	transactions, err := s.transactionRepo.FindByUserID(ctx, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return transactions, nil
}

func (s *walletService) AdjustBalance(ctx context.Context, params AdjustBalanceParams) (decimal.Decimal, *models.WalletTransaction, error) {
	if err := s.validator.Validate(params); err != nil {
		return decimal.Zero, nil, err
	}
	if params.Amount.IsZero() {
		return decimal.Zero, nil, ErrInvalidAmount
	}

	txn := &models.WalletTransaction{
		ID:          s.idGen.GenerateTransactionID(),
		UserID:      params.UserID,
		Type:        params.Type,
		Amount:      params.Amount,
		Description: params.Description,
		Reference:   params.Reference,
		Metadata:    params.Metadata,
		Status:      models.TransactionStatusCompleted,
	}

	newBalance, err := s.walletRepo.AdjustBalance(ctx, params.UserID, params.Amount, txn)
	if err != nil {
		s.metrics.WalletAdjustments.WithLabelValues(params.Type, "failed").Inc()
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return decimal.Zero, nil, ErrInsufficientFunds
		}
		return decimal.Zero, nil, fmt.Errorf("failed to adjust balance: %w", err)
	}
	txn.BalanceAfter = newBalance

	s.metrics.WalletAdjustments.WithLabelValues(params.Type, "ok").Inc()
	emitAudit(s.audit, AuditEvent{
		Type:   "wallet.adjusted",
		UserID: params.UserID,
		Details: map[string]interface{}{
			"transaction_id": txn.ID,
			"tx_type":        params.Type,
			"amount":         params.Amount.String(),
			"balance_after":  newBalance.String(),
		},
	})

	return newBalance, txn, nil
}

func (s *walletService) ClaimAdReward(ctx context.Context, params ClaimAdRewardParams) (decimal.Decimal, error) {
	if err := s.validator.Validate(params); err != nil {
		return decimal.Zero, err
	}

	wallet, err := s.walletRepo.FindByUserID(ctx, params.UserID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get wallet: %w", err)
	}
	if wallet == nil {
		return decimal.Zero, ErrWalletNotFound
	}

	claimed, err := s.transactionRepo.HasAdClaimToday(ctx, params.UserID, params.AdType)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to check ad claims: %w", err)
	}
	if claimed {
		return decimal.Zero, ErrAlreadyClaimedToday
	}

	// Fast rejection on the loaded snapshot. The authoritative cap check is
	// the conditional UPDATE below, which holds under concurrent claims.
	now := time.Now()
	if now.Before(wallet.AdRewardResetAt) && wallet.AdRewardCount >= s.cfg.AdRewardDailyCap {
		return decimal.Zero, ErrDailyLimitReached
	}

	ok, err := s.walletRepo.ClaimAdRewardSlot(ctx, params.UserID, s.cfg.AdRewardDailyCap, now, startOfNextDay(now))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to claim ad reward slot: %w", err)
	}
	if !ok {
		return decimal.Zero, ErrDailyLimitReached
	}

	adType := params.AdType
	newBalance, _, err := s.AdjustBalance(ctx, AdjustBalanceParams{
		UserID:      params.UserID,
		Amount:      s.cfg.AdRewardAmount,
		Type:        models.TransactionTypeAdReward,
		Description: fmt.Sprintf("Ad reward (%s)", adType),
		Reference:   &adType,
	})
	if err != nil {
		if releaseErr := s.walletRepo.ReleaseAdRewardSlot(ctx, params.UserID); releaseErr != nil {
			s.log.WithUserID(params.UserID).WithError(releaseErr).Error("failed to release ad reward slot after credit failure")
		}
		return decimal.Zero, err
	}

	return newBalance, nil
}

func (s *walletService) ClaimDailyBonus(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	wallet, err := s.walletRepo.FindByUserID(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get wallet: %w", err)
	}
	if wallet == nil {
		return decimal.Zero, ErrWalletNotFound
	}

	// Eligibility is computed from the stored claim timestamp, never from
	// anything the client reports.
	now := time.Now()
	if wallet.LastFreeClaimAt != nil && now.Sub(*wallet.LastFreeClaimAt) < s.cfg.FreeClaimInterval {
		return decimal.Zero, ErrClaimNotReady
	}

	// The timestamp is stamped conditionally before the credit, so two
	// concurrent claims cannot both pass the interval check.
	ok, err := s.walletRepo.ClaimDailyBonusSlot(ctx, userID, now, now.Add(-s.cfg.FreeClaimInterval))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to claim daily bonus slot: %w", err)
	}
	if !ok {
		return decimal.Zero, ErrClaimNotReady
	}

	newBalance, _, err := s.AdjustBalance(ctx, AdjustBalanceParams{
		UserID:      userID,
		Amount:      s.cfg.DailyBonusAmount,
		Type:        models.TransactionTypeDailyBonus,
		Description: "Daily bonus",
	})
	if err != nil {
		if restoreErr := s.walletRepo.RestoreLastFreeClaim(ctx, userID, wallet.LastFreeClaimAt); restoreErr != nil {
			s.log.WithUserID(userID).WithError(restoreErr).Error("failed to restore free claim timestamp after credit failure")
		}
		return decimal.Zero, err
	}

	return newBalance, nil
}

func startOfNextDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
}
