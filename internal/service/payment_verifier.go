package service

import (
	"context"
	"fmt"

	"onetrivia/game-service/internal/models"
	"onetrivia/game-service/internal/repository"
)

// transactionPaymentVerifier resolves money entry fees against the wallet
// transaction history. The payment processor records a completed purchase
// transaction referencing the period before the client attempts to join.
type transactionPaymentVerifier struct {
	transactionRepo repository.TransactionRepository
}

func NewTransactionPaymentVerifier(transactionRepo repository.TransactionRepository) PaymentVerifier {
	return &transactionPaymentVerifier{transactionRepo: transactionRepo}
}

func (v *transactionPaymentVerifier) IsEntryFeePaid(ctx context.Context, userID, periodID uint64) (bool, string, error) {
	reference := PeriodPaymentReference(periodID)
	txn, err := v.transactionRepo.FindCompletedByReference(ctx, userID, models.TransactionTypePurchase, reference)
	if err != nil {
		return false, "", fmt.Errorf("failed to verify entry fee payment: %w", err)
	}
	if txn == nil {
		return false, "", nil
	}
	return true, txn.ID, nil
}

// PeriodPaymentReference is the reference the payment processor writes on
// the purchase transaction for a period entry fee.
func PeriodPaymentReference(periodID uint64) string {
	return fmt.Sprintf("PERIOD-%d", periodID)
}
