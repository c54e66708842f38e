package service

import (
	"context"
	"errors"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"onetrivia/game-service/internal/models"
	"onetrivia/game-service/pkg/helpers"
	"onetrivia/game-service/pkg/logger"
	"onetrivia/game-service/pkg/metrics"
)

// Shared across the package because promauto registers against the global
// registry and a second NewMetrics call would panic.
var testMetrics = metrics.NewMetrics("test")

var testLog = logger.NewLogger("test")

var testValidator = helpers.NewCustomValidator()

var testIDGen = helpers.NewIDGenerator()

func testAudit() AuditSink {
	return NewLogAuditSink(testLog)
}

const walletCols = "id, user_id, balance, ad_reward_count, ad_reward_reset_at, last_free_claim_at, created_at, updated_at"

func walletRow(userID uint64, balance string, adCount int, resetAt time.Time, lastClaim *time.Time) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "user_id", "balance", "ad_reward_count", "ad_reward_reset_at", "last_free_claim_at", "created_at", "updated_at"})
	if lastClaim != nil {
		rows.AddRow(1, userID, balance, adCount, resetAt, *lastClaim, time.Now(), time.Now())
	} else {
		rows.AddRow(1, userID, balance, adCount, resetAt, nil, time.Now(), time.Now())
	}
	return rows
}

func periodRow(id, modeID uint64, status string, minAnswers, maxWinners int, payout string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "mode_id", "status", "starts_at", "ends_at", "min_answers_to_qualify", "max_winners", "payout_amount", "payout_currency", "created_at", "updated_at"}).
		AddRow(id, modeID, status, now.Add(-time.Hour), now.Add(time.Hour), minAnswers, maxWinners, payout, "USD", now, now)
}

func modeRow(id uint64, modeType, feeCredits, feeMoney string, questionCount int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "name", "type", "entry_fee_credits", "entry_fee_money", "question_count", "language", "created_at", "updated_at"}).
		AddRow(id, "Daily Quiz", modeType, feeCredits, feeMoney, questionCount, "en", now, now)
}

func sessionRow(id string, userID, periodID uint64, status string, total, answered, correct int, score int64, totalTime float64, lastActivity time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "user_id", "period_id", "status", "total_questions", "answered_questions", "correct_answers", "score", "total_time_seconds", "device_fingerprint", "ip_address", "last_activity_at", "completed_at", "created_at", "updated_at"}).
		AddRow(id, userID, periodID, status, total, answered, correct, score, totalTime, "device-fingerprint-1", "10.0.0.1", lastActivity, nil, now, now)
}

func questionRowAt(id uint64, options string, correct int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "text", "options", "correct_option", "language", "category", "difficulty", "created_at"}).
		AddRow(id, "What is the capital of France?", options, correct, "en", "geography", 1, time.Now())
}

func leaderboardRows(entries ...*models.LeaderboardEntry) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "user_id", "period_id", "rank", "score", "qualified", "avg_response_time", "completed_at", "created_at"})
	for _, e := range entries {
		rows.AddRow(e.ID, e.UserID, e.PeriodID, e.Rank, e.Score, e.Qualified, e.AvgResponseTime, e.CompletedAt, e.CreatedAt)
	}
	return rows
}

// Stub collaborators in the style of func-field mocks.

type stubPaymentVerifier struct {
	isPaidFunc func(ctx context.Context, userID, periodID uint64) (bool, string, error)
}

func (s *stubPaymentVerifier) IsEntryFeePaid(ctx context.Context, userID, periodID uint64) (bool, string, error) {
	if s.isPaidFunc != nil {
		return s.isPaidFunc(ctx, userID, periodID)
	}
	return false, "", errors.New("not implemented")
}

type stubContentStore struct {
	questionsFunc func(ctx context.Context, language string, count int) ([]*models.Question, error)
}

func (s *stubContentStore) GetRandomQuestions(ctx context.Context, language string, count int) ([]*models.Question, error) {
	if s.questionsFunc != nil {
		return s.questionsFunc(ctx, language, count)
	}
	return nil, errors.New("not implemented")
}

type stubFraudService struct {
	evaluateFunc func(ctx context.Context, entry *models.LeaderboardEntry) (*FraudAssessment, error)
}

func (s *stubFraudService) EvaluateCandidate(ctx context.Context, entry *models.LeaderboardEntry) (*FraudAssessment, error) {
	if s.evaluateFunc != nil {
		return s.evaluateFunc(ctx, entry)
	}
	return &FraudAssessment{RiskLevel: RiskLow}, nil
}

type stubLeaderboardService struct {
	LeaderboardService
	recalculateFunc func(ctx context.Context, periodID uint64) error
}

func (s *stubLeaderboardService) RecalculateRanks(ctx context.Context, periodID uint64) error {
	if s.recalculateFunc != nil {
		return s.recalculateFunc(ctx, periodID)
	}
	return nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
