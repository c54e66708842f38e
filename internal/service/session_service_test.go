package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onetrivia/game-service/internal/models"
	"onetrivia/game-service/internal/repository"
)

type sessionHarness struct {
	mock    sqlmock.Sqlmock
	service SessionService
	verify  *stubPaymentVerifier
	content *stubContentStore
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	walletService := NewWalletService(
		repository.NewWalletRepository(db), repository.NewTransactionRepository(db),
		testIDGen, testValidator, walletTestConfig(), testMetrics, testAudit(), testLog)

	verify := &stubPaymentVerifier{}
	content := &stubContentStore{}

	service := NewSessionService(
		repository.NewSessionRepository(db), repository.NewSessionQuestionRepository(db),
		repository.NewPeriodRepository(db), repository.NewGameModeRepository(db),
		walletService, verify, content,
		testIDGen, testValidator, gameTestConfig(), testLog, testMetrics, testAudit())

	return &sessionHarness{mock: mock, service: service, verify: verify, content: content}
}

func stubQuestions(ids ...uint64) []*models.Question {
	questions := make([]*models.Question, 0, len(ids))
	for _, id := range ids {
		questions = append(questions, &models.Question{
			ID:            id,
			Text:          "What is the capital of France?",
			Options:       `["Paris","Lyon","Nice","Lille"]`,
			CorrectOption: 0,
			Language:      "en",
			Category:      "geography",
		})
	}
	return questions
}

func TestSessionService_Join(t *testing.T) {
	ctx := context.Background()
	userID := uint64(7)
	periodID := uint64(10)
	modeID := uint64(1)

	joinParams := JoinParams{
		UserID:            userID,
		PeriodID:          periodID,
		DeviceFingerprint: "device-fingerprint-1",
		IPAddress:         "10.0.0.1",
	}

	expectNoOpenSession := func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("FROM game_sessions WHERE user_id").
			WithArgs(userID, periodID, models.SessionStatusActive, models.SessionStatusPaused).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
	}

	t.Run("FreeModeSuccess", func(t *testing.T) {
		h := newSessionHarness(t)
		h.content.questionsFunc = func(ctx context.Context, language string, count int) ([]*models.Question, error) {
			assert.Equal(t, "en", language)
			assert.Equal(t, 3, count)
			return stubQuestions(101, 102, 103), nil
		}

		h.mock.ExpectQuery("SELECT id, mode_id, status").
			WithArgs(periodID).
			WillReturnRows(periodRow(periodID, modeID, models.PeriodStatusActive, 3, 3, "100"))
		h.mock.ExpectQuery("FROM game_modes").
			WithArgs(modeID).
			WillReturnRows(modeRow(modeID, models.ModeTypeFree, "0", "0", 3))
		expectNoOpenSession(h.mock)

		h.mock.ExpectBegin()
		h.mock.ExpectExec("INSERT INTO game_sessions").
			WithArgs(sqlmock.AnyArg(), userID, periodID, models.SessionStatusActive, 3,
				"device-fingerprint-1", "10.0.0.1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		for i, questionID := range []uint64{101, 102, 103} {
			h.mock.ExpectExec("INSERT INTO session_questions").
				WithArgs(sqlmock.AnyArg(), questionID, i+1, sqlmock.AnyArg(), sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(1, 1))
		}
		h.mock.ExpectCommit()

		session, err := h.service.Join(ctx, joinParams)
		require.NoError(t, err)
		assert.NotEmpty(t, session.ID)
		assert.Equal(t, models.SessionStatusActive, session.Status)
		assert.Equal(t, 3, session.TotalQuestions)
		require.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("PeriodNotFound", func(t *testing.T) {
		h := newSessionHarness(t)
		h.mock.ExpectQuery("SELECT id, mode_id, status").
			WithArgs(periodID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := h.service.Join(ctx, joinParams)
		assert.ErrorIs(t, err, ErrPeriodNotFound)
	})

	t.Run("PeriodNotActive", func(t *testing.T) {
		h := newSessionHarness(t)
		h.mock.ExpectQuery("SELECT id, mode_id, status").
			WithArgs(periodID).
			WillReturnRows(periodRow(periodID, modeID, models.PeriodStatusCompleted, 3, 3, "100"))

		_, err := h.service.Join(ctx, joinParams)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("AlreadyJoined", func(t *testing.T) {
		h := newSessionHarness(t)
		h.mock.ExpectQuery("SELECT id, mode_id, status").
			WithArgs(periodID).
			WillReturnRows(periodRow(periodID, modeID, models.PeriodStatusActive, 3, 3, "100"))
		h.mock.ExpectQuery("FROM game_modes").
			WithArgs(modeID).
			WillReturnRows(modeRow(modeID, models.ModeTypeFree, "0", "0", 3))
		h.mock.ExpectQuery("FROM game_sessions WHERE user_id").
			WithArgs(userID, periodID, models.SessionStatusActive, models.SessionStatusPaused).
			WillReturnRows(sessionRow(testSessionID, userID, periodID, models.SessionStatusActive, 3, 1, 1, 12, 4, time.Now()))

		_, err := h.service.Join(ctx, joinParams)
		assert.ErrorIs(t, err, ErrAlreadyJoined)
	})

	t.Run("InsufficientCredits", func(t *testing.T) {
		h := newSessionHarness(t)
		h.mock.ExpectQuery("SELECT id, mode_id, status").
			WithArgs(periodID).
			WillReturnRows(periodRow(periodID, modeID, models.PeriodStatusActive, 3, 3, "100"))
		h.mock.ExpectQuery("FROM game_modes").
			WithArgs(modeID).
			WillReturnRows(modeRow(modeID, models.ModeTypePaid, "5", "0", 3))
		expectNoOpenSession(h.mock)

		h.mock.ExpectBegin()
		h.mock.ExpectExec("UPDATE wallets SET balance").
			WithArgs("-5", sqlmock.AnyArg(), userID, "-5").
			WillReturnResult(sqlmock.NewResult(0, 0))
		h.mock.ExpectRollback()

		_, err := h.service.Join(ctx, joinParams)
		assert.ErrorIs(t, err, ErrInsufficientCredits)
		require.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("MoneyModeRequiresPayment", func(t *testing.T) {
		h := newSessionHarness(t)
		h.verify.isPaidFunc = func(ctx context.Context, userID, periodID uint64) (bool, string, error) {
			return false, "", nil
		}

		h.mock.ExpectQuery("SELECT id, mode_id, status").
			WithArgs(periodID).
			WillReturnRows(periodRow(periodID, modeID, models.PeriodStatusActive, 3, 3, "100"))
		h.mock.ExpectQuery("FROM game_modes").
			WithArgs(modeID).
			WillReturnRows(modeRow(modeID, models.ModeTypeTournament, "0", "9.99", 3))
		expectNoOpenSession(h.mock)

		_, err := h.service.Join(ctx, joinParams)
		assert.ErrorIs(t, err, ErrPaymentRequired)
	})

	t.Run("RefundsFeeWhenQuestionsRunOut", func(t *testing.T) {
		h := newSessionHarness(t)
		h.content.questionsFunc = func(ctx context.Context, language string, count int) ([]*models.Question, error) {
			return stubQuestions(101, 102), nil // one short
		}

		h.mock.ExpectQuery("SELECT id, mode_id, status").
			WithArgs(periodID).
			WillReturnRows(periodRow(periodID, modeID, models.PeriodStatusActive, 3, 3, "100"))
		h.mock.ExpectQuery("FROM game_modes").
			WithArgs(modeID).
			WillReturnRows(modeRow(modeID, models.ModeTypePaid, "5", "0", 3))
		expectNoOpenSession(h.mock)

		meta := `{"period_id":10}`

		h.mock.ExpectBegin()
		h.mock.ExpectExec("UPDATE wallets SET balance").
			WithArgs("-5", sqlmock.AnyArg(), userID, "-5").
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectQuery("SELECT balance FROM wallets").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("45"))
		h.mock.ExpectExec("INSERT INTO wallet_transactions").
			WithArgs(sqlmock.AnyArg(), userID, models.TransactionTypeEntryFee, "-5", "45",
				"Entry fee for Daily Quiz", nil, meta, models.TransactionStatusCompleted, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		h.mock.ExpectCommit()

		h.mock.ExpectBegin()
		h.mock.ExpectExec("UPDATE wallets SET balance").
			WithArgs("5", sqlmock.AnyArg(), userID, "5").
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectQuery("SELECT balance FROM wallets").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("50"))
		h.mock.ExpectExec("INSERT INTO wallet_transactions").
			WithArgs(sqlmock.AnyArg(), userID, models.TransactionTypeRefund, "5", "50",
				"Entry fee refund for Daily Quiz", nil, meta, models.TransactionStatusCompleted, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))
		h.mock.ExpectCommit()

		_, err := h.service.Join(ctx, joinParams)
		assert.ErrorIs(t, err, ErrNoQuestionsAvailable)
		require.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("RejectsInvalidIP", func(t *testing.T) {
		h := newSessionHarness(t)
		bad := joinParams
		bad.IPAddress = "not-an-ip"
		_, err := h.service.Join(ctx, bad)
		assert.Error(t, err)
	})
}

func TestSessionService_GetNextQuestions(t *testing.T) {
	ctx := context.Background()
	h := newSessionHarness(t)

	h.mock.ExpectQuery("SELECT id, user_id, period_id").
		WithArgs(testSessionID).
		WillReturnRows(sessionRow(testSessionID, 7, 10, models.SessionStatusActive, 3, 1, 1, 12, 4, time.Now()))

	now := time.Now()
	h.mock.ExpectQuery("SELECT sq.id, sq.session_id").
		WithArgs(testSessionID, 2).
		WillReturnRows(sqlmock.NewRows([]string{
			"sq.id", "sq.session_id", "sq.question_id", "sq.position", "sq.option_order", "sq.created_at",
			"q.id", "q.text", "q.options", "q.correct_option", "q.language", "q.category", "q.difficulty", "q.created_at",
		}).AddRow(
			2, testSessionID, 102, 2, "[2,0,1]", now,
			102, "Largest planet?", `["Jupiter","Mars","Venus"]`, 0, "en", "astronomy", 1, now,
		))
	h.mock.ExpectExec("UPDATE game_sessions SET last_activity_at").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), testSessionID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	delivered, err := h.service.GetNextQuestions(ctx, testSessionID, 2)
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, uint64(102), delivered[0].QuestionID)
	assert.Equal(t, 2, delivered[0].Position)
	// stored permutation applied, correct option withheld
	assert.Equal(t, []string{"Venus", "Jupiter", "Mars"}, delivered[0].Options)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestSessionService_Transitions(t *testing.T) {
	ctx := context.Background()

	t.Run("PauseActiveSession", func(t *testing.T) {
		h := newSessionHarness(t)
		h.mock.ExpectQuery("SELECT id, user_id, period_id").
			WithArgs(testSessionID).
			WillReturnRows(sessionRow(testSessionID, 7, 10, models.SessionStatusActive, 3, 1, 1, 12, 4, time.Now()))
		h.mock.ExpectExec("UPDATE game_sessions SET status").
			WithArgs(models.SessionStatusPaused, sqlmock.AnyArg(), testSessionID, models.SessionStatusActive).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, h.service.Pause(ctx, testSessionID))
		require.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("ResumePausedSession", func(t *testing.T) {
		h := newSessionHarness(t)
		h.mock.ExpectQuery("SELECT id, user_id, period_id").
			WithArgs(testSessionID).
			WillReturnRows(sessionRow(testSessionID, 7, 10, models.SessionStatusPaused, 3, 1, 1, 12, 4, time.Now()))
		h.mock.ExpectExec("UPDATE game_sessions SET status").
			WithArgs(models.SessionStatusActive, sqlmock.AnyArg(), testSessionID, models.SessionStatusPaused).
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec("UPDATE game_sessions SET last_activity_at").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), testSessionID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, h.service.Resume(ctx, testSessionID))
	})

	t.Run("ResumeActiveSessionFails", func(t *testing.T) {
		h := newSessionHarness(t)
		h.mock.ExpectQuery("SELECT id, user_id, period_id").
			WithArgs(testSessionID).
			WillReturnRows(sessionRow(testSessionID, 7, 10, models.SessionStatusActive, 3, 1, 1, 12, 4, time.Now()))
		h.mock.ExpectExec("UPDATE game_sessions SET status").
			WithArgs(models.SessionStatusActive, sqlmock.AnyArg(), testSessionID, models.SessionStatusPaused).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, h.service.Resume(ctx, testSessionID), ErrInvalidState)
	})

	t.Run("CancelUnknownSession", func(t *testing.T) {
		h := newSessionHarness(t)
		h.mock.ExpectQuery("SELECT id, user_id, period_id").
			WithArgs(testSessionID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		assert.ErrorIs(t, h.service.Cancel(ctx, testSessionID), ErrSessionNotFound)
	})

	t.Run("IdleSessionExpiresOnAccess", func(t *testing.T) {
		h := newSessionHarness(t)
		h.mock.ExpectQuery("SELECT id, user_id, period_id").
			WithArgs(testSessionID).
			WillReturnRows(sessionRow(testSessionID, 7, 10, models.SessionStatusActive, 3, 1, 1, 12, 4, time.Now().Add(-31*time.Minute)))
		h.mock.ExpectExec("UPDATE game_sessions SET status").
			WithArgs(models.SessionStatusExpired, sqlmock.AnyArg(), testSessionID,
				models.SessionStatusActive, models.SessionStatusPaused).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.ErrorIs(t, h.service.Pause(ctx, testSessionID), ErrInvalidState)
		require.NoError(t, h.mock.ExpectationsWereMet())
	})
}
