package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onetrivia/game-service/internal/config"
	"onetrivia/game-service/internal/models"
	"onetrivia/game-service/internal/repository"
)

func fraudTestConfig() config.FraudConfig {
	return config.FraudConfig{
		FastAvgResponseSeconds: 2.0,
		HighAccuracy:           0.95,
		ResponseVarianceFloor:  0.25,
		MinVarianceSamples:     4,
		SharedDeviceUserLimit:  3,
		ScoreSpikeMultiplier:   2.0,
	}
}

func TestFraudSignals(t *testing.T) {
	cfg := fraudTestConfig()

	reasonCodes := func(a *FraudAssessment) []string {
		codes := make([]string, 0, len(a.Reasons))
		for _, r := range a.Reasons {
			codes = append(codes, r.Code)
		}
		return codes
	}

	allSignals := []fraudSignal{
		sharedIPSignal, speedAccuracySignal, responseVarianceSignal,
		sharedDeviceSignal, scoreSpikeSignal,
	}

	t.Run("CleanEvidence", func(t *testing.T) {
		ev := &FraudEvidence{
			Score:           100,
			AvgResponseTime: 4.0,
			Accuracy:        0.8,
			ResponseTimes:   []float64{2, 5, 3, 8},
		}
		a := evaluateSignals(cfg, ev, allSignals)
		assert.False(t, a.IsSuspicious)
		assert.Equal(t, RiskLow, a.RiskLevel)
		assert.Empty(t, a.Reasons)
	})

	t.Run("SharedIP", func(t *testing.T) {
		a := evaluateSignals(cfg, &FraudEvidence{UsersSharingIP: 1, AvgResponseTime: 4}, allSignals)
		assert.True(t, a.IsSuspicious)
		assert.Equal(t, RiskHigh, a.RiskLevel)
		assert.Contains(t, reasonCodes(a), "shared_ip")
	})

	t.Run("FastAndAccurate", func(t *testing.T) {
		a := evaluateSignals(cfg, &FraudEvidence{AvgResponseTime: 1.2, Accuracy: 0.97}, allSignals)
		assert.Equal(t, RiskHigh, a.RiskLevel)
		assert.Contains(t, reasonCodes(a), "speed_accuracy")
	})

	t.Run("FastButNotAccurateIsClean", func(t *testing.T) {
		a := evaluateSignals(cfg, &FraudEvidence{AvgResponseTime: 1.2, Accuracy: 0.7}, allSignals)
		assert.False(t, a.IsSuspicious)
	})

	t.Run("LowVariance", func(t *testing.T) {
		ev := &FraudEvidence{
			AvgResponseTime: 3.0,
			ResponseTimes:   []float64{3.0, 3.1, 3.0, 3.05, 2.95},
		}
		a := evaluateSignals(cfg, ev, allSignals)
		assert.Equal(t, RiskMedium, a.RiskLevel)
		assert.Contains(t, reasonCodes(a), "low_variance")
	})

	t.Run("LowVarianceNeedsEnoughSamples", func(t *testing.T) {
		ev := &FraudEvidence{AvgResponseTime: 3.0, ResponseTimes: []float64{3.0, 3.0, 3.0}}
		a := evaluateSignals(cfg, ev, allSignals)
		assert.False(t, a.IsSuspicious)
	})

	t.Run("SharedDevice", func(t *testing.T) {
		a := evaluateSignals(cfg, &FraudEvidence{AvgResponseTime: 4, UsersSharingDevice: 4}, allSignals)
		assert.Equal(t, RiskHigh, a.RiskLevel)
		assert.Contains(t, reasonCodes(a), "shared_device")
	})

	t.Run("DeviceAtLimitIsClean", func(t *testing.T) {
		a := evaluateSignals(cfg, &FraudEvidence{AvgResponseTime: 4, UsersSharingDevice: 3}, allSignals)
		assert.False(t, a.IsSuspicious)
	})

	t.Run("ScoreSpike", func(t *testing.T) {
		a := evaluateSignals(cfg, &FraudEvidence{AvgResponseTime: 4, Score: 250, TrailingAvgScore: 100}, allSignals)
		assert.Equal(t, RiskMedium, a.RiskLevel)
		assert.Contains(t, reasonCodes(a), "score_spike")
	})

	t.Run("NoHistoryNoSpike", func(t *testing.T) {
		a := evaluateSignals(cfg, &FraudEvidence{AvgResponseTime: 4, Score: 250, TrailingAvgScore: 0}, allSignals)
		assert.False(t, a.IsSuspicious)
	})

	t.Run("MaxSeverityWins", func(t *testing.T) {
		ev := &FraudEvidence{
			AvgResponseTime:  4,
			Score:            250,
			TrailingAvgScore: 100, // MEDIUM
			UsersSharingIP:   2,   // HIGH
		}
		a := evaluateSignals(cfg, ev, allSignals)
		assert.Equal(t, RiskHigh, a.RiskLevel)
		assert.Len(t, a.Reasons, 2)
	})

	t.Run("PanickingSignalIsIsolated", func(t *testing.T) {
		panicking := func(cfg config.FraudConfig, ev *FraudEvidence) *FraudReason {
			panic("bad heuristic")
		}
		signals := []fraudSignal{panicking, sharedIPSignal}
		a := evaluateSignals(cfg, &FraudEvidence{UsersSharingIP: 1}, signals)
		assert.True(t, a.IsSuspicious)
		assert.Equal(t, []string{"shared_ip"}, reasonCodes(a))
	})
}

func TestVariance(t *testing.T) {
	assert.Equal(t, 0.0, variance(nil))
	assert.Equal(t, 0.0, variance([]float64{5, 5, 5}))
	assert.InDelta(t, 8.0/3.0, variance([]float64{1, 3, 5}), 1e-9)
}

func TestFraudService_EvaluateCandidate(t *testing.T) {
	ctx := context.Background()
	userID := uint64(7)
	periodID := uint64(10)

	entry := &models.LeaderboardEntry{
		UserID: userID, PeriodID: periodID, Score: 108, AvgResponseTime: 1.5,
	}

	completedSessionRow := func(correct, answered int) *sqlmock.Rows {
		now := time.Now()
		return sqlmock.NewRows([]string{"id", "user_id", "period_id", "status", "total_questions", "answered_questions", "correct_answers", "score", "total_time_seconds", "device_fingerprint", "ip_address", "last_activity_at", "completed_at", "created_at", "updated_at"}).
			AddRow(testSessionID, userID, periodID, models.SessionStatusCompleted, answered, answered, correct, 108, 15.0, "device-fingerprint-1", "10.0.0.1", now, now, now, now)
	}

	t.Run("FlagsFastAccurateCandidate", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		service := NewFraudService(
			repository.NewSessionRepository(db), repository.NewAnswerRepository(db),
			repository.NewLeaderboardRepository(db), fraudTestConfig(), testLog)

		mock.ExpectQuery("FROM game_sessions WHERE user_id").
			WithArgs(userID, periodID, models.SessionStatusCompleted).
			WillReturnRows(completedSessionRow(10, 10))
		mock.ExpectQuery("SELECT COUNT").
			WithArgs(periodID, "10.0.0.1", userID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery("SELECT COUNT").
			WithArgs(periodID, "device-fingerprint-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery("SELECT response_time_seconds").
			WithArgs(testSessionID).
			WillReturnRows(sqlmock.NewRows([]string{"response_time_seconds"}).
				AddRow(1.4).AddRow(1.6).AddRow(1.5).AddRow(1.5))
		mock.ExpectQuery("COALESCE").
			WithArgs(userID, periodID).
			WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(50.0))

		assessment, err := service.EvaluateCandidate(ctx, entry)
		require.NoError(t, err)
		assert.True(t, assessment.IsSuspicious)
		assert.Equal(t, RiskHigh, assessment.RiskLevel)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DegradedEvidenceSilencesSignals", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		service := NewFraudService(
			repository.NewSessionRepository(db), repository.NewAnswerRepository(db),
			repository.NewLeaderboardRepository(db), fraudTestConfig(), testLog)

		// accuracy stays clean so only the share counts could fire, and
		// both of those lookups fail
		mock.ExpectQuery("FROM game_sessions WHERE user_id").
			WithArgs(userID, periodID, models.SessionStatusCompleted).
			WillReturnRows(completedSessionRow(6, 10))
		mock.ExpectQuery("SELECT COUNT").
			WillReturnError(errors.New("timeout"))
		mock.ExpectQuery("SELECT COUNT").
			WillReturnError(errors.New("timeout"))
		mock.ExpectQuery("SELECT response_time_seconds").
			WillReturnError(errors.New("timeout"))
		mock.ExpectQuery("COALESCE").
			WillReturnError(errors.New("timeout"))

		slow := &models.LeaderboardEntry{UserID: userID, PeriodID: periodID, Score: 108, AvgResponseTime: 4.0}
		assessment, err := service.EvaluateCandidate(ctx, slow)
		require.NoError(t, err)
		assert.False(t, assessment.IsSuspicious)
	})

	t.Run("NoCompletedSession", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		service := NewFraudService(
			repository.NewSessionRepository(db), repository.NewAnswerRepository(db),
			repository.NewLeaderboardRepository(db), fraudTestConfig(), testLog)

		mock.ExpectQuery("FROM game_sessions WHERE user_id").
			WithArgs(userID, periodID, models.SessionStatusCompleted).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery("COALESCE").
			WithArgs(userID, periodID).
			WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(0.0))

		assessment, err := service.EvaluateCandidate(ctx, &models.LeaderboardEntry{UserID: userID, PeriodID: periodID, Score: 108, AvgResponseTime: 4.0})
		require.NoError(t, err)
		assert.False(t, assessment.IsSuspicious)
	})
}
