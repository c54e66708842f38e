package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"onetrivia/game-service/internal/config"
	"onetrivia/game-service/internal/models"
	"onetrivia/game-service/internal/repository"
	"onetrivia/game-service/pkg/helpers"
	"onetrivia/game-service/pkg/logger"
	"onetrivia/game-service/pkg/metrics"
)

var (
	ErrAlreadyAnswered     = errors.New("question already answered in this session")
	ErrQuestionNotAssigned = errors.New("question is not assigned to this session")
	ErrInvalidOption       = errors.New("selected option out of range")
)

// SubmitAnswerParams describes one answer submission. A client-reported
// timeout arrives as (SelectedOption=nil, IsSkipped=true) and is handled
// exactly like a voluntary skip.
type SubmitAnswerParams struct {
	SessionID           string `validate:"required,uuid4"`
	QuestionID          uint64 `validate:"required"`
	SelectedOption      *int
	ResponseTimeSeconds float64 `validate:"gte=0"`
	IsSkipped           bool
}

// SubmitAnswerResult reports the outcome of one submission.
type SubmitAnswerResult struct {
	IsCorrect        bool
	ScoreDelta       int64
	AnsweredCount    int
	SessionCompleted bool
}

type ScoringService interface {
	SubmitAnswer(ctx context.Context, params SubmitAnswerParams) (*SubmitAnswerResult, error)
}

type scoringService struct {
	sessionRepo         repository.SessionRepository
	sessionQuestionRepo repository.SessionQuestionRepository
	questionRepo        repository.QuestionRepository
	answerRepo          repository.AnswerRepository
	periodRepo          repository.PeriodRepository
	leaderboardService  LeaderboardService
	sessionService      SessionService
	validator           *helpers.CustomValidator
	cfg                 config.GameConfig
	log                 *logger.Logger
	metrics             *metrics.Metrics
	audit               AuditSink
}

func NewScoringService(
	sessionRepo repository.SessionRepository,
	sessionQuestionRepo repository.SessionQuestionRepository,
	questionRepo repository.QuestionRepository,
	answerRepo repository.AnswerRepository,
	periodRepo repository.PeriodRepository,
	leaderboardService LeaderboardService,
	sessionService SessionService,
	validator *helpers.CustomValidator,
	cfg config.GameConfig,
	log *logger.Logger,
	m *metrics.Metrics,
	audit AuditSink,
) ScoringService {
	return &scoringService{
		sessionRepo:         sessionRepo,
		sessionQuestionRepo: sessionQuestionRepo,
		questionRepo:        questionRepo,
		answerRepo:          answerRepo,
		periodRepo:          periodRepo,
		leaderboardService:  leaderboardService,
		sessionService:      sessionService,
		validator:           validator,
		cfg:                 cfg,
		log:                 log,
		metrics:             m,
		audit:               audit,
	}
}

func (s *scoringService) SubmitAnswer(ctx context.Context, params SubmitAnswerParams) (*SubmitAnswerResult, error) {
	if err := s.validator.Validate(params); err != nil {
		return nil, err
	}

	session, err := s.sessionService.GetSession(ctx, params.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, ErrInvalidState
	}

	assignment, err := s.sessionQuestionRepo.FindBySessionAndQuestion(ctx, params.SessionID, params.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	if assignment == nil {
		return nil, ErrQuestionNotAssigned
	}

	question, err := s.questionRepo.FindByID(ctx, params.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load question: %w", err)
	}
	if question == nil {
		return nil, fmt.Errorf("question %d missing from content store", params.QuestionID)
	}

	// The client answers against the permuted option list it was delivered,
	// so the submitted index lives in permutation space and must be mapped
	// back before comparing with the stored correct option.
	selectedOption, err := originalOptionIndex(assignment.OptionOrder, params.SelectedOption)
	if err != nil {
		return nil, err
	}

	isCorrect := !params.IsSkipped && selectedOption != nil &&
		*selectedOption == question.CorrectOption
	scoreDelta := s.scorePoints(isCorrect, params.ResponseTimeSeconds)

	answer := &models.Answer{
		SessionID:           params.SessionID,
		QuestionID:          params.QuestionID,
		SelectedOption:      selectedOption,
		IsSkipped:           params.IsSkipped,
		IsCorrect:           isCorrect,
		ResponseTimeSeconds: params.ResponseTimeSeconds,
	}

	correctDelta := 0
	if isCorrect {
		correctDelta = 1
	}

	answeredCount, err := s.answerRepo.Record(ctx, answer, repository.AggregateDelta{
		ScoreDelta:          scoreDelta,
		CorrectDelta:        correctDelta,
		ResponseTimeSeconds: params.ResponseTimeSeconds,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateAnswer) {
			return nil, ErrAlreadyAnswered
		}
		if errors.Is(err, repository.ErrSessionNotActive) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("failed to record answer: %w", err)
	}

	s.metrics.AnswersSubmitted.WithLabelValues(answerResult(params.IsSkipped, isCorrect)).Inc()

	result := &SubmitAnswerResult{
		IsCorrect:     isCorrect,
		ScoreDelta:    scoreDelta,
		AnsweredCount: answeredCount,
	}

	if result.AnsweredCount >= session.TotalQuestions {
		completed, err := s.completeSession(ctx, params.SessionID)
		if err != nil {
			return nil, err
		}
		result.SessionCompleted = completed
	}

	return result, nil
}

// originalOptionIndex translates a permutation-space index into the
// question's original option space using the order stored with the
// assignment. A nil selection (skip or timeout) passes through.
func originalOptionIndex(optionOrder string, selected *int) (*int, error) {
	if selected == nil {
		return nil, nil
	}

	var order []int
	if err := json.Unmarshal([]byte(optionOrder), &order); err != nil {
		return nil, fmt.Errorf("malformed option order: %w", err)
	}
	if *selected < 0 || *selected >= len(order) {
		return nil, ErrInvalidOption
	}

	original := order[*selected]
	return &original, nil
}

// scorePoints maps correctness and response time to a score delta. The
// bonus decays linearly over the configured window, so a faster correct
// answer never scores less than a slower one.
func (s *scoringService) scorePoints(correct bool, responseTime float64) int64 {
	if !correct {
		return 0
	}
	bonus := float64(s.cfg.MaxTimeBonus) * (1 - responseTime/s.cfg.BonusWindowSeconds)
	if bonus < 0 {
		bonus = 0
	}
	return s.cfg.BasePoints + int64(math.Round(bonus))
}

// completeSession flips the session to COMPLETED and publishes its
// leaderboard entry. The conditional update in the repository guarantees
// the transition fires exactly once even under concurrent submissions.
func (s *scoringService) completeSession(ctx context.Context, sessionID string) (bool, error) {
	now := time.Now()
	completed, err := s.sessionRepo.CompleteIfAllAnswered(ctx, sessionID, now)
	if err != nil {
		return false, fmt.Errorf("failed to complete session: %w", err)
	}
	if !completed {
		return false, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return true, fmt.Errorf("failed to reload completed session: %w", err)
	}

	period, err := s.periodRepo.FindByID(ctx, session.PeriodID)
	if err != nil {
		return true, fmt.Errorf("failed to load period: %w", err)
	}
	if period == nil {
		return true, fmt.Errorf("period %d missing for completed session %s", session.PeriodID, sessionID)
	}

	if err := s.leaderboardService.PublishCompletion(ctx, session, period); err != nil {
		return true, err
	}

	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"user_id":    session.UserID,
	}).Info("session completed")
	emitAudit(s.audit, AuditEvent{
		Type:      "session.completed",
		UserID:    session.UserID,
		SessionID: sessionID,
		PeriodID:  session.PeriodID,
		Details: map[string]interface{}{
			"score":           session.Score,
			"correct_answers": session.CorrectAnswers,
		},
	})

	return true, nil
}

func answerResult(skipped, correct bool) string {
	switch {
	case skipped:
		return "skipped"
	case correct:
		return "correct"
	default:
		return "wrong"
	}
}
