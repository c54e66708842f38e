package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"onetrivia/game-service/internal/config"
	"onetrivia/game-service/internal/models"
	"onetrivia/game-service/internal/repository"
	"onetrivia/game-service/pkg/helpers"
	"onetrivia/game-service/pkg/logger"
	"onetrivia/game-service/pkg/metrics"
)

var (
	ErrPeriodNotFound       = errors.New("period not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrAlreadyJoined        = errors.New("an open session already exists for this period")
	ErrPaymentRequired      = errors.New("entry fee payment required")
	ErrInsufficientCredits  = errors.New("insufficient credits for entry fee")
	ErrInvalidState         = errors.New("operation not allowed in current state")
	ErrNoQuestionsAvailable = errors.New("not enough questions available")
)

// PaymentVerifier answers whether an entry fee for (user, period) has been
// captured by the external payment processor. The wire protocol lives
// outside this service; only the opaque reference comes back.
type PaymentVerifier interface {
	IsEntryFeePaid(ctx context.Context, userID, periodID uint64) (bool, string, error)
}

// ContentStore supplies question content. The mysql-backed question
// repository satisfies it; authoring and curation are external.
type ContentStore interface {
	GetRandomQuestions(ctx context.Context, language string, count int) ([]*models.Question, error)
}

// JoinParams describes one join attempt.
type JoinParams struct {
	UserID            uint64 `validate:"required"`
	PeriodID          uint64 `validate:"required"`
	DeviceFingerprint string `validate:"required,fingerprint"`
	IPAddress         string `validate:"required,ip"`
}

type SessionService interface {
	// Join creates an ACTIVE session for the user in the period, debiting a
	// credits-denominated entry fee atomically with question assignment.
	Join(ctx context.Context, params JoinParams) (*models.GameSession, error)
	// GetNextQuestions returns unanswered questions in assignment order with
	// each question's option order fixed at assignment time.
	GetNextQuestions(ctx context.Context, sessionID string, batchSize int) ([]*models.DeliveredQuestion, error)
	Pause(ctx context.Context, sessionID string) error
	Resume(ctx context.Context, sessionID string) error
	Cancel(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*models.GameSession, error)
}

type sessionService struct {
	sessionRepo         repository.SessionRepository
	sessionQuestionRepo repository.SessionQuestionRepository
	periodRepo          repository.PeriodRepository
	modeRepo            repository.GameModeRepository
	walletService       WalletService
	paymentVerifier     PaymentVerifier
	contentStore        ContentStore
	idGen               *helpers.IDGenerator
	validator           *helpers.CustomValidator
	cfg                 config.GameConfig
	log                 *logger.Logger
	metrics             *metrics.Metrics
	audit               AuditSink
}

func NewSessionService(
	sessionRepo repository.SessionRepository,
	sessionQuestionRepo repository.SessionQuestionRepository,
	periodRepo repository.PeriodRepository,
	modeRepo repository.GameModeRepository,
	walletService WalletService,
	paymentVerifier PaymentVerifier,
	contentStore ContentStore,
	idGen *helpers.IDGenerator,
	validator *helpers.CustomValidator,
	cfg config.GameConfig,
	log *logger.Logger,
	m *metrics.Metrics,
	audit AuditSink,
) SessionService {
	return &sessionService{
		sessionRepo:         sessionRepo,
		sessionQuestionRepo: sessionQuestionRepo,
		periodRepo:          periodRepo,
		modeRepo:            modeRepo,
		walletService:       walletService,
		paymentVerifier:     paymentVerifier,
		contentStore:        contentStore,
		idGen:               idGen,
		validator:           validator,
		cfg:                 cfg,
		log:                 log,
		metrics:             m,
		audit:               audit,
	}
}

func (s *sessionService) Join(ctx context.Context, params JoinParams) (*models.GameSession, error) {
	if err := s.validator.Validate(params); err != nil {
		return nil, err
	}

	period, err := s.periodRepo.FindByID(ctx, params.PeriodID)
	if err != nil {
		return nil, fmt.Errorf("failed to load period: %w", err)
	}
	if period == nil {
		return nil, ErrPeriodNotFound
	}
	if period.Status != models.PeriodStatusActive {
		return nil, ErrInvalidState
	}

	mode, err := s.modeRepo.FindByID(ctx, period.ModeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load game mode: %w", err)
	}
	if mode == nil {
		return nil, fmt.Errorf("game mode %d not found for period %d", period.ModeID, period.ID)
	}

	existing, err := s.sessionRepo.FindOpenByUserAndPeriod(ctx, params.UserID, params.PeriodID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing session: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyJoined
	}

	var paymentRef string
	if mode.EntryFeeMoney.IsPositive() {
		paid, ref, err := s.paymentVerifier.IsEntryFeePaid(ctx, params.UserID, params.PeriodID)
		if err != nil {
			return nil, fmt.Errorf("failed to verify entry fee payment: %w", err)
		}
		if !paid {
			return nil, ErrPaymentRequired
		}
		paymentRef = ref
	}

	feeDebited := false
	if mode.EntryFeeCredits.IsPositive() {
		meta := fmt.Sprintf(`{"period_id":%d}`, period.ID)
		_, _, err := s.walletService.AdjustBalance(ctx, AdjustBalanceParams{
			UserID:      params.UserID,
			Amount:      mode.EntryFeeCredits.Neg(),
			Type:        models.TransactionTypeEntryFee,
			Description: fmt.Sprintf("Entry fee for %s", mode.Name),
			Metadata:    &meta,
		})
		if err != nil {
			if errors.Is(err, ErrInsufficientFunds) {
				return nil, ErrInsufficientCredits
			}
			return nil, fmt.Errorf("failed to debit entry fee: %w", err)
		}
		feeDebited = true
	}

	session, err := s.createWithQuestions(ctx, params, period, mode)
	if err != nil {
		if feeDebited {
			s.refundEntryFee(ctx, params.UserID, mode, period)
		}
		return nil, err
	}

	s.metrics.SessionsJoined.WithLabelValues(mode.Type).Inc()
	emitAudit(s.audit, AuditEvent{
		Type:      "session.joined",
		UserID:    params.UserID,
		SessionID: session.ID,
		PeriodID:  period.ID,
		Details: map[string]interface{}{
			"mode":        mode.Name,
			"payment_ref": paymentRef,
		},
	})

	return session, nil
}

func (s *sessionService) createWithQuestions(ctx context.Context, params JoinParams, period *models.Period, mode *models.GameMode) (*models.GameSession, error) {
	questions, err := s.contentStore.GetRandomQuestions(ctx, mode.Language, mode.QuestionCount)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch questions: %w", err)
	}
	if len(questions) < mode.QuestionCount {
		return nil, ErrNoQuestionsAvailable
	}

	now := time.Now()
	session := &models.GameSession{
		ID:                s.idGen.GenerateSessionID(),
		UserID:            params.UserID,
		PeriodID:          period.ID,
		Status:            models.SessionStatusActive,
		TotalQuestions:    mode.QuestionCount,
		DeviceFingerprint: params.DeviceFingerprint,
		IPAddress:         params.IPAddress,
		LastActivityAt:    now,
	}

	assignments := make([]*models.SessionQuestion, 0, len(questions))
	for i, question := range questions {
		order, err := s.optionOrderFor(question)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, &models.SessionQuestion{
			SessionID:   session.ID,
			QuestionID:  question.ID,
			Position:    i + 1,
			OptionOrder: order,
		})
	}

	if err := s.sessionRepo.Create(ctx, session, assignments); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// optionOrderFor draws the option permutation once; it is stored with the
// assignment and reused for every later delivery.
func (s *sessionService) optionOrderFor(question *models.Question) (string, error) {
	var options []string
	if err := json.Unmarshal([]byte(question.Options), &options); err != nil {
		return "", fmt.Errorf("malformed options for question %d: %w", question.ID, err)
	}
	order := s.idGen.Shuffle(len(options))
	encoded, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("failed to encode option order: %w", err)
	}
	return string(encoded), nil
}

func (s *sessionService) refundEntryFee(ctx context.Context, userID uint64, mode *models.GameMode, period *models.Period) {
	meta := fmt.Sprintf(`{"period_id":%d}`, period.ID)
	_, _, err := s.walletService.AdjustBalance(ctx, AdjustBalanceParams{
		UserID:      userID,
		Amount:      mode.EntryFeeCredits,
		Type:        models.TransactionTypeRefund,
		Description: fmt.Sprintf("Entry fee refund for %s", mode.Name),
		Metadata:    &meta,
	})
	if err != nil {
		// A stuck debit needs operator attention; surface it loudly.
		s.log.WithUserID(userID).WithField("period_id", period.ID).
			WithError(err).Error("failed to refund entry fee after join failure")
	}
}

func (s *sessionService) GetNextQuestions(ctx context.Context, sessionID string, batchSize int) ([]*models.DeliveredQuestion, error) {
	session, err := s.loadLiveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, ErrInvalidState
	}

	if batchSize <= 0 || batchSize > s.cfg.QuestionBatchMax {
		batchSize = s.cfg.QuestionBatchMax
	}

	assigned, err := s.sessionQuestionRepo.ListUnanswered(ctx, sessionID, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list unanswered questions: %w", err)
	}

	delivered := make([]*models.DeliveredQuestion, 0, len(assigned))
	for _, aq := range assigned {
		dq, err := deliverQuestion(aq)
		if err != nil {
			return nil, err
		}
		delivered = append(delivered, dq)
	}

	if err := s.sessionRepo.Touch(ctx, sessionID, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}

	return delivered, nil
}

// deliverQuestion applies the stored permutation and withholds the correct
// option.
func deliverQuestion(aq *models.AssignedQuestion) (*models.DeliveredQuestion, error) {
	var options []string
	if err := json.Unmarshal([]byte(aq.Question.Options), &options); err != nil {
		return nil, fmt.Errorf("malformed options for question %d: %w", aq.Question.ID, err)
	}
	var order []int
	if err := json.Unmarshal([]byte(aq.Assignment.OptionOrder), &order); err != nil {
		return nil, fmt.Errorf("malformed option order for question %d: %w", aq.Question.ID, err)
	}

	permuted := make([]string, 0, len(options))
	for _, idx := range order {
		if idx < 0 || idx >= len(options) {
			return nil, fmt.Errorf("option order out of range for question %d", aq.Question.ID)
		}
		permuted = append(permuted, options[idx])
	}

	return &models.DeliveredQuestion{
		QuestionID: aq.Question.ID,
		Position:   aq.Assignment.Position,
		Text:       aq.Question.Text,
		Options:    permuted,
		Category:   aq.Question.Category,
	}, nil
}

func (s *sessionService) Pause(ctx context.Context, sessionID string) error {
	if _, err := s.loadLiveSession(ctx, sessionID); err != nil {
		return err
	}
	return s.transition(ctx, sessionID, []string{models.SessionStatusActive}, models.SessionStatusPaused)
}

func (s *sessionService) Resume(ctx context.Context, sessionID string) error {
	if _, err := s.loadLiveSession(ctx, sessionID); err != nil {
		return err
	}
	if err := s.transition(ctx, sessionID, []string{models.SessionStatusPaused}, models.SessionStatusActive); err != nil {
		return err
	}
	return s.sessionRepo.Touch(ctx, sessionID, time.Now())
}

func (s *sessionService) Cancel(ctx context.Context, sessionID string) error {
	if _, err := s.loadLiveSession(ctx, sessionID); err != nil {
		return err
	}
	return s.transition(ctx, sessionID, []string{models.SessionStatusActive}, models.SessionStatusCancelled)
}

func (s *sessionService) GetSession(ctx context.Context, sessionID string) (*models.GameSession, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if _, err := s.expireIfIdle(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionService) transition(ctx context.Context, sessionID string, from []string, to string) error {
	ok, err := s.sessionRepo.TransitionStatus(ctx, sessionID, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition session: %w", err)
	}
	if !ok {
		return ErrInvalidState
	}
	return nil
}

// loadLiveSession loads the session and applies the passive idle-expiry
// check. Expiry happens on access; there is no background sweep.
func (s *sessionService) loadLiveSession(ctx context.Context, sessionID string) (*models.GameSession, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	expired, err := s.expireIfIdle(ctx, session)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrInvalidState
	}

	return session, nil
}

func (s *sessionService) expireIfIdle(ctx context.Context, session *models.GameSession) (bool, error) {
	if session.Status != models.SessionStatusActive && session.Status != models.SessionStatusPaused {
		return false, nil
	}
	if time.Since(session.LastActivityAt) <= s.cfg.SessionIdleTimeout {
		return false, nil
	}

	ok, err := s.sessionRepo.TransitionStatus(ctx, session.ID,
		[]string{models.SessionStatusActive, models.SessionStatusPaused}, models.SessionStatusExpired)
	if err != nil {
		return false, fmt.Errorf("failed to expire session: %w", err)
	}
	if ok {
		session.Status = models.SessionStatusExpired
		s.log.WithSessionID(session.ID).Info("session expired after idle timeout")
	}
	return true, nil
}
