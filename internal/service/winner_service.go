package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"onetrivia/game-service/internal/config"
	"onetrivia/game-service/internal/models"
	"onetrivia/game-service/internal/repository"
	"onetrivia/game-service/pkg/logger"
	"onetrivia/game-service/pkg/metrics"
)

type WinnerService interface {
	// FinalizePeriod recalculates ranks, screens qualified candidates for
	// fraud, creates PENDING winner rows renumbered 1..k and flips the
	// period to COMPLETED. It succeeds at most once per period; later calls
	// fail with ErrInvalidState and create nothing.
	FinalizePeriod(ctx context.Context, periodID uint64) ([]*models.Winner, error)
	// GetWinners serves the winner list for a viewer, substituting a
	// synthetic list below the viewer's earnings gating threshold.
	// viewerID == nil (anonymous) always receives synthetic data.
	GetWinners(ctx context.Context, periodID uint64, viewerID *uint64) ([]*models.WinnerView, error)
	// ShouldShowActualWinners decides gating from lifetime earnings and the
	// mode tier. Evaluated per call, never cached.
	ShouldShowActualWinners(lifetimeEarnings decimal.Decimal, modeType string) bool
}

type winnerService struct {
	periodRepo         repository.PeriodRepository
	modeRepo           repository.GameModeRepository
	leaderboardRepo    repository.LeaderboardRepository
	winnerRepo         repository.WinnerRepository
	userRepo           repository.UserRepository
	leaderboardService LeaderboardService
	fraudService       FraudService
	locks              *periodLocks
	cfg                config.GatingConfig
	log                *logger.Logger
	metrics            *metrics.Metrics
	audit              AuditSink
}

func NewWinnerService(
	periodRepo repository.PeriodRepository,
	modeRepo repository.GameModeRepository,
	leaderboardRepo repository.LeaderboardRepository,
	winnerRepo repository.WinnerRepository,
	userRepo repository.UserRepository,
	leaderboardService LeaderboardService,
	fraudService FraudService,
	cfg config.GatingConfig,
	log *logger.Logger,
	m *metrics.Metrics,
	audit AuditSink,
) WinnerService {
	return &winnerService{
		periodRepo:         periodRepo,
		modeRepo:           modeRepo,
		leaderboardRepo:    leaderboardRepo,
		winnerRepo:         winnerRepo,
		userRepo:           userRepo,
		leaderboardService: leaderboardService,
		fraudService:       fraudService,
		locks:              newPeriodLocks(),
		cfg:                cfg,
		log:                log,
		metrics:            m,
		audit:              audit,
	}
}

func (s *winnerService) FinalizePeriod(ctx context.Context, periodID uint64) ([]*models.Winner, error) {
	unlock := s.locks.acquire(periodID)
	defer unlock()

	period, err := s.periodRepo.FindByID(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to load period: %w", err)
	}
	if period == nil {
		return nil, ErrPeriodNotFound
	}
	if period.Status != models.PeriodStatusActive {
		return nil, ErrInvalidState
	}

	if err := s.leaderboardService.RecalculateRanks(ctx, periodID); err != nil {
		return nil, err
	}

	entries, err := s.leaderboardRepo.ListByPeriod(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	candidates := qualifiedByRank(entries)

	winners := make([]*models.Winner, 0, period.MaxWinners)
	earnings := make(map[uint64]decimal.Decimal)
	for _, candidate := range candidates {
		if len(winners) == period.MaxWinners {
			break
		}

		assessment, err := s.fraudService.EvaluateCandidate(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to screen candidate %d: %w", candidate.UserID, err)
		}
		if assessment.IsSuspicious {
			s.flagCandidate(candidate, assessment)
			continue
		}

		winners = append(winners, &models.Winner{
			UserID:         candidate.UserID,
			PeriodID:       periodID,
			Rank:           len(winners) + 1,
			PayoutAmount:   period.PayoutAmount,
			PayoutCurrency: period.PayoutCurrency,
			Status:         models.WinnerStatusPending,
		})
		earnings[candidate.UserID] = period.PayoutAmount.Mul(s.cfg.ConversionRate)
	}

	err = s.winnerRepo.CreateForPeriod(ctx, periodID, winners, earnings)
	if err != nil {
		if errors.Is(err, repository.ErrPeriodNotActive) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("failed to finalize period: %w", err)
	}

	s.metrics.PeriodsFinalized.Inc()
	s.metrics.WinnersCreated.Add(float64(len(winners)))
	s.log.WithPeriodID(periodID).WithField("winners", len(winners)).Info("period finalized")
	emitAudit(s.audit, AuditEvent{
		Type:     "period.finalized",
		PeriodID: periodID,
		Details: map[string]interface{}{
			"winners":    len(winners),
			"candidates": len(candidates),
		},
	})

	return winners, nil
}

// qualifiedByRank keeps qualified entries ordered by rank. Disqualified
// entries stay on the leaderboard but never reach winner selection.
func qualifiedByRank(entries []*models.LeaderboardEntry) []*models.LeaderboardEntry {
	qualified := make([]*models.LeaderboardEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Qualified {
			qualified = append(qualified, entry)
		}
	}
	for i := 1; i < len(qualified); i++ {
		for j := i; j > 0 && qualified[j].Rank < qualified[j-1].Rank; j-- {
			qualified[j], qualified[j-1] = qualified[j-1], qualified[j]
		}
	}
	return qualified
}

// flagCandidate excludes the candidate from this finalization pass and
// leaves a trail for manual review. No automatic retry.
func (s *winnerService) flagCandidate(candidate *models.LeaderboardEntry, assessment *FraudAssessment) {
	codes := make([]string, 0, len(assessment.Reasons))
	for _, reason := range assessment.Reasons {
		codes = append(codes, reason.Code)
		s.metrics.FraudFlags.WithLabelValues(reason.Code).Inc()
	}

	s.log.WithFields(logrus.Fields{
		"user_id":    candidate.UserID,
		"period_id":  candidate.PeriodID,
		"risk_level": assessment.RiskLevel,
		"reasons":    codes,
	}).Warn("winner candidate flagged for manual review")

	emitAudit(s.audit, AuditEvent{
		Type:     "fraud.flagged",
		UserID:   candidate.UserID,
		PeriodID: candidate.PeriodID,
		Details: map[string]interface{}{
			"risk_level": assessment.RiskLevel,
			"reasons":    codes,
		},
	})
}

func (s *winnerService) GetWinners(ctx context.Context, periodID uint64, viewerID *uint64) ([]*models.WinnerView, error) {
	period, err := s.periodRepo.FindByID(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to load period: %w", err)
	}
	if period == nil {
		return nil, ErrPeriodNotFound
	}

	mode, err := s.modeRepo.FindByID(ctx, period.ModeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load game mode: %w", err)
	}
	if mode == nil {
		return nil, fmt.Errorf("game mode %d not found for period %d", period.ModeID, period.ID)
	}

	showActual := false
	if viewerID != nil {
		viewer, err := s.userRepo.FindByID(ctx, *viewerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load viewer: %w", err)
		}
		if viewer != nil {
			showActual = s.ShouldShowActualWinners(viewer.LifetimeEarnings, mode.Type)
		}
	}

	if !showActual {
		return syntheticWinners(period), nil
	}

	winners, err := s.winnerRepo.ListByPeriod(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list winners: %w", err)
	}

	ids := make([]uint64, 0, len(winners))
	for _, winner := range winners {
		ids = append(ids, winner.UserID)
	}
	usernames, err := s.userRepo.FindUsernames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load winner usernames: %w", err)
	}

	views := make([]*models.WinnerView, 0, len(winners))
	for _, winner := range winners {
		views = append(views, &models.WinnerView{
			Rank:           winner.Rank,
			Username:       usernames[winner.UserID],
			PayoutAmount:   winner.PayoutAmount,
			PayoutCurrency: winner.PayoutCurrency,
		})
	}

	return views, nil
}

func (s *winnerService) ShouldShowActualWinners(lifetimeEarnings decimal.Decimal, modeType string) bool {
	var threshold decimal.Decimal
	switch modeType {
	case models.ModeTypeFree:
		threshold = s.cfg.FreeThreshold
	case models.ModeTypeTournament:
		threshold = s.cfg.TournamentThreshold
	default:
		threshold = s.cfg.PaidThreshold
	}
	return lifetimeEarnings.GreaterThanOrEqual(threshold)
}

// syntheticNames feed the gated winner list. Picked deterministically per
// period so repeated queries stay consistent.
var syntheticNames = []string{
	"quiz_whiz", "brainstorm88", "trivia_titan", "fast_fingers", "night_owl",
	"lucky_seven", "mind_reader", "sharp_shooter", "puzzle_pro", "know_it_all",
	"rapid_fire", "wise_old_owl", "streak_master", "quick_quill", "ace_player",
}

func syntheticWinners(period *models.Period) []*models.WinnerView {
	count := period.MaxWinners
	if count > len(syntheticNames) {
		count = len(syntheticNames)
	}

	views := make([]*models.WinnerView, 0, count)
	for i := 0; i < count; i++ {
		name := syntheticNames[(int(period.ID)+i*7)%len(syntheticNames)]
		views = append(views, &models.WinnerView{
			Rank:           i + 1,
			Username:       name,
			PayoutAmount:   period.PayoutAmount,
			PayoutCurrency: period.PayoutCurrency,
		})
	}
	return views
}
