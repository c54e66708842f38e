package service

import (
	"context"
	"fmt"
	"sort"

	"onetrivia/game-service/internal/models"
	"onetrivia/game-service/internal/repository"
	"onetrivia/game-service/pkg/logger"
)

type LeaderboardService interface {
	// PublishCompletion upserts the leaderboard entry for a completed
	// session and refreshes the period's ranks.
	PublishCompletion(ctx context.Context, session *models.GameSession, period *models.Period) error
	// RecalculateRanks rewrites rank = position for every entry in the
	// period. Idempotent; writes for one period never interleave.
	RecalculateRanks(ctx context.Context, periodID uint64) error
	// GetLeaderboard returns the top limit entries plus, when userID is
	// given, that user's own entry regardless of rank.
	GetLeaderboard(ctx context.Context, periodID uint64, userID *uint64, limit int) ([]*models.LeaderboardEntry, error)
	GetUserRank(ctx context.Context, periodID, userID uint64) (*models.LeaderboardEntry, error)
}

type leaderboardService struct {
	leaderboardRepo repository.LeaderboardRepository
	locks           *periodLocks
	log             *logger.Logger
}

func NewLeaderboardService(leaderboardRepo repository.LeaderboardRepository, log *logger.Logger) LeaderboardService {
	return &leaderboardService{
		leaderboardRepo: leaderboardRepo,
		locks:           newPeriodLocks(),
		log:             log,
	}
}

func (s *leaderboardService) PublishCompletion(ctx context.Context, session *models.GameSession, period *models.Period) error {
	avgResponseTime := 0.0
	if session.AnsweredQuestions > 0 {
		avgResponseTime = session.TotalTimeSeconds / float64(session.AnsweredQuestions)
	}

	completedAt := session.UpdatedAt
	if session.CompletedAt != nil {
		completedAt = *session.CompletedAt
	}

	entry := &models.LeaderboardEntry{
		UserID:          session.UserID,
		PeriodID:        period.ID,
		Score:           session.Score,
		Qualified:       session.AnsweredQuestions >= period.MinAnswersToQualify,
		AvgResponseTime: avgResponseTime,
		CompletedAt:     completedAt,
	}

	if err := s.leaderboardRepo.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("failed to publish completion: %w", err)
	}

	return s.RecalculateRanks(ctx, period.ID)
}

func (s *leaderboardService) RecalculateRanks(ctx context.Context, periodID uint64) error {
	unlock := s.locks.acquire(periodID)
	defer unlock()

	entries, err := s.leaderboardRepo.ListByPeriod(ctx, periodID)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	rankEntries(entries)

	if err := s.leaderboardRepo.UpdateRanks(ctx, periodID, entries); err != nil {
		return fmt.Errorf("failed to write ranks: %w", err)
	}

	return nil
}

// rankEntries orders entries by score descending, then average response
// time ascending, then completion time ascending; the incoming creation
// order is the final stable tiebreak. Ranks are assigned 1..n in place.
func rankEntries(entries []*models.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.AvgResponseTime != b.AvgResponseTime {
			return a.AvgResponseTime < b.AvgResponseTime
		}
		if !a.CompletedAt.Equal(b.CompletedAt) {
			return a.CompletedAt.Before(b.CompletedAt)
		}
		return false
	})

	for i, entry := range entries {
		entry.Rank = i + 1
	}
}

func (s *leaderboardService) GetLeaderboard(ctx context.Context, periodID uint64, userID *uint64, limit int) ([]*models.LeaderboardEntry, error) {
	top, err := s.leaderboardRepo.ListTop(ctx, periodID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	if userID == nil {
		return top, nil
	}

	for _, entry := range top {
		if entry.UserID == *userID {
			return top, nil
		}
	}

	own, err := s.leaderboardRepo.FindByUserAndPeriod(ctx, *userID, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to load own entry: %w", err)
	}
	if own != nil {
		top = append(top, own)
	}

	return top, nil
}

func (s *leaderboardService) GetUserRank(ctx context.Context, periodID, userID uint64) (*models.LeaderboardEntry, error) {
	entry, err := s.leaderboardRepo.FindByUserAndPeriod(ctx, userID, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entry: %w", err)
	}
	return entry, nil
}
