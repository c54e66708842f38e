package service

import (
	"context"

	"onetrivia/game-service/internal/config"
	"onetrivia/game-service/internal/models"
	"onetrivia/game-service/internal/repository"
	"onetrivia/game-service/pkg/logger"
)

// Risk levels, ordered by severity.
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// FraudReason is one fired heuristic.
type FraudReason struct {
	Code     string
	Severity string
	Detail   string
}

// FraudAssessment aggregates the fired heuristics for one candidate.
// RiskLevel is the maximum severity across reasons.
type FraudAssessment struct {
	IsSuspicious bool
	Reasons      []FraudReason
	RiskLevel    string
}

// FraudEvidence is prefetched once per candidate; every signal is a pure
// predicate over it.
type FraudEvidence struct {
	UserID             uint64
	PeriodID           uint64
	Score              int64
	AvgResponseTime    float64
	Accuracy           float64
	ResponseTimes      []float64
	UsersSharingIP     int
	UsersSharingDevice int
	TrailingAvgScore   float64
}

type fraudSignal func(cfg config.FraudConfig, ev *FraudEvidence) *FraudReason

type FraudService interface {
	// EvaluateCandidate screens one winner candidate. Runs only during
	// finalization, once per candidate.
	EvaluateCandidate(ctx context.Context, entry *models.LeaderboardEntry) (*FraudAssessment, error)
}

type fraudService struct {
	sessionRepo     repository.SessionRepository
	answerRepo      repository.AnswerRepository
	leaderboardRepo repository.LeaderboardRepository
	cfg             config.FraudConfig
	log             *logger.Logger
	signals         []fraudSignal
}

func NewFraudService(
	sessionRepo repository.SessionRepository,
	answerRepo repository.AnswerRepository,
	leaderboardRepo repository.LeaderboardRepository,
	cfg config.FraudConfig,
	log *logger.Logger,
) FraudService {
	return &fraudService{
		sessionRepo:     sessionRepo,
		answerRepo:      answerRepo,
		leaderboardRepo: leaderboardRepo,
		cfg:             cfg,
		log:             log,
		signals: []fraudSignal{
			sharedIPSignal,
			speedAccuracySignal,
			responseVarianceSignal,
			sharedDeviceSignal,
			scoreSpikeSignal,
		},
	}
}

func (s *fraudService) EvaluateCandidate(ctx context.Context, entry *models.LeaderboardEntry) (*FraudAssessment, error) {
	evidence, err := s.gatherEvidence(ctx, entry)
	if err != nil {
		return nil, err
	}
	return evaluateSignals(s.cfg, evidence, s.signals), nil
}

func (s *fraudService) gatherEvidence(ctx context.Context, entry *models.LeaderboardEntry) (*FraudEvidence, error) {
	evidence := &FraudEvidence{
		UserID:          entry.UserID,
		PeriodID:        entry.PeriodID,
		Score:           entry.Score,
		AvgResponseTime: entry.AvgResponseTime,
	}

	session, err := s.sessionRepo.FindCompletedByUserAndPeriod(ctx, entry.UserID, entry.PeriodID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		if session.AnsweredQuestions > 0 {
			evidence.Accuracy = float64(session.CorrectAnswers) / float64(session.AnsweredQuestions)
		}

		// Evidence queries degrade independently: a failed lookup zeroes
		// that field and only silences the signals that read it.
		sharingIP, err := s.sessionRepo.CountUsersSharingIP(ctx, entry.PeriodID, session.IPAddress, entry.UserID)
		if err != nil {
			s.log.WithUserID(entry.UserID).WithError(err).Warn("fraud evidence: ip share count failed")
		} else {
			evidence.UsersSharingIP = sharingIP
		}

		sharingDevice, err := s.sessionRepo.CountUsersSharingDevice(ctx, entry.PeriodID, session.DeviceFingerprint)
		if err != nil {
			s.log.WithUserID(entry.UserID).WithError(err).Warn("fraud evidence: device share count failed")
		} else {
			evidence.UsersSharingDevice = sharingDevice
		}

		times, err := s.answerRepo.ListResponseTimes(ctx, session.ID)
		if err != nil {
			s.log.WithUserID(entry.UserID).WithError(err).Warn("fraud evidence: response times failed")
		} else {
			evidence.ResponseTimes = times
		}
	}

	trailing, err := s.leaderboardRepo.UserTrailingAvgScore(ctx, entry.UserID, entry.PeriodID)
	if err != nil {
		s.log.WithUserID(entry.UserID).WithError(err).Warn("fraud evidence: trailing average failed")
	} else {
		evidence.TrailingAvgScore = trailing
	}

	return evidence, nil
}

// evaluateSignals runs every signal and aggregates fired reasons by maximum
// severity. A panicking signal counts as not suspicious for that signal
// only; the rest still run.
func evaluateSignals(cfg config.FraudConfig, ev *FraudEvidence, signals []fraudSignal) *FraudAssessment {
	assessment := &FraudAssessment{RiskLevel: RiskLow}

	for _, signal := range signals {
		reason := runSignal(signal, cfg, ev)
		if reason == nil {
			continue
		}
		assessment.Reasons = append(assessment.Reasons, *reason)
		if severityRank(reason.Severity) > severityRank(assessment.RiskLevel) {
			assessment.RiskLevel = reason.Severity
		}
	}

	assessment.IsSuspicious = len(assessment.Reasons) > 0
	return assessment
}

func runSignal(signal fraudSignal, cfg config.FraudConfig, ev *FraudEvidence) (reason *FraudReason) {
	defer func() {
		if recover() != nil {
			reason = nil
		}
	}()
	return signal(cfg, ev)
}

func severityRank(severity string) int {
	switch severity {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	}
	return 0
}

// sharedIPSignal fires when another user played the same period from the
// same IP.
func sharedIPSignal(cfg config.FraudConfig, ev *FraudEvidence) *FraudReason {
	if ev.UsersSharingIP == 0 {
		return nil
	}
	return &FraudReason{
		Code:     "shared_ip",
		Severity: RiskHigh,
		Detail:   "another user in the period shares this IP address",
	}
}

// speedAccuracySignal fires when the candidate is both implausibly fast and
// implausibly accurate.
func speedAccuracySignal(cfg config.FraudConfig, ev *FraudEvidence) *FraudReason {
	if ev.AvgResponseTime >= cfg.FastAvgResponseSeconds || ev.Accuracy <= cfg.HighAccuracy {
		return nil
	}
	return &FraudReason{
		Code:     "speed_accuracy",
		Severity: RiskHigh,
		Detail:   "average response time below threshold with accuracy above threshold",
	}
}

// responseVarianceSignal fires on machine-like uniform response times over a
// sufficient sample.
func responseVarianceSignal(cfg config.FraudConfig, ev *FraudEvidence) *FraudReason {
	if len(ev.ResponseTimes) < cfg.MinVarianceSamples {
		return nil
	}
	if variance(ev.ResponseTimes) >= cfg.ResponseVarianceFloor {
		return nil
	}
	return &FraudReason{
		Code:     "low_variance",
		Severity: RiskMedium,
		Detail:   "response time variance below floor",
	}
}

// sharedDeviceSignal fires when the device fingerprint is shared by more
// distinct users than allowed.
func sharedDeviceSignal(cfg config.FraudConfig, ev *FraudEvidence) *FraudReason {
	if ev.UsersSharingDevice <= cfg.SharedDeviceUserLimit {
		return nil
	}
	return &FraudReason{
		Code:     "shared_device",
		Severity: RiskHigh,
		Detail:   "device fingerprint shared by too many users",
	}
}

// scoreSpikeSignal fires when the current score dwarfs the user's own
// trailing historical average.
func scoreSpikeSignal(cfg config.FraudConfig, ev *FraudEvidence) *FraudReason {
	if ev.TrailingAvgScore <= 0 {
		return nil
	}
	if float64(ev.Score) <= ev.TrailingAvgScore*cfg.ScoreSpikeMultiplier {
		return nil
	}
	return &FraudReason{
		Code:     "score_spike",
		Severity: RiskMedium,
		Detail:   "score exceeds trailing historical average by configured multiplier",
	}
}

func variance(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))

	v := 0.0
	for _, s := range samples {
		d := s - mean
		v += d * d
	}
	return v / float64(len(samples))
}
