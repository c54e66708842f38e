package service

import (
	"context"
	"errors"
	"time"

	"onetrivia/game-service/internal/repository"
	"onetrivia/game-service/pkg/logger"
)

// PeriodFinalizer sweeps active periods past their end time and finalizes
// them. Finalization itself is guarded by the ACTIVE to COMPLETED flip, so
// concurrent sweeps and operator-triggered finalization stay safe.
type PeriodFinalizer struct {
	periodRepo    repository.PeriodRepository
	winnerService WinnerService
	interval      time.Duration
	log           *logger.Logger
}

func NewPeriodFinalizer(periodRepo repository.PeriodRepository, winnerService WinnerService, interval time.Duration, log *logger.Logger) *PeriodFinalizer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PeriodFinalizer{
		periodRepo:    periodRepo,
		winnerService: winnerService,
		interval:      interval,
		log:           log,
	}
}

// Run blocks until ctx is cancelled.
func (f *PeriodFinalizer) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.sweep(ctx)
		}
	}
}

func (f *PeriodFinalizer) sweep(ctx context.Context) {
	periods, err := f.periodRepo.ListActive(ctx)
	if err != nil {
		f.log.WithError(err).Error("failed to list active periods")
		return
	}

	now := time.Now()
	for _, period := range periods {
		if period.EndsAt.After(now) {
			continue
		}

		_, err := f.winnerService.FinalizePeriod(ctx, period.ID)
		if err != nil {
			// Another finalizer already completed the period.
			if errors.Is(err, ErrInvalidState) {
				continue
			}
			f.log.WithPeriodID(period.ID).WithError(err).Error("failed to finalize period")
		}
	}
}
