package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/repositories"
)

// RetentionService removes satellite compliance reports that have passed
// their retention window. Expired reports are already invisible to
// evaluators; pruning keeps the table from growing unbounded.
type RetentionService interface {
	// Prune deletes all expired reports. Returns the number deleted.
	Prune(ctx context.Context) (int64, error)

	// RunScheduler starts a background goroutine that prunes on the given
	// interval. It runs immediately on startup, then repeats every interval.
	// Cancel the context to stop the scheduler.
	RunScheduler(ctx context.Context, interval time.Duration)
}

type retentionService struct {
	reportRepo repositories.ReportRepository
	logger     *zap.Logger
	now        func() time.Time
}

func NewRetentionService(reportRepo repositories.ReportRepository, logger *zap.Logger) RetentionService {
	return &retentionService{
		reportRepo: reportRepo,
		logger:     logger.Named("retention-service"),
		now:        time.Now,
	}
}

var _ RetentionService = (*retentionService)(nil)

func (s *retentionService) Prune(ctx context.Context) (int64, error) {
	deleted, err := s.reportRepo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		s.logger.Info("Retention cleanup completed",
			zap.Int64("reports_deleted", deleted))
	}

	return deleted, nil
}

func (s *retentionService) RunScheduler(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Info("Retention scheduler started",
			zap.Duration("interval", interval))

		// Run immediately on startup, then at each interval
		if _, err := s.Prune(ctx); err != nil {
			s.logger.Error("Retention scheduler: prune failed", zap.Error(err))
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Retention scheduler stopped")
				return
			case <-ticker.C:
				if _, err := s.Prune(ctx); err != nil {
					s.logger.Error("Retention scheduler: prune failed", zap.Error(err))
				}
			}
		}
	}()
}
