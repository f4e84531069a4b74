package queue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/finrecords_backend/config"
)

const (
	RecurringJobName = "analytics-recurring"
	RecurringPattern = "0 * * * *"
)

// RecurringRegistrar is the slice of Queue the scheduler needs.
type RecurringRegistrar interface {
	RegisterRecurring(ctx context.Context, name string, pattern string, payload AnalyticsPayload) error
}

// Scheduler keeps the hourly analytics-refresh registration alive. The durable
// entry lives in the queue; Run is a process-local fallback that re-registers
// every interval in case the original registration failed or was lost.
// Registration is idempotent, so re-arming never duplicates the job.
type Scheduler struct {
	Queue    RecurringRegistrar
	Logger   *logrus.Logger
	Interval time.Duration
}

func NewScheduler(q RecurringRegistrar, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		Queue:    q,
		Logger:   logger,
		Interval: time.Hour,
	}
}

func (s *Scheduler) EnsureRecurring(ctx context.Context) error {
	return s.Queue.RegisterRecurring(ctx, RecurringJobName, RecurringPattern, AnalyticsPayload{
		Type:   JobTypeRecurring,
		UserId: "system",
	})
}

func (s *Scheduler) Run(ctx context.Context) {
	if err := s.EnsureRecurring(ctx); err != nil {
		config.LogError(s.Logger, "queue", "Scheduler.Run", "initial registration", nil, err)
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.EnsureRecurring(ctx); err != nil {
				config.LogError(s.Logger, "queue", "Scheduler.Run", "re-registration", nil, err)
			}
		}
	}
}
