package analytics

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/finrecords_backend/config"
	"github.com/mmdatafocus/finrecords_backend/queue"
	"github.com/mmdatafocus/finrecords_backend/utils"
)

// RefreshEnqueuer schedules background analytics jobs. Implemented by the
// queue; nil-safe degraded mode lives there.
type RefreshEnqueuer interface {
	Enqueue(ctx context.Context, payload queue.AnalyticsPayload, priority queue.Priority, delay time.Duration) (string, error)
}

// Trigger connects record mutations to the cache. Invalidation is synchronous
// so the next read never serves stale data; the warm-up recompute is deferred
// to the queue and its failure never reaches the mutating caller.
type Trigger struct {
	Analytics *Service
	Queue     RefreshEnqueuer
	Logger    *logrus.Logger

	// Delay before the recompute job runs, absorbing bursts of mutations
	// into one warm-up.
	Delay time.Duration
}

func NewTrigger(analytics *Service, q RefreshEnqueuer, logger *logrus.Logger) *Trigger {
	return &Trigger{
		Analytics: analytics,
		Queue:     q,
		Logger:    logger,
		Delay:     2 * time.Second,
	}
}

// OnTransactionMutated runs after any create, update, delete or lock of a
// record. The mutation itself has already committed; this never returns an
// error to the caller.
func (t *Trigger) OnTransactionMutated(ctx context.Context, companyId string) {
	removed := t.Analytics.Invalidate(ctx, companyId)

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		userId = "system"
	}
	payload := queue.AnalyticsPayload{
		CompanyId: companyId,
		Type:      queue.JobTypeAll,
		UserId:    userId,
		Priority:  int(queue.PriorityMutation),
	}
	jobId, err := t.Queue.Enqueue(ctx, payload, queue.PriorityMutation, t.Delay)
	if err != nil {
		config.LogError(t.Logger, "analytics", "OnTransactionMutated", "enqueue refresh", companyId, err)
		return
	}
	if t.Logger != nil {
		t.Logger.WithFields(logrus.Fields{
			"module":      "analytics",
			"companyId":   companyId,
			"invalidated": removed,
			"jobId":       jobId,
		}).Info("analytics cache invalidated after mutation")
	}
}

// RequestRefresh enqueues an on-demand refresh for a tenant and returns the
// job id. jobType is "all" or a single view name.
func (t *Trigger) RequestRefresh(ctx context.Context, companyId string, jobType string, userId string, priority queue.Priority) (string, error) {
	if err := t.Analytics.validateCompany(ctx, companyId); err != nil {
		return "", err
	}
	payload := queue.AnalyticsPayload{
		CompanyId: companyId,
		Type:      jobType,
		UserId:    userId,
		Priority:  int(priority),
	}
	return t.Queue.Enqueue(ctx, payload, priority, 0)
}
